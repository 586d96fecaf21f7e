package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pantrio/pantrio/internal/docstore/sqlite"
)

func newAuthenticator(t *testing.T) *PasswordAuthenticator {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "pantrio-auth-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewPasswordAuthenticator(NewAccountStorage(store))
}

func TestRegister(t *testing.T) {
	a := newAuthenticator(t)
	ctx := context.Background()

	t.Run("creates an account with a hashed password", func(t *testing.T) {
		account, err := a.Register(ctx, "alice@example.com", "Alice", "correct horse")
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if account.UID == "" || account.Email != "alice@example.com" {
			t.Errorf("account = %+v", account)
		}
		if account.PasswordHash == "correct horse" || account.PasswordHash == "" {
			t.Error("password stored unhashed")
		}
	})

	t.Run("rejects weak passwords", func(t *testing.T) {
		_, err := a.Register(ctx, "bob@example.com", "Bob", "short")
		if !errors.Is(err, ErrWeakPassword) {
			t.Errorf("Register = %v, want ErrWeakPassword", err)
		}
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		_, err := a.Register(ctx, "alice@example.com", "Other Alice", "another pass")
		if !errors.Is(err, ErrEmailExists) {
			t.Errorf("Register = %v, want ErrEmailExists", err)
		}
	})
}

func TestAuthenticate(t *testing.T) {
	a := newAuthenticator(t)
	ctx := context.Background()

	created, err := a.Register(ctx, "alice@example.com", "Alice", "correct horse")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	t.Run("valid credentials return the account", func(t *testing.T) {
		account, err := a.Authenticate(ctx, "alice@example.com", "correct horse")
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if account.UID != created.UID {
			t.Errorf("uid = %q, want %q", account.UID, created.UID)
		}
	})

	t.Run("wrong password and unknown email fail identically", func(t *testing.T) {
		_, badPass := a.Authenticate(ctx, "alice@example.com", "wrong pass!")
		_, badMail := a.Authenticate(ctx, "nobody@example.com", "correct horse")
		if !errors.Is(badPass, ErrInvalidCredentials) || !errors.Is(badMail, ErrInvalidCredentials) {
			t.Errorf("errors = %v / %v, want ErrInvalidCredentials for both", badPass, badMail)
		}
	})
}

func TestJWTRoundTrip(t *testing.T) {
	a := newAuthenticator(t)
	ctx := context.Background()
	jwtMgr := NewJWTManager("test-secret-key-32-bytes-long!!!", time.Hour)

	account, err := a.Register(ctx, "alice@example.com", "Alice", "correct horse")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	t.Run("generated token validates to the same claims", func(t *testing.T) {
		token, err := jwtMgr.Generate(account)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		claims, err := jwtMgr.Validate(token)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if claims.UserID != account.UID || claims.Email != account.Email {
			t.Errorf("claims = %+v, want uid %q email %q", claims, account.UID, account.Email)
		}
	})

	t.Run("garbage and foreign-key tokens are rejected", func(t *testing.T) {
		if _, err := jwtMgr.Validate("not.a.token"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Validate = %v, want ErrInvalidToken", err)
		}

		other := NewJWTManager("a-completely-different-secret!!!", time.Hour)
		token, err := other.Generate(account)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if _, err := jwtMgr.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Validate = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("expired tokens are rejected", func(t *testing.T) {
		expired := NewJWTManager("test-secret-key-32-bytes-long!!!", -time.Minute)
		token, err := expired.Generate(account)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if _, err := jwtMgr.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Validate = %v, want ErrInvalidToken", err)
		}
	})
}
