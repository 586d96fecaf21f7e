package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pantrio/pantrio/internal/auth"
	"github.com/pantrio/pantrio/internal/docstore/sqlite"
	"github.com/pantrio/pantrio/internal/service"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "pantrio-handlers-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	profiles := service.NewProfileService(store)
	h := New(
		store,
		service.NewGroupService(store),
		service.NewPantryService(store),
		service.NewChatService(store, profiles),
		profiles,
		auth.NewPasswordAuthenticator(auth.NewAccountStorage(store)),
		auth.NewJWTManager("test-secret-key-32-bytes-long!!!", time.Hour),
	)

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv
}

// call sends a JSON request and decodes the JSON response into out (if any).
func call(t *testing.T, srv *httptest.Server, method, path, token string, body, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func signup(t *testing.T, srv *httptest.Server, email, name string) (token, uid string) {
	t.Helper()
	var resp struct {
		Token string `json:"token"`
		UID   string `json:"uid"`
	}
	status := call(t, srv, "POST", "/api/auth/signup", "", map[string]string{
		"email": email, "displayName": name, "password": "correct horse",
	}, &resp)
	if status != http.StatusCreated {
		t.Fatalf("signup = %d, want 201", status)
	}
	return resp.Token, resp.UID
}

func TestAuthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	token, uid := signup(t, srv, "alice@example.com", "Alice")
	if token == "" || uid == "" {
		t.Fatal("signup returned empty token or uid")
	}

	t.Run("duplicate signup conflicts", func(t *testing.T) {
		status := call(t, srv, "POST", "/api/auth/signup", "", map[string]string{
			"email": "alice@example.com", "displayName": "Alice2", "password": "correct horse",
		}, nil)
		if status != http.StatusConflict {
			t.Errorf("status = %d, want 409", status)
		}
	})

	t.Run("weak password is a bad request", func(t *testing.T) {
		status := call(t, srv, "POST", "/api/auth/signup", "", map[string]string{
			"email": "bob@example.com", "displayName": "Bob", "password": "short",
		}, nil)
		if status != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", status)
		}
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		status := call(t, srv, "POST", "/api/auth/login", "", map[string]string{
			"email": "alice@example.com", "password": "wrong password",
		}, nil)
		if status != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", status)
		}
	})

	t.Run("me returns the seeded profile", func(t *testing.T) {
		var p struct {
			UID         string `json:"uid"`
			DisplayName string `json:"displayName"`
		}
		status := call(t, srv, "GET", "/api/auth/me", token, nil, &p)
		if status != http.StatusOK || p.UID != uid || p.DisplayName != "Alice" {
			t.Errorf("me = %d %+v", status, p)
		}
	})

	t.Run("missing token is unauthorized", func(t *testing.T) {
		status := call(t, srv, "GET", "/api/auth/me", "", nil, nil)
		if status != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", status)
		}
	})
}

func TestGroupEndpoints(t *testing.T) {
	srv := newTestServer(t)
	aliceToken, _ := signup(t, srv, "alice@example.com", "Alice")
	bobToken, bobUID := signup(t, srv, "bob@example.com", "Bob")

	var created struct {
		Group struct {
			ID           string         `json:"id"`
			JoinKey      string         `json:"joinKey"`
			IsAdmin      bool           `json:"isAdmin"`
			Pantry       map[string]any `json:"pantry"`
			ShoppingList []any          `json:"shoppingList"`
		} `json:"group"`
		Members []struct {
			UID     string `json:"uid"`
			IsOwner bool   `json:"isOwner"`
		} `json:"members"`
	}

	t.Run("create seeds the starter pantry and hides the password", func(t *testing.T) {
		req, _ := http.NewRequest("POST", srv.URL+"/api/groups",
			strings.NewReader(`{"name":"Weekend House","password":"hunter2"}`))
		req.Header.Set("Authorization", "Bearer "+aliceToken)
		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status = %d, want 201", resp.StatusCode)
		}

		var raw bytes.Buffer
		if _, err := raw.ReadFrom(resp.Body); err != nil {
			t.Fatalf("Failed to read body: %v", err)
		}
		if strings.Contains(raw.String(), "hunter2") {
			t.Error("response leaks the group password")
		}
		if err := json.Unmarshal(raw.Bytes(), &created); err != nil {
			t.Fatalf("Failed to decode: %v", err)
		}
		if created.Group.ID != "weekend-house" || !created.Group.IsAdmin {
			t.Errorf("group = %+v", created.Group)
		}
		if _, ok := created.Group.Pantry["eggs"]; !ok {
			t.Errorf("pantry not seeded: %v", created.Group.Pantry)
		}
		if len(created.Members) != 1 || !created.Members[0].IsOwner {
			t.Errorf("members = %+v", created.Members)
		}
	})

	gid := "weekend-house"

	t.Run("join with the wrong password is unauthorized", func(t *testing.T) {
		status := call(t, srv, "POST", "/api/groups/join", bobToken, map[string]string{
			"joinKey": gid, "password": "nope",
		}, nil)
		if status != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", status)
		}
	})

	t.Run("join and list", func(t *testing.T) {
		status := call(t, srv, "POST", "/api/groups/join", bobToken, map[string]string{
			"joinKey": gid, "password": "hunter2",
		}, nil)
		if status != http.StatusOK {
			t.Fatalf("join = %d, want 200", status)
		}

		var groups []struct {
			ID string `json:"id"`
		}
		status = call(t, srv, "GET", "/api/groups", bobToken, nil, &groups)
		if status != http.StatusOK || len(groups) != 1 || groups[0].ID != gid {
			t.Errorf("list = %d %+v", status, groups)
		}
	})

	t.Run("preview by join key", func(t *testing.T) {
		var p struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Members  int    `json:"members"`
			IsMember bool   `json:"isMember"`
		}
		status := call(t, srv, "GET", "/api/groups/preview?key="+gid, "", nil, &p)
		if status != http.StatusOK || p.ID != gid || p.Name != "Weekend House" || p.Members != 2 || p.IsMember {
			t.Errorf("anonymous preview = %d %+v", status, p)
		}

		status = call(t, srv, "GET", "/api/groups/preview?key="+gid, bobToken, nil, &p)
		if status != http.StatusOK || !p.IsMember {
			t.Errorf("member preview = %d %+v", status, p)
		}

		status = call(t, srv, "GET", "/api/groups/preview?key=no-such-key", "", nil, nil)
		if status != http.StatusNotFound {
			t.Errorf("unknown key = %d, want 404", status)
		}
	})

	t.Run("non-admin cannot delete the group", func(t *testing.T) {
		status := call(t, srv, "DELETE", "/api/groups/"+gid, bobToken, nil, nil)
		if status != http.StatusForbidden {
			t.Errorf("status = %d, want 403", status)
		}
	})

	t.Run("non-admin cannot remove members", func(t *testing.T) {
		status := call(t, srv, "DELETE", "/api/groups/"+gid+"/members/"+bobUID, bobToken, nil, nil)
		// bob tries to remove himself via the admin route
		if status != http.StatusForbidden {
			t.Errorf("status = %d, want 403", status)
		}
	})

	t.Run("pantry flow over HTTP", func(t *testing.T) {
		var added struct {
			Key string `json:"key"`
		}
		status := call(t, srv, "POST", "/api/groups/"+gid+"/pantry", bobToken, map[string]any{
			"name": "Oat Milk", "amount": 1, "unit": "carton",
		}, &added)
		if status != http.StatusOK || added.Key != "oat-milk" {
			t.Fatalf("add = %d %+v", status, added)
		}

		baseline := 3
		status = call(t, srv, "PATCH", "/api/groups/"+gid+"/pantry/oat-milk", aliceToken, map[string]any{
			"baseline": baseline,
		}, nil)
		if status != http.StatusNoContent {
			t.Fatalf("baseline = %d, want 204", status)
		}

		var list []struct {
			Key  string `json:"key"`
			Need int    `json:"need"`
		}
		status = call(t, srv, "GET", "/api/groups/"+gid+"/shopping-list", bobToken, nil, &list)
		if status != http.StatusOK {
			t.Fatalf("shopping-list = %d, want 200", status)
		}
		var need int
		for _, e := range list {
			if e.Key == "oat-milk" {
				need = e.Need
			}
		}
		if need != 2 {
			t.Errorf("oat-milk need = %d, want 2", need)
		}
	})

	t.Run("chat over HTTP", func(t *testing.T) {
		var msg struct {
			Text string `json:"text"`
			User string `json:"user"`
		}
		status := call(t, srv, "POST", "/api/groups/"+gid+"/chat", bobToken, map[string]string{
			"text": "got the oat milk",
		}, &msg)
		if status != http.StatusCreated || msg.Text != "got the oat milk" || msg.User != "Bob" {
			t.Errorf("post = %d %+v", status, msg)
		}

		status = call(t, srv, "POST", "/api/groups/"+gid+"/chat/image", bobToken, map[string]string{
			"imageUrl": "https://img/receipt.png",
		}, nil)
		if status != http.StatusForbidden {
			t.Errorf("image by non-admin = %d, want 403", status)
		}
	})
}

func TestGroupListWebsocket(t *testing.T) {
	srv := newTestServer(t)
	token, _ := signup(t, srv, "alice@example.com", "Alice")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/groups/ws?access_token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ws.Close()

	readGroups := func(t *testing.T) []string {
		t.Helper()
		ws.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev struct {
			Type string `json:"type"`
			Data []struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := ws.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON failed: %v", err)
		}
		if ev.Type != "groups" {
			t.Fatalf("event = %q, want groups", ev.Type)
		}
		ids := make([]string, 0, len(ev.Data))
		for _, g := range ev.Data {
			ids = append(ids, g.ID)
		}
		return ids
	}

	if ids := readGroups(t); len(ids) != 0 {
		t.Fatalf("initial list = %v, want empty", ids)
	}

	status := call(t, srv, "POST", "/api/groups", token, map[string]string{
		"name": "My Kitchen", "password": "hunter2",
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("create = %d, want 201", status)
	}

	// Creation plus the starter-pantry seeding deliver several updates.
	for {
		ids := readGroups(t)
		if len(ids) == 1 && ids[0] == "my-kitchen" {
			break
		}
	}

	status = call(t, srv, "DELETE", "/api/groups/my-kitchen", token, nil, nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete = %d, want 204", status)
	}
	for {
		if ids := readGroups(t); len(ids) == 0 {
			break
		}
	}
}

func TestSameOriginWriteOverSocket(t *testing.T) {
	srv := newTestServer(t)
	aliceToken, _ := signup(t, srv, "alice@example.com", "Alice")
	bobToken, bobUID := signup(t, srv, "bob@example.com", "Bob")

	status := call(t, srv, "POST", "/api/groups", aliceToken, map[string]string{
		"name": "Shared Tab", "password": "pw-123456",
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("create = %d, want 201", status)
	}
	status = call(t, srv, "POST", "/api/groups/join", bobToken, map[string]string{
		"joinKey": "shared-tab", "password": "pw-123456",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("join = %d, want 200", status)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/api/groups/shared-tab/ws?access_token=" + aliceToken + "&session=tab-1"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ws.Close()

	readEvent := func(t *testing.T) (string, json.RawMessage) {
		t.Helper()
		ws.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := ws.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON failed: %v", err)
		}
		return ev.Type, ev.Data
	}
	for i := 0; i < 4; i++ {
		readEvent(t)
	}

	// A membership write on the socket's own session identifier is echoed
	// straight into the open session while the write is still in flight.
	req, err := http.NewRequest("DELETE", srv.URL+"/api/groups/shared-tab/members/"+bobUID, nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	req.Header.Set("X-Session-Origin", "tab-1")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("remove member = %d, want 204", resp.StatusCode)
	}

	for {
		typ, data := readEvent(t)
		if typ != "members" {
			continue
		}
		var ms []struct {
			UID string `json:"uid"`
		}
		if err := json.Unmarshal(data, &ms); err != nil {
			t.Fatalf("Failed to decode members: %v", err)
		}
		if len(ms) == 1 && ms[0].UID != bobUID {
			return
		}
	}
}

func TestGroupWebsocket(t *testing.T) {
	srv := newTestServer(t)
	aliceToken, _ := signup(t, srv, "alice@example.com", "Alice")

	status := call(t, srv, "POST", "/api/groups", aliceToken, map[string]string{
		"name": "Live House", "password": "hunter2",
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("create = %d, want 201", status)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/groups/live-house/ws?access_token=" + aliceToken
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ws.Close()

	readEvent := func(t *testing.T) (string, json.RawMessage) {
		t.Helper()
		ws.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := ws.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON failed: %v", err)
		}
		return ev.Type, ev.Data
	}

	t.Run("initial state arrives on connect", func(t *testing.T) {
		seen := map[string]bool{}
		for i := 0; i < 4; i++ {
			typ, _ := readEvent(t)
			seen[typ] = true
		}
		for _, want := range []string{"group", "shopping_list", "members", "chat"} {
			if !seen[want] {
				t.Errorf("initial events missing %q, saw %v", want, seen)
			}
		}
	})

	t.Run("a posted message streams to the socket", func(t *testing.T) {
		status := call(t, srv, "POST", "/api/groups/live-house/chat", aliceToken, map[string]string{
			"text": "hello from the other side",
		}, nil)
		if status != http.StatusCreated {
			t.Fatalf("post = %d, want 201", status)
		}

		for {
			typ, data := readEvent(t)
			if typ != "chat" {
				continue
			}
			if bytes.Contains(data, []byte("hello from the other side")) {
				return
			}
		}
	})

	t.Run("group deletion ends the stream", func(t *testing.T) {
		status := call(t, srv, "DELETE", "/api/groups/live-house", aliceToken, nil, nil)
		if status != http.StatusNoContent {
			t.Fatalf("delete = %d, want 204", status)
		}

		for {
			typ, _ := readEvent(t)
			if typ == "deleted" {
				break
			}
		}

		// The server closes after the terminal event.
		ws.SetReadDeadline(time.Now().Add(5 * time.Second))
		if _, _, err := ws.ReadMessage(); err == nil {
			t.Error("expected the connection to close after deleted")
		}
	})
}
