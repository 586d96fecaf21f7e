package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/pantrio/pantrio/internal/docstore"
	"github.com/pantrio/pantrio/internal/models"
)

// maxMessageLen mirrors the input cap of the chat UI, counted in characters.
const maxMessageLen = 500

// ChatService appends to and reads a group's chat log. The log is
// append-only: messages are never edited or deleted, and their order is
// fixed by the store-assigned timestamp.
type ChatService struct {
	store    docstore.Store
	profiles *ProfileService
}

// NewChatService creates a new ChatService with the given storage backend.
func NewChatService(store docstore.Store, profiles *ProfileService) *ChatService {
	return &ChatService{store: store, profiles: profiles}
}

func chatCollection(groupID string) string {
	return GroupPath(groupID) + "/chat"
}

// PostMessage appends a text message. Empty (after trimming) and oversized
// texts are rejected; the author must be a member of a live group.
func (s *ChatService) PostMessage(ctx context.Context, groupID, authorUID, text string) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("message text is required: %w", ErrValidation)
	}
	if utf8.RuneCountInString(text) > maxMessageLen {
		return nil, fmt.Errorf("message too long: %w", ErrValidation)
	}
	return s.post(ctx, groupID, authorUID, docstore.Fields{"text": text}, false)
}

// PostImage appends an image message. Admin-gated.
func (s *ChatService) PostImage(ctx context.Context, groupID, authorUID, imageURL string) (*models.ChatMessage, error) {
	if strings.TrimSpace(imageURL) == "" {
		return nil, fmt.Errorf("image url is required: %w", ErrValidation)
	}
	return s.post(ctx, groupID, authorUID, docstore.Fields{"imageUrl": imageURL}, true)
}

func (s *ChatService) post(ctx context.Context, groupID, authorUID string, body docstore.Fields, adminOnly bool) (*models.ChatMessage, error) {
	snap, err := s.store.Get(ctx, GroupPath(groupID))
	if err != nil {
		return nil, fmt.Errorf("group %q: %w", groupID, ErrNotFound)
	}
	g, err := groupFromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	if g.Deleted() {
		return nil, fmt.Errorf("group %q: %w", groupID, ErrGroupDeleted)
	}
	if !g.IsMember(authorUID) {
		return nil, fmt.Errorf("only members can post: %w", ErrForbidden)
	}
	if adminOnly && !g.IsAdmin(authorUID) {
		return nil, fmt.Errorf("only admins can post images: %w", ErrForbidden)
	}

	author, err := s.profiles.Get(ctx, authorUID)
	if err != nil {
		// A member without a profile doc still has a snapshot in the group.
		for _, m := range g.Users {
			if m.UID == authorUID {
				author = &models.Profile{UID: m.UID, Username: m.Username, DisplayName: m.DisplayName, PhotoURL: m.PhotoURL, Email: m.Email}
				break
			}
		}
		if author == nil {
			return nil, err
		}
	}

	fields := docstore.Fields{
		"user":      author.DisplayLabel(),
		"uid":       authorUID,
		"photoURL":  author.PhotoURL,
		"timestamp": docstore.ServerTimestamp(),
	}
	for k, v := range body {
		fields[k] = v
	}

	id, err := s.store.Append(ctx, chatCollection(groupID), fields)
	if err != nil {
		return nil, fmt.Errorf("failed to post message: %w", err)
	}
	slog.Info("Chat message posted", "group_id", groupID, "author", authorUID, "message_id", id)

	sent, err := s.store.Get(ctx, chatCollection(groupID)+"/"+id)
	if err != nil {
		return nil, err
	}
	return messageFromSnapshot(sent)
}

// History fetches the message log ordered by timestamp ascending. limit 0
// means the full log.
func (s *ChatService) History(ctx context.Context, groupID string, limit int) ([]models.ChatMessage, error) {
	snaps, err := s.store.GetAll(ctx, docstore.Query{
		Collection: chatCollection(groupID),
		OrderBy:    "timestamp",
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	return messagesFromSnapshots(snaps)
}

// Watch streams the full ordered message log on every change. The callback
// runs on the store's notification path and must not block. The returned
// cancel tears the stream down; watching again restarts from the full log.
func (s *ChatService) Watch(ctx context.Context, groupID string, fn func([]models.ChatMessage)) (docstore.CancelFunc, error) {
	return s.store.SubscribeQuery(ctx, docstore.Query{
		Collection: chatCollection(groupID),
		OrderBy:    "timestamp",
	}, func(snaps []docstore.Snapshot) {
		msgs, err := messagesFromSnapshots(snaps)
		if err != nil {
			slog.Error("Failed to decode chat update", "group_id", groupID, "error", err)
			return
		}
		fn(msgs)
	})
}

func messageFromSnapshot(snap docstore.Snapshot) (*models.ChatMessage, error) {
	var m models.ChatMessage
	if err := snap.DataTo(&m); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	m.ID = snap.ID()
	return &m, nil
}

func messagesFromSnapshots(snaps []docstore.Snapshot) ([]models.ChatMessage, error) {
	msgs := make([]models.ChatMessage, 0, len(snaps))
	for _, snap := range snaps {
		m, err := messageFromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, nil
}
