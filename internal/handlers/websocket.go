package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pantrio/pantrio/internal/docstore"
	"github.com/pantrio/pantrio/internal/metrics"
	"github.com/pantrio/pantrio/internal/middleware"
	"github.com/pantrio/pantrio/internal/models"
	"github.com/pantrio/pantrio/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsEvent is one frame on the live stream. Types: group, members,
// shopping_list, chat, and the terminal deleted / removed.
type wsEvent struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// handleGroupSocket streams a group's live state to one client. Each
// connection gets its own session identity, so the client observes its own
// in-flight writes flagged as pending while everyone else only sees
// committed state.
func (h *Handlers) handleGroupSocket(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())
	groupID := r.PathValue("id")

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "group_id", groupID, "error", err)
		return
	}
	defer ws.Close()
	slog.Info("Websocket client connected", "group_id", groupID, "uid", uid)
	metrics.LiveSessions.Inc()
	defer metrics.LiveSessions.Dec()

	// The subscription context outlives the request context, which dies at
	// hijack time. The origin tag drives the pending-write echo: when the
	// client declared a session identifier it is reused, so REST writes sent
	// with the same X-Session-Origin echo back to this socket as pending.
	origin := docstore.OriginFrom(r.Context())
	if origin == "" {
		origin = uuid.New().String()
	}
	ctx := docstore.WithOrigin(context.Background(), origin)

	done := make(chan struct{})
	var once sync.Once
	closeDone := func() { once.Do(func() { close(done) }) }

	// Callbacks fire on the store's notification path and must not block:
	// a client too slow to drain the buffer loses the connection.
	events := make(chan wsEvent, 64)
	send := func(ev wsEvent) {
		select {
		case events <- ev:
		default:
			slog.Warn("Dropping slow websocket client", "group_id", groupID, "uid", uid)
			closeDone()
		}
	}

	sess, err := session.Open(ctx, h.store, groupID, uid, session.Callbacks{
		OnGroup: func(v session.GroupView) {
			send(wsEvent{Type: "group", Data: v})
			send(wsEvent{Type: "shopping_list", Data: v.ShoppingList})
		},
		OnMembers: func(ms []session.MemberView) {
			send(wsEvent{Type: "members", Data: ms})
		},
		OnGone: func(reason session.GoneReason) {
			send(wsEvent{Type: string(reason)})
		},
	})
	if err != nil {
		sendJSON(ws, wsEvent{Type: "error", Data: err.Error()})
		return
	}
	defer sess.Close()

	chatCancel, err := h.chat.Watch(ctx, groupID, func(msgs []models.ChatMessage) {
		send(wsEvent{Type: "chat", Data: msgs})
	})
	if err != nil {
		sendJSON(ws, wsEvent{Type: "error", Data: err.Error()})
		return
	}
	defer chatCancel()

	// Reader only detects disconnects; all writes flow one way.
	go func() {
		defer closeDone()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-events:
			if err := sendJSON(ws, ev); err != nil {
				return
			}
			if ev.Type == string(session.GoneDeleted) || ev.Type == string(session.GoneRemoved) {
				slog.Info("Websocket session ended", "group_id", groupID, "uid", uid, "reason", ev.Type)
				return
			}
		case <-done:
			slog.Info("Websocket client disconnected", "group_id", groupID, "uid", uid)
			return
		}
	}
}

// handleGroupListSocket streams the viewer's live group list: one "groups"
// event with the full password-free list on connect and after every change
// touching a group the viewer belongs to.
func (h *Handlers) handleGroupListSocket(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "uid", uid, "error", err)
		return
	}
	defer ws.Close()
	slog.Info("Group list client connected", "uid", uid)
	metrics.LiveSessions.Inc()
	defer metrics.LiveSessions.Dec()

	done := make(chan struct{})
	var once sync.Once
	closeDone := func() { once.Do(func() { close(done) }) }

	events := make(chan wsEvent, 64)
	send := func(ev wsEvent) {
		select {
		case events <- ev:
		default:
			slog.Warn("Dropping slow websocket client", "uid", uid)
			closeDone()
		}
	}

	cancel, err := h.profiles.WatchGroups(context.Background(), uid, func(gs []models.Group) {
		views := make([]session.GroupView, 0, len(gs))
		for i := range gs {
			views = append(views, session.ViewOf(&gs[i], uid))
		}
		send(wsEvent{Type: "groups", Data: views})
	})
	if err != nil {
		sendJSON(ws, wsEvent{Type: "error", Data: err.Error()})
		return
	}
	defer cancel()

	go func() {
		defer closeDone()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-events:
			if err := sendJSON(ws, ev); err != nil {
				return
			}
		case <-done:
			slog.Info("Group list client disconnected", "uid", uid)
			return
		}
	}
}

func sendJSON(ws *websocket.Conn, v any) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write websocket JSON", "error", err)
	}
	return err
}
