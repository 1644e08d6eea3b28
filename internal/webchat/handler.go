// Package webchat carries the intake dialogue over a WebSocket: one inbound
// message frame is one turn.
package webchat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/clinic-intake/internal/intake"
	"github.com/wolfman30/clinic-intake/pkg/logging"
	"golang.org/x/net/websocket"
)

// Dialogue runs conversations.
type Dialogue interface {
	Start(ctx context.Context) intake.StartResponse
	Chat(ctx context.Context, conversationID, input string) (intake.Reply, error)
}

// Sessions exposes live conversations.
type Sessions interface {
	Snapshot(id string) (intake.Session, error)
}

// InboundMessage is what the client sends.
type InboundMessage struct {
	Type string `json:"type"` // "message", "ping"
	Text string `json:"text"`
}

// OutboundMessage is what we send to the client.
type OutboundMessage struct {
	Type           string             `json:"type"` // "session", "history", "reply", "pong", "error"
	ConversationID string             `json:"conversation_id,omitempty"`
	Text           string             `json:"text,omitempty"`
	State          intake.State       `json:"state,omitempty"`
	Reply          *intake.Reply      `json:"reply,omitempty"`
	Messages       []intake.ChatEntry `json:"messages,omitempty"`
}

// Handler manages web chat connections.
type Handler struct {
	dialogue Dialogue
	sessions Sessions
	history  intake.TranscriptReader
	logger   *logging.Logger
}

// NewHandler creates a web chat handler. sessions and history may be nil.
func NewHandler(dialogue Dialogue, sessions Sessions, history intake.TranscriptReader, logger *logging.Logger) *Handler {
	if dialogue == nil {
		panic("webchat: dialogue required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{dialogue: dialogue, sessions: sessions, history: history, logger: logger}
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	ctx := r.Context()
	// Chat sessions outlive the server's per-request read/write deadlines.
	_ = conn.SetDeadline(time.Time{})
	convID := strings.TrimSpace(r.URL.Query().Get("conversation_id"))

	if convID == "" {
		start := h.dialogue.Start(ctx)
		convID = start.ConversationID
		_ = websocket.JSON.Send(conn, OutboundMessage{
			Type:           "session",
			ConversationID: convID,
			Text:           start.Message,
			State:          start.State,
		})
	} else {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", ConversationID: convID})
		h.sendHistory(ctx, conn, convID)
	}

	logger := h.logger.WithConversation(convID)
	logger.Info("webchat: connection opened")

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			logger.Debug("webchat: connection closed", "error", err)
			return
		}

		switch msg.Type {
		case "ping":
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
		case "message":
			if err := h.processMessage(ctx, conn, convID, msg.Text); err != nil {
				logger.Debug("webchat: send failed", "error", err)
				return
			}
		default:
			logger.Debug("webchat: ignoring frame", "type", msg.Type)
		}
	}
}

// sendHistory replays a live session's chat history, falling back to the
// mirrored transcript once the session has been evicted.
func (h *Handler) sendHistory(ctx context.Context, conn *websocket.Conn, convID string) {
	var entries []intake.ChatEntry
	if session, err := h.lookup(convID); err == nil {
		entries = session.ChatHistory
	} else if h.history != nil {
		entries, err = h.history.History(ctx, convID)
		if err != nil {
			h.logger.WithConversation(convID).Warn("webchat: failed to load history", "error", err)
			return
		}
	}
	if len(entries) > 0 {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "history", ConversationID: convID, Messages: entries})
	}
}

func (h *Handler) lookup(convID string) (intake.Session, error) {
	if h.sessions == nil {
		return intake.Session{}, intake.ErrSessionNotFound
	}
	return h.sessions.Snapshot(convID)
}

func (h *Handler) processMessage(ctx context.Context, conn *websocket.Conn, convID, text string) error {
	reply, err := h.dialogue.Chat(ctx, convID, text)
	if errors.Is(err, intake.ErrSessionNotFound) {
		return websocket.JSON.Send(conn, OutboundMessage{Type: "error", ConversationID: convID, Text: "Conversation not found"})
	}
	if err != nil {
		h.logger.WithConversation(convID).Error("webchat: turn failed", "error", err)
		return websocket.JSON.Send(conn, OutboundMessage{Type: "error", ConversationID: convID, Text: "Sorry, something went wrong. Please try again."})
	}
	return websocket.JSON.Send(conn, OutboundMessage{Type: "reply", ConversationID: convID, Reply: &reply})
}
