package intake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// TranscriptReader reads a mirrored chat history.
type TranscriptReader interface {
	History(ctx context.Context, conversationID string) ([]ChatEntry, error)
}

// Handler exposes the dialogue over HTTP.
type Handler struct {
	controller  *Controller
	registry    *Registry
	transcripts TranscriptReader
	logger      *logging.Logger
}

func NewHandler(controller *Controller, registry *Registry, transcripts TranscriptReader, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		controller:  controller,
		registry:    registry,
		transcripts: transcripts,
		logger:      logger,
	}
}

// ChatRequest is the body of POST /chatbot.
type ChatRequest struct {
	ConversationID string `json:"conversation_id"`
	UserInput      string `json:"user_input"`
}

// MessageRequest is the body of POST /conversations/{conversationID}/messages.
type MessageRequest struct {
	UserInput string `json:"user_input"`
}

// SessionView is the public snapshot of a conversation.
type SessionView struct {
	ConversationID    string      `json:"conversation_id"`
	State             State       `json:"state"`
	ConversationEnded bool        `json:"conversation_ended"`
	ChatHistory       []ChatEntry `json:"chat_history"`
}

// TranscriptView is the response of the transcript endpoint.
type TranscriptView struct {
	ConversationID string      `json:"conversation_id"`
	Source         string      `json:"source"`
	ChatHistory    []ChatEntry `json:"chat_history"`
}

type errorBody struct {
	Detail string `json:"detail"`
}

// Start handles POST /start.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.Start(r.Context()))
}

// CreateConversation handles POST /conversations.
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, h.controller.Start(r.Context()))
}

// Chat handles POST /chatbot.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode chat request", "error", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "Invalid request body"})
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "conversation_id is required"})
		return
	}
	h.chat(w, r, req.ConversationID, req.UserInput)
}

// PostMessage handles POST /conversations/{conversationID}/messages.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode message request", "error", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "Invalid request body"})
		return
	}
	h.chat(w, r, chi.URLParam(r, "conversationID"), req.UserInput)
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request, conversationID, input string) {
	reply, err := h.controller.Chat(r.Context(), conversationID, input)
	if errors.Is(err, ErrSessionNotFound) {
		writeNotFound(w)
		return
	}
	if err != nil {
		h.logger.Error("chat turn failed", "error", err, "conversation_id", conversationID)
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "Internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// GetConversation handles GET /conversations/{conversationID}.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	session, err := h.registry.Snapshot(id)
	if err != nil {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, SessionView{
		ConversationID:    session.ID,
		State:             session.State,
		ConversationEnded: session.State.Terminal(),
		ChatHistory:       nonNilHistory(session.ChatHistory),
	})
}

// GetTranscript handles GET /conversations/{conversationID}/transcript. It
// falls back to the mirrored transcript once the session has been evicted.
func (h *Handler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if session, err := h.registry.Snapshot(id); err == nil {
		writeJSON(w, http.StatusOK, TranscriptView{ConversationID: id, Source: "session", ChatHistory: nonNilHistory(session.ChatHistory)})
		return
	}
	if h.transcripts == nil {
		writeNotFound(w)
		return
	}
	history, err := h.transcripts.History(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to read transcript", "error", err, "conversation_id", id)
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "Failed to read transcript"})
		return
	}
	if len(history) == 0 {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, TranscriptView{ConversationID: id, Source: "transcript", ChatHistory: history})
}

func nonNilHistory(h []ChatEntry) []ChatEntry {
	if h == nil {
		return []ChatEntry{}
	}
	return h
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errorBody{Detail: "Conversation not found"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
