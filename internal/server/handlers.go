package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tradewind-ai/tradewind/internal/domain"
	"github.com/tradewind-ai/tradewind/internal/orchestrator"
	"github.com/tradewind-ai/tradewind/internal/provider"
	"github.com/tradewind-ai/tradewind/internal/storage"
	"github.com/tradewind-ai/tradewind/internal/tools"
)

// Handlers holds the API surface's collaborators.
type Handlers struct {
	Orchestrator *orchestrator.Orchestrator
	Provider     *provider.Router
	Registry     *tools.Registry
	Store        storage.SessionStore
	Logger       *slog.Logger
}

func (h *Handlers) Mount(r chi.Router) {
	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.chat)
		r.Post("/chat/stream", h.chatStream)
		r.Get("/models", h.models)
		r.Post("/model/switch", h.switchModel)
		r.Get("/stats", h.stats)
		r.Get("/sessions", h.sessions)
		r.Get("/session/{id}", h.session)
		r.Delete("/session/{id}", h.deleteSession)
		r.Post("/tools/{service}/{tool}", h.callTool)
	})
}

type chatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

func (h *Handlers) chat(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeChat(w, r)
	if !ok {
		return
	}

	result, err := h.Orchestrator.Chat(r.Context(), req.SessionID, req.Message)
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) chatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeChat(w, r)
	if !ok {
		return
	}

	stream, err := NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	_, err = h.Orchestrator.ChatStream(r.Context(), req.SessionID, req.Message, func(event domain.StreamEvent) {
		if writeErr := stream.Send(event); writeErr != nil {
			h.Logger.Debug("client dropped stream", "session_id", req.SessionID, "error", writeErr)
		}
	})
	if err != nil {
		AddError(r.Context(), err)
	}
}

func (h *Handlers) decodeChat(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return req, false
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}
	return req, true
}

func (h *Handlers) models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models": h.Provider.Names(),
		"mode":   h.Provider.Mode(),
	})
}

func (h *Handlers) switchModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Model == "" {
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}
	if !h.Provider.SetMode(req.Model) {
		writeError(w, http.StatusBadRequest, "unknown model: "+req.Model)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": h.Provider.Mode()})
}

func (h *Handlers) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":      h.Provider.Mode(),
		"providers": h.Provider.StatsByName(),
	})
}

func (h *Handlers) sessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Store.List(r.Context())
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := h.Orchestrator.Session(r.Context(), id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := h.Orchestrator.DeleteSession(r.Context(), id)
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// callTool exposes tools directly for debugging and dashboards.
func (h *Handlers) callTool(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	tool := chi.URLParam(r, "tool")

	args := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid arguments body")
		return
	}

	result, err := h.Registry.Call(r.Context(), service, tool, args)
	if errors.Is(err, domain.ErrUnknownService) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
