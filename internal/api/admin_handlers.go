package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Osangy/api-sub000/internal/models"
)

// listConversationsHandler handles GET /admin/conversations?shop_id=...
func (s *Server) listConversationsHandler(w http.ResponseWriter, r *http.Request) {
	shopID := r.URL.Query().Get("shop_id")
	if shopID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("shop_id query parameter is required"))
		return
	}
	conversations, err := s.st.ListConversations(r.Context(), shopID)
	if err != nil {
		slog.Error("Server.listConversationsHandler: list failed", "error", err, "shopID", shopID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list conversations"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(conversations))
}

// takeoverHandler handles POST /admin/conversations/{conversationID}/takeover.
// The bot goes silent until the conversation is released.
func (s *Server) takeoverHandler(w http.ResponseWriter, r *http.Request) {
	s.setRobotAssisted(w, r, false)
}

// releaseHandler handles POST /admin/conversations/{conversationID}/release.
func (s *Server) releaseHandler(w http.ResponseWriter, r *http.Request) {
	s.setRobotAssisted(w, r, true)
}

func (s *Server) setRobotAssisted(w http.ResponseWriter, r *http.Request, enabled bool) {
	conversationID := chi.URLParam(r, "conversationID")
	if err := s.st.SetRobotAssisted(r.Context(), conversationID, enabled); err != nil {
		if errors.Is(err, models.ErrConversationNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
			return
		}
		slog.Error("Server.setRobotAssisted: update failed", "error", err, "conversationID", conversationID, "enabled", enabled)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update conversation"))
		return
	}
	slog.Info("Server.setRobotAssisted: updated", "conversationID", conversationID, "robot_assisted", enabled)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]bool{"robot_assisted": enabled}))
}
