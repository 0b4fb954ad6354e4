package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/llm"
)

const maxChatBody = 64 << 10

type chatRequest struct {
	Message string     `json:"message"`
	History []llm.Turn `json:"history"`
}

type chatResponse struct {
	Response  string   `json:"response"`
	ToolsUsed []string `json:"tools_used,omitempty"`
}

func (s *server) chat(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Chat == nil {
		writeError(w, r, s.logger, http.StatusServiceUnavailable, CodeServiceUnavailable, "Chat is not configured", nil)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		writeError(w, r, s.logger, http.StatusBadRequest, CodeBadRequest, "Invalid request body", err)
		return
	}

	reply, err := s.cfg.Chat.Chat(r.Context(), req.History, req.Message)
	switch {
	case errors.Is(err, llm.ErrEmptyMessage):
		writeError(w, r, s.logger, http.StatusBadRequest, CodeBadRequest, "Message is required", err)
		return
	case err != nil:
		writeError(w, r, s.logger, http.StatusBadGateway, CodeBadGateway, "Assistant unavailable", err)
		return
	}

	msg := "Chat response generated"
	if len(reply.ToolsUsed) > 0 {
		msg = "Multi-tool execution successful"
	}
	writeJSON(w, http.StatusOK, CodeOK, msg, chatResponse{Response: reply.Text, ToolsUsed: reply.ToolsUsed})
}
