package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/avrebarra/lumora/pkg/builder"
	"github.com/avrebarra/lumora/pkg/ledger"
	"github.com/avrebarra/lumora/pkg/llm"
)

// chatRequest is the POST /v1/chat body.
type chatRequest struct {
	Message   string        `json:"message"`
	Model     string        `json:"model,omitempty"`
	History   []llm.Message `json:"history,omitempty"`
	SessionID string        `json:"sessionId,omitempty"`
}

// chatResponse is the POST /v1/chat success body.
type chatResponse struct {
	Response  string    `json:"response"`
	SessionID string    `json:"sessionId"`
	ModelID   string    `json:"modelId"`
	Usage     llm.Usage `json:"usage"`
}

// handleChat runs one billable single-call chat turn.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, accountID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	conv, err := s.conversations.EnsureConversation(ctx, req.SessionID, "")
	if err != nil {
		writeError(w, llm.Errorf(llm.KindStoreError, "failed to open session: %v", err))
		return
	}

	ticket, err := s.gate.Authorize(ctx, accountID, ledger.FeatureChat)
	if err != nil {
		writeError(w, err)
		return
	}

	desc, err := s.gateway.Resolve(req.Model)
	if err != nil {
		s.release(ctx, ticket)
		writeError(w, err)
		return
	}

	messages := make([]llm.Message, 0, len(req.History)+1)
	messages = append(messages, req.History...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Message})

	response, err := s.gateway.Dispatch(ctx, llm.ChatRequest{Messages: messages}, desc)
	if err != nil {
		s.release(ctx, ticket)
		writeError(w, err)
		return
	}

	if _, err := s.gate.Commit(ctx, ticket, "chat", map[string]interface{}{
		"model_id": desc.ID,
		"provider": desc.Provider,
	}); err != nil {
		s.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to commit chat usage")
	}

	if _, err := s.conversations.AppendMessage(ctx, conv.ID, llm.RoleUser, req.Message); err != nil {
		s.logger.Error().Err(err).Str("session_id", conv.ID).Msg("Failed to persist user message")
	}
	if _, err := s.conversations.AppendMessage(ctx, conv.ID, llm.RoleAssistant, response.Text); err != nil {
		s.logger.Error().Err(err).Str("session_id", conv.ID).Msg("Failed to persist assistant message")
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:  response.Text,
		SessionID: conv.ID,
		ModelID:   desc.ID,
		Usage:     response.Usage,
	})
}

// imageRequest is the POST /v1/images body.
type imageRequest struct {
	Prompt string `json:"prompt"`
}

// handleImages runs one billable image generation pass.
func (s *Server) handleImages(w http.ResponseWriter, r *http.Request, accountID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}

	result, err := s.imagine.Generate(r.Context(), accountID, req.Prompt)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// builderRequest is the POST /v1/builder body.
type builderRequest struct {
	ProjectID      string        `json:"projectId"`
	ConversationID string        `json:"conversationId,omitempty"`
	Model          string        `json:"model,omitempty"`
	Messages       []llm.Message `json:"messages"`
}

// builderResponse is the POST /v1/builder success body. Tool results stay
// internal; only the synthesized summary is returned.
type builderResponse struct {
	Summary        string `json:"summary"`
	ConversationID string `json:"conversationId"`
	Outcome        string `json:"outcome"`
	Steps          int    `json:"steps"`
	ToolCalls      int    `json:"toolCalls"`
}

// handleBuilder runs one builder agent run to completion.
func (s *Server) handleBuilder(w http.ResponseWriter, r *http.Request, accountID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req builderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if req.ProjectID == "" {
		http.Error(w, "projectId is required", http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		http.Error(w, "messages are required", http.StatusBadRequest)
		return
	}

	result, err := s.runner.Run(r.Context(), builder.RunParams{
		AccountID:      accountID,
		ProjectID:      req.ProjectID,
		ConversationID: req.ConversationID,
		Model:          req.Model,
		Messages:       req.Messages,
	}, nil)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, builderResponse{
		Summary:        result.Summary,
		ConversationID: result.ConversationID,
		Outcome:        string(result.Outcome),
		Steps:          result.Steps,
		ToolCalls:      result.ToolCalls,
	})
}

func (s *Server) release(ctx context.Context, ticket ledger.Ticket) {
	if err := s.gate.Release(ctx, ticket); err != nil {
		s.logger.Error().Err(err).Str("account_id", ticket.AccountID).Msg("Failed to release ticket")
	}
}
