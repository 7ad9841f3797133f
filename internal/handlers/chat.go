package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/OmChillure/localchat/internal/models"
	"github.com/OmChillure/localchat/internal/services"
	"github.com/google/uuid"
)

var errReplyPending = errors.New("a reply is still pending in this conversation")

// HandleChats processes a message sent from the page through an HTTP POST request. It appends the user
// message and a placeholder for the assistant reply to the conversation, renders both as HTML fragments
// and starts producing the reply in the background. The reply itself reaches the page through
// HandleMessageStream.
//
// The handler expects the "message" and "conversation_id" form fields and an optional "model" field.
// A message made only of whitespace is ignored with 204 No Content. An unknown conversation yields 404,
// a model that is not offered 400, and a second message while a reply is pending 409.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	msg := strings.TrimSpace(r.FormValue("message"))
	if msg == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	conversationID := r.FormValue(conversationIDParam)
	if conversationID == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}

	conv, err := m.store.Conversation(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		m.logger.Error("Failed to get conversation",
			slog.String("conversationID", conversationID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	model := r.FormValue("model")
	if model == "" {
		model = conv.Model
	}
	if len(m.models) > 0 && !slices.Contains(m.models, model) {
		http.Error(w, fmt.Sprintf("model %q is not available", model), http.StatusBadRequest)
		return
	}

	// We create two messages: user's input and a placeholder for AI response
	um := models.Message{
		ID:             uuid.New().String(),
		Role:           models.RoleUser,
		Content:        msg,
		Timestamp:      time.Now(),
		StreamingState: models.StreamingStateEnded,
	}
	am := models.Message{
		ID:             uuid.New().String(),
		Role:           models.RoleAssistant,
		Timestamp:      time.Now(),
		StreamingState: models.StreamingStateLoading,
	}

	history, err := m.appendExchange(r.Context(), conv.ID, &um, &am)
	if err != nil {
		if errors.Is(err, errReplyPending) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		m.logger.Error("Failed to add messages",
			slog.String("conversationID", conv.ID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if model != conv.Model {
		conv.Model = model
		if err := m.store.UpdateConversation(r.Context(), conv); err != nil {
			m.logger.Warn("Failed to remember model",
				slog.String("conversationID", conv.ID),
				slog.String(errLoggerKey, err.Error()))
		}
	}

	rep := m.replies.start(am.ID)
	m.publishTyping(conv.ID, true)

	go m.chat(conv.ID, model, history, am, rep)

	if err := m.templates.ExecuteTemplate(w, "user_message", m.viewMessage(conv.ID, um)); err != nil {
		m.logger.Error("Failed to render user message", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := m.templates.ExecuteTemplate(w, "ai_message", m.viewMessage(conv.ID, am)); err != nil {
		m.logger.Error("Failed to render ai message", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// appendExchange adds the user message and the reply placeholder, storing their final IDs back into
// them, and returns the history to send to the engine. It refuses to do so while an earlier reply of
// the conversation is still pending.
func (m Main) appendExchange(ctx context.Context, conversationID string, um, am *models.Message) ([]models.Message, error) {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	messages, err := m.store.Messages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	if slices.ContainsFunc(messages, models.Message.Pending) {
		return nil, errReplyPending
	}

	um.ID, err = m.store.AddMessage(ctx, conversationID, *um)
	if err != nil {
		return nil, fmt.Errorf("failed to add user message: %w", err)
	}
	am.ID, err = m.store.AddMessage(ctx, conversationID, *am)
	if err != nil {
		return nil, fmt.Errorf("failed to add ai message: %w", err)
	}

	return append(messages, *um), nil
}

// chat produces the reply for aiMsg. It runs detached from the request that started it, so leaving the
// page does not lose the reply. Whatever goes wrong, the message ends up either with the full reply or
// with models.ErrorReplyText.
func (m Main) chat(conversationID, model string, history []models.Message, aiMsg models.Message, rep *reply) {
	defer m.publishTyping(conversationID, false)

	ctx := context.Background()
	if m.engineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.engineTimeout)
		defer cancel()
	}

	start := time.Now()

	var (
		sb      strings.Builder
		chatErr error
	)
	for chunk, err := range m.llm.Chat(ctx, model, history) {
		if err != nil {
			chatErr = err
			break
		}
		if chunk == "" {
			continue
		}
		sb.WriteString(chunk)

		aiMsg.Content = sb.String()
		aiMsg.StreamingState = models.StreamingStateStreaming
		if err := m.store.UpdateMessage(ctx, conversationID, aiMsg); err != nil {
			m.logger.Error("Failed to update message",
				slog.String("messageID", aiMsg.ID),
				slog.String(errLoggerKey, err.Error()))
		}
		rep.update(string(m.renderer.Render(aiMsg.Content)), aiMsg.StreamingState)
	}
	if chatErr == nil && ctx.Err() != nil {
		chatErr = ctx.Err()
	}
	if chatErr == nil && strings.TrimSpace(sb.String()) == "" {
		chatErr = services.ErrEmptyReply
	}

	if chatErr != nil {
		m.logger.Error("Error from llm provider",
			slog.String("conversationID", conversationID),
			slog.String("model", model),
			slog.String(errLoggerKey, chatErr.Error()))
		aiMsg.Content = models.ErrorReplyText
	} else {
		m.logger.Debug("Reply finished",
			slog.String("conversationID", conversationID),
			slog.String("model", model),
			slog.Int("length", sb.Len()),
			slog.Duration("took", time.Since(start)))
	}

	aiMsg.StreamingState = models.StreamingStateEnded
	// The store is written with a fresh context: the engine timeout must not cost us the final state.
	if err := m.store.UpdateMessage(context.Background(), conversationID, aiMsg); err != nil {
		m.logger.Error("Failed to update message",
			slog.String("messageID", aiMsg.ID),
			slog.String(errLoggerKey, err.Error()))
	}
	m.replies.finish(aiMsg.ID, string(m.renderer.Render(aiMsg.Content)))
}
