package handlers

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/OmChillure/localchat/internal/models"
	"github.com/OmChillure/localchat/internal/services"
	"github.com/google/uuid"
)

type message struct {
	ID             string
	ConversationID string
	Role           string
	Content        template.HTML
	Timestamp      time.Time

	StreamingState string
}

type homePageData struct {
	ConversationID string
	Models         []string
	CurrentModel   string
	Messages       []message
	Typing         bool
}

// HandleHome renders the chat page. Without a conversation_id query parameter it starts a new
// conversation seeded with the greeting; with one it re-renders that conversation, or starts over when
// the conversation has expired.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get(conversationIDParam)

	var (
		conv models.Conversation
		err  error
	)
	if conversationID == "" {
		conv, err = m.newConversation(r.Context())
		if err != nil {
			m.logger.Error("Failed to create conversation", slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	} else {
		conv, err = m.store.Conversation(r.Context(), conversationID)
		if err != nil {
			if errors.Is(err, services.ErrConversationNotFound) {
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
			m.logger.Error("Failed to get conversation",
				slog.String("conversationID", conversationID),
				slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	messages, err := m.store.Messages(r.Context(), conv.ID)
	if err != nil {
		m.logger.Error("Failed to get messages",
			slog.String("conversationID", conv.ID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := homePageData{
		ConversationID: conv.ID,
		Models:         m.models,
		CurrentModel:   conv.Model,
	}
	for _, msg := range models.VisibleMessages(messages) {
		data.Messages = append(data.Messages, m.viewMessage(conv.ID, msg))
		if msg.Pending() {
			data.Typing = true
		}
	}

	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error("Failed to render home page", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (m Main) newConversation(ctx context.Context) (models.Conversation, error) {
	conv := models.Conversation{
		ID: uuid.New().String(),
	}
	if len(m.models) > 0 {
		conv.Model = m.models[0]
	}

	id, err := m.store.AddConversation(ctx, conv)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("failed to add conversation: %w", err)
	}
	conv.ID = id

	greeting := models.Message{
		ID:             uuid.New().String(),
		Role:           models.RoleSystem,
		Content:        m.systemPrompt,
		Timestamp:      time.Now(),
		StreamingState: models.StreamingStateEnded,
	}
	if _, err := m.store.AddMessage(ctx, conv.ID, greeting); err != nil {
		return models.Conversation{}, fmt.Errorf("failed to add greeting: %w", err)
	}

	m.logger.Debug("Conversation started", slog.String("conversationID", conv.ID))

	return conv, nil
}

func (m Main) viewMessage(conversationID string, msg models.Message) message {
	return message{
		ID:             msg.ID,
		ConversationID: conversationID,
		Role:           string(msg.Role),
		Content:        m.renderer.Render(msg.Content),
		Timestamp:      msg.Timestamp,
		StreamingState: string(msg.StreamingState),
	}
}
