package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/OmChillure/localchat/internal/models"
	"github.com/OmChillure/localchat/internal/services"
	"github.com/tmaxmax/go-sse"
)

// SSE event types for real-time updates.
var (
	messagesSSEType     = sse.Type("messages")
	closeMessageSSEType = sse.Type("closeMessage")
	typingSSEType       = sse.Type("typing")
)

// reply is the live state of an assistant message while it streams in. Watchers never queue updates:
// each one waits on changed and then reads whatever the latest content is.
type reply struct {
	mu      sync.Mutex
	content string
	state   models.StreamingState
	changed chan struct{}
}

func (r *reply) update(content string, state models.StreamingState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.content = content
	r.state = state
	close(r.changed)
	r.changed = make(chan struct{})
}

func (r *reply) snapshot() (string, models.StreamingState, <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.content, r.state, r.changed
}

// replies indexes the replies that are still being produced by message ID.
type replies struct {
	mu sync.Mutex
	m  map[string]*reply
}

func newReplies() *replies {
	return &replies{m: make(map[string]*reply)}
}

func (rs *replies) start(messageID string) *reply {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	r := &reply{state: models.StreamingStateLoading, changed: make(chan struct{})}
	rs.m[messageID] = r
	return r
}

func (rs *replies) get(messageID string) (*reply, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	r, ok := rs.m[messageID]
	return r, ok
}

// finish publishes the final state to current watchers and forgets the reply. Later watchers read the
// message from the store instead.
func (rs *replies) finish(messageID string, content string) {
	rs.mu.Lock()
	r, ok := rs.m[messageID]
	delete(rs.m, messageID)
	rs.mu.Unlock()

	if ok {
		r.update(content, models.StreamingStateEnded)
	}
}

// HandleMessageStream streams the rendered content of a single assistant message as "messages" events,
// followed by a "closeMessage" event once the reply has ended. A client that connects late first gets the
// content produced so far; a client that connects after the reply ended gets the final content right
// away.
func (m Main) HandleMessageStream(w http.ResponseWriter, r *http.Request) {
	messageID := r.URL.Query().Get(messageIDParam)
	if messageID == "" {
		http.Error(w, "message_id is required", http.StatusBadRequest)
		return
	}

	rep, live := m.replies.get(messageID)
	if !live {
		conversationID := r.URL.Query().Get(conversationIDParam)
		msg, err := m.store.Message(r.Context(), conversationID, messageID)
		if err != nil {
			if errors.Is(err, services.ErrConversationNotFound) || errors.Is(err, services.ErrMessageNotFound) {
				http.Error(w, "message not found", http.StatusNotFound)
				return
			}
			m.logger.Error("Failed to get message",
				slog.String("messageID", messageID),
				slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		// The reply ended between the two lookups, or long before this request.
		rep = &reply{
			content: string(m.renderer.Render(msg.Content)),
			state:   models.StreamingStateEnded,
			changed: make(chan struct{}),
		}
	}

	sess, err := sse.Upgrade(w, r)
	if err != nil {
		m.logger.Error("Failed to upgrade message stream", slog.String(errLoggerKey, err.Error()))
		http.Error(w, "Server-sent events unsupported", http.StatusInternalServerError)
		return
	}

	sent := ""
	for {
		content, state, changed := rep.snapshot()

		if content != "" && content != sent {
			e := &sse.Message{Type: messagesSSEType}
			e.AppendData(content)
			if err := sess.Send(e); err != nil {
				m.logger.Debug("Message stream client gone", slog.String(errLoggerKey, err.Error()))
				return
			}
			sent = content
		}

		if state == models.StreamingStateEnded {
			e := &sse.Message{Type: closeMessageSSEType}
			e.AppendData("bye")
			if err := sess.Send(e); err != nil {
				m.logger.Debug("Message stream client gone", slog.String(errLoggerKey, err.Error()))
				return
			}
			if err := sess.Flush(); err != nil {
				m.logger.Debug("Message stream client gone", slog.String(errLoggerKey, err.Error()))
			}
			return
		}

		if err := sess.Flush(); err != nil {
			m.logger.Debug("Message stream client gone", slog.String(errLoggerKey, err.Error()))
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-m.closing:
			return
		case <-changed:
		}
	}
}

// HandleConversationEvents subscribes the client to the events of one conversation through the SSE
// server. The conversation is chosen with the conversation_id query parameter.
func (m Main) HandleConversationEvents(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

func (m Main) publishTyping(conversationID string, on bool) {
	e := &sse.Message{Type: typingSSEType}
	if on {
		e.AppendData("on")
	} else {
		e.AppendData("off")
	}
	if err := m.sseSrv.Publish(e, conversationTopic(conversationID)); err != nil {
		m.logger.Error("Failed to publish typing event",
			slog.String("conversationID", conversationID),
			slog.String(errLoggerKey, err.Error()))
	}
}
