package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/OmChillure/localchat/internal/models"
)

// MemoryStore implements the conversation store in memory. Conversations live for as long as the page
// session that created them keeps using them; once a conversation has been idle for longer than the
// store's TTL it is dropped. Nothing is ever written to disk.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*memoryConversation

	ttl  time.Duration
	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

type memoryConversation struct {
	conversation models.Conversation
	messages     []models.Message
	seq          uint64
}

// NewMemoryStore creates an empty store. When ttl is positive a janitor goroutine evicts idle
// conversations every ttl/4; call Close to stop it.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		conversations: make(map[string]*memoryConversation),
		ttl:           ttl,
		now:           time.Now,
		stop:          make(chan struct{}),
	}
	if ttl > 0 {
		go s.janitor(ttl / 4)
	}
	return s
}

// Close stops the janitor. The store stays usable.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryStore) janitor(every time.Duration) {
	if every <= 0 {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			s.Evict()
		}
	}
}

// Evict drops every conversation that has been idle for longer than the TTL and returns how many were
// dropped.
func (s *MemoryStore) Evict() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, c := range s.conversations {
		if c.conversation.UpdatedAt.Before(cutoff) {
			delete(s.conversations, id)
			n++
		}
	}
	return n
}

// AddConversation stores a new conversation and returns its ID. A conversation without an ID is
// rejected.
func (s *MemoryStore) AddConversation(_ context.Context, conv models.Conversation) (string, error) {
	if conv.ID == "" {
		return "", fmt.Errorf("conversation id is required")
	}
	now := s.now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conv.ID]; ok {
		return "", fmt.Errorf("conversation %s already exists", conv.ID)
	}
	s.conversations[conv.ID] = &memoryConversation{conversation: conv}
	return conv.ID, nil
}

// Conversation returns the conversation with the given ID and marks it as used.
func (s *MemoryStore) Conversation(_ context.Context, id string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return models.Conversation{}, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	c.conversation.UpdatedAt = s.now()
	return c.conversation, nil
}

// UpdateConversation replaces the stored conversation fields, keeping its creation time.
func (s *MemoryStore) UpdateConversation(_ context.Context, conv models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conv.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, conv.ID)
	}
	conv.CreatedAt = c.conversation.CreatedAt
	conv.UpdatedAt = s.now()
	c.conversation = conv
	return nil
}

// Messages returns a copy of the conversation's messages in the order they were added.
func (s *MemoryStore) Messages(_ context.Context, conversationID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	return slices.Clone(c.messages), nil
}

// Message returns a single message of the conversation.
func (s *MemoryStore) Message(_ context.Context, conversationID, messageID string) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return models.Message{}, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	idx := slices.IndexFunc(c.messages, func(m models.Message) bool { return m.ID == messageID })
	if idx == -1 {
		return models.Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	return c.messages[idx], nil
}

// AddMessage appends a message to the conversation. It generates a unique ID for the message by
// combining a per-conversation sequence number with the message's original ID, and returns the new ID.
func (s *MemoryStore) AddMessage(_ context.Context, conversationID string, message models.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	c.seq++
	message.ID = fmt.Sprintf("%d-%s", c.seq, message.ID)
	c.messages = append(c.messages, message)
	c.conversation.UpdatedAt = s.now()
	return message.ID, nil
}

// UpdateMessage replaces an existing message in place. Messages are never reordered or removed.
func (s *MemoryStore) UpdateMessage(_ context.Context, conversationID string, message models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	idx := slices.IndexFunc(c.messages, func(m models.Message) bool { return m.ID == message.ID })
	if idx == -1 {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, message.ID)
	}
	c.messages[idx] = message
	c.conversation.UpdatedAt = s.now()
	return nil
}
