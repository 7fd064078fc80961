// Package history stores conversation turns per session and renders the
// recent ones into the context string the engine consumes.
package history

import (
	"context"
	"fmt"
	"strings"
	"sync"

	askerrors "github.com/sweetpotato0/askflow/errors"
	"github.com/sweetpotato0/askflow/message"
)

// DefaultWindow is how many trailing messages Render keeps.
const DefaultWindow = 10

// Store persists conversation turns. Messages returns the last limit turns of
// a session oldest first; limit <= 0 returns all of them.
type Store interface {
	Append(ctx context.Context, sessionID string, msgs ...*message.Message) error
	Messages(ctx context.Context, sessionID string, limit int) ([]*message.Message, error)
	Clear(ctx context.Context, sessionID string) error
}

// Render formats msgs as "--- User: ..." / "--- AI: ..." lines, keeping only
// the last window messages. It returns "" when there is nothing to render.
func Render(msgs []*message.Message, window int) string {
	if window > 0 && len(msgs) > window {
		msgs = msgs[len(msgs)-window:]
	}
	var b strings.Builder
	for _, msg := range msgs {
		text := msg.Text()
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "\n--- %s: %s", speaker(msg.Role), text)
	}
	return strings.TrimSpace(b.String())
}

func speaker(role message.Role) string {
	switch role {
	case message.RoleUser:
		return "User"
	case message.RoleAssistant:
		return "AI"
	case "":
		return "Unknown"
	default:
		r := string(role)
		return strings.ToUpper(r[:1]) + r[1:]
	}
}

// Load fetches and renders the recent turns of a session.
func Load(ctx context.Context, store Store, sessionID string, window int) (string, error) {
	if store == nil || sessionID == "" {
		return "", nil
	}
	msgs, err := store.Messages(ctx, sessionID, window)
	if err != nil {
		return "", err
	}
	return Render(msgs, window), nil
}

// Record stores one question and its reply.
func Record(ctx context.Context, store Store, sessionID, question, reply string) error {
	if store == nil || sessionID == "" {
		return nil
	}
	return store.Append(ctx, sessionID,
		message.User(question),
		message.NewMessage(message.RoleAssistant, reply),
	)
}

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps sessions in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]*message.Message
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string][]*message.Message)}
}

// Append implements Store.
func (s *InMemoryStore) Append(_ context.Context, sessionID string, msgs ...*message.Message) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required: %w", askerrors.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range msgs {
		if msg != nil {
			s.sessions[sessionID] = append(s.sessions[sessionID], message.Clone(msg))
		}
	}
	return nil
}

// Messages implements Store.
func (s *InMemoryStore) Messages(_ context.Context, sessionID string, limit int) ([]*message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.sessions[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return message.CloneMessages(msgs), nil
}

// Clear implements Store.
func (s *InMemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
