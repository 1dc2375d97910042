package chat

import (
	"errors"
	"sync"

	"github.com/edibez/tokenagent/pkg/types"
)

// MaxMessages bounds a session's in-memory history.
const MaxMessages = 50

// ErrEmptyReply is returned when AddReply is given no content.
var ErrEmptyReply = errors.New("empty reply")

// Session is an in-memory conversation for one HTTP request or one websocket
// connection. It is never persisted.
type Session struct {
	mu       sync.Mutex
	messages []types.Message
	replies  int
}

// NewSession starts a session from an existing history.
func NewSession(history []types.Message) *Session {
	s := &Session{}
	for _, m := range history {
		s.append(m)
	}
	return s
}

// AddUserMessage appends a user turn.
func (s *Session) AddUserMessage(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(types.Message{Role: types.RoleUser, Content: content})
}

// LatestUserMessage returns the most recent user turn.
func (s *Session) LatestUserMessage() (types.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == types.RoleUser {
			return s.messages[i], true
		}
	}
	return types.Message{}, false
}

// Messages returns a copy of the history.
func (s *Session) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// AddReply appends an assistant turn.
func (s *Session) AddReply(content string) error {
	if content == "" {
		return ErrEmptyReply
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(types.Message{Role: types.RoleAssistant, Content: content})
	s.replies++
	return nil
}

// Replies returns how many replies were added.
func (s *Session) Replies() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replies
}

// append must be called with mu held (or before the session is shared).
func (s *Session) append(m types.Message) {
	s.messages = append(s.messages, m)
	if len(s.messages) > MaxMessages {
		s.messages = append(s.messages[:0:0], s.messages[len(s.messages)-MaxMessages:]...)
	}
}
