package agent

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conversation window size. Older turns are evicted FIFO.
const memoryCapacity = 10

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolInvocation records one tool call made during a turn. Immutable
// once the turn is appended.
type ToolInvocation struct {
	Tool        string         `json:"tool"`
	Args        map[string]any `json:"args,omitempty"`
	Observation string         `json:"observation"`
	Failed      bool           `json:"failed,omitempty"`
}

// Turn is one conversation entry.
type Turn struct {
	Role        Role             `json:"role"`
	Content     string           `json:"content"`
	Invocations []ToolInvocation `json:"invocations,omitempty"`
	At          time.Time        `json:"at"`
}

// ConversationState is a fixed-capacity ring buffer of turns. One
// session processes one user turn at a time; the agent holds the lock
// for the duration of a turn.
type ConversationState struct {
	id string

	mu    sync.Mutex
	buf   [memoryCapacity]Turn
	start int
	count int
}

// NewConversation creates an empty session with a fresh id.
func NewConversation() *ConversationState {
	return &ConversationState{id: uuid.New().String()}
}

// ID returns the session identifier.
func (c *ConversationState) ID() string {
	return c.id
}

// append adds a turn, evicting the oldest when the buffer is full.
// Caller must hold the lock.
func (c *ConversationState) append(t Turn) {
	if c.count < memoryCapacity {
		c.buf[(c.start+c.count)%memoryCapacity] = t
		c.count++
		return
	}
	c.buf[c.start] = t
	c.start = (c.start + 1) % memoryCapacity
}

// snapshot returns the turns oldest-first. Caller must hold the lock.
func (c *ConversationState) snapshot() []Turn {
	out := make([]Turn, c.count)
	for i := 0; i < c.count; i++ {
		out[i] = c.buf[(c.start+i)%memoryCapacity]
	}
	return out
}

// Turns returns a copy of the retained window, oldest first.
func (c *ConversationState) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Len returns the number of retained turns.
func (c *ConversationState) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
