// Package notify keeps the notices a UI shows next to forms and at the top of
// the feed.
package notify

import (
	"sync"
	"time"
)

// NoticeTTL is how long a transient notice stays visible.
const NoticeTTL = 3 * time.Second

// Scope names a form that owns an error message.
type Scope string

const (
	ScopeLogin    Scope = "login"
	ScopeRegister Scope = "register"
)

// Kind classifies a transient notice.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notice is a transient message.
type Notice struct {
	Kind      Kind
	Text      string
	ExpiresAt time.Time
}

// Board holds scoped form errors and self-dismissing notices.
// It is safe for concurrent use.
type Board struct {
	mu      sync.Mutex
	errors  map[Scope]string
	notices []Notice

	// Now is the board clock.
	Now func() time.Time
}

// NewBoard creates an empty Board.
func NewBoard() *Board {
	return &Board{errors: make(map[Scope]string), Now: time.Now}
}

// ShowError attaches message to scope until ClearError is called for it.
func (b *Board) ShowError(scope Scope, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors[scope] = message
}

// ClearError removes the error attached to scope.
func (b *Board) ClearError(scope Scope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.errors, scope)
}

// Error returns the message attached to scope, or "".
func (b *Board) Error(scope Scope) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errors[scope]
}

// ShowMessage adds a transient notice. Newest notices come first.
func (b *Board) ShowMessage(kind Kind, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := Notice{Kind: kind, Text: message, ExpiresAt: b.Now().Add(NoticeTTL)}
	b.notices = append([]Notice{n}, b.pruneLocked()...)
}

// Notices returns the notices that have not expired yet.
func (b *Board) Notices() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = b.pruneLocked()
	out := make([]Notice, len(b.notices))
	copy(out, b.notices)
	return out
}

func (b *Board) pruneLocked() []Notice {
	now := b.Now()
	kept := b.notices[:0]
	for _, n := range b.notices {
		if now.Before(n.ExpiresAt) {
			kept = append(kept, n)
		}
	}
	return kept
}
