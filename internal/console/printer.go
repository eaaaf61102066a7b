// Package console renders the controller state as text and provides an
// interactive shell on top of it.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"microblog-client/internal/controller"
	"microblog-client/internal/models"
	"microblog-client/internal/notify"
)

const timeLayout = "2006-01-02 15:04"

// ConfirmFunc answers a yes/no prompt.
type ConfirmFunc func(prompt string) bool

// Printer is a controller.UI that writes to an io.Writer. The first render
// only records the starting state; later renders print mode changes, new
// in-flight posts and every freshly loaded feed.
type Printer struct {
	mu      sync.Mutex
	out     io.Writer
	confirm ConfirmFunc

	started  bool
	authed   bool
	version  uint64
	inFlight map[int64]bool
}

// NewPrinter creates a Printer. A nil confirm declines every prompt.
func NewPrinter(out io.Writer, confirm ConfirmFunc) *Printer {
	return &Printer{out: out, confirm: confirm, inFlight: make(map[int64]bool)}
}

// SetConfirm replaces the confirmation function.
func (p *Printer) SetConfirm(confirm ConfirmFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirm = confirm
}

// Render prints what changed since the previous view. The first view is only
// recorded, so a command prints nothing about the state it started from.
func (p *Printer) Render(v controller.View) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		p.started = true
		p.authed = v.Authenticated()
		p.version = v.FeedVersion
		p.inFlight = v.InFlight
		return
	}

	if v.Authenticated() != p.authed {
		p.authed = v.Authenticated()
		if p.authed {
			fmt.Fprintf(p.out, "Logged in as %s\n", v.Username())
		} else {
			fmt.Fprintln(p.out, "Logged out")
		}
	}

	for id := range v.InFlight {
		if !p.inFlight[id] {
			fmt.Fprintf(p.out, "Post %d: working...\n", id)
		}
	}
	p.inFlight = v.InFlight

	if v.FeedVersion != p.version {
		p.version = v.FeedVersion
		WriteFeed(p.out, v.Feed)
	}
}

// ShowError prints message prefixed with its scope.
func (p *Printer) ShowError(scope notify.Scope, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s error: %s\n", scope, message)
}

// ClearError is a no-op: printed errors cannot be taken back.
func (p *Printer) ClearError(notify.Scope) {}

// ShowMessage prints a transient notice.
func (p *Printer) ShowMessage(kind notify.Kind, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "[%s] %s\n", kind, message)
}

// Confirm asks the configured ConfirmFunc, declining when there is none.
func (p *Printer) Confirm(_ context.Context, prompt string) bool {
	p.mu.Lock()
	confirm := p.confirm
	p.mu.Unlock()
	if confirm == nil {
		return false
	}
	return confirm(prompt)
}

// WriteFeed prints posts newest first, one block per post.
func WriteFeed(w io.Writer, posts []models.Post) {
	if len(posts) == 0 {
		fmt.Fprintln(w, "No posts yet.")
		return
	}
	for _, post := range posts {
		fmt.Fprintln(w, formatPost(post))
	}
}

func formatPost(post models.Post) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", post.ID, post.OwnerUsername)
	if !post.Timestamp.IsZero() {
		fmt.Fprintf(&b, " at %s", post.Timestamp.Local().Format(timeLayout))
	}
	fmt.Fprintf(&b, " | likes %d | retweets %d", post.LikesCount, post.RetweetsCount)
	if post.IsOwner {
		b.WriteString(" | yours")
	}
	b.WriteString("\n    ")
	b.WriteString(strings.ReplaceAll(post.Content, "\n", "\n    "))
	return b.String()
}
