package controller

import (
	"context"

	"microblog-client/internal/models"
	"microblog-client/internal/notify"
)

// View is everything a UI needs to draw the current state.
type View struct {
	Session models.Session
	Feed    []models.Post
	// InFlight holds the ids of posts with a pending delete or edit.
	InFlight map[int64]bool
	// FeedVersion increases on every successful feed load.
	FeedVersion uint64
}

// Authenticated reports whether the view is in authenticated mode.
func (v View) Authenticated() bool {
	return v.Session.Authenticated()
}

// Username returns the validated user's name, or "User" while the profile is unknown.
func (v View) Username() string {
	if v.Session.User != nil && v.Session.User.Username != "" {
		return v.Session.User.Username
	}
	return "User"
}

// Renderer draws a View.
type Renderer interface {
	Render(View)
}

// Notifier shows form-scoped errors and transient notices.
type Notifier interface {
	ShowError(scope notify.Scope, message string)
	ClearError(scope notify.Scope)
	ShowMessage(kind notify.Kind, message string)
}

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// UI is the full surface the controller drives.
type UI interface {
	Renderer
	Notifier
	Confirmer
}
