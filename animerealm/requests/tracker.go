// Package requests manages the content-request lifecycle: submission, admin
// status transitions, and the terminal-status notification to the requester.
package requests

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/animerealm/animerealm/animerealm/database/models"
	"github.com/animerealm/animerealm/animerealm/database/repositories"
)

// Notifier tells the requester about a terminal outcome. Best effort.
type Notifier interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Transition outcomes surfaced to the admin console.
type TransitionStatus int

const (
	TransitionOK TransitionStatus = iota
	TransitionNotFound
	TransitionAlreadyInStatus
	TransitionRefused
	TransitionUnknownStatus
)

type Tracker struct {
	requests repositories.RequestRepository
	notifier Notifier
}

func NewTracker(requests repositories.RequestRepository, notifier Notifier) *Tracker {
	return &Tracker{requests: requests, notifier: notifier}
}

// Submit records a new pending request.
func (t *Tracker) Submit(ctx context.Context, userID int64, title, language string) (primitive.ObjectID, error) {
	id, err := t.requests.Create(ctx, &models.AnimeRequest{
		UserID:            userID,
		AnimeTitle:        title,
		LanguageRequested: language,
		Status:            models.RequestStatusPending,
		RequestedAt:       time.Now().UTC(),
	})
	if err != nil {
		return primitive.NilObjectID, err
	}
	slog.Info("Content request submitted",
		slog.String("type", "sys"),
		slog.Int64("user_id", userID),
		slog.String("title", title))
	return id, nil
}

// Transition moves a request to newStatus on behalf of adminID. Entering a
// terminal status notifies the requester; intermediate moves stay silent.
func (t *Tracker) Transition(ctx context.Context, id primitive.ObjectID, newStatus string, adminID int64, note string) (TransitionStatus, error) {
	if !models.KnownRequestStatus(newStatus) {
		return TransitionUnknownStatus, nil
	}

	req, err := t.requests.Transition(ctx, id, newStatus, adminID, note)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return TransitionNotFound, nil
	case errors.Is(err, repositories.ErrAlreadyInStatus):
		return TransitionAlreadyInStatus, nil
	case errors.Is(err, repositories.ErrInvalidTransition):
		return TransitionRefused, nil
	case err != nil:
		return TransitionOK, err
	}

	if models.TerminalRequestStatus(newStatus) {
		t.notify(ctx, req)
	}
	return TransitionOK, nil
}

func (t *Tracker) notify(ctx context.Context, req *models.AnimeRequest) {
	var text string
	switch req.Status {
	case models.RequestStatusFulfilled:
		text = fmt.Sprintf("Good news! Your request for %q has been fulfilled and is now available.", req.AnimeTitle)
	case models.RequestStatusRejected:
		text = fmt.Sprintf("Your request for %q was rejected.", req.AnimeTitle)
	case models.RequestStatusUnavailable:
		text = fmt.Sprintf("Sorry, %q could not be sourced and is marked unavailable.", req.AnimeTitle)
	default:
		return
	}
	if req.AdminNotes != "" {
		text += "\n\nNote from the team: " + req.AdminNotes
	}

	if err := t.notifier.SendText(ctx, req.UserID, text); err != nil {
		slog.Warn("Request outcome notification failed",
			slog.String("type", "sys"),
			slog.Int64("user_id", req.UserID),
			slog.Any("error", err))
	}
}
