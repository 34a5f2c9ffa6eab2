package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Content request statuses. Pending and investigating are non-terminal; the
// other three are terminal and trigger a user notification on entry.
const (
	RequestStatusPending       = "pending"
	RequestStatusInvestigating = "investigating"
	RequestStatusFulfilled     = "fulfilled"
	RequestStatusRejected      = "rejected"
	RequestStatusUnavailable   = "unavailable"
)

// TerminalRequestStatus reports whether s ends the request lifecycle.
func TerminalRequestStatus(s string) bool {
	switch s {
	case RequestStatusFulfilled, RequestStatusRejected, RequestStatusUnavailable:
		return true
	}
	return false
}

// RequestTransitionSources lists the statuses a request may currently hold
// for a move into newStatus to be legal. The lifecycle only runs forward
// (pending -> investigating -> terminal): terminal states have no exits and
// nothing moves back to pending.
func RequestTransitionSources(newStatus string) []string {
	switch {
	case newStatus == RequestStatusInvestigating:
		return []string{RequestStatusPending}
	case TerminalRequestStatus(newStatus):
		return []string{RequestStatusPending, RequestStatusInvestigating}
	}
	return nil
}

// KnownRequestStatus reports whether s is one of the lifecycle states.
func KnownRequestStatus(s string) bool {
	switch s {
	case RequestStatusPending, RequestStatusInvestigating,
		RequestStatusFulfilled, RequestStatusRejected, RequestStatusUnavailable:
		return true
	}
	return false
}

// AnimeRequest is a user-submitted content request.
type AnimeRequest struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	UserID            int64              `bson:"user_id"`
	AnimeTitle        string             `bson:"anime_title_requested"`
	LanguageRequested string             `bson:"language_requested"`
	Status            string             `bson:"status"`
	RequestedAt       time.Time          `bson:"requested_at"`
	ResolvedAt        *time.Time         `bson:"resolved_at"`
	ResolvedByAdminID int64              `bson:"resolved_by_admin_id"`
	AdminNotes        string             `bson:"admin_notes"`
}
