// Package apperr defines the error taxonomy shared by services and
// handlers. Services wrap these sentinels with context; handlers map
// them to HTTP status codes.
package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrNotParticipant    = errors.New("not a participant of this conversation")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrValidation        = errors.New("invalid input")
	ErrDuplicateReaction = errors.New("reaction already exists")
	ErrAlreadyMember     = errors.New("user is already a member")
	ErrAlreadyAdmin      = errors.New("user is already an admin")
	ErrNotAdmin          = errors.New("user is not an admin")
	ErrCannotRemoveOwner = errors.New("cannot remove the group owner")
)
