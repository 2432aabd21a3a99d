package model

import "github.com/google/uuid"

// GroupState is a snapshot of everything membership decisions are made
// against: the conversation row, its settings, and the participant and
// admin sets.
type GroupState struct {
	Conversation Conversation
	Settings     GroupSettings
	Participants []Participant
	Admins       []GroupAdmin
}

// IsParticipant reports whether the user is in the participant set.
func (s *GroupState) IsParticipant(userID uuid.UUID) bool {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user holds an admin row.
func (s *GroupState) IsAdmin(userID uuid.UUID) bool {
	for _, a := range s.Admins {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

// IsOwner reports whether the user owns the group.
func (s *GroupState) IsOwner(userID uuid.UUID) bool {
	return s.Conversation.OwnerID != nil && *s.Conversation.OwnerID == userID
}
