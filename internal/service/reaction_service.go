package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/converseapp/converse/internal/apperr"
	"github.com/converseapp/converse/internal/model"
)

// ReactionService maintains per-message, per-user, per-emoji reaction
// state. A user may stack different emojis on one message but never the
// same emoji twice.
type ReactionService struct {
	reactStore  ReactionStore
	msgStore    MessageStore
	convStore   ConversationStore
	broadcaster Broadcaster
}

func NewReactionService(
	reactStore ReactionStore,
	msgStore MessageStore,
	convStore ConversationStore,
	broadcaster Broadcaster,
) *ReactionService {
	return &ReactionService{
		reactStore:  reactStore,
		msgStore:    msgStore,
		convStore:   convStore,
		broadcaster: broadcaster,
	}
}

// Add records a reaction. Duplicate triples are rejected; a race on the
// same triple is settled by the unique index, and the losing writer
// gets ErrDuplicateReaction rather than a crash.
func (s *ReactionService) Add(messageID, userID uuid.UUID, emoji string) (*model.Reaction, error) {
	msg, err := s.requireMessageAccess(messageID, userID)
	if err != nil {
		return nil, err
	}

	exists, err := s.reactStore.Exists(messageID, userID, emoji)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.ErrDuplicateReaction
	}

	reaction := &model.Reaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
	}
	if err := s.reactStore.Create(reaction); err != nil {
		if nowExists, checkErr := s.reactStore.Exists(messageID, userID, emoji); checkErr == nil && nowExists {
			return nil, apperr.ErrDuplicateReaction
		}
		return nil, err
	}

	s.broadcaster.PublishToConversation(msg.ConversationID, model.WSEventReactionAdded, model.ReactionEvent{
		ConversationID: msg.ConversationID,
		MessageID:      messageID,
		UserID:         userID,
		Emoji:          emoji,
	})
	return reaction, nil
}

// Remove deletes the exact triple. Removing a reaction that does not
// exist is ErrNotFound.
func (s *ReactionService) Remove(messageID, userID uuid.UUID, emoji string) error {
	msg, err := s.requireMessageAccess(messageID, userID)
	if err != nil {
		return err
	}

	affected, err := s.reactStore.Delete(messageID, userID, emoji)
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: no such reaction", apperr.ErrNotFound)
	}

	s.broadcaster.PublishToConversation(msg.ConversationID, model.WSEventReactionRemoved, model.ReactionEvent{
		ConversationID: msg.ConversationID,
		MessageID:      messageID,
		UserID:         userID,
		Emoji:          emoji,
	})
	return nil
}

// ProjectCounts returns the grouped emoji → users projection for one
// message, as served by the list endpoint and pushed in live updates.
func (s *ReactionService) ProjectCounts(messageID, requesterID uuid.UUID) ([]model.ReactionGroup, error) {
	if _, err := s.requireMessageAccess(messageID, requesterID); err != nil {
		return nil, err
	}
	reactions, err := s.reactStore.ListForMessage(messageID)
	if err != nil {
		return nil, err
	}
	return GroupReactions(reactions), nil
}

// requireMessageAccess loads the message and checks the caller belongs
// to its conversation.
func (s *ReactionService) requireMessageAccess(messageID, userID uuid.UUID) (*model.Message, error) {
	msg, err := s.msgStore.FindByID(messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: message %s", apperr.ErrNotFound, messageID)
		}
		return nil, err
	}
	isMember, err := s.convStore.IsParticipant(msg.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.ErrForbidden
	}
	return msg, nil
}

// GroupReactions folds raw reaction rows into per-emoji groups,
// preserving first-seen emoji order.
func GroupReactions(reactions []model.Reaction) []model.ReactionGroup {
	groups := []model.ReactionGroup{}
	index := make(map[string]int)
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(groups)
			index[r.Emoji] = i
			groups = append(groups, model.ReactionGroup{Emoji: r.Emoji})
		}
		groups[i].Count++
		groups[i].Users = append(groups[i].Users, r.UserID)
	}
	return groups
}
