package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/converseapp/converse/internal/apperr"
	"github.com/converseapp/converse/internal/model"
)

// ReceiptService records per-message, per-user read marks. Marking is
// an upsert: re-marking refreshes read_at and never errors.
type ReceiptService struct {
	receiptStore ReceiptStore
	msgStore     MessageStore
	convStore    ConversationStore
	broadcaster  Broadcaster
	now          func() time.Time
}

func NewReceiptService(
	receiptStore ReceiptStore,
	msgStore MessageStore,
	convStore ConversationStore,
	broadcaster Broadcaster,
) *ReceiptService {
	return &ReceiptService{
		receiptStore: receiptStore,
		msgStore:     msgStore,
		convStore:    convStore,
		broadcaster:  broadcaster,
		now:          time.Now,
	}
}

// MarkRead upserts the (message, user) receipt and announces the read
// to the conversation room.
func (s *ReceiptService) MarkRead(messageID, userID uuid.UUID) (*model.MessageReadEvent, error) {
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

	readAt := s.now()
	if err := s.receiptStore.Upsert(messageID, userID, readAt); err != nil {
		return nil, err
	}

	event := model.MessageReadEvent{
		ConversationID: msg.ConversationID,
		MessageID:      messageID,
		UserID:         userID,
		ReadAt:         readAt,
	}
	s.broadcaster.PublishToConversation(msg.ConversationID, model.WSEventMessageRead, event)
	return &event, nil
}
