package service

import (
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/converseapp/converse/internal/apperr"
	"github.com/converseapp/converse/internal/model"
)

// ChatService covers conversation lookup/creation and the message
// ledger: append, history with projections, delete.
type ChatService struct {
	convStore    ConversationStore
	msgStore     MessageStore
	reactStore   ReactionStore
	receiptStore ReceiptStore
	userStore    UserStore
	broadcaster  Broadcaster
}

func NewChatService(
	convStore ConversationStore,
	msgStore MessageStore,
	reactStore ReactionStore,
	receiptStore ReceiptStore,
	userStore UserStore,
	broadcaster Broadcaster,
) *ChatService {
	return &ChatService{
		convStore:    convStore,
		msgStore:     msgStore,
		reactStore:   reactStore,
		receiptStore: receiptStore,
		userStore:    userStore,
		broadcaster:  broadcaster,
	}
}

// GetOrCreateDirect finds the direct conversation between two users,
// lazily creating it. Concurrent calls from both sides converge on one
// row: the direct_key unique index rejects the losing insert, which is
// then resolved by re-fetching the winner.
func (s *ChatService) GetOrCreateDirect(myID, peerID uuid.UUID) (*model.Conversation, bool, error) {
	if myID == peerID {
		return nil, false, fmt.Errorf("%w: cannot open a direct conversation with yourself", apperr.ErrValidation)
	}
	if _, err := s.userStore.FindByID(peerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("%w: user %s", apperr.ErrNotFound, peerID)
		}
		return nil, false, err
	}

	conv, err := s.convStore.FindDirect(myID, peerID)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	key := model.DirectKeyFor(myID, peerID)
	conv = &model.Conversation{
		DirectKey: &key,
		Participants: []model.Participant{
			{UserID: myID},
			{UserID: peerID},
		},
	}
	if createErr := s.convStore.Create(conv); createErr != nil {
		// Lost the race: the other side created it first.
		if existing, findErr := s.convStore.FindDirect(myID, peerID); findErr == nil {
			return existing, false, nil
		}
		return nil, false, createErr
	}
	return conv, true, nil
}

// GetOrCreateAIThread returns the user's singleton assistant thread.
// The thread reuses the direct-key unique index ("ai:<userID>") so
// concurrent creation converges the same way direct chats do.
func (s *ChatService) GetOrCreateAIThread(userID uuid.UUID) (*model.Conversation, error) {
	conv, err := s.convStore.FindAIThread(userID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	key := "ai:" + userID.String()
	conv = &model.Conversation{
		IsAI:      true,
		DirectKey: &key,
		Participants: []model.Participant{
			{UserID: userID},
		},
	}
	if createErr := s.convStore.Create(conv); createErr != nil {
		if existing, findErr := s.convStore.FindAIThread(userID); findErr == nil {
			return existing, nil
		}
		return nil, createErr
	}
	return conv, nil
}

// SendDirect appends a message to the (possibly just created) direct
// conversation with peerID.
func (s *ChatService) SendDirect(senderID, peerID uuid.UUID, req model.SendMessageRequest) (*model.Message, error) {
	conv, _, err := s.GetOrCreateDirect(senderID, peerID)
	if err != nil {
		return nil, err
	}
	return s.Send(conv.ID, senderID, req)
}

// SendToAIThread appends a message to the sender's assistant thread,
// creating it lazily. Replies are produced by an external collaborator
// writing back through the same ledger.
func (s *ChatService) SendToAIThread(senderID uuid.UUID, req model.SendMessageRequest) (*model.Message, error) {
	conv, err := s.GetOrCreateAIThread(senderID)
	if err != nil {
		return nil, err
	}
	return s.Send(conv.ID, senderID, req)
}

// Send appends a message to a conversation the sender belongs to. The
// message is durably persisted before the receiveMessage event goes
// out; a delivery miss is reconciled by the client re-fetching history.
func (s *ChatService) Send(conversationID, senderID uuid.UUID, req model.SendMessageRequest) (*model.Message, error) {
	conv, err := s.convStore.FindByID(conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: conversation %s", apperr.ErrNotFound, conversationID)
		}
		return nil, err
	}

	isMember, err := s.convStore.IsParticipant(conversationID, senderID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.ErrNotParticipant
	}

	if req.Content == "" && req.FileURL == "" {
		return nil, fmt.Errorf("%w: message needs content or a file", apperr.ErrValidation)
	}

	msgType := model.MessageTypeText
	if req.FileOnly() {
		msgType = model.MessageTypeFile
	}

	msg := &model.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     directReceiver(conv, senderID),
		Content:        req.Content,
		Type:           msgType,
		FileURL:        req.FileURL,
		FileName:       req.FileName,
		FileMimeType:   req.FileMimeType,
		FileSize:       req.FileSize,
		IsAI:           false,
	}
	if err := s.msgStore.Create(msg); err != nil {
		return nil, err
	}
	// The message is already durable; a failed activity bump only skews
	// inbox ordering, so it must not fail the send.
	if err := s.convStore.TouchUpdatedAt(conversationID); err != nil {
		log.Printf("Failed to bump activity for conversation %s: %v", conversationID, err)
	}

	if full, err := s.msgStore.FindByID(msg.ID); err == nil {
		msg = full
	}
	s.broadcaster.PublishToConversation(conversationID, model.WSEventReceiveMessage, msg)
	return msg, nil
}

// directReceiver resolves the other party of a direct conversation.
// Group and assistant messages have no receiver.
func directReceiver(conv *model.Conversation, senderID uuid.UUID) *uuid.UUID {
	if conv.IsGroup || conv.IsAI {
		return nil
	}
	for _, p := range conv.Participants {
		if p.UserID != senderID {
			id := p.UserID
			return &id
		}
	}
	return nil
}

// History returns a conversation's messages ascending by creation time
// with reaction groups and read markers projected in.
func (s *ChatService) History(conversationID, requesterID uuid.UUID, before *uuid.UUID, limit int) ([]model.MessageResponse, error) {
	isMember, err := s.convStore.IsParticipant(conversationID, requesterID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.ErrForbidden
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	messages, err := s.msgStore.GetConversationMessages(conversationID, before, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	reactions, err := s.reactStore.ListForMessages(ids)
	if err != nil {
		return nil, err
	}
	receipts, err := s.receiptStore.ListForMessages(ids)
	if err != nil {
		return nil, err
	}

	reactionsByMsg := make(map[uuid.UUID][]model.Reaction)
	for _, r := range reactions {
		reactionsByMsg[r.MessageID] = append(reactionsByMsg[r.MessageID], r)
	}
	receiptsByMsg := make(map[uuid.UUID][]model.ReadMarker)
	for _, rc := range receipts {
		receiptsByMsg[rc.MessageID] = append(receiptsByMsg[rc.MessageID], model.ReadMarker{
			UserID: rc.UserID,
			ReadAt: rc.ReadAt,
		})
	}

	result := make([]model.MessageResponse, len(messages))
	for i, m := range messages {
		result[i] = model.MessageResponse{
			Message:   m,
			Reactions: GroupReactions(reactionsByMsg[m.ID]),
			ReadBy:    receiptsByMsg[m.ID],
		}
	}
	return result, nil
}

// DeleteMessage removes a message. Only the sender may delete.
func (s *ChatService) DeleteMessage(messageID, requesterID uuid.UUID) error {
	msg, err := s.msgStore.FindByID(messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: message %s", apperr.ErrNotFound, messageID)
		}
		return err
	}
	if msg.SenderID != requesterID {
		return apperr.ErrForbidden
	}
	if err := s.msgStore.Delete(messageID); err != nil {
		return err
	}
	s.broadcaster.PublishToConversation(msg.ConversationID, model.WSEventMessageDeleted, model.MessageDeletedEvent{
		ConversationID: msg.ConversationID,
		MessageID:      messageID,
	})
	return nil
}

// GetConversations returns the user's inbox, most recently updated
// first, annotated with last-message previews and unread counts.
func (s *ChatService) GetConversations(userID uuid.UUID) ([]model.ConversationResponse, error) {
	conversations, err := s.convStore.GetUserConversations(userID)
	if err != nil {
		return nil, err
	}

	result := []model.ConversationResponse{}
	for i := range conversations {
		conv := conversations[i]

		lastMsg, err := s.msgStore.GetLastMessage(conv.ID)
		if err == nil {
			conv.LastMessage = lastMsg
		}
		unreadCount, _ := s.msgStore.CountUnread(conv.ID, userID)

		// Direct chats take the other party's name for display.
		if !conv.IsGroup && !conv.IsAI {
			for _, p := range conv.Participants {
				if p.UserID != userID {
					conv.Name = p.User.Name
					break
				}
			}
		}

		result = append(result, model.ConversationResponse{
			Conversation: conv,
			UnreadCount:  int(unreadCount),
		})
	}
	return result, nil
}

// GetConversation returns a single conversation the user belongs to.
func (s *ChatService) GetConversation(conversationID, userID uuid.UUID) (*model.Conversation, error) {
	isMember, err := s.convStore.IsParticipant(conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.ErrForbidden
	}
	conv, err := s.convStore.FindByID(conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return conv, nil
}

// GetParticipantIDs exposes a conversation's member ids (used by the
// websocket layer to join rooms at connect).
func (s *ChatService) GetParticipantIDs(conversationID uuid.UUID) ([]uuid.UUID, error) {
	return s.convStore.GetParticipantIDs(conversationID)
}

// IsParticipant reports whether the user belongs to the conversation.
func (s *ChatService) IsParticipant(conversationID, userID uuid.UUID) (bool, error) {
	return s.convStore.IsParticipant(conversationID, userID)
}
