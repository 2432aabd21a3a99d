package service

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/converseapp/converse/internal/apperr"
	"github.com/converseapp/converse/internal/model"
)

// memStore is an in-memory stand-in for the GORM repositories. One
// instance backs every store interface so tests exercise real
// cross-entity state (a deleted message really loses its reactions).
type memStore struct {
	mu sync.Mutex

	conversations map[uuid.UUID]*model.Conversation
	directKeys    map[string]uuid.UUID
	settings      map[uuid.UUID]*model.GroupSettings
	admins        map[uuid.UUID][]model.GroupAdmin
	messages      []*model.Message
	reactions     []model.Reaction
	receipts      map[receiptKey]*model.ReadReceipt
	users         map[uuid.UUID]*model.User

	clock time.Time
}

type receiptKey struct{ msg, user uuid.UUID }

func newMemStore() *memStore {
	return &memStore{
		conversations: make(map[uuid.UUID]*model.Conversation),
		directKeys:    make(map[string]uuid.UUID),
		settings:      make(map[uuid.UUID]*model.GroupSettings),
		admins:        make(map[uuid.UUID][]model.GroupAdmin),
		receipts:      make(map[receiptKey]*model.ReadReceipt),
		users:         make(map[uuid.UUID]*model.User),
		clock:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// tick advances the fake clock so every row gets a distinct timestamp.
func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) addUser(name string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.users[id] = &model.User{ID: id, Name: name, Email: name + "@test.local"}
	return id
}

// ---- ConversationStore ----

func (s *memStore) Create(conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(conv)
}

func (s *memStore) createLocked(conv *model.Conversation) error {
	if conv.DirectKey != nil {
		if _, taken := s.directKeys[*conv.DirectKey]; taken {
			return errors.New("duplicate key value violates unique constraint")
		}
	}
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	now := s.tick()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	for i := range conv.Participants {
		conv.Participants[i].ID = uuid.New()
		conv.Participants[i].ConversationID = conv.ID
		conv.Participants[i].JoinedAt = s.tick()
		if u, ok := s.users[conv.Participants[i].UserID]; ok {
			conv.Participants[i].User = *u
		}
	}
	stored := *conv
	stored.Participants = append([]model.Participant(nil), conv.Participants...)
	s.conversations[conv.ID] = &stored
	if conv.DirectKey != nil {
		s.directKeys[*conv.DirectKey] = conv.ID
	}
	return nil
}

func (s *memStore) FindByID(id uuid.UUID) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findConvLocked(id)
}

func (s *memStore) findConvLocked(id uuid.UUID) (*model.Conversation, error) {
	conv, ok := s.conversations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *conv
	out.Participants = append([]model.Participant(nil), conv.Participants...)
	out.Settings = s.settings[id]
	return &out, nil
}

func (s *memStore) FindDirect(userA, userB uuid.UUID) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.directKeys[model.DirectKeyFor(userA, userB)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s.findConvLocked(id)
}

func (s *memStore) FindAIThread(userID uuid.UUID) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.directKeys["ai:"+userID.String()]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s.findConvLocked(id)
}

func (s *memStore) GetUserConversations(userID uuid.UUID) ([]model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := []model.Conversation{}
	for id, conv := range s.conversations {
		for _, p := range conv.Participants {
			if p.UserID == userID {
				out, _ := s.findConvLocked(id)
				result = append(result, *out)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (s *memStore) IsParticipant(conversationID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return false, nil
	}
	for _, p := range conv.Participants {
		if p.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) GetParticipantIDs(conversationID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(conv.Participants))
	for i, p := range conv.Participants {
		ids[i] = p.UserID
	}
	return ids, nil
}

func (s *memStore) TouchUpdatedAt(conversationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[conversationID]; ok {
		conv.UpdatedAt = s.tick()
	}
	return nil
}

func (s *memStore) Delete(conversationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			s.deleteMessageRowsLocked(m.ID)
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	delete(s.settings, conversationID)
	delete(s.admins, conversationID)
	if conv.DirectKey != nil {
		delete(s.directKeys, *conv.DirectKey)
	}
	delete(s.conversations, conversationID)
	return nil
}

func (s *memStore) CreateGroup(conv *model.Conversation, settings *model.GroupSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createLocked(conv); err != nil {
		return err
	}
	settings.ID = uuid.New()
	settings.ConversationID = conv.ID
	s.settings[conv.ID] = settings
	s.admins[conv.ID] = []model.GroupAdmin{{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		UserID:         *conv.OwnerID,
		CreatedAt:      s.tick(),
	}}
	return nil
}

// ---- MessageStore ----

func (s *memStore) CreateMessage(msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendMessageLocked(msg)
	return nil
}

func (s *memStore) appendMessageLocked(msg *model.Message) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	msg.CreatedAt = s.tick()
	if u, ok := s.users[msg.SenderID]; ok {
		msg.Sender = *u
	}
	stored := *msg
	s.messages = append(s.messages, &stored)
}

func (s *memStore) FindMessageByID(id uuid.UUID) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			out := *m
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memStore) GetConversationMessages(conversationID uuid.UUID, before *uuid.UUID, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cutoff *time.Time
	if before != nil {
		found := false
		for _, m := range s.messages {
			if m.ID == *before {
				t := m.CreatedAt
				cutoff = &t
				found = true
				break
			}
		}
		if !found {
			return nil, gorm.ErrRecordNotFound
		}
	}
	result := []model.Message{}
	for _, m := range s.messages { // appended in clock order
		if m.ConversationID != conversationID {
			continue
		}
		if cutoff != nil && !m.CreatedAt.Before(*cutoff) {
			continue
		}
		result = append(result, *m)
	}
	// The newest page wins when the window overflows, still ascending.
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

func (s *memStore) GetLastMessage(conversationID uuid.UUID) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ConversationID == conversationID {
			out := *s.messages[i]
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memStore) CountUnread(conversationID, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, m := range s.messages {
		if m.ConversationID != conversationID || m.SenderID == userID {
			continue
		}
		if _, read := s.receipts[receiptKey{m.ID, userID}]; !read {
			count++
		}
	}
	return count, nil
}

func (s *memStore) DeleteMessage(messageID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.ID == messageID {
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	s.deleteMessageRowsLocked(messageID)
	return nil
}

func (s *memStore) deleteMessageRowsLocked(messageID uuid.UUID) {
	keptReactions := s.reactions[:0]
	for _, r := range s.reactions {
		if r.MessageID != messageID {
			keptReactions = append(keptReactions, r)
		}
	}
	s.reactions = keptReactions
	for key := range s.receipts {
		if key.msg == messageID {
			delete(s.receipts, key)
		}
	}
}

// ---- ReactionStore ----

func (s *memStore) CreateReaction(reaction *model.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reactions {
		if r.MessageID == reaction.MessageID && r.UserID == reaction.UserID && r.Emoji == reaction.Emoji {
			return errors.New("duplicate key value violates unique constraint")
		}
	}
	reaction.ID = uuid.New()
	reaction.CreatedAt = s.tick()
	s.reactions = append(s.reactions, *reaction)
	return nil
}

func (s *memStore) ReactionExists(messageID, userID uuid.UUID, emoji string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reactions {
		if r.MessageID == messageID && r.UserID == userID && r.Emoji == emoji {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) DeleteReaction(messageID, userID uuid.UUID, emoji string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected int64
	kept := s.reactions[:0]
	for _, r := range s.reactions {
		if r.MessageID == messageID && r.UserID == userID && r.Emoji == emoji {
			affected++
			continue
		}
		kept = append(kept, r)
	}
	s.reactions = kept
	return affected, nil
}

func (s *memStore) ListForMessage(messageID uuid.UUID) ([]model.Reaction, error) {
	return s.ListForMessagesReactions([]uuid.UUID{messageID})
}

func (s *memStore) ListForMessagesReactions(messageIDs []uuid.UUID) ([]model.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[uuid.UUID]bool, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = true
	}
	result := []model.Reaction{}
	for _, r := range s.reactions {
		if wanted[r.MessageID] {
			result = append(result, r)
		}
	}
	return result, nil
}

// ---- ReceiptStore ----

func (s *memStore) Upsert(messageID, userID uuid.UUID, readAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := receiptKey{messageID, userID}
	if existing, ok := s.receipts[key]; ok {
		existing.ReadAt = readAt
		return nil
	}
	s.receipts[key] = &model.ReadReceipt{
		ID:        uuid.New(),
		MessageID: messageID,
		UserID:    userID,
		ReadAt:    readAt,
	}
	return nil
}

func (s *memStore) ListForMessagesReceipts(messageIDs []uuid.UUID) ([]model.ReadReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[uuid.UUID]bool, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = true
	}
	result := []model.ReadReceipt{}
	for _, rc := range s.receipts {
		if wanted[rc.MessageID] {
			result = append(result, *rc)
		}
	}
	return result, nil
}

// ---- UserStore ----

func (s *memStore) FindUserByID(id uuid.UUID) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *u
	return &out, nil
}

func (s *memStore) CountByIDs(ids []uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, id := range ids {
		if _, ok := s.users[id]; ok {
			count++
		}
	}
	return count, nil
}

// ---- GroupStore ----

func (s *memStore) LoadState(conversationID uuid.UUID) (*model.GroupState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	state := &model.GroupState{Conversation: *conv}
	if settings, ok := s.settings[conversationID]; ok {
		state.Settings = *settings
	}
	state.Participants = append([]model.Participant(nil), conv.Participants...)
	sort.Slice(state.Participants, func(i, j int) bool {
		return state.Participants[i].JoinedAt.Before(state.Participants[j].JoinedAt)
	})
	state.Admins = append([]model.GroupAdmin(nil), s.admins[conversationID]...)
	sort.Slice(state.Admins, func(i, j int) bool {
		return state.Admins[i].CreatedAt.Before(state.Admins[j].CreatedAt)
	})
	return state, nil
}

func (s *memStore) AddMember(conversationID, userID uuid.UUID, sysMsg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for _, p := range conv.Participants {
		if p.UserID == userID {
			return apperr.ErrAlreadyMember
		}
	}
	participant := model.Participant{
		ID:             uuid.New(),
		ConversationID: conversationID,
		UserID:         userID,
		JoinedAt:       s.tick(),
	}
	if u, ok := s.users[userID]; ok {
		participant.User = *u
	}
	conv.Participants = append(conv.Participants, participant)
	s.appendMessageLocked(sysMsg)
	conv.UpdatedAt = s.tick()
	return nil
}

func (s *memStore) RemoveMember(conversationID, targetID uuid.UUID, newOwnerID *uuid.UUID, sysMsg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if conv.OwnerID != nil && *conv.OwnerID == targetID && newOwnerID == nil {
		return apperr.ErrCannotRemoveOwner
	}
	removed := false
	kept := conv.Participants[:0]
	for _, p := range conv.Participants {
		if p.UserID == targetID {
			removed = true
			continue
		}
		kept = append(kept, p)
	}
	conv.Participants = kept
	if !removed {
		return apperr.ErrNotFound
	}
	keptAdmins := s.admins[conversationID][:0]
	for _, a := range s.admins[conversationID] {
		if a.UserID != targetID {
			keptAdmins = append(keptAdmins, a)
		}
	}
	s.admins[conversationID] = keptAdmins

	if newOwnerID != nil {
		conv.OwnerID = newOwnerID
		alreadyAdmin := false
		for _, a := range s.admins[conversationID] {
			if a.UserID == *newOwnerID {
				alreadyAdmin = true
				break
			}
		}
		if !alreadyAdmin {
			s.admins[conversationID] = append(s.admins[conversationID], model.GroupAdmin{
				ID:             uuid.New(),
				ConversationID: conversationID,
				UserID:         *newOwnerID,
				CreatedAt:      s.tick(),
			})
		}
	}
	s.appendMessageLocked(sysMsg)
	conv.UpdatedAt = s.tick()
	return nil
}

func (s *memStore) Promote(conversationID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	member := false
	for _, p := range conv.Participants {
		if p.UserID == userID {
			member = true
			break
		}
	}
	if !member {
		return apperr.ErrNotParticipant
	}
	for _, a := range s.admins[conversationID] {
		if a.UserID == userID {
			return apperr.ErrAlreadyAdmin
		}
	}
	s.admins[conversationID] = append(s.admins[conversationID], model.GroupAdmin{
		ID:             uuid.New(),
		ConversationID: conversationID,
		UserID:         userID,
		CreatedAt:      s.tick(),
	})
	return nil
}

func (s *memStore) Demote(conversationID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.admins[conversationID][:0]
	var affected int
	for _, a := range s.admins[conversationID] {
		if a.UserID == userID {
			affected++
			continue
		}
		kept = append(kept, a)
	}
	s.admins[conversationID] = kept
	if affected == 0 {
		return apperr.ErrNotAdmin
	}
	return nil
}

// ---- interface adapters ----
//
// Method sets on memStore are named to avoid collisions (Create is both
// a conversation and a message operation), so thin views rebind them to
// the store interfaces.

type convView struct{ *memStore }
type msgView struct{ *memStore }
type reactView struct{ *memStore }
type receiptView struct{ *memStore }
type userView struct{ *memStore }

func (v msgView) Create(msg *model.Message) error               { return v.CreateMessage(msg) }
func (v msgView) FindByID(id uuid.UUID) (*model.Message, error) { return v.FindMessageByID(id) }
func (v msgView) Delete(messageID uuid.UUID) error              { return v.DeleteMessage(messageID) }

func (v reactView) Create(reaction *model.Reaction) error { return v.CreateReaction(reaction) }
func (v reactView) Exists(messageID, userID uuid.UUID, emoji string) (bool, error) {
	return v.ReactionExists(messageID, userID, emoji)
}
func (v reactView) Delete(messageID, userID uuid.UUID, emoji string) (int64, error) {
	return v.DeleteReaction(messageID, userID, emoji)
}
func (v reactView) ListForMessages(messageIDs []uuid.UUID) ([]model.Reaction, error) {
	return v.ListForMessagesReactions(messageIDs)
}

func (v receiptView) ListForMessages(messageIDs []uuid.UUID) ([]model.ReadReceipt, error) {
	return v.ListForMessagesReceipts(messageIDs)
}

func (v userView) FindByID(id uuid.UUID) (*model.User, error) { return v.FindUserByID(id) }

// ---- broadcaster spy ----

type publishRecord struct {
	Room    string
	Event   string
	Payload interface{}
}

type spyBroadcaster struct {
	mu      sync.Mutex
	records []publishRecord
}

func (b *spyBroadcaster) PublishToConversation(conversationID uuid.UUID, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, publishRecord{
		Room:    fmt.Sprintf("conversation:%s", conversationID),
		Event:   event,
		Payload: payload,
	})
}

func (b *spyBroadcaster) PublishToUser(userID uuid.UUID, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, publishRecord{
		Room:    fmt.Sprintf("user:%s", userID),
		Event:   event,
		Payload: payload,
	})
}

func (b *spyBroadcaster) count(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.records {
		if r.Event == event {
			n++
		}
	}
	return n
}

func (b *spyBroadcaster) last(event string) *publishRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.records) - 1; i >= 0; i-- {
		if b.records[i].Event == event {
			r := b.records[i]
			return &r
		}
	}
	return nil
}

// ---- wiring helpers ----

type fixture struct {
	store     *memStore
	spy       *spyBroadcaster
	chat      *ChatService
	reactions *ReactionService
	receipts  *ReceiptService
	groups    *GroupService
}

func newFixture() *fixture {
	store := newMemStore()
	spy := &spyBroadcaster{}
	return &fixture{
		store: store,
		spy:   spy,
		chat: NewChatService(
			convView{store}, msgView{store}, reactView{store},
			receiptView{store}, userView{store}, spy,
		),
		reactions: NewReactionService(reactView{store}, msgView{store}, convView{store}, spy),
		receipts:  NewReceiptService(receiptView{store}, msgView{store}, convView{store}, spy),
		groups:    NewGroupService(store, convView{store}, userView{store}, spy),
	}
}
