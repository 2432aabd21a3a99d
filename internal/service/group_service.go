package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/converseapp/converse/internal/apperr"
	"github.com/converseapp/converse/internal/model"
)

// GroupService is the membership state machine over Conversation,
// Participant and GroupAdmin rows. All mutations go through the
// transactional GroupStore so privilege reads and writes stay atomic.
type GroupService struct {
	groupStore  GroupStore
	convStore   ConversationStore
	userStore   UserStore
	broadcaster Broadcaster
}

func NewGroupService(
	groupStore GroupStore,
	convStore ConversationStore,
	userStore UserStore,
	broadcaster Broadcaster,
) *GroupService {
	return &GroupService{
		groupStore:  groupStore,
		convStore:   convStore,
		userStore:   userStore,
		broadcaster: broadcaster,
	}
}

// CreateGroup creates the conversation, participant rows for the owner
// plus all listed members, the owner's admin row and the settings row
// as one atomic unit.
func (s *GroupService) CreateGroup(ownerID uuid.UUID, req model.CreateGroupRequest) (*model.Conversation, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: group name is required", apperr.ErrValidation)
	}

	memberIDs := normalizeParticipants(req.Participants, ownerID)
	if len(memberIDs) == 0 {
		return nil, fmt.Errorf("%w: a group needs at least one other participant", apperr.ErrValidation)
	}
	count, err := s.userStore.CountByIDs(memberIDs)
	if err != nil {
		return nil, err
	}
	if count != int64(len(memberIDs)) {
		return nil, fmt.Errorf("%w: participant list references unknown users", apperr.ErrValidation)
	}

	participants := []model.Participant{{UserID: ownerID}}
	for _, id := range memberIDs {
		participants = append(participants, model.Participant{UserID: id})
	}

	conv := &model.Conversation{
		IsGroup:      true,
		Name:         req.Name,
		Description:  req.Description,
		OwnerID:      &ownerID,
		Participants: participants,
	}
	settings := settingsFromInput(req.Settings)

	if err := s.convStore.CreateGroup(conv, settings); err != nil {
		return nil, err
	}
	conv.Settings = settings

	for _, p := range participants {
		s.broadcaster.PublishToUser(p.UserID, model.WSEventGroupCreated, conv)
	}
	return conv, nil
}

// AddMember adds a user to the group. Permitted for the owner, admins,
// or any member when the group allows member invites.
func (s *GroupService) AddMember(groupID, actorID, newMemberID uuid.UUID) error {
	state, err := s.loadGroup(groupID)
	if err != nil {
		return err
	}
	if !state.IsParticipant(actorID) {
		return apperr.ErrNotParticipant
	}
	if !canInvite(state, actorID) {
		return apperr.ErrPermissionDenied
	}
	if state.IsParticipant(newMemberID) {
		return apperr.ErrAlreadyMember
	}

	member, err := s.userStore.FindByID(newMemberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: user %s", apperr.ErrNotFound, newMemberID)
		}
		return err
	}

	sysMsg := systemMessage(groupID, actorID, fmt.Sprintf("%s was added to the group", member.Name))
	if err := s.groupStore.AddMember(groupID, newMemberID, sysMsg); err != nil {
		return err
	}

	event := model.MembershipEvent{ConversationID: groupID, UserID: newMemberID, ActorID: actorID}
	s.broadcaster.PublishToConversation(groupID, model.WSEventMemberAdded, event)
	s.broadcaster.PublishToUser(newMemberID, model.WSEventMemberAdded, event)
	s.broadcaster.PublishToConversation(groupID, model.WSEventReceiveMessage, sysMsg)
	return nil
}

// RemoveMember removes a user. Permitted for the owner, admins, or the
// user themselves (self-leave). The owner can only ever be removed by
// their own self-leave, which abandons the group: ownership passes to
// the longest-tenured admin, then the longest-tenured member, and a
// sole-member group is deleted outright.
func (s *GroupService) RemoveMember(groupID, actorID, targetID uuid.UUID) error {
	state, err := s.loadGroup(groupID)
	if err != nil {
		return err
	}
	if !state.IsParticipant(actorID) {
		return apperr.ErrNotParticipant
	}
	if !state.IsParticipant(targetID) {
		return fmt.Errorf("%w: user %s is not a member", apperr.ErrNotFound, targetID)
	}

	selfLeave := actorID == targetID
	if !selfLeave && !state.IsOwner(actorID) && !state.IsAdmin(actorID) {
		return apperr.ErrPermissionDenied
	}
	if state.IsOwner(targetID) && !selfLeave {
		return apperr.ErrCannotRemoveOwner
	}

	var newOwnerID *uuid.UUID
	if state.IsOwner(targetID) {
		successor := abandonmentSuccessor(state, targetID)
		if successor == nil {
			// Owner was the last one standing.
			if err := s.convStore.Delete(groupID); err != nil {
				return err
			}
			s.broadcaster.PublishToConversation(groupID, model.WSEventGroupDeleted, model.MembershipEvent{
				ConversationID: groupID,
				UserID:         targetID,
				ActorID:        actorID,
			})
			return nil
		}
		newOwnerID = successor
	}

	targetName := targetID.String()
	if target, err := s.userStore.FindByID(targetID); err == nil {
		targetName = target.Name
	}
	verb := "was removed from"
	if selfLeave {
		verb = "left"
	}
	sysMsg := systemMessage(groupID, actorID, fmt.Sprintf("%s %s the group", targetName, verb))

	if err := s.groupStore.RemoveMember(groupID, targetID, newOwnerID, sysMsg); err != nil {
		return err
	}

	event := model.MembershipEvent{ConversationID: groupID, UserID: targetID, ActorID: actorID}
	s.broadcaster.PublishToConversation(groupID, model.WSEventMemberRemoved, event)
	s.broadcaster.PublishToUser(targetID, model.WSEventMemberRemoved, event)
	s.broadcaster.PublishToConversation(groupID, model.WSEventReceiveMessage, sysMsg)
	return nil
}

// Promote grants admin. Only the owner may mutate the admin set.
func (s *GroupService) Promote(groupID, actorID, targetID uuid.UUID) error {
	state, err := s.loadGroup(groupID)
	if err != nil {
		return err
	}
	if !state.IsOwner(actorID) {
		return apperr.ErrPermissionDenied
	}
	if !state.IsParticipant(targetID) {
		return apperr.ErrNotParticipant
	}
	return s.groupStore.Promote(groupID, targetID)
}

// Demote revokes admin. Only the owner may mutate the admin set, and
// demoting the owner is always rejected.
func (s *GroupService) Demote(groupID, actorID, targetID uuid.UUID) error {
	state, err := s.loadGroup(groupID)
	if err != nil {
		return err
	}
	if !state.IsOwner(actorID) || state.IsOwner(targetID) {
		return apperr.ErrPermissionDenied
	}
	return s.groupStore.Demote(groupID, targetID)
}

// DeleteGroup tears down the group and everything in it. Owner only.
func (s *GroupService) DeleteGroup(groupID, actorID uuid.UUID) error {
	state, err := s.loadGroup(groupID)
	if err != nil {
		return err
	}
	if !state.IsOwner(actorID) {
		return apperr.ErrPermissionDenied
	}
	if err := s.convStore.Delete(groupID); err != nil {
		return err
	}
	s.broadcaster.PublishToConversation(groupID, model.WSEventGroupDeleted, model.MembershipEvent{
		ConversationID: groupID,
		UserID:         actorID,
		ActorID:        actorID,
	})
	return nil
}

func (s *GroupService) loadGroup(groupID uuid.UUID) (*model.GroupState, error) {
	state, err := s.groupStore.LoadState(groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: group %s", apperr.ErrNotFound, groupID)
		}
		return nil, err
	}
	if !state.Conversation.IsGroup {
		return nil, fmt.Errorf("%w: conversation %s is not a group", apperr.ErrValidation, groupID)
	}
	return state, nil
}

// canInvite evaluates the add-member permission matrix on a snapshot.
func canInvite(state *model.GroupState, actorID uuid.UUID) bool {
	return state.IsOwner(actorID) || state.IsAdmin(actorID) || state.Settings.AllowMemberInvites
}

// abandonmentSuccessor picks the next owner when the current owner
// self-leaves: longest-tenured admin first, longest-tenured member
// otherwise, nil when nobody is left.
func abandonmentSuccessor(state *model.GroupState, leavingOwnerID uuid.UUID) *uuid.UUID {
	for _, a := range state.Admins { // admins are loaded oldest first
		if a.UserID != leavingOwnerID {
			id := a.UserID
			return &id
		}
	}
	for _, p := range state.Participants { // participants loaded by join time
		if p.UserID != leavingOwnerID {
			id := p.UserID
			return &id
		}
	}
	return nil
}

// normalizeParticipants flattens ParticipantRefs into a deduplicated id
// list, dropping the owner if clients included them.
func normalizeParticipants(refs []model.ParticipantRef, ownerID uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	ids := []uuid.UUID{}
	for _, ref := range refs {
		if ref.UserID == ownerID || ref.UserID == uuid.Nil || seen[ref.UserID] {
			continue
		}
		seen[ref.UserID] = true
		ids = append(ids, ref.UserID)
	}
	return ids
}

func settingsFromInput(in *model.GroupSettingsInput) *model.GroupSettings {
	settings := &model.GroupSettings{}
	if in == nil {
		return settings
	}
	if in.IsPrivate != nil {
		settings.IsPrivate = *in.IsPrivate
	}
	if in.AllowMemberInvites != nil {
		settings.AllowMemberInvites = *in.AllowMemberInvites
	}
	if in.RequireApproval != nil {
		settings.RequireApproval = *in.RequireApproval
	}
	if in.MuteNotifications != nil {
		settings.MuteNotifications = *in.MuteNotifications
	}
	return settings
}

// systemMessage builds the synthetic membership-event message. The
// actor is recorded as sender; the system type marks platform origin.
func systemMessage(conversationID, actorID uuid.UUID, content string) *model.Message {
	return &model.Message{
		ConversationID: conversationID,
		SenderID:       actorID,
		Content:        content,
		Type:           model.MessageTypeSystem,
	}
}
