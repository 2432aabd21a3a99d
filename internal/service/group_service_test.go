package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/converseapp/converse/internal/apperr"
	"github.com/converseapp/converse/internal/model"
)

func refs(ids ...uuid.UUID) []model.ParticipantRef {
	out := make([]model.ParticipantRef, len(ids))
	for i, id := range ids {
		out[i] = model.ParticipantRef{UserID: id}
	}
	return out
}

func mustCreateGroup(t *testing.T, f *fixture, owner uuid.UUID, name string, members ...uuid.UUID) *model.Conversation {
	t.Helper()
	conv, err := f.groups.CreateGroup(owner, model.CreateGroupRequest{
		Name:         name,
		Participants: refs(members...),
	})
	if err != nil {
		t.Fatalf("create group %q: %v", name, err)
	}
	return conv
}

func TestCreateGroupValidation(t *testing.T) {
	f := newFixture()
	owner := f.store.addUser("owner")
	bob := f.store.addUser("bob")

	_, err := f.groups.CreateGroup(owner, model.CreateGroupRequest{Participants: refs(bob)})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("missing name: got %v, want ErrValidation", err)
	}

	// Owner-only participant lists collapse to empty after normalization.
	_, err = f.groups.CreateGroup(owner, model.CreateGroupRequest{
		Name:         "solo",
		Participants: refs(owner, owner),
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("owner-only list: got %v, want ErrValidation", err)
	}

	_, err = f.groups.CreateGroup(owner, model.CreateGroupRequest{
		Name:         "ghosts",
		Participants: refs(bob, uuid.New()),
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("unknown participant: got %v, want ErrValidation", err)
	}
}

func TestCreateGroupSeedsOwnerAdminAndSettings(t *testing.T) {
	f := newFixture()
	owner := f.store.addUser("owner")
	bob := f.store.addUser("bob")
	carol := f.store.addUser("carol")

	conv := mustCreateGroup(t, f, owner, "team", bob, carol, bob) // duplicate bob collapses

	if !conv.IsGroup {
		t.Fatal("group conversation not flagged is_group")
	}
	if conv.OwnerID == nil || *conv.OwnerID != owner {
		t.Fatal("owner not recorded")
	}
	if len(conv.Participants) != 3 {
		t.Fatalf("got %d participants, want 3", len(conv.Participants))
	}
	if conv.Settings == nil || conv.Settings.AllowMemberInvites {
		t.Fatal("settings should exist with restrictive defaults")
	}

	state, err := f.store.LoadState(conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !state.IsAdmin(owner) {
		t.Fatal("owner must hold an admin row from creation")
	}
	if state.IsAdmin(bob) || state.IsAdmin(carol) {
		t.Fatal("plain members must not be admins")
	}

	if got := f.spy.count(model.WSEventGroupCreated); got != 3 {
		t.Fatalf("groupCreated published %d times, want once per member", got)
	}
}

func TestAddMemberPermissionMatrix(t *testing.T) {
	f := newFixture()
	owner := f.store.addUser("owner")
	admin := f.store.addUser("admin")
	member := f.store.addUser("member")
	dave := f.store.addUser("dave")
	erin := f.store.addUser("erin")
	outsider := f.store.addUser("outsider")

	conv := mustCreateGroup(t, f, owner, "team", admin, member)
	if err := f.groups.Promote(conv.ID, owner, admin); err != nil {
		t.Fatal(err)
	}

	if err := f.groups.AddMember(conv.ID, outsider, dave); !errors.Is(err, apperr.ErrNotParticipant) {
		t.Fatalf("outsider add: got %v, want ErrNotParticipant", err)
	}
	if err := f.groups.AddMember(conv.ID, member, dave); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("member add with invites off: got %v, want ErrPermissionDenied", err)
	}
	if err := f.groups.AddMember(conv.ID, admin, dave); err != nil {
		t.Fatalf("admin add: %v", err)
	}
	if err := f.groups.AddMember(conv.ID, owner, dave); !errors.Is(err, apperr.ErrAlreadyMember) {
		t.Fatalf("re-add: got %v, want ErrAlreadyMember", err)
	}
	if err := f.groups.AddMember(conv.ID, owner, uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown user: got %v, want ErrNotFound", err)
	}

	// Flipping the invite setting opens the door for plain members.
	f.store.settings[conv.ID].AllowMemberInvites = true
	if err := f.groups.AddMember(conv.ID, member, erin); err != nil {
		t.Fatalf("member add with invites on: %v", err)
	}

	// The join leaves a system message in the ledger.
	last, err := f.store.GetLastMessage(conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if last.Type != model.MessageTypeSystem || !strings.Contains(last.Content, "erin") {
		t.Fatalf("expected system join message, got %+v", last)
	}
}

func TestRemoveMemberPermissions(t *testing.T) {
	f := newFixture()
	owner := f.store.addUser("owner")
	admin := f.store.addUser("admin")
	member := f.store.addUser("member")
	victim := f.store.addUser("victim")

	conv := mustCreateGroup(t, f, owner, "team", admin, member, victim)
	if err := f.groups.Promote(conv.ID, owner, admin); err != nil {
		t.Fatal(err)
	}

	if err := f.groups.RemoveMember(conv.ID, member, victim); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("member removing peer: got %v, want ErrPermissionDenied", err)
	}
	if err := f.groups.RemoveMember(conv.ID, admin, owner); !errors.Is(err, apperr.ErrCannotRemoveOwner) {
		t.Fatalf("admin removing owner: got %v, want ErrCannotRemoveOwner", err)
	}
	if err := f.groups.RemoveMember(conv.ID, admin, victim); err != nil {
		t.Fatalf("admin removing member: %v", err)
	}
	// Self-leave needs no privilege.
	if err := f.groups.RemoveMember(conv.ID, member, member); err != nil {
		t.Fatalf("self-leave: %v", err)
	}

	state, _ := f.store.LoadState(conv.ID)
	if state.IsParticipant(victim) || state.IsParticipant(member) {
		t.Fatal("removed users still in participant set")
	}
	if got := f.spy.count(model.WSEventMemberRemoved); got == 0 {
		t.Fatal("memberRemoved not broadcast")
	}
}

func TestOwnerLeaveTransfersToOldestAdmin(t *testing.T) {
	f := newFixture()
	owner := f.store.addUser("owner")
	first := f.store.addUser("first-admin")
	second := f.store.addUser("second-admin")
	member := f.store.addUser("member")

	conv := mustCreateGroup(t, f, owner, "team", first, second, member)
	if err := f.groups.Promote(conv.ID, owner, first); err != nil {
		t.Fatal(err)
	}
	if err := f.groups.Promote(conv.ID, owner, second); err != nil {
		t.Fatal(err)
	}

	if err := f.groups.RemoveMember(conv.ID, owner, owner); err != nil {
		t.Fatalf("owner self-leave: %v", err)
	}

	state, err := f.store.LoadState(conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !state.IsOwner(first) {
		t.Fatalf("ownership should pass to the longest-tenured admin, owner is %v", state.Conversation.OwnerID)
	}
	if state.IsParticipant(owner) {
		t.Fatal("leaving owner still in participant set")
	}
}

func TestOwnerLeaveFallsBackToOldestMember(t *testing.T) {
	f := newFixture()
	owner := f.store.addUser("owner")
	bob := f.store.addUser("bob")
	carol := f.store.addUser("carol")

	conv := mustCreateGroup(t, f, owner, "team", bob, carol)

	if err := f.groups.RemoveMember(conv.ID, owner, owner); err != nil {
		t.Fatalf("owner self-leave: %v", err)
	}

	state, err := f.store.LoadState(conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !state.IsOwner(bob) {
		t.Fatalf("ownership should pass to the earliest-joined member, owner is %v", state.Conversation.OwnerID)
	}
	if !state.IsAdmin(bob) {
		t.Fatal("the successor must receive an admin row")
	}
}

func TestOwnerLeaveAsSoleMemberDeletesGroup(t *testing.T) {
	f := newFixture()
	owner := f.store.addUser("owner")
	bob := f.store.addUser("bob")

	conv := mustCreateGroup(t, f, owner, "team", bob)
	if err := f.groups.RemoveMember(conv.ID, bob, bob); err != nil {
		t.Fatal(err)
	}

	if err := f.groups.RemoveMember(conv.ID, owner, owner); err != nil {
		t.Fatalf("sole owner leave: %v", err)
	}

	if _, err := f.store.LoadState(conv.ID); err == nil {
		t.Fatal("abandoned single-member group should be deleted")
	}
	if f.spy.count(model.WSEventGroupDeleted) != 1 {
		t.Fatal("groupDeleted not broadcast")
	}
}

func TestPromoteDemoteOwnerOnly(t *testing.T) {
	f := newFixture()
	owner := f.store.addUser("owner")
	admin := f.store.addUser("admin")
	member := f.store.addUser("member")
	outsider := f.store.addUser("outsider")

	conv := mustCreateGroup(t, f, owner, "team", admin, member)
	if err := f.groups.Promote(conv.ID, owner, admin); err != nil {
		t.Fatal(err)
	}

	// Admins may not mutate the admin set, only the owner can.
	if err := f.groups.Promote(conv.ID, admin, member); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("admin promote: got %v, want ErrPermissionDenied", err)
	}
	if err := f.groups.Promote(conv.ID, owner, outsider); !errors.Is(err, apperr.ErrNotParticipant) {
		t.Fatalf("promote outsider: got %v, want ErrNotParticipant", err)
	}
	if err := f.groups.Promote(conv.ID, owner, admin); !errors.Is(err, apperr.ErrAlreadyAdmin) {
		t.Fatalf("double promote: got %v, want ErrAlreadyAdmin", err)
	}
	if err := f.groups.Demote(conv.ID, owner, owner); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("demote owner: got %v, want ErrPermissionDenied", err)
	}
	if err := f.groups.Demote(conv.ID, owner, member); !errors.Is(err, apperr.ErrNotAdmin) {
		t.Fatalf("demote non-admin: got %v, want ErrNotAdmin", err)
	}
	if err := f.groups.Demote(conv.ID, owner, admin); err != nil {
		t.Fatalf("demote admin: %v", err)
	}

	state, _ := f.store.LoadState(conv.ID)
	if state.IsAdmin(admin) {
		t.Fatal("demoted user still holds an admin row")
	}
}

func TestAdminSurvivesOwnerHandover(t *testing.T) {
	// A promoted admin who receives ownership keeps exactly one admin
	// row and full owner privileges afterward.
	f := newFixture()
	owner := f.store.addUser("owner")
	heir := f.store.addUser("heir")
	member := f.store.addUser("member")

	conv := mustCreateGroup(t, f, owner, "team", heir, member)
	if err := f.groups.Promote(conv.ID, owner, heir); err != nil {
		t.Fatal(err)
	}
	if err := f.groups.RemoveMember(conv.ID, owner, owner); err != nil {
		t.Fatal(err)
	}

	// The heir now owns the group and can promote.
	if err := f.groups.Promote(conv.ID, heir, member); err != nil {
		t.Fatalf("new owner promote: %v", err)
	}
}

func TestDeleteGroupOwnerOnly(t *testing.T) {
	f := newFixture()
	owner := f.store.addUser("owner")
	admin := f.store.addUser("admin")

	conv := mustCreateGroup(t, f, owner, "team", admin)
	if err := f.groups.Promote(conv.ID, owner, admin); err != nil {
		t.Fatal(err)
	}

	if err := f.groups.DeleteGroup(conv.ID, admin); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("admin delete: got %v, want ErrPermissionDenied", err)
	}

	f.chat.Send(conv.ID, owner, model.SendMessageRequest{Content: "bye"})
	if err := f.groups.DeleteGroup(conv.ID, owner); err != nil {
		t.Fatalf("owner delete: %v", err)
	}

	if _, err := f.store.LoadState(conv.ID); err == nil {
		t.Fatal("deleted group still loadable")
	}
	if msgs, _ := f.store.GetConversationMessages(conv.ID, nil, 0); len(msgs) != 0 {
		t.Fatal("group messages should be deleted with the group")
	}
}

func TestGroupOperationsRejectDirectConversations(t *testing.T) {
	f := newFixture()
	alice := f.store.addUser("alice")
	bob := f.store.addUser("bob")
	carol := f.store.addUser("carol")

	conv, _, err := f.chat.GetOrCreateDirect(alice, bob)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.groups.AddMember(conv.ID, alice, carol); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("add to direct chat: got %v, want ErrValidation", err)
	}
}
