package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"duit/internal/amqp"
	"duit/internal/core"
	"duit/internal/docstore"
	"duit/internal/docstore/memory"
	"duit/internal/identity"
	"duit/internal/roles"
)

type capturePublisher struct {
	msgs []*amqp.EventMessage
}

func (p *capturePublisher) PublishEvent(_ context.Context, msg *amqp.EventMessage) error {
	p.msgs = append(p.msgs, msg)
	return nil
}

func newTestDirectory(t *testing.T) (*DirectoryService, *memory.Store, *capturePublisher) {
	t.Helper()
	store := memory.New()
	events := &capturePublisher{}
	policy := roles.Policy{
		SuperadminEmail: "boss@example.com",
		AdminEmails:     []string{"admin@example.com"},
	}
	svc := NewDirectoryService(store, events, policy, core.FamilySettings{}, 10, time.Minute)
	return svc, store, events
}

func signIn(t *testing.T, svc *DirectoryService, uid, email string) core.User {
	t.Helper()
	u, err := svc.EnsureUser(context.Background(), identity.Identity{
		UID:         uid,
		Email:       email,
		DisplayName: "Test " + uid,
	})
	if err != nil {
		t.Fatalf("EnsureUser(%s): %v", uid, err)
	}
	return u
}

func TestEnsureUserAssignsPolicyRole(t *testing.T) {
	svc, _, _ := newTestDirectory(t)

	tests := []struct {
		uid   string
		email string
		want  core.Role
	}{
		{"u1", "boss@example.com", core.RoleSuperadmin},
		{"u2", "Admin@Example.com", core.RoleAdmin},
		{"u3", "anyone@example.com", core.RoleUser},
	}
	for _, tt := range tests {
		u := signIn(t, svc, tt.uid, tt.email)
		if u.Role != tt.want {
			t.Errorf("EnsureUser(%s) role = %s, want %s", tt.email, u.Role, tt.want)
		}
	}
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	svc, _, _ := newTestDirectory(t)

	first := signIn(t, svc, "u1", "a@example.com")
	again, err := svc.EnsureUser(context.Background(), identity.Identity{
		UID: "u1", Email: "a@example.com", DisplayName: "Changed",
	})
	if err != nil {
		t.Fatalf("EnsureUser second call: %v", err)
	}
	if again.DisplayName != first.DisplayName {
		t.Errorf("second sign-in overwrote profile: got %q, want %q", again.DisplayName, first.DisplayName)
	}
}

func TestCreateFamilyCreatorIsSuperadmin(t *testing.T) {
	svc, _, events := newTestDirectory(t)
	signIn(t, svc, "u1", "a@example.com")

	f, res, err := svc.CreateFamily(context.Background(), "u1", "Keluarga Cemara")
	if err != nil {
		t.Fatalf("CreateFamily: %v", err)
	}
	if !res.Success {
		t.Fatalf("CreateFamily failed: %+v", res)
	}
	m, ok := f.Members["u1"]
	if !ok {
		t.Fatal("creator missing from members")
	}
	if m.Role != core.RoleSuperadmin {
		t.Errorf("creator role = %s, want superadmin", m.Role)
	}

	u, err := svc.getUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("getUser: %v", err)
	}
	if u.FamilyID != f.ID {
		t.Errorf("creator familyId = %q, want %q", u.FamilyID, f.ID)
	}

	if len(events.msgs) != 1 || events.msgs[0].Type != amqp.EventFamilyCreated {
		t.Errorf("expected one family_created event, got %+v", events.msgs)
	}
}

func TestCreateFamilyRejectsSecondFamily(t *testing.T) {
	svc, _, _ := newTestDirectory(t)
	signIn(t, svc, "u1", "a@example.com")

	if _, res, err := svc.CreateFamily(context.Background(), "u1", "Pertama"); err != nil || !res.Success {
		t.Fatalf("first CreateFamily: res=%+v err=%v", res, err)
	}
	_, res, err := svc.CreateFamily(context.Background(), "u1", "Kedua")
	if err != nil {
		t.Fatalf("second CreateFamily: %v", err)
	}
	if res.Success || res.Code != core.FailAlreadyMember {
		t.Errorf("second CreateFamily = %+v, want already_member failure", res)
	}
}

func TestCreateFamilyRejectsEmptyName(t *testing.T) {
	svc, _, _ := newTestDirectory(t)
	signIn(t, svc, "u1", "a@example.com")

	_, res, err := svc.CreateFamily(context.Background(), "u1", "   ")
	if err != nil {
		t.Fatalf("CreateFamily: %v", err)
	}
	if res.Success || res.Code != core.FailInvalidName {
		t.Errorf("CreateFamily with blank name = %+v, want invalid_name failure", res)
	}
}

func TestInviteMember(t *testing.T) {
	svc, _, events := newTestDirectory(t)
	ctx := context.Background()
	signIn(t, svc, "owner", "a@example.com")
	signIn(t, svc, "friend", "b@x.com")

	f, _, err := svc.CreateFamily(ctx, "owner", "Keluarga")
	if err != nil {
		t.Fatalf("CreateFamily: %v", err)
	}

	res, err := svc.InviteMember(ctx, f.ID, "owner", "b@x.com", core.RoleMember)
	if err != nil {
		t.Fatalf("InviteMember: %v", err)
	}
	if !res.Success {
		t.Fatalf("InviteMember failed: %+v", res)
	}
	if !strings.Contains(res.Message, "b@x.com") {
		t.Errorf("success message %q should name the invited email", res.Message)
	}

	got, err := svc.GetFamily(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetFamily: %v", err)
	}
	if got.Members["friend"].Role != core.RoleMember {
		t.Errorf("invited role = %s, want member", got.Members["friend"].Role)
	}
	u, err := svc.getUser(ctx, "friend")
	if err != nil {
		t.Fatalf("getUser: %v", err)
	}
	if u.FamilyID != f.ID {
		t.Errorf("invited familyId = %q, want %q", u.FamilyID, f.ID)
	}

	var invited *amqp.EventMessage
	for _, m := range events.msgs {
		if m.Type == amqp.EventMemberInvited {
			invited = m
		}
	}
	if invited == nil || invited.Email != "b@x.com" {
		t.Errorf("expected member_invited event for b@x.com, got %+v", events.msgs)
	}
}

func TestInviteMemberFailures(t *testing.T) {
	svc, _, _ := newTestDirectory(t)
	ctx := context.Background()
	signIn(t, svc, "owner", "a@example.com")
	signIn(t, svc, "friend", "b@x.com")
	signIn(t, svc, "other", "c@x.com")

	f, _, err := svc.CreateFamily(ctx, "owner", "Keluarga")
	if err != nil {
		t.Fatalf("CreateFamily: %v", err)
	}
	if _, err := svc.InviteMember(ctx, f.ID, "owner", "b@x.com", core.RoleViewer); err != nil {
		t.Fatalf("seed invite: %v", err)
	}

	if _, _, err := svc.CreateFamily(ctx, "other", "Lain"); err != nil {
		t.Fatalf("CreateFamily other: %v", err)
	}

	tests := []struct {
		name     string
		familyID string
		actor    string
		email    string
		role     core.Role
		want     core.FailureCode
	}{
		{"unregistered email", f.ID, "owner", "nobody@x.com", core.RoleMember, core.FailNotFound},
		{"already a member", f.ID, "owner", "b@x.com", core.RoleMember, core.FailAlreadyMember},
		{"attached to another family", f.ID, "owner", "c@x.com", core.RoleMember, core.FailAlreadyMember},
		{"invalid role", f.ID, "owner", "c@x.com", core.Role("owner"), core.FailInvalidRole},
		{"actor not a manager", f.ID, "friend", "c@x.com", core.RoleMember, core.FailNotAuthorized},
		{"unknown family", "missing", "owner", "c@x.com", core.RoleMember, core.FailNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.InviteMember(ctx, tt.familyID, tt.actor, tt.email, tt.role)
			if err != nil {
				t.Fatalf("InviteMember: %v", err)
			}
			if res.Success || res.Code != tt.want {
				t.Errorf("got %+v, want failure code %s", res, tt.want)
			}
		})
	}

	if res, err := svc.InviteMember(ctx, f.ID, "owner", "nobody@x.com", core.RoleMember); err != nil {
		t.Fatalf("InviteMember: %v", err)
	} else if !strings.Contains(res.Message, "belum terdaftar") {
		t.Errorf("unregistered message %q should say the user is not registered", res.Message)
	}
}

func TestChangeRolePreservesJoinedAt(t *testing.T) {
	svc, _, _ := newTestDirectory(t)
	ctx := context.Background()
	joined := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return joined }

	signIn(t, svc, "owner", "a@example.com")
	signIn(t, svc, "friend", "b@x.com")
	f, _, err := svc.CreateFamily(ctx, "owner", "Keluarga")
	if err != nil {
		t.Fatalf("CreateFamily: %v", err)
	}
	if _, err := svc.InviteMember(ctx, f.ID, "owner", "b@x.com", core.RoleMember); err != nil {
		t.Fatalf("InviteMember: %v", err)
	}

	svc.now = func() time.Time { return joined.Add(48 * time.Hour) }
	res, err := svc.ChangeRole(ctx, f.ID, "owner", "friend", core.RoleAdmin)
	if err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	if !res.Success {
		t.Fatalf("ChangeRole failed: %+v", res)
	}

	got, err := svc.GetFamily(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetFamily: %v", err)
	}
	m := got.Members["friend"]
	if m.Role != core.RoleAdmin {
		t.Errorf("role = %s, want admin", m.Role)
	}
	if !m.JoinedAt.Equal(joined) {
		t.Errorf("joinedAt = %v, want original %v", m.JoinedAt, joined)
	}
}

func TestChangeRoleRefusesSelf(t *testing.T) {
	svc, _, _ := newTestDirectory(t)
	ctx := context.Background()
	signIn(t, svc, "owner", "a@example.com")
	f, _, err := svc.CreateFamily(ctx, "owner", "Keluarga")
	if err != nil {
		t.Fatalf("CreateFamily: %v", err)
	}

	res, err := svc.ChangeRole(ctx, f.ID, "owner", "owner", core.RoleViewer)
	if err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	if res.Success || res.Code != core.FailNotAuthorized {
		t.Errorf("self role change = %+v, want not_authorized failure", res)
	}
}

func TestRemoveMemberDetachesUser(t *testing.T) {
	svc, _, _ := newTestDirectory(t)
	ctx := context.Background()
	signIn(t, svc, "owner", "a@example.com")
	signIn(t, svc, "friend", "b@x.com")
	f, _, err := svc.CreateFamily(ctx, "owner", "Keluarga")
	if err != nil {
		t.Fatalf("CreateFamily: %v", err)
	}
	if _, err := svc.InviteMember(ctx, f.ID, "owner", "b@x.com", core.RoleMember); err != nil {
		t.Fatalf("InviteMember: %v", err)
	}

	res, err := svc.RemoveMember(ctx, f.ID, "owner", "friend")
	if err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if !res.Success {
		t.Fatalf("RemoveMember failed: %+v", res)
	}

	got, err := svc.GetFamily(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetFamily: %v", err)
	}
	if _, ok := got.Members["friend"]; ok {
		t.Error("removed member still in roster")
	}
	u, err := svc.getUser(ctx, "friend")
	if err != nil {
		t.Fatalf("getUser: %v", err)
	}
	if u.FamilyID != "" {
		t.Errorf("removed member familyId = %q, want empty", u.FamilyID)
	}

	if res, err := svc.RemoveMember(ctx, f.ID, "owner", "owner"); err != nil {
		t.Fatalf("RemoveMember self: %v", err)
	} else if res.Success || res.Code != core.FailNotAuthorized {
		t.Errorf("self removal = %+v, want not_authorized failure", res)
	}
}

func TestListMembersSortsAndSkipsUnresolved(t *testing.T) {
	svc, store, _ := newTestDirectory(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	signIn(t, svc, "owner", "a@example.com")
	signIn(t, svc, "friend", "b@x.com")
	f, _, err := svc.CreateFamily(ctx, "owner", "Keluarga")
	if err != nil {
		t.Fatalf("CreateFamily: %v", err)
	}

	svc.now = func() time.Time { return base.Add(time.Hour) }
	if _, err := svc.InviteMember(ctx, f.ID, "owner", "b@x.com", core.RoleMember); err != nil {
		t.Fatalf("InviteMember: %v", err)
	}

	// A membership entry pointing at a vanished user record must not
	// break the roster read.
	if err := store.Update(ctx, docstore.Families, f.ID, docstore.Document{
		"members": map[string]any{
			"owner":  map[string]any{"role": "superadmin", "joinedAt": base.Format(time.RFC3339Nano)},
			"friend": map[string]any{"role": "member", "joinedAt": base.Add(time.Hour).Format(time.RFC3339Nano)},
			"ghost":  map[string]any{"role": "viewer", "joinedAt": base.Add(2 * time.Hour).Format(time.RFC3339Nano)},
		},
	}); err != nil {
		t.Fatalf("seed ghost member: %v", err)
	}

	list, err := svc.ListMembers(ctx, f.ID)
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if list.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", list.Skipped)
	}
	if len(list.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(list.Members))
	}
	if list.Members[0].UID != "owner" || list.Members[1].UID != "friend" {
		t.Errorf("order = [%s %s], want joinedAt ascending [owner friend]",
			list.Members[0].UID, list.Members[1].UID)
	}
	if list.Members[1].Email != "b@x.com" {
		t.Errorf("member email = %q, want b@x.com", list.Members[1].Email)
	}
}
