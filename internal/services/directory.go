// Package services implements the application operations: the family
// directory (membership lifecycle) and the ledger (transfers and daily
// entries). Domain failures come back as core.Result values the
// presentation layer renders directly; backend failures are errors.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"duit/internal/amqp"
	"duit/internal/cache"
	"duit/internal/core"
	"duit/internal/docstore"
	"duit/internal/identity"
	"duit/internal/roles"
)

// DirectoryService owns family lifecycle and membership.
type DirectoryService struct {
	store    docstore.Store
	events   EventPublisher
	policy   roles.Policy
	defaults core.FamilySettings
	users    *cache.LRUCache[core.User]
	now      func() time.Time
}

// Member is a roster entry: membership joined with the user's profile.
type Member struct {
	UID         string    `json:"uid"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	PhotoURL    string    `json:"photoURL,omitempty"`
	Role        core.Role `json:"role"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// MemberList is the result of ListMembers. Skipped counts membership
// entries whose user record could not be resolved; those are dropped
// from Members rather than failing the read.
type MemberList struct {
	Members []Member `json:"members"`
	Skipped int      `json:"skipped,omitempty"`
}

func NewDirectoryService(store docstore.Store, events EventPublisher, policy roles.Policy, defaults core.FamilySettings, cacheSize int, cacheTTL time.Duration) *DirectoryService {
	if defaults.Currency == "" {
		defaults.Currency = "IDR"
	}
	if defaults.Timezone == "" {
		defaults.Timezone = "Asia/Jakarta"
	}
	return &DirectoryService{
		store:    store,
		events:   events,
		policy:   policy,
		defaults: defaults,
		users:    cache.NewLRUCache[core.User](cacheSize, cacheTTL),
		now:      time.Now,
	}
}

// UserCache exposes the profile cache for cleanup registration.
func (s *DirectoryService) UserCache() *cache.LRUCache[core.User] {
	return s.users
}

// EnsureUser returns the user record for a signed-in identity, creating
// it on first sign-in with the default role from the role policy.
func (s *DirectoryService) EnsureUser(ctx context.Context, id identity.Identity) (core.User, error) {
	doc, err := s.store.Get(ctx, docstore.Users, id.UID)
	if err == nil {
		var u core.User
		if err := docstore.Decode(doc, &u); err != nil {
			return core.User{}, fmt.Errorf("decode user %s: %w", id.UID, err)
		}
		return u, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return core.User{}, fmt.Errorf("get user %s: %w", id.UID, err)
	}

	name := id.DisplayName
	if name == "" {
		name = "User"
	}
	now := s.now()
	u := core.User{
		UID:         id.UID,
		Email:       id.Email,
		DisplayName: name,
		PhotoURL:    id.PhotoURL,
		Role:        s.policy.ClassifyEmail(id.Email),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := u.Validate(); err != nil {
		return core.User{}, fmt.Errorf("invalid identity: %w", err)
	}

	enc, err := docstore.Encode(u)
	if err != nil {
		return core.User{}, fmt.Errorf("encode user: %w", err)
	}
	if err := s.store.Set(ctx, docstore.Users, u.UID, enc); err != nil {
		return core.User{}, fmt.Errorf("create user %s: %w", u.UID, err)
	}

	slog.InfoContext(ctx, "User provisioned",
		"uid", u.UID,
		"email", u.Email,
		"role", string(u.Role))
	return u, nil
}

// CreateFamily constructs a family whose creator is its first superadmin
// member, persists it, and attaches the creator. The family document and
// the creator's familyId are written in one atomic batch.
func (s *DirectoryService) CreateFamily(ctx context.Context, creatorUID, name string) (*core.Family, core.Result, error) {
	creator, err := s.getUser(ctx, creatorUID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, core.Fail(core.FailNotFound, "User tidak ditemukan"), nil
	}
	if err != nil {
		return nil, core.Result{}, err
	}
	if creator.FamilyID != "" {
		return nil, core.Fail(core.FailAlreadyMember, "Anda sudah tergabung di sebuah keluarga"), nil
	}

	now := s.now()
	f := core.Family{
		ID:        s.store.NewID(),
		Name:      name,
		CreatedBy: creatorUID,
		Settings:  s.defaults,
		Members: map[string]core.Membership{
			creatorUID: {Role: core.RoleSuperadmin, JoinedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.Validate(); err != nil {
		return nil, core.Fail(core.FailInvalidName, "Nama keluarga harus diisi"), nil
	}

	enc, err := docstore.Encode(f)
	if err != nil {
		return nil, core.Result{}, fmt.Errorf("encode family: %w", err)
	}
	b := docstore.NewBatch().
		Set(docstore.Families, f.ID, enc).
		Update(docstore.Users, creatorUID, docstore.Document{
			"familyId":  f.ID,
			"updatedAt": now.Format(time.RFC3339Nano),
		})
	if err := s.store.Apply(ctx, b); err != nil {
		return nil, core.Result{}, fmt.Errorf("create family: %w", err)
	}
	s.users.Delete(creatorUID)

	msg := amqp.NewEventMessage(amqp.EventFamilyCreated)
	msg.FamilyID = f.ID
	msg.ActorUID = creatorUID
	publishEvent(ctx, s.events, msg)

	slog.InfoContext(ctx, "Family created",
		"family_id", f.ID,
		"uid", creatorUID)
	return &f, core.OK(fmt.Sprintf("Keluarga \"%s\" berhasil dibuat", f.Name)), nil
}

// GetUser returns the stored user record or docstore.ErrNotFound.
func (s *DirectoryService) GetUser(ctx context.Context, uid string) (core.User, error) {
	return s.getUser(ctx, uid)
}

// GetFamily returns the family or docstore.ErrNotFound.
func (s *DirectoryService) GetFamily(ctx context.Context, familyID string) (core.Family, error) {
	doc, err := s.store.Get(ctx, docstore.Families, familyID)
	if err != nil {
		return core.Family{}, err
	}
	var f core.Family
	if err := docstore.Decode(doc, &f); err != nil {
		return core.Family{}, fmt.Errorf("decode family %s: %w", familyID, err)
	}
	f.ID = familyID
	return f, nil
}

// ListMembers joins the family's membership map against user records.
// Membership entries whose user cannot be resolved are skipped, not
// fatal: the roster stays readable when a user record goes missing, and
// the skip count is reported so the gap is still visible.
func (s *DirectoryService) ListMembers(ctx context.Context, familyID string) (MemberList, error) {
	f, err := s.GetFamily(ctx, familyID)
	if err != nil {
		return MemberList{}, err
	}

	var out MemberList
	for uid, m := range f.Members {
		u, err := s.cachedUser(ctx, uid)
		if errors.Is(err, docstore.ErrNotFound) {
			out.Skipped++
			continue
		}
		if err != nil {
			return MemberList{}, err
		}
		out.Members = append(out.Members, Member{
			UID:         uid,
			Email:       u.Email,
			DisplayName: u.DisplayName,
			PhotoURL:    u.PhotoURL,
			Role:        m.Role,
			JoinedAt:    m.JoinedAt,
		})
	}
	sort.Slice(out.Members, func(i, j int) bool {
		if out.Members[i].JoinedAt.Equal(out.Members[j].JoinedAt) {
			return out.Members[i].UID < out.Members[j].UID
		}
		return out.Members[i].JoinedAt.Before(out.Members[j].JoinedAt)
	})

	if out.Skipped > 0 {
		slog.WarnContext(ctx, "Skipped unresolved members",
			"family_id", familyID,
			"skipped", out.Skipped)
	}
	return out, nil
}

// InviteMember adds the user registered under email to the family. The
// membership insert and the user's familyId are one atomic batch, so a
// half-attached member cannot exist.
func (s *DirectoryService) InviteMember(ctx context.Context, familyID, actorUID, email string, role core.Role) (core.Result, error) {
	if !role.ValidFamilyRole() {
		return core.Fail(core.FailInvalidRole, "Role tidak valid"), nil
	}

	f, res, err := s.familyForManager(ctx, familyID, actorUID)
	if err != nil || !res.Success {
		return res, err
	}

	docs, err := s.store.QueryByField(ctx, docstore.Users, "email", email)
	if err != nil {
		return core.Result{}, fmt.Errorf("find user by email: %w", err)
	}
	if len(docs) == 0 {
		return core.Fail(core.FailNotFound,
			fmt.Sprintf("User dengan email %s belum terdaftar. Minta mereka login dengan Google terlebih dahulu", email)), nil
	}
	var target core.User
	if err := docstore.Decode(docs[0], &target); err != nil {
		return core.Result{}, fmt.Errorf("decode user: %w", err)
	}

	if _, ok := f.Members[target.UID]; ok {
		return core.Fail(core.FailAlreadyMember,
			fmt.Sprintf("%s sudah menjadi anggota keluarga", email)), nil
	}
	// One family per user: attached elsewhere means not invitable here.
	if target.FamilyID != "" && target.FamilyID != familyID {
		return core.Fail(core.FailAlreadyMember,
			fmt.Sprintf("%s sudah tergabung di keluarga lain", email)), nil
	}

	now := s.now()
	f.Members[target.UID] = core.Membership{Role: role, JoinedAt: now}

	b := docstore.NewBatch().
		Update(docstore.Families, familyID, docstore.Document{
			"members":   encodeMembers(f.Members),
			"updatedAt": now.Format(time.RFC3339Nano),
		}).
		Update(docstore.Users, target.UID, docstore.Document{
			"familyId":  familyID,
			"updatedAt": now.Format(time.RFC3339Nano),
		})
	if err := s.store.Apply(ctx, b); err != nil {
		return core.Result{}, fmt.Errorf("invite member: %w", err)
	}
	s.users.Delete(target.UID)

	msg := amqp.NewEventMessage(amqp.EventMemberInvited)
	msg.FamilyID = familyID
	msg.ActorUID = actorUID
	msg.MemberUID = target.UID
	msg.Email = email
	msg.Role = string(role)
	publishEvent(ctx, s.events, msg)

	slog.InfoContext(ctx, "Member invited",
		"family_id", familyID,
		"uid", target.UID,
		"email", email,
		"role", string(role))
	return core.OK(fmt.Sprintf("Berhasil menambahkan %s ke keluarga", email)), nil
}

// ChangeRole overwrites only the member's role, preserving joinedAt.
// A manager cannot change their own role.
func (s *DirectoryService) ChangeRole(ctx context.Context, familyID, actorUID, memberUID string, newRole core.Role) (core.Result, error) {
	if !newRole.ValidFamilyRole() {
		return core.Fail(core.FailInvalidRole, "Role tidak valid"), nil
	}
	if actorUID == memberUID {
		return core.Fail(core.FailNotAuthorized, "Tidak bisa mengubah role Anda sendiri"), nil
	}

	f, res, err := s.familyForManager(ctx, familyID, actorUID)
	if err != nil || !res.Success {
		return res, err
	}

	m, ok := f.Members[memberUID]
	if !ok {
		return core.Fail(core.FailNotFound, "Anggota tidak ditemukan"), nil
	}
	m.Role = newRole
	f.Members[memberUID] = m

	now := s.now()
	if err := s.store.Update(ctx, docstore.Families, familyID, docstore.Document{
		"members":   encodeMembers(f.Members),
		"updatedAt": now.Format(time.RFC3339Nano),
	}); err != nil {
		return core.Result{}, fmt.Errorf("change role: %w", err)
	}

	msg := amqp.NewEventMessage(amqp.EventRoleChanged)
	msg.FamilyID = familyID
	msg.ActorUID = actorUID
	msg.MemberUID = memberUID
	msg.Role = string(newRole)
	publishEvent(ctx, s.events, msg)

	slog.InfoContext(ctx, "Member role changed",
		"family_id", familyID,
		"uid", memberUID,
		"role", string(newRole))
	return core.OK(fmt.Sprintf("Role berhasil diubah menjadi %s", newRole)), nil
}

// RemoveMember deletes the membership entry and detaches the user, both
// in one atomic batch. A manager cannot remove themselves.
func (s *DirectoryService) RemoveMember(ctx context.Context, familyID, actorUID, memberUID string) (core.Result, error) {
	if actorUID == memberUID {
		return core.Fail(core.FailNotAuthorized, "Tidak bisa menghapus diri Anda sendiri dari keluarga"), nil
	}

	f, res, err := s.familyForManager(ctx, familyID, actorUID)
	if err != nil || !res.Success {
		return res, err
	}

	if _, ok := f.Members[memberUID]; !ok {
		return core.Fail(core.FailNotFound, "Anggota tidak ditemukan"), nil
	}
	delete(f.Members, memberUID)

	now := s.now()
	b := docstore.NewBatch().
		Update(docstore.Families, familyID, docstore.Document{
			"members":   encodeMembers(f.Members),
			"updatedAt": now.Format(time.RFC3339Nano),
		}).
		Update(docstore.Users, memberUID, docstore.Document{
			"familyId":  "",
			"updatedAt": now.Format(time.RFC3339Nano),
		})
	if err := s.store.Apply(ctx, b); err != nil {
		return core.Result{}, fmt.Errorf("remove member: %w", err)
	}
	s.users.Delete(memberUID)

	msg := amqp.NewEventMessage(amqp.EventMemberRemoved)
	msg.FamilyID = familyID
	msg.ActorUID = actorUID
	msg.MemberUID = memberUID
	publishEvent(ctx, s.events, msg)

	slog.InfoContext(ctx, "Member removed",
		"family_id", familyID,
		"uid", memberUID)
	return core.OK("Anggota berhasil dihapus dari keluarga"), nil
}

// familyForManager loads the family and checks that the actor is a
// member allowed to manage the roster.
func (s *DirectoryService) familyForManager(ctx context.Context, familyID, actorUID string) (core.Family, core.Result, error) {
	f, err := s.GetFamily(ctx, familyID)
	if errors.Is(err, docstore.ErrNotFound) {
		return core.Family{}, core.Fail(core.FailNotFound, "Keluarga tidak ditemukan"), nil
	}
	if err != nil {
		return core.Family{}, core.Result{}, err
	}

	actor, ok := f.Members[actorUID]
	if !ok || !roles.CanManageMembers(actor.Role) {
		return core.Family{}, core.Fail(core.FailNotAuthorized, "Anda tidak punya izin untuk mengelola anggota"), nil
	}
	return f, core.OK(""), nil
}

func (s *DirectoryService) getUser(ctx context.Context, uid string) (core.User, error) {
	doc, err := s.store.Get(ctx, docstore.Users, uid)
	if err != nil {
		return core.User{}, err
	}
	var u core.User
	if err := docstore.Decode(doc, &u); err != nil {
		return core.User{}, fmt.Errorf("decode user %s: %w", uid, err)
	}
	return u, nil
}

func (s *DirectoryService) cachedUser(ctx context.Context, uid string) (core.User, error) {
	if u, ok := s.users.Get(uid); ok {
		return u, nil
	}
	u, err := s.getUser(ctx, uid)
	if err != nil {
		return core.User{}, err
	}
	s.users.Set(uid, u)
	return u, nil
}

// encodeMembers renders the membership map in its stored document form.
func encodeMembers(members map[string]core.Membership) map[string]any {
	out := make(map[string]any, len(members))
	for uid, m := range members {
		out[uid] = map[string]any{
			"role":     string(m.Role),
			"joinedAt": m.JoinedAt.Format(time.RFC3339Nano),
		}
	}
	return out
}
