package core

import (
	"errors"
	"strings"
	"time"
)

const (
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleUser       Role = "user"
	RoleMember     Role = "member"
	RoleViewer     Role = "viewer"
)

const (
	Income  TransactionKind = "income"
	Expense TransactionKind = "expense"
)

type (
	// Role is a privilege level. The global fallback role on a User is one of
	// superadmin|admin|user; family-scoped roles are superadmin|admin|member|viewer.
	Role string

	TransactionKind string

	// Money is an amount in whole Rupiah. The Rupiah has no fractional
	// subunit, so Units is the smallest representable amount.
	Money struct {
		Units int64
	}

	// User is the identity record created on first successful sign-in.
	User struct {
		UID         string    `json:"uid"`
		Email       string    `json:"email"`
		DisplayName string    `json:"displayName"`
		PhotoURL    string    `json:"photoURL,omitempty"`
		Role        Role      `json:"role"`
		FamilyID    string    `json:"familyId,omitempty"`
		CreatedAt   time.Time `json:"createdAt"`
		UpdatedAt   time.Time `json:"updatedAt"`
	}

	// Membership is the (role, joinedAt) pair nested in a Family's members map.
	Membership struct {
		Role     Role      `json:"role"`
		JoinedAt time.Time `json:"joinedAt"`
	}

	FamilySettings struct {
		Currency string `json:"currency"`
		Timezone string `json:"timezone"`
	}

	// Family is a shared household unit. The creator is always present in
	// Members with role superadmin at creation time.
	Family struct {
		ID        string                `json:"id"`
		Name      string                `json:"name"`
		CreatedBy string                `json:"createdBy"`
		Settings  FamilySettings        `json:"settings"`
		Members   map[string]Membership `json:"members"`
		CreatedAt time.Time             `json:"createdAt"`
		UpdatedAt time.Time             `json:"updatedAt"`
	}

	// Wallet is a liquid funds container.
	Wallet struct {
		ID          string `json:"id"`
		FamilyID    string `json:"familyId"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Amount      Money  `json:"amount"`
	}

	// Budget is an earmarked funds container with an optional spending limit.
	Budget struct {
		ID          string `json:"id"`
		FamilyID    string `json:"familyId"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Amount      Money  `json:"amount"`
		Limit       Money  `json:"limit"`
	}

	// Transaction is a daily income or expense entry against a wallet or budget.
	Transaction struct {
		ID          string          `json:"id"`
		FamilyID    string          `json:"familyId"`
		Kind        TransactionKind `json:"type"`
		Amount      Money           `json:"amount"`
		Description string          `json:"description,omitempty"`
		TargetID    string          `json:"targetId"`
		Date        time.Time       `json:"date"`
		CreatedBy   string          `json:"createdBy"`
		CreatedAt   time.Time       `json:"createdAt"`
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidRole   = errors.New("invalid role")
	ErrEmptyName     = errors.New("empty name")
	ErrEmptyEmail    = errors.New("empty email")
)

// FamilyRoles are the roles assignable inside a family, in descending privilege.
var FamilyRoles = []Role{RoleSuperadmin, RoleAdmin, RoleMember, RoleViewer}

// ValidFamilyRole reports whether r can be assigned to a family member.
func (r Role) ValidFamilyRole() bool {
	switch r {
	case RoleSuperadmin, RoleAdmin, RoleMember, RoleViewer:
		return true
	default:
		return false
	}
}

func (k TransactionKind) Valid() bool {
	return k == Income || k == Expense
}

func (m Money) Validate() error {
	if m.Units <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (u User) Validate() error {
	if strings.TrimSpace(u.UID) == "" {
		return errors.New("empty uid")
	}
	if strings.TrimSpace(u.Email) == "" {
		return ErrEmptyEmail
	}
	return nil
}

func (f Family) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return ErrEmptyName
	}
	if len(f.Members) == 0 {
		return errors.New("family has no members")
	}
	if f.CreatedBy != "" {
		if _, ok := f.Members[f.CreatedBy]; !ok {
			return errors.New("creator missing from members")
		}
	}
	for uid, m := range f.Members {
		if strings.TrimSpace(uid) == "" {
			return errors.New("membership with empty uid")
		}
		if !m.Role.ValidFamilyRole() {
			return ErrInvalidRole
		}
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Kind.Valid() {
		return errors.New("invalid transaction type")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if strings.TrimSpace(t.TargetID) == "" {
		return errors.New("empty target")
	}
	if t.Date.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}
