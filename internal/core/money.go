// Package core holds the domain model shared by every service: users,
// families and their membership roster, the monetary containers (wallets
// and budgets), and the Rupiah parsing rules.
package core

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
)

// Money serializes as a bare integer so stored documents keep plain
// numeric balances.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(m.Units, 10)), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	m.Units = v
	return nil
}

// ParseRupiah converts a free-form amount string into whole Rupiah.
//
// Grouping characters (dots, commas, spaces) are stripped, so "50.000",
// "50,000" and "50000" all parse to 50000. The Rupiah has no fractional
// subunit; the remaining digits are the amount. Empty input or any
// non-digit residue is an error, as is a non-positive result.
func ParseRupiah(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.' || r == ',' || r == ' ':
			// grouping separator, skip
		default:
			return 0, ErrInvalidAmount
		}
	}
	digits := b.String()
	if digits == "" {
		return 0, ErrInvalidAmount
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if v <= 0 {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// FormatRupiah renders an amount with Indonesian thousand grouping,
// e.g. 50000 -> "Rp 50.000".
func FormatRupiah(units int64) string {
	neg := units < 0
	if neg {
		units = -units
	}
	s := strconv.FormatInt(units, 10)
	var groups []string
	for len(s) > 3 {
		groups = append([]string{s[len(s)-3:]}, groups...)
		s = s[:len(s)-3]
	}
	groups = append([]string{s}, groups...)
	out := "Rp " + strings.Join(groups, ".")
	if neg {
		return "-" + out
	}
	return out
}

// Rupiah returns the amount as whole Rupiah for display purposes.
func (m Money) Rupiah() int64 {
	return m.Units
}

func (m Money) String() string {
	return FormatRupiah(m.Units)
}
