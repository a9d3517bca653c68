package store

import (
	"slices"
	"strings"
)

// BadgeOwner is the protected badge held only by the first registered identity.
const BadgeOwner = "owner"

var (
	// OwnerBadges is assigned to the first identity ever created.
	OwnerBadges = []string{BadgeOwner, "dev"}
	// DefaultBadges is assigned to every other identity.
	DefaultBadges = []string{"new"}
)

// CheckMutableBadge validates a badge named in a grant or revoke.
// Every store implementation calls it before mutating a badge set.
func CheckMutableBadge(badge string) error {
	b := strings.TrimSpace(badge)
	if b == "" || len(b) > 32 {
		return ErrInvalidBadge
	}
	if strings.EqualFold(b, BadgeOwner) {
		return ErrProtectedBadge
	}
	return nil
}

// HasBadge reports whether badges contains badge.
func HasBadge(badges []string, badge string) bool {
	return slices.Contains(badges, badge)
}

// WithBadge returns badges with badge appended unless already present.
func WithBadge(badges []string, badge string) []string {
	if HasBadge(badges, badge) {
		return slices.Clone(badges)
	}
	return append(slices.Clone(badges), badge)
}

// WithoutBadge returns badges with every occurrence of badge removed.
func WithoutBadge(badges []string, badge string) []string {
	return slices.DeleteFunc(slices.Clone(badges), func(b string) bool { return b == badge })
}
