// Package sanitize maps organization and domain names to filesystem-safe
// identifiers used as tenant storage directory names.
//
// Sanitized names are lowercase, hold only letters, digits, combining marks,
// '_' and '-' in any script, are at most 64 bytes, and never contain "__",
// which is reserved as the separator between organization and user in a
// storage directory name.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxNameLength is the maximum length of a sanitized name.
	MaxNameLength = 64

	// HashSuffixLength is the length of the hash suffix added to truncated names.
	// Format: _<8-char-hash> = 9 characters total
	HashSuffixLength = 9

	// DefaultName is used when sanitization produces an empty result.
	DefaultName = "default"

	// Separator joins the sanitized organization and the user id in a
	// storage directory name.
	Separator = "__"
)

// Name sanitizes an organization or domain name.
//
// Rules applied:
//   - Converts to lowercase
//   - Turns each run of whitespace into a single underscore
//   - Keeps letters, digits and combining marks of any script, underscore
//     and hyphen; drops everything else
//   - Collapses multiple underscores
//   - Trims leading/trailing underscores
//   - Truncates to MaxNameLength bytes, on a rune boundary, with a hash
//     suffix if too long
//   - Returns DefaultName if result would be empty
//
// Name is deterministic and idempotent: Name(Name(s)) == Name(s).
//
// Examples:
//
//	"Acme Corp!"  -> "acme_corp"
//	"Acme_Corp"   -> "acme_corp"
//	"Agri-Tech"   -> "agri-tech"
//	"சுனில் கடை"  -> "சுனில்_கடை"
//	"" or "!!!"   -> "default"
func Name(s string) string {
	if s == "" {
		return DefaultName
	}

	s = strings.ToLower(s)

	var result strings.Builder
	result.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				result.WriteRune('_')
			}
			inSpace = true
			continue
		}
		inSpace = false
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_' || r == '-' {
			result.WriteRune(r)
		}
	}

	sanitized := result.String()
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")

	if sanitized == "" {
		return DefaultName
	}

	if len(sanitized) > MaxNameLength {
		sanitized = truncateWithHash(sanitized)
	}

	return sanitized
}

// truncateWithHash truncates a string to fit within MaxNameLength,
// appending a hash suffix to preserve uniqueness.
//
// Format: <truncated>_<8-char-hash>
func truncateWithHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	hashSuffix := "_" + hex.EncodeToString(hash[:])[:8]

	cut := MaxNameLength - HashSuffixLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	truncated := strings.TrimRight(s[:cut], "_")

	return truncated + hashSuffix
}

// StoreDirName builds the per-tenant directory name from an organization
// and a user id.
//
// Format: {sanitized_org}__{user_id}
// Example: StoreDirName("Acme Corp", "u1") -> "acme_corp__u1"
//
// The user id is expected to have passed ValidateUserID.
func StoreDirName(org, userID string) string {
	return Name(org) + Separator + userID
}

// SplitStoreDirName is the inverse of StoreDirName. It reports false when
// dir was not produced by StoreDirName.
func SplitStoreDirName(dir string) (org, userID string, ok bool) {
	org, userID, ok = strings.Cut(dir, Separator)
	if !ok || org == "" || userID == "" {
		return "", "", false
	}
	return org, userID, true
}
