// Package tenant defines tenant identity: the (organization, user, domain)
// key that selects one retrieval store, and the profile attached to results.
package tenant

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/tenantrag/internal/sanitize"
)

// DefaultDomain is used when a key carries no domain.
const DefaultDomain = "general"

// ErrInvalidKey is returned for keys without an organization or user id,
// or with a user id that cannot be stored safely.
var ErrInvalidKey = errors.New("invalid tenant key")

// Key identifies exactly one tenant store.
type Key struct {
	Organization string `json:"organization"`
	UserID       string `json:"user_id"`
	Domain       string `json:"domain,omitempty"`
}

// NewKey builds a key, defaulting the domain.
func NewKey(org, userID, domain string) Key {
	return Key{Organization: org, UserID: userID, Domain: domain}
}

// Validate rejects keys that must never reach storage.
func (k Key) Validate() error {
	if strings.TrimSpace(k.Organization) == "" {
		return fmt.Errorf("%w: organization is required", ErrInvalidKey)
	}
	if strings.TrimSpace(k.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidKey)
	}
	if err := sanitize.ValidateUserID(k.UserID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return nil
}

// Normalized returns the key with organization and domain sanitized.
// Two keys that differ only cosmetically normalize to the same value.
func (k Key) Normalized() Key {
	domain := k.Domain
	if strings.TrimSpace(domain) == "" {
		domain = DefaultDomain
	}
	return Key{
		Organization: sanitize.Name(k.Organization),
		UserID:       k.UserID,
		Domain:       sanitize.Name(domain),
	}
}

// DirName is the per-tenant directory name below the domain directory.
func (k Key) DirName() string {
	return sanitize.StoreDirName(k.Organization, k.UserID)
}

// String renders the normalized key as domain/org__user.
func (k Key) String() string {
	n := k.Normalized()
	return n.Domain + "/" + n.DirName()
}
