package models

import (
	"fmt"
	"time"
)

// ScopedIdentity is short-lived credential material for one call chain.
// It is a plain value: never persisted, never explicitly destroyed.
type ScopedIdentity struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string

	// Zero when the identity is the execution identity itself
	Expires time.Time
}

// Delegated reports whether the identity came out of a role exchange.
func (s ScopedIdentity) Delegated() bool {
	return !s.Expires.IsZero()
}

// String never prints secrets.
func (s ScopedIdentity) String() string {
	key := s.AccessKeyID
	if len(key) > 4 {
		key = key[:4] + "****"
	}
	return fmt.Sprintf("ScopedIdentity{key=%s region=%s expires=%s}", key, s.Region, s.Expires.Format(time.RFC3339))
}
