package events

import (
	"errors"
	"fmt"
)

// ScopeKind is the routing class of a Scope.
type ScopeKind string

const (
	ScopeGlobal ScopeKind = "global"
	ScopeOrg    ScopeKind = "org"
	ScopeUser   ScopeKind = "user"
)

// Scope is the routing key shared by subscriptions and envelopes.
// A user scope always carries the org the user belongs to.
type Scope struct {
	Kind   ScopeKind `json:"kind"`
	OrgID  string    `json:"orgId,omitempty"`
	UserID string    `json:"userId,omitempty"`
}

func Global() Scope { return Scope{Kind: ScopeGlobal} }

func Org(orgID string) Scope { return Scope{Kind: ScopeOrg, OrgID: orgID} }

func User(orgID, userID string) Scope {
	return Scope{Kind: ScopeUser, OrgID: orgID, UserID: userID}
}

var ErrInvalidScope = errors.New("invalid scope")

// Validate checks that the ids required by the kind are present.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeGlobal:
		return nil
	case ScopeOrg:
		if s.OrgID == "" {
			return fmt.Errorf("%w: org scope without org id", ErrInvalidScope)
		}
		return nil
	case ScopeUser:
		if s.OrgID == "" || s.UserID == "" {
			return fmt.Errorf("%w: user scope needs org and user id", ErrInvalidScope)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown kind %q", ErrInvalidScope, s.Kind)
}

// Receives reports whether a subscription resolved to s is allowed to see
// an envelope published with scope e.
func (s Scope) Receives(e Scope) bool {
	switch s.Kind {
	case ScopeGlobal:
		return true
	case ScopeOrg:
		switch e.Kind {
		case ScopeGlobal:
			return true
		case ScopeOrg, ScopeUser:
			return e.OrgID == s.OrgID
		}
	case ScopeUser:
		switch e.Kind {
		case ScopeGlobal:
			return true
		case ScopeOrg:
			return e.OrgID == s.OrgID
		case ScopeUser:
			return e.OrgID == s.OrgID && e.UserID == s.UserID
		}
	}
	return false
}

// Key is a stable map key for s.
func (s Scope) Key() string {
	switch s.Kind {
	case ScopeOrg:
		return "org:" + s.OrgID
	case ScopeUser:
		return "user:" + s.OrgID + ":" + s.UserID
	}
	return "global"
}

func (s Scope) String() string { return s.Key() }
