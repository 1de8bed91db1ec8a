// Package auth decides which chat actors may use the desk and what they
// may do.
package auth

import "strings"

// Role is an actor's permission level.
type Role string

const (
	RoleNone     Role = ""
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// CanRead reports whether the role may list, search and view accounts.
func (r Role) CanRead() bool { return r == RoleOperator || r == RoleAdmin }

// CanWrite reports whether the role may create, edit and mutate accounts.
func (r Role) CanWrite() bool { return r == RoleAdmin }

// Policy maps actor ids to roles. Admin membership wins when an id is in
// both lists.
type Policy struct {
	admins    map[string]bool
	operators map[string]bool
	open      bool
}

// NewPolicy builds a policy from configured id lists.
func NewPolicy(adminIDs, operatorIDs []string) *Policy {
	p := &Policy{admins: set(adminIDs), operators: set(operatorIDs)}
	return p
}

// Open returns a policy that treats every actor as an admin. It exists for
// local development with no ids configured.
func Open() *Policy {
	return &Policy{open: true}
}

// IsOpen reports whether the policy admits everyone.
func (p *Policy) IsOpen() bool { return p.open }

func set(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			m[id] = true
		}
	}
	return m
}

// Role returns the actor's role, RoleNone for strangers.
func (p *Policy) Role(actor string) Role {
	actor = strings.TrimSpace(actor)
	switch {
	case actor == "":
		return RoleNone
	case p.open, p.admins[actor]:
		return RoleAdmin
	case p.operators[actor]:
		return RoleOperator
	}
	return RoleNone
}

// IsAuthorized reports whether the actor may use the desk at all.
func (p *Policy) IsAuthorized(actor string) bool {
	return p.Role(actor) != RoleNone
}
