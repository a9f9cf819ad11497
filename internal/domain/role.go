package domain

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleWaiter    Role = "WAITER"
	RoleCashier   Role = "CASHIER"
	RoleBartender Role = "BARTENDER"
	RoleAdmin     Role = "ADMIN"
	// RoleDenied marks an identity that has no access to the restaurant.
	RoleDenied Role = "DENIED"
)

var roles = []Role{RoleWaiter, RoleCashier, RoleBartender, RoleAdmin, RoleDenied}

// ParseRole maps an incoming role label onto the closed role set.
// Anything unrecognised is treated as RoleDenied.
func ParseRole(s string) Role {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range roles {
		if r == known {
			return r
		}
	}
	return RoleDenied
}

func (r Role) IsStaff() bool {
	return r != RoleDenied && r != ""
}

// StaffIdentity is the verified identity attached to a request or connection.
type StaffIdentity struct {
	ID    string
	Role  Role
	Zones []string
}

func (s StaffIdentity) IsAdmin() bool {
	return s.Role == RoleAdmin
}

func (s StaffIdentity) InZone(zone string) bool {
	for _, z := range s.Zones {
		if z == zone {
			return true
		}
	}
	return false
}

// Permission is what a role may do regardless of an order's current status.
type Permission struct {
	Allowed  StatusSet
	AllZones bool
}

// Policy maps every role onto its permission. It is immutable once built.
type Policy struct {
	permissions map[Role]Permission
}

// NewPolicy validates a role → statuses table. ADMIN always receives every
// status and every zone; roles missing from the table get no permissions.
func NewPolicy(table map[Role][]Status) (*Policy, error) {
	p := &Policy{permissions: make(map[Role]Permission, len(roles))}
	for _, r := range roles {
		p.permissions[r] = Permission{Allowed: NewStatusSet()}
	}

	for r, statuses := range table {
		known := false
		for _, candidate := range roles {
			if candidate == r {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown role %q in policy", r)
		}
		for _, s := range statuses {
			if !s.Valid() {
				return nil, fmt.Errorf("role %s: unknown status %q", r, s)
			}
		}
		if r == RoleDenied && len(statuses) > 0 {
			return nil, fmt.Errorf("role %s cannot be granted statuses", r)
		}
		p.permissions[r] = Permission{Allowed: NewStatusSet(statuses...)}
	}

	p.permissions[RoleAdmin] = Permission{Allowed: NewStatusSet(AllStatuses...), AllZones: true}
	return p, nil
}

// DefaultPolicy is the permission table used when configuration does not override it.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(map[Role][]Status{
		RoleWaiter:    {StatusConfirmed, StatusDelivered},
		RoleCashier:   {StatusConfirmed, StatusCancelled},
		RoleBartender: {StatusPreparing, StatusReady},
	})
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Policy) Permission(r Role) Permission {
	perm, ok := p.permissions[r]
	if !ok {
		return p.permissions[RoleDenied]
	}
	return perm
}

// AllowedNext returns the statuses role may move an order to from current.
func (p *Policy) AllowedNext(current Status, r Role) StatusSet {
	return current.Successors().Intersect(p.Permission(r).Allowed)
}

// Authorize decides whether actor may move an order located in orderZone
// from current to target. orderZone is empty for unrestricted locations.
func (p *Policy) Authorize(current, target Status, actor StaffIdentity, orderZone string) error {
	if current.IsTerminal() {
		return NewTransitionError(CodeTerminalOrder,
			fmt.Sprintf("order is %s and can no longer change", current))
	}
	if !current.CanTransitionTo(target) {
		return NewTransitionError(CodeInvalidTransition,
			fmt.Sprintf("cannot move order from %s to %s", current, target))
	}

	perm := p.Permission(actor.Role)
	if !perm.Allowed.Has(target) {
		return NewTransitionError(CodeForbidden,
			fmt.Sprintf("role %s may not set orders to %s", actor.Role, target))
	}
	if orderZone != "" && !perm.AllZones && !actor.InZone(orderZone) {
		return NewTransitionError(CodeForbidden,
			fmt.Sprintf("staff %s is not assigned to zone %s", actor.ID, orderZone))
	}
	return nil
}
