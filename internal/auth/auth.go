// Package auth turns an operator name and role into the capability
// predicates the session core consumes.
//
// Credentials are not handled here. The core never inspects a role beyond
// the three capabilities of [Capabilities].
package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownRole is returned when a role has no entry in the table.
var ErrUnknownRole = errors.New("unknown role")

// Role is a role name.
type Role string

// Built-in roles.
const (
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
	RoleOperator  Role = "operator"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Capabilities are the predicates granted to a role.
type Capabilities struct {
	NavigateBack bool `mapstructure:"navigate_back" yaml:"navigate_back" json:"navigate_back"`
	EditResults  bool `mapstructure:"edit_results" yaml:"edit_results" json:"edit_results"`
	Export       bool `mapstructure:"export" yaml:"export" json:"export"`
}

// Principal is an operator acting under a role.
type Principal struct {
	Name string
	Role Role
	Caps Capabilities
}

// RoleName returns the principal's role.
func (p Principal) RoleName() string { return string(p.Role) }

// OperatorName returns the principal's name.
func (p Principal) OperatorName() string { return p.Name }

// CanNavigateBack reports whether the principal may move to earlier steps.
func (p Principal) CanNavigateBack() bool { return p.Caps.NavigateBack }

// CanEditResults reports whether the principal may re-record completed steps.
func (p Principal) CanEditResults() bool { return p.Caps.EditResults }

// CanExport reports whether the principal may export session reports.
func (p Principal) CanExport() bool { return p.Caps.Export }

// Table maps roles to their capabilities.
type Table map[Role]Capabilities

// DefaultTable grants everything to admins and developers and nothing to
// operators.
func DefaultTable() Table {
	all := Capabilities{NavigateBack: true, EditResults: true, Export: true}
	return Table{
		RoleAdmin:     all,
		RoleDeveloper: all,
		RoleOperator:  {},
	}
}

// Resolve builds the principal for name acting as role. Role lookup ignores
// case.
func (t Table) Resolve(name string, role Role) (Principal, error) {
	role = Role(strings.ToLower(strings.TrimSpace(string(role))))
	caps, ok := t[role]
	if !ok {
		return Principal{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownRole, role, strings.Join(t.Roles(), ", "))
	}
	return Principal{Name: name, Role: role, Caps: caps}, nil
}

// Roles returns the role names in the table, sorted.
func (t Table) Roles() []string {
	out := make([]string, 0, len(t))
	for r := range t {
		out = append(out, string(r))
	}
	sort.Strings(out)
	return out
}
