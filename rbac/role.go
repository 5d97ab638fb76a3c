package rbac

import (
	"errors"
	"strings"
)

// Role is a closed enumeration. The numeric value is the privilege ordinal.
type Role int

const (
	RoleUnknown Role = iota
	RoleEditor
	RoleContentManager
	RoleAdmin
)

// ErrUnknownRole is returned by ParseRole for values outside the enumeration.
var ErrUnknownRole = errors.New("unknown role")

var roleNames = map[Role]string{
	RoleEditor:         "EDITOR",
	RoleContentManager: "CONTENT_MANAGER",
	RoleAdmin:          "ADMIN",
}

// Roles lists the defined roles in ascending privilege order.
func Roles() []Role {
	return []Role{RoleEditor, RoleContentManager, RoleAdmin}
}

// ParseRole maps a stored role name to a Role. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return RoleUnknown, ErrUnknownRole
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid reports whether r is a defined role.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// AtLeast reports whether r is a defined role with privilege >= min.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && min.Valid() && r >= min
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, ErrUnknownRole
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
