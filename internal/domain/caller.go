package domain

import "strings"

// Role is the capability tag attached to an authenticated caller.
type Role string

const (
	RoleClient        Role = "client"
	RoleAdministrator Role = "administrator"
)

// ParseRole accepts the english tags and the ones issued by the users service.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "client", "cliente":
		return RoleClient, true
	case "administrator", "administrador", "admin":
		return RoleAdministrator, true
	}
	return "", false
}

// Caller is the authenticated identity every core operation receives.
type Caller struct {
	ID    string
	Email string
	Role  Role
	// Credential is the raw bearer token, forwarded on cross-service calls.
	Credential string
	// Internal is set when the request carried a valid service key.
	Internal bool
}

func (c Caller) IsAdministrator() bool {
	return c.Role == RoleAdministrator
}

func (c Caller) IsClient() bool {
	return c.Role == RoleClient
}

// HasRole reports whether the caller holds one of roles.
func (c Caller) HasRole(roles ...Role) bool {
	for _, role := range roles {
		if c.Role == role {
			return true
		}
	}
	return false
}
