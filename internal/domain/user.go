package domain

import (
	"strings"
	"time"
)

// Role is what a user is allowed to do.
type Role string

const (
	RoleAdventurer Role = "adventurer"
	RoleCoach      Role = "coach"
	RoleAdmin      Role = "admin"
)

// ParseRole parses a role name, defaulting to adventurer.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return RoleAdventurer, nil
	case RoleAdventurer, RoleCoach, RoleAdmin:
		return r, nil
	default:
		return "", Validationf("unknown role %q", s)
	}
}

// User is an account. Only adventurers carry progress and quests.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
