// Package header reads the caller identity that the upstream auth gateway
// attaches to every request.
package header

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/nontawat9304/mali-chat/pkg/memory"
)

const (
	// Identity carries the authenticated user id. Absent means anonymous.
	Identity = "X-Mali-Identity"

	// Role carries the caller's role. RoleAdmin marks a privileged caller.
	Role = "X-Mali-Role"

	RoleAdmin = "admin"

	// ScopeGlobal is the request value that asks for a global write.
	ScopeGlobal = "global"
)

// Caller builds the memory caller for c. scope is the request's own scope
// field; "global" asks for a global write, which only admins get.
func Caller(c *fiber.Ctx, scope string) memory.Caller {
	return memory.Caller{
		Identity:      memory.Identity(strings.TrimSpace(c.Get(Identity))),
		Privileged:    strings.EqualFold(strings.TrimSpace(c.Get(Role)), RoleAdmin),
		RequestGlobal: strings.EqualFold(strings.TrimSpace(scope), ScopeGlobal),
	}
}
