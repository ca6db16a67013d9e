package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/crestline-io/helpdesk-service/internal/domain"
	apperrors "github.com/crestline-io/helpdesk-service/pkg/util"
)

// RequireAdmin ensures the caller holds the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.User.Role != domain.RoleAdmin {
			return apperrors.NewForbidden("access denied, admin role required")
		}
		return c.Next()
	}
}
