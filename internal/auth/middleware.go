package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/crestline-io/helpdesk-service/internal/domain"
	"github.com/crestline-io/helpdesk-service/internal/policy"
	"github.com/crestline-io/helpdesk-service/internal/repository"
	apperrors "github.com/crestline-io/helpdesk-service/pkg/util"
)

// HeaderToken is the custom header carrying the bearer token.
const HeaderToken = "X-Auth-Token"

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	User *domain.User
}

// Actor converts the principal into a policy actor.
func (p *Principal) Actor() policy.Actor {
	return policy.Actor{ID: p.User.ID, Role: p.User.Role}
}

// Middleware validates tokens from the X-Auth-Token header and loads the
// current user. The role is read from the directory record, not the token
// claims, so an admin role change takes effect on the next request.
type Middleware struct {
	tokens *TokenManager
	users  repository.UserRepository
}

// NewMiddleware constructs middleware.
func NewMiddleware(tokens *TokenManager, users repository.UserRepository) *Middleware {
	return &Middleware{tokens: tokens, users: users}
}

// Handle enforces authentication for protected routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	token := c.Get(HeaderToken)
	if token == "" {
		return apperrors.NewUnauthorized("no token, authorization denied")
	}

	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return apperrors.NewUnauthorized("token is not valid")
	}

	user, err := m.users.GetByID(c.Context(), claims.UserID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.NewUnauthorized("user not found")
		}
		return apperrors.MapError(err)
	}

	c.Locals(principalKey, &Principal{User: user})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
