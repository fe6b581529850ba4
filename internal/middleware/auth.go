package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/athlia-api/internal/metrics"
	"github.com/iliyamo/athlia-api/internal/utils"
)

// Context keys set by TokenAuth and RequireAccount.
const (
	ContextAccountID = "account_id"
	ContextAccount   = "account"
)

// TokenAuth returns an Echo middleware that validates a Bearer access token
// and stores its subject under ContextAccountID. Refresh tokens are rejected.
// The response never says why a token was refused.
func TokenAuth(tokens *utils.TokenService, m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Missing bearer token"})
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			payload, ok := tokens.ParseKind(raw, utils.TokenAccess)
			m.RecordTokenVerdict(ok)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid token"})
			}

			c.Set(ContextAccountID, payload.Sub)
			return next(c)
		}
	}
}

// AccountID returns the authenticated subject, or "" when TokenAuth did not
// run for this request.
func AccountID(c echo.Context) string {
	if s, ok := c.Get(ContextAccountID).(string); ok {
		return s
	}
	return ""
}
