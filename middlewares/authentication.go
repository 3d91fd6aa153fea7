// SPDX-License-Identifier: GPL-3.0-only

package middlewares

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"accfleet-server/commons"
	"accfleet-server/crypto"

	"github.com/labstack/echo/v4"
)

// AdminAuthMiddleware guards the management API with a single operator
// bearer token. The token is compared against ADMIN_API_KEY_HASH (argon2id)
// when set, otherwise against the plain ADMIN_API_KEY. When neither is
// configured the API runs open, with a warning at startup.
func AdminAuthMiddleware() func(echo.HandlerFunc) echo.HandlerFunc {
	keyHash := commons.GetEnv("ADMIN_API_KEY_HASH")
	plainKey := commons.GetEnv("ADMIN_API_KEY")
	if keyHash == "" && plainKey == "" {
		commons.Logger.Warn("ADMIN_API_KEY and ADMIN_API_KEY_HASH are both unset, API is unauthenticated")
	}
	cryptoInstance := crypto.NewCrypto()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if keyHash == "" && plainKey == "" {
				return next(c)
			}

			logger := c.Logger()

			authHeader := c.Request().Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				logger.Error("Authorization header missing or invalid.")
				return &echo.HTTPError{
					Code:    http.StatusUnauthorized,
					Message: "Bearer token is required",
				}
			}

			if keyHash != "" {
				if err := cryptoInstance.VerifyPassword(token, keyHash); err == nil {
					return next(c)
				}
			} else if subtle.ConstantTimeCompare([]byte(token), []byte(plainKey)) == 1 {
				return next(c)
			}

			logger.Error("Invalid admin token.")
			return &echo.HTTPError{
				Code:    http.StatusUnauthorized,
				Message: "Invalid or expired token",
			}
		}
	}
}
