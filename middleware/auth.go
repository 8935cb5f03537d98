package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"
	"github.com/meinhoongagan/clinic-booking/utils"
)

const claimsKey = "claims"

// Claims is what an access token says about its bearer. Roles are not in
// the token; they are loaded per request so revocations apply at once.
type Claims struct {
	UserID         uint
	OrganizationID uint
	SuperAdmin     bool
}

// Protected validates the bearer token and stores its Claims in the context.
func Protected(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:   []byte(secret),
		ErrorHandler: jwtError,
		SuccessHandler: func(c *fiber.Ctx) error {
			token, ok := c.Locals("user").(*jwt.Token)
			if !ok {
				return unauthorized(c, "Invalid token")
			}
			mapClaims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return unauthorized(c, "Invalid token claims")
			}

			userID, err := extractUint(mapClaims, "id")
			if err != nil {
				return unauthorized(c, "Invalid user ID in token")
			}
			orgID, err := extractUint(mapClaims, "org")
			if err != nil {
				return unauthorized(c, "Invalid organization in token")
			}
			superAdmin, _ := mapClaims["super_admin"].(bool)

			c.Locals(claimsKey, Claims{UserID: userID, OrganizationID: orgID, SuperAdmin: superAdmin})
			return c.Next()
		},
	})
}

// ClaimsFrom returns the claims Protected stored.
func ClaimsFrom(c *fiber.Ctx) (Claims, bool) {
	claims, ok := c.Locals(claimsKey).(Claims)
	return claims, ok
}

// IssueToken signs an access token for claims valid for ttl.
func IssueToken(secret string, claims Claims, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":          claims.UserID,
		"org":         claims.OrganizationID,
		"super_admin": claims.SuperAdmin,
		"exp":         time.Now().Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

// extractUint handles the formats a numeric claim arrives in.
func extractUint(claims jwt.MapClaims, key string) (uint, error) {
	switch v := claims[key].(type) {
	case nil:
		return 0, fmt.Errorf("no %s found in claims", key)
	case float64:
		if v < 0 {
			return 0, fmt.Errorf("negative %s", key)
		}
		return uint(v), nil
	case string:
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("could not parse %s: %v", key, err)
		}
		return uint(parsed), nil
	default:
		return 0, fmt.Errorf("unsupported %s type: %T", key, v)
	}
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(utils.ErrorResponse{
		Message: "Unauthorized",
		Error:   message,
	})
}

func jwtError(c *fiber.Ctx, err error) error {
	return unauthorized(c, "Invalid or expired token")
}
