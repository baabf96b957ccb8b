package http

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const ownerLocal = "owner"

// NewOwnerMiddleware resolves the calling principal. With a secret configured the
// owner is the subject of an HS256 bearer token; without one the edge is trusted
// to forward it in X-User-Id.
func NewOwnerMiddleware(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var owner string
		if jwtSecret == "" {
			owner = strings.TrimSpace(c.Get("X-User-Id"))
		} else {
			subject, err := subjectFromBearer(c.Get("Authorization"), jwtSecret)
			if err != nil {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: " + err.Error()})
			}
			owner = subject
		}

		if owner == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: missed user"})
		}

		c.Locals(ownerLocal, owner)
		return c.Next()
	}
}

func subjectFromBearer(authHeader string, secret string) (string, error) {
	if authHeader == "" {
		return "", fmt.Errorf("missed header")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", fmt.Errorf("invalid header format")
	}

	token, err := jwt.ParseWithClaims(parts[1], &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("token has no subject")
	}

	return subject, nil
}

func ownerFrom(c *fiber.Ctx) string {
	owner, _ := c.Locals(ownerLocal).(string)
	return owner
}
