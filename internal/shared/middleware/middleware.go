package middleware

import (
	"net/http"
	"strings"
	"time"

	"eventdraw/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

// Roles carried in the access token
const (
	RoleUser      = "USER"
	RoleOrganizer = "ORGANIZER"
)

// Context keys set by the auth middleware
const (
	ContextUserID   = "user_id"
	ContextUserRole = "user_role"
)

// JWTAuth rejects requests without a valid HMAC-signed access token and puts the
// caller's id and role on the context.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.RespondError(c, http.StatusUnauthorized, "Authorization header is required", nil)
			return
		}

		claims, err := parseBearer(authHeader, secret)
		if err != nil {
			response.RespondError(c, http.StatusUnauthorized, err.Error(), nil)
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalAuth sets the identity when a valid token is present and lets everyone through
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			if claims, err := parseBearer(authHeader, secret); err == nil {
				setIdentity(c, claims)
			}
		}
		c.Next()
	}
}

// RequireRoles checks the caller holds one of roles. Must run after JWTAuth.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole := c.GetString(ContextUserRole)
		if userRole == "" {
			response.RespondError(c, http.StatusUnauthorized, "user role not found in context", nil)
			return
		}

		for _, role := range roles {
			if userRole == role {
				c.Next()
				return
			}
		}

		response.RespondError(c, http.StatusForbidden, "Insufficient permissions", nil)
	}
}

// RequireOrganizer is RequireRoles(RoleOrganizer)
func RequireOrganizer() gin.HandlerFunc {
	return RequireRoles(RoleOrganizer)
}

// IssueAccessToken signs an access token in the shape JWTAuth accepts. Identity is
// owned elsewhere; this exists for local tooling and tests.
func IssueAccessToken(secret, userID, role string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"type":    "access",
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

type authError string

func (e authError) Error() string { return string(e) }

const (
	errBadFormat    authError = "authorization header format must be Bearer {token}"
	errBadToken     authError = "invalid or expired token"
	errBadTokenType authError = "invalid token type"
	errNoSubject    authError = "token has no user_id"
)

func parseBearer(header, secret string) (jwt.MapClaims, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, errBadFormat
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, errBadToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errBadToken
	}
	if tokenType, ok := claims["type"]; !ok || tokenType != "access" {
		return nil, errBadTokenType
	}
	if id, _ := claims["user_id"].(string); id == "" {
		return nil, errNoSubject
	}
	return claims, nil
}

func setIdentity(c *gin.Context, claims jwt.MapClaims) {
	userID, _ := claims["user_id"].(string)
	role, _ := claims["role"].(string)
	c.Set(ContextUserID, userID)
	c.Set(ContextUserRole, role)
}
