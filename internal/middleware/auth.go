package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gowork_messaging/internal/domain"
	"gowork_messaging/internal/repository"
	"gowork_messaging/pkg/logger"
)

// ContextParticipantID is the gin context key holding the authenticated
// participant's id as uuid.UUID.
const ContextParticipantID = "participant_id"

// IdentityClaims is the token shape issued by the upstream GoWork auth
// service. The messaging service only consumes the claims, it never issues
// or refreshes tokens.
type IdentityClaims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates upstream identity tokens and provisions the
// participant row on first sight so foreign keys always resolve.
type AuthMiddleware struct {
	secret   []byte
	issuer   string
	userRepo repository.UserRepository
	log      logger.Logger
}

func NewAuthMiddleware(secret, issuer string, userRepo repository.UserRepository, log logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		secret:   []byte(secret),
		issuer:   issuer,
		userRepo: userRepo,
		log:      log,
	}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := m.parseToken(parts[1])
		if err != nil {
			m.log.Warn("Token validation failed", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		participantID, err := uuid.Parse(claims.UserID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID in token"})
			c.Abort()
			return
		}

		user := &domain.User{
			ID:          participantID,
			DisplayName: claims.DisplayName,
		}
		if claims.AvatarURL != "" {
			user.AvatarURL = &claims.AvatarURL
		}
		if err := m.userRepo.Upsert(c.Request.Context(), user); err != nil {
			m.log.Error("Failed to provision participant", "error", err, "participant_id", participantID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to provision user"})
			c.Abort()
			return
		}

		c.Set(ContextParticipantID, participantID)
		c.Next()
	}
}

func (m *AuthMiddleware) parseToken(tokenString string) (*IdentityClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// ParticipantID extracts the authenticated participant id set by RequireAuth.
func ParticipantID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextParticipantID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
