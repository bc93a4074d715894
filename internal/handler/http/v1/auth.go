package v1

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"

	"github.com/shenikar/sos_broadcasting_system/internal/config"
	"github.com/shenikar/sos_broadcasting_system/internal/ratelimit"
)

const (
	identityKey = "identity"

	RoleStudent  = "student"
	RoleSecurity = "security"
	RoleAdmin    = "admin"
)

// Claims - полезная нагрузка JWT: sub - идентификатор пользователя
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Identity - проверенный пользователь запроса
type Identity struct {
	UserID string
	Role   string
}

// hasRole - admin обладает всеми ролями
func (i Identity) hasRole(roles ...string) bool {
	return i.Role == RoleAdmin || slices.Contains(roles, i.Role)
}

// APIKeyAuthMiddleware - middleware для аутентификации по API-ключу
func APIKeyAuthMiddleware(cfg *config.Config, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			// Проверяем также заголовок Authorization: Bearer
			apiKey = bearerToken(c)
		}

		if apiKey == "" {
			log.Warn("API key missing from request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key required"})
			return
		}

		if !slices.Contains(cfg.APIKeys, apiKey) {
			log.WithField("client_ip", c.ClientIP()).Warn("Invalid API key provided")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		c.Next()
	}
}

// JWTAuthMiddleware проверяет токен пользователя. Неудачные попытки считаются
// лимитером по IP; при превышении лимита запрос отклоняется до проверки токена.
// Ошибка хранилища лимитера закрывает вход.
func JWTAuthMiddleware(secret []byte, limiter *ratelimit.Limiter, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		entry := log.WithFields(logrus.Fields{
			"middleware": "jwt",
			"client_ip":  ip,
		})

		// Peek и Check не атомарны: параллельные неудачные попытки могут пройти
		// Peek до блокировки. Приращения при этом не теряются, и следующий
		// запрос после лимита уже отклоняется.
		if limiter != nil {
			decision, err := limiter.Peek(c.Request.Context(), ip)
			if err != nil {
				entry.WithError(err).Error("Auth rate limiter unavailable")
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "authentication temporarily unavailable"})
				return
			}
			if !decision.Allowed {
				entry.Warn("Too many failed authentication attempts")
				abortRateLimited(c, decision, "too many failed authentication attempts")
				return
			}
		}

		identity, err := parseToken(bearerToken(c), secret)
		if err != nil {
			entry.WithError(err).Warn("Authentication failed")
			if limiter != nil {
				if decision, limErr := limiter.Check(c.Request.Context(), ip); limErr == nil && !decision.Allowed {
					abortRateLimited(c, decision, "too many failed authentication attempts")
					return
				}
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// RequireRoles пропускает только пользователей с одной из ролей
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentIdentity(c).hasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func parseToken(raw string, secret []byte) (Identity, error) {
	if raw == "" {
		return Identity{}, errors.New("token missing")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, errors.New("token has no subject")
	}

	role := claims.Role
	if role == "" {
		role = RoleStudent
	}
	return Identity{UserID: claims.Subject, Role: role}, nil
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

func currentIdentity(c *gin.Context) Identity {
	if v, ok := c.Get(identityKey); ok {
		if identity, ok := v.(Identity); ok {
			return identity
		}
	}
	return Identity{}
}
