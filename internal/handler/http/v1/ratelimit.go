package v1

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/shenikar/sos_broadcasting_system/internal/ratelimit"
)

// SOSRateLimitMiddleware ограничивает частоту тревог одного пользователя.
// При недоступности хранилища запрос пропускается: лимитер не должен мешать тревоге.
func SOSRateLimitMiddleware(limiter *ratelimit.Limiter, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		userID := currentIdentity(c).UserID
		decision, err := limiter.Check(c.Request.Context(), userID)
		if err != nil {
			log.WithFields(logrus.Fields{
				"middleware": "sos_rate_limit",
				"user_id":    userID,
			}).WithError(err).Error("SOS rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			log.WithField("user_id", userID).Warn("SOS rate limit exceeded")
			abortRateLimited(c, decision, "too many SOS requests")
			return
		}
		c.Next()
	}
}

func abortRateLimited(c *gin.Context, decision ratelimit.Decision, message string) {
	seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
	c.Header("Retry-After", strconv.Itoa(seconds))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, RateLimitedResponse{
		Error:             message,
		RetryAfterSeconds: seconds,
		ResetAt:           decision.ResetAt,
	})
}
