package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const idempotencyKeyHeader = "Idempotency-Key"
const idempotencyTTL = 24 * time.Hour

type idempotencyWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *idempotencyWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware deduplicates webhook deliveries. The telephony
// provider retries webhooks it thinks failed, so a retried POST for the
// same call and path replays the original response instead of running
// the routing again. An explicit Idempotency-Key header takes
// precedence over the CallSid-derived key.
func IdempotencyMiddleware(redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyKeyHeader)
		if key == "" {
			// Webhook retries carry the same CallSid to the same path.
			if callSid := c.PostForm("CallSid"); callSid != "" {
				key = c.Request.URL.Path + ":" + callSid + ":" + c.PostForm("DialCallStatus")
			}
		}
		if key == "" {
			c.Next()
			return
		}

		cacheKey := "idempotency:" + hashIdempotencyKey(key)
		ctx := c.Request.Context()

		val, err := redisClient.Get(ctx, cacheKey).Result()
		if err == nil && val != "" {
			c.Header("X-Idempotency-Replay", "true")
			c.Data(http.StatusOK, "application/xml", []byte(val))
			c.Abort()
			return
		}

		w := &idempotencyWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		// Only successful responses are worth replaying; a failed
		// delivery should be retried for real.
		if c.Writer.Status() == http.StatusOK && w.body.Len() > 0 {
			redisClient.Set(ctx, cacheKey, w.body.String(), idempotencyTTL)
		}
	}
}

func hashIdempotencyKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
