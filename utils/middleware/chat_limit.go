package middleware

import (
	"fmt"
	"log"
	"time"

	"github.com/collabhub/api/utils/cache"
	"github.com/collabhub/api/utils/response"
	"github.com/gofiber/fiber/v2"
)

// ChatRateLimiter throttles per-user message sends. Every assistant run
// costs provider tokens, so this sits in front of the message endpoint.
// When Redis is unavailable the limiter is a no-op.
type ChatRateLimiter struct {
	cache      *cache.RedisCache
	maxPerUser int
	window     time.Duration
}

// NewChatRateLimiter creates a per-user chat rate limiter
func NewChatRateLimiter(redisCache *cache.RedisCache, maxPerUser int, window time.Duration) *ChatRateLimiter {
	return &ChatRateLimiter{
		cache:      redisCache,
		maxPerUser: maxPerUser,
		window:     window,
	}
}

// Limit returns the fiber handler enforcing the per-user message budget
func (l *ChatRateLimiter) Limit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if l.cache == nil {
			return c.Next()
		}

		user, ok := GetUser(c)
		if !ok || user == nil {
			return c.Next()
		}

		key := fmt.Sprintf("chat_limit:%d", user.ID)
		count, err := l.cache.Increment(c.Context(), key)
		if err != nil {
			// Redis trouble must not block chat; log and let through
			log.Printf("ChatRateLimiter: failed to increment %s: %v", key, err)
			return c.Next()
		}

		if count == 1 {
			if err := l.cache.Expire(c.Context(), key, l.window); err != nil {
				log.Printf("ChatRateLimiter: failed to set expiry on %s: %v", key, err)
			}
		}

		if count > int64(l.maxPerUser) {
			return response.TooManyRequests(c, "Message limit reached. Please wait before sending more messages.")
		}

		return c.Next()
	}
}
