package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/davicafu/hexabooks/pkg/utils"
)

// Limiter decide si una petición identificada por key puede pasar.
type Limiter interface {
	Allow(key string) bool
}

// TokenBucketLimiter mantiene un token bucket por clave.
// maxRequests por ventana, con ráfaga igual a maxRequests.
type TokenBucketLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewTokenBucketLimiter crea un limitador de maxRequests por ventana.
func NewTokenBucketLimiter(window time.Duration, maxRequests int) *TokenBucketLimiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &TokenBucketLimiter{
		rate:  rate.Every(window / time.Duration(maxRequests)),
		burst: maxRequests,
	}
}

func (l *TokenBucketLimiter) Allow(key string) bool {
	if limiter, ok := l.limiters.Load(key); ok {
		return limiter.(*rate.Limiter).Allow()
	}
	limiter, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.rate, l.burst))
	return limiter.(*rate.Limiter).Allow()
}

// RetryAfter es el tiempo (en segundos) que tarda en reponerse un token.
func (l *TokenBucketLimiter) RetryAfter() int {
	secs := int(math.Round(1 / float64(l.rate)))
	if secs < 1 {
		return 1
	}
	return secs
}

// Middleware rechaza con 429 las peticiones que superan el límite de su IP.
func Middleware(limiter *TokenBucketLimiter) gin.HandlerFunc {
	retryAfter := strconv.Itoa(limiter.RetryAfter())
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.Header("Retry-After", retryAfter)
			utils.SendError(c, http.StatusTooManyRequests, "too many requests, please try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}
