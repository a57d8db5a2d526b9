package middleware

import (
    "net/http"
    "strings"
    "sync"
    "time"

    basichttp "codeshop/internal/http"

    "github.com/gin-gonic/gin"
    "go.uber.org/zap"
    "golang.org/x/time/rate"

    "codeshop/internal/auth"
)

func RequestLogger() gin.HandlerFunc {
    return func(c *gin.Context) {
        start := time.Now()
        c.Next()
        zap.L().Info("http",
            zap.String("method", c.Request.Method),
            zap.String("path", c.Request.URL.Path),
            zap.Int("status", c.Writer.Status()),
            zap.Duration("dur", time.Since(start)),
            zap.String("ip", c.ClientIP()),
        )
    }
}

// RequireAdmin accepts the admin token from the Authorization header or,
// as a fallback, the admin cookie.
func RequireAdmin(secret, cookieName string) gin.HandlerFunc {
    return func(c *gin.Context) {
        tokenStr := ""
        hdr := c.GetHeader("Authorization")
        if strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
            tokenStr = strings.TrimSpace(hdr[7:])
        }
        if tokenStr == "" {
            if ck, err := c.Cookie(cookieName); err == nil {
                tokenStr = ck
            }
        }
        if tokenStr == "" {
            basichttp.Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing token")
            c.Abort()
            return
        }
        if !auth.VerifyAdmin(secret, tokenStr) {
            basichttp.Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
            c.Abort()
            return
        }
        c.Next()
    }
}

func CORS() gin.HandlerFunc {
    return func(c *gin.Context) {
        c.Header("Access-Control-Allow-Origin", "*")
        c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With, Accept, Origin")
        c.Header("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS,HEAD")
        c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type, Content-Disposition")
        c.Header("Access-Control-Max-Age", "86400")

        if c.Request.Method == http.MethodOptions {
            c.AbortWithStatus(http.StatusNoContent)
            return
        }
        c.Next()
    }
}

// Rate limiting. Per-process counters: a single-instance approximation of
// a per-client sliding window, keyed by client IP.
type visitor struct {
    limiter  *rate.Limiter
    lastSeen time.Time
}

type rateLimitStore struct {
    visitors map[string]*visitor
    mu       sync.Mutex
}

func (s *rateLimitStore) addVisitor(ip string, r rate.Limit, b int) *rate.Limiter {
    s.mu.Lock()
    defer s.mu.Unlock()

    v, exists := s.visitors[ip]
    if !exists {
        limiter := rate.NewLimiter(r, b)
        s.visitors[ip] = &visitor{limiter, time.Now()}
        return limiter
    }

    v.lastSeen = time.Now()
    return v.limiter
}

func (s *rateLimitStore) cleanup() {
    for {
        time.Sleep(time.Minute)
        s.mu.Lock()
        for ip, v := range s.visitors {
            if time.Since(v.lastSeen) > 3*time.Minute {
                delete(s.visitors, ip)
            }
        }
        s.mu.Unlock()
    }
}

var store = &rateLimitStore{
    visitors: make(map[string]*visitor),
}

func init() {
    go store.cleanup()
}

func RateLimit(rps int, burst int) gin.HandlerFunc {
    return func(c *gin.Context) {
        limiter := store.addVisitor(c.ClientIP(), rate.Limit(rps), burst)
        if !limiter.Allow() {
            basichttp.Fail(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
            c.Abort()
            return
        }
        c.Next()
    }
}
