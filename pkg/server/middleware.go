package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ha1tch/qconsole/pkg/api"
	"github.com/ha1tch/qconsole/pkg/config"
	qerrors "github.com/ha1tch/qconsole/pkg/errors"
	"github.com/ha1tch/qconsole/pkg/log"
	"github.com/ha1tch/qconsole/pkg/metrics"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// TokenQueryParam carries a bearer token on GET requests opened by the
// browser in a new tab, which cannot set headers.
const TokenQueryParam = "access_token"

const (
	sessionKey = "qconsole.session"
	claimsKey  = "qconsole.claims"
	clientKey  = "qconsole.client"
)

func metricsHandler() http.Handler { return metrics.Handler() }

func abortWithError(c *gin.Context, status int, err error) {
	c.Data(status, "application/json; charset=utf-8", api.ErrorEnvelope(err))
	c.Abort()
}

// requestLogger assigns a request ID and logs each request once it is done.
func requestLogger(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)
		ctx := log.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"bytes", c.Writer.Size(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		}
		if client, ok := c.Get(clientKey); ok {
			fields = append(fields, "client", client)
		}

		rlog := logger.Request().Ctx(c.Request.Context())
		switch {
		case c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics":
			rlog.Debug("request", fields...)
		case c.Writer.Status() >= http.StatusInternalServerError:
			rlog.Warn("request", fields...)
		default:
			rlog.Info("request", fields...)
		}
	}
}

// sessionMiddleware keys the caller's document session on a cookie, issuing
// a fresh UUID when the cookie is missing or not a UUID.
func sessionMiddleware(cookie string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(cookie)
		if err != nil || uuid.Validate(sessionID) != nil {
			sessionID = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cookie, sessionID, 0, "/", "", false, true)
		}
		c.Set(sessionKey, sessionID)
		c.Request = c.Request.WithContext(log.WithSessionID(c.Request.Context(), sessionID))
		c.Next()
	}
}

// authMiddleware requires a valid HMAC signed bearer token.
func authMiddleware(cfg config.AuthConfig, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		alog := logger.Audit().Ctx(c.Request.Context())

		token := bearerToken(c)
		if token == "" {
			alog.Warn("authentication failed", "reason", "missing token", "remote", c.ClientIP())
			abortWithError(c, http.StatusUnauthorized,
				qerrors.New(qerrors.ErrCodeUnauthorized, "authentication required").Err())
			return
		}

		claims, err := validateToken(cfg, token)
		if err != nil {
			alog.Warn("authentication failed", "reason", err.Error(), "remote", c.ClientIP())
			abortWithError(c, http.StatusUnauthorized,
				qerrors.Wrap(err, qerrors.ErrCodeUnauthorized, "authentication failed").Err())
			return
		}

		subject, _ := claims.GetSubject()
		alog.Debug("authenticated", "subject", subject)
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c.Request.Method == http.MethodGet {
		return c.Query(TokenQueryParam)
	}
	return ""
}

// validateToken parses an HS256/384/512 token and checks the configured
// issuer and audience.
func validateToken(cfg config.AuthConfig, tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	if cfg.Issuer != "" {
		issuer, _ := claims.GetIssuer()
		if issuer != cfg.Issuer {
			return nil, fmt.Errorf("invalid issuer: expected %s, got %s", cfg.Issuer, issuer)
		}
	}

	if cfg.Audience != "" {
		audiences, _ := claims.GetAudience()
		found := false
		for _, aud := range audiences {
			if aud == cfg.Audience {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("invalid audience: expected %s", cfg.Audience)
		}
	}
	return claims, nil
}

// ginClientRequest exposes a gin request to a ClientIdentifier.
type ginClientRequest struct {
	c *gin.Context
}

func (r ginClientRequest) Claim(name string) string {
	v, ok := r.c.Get(claimsKey)
	if !ok {
		return ""
	}
	claims, _ := v.(jwt.MapClaims)
	s, _ := claims[name].(string)
	return s
}

func (r ginClientRequest) Header(name string) string     { return r.c.GetHeader(name) }
func (r ginClientRequest) QueryParam(name string) string { return r.c.Query(name) }
func (r ginClientRequest) RemoteIP() string              { return r.c.ClientIP() }

// clientMiddleware records who is calling.
func clientMiddleware(ci *ClientIdentifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := ci.Identify(ginClientRequest{c: c})
		c.Set(clientKey, client)
		c.Request = c.Request.WithContext(WithClient(c.Request.Context(), client))
		c.Next()
	}
}

// RateLimiter keeps one token bucket per client.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rate     rate.Limit
	burst    int
	ttl      time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// sweepThreshold is the number of tracked clients above which idle entries
// are dropped.
const sweepThreshold = 1024

// NewRateLimiter creates a limiter allowing r events per second with the
// given burst. Clients idle for ttl are forgotten.
func NewRateLimiter(r rate.Limit, burst int, ttl time.Duration) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		rate:     r,
		burst:    burst,
		ttl:      ttl,
	}
}

// Allow reports whether client may make a request now.
func (rl *RateLimiter) Allow(client string) bool {
	now := time.Now()

	rl.mu.Lock()
	cl, ok := rl.limiters[client]
	if !ok {
		if len(rl.limiters) >= sweepThreshold {
			rl.sweep(now)
		}
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[client] = cl
	}
	cl.lastSeen = now
	rl.mu.Unlock()

	return cl.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) sweep(now time.Time) {
	for client, cl := range rl.limiters {
		if now.Sub(cl.lastSeen) > rl.ttl {
			delete(rl.limiters, client)
		}
	}
}

// rateLimitMiddleware limits each client to requestsPerMinute.
func rateLimitMiddleware(requestsPerMinute, burst int, logger *log.Logger) gin.HandlerFunc {
	limiter := NewRateLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), burst, 15*time.Minute)

	return func(c *gin.Context) {
		client := c.GetString(clientKey)
		if client == "" {
			client = "ip:" + c.ClientIP()
		}
		if !limiter.Allow(client) {
			logger.Audit().Ctx(c.Request.Context()).Warn("rate limit exceeded", "client", client)
			abortWithError(c, http.StatusTooManyRequests,
				qerrors.New(qerrors.ErrCodeRateLimited, "rate limit exceeded").Err())
			return
		}
		c.Next()
	}
}
