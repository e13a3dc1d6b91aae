package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/body-consumer/internal/proxy/response"
)

const subjectKey contextKey = "subject"

// Subject returns the authenticated token subject, if any
func Subject(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey).(string)
	return sub
}

// BearerAuth validates HS256 bearer tokens
type BearerAuth struct {
	secret      []byte
	issuer      string
	logger      *logrus.Entry
	errorWriter *response.ErrorWriter

	mu             sync.Mutex
	failedAttempts map[string]int
}

// NewBearerAuth creates a bearer token middleware. An empty issuer accepts
// tokens from any issuer.
func NewBearerAuth(secret []byte, issuer string, logger *logrus.Entry) *BearerAuth {
	return &BearerAuth{
		secret:         secret,
		issuer:         issuer,
		logger:         logger,
		errorWriter:    response.NewErrorWriter(logger),
		failedAttempts: make(map[string]int),
	}
}

// Authenticate validates the request's bearer token and returns its claims
func (a *BearerAuth) Authenticate(r *http.Request) (*jwt.RegisteredClaims, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil, fmt.Errorf("missing bearer token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bearer token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid bearer token")
	}
	return claims, nil
}

// Middleware returns the HTTP middleware function
func (a *BearerAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.Authenticate(r)
		if err != nil {
			a.logSecurityEvent(r, err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="body-consumer"`)
			a.errorWriter.WriteError(w, http.StatusUnauthorized, response.CodeUnauthorized, "authentication required")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey, claims.Subject)))
	})
}

// logSecurityEvent logs rejected tokens per client
func (a *BearerAuth) logSecurityEvent(r *http.Request, err error) {
	clientIP := clientIP(r)

	a.mu.Lock()
	a.failedAttempts[clientIP]++
	failed := a.failedAttempts[clientIP]
	a.mu.Unlock()

	a.logger.WithError(err).WithFields(logrus.Fields{
		"client_ip":    clientIP,
		"user_agent":   r.UserAgent(),
		"method":       r.Method,
		"path":         r.URL.Path,
		"failed_count": failed,
	}).Warn("Authentication failed")

	if failed > 5 {
		a.logger.WithFields(logrus.Fields{
			"client_ip":    clientIP,
			"failed_count": failed,
		}).Error("Potential brute force attack detected")
	}
}

// clientIP extracts client IP from request
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
