package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"sync"
	"time"
)

const (
	csrfCookieName = "csrf_token"
	csrfHeader     = "X-CSRF-Token"
	csrfTokenLen   = 32
	csrfMaxAge     = 12 * time.Hour
)

// csrfManager handles CSRF token generation and validation
type csrfManager struct {
	mu     sync.RWMutex
	tokens map[string]time.Time // token -> expiry
}

func newCSRFManager() *csrfManager {
	return &csrfManager{tokens: make(map[string]time.Time)}
}

func (m *csrfManager) generateToken() (string, error) {
	buf := make([]byte, csrfTokenLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := base64.URLEncoding.EncodeToString(buf)

	m.mu.Lock()
	m.tokens[token] = time.Now().Add(csrfMaxAge)
	m.mu.Unlock()

	return token, nil
}

func (m *csrfManager) validateToken(token string) bool {
	if token == "" {
		return false
	}

	m.mu.RLock()
	expiry, exists := m.tokens[token]
	m.mu.RUnlock()

	return exists && time.Now().Before(expiry)
}

// cleanup removes expired tokens
func (m *csrfManager) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for token, expiry := range m.tokens {
		if now.After(expiry) {
			delete(m.tokens, token)
		}
	}
}

// CSRFToken handles GET /api/csrf. The token is set as a cookie and
// returned in the body; clients echo it in the X-CSRF-Token header.
func (h *Handler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(csrfCookieName); err == nil && h.csrf.validateToken(cookie.Value) {
		h.writeJSON(w, http.StatusOK, map[string]string{"token": cookie.Value})
		return
	}

	token, err := h.csrf.generateToken()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(csrfMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	h.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// validateCSRF checks the token on state-changing requests
func (h *Handler) validateCSRF(r *http.Request) bool {
	if h.disableCSRF {
		return true
	}
	if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
		return true
	}

	cookie, err := r.Cookie(csrfCookieName)
	if err != nil {
		return false
	}
	token := r.Header.Get(csrfHeader)
	return cookie.Value == token && h.csrf.validateToken(token)
}

func (h *Handler) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.validateCSRF(r) {
			h.writeError(w, http.StatusForbidden, "invalid CSRF token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StartCSRFCleanup drops expired tokens every hour until ctx is done
func (h *Handler) StartCSRFCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.csrf.cleanup()
			}
		}
	}()
}
