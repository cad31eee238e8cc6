// Package middleware содержит HTTP middleware сервиса бортовых продаж.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

type contextKey string

const sessionIDKey contextKey = "sessionID"

const sessionCookieTTL = 12 * time.Hour

// Scope определяет страницу, к сессии которой привязан cookie.
type Scope string

const (
	ScopeCatalog Scope = "catalog"
	ScopeReceipt Scope = "receipt"
)

// CookieName возвращает имя cookie сессии страницы.
func (s Scope) CookieName() string {
	return "pos_" + string(s)
}

// SessionMiddleware привязывает клиента к сессии страницы через подписанный cookie.
type SessionMiddleware struct {
	secretKey []byte
}

// NewSessionMiddleware создаёт middleware с указанным секретом. Пустой секрет
// заменяется случайным, cookie тогда не переживают перезапуск сервиса.
func NewSessionMiddleware(secret string) *SessionMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &SessionMiddleware{
		secretKey: key,
	}
}

// Require проверяет cookie сессии указанной страницы и кладёт идентификатор сессии в контекст.
func (m *SessionMiddleware) Require(scope Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(scope.CookieName())
			if err != nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			id, ok := m.parseCookie(scope, cookie.Value)
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), sessionIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SetSessionCookie устанавливает cookie сессии страницы.
func (m *SessionMiddleware) SetSessionCookie(w http.ResponseWriter, scope Scope, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     scope.CookieName(),
		Value:    sessionID + "." + m.sign(scope, sessionID),
		Path:     "/",
		Expires:  time.Now().Add(sessionCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie удаляет cookie сессии страницы.
func (m *SessionMiddleware) ClearSessionCookie(w http.ResponseWriter, scope Scope) {
	http.SetCookie(w, &http.Cookie{
		Name:     scope.CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// sign подписывает идентификатор вместе со страницей, чтобы cookie одной
// страницы нельзя было предъявить другой.
func (m *SessionMiddleware) sign(scope Scope, sessionID string) string {
	mac := hmac.New(sha256.New, m.secretKey)
	mac.Write([]byte(string(scope) + ":" + sessionID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (m *SessionMiddleware) parseCookie(scope Scope, value string) (string, bool) {
	id, signature, found := strings.Cut(value, ".")
	if !found || id == "" {
		return "", false
	}

	if !hmac.Equal([]byte(signature), []byte(m.sign(scope, id))) {
		return "", false
	}
	return id, true
}

// GetSessionIDFromContext извлекает идентификатор сессии из контекста запроса.
func GetSessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok
}
