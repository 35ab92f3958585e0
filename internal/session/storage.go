package session

import "github.com/bookstore-admin/console/internal/shared"

// TokenKey is the only key under which the bearer token is persisted.
const TokenKey = "admin_token"

// TokenStorage persists the bearer token across requests.
type TokenStorage interface {
	Token() string
	SetToken(token string)
	DeleteToken()
}

// CookieStorage keeps the token in the browser's server-side session.
type CookieStorage struct {
	Session *shared.Session
}

// Token implements TokenStorage.
func (c CookieStorage) Token() string {
	if c.Session == nil {
		return ""
	}
	return c.Session.Get(TokenKey)
}

// SetToken implements TokenStorage.
func (c CookieStorage) SetToken(token string) {
	if c.Session == nil {
		return
	}
	c.Session.Set(TokenKey, token)
}

// DeleteToken implements TokenStorage.
func (c CookieStorage) DeleteToken() {
	if c.Session == nil {
		return
	}
	c.Session.Delete(TokenKey)
}

// MemoryStorage keeps the token in memory.
type MemoryStorage struct {
	value string
}

// Token implements TokenStorage.
func (m *MemoryStorage) Token() string { return m.value }

// SetToken implements TokenStorage.
func (m *MemoryStorage) SetToken(token string) { m.value = token }

// DeleteToken implements TokenStorage.
func (m *MemoryStorage) DeleteToken() { m.value = "" }
