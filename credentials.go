package apiclient

import "sync"

// CredentialStore источник токена авторизации. Клиент только читает из него.
type CredentialStore interface {
	// Token возвращает текущий токен; false, если токена нет
	Token() (string, bool)
}

// StaticToken хранилище с фиксированным токеном.
type StaticToken string

// Token реализует CredentialStore
func (s StaticToken) Token() (string, bool) {
	return string(s), s != ""
}

// MemoryCredentialStore потокобезопасное хранилище токена в памяти.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryCredentialStore создаёт хранилище с начальным токеном (может быть пустым).
func NewMemoryCredentialStore(token string) *MemoryCredentialStore {
	return &MemoryCredentialStore{token: token}
}

// Token реализует CredentialStore
func (m *MemoryCredentialStore) Token() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}

// SetToken заменяет токен.
func (m *MemoryCredentialStore) SetToken(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

// Clear удаляет токен.
func (m *MemoryCredentialStore) Clear() {
	m.SetToken("")
}
