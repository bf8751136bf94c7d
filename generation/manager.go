package generation

import (
	"errors"
	"sync"

	"dripapi/services"
)

// IsQuotaError reports whether the failure means the user burned through
// the provider quota, which aborts a flow instead of failing one angle.
func IsQuotaError(err error) bool {
	return errors.Is(err, services.ErrQuotaExceeded)
}

// Manager hands out one Session per user. Sessions live for the life of the
// process only.
type Manager struct {
	mu           sync.Mutex
	sessions     map[uint]*Session
	imageService services.ImageServiceProvider
	devMode      bool
}

func NewManager(imageService services.ImageServiceProvider, devMode bool) *Manager {
	return &Manager{
		sessions:     map[uint]*Session{},
		imageService: imageService,
		devMode:      devMode,
	}
}

// Session returns the user's session, creating it on first use.
func (m *Manager) Session(userID uint) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[userID]
	if !ok {
		session = newSession(m.imageService, m.devMode)
		m.sessions[userID] = session
	}
	return session
}
