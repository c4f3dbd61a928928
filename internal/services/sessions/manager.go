package sessions

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
)

// Manager keeps the most recent exchanges of each session in memory
type Manager struct {
	mu         sync.RWMutex
	sessions   map[string][]models.Exchange
	maxHistory int
	logger     arbor.ILogger
	now        func() time.Time
}

// NewManager creates a session manager keeping maxHistory exchanges per session
func NewManager(maxHistory int, logger arbor.ILogger) interfaces.SessionManager {
	return newManager(maxHistory, logger)
}

func newManager(maxHistory int, logger arbor.ILogger) *Manager {
	if maxHistory < 0 {
		maxHistory = 0
	}
	return &Manager{
		sessions:   make(map[string][]models.Exchange),
		maxHistory: maxHistory,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateSession starts an empty session and returns its id
func (m *Manager) CreateSession() string {
	id := uuid.New().String()

	m.mu.Lock()
	m.sessions[id] = nil
	m.mu.Unlock()

	m.logger.Debug().Str("session_id", id).Msg("Session created")
	return id
}

// GetHistory returns a copy of the session's exchanges, oldest first.
// Unknown ids yield an empty history.
func (m *Manager) GetHistory(sessionID string) []models.Exchange {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.sessions[sessionID]
	if len(history) == 0 {
		return []models.Exchange{}
	}
	return append([]models.Exchange(nil), history...)
}

// AddExchange appends an exchange, creating the session if needed and
// evicting the oldest exchanges beyond maxHistory
func (m *Manager) AddExchange(sessionID, query, answer string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := append(m.sessions[sessionID], models.Exchange{
		Query:     query,
		Answer:    answer,
		CreatedAt: m.now(),
	})
	if over := len(history) - m.maxHistory; over > 0 {
		history = append([]models.Exchange(nil), history[over:]...)
	}
	m.sessions[sessionID] = history
}

// FormatHistory renders the session as alternating User/Assistant lines
func (m *Manager) FormatHistory(sessionID string) string {
	history := m.GetHistory(sessionID)
	if len(history) == 0 {
		return ""
	}

	lines := make([]string, 0, len(history)*2)
	for _, ex := range history {
		lines = append(lines, "User: "+ex.Query, "Assistant: "+ex.Answer)
	}
	return strings.Join(lines, "\n")
}

// DeleteSession removes a session, reporting whether it existed
func (m *Manager) DeleteSession(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return false
	}
	delete(m.sessions, sessionID)

	m.logger.Debug().Str("session_id", sessionID).Msg("Session deleted")
	return true
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
