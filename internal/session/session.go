// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package session tracks the user session that frontend events are
// attributed to.
//
// A session ends after InactivityTimeout without activity or once it is
// MaxSessionLength old, whichever comes first. Whether a session records
// replays is decided once, when it is created. Sessions are saved to a Store
// on every change and recovered at construction; storage failures are logged
// at debug level and otherwise ignored.
package session

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultInactivityTimeout = 30 * time.Minute
	DefaultMaxSessionLength  = 4 * time.Hour
)

// Session is one user session. HasReplay never changes after creation.
type Session struct {
	ID           string    `json:"id"`
	StartTime    time.Time `json:"start_time"`
	LastActivity time.Time `json:"last_activity"`
	HasReplay    bool      `json:"has_replay"`
}

// Store persists the current session.
type Store interface {
	// Load returns the saved session, or nil when there is none.
	Load() (*Session, error)
	Save(s *Session) error
}

// Config controls session lifetime and replay sampling.
type Config struct {
	InactivityTimeout time.Duration
	MaxSessionLength  time.Duration

	// ReplaySampleRate is the probability, in [0, 1], that a new session
	// records replays. It only applies when ReplayEnabled is set.
	ReplaySampleRate float64
	ReplayEnabled    bool

	// Store persists sessions. Optional.
	Store Store

	Logger *slog.Logger
	Now    func() time.Time
	Rand   func() float64
}

// Manager owns the current session.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	current *Session
}

// NewManager creates a Manager and recovers a saved session if it is still
// live.
func NewManager(cfg Config) *Manager {
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = DefaultInactivityTimeout
	}
	if cfg.MaxSessionLength <= 0 {
		cfg.MaxSessionLength = DefaultMaxSessionLength
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}

	m := &Manager{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "session"),
	}
	m.recover()
	return m
}

func (m *Manager) recover() {
	if m.cfg.Store == nil {
		return
	}
	s, err := m.cfg.Store.Load()
	if err != nil {
		m.logger.Debug("session recovery failed", "error", err)
		return
	}
	if s == nil || s.ID == "" || !m.live(s, m.cfg.Now()) {
		return
	}
	m.current = s
}

// live reports whether s is within both windows at now.
func (m *Manager) live(s *Session, now time.Time) bool {
	return now.Sub(s.LastActivity) < m.cfg.InactivityTimeout &&
		now.Sub(s.StartTime) < m.cfg.MaxSessionLength
}

// GetOrCreateSession returns the current session, replacing it with a new
// one if either window has elapsed. The returned value is a copy.
func (m *Manager) GetOrCreateSession() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.currentLocked(m.cfg.Now())
}

func (m *Manager) currentLocked(now time.Time) *Session {
	if m.current != nil && m.live(m.current, now) {
		return m.current
	}

	s := &Session{
		ID:           uuid.NewString(),
		StartTime:    now,
		LastActivity: now,
		HasReplay:    m.cfg.ReplayEnabled && m.cfg.Rand() < m.cfg.ReplaySampleRate,
	}
	if m.current != nil {
		m.logger.Debug("session expired", "previous", m.current.ID, "session", s.ID)
	}
	m.current = s
	m.persist(s)
	return s
}

// UpdateActivity records activity on the current session, creating one if
// needed. LastActivity never moves past StartTime+MaxSessionLength.
func (m *Manager) UpdateActivity() Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.cfg.Now()
	s := m.currentLocked(now)

	limit := s.StartTime.Add(m.cfg.MaxSessionLength)
	if now.After(limit) {
		now = limit
	}
	if now.After(s.LastActivity) {
		s.LastActivity = now
		m.persist(s)
	}
	return *s
}

// End discards the current session. The next call starts a new one.
func (m *Manager) End() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
}

// Current returns the live session without creating one.
func (m *Manager) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || !m.live(m.current, m.cfg.Now()) {
		return Session{}, false
	}
	return *m.current, true
}

func (m *Manager) persist(s *Session) {
	if m.cfg.Store == nil {
		return
	}
	snapshot := *s
	if err := m.cfg.Store.Save(&snapshot); err != nil {
		m.logger.Debug("session save failed", "error", err)
	}
}
