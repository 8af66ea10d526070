// Package versionmanager holds the monotonically versioned snapshot for a
// single page and a short bounded history of prior versions, so deltas can
// still be computed against an agent's slightly stale view.
//
// The eviction shape is adapted from domkeeper's content_cache store
// (store/cache.go): oldest entry dropped once a cap is exceeded. That
// store is SQL-backed; this one is in-memory and looked up by version
// number rather than content hash, since the manager owns exactly one
// page's timeline and needs lookup by version, not dedup by hash.
package versionmanager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/domstate/snapshot"
)

// DefaultHistoryCap is the number of prior versions retained alongside the
// current one.
const DefaultHistoryCap = 3

// AgentStateStatus classifies how stale an agent's last-known version is
// relative to the manager's current state.
type AgentStateStatus string

const (
	// StatusCurrent means the agent's version matches the current one.
	StatusCurrent AgentStateStatus = "current"
	// StatusStaleWithHistory means the agent's version is behind but still
	// present in history, so a delta from it is feasible.
	StatusStaleWithHistory AgentStateStatus = "stale_with_history"
	// StatusStaleNoHistory means the agent's version has aged out of
	// history; only a full snapshot can resynchronize it.
	StatusStaleNoHistory AgentStateStatus = "stale_no_history"
)

// Compiler produces a fresh snapshot.Base for the current DOM state. The
// concrete implementation (package compiler) talks to CDP; this interface
// lets versionmanager be tested without one.
type Compiler interface {
	Compile(ctx context.Context) (snapshot.Base, error)
}

// Config configures a Manager.
type Config struct {
	HistoryCap int
	Logger     *slog.Logger
}

func (c *Config) defaults() {
	if c.HistoryCap <= 0 {
		c.HistoryCap = DefaultHistoryCap
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the monotonic version counter, current snapshot, and bounded
// history for one page.
type Manager struct {
	cfg      Config
	compiler Compiler

	mu      sync.Mutex
	version uint64
	current *snapshot.Versioned
	history []snapshot.Versioned // oldest first, bounded to cfg.HistoryCap
}

// New creates a Manager. The version counter starts at 0 and only ever
// advances; Reset never rewinds it.
func New(compiler Compiler, cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, compiler: compiler}
}

// CaptureIfChanged compiles a fresh snapshot and compares its content hash
// to the current one. If unchanged, returns the current versioned snapshot
// with isNew=false and does not advance the version counter. If changed (or
// there is no current snapshot yet), it advances the counter, archives the
// prior current into history, and installs the new snapshot as current.
func (m *Manager) CaptureIfChanged(ctx context.Context) (snapshot.Versioned, bool, error) {
	base, err := m.compiler.Compile(ctx)
	if err != nil {
		return snapshot.Versioned{}, false, fmt.Errorf("versionmanager: compile: %w", err)
	}
	hash := snapshot.ContentHash(base.Nodes)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.Hash == hash {
		return *m.current, false, nil
	}

	m.version++
	versioned := snapshot.Versioned{
		Snapshot:  base,
		Version:   m.version,
		Hash:      hash,
		Timestamp: base.CapturedAt,
	}

	if m.current != nil {
		m.history = append(m.history, *m.current)
		if len(m.history) > m.cfg.HistoryCap {
			m.history = m.history[len(m.history)-m.cfg.HistoryCap:]
		}
	}
	m.current = &versioned

	return versioned, true, nil
}

// ForceCapture compiles and installs a new version unconditionally, even if
// the content hash matches the current snapshot. Used when the caller needs
// a guaranteed version advance (pagestate.State uses it for a page's first
// capture).
func (m *Manager) ForceCapture(ctx context.Context) (snapshot.Versioned, error) {
	base, err := m.compiler.Compile(ctx)
	if err != nil {
		return snapshot.Versioned{}, fmt.Errorf("versionmanager: compile: %w", err)
	}
	hash := snapshot.ContentHash(base.Nodes)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.version++
	versioned := snapshot.Versioned{
		Snapshot:  base,
		Version:   m.version,
		Hash:      hash,
		Timestamp: base.CapturedAt,
	}
	if m.current != nil {
		m.history = append(m.history, *m.current)
		if len(m.history) > m.cfg.HistoryCap {
			m.history = m.history[len(m.history)-m.cfg.HistoryCap:]
		}
	}
	m.current = &versioned
	return versioned, nil
}

// GetVersion returns the versioned snapshot for n, searching current then
// history, newest history entry first.
func (m *Manager) GetVersion(n uint64) (snapshot.Versioned, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.Version == n {
		return *m.current, true
	}
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].Version == n {
			return m.history[i], true
		}
	}
	return snapshot.Versioned{}, false
}

// ValidateAgentState classifies agentVersion relative to current state.
// agentVersion == nil means the agent has no prior state at all, which is
// treated the same as stale_no_history: a full snapshot is mandatory.
func (m *Manager) ValidateAgentState(agentVersion *uint64) AgentStateStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	if agentVersion == nil {
		return StatusStaleNoHistory
	}
	if m.current != nil && m.current.Version == *agentVersion {
		return StatusCurrent
	}
	for _, h := range m.history {
		if h.Version == *agentVersion {
			return StatusStaleWithHistory
		}
	}
	return StatusStaleNoHistory
}

// Reset clears current and history but leaves the version counter alone,
// so the next capture still produces a strictly greater version number
// so monotonicity survives navigations and resets.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	m.history = nil
}

// Current returns the current versioned snapshot, if any has been captured.
func (m *Manager) Current() (snapshot.Versioned, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return snapshot.Versioned{}, false
	}
	return *m.current, true
}

// Version returns the current monotonic counter value, 0 if nothing has
// ever been captured.
func (m *Manager) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// HistoryDepth reports how many prior versions are currently retained
// alongside the current one. Used by registry.Store.Stats for operator
// visibility into how much history-dependent delta room a page has left.
func (m *Manager) HistoryDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}
