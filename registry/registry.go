// Package registry holds the process-wide, page-keyed state: a page's
// PageSnapshotState and NetworkWatcher (plus the rest of its per-page
// machinery) live here for as long as the page is open, registered with
// Store.Add and removed (and closed) with Store.Remove.
//
// Grounded on domwatch/internal/browser.Manager's mutex-guarded,
// config-with-defaults shape (RWMutex around a live handle, explicit
// Close lifecycle), generalized from one browser-wide handle to a keyed
// map of per-page entries.
package registry

import (
	"fmt"
	"sync"

	"github.com/hazyhaar/domstate/action"
	"github.com/hazyhaar/domstate/cdp"
	"github.com/hazyhaar/domstate/frametracker"
	"github.com/hazyhaar/domstate/network"
	"github.com/hazyhaar/domstate/pagestate"
	"github.com/hazyhaar/domstate/stabilize"
	"github.com/hazyhaar/domstate/versionmanager"
)

// Page bundles one page's components. Everything here is owned by this
// page alone; nothing is shared across pages, so each page's components
// run independently and may proceed in parallel with another page's.
type Page struct {
	ID      string
	Tab     *cdp.Tab
	VM      *versionmanager.Manager
	State   *pagestate.State
	Tracker *frametracker.Tracker
	Net     *network.Watcher // nil if the page never called Attach
	Idle    *stabilize.NetworkIdleTracker
	Dom     *stabilize.DomStabilizer
	Action  *action.Executor
}

// PageStats is a point-in-time liveness snapshot for one registered page,
// this registry's counterpart to observability.HeartbeatWriter — an
// operator poll target rather than a persisted row, since persistence is
// out of scope here.
type PageStats struct {
	ID           string
	IssuedRefs   int
	HistoryDepth int
}

func (p *Page) stats() PageStats {
	s := PageStats{ID: p.ID}
	if p.Tracker != nil {
		s.IssuedRefs = p.Tracker.IssuedRefCount()
	}
	if p.VM != nil {
		s.HistoryDepth = p.VM.HistoryDepth()
	}
	return s
}

// Close releases the page's event subscriptions and closes its tab. It
// does not remove the Page from a Store; callers use Store.Remove for
// that, which calls Close itself.
func (p *Page) Close() error {
	if p.Net != nil {
		p.Net.Close()
	}
	if p.Idle != nil {
		p.Idle.Close()
	}
	if p.Tracker != nil {
		p.Tracker.Close()
	}
	if p.Tab != nil {
		return p.Tab.Close()
	}
	return nil
}

// Store is the keyed map of open pages. Safe for concurrent use; lookups
// and mutations are independent across different page IDs but are still
// serialized by a single lock, since registry operations (open/close) are
// rare compared to the per-page work (actions, snapshots) that happens
// once a *Page has been retrieved.
type Store struct {
	mu    sync.RWMutex
	pages map[string]*Page
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{pages: make(map[string]*Page)}
}

// Add registers a page under its ID. It returns an error if a page with
// that ID is already registered, since that would silently orphan the
// previous entry's subscriptions.
func (s *Store) Add(p *Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pages[p.ID]; exists {
		return fmt.Errorf("registry: page %q is already registered", p.ID)
	}
	s.pages[p.ID] = p
	return nil
}

// Get returns the page registered under id, if any.
func (s *Store) Get(id string) (*Page, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[id]
	return p, ok
}

// Remove closes and unregisters the page under id. It is a no-op if no
// such page is registered (closing a page twice must not error).
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	p, ok := s.pages[id]
	if ok {
		delete(s.pages, id)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return p.Close()
}

// Len reports how many pages are currently registered.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

// Stats returns a liveness snapshot of every registered page: how many
// refs each page has issued and how deep its version history currently
// runs. Intended for an operator to poll periodically, the way
// observability.HeartbeatWriter exposes worker liveness, minus persistence.
func (s *Store) Stats() []PageStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := make([]PageStats, 0, len(s.pages))
	for _, p := range s.pages {
		stats = append(stats, p.stats())
	}
	return stats
}
