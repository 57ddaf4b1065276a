// Package session keeps per-session counters in memory and suppresses
// repeated interventions for the same distraction.
package session

import (
	"sort"
	"sync"
	"time"

	"focusaura/internal/config"
	"focusaura/internal/domain"
)

type entry struct {
	info     domain.SessionInfo
	last     domain.InterventionResponse
	lastAt   time.Time
	haveLast bool
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*entry
	idle     time.Duration
	window   time.Duration

	Now func() time.Time
}

func New(cfg config.SessionConfig) *Tracker {
	return &Tracker{
		sessions: make(map[string]*entry),
		idle:     cfg.IdleTimeout,
		window:   cfg.DedupWindow,
		Now:      time.Now,
	}
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Observe counts a distraction for the session. When the previous
// intervention for the same category is still inside the dedup window it is
// returned with ok set, and the caller should not compose a new one.
func (t *Tracker) Observe(id string, category domain.Category) (domain.InterventionResponse, bool) {
	if id == "" {
		return domain.InterventionResponse{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.expireLocked(now)
	e, ok := t.sessions[id]
	if !ok {
		e = &entry{info: domain.SessionInfo{SessionID: id, CreatedAt: now}}
		t.sessions[id] = e
	}
	e.info.DistractionCount++
	e.info.LastActivity = now

	if t.window > 0 && e.haveLast && e.info.LastCategory == category && now.Sub(e.lastAt) < t.window {
		return e.last, true
	}
	return domain.InterventionResponse{}, false
}

// Record stores a freshly composed intervention for the session.
func (t *Tracker) Record(id string, category domain.Category, resp domain.InterventionResponse) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	e, ok := t.sessions[id]
	if !ok {
		e = &entry{info: domain.SessionInfo{SessionID: id, CreatedAt: now}}
		t.sessions[id] = e
	}
	e.info.InterventionCount++
	e.info.LastCategory = category
	e.info.LastActivity = now
	e.last = resp
	e.lastAt = now
	e.haveLast = true
}

func (t *Tracker) Get(id string) (domain.SessionInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expireLocked(t.now())
	e, ok := t.sessions[id]
	if !ok {
		return domain.SessionInfo{}, false
	}
	return e.info, true
}

// List returns the active sessions, oldest first.
func (t *Tracker) List() []domain.SessionInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expireLocked(t.now())

	out := make([]domain.SessionInfo, 0, len(t.sessions))
	for _, e := range t.sessions {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Delete removes a session and reports whether it existed.
func (t *Tracker) Delete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[id]; !ok {
		return false
	}
	delete(t.sessions, id)
	return true
}

func (t *Tracker) expireLocked(now time.Time) {
	if t.idle <= 0 {
		return
	}
	for id, e := range t.sessions {
		if now.Sub(e.info.LastActivity) > t.idle {
			delete(t.sessions, id)
		}
	}
}
