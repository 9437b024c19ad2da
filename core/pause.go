package core

import (
	"context"
	"sync/atomic"
	"time"

	"gorged/database"
	"gorged/logger"
)

// PauseSwitch turns rewriting off without stopping the proxy. A nil switch
// is never paused.
type PauseSwitch struct {
	paused  atomic.Bool
	load    func() (bool, error)
	persist func(bool) error
}

// NewPauseSwitch creates a switch. load and persist may be nil for an
// in-memory switch.
func NewPauseSwitch(initial bool, load func() (bool, error), persist func(bool) error) *PauseSwitch {
	p := &PauseSwitch{load: load, persist: persist}
	p.paused.Store(initial)
	return p
}

// LoadPauseSwitch builds a switch backed by the app_settings table.
func LoadPauseSwitch() (*PauseSwitch, error) {
	paused, err := database.GetPaused()
	if err != nil {
		return nil, err
	}
	return NewPauseSwitch(paused, database.GetPaused, database.SetPaused), nil
}

func (p *PauseSwitch) Paused() bool {
	return p != nil && p.paused.Load()
}

// Set changes the state and persists it. The in-memory state changes even
// when persisting fails.
func (p *PauseSwitch) Set(paused bool) error {
	p.paused.Store(paused)
	if p.persist == nil {
		return nil
	}
	return p.persist(paused)
}

// Refresh reloads the persisted state, picking up changes made by another
// process (the CLI writes the setting directly when no server is running).
func (p *PauseSwitch) Refresh() {
	if p.load == nil {
		return
	}
	paused, err := p.load()
	if err != nil {
		logger.ProxyError("PauseSwitch: reload failed: %v", err)
		return
	}
	if p.paused.Swap(paused) != paused {
		logger.ProxyInfo("PauseSwitch: rewriting paused=%t", paused)
	}
}

// RunRefresher calls Refresh every interval until ctx is done.
func (p *PauseSwitch) RunRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 || p.load == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Refresh()
		}
	}
}
