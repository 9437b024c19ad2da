package core

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorged/database"
)

func TestNilPauseSwitch(t *testing.T) {
	var p *PauseSwitch
	assert.False(t, p.Paused())
}

func TestPauseSwitchPersists(t *testing.T) {
	var stored atomic.Bool
	p := NewPauseSwitch(false, func() (bool, error) { return stored.Load(), nil }, func(v bool) error {
		stored.Store(v)
		return nil
	})
	require.NoError(t, p.Set(true))
	assert.True(t, p.Paused())
	assert.True(t, stored.Load())

	// another process flips the stored value
	stored.Store(false)
	p.Refresh()
	assert.False(t, p.Paused())
}

func TestPauseSwitchPersistFailure(t *testing.T) {
	p := NewPauseSwitch(false, nil, func(bool) error { return errors.New("disk full") })
	assert.Error(t, p.Set(true))
	assert.True(t, p.Paused())
	p.Refresh() // no loader: keeps state
	assert.True(t, p.Paused())
}

func TestPauseSwitchRefresher(t *testing.T) {
	var stored atomic.Bool
	p := NewPauseSwitch(false, func() (bool, error) { return stored.Load(), nil }, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.RunRefresher(ctx, 5*time.Millisecond)
		close(done)
	}()

	stored.Store(true)
	assert.Eventually(t, p.Paused, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestLoadPauseSwitchFromDatabase(t *testing.T) {
	require.NoError(t, database.InitDB(filepath.Join(t.TempDir(), "gorged.db")))
	defer database.Close()

	require.NoError(t, database.SetPaused(true))
	p, err := LoadPauseSwitch()
	require.NoError(t, err)
	assert.True(t, p.Paused())

	require.NoError(t, p.Set(false))
	paused, err := database.GetPaused()
	require.NoError(t, err)
	assert.False(t, paused)
}
