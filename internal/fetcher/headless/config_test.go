package headless

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWithDefaultsFillsZeroValues(t *testing.T) {
	t.Parallel()

	cfg, err := Config{HardTimeout: 3 * time.Second}.withDefaults()
	require.NoError(t, err)
	def := DefaultConfig()
	require.Equal(t, def.UserAgent, cfg.UserAgent)
	require.Equal(t, def.DOMTimeout, cfg.DOMTimeout)
	require.Equal(t, def.IdleTimeout, cfg.IdleTimeout)
	require.Equal(t, 3*time.Second, cfg.HardTimeout)
	require.Equal(t, def.SelectorWait, cfg.SelectorWait)
	require.Equal(t, def.CaptureTimeout, cfg.CaptureTimeout)
	require.Equal(t, DefaultContentSelector, cfg.ContentSelector)
	require.Equal(t, ".wildberries.ru", cfg.CookieDomain)
	require.Equal(t, []string{"wbx-ssid", "region_id"}, cfg.CookieNames)
	require.Zero(t, cfg.MaxParallel)
}

func TestWithDefaultsRejectsNegativeParallelism(t *testing.T) {
	t.Parallel()

	_, err := Config{MaxParallel: -1}.withDefaults()
	require.Error(t, err)

	_, err = NewLauncher(Config{MaxParallel: -1}, nil)
	require.Error(t, err)
}

func TestNewLauncherSemaphore(t *testing.T) {
	t.Parallel()

	l, err := NewLauncher(Config{MaxParallel: 2}, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 2, cap(l.sem))

	unbounded, err := NewLauncher(Config{}, nil)
	require.NoError(t, err)
	require.Nil(t, unbounded.sem)
	release, err := unbounded.acquireSlot(t.Context())
	require.NoError(t, err)
	release()
}

func TestAcquireSlotHonoursContext(t *testing.T) {
	t.Parallel()

	l, err := NewLauncher(Config{MaxParallel: 1}, zap.NewNop())
	require.NoError(t, err)

	release, err := l.acquireSlot(t.Context())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = l.acquireSlot(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()
	again, err := l.acquireSlot(t.Context())
	require.NoError(t, err)
	again()
}

func TestNewPageFetcherRequiresLauncher(t *testing.T) {
	t.Parallel()

	_, err := NewPageFetcher(nil)
	require.Error(t, err)
}
