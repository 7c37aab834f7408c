package liveness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProberParsesPaneList(t *testing.T) {
	p := New(WithRunner(func(ctx context.Context) ([]byte, error) {
		return []byte("%1\n%2\n\n%3\n"), nil
	}))

	panes := p.ActivePanes(context.Background())
	assert.Len(t, panes, 3)
	assert.True(t, p.Alive(context.Background(), "%2"))
	assert.False(t, p.Alive(context.Background(), "%9"))
	assert.False(t, p.Alive(context.Background(), ""), "empty handle is never alive")
}

func TestProberCachesWithinTTL(t *testing.T) {
	calls := 0
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	p := New(
		WithTTL(5*time.Second),
		WithClock(func() time.Time { return now }),
		WithRunner(func(ctx context.Context) ([]byte, error) {
			calls++
			return []byte("%1\n"), nil
		}),
	)

	p.ActivePanes(context.Background())
	p.ActivePanes(context.Background())
	p.ActivePanes(context.Background())
	require.Equal(t, 1, calls, "one probe serves the whole TTL window")

	now = now.Add(6 * time.Second)
	p.ActivePanes(context.Background())
	assert.Equal(t, 2, calls, "expired cache triggers a fresh probe")
}

func TestProberFailureYieldsEmptySet(t *testing.T) {
	p := New(WithRunner(func(ctx context.Context) ([]byte, error) {
		return nil, errors.New("tmux: command not found")
	}))

	panes := p.ActivePanes(context.Background())
	assert.Empty(t, panes, "probe failure is treated as nothing alive, not an error")
	assert.False(t, p.Alive(context.Background(), "%1"))
}
