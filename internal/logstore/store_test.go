package logstore_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/corral/internal/domain"
	"github.com/gosuda/corral/internal/logstore"
)

// collect drains a subscription until its channel closes or the timeout
// fires, returning everything received.
func collect(t *testing.T, sub *logstore.Subscription, timeout time.Duration) []domain.LogLine {
	t.Helper()

	var out []domain.LogLine
	deadline := time.After(timeout)
	for {
		select {
		case line, ok := <-sub.Lines():
			if !ok {
				return out
			}
			out = append(out, line)
		case <-deadline:
			t.Fatalf("timed out draining subscription after %d lines", len(out))
			return nil
		}
	}
}

func TestStore_AppendAssignsGaplessSequence(t *testing.T) {
	t.Parallel()

	store := logstore.New()
	defer store.Close()

	for i := range 10 {
		line, err := store.Append(domain.StreamStdout, fmt.Sprintf("line %d", i))
		require.NoError(t, err)
		assert.Equal(t, uint64(i)+1, line.Seq)
	}

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 10)
	for i, line := range snapshot {
		assert.Equal(t, uint64(i)+1, line.Seq)
	}
}

func TestStore_LateSubscriberReplaysBacklog(t *testing.T) {
	t.Parallel()

	store := logstore.New()

	_, err := store.Append(domain.StreamStdout, "A\n")
	require.NoError(t, err)
	_, err = store.Append(domain.StreamStdout, "B\n")
	require.NoError(t, err)

	sub, err := store.Subscribe()
	require.NoError(t, err)

	store.Close()

	lines := collect(t, sub, time.Second)
	require.Len(t, lines, 2)
	assert.Equal(t, "A\n", lines[0].Content)
	assert.Equal(t, uint64(1), lines[0].Seq)
	assert.Equal(t, "B\n", lines[1].Content)
	assert.Equal(t, uint64(2), lines[1].Seq)
	assert.False(t, sub.Overflowed())
}

func TestStore_SubscriberSeesReplayThenLive(t *testing.T) {
	t.Parallel()

	store := logstore.New()

	_, err := store.Append(domain.StreamStdout, "before")
	require.NoError(t, err)

	sub, err := store.Subscribe()
	require.NoError(t, err)

	_, err = store.Append(domain.StreamStderr, "after")
	require.NoError(t, err)

	store.Close()

	lines := collect(t, sub, time.Second)
	require.Len(t, lines, 2)
	assert.Equal(t, "before", lines[0].Content)
	assert.Equal(t, domain.StreamStdout, lines[0].Stream)
	assert.Equal(t, "after", lines[1].Content)
	assert.Equal(t, domain.StreamStderr, lines[1].Stream)
}

func TestStore_AppendAfterCloseFails(t *testing.T) {
	t.Parallel()

	store := logstore.New()
	store.Close()

	_, err := store.Append(domain.StreamStdout, "too late")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreClosed)
}

func TestStore_SubscribeAfterCloseFails(t *testing.T) {
	t.Parallel()

	store := logstore.New()
	_, err := store.Append(domain.StreamStdout, "kept")
	require.NoError(t, err)
	store.Close()

	sub, err := store.Subscribe()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreClosed)
	assert.Nil(t, sub)

	// Snapshot remains usable for post-close replay.
	snapshot := store.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "kept", snapshot[0].Content)
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	store := logstore.New()
	sub, err := store.Subscribe()
	require.NoError(t, err)

	store.Close()
	store.Close()

	_, ok := <-sub.Lines()
	assert.False(t, ok)
}

func TestStore_SlowSubscriberIsDisconnectedNotBlocking(t *testing.T) {
	t.Parallel()

	store := logstore.New()
	defer store.Close()

	sub, err := store.Subscribe()
	require.NoError(t, err)

	// Never read from sub: the producer must keep appending past the
	// subscriber's buffer capacity without stalling.
	appended := 0
	for i := range 1000 {
		_, appendErr := store.Append(domain.StreamStdout, fmt.Sprintf("flood %d", i))
		require.NoError(t, appendErr)
		appended++
	}
	require.Equal(t, 1000, appended)

	// The overflowed subscriber's channel is closed after its buffered
	// prefix; the prefix itself stays ordered.
	lines := collect(t, sub, time.Second)
	assert.True(t, sub.Overflowed())
	assert.Less(t, len(lines), 1000)
	for i, line := range lines {
		assert.Equal(t, uint64(i)+1, line.Seq)
	}

	// A healthy late subscriber still gets the complete log.
	fresh, err := store.Subscribe()
	require.NoError(t, err)
	store.Close()
	all := collect(t, fresh, time.Second)
	assert.Len(t, all, 1000)
	assert.False(t, fresh.Overflowed())
}

func TestStore_DetachedSubscriberStopsReceiving(t *testing.T) {
	t.Parallel()

	store := logstore.New()
	defer store.Close()

	sub, err := store.Subscribe()
	require.NoError(t, err)

	sub.Close()
	sub.Close() // idempotent

	_, err = store.Append(domain.StreamStdout, "unseen")
	require.NoError(t, err)

	_, ok := <-sub.Lines()
	assert.False(t, ok)
	assert.False(t, sub.Overflowed())
}

func TestStore_ConcurrentSubscribersSeeSameOrder(t *testing.T) {
	t.Parallel()

	store := logstore.New()

	const subscribers = 8
	const total = 200

	subs := make([]*logstore.Subscription, subscribers)
	for i := range subs {
		sub, err := store.Subscribe()
		require.NoError(t, err)
		subs[i] = sub
	}

	var wg sync.WaitGroup
	results := make([][]domain.LogLine, subscribers)
	for i, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for line := range sub.Lines() {
				results[i] = append(results[i], line)
			}
		}()
	}

	for i := range total {
		_, err := store.Append(domain.StreamStdout, fmt.Sprintf("n=%d", i))
		require.NoError(t, err)
	}
	store.Close()
	wg.Wait()

	for i, lines := range results {
		require.Lenf(t, lines, total, "subscriber %d", i)
		for j, line := range lines {
			require.Equal(t, uint64(j)+1, line.Seq)
		}
	}
}
