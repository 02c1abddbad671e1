package refresh

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	fired []string
}

func (r *recorder) fire(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, id)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.fired))
	copy(out, r.fired)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestDebouncerCoalescesBurst(t *testing.T) {
	rec := &recorder{}
	d := New(30*time.Millisecond, rec.fire)
	defer d.Close()

	for i := 0; i < 10; i++ {
		d.Trigger("dec-1")
	}

	waitFor(t, time.Second, func() bool { return len(rec.snapshot()) == 1 })
	// Quiet period with no further triggers: nothing else fires.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, []string{"dec-1"}, rec.snapshot())
}

func TestDebouncerPerDecisionIsolation(t *testing.T) {
	rec := &recorder{}
	d := New(20*time.Millisecond, rec.fire)
	defer d.Close()

	d.Trigger("dec-1")
	d.Trigger("dec-2")

	waitFor(t, time.Second, func() bool { return len(rec.snapshot()) == 2 })
	fired := rec.snapshot()
	assert.Contains(t, fired, "dec-1")
	assert.Contains(t, fired, "dec-2")
}

func TestDebouncerTrailingEdge(t *testing.T) {
	rec := &recorder{}
	d := New(50*time.Millisecond, rec.fire)
	defer d.Close()

	d.Trigger("dec-1")
	time.Sleep(30 * time.Millisecond)
	require.Empty(t, rec.snapshot(), "must not fire before the quiet period elapses")

	// Another trigger pushes the deadline out.
	d.Trigger("dec-1")
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rec.snapshot())

	waitFor(t, time.Second, func() bool { return len(rec.snapshot()) == 1 })
}

func TestDebouncerFlush(t *testing.T) {
	rec := &recorder{}
	d := New(time.Hour, rec.fire)
	defer d.Close()

	d.Trigger("dec-1")
	d.Trigger("dec-2")
	d.Flush()

	assert.Len(t, rec.snapshot(), 2)
}

func TestDebouncerCloseDropsPending(t *testing.T) {
	rec := &recorder{}
	d := New(20*time.Millisecond, rec.fire)

	d.Trigger("dec-1")
	d.Close()
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rec.snapshot())

	// Triggers after close are ignored.
	d.Trigger("dec-2")
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}
