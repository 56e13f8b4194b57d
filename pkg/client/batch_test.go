package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dustfall/arcade-backend/pkg/protocol"
)

func TestDebouncer_CollapsesBurstsToOneApplyPerWindow(t *testing.T) {
	var mu sync.Mutex
	var got []uint64
	d := newDebouncer(50*time.Millisecond, func(u protocol.GameUpdate) {
		mu.Lock()
		got = append(got, u.Tick)
		mu.Unlock()
	})
	defer d.Close()

	for i := 0; i < 10; i++ {
		d.Push(protocol.GameUpdate{Tick: uint64(i)})
	}

	// The first push of a quiet period applies immediately.
	mu.Lock()
	require.Equal(t, []uint64{0}, got)
	mu.Unlock()

	// The rest of the burst collapses to the latest value at the trailing
	// edge.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2 && got[1] == 9
	}, time.Second, 5*time.Millisecond)

	// After a full quiet window the next push is immediate again.
	time.Sleep(120 * time.Millisecond)
	d.Push(protocol.GameUpdate{Tick: 42})
	mu.Lock()
	require.Equal(t, []uint64{0, 9, 42}, got)
	mu.Unlock()
}

func TestDebouncer_DropDiscardsPending(t *testing.T) {
	applies := make(chan uint64, 16)
	d := newDebouncer(30*time.Millisecond, func(u protocol.GameUpdate) { applies <- u.Tick })
	defer d.Close()

	d.Push(protocol.GameUpdate{Tick: 1})
	d.Push(protocol.GameUpdate{Tick: 2})
	d.Drop()

	require.Equal(t, uint64(1), <-applies)
	select {
	case tick := <-applies:
		t.Fatalf("dropped snapshot still applied: tick %d", tick)
	case <-time.After(90 * time.Millisecond):
	}
}

func TestDebouncer_CloseStopsTrailingApply(t *testing.T) {
	applies := make(chan uint64, 16)
	d := newDebouncer(30*time.Millisecond, func(u protocol.GameUpdate) { applies <- u.Tick })

	d.Push(protocol.GameUpdate{Tick: 1})
	d.Push(protocol.GameUpdate{Tick: 2})
	d.Close()

	require.Equal(t, uint64(1), <-applies)
	select {
	case tick := <-applies:
		t.Fatalf("apply after close: tick %d", tick)
	case <-time.After(90 * time.Millisecond):
	}

	// Pushes after close are ignored.
	d.Push(protocol.GameUpdate{Tick: 3})
	select {
	case <-applies:
		t.Fatal("push after close applied")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBatcher_CoalescesPerPlayerLastValueWins(t *testing.T) {
	passes := make(chan []playerDelta, 4)
	b := newBatcher(40*time.Millisecond, func(ds []playerDelta) { passes <- ds })
	defer b.Close()

	b.Push(playerDelta{playerID: "p1", alive: ptr(false), cause: ptr("shot"), killedBy: ptr("p2")})
	b.Push(playerDelta{playerID: "p2", alive: ptr(false), cause: ptr("wall")})
	b.Push(playerDelta{playerID: "p1", alive: ptr(true), cause: ptr(""), killedBy: ptr("")})

	select {
	case ds := <-passes:
		require.Len(t, ds, 2)
		// First-arrival order, one entry per player, last value per field.
		require.Equal(t, "p1", ds[0].playerID)
		require.True(t, *ds[0].alive)
		require.Equal(t, "", *ds[0].cause)
		require.Equal(t, "p2", ds[1].playerID)
		require.False(t, *ds[1].alive)
		require.Equal(t, "wall", *ds[1].cause)
	case <-time.After(time.Second):
		t.Fatal("no apply pass")
	}

	// Nothing left pending, so no second pass fires.
	select {
	case ds := <-passes:
		t.Fatalf("unexpected second pass: %v", ds)
	case <-time.After(90 * time.Millisecond):
	}
}

func TestBatcher_MergeKeepsUntouchedFields(t *testing.T) {
	passes := make(chan []playerDelta, 4)
	b := newBatcher(30*time.Millisecond, func(ds []playerDelta) { passes <- ds })
	defer b.Close()

	b.Push(playerDelta{playerID: "p1", alive: ptr(false), cause: ptr("hazard")})
	b.Push(playerDelta{playerID: "p1", killedBy: ptr("p9")})

	ds := <-passes
	require.Len(t, ds, 1)
	require.False(t, *ds[0].alive)
	require.Equal(t, "hazard", *ds[0].cause)
	require.Equal(t, "p9", *ds[0].killedBy)
}

func TestBatcher_FlushAppliesEarly(t *testing.T) {
	passes := make(chan []playerDelta, 4)
	b := newBatcher(time.Hour, func(ds []playerDelta) { passes <- ds })
	defer b.Close()

	b.Push(playerDelta{playerID: "p1", alive: ptr(false)})
	b.Flush()

	select {
	case ds := <-passes:
		require.Len(t, ds, 1)
	default:
		t.Fatal("flush did not apply synchronously")
	}

	// Flush with nothing pending is a no-op.
	b.Flush()
	select {
	case <-passes:
		t.Fatal("empty flush produced a pass")
	default:
	}
}

func TestBatcher_CloseDropsPending(t *testing.T) {
	passes := make(chan []playerDelta, 4)
	b := newBatcher(20*time.Millisecond, func(ds []playerDelta) { passes <- ds })

	b.Push(playerDelta{playerID: "p1", alive: ptr(false)})
	b.Close()

	select {
	case <-passes:
		t.Fatal("pass fired after close")
	case <-time.After(70 * time.Millisecond):
	}
}
