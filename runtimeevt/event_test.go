package runtimeevt_test

import (
	"testing"
	"time"

	"github.com/drpcorg/regiontree/runtimeevt"
	"github.com/stretchr/testify/require"
)

func TestEventTriggerIdempotent(t *testing.T) {
	e := runtimeevt.NewEvent()
	require.False(t, e.Ready())
	e.Fire()
	e.Poison() // second trigger is a no-op, first wins
	require.True(t, e.Ready())
	require.False(t, e.Poisoned())
}

func TestEventPoison(t *testing.T) {
	e := runtimeevt.NewEvent()
	e.Poison()
	poisoned := e.Wait()
	require.True(t, poisoned)
}

func TestMergeFiresAfterAll(t *testing.T) {
	a := runtimeevt.NewEvent()
	b := runtimeevt.NewEvent()
	m := runtimeevt.Merge(a, b)

	require.False(t, m.Ready())
	a.Fire()
	time.Sleep(10 * time.Millisecond)
	require.False(t, m.Ready())
	b.Fire()
	require.False(t, m.Wait())
}

func TestMergePropagatesPoison(t *testing.T) {
	a := runtimeevt.NewEvent()
	b := runtimeevt.NewEvent()
	m := runtimeevt.Merge(a, b)
	a.Poison()
	b.Fire()
	require.True(t, m.Wait())
}

func TestMergeEmpty(t *testing.T) {
	m := runtimeevt.Merge()
	require.True(t, m.Ready())
}

func TestContinuationRuns(t *testing.T) {
	e := runtimeevt.NewEvent()
	done := make(chan bool, 1)
	e.Continuation(func(poisoned bool) { done <- poisoned })
	e.Fire()
	select {
	case p := <-done:
		require.False(t, p)
	case <-time.After(time.Second):
		t.Fatal("continuation never ran")
	}
}

func TestLocalRuntimeDeferredTask(t *testing.T) {
	rt := runtimeevt.NewLocalRuntime(1)
	pre := rt.CreateEvent()
	ran := make(chan struct{})
	rt.IssueDeferredTask(func() { close(ran) }, pre)
	select {
	case <-ran:
		t.Fatal("ran before precondition fired")
	case <-time.After(20 * time.Millisecond):
	}
	rt.TriggerEvent(pre, false)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("deferred task never ran")
	}
}

func TestLocalRuntimeSendMessage(t *testing.T) {
	rt := runtimeevt.NewLocalRuntime(1)
	got := make(chan []byte, 1)
	rt.RegisterHandler(2, func(b []byte) { got <- b })
	require.NoError(t, rt.SendMessage(2, []byte("hello")))
	select {
	case b := <-got:
		require.Equal(t, []byte("hello"), b)
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}
