package ringchan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendDropsOldest(t *testing.T) {
	rc := New[int](3)
	for i := 0; i < 10; i++ {
		rc.Send(i)
	}
	rc.Close()

	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{7, 8, 9}, got, "MUST keep the newest values")

	m := rc.Metrics()
	assert.Equal(t, int64(10), m.Written)
	assert.Equal(t, int64(7), m.Overwritten)
}

func TestSendReportsDrop(t *testing.T) {
	rc := New[string](1)
	assert.False(t, rc.Send("a"))
	assert.True(t, rc.Send("b"), "MUST report the dropped element")

	v, ok := rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, int64(1), rc.Metrics().Processed)
}

func TestTrySend(t *testing.T) {
	rc := New[int](1)
	assert.True(t, rc.TrySend(1))
	assert.False(t, rc.TrySend(2), "MUST refuse when full")
	assert.Equal(t, 1, rc.Len())
	assert.Equal(t, 1, rc.Cap())
}

func TestClose(t *testing.T) {
	rc := New[int](2)
	rc.Send(1)
	rc.Close()
	rc.Close()

	assert.True(t, rc.Closed())
	assert.True(t, rc.Send(2), "send after close MUST drop")
	assert.False(t, rc.TrySend(3))
	assert.Equal(t, int64(1), rc.Metrics().Errors)

	v, ok := rc.Receive()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = rc.Receive()
	assert.False(t, ok, "MUST report closed after draining")

	_, ok = rc.TryReceive()
	assert.False(t, ok)
}

func TestConcurrentProducers(t *testing.T) {
	rc := New[int](4)

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rc.Send(i)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, ok := rc.Receive(); !ok {
				return
			}
		}
	}()

	wg.Wait()
	rc.Close()
	<-done

	m := rc.Metrics()
	assert.Equal(t, int64(800), m.Written)
	assert.Equal(t, m.Written, m.Processed+m.Overwritten, "every value MUST be either consumed or dropped")
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
