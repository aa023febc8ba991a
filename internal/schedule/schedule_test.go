package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeFiresInOrder(t *testing.T) {
	start := time.Unix(1000, 0)
	f := NewFake(start)
	var order []string
	f.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	f.AfterFunc(time.Second, func() { order = append(order, "a") })
	f.AfterFunc(5*time.Second, func() { order = append(order, "c") })

	f.Advance(999 * time.Millisecond)
	assert.Empty(t, order)

	f.Advance(time.Second + time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, start.Add(2*time.Second), f.Now())
	assert.Equal(t, 1, f.Pending())

	f.Advance(3 * time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 0, f.Pending())
}

func TestFakeStop(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var fired int32
	tm := f.AfterFunc(time.Second, func() { atomic.AddInt32(&fired, 1) })
	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())
	f.Advance(time.Minute)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))

	tm = f.AfterFunc(time.Second, func() { atomic.AddInt32(&fired, 1) })
	f.Advance(time.Second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
	assert.False(t, tm.Stop())
}

func TestFakeCallbackCanReschedule(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	count := 0
	var tick func()
	tick = func() {
		count++
		f.AfterFunc(time.Second, tick)
	}
	f.AfterFunc(time.Second, tick)
	f.Advance(3500 * time.Millisecond)
	assert.Equal(t, 3, count)
	assert.Equal(t, 1, f.Pending())
}

func TestSystemAfterFunc(t *testing.T) {
	done := make(chan struct{})
	System.AfterFunc(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("system timer did not fire")
	}

	tm := System.AfterFunc(time.Hour, func() {})
	assert.True(t, tm.Stop())
}
