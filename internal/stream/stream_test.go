package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, s *Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-s.C:
		require.True(t, ok, "subscription closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func TestValue_ReplaysCurrent(t *testing.T) {
	v := NewValue("test", 1)
	v.Set(2)

	sub := v.Subscribe()

	assert.Equal(t, 2, receive(t, sub))
	assert.Equal(t, 2, v.Get())
}

func TestValue_DeliversRepeatsInOrder(t *testing.T) {
	v := NewValue("recording", false)
	sub := v.Subscribe()

	for _, x := range []bool{true, false, true, false, false} {
		v.Set(x)
	}

	var got []bool
	for i := 0; i < 6; i++ {
		got = append(got, receive(t, sub))
	}
	assert.Equal(t, []bool{false, true, false, true, false, false}, got)
}

func TestValue_UnsubscribeClosesChannel(t *testing.T) {
	v := NewValue("test", "a")
	sub := v.Subscribe()
	receive(t, sub)

	v.Unsubscribe(sub)
	v.Set("b")

	_, ok := <-sub.C
	assert.False(t, ok)
}

func TestValue_CloseIgnoresLaterSets(t *testing.T) {
	v := NewValue("test", 0)
	sub := v.Subscribe()
	receive(t, sub)

	v.Close()
	v.Set(5)

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 0, v.Get())

	late := v.Subscribe()
	_, ok = <-late.C
	assert.False(t, ok)
}

func TestEvent_NoReplay(t *testing.T) {
	e := NewEvent[string]("finished")
	e.Send("before")

	sub := e.Subscribe()
	e.Send("after")

	assert.Equal(t, "after", receive(t, sub))
	select {
	case v := <-sub.C:
		t.Fatalf("unexpected value %q", v)
	default:
	}
}

func TestEvent_SlowSubscriberDoesNotBlock(t *testing.T) {
	e := NewEvent[int]("burst")
	sub := e.Subscribe()

	for i := 0; i < DefaultBuffer*2; i++ {
		e.Send(i)
	}

	assert.Len(t, sub.C, DefaultBuffer)
	assert.Equal(t, 0, receive(t, sub))
}
