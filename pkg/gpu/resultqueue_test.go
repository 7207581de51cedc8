package gpu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultQueueFIFO(t *testing.T) {
	q := newResultQueue(4)
	a := NewBufferValue([]float64{1})
	b := NewBufferValue([]float64{2})
	q.push(a)
	q.push(b)

	got1, ok := q.pop()
	require.True(t, ok)
	assert.Same(t, a, got1)

	got2, ok := q.pop()
	require.True(t, ok)
	assert.Same(t, b, got2)
}

func TestResultQueueCloseUnblocksReader(t *testing.T) {
	q := newResultQueue(4)
	done := make(chan struct{})
	var gotOK bool
	go func() {
		_, gotOK = q.pop()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	q.close()

	select {
	case <-done:
		assert.False(t, gotOK)
	case <-time.After(time.Second):
		t.Fatal("pop did not unblock after close")
	}
}

func TestResultQueueDrainsBeforeTerminator(t *testing.T) {
	q := newResultQueue(4)
	v := NewBufferValue([]float64{42})
	q.push(v)
	q.close()

	got, ok := q.pop()
	require.True(t, ok)
	assert.Same(t, v, got)

	_, ok = q.pop()
	assert.False(t, ok)
}
