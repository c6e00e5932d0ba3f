package actor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDStringAndParseRoundTrip(t *testing.T) {
	p := PID{ID: "master", Host: "10.0.0.1", Port: 5050}
	s := p.String()
	assert.Equal(t, "master@10.0.0.1:5050", s)

	parsed, err := ParsePID(s)
	require.NoError(t, err)
	assert.Equal(t, p, parsed)
}

func TestParsePIDRejectsMalformed(t *testing.T) {
	_, err := ParsePID("no-at-sign:5050")
	assert.Error(t, err)

	_, err = ParsePID("master@hostonly")
	assert.Error(t, err)

	_, err = ParsePID("master@host:notaport")
	assert.Error(t, err)
}

func TestMailboxRunsSerially(t *testing.T) {
	mb := NewMailbox(PID{ID: "t", Host: "localhost", Port: 1}, 8)
	go mb.Run()
	defer mb.Stop()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		mb.Send(func() {
			order = append(order, i)
			if i == 4 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("mailbox did not drain in time")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestAskReturnsResult(t *testing.T) {
	mb := NewMailbox(PID{ID: "t", Host: "localhost", Port: 1}, 1)
	go mb.Run()
	defer mb.Stop()

	got := Ask(mb, func() int { return 42 })
	assert.Equal(t, 42, got)
}

func TestStopDrainsQueuedWork(t *testing.T) {
	mb := NewMailbox(PID{ID: "t", Host: "localhost", Port: 1}, 4)
	go mb.Run()

	ran := make(chan struct{}, 1)
	mb.Send(func() { ran <- struct{}{} })
	mb.Stop()

	select {
	case <-ran:
	default:
		t.Fatal("queued work did not run before Stop returned")
	}
}
