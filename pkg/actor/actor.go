// Package actor provides the single-threaded mailbox primitive that the
// Master and Allocator are built on: each runs as one goroutine draining
// a serialized channel of closures, so the state each owns is never
// touched concurrently and no locking is needed inside a handler.
//
// This generalizes the events package's broker run-loop from a
// broadcast fan-out into a serialized per-actor mailbox, and adds
// PID-style addressing ("id@host:port") used to name actors the way
// libprocess names them, without implying any wire transport.
package actor

import (
	"fmt"
	"strconv"
	"strings"
)

// PID names an actor the way libprocess names a process: an id unique
// within a host, plus the host:port it's reachable at. Citadel never
// sends PIDs over a wire; they exist purely as log-friendly, comparable
// identity for actors running in the same binary or across a test
// cluster.
type PID struct {
	ID   string
	Host string
	Port int
}

// String renders the PID as "id@host:port".
func (p PID) String() string {
	return fmt.Sprintf("%s@%s:%d", p.ID, p.Host, p.Port)
}

// ParsePID parses the "id@host:port" form produced by String. It
// mirrors the three-part split (id, then host, then port) that
// libprocess's UPID stream extraction performs, rejecting any string
// missing one of the three parts.
func ParsePID(s string) (PID, error) {
	at := strings.IndexByte(s, '@')
	if at < 0 {
		return PID{}, fmt.Errorf("actor: %q missing '@id' separator", s)
	}
	id := s[:at]
	rest := s[at+1:]

	colon := strings.LastIndexByte(rest, ':')
	if colon < 0 {
		return PID{}, fmt.Errorf("actor: %q missing ':port'", s)
	}
	host := rest[:colon]
	if host == "" {
		return PID{}, fmt.Errorf("actor: %q has an empty host", s)
	}

	port, err := strconv.Atoi(rest[colon+1:])
	if err != nil {
		return PID{}, fmt.Errorf("actor: %q has a non-numeric port: %w", s, err)
	}

	return PID{ID: id, Host: host, Port: port}, nil
}

// Mailbox is a FIFO queue of closures consumed by a single goroutine.
// Every call into a Mailbox-backed component, whether from an external
// request or an internal timer, is submitted here and runs to
// completion before the next one starts.
type Mailbox struct {
	self   PID
	queue  chan func()
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewMailbox creates a Mailbox identified by self with the given queue
// depth. A depth of 0 makes Send synchronous with the consumer.
func NewMailbox(self PID, depth int) *Mailbox {
	return &Mailbox{
		self:   self,
		queue:  make(chan func(), depth),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Self returns the mailbox's identity.
func (m *Mailbox) Self() PID { return m.self }

// Run drains the mailbox until Stop is called, executing each queued
// closure serially. Run is meant to be launched in its own goroutine
// by the owning actor's constructor.
func (m *Mailbox) Run() {
	defer close(m.doneCh)
	for {
		select {
		case fn := <-m.queue:
			fn()
		case <-m.stopCh:
			// Drain anything already queued before exiting so callers that
			// raced a Send against Stop don't block forever.
			for {
				select {
				case fn := <-m.queue:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Send enqueues fn for serialized execution and returns immediately.
// It is safe to call from any goroutine, including from within another
// actor's own handler.
func (m *Mailbox) Send(fn func()) {
	select {
	case m.queue <- fn:
	case <-m.stopCh:
	}
}

// Ask enqueues fn and blocks until it has run, returning fn's result.
// Used by call sites that need the actor's answer before proceeding,
// e.g. the Master's RegisterFramework, which returns the id its own
// mailbox assigned.
func Ask[T any](m *Mailbox, fn func() T) T {
	result := make(chan T, 1)
	m.Send(func() { result <- fn() })
	return <-result
}

// Stop signals Run to exit after draining any already-queued work, and
// blocks until it has.
func (m *Mailbox) Stop() {
	close(m.stopCh)
	<-m.doneCh
}
