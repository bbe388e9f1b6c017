package service

import (
	"sync"

	"github.com/google/uuid"
)

// turnGate serializes work per session. Entries exist only while someone
// holds or waits for them.
type turnGate struct {
	mu    sync.Mutex
	gates map[uuid.UUID]*gateEntry
}

type gateEntry struct {
	mu   sync.Mutex
	refs int
}

func newTurnGate() *turnGate {
	return &turnGate{gates: make(map[uuid.UUID]*gateEntry)}
}

// Lock blocks until the caller owns the session and returns the release
// function.
func (g *turnGate) Lock(sessionId uuid.UUID) (unlock func()) {
	g.mu.Lock()
	e, ok := g.gates[sessionId]
	if !ok {
		e = &gateEntry{}
		g.gates[sessionId] = e
	}
	e.refs++
	g.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()

		g.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(g.gates, sessionId)
		}
		g.mu.Unlock()
	}
}
