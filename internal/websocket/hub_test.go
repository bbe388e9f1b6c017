package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-chat-be/internal/pkg/logger"
)

type fakeEndpoint struct {
	mu       sync.Mutex
	received []string
	broken   bool
	closed   bool
}

func (f *fakeEndpoint) Deliver(payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken || f.closed {
		return false
	}
	f.received = append(f.received, string(payload))
	return true
}

func (f *fakeEndpoint) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeEndpoint) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func newTestHub() *Hub {
	return NewHub(nil, logger.NewNopLogger())
}

func TestBroadcastReachesOnlyThatSession(t *testing.T) {
	h := newTestHub()
	a1, a2, b := &fakeEndpoint{}, &fakeEndpoint{}, &fakeEndpoint{}
	h.Connect("a", a1)
	h.Connect("a", a2)
	h.Connect("b", b)

	assert.Equal(t, 2, h.Broadcast("a", []byte("hello")))
	assert.Equal(t, []string{"hello"}, a1.messages())
	assert.Equal(t, []string{"hello"}, a2.messages())
	assert.Empty(t, b.messages())
}

func TestBroadcastDropsFailedEndpointAndContinues(t *testing.T) {
	h := newTestHub()
	broken := &fakeEndpoint{broken: true}
	healthy := &fakeEndpoint{}
	h.Connect("s", broken)
	h.Connect("s", healthy)

	assert.Equal(t, 1, h.Broadcast("s", []byte("x")))
	assert.True(t, broken.closed)
	assert.Equal(t, []string{"x"}, healthy.messages())
	assert.Equal(t, 1, h.ConnectionCount("s"))
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newTestHub()
	ep := &fakeEndpoint{}
	h.Connect("s", ep)

	assert.True(t, h.Disconnect("s", ep))
	assert.False(t, h.Disconnect("s", ep))
	assert.False(t, h.Disconnect("never", ep))
	assert.Zero(t, h.ConnectionCount("s"))
	assert.Zero(t, h.Broadcast("s", []byte("nobody")))
}

func TestSendPreservesOrderAcrossTurns(t *testing.T) {
	h := newTestHub()
	ep := &fakeEndpoint{}
	h.Connect("s", ep)

	for turn := 0; turn < 2; turn++ {
		for i := 0; i < 3; i++ {
			h.Send("s", ChunkEvent(fmt.Sprintf("t%d-%d", turn, i)))
		}
		h.Send("s", EndEvent())
	}

	var got []string
	for _, raw := range ep.messages() {
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(raw), &ev))
		if ev.Type == EventEnd {
			got = append(got, "END")
			continue
		}
		got = append(got, ev.Content)
	}
	assert.Equal(t, []string{"t0-0", "t0-1", "t0-2", "END", "t1-0", "t1-1", "t1-2", "END"}, got)
}

func TestConcurrentConnectBroadcastDisconnect(t *testing.T) {
	h := newTestHub()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ep := &fakeEndpoint{}
			h.Connect("s", ep)
			h.Broadcast("s", []byte("ping"))
			h.Disconnect("s", ep)
		}()
	}
	wg.Wait()
	assert.Zero(t, h.ConnectionCount("s"))
}

func TestEventEncoding(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{name: "chunk", event: ChunkEvent("Hi"), want: `{"type":"chunk","content":"Hi"}`},
		{name: "end", event: EndEvent(), want: `{"type":"end"}`},
		{name: "error", event: ErrorEvent("model unavailable"), want: `{"type":"error","message":"model unavailable"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.event)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}
