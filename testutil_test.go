package main

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// ============================================================================
// Recording emitter
// ============================================================================

type sentEvent struct {
	Code string
	To   string // empty for broadcasts
	Ev   Event
}

// recordingEmitter captures everything a room emits.
type recordingEmitter struct {
	mu     sync.Mutex
	events []sentEvent
}

func (e *recordingEmitter) Broadcast(code string, ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, sentEvent{Code: code, Ev: ev})
}

func (e *recordingEmitter) SendTo(code, participantID string, ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, sentEvent{Code: code, To: participantID, Ev: ev})
}

func (e *recordingEmitter) ofType(eventType string) []sentEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []sentEvent
	for _, s := range e.events {
		if s.Ev.Type == eventType {
			out = append(out, s)
		}
	}
	return out
}

func (e *recordingEmitter) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = nil
}

// waitFor polls until an event of the given type has been emitted.
func (e *recordingEmitter) waitFor(eventType string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(e.ofType(eventType)) > 0 {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// ============================================================================
// Test context
// ============================================================================

type testContext struct {
	t        *testing.T
	logger   *AppLogger
	emitter  *recordingEmitter
	registry *Registry
	cfg      GameConfig
}

// slowGameConfig never lets a phase clock fire on its own during a test.
func slowGameConfig() GameConfig {
	cfg := defaultGameConfig()
	cfg.Tick = time.Hour
	cfg.AgentDelay = [2]time.Duration{time.Hour, time.Hour}
	return cfg
}

// fastGameConfig runs whole phases in milliseconds.
func fastGameConfig() GameConfig {
	cfg := defaultGameConfig()
	cfg.Tick = 2 * time.Millisecond
	cfg.Night, cfg.Discussion, cfg.Voting, cfg.Settle, cfg.VoteGrace = 5, 3, 5, 1, 2
	cfg.AgentDelay = [2]time.Duration{0, 4 * time.Millisecond}
	return cfg
}

func newTestContext(t *testing.T) *testContext {
	return newTestContextWithConfig(t, slowGameConfig())
}

func newTestContextWithConfig(t *testing.T, cfg GameConfig) *testContext {
	ctx := &testContext{
		t:       t,
		logger:  NewNopLogger(),
		emitter: &recordingEmitter{},
		cfg:     cfg,
	}
	ctx.registry = NewRegistry(cfg, RoomDeps{Emitter: ctx.emitter, Logger: ctx.logger})
	return ctx
}

func (ctx *testContext) cleanup() {
	ctx.registry.Close()
}

// setupRoom creates a room hosted by "Host" plus the given number of agents.
func (ctx *testContext) setupRoom(agents int) (*Room, string) {
	ctx.t.Helper()
	room, host, err := ctx.registry.CreateRoom("Host", "host-session")
	if err != nil {
		ctx.t.Fatalf("create room: %v", err)
	}
	if err := ctx.registry.SetCapacity(room.Code, host.ID, ctx.cfg.MaxCapacity); err != nil {
		ctx.t.Fatalf("set capacity: %v", err)
	}
	for i := 0; i < agents; i++ {
		if _, err := ctx.registry.AddAgent(room.Code, host.ID, fmt.Sprintf("Agent%d", i+1)); err != nil {
			ctx.t.Fatalf("add agent: %v", err)
		}
	}
	return room, host.ID
}

// ============================================================================
// Room fixtures
// ============================================================================

// fixtureRoom builds a started room in the given phase with fixed roles, one
// participant per role, named after its index ("P0", "P1", ...).
func fixtureRoom(roles []Role, phase Phase) (*Room, *recordingEmitter) {
	em := &recordingEmitter{}
	r := newRoom("TEST01", slowGameConfig(), RoomDeps{Emitter: em})
	for i, role := range roles {
		r.participants = append(r.participants, &Participant{
			ID:    fmt.Sprintf("p%d", i),
			Name:  fmt.Sprintf("P%d", i),
			Role:  role,
			Alive: true,
			Host:  i == 0,
		})
	}
	r.started = true
	r.round = 1
	r.phase = phase
	r.timeLeft = 10
	return r, em
}
