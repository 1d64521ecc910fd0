package main

import (
	"strings"
	"sync"
	"time"
)

// Room is one isolated game instance. All fields below mu are guarded by it;
// every exported method acquires it for its whole read-modify-write.
type Room struct {
	Code string

	mu           sync.Mutex
	participants []*Participant
	capacity     int
	started      bool
	phase        Phase
	round        int
	timeLeft     int
	votePublic   bool
	result       *GameResult
	closed       bool
	gameID       string
	startedAt    time.Time

	nightActions map[string]NightAction
	nightOrder   []string
	votes        map[string]string
	voteOrder    []string

	history     []*RoundRecord
	discussions int
	chronicle   []string
	engine      *DecisionEngine

	// Timers: seq invalidates every callback scheduled before the last cancel.
	seq       uint64
	countdown *countdown
	timers    []*time.Timer

	cfg      GameConfig
	emit     Emitter
	log      *AppLogger
	archive  GameArchiver
	narrator Storyteller
	now      func() time.Time
}

// RoomDeps are the collaborators a room reports to.
type RoomDeps struct {
	Emitter  Emitter
	Logger   *AppLogger
	Archive  GameArchiver
	Narrator Storyteller
}

func newRoom(code string, cfg GameConfig, deps RoomDeps) *Room {
	if deps.Emitter == nil {
		deps.Emitter = nopEmitter{}
	}
	if deps.Logger == nil {
		deps.Logger = NewNopLogger()
	}
	r := &Room{
		Code:         code,
		capacity:     cfg.DefaultCapacity,
		phase:        PhaseLobby,
		nightActions: make(map[string]NightAction),
		votes:        make(map[string]string),
		cfg:          cfg,
		emit:         deps.Emitter,
		log:          deps.Logger.Room(code),
		archive:      deps.Archive,
		narrator:     deps.Narrator,
		now:          time.Now,
	}
	r.engine = newDecisionEngine(r.now().UnixNano())
	return r
}

func (r *Room) participant(id string) *Participant {
	for _, p := range r.participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) participantByName(name string) *Participant {
	for _, p := range r.participants {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

func (r *Room) host() *Participant {
	for _, p := range r.participants {
		if p.Host {
			return p
		}
	}
	return nil
}

func (r *Room) living() []*Participant {
	var alive []*Participant
	for _, p := range r.participants {
		if p.Alive {
			alive = append(alive, p)
		}
	}
	return alive
}

// requireHost returns the actor if it is seated and holds the host seat.
func (r *Room) requireHost(actorID string) (*Participant, error) {
	p := r.participant(actorID)
	if p == nil {
		return nil, ErrNotInRoom
	}
	if !p.Host {
		return nil, ErrNotHost
	}
	return p, nil
}

// nameTaken reports a case-insensitive collision with any seated human or agent.
func (r *Room) nameTaken(name string) bool {
	return r.participantByName(name) != nil
}

// removeLocked deletes a seat, reassigning host to the first remaining
// participant. Returns false if id was not seated.
func (r *Room) removeLocked(id string) bool {
	idx := -1
	for i, p := range r.participants {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	wasHost := r.participants[idx].Host
	r.participants = append(r.participants[:idx], r.participants[idx+1:]...)

	// Drop the seat's own submissions and any aimed at it.
	delete(r.nightActions, id)
	r.nightOrder = removeString(r.nightOrder, id)
	for actor, a := range r.nightActions {
		if a.Target == id {
			delete(r.nightActions, actor)
			r.nightOrder = removeString(r.nightOrder, actor)
		}
	}
	delete(r.votes, id)
	r.voteOrder = removeString(r.voteOrder, id)
	for voter, target := range r.votes {
		if target == id {
			delete(r.votes, voter)
			r.voteOrder = removeString(r.voteOrder, voter)
		}
	}

	if wasHost && len(r.participants) > 0 {
		r.nextHost().Host = true
	}
	return true
}

// nextHost is the first remaining human, or the first participant when only
// agents are left.
func (r *Room) nextHost() *Participant {
	for _, p := range r.participants {
		if !p.Agent {
			return p
		}
	}
	return r.participants[0]
}

func (r *Room) hasHumans() bool {
	for _, p := range r.participants {
		if !p.Agent {
			return true
		}
	}
	return false
}

func (r *Room) rosterLocked() RosterPayload {
	roster := RosterPayload{Capacity: r.capacity, Players: []Participant{}, Agents: []Participant{}}
	for _, p := range r.participants {
		c := *p
		if r.phase != PhaseGameOver {
			c.Role = ""
		}
		if p.Agent {
			roster.Agents = append(roster.Agents, c)
		} else {
			roster.Players = append(roster.Players, c)
		}
	}
	return roster
}

// Roster returns the public roster; roles are only revealed once the game is over.
func (r *Room) Roster() RosterPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosterLocked()
}

// Snapshot returns a read-only copy of the room's public state.
func (r *Room) Snapshot() RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	roster := r.rosterLocked()
	snap := RoomSnapshot{
		Code:       r.Code,
		Phase:      r.phase,
		Round:      r.round,
		TimeLeft:   r.timeLeft,
		Capacity:   r.capacity,
		Started:    r.started,
		VotePublic: r.votePublic,
		Players:    roster.Players,
		Agents:     roster.Agents,
	}
	if r.result != nil {
		res := *r.result
		snap.Result = &res
	}
	return snap
}

// History returns a deep-enough copy of the round history for read-only use.
func (r *Room) History() []RoundRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RoundRecord, len(r.history))
	for i, rec := range r.history {
		out[i] = *rec
	}
	return out
}

// Participant returns a copy of a seated participant.
func (r *Room) Participant(id string) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.participant(id)
	if p == nil {
		return Participant{}, false
	}
	return *p, true
}

func (r *Room) broadcastRosterLocked() {
	r.emit.Broadcast(r.Code, Event{Type: EventRosterUpdate, Payload: r.rosterLocked()})
}

func removeString(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
