package main

import (
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// RoomCodeLength is the length of generated room codes
	RoomCodeLength = 6

	// RoomCodeChars are the characters used for generating room codes (excluding ambiguous chars)
	RoomCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// TestSessionID skips the one-seat-per-session rule so a single client can
	// fill a table while testing. It is a convenience, not a security boundary.
	TestSessionID = "test-session"

	agentIDPrefix = "agent-"
)

type seat struct {
	code          string
	participantID string
}

// Registry owns the set of active rooms and the session → seat index.
// Lock order: Registry.mu before Room.mu, never the reverse.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	seats map[string]seat

	cfg  GameConfig
	deps RoomDeps
	log  *AppLogger
}

func NewRegistry(cfg GameConfig, deps RoomDeps) *Registry {
	if deps.Logger == nil {
		deps.Logger = NewNopLogger()
	}
	return &Registry{
		rooms: make(map[string]*Room),
		seats: make(map[string]seat),
		cfg:   cfg,
		deps:  deps,
		log:   deps.Logger,
	}
}

// Room looks up a live room by code (case-insensitive).
func (reg *Registry) Room(code string) (*Room, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[normalizeCode(code)]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// SeatOf returns the room and participant a session currently occupies.
func (reg *Registry) SeatOf(session string) (code, participantID string, ok bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	s, ok := reg.seats[session]
	return s.code, s.participantID, ok
}

// RoomCount returns the number of live rooms.
func (reg *Registry) RoomCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// CreateRoom opens a new room with the caller as its sole, hosting participant.
func (reg *Registry) CreateRoom(name, session string) (*Room, Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, Participant{}, ErrInvalidName
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.sessionSeatedLocked(session) {
		return nil, Participant{}, ErrSessionAlreadyActive
	}

	code := reg.uniqueCodeLocked()
	room := newRoom(code, reg.cfg, reg.deps)
	p := &Participant{ID: uuid.NewString(), Name: name, Alive: true, Host: true, session: session}
	room.participants = []*Participant{p}

	reg.rooms[code] = room
	reg.trackSeatLocked(session, code, p.ID)

	reg.log.Info("room created", zap.String("room", code), zap.String("host", name))
	return room, *p, nil
}

// JoinRoom seats a human in an existing lobby.
func (reg *Registry) JoinRoom(code, name, session string) (*Room, Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, Participant{}, ErrInvalidName
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[normalizeCode(code)]
	if !ok {
		return nil, Participant{}, ErrRoomNotFound
	}
	if reg.sessionSeatedLocked(session) {
		return nil, Participant{}, ErrSessionAlreadyActive
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed {
		return nil, Participant{}, ErrRoomNotFound
	}
	if room.started {
		return nil, Participant{}, ErrGameAlreadyStarted
	}
	if len(room.participants) >= room.capacity {
		return nil, Participant{}, ErrRoomFull
	}
	if room.nameTaken(name) {
		return nil, Participant{}, ErrNameDuplicate
	}

	p := &Participant{ID: uuid.NewString(), Name: name, Alive: true, session: session}
	room.participants = append(room.participants, p)
	reg.trackSeatLocked(session, room.Code, p.ID)

	room.log.Info("player joined", zap.String("name", name), zap.Int("seated", len(room.participants)))
	return room, *p, nil
}

// AddAgent seats a computer-controlled participant. Host only.
func (reg *Registry) AddAgent(code, actorID, name string) (Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Participant{}, ErrInvalidName
	}
	room, err := reg.Room(code)
	if err != nil {
		return Participant{}, err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if _, err := room.requireHost(actorID); err != nil {
		return Participant{}, err
	}
	if room.started {
		return Participant{}, ErrGameAlreadyStarted
	}
	if len(room.participants) >= room.capacity {
		return Participant{}, ErrRoomFull
	}
	if room.nameTaken(name) {
		return Participant{}, ErrNameDuplicate
	}

	p := &Participant{ID: agentIDPrefix + uuid.NewString(), Name: name, Alive: true, Agent: true}
	room.participants = append(room.participants, p)
	room.log.Info("agent added", zap.String("name", name), zap.Int("seated", len(room.participants)))
	return *p, nil
}

// RemoveAgent unseats an agent by name or ID; an empty name removes the most
// recently added agent. Host only, lobby only.
func (reg *Registry) RemoveAgent(code, actorID, name string) (Participant, error) {
	room, err := reg.Room(code)
	if err != nil {
		return Participant{}, err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if _, err := room.requireHost(actorID); err != nil {
		return Participant{}, err
	}
	if room.started {
		return Participant{}, ErrGameAlreadyStarted
	}

	var target *Participant
	name = strings.TrimSpace(name)
	for i := len(room.participants) - 1; i >= 0; i-- {
		p := room.participants[i]
		if !p.Agent {
			continue
		}
		if name == "" || p.ID == name || strings.EqualFold(p.Name, name) {
			target = p
			break
		}
	}
	if target == nil {
		return Participant{}, ErrInvalidTarget
	}

	removed := *target
	room.removeLocked(target.ID)
	room.log.Info("agent removed", zap.String("name", removed.Name))
	return removed, nil
}

// RemoveParticipant unseats anyone by ID. The host seat moves to the first
// remaining human; a room left without humans is torn down and its timers
// cancelled.
// Returns whether the room was torn down.
func (reg *Registry) RemoveParticipant(code, participantID string) (bool, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[normalizeCode(code)]
	if !ok {
		return false, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	p := room.participant(participantID)
	if p == nil {
		return false, ErrNotInRoom
	}
	if s, ok := reg.seats[p.session]; ok && s.participantID == p.ID {
		delete(reg.seats, p.session)
	}
	room.removeLocked(p.ID)
	room.log.Info("participant left", zap.String("name", p.Name), zap.Int("seated", len(room.participants)))

	// Agents cannot send intents, so a room without humans is abandoned.
	if !room.hasHumans() {
		room.closeLocked()
		delete(reg.rooms, room.Code)
		room.log.Info("room closed")
		return true, nil
	}

	room.afterDepartureLocked()
	return false, nil
}

// SetCapacity changes the seat limit. Host only, lobby only.
func (reg *Registry) SetCapacity(code, actorID string, n int) error {
	room, err := reg.Room(code)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if _, err := room.requireHost(actorID); err != nil {
		return err
	}
	if room.started {
		return ErrGameAlreadyStarted
	}
	if n < reg.cfg.MinPlayers || n > reg.cfg.MaxCapacity || n < len(room.participants) {
		return ErrInvalidCapacity
	}
	room.capacity = n
	return nil
}

// Close tears down every room. Used on shutdown.
func (reg *Registry) Close() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for code, room := range reg.rooms {
		room.mu.Lock()
		room.closeLocked()
		room.mu.Unlock()
		delete(reg.rooms, code)
	}
	reg.seats = make(map[string]seat)
}

func (reg *Registry) sessionSeatedLocked(session string) bool {
	if session == TestSessionID {
		return false
	}
	_, ok := reg.seats[session]
	return ok
}

func (reg *Registry) trackSeatLocked(session, code, participantID string) {
	if session == "" || session == TestSessionID {
		return
	}
	reg.seats[session] = seat{code: code, participantID: participantID}
}

func (reg *Registry) uniqueCodeLocked() string {
	for {
		code := generateRoomCode()
		if _, exists := reg.rooms[code]; !exists {
			return code
		}
	}
}

// generateRoomCode creates a random room code
func generateRoomCode() string {
	code := make([]byte, RoomCodeLength)
	for i := range code {
		code[i] = RoomCodeChars[rand.IntN(len(RoomCodeChars))]
	}
	return string(code)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
