package main

// Inbound intents, as sent in the "action" field of a websocket frame.
const (
	IntentCreateRoom     = "create_room"
	IntentJoinRoom       = "join_room"
	IntentLeaveRoom      = "leave_room"
	IntentAddAgent       = "add_agent"
	IntentRemoveAgent    = "remove_agent"
	IntentSetCapacity    = "set_capacity"
	IntentStartGame      = "start_game"
	IntentNightAction    = "night_action"
	IntentVote           = "vote"
	IntentVoteVisibility = "set_vote_visibility"
	IntentChat           = "chat"
	IntentResetGame      = "reset_game"
)

// Outbound event types.
const (
	EventSession         = "session"
	EventRoomCreated     = "room-created"
	EventRoomJoined      = "room-joined"
	EventJoinError       = "join-error"
	EventRosterUpdate    = "roster-update"
	EventGameStarted     = "game-started"
	EventGameStartError  = "game-start-error"
	EventRoleAssigned    = "role-assigned"
	EventPhaseChange     = "phase-change"
	EventTimerUpdate     = "timer-update"
	EventNightResults    = "night-results"
	EventVotingResults   = "voting-results"
	EventGameEnd         = "game-end"
	EventActionConfirmed = "action-confirmed"
	EventVoteConfirmed   = "vote-confirmed"
	EventVoteError       = "vote-error"
	EventGameReset       = "game-reset"
	EventVoteVisibility  = "vote-visibility-updated"
	EventChat            = "chat"
	EventStory           = "story"
	EventError           = "error"
)

// Event is one outbound message. Payload is marshalled as JSON by the transport.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Emitter delivers events to the participants of a room. Sending to an agent
// or to an unknown participant is a no-op. Implementations must not call back
// into the room: events are emitted while the room lock is held.
type Emitter interface {
	Broadcast(code string, ev Event)
	SendTo(code, participantID string, ev Event)
}

type nopEmitter struct{}

func (nopEmitter) Broadcast(string, Event)      {}
func (nopEmitter) SendTo(string, string, Event) {}

type ErrorPayload struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type RosterPayload struct {
	Players  []Participant `json:"players"`
	Agents   []Participant `json:"agents"`
	Capacity int           `json:"capacity"`
}

type RoomPayload struct {
	Code          string `json:"code"`
	ParticipantID string `json:"participantId"`
}

type RoundPayload struct {
	Round int `json:"round"`
}

type RolePayload struct {
	Role      Role             `json:"role"`
	MafiaTeam []ParticipantRef `json:"mafiaTeam,omitempty"`
}

type PhasePayload struct {
	Phase    Phase `json:"phase"`
	TimeLeft int   `json:"timeLeft"`
	Round    int   `json:"round,omitempty"`
}

type TimerPayload struct {
	TimeLeft int `json:"timeLeft"`
}

type GameEndPayload struct {
	Winner  Faction       `json:"winner"`
	Players []Participant `json:"players"`
	Agents  []Participant `json:"agents"`
}

type ActionPayload struct {
	Type   ActionType `json:"type"`
	Target string     `json:"target"`
}

type VotePayload struct {
	Target string `json:"target"`
}

type VisibilityPayload struct {
	Public bool `json:"public"`
}

type ChatPayload struct {
	From  ParticipantRef `json:"from"`
	Text  string         `json:"text"`
	Dead  bool           `json:"dead"`
	Phase Phase          `json:"phase"`
}

type StoryPayload struct {
	Round int    `json:"round"`
	Text  string `json:"text"`
	Done  bool   `json:"done"`
}
