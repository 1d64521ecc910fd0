package main

import "time"

type Role string

const (
	RoleCitizen Role = "citizen"
	RoleMafia   Role = "mafia"
	RoleDoctor  Role = "doctor"
	RolePolice  Role = "police"
	RoleWizard  Role = "wizard"
)

// IsMafia reports whether the role belongs to the mafia faction.
func (r Role) IsMafia() bool {
	return r == RoleMafia
}

type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseNight      Phase = "night"
	PhaseMorning    Phase = "morning"
	PhaseDiscussion Phase = "discussion"
	PhaseVoting     Phase = "voting"
	PhaseGameOver   Phase = "gameOver"
)

type ActionType string

// Night action types
const (
	ActionKill        ActionType = "kill"
	ActionSave        ActionType = "save"
	ActionInvestigate ActionType = "investigate"
	ActionSwap        ActionType = "swap"
)

// actionRoles maps each night action to the only role allowed to submit it.
var actionRoles = map[ActionType]Role{
	ActionKill:        RoleMafia,
	ActionSave:        RoleDoctor,
	ActionInvestigate: RolePolice,
	ActionSwap:        RoleWizard,
}

// nightActionFor returns the action a role performs at night, if any.
func nightActionFor(role Role) (ActionType, bool) {
	for action, r := range actionRoles {
		if r == role {
			return action, true
		}
	}
	return "", false
}

type Faction string

const (
	FactionCitizens Faction = "citizens"
	FactionMafia    Faction = "mafia"
)

// Participant is a seated human or agent. Agents have Agent set and no session.
type Participant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  Role   `json:"role,omitempty"`
	Alive bool   `json:"alive"`
	Host  bool   `json:"host"`
	Agent bool   `json:"agent"`

	session string
}

func (p *Participant) ref() *ParticipantRef {
	return &ParticipantRef{ID: p.ID, Name: p.Name}
}

// ParticipantRef is the public identity of a participant inside event payloads.
type ParticipantRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NightAction is one pending secret action. A zero SubmittedAt marks a
// submission without a recorded time.
type NightAction struct {
	Actor       string     `json:"actor"`
	Type        ActionType `json:"type"`
	Target      string     `json:"target"`
	SubmittedAt time.Time  `json:"submittedAt"`
}

type Investigation struct {
	Round        int    `json:"round"`
	Investigator string `json:"investigator"`
	Target       string `json:"target"`
	IsMafia      bool   `json:"isMafia"`
}

// RoleSwap records a wizard swap with the roles held before it happened.
type RoleSwap struct {
	Actor      string `json:"actor"`
	Target     string `json:"target"`
	ActorRole  Role   `json:"actorRole"`
	TargetRole Role   `json:"targetRole"`
}

// RoundRecord is one entry of a room's append-only round history.
type RoundRecord struct {
	Round int `json:"round"`

	NightResolved  bool            `json:"nightResolved"`
	NightActions   []NightAction   `json:"nightActions,omitempty"`
	NightDeaths    []string        `json:"nightDeaths,omitempty"`
	Saved          string          `json:"saved,omitempty"`
	Investigations []Investigation `json:"investigations,omitempty"`
	Swaps          []RoleSwap      `json:"swaps,omitempty"`

	VotingResolved bool              `json:"votingResolved"`
	Votes          map[string]string `json:"votes,omitempty"` // voter -> target
	VoteCounts     map[string]int    `json:"voteCounts,omitempty"`
	Eliminated     string            `json:"eliminated,omitempty"`
	EliminatedRole Role              `json:"eliminatedRole,omitempty"`
}

type InvestigationResult struct {
	Target  ParticipantRef `json:"target"`
	IsMafia bool           `json:"isMafia"`
}

type SwapResult struct {
	Actor   ParticipantRef `json:"actor"`
	Target  ParticipantRef `json:"target"`
	NewRole Role           `json:"newRole"`
}

// NightResults holds the outcome of one night. Nil fields did not happen.
type NightResults struct {
	Killed       *ParticipantRef      `json:"killed"`
	Saved        *ParticipantRef      `json:"saved"`
	Investigated *InvestigationResult `json:"investigated"`
	RoleSwapped  *SwapResult          `json:"roleSwapped"`

	investigator string
}

type EliminatedRef struct {
	ParticipantRef
	Role Role `json:"role"`
}

// VotingResults holds the outcome of one voting phase, keyed by participant ID.
type VotingResults struct {
	Eliminated  *EliminatedRef    `json:"eliminated"`
	VoteCounts  map[string]int    `json:"voteCounts"`
	VoteDetails map[string]string `json:"voteDetails,omitempty"` // voter name -> target name
	VotePublic  bool              `json:"votePublic"`
}

type GameResult struct {
	Winner  Faction   `json:"winner"`
	Round   int       `json:"round"`
	EndedAt time.Time `json:"endedAt"`
}

// RoomSnapshot is a read-only copy of a room's public state.
type RoomSnapshot struct {
	Code       string        `json:"code"`
	Phase      Phase         `json:"phase"`
	Round      int           `json:"round"`
	TimeLeft   int           `json:"timeLeft"`
	Capacity   int           `json:"capacity"`
	Started    bool          `json:"started"`
	VotePublic bool          `json:"votePublic"`
	Players    []Participant `json:"players"`
	Agents     []Participant `json:"agents"`
	Result     *GameResult   `json:"result,omitempty"`
}
