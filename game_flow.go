package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StartGame deals roles and moves the room from the lobby into night 1. Host only.
func (r *Room) StartGame(actorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.requireHost(actorID); err != nil {
		return err
	}
	if r.started || r.phase != PhaseLobby {
		return ErrGameAlreadyStarted
	}
	if len(r.participants) < r.cfg.MinPlayers {
		return ErrInsufficientPlayers
	}

	assignRoles(r.participants)
	for _, p := range r.participants {
		p.Alive = true
	}
	r.started = true
	r.round = 1
	r.gameID = uuid.NewString()
	r.startedAt = r.now()

	r.log.Info("game started", zap.Int("participants", len(r.participants)))
	r.emit.Broadcast(r.Code, Event{Type: EventGameStarted, Payload: RoundPayload{Round: r.round}})
	r.sendRolesLocked(r.participants...)

	r.enterNightLocked()
	return nil
}

// sendRolesLocked privately tells each participant its current role. Mafia also
// learn their teammates.
func (r *Room) sendRolesLocked(targets ...*Participant) {
	team := mafiaTeam(r.participants)
	for _, p := range targets {
		payload := RolePayload{Role: p.Role}
		if p.Role.IsMafia() {
			payload.MafiaTeam = team
		}
		r.emit.SendTo(r.Code, p.ID, Event{Type: EventRoleAssigned, Payload: payload})
	}
}

// swapAudienceLocked lists who needs a fresh role card after a swap: both
// parties, plus every mafia member when the mafia roster changed.
func (r *Room) swapAudienceLocked(swap *SwapResult) []*Participant {
	audience := []*Participant{r.participant(swap.Actor.ID), r.participant(swap.Target.ID)}
	if !swap.NewRole.IsMafia() {
		return audience
	}
	for _, p := range r.participants {
		if p.Role.IsMafia() && p.ID != swap.Actor.ID && p.ID != swap.Target.ID {
			audience = append(audience, p)
		}
	}
	return audience
}

// enterPhaseLocked is the only way phases change: it cancels every timer of the
// previous phase, announces the new one and starts its countdown.
func (r *Room) enterPhaseLocked(phase Phase, seconds int, expire func()) {
	r.cancelTimersLocked()
	r.phase = phase
	r.timeLeft = seconds

	r.log.Debug("phase change", zap.String("phase", string(phase)), zap.Int("round", r.round))
	r.emit.Broadcast(r.Code, Event{Type: EventPhaseChange, Payload: PhasePayload{Phase: phase, TimeLeft: seconds, Round: r.round}})

	if seconds > 0 {
		r.startCountdownLocked(seconds, expire)
	}
}

func (r *Room) enterNightLocked() {
	r.nightActions = make(map[string]NightAction)
	r.nightOrder = nil
	r.recordLocked(r.round)

	r.enterPhaseLocked(PhaseNight, r.cfg.Night, r.endNightLocked)
	r.scheduleAgentsLocked(PhaseNight, r.cfg.Night)
}

// endNightLocked resolves the night, publishes its results and either ends the
// game or moves on to the morning.
func (r *Room) endNightLocked() {
	results := r.resolveNightLocked()

	public := NightResults{Killed: results.Killed, Saved: results.Saved}
	r.emit.Broadcast(r.Code, Event{Type: EventNightResults, Payload: public})
	if results.Investigated != nil {
		r.emit.SendTo(r.Code, results.investigator, Event{Type: EventNightResults, Payload: NightResults{Investigated: results.Investigated}})
	}
	if swap := results.RoleSwapped; swap != nil {
		private := Event{Type: EventNightResults, Payload: NightResults{RoleSwapped: swap}}
		r.emit.SendTo(r.Code, swap.Actor.ID, private)
		r.emit.SendTo(r.Code, swap.Target.ID, private)
		r.sendRolesLocked(r.swapAudienceLocked(swap)...)
	}
	r.broadcastRosterLocked()

	if results.Killed != nil {
		r.chronicle = append(r.chronicle, fmt.Sprintf("Night %d: %s was killed by the mafia.", r.round, results.Killed.Name))
		r.narrateLocked()
	} else if results.Saved != nil {
		r.chronicle = append(r.chronicle, fmt.Sprintf("Night %d: the mafia struck, but %s survived.", r.round, results.Saved.Name))
	}

	r.log.Info("night resolved",
		zap.Int("round", r.round),
		zap.Bool("killed", results.Killed != nil),
		zap.Bool("saved", results.Saved != nil),
	)

	if r.checkWinConditionsLocked() {
		return
	}
	r.enterPhaseLocked(PhaseMorning, r.cfg.Settle, r.startDiscussionLocked)
}

func (r *Room) startDiscussionLocked() {
	r.discussions++
	r.enterPhaseLocked(PhaseDiscussion, r.cfg.Discussion, r.startVotingLocked)
}

func (r *Room) startVotingLocked() {
	r.votes = make(map[string]string)
	r.voteOrder = nil
	r.enterPhaseLocked(PhaseVoting, r.cfg.Voting, r.endVotingLocked)
	r.scheduleAgentsLocked(PhaseVoting, r.cfg.Voting)
}

// endVotingLocked resolves the votes, then ends the game or, after a settle
// delay, starts the next night.
func (r *Room) endVotingLocked() {
	r.cancelTimersLocked()
	r.timeLeft = 0

	results := r.resolveVotesLocked()
	r.emit.Broadcast(r.Code, Event{Type: EventVotingResults, Payload: results})
	r.broadcastRosterLocked()

	if e := results.Eliminated; e != nil {
		r.chronicle = append(r.chronicle, fmt.Sprintf("Day %d: the town voted out %s, who was %s.", r.round, e.Name, e.Role))
		r.narrateLocked()
	}
	r.log.Info("votes resolved", zap.Int("round", r.round), zap.Bool("eliminated", results.Eliminated != nil))

	if r.checkWinConditionsLocked() {
		return
	}
	r.afterLocked(time.Duration(r.cfg.Settle)*r.cfg.Tick, func() {
		r.round++
		r.enterNightLocked()
	})
}

// evaluateWinner decides the game from the living participants' factions.
func evaluateWinner(participants []*Participant) (Faction, bool) {
	var mafia, others int
	for _, p := range participants {
		if !p.Alive {
			continue
		}
		if p.Role.IsMafia() {
			mafia++
		} else {
			others++
		}
	}
	if mafia == 0 {
		return FactionCitizens, true
	}
	if mafia >= others {
		return FactionMafia, true
	}
	return "", false
}

// checkWinConditionsLocked ends the game if a faction has won and reports whether it did.
func (r *Room) checkWinConditionsLocked() bool {
	winner, over := evaluateWinner(r.participants)
	if !over {
		return false
	}
	r.endGameLocked(winner)
	return true
}

func (r *Room) endGameLocked(winner Faction) {
	r.enterPhaseLocked(PhaseGameOver, 0, nil)
	r.timeLeft = 0
	r.result = &GameResult{Winner: winner, Round: r.round, EndedAt: r.now()}

	roster := r.rosterLocked()
	r.emit.Broadcast(r.Code, Event{Type: EventGameEnd, Payload: GameEndPayload{Winner: winner, Players: roster.Players, Agents: roster.Agents}})
	r.log.Info("game over", zap.String("winner", string(winner)), zap.Int("round", r.round))

	r.archiveLocked()
}

func (r *Room) archiveLocked() {
	if r.archive == nil {
		return
	}
	game := ArchivedGame{
		ID:        r.gameID,
		RoomCode:  r.Code,
		Winner:    r.result.Winner,
		Rounds:    r.round,
		StartedAt: r.startedAt,
		EndedAt:   r.result.EndedAt,
	}
	for _, p := range r.participants {
		game.Participants = append(game.Participants, *p)
	}
	for _, rec := range r.history {
		game.History = append(game.History, *rec)
	}

	archive, log := r.archive, r.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := archive.ArchiveGame(ctx, game); err != nil {
			log.Error("archive game", zap.String("game", game.ID), zap.Error(err))
		}
	}()
}

// afterDepartureLocked re-checks the game after a seat was vacated mid-game.
func (r *Room) afterDepartureLocked() {
	if !r.started || r.phase == PhaseGameOver {
		return
	}
	if r.checkWinConditionsLocked() {
		return
	}
	if r.votingCanCloseEarlyLocked() {
		r.endVotingLocked()
	}
}

// Reset returns the room to its lobby with the same seats, discarding roles,
// history and the decision engine's ledger. Host only.
func (r *Room) Reset(actorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.requireHost(actorID); err != nil {
		return err
	}

	r.cancelTimersLocked()
	for _, p := range r.participants {
		p.Role = ""
		p.Alive = true
	}
	r.started = false
	r.phase = PhaseLobby
	r.round = 0
	r.timeLeft = 0
	r.result = nil
	r.gameID = ""
	r.nightActions = make(map[string]NightAction)
	r.nightOrder = nil
	r.votes = make(map[string]string)
	r.voteOrder = nil
	r.history = nil
	r.discussions = 0
	r.chronicle = nil
	r.engine.reset()

	r.log.Info("game reset")
	r.emit.Broadcast(r.Code, Event{Type: EventGameReset, Payload: r.rosterLocked()})
	return nil
}

// SetVoteVisibility toggles whether voting results disclose who voted for whom. Host only.
func (r *Room) SetVoteVisibility(actorID string, public bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.requireHost(actorID); err != nil {
		return err
	}
	r.votePublic = public
	r.emit.Broadcast(r.Code, Event{Type: EventVoteVisibility, Payload: VisibilityPayload{Public: public}})
	return nil
}

// Resync re-sends a reconnecting participant its role and the current phase.
func (r *Room) Resync(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.participant(participantID)
	if p == nil || !r.started {
		return
	}
	if p.Role != "" {
		r.sendRolesLocked(p)
	}
	r.emit.SendTo(r.Code, p.ID, Event{Type: EventPhaseChange, Payload: PhasePayload{Phase: r.phase, TimeLeft: r.timeLeft, Round: r.round}})
}

// recordLocked returns the history entry for round, appending it if needed.
func (r *Room) recordLocked(round int) *RoundRecord {
	if n := len(r.history); n > 0 && r.history[n-1].Round == round {
		return r.history[n-1]
	}
	rec := &RoundRecord{Round: round}
	r.history = append(r.history, rec)
	return rec
}

// scheduleAgentsLocked gives every living agent a randomly delayed turn before
// the phase deadline.
func (r *Room) scheduleAgentsLocked(phase Phase, seconds int) {
	limit := time.Duration(seconds-1) * r.cfg.Tick
	for _, p := range r.living() {
		if !p.Agent {
			continue
		}
		id := p.ID
		delay := r.engine.actionDelay(r.cfg.AgentDelay, limit)
		r.afterLocked(delay, func() { r.agentActLocked(id, phase) })
	}
}

// agentActLocked lets the decision engine act for one agent. Stale turns are dropped.
func (r *Room) agentActLocked(id string, phase Phase) {
	if r.phase != phase {
		return
	}
	p := r.participant(id)
	if p == nil || !p.Alive {
		return
	}
	view := r.viewLocked()

	var err error
	switch phase {
	case PhaseNight:
		action, ok := nightActionFor(p.Role)
		if !ok {
			return
		}
		target := r.engine.ChooseNightTarget(view, id)
		if target == "" {
			return
		}
		err = r.submitNightActionLocked(id, action, target)
	case PhaseVoting:
		target := r.engine.ChooseVote(view, id)
		if target == "" {
			return
		}
		err = r.submitVoteLocked(id, target)
	}
	if err != nil {
		r.log.Debug("agent action rejected", zap.String("agent", p.Name), zap.Error(err))
		return
	}
	if phase == PhaseVoting && r.votingCanCloseEarlyLocked() {
		r.endVotingLocked()
	}
}

func (r *Room) viewLocked() GameView {
	return GameView{
		Participants:    r.participants,
		History:         r.history,
		Round:           r.round,
		Phase:           r.phase,
		DiscussionsHeld: r.discussions,
	}
}
