package main

import (
	"context"
	"errors"
	"testing"
	"testing/quick"
	"time"
)

// ============================================================================
// Starting a game
// ============================================================================

func TestStartGameFivePlayers(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	room, hostID := ctx.setupRoom(4)
	if err := room.StartGame(hostID); err != nil {
		t.Fatalf("start: %v", err)
	}

	snap := room.Snapshot()
	if snap.Round != 1 || snap.Phase != PhaseNight || !snap.Started {
		t.Errorf("unexpected state after start: %+v", snap)
	}
	if snap.TimeLeft != ctx.cfg.Night {
		t.Errorf("night timer %d, want %d", snap.TimeLeft, ctx.cfg.Night)
	}

	room.mu.Lock()
	counts := make(map[Role]int)
	for _, p := range room.participants {
		counts[p.Role]++
	}
	room.mu.Unlock()
	want := map[Role]int{RoleMafia: 1, RoleDoctor: 1, RolePolice: 1, RoleCitizen: 2}
	for role, n := range want {
		if counts[role] != n {
			t.Errorf("role %s: got %d, want %d", role, counts[role], n)
		}
	}
	if counts[RoleWizard] != 0 {
		t.Error("no wizard below seven players")
	}

	if n := len(ctx.emitter.ofType(EventGameStarted)); n != 1 {
		t.Errorf("game-started emitted %d times", n)
	}
	roles := ctx.emitter.ofType(EventRoleAssigned)
	if len(roles) != 5 {
		t.Fatalf("expected 5 private role messages, got %d", len(roles))
	}
	for _, s := range roles {
		if s.To == "" {
			t.Error("role-assigned must not be broadcast")
		}
		payload := s.Ev.Payload.(RolePayload)
		if payload.Role == RoleMafia && len(payload.MafiaTeam) != 1 {
			t.Errorf("mafia should learn its team: %+v", payload)
		}
		if payload.Role != RoleMafia && payload.MafiaTeam != nil {
			t.Errorf("non-mafia learned the mafia team: %+v", payload)
		}
	}
	for _, p := range room.Roster().Agents {
		if p.Role != "" {
			t.Error("roster must hide roles while the game runs")
		}
	}
}

func TestStartGameErrors(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	room, hostID := ctx.setupRoom(3)
	if err := room.StartGame(hostID); !errors.Is(err, ErrInsufficientPlayers) {
		t.Errorf("four seated: got %v", err)
	}

	_, guest, err := ctx.registry.JoinRoom(room.Code, "Guest", "guest")
	if err != nil {
		t.Fatal(err)
	}
	if err := room.StartGame(guest.ID); !errors.Is(err, ErrNotHost) {
		t.Errorf("guest start: got %v", err)
	}
	if err := room.StartGame(hostID); err != nil {
		t.Fatalf("five seated: %v", err)
	}
	if err := room.StartGame(hostID); !errors.Is(err, ErrGameAlreadyStarted) {
		t.Errorf("second start: got %v", err)
	}
}

// ============================================================================
// Win conditions
// ============================================================================

func TestWinLaw(t *testing.T) {
	f := func(m, o uint8) bool {
		mafia, others := int(m%5), int(o%8)
		var ps []*Participant
		for i := 0; i < mafia; i++ {
			ps = append(ps, &Participant{Role: RoleMafia, Alive: true})
		}
		for i := 0; i < others; i++ {
			ps = append(ps, &Participant{Role: RoleCitizen, Alive: true})
		}
		// The dead never count.
		ps = append(ps, &Participant{Role: RoleMafia}, &Participant{Role: RoleDoctor})

		winner, over := evaluateWinner(ps)
		switch {
		case mafia == 0:
			return over && winner == FactionCitizens
		case mafia >= others:
			return over && winner == FactionMafia
		default:
			return !over
		}
	}

	if err := quick.Check(f, &quick.Config{MaxCount: 50}); err != nil {
		t.Error(err)
	}
}

func TestNightKillCanEndGame(t *testing.T) {
	r, em := fixtureRoom([]Role{RoleMafia, RoleCitizen, RoleCitizen}, PhaseNight)
	mustAct(t, r, "p0", ActionKill, "p1")

	r.mu.Lock()
	r.endNightLocked()
	phase, result := r.phase, r.result
	r.mu.Unlock()

	if phase != PhaseGameOver || result == nil || result.Winner != FactionMafia {
		t.Fatalf("expected mafia win, phase=%s result=%+v", phase, result)
	}
	ends := em.ofType(EventGameEnd)
	if len(ends) != 1 {
		t.Fatalf("game-end emitted %d times", len(ends))
	}
	payload := ends[0].Ev.Payload.(GameEndPayload)
	for _, p := range payload.Players {
		if p.Role == "" {
			t.Error("game-end should reveal roles")
		}
	}
}

func TestNightResultsPrivacy(t *testing.T) {
	r, em := fixtureRoom([]Role{RoleMafia, RoleDoctor, RolePolice, RoleCitizen, RoleCitizen, RoleCitizen}, PhaseNight)
	mustAct(t, r, "p0", ActionKill, "p3")
	mustAct(t, r, "p2", ActionInvestigate, "p0")

	r.mu.Lock()
	r.endNightLocked()
	phase := r.phase
	r.cancelTimersLocked()
	r.mu.Unlock()

	if phase != PhaseMorning {
		t.Errorf("expected morning, got %s", phase)
	}
	var public, private int
	for _, s := range em.ofType(EventNightResults) {
		res := s.Ev.Payload.(NightResults)
		if s.To == "" {
			public++
			if res.Investigated != nil {
				t.Error("investigation leaked into public results")
			}
			if res.Killed == nil || res.Killed.ID != "p3" {
				t.Errorf("public results missing kill: %+v", res)
			}
		} else {
			private++
			if s.To != "p2" || res.Investigated == nil || !res.Investigated.IsMafia {
				t.Errorf("unexpected private result to %s: %+v", s.To, res)
			}
		}
	}
	if public != 1 || private != 1 {
		t.Errorf("public=%d private=%d", public, private)
	}
}

func TestSwapIntoMafiaRefreshesTeam(t *testing.T) {
	r, em := fixtureRoom([]Role{RoleMafia, RoleMafia, RoleWizard, RoleDoctor, RolePolice, RoleCitizen, RoleCitizen}, PhaseNight)
	mustAct(t, r, "p2", ActionSwap, "p1")

	r.mu.Lock()
	r.endNightLocked()
	r.cancelTimersLocked()
	r.mu.Unlock()

	cards := make(map[string]RolePayload)
	for _, s := range em.ofType(EventRoleAssigned) {
		cards[s.To] = s.Ev.Payload.(RolePayload)
	}
	if len(cards) != 3 {
		t.Fatalf("wizard, target and the remaining mafia need new cards, got %v", cards)
	}
	team, ok := cards["p0"]
	if !ok {
		t.Fatal("untouched mafia member was not told about the new team")
	}
	if len(team.MafiaTeam) != 2 || team.MafiaTeam[0].ID != "p0" || team.MafiaTeam[1].ID != "p2" {
		t.Errorf("stale mafia team: %+v", team.MafiaTeam)
	}
	if cards["p1"].Role != RoleCitizen || cards["p2"].Role != RoleMafia {
		t.Errorf("swap parties got wrong cards: %+v", cards)
	}
}

func TestSwapWithCitizenOnlyTellsBothParties(t *testing.T) {
	r, em := fixtureRoom([]Role{RoleMafia, RoleMafia, RoleWizard, RoleDoctor, RolePolice, RoleCitizen, RoleCitizen}, PhaseNight)
	mustAct(t, r, "p2", ActionSwap, "p4")

	r.mu.Lock()
	r.endNightLocked()
	r.cancelTimersLocked()
	r.mu.Unlock()

	for _, s := range em.ofType(EventRoleAssigned) {
		if s.To != "p2" && s.To != "p4" {
			t.Errorf("unexpected role card to %s", s.To)
		}
	}
}

func TestDepartureMidGameChecksWin(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	room, hostID := ctx.setupRoom(4)
	if err := room.StartGame(hostID); err != nil {
		t.Fatal(err)
	}

	// Keep the host out of the mafia so departures never empty the room of humans.
	room.mu.Lock()
	roles := []Role{RoleCitizen, RoleMafia, RoleDoctor, RolePolice, RoleCitizen}
	var mafia []string
	for i, p := range room.participants {
		p.Role = roles[i]
		if p.Role.IsMafia() {
			mafia = append(mafia, p.ID)
		}
	}
	room.mu.Unlock()

	for _, id := range mafia {
		if _, err := ctx.registry.RemoveParticipant(room.Code, id); err != nil {
			t.Fatal(err)
		}
	}
	snap := room.Snapshot()
	if snap.Phase != PhaseGameOver || snap.Result == nil || snap.Result.Winner != FactionCitizens {
		t.Errorf("citizens should win once the mafia leaves: %+v", snap)
	}
}

// ============================================================================
// Host controls
// ============================================================================

func TestResetReturnsToLobby(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	room, hostID := ctx.setupRoom(4)
	if err := room.StartGame(hostID); err != nil {
		t.Fatal(err)
	}
	room.mu.Lock()
	room.engine.Observe(ChatMessage{Speaker: hostID, Text: "I suspect Agent1", Phase: PhaseDiscussion}, room.participants)
	room.mu.Unlock()

	if err := room.Reset("nobody"); !errors.Is(err, ErrNotInRoom) {
		t.Errorf("stranger reset: got %v", err)
	}
	if err := room.Reset(hostID); err != nil {
		t.Fatal(err)
	}

	snap := room.Snapshot()
	if snap.Phase != PhaseLobby || snap.Round != 0 || snap.Started || snap.Result != nil {
		t.Errorf("unexpected state after reset: %+v", snap)
	}
	if len(room.History()) != 0 {
		t.Error("history should be discarded")
	}
	room.mu.Lock()
	for _, p := range room.participants {
		if p.Role != "" || !p.Alive {
			t.Errorf("participant not reset: %+v", p)
		}
	}
	if room.engine.ledger.Record(hostID) != nil {
		t.Error("behavior ledger should be discarded")
	}
	room.mu.Unlock()
	if len(ctx.emitter.ofType(EventGameReset)) != 1 {
		t.Error("game-reset not emitted")
	}

	// The same seats can play again.
	if err := room.StartGame(hostID); err != nil {
		t.Errorf("restart after reset: %v", err)
	}
}

func TestVoteVisibilityHostOnly(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.cleanup()

	room, hostID := ctx.setupRoom(0)
	_, guest, _ := ctx.registry.JoinRoom(room.Code, "Guest", "guest")

	if err := room.SetVoteVisibility(guest.ID, true); !errors.Is(err, ErrNotHost) {
		t.Errorf("guest toggle: got %v", err)
	}
	if err := room.SetVoteVisibility(hostID, true); err != nil {
		t.Fatal(err)
	}
	if !room.Snapshot().VotePublic {
		t.Error("votes should be public")
	}
	sent := ctx.emitter.ofType(EventVoteVisibility)
	if len(sent) != 1 || !sent[0].Ev.Payload.(VisibilityPayload).Public {
		t.Errorf("unexpected visibility events: %+v", sent)
	}
}

// ============================================================================
// Timers
// ============================================================================

func TestPhasesAdvanceOnTimers(t *testing.T) {
	ctx := newTestContextWithConfig(t, fastGameConfig())
	defer ctx.cleanup()

	room, hostID := ctx.setupRoom(6)
	if err := room.StartGame(hostID); err != nil {
		t.Fatal(err)
	}

	for _, ev := range []string{EventTimerUpdate, EventNightResults, EventVotingResults} {
		if !ctx.emitter.waitFor(ev, 3*time.Second) {
			t.Fatalf("never saw %s", ev)
		}
	}

	var phases []Phase
	for _, s := range ctx.emitter.ofType(EventPhaseChange) {
		phases = append(phases, s.Ev.Payload.(PhasePayload).Phase)
	}
	want := []Phase{PhaseNight, PhaseMorning, PhaseDiscussion, PhaseVoting}
	if len(phases) < len(want) {
		t.Fatalf("phases so far: %v", phases)
	}
	for i, p := range want {
		if phases[i] != p {
			t.Fatalf("phase %d: got %s, want %s (all: %v)", i, phases[i], p, phases)
		}
	}

	history := room.History()
	if len(history) == 0 || !history[0].NightResolved || !history[0].VotingResolved {
		t.Errorf("round 1 not fully recorded: %+v", history)
	}
}

func TestResetCancelsTimers(t *testing.T) {
	ctx := newTestContextWithConfig(t, fastGameConfig())
	defer ctx.cleanup()

	room, hostID := ctx.setupRoom(4)
	if err := room.StartGame(hostID); err != nil {
		t.Fatal(err)
	}
	if !ctx.emitter.waitFor(EventTimerUpdate, time.Second) {
		t.Fatal("clock never ticked")
	}
	if err := room.Reset(hostID); err != nil {
		t.Fatal(err)
	}
	ctx.emitter.reset()

	time.Sleep(50 * time.Millisecond)
	for _, ev := range []string{EventTimerUpdate, EventPhaseChange, EventActionConfirmed, EventNightResults} {
		if n := len(ctx.emitter.ofType(ev)); n != 0 {
			t.Fatalf("%d stale %s events after reset", n, ev)
		}
	}
}

func TestStaleAgentTurnIsNoop(t *testing.T) {
	r, em := fixtureRoom([]Role{RoleMafia, RoleDoctor, RolePolice, RoleCitizen, RoleCitizen}, PhaseDiscussion)
	r.participants[0].Agent = true

	r.mu.Lock()
	r.agentActLocked("p0", PhaseNight)
	pending := len(r.nightActions)
	r.mu.Unlock()

	if pending != 0 || len(em.ofType(EventActionConfirmed)) != 0 {
		t.Error("agent acted outside its phase")
	}
}

func TestAgentNightTurnSubmitsAction(t *testing.T) {
	r, _ := fixtureRoom([]Role{RoleMafia, RoleDoctor, RolePolice, RoleCitizen, RoleCitizen}, PhaseNight)
	for _, p := range r.participants {
		p.Agent = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants {
		r.agentActLocked(p.ID, PhaseNight)
	}
	// Mafia, doctor and police act; citizens have nothing to do.
	if len(r.nightActions) != 3 {
		t.Errorf("expected 3 agent actions, got %d", len(r.nightActions))
	}
	if a := r.nightActions["p0"]; a.Type != ActionKill || r.participant(a.Target).Role.IsMafia() {
		t.Errorf("mafia agent picked a bad kill: %+v", a)
	}
}

// ============================================================================
// Reconnect
// ============================================================================

func TestResyncResendsRoleAndPhase(t *testing.T) {
	r, em := fixtureRoom([]Role{RoleMafia, RoleMafia, RolePolice, RoleCitizen, RoleCitizen}, PhaseVoting)

	r.Resync("p1")

	roles := em.ofType(EventRoleAssigned)
	if len(roles) != 1 || roles[0].To != "p1" {
		t.Fatalf("expected a private role-assigned, got %+v", roles)
	}
	payload := roles[0].Ev.Payload.(RolePayload)
	if payload.Role != RoleMafia || len(payload.MafiaTeam) != 2 {
		t.Errorf("mafia should be reminded of the team: %+v", payload)
	}
	phases := em.ofType(EventPhaseChange)
	if len(phases) != 1 || phases[0].To != "p1" || phases[0].Ev.Payload.(PhasePayload).Phase != PhaseVoting {
		t.Errorf("expected a private phase-change, got %+v", phases)
	}

	em.reset()
	r.started = false
	r.Resync("p1")
	if len(em.ofType(EventRoleAssigned))+len(em.ofType(EventPhaseChange)) != 0 {
		t.Error("resync in the lobby should send nothing")
	}
}

// ============================================================================
// Narration
// ============================================================================

// scriptedNarrator emits its first chunk, then blocks until released.
type scriptedNarrator struct {
	chunk   string
	story   string
	release chan struct{}
	history chan []string
}

func newScriptedNarrator(chunk, story string) *scriptedNarrator {
	return &scriptedNarrator{chunk: chunk, story: story, release: make(chan struct{}), history: make(chan []string, 1)}
}

func (n *scriptedNarrator) Tell(ctx context.Context, history []string, onChunk func(string)) (string, error) {
	n.history <- history
	onChunk(n.chunk)
	select {
	case <-n.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return n.story, nil
}

func storyEvents(em *recordingEmitter, done bool) []StoryPayload {
	var out []StoryPayload
	for _, s := range em.ofType(EventStory) {
		if p := s.Ev.Payload.(StoryPayload); p.Done == done {
			out = append(out, p)
		}
	}
	return out
}

func waitForStory(em *recordingEmitter, done bool, timeout time.Duration) []StoryPayload {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if got := storyEvents(em, done); len(got) > 0 {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

// narratedKill resolves a night in which p0 (mafia) kills p3.
func narratedKill(t *testing.T, narrator Storyteller) (*Room, *recordingEmitter) {
	t.Helper()
	r, em := fixtureRoom([]Role{RoleMafia, RoleDoctor, RolePolice, RoleCitizen, RoleCitizen, RoleCitizen}, PhaseNight)
	r.narrator = narrator
	r.gameID = "game-1"
	mustAct(t, r, "p0", ActionKill, "p3")

	r.mu.Lock()
	r.endNightLocked()
	r.cancelTimersLocked()
	r.mu.Unlock()
	return r, em
}

func TestNarratorStreamsStory(t *testing.T) {
	narrator := newScriptedNarrator("The fog rolled in", "The fog rolled in, and P3 never saw dawn.")
	r, em := narratedKill(t, narrator)

	select {
	case history := <-narrator.history:
		if len(history) != 1 || history[0] != "Night 1: P3 was killed by the mafia." {
			t.Errorf("narrator got history %q", history)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("narrator was never called")
	}

	partial := waitForStory(em, false, 2*time.Second)
	if len(partial) == 0 || partial[0].Text != "The fog rolled in" || partial[0].Round != 1 {
		t.Fatalf("expected a partial story, got %+v", partial)
	}

	close(narrator.release)
	final := waitForStory(em, true, 2*time.Second)
	if len(final) != 1 || final[0].Text != narrator.story {
		t.Fatalf("expected the finished story, got %+v", final)
	}

	r.mu.Lock()
	chronicle := append([]string(nil), r.chronicle...)
	r.mu.Unlock()
	if len(chronicle) != 2 || chronicle[1] != narrator.story {
		t.Errorf("story should join the chronicle: %q", chronicle)
	}
}

func TestNarratorDropsStoryAfterReset(t *testing.T) {
	narrator := newScriptedNarrator("Once", "Once upon a night.")
	r, em := narratedKill(t, narrator)
	<-narrator.history

	if err := r.Reset("p0"); err != nil {
		t.Fatal(err)
	}
	close(narrator.release)

	if got := waitForStory(em, true, 500*time.Millisecond); len(got) != 0 {
		t.Errorf("stale story delivered after reset: %+v", got)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.chronicle) != 0 {
		t.Errorf("stale story reached the new chronicle: %q", r.chronicle)
	}
}
