package main

import (
	"math/rand/v2"
	"time"
)

const (
	policeSuspicionThreshold = 30
	voteSuspicionThreshold   = 40
	trustedThreshold         = 50
)

// GameView is the read-only state the decision engine works from. Agents see
// true roles through Participants; human players never do.
type GameView struct {
	Participants    []*Participant
	History         []*RoundRecord
	Round           int
	Phase           Phase
	DiscussionsHeld int
}

// DecisionEngine picks night targets and votes for agent participants.
// It is owned by one room and used under that room's lock.
type DecisionEngine struct {
	seed   uint64
	rng    *rand.Rand
	ledger *BehaviorLedger
}

func newDecisionEngine(seed int64) *DecisionEngine {
	e := &DecisionEngine{seed: uint64(seed)}
	e.reset()
	return e
}

// reset drops the behavior ledger. The random stream carries on.
func (e *DecisionEngine) reset() {
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(e.seed, e.seed^0x9e3779b97f4a7c15))
	}
	e.ledger = newBehaviorLedger()
}

// Observe feeds a chat message into the behavior ledger.
func (e *DecisionEngine) Observe(msg ChatMessage, participants []*Participant) {
	e.ledger.Observe(msg, participants)
}

// actionDelay draws a human-looking pause from window, never longer than limit.
func (e *DecisionEngine) actionDelay(window [2]time.Duration, limit time.Duration) time.Duration {
	lo, hi := window[0], window[1]
	if hi < lo {
		lo, hi = hi, lo
	}
	d := lo
	if span := int64(hi - lo); span > 0 {
		d += time.Duration(e.rng.Int64N(span + 1))
	}
	if limit >= 0 && d > limit {
		d = limit
	}
	return max(d, 0)
}

type scored struct {
	p         *Participant
	trust     int
	suspicion int
}

func (e *DecisionEngine) score(view GameView, candidates []*Participant) []scored {
	out := make([]scored, len(candidates))
	for i, p := range candidates {
		out[i] = scored{
			p:         p,
			trust:     trustScore(p.ID, view, e.ledger),
			suspicion: suspicionScore(p.ID, view.History),
		}
	}
	return out
}

func (e *DecisionEngine) pick(candidates []*Participant) string {
	if len(candidates) == 0 {
		return ""
	}
	return candidates[e.rng.IntN(len(candidates))].ID
}

// best returns the candidate with the highest key above floor. Ties go to the
// first in seat order.
func best(list []scored, key func(scored) int, floor int) string {
	id, top := "", floor
	for _, s := range list {
		if k := key(s); k > top {
			id, top = s.p.ID, k
		}
	}
	return id
}

func bySuspicion(s scored) int { return s.suspicion }
func byTrust(s scored) int     { return s.trust }

func livingExcept(view GameView, self string, keep func(*Participant) bool) []*Participant {
	var out []*Participant
	for _, p := range view.Participants {
		if !p.Alive || p.ID == self {
			continue
		}
		if keep == nil || keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func nonMafia(p *Participant) bool { return !p.Role.IsMafia() }

func findParticipant(view GameView, id string) *Participant {
	for _, p := range view.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// ChooseNightTarget returns the agent's night target, or "" to skip the action.
func (e *DecisionEngine) ChooseNightTarget(view GameView, agentID string) string {
	self := findParticipant(view, agentID)
	if self == nil || !self.Alive {
		return ""
	}

	switch self.Role {
	case RoleMafia:
		victims := livingExcept(view, agentID, nonMafia)
		ranked := e.score(view, victims)
		if id := best(ranked, bySuspicion, 0); id != "" {
			return id
		}
		if id := best(ranked, byTrust, trustedThreshold); id != "" {
			return id
		}
		return e.pick(victims)

	case RoleDoctor:
		others := livingExcept(view, agentID, nil)
		ranked := e.score(view, others)
		id, top, topTrust := "", 0, -1
		for _, s := range ranked {
			prio := protectionPriority(s.trust, s.suspicion)
			if prio > top || prio == top && prio > 0 && s.trust > topTrust {
				id, top, topTrust = s.p.ID, prio, s.trust
			}
		}
		if id != "" {
			return id
		}
		if id := best(ranked, byTrust, trustedThreshold); id != "" {
			return id
		}
		var safe []*Participant
		for _, s := range ranked {
			if !s.p.Role.IsMafia() && (s.p.Role == RolePolice || s.suspicion < 30) {
				safe = append(safe, s.p)
			}
		}
		if len(safe) > 0 {
			return e.pick(safe)
		}
		return e.pick(others)

	case RolePolice:
		others := livingExcept(view, agentID, nil)
		if id := best(e.score(view, others), bySuspicion, policeSuspicionThreshold); id != "" {
			return id
		}
		checked := make(map[string]bool)
		for _, rec := range view.History {
			for _, inv := range rec.Investigations {
				if inv.Investigator == agentID {
					checked[inv.Target] = true
				}
			}
		}
		fresh := livingExcept(view, agentID, func(p *Participant) bool { return !checked[p.ID] })
		if len(fresh) > 0 {
			return e.pick(fresh)
		}
		return e.pick(others)

	case RoleWizard:
		for _, want := range []Role{RoleMafia, RolePolice, RoleDoctor} {
			match := livingExcept(view, agentID, func(p *Participant) bool { return p.Role == want })
			if len(match) > 0 {
				return e.pick(match)
			}
		}
		return ""
	}
	return ""
}

// ChooseVote returns who the agent votes for, or "" to abstain.
func (e *DecisionEngine) ChooseVote(view GameView, agentID string) string {
	self := findParticipant(view, agentID)
	if self == nil || !self.Alive {
		return ""
	}

	if self.Role.IsMafia() {
		innocents := livingExcept(view, agentID, nonMafia)
		if len(innocents) == 0 {
			return ""
		}
		ranked := e.score(view, innocents)
		low := ranked[0].suspicion
		for _, s := range ranked[1:] {
			low = min(low, s.suspicion)
		}
		var quiet []*Participant
		for _, s := range ranked {
			if s.suspicion == low {
				quiet = append(quiet, s.p)
			}
		}
		return e.pick(quiet)
	}

	others := livingExcept(view, agentID, nil)
	if id := best(e.score(view, others), bySuspicion, voteSuspicionThreshold); id != "" {
		return id
	}
	return e.pick(others)
}
