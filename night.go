package main

import (
	"go.uber.org/zap"
)

// SubmitNightAction registers actorID's secret action for the current night.
// A repeat submission from the same actor replaces the earlier one.
func (r *Room) SubmitNightAction(actorID string, action ActionType, targetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.submitNightActionLocked(actorID, action, targetID)
}

func (r *Room) submitNightActionLocked(actorID string, action ActionType, targetID string) error {
	actor := r.participant(actorID)
	if actor == nil {
		return ErrNotInRoom
	}
	if !r.started {
		return ErrGameNotStarted
	}
	if r.phase != PhaseNight {
		return ErrWrongPhase
	}
	if !actor.Alive {
		return ErrDeadParticipant
	}
	if role, ok := actionRoles[action]; !ok || role != actor.Role {
		return ErrInvalidAction
	}
	target := r.participant(targetID)
	if target == nil || !target.Alive || target.ID == actor.ID {
		return ErrInvalidTarget
	}

	if _, exists := r.nightActions[actorID]; !exists {
		r.nightOrder = append(r.nightOrder, actorID)
	}
	r.nightActions[actorID] = NightAction{Actor: actorID, Type: action, Target: targetID, SubmittedAt: r.now()}

	r.log.Debug("night action", zap.String("actor", actor.Name), zap.String("type", string(action)), zap.String("target", target.Name))
	r.emit.SendTo(r.Code, actorID, Event{Type: EventActionConfirmed, Payload: ActionPayload{Type: action, Target: targetID}})
	return nil
}

// resolveNightLocked applies the pending night actions in a fixed order: swap,
// kill, save, investigate. The pending map is always cleared.
func (r *Room) resolveNightLocked() NightResults {
	actions := make([]NightAction, 0, len(r.nightOrder))
	for _, id := range r.nightOrder {
		if a, ok := r.nightActions[id]; ok {
			actions = append(actions, a)
		}
	}
	r.nightActions = make(map[string]NightAction)
	r.nightOrder = nil

	rec := r.recordLocked(r.round)
	rec.NightResolved = true
	rec.NightActions = actions

	var results NightResults

	// Swap: first one wins; the target always ends up a citizen.
	for _, a := range actions {
		if a.Type != ActionSwap {
			continue
		}
		actor, target := r.participant(a.Actor), r.participant(a.Target)
		if actor == nil || target == nil {
			continue
		}
		rec.Swaps = append(rec.Swaps, RoleSwap{Actor: actor.ID, Target: target.ID, ActorRole: actor.Role, TargetRole: target.Role})
		actor.Role, target.Role = target.Role, RoleCitizen
		results.RoleSwapped = &SwapResult{Actor: *actor.ref(), Target: *target.ref(), NewRole: actor.Role}
		break
	}

	var kills []NightAction
	for _, a := range actions {
		if a.Type == ActionKill {
			kills = append(kills, a)
		}
	}
	if kill, ok := pickKill(kills); ok {
		if victim := r.participant(kill.Target); victim != nil && victim.Alive {
			saved := false
			for _, a := range actions {
				if a.Type == ActionSave && a.Target == victim.ID {
					saved = true
					break
				}
			}
			if saved {
				results.Saved = victim.ref()
				rec.Saved = victim.ID
			} else {
				victim.Alive = false
				results.Killed = victim.ref()
				rec.NightDeaths = append(rec.NightDeaths, victim.ID)
			}
		}
	}

	for _, a := range actions {
		if a.Type != ActionInvestigate {
			continue
		}
		target := r.participant(a.Target)
		if target == nil {
			continue
		}
		mafia := target.Role.IsMafia()
		rec.Investigations = append(rec.Investigations, Investigation{Round: r.round, Investigator: a.Actor, Target: target.ID, IsMafia: mafia})
		results.Investigated = &InvestigationResult{Target: *target.ref(), IsMafia: mafia}
		results.investigator = a.Actor
		break
	}

	return results
}

// pickKill chooses the kill that takes effect among several mafia submissions.
func pickKill(kills []NightAction) (NightAction, bool) {
	if len(kills) == 0 {
		return NightAction{}, false
	}
	chosen := kills[0]
	for _, k := range kills[1:] {
		if laterSubmission(chosen, k) {
			chosen = k
		}
	}
	return chosen, true
}

// laterSubmission reports whether b was submitted after a. Equal times keep a.
// An action with no recorded time counts as later than every timed one.
func laterSubmission(a, b NightAction) bool {
	if b.SubmittedAt.IsZero() {
		return true
	}
	if a.SubmittedAt.IsZero() {
		return false
	}
	return b.SubmittedAt.After(a.SubmittedAt)
}
