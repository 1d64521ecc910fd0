package main

import (
	"go.uber.org/zap"
)

// SubmitVote records voterID's ballot for the current voting phase. A later
// vote from the same voter replaces the earlier one.
func (r *Room) SubmitVote(voterID, targetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.submitVoteLocked(voterID, targetID); err != nil {
		return err
	}
	if r.votingCanCloseEarlyLocked() {
		r.endVotingLocked()
	}
	return nil
}

func (r *Room) submitVoteLocked(voterID, targetID string) error {
	voter := r.participant(voterID)
	if voter == nil {
		return ErrNotInRoom
	}
	if !r.started {
		return ErrGameNotStarted
	}
	if r.phase != PhaseVoting || r.timeLeft <= 0 {
		return ErrWrongPhase
	}
	if !voter.Alive {
		return ErrDeadParticipant
	}
	target := r.participant(targetID)
	if target == nil || !target.Alive || target.ID == voter.ID {
		return ErrInvalidTarget
	}

	if _, exists := r.votes[voterID]; !exists {
		r.voteOrder = append(r.voteOrder, voterID)
	}
	r.votes[voterID] = targetID

	r.log.Debug("vote", zap.String("voter", voter.Name), zap.String("target", target.Name))
	r.emit.SendTo(r.Code, voterID, Event{Type: EventVoteConfirmed, Payload: VotePayload{Target: targetID}})
	return nil
}

// votingCanCloseEarlyLocked reports whether every living participant has voted
// and the clock is already inside the grace window.
func (r *Room) votingCanCloseEarlyLocked() bool {
	if r.phase != PhaseVoting || r.timeLeft <= 0 || r.timeLeft >= r.cfg.VoteGrace {
		return false
	}
	alive := r.living()
	if len(alive) == 0 {
		return false
	}
	for _, p := range alive {
		if _, ok := r.votes[p.ID]; !ok {
			return false
		}
	}
	return true
}

// resolveVotesLocked tallies the pending votes, eliminates a sole leader and
// records the round. The pending map is always cleared.
func (r *Room) resolveVotesLocked() VotingResults {
	votes := r.votes
	r.votes = make(map[string]string)
	r.voteOrder = nil

	counts := tallyVotes(votes)
	results := VotingResults{VoteCounts: counts, VotePublic: r.votePublic}
	if r.votePublic {
		results.VoteDetails = make(map[string]string, len(votes))
		for voter, target := range votes {
			v, tp := r.participant(voter), r.participant(target)
			if v == nil || tp == nil {
				continue
			}
			results.VoteDetails[v.Name] = tp.Name
		}
	}

	rec := r.recordLocked(r.round)
	rec.VotingResolved = true
	rec.Votes = votes
	rec.VoteCounts = counts

	if id, ok := pickEliminated(counts); ok {
		if p := r.participant(id); p != nil && p.Alive {
			p.Alive = false
			rec.Eliminated = p.ID
			rec.EliminatedRole = p.Role
			results.Eliminated = &EliminatedRef{ParticipantRef: *p.ref(), Role: p.Role}
		}
	}
	return results
}

func tallyVotes(votes map[string]string) map[string]int {
	counts := make(map[string]int)
	for _, target := range votes {
		counts[target]++
	}
	return counts
}

// pickEliminated returns the single target with the highest count. Ties and
// empty tallies eliminate nobody.
func pickEliminated(counts map[string]int) (string, bool) {
	best, max, tied := "", 0, false
	for target, n := range counts {
		switch {
		case n > max:
			best, max, tied = target, n, false
		case n == max:
			tied = true
		}
	}
	if max == 0 || tied {
		return "", false
	}
	return best, true
}
