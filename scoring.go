package main

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// diedIn returns the round in which id died, or 0 if the history has no death for them.
func diedIn(id string, history []*RoundRecord) int {
	for _, rec := range history {
		for _, d := range rec.NightDeaths {
			if d == id {
				return rec.Round
			}
		}
		if rec.Eliminated == id {
			return rec.Round
		}
	}
	return 0
}

// suspicionScore rates how mafia-like id looks from the round history, 0 to 100.
func suspicionScore(id string, history []*RoundRecord) int {
	score := 0
	death := diedIn(id, history)
	completed := 0
	for _, rec := range history {
		if !rec.VotingResolved {
			continue
		}
		alive := death == 0 || death > rec.Round
		if alive && rec.Eliminated != "" && rec.Eliminated != id && rec.EliminatedRole.IsMafia() && rec.Votes[id] != rec.Eliminated {
			score += 15
		}
		if death == 0 || rec.Round < death {
			completed++
		}
	}
	score += min(2*completed, 10)
	return clamp(score, 0, 100)
}

// trustScore rates how innocent id looks, 0 to 100. ledger may be nil.
func trustScore(id string, view GameView, ledger *BehaviorLedger) int {
	history := view.History
	score := 50

	// Night survival.
	nights, survived := 0, 0
	for _, rec := range history {
		if !rec.NightResolved {
			continue
		}
		nights++
		if !contains(rec.NightDeaths, id) {
			survived++
		}
	}
	if nights > 0 {
		rate := float64(survived) / float64(nights)
		switch {
		case nights > 2 && survived == nights:
			score -= 5
		case rate >= 0.5 && survived < nights:
			score += 2
		}
	}

	// Votes against the next night's victims.
	for i := 0; i+1 < len(history); i++ {
		votes := history[i].Votes
		for _, victim := range history[i+1].NightDeaths {
			if votes[id] == victim {
				score -= 3
			}
			if votes[victim] == id {
				score += 5
			}
		}
	}

	// Police results are ground truth.
	cleared, caught := false, false
	for _, rec := range history {
		for _, inv := range rec.Investigations {
			if inv.Target != id {
				continue
			}
			if inv.IsMafia {
				caught = true
			} else {
				cleared = true
			}
		}
	}
	switch {
	case caught:
		score -= 40
	case cleared:
		score += 30
	}

	// Attack pattern over every night death so far.
	for _, rec := range history {
		for _, victim := range rec.NightDeaths {
			for _, earlier := range history {
				if earlier.Round > rec.Round {
					break
				}
				if earlier.Votes[id] == victim {
					score -= 2
				}
				if earlier.Votes[victim] == id {
					score += 3
				}
			}
		}
	}

	if ledger != nil {
		score += ledger.trustAdjustment(id, history, view.DiscussionsHeld)
	}
	return clamp(score, 0, 100)
}

// protectionPriority is 2 for clearly trustworthy players, 1 for probably
// trustworthy ones and 0 otherwise.
func protectionPriority(trust, suspicion int) int {
	switch {
	case trust > 70 && suspicion < 30:
		return 2
	case trust > 50 && suspicion < 50:
		return 1
	}
	return 0
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
