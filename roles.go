package main

import (
	"crypto/rand"
	"math/big"
)

// wizardThreshold is the table size from which a wizard is dealt.
const wizardThreshold = 7

// buildRolePool returns the unshuffled roles for a table of total participants:
// floor(total/3) mafia, one doctor, one police, a wizard from seven players
// up, and citizens for every remaining seat.
func buildRolePool(total int) []Role {
	if total <= 0 {
		return nil
	}
	pool := make([]Role, 0, total)
	for i := 0; i < total/3; i++ {
		pool = append(pool, RoleMafia)
	}
	specials := []Role{RoleDoctor, RolePolice}
	if total >= wizardThreshold {
		specials = append(specials, RoleWizard)
	}
	for _, r := range specials {
		if len(pool) == total {
			break
		}
		pool = append(pool, r)
	}
	for len(pool) < total {
		pool = append(pool, RoleCitizen)
	}
	return pool
}

// shuffleRoles shuffles the role pool in place (Fisher-Yates on crypto/rand)
func shuffleRoles(roles []Role) {
	for i := len(roles) - 1; i > 0; i-- {
		jBig, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			// Fallback: just swap with previous element
			roles[i], roles[i-1] = roles[i-1], roles[i]
			continue
		}
		j := int(jBig.Int64())
		roles[i], roles[j] = roles[j], roles[i]
	}
}

// assignRoles deals a shuffled pool to participants by seat position.
func assignRoles(participants []*Participant) {
	pool := buildRolePool(len(participants))
	shuffleRoles(pool)
	for i, p := range participants {
		p.Role = pool[i]
	}
}

// mafiaTeam lists the participants currently holding the mafia role.
func mafiaTeam(participants []*Participant) []ParticipantRef {
	var team []ParticipantRef
	for _, p := range participants {
		if p.Role.IsMafia() {
			team = append(team, *p.ref())
		}
	}
	return team
}
