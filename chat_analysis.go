package main

import (
	"strings"
	"time"
)

type ClaimKind string

const (
	ClaimSuspicion   ClaimKind = "suspicion"
	ClaimTrust       ClaimKind = "trust"
	ClaimRole        ClaimKind = "role"
	ClaimInformation ClaimKind = "information"
	ClaimDefensive   ClaimKind = "defensive"
)

// Claim is one classified statement taken from a chat message.
type Claim struct {
	Kind   ClaimKind
	Target string // participant ID, empty if nobody was named
	Role   Role   // claimed role, role claims only
	// Verdict is set on investigation claims that state a result.
	Verdict    bool
	HasVerdict bool
	Text       string
	At         time.Time
	Round      int
	Phase      Phase
}

// ChatMessage is a message as seen by the ledger.
type ChatMessage struct {
	Speaker string
	Text    string
	At      time.Time
	Round   int
	Phase   Phase
	// Late is set for discussion messages sent in the final third of the phase.
	Late bool
}

// BehaviorRecord is everything the ledger knows about one speaker.
type BehaviorRecord struct {
	Messages           int
	DiscussionMessages int
	LateMessages       int
	Opinions           int // messages carrying a suspicion or trust claim
	DefensiveMessages  int

	Suspicions []Claim
	Trusts     []Claim
	RoleClaims []Claim
	InfoClaims []Claim
	Defensive  []Claim
}

// BehaviorLedger accumulates classified chat per participant. It belongs to a
// single room and is discarded on reset.
type BehaviorLedger struct {
	records map[string]*BehaviorRecord
}

func newBehaviorLedger() *BehaviorLedger {
	return &BehaviorLedger{records: make(map[string]*BehaviorRecord)}
}

// Record returns the speaker's record, or nil if they never spoke.
func (l *BehaviorLedger) Record(id string) *BehaviorRecord {
	return l.records[id]
}

var (
	suspicionPhrases = []string{"suspect", "suspicious", "sus", "mafia is", "is mafia", "lying", "liar", "vote out", "vote for", "don't trust", "dont trust", "do not trust", "can't trust", "cant trust", "not trust"}
	negatedTrust     = []string{"don't trust", "dont trust", "do not trust", "can't trust", "cant trust", "not trust"}
	trustPhrases     = []string{"trust", "innocent", "is clear", "is clean", "believe", "is good", "vouch"}
	rolePrefixes     = []string{"i am", "i'm", "im ", "as the", "as a", "i was", "claiming"}
	infoPhrases      = []string{"investigated", "checked", "i checked", "result", "looked into"}
	mafiaVerdicts    = []string{"is mafia", "was mafia", "guilty", "came back bad", "is bad"}
	cleanVerdicts    = []string{"not mafia", "innocent", "clean", "is clear", "came back good", "is good"}
	defensivePhrases = []string{"not me", "why me", "i swear", "i didn't", "i did not", "i'm not", "im not", "i am not", "stop accusing", "i'm innocent", "leave me alone"}
)

// roleKeywords is checked in order; the first role with a matching word wins.
var roleKeywords = []struct {
	role  Role
	words []string
}{
	{RoleCitizen, []string{"citizen", "villager", "townie"}},
	{RolePolice, []string{"police", "cop", "detective"}},
	{RoleDoctor, []string{"doctor", "medic"}},
	{RoleMafia, []string{"mafia"}},
	{RoleWizard, []string{"wizard"}},
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if containsWord(text, p) {
			return true
		}
	}
	return false
}

// containsWord matches phrase only on word boundaries, so "sus" does not hit "suspend".
func containsWord(text, phrase string) bool {
	phrase = strings.TrimSpace(phrase)
	for i := 0; ; {
		j := strings.Index(text[i:], phrase)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(phrase)
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		i = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '\'' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

func claimedRole(text string) (Role, bool) {
	for _, rk := range roleKeywords {
		if containsAny(text, rk.words) {
			return rk.role, true
		}
	}
	return "", false
}

// extractTarget returns the first seated participant, other than the speaker,
// whose name appears in text.
func extractTarget(text, speaker string, participants []*Participant) string {
	for _, p := range participants {
		if p.ID == speaker || p.Name == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(p.Name)) {
			return p.ID
		}
	}
	return ""
}

// classify splits a message into claims. A message may carry several kinds.
func classify(msg ChatMessage, participants []*Participant) []Claim {
	text := strings.ToLower(strings.TrimSpace(msg.Text))
	if text == "" {
		return nil
	}
	base := Claim{
		Target: extractTarget(text, msg.Speaker, participants),
		Text:   msg.Text,
		At:     msg.At,
		Round:  msg.Round,
		Phase:  msg.Phase,
	}
	var claims []Claim
	add := func(kind ClaimKind, mutate func(*Claim)) {
		c := base
		c.Kind = kind
		if mutate != nil {
			mutate(&c)
		}
		claims = append(claims, c)
	}

	negated := containsAny(text, negatedTrust)
	if negated || containsAny(text, suspicionPhrases) {
		add(ClaimSuspicion, nil)
	}
	if !negated && containsAny(text, trustPhrases) {
		add(ClaimTrust, nil)
	}
	if containsAny(text, rolePrefixes) {
		if role, ok := claimedRole(text); ok {
			add(ClaimRole, func(c *Claim) { c.Role = role })
		}
	}
	if containsAny(text, infoPhrases) {
		add(ClaimInformation, func(c *Claim) {
			switch {
			case containsAny(text, cleanVerdicts):
				c.Verdict, c.HasVerdict = false, true
			case containsAny(text, mafiaVerdicts):
				c.Verdict, c.HasVerdict = true, true
			}
		})
	}
	if containsAny(text, defensivePhrases) {
		add(ClaimDefensive, nil)
	}
	return claims
}

// Observe classifies msg and files it under its speaker.
func (l *BehaviorLedger) Observe(msg ChatMessage, participants []*Participant) {
	rec := l.records[msg.Speaker]
	if rec == nil {
		rec = &BehaviorRecord{}
		l.records[msg.Speaker] = rec
	}
	rec.Messages++
	if msg.Phase == PhaseDiscussion {
		rec.DiscussionMessages++
		if msg.Late {
			rec.LateMessages++
		}
	}

	opinion, defensive := false, false
	for _, c := range classify(msg, participants) {
		switch c.Kind {
		case ClaimSuspicion:
			rec.Suspicions = append(rec.Suspicions, c)
			opinion = true
		case ClaimTrust:
			rec.Trusts = append(rec.Trusts, c)
			opinion = true
		case ClaimRole:
			rec.RoleClaims = append(rec.RoleClaims, c)
		case ClaimInformation:
			rec.InfoClaims = append(rec.InfoClaims, c)
		case ClaimDefensive:
			rec.Defensive = append(rec.Defensive, c)
			defensive = true
		}
	}
	if opinion {
		rec.Opinions++
	}
	if defensive {
		rec.DefensiveMessages++
	}
}

// trustAdjustment scores how believable a speaker's chat has been against the
// recorded history. The result is clamped to [-50, 50].
func (l *BehaviorLedger) trustAdjustment(id string, history []*RoundRecord, discussionsHeld int) int {
	rec := l.Record(id)
	if rec == nil || rec.Messages == 0 {
		return 0
	}
	adj := consistencyScore(rec) +
		alignmentScore(id, rec, history) +
		informationScore(id, rec, history) +
		confidenceScore(rec) +
		defensivenessScore(rec) +
		timingScore(rec, discussionsHeld)
	return clamp(adj, -50, 50)
}

func distinctRoles(claims []Claim) int {
	seen := make(map[Role]bool)
	for _, c := range claims {
		seen[c.Role] = true
	}
	return len(seen)
}

func consistencyScore(rec *BehaviorRecord) int {
	score := 0
	if distinctRoles(rec.RoleClaims) > 1 {
		score -= 15
	}
	// Every trust claim made after suspecting the same target is a flip.
	for _, t := range rec.Trusts {
		if t.Target == "" {
			continue
		}
		for _, s := range rec.Suspicions {
			if s.Target == t.Target && t.At.After(s.At) {
				score -= 10
				break
			}
		}
	}
	return score
}

func claimedInRound(claims []Claim, round int, target string) bool {
	for _, c := range claims {
		if c.Round == round && c.Target == target {
			return true
		}
	}
	return false
}

func alignmentScore(id string, rec *BehaviorRecord, history []*RoundRecord) int {
	score := 0
	for _, round := range history {
		target, voted := round.Votes[id]
		if !voted {
			continue
		}
		if claimedInRound(rec.Suspicions, round.Round, target) {
			score += 5
		}
		if claimedInRound(rec.Trusts, round.Round, target) {
			score -= 10
		}
	}
	return score
}

func informationScore(id string, rec *BehaviorRecord, history []*RoundRecord) int {
	score := 0
	for _, c := range rec.InfoClaims {
		if c.Target == "" {
			continue
		}
		var found *Investigation
		for _, round := range history {
			for i := range round.Investigations {
				inv := &round.Investigations[i]
				if inv.Investigator == id && inv.Target == c.Target {
					found = inv
				}
			}
		}
		switch {
		case found == nil:
			score -= 25
		case !c.HasVerdict:
		case found.IsMafia == c.Verdict:
			score += 15
		default:
			score -= 20
		}
	}
	return score
}

func confidenceScore(rec *BehaviorRecord) int {
	score := 0
	if float64(rec.Opinions) > 0.7*float64(rec.Messages) {
		score -= 8
	}
	if distinctRoles(rec.RoleClaims) > 2 {
		score -= 5
	}
	return score
}

func defensivenessScore(rec *BehaviorRecord) int {
	ratio := float64(rec.DefensiveMessages) / float64(rec.Messages)
	switch {
	case ratio > 0.4:
		return -10
	case ratio > 0.2:
		return -5
	}
	return 0
}

func timingScore(rec *BehaviorRecord, discussionsHeld int) int {
	score := 0
	if discussionsHeld > 0 && rec.DiscussionMessages == 0 {
		score -= 5
	}
	if rec.DiscussionMessages >= 2 && rec.LateMessages*2 > rec.DiscussionMessages {
		score -= 3
	}
	return score
}
