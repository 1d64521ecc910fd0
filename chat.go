package main

import (
	"strings"
	"unicode/utf8"
)

const maxChatLength = 500

// Chat relays a message from speakerID. Once the game is running the dead may
// only talk among themselves; the living are heard by everyone and their words
// feed the agents' behavior ledger.
func (r *Room) Chat(speakerID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	speaker := r.participant(speakerID)
	if speaker == nil {
		return ErrNotInRoom
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxChatLength {
		text = string([]rune(text)[:maxChatLength])
	}

	inGame := r.started && r.phase != PhaseGameOver
	ghost := inGame && !speaker.Alive
	ev := Event{Type: EventChat, Payload: ChatPayload{From: *speaker.ref(), Text: text, Dead: ghost, Phase: r.phase}}

	if ghost {
		for _, p := range r.participants {
			if !p.Alive {
				r.emit.SendTo(r.Code, p.ID, ev)
			}
		}
		return nil
	}

	r.emit.Broadcast(r.Code, ev)
	if inGame {
		r.engine.Observe(ChatMessage{
			Speaker: speaker.ID,
			Text:    text,
			At:      r.now(),
			Round:   r.round,
			Phase:   r.phase,
			Late:    r.phase == PhaseDiscussion && r.timeLeft*3 < r.cfg.Discussion,
		}, r.participants)
	}
	return nil
}
