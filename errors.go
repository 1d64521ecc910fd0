package main

import "errors"

// GameError is a recoverable failure reported back to the acting participant only.
type GameError struct {
	Code    string
	Message string
}

func (e *GameError) Error() string {
	return e.Message
}

var (
	ErrRoomNotFound         = &GameError{"room_not_found", "Room not found"}
	ErrGameAlreadyStarted   = &GameError{"game_already_started", "Game already started"}
	ErrRoomFull             = &GameError{"room_full", "Room is full"}
	ErrNameDuplicate        = &GameError{"name_duplicate", "Name already taken in this room"}
	ErrSessionAlreadyActive = &GameError{"session_already_active", "This session is already seated in a room"}
	ErrNotHost              = &GameError{"not_host", "Only the host can do that"}
	ErrInsufficientPlayers  = &GameError{"insufficient_players", "Not enough players to start"}
	ErrDeadParticipant      = &GameError{"dead_participant", "Dead players cannot act"}
	ErrWrongPhase           = &GameError{"wrong_phase", "Not allowed in the current phase"}

	ErrInvalidTarget   = &GameError{"invalid_target", "Invalid target"}
	ErrInvalidAction   = &GameError{"invalid_action", "Your role cannot perform that action"}
	ErrInvalidName     = &GameError{"invalid_name", "Name is required"}
	ErrInvalidCapacity = &GameError{"invalid_capacity", "Invalid capacity"}
	ErrNotInRoom       = &GameError{"not_in_room", "You are not in this room"}
	ErrGameNotStarted  = &GameError{"game_not_started", "Game has not started"}
	ErrEmptyMessage    = &GameError{"empty_message", "Message is empty"}
)

// errorEvent maps an error to the reply event for the intent that caused it.
func errorEvent(intent string, err error) Event {
	reason := err.Error()
	code := "internal"
	var gerr *GameError
	if errors.As(err, &gerr) {
		code = gerr.Code
	} else {
		reason = "Something went wrong"
	}

	eventType := EventError
	switch intent {
	case IntentCreateRoom, IntentJoinRoom:
		eventType = EventJoinError
	case IntentStartGame:
		eventType = EventGameStartError
	case IntentVote:
		eventType = EventVoteError
	}
	return Event{Type: eventType, Payload: ErrorPayload{Code: code, Reason: reason}}
}
