package main

import (
	"net/http"

	"github.com/google/uuid"
)

const sessionParam = "session"

type SessionPayload struct {
	Session string `json:"session"`
}

func newSessionToken() string {
	return uuid.NewString()
}

// validSession accepts minted tokens and the test identity.
func validSession(token string) bool {
	if token == TestSessionID {
		return true
	}
	_, err := uuid.Parse(token)
	return err == nil
}

// sessionFromRequest returns the caller's session token, minting a fresh one
// when the request carries none or an unusable one.
func sessionFromRequest(r *http.Request) (token string, minted bool) {
	token = r.URL.Query().Get(sessionParam)
	if validSession(token) {
		return token, false
	}
	return newSessionToken(), true
}
