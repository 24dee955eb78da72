package session

import (
	"time"

	"github.com/google/uuid"
)

// MethodSSH is the only transport in use
const MethodSSH = "ssh"

// Session describes an established device connection
type Session struct {
	ID            string    `json:"id"`
	Address       string    `json:"address"`
	CredentialRef string    `json:"credentialRef"`
	Method        string    `json:"method"`
	ConnectedAt   time.Time `json:"connectedAt"`
}

func newSession(address, credentialRef string, now time.Time) *Session {
	return &Session{
		ID:            uuid.NewString(),
		Address:       address,
		CredentialRef: credentialRef,
		Method:        MethodSSH,
		ConnectedAt:   now,
	}
}

// Change is delivered to listeners on every state transition
type Change struct {
	From State
	To   State
	Err  error
	At   time.Time
}
