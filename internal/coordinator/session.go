package coordinator

import (
	"fmt"
	"math/rand"
	"time"
)

// SessionToken correlates one console's quota usage with the server.
// It is not a credential.
type SessionToken string

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewSession builds a token of the form user_<unix millis>_<9 base36 chars>.
// Each call yields a distinct server-side actor, so call it once per
// working session.
func NewSession(now time.Time) SessionToken {
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = base36[rand.Intn(len(base36))]
	}
	return SessionToken(fmt.Sprintf("user_%d_%s", now.UnixMilli(), suffix))
}

func (s SessionToken) String() string { return string(s) }
