package messages

// PlayerInput is one chunk of local input sent to the server.
// Used for server-side movement processing and client-side reconciliation.
type PlayerInput struct {
	Sequence     uint32  `codec:"seq"` // Incrementing ID for reconciliation
	MoveX        float64 `codec:"mx"`  // Unit-or-zero movement direction
	MoveY        float64 `codec:"my"`
	Attacking    bool    `codec:"atk"`
	DurationMs   int32   `codec:"dur"` // Time the input was held, >= 1
	ClientTimeMs int64   `codec:"ct"`
	Credential   string  `codec:"cred,omitempty"`
}

func (PlayerInput) Kind() Kind { return KindPlayerInput }
func (PlayerInput) isMessage() {}

// ResyncRequest asks the server to resend full state.
type ResyncRequest struct {
	LastTick   int64  `codec:"tick"`
	Credential string `codec:"cred,omitempty"`
}

func (ResyncRequest) Kind() Kind { return KindResyncRequest }
func (ResyncRequest) isMessage() {}
