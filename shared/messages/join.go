package messages

// LoginRequest is sent by a client after connecting to request a session.
type LoginRequest struct {
	Version    string `codec:"ver"`
	PlayerName string `codec:"name"`
}

func (LoginRequest) Kind() Kind { return KindLoginRequest }
func (LoginRequest) isMessage() {}

// LoginResult is the server's answer to a LoginRequest. A successful result
// carries the per-session credential that authorizes unreliable input.
type LoginResult struct {
	Success      bool   `codec:"ok"`
	Reason       string `codec:"reason,omitempty"`
	PlayerID     uint32 `codec:"pid"`
	Credential   string `codec:"cred"`
	ServerTimeMs int64  `codec:"st"`
	TickRate     int    `codec:"rate"`
}

func (LoginResult) Kind() Kind { return KindLoginResult }
func (LoginResult) isMessage() {}
