package protocol

import (
	"github.com/automoto/doomerang-sync/shared/messages"
	"github.com/rotisserie/eris"
)

type decodeFn func(payload []byte) (messages.Message, error)

var decoders = map[messages.Kind]decodeFn{}

// ErrDuplicateKind is returned when a kind is registered twice.
var ErrDuplicateKind = eris.New("message kind already registered")

func register[T messages.Message](kind messages.Kind) error {
	if _, ok := decoders[kind]; ok {
		return eris.Wrapf(ErrDuplicateKind, "kind %s", kind)
	}
	decoders[kind] = func(payload []byte) (messages.Message, error) {
		var v T
		if err := unmarshal(payload, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil
}

// RegisterMessages registers every message kind with the codec. It runs from
// init; a second call fails with ErrDuplicateKind.
func RegisterMessages() error {
	regs := []func() error{
		func() error { return register[messages.FullState](messages.KindFullState) },
		func() error { return register[messages.DeltaState](messages.KindDeltaState) },
		func() error { return register[messages.EntityHealth](messages.KindEntityHealth) },
		func() error { return register[messages.EntityDeath](messages.KindEntityDeath) },
		func() error { return register[messages.LevelUp](messages.KindLevelUp) },
		func() error { return register[messages.ItemDrop](messages.KindItemDrop) },
		func() error { return register[messages.LoginResult](messages.KindLoginResult) },
		func() error { return register[messages.RoomUpdate](messages.KindRoomUpdate) },
		func() error { return register[messages.Heartbeat](messages.KindHeartbeat) },
		func() error { return register[messages.LoginRequest](messages.KindLoginRequest) },
		func() error { return register[messages.PlayerInput](messages.KindPlayerInput) },
		func() error { return register[messages.ResyncRequest](messages.KindResyncRequest) },
	}
	for _, r := range regs {
		if err := r(); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	if err := RegisterMessages(); err != nil {
		panic(err)
	}
}

// Registered reports whether kind has a decoder.
func Registered(kind messages.Kind) bool {
	_, ok := decoders[kind]
	return ok
}
