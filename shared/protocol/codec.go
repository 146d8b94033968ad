// Package protocol turns messages into bytes and back. Both channels carry
// the same MessagePack envelope; the reliable channel additionally frames it
// with a length prefix.
package protocol

import (
	"github.com/automoto/doomerang-sync/shared/messages"
	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/rotisserie/eris"
)

var handle codec.MsgpackHandle

// ErrMalformed wraps every decode failure.
var ErrMalformed = eris.New("malformed message")

type envelope struct {
	Kind       messages.Kind `codec:"k"`
	Credential string        `codec:"c,omitempty"`
	Payload    []byte        `codec:"p"`
}

// Encode serializes msg without a credential.
func Encode(msg messages.Message) ([]byte, error) {
	return EncodeWithCredential(msg, "")
}

// EncodeWithCredential serializes msg and stamps the session credential on
// the envelope.
func EncodeWithCredential(msg messages.Message, credential string) ([]byte, error) {
	if msg == nil {
		return nil, eris.New("encode nil message")
	}
	payload, err := marshal(msg)
	if err != nil {
		return nil, eris.Wrapf(err, "encode %s payload", msg.Kind())
	}
	out, err := marshal(envelope{Kind: msg.Kind(), Credential: credential, Payload: payload})
	if err != nil {
		return nil, eris.Wrapf(err, "encode %s envelope", msg.Kind())
	}
	return out, nil
}

// Decode parses one envelope. Kinds without a registered decoder come back as
// messages.Unknown rather than an error.
func Decode(data []byte) (messages.Message, string, error) {
	if len(data) == 0 {
		return nil, "", eris.Wrap(ErrMalformed, "empty payload")
	}
	var env envelope
	if err := unmarshal(data, &env); err != nil {
		return nil, "", eris.Wrap(ErrMalformed, err.Error())
	}
	dec, ok := decoders[env.Kind]
	if !ok {
		return messages.Unknown{RawKind: env.Kind}, env.Credential, nil
	}
	msg, err := dec(env.Payload)
	if err != nil {
		return nil, env.Credential, eris.Wrapf(ErrMalformed, "%s: %v", env.Kind, err)
	}
	return msg, env.Credential, nil
}

func marshal(v any) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, &handle).Encode(v); err != nil {
		return nil, err
	}
	return out, nil
}

func unmarshal(data []byte, v any) error {
	return codec.NewDecoderBytes(data, &handle).Decode(v)
}
