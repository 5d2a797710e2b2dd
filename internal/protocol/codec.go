package protocol

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldKind protowire.Number = 1
	fieldA    protowire.Number = 2
	fieldB    protowire.Number = 3
	fieldC    protowire.Number = 4
)

// Marshal encodes m with its kind prefix.
func Marshal(m Message) []byte {
	b := protowire.AppendTag(nil, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Kind()))
	return m.appendFields(b)
}

func (m *Registration) appendFields(b []byte) []byte {
	b = protowire.AppendTag(b, fieldA, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Secret)
	b = protowire.AppendTag(b, fieldB, protowire.BytesType)
	return protowire.AppendString(b, m.Name)
}

func (m *RegisterGame) appendFields(b []byte) []byte {
	b = protowire.AppendTag(b, fieldA, protowire.BytesType)
	b = protowire.AppendBytes(b, m.GameUUID[:])
	b = protowire.AppendTag(b, fieldB, protowire.BytesType)
	b = protowire.AppendString(b, m.Minigame)
	if m.Tag != "" {
		b = protowire.AppendTag(b, fieldC, protowire.BytesType)
		b = protowire.AppendString(b, m.Tag)
	}
	return b
}

func (m *GameStateChanged) appendFields(b []byte) []byte {
	b = protowire.AppendTag(b, fieldA, protowire.BytesType)
	b = protowire.AppendBytes(b, m.GameUUID[:])
	b = protowire.AppendTag(b, fieldB, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(m.State))
}

type fields struct {
	kind    uint64
	hasKind bool
	bytes   map[protowire.Number][]byte
	varints map[protowire.Number]uint64
}

func parseFields(b []byte) (*fields, error) {
	f := &fields{
		bytes:   make(map[protowire.Number][]byte),
		varints: make(map[protowire.Number]uint64),
	}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
			if num == fieldKind {
				f.kind, f.hasKind = v, true
			} else {
				f.varints[num] = v
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
			f.bytes[num] = v
		default:
			// unknown wire types of newer peers are skipped
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return f, nil
}

func (f *fields) gameUUID(num protowire.Number) (uuid.UUID, error) {
	raw, ok := f.bytes[num]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: missing game uuid", ErrMalformed)
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: game uuid: %v", ErrMalformed, err)
	}
	return id, nil
}

// Unmarshal decodes a payload produced by Marshal.
func Unmarshal(b []byte) (Message, error) {
	f, err := parseFields(b)
	if err != nil {
		return nil, err
	}
	if !f.hasKind {
		return nil, fmt.Errorf("%w: missing kind", ErrMalformed)
	}

	if f.kind > math.MaxUint8 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, f.kind)
	}

	switch Kind(f.kind) {
	case KindRegistration:
		name := string(f.bytes[fieldB])
		if name == "" {
			return nil, fmt.Errorf("%w: empty peer name", ErrMalformed)
		}
		secret := append([]byte(nil), f.bytes[fieldA]...)
		return &Registration{Secret: secret, Name: name}, nil

	case KindRegisterGame:
		id, err := f.gameUUID(fieldA)
		if err != nil {
			return nil, err
		}
		minigame := string(f.bytes[fieldB])
		if minigame == "" {
			return nil, fmt.Errorf("%w: empty minigame", ErrMalformed)
		}
		return &RegisterGame{GameUUID: id, Minigame: minigame, Tag: string(f.bytes[fieldC])}, nil

	case KindGameStateChanged:
		id, err := f.gameUUID(fieldA)
		if err != nil {
			return nil, err
		}
		raw, ok := f.varints[fieldB]
		if !ok || raw > uint64(StateEnding) {
			return nil, fmt.Errorf("%w: bad state %d", ErrMalformed, raw)
		}
		return &GameStateChanged{GameUUID: id, State: GameState(raw)}, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, f.kind)
	}
}
