package network

import (
	"crypto/subtle"
	"fmt"

	"github.com/Kingmotro/pexel-platform/internal/protocol"
)

// RegistrationPayload builds the payload of the first frame a slave sends.
func RegistrationPayload(secret, name string) []byte {
	return protocol.Marshal(&protocol.Registration{Secret: []byte(secret), Name: name})
}

func decodeRegistration(payload []byte) (*protocol.Registration, error) {
	msg, err := protocol.Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	reg, ok := msg.(*protocol.Registration)
	if !ok {
		return nil, fmt.Errorf("%w: expected registration, got %s", ErrHandshake, msg.Kind())
	}
	return reg, nil
}

// Validate reports whether payload is a well formed registration carrying
// exactly expectedSecret.
func Validate(payload []byte, expectedSecret string) bool {
	reg, err := decodeRegistration(payload)
	if err != nil {
		return false
	}
	return secretMatches(reg, expectedSecret)
}

func secretMatches(reg *protocol.Registration, expectedSecret string) bool {
	return subtle.ConstantTimeCompare(reg.Secret, []byte(expectedSecret)) == 1
}

// ExtractName returns the peer name declared in a registration payload.
func ExtractName(payload []byte) (string, error) {
	reg, err := decodeRegistration(payload)
	if err != nil {
		return "", err
	}
	return reg.Name, nil
}
