package network

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/Kingmotro/pexel-platform/internal/protocol"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		secret  string
		want    bool
	}{
		{"matching secret", RegistrationPayload("s3cret", "slave-1"), "s3cret", true},
		{"wrong secret", RegistrationPayload("guess", "slave-1"), "s3cret", false},
		{"secret prefix", RegistrationPayload("s3c", "slave-1"), "s3cret", false},
		{"garbage", []byte{0xff, 0xff, 0xff}, "s3cret", false},
		{"empty", nil, "s3cret", false},
		{
			"other message kind",
			protocol.Marshal(&protocol.RegisterGame{GameUUID: uuid.New(), Minigame: "spleef"}),
			"s3cret",
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Validate(tt.payload, tt.secret); got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractName(t *testing.T) {
	name, err := ExtractName(RegistrationPayload("s3cret", "slave-7"))
	if err != nil || name != "slave-7" {
		t.Errorf("ExtractName() = %q, %v", name, err)
	}

	if _, err := ExtractName([]byte{0x01}); !errors.Is(err, ErrHandshake) {
		t.Errorf("ExtractName(garbage) error = %v, want ErrHandshake", err)
	}
}
