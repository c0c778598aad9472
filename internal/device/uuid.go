package device

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// SerialPortServiceID is the serial port profile UUID used to open every
// peripheral stream.
var SerialPortServiceID = uuid.MustParse("00001101-0000-1000-8000-00805F9B34FB")

// ValidateAddress trims a user-supplied peripheral address and rejects empty input.
func ValidateAddress(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "", errors.New("device address is empty")
	}
	return strings.ToUpper(trimmed), nil
}

// ParseServiceID parses a service UUID, falling back to SerialPortServiceID
// when s is empty.
func ParseServiceID(s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return SerialPortServiceID, nil
	}
	return uuid.Parse(s)
}
