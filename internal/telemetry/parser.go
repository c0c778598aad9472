package telemetry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/srg/scorelink/internal/device"
)

// HeartRateToken marks a heart-rate reading in the raw text stream.
const HeartRateToken = "HR:"

// ErrNoHeartRate is returned when a payload carries no heart-rate token.
var ErrNoHeartRate = errors.New("no heart rate token")

// ParseError reports a heart-rate token whose value is not an integer.
type ParseError struct {
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid heart rate format %q: %v", e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is makes ParseError match errors of kind device.ParseFailure.
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*device.Error)
	return ok && t.Kind == device.ParseFailure
}

// ParseHeartRate extracts the value following the first "HR:" token, up to
// the next newline or the end of text.
func ParseHeartRate(text string) (int, error) {
	_, after, found := strings.Cut(text, HeartRateToken)
	if !found {
		return 0, ErrNoHeartRate
	}
	value, _, _ := strings.Cut(after, "\n")
	value = strings.TrimSpace(value)

	bpm, err := strconv.Atoi(value)
	if err != nil {
		return 0, &ParseError{Value: value, Err: err}
	}
	return bpm, nil
}

// Parser decodes heart-rate tokens and logs malformed ones. It is stateless
// and safe for concurrent use.
type Parser struct {
	logger *logrus.Logger
}

// NewParser creates a parser that reports malformed tokens to logger.
func NewParser(logger *logrus.Logger) *Parser {
	if logger == nil {
		logger = logrus.New()
	}
	return &Parser{logger: logger}
}

// Parse returns the heart rate carried by text. ok is false when the token is
// absent or its value cannot be parsed; parse failures are logged, never
// returned.
func (p *Parser) Parse(text string) (bpm int, ok bool) {
	bpm, err := ParseHeartRate(text)
	switch {
	case err == nil:
		return bpm, true
	case errors.Is(err, ErrNoHeartRate):
		return 0, false
	default:
		p.logger.WithError(err).Error("Invalid heart rate format")
		return 0, false
	}
}
