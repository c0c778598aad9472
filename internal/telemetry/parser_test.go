package telemetry

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/srg/scorelink/internal/device"
)

func TestParseHeartRate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr error
	}{
		{name: "token only", input: "HR:72", want: 72},
		{name: "surrounding text", input: "status ok\nHR:98\nbattery 40", want: 98},
		{name: "spaces trimmed", input: "HR:  61  \n", want: 61},
		{name: "first token wins", input: "HR:60\nHR:70\n", want: 60},
		{name: "signed value", input: "HR:-5", want: -5},
		{name: "plus sign", input: "HR:+80", want: 80},
		{name: "no token", input: "hello", wantErr: ErrNoHeartRate},
		{name: "lowercase token", input: "hr:70", wantErr: ErrNoHeartRate},
		{name: "empty text", input: "", wantErr: ErrNoHeartRate},
		{name: "not a number", input: "HR:abc", wantErr: device.ErrParseFailure},
		{name: "empty value", input: "HR:\nmore", wantErr: device.ErrParseFailure},
		{name: "trailing garbage", input: "HR:72bpm", wantErr: device.ErrParseFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHeartRate(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseErrorKind(t *testing.T) {
	_, err := ParseHeartRate("HR:xyz")

	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
	assert.Equal(t, "xyz", perr.Value)
	assert.Equal(t, device.ParseFailure, device.KindOf(err))
}

func TestParserLogsInvalidValues(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	p := NewParser(logger)

	bpm, ok := p.Parse("HR:75\n")
	assert.True(t, ok)
	assert.Equal(t, 75, bpm)

	_, ok = p.Parse("nothing here")
	assert.False(t, ok)
	assert.Empty(t, buf.String(), "a missing token MUST NOT be logged")

	_, ok = p.Parse("HR:oops")
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "Invalid heart rate format")
}
