//go:build !linux

package rfcomm

import (
	"context"

	"github.com/srg/scorelink/internal/radio"
)

func dial(_ context.Context, _ [6]byte, _ uint8) (radio.Stream, error) {
	return nil, ErrUnsupported
}
