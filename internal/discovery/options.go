package discovery

import (
	"strings"
	"time"

	"github.com/srg/scorelink/internal/radio"
)

// DefaultTimeout is the hard limit of one discovery session.
const DefaultTimeout = 12 * time.Second

// DefaultEventBuffer is the capacity of the new-device event channel.
const DefaultEventBuffer = 100

// Options configures discovery behavior
type Options struct {
	Timeout     time.Duration
	AllowList   []string
	BlockList   []string
	EventBuffer int
	// Filter, when set, must accept an event for it to enter the found-set.
	Filter func(radio.Event) bool
}

// DefaultOptions returns default discovery options
func DefaultOptions() *Options {
	return &Options{
		Timeout:     DefaultTimeout,
		EventBuffer: DefaultEventBuffer,
	}
}

func (o *Options) withDefaults() *Options {
	out := DefaultOptions()
	if o == nil {
		return out
	}
	*out = *o
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if out.EventBuffer <= 0 {
		out.EventBuffer = DefaultEventBuffer
	}
	return out
}

// accepts applies the allow, block and custom filters
func (o *Options) accepts(ev radio.Event) bool {
	for _, blocked := range o.BlockList {
		if strings.EqualFold(ev.Address, blocked) {
			return false
		}
	}

	if len(o.AllowList) > 0 {
		allowed := false
		for _, a := range o.AllowList {
			if strings.EqualFold(ev.Address, a) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if o.Filter != nil && !o.Filter(ev) {
		return false
	}
	return true
}
