// Package telemetry reads the text stream of a connected peripheral, decodes
// heart-rate tokens and publishes the latest values per device class.
package telemetry

import (
	"time"

	"github.com/srg/scorelink/internal/device"
	"github.com/srg/scorelink/internal/live"
)

// DefaultSampleBuffer is the capacity of the feed's sample channel.
const DefaultSampleBuffer = 64

// Sample is one read from a peripheral stream.
type Sample struct {
	Class        device.Class
	PeripheralID string
	Raw          string
	HeartRate    int
	HasHeartRate bool
	ReceivedAt   time.Time
}

// HeartRate is the last decoded heart-rate reading of a class.
type HeartRate struct {
	BPM          int
	PeripheralID string
	At           time.Time
}

// Valid reports whether a reading has been decoded.
func (h HeartRate) Valid() bool {
	return !h.At.IsZero()
}

type classFeed struct {
	raw       *live.Value[string]
	heartRate *live.Value[HeartRate]
}

// Feed holds the live telemetry values for every device class. Listeners
// write to it; callers read the latest values or drain Samples.
type Feed struct {
	classes map[device.Class]*classFeed
	samples *live.RingChannel[Sample]
}

// NewFeed creates a feed whose sample channel keeps up to buffer samples.
func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = DefaultSampleBuffer
	}
	f := &Feed{
		classes: make(map[device.Class]*classFeed, len(device.Classes)),
		samples: live.NewRingChannel[Sample](buffer),
	}
	for _, c := range device.Classes {
		f.classes[c] = &classFeed{
			raw:       live.NewValue(""),
			heartRate: live.NewValue(HeartRate{}),
		}
	}
	return f
}

// lookup returns the cells of class. Unknown classes get detached cells that
// never change.
func (f *Feed) lookup(class device.Class) *classFeed {
	if cf, ok := f.classes[class]; ok {
		return cf
	}
	return &classFeed{raw: live.NewValue(""), heartRate: live.NewValue(HeartRate{})}
}

// Raw returns the last raw text read for class.
func (f *Feed) Raw(class device.Class) string {
	return f.lookup(class).raw.Load()
}

// RawValue exposes the raw text cell of class for change notification.
func (f *Feed) RawValue(class device.Class) *live.Value[string] {
	return f.lookup(class).raw
}

// HeartRate returns the last decoded heart rate of class.
func (f *Feed) HeartRate(class device.Class) HeartRate {
	return f.lookup(class).heartRate.Load()
}

// HeartRateValue exposes the heart-rate cell of class for change notification.
func (f *Feed) HeartRateValue(class device.Class) *live.Value[HeartRate] {
	return f.lookup(class).heartRate
}

// Samples returns every published sample, oldest dropped first when the
// consumer falls behind.
func (f *Feed) Samples() <-chan Sample {
	return f.samples.C()
}

// Dropped returns how many samples were overwritten before being read.
func (f *Feed) Dropped() int64 {
	return f.samples.GetMetrics().Overwritten
}

// Publish records a sample: the raw text replaces the class's previous value
// and, when present, so does the heart rate.
func (f *Feed) Publish(s Sample) {
	cf, ok := f.classes[s.Class]
	if !ok {
		return
	}
	cf.raw.Store(s.Raw)
	if s.HasHeartRate {
		cf.heartRate.Store(HeartRate{BPM: s.HeartRate, PeripheralID: s.PeripheralID, At: s.ReceivedAt})
	}
	f.samples.ForceSend(s)
}

// Close ends the sample channel. Call only after every listener has stopped.
func (f *Feed) Close() {
	f.samples.Close()
}
