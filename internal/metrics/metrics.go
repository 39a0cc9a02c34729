package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string) {}

func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}

// Since observes the time elapsed from start.
func Since(r Recorder, name string, start time.Time, labels map[string]string) {
	r.ObserveLatency(name, time.Since(start), labels)
}
