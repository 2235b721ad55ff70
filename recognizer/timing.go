package recognizer

import "time"

// Timing holds the wall-clock marks of a session. Zero values mean "not recorded".
type Timing struct {
	Start time.Time // first detection
	End   time.Time // end-of-stream signalled
	Final time.Time // worker exit
}

// RecognitionTime is the delay between end-of-stream and the final result.
func (t Timing) RecognitionTime() time.Duration { return elapsed(t.End, t.Final) }

// RecordTime is the time from the first detection to the final result.
func (t Timing) RecordTime() time.Duration { return elapsed(t.Start, t.Final) }

func elapsed(from, to time.Time) time.Duration {
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return 0
	}
	return to.Sub(from)
}
