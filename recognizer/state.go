package recognizer

type DetectionState int

const (
	StateUnknown DetectionState = iota
	StateArmed                  // listening for a match
	StateTriggered              // match found, waiting for the final transcript
)

func (s DetectionState) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}

func (s DetectionState) known() bool {
	return s == StateArmed || s == StateTriggered
}
