package navigator

// State is a navigator phase.
type State int32

const (
	StateIdle State = iota
	StateAwaitSensor
	StateInitialApproach
	StateLocalize
	StateLocate
	StateValidate
	StateSequence
	StateReturnToOrigin
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateAwaitSensor:     "await_sensor",
	StateInitialApproach: "initial_approach",
	StateLocalize:        "localize",
	StateLocate:          "locate",
	StateValidate:        "validate",
	StateSequence:        "sequence",
	StateReturnToOrigin:  "return_to_origin",
	StateDone:            "done",
	StateFailed:          "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
