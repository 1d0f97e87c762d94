package ingest

// State is the lifecycle position of a Loop's current batch.
type State int32

const (
	StateIdle State = iota
	StateSubscribed
	StateDraining
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribed:
		return "subscribed"
	case StateDraining:
		return "draining"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}
