package instance

// LifecycleState is the coarse host state mirrored into the current
// context.
type LifecycleState int32

const (
	BeforeCreate LifecycleState = iota
	BeforeResume
	Resumed
)

func (s LifecycleState) String() string {
	switch s {
	case BeforeCreate:
		return "BEFORE_CREATE"
	case BeforeResume:
		return "BEFORE_RESUME"
	case Resumed:
		return "RESUMED"
	}
	return "UNKNOWN"
}

// adjacent reports whether a direct transition from s to t is allowed.
func (s LifecycleState) adjacent(t LifecycleState) bool {
	d := s - t
	return d == 1 || d == -1
}

// StateObserver sees every lifecycle transition, on the UI queue.
type StateObserver func(from, to LifecycleState)
