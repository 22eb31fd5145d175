package resq

// Status is the tracked state of one queued job attempt. Tracking is opt-in
// per Create call, untracked ids accept status updates as no-ops.
type Status int

const (
	StatusWaiting  Status = 1
	StatusRunning  Status = 2
	StatusFailed   Status = 3
	StatusComplete Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusRunning:
		return "running"
	case StatusFailed:
		return "failed"
	case StatusComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are expected for s.
func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusComplete
}
