package control

import "fmt"

// Status is the controller's run state.
//
//	Idle -> Initializing -> Running <-> Paused
//	any -> Error on initialization failure
//	any -> Idle on Stop
type Status int

const (
	StatusIdle Status = iota
	StatusInitializing
	StatusRunning
	StatusPaused
	StatusError
)

var statusNames = [...]string{"idle", "initializing", "running", "paused", "error"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if name == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("control: unknown status %q", b)
}
