package fusion

import "fmt"

// Phase is fusion loop phase
type Phase int

const (
	// WarmingUp means the feature buffer is not full yet and no filtering happens
	WarmingUp Phase = iota
	// Filtering means every step runs UKF predict and update
	Filtering
	// Done means the whole input has been processed
	Done
)

// String implements fmt.Stringer
func (p Phase) String() string {
	switch p {
	case WarmingUp:
		return "warming_up"
	case Filtering:
		return "filtering"
	case Done:
		return "done"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
