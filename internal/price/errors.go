package price

import "fmt"

// Cause classifies why a price fetch failed.
type Cause int

const (
	// CauseNetwork: connection failure, timeout or unreadable body.
	CauseNetwork Cause = iota + 1
	// CauseRemote: non-2xx HTTP status.
	CauseRemote
	// CauseShape: malformed JSON or a missing id/usd key.
	CauseShape
	// CauseValue: the usd field is not a usable number.
	CauseValue
)

func (c Cause) String() string {
	switch c {
	case CauseNetwork:
		return "network"
	case CauseRemote:
		return "remote"
	case CauseShape:
		return "shape"
	case CauseValue:
		return "value"
	default:
		return "unknown"
	}
}

// FetchError is returned for every failed fetch.
type FetchError struct {
	Cause  Cause
	ID     string
	Status int // set for CauseRemote
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch price %q (%s): %v", e.ID, e.Cause, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
