package serac

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so chunk ids and report names are
// deterministic in tests. Times are converted to UTC by their consumers.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// NewRunID returns a random id correlating the log lines and the history
// record of one run.
func NewRunID() string {
	return uuid.NewString()
}
