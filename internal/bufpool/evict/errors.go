package evict

import "fmt"

// StuckError reports that an async evictioner exhausted max_attempts
// consecutive failed victim picks without filling its batch — fatal:
// every remaining frame is unevictable.
type StuckError struct {
	Attempts int
}

func (e *StuckError) Error() string {
	return fmt.Sprintf("evict: eviction stuck after %d attempts", e.Attempts)
}

func ErrEvictionStuck(attempts int) error {
	return &StuckError{Attempts: attempts}
}
