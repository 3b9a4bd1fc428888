package bufpool

import "sync"

// Mode selects the latch mode a fix requests.
type Mode int

const (
	SH Mode = iota // shared
	EX              // exclusive
)

func (m Mode) String() string {
	if m == EX {
		return "ex"
	}
	return "sh"
}

// Latch is a frame's reader/writer lock, named the way the buffer pool
// talks about it (EX/SH, with latch coupling between parent and child)
// rather than Go's Lock/RLock. conditional fixes use the Try variants so
// a busy latch surfaces as FrameInUse instead of blocking.
type Latch struct {
	mu sync.RWMutex
}

func (l *Latch) LockEX()      { l.mu.Lock() }
func (l *Latch) TryLockEX() bool { return l.mu.TryLock() }
func (l *Latch) UnlockEX()    { l.mu.Unlock() }

func (l *Latch) LockSH()      { l.mu.RLock() }
func (l *Latch) TryLockSH() bool { return l.mu.TryRLock() }
func (l *Latch) UnlockSH()    { l.mu.RUnlock() }

// Lock acquires in mode, blocking.
func (l *Latch) Lock(mode Mode) {
	if mode == EX {
		l.LockEX()
	} else {
		l.LockSH()
	}
}

// TryLock acquires in mode without blocking.
func (l *Latch) TryLock(mode Mode) bool {
	if mode == EX {
		return l.TryLockEX()
	}
	return l.TryLockSH()
}

// Unlock releases a latch held in mode.
func (l *Latch) Unlock(mode Mode) {
	if mode == EX {
		l.UnlockEX()
	} else {
		l.UnlockSH()
	}
}

// Downgrade releases an EX hold and reacquires in SH. Only valid when
// the caller is certain it is the sole holder (true for a frame the
// fix path just EX-latched to load or recover) — a deliberate exception
// to unlocking in the order a latch was acquired.
func (l *Latch) Downgrade() {
	l.mu.Unlock()
	l.mu.RLock()
}
