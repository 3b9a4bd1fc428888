package bufpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLatch_TryLockEXFailsWhileHeld(t *testing.T) {
	var l Latch
	l.LockEX()
	require.False(t, l.TryLockEX())
	l.UnlockEX()
	require.True(t, l.TryLockEX())
	l.UnlockEX()
}

func TestLatch_SharedAllowsMultipleReaders(t *testing.T) {
	var l Latch
	require.True(t, l.TryLockSH())
	require.True(t, l.TryLockSH())
	require.False(t, l.TryLockEX())
	l.UnlockSH()
	l.UnlockSH()
	require.True(t, l.TryLockEX())
	l.UnlockEX()
}

func TestLatch_GenericLockDispatchesOnMode(t *testing.T) {
	var l Latch
	l.Lock(EX)
	require.False(t, l.TryLock(SH))
	l.Unlock(EX)

	l.Lock(SH)
	require.True(t, l.TryLock(SH))
	l.Unlock(SH)
	l.Unlock(SH)
}

func TestLatch_DowngradeKeepsFrameReadable(t *testing.T) {
	var l Latch
	l.LockEX()
	l.Downgrade()
	require.True(t, l.TryLockSH())
	l.UnlockSH()
	l.UnlockSH()
}

func TestMode_String(t *testing.T) {
	require.Equal(t, "ex", EX.String())
	require.Equal(t, "sh", SH.String())
}
