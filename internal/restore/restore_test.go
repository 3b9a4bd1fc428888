package restore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var errTestRestoreFailed = errors.New("restore: simulated failure")

type fakeRestorer struct {
	restored []int32
	fail     map[int32]bool
}

func (f *fakeRestorer) RestoreSegment(segNo int32) error {
	if f.fail[segNo] {
		return errTestRestoreFailed
	}
	f.restored = append(f.restored, segNo)
	return nil
}

func TestCoordinator_FetchRestoresSegmentOnce(t *testing.T) {
	r := &fakeRestorer{}
	c := NewCoordinator(100, 3, r, false, true, false)

	require.NoError(t, c.Fetch(50))  // segment 0
	require.NoError(t, c.Fetch(60))  // segment 0 again, already done
	require.NoError(t, c.Fetch(150)) // segment 1

	require.Equal(t, []int32{0, 1}, r.restored)
}

func TestCoordinator_VirginSkipsRestore(t *testing.T) {
	r := &fakeRestorer{}
	c := NewCoordinator(100, 3, r, true, false, false)
	require.NoError(t, c.Fetch(500))
	require.Empty(t, r.restored)
}

func TestCoordinator_StartLockedBlocksFetch(t *testing.T) {
	r := &fakeRestorer{}
	c := NewCoordinator(100, 1, r, false, true, true)

	err := c.Fetch(10)
	require.Error(t, err)

	require.NoError(t, c.Start())
	require.NoError(t, c.Fetch(10))
}

func TestCoordinator_OutOfRangeSegment(t *testing.T) {
	r := &fakeRestorer{}
	c := NewCoordinator(100, 1, r, false, false, false)
	err := c.Fetch(1000) // segment 10, only 1 segment exists
	require.Error(t, err)
}

func TestCoordinator_SetAndReadLSNs(t *testing.T) {
	c := NewCoordinator(100, 1, &fakeRestorer{}, false, false, false)
	c.SetLSNs(10, 20)
	backup, failure := c.LSNs()
	require.Equal(t, uint64(10), backup)
	require.Equal(t, uint64(20), failure)
}

func TestCoordinator_RemainingCounts(t *testing.T) {
	r := &fakeRestorer{}
	c := NewCoordinator(100, 2, r, false, false, false)
	require.Equal(t, 2, c.Remaining())
	require.NoError(t, c.Fetch(0))
	require.Equal(t, 1, c.Remaining())
}
