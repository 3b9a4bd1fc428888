package restore

import (
	"fmt"
	"io"

	"github.com/tuannm99/novasql/internal/storage"
	"github.com/tuannm99/novasql/pkg/util"
)

// LocalSegmentRestorer implements SegmentRestorer by copying one backup
// segment file onto the matching primary segment file, byte for byte.
// This is the concrete instant-restore path: the buffer pool core only
// ever calls through the Coordinator, never touches segment files itself.
type LocalSegmentRestorer struct {
	Primary storage.LocalFileSet
	Backup  storage.LocalFileSet
}

var _ SegmentRestorer = LocalSegmentRestorer{}

func (r LocalSegmentRestorer) RestoreSegment(segNo int32) error {
	src, err := r.Backup.OpenSegment(segNo)
	if err != nil {
		return fmt.Errorf("restore: open backup segment %d: %w", segNo, err)
	}
	defer util.CloseFileFunc(src)

	dst, err := r.Primary.OpenSegment(segNo)
	if err != nil {
		return fmt.Errorf("restore: open primary segment %d: %w", segNo, err)
	}
	defer util.CloseFileFunc(dst)

	if err := dst.Truncate(0); err != nil {
		return fmt.Errorf("restore: truncate primary segment %d: %w", segNo, err)
	}
	if _, err := dst.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("restore: seek primary segment %d: %w", segNo, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("restore: copy segment %d: %w", segNo, err)
	}
	return dst.Sync()
}
