package eventdex

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/akrennmair/eventdex/bitmap"
	"github.com/akrennmair/eventdex/column"
	"github.com/akrennmair/eventdex/value"
	"go.uber.org/zap"
)

// Fragment correlates a directory with a set of column indexes.
//
// A fragment is created by its constructor, which loads the indexes from
// the directory if it exists and creates the directory otherwise. Index
// only changes in-memory state; Store is the sole persistence point.
// Close stores one last time, after which every call fails with
// ErrTerminated.
//
// A fragment processes one call at a time. Index must be called in ID
// order.
type Fragment interface {
	// Dir returns the directory of the fragment.
	Dir() string

	// Index adds the values of e at ID e.ID. If some values could not be
	// indexed, the remaining values are still indexed and an *IndexError
	// is returned.
	Index(e *Event) error

	// Store writes all column indexes to the directory.
	Store() error

	// Lookup evaluates expr against the fragment. It is not implemented
	// yet and always reports a miss.
	Lookup(expr Expression) (*bitmap.Bitmap, bool)

	// Columns describes the column indexes of the fragment.
	Columns() []ColumnInfo

	// Size returns the largest size of any column index, i.e. one past
	// the highest ID the fragment has seen.
	Size() uint64

	// Close stores the fragment and terminates it.
	Close() error
}

// ColumnInfo describes one column index of a fragment.
type ColumnInfo struct {
	Name  string
	Type  value.Type
	Index column.Index
}

func maxSize(columns []ColumnInfo) uint64 {
	var size uint64
	for _, c := range columns {
		size = max(size, c.Index.Size())
	}
	return size
}

// AppendValueAt appends v to idx at ID id. IDs between the current size
// of idx and id are backfilled as absent. If idx has already passed id,
// ErrOutOfOrderID is returned and idx is not modified; likewise, values
// of the wrong type are rejected before anything is backfilled. The
// number of backfilled IDs is returned.
func AppendValueAt(idx column.Index, id uint64, v value.Value) (backfilled uint64, err error) {
	current := idx.Size()
	if id < current {
		return 0, fmt.Errorf("%w: ID %d, index already at %d", ErrOutOfOrderID, id, current)
	}

	if t := value.TypeOf(v); t != idx.Type() {
		return 0, fmt.Errorf("%w: %s column cannot hold %s value", ErrUnsupportedValueType, idx.Type(), t)
	}

	if gap := id - current; gap > 0 {
		if err := idx.AppendAbsent(gap); err != nil {
			return 0, err
		}
		backfilled = gap
	}

	return backfilled, idx.AppendValue(v)
}

type fragment struct {
	mtx sync.Mutex

	kind       string
	dir        string
	terminated bool

	logger  *zap.Logger
	metrics *FragmentMetrics
}

func newFragment(kind, dir string, opts []Option) *fragment {
	o := newOptions(opts)

	return &fragment{
		kind:    kind,
		dir:     dir,
		logger:  o.logger.With(zap.String("fragment", kind), zap.String("dir", dir)),
		metrics: o.metrics,
	}
}

func (f *fragment) Dir() string {
	return f.dir
}

// Lookup is not implemented yet.
func (f *fragment) Lookup(expr Expression) (*bitmap.Bitmap, bool) {
	return nil, false
}

// open loads the fragment if its directory exists and creates the
// directory otherwise.
func (f *fragment) open(load func() error) error {
	fi, err := os.Stat(f.dir)
	switch {
	case err == nil:
		if !fi.IsDir() {
			return fmt.Errorf("%s is not a directory", f.dir)
		}
		f.logger.Debug("loading indexes from disk")
		if err := load(); err != nil {
			return fmt.Errorf("failed to load %s fragment from %s: %w", f.kind, f.dir, err)
		}
		return nil
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(f.dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", f.dir, err)
		}
		return nil
	default:
		return err
	}
}

// lock acquires the fragment for one call.
func (f *fragment) lock() error {
	f.mtx.Lock()
	if f.terminated {
		f.mtx.Unlock()
		return ErrTerminated
	}
	return nil
}

// append adds v to idx at id and records failures in errs.
func (f *fragment) append(errs *fieldErrors, name string, idx column.Index, id uint64, v value.Value) {
	backfilled, err := AppendValueAt(idx, id, v)
	f.metrics.backfilled(backfilled)
	if err != nil {
		f.fail(errs, name, id, v, err)
		return
	}
	f.metrics.valueIndexed()
}

func (f *fragment) fail(errs *fieldErrors, name string, id uint64, v value.Value, err error) {
	f.logger.Debug("failed to index value",
		zap.Uint64("id", id),
		zap.String("column", name),
		zap.String("value", value.Format(v)),
		zap.Error(err),
	)
	f.metrics.indexError()
	errs.add(name, err)
}

// store writes columns into the fragment directory.
func (f *fragment) store(columns []ColumnInfo, filename func(ColumnInfo) string) error {
	start := time.Now()

	for _, c := range columns {
		if err := column.WriteFile(filepath.Join(f.dir, filename(c)), c.Index); err != nil {
			return fmt.Errorf("failed to store column %s: %w", c.Name, err)
		}
	}

	f.metrics.stored(time.Since(start).Seconds())
	f.logger.Debug("wrote indexes to disk", zap.Int("columns", len(columns)), zap.Duration("duration", time.Since(start)))

	return nil
}

// close runs store and terminates the fragment. If store fails, the
// fragment stays usable so that the caller may retry.
func (f *fragment) close(store func() error) error {
	if err := f.lock(); err != nil {
		return err
	}
	defer f.mtx.Unlock()

	if err := store(); err != nil {
		return err
	}

	f.terminated = true
	f.logger.Debug("terminated")

	return nil
}

// readColumn loads the index stored in filename and checks that it has
// type t. A missing file yields an empty index.
func readColumn(filename string, t value.Type) (column.Index, error) {
	idx, err := column.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return column.New(t)
	}
	if err != nil {
		return nil, err
	}

	if idx.Type() != t {
		return nil, fmt.Errorf("%w: %s holds %s values, expected %s", ErrFormat, filename, idx.Type(), t)
	}

	return idx, nil
}
