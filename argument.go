package eventdex

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/akrennmair/eventdex/column"
	"github.com/akrennmair/eventdex/value"
	"go.uber.org/zap"
)

type argumentColumn struct {
	offset Offset
	index  column.Index
}

// ArgumentFragment indexes the fields of one event schema by position.
// Every field Offset gets its own column, created when the first value
// at that offset is seen; the type of that value determines the type of
// the column.
type ArgumentFragment struct {
	*fragment

	columns map[string]*argumentColumn
}

// NewArgumentFragment opens the argument fragment stored in dir, or
// creates dir if it doesn't exist yet.
func NewArgumentFragment(dir string, opts ...Option) (*ArgumentFragment, error) {
	f := &ArgumentFragment{
		fragment: newFragment("argument", dir, opts),
		columns:  make(map[string]*argumentColumn),
	}

	if err := f.open(f.load); err != nil {
		return nil, err
	}

	return f, nil
}

// load derives the set of columns from the file names in the fragment
// directory.
func (f *ArgumentFragment) load() error {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return err
	}

	columns := make(map[string]*argumentColumn, len(entries))

	for _, entry := range entries {
		name := entry.Name()

		if strings.HasSuffix(name, column.TempSuffix) {
			f.logger.Debug("ignoring leftover temporary file", zap.String("file", name))
			continue
		}

		if entry.IsDir() {
			return fmt.Errorf("%w: unexpected directory %s", ErrFormat, name)
		}

		offset, err := ParseOffsetFilename(name)
		if err != nil {
			return err
		}

		key := offset.String()
		if _, ok := columns[key]; ok {
			return fmt.Errorf("%w: duplicate offset %s", ErrFormat, key)
		}

		idx, err := column.ReadFile(filepath.Join(f.dir, name))
		if err != nil {
			return err
		}

		columns[key] = &argumentColumn{offset: offset, index: idx}
	}

	f.columns = columns

	return nil
}

// Index adds the fields of e to the column of their offset. A nested
// record occupies one position in its parent; its own fields are indexed
// at the offsets below that position.
func (f *ArgumentFragment) Index(e *Event) error {
	if err := f.lock(); err != nil {
		return err
	}
	defer f.mtx.Unlock()

	errs := fieldErrors{id: e.ID}

	f.walk(&errs, e.ID, e.Record, nil)

	return errs.err()
}

func (f *ArgumentFragment) walk(errs *fieldErrors, id uint64, r value.Record, parent Offset) {
	offset := append(parent, 0)
	last := len(offset) - 1

	for _, v := range r {
		if nested, ok := v.(value.Record); ok {
			if len(nested) > 0 {
				f.walk(errs, id, nested, offset)
			}
		} else {
			f.indexAt(errs, id, offset, v)
		}
		offset[last]++
	}
}

func (f *ArgumentFragment) indexAt(errs *fieldErrors, id uint64, offset Offset, v value.Value) {
	key := offset.String()

	c, ok := f.columns[key]
	if !ok {
		idx, err := column.New(value.TypeOf(v))
		if err != nil {
			f.fail(errs, key, id, v, err)
			return
		}
		c = &argumentColumn{offset: offset.Clone(), index: idx}
		f.columns[key] = c
		f.logger.Debug("created column", zap.String("offset", key), zap.Stringer("type", idx.Type()))
	}

	f.append(errs, key, c.index, id, v)
}

// Store writes one file per offset.
func (f *ArgumentFragment) Store() error {
	if err := f.lock(); err != nil {
		return err
	}
	defer f.mtx.Unlock()

	return f.storeLocked()
}

func (f *ArgumentFragment) storeLocked() error {
	return f.store(f.sortedColumns(), func(c ColumnInfo) string {
		return f.columns[c.Name].offset.Filename()
	})
}

// Close stores the fragment and terminates it.
func (f *ArgumentFragment) Close() error {
	return f.close(f.storeLocked)
}

// Columns returns one column per offset, named by the offset and sorted
// by it.
func (f *ArgumentFragment) Columns() []ColumnInfo {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	return f.sortedColumns()
}

func (f *ArgumentFragment) sortedColumns() []ColumnInfo {
	sorted := make([]*argumentColumn, 0, len(f.columns))
	for _, c := range f.columns {
		sorted = append(sorted, c)
	}

	sort.Slice(sorted, func(i, j int) bool {
		return offsetLess(sorted[i].offset, sorted[j].offset)
	})

	columns := make([]ColumnInfo, len(sorted))
	for i, c := range sorted {
		columns[i] = ColumnInfo{Name: c.offset.String(), Type: c.index.Type(), Index: c.index}
	}
	return columns
}

// Size returns the largest size of the argument columns, 0 if the
// fragment has none yet.
func (f *ArgumentFragment) Size() uint64 {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	return maxSize(f.sortedColumns())
}

// Column returns the column at offset.
func (f *ArgumentFragment) Column(offset Offset) (column.Index, bool) {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	c, ok := f.columns[offset.String()]
	if !ok {
		return nil, false
	}
	return c.index, true
}

func offsetLess(a, b Offset) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
