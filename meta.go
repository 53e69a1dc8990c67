package eventdex

import (
	"path/filepath"

	"github.com/akrennmair/eventdex/column"
	"github.com/akrennmair/eventdex/value"
)

const (
	ColumnTimestamp = "timestamp"
	ColumnName      = "name"
)

// MetaFragment indexes the timestamp and the name of every event.
type MetaFragment struct {
	*fragment

	timestamp column.Index
	name      column.Index
}

// NewMetaFragment opens the meta fragment stored in dir, or creates dir
// if it doesn't exist yet.
func NewMetaFragment(dir string, opts ...Option) (*MetaFragment, error) {
	f := &MetaFragment{
		fragment: newFragment("meta", dir, opts),
	}

	var err error
	if f.timestamp, err = column.New(value.TypeTime); err != nil {
		return nil, err
	}
	if f.name, err = column.New(value.TypeString); err != nil {
		return nil, err
	}

	if err := f.open(f.load); err != nil {
		return nil, err
	}

	return f, nil
}

func (f *MetaFragment) load() error {
	ts, err := readColumn(filepath.Join(f.dir, ColumnTimestamp+indexSuffix), value.TypeTime)
	if err != nil {
		return err
	}

	name, err := readColumn(filepath.Join(f.dir, ColumnName+indexSuffix), value.TypeString)
	if err != nil {
		return err
	}

	f.timestamp, f.name = ts, name

	return nil
}

// Index adds the timestamp and name of e.
func (f *MetaFragment) Index(e *Event) error {
	if err := f.lock(); err != nil {
		return err
	}
	defer f.mtx.Unlock()

	errs := fieldErrors{id: e.ID}

	f.append(&errs, ColumnTimestamp, f.timestamp, e.ID, value.NewTime(e.Timestamp))
	f.append(&errs, ColumnName, f.name, e.ID, value.String(e.Name))

	return errs.err()
}

// Store writes timestamp.idx and name.idx.
func (f *MetaFragment) Store() error {
	if err := f.lock(); err != nil {
		return err
	}
	defer f.mtx.Unlock()

	return f.storeLocked()
}

func (f *MetaFragment) storeLocked() error {
	return f.store(f.columns(), func(c ColumnInfo) string {
		return c.Name + indexSuffix
	})
}

// Close stores the fragment and terminates it.
func (f *MetaFragment) Close() error {
	return f.close(f.storeLocked)
}

// Size returns the number of IDs covered by the fragment. It is the ID
// the next event is expected to carry.
func (f *MetaFragment) Size() uint64 {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	return max(f.timestamp.Size(), f.name.Size())
}

// Columns returns the timestamp and name columns.
func (f *MetaFragment) Columns() []ColumnInfo {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	return f.columns()
}

func (f *MetaFragment) columns() []ColumnInfo {
	return []ColumnInfo{
		{Name: ColumnTimestamp, Type: value.TypeTime, Index: f.timestamp},
		{Name: ColumnName, Type: value.TypeString, Index: f.name},
	}
}

// Column returns the column called name.
func (f *MetaFragment) Column(name string) (column.Index, bool) {
	return findColumn(f.Columns(), name)
}

func findColumn(columns []ColumnInfo, name string) (column.Index, bool) {
	for _, c := range columns {
		if c.Name == name {
			return c.Index, true
		}
	}
	return nil, false
}
