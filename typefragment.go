package eventdex

import (
	"fmt"
	"path/filepath"

	"github.com/akrennmair/eventdex/column"
	"github.com/akrennmair/eventdex/value"
)

// typeColumns lists the columns of a TypeFragment in file order.
var typeColumns = []struct {
	name string
	typ  value.Type
}{
	{"bool", value.TypeBool},
	{"int", value.TypeInt},
	{"uint", value.TypeUint},
	{"double", value.TypeDouble},
	{"time-range", value.TypeDuration},
	{"time-point", value.TypeTime},
	{"string", value.TypeString},
	{"address", value.TypeAddress},
	{"port", value.TypePort},
}

// TypeFragment has one column per primitive value type, and indexes every
// scalar of an event in the column of its type.
type TypeFragment struct {
	*fragment

	indexes map[value.Type]column.Index
}

// NewTypeFragment opens the type fragment stored in dir, or creates dir if
// it doesn't exist yet.
func NewTypeFragment(dir string, opts ...Option) (*TypeFragment, error) {
	f := &TypeFragment{
		fragment: newFragment("type", dir, opts),
		indexes:  make(map[value.Type]column.Index, len(typeColumns)),
	}

	for _, c := range typeColumns {
		idx, err := column.New(c.typ)
		if err != nil {
			return nil, err
		}
		f.indexes[c.typ] = idx
	}

	if err := f.open(f.load); err != nil {
		return nil, err
	}

	return f, nil
}

func (f *TypeFragment) load() error {
	indexes := make(map[value.Type]column.Index, len(typeColumns))

	for _, c := range typeColumns {
		idx, err := readColumn(filepath.Join(f.dir, c.name+indexSuffix), c.typ)
		if err != nil {
			return err
		}
		indexes[c.typ] = idx
	}

	f.indexes = indexes

	return nil
}

// Index adds the scalars of e to the columns of their types. A top-level
// value that occurs more than once in the record is only indexed on its
// first occurrence. Values nested in records are not deduplicated.
//
// As a column holds at most one value per ID, only the first scalar of
// each type is indexed; further scalars of the same type fail with
// ErrOutOfOrderID.
func (f *TypeFragment) Index(e *Event) error {
	if err := f.lock(); err != nil {
		return err
	}
	defer f.mtx.Unlock()

	errs := fieldErrors{id: e.ID}
	seen := value.NewSet()

	for _, v := range e.Record {
		if !seen.Add(v) {
			continue
		}

		value.Leaves(v, func(leaf value.Value) {
			t := value.TypeOf(leaf)

			idx, ok := f.indexes[t]
			if !ok {
				f.fail(&errs, t.String(), e.ID, leaf, fmt.Errorf("%w: no column for %s", ErrUnsupportedValueType, t))
				return
			}

			f.append(&errs, t.String(), idx, e.ID, leaf)
		})
	}

	return errs.err()
}

// Store writes one file per type column.
func (f *TypeFragment) Store() error {
	if err := f.lock(); err != nil {
		return err
	}
	defer f.mtx.Unlock()

	return f.storeLocked()
}

func (f *TypeFragment) storeLocked() error {
	return f.store(f.columns(), func(c ColumnInfo) string {
		return c.Name + indexSuffix
	})
}

// Close stores the fragment and terminates it.
func (f *TypeFragment) Close() error {
	return f.close(f.storeLocked)
}

// Size returns the largest size of the type columns.
func (f *TypeFragment) Size() uint64 {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	return maxSize(f.columns())
}

// Columns returns the type columns, named like their files.
func (f *TypeFragment) Columns() []ColumnInfo {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	return f.columns()
}

func (f *TypeFragment) columns() []ColumnInfo {
	columns := make([]ColumnInfo, 0, len(typeColumns))
	for _, c := range typeColumns {
		columns = append(columns, ColumnInfo{Name: c.name, Type: c.typ, Index: f.indexes[c.typ]})
	}
	return columns
}

// Column returns the column called name, e.g. "time-point".
func (f *TypeFragment) Column(name string) (column.Index, bool) {
	return findColumn(f.Columns(), name)
}
