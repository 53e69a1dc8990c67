package eventdex

import (
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/akrennmair/eventdex/column"
	"github.com/akrennmair/eventdex/value"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testCounter struct {
	n float64
}

func (c *testCounter) Inc() { c.n++ }

func (c *testCounter) Add(f float64) { c.n += f }

func (c *testCounter) Observe(float64) { c.n++ }

func TestAppendValueAtBackfills(t *testing.T) {
	idx, err := column.New(value.TypeInt)
	require.NoError(t, err)

	backfilled, err := AppendValueAt(idx, 5, value.Int(42))
	require.NoError(t, err)
	require.Equal(t, uint64(5), backfilled)

	require.Equal(t, uint64(6), idx.Size())
	require.Equal(t, "000001", idx.Mask().String())

	for id := uint64(0); id < 5; id++ {
		_, ok := idx.ValueAt(id)
		require.False(t, ok)
	}

	v, ok := idx.ValueAt(5)
	require.True(t, ok)
	require.Equal(t, value.Int(42), v)

	// appending at exactly Size() needs no backfill.
	backfilled, err = AppendValueAt(idx, 6, value.Int(1))
	require.NoError(t, err)
	require.Equal(t, uint64(0), backfilled)
	require.Equal(t, uint64(7), idx.Size())
}

func TestAppendValueAtOutOfOrder(t *testing.T) {
	idx, err := column.New(value.TypeString)
	require.NoError(t, err)

	_, err = AppendValueAt(idx, 3, value.String("a"))
	require.NoError(t, err)

	for _, id := range []uint64{0, 3} {
		_, err = AppendValueAt(idx, id, value.String("b"))
		require.ErrorIs(t, err, ErrOutOfOrderID)
		require.Equal(t, uint64(4), idx.Size())
	}

	bm, err := idx.Lookup(value.String("b"))
	require.NoError(t, err)
	require.Equal(t, "0000", bm.String())
}

func TestAppendValueAtWrongTypeDoesNotBackfill(t *testing.T) {
	idx, err := column.New(value.TypeString)
	require.NoError(t, err)

	_, err = AppendValueAt(idx, 10, value.Int(1))
	require.ErrorIs(t, err, ErrUnsupportedValueType)
	require.Equal(t, uint64(0), idx.Size())

	_, err = AppendValueAt(idx, 10, nil)
	require.ErrorIs(t, err, ErrUnsupportedValueType)
	require.Equal(t, uint64(0), idx.Size())
}

func TestMetaFragment(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "meta")

	f, err := NewMetaFragment(dir, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	fi, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, fi.IsDir())

	ts := time.Date(2009, 11, 18, 8, 0, 21, 486539000, time.UTC)

	require.NoError(t, f.Index(&Event{ID: 0, Name: "conn", Timestamp: ts}))
	require.NoError(t, f.Index(&Event{ID: 3, Name: "dns", Timestamp: ts.Add(time.Second)}))
	require.Equal(t, uint64(4), f.Size())

	err = f.Index(&Event{ID: 1, Name: "conn", Timestamp: ts})
	var ie *IndexError
	require.ErrorAs(t, err, &ie)
	require.Equal(t, uint64(1), ie.ID)
	require.Len(t, ie.Fields, 2)
	require.ErrorIs(t, err, ErrOutOfOrderID)
	require.Equal(t, uint64(4), f.Size())

	name, ok := f.Column(ColumnName)
	require.True(t, ok)

	bm, err := name.Lookup(value.String("conn"))
	require.NoError(t, err)
	require.Equal(t, "1000", bm.String())

	require.NoError(t, f.Close())

	reloaded, err := NewMetaFragment(dir)
	require.NoError(t, err)
	require.Equal(t, uint64(4), reloaded.Size())

	timestamps, ok := reloaded.Column(ColumnTimestamp)
	require.True(t, ok)

	v, ok := timestamps.ValueAt(3)
	require.True(t, ok)
	require.True(t, value.Equal(value.NewTime(ts.Add(time.Second)), v))

	_, ok = reloaded.Column("nope")
	require.False(t, ok)
}

func TestTypeFragmentDeduplicatesTopLevelValues(t *testing.T) {
	f, err := NewTypeFragment(t.TempDir(), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	err = f.Index(&Event{ID: 0, Record: value.Record{value.Int(5), value.Int(5), value.String("x")}})
	require.NoError(t, err)

	ints, ok := f.Column("int")
	require.True(t, ok)
	require.Equal(t, uint64(1), ints.Size())
	require.Equal(t, []value.Value{value.Int(5)}, ints.Values())

	strs, ok := f.Column("string")
	require.True(t, ok)
	require.Equal(t, uint64(1), strs.Size())
	require.Equal(t, []value.Value{value.String("x")}, strs.Values())

	for _, name := range []string{"bool", "uint", "double", "time-range", "time-point", "address", "port"} {
		idx, ok := f.Column(name)
		require.True(t, ok, name)
		require.Equal(t, uint64(0), idx.Size(), name)
	}
}

func TestTypeFragmentNestedValues(t *testing.T) {
	f, err := NewTypeFragment(t.TempDir())
	require.NoError(t, err)

	addr := value.NewAddress(netip.MustParseAddr("10.0.0.1"))

	// the same address nested in two distinct records is seen twice; the
	// second attempt collides with the first at the same ID.
	err = f.Index(&Event{ID: 2, Record: value.Record{
		value.Record{addr, value.Port{Number: 53, Proto: value.ProtoUDP}},
		value.Record{addr, value.Bool(true)},
		nil,
	}})
	var ie *IndexError
	require.ErrorAs(t, err, &ie)
	require.Len(t, ie.Fields, 2)
	require.Equal(t, "address", ie.Fields[0].Column)
	require.ErrorIs(t, ie.Fields[0], ErrOutOfOrderID)
	require.ErrorIs(t, ie.Fields[1], ErrUnsupportedValueType)

	for _, name := range []string{"address", "port", "bool"} {
		idx, ok := f.Column(name)
		require.True(t, ok)
		require.Equal(t, uint64(3), idx.Size(), name)
		require.Equal(t, "001", idx.Mask().String(), name)
	}
}

func TestArgumentFragmentOffsets(t *testing.T) {
	f, err := NewArgumentFragment(t.TempDir(), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	a, b, c, d := value.String("a"), value.Int(-1), value.Bool(true), value.Uint(4)

	require.NoError(t, f.Index(&Event{ID: 7, Record: value.Record{a, value.Record{b, c}, d}}))

	testData := []struct {
		offset Offset
		value  value.Value
	}{
		{offset: Offset{0}, value: a},
		{offset: Offset{1, 0}, value: b},
		{offset: Offset{1, 1}, value: c},
		{offset: Offset{2}, value: d},
	}

	for _, tt := range testData {
		t.Run(tt.offset.String(), func(t *testing.T) {
			idx, ok := f.Column(tt.offset)
			require.True(t, ok)
			require.Equal(t, uint64(8), idx.Size())
			require.Equal(t, tt.value.Type(), idx.Type())

			v, ok := idx.ValueAt(7)
			require.True(t, ok)
			require.Equal(t, tt.value, v)
		})
	}

	_, ok := f.Column(Offset{1})
	require.False(t, ok)

	columns := f.Columns()
	require.Len(t, columns, 4)
	for i, name := range []string{"0", "1,0", "1,1", "2"} {
		require.Equal(t, name, columns[i].Name)
	}
}

func TestArgumentFragmentEmptyRecords(t *testing.T) {
	f, err := NewArgumentFragment(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, f.Index(&Event{ID: 0, Record: value.Record{}}))
	require.Empty(t, f.Columns())

	// an empty nested record still occupies a position.
	require.NoError(t, f.Index(&Event{ID: 1, Record: value.Record{value.Record{}, value.String("x")}}))

	_, ok := f.Column(Offset{0})
	require.False(t, ok)

	idx, ok := f.Column(Offset{1})
	require.True(t, ok)
	require.Equal(t, "01", idx.Mask().String())
}

func TestArgumentFragmentPartialFailure(t *testing.T) {
	metrics := struct {
		indexed, failed, backfilled testCounter
	}{}

	f, err := NewArgumentFragment(t.TempDir(), WithFragmentMetrics(&FragmentMetrics{
		ValuesIndexed: &metrics.indexed,
		IndexErrors:   &metrics.failed,
		Backfilled:    &metrics.backfilled,
	}))
	require.NoError(t, err)

	require.NoError(t, f.Index(&Event{ID: 0, Record: value.Record{value.String("a"), value.Int(1)}}))

	err = f.Index(&Event{ID: 4, Record: value.Record{value.Int(2), nil, value.String("c")}})

	var ie *IndexError
	require.ErrorAs(t, err, &ie)
	require.Len(t, ie.Fields, 2)
	require.Equal(t, "0", ie.Fields[0].Column)
	require.Equal(t, "1", ie.Fields[1].Column)
	require.True(t, errors.Is(err, ErrUnsupportedValueType))

	idx, ok := f.Column(Offset{2})
	require.True(t, ok)
	require.Equal(t, uint64(5), idx.Size())
	require.Equal(t, "00001", idx.Mask().String())

	// the failed fields left their columns untouched.
	idx, ok = f.Column(Offset{0})
	require.True(t, ok)
	require.Equal(t, uint64(1), idx.Size())

	require.Equal(t, float64(3), metrics.indexed.n)
	require.Equal(t, float64(2), metrics.failed.n)
	require.Equal(t, float64(4), metrics.backfilled.n)
}

func TestArgumentFragmentRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "args", "conn")

	f, err := NewArgumentFragment(dir)
	require.NoError(t, err)

	ts := value.NewTime(time.Unix(1258531221, 0))
	addr := value.NewAddress(netip.MustParseAddr("192.168.1.103"))

	for id := uint64(0); id < 50; id += 3 {
		record := value.Record{
			ts,
			value.Record{addr, value.Port{Number: uint16(id), Proto: value.ProtoTCP}},
			value.Double(float64(id) / 2),
		}
		require.NoError(t, f.Index(&Event{ID: id, Record: record}))
	}

	require.NoError(t, f.Store())

	// a leftover from an interrupted store is ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "@9.idx"+column.TempSuffix), []byte("junk"), 0644))

	loaded, err := NewArgumentFragment(dir)
	require.NoError(t, err)

	requireSameColumns(t, f.Columns(), loaded.Columns())

	// indexing continues where the stored fragment left off.
	require.NoError(t, loaded.Index(&Event{ID: 60, Record: value.Record{ts}}))

	idx, ok := loaded.Column(Offset{0})
	require.True(t, ok)
	require.Equal(t, uint64(61), idx.Size())
}

func TestTypeFragmentRoundTrip(t *testing.T) {
	dir := t.TempDir()

	f, err := NewTypeFragment(dir)
	require.NoError(t, err)

	for id := uint64(0); id < 20; id++ {
		record := value.Record{
			value.Uint(id % 3),
			value.Duration(time.Duration(id) * time.Millisecond),
			value.String("s"),
		}
		require.NoError(t, f.Index(&Event{ID: id * 2, Record: record}))
	}

	require.NoError(t, f.Close())

	loaded, err := NewTypeFragment(dir)
	require.NoError(t, err)

	requireSameColumns(t, f.columns(), loaded.Columns())
}

func TestFragmentTerminated(t *testing.T) {
	dir := t.TempDir()

	meta, err := NewMetaFragment(filepath.Join(dir, "meta"))
	require.NoError(t, err)
	types, err := NewTypeFragment(filepath.Join(dir, "type"))
	require.NoError(t, err)
	args, err := NewArgumentFragment(filepath.Join(dir, "args"))
	require.NoError(t, err)

	for _, f := range []Fragment{meta, types, args} {
		require.NoError(t, f.Index(&Event{ID: 0, Name: "x", Record: value.Record{value.Int(1)}}))
		require.NoError(t, f.Close())

		require.ErrorIs(t, f.Index(&Event{ID: 1}), ErrTerminated)
		require.ErrorIs(t, f.Store(), ErrTerminated)
		require.ErrorIs(t, f.Close(), ErrTerminated)
	}

	_, err = os.Stat(filepath.Join(dir, "meta", "name.idx"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "type", "int.idx"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "args", "@0.idx"))
	require.NoError(t, err)
}

func TestArgumentFragmentLoadErrors(t *testing.T) {
	testData := []struct {
		name  string
		setup func(t *testing.T, dir string)
	}{
		{
			name: "bad filename",
			setup: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "@x,1.idx"), nil, 0644))
			},
		},
		{
			name: "non-canonical offset",
			setup: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "@01.idx"), nil, 0644))
			},
		},
		{
			name: "directory",
			setup: func(t *testing.T, dir string) {
				require.NoError(t, os.Mkdir(filepath.Join(dir, "@0.idx"), 0755))
			},
		},
		{
			name: "corrupt index",
			setup: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "@0.idx"), []byte("garbage"), 0644))
			},
		},
	}

	for _, tt := range testData {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(t, dir)

			_, err := NewArgumentFragment(dir)
			require.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestTypeFragmentLoadWrongType(t *testing.T) {
	dir := t.TempDir()

	idx, err := column.New(value.TypeString)
	require.NoError(t, err)
	require.NoError(t, column.WriteFile(filepath.Join(dir, "int.idx"), idx))

	_, err = NewTypeFragment(dir)
	require.ErrorIs(t, err, ErrFormat)
}

func TestFragmentDirIsFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(filename, nil, 0644))

	_, err := NewMetaFragment(filename)
	require.Error(t, err)
}

func TestLookup(t *testing.T) {
	f, err := NewTypeFragment(t.TempDir())
	require.NoError(t, err)

	bm, ok := f.Lookup(&ExprEqual{Column: "int", Value: value.Int(1)})
	require.False(t, ok)
	require.Nil(t, bm)
}

func TestExpressionString(t *testing.T) {
	testData := []struct {
		expr     Expression
		expected string
	}{
		{
			expr:     &ExprEqual{Column: "name", Value: value.String("conn")},
			expected: `name = "conn"`,
		},
		{
			expr:     &ExprNot{Expr: &ExprEqual{Column: "int", Value: value.Int(3)}},
			expected: `^ int = 3`,
		},
		{
			expr: &ExprAnd{Exprs: []Expression{
				&ExprEqual{Column: "a", Value: value.Int(1)},
				&ExprOr{Exprs: []Expression{
					&ExprEqual{Column: "b", Value: value.Int(2)},
					&ExprEqual{Column: "c", Value: value.Bool(true)},
				}},
			}},
			expected: `a = 1 & ( b = 2 | c = T )`,
		},
		{
			expr: &ExprNot{Expr: &ExprOr{Exprs: []Expression{
				&ExprEqual{Column: "a", Value: value.Int(1)},
				&ExprEqual{Column: "b", Value: value.Int(2)},
			}}},
			expected: `^ ( a = 1 | b = 2 )`,
		},
		{
			expr: &ExprOr{Exprs: []Expression{
				&ExprAnd{Exprs: []Expression{
					&ExprEqual{Column: "a", Value: value.Int(1)},
					&ExprEqual{Column: "b", Value: value.Int(2)},
				}},
				&ExprEqual{Column: "c", Value: value.Int(3)},
			}},
			expected: `a = 1 & b = 2 | c = 3`,
		},
	}

	for _, tt := range testData {
		t.Run(tt.expected, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.expr.String())
		})
	}
}

func requireSameColumns(t *testing.T, expected, actual []ColumnInfo) {
	t.Helper()

	require.Len(t, actual, len(expected))

	for i := range expected {
		e, a := expected[i], actual[i]
		require.Equal(t, e.Name, a.Name)
		require.Equal(t, e.Type, a.Type)
		require.Equal(t, e.Index.Size(), a.Index.Size(), e.Name)
		require.True(t, e.Index.Mask().Equal(a.Index.Mask()), e.Name)

		for id := uint64(0); id < e.Index.Size(); id++ {
			ev, _ := e.Index.ValueAt(id)
			av, _ := a.Index.ValueAt(id)
			require.True(t, value.Equal(ev, av), "%s at %d: %v != %v", e.Name, id, ev, av)
		}
	}
}
