package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/akrennmair/eventdex"
	"github.com/akrennmair/eventdex/bitmap"
	"github.com/akrennmair/eventdex/column"
	"github.com/akrennmair/eventdex/internal/exprparser"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
)

func runsCmd(cfg *config, logger *zap.Logger, args []string) error {
	idx, err := openIndex(cfg, logger)
	if err != nil {
		return err
	}

	col, err := findColumn(idx, args[0], args[1])
	if err != nil {
		return err
	}

	bm := col.Mask()
	if len(args) > 2 {
		v, err := exprparser.ParseValue(args[2])
		if err != nil {
			return err
		}
		if bm, err = col.Lookup(v); err != nil {
			return fmt.Errorf("lookup of %s failed: %w", args[2], err)
		}
	}

	header, data := runsTable(bm)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.AppendBulk(data)
	table.Render()

	fmt.Printf("%d bits, %d set\n", bm.Size(), bm.Count())

	return nil
}

func findColumn(idx *eventdex.Indexer, fragment, name string) (column.Index, error) {
	switch {
	case fragment == "meta":
		if col, ok := idx.Meta().Column(name); ok {
			return col, nil
		}
	case fragment == "type":
		if col, ok := idx.Types().Column(name); ok {
			return col, nil
		}
	case strings.HasPrefix(fragment, "args/"):
		f, ok := idx.Arguments(strings.TrimPrefix(fragment, "args/"))
		if !ok {
			return nil, fmt.Errorf("no argument fragment %s", fragment)
		}
		offset, err := eventdex.ParseOffset(name)
		if err != nil {
			return nil, err
		}
		if col, ok := f.Column(offset); ok {
			return col, nil
		}
	default:
		return nil, fmt.Errorf("unknown fragment %s, expected meta, type or args/<event name>", fragment)
	}

	return nil, fmt.Errorf("no column %s in fragment %s", name, fragment)
}

// runsTable renders one row per run. Mixed runs show their bits with the
// lowest ID first.
func runsTable(bm *bitmap.Bitmap) ([]string, [][]string) {
	header := []string{"START", "LENGTH", "BITS", "ONES"}

	var (
		data  [][]string
		start uint64
	)

	it := bm.Runs()
	for it.Next() {
		r := it.Run()

		var bits string
		if r.Homogeneous() {
			bits = "0"
			if r.Value() {
				bits = "1"
			}
		} else {
			var b strings.Builder
			for i := uint64(0); i < r.Length; i++ {
				if r.Bit(i) {
					b.WriteByte('1')
				} else {
					b.WriteByte('0')
				}
			}
			bits = b.String()
		}

		data = append(data, []string{
			strconv.FormatUint(start, 10),
			strconv.FormatUint(r.Length, 10),
			bits,
			strconv.FormatUint(r.Ones(), 10),
		})

		start += r.Length
	}

	return header, data
}
