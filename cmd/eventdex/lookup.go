package main

import (
	"fmt"
	"strings"

	"github.com/akrennmair/eventdex"
	"github.com/akrennmair/eventdex/internal/exprparser"
	"github.com/fraugster/cli"
	"go.uber.org/zap"
)

type lookupRecord struct {
	Fragment string `table:"FRAGMENT"`
	Columns  string `table:"COLUMNS"`
	Result   string `table:"RESULT"`
}

// argument columns are referenced in expressions as "@<offset>".
const argumentColumnPrefix = "@"

func lookupCmd(cfg *config, logger *zap.Logger, exprStr string) error {
	expr, err := exprparser.Parse(exprStr)
	if err != nil {
		return fmt.Errorf("invalid expression: %w", err)
	}

	idx, err := openIndex(cfg, logger)
	if err != nil {
		return err
	}

	referenced := exprparser.Columns(expr)
	found := map[string]bool{}

	var table []lookupRecord

	for _, f := range idx.Fragments() {
		_, isArgs := f.(*eventdex.ArgumentFragment)

		known := map[string]bool{}
		for _, col := range f.Columns() {
			name := col.Name
			if isArgs {
				name = argumentColumnPrefix + name
			}
			known[name] = true
		}

		var matching []string
		for _, c := range referenced {
			if known[c] {
				matching = append(matching, c)
				found[c] = true
			}
		}
		if len(matching) == 0 {
			continue
		}

		rec := lookupRecord{
			Fragment: fragmentName(cfg, f),
			Columns:  strings.Join(matching, ", "),
			Result:   "not supported",
		}
		if bm, ok := f.Lookup(expr); ok {
			rec.Result = fmt.Sprintf("%d of %d", bm.Count(), bm.Size())
		}

		table = append(table, rec)
	}

	for _, c := range referenced {
		if !found[c] {
			logger.Warn("Column not found in any fragment", zap.String("column", c))
		}
	}

	logger.Debug("Evaluated lookup", zap.Stringer("expr", expr), zap.Int("fragments", len(table)))

	return cli.Print("table", table)
}
