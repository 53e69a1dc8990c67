package main

import (
	"fmt"
	"path/filepath"

	"github.com/akrennmair/eventdex"
	"github.com/akrennmair/eventdex/value"
	"github.com/fraugster/cli"
	"go.uber.org/zap"
)

type columnsConfig struct {
	full bool
}

type columnRecord struct {
	Fragment string `table:"FRAGMENT"`
	Column   string `table:"COLUMN"`
	Type     string `table:"TYPE"`
	Size     uint64 `table:"SIZE"`
	Set      uint64 `table:"SET"`
	Values   int    `table:"UNIQUE VALUES"`
}

type fullColumnRecord struct {
	Fragment string `table:"FRAGMENT"`
	Column   string `table:"COLUMN"`
	Value    string `table:"VALUE"`
	Count    uint64 `table:"COUNT"`
}

// openIndex opens an existing index for inspection. Opening creates
// missing fragment directories, so they are checked for first.
func openIndex(cfg *config, logger *zap.Logger) (*eventdex.Indexer, error) {
	for _, dir := range []string{cfg.Dir, filepath.Join(cfg.Dir, "meta"), filepath.Join(cfg.Dir, "type")} {
		if err := dirExists(dir); err != nil {
			return nil, err
		}
	}

	idx, err := eventdex.NewIndexer(cfg.Dir, eventdex.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	return idx, nil
}

// fragmentName returns the directory of f relative to the index, e.g.
// "meta" or "args/zeek::conn".
func fragmentName(cfg *config, f eventdex.Fragment) string {
	rel, err := filepath.Rel(cfg.Dir, f.Dir())
	if err != nil {
		return f.Dir()
	}
	return filepath.ToSlash(rel)
}

func columnsCmd(cfg *config, logger *zap.Logger, columnsCfg *columnsConfig) error {
	idx, err := openIndex(cfg, logger)
	if err != nil {
		return err
	}

	if columnsCfg.full {
		var fullTable []fullColumnRecord

		for _, f := range idx.Fragments() {
			for _, col := range f.Columns() {
				for _, v := range col.Index.Values() {
					bm, err := col.Index.Lookup(v)
					if err != nil {
						return fmt.Errorf("lookup of %s in column %s failed: %w", value.Format(v), col.Name, err)
					}
					fullTable = append(fullTable, fullColumnRecord{
						Fragment: fragmentName(cfg, f),
						Column:   col.Name,
						Value:    value.Format(v),
						Count:    bm.Count(),
					})
				}
			}
		}

		return cli.Print("table", fullTable)
	}

	var table []columnRecord

	for _, f := range idx.Fragments() {
		for _, col := range f.Columns() {
			table = append(table, columnRecord{
				Fragment: fragmentName(cfg, f),
				Column:   col.Name,
				Type:     col.Type.String(),
				Size:     col.Index.Size(),
				Set:      col.Index.Mask().Count(),
				Values:   len(col.Index.Values()),
			})
		}
	}

	return cli.Print("table", table)
}
