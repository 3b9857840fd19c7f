package adapter

import (
	"debug/dwarf"
	"errors"
	"fmt"
	"io"
	"sort"

	m "covtrace.dev/pkg/covtrace/internal/model"
)

type lineRow struct {
	address     uint64
	file        string
	line        uint32
	column      uint32
	endSequence bool
}

// lineTable answers address to source queries for one image. Addresses
// passed in are runtime addresses, bias is subtracted before the lookup.
type lineTable struct {
	rows []lineRow
	bias uint64
}

func readLineTable(data *dwarf.Data) (*lineTable, error) {
	var rows []lineRow

	reader := data.Reader()

	for {
		entry, err := reader.Next()
		if err != nil {
			return nil, fmt.Errorf("read compile units: %w", err)
		}

		if entry == nil {
			break
		}

		if entry.Tag != dwarf.TagCompileUnit {
			reader.SkipChildren()
			continue
		}

		lr, err := data.LineReader(entry)
		if err != nil {
			return nil, fmt.Errorf("line reader: %w", err)
		}

		if lr != nil {
			rows, err = appendLineRows(rows, lr)
			if err != nil {
				return nil, err
			}
		}

		reader.SkipChildren()
	}

	return newLineTable(rows), nil
}

func appendLineRows(rows []lineRow, lr *dwarf.LineReader) ([]lineRow, error) {
	var entry dwarf.LineEntry

	for {
		err := lr.Next(&entry)
		if errors.Is(err, io.EOF) {
			return rows, nil
		}

		if err != nil {
			return nil, fmt.Errorf("line entry: %w", err)
		}

		row := lineRow{
			address:     entry.Address,
			line:        uint32(max(entry.Line, 0)),
			column:      uint32(max(entry.Column, 0)),
			endSequence: entry.EndSequence,
		}
		if entry.File != nil {
			row.file = entry.File.Name
		}

		rows = append(rows, row)
	}
}

func newLineTable(rows []lineRow) *lineTable {
	// an end marker sorts before a sequence starting at the same address
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].address != rows[j].address {
			return rows[i].address < rows[j].address
		}

		return rows[i].endSequence && !rows[j].endSequence
	})

	return &lineTable{rows: rows}
}

// withBias returns a view of the table for an image loaded at bias.
func (t *lineTable) withBias(bias uint64) *lineTable {
	return &lineTable{rows: t.rows, bias: bias}
}

func (t *lineTable) empty() bool {
	return len(t.rows) == 0
}

// ResolveSourceLocation implements model.SourceResolver.
func (t *lineTable) ResolveSourceLocation(address uint64) m.SourceLocation {
	if address < t.bias {
		return m.SourceLocation{}
	}

	pc := address - t.bias

	idx := sort.Search(len(t.rows), func(i int) bool {
		return t.rows[i].address > pc
	}) - 1
	if idx < 0 {
		return m.SourceLocation{}
	}

	row := t.rows[idx]
	if row.endSequence || row.line == 0 {
		return m.SourceLocation{}
	}

	return m.SourceLocation{File: m.Path(row.file), Line: row.line, Column: row.column}
}
