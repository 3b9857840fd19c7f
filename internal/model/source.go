package model

import "strings"

// Path represents a file system path.
type Path string

// String returns the path as a plain string.
func (p Path) String() string {
	return string(p)
}

// IsEmpty reports whether the path carries no location at all. Hosts return
// an empty path for addresses without line-table information.
func (p Path) IsEmpty() bool {
	return strings.TrimSpace(string(p)) == ""
}

// LineRef identifies one line of one source file.
type LineRef struct {
	File Path
	Line uint32
}

// SourceLocation is what a host resolves a machine address to.
type SourceLocation struct {
	File   Path
	Line   uint32
	Column uint32
}

// Valid reports whether the location names a file and a 1-based line.
func (l SourceLocation) Valid() bool {
	return !l.File.IsEmpty() && l.Line > 0
}

// Ref drops the column.
func (l SourceLocation) Ref() LineRef {
	return LineRef{File: l.File, Line: l.Line}
}
