package model

// BuildStats counts what one build pass did with an image.
type BuildStats struct {
	Routines             int
	Built                int
	SkippedNoDebugInfo   int
	SkippedMissingSource int
	Instructions         int
}

// Add accumulates other into s.
func (s *BuildStats) Add(other BuildStats) {
	s.Routines += other.Routines
	s.Built += other.Built
	s.SkippedNoDebugInfo += other.SkippedNoDebugInfo
	s.SkippedMissingSource += other.SkippedMissingSource
	s.Instructions += other.Instructions
}
