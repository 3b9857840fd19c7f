package domain

import (
	m "covtrace.dev/pkg/covtrace/internal/model"
)

// Recorder marks executed addresses in a coverage model. Record is called
// once per executed instruction and never fails: unknown addresses and
// inconsistent model entries are ignored.
type Recorder interface {
	Record(address uint64)
}

type recorder struct {
	cov *m.CoverageModel
}

// NewRecorder creates a Recorder updating cov.
func NewRecorder(cov *m.CoverageModel) Recorder {
	return &recorder{cov: cov}
}

func (r *recorder) Record(address uint64) {
	defer func() {
		// the traced program must keep running whatever happens here
		_ = recover()
	}()

	name, ok := r.cov.AddressToFunction[address]
	if !ok {
		return
	}

	file, fn, ok := r.cov.Function(name)
	if !ok {
		return
	}

	line, firstHit, ok := fn.Cover(address)
	if !ok || !firstHit {
		return
	}

	if line.File != file.Path {
		if file, ok = r.cov.Files[line.File]; !ok {
			return
		}
	}

	file.MarkCovered(line.Line)
}
