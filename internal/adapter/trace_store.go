package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	m "covtrace.dev/pkg/covtrace/internal/model"
	"covtrace.dev/pkg/covtrace/pkg"
)

// ErrUnknownTraceFormat is returned for trace files whose format cannot be
// recognised.
var ErrUnknownTraceFormat = errors.New("unknown trace format")

// TraceFormat names an on-disk execution trace encoding.
type TraceFormat string

const (
	// TraceFormatAuto detects the format from the file contents.
	TraceFormatAuto TraceFormat = "auto"
	// TraceFormatText is one address per line, hex with 0x prefix or decimal.
	TraceFormatText TraceFormat = "text"
	// TraceFormatSancov is the sanitizer coverage .sancov layout.
	TraceFormatSancov TraceFormat = "sancov"
	// TraceFormatSpill is the trace file written by covtrace itself.
	TraceFormatSpill TraceFormat = "spill"
)

const (
	sancovMagic64 uint64 = 0xC0BFFFFFFFFFFF64
	sancovMagic32 uint64 = 0xC0BFFFFFFFFFFF32

	sniffSize = 512
)

// ParseTraceFormat validates a format name from flags or config.
func ParseTraceFormat(name string) (TraceFormat, error) {
	switch format := TraceFormat(strings.ToLower(strings.TrimSpace(name))); format {
	case "":
		return TraceFormatAuto, nil
	case TraceFormatAuto, TraceFormatText, TraceFormatSancov, TraceFormatSpill:
		return format, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTraceFormat, name)
	}
}

// TraceStore reads and writes execution traces.
type TraceStore interface {
	// ReadTrace streams every address of the trace at path to fn.
	ReadTrace(ctx context.Context, path m.Path, format TraceFormat, fn func(address uint64) error) error

	// WriteTrace stores addresses as a covtrace trace file.
	WriteTrace(ctx context.Context, path m.Path, addresses []uint64) error
}

// LocalTraceStore is the file backed TraceStore.
type LocalTraceStore struct{}

// NewLocalTraceStore creates a new LocalTraceStore.
func NewLocalTraceStore() *LocalTraceStore {
	return &LocalTraceStore{}
}

// ReadTrace implements TraceStore.
func (s *LocalTraceStore) ReadTrace(ctx context.Context, path m.Path, format TraceFormat, fn func(address uint64) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if format == TraceFormatAuto || format == "" {
		detected, err := detectTraceFormat(path)
		if err != nil {
			return err
		}

		format = detected
	}

	switch format {
	case TraceFormatText:
		return readTextTrace(ctx, path, fn)
	case TraceFormatSancov:
		return readSancovTrace(ctx, path, fn)
	case TraceFormatSpill:
		return readSpillTrace(ctx, path, fn)
	case TraceFormatAuto:
	}

	return fmt.Errorf("%w: %q", ErrUnknownTraceFormat, format)
}

// WriteTrace implements TraceStore.
func (s *LocalTraceStore) WriteTrace(ctx context.Context, path m.Path, addresses []uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	spill, err := pkg.CreateFileSpill[uint64](string(path))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutputWrite, err)
	}

	if err := spill.AppendBatch(addresses); err != nil {
		_ = spill.Close()
		return fmt.Errorf("%w: %w", ErrOutputWrite, err)
	}

	if err := spill.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrOutputWrite, err)
	}

	return nil
}

func detectTraceFormat(path m.Path) (TraceFormat, error) {
	// #nosec G304 - path is an operator supplied trace
	file, err := os.Open(string(path))
	if err != nil {
		return "", fmt.Errorf("open trace %s: %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	head := make([]byte, sniffSize)

	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read trace %s: %w", path, err)
	}

	head = head[:n]

	if n >= 8 {
		magic := binary.LittleEndian.Uint64(head)
		if magic == sancovMagic64 || magic == sancovMagic32 {
			return TraceFormatSancov, nil
		}
	}

	if looksLikeText(head) {
		return TraceFormatText, nil
	}

	return TraceFormatSpill, nil
}

func looksLikeText(head []byte) bool {
	for _, b := range head {
		switch {
		case b == '\n' || b == '\r' || b == '\t':
		case b < 0x20 || b >= 0x7f:
			return false
		}
	}

	return true
}

func readTextTrace(ctx context.Context, path m.Path, fn func(address uint64) error) error {
	// #nosec G304 - path is an operator supplied trace
	file, err := os.Open(string(path))
	if err != nil {
		return fmt.Errorf("open trace %s: %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	scanner := bufio.NewScanner(file)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		if lineNo%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		field := strings.TrimSpace(scanner.Text())
		if idx := strings.IndexByte(field, '#'); idx >= 0 {
			field = strings.TrimSpace(field[:idx])
		}

		if field == "" {
			continue
		}

		address, err := parseTraceAddress(field)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}

		if err := fn(address); err != nil {
			return err
		}
	}

	return scanner.Err()
}

func parseTraceAddress(field string) (uint64, error) {
	lower := strings.ToLower(field)
	if strings.HasPrefix(lower, "0x") {
		return strconv.ParseUint(lower[2:], 16, 64)
	}

	return strconv.ParseUint(lower, 10, 64)
}

func readSancovTrace(ctx context.Context, path m.Path, fn func(address uint64) error) error {
	// #nosec G304 - path is an operator supplied trace
	data, err := os.ReadFile(string(path))
	if err != nil {
		return fmt.Errorf("read trace %s: %w", path, err)
	}

	if len(data) < 8 {
		return fmt.Errorf("%w: %s is too short for sancov", ErrUnknownTraceFormat, path)
	}

	width := 0

	switch binary.LittleEndian.Uint64(data) {
	case sancovMagic64:
		width = 8
	case sancovMagic32:
		width = 4
	default:
		return fmt.Errorf("%w: %s has no sancov magic", ErrUnknownTraceFormat, path)
	}

	reader := bytes.NewReader(data[8:])
	count := 0

	for {
		var address uint64

		if width == 8 {
			err = binary.Read(reader, binary.LittleEndian, &address)
		} else {
			var pc uint32
			err = binary.Read(reader, binary.LittleEndian, &pc)
			address = uint64(pc)
		}

		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("read sancov pc %d of %s: %w", count, path, err)
		}

		count++
		if count%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if err := fn(address); err != nil {
			return err
		}
	}
}

func readSpillTrace(ctx context.Context, path m.Path, fn func(address uint64) error) error {
	spill, err := pkg.OpenFileSpill[uint64](string(path))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnknownTraceFormat, err)
	}

	defer func() {
		_ = spill.Close()
	}()

	return spill.Range(func(index uint64, address uint64) error {
		if index%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		return fn(address)
	})
}
