package adapter

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	m "covtrace.dev/pkg/covtrace/internal/model"
)

// ErrOutputWrite wraps every failure to write report or trace output.
var ErrOutputWrite = errors.New("failed to write output")

const (
	indexFileName   = "index.html"
	summaryFileName = "summary.yaml"
	asmPrefix       = "asm_"

	lineClassCovered    = "covered-line"
	lineClassNotCovered = "not-covered-line"
	lineClassNotStmt    = "not-stmt"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var reportTemplates = template.Must(template.New("report").ParseFS(templateFS, "templates/*.tmpl"))

// ReportOptions selects the optional report outputs.
type ReportOptions struct {
	Disassembly bool
	Summary     bool
	Workers     int
}

// ReportStore persists a finished coverage model.
type ReportStore interface {
	// SaveReport writes index.html, one page per source file and the
	// optional disassembly pages and summary.yaml into dir.
	SaveReport(ctx context.Context, dir m.Path, cov *m.CoverageModel, summary m.Summary, opts ReportOptions) error

	// LoadSummary reads summary.yaml back from a report directory.
	LoadSummary(ctx context.Context, dir m.Path) (m.Summary, error)
}

// HTMLReportStore renders reports with html/template.
type HTMLReportStore struct {
	fs SourceFSAdapter
}

// NewHTMLReportStore creates an HTMLReportStore writing through fs.
func NewHTMLReportStore(fs SourceFSAdapter) *HTMLReportStore {
	return &HTMLReportStore{fs: fs}
}

// ReportFileName maps a source path to its report page name:
// "/src/a/b.c" becomes "src.a.b.c.html".
func ReportFileName(path m.Path) string {
	name := strings.TrimPrefix(string(path), "/")
	name = strings.ReplaceAll(name, "/", ".")

	return name + ".html"
}

// AsmReportFileName maps a source path to its disassembly page name.
func AsmReportFileName(path m.Path) string {
	return asmPrefix + ReportFileName(path)
}

type sourceLineView struct {
	Number uint32
	Text   string
	Class  string
}

type sourcePageView struct {
	Path      m.Path
	AsmReport string
	Lines     []sourceLineView
}

type asmRowView struct {
	Address     string
	Disassembly string
	Class       string
	Line        uint32
	Code        string
}

type asmFunctionView struct {
	Name string
	Rows []asmRowView
}

type asmPageView struct {
	Path         m.Path
	SourceReport string
	Functions    []asmFunctionView
}

type page struct {
	name     string
	template string
	data     any
}

// SaveReport implements ReportStore.
func (s *HTMLReportStore) SaveReport(ctx context.Context, dir m.Path, cov *m.CoverageModel, summary m.Summary, opts ReportOptions) error {
	if err := s.fs.MkdirAll(ctx, dir); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrOutputWrite, dir, err)
	}

	for i := range summary.Files {
		summary.Files[i].Report = ReportFileName(summary.Files[i].Path)
	}

	pages := []page{{name: indexFileName, template: "index.html.tmpl", data: summary}}

	for _, path := range cov.FilePaths() {
		file := cov.Files[path]
		pages = append(pages, page{
			name:     ReportFileName(path),
			template: "source.html.tmpl",
			data:     sourcePage(file, opts.Disassembly),
		})

		if opts.Disassembly {
			pages = append(pages, page{
				name:     AsmReportFileName(path),
				template: "asm.html.tmpl",
				data:     asmPage(cov, file),
			})
		}
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for _, p := range pages {
		group.Go(func() error {
			return s.writePage(groupCtx, dir, p)
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	if opts.Summary {
		if err := s.writeSummary(ctx, dir, summary); err != nil {
			return err
		}
	}

	slog.Info("Report written", "dir", dir, "pages", len(pages), "summary", opts.Summary)

	return nil
}

func (s *HTMLReportStore) writePage(ctx context.Context, dir m.Path, p page) error {
	var buf bytes.Buffer

	if err := reportTemplates.ExecuteTemplate(&buf, p.template, p.data); err != nil {
		return fmt.Errorf("render %s: %w", p.name, err)
	}

	target := s.fs.JoinPath(string(dir), p.name)
	if err := s.fs.WriteFile(ctx, target, buf.Bytes(), 0o644); err != nil {
		slog.Error("Failed to write report page", "path", target, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrOutputWrite, target, err)
	}

	return nil
}

func (s *HTMLReportStore) writeSummary(ctx context.Context, dir m.Path, summary m.Summary) error {
	data, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	target := s.fs.JoinPath(string(dir), summaryFileName)
	if err := s.fs.WriteFile(ctx, target, data, 0o644); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOutputWrite, target, err)
	}

	return nil
}

// LoadSummary implements ReportStore.
func (s *HTMLReportStore) LoadSummary(ctx context.Context, dir m.Path) (m.Summary, error) {
	var summary m.Summary

	data, err := s.fs.ReadFile(ctx, s.fs.JoinPath(string(dir), summaryFileName))
	if err != nil {
		return summary, fmt.Errorf("read summary: %w", err)
	}

	if err := yaml.Unmarshal(data, &summary); err != nil {
		return summary, fmt.Errorf("parse summary: %w", err)
	}

	return summary, nil
}

func lineClass(line m.LineRecord) string {
	switch {
	case !line.Executable:
		return lineClassNotStmt
	case line.Covered:
		return lineClassCovered
	default:
		return lineClassNotCovered
	}
}

func sourcePage(file *m.FileCoverage, withAsm bool) sourcePageView {
	view := sourcePageView{Path: file.Path, Lines: make([]sourceLineView, len(file.Lines))}
	if withAsm {
		view.AsmReport = AsmReportFileName(file.Path)
	}

	for i, line := range file.Lines {
		view.Lines[i] = sourceLineView{Number: line.LineNumber, Text: line.Text, Class: lineClass(line)}
	}

	return view
}

func asmPage(cov *m.CoverageModel, file *m.FileCoverage) asmPageView {
	view := asmPageView{Path: file.Path, SourceReport: ReportFileName(file.Path)}

	for _, name := range file.FunctionNames() {
		fn := file.Functions[name]
		rows := make([]asmRowView, 0, len(fn.Instructions))

		var prev m.LineRef

		for _, ins := range fn.Instructions {
			row := asmRowView{
				Address:     fmt.Sprintf("0x%x", ins.Address),
				Disassembly: ins.Disassembly,
				Class:       lineClassNotCovered,
			}

			if fn.InstructionCovered[ins.Address] {
				row.Class = lineClassCovered
			}

			if ins.Line != prev {
				prev = ins.Line
				row.Line = ins.Line.Line
				row.Code = lineText(cov, ins.Line)
			}

			rows = append(rows, row)
		}

		view.Functions = append(view.Functions, asmFunctionView{Name: name, Rows: rows})
	}

	return view
}

func lineText(cov *m.CoverageModel, ref m.LineRef) string {
	file, ok := cov.Files[ref.File]
	if !ok || !file.HasLine(ref.Line) {
		return ""
	}

	return file.Lines[ref.Line-1].Text
}
