// Package document renders query results through an operator supplied
// template. A document is produced in two steps: Submit stores the request
// in the caller's session and Generate later runs the query and renders it.
package document

import (
	"bytes"
	"context"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/go-pdf/fpdf"

	"github.com/ha1tch/qconsole/pkg/backend"
	qerrors "github.com/ha1tch/qconsole/pkg/errors"
	"github.com/ha1tch/qconsole/pkg/log"
	"github.com/ha1tch/qconsole/pkg/query"
)

// Content types of rendered documents.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeHTML = "text/html"
)

// DataSourceName is the name under which templates see the results.
const DataSourceName = "results"

// Document is a rendered document.
type Document struct {
	ContentType string
	Body        []byte
	Records     int
}

// Generator renders submitted documents.
type Generator struct {
	engine   *query.Engine
	sessions *SessionStore
	logger   *log.Logger
}

// NewGenerator creates a generator.
func NewGenerator(engine *query.Engine, sessions *SessionStore, logger *log.Logger) *Generator {
	if logger == nil {
		logger = log.Default()
	}
	return &Generator{engine: engine, sessions: sessions, logger: logger}
}

// Submit stores sub as the session's pending document.
func (g *Generator) Submit(ctx context.Context, sessionID string, sub Submission) error {
	if sessionID == "" {
		return qerrors.New(qerrors.ErrCodeDocumentNoSession, "no session").
			WithOp("Generator.Submit").
			Err()
	}
	g.sessions.Put(sessionID, sub)
	g.logger.Document().Ctx(ctx).Info("document submitted",
		"doc_type", sub.DocType,
		"row_begin", sub.RowBegin,
		"row_end", sub.RowEnd,
	)
	return nil
}

// Generate renders the session's pending document. The query is always
// paginated. Nothing is returned unless rendering completes.
func (g *Generator) Generate(ctx context.Context, sessionID string) (*Document, error) {
	sub, ok := g.sessions.Get(sessionID)
	if !ok {
		return nil, qerrors.New(qerrors.ErrCodeDocumentNoSession, "no document has been submitted in this session").
			WithOp("Generator.Generate").
			Err()
	}

	begin, end, err := g.engine.Bounds(sub.RowBegin, sub.RowEnd, true)
	if err != nil {
		return nil, err
	}
	sqlText, err := g.engine.Prepare(ctx, sub.Query, false)
	if err != nil {
		return nil, err
	}
	records, _, err := g.engine.Paginate(ctx, sqlText, begin, end, true)
	if err != nil {
		return nil, err
	}

	data := map[string]interface{}{DataSourceName: NewDataSource(records)}

	doc := &Document{Records: len(records)}
	if strings.EqualFold(sub.DocType, "pdf") {
		doc.ContentType = ContentTypePDF
		doc.Body, err = RenderPDF(sub.Template, data)
	} else {
		doc.ContentType = ContentTypeHTML
		doc.Body, err = RenderHTML(sub.Template, data)
	}
	if err != nil {
		g.logger.Document().Ctx(ctx).Error("document render failed", err, "doc_type", sub.DocType)
		return nil, err
	}

	g.logger.Document().Ctx(ctx).Info("document generated",
		"content_type", doc.ContentType,
		"records", doc.Records,
		"bytes", len(doc.Body),
	)
	return doc, nil
}

// NewDataSource converts records for template access: .results.records is
// the list of rows as maps and .results.columns the column names of the
// first row.
func NewDataSource(records []backend.Record) map[string]interface{} {
	rows := make([]map[string]interface{}, len(records))
	for i, rec := range records {
		rows[i] = rec.Map()
	}
	var columns []string
	if len(records) > 0 {
		columns = records[0].Columns()
	}
	return map[string]interface{}{
		"records": rows,
		"columns": columns,
	}
}

// RenderHTML executes an html/template.
func RenderHTML(tmpl string, data interface{}) ([]byte, error) {
	t, err := htmltemplate.New("document").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeDocumentTemplate, "invalid template").
			WithOp("document.RenderHTML").
			Err()
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeDocumentRender, "template execution failed").
			WithOp("document.RenderHTML").
			Err()
	}
	return buf.Bytes(), nil
}

// RenderPDF executes a text/template and typesets its output. A line
// starting with "# " is a heading; a line holding only "---" starts a new
// page.
func RenderPDF(tmpl string, data interface{}) ([]byte, error) {
	t, err := texttemplate.New("document").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeDocumentTemplate, "invalid template").
			WithOp("document.RenderPDF").
			Err()
	}
	var text bytes.Buffer
	if err := t.Execute(&text, data); err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeDocumentRender, "template execution failed").
			WithOp("document.RenderPDF").
			Err()
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	for _, line := range strings.Split(strings.TrimRight(text.String(), "\n"), "\n") {
		switch {
		case strings.TrimSpace(line) == "---":
			pdf.AddPage()
		case strings.HasPrefix(line, "# "):
			pdf.SetFont("Helvetica", "B", 14)
			pdf.MultiCell(0, 8, tr(strings.TrimPrefix(line, "# ")), "", "L", false)
			pdf.Ln(2)
		default:
			pdf.SetFont("Courier", "", 9)
			pdf.MultiCell(0, 4.5, tr(line), "", "L", false)
		}
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeDocumentRender, "PDF output failed").
			WithOp("document.RenderPDF").
			Err()
	}
	return out.Bytes(), nil
}
