package document

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ha1tch/qconsole/pkg/backend"
	qerrors "github.com/ha1tch/qconsole/pkg/errors"
	"github.com/ha1tch/qconsole/pkg/log"
	"github.com/ha1tch/qconsole/pkg/query"
)

func customers(n int, sql string, params []interface{}) ([]backend.Record, error) {
	cols := []string{"id", "companyname"}
	return []backend.Record{
		backend.NewRecord(cols, []interface{}{int64(1), "Acme <Corp>"}),
		backend.NewRecord(cols, []interface{}{int64(2), "Globex"}),
	}, nil
}

func newGenerator(respond backend.Responder) (*Generator, *backend.Recorder) {
	rec := backend.NewRecorder(backend.SuiteQLDialect, respond)
	engine := query.NewEngine(query.Config{PageCeiling: 5000, DefaultRowEnd: 50}, rec, query.WithLogger(log.Discard()))
	return NewGenerator(engine, NewSessionStore(), log.Discard()), rec
}

const htmlTemplate = `<table>{{range .results.records}}<tr><td>{{.id}}</td><td>{{.companyname}}</td></tr>{{end}}</table>`

func TestGenerate_HTML(t *testing.T) {
	g, rec := newGenerator(customers)
	ctx := context.Background()

	err := g.Submit(ctx, "s1", Submission{
		Query: "SELECT id, companyname FROM Customer", Template: htmlTemplate,
		DocType: "html", RowBegin: 1, RowEnd: 100,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	doc, err := g.Generate(ctx, "s1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if doc.ContentType != ContentTypeHTML {
		t.Errorf("unexpected content type %s", doc.ContentType)
	}
	want := "<table><tr><td>1</td><td>Acme &lt;Corp&gt;</td></tr><tr><td>2</td><td>Globex</td></tr></table>"
	if string(doc.Body) != want {
		t.Errorf("got  %s\nwant %s", doc.Body, want)
	}

	calls := rec.Calls()
	if len(calls) != 1 || !strings.Contains(calls[0].SQL, "ROWNUMBER BETWEEN 1 AND 100") {
		t.Errorf("expected one windowed call, got %+v", calls)
	}
}

func TestGenerate_AlwaysPaginates(t *testing.T) {
	g, rec := newGenerator(func(n int, sql string, params []interface{}) ([]backend.Record, error) {
		if n < 2 {
			return backend.Rows(n*5000+1, 5000), nil
		}
		return backend.Rows(10001, 3), nil
	})
	ctx := context.Background()

	g.Submit(ctx, "s1", Submission{Query: "SELECT id FROM T", Template: "{{len .results.records}}"})
	doc, err := g.Generate(ctx, "s1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if string(doc.Body) != "10003" {
		t.Errorf("expected 10003 records rendered, got %s", doc.Body)
	}
	if len(rec.Calls()) != 3 {
		t.Errorf("expected 3 windowed calls, got %d", len(rec.Calls()))
	}
	if !strings.HasSuffix(rec.Calls()[0].SQL, "BETWEEN 1 AND 50)") {
		t.Errorf("expected default bounds, got %q", rec.Calls()[0].SQL)
	}
}

func TestGenerate_PDF(t *testing.T) {
	g, _ := newGenerator(customers)
	ctx := context.Background()

	g.Submit(ctx, "s1", Submission{
		Query:    "SELECT id, companyname FROM Customer",
		Template: "# Customers\n{{range .results.records}}{{.id}} {{.companyname}}\n{{end}}",
		DocType:  "PDF",
		RowBegin: 1,
		RowEnd:   10,
	})

	doc, err := g.Generate(ctx, "s1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if doc.ContentType != ContentTypePDF {
		t.Errorf("unexpected content type %s", doc.ContentType)
	}
	if !bytes.HasPrefix(doc.Body, []byte("%PDF-")) {
		t.Errorf("expected PDF header, got %q", doc.Body[:8])
	}
}

func TestGenerate_NoSubmission(t *testing.T) {
	g, rec := newGenerator(customers)

	_, err := g.Generate(context.Background(), "unknown")
	if !qerrors.IsCode(err, qerrors.ErrCodeDocumentNoSession) {
		t.Fatalf("expected ErrCodeDocumentNoSession, got %v", err)
	}
	if len(rec.Calls()) != 0 {
		t.Error("expected no backend calls")
	}
}

func TestGenerate_SessionsAreIsolated(t *testing.T) {
	g, _ := newGenerator(customers)
	ctx := context.Background()

	g.Submit(ctx, "alice", Submission{Query: "SELECT 1", Template: "alice"})
	g.Submit(ctx, "bob", Submission{Query: "SELECT 1", Template: "bob-first"})
	g.Submit(ctx, "bob", Submission{Query: "SELECT 1", Template: "bob-second"})

	for session, want := range map[string]string{"alice": "alice", "bob": "bob-second"} {
		doc, err := g.Generate(ctx, session)
		if err != nil {
			t.Fatalf("generate %s: %v", session, err)
		}
		if string(doc.Body) != want {
			t.Errorf("session %s: got %q, want %q", session, doc.Body, want)
		}
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		template string
		respond  backend.Responder
		code     qerrors.Code
	}{
		{"bad template", "{{range}", customers, qerrors.ErrCodeDocumentTemplate},
		{"execution error", "{{index .results.records 99}}", customers, qerrors.ErrCodeDocumentRender},
		{"backend error", "x", func(int, string, []interface{}) ([]backend.Record, error) {
			return nil, errors.New("Invalid search query")
		}, qerrors.ErrCodeExecWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newGenerator(tt.respond)
			ctx := context.Background()

			g.Submit(ctx, "s1", Submission{Query: "SELECT 1", Template: tt.template})
			doc, err := g.Generate(ctx, "s1")
			if doc != nil {
				t.Error("expected no document on failure")
			}
			if !qerrors.IsCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestSubmit_RequiresSession(t *testing.T) {
	g, _ := newGenerator(customers)

	if err := g.Submit(context.Background(), "", Submission{}); !qerrors.IsCode(err, qerrors.ErrCodeDocumentNoSession) {
		t.Errorf("expected ErrCodeDocumentNoSession, got %v", err)
	}
}

func TestSessionStore(t *testing.T) {
	s := NewSessionStore()
	if _, ok := s.Get("x"); ok {
		t.Fatal("expected empty store")
	}
	s.Put("x", Submission{Query: "a"})
	s.Put("x", Submission{Query: "b"})
	if sub, _ := s.Get("x"); sub.Query != "b" || s.Len() != 1 {
		t.Errorf("expected last write to win, got %+v (len %d)", sub, s.Len())
	}
}
