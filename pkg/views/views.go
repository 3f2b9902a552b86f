// Package views expands "#name" view macros into derived subqueries.
//
// A macro is a '#' at the start of the text or after whitespace (Unicode
// spaces included), followed by word characters. "#accounts" is replaced by
// "( <body of accounts.sql> ) AS accounts". Resolution is a pure function of
// the text and a Lookup; it never touches the query backend.
package views

import (
	"context"
	"regexp"
	"strings"

	qerrors "github.com/ha1tch/qconsole/pkg/errors"
	"github.com/ha1tch/qconsole/pkg/library"
)

// Unicode separators and BOM count as whitespace before '#', so a macro
// after a non-breaking space still expands.
var macroPattern = regexp.MustCompile(`(?i)(?:^|[\s\p{Z}\x{FEFF}])#(\w+)\b`)

// Token is one macro reference in a query.
type Token struct {
	Start int    // byte offset of '#'
	End   int    // byte offset just past the name
	Text  string // "#name"
	Name  string // "name"
}

// Filename returns the library file backing the macro.
func (t Token) Filename() string {
	return t.Name + library.Extension
}

// Lookup finds and loads macro bodies. library.Store satisfies it.
type Lookup interface {
	Find(ctx context.Context, name string) ([]library.FileInfo, error)
	Load(ctx context.Context, id string) (*library.File, error)
}

// Tokenize returns the macro references in text, first to last.
func Tokenize(text string) []Token {
	matches := macroPattern.FindAllStringSubmatchIndex(text, -1)
	tokens := make([]Token, 0, len(matches))
	for _, m := range matches {
		nameStart, nameEnd := m[2], m[3]
		tokens = append(tokens, Token{
			Start: nameStart - 1,
			End:   nameEnd,
			Text:  text[nameStart-1 : nameEnd],
			Name:  text[nameStart:nameEnd],
		})
	}
	return tokens
}

// Resolve replaces every macro reference in text. Each distinct token text
// is looked up once. A macro that matches no file, or more than one, fails
// the whole resolution with ErrCodeUnresolvedView.
func Resolve(ctx context.Context, text string, lookup Lookup) (string, error) {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return text, nil
	}

	bodies := make(map[string]string, len(tokens))
	for _, tok := range tokens {
		if _, done := bodies[tok.Text]; done {
			continue
		}
		body, err := load(ctx, lookup, tok)
		if err != nil {
			return "", err
		}
		bodies[tok.Text] = "( " + body + " ) AS " + tok.Name
	}

	var b strings.Builder
	last := 0
	for _, tok := range tokens {
		b.WriteString(text[last:tok.Start])
		b.WriteString(bodies[tok.Text])
		last = tok.End
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

func load(ctx context.Context, lookup Lookup, tok Token) (string, error) {
	filename := tok.Filename()

	matches, err := lookup.Find(ctx, filename)
	if err != nil {
		return "", qerrors.Wrap(err, qerrors.ErrCodeViewLookup, "view lookup failed").
			WithOp("views.Resolve").
			WithField("filename", filename).
			Err()
	}
	if len(matches) != 1 {
		return "", qerrors.New(qerrors.ErrCodeUnresolvedView, "Unresolved View "+filename).
			WithOp("views.Resolve").
			WithField("filename", filename).
			WithField("matches", len(matches)).
			Err()
	}

	file, err := lookup.Load(ctx, matches[0].ID)
	if err != nil {
		return "", qerrors.Wrap(err, qerrors.ErrCodeViewLookup, "view load failed").
			WithOp("views.Resolve").
			WithField("filename", filename).
			Err()
	}
	return file.Contents, nil
}
