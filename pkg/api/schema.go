package api

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"

	qerrors "github.com/ha1tch/qconsole/pkg/errors"
)

// Request schemas. Only fields a handler reads are described; unknown
// fields are allowed.
var schemaSources = map[Operation]string{
	OpQueryExecute: `{
		"type": "object",
		"required": ["query"],
		"properties": {
			"query":             {"type": "string"},
			"rowBegin":          {"type": "integer", "minimum": 1},
			"rowEnd":            {"type": "integer", "minimum": 1},
			"paginationEnabled": {"type": "boolean"},
			"viewsEnabled":      {"type": "boolean"},
			"returnTotals":      {"type": "boolean"}
		}
	}`,
	OpDocumentSubmit: `{
		"type": "object",
		"required": ["query", "template"],
		"properties": {
			"query":    {"type": "string"},
			"template": {"type": "string"},
			"docType":  {"type": "string"},
			"rowBegin": {"type": "integer", "minimum": 1},
			"rowEnd":   {"type": "integer", "minimum": 1}
		}
	}`,
	OpSQLFileExists: `{
		"type": "object",
		"required": ["filename"],
		"properties": {"filename": {"type": "string", "minLength": 1}}
	}`,
	OpSQLFileLoad: `{
		"type": "object",
		"required": ["fileID"],
		"properties": {"fileID": {"type": ["string", "integer"]}}
	}`,
	OpSQLFileSave: `{
		"type": "object",
		"required": ["filename", "contents"],
		"properties": {
			"filename":    {"type": "string", "minLength": 1},
			"contents":    {"type": "string"},
			"description": {"type": "string"}
		}
	}`,
	OpWorkbookLoad: `{
		"type": "object",
		"required": ["scriptID"],
		"properties": {"scriptID": {"type": "string", "minLength": 1}}
	}`,
	OpRemoteLibraryFileLoad: `{
		"type": "object",
		"required": ["filename"],
		"properties": {"filename": {"type": "string", "minLength": 1}}
	}`,
}

// Validator checks request bodies against the per-operation schemas.
type Validator struct {
	schemas map[Operation]*gojsonschema.Schema
}

// NewValidator compiles the request schemas.
func NewValidator() (*Validator, error) {
	v := &Validator{schemas: make(map[Operation]*gojsonschema.Schema, len(schemaSources))}
	for op, src := range schemaSources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, qerrors.Wrapf(err, qerrors.ErrCodeInternal, "invalid %s request schema", op).Err()
		}
		v.schemas[op] = schema
	}
	return v, nil
}

// Validate checks body for op. Operations without a schema accept any
// object.
func (v *Validator) Validate(op Operation, body []byte) error {
	schema, ok := v.schemas[op]
	if !ok {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return qerrors.Wrap(err, qerrors.ErrCodeRequestMalformed, "request validation failed").
			WithOp("Validator.Validate").
			Err()
	}
	if result.Valid() {
		return nil
	}

	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return qerrors.Newf(qerrors.ErrCodeRequestInvalid, "invalid %s request: %s", op, strings.Join(errs, "; ")).
		WithOp("Validator.Validate").
		WithField("violations", errs).
		Err()
}
