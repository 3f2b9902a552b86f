package api

import (
	"bytes"
	"encoding/json"

	qerrors "github.com/ha1tch/qconsole/pkg/errors"
)

// MalformedBody is the response to a request body that is not JSON.
const MalformedBody = `{"error":{"message":"Invalid request from client. Could not parse JSON body. See execution log for details."}}`

const indent = "     "

// ErrorBody is the error member of a failed envelope.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorEnvelope builds the envelope for a failed operation.
func ErrorEnvelope(err error) []byte {
	return encode(errorEnvelope{Error: ErrorBody{
		Message: err.Error(),
		Code:    qerrors.GetCode(err).String(),
	}})
}

// encode writes v as indented JSON without HTML escaping, so that query
// text stays readable.
func encode(v interface{}) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(v); err != nil {
		buf.Reset()
		enc.SetIndent("", "")
		enc.Encode(errorEnvelope{Error: ErrorBody{
			Message: "failed to encode response: " + err.Error(),
			Code:    qerrors.ErrCodeInternal.String(),
		}})
	}
	return bytes.TrimRight(buf.Bytes(), "\n")
}
