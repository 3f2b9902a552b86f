package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ha1tch/qconsole/pkg/api"
	qerrors "github.com/ha1tch/qconsole/pkg/errors"
	"github.com/ha1tch/qconsole/pkg/version"
)

const jsonContentType = "application/json; charset=utf-8"

// handlePost runs one operation. Every outcome, failures included, is a 200
// with the dispatcher's body; an unknown operation yields an empty body.
func (s *Server) handlePost(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithError(c, http.StatusRequestEntityTooLarge,
				qerrors.Newf(qerrors.ErrCodeRequestMalformed, "request body exceeds %d bytes", tooLarge.Limit).Err())
			return
		}
		abortWithError(c, http.StatusBadRequest,
			qerrors.Wrap(err, qerrors.ErrCodeRequestMalformed, "failed to read request body").Err())
		return
	}

	resp := s.dispatcher.Dispatch(c.Request.Context(), c.GetString(sessionKey), body)
	if resp == nil {
		c.Status(http.StatusOK)
		return
	}
	c.Data(http.StatusOK, jsonContentType, resp)
}

// handleGet renders the session's document for ?function=documentGenerate
// and describes the server otherwise.
func (s *Server) handleGet(c *gin.Context) {
	name, present := c.GetQuery(api.FunctionField)
	if !present {
		c.JSON(http.StatusOK, gin.H{
			"name":       "qconsole",
			"version":    version.String(),
			"operations": api.Operations(),
		})
		return
	}

	op, ok := api.ParseOperation(name)
	if !ok || op != api.OpDocumentGenerate {
		abortWithError(c, http.StatusBadRequest,
			qerrors.Newf(qerrors.ErrCodeUnsupportedOp, "unsupported operation: %s", name).Err())
		return
	}

	doc, err := s.dispatcher.GenerateDocument(c.Request.Context(), c.GetString(sessionKey))
	if err != nil {
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte("Error: "+err.Error()))
		return
	}
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}
