package api

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ha1tch/qconsole/pkg/backend"
	"github.com/ha1tch/qconsole/pkg/document"
	qerrors "github.com/ha1tch/qconsole/pkg/errors"
	"github.com/ha1tch/qconsole/pkg/library"
	"github.com/ha1tch/qconsole/pkg/query"
	"github.com/ha1tch/qconsole/pkg/remote"
)

// Success payloads.
type (
	submittedPayload struct {
		Submitted bool `json:"submitted"`
	}

	existsPayload struct {
		Exists bool `json:"exists"`
	}

	fileLoadPayload struct {
		File library.FileInfo `json:"file"`
		SQL  string           `json:"sql"`
	}

	fileSavePayload struct {
		FileID string `json:"fileID"`
	}

	sqlPayload struct {
		SQL string `json:"sql"`
	}

	libraryFilesPayload struct {
		Records []library.FileInfo `json:"records"`
	}

	workbooksPayload struct {
		Records []backend.Record `json:"records"`
	}

	remoteFilesPayload struct {
		Records []remote.Entry `json:"records"`
	}
)

func (d *Dispatcher) queryExecute(ctx context.Context, body []byte) (interface{}, error) {
	var req query.Request
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	return d.engine.Execute(ctx, req)
}

func (d *Dispatcher) documentSubmit(ctx context.Context, sessionID string, body []byte) (interface{}, error) {
	var sub document.Submission
	if err := decode(body, &sub); err != nil {
		return nil, err
	}
	if err := d.documents.Submit(ctx, sessionID, sub); err != nil {
		return nil, err
	}
	return submittedPayload{Submitted: true}, nil
}

func (d *Dispatcher) sqlFileExists(ctx context.Context, body []byte) (interface{}, error) {
	var req struct {
		Filename string `json:"filename"`
	}
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	exists, err := d.library.Exists(ctx, req.Filename)
	if err != nil {
		return nil, err
	}
	return existsPayload{Exists: exists}, nil
}

func (d *Dispatcher) sqlFileLoad(ctx context.Context, body []byte) (interface{}, error) {
	var req struct {
		FileID json.RawMessage `json:"fileID"`
	}
	if err := decode(body, &req); err != nil {
		return nil, err
	}

	// Accept numeric IDs as well as strings.
	id := strings.TrimSpace(string(req.FileID))
	if strings.HasPrefix(id, `"`) {
		if err := json.Unmarshal(req.FileID, &id); err != nil {
			return nil, qerrors.InvalidInput("fileID", err.Error()).Err()
		}
	}

	file, err := d.library.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return fileLoadPayload{File: file.FileInfo, SQL: file.Contents}, nil
}

func (d *Dispatcher) sqlFileSave(ctx context.Context, body []byte) (interface{}, error) {
	var req struct {
		Filename    string `json:"filename"`
		Contents    string `json:"contents"`
		Description string `json:"description"`
	}
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	id, err := d.library.Save(ctx, req.Filename, req.Contents, req.Description)
	if err != nil {
		return nil, err
	}
	return fileSavePayload{FileID: id}, nil
}

func (d *Dispatcher) localLibraryFilesGet(ctx context.Context) (interface{}, error) {
	files, err := d.library.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, qerrors.New(qerrors.ErrCodeLibraryEmpty, "No SQL Files").Err()
	}
	return libraryFilesPayload{Records: files}, nil
}

func (d *Dispatcher) workbookLoad(ctx context.Context, body []byte) (interface{}, error) {
	if d.workbooks == nil {
		return nil, workbooksDisabled()
	}
	var req struct {
		ScriptID string `json:"scriptID"`
	}
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	sql, err := d.workbooks.Load(ctx, req.ScriptID)
	if err != nil {
		return nil, err
	}
	return sqlPayload{SQL: sql}, nil
}

func (d *Dispatcher) workbooksGet(ctx context.Context) (interface{}, error) {
	if d.workbooks == nil {
		return nil, workbooksDisabled()
	}
	records, err := d.workbooks.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, qerrors.New(qerrors.ErrCodeWorkbookEmpty, "No Workbooks").Err()
	}
	return workbooksPayload{Records: records}, nil
}

func workbooksDisabled() error {
	return qerrors.New(qerrors.ErrCodeWorkbookDisabled, "workbooks are not enabled").Err()
}

func (d *Dispatcher) remoteLibraryFilesGet(ctx context.Context) (interface{}, error) {
	if d.remote == nil {
		return nil, remoteDisabled()
	}
	entries, err := d.remote.Index(ctx)
	if err != nil {
		return nil, err
	}
	return remoteFilesPayload{Records: entries}, nil
}

func (d *Dispatcher) remoteLibraryFileLoad(ctx context.Context, body []byte) (interface{}, error) {
	if d.remote == nil {
		return nil, remoteDisabled()
	}
	var req struct {
		Filename string `json:"filename"`
	}
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	sql, err := d.remote.Load(ctx, req.Filename)
	if err != nil {
		return nil, err
	}
	return sqlPayload{SQL: sql}, nil
}

func remoteDisabled() error {
	return qerrors.New(qerrors.ErrCodeRemoteDisabled, "the remote library is not enabled").Err()
}
