// Package library stores the operator's saved query files.
//
// A library is a single folder of ".sql" files. The same folder backs view
// macros: "#name" in a query expands to the contents of "name.sql".
package library

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	qerrors "github.com/ha1tch/qconsole/pkg/errors"
)

// Extension is the suffix of query files.
const Extension = ".sql"

// FileInfo describes one query file.
type FileInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Modified    time.Time `json:"modified"`
	Size        int64     `json:"size"`
}

// File is a query file with its contents.
type File struct {
	FileInfo
	Contents string `json:"-"`
}

// Store is the saved query library.
type Store interface {
	// List returns every query file ordered by name.
	List(ctx context.Context) ([]FileInfo, error)

	// Find returns the files whose name is exactly name.
	Find(ctx context.Context, name string) ([]FileInfo, error)

	// Exists reports whether a file named name exists.
	Exists(ctx context.Context, name string) (bool, error)

	// Load returns the file with the given ID.
	Load(ctx context.Context, id string) (*File, error)

	// Save creates or overwrites the named file and returns its ID.
	Save(ctx context.Context, name, contents, description string) (string, error)

	Close() error
}

// FileID derives the stable ID of a file name within a folder.
func FileID(folder, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("qconsole:"+folder+"/"+name)).String()
}

// ValidName reports whether name is usable as a library file name: a plain
// base name with the query file extension.
func ValidName(name string) error {
	switch {
	case name == "":
		return qerrors.InvalidInput("filename", "must not be empty").Err()
	case strings.ContainsAny(name, `/\`) || name == "." || name == "..":
		return qerrors.InvalidInput("filename", "must not contain a path").
			WithField("filename", name).
			Err()
	case !strings.HasSuffix(strings.ToLower(name), Extension):
		return qerrors.InvalidInput("filename", "must end in "+Extension).
			WithField("filename", name).
			Err()
	}
	return nil
}

// Disabled is the Store used when no library folder is configured.
type Disabled struct{}

func (Disabled) err(op string) error {
	return qerrors.New(qerrors.ErrCodeLibraryDisabled, "no query library folder is configured").
		WithOp(op).
		Err()
}

func (d Disabled) List(context.Context) ([]FileInfo, error) { return nil, d.err("library.List") }

func (d Disabled) Find(context.Context, string) ([]FileInfo, error) {
	return nil, d.err("library.Find")
}

func (d Disabled) Exists(context.Context, string) (bool, error) {
	return false, d.err("library.Exists")
}

func (d Disabled) Load(context.Context, string) (*File, error) { return nil, d.err("library.Load") }

func (d Disabled) Save(context.Context, string, string, string) (string, error) {
	return "", d.err("library.Save")
}

func (Disabled) Close() error { return nil }
