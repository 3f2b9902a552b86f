package library

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	qerrors "github.com/ha1tch/qconsole/pkg/errors"
	"github.com/ha1tch/qconsole/pkg/log"
)

// DescExtension is appended to a query file name to form the description
// sidecar: "accounts.sql" is described by "accounts.sql.desc".
const DescExtension = ".desc"

// FSStore keeps query files in a local directory.
type FSStore struct {
	mu sync.RWMutex

	dir    string
	logger *log.Logger

	// Index of the directory, keyed by file name. Rebuilt on every read
	// unless a Watcher keeps it current.
	files   map[string]FileInfo
	byID    map[string]string
	watched bool
}

// OpenFS opens the library folder dir, creating it if needed.
func OpenFS(dir string, logger *log.Logger) (*FSStore, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeLibraryWrite, "failed to create library folder").
			WithOp("library.OpenFS").
			WithField("folder", dir).
			Err()
	}

	s := &FSStore{
		dir:    dir,
		logger: logger,
		files:  make(map[string]FileInfo),
		byID:   make(map[string]string),
	}
	if err := s.Reindex(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the library folder.
func (s *FSStore) Dir() string { return s.dir }

// Reindex rebuilds the index from the directory contents.
func (s *FSStore) Reindex() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return qerrors.Wrap(err, qerrors.ErrCodeLibraryRead, "failed to read library folder").
			WithOp("FSStore.Reindex").
			WithField("folder", s.dir).
			Err()
	}

	files := make(map[string]FileInfo, len(entries))
	byID := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !isQueryFile(name) {
			continue
		}
		info, err := s.stat(name)
		if err != nil {
			// Removed between ReadDir and Stat.
			continue
		}
		files[name] = info
		byID[info.ID] = name
	}

	s.mu.Lock()
	s.files = files
	s.byID = byID
	s.mu.Unlock()
	return nil
}

// refresh updates the index entry for one file name.
func (s *FSStore) refresh(name string) (FileInfo, bool) {
	info, err := s.stat(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.files[name]; ok {
		delete(s.byID, old.ID)
		delete(s.files, name)
	}
	if err != nil {
		return FileInfo{}, false
	}
	s.files[name] = info
	s.byID[info.ID] = name
	return info, true
}

func (s *FSStore) stat(name string) (FileInfo, error) {
	fi, err := os.Stat(filepath.Join(s.dir, name))
	if err != nil {
		return FileInfo{}, err
	}
	if fi.IsDir() {
		return FileInfo{}, os.ErrNotExist
	}
	return FileInfo{
		ID:          FileID(s.dir, name),
		Name:        name,
		Description: s.readDescription(name),
		Modified:    fi.ModTime(),
		Size:        fi.Size(),
	}, nil
}

func (s *FSStore) readDescription(name string) string {
	data, err := os.ReadFile(filepath.Join(s.dir, name+DescExtension))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (s *FSStore) sync() error {
	s.mu.RLock()
	watched := s.watched
	s.mu.RUnlock()
	if watched {
		return nil
	}
	return s.Reindex()
}

func (s *FSStore) setWatched(v bool) {
	s.mu.Lock()
	s.watched = v
	s.mu.Unlock()
}

// List returns every query file ordered by name.
func (s *FSStore) List(ctx context.Context) ([]FileInfo, error) {
	if err := s.sync(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]FileInfo, 0, len(s.files))
	for _, info := range s.files {
		out = append(out, info)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Find returns the file named exactly name, if any.
func (s *FSStore) Find(ctx context.Context, name string) ([]FileInfo, error) {
	if err := s.sync(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	info, ok := s.files[name]
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	return []FileInfo{info}, nil
}

// Exists reports whether a file named name exists.
func (s *FSStore) Exists(ctx context.Context, name string) (bool, error) {
	found, err := s.Find(ctx, name)
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

// Load returns the file with the given ID.
func (s *FSStore) Load(ctx context.Context, id string) (*File, error) {
	if err := s.sync(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	name, ok := s.byID[id]
	info := s.files[name]
	s.mu.RUnlock()

	if !ok {
		return nil, qerrors.Newf(qerrors.ErrCodeLibraryNotFound, "no query file with ID %s", id).
			WithOp("FSStore.Load").
			WithField("fileID", id).
			Err()
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeLibraryRead, "failed to read query file").
			WithOp("FSStore.Load").
			WithField("filename", name).
			Err()
	}
	return &File{FileInfo: info, Contents: string(data)}, nil
}

// Save writes the file and its description sidecar. An empty description
// removes the sidecar.
func (s *FSStore) Save(ctx context.Context, name, contents, description string) (string, error) {
	if err := ValidName(name); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, name)
	if err := writeFileAtomic(path, []byte(contents)); err != nil {
		return "", qerrors.Wrap(err, qerrors.ErrCodeLibraryWrite, "failed to write query file").
			WithOp("FSStore.Save").
			WithField("filename", name).
			Err()
	}

	descPath := path + DescExtension
	if description == "" {
		if err := os.Remove(descPath); err != nil && !os.IsNotExist(err) {
			return "", qerrors.Wrap(err, qerrors.ErrCodeLibraryWrite, "failed to remove description").
				WithOp("FSStore.Save").
				WithField("filename", name).
				Err()
		}
	} else if err := writeFileAtomic(descPath, []byte(description+"\n")); err != nil {
		return "", qerrors.Wrap(err, qerrors.ErrCodeLibraryWrite, "failed to write description").
			WithOp("FSStore.Save").
			WithField("filename", name).
			Err()
	}

	info, _ := s.refresh(name)
	s.logger.Library().Ctx(ctx).Info("query file saved",
		"filename", name,
		"file_id", info.ID,
		"size", len(contents),
	)
	return FileID(s.dir, name), nil
}

// Close is a no-op; stop the Watcher separately.
func (s *FSStore) Close() error { return nil }

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".qconsole-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func isQueryFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), Extension)
}
