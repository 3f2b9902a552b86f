// Package backend defines the read-only query executor that every qconsole
// operation ultimately runs against.
//
// Drivers live in subpackages and register themselves with Register from an
// init function, so a binary only links the drivers it imports:
//
//	import _ "github.com/ha1tch/qconsole/pkg/backend/sqlite"
//
// Every executor caps a single call at Config.MaxRows rows. Callers that need
// more rows page through them with the windowed SQL built by Dialect.
package backend

import (
	"context"
	"sort"
	"sync"

	qerrors "github.com/ha1tch/qconsole/pkg/errors"
)

// Executor runs a query and returns at most MaxRows records.
type Executor interface {
	// Query executes sql with positional parameters.
	Query(ctx context.Context, sql string, params ...interface{}) ([]Record, error)

	// Dialect returns the SQL flavour used for windowing and counting.
	Dialect() Dialect

	// Close releases the underlying connections.
	Close() error
}

// Config configures a backend driver.
type Config struct {
	Driver string
	DSN    string

	// Dialect overrides the driver's default dialect when non-empty.
	Dialect string

	// MaxRows is the per-call row ceiling.
	MaxRows int

	MaxOpenConns int
	MaxIdleConns int
}

// Factory opens an executor for a configuration.
type Factory func(cfg Config) (Executor, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a driver available to Open. It panics if the name is
// registered twice.
func Register(driver string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if _, dup := factories[driver]; dup {
		panic("backend: Register called twice for driver " + driver)
	}
	factories[driver] = f
}

// Drivers returns the sorted names of the registered drivers.
func Drivers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens an executor through the registered driver factory.
func Open(cfg Config) (Executor, error) {
	factoriesMu.RLock()
	f, ok := factories[cfg.Driver]
	factoriesMu.RUnlock()

	if !ok {
		return nil, qerrors.Newf(qerrors.ErrCodeBackendUnknown,
			"backend driver not registered: %s", cfg.Driver).
			WithOp("backend.Open").
			WithField("registered", Drivers()).
			Err()
	}
	if cfg.MaxRows <= 0 {
		return nil, qerrors.New(qerrors.ErrCodeConfigInvalid, "backend row ceiling must be positive").
			WithOp("backend.Open").
			Err()
	}

	exec, err := f(cfg)
	if err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeBackendOpen, "failed to open backend").
			WithOp("backend.Open").
			WithField("driver", cfg.Driver).
			Err()
	}

	if cfg.Dialect != "" {
		d, err := LookupDialect(cfg.Dialect)
		if err != nil {
			exec.Close()
			return nil, err
		}
		exec = &dialectOverride{Executor: exec, dialect: d}
	}
	return exec, nil
}

type dialectOverride struct {
	Executor
	dialect Dialect
}

func (d *dialectOverride) Dialect() Dialect { return d.dialect }
