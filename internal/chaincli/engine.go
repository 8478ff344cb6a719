// engine.go wires the local single-process runtime: SQLite store, in-memory
// bus, services, and the result listener.
package chaincli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/chainwork/chainwork/chaindispatch"
	"github.com/chainwork/chainwork/chainengine"
	"github.com/chainwork/chainwork/chainservice"
	"github.com/chainwork/chainwork/chaintypes"
	"github.com/chainwork/chainwork/libbus"
	libdb "github.com/chainwork/chainwork/libdbexec"
	"github.com/chainwork/chainwork/libtracker"
	"github.com/chainwork/chainwork/modelservice"
	"github.com/chainwork/chainwork/runservice"
)

type env struct {
	db  libdb.DBManager
	bus libbus.Messenger

	chains chainservice.Service
	models modelservice.Service
	runs   runservice.Service

	listenerStop func()
}

func buildEnv(ctx context.Context, cfg localConfig) (*env, error) {
	if dir := filepath.Dir(cfg.DB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := libdb.NewSQLiteDBManager(ctx, cfg.DB, chaintypes.SchemaSQLite)
	if err != nil {
		return nil, err
	}

	bus := libbus.NewInMem()

	var tracker libtracker.ActivityTracker = libtracker.NoopTracker{}
	if cfg.Verbose {
		tracker = libtracker.LogActivityTracker{}
	}

	machine := chainengine.NewStateMachine(chaintypes.New(db.WithoutTransaction()))
	listener := chaindispatch.NewListener(bus, machine, tracker)
	listenerCtx, stopListener := context.WithCancel(ctx)
	if err := listener.Start(listenerCtx); err != nil {
		stopListener()
		_ = db.Close()
		_ = bus.Close()
		return nil, err
	}

	gateway := chaindispatch.NewBusGateway(bus)

	return &env{
		db:           db,
		bus:          bus,
		chains:       chainservice.WithActivityTracker(chainservice.New(db), tracker),
		models:       modelservice.WithActivityTracker(modelservice.New(db), tracker),
		runs:         runservice.WithActivityTracker(runservice.New(db, gateway), tracker),
		listenerStop: stopListener,
	}, nil
}

func (e *env) close() {
	e.listenerStop()
	_ = e.bus.Close()
	_ = e.db.Close()
}
