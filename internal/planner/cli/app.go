// Package cli is the interactive surface around the planner core: it loads
// the snapshot into the store at startup, translates commands into engine
// calls, and saves the snapshot back after mutations.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/studyplan/internal/logging"
	"github.com/dmitrijs2005/studyplan/internal/planner/config"
	"github.com/dmitrijs2005/studyplan/internal/planner/persist"
	"github.com/dmitrijs2005/studyplan/internal/planner/remote"
	"github.com/dmitrijs2005/studyplan/internal/planner/replan"
	"github.com/dmitrijs2005/studyplan/internal/planner/scheduler"
	"github.com/dmitrijs2005/studyplan/internal/planner/store"
	syncengine "github.com/dmitrijs2005/studyplan/internal/planner/sync"
)

type App struct {
	config *config.Config
	log    logging.Logger
	loc    *time.Location

	db     *persist.DB
	store  *store.Store
	runner *syncengine.Runner
	replan *replan.Engine
	sched  *scheduler.Scheduler
	creds  *unlockingCredentialSource

	reader *bufio.Reader
	out    io.Writer
}

func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	db, err := persist.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	st := store.New(cfg.DeletedGraceTTL)
	sessions, err := db.Sessions.LoadAll(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	st.Load(sessions)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Warn(ctx, "unknown timezone; falling back to local", "zone", cfg.Timezone, "err", err)
		loc = time.Local
	}

	app := &App{
		config: cfg,
		log:    log,
		loc:    loc,
		db:     db,
		store:  st,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}

	adapter := remote.NewHTTPAdapter(cfg.VendorBaseURL)
	app.creds = &unlockingCredentialSource{app: app}
	engine := syncengine.New(st, adapter, app.creds, log,
		syncengine.WithCooldown(cfg.SyncCooldown))
	app.runner = syncengine.NewRunner(engine, log)
	app.runner.OnPassComplete = app.afterSyncPass
	app.replan = replan.New(st, log,
		replan.WithSyncTrigger(func() { app.runner.RunSyncPass(syncengine.TriggerEdit) }))

	sched, err := scheduler.New(cfg.SyncSchedule, func() {
		app.runner.RunSyncPass(syncengine.TriggerTimer)
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	app.sched = sched

	return app, nil
}

// Run starts the background sync machinery and enters the command loop. It
// returns once the user quits or input is exhausted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.unlockIfConnected(ctx); err != nil {
		a.log.Warn(ctx, "integration locked; use 'connect' to reconnect", "err", err)
	}

	a.runner.Start(ctx)
	a.sched.Start()
	defer a.sched.Stop()

	// A fresh launch behaves like returning to the view: sync once.
	a.runner.RunSyncPass(syncengine.TriggerFocus)

	a.repl(ctx)

	cancel()
	a.runner.Wait()

	if err := a.saveSnapshot(context.Background()); err != nil {
		a.log.Error(ctx, "saving snapshot on exit failed", "err", err)
	}
	return a.db.Close()
}

func (a *App) repl(ctx context.Context) {
	fmt.Fprintln(a.out, "studyplan - type 'help' for commands")
	for {
		fmt.Fprint(a.out, "> ")
		line, err := a.reader.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]
		if cmd == "quit" || cmd == "exit" {
			return
		}
		if err := a.dispatch(ctx, cmd, args); err != nil {
			fmt.Fprintf(a.out, "error: %v\n", err)
		}
	}
}

func (a *App) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		a.printHelp()
		return nil
	case "list":
		return a.cmdList(ctx, args)
	case "add":
		return a.cmdAdd(ctx, args)
	case "delete":
		return a.cmdDelete(ctx, args)
	case "miss":
		return a.cmdMiss(ctx, args)
	case "attend":
		return a.cmdAttend(ctx, args)
	case "sync":
		a.runner.RunSyncPass(syncengine.TriggerEdit)
		fmt.Fprintln(a.out, "sync requested")
		return nil
	case "connect":
		return a.cmdConnect(ctx)
	case "disconnect":
		return a.cmdDisconnect(ctx)
	case "export":
		return a.cmdExport(ctx, args)
	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
}

func (a *App) printHelp() {
	fmt.Fprint(a.out, `commands:
  list [days]                 show upcoming sessions (expanded)
  add <start> <end> [course]  add a session, times as 2006-01-02T15:04
  delete <id>                 delete a session
  attend <id> <percent>       mark a session attended
  miss <id>                   report a session missed (offers replanning)
  sync                        request a sync pass now
  connect                     connect the external calendar
  disconnect                  drop the calendar credential
  export <file> [days]        write the expanded schedule as iCalendar
  quit
`)
}

func (a *App) saveSnapshot(ctx context.Context) error {
	return a.db.Sessions.SaveSnapshot(ctx, a.store.List())
}

// afterSyncPass persists what a completed pass changed: the session snapshot,
// and the integration's last-sync stamp.
func (a *App) afterSyncPass(syncengine.Report) {
	ctx := context.Background()
	if err := a.saveSnapshot(ctx); err != nil {
		a.log.Error(ctx, "saving snapshot after sync failed", "err", err)
		return
	}
	st, err := a.db.Integration.Get(ctx)
	if err != nil {
		if !errors.Is(err, persist.ErrNotConnected) {
			a.log.Error(ctx, "reading integration state failed", "err", err)
		}
		return
	}
	now := time.Now()
	st.LastSync = &now
	if err := a.db.Integration.Save(ctx, st); err != nil {
		a.log.Error(ctx, "stamping last sync failed", "err", err)
	}
}
