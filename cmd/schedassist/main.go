// Schedassist is a personal schedule assistant: appointments are managed via
// structured commands or natural language, stored in a local JSON file, and
// optionally reconciled with a remote calendar service.
//
// Usage:
//
//	schedassist add --title ... --start ... (--end ...|--duration ...)
//	schedassist list [--today|--upcoming|--search ...|--tag ...]
//	schedassist update --id ... [--title ...] [--start ...] ...
//	schedassist delete --id ...
//	schedassist stats
//	schedassist chat                        # interactive natural-language mode
//	schedassist sync                        # single reconcile pass then exit
//	schedassist daemon                      # periodic sync on a cron schedule
//	schedassist free [--min 30m] [--days 7]
//	schedassist backup | backups | restore --id ...
//	schedassist export [--format ics|json] [--out <path>]
//	schedassist import <path>
//	schedassist compact
//	schedassist status
//	schedassist version
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"schedassist/internal/backup"
	"schedassist/internal/config"
	"schedassist/internal/conflict"
	"schedassist/internal/llm"
	"schedassist/internal/model"
	"schedassist/internal/remote"
	"schedassist/internal/resolve"
	"schedassist/internal/schedule"
	"schedassist/internal/state"
	"schedassist/internal/store"
	"schedassist/internal/syncengine"
	"schedassist/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return printUsage()
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "add", "create":
		return runAdd(args)
	case "list":
		return runList(args)
	case "update":
		return runUpdate(args)
	case "delete", "remove":
		return runDelete(args)
	case "stats":
		return runStats(args)
	case "chat":
		return runChat(args)
	case "sync":
		return runSyncOnce(args)
	case "daemon":
		return runDaemon(args)
	case "free":
		return runFree(args)
	case "backup":
		return runBackup(args)
	case "backups":
		return runBackups(args)
	case "restore":
		return runRestore(args)
	case "export":
		return runExport(args)
	case "import":
		return runImport(args)
	case "compact":
		return runCompact(args)
	case "status":
		return runStatus()
	case "version":
		fmt.Println("schedassist", version)
		return nil
	}

	return fmt.Errorf("unknown command %q, run 'schedassist' for usage", cmd)
}

func printUsage() error {
	fmt.Fprintln(os.Stderr, "schedassist: personal schedule assistant")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  schedassist add --title ... --start ... (--end ...|--duration ...)")
	fmt.Fprintln(os.Stderr, "  schedassist list [--today|--upcoming|--search ...|--tag ...]")
	fmt.Fprintln(os.Stderr, "  schedassist update --id ... [--title ...] [--start ...] ...")
	fmt.Fprintln(os.Stderr, "  schedassist delete --id ...")
	fmt.Fprintln(os.Stderr, "  schedassist stats                     Schedule summary")
	fmt.Fprintln(os.Stderr, "  schedassist chat                      Interactive natural-language mode")
	fmt.Fprintln(os.Stderr, "  schedassist sync                      Single sync pass then exit")
	fmt.Fprintln(os.Stderr, "  schedassist daemon                    Periodic sync on a cron schedule")
	fmt.Fprintln(os.Stderr, "  schedassist free [--min 30m] [--days 7]")
	fmt.Fprintln(os.Stderr, "  schedassist backup | backups | restore --id ...")
	fmt.Fprintln(os.Stderr, "  schedassist export [--format ics|json] [--out <path>]")
	fmt.Fprintln(os.Stderr, "  schedassist import <path>")
	fmt.Fprintln(os.Stderr, "  schedassist compact                   Purge confirmed tombstones")
	fmt.Fprintln(os.Stderr, "  schedassist status                    Show config and data state")
	fmt.Fprintln(os.Stderr, "  schedassist version                   Print version")
	os.Exit(1)
	return nil // unreachable
}

// --- Application assembly ----------------------------------------------------

// app bundles the wired service stack for one command invocation.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	store     *store.Store
	links     *state.Store
	backups   *backup.Manager
	scheduler *schedule.Scheduler
	resolver  *resolve.Resolver
	engine    *syncengine.Engine

	shutdown []func()
}

// commonFlags registers the flags every subcommand shares.
func commonFlags(fs *flag.FlagSet) (cfgPath *string, verbose *bool) {
	defaultCfg, _ := config.DefaultPath()
	cfgPath = fs.String("config", defaultCfg, "path to config.yaml")
	verbose = fs.Bool("verbose", false, "enable debug logging")
	return cfgPath, verbose
}

// newApp builds the full stack from configuration.
func newApp(cfgPath string, verbose bool) (*app, error) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config from %q: %w", cfgPath, err)
	}

	a := &app{cfg: cfg, log: logger}

	if cfg.Telemetry != nil {
		telCfg := telemetry.Config{
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			Insecure:     cfg.Telemetry.Insecure,
			ServiceName:  cfg.Telemetry.ServiceName,
			Headers:      cfg.Telemetry.Headers,
		}
		shutdownTel, err := telemetry.Setup(context.Background(), telCfg)
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			a.shutdown = append(a.shutdown, func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTel(flushCtx); err != nil {
					logger.Error("telemetry shutdown error", "error", err)
				}
			})
		}
	}

	a.store, err = store.Open(filepath.Join(cfg.DataDir, store.FileName), logger)
	if err != nil {
		return nil, fmt.Errorf("opening schedule: %w", err)
	}

	a.links, err = state.Open(filepath.Join(cfg.DataDir, "sync.db"))
	if err != nil {
		return nil, fmt.Errorf("opening sync-link store: %w", err)
	}
	a.shutdown = append(a.shutdown, func() {
		if err := a.links.Close(); err != nil {
			logger.Error("closing sync-link store", "error", err)
		}
	})

	a.backups = backup.New(filepath.Join(cfg.DataDir, "backups"), a.store.Path(), logger)

	var cal remote.Calendar
	if cfg.Remote != nil {
		client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Token, logger)
		cal = client
		a.engine = syncengine.NewEngine(a.store, a.links, cal, a.backups,
			cfg.Remote.LookBack, cfg.Remote.LookAhead, logger)
	}
	det := conflict.New(a.store, cal, logger)

	var interp llm.Interpreter
	switch cfg.LLM.Provider {
	case "gemini":
		opts := []llm.GeminiOption{llm.WithModel(cfg.LLM.Model)}
		if cfg.LLM.Temperature > 0 || cfg.LLM.MaxTokens > 0 {
			opts = append(opts, llm.WithGeneration(cfg.LLM.Temperature, cfg.LLM.MaxTokens))
		}
		interp = llm.NewGeminiClient(cfg.LLM.APIKey, logger, opts...)
	default:
		interp = llm.NewMock()
	}
	a.resolver = resolve.New(a.store, interp)

	var syncer schedule.Syncer
	if a.engine != nil {
		syncer = a.engine
	}
	a.scheduler = schedule.New(a.store, a.backups, det, a.links, syncer, logger)
	return a, nil
}

func (a *app) close() {
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		a.shutdown[i]()
	}
}

// withApp parses flags, builds the stack, and hands a signal-aware context to fn.
func withApp(name string, args []string, register func(*flag.FlagSet), fn func(context.Context, *app, *flag.FlagSet) error) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cfgPath, verbose := commonFlags(fs)
	if register != nil {
		register(fs)
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*cfgPath, *verbose)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return fn(ctx, a, fs)
}

// --- Event commands ----------------------------------------------------------

func runAdd(args []string) error {
	var title, start, end, duration, description, location, tags, attendees, priority string
	return withApp("add", args, func(fs *flag.FlagSet) {
		fs.StringVar(&title, "title", "", "event title (required)")
		fs.StringVar(&start, "start", "", "start instant, RFC3339 or \"2006-01-02 15:04\" (required)")
		fs.StringVar(&end, "end", "", "end instant")
		fs.StringVar(&duration, "duration", "", "duration instead of end, e.g. 1h30m")
		fs.StringVar(&description, "description", "", "description")
		fs.StringVar(&location, "location", "", "location")
		fs.StringVar(&tags, "tags", "", "comma-separated tags")
		fs.StringVar(&attendees, "attendees", "", "comma-separated attendees")
		fs.StringVar(&priority, "priority", "", "low|medium|high|urgent")
	}, func(ctx context.Context, a *app, fs *flag.FlagSet) error {
		cmdArgs := map[string]string{
			"title": title, "start": start, "description": description,
			"location": location, "tags": tags, "attendees": attendees,
		}
		if end != "" {
			cmdArgs["end"] = end
		}
		if duration != "" {
			cmdArgs["duration"] = duration
		}
		if priority != "" {
			cmdArgs["priority"] = priority
		}

		op, err := a.resolver.ResolveCommand(resolve.Command{Name: "create", Args: cmdArgs}, time.Now())
		if err != nil {
			return err
		}
		res, err := a.scheduler.Apply(ctx, op)
		if err != nil {
			return err
		}
		fmt.Printf("created %s  %s\n", res.Event.ID, formatEvent(res.Event))
		printWarnings(res.Warnings)
		return nil
	})
}

func runList(args []string) error {
	var search, tag, from, to string
	var today, upcoming bool
	return withApp("list", args, func(fs *flag.FlagSet) {
		fs.StringVar(&search, "search", "", "substring of title or description")
		fs.StringVar(&tag, "tag", "", "required tag")
		fs.StringVar(&from, "from", "", "earliest start instant")
		fs.StringVar(&to, "to", "", "latest start instant (exclusive)")
		fs.BoolVar(&today, "today", false, "only today's events")
		fs.BoolVar(&upcoming, "upcoming", false, "only future events")
	}, func(ctx context.Context, a *app, fs *flag.FlagSet) error {
		cmdArgs := map[string]string{"search": search, "tag": tag, "from": from, "to": to}
		if today {
			cmdArgs["today"] = "true"
		}
		if upcoming {
			cmdArgs["upcoming"] = "true"
		}

		op, err := a.resolver.ResolveCommand(resolve.Command{Name: "list", Args: cmdArgs}, time.Now())
		if err != nil {
			return err
		}
		res, err := a.scheduler.Apply(ctx, op)
		if err != nil {
			return err
		}
		printEvents(res.Events)
		return nil
	})
}

func runUpdate(args []string) error {
	var id string
	set := map[string]*string{}
	fields := []string{"title", "start", "end", "description", "location", "tags", "attendees", "priority"}
	return withApp("update", args, func(fs *flag.FlagSet) {
		fs.StringVar(&id, "id", "", "event id (required)")
		for _, f := range fields {
			set[f] = fs.String(f, "", "new "+f)
		}
	}, func(ctx context.Context, a *app, fs *flag.FlagSet) error {
		cmdArgs := map[string]string{"id": id}
		// Only flags the user actually passed become patch fields; an empty
		// string is a legitimate new value (e.g. clearing the location).
		fs.Visit(func(f *flag.Flag) {
			if v, ok := set[f.Name]; ok {
				cmdArgs[f.Name] = *v
			}
		})

		op, err := a.resolver.ResolveCommand(resolve.Command{Name: "update", Args: cmdArgs}, time.Now())
		if err != nil {
			return err
		}
		res, err := a.scheduler.Apply(ctx, op)
		if err != nil {
			return err
		}
		fmt.Printf("updated %s  %s\n", res.Event.ID, formatEvent(res.Event))
		printWarnings(res.Warnings)
		return nil
	})
}

func runDelete(args []string) error {
	var id string
	return withApp("delete", args, func(fs *flag.FlagSet) {
		fs.StringVar(&id, "id", "", "event id (required)")
	}, func(ctx context.Context, a *app, fs *flag.FlagSet) error {
		op, err := a.resolver.ResolveCommand(resolve.Command{Name: "delete", Args: map[string]string{"id": id}}, time.Now())
		if err != nil {
			return err
		}
		if _, err := a.scheduler.Apply(ctx, op); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", id)
		return nil
	})
}

func runStats(args []string) error {
	return withApp("stats", args, nil, func(ctx context.Context, a *app, fs *flag.FlagSet) error {
		res, err := a.scheduler.Apply(ctx, model.Operation{Kind: model.OpStats})
		if err != nil {
			return err
		}
		printReport(res.Report)
		return nil
	})
}

// --- Chat --------------------------------------------------------------------

func runChat(args []string) error {
	return withApp("chat", args, nil, func(ctx context.Context, a *app, fs *flag.FlagSet) error {
		fmt.Println("schedassist chat. Type your request, or \"quit\" to leave.")
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			switch line {
			case "":
				continue
			case "quit", "exit":
				return nil
			}

			op, err := a.resolver.ResolveText(ctx, line, time.Now())
			if err != nil {
				var ambiguous *resolve.AmbiguousError
				if errors.As(err, &ambiguous) {
					fmt.Printf("that matches %d events, be more specific:\n", len(ambiguous.Matches))
					printEvents(ambiguous.Matches)
					continue
				}
				fmt.Printf("sorry: %v\n", err)
				continue
			}

			res, err := a.scheduler.Apply(ctx, op)
			if err != nil {
				fmt.Printf("sorry: %v\n", err)
				continue
			}
			printChatResult(op, res)
		}
	})
}

func printChatResult(op model.Operation, res *schedule.Result) {
	if res.Message != "" {
		fmt.Println(res.Message)
	}
	switch op.Kind {
	case model.OpCreate:
		fmt.Printf("created: %s\n", formatEvent(res.Event))
		printWarnings(res.Warnings)
	case model.OpDelete:
		fmt.Println("deleted.")
	case model.OpQuery:
		printEvents(res.Events)
	case model.OpStats:
		printReport(res.Report)
	}
}

// --- Sync --------------------------------------------------------------------

func runSyncOnce(args []string) error {
	return withApp("sync", args, nil, func(ctx context.Context, a *app, fs *flag.FlagSet) error {
		stats, err := a.scheduler.Sync(ctx)
		printSyncStats(stats)
		return err
	})
}

func runDaemon(args []string) error {
	return withApp("daemon", args, nil, func(ctx context.Context, a *app, fs *flag.FlagSet) error {
		if a.engine == nil {
			return errors.New("daemon mode needs a remote calendar, add a remote block to the config")
		}

		pass := func() {
			stats, err := a.scheduler.Sync(ctx)
			if err != nil {
				a.log.Error("sync pass failed", "error", err)
			}
			// Remote-initiated deletions leave unlinked tombstones behind.
			if stats.DeletedLocal > 0 {
				if purged, err := a.scheduler.Compact(ctx); err != nil {
					a.log.Error("compaction failed", "error", err)
				} else if purged > 0 {
					a.log.Info("compacted schedule", "purged", purged)
				}
			}
			if pruned, err := a.scheduler.PruneBackups(a.cfg.Backup.Keep); err != nil {
				a.log.Error("backup pruning failed", "error", err)
			} else if pruned > 0 {
				a.log.Debug("pruned backups", "removed", pruned)
			}
		}

		c := cron.New()
		if _, err := c.AddFunc(a.cfg.Sync.Schedule, pass); err != nil {
			return fmt.Errorf("scheduling sync: %w", err)
		}

		a.log.Info("daemon starting", "schedule", a.cfg.Sync.Schedule)
		pass() // one pass up front, then on the cron schedule
		c.Start()
		<-ctx.Done()

		stopCtx := c.Stop()
		<-stopCtx.Done()
		a.log.Info("shutdown complete")
		return nil
	})
}

// --- Free slots --------------------------------------------------------------

func runFree(args []string) error {
	var minDur time.Duration
	var days int
	return withApp("free", args, func(fs *flag.FlagSet) {
		fs.DurationVar(&minDur, "min", 30*time.Minute, "minimum slot length")
		fs.IntVar(&days, "days", 7, "horizon in days")
	}, func(ctx context.Context, a *app, fs *flag.FlagSet) error {
		slots, err := a.scheduler.FindFree(ctx, minDur, days)
		if err != nil {
			return err
		}
		if len(slots) == 0 {
			fmt.Println("no free slots in the horizon")
			return nil
		}
		for _, s := range slots {
			fmt.Printf("%s .. %s  (%s)\n",
				s.Start.Local().Format("2006-01-02 15:04"),
				s.End.Local().Format("2006-01-02 15:04"),
				s.End.Sub(s.Start).Round(time.Minute))
		}
		return nil
	})
}

// --- Backups -----------------------------------------------------------------

func runBackup(args []string) error {
	return withApp("backup", args, nil, func(ctx context.Context, a *app, fs *flag.FlagSet) error {
		res, err := a.scheduler.Apply(ctx, model.Operation{Kind: model.OpBackup})
		if err != nil {
			return err
		}
		fmt.Println(res.Message)
		return nil
	})
}

func runBackups(args []string) error {
	return withApp("backups", args, nil, func(ctx context.Context, a *app, fs *flag.FlagSet) error {
		snaps, err := a.scheduler.Backups()
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Println("no backups yet")
			return nil
		}
		for _, s := range snaps {
			fmt.Printf("%s  %s  %s\n", s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04:05"), humanSize(s.Size))
		}
		return nil
	})
}

func runRestore(args []string) error {
	var id string
	return withApp("restore", args, func(fs *flag.FlagSet) {
		fs.StringVar(&id, "id", "", "snapshot id to restore (required)")
	}, func(ctx context.Context, a *app, fs *flag.FlagSet) error {
		op, err := a.resolver.ResolveCommand(resolve.Command{Name: "restore", Args: map[string]string{"id": id}}, time.Now())
		if err != nil {
			return err
		}
		res, err := a.scheduler.Apply(ctx, op)
		if err != nil {
			return err
		}
		fmt.Println(res.Message)
		return nil
	})
}

// --- Export / import ---------------------------------------------------------

func runExport(args []string) error {
	var format, out string
	return withApp("export", args, func(fs *flag.FlagSet) {
		fs.StringVar(&format, "format", "ics", "ics or json")
		fs.StringVar(&out, "out", "", "output file (default stdout)")
	}, func(ctx context.Context, a *app, fs *flag.FlagSet) error {
		var body []byte
		var err error
		switch format {
		case "ics":
			body, err = a.scheduler.ExportICS()
		case "json":
			body, err = a.scheduler.ExportJSON()
		default:
			return fmt.Errorf("unknown export format %q", format)
		}
		if err != nil {
			return err
		}
		if out == "" {
			_, err = os.Stdout.Write(body)
			return err
		}
		return os.WriteFile(out, body, 0o600)
	})
}

func runImport(args []string) error {
	return withApp("import", args, nil, func(ctx context.Context, a *app, fs *flag.FlagSet) error {
		if fs.NArg() != 1 {
			return errors.New("import needs exactly one file argument")
		}
		path := fs.Arg(0)
		body, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var n int
		switch strings.ToLower(filepath.Ext(path)) {
		case ".ics":
			n, err = a.scheduler.ImportICS(body)
		case ".json":
			n, err = a.scheduler.ImportJSON(body)
		default:
			return fmt.Errorf("unknown import format for %q, want .ics or .json", path)
		}
		if err != nil {
			return err
		}
		fmt.Printf("imported %d event(s)\n", n)
		return nil
	})
}

// --- Maintenance -------------------------------------------------------------

func runCompact(args []string) error {
	return withApp("compact", args, nil, func(ctx context.Context, a *app, fs *flag.FlagSet) error {
		purged, err := a.scheduler.Compact(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("purged %d tombstone(s)\n", purged)
		return nil
	})
}

func runStatus() error {
	cfgPath, _ := config.DefaultPath()

	fmt.Println("schedassist status")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config:    %s (invalid: %v)\n", cfgPath, err)
		return nil
	}
	if _, statErr := os.Stat(cfgPath); statErr == nil {
		fmt.Printf("  Config:    %s\n", cfgPath)
	} else {
		fmt.Printf("  Config:    defaults (no file at %s)\n", cfgPath)
	}
	fmt.Printf("  Data dir:  %s\n", cfg.DataDir)
	fmt.Printf("  LLM:       %s\n", cfg.LLM.Provider)
	if cfg.Remote != nil {
		fmt.Printf("  Remote:    %s\n", cfg.Remote.BaseURL)
	} else {
		fmt.Printf("  Remote:    not configured\n")
	}

	schedPath := filepath.Join(cfg.DataDir, store.FileName)
	if info, err := os.Stat(schedPath); err == nil {
		fmt.Printf("  Schedule:  %s (%s)\n", schedPath, humanSize(info.Size()))
	} else {
		fmt.Printf("  Schedule:  not created yet\n")
	}
	if info, err := os.Stat(filepath.Join(cfg.DataDir, "sync.db")); err == nil {
		fmt.Printf("  Sync DB:   %s\n", humanSize(info.Size()))
	}
	return nil
}

// --- Output helpers ----------------------------------------------------------

func formatEvent(ev *model.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s .. %s  %s",
		ev.Start.Local().Format("2006-01-02 15:04"),
		ev.End.Local().Format("15:04"),
		ev.Title)
	if ev.Location != "" {
		fmt.Fprintf(&b, " @ %s", ev.Location)
	}
	if len(ev.Tags) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(ev.Tags, ","))
	}
	if ev.Priority != model.PriorityNone {
		fmt.Fprintf(&b, " (%s)", ev.Priority)
	}
	return b.String()
}

func printEvents(events []model.Event) {
	if len(events) == 0 {
		fmt.Println("no events")
		return
	}
	for i := range events {
		fmt.Printf("%s  %s\n", events[i].ID, formatEvent(&events[i]))
	}
}

func printWarnings(warnings []conflict.Overlap) {
	for _, w := range warnings {
		fmt.Printf("note: overlaps %s event %q (%s .. %s)\n",
			w.Source, w.Title,
			w.Start.Local().Format("15:04"), w.End.Local().Format("15:04"))
	}
}

func printReport(r *store.Report) {
	fmt.Printf("events:     %d (%d upcoming, %d past)\n", r.Total, r.Upcoming, r.Past)
	if r.Tombstones > 0 {
		fmt.Printf("tombstones: %d\n", r.Tombstones)
	}
	if len(r.ByTag) > 0 {
		fmt.Println("by tag:")
		for tag, n := range r.ByTag {
			fmt.Printf("  %-12s %d\n", tag, n)
		}
	}
	if len(r.ByPriority) > 0 {
		fmt.Println("by priority:")
		for p, n := range r.ByPriority {
			fmt.Printf("  %-12s %d\n", p, n)
		}
	}
	if len(r.ByDay) > 0 {
		fmt.Println("by day:")
		for day, n := range r.ByDay {
			fmt.Printf("  %s  %d\n", day, n)
		}
	}
	if len(r.ByWeek) > 0 {
		fmt.Println("by week:")
		for week, n := range r.ByWeek {
			fmt.Printf("  %s  %d\n", week, n)
		}
	}
}

func printSyncStats(s syncengine.Stats) {
	fmt.Printf("sync: +%d/-%d local, +%d/-%d remote, %d updated, %d adopted, %d conflicts, %d errors\n",
		s.CreatedLocal, s.DeletedLocal, s.CreatedRemote, s.DeletedRemote,
		s.UpdatedLocal+s.UpdatedRemote, s.Adopted, s.Conflicts, s.Errors)
}

// humanSize returns a human-readable file size string.
func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
