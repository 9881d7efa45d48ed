package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/mrcoles/iron-blogger2/pkg/assign"
	"github.com/mrcoles/iron-blogger2/pkg/config"
	"github.com/mrcoles/iron-blogger2/pkg/domain"
	"github.com/mrcoles/iron-blogger2/pkg/feed"
	"github.com/mrcoles/iron-blogger2/pkg/repository"
	"github.com/mrcoles/iron-blogger2/pkg/roster"
	"github.com/mrcoles/iron-blogger2/pkg/scheduler"
	"github.com/mrcoles/iron-blogger2/pkg/service"
	"github.com/mrcoles/iron-blogger2/server"
)

// Opts with all CLI options
type Opts struct {
	Config string `short:"f" long:"config" env:"CONFIG" default:"ironblogger.yml" description:"config file"`

	ServerCmd serverCmd `command:"server" description:"run the HTTP server with the periodic sync job"`
	SyncCmd   syncCmd   `command:"sync" description:"run one fetch-then-assign cycle and exit"`
	ImportCmd importCmd `command:"import" description:"import bloggers from a roster file"`
	ExportCmd exportCmd `command:"export" description:"export bloggers to a roster file"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

type serverCmd struct{}

type syncCmd struct{}

type importCmd struct {
	Args struct {
		File string `positional-arg-name:"FILE" required:"yes" description:"roster YAML file"`
	} `positional-args:"yes"`
}

type exportCmd struct {
	Args struct {
		File string `positional-arg-name:"FILE" description:"output file, stdout when omitted"`
	} `positional-args:"yes"`
}

var revision = "unknown"

func printVersion() {
	fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
}

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if opts.Version {
			printVersion()
			os.Exit(0)
		}
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		printVersion()
		os.Exit(0)
	}

	setupLog(opts.Debug, opts.NoColor)

	log.Printf("[INFO] starting iron-blogger version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	if err := run(ctx, parser.Active.Name, &opts); err != nil {
		log.Printf("[ERROR] %v", err)
		cancel()
		os.Exit(1)
	}
	cancel()

	log.Print("[INFO] shutdown complete")
}

func run(ctx context.Context, command string, opts *Opts) error {
	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return err
	}

	repos, err := repository.NewRepositories(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("setup database: %w", err)
	}
	defer func() {
		if err := repos.Close(); err != nil {
			log.Printf("[WARN] failed to close database: %v", err)
		}
	}()

	store := service.NewStore(repos)

	switch command {
	case "server":
		return runServer(ctx, cfg, store, opts.Debug)
	case "sync":
		return newScheduler(cfg, store).RunOnce(ctx)
	case "import":
		return runImport(ctx, store, opts.ImportCmd.Args.File)
	case "export":
		return runExport(ctx, store, opts.ExportCmd.Args.File)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("[DEBUG] config file %s not found, using defaults", path)
		return config.Default(), nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newScheduler(cfg *config.Config, store *service.Store) *scheduler.Scheduler {
	parser := feed.NewParser(cfg.Feed.Timeout, cfg.Feed.UserAgent)
	engine := assign.New(store)
	return scheduler.NewScheduler(store, parser, engine, scheduler.Config{
		SyncInterval: time.Duration(cfg.Schedule.SyncInterval) * time.Minute,
		MaxWorkers:   cfg.Schedule.MaxWorkers,
	})
}

func runServer(ctx context.Context, cfg *config.Config, store *service.Store, debug bool) error {
	sched := newScheduler(cfg, store)
	sched.Start(ctx)
	defer sched.Stop()

	srv := server.New(cfg, store, sched, revision, debug)
	return srv.Run(ctx)
}

// runImport merges a roster file into the registry: missing bloggers and blogs
// are created, existing ones are left alone so re-imports are safe.
func runImport(ctx context.Context, store *service.Store, file string) error {
	f, err := os.Open(file) //nolint:gosec // file path comes from CLI argument
	if err != nil {
		return fmt.Errorf("open roster: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	members, err := roster.Parse(f)
	if err != nil {
		return err
	}

	created, blogs := 0, 0
	for _, m := range members {
		blogger, err := store.GetBloggerByName(ctx, m.Name)
		if err != nil {
			blogger = &domain.Blogger{Name: m.Name, StartDate: m.StartDate}
			if err := store.CreateBlogger(ctx, blogger); err != nil {
				return fmt.Errorf("create blogger %q: %w", m.Name, err)
			}
			created++
		}

		existing, err := store.ListBlogsByBlogger(ctx, blogger.ID)
		if err != nil {
			return err
		}
		known := make(map[string]struct{}, len(existing))
		for _, b := range existing {
			known[b.FeedURL] = struct{}{}
		}

		for _, link := range m.Blogs {
			if _, ok := known[link.FeedURL]; ok {
				continue
			}
			blog := &domain.Blog{BloggerID: blogger.ID, Title: link.Title, PageURL: link.PageURL, FeedURL: link.FeedURL}
			if err := store.CreateBlog(ctx, blog); err != nil {
				return fmt.Errorf("create blog %q for %q: %w", link.Title, m.Name, err)
			}
			blogs++
		}
	}

	log.Printf("[INFO] imported %d bloggers and %d blogs from %s", created, blogs, file)
	return nil
}

func runExport(ctx context.Context, store *service.Store, file string) error {
	bloggers, err := store.ListBloggers(ctx)
	if err != nil {
		return err
	}

	members := make([]roster.Member, 0, len(bloggers))
	for _, b := range bloggers {
		blogs, err := store.ListBlogsByBlogger(ctx, b.ID)
		if err != nil {
			return err
		}
		member := roster.Member{Name: b.Name, StartDate: b.StartDate}
		for _, blog := range blogs {
			member.Blogs = append(member.Blogs, roster.BlogLink{Title: blog.Title, PageURL: blog.PageURL, FeedURL: blog.FeedURL})
		}
		members = append(members, member)
	}

	out := os.Stdout
	if file != "" {
		f, err := os.Create(file) //nolint:gosec // file path comes from CLI argument
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				log.Printf("[WARN] failed to close output file: %v", err)
			}
		}()
		out = f
	}

	return roster.Export(out, members)
}

func setupLog(dbg, noColor bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	if !noColor {
		colorizer := lgr.Mapper{
			ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
			WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
			InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
			DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
			CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
			TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
		}
		logOpts = append(logOpts, lgr.Map(colorizer))
	}

	if len(secs) > 0 {
		logOpts = append(logOpts, lgr.Secret(secs...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
