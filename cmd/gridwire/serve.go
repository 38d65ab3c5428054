package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/gridwire-go/gridwire/internal/config"
	"github.com/gridwire-go/gridwire/internal/demo"
	"github.com/gridwire-go/gridwire/internal/errors"
	"github.com/gridwire-go/gridwire/pkg/server"
	"github.com/gridwire-go/gridwire/pkg/store"
)

func serveCmd() *cobra.Command {
	var (
		addr      string
		debugAddr string
		saveName  string
		students  int
		seed      int64
		autostart bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a game server",
		Long: `Run a gridwire game server in the current project.

The server reads gridwire.json, listens for UDP clients and hosts the
bundled campus simulation. Type "save" at the prompt to save the
session by hand, "quit" to stop the server.

Examples:
  gridwire serve
  gridwire serve --addr :24000
  gridwire serve --save evening --students 40`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, debugAddr, saveName, students, seed, autostart)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "UDP listen address (overrides config)")
	cmd.Flags().StringVar(&debugAddr, "debug-addr", "", "HTTP address for metrics and pprof (overrides config)")
	cmd.Flags().StringVar(&saveName, "save", "", "Save slot to load and autosave to (overrides config)")
	cmd.Flags().IntVar(&students, "students", 0, "Students in the campus simulation (0 uses the default)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Simulation random seed (0 uses the default)")
	cmd.Flags().BoolVar(&autostart, "autostart", false, "Start playing as soon as enough players join")

	return cmd
}

func runServe(addr, debugAddr, saveName string, students int, seed int64, autostart bool) error {
	cfg, err := config.LoadFromWorkingDir()
	if err != nil {
		return err
	}

	// Command line flags win over the config file.
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if debugAddr != "" {
		cfg.Server.DebugAddr = debugAddr
	}
	if saveName != "" {
		cfg.Saves.Name = saveName
	}
	if autostart {
		cfg.Session.Autostart = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg)

	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return err
	}
	autosave, err := cfg.AutosaveInterval()
	if err != nil {
		return err
	}

	saves, err := openStore(cfg)
	if err != nil {
		return err
	}

	session := demo.NewSession(demo.Config{
		Students: students,
		TickRate: cfg.Server.TickRate,
		Seed:     seed,
	})

	srv, err := server.New(server.Config{
		Addr:             cfg.ListenAddr(),
		Factory:          session.Factory(),
		TickRate:         cfg.Server.TickRate,
		DayTicks:         int32(cfg.Server.DayTicks),
		MinPlayers:       cfg.Session.MinPlayers,
		MaxPlayers:       cfg.Session.MaxPlayers,
		Autostart:        cfg.Session.Autostart,
		Locked:           cfg.Session.Locked,
		Timeout:          timeout,
		SaveName:         cfg.SaveName(),
		Saves:            saves,
		AutosaveInterval: autosave,
		Requests:         session.Requests(),
		DebugAddr:        cfg.Server.DebugAddr,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	printBanner()
	info("Listening on udp://%s", cfg.ListenAddr())
	if cfg.Server.DebugAddr != "" {
		info("Metrics on http://%s/metrics, status on http://%s/status", cfg.Server.DebugAddr, cfg.Server.DebugAddr)
	}
	info("Saving to %q in the %s store", cfg.SaveName(), cfg.Saves.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle Ctrl+C gracefully.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		info("Shutting down...")
		cancel()
	}()

	go consoleLoop(srv, cancel)

	if err := srv.Run(ctx); err != nil {
		var opErr *net.OpError
		if stderrors.As(err, &opErr) && opErr.Op == "listen" {
			return errors.New("E001").
				WithDetail("Could not listen on " + cfg.ListenAddr()).
				WithSuggestion("Pick another port with --addr or stop the process using this one").
				Wrap(err)
		}
		return err
	}

	success("Server stopped")
	return nil
}

// consoleLoop reads operator commands from stdin until the server
// stops. Unknown input gets a hint rather than an error.
func consoleLoop(srv *server.Server, cancel context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "":
		case "quit", "exit", "stop":
			cancel()
			return
		case "save":
			srv.RequestSave()
			info("Save requested")
		case "status":
			st := srv.Status()
			info("Phase %s, day %d, tick %d, %d player(s)", st.Phase, st.Day, st.Tick, len(st.Players))
		default:
			warn("Commands: save, status, quit")
		}
	}
}

// newLogger builds the process logger from the Log section of the
// config file.
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// openStore builds the save store named by the config. The "disk"
// backend needs nothing beyond a directory; "s3" pulls credentials
// from the usual AWS environment.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Saves.Backend {
	case "", "disk":
		return store.NewDiskStore(cfg.SavesPath())
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, errors.New("E061").
				WithDetail("AWS configuration could not be loaded").
				WithSuggestion("Set AWS_REGION and credentials in the environment").
				Wrap(err)
		}
		return store.NewS3Store(s3.NewFromConfig(awsCfg), cfg.Saves.Bucket, cfg.Saves.Prefix), nil
	default:
		return nil, errors.New("E085").
			WithDetail("Unknown save backend " + cfg.Saves.Backend).
			WithSuggestion(`Use "disk" or "s3"`)
	}
}
