// Benchmark target server.
//
// Runs a real gridwire server hosting the campus simulation with a
// fixed seed, no save store, and the debug endpoint enabled, so load
// drivers (benchmark/e2e_load -addr) and hand-driven clients can
// measure real UDP roundtrips against a known world.
//
// Run:
//
//	cd benchmark/e2e_server
//	go run . -addr 0.0.0.0:23400 -students 128
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gridwire-go/gridwire/internal/demo"
	"github.com/gridwire-go/gridwire/pkg/server"
)

func main() {
	var (
		addr       = flag.String("addr", "127.0.0.1:23400", "UDP listen address")
		debugAddr  = flag.String("debug", "127.0.0.1:6060", "HTTP address for metrics and status")
		minPlayers = flag.Int("min-players", 1, "players required before the session autostarts")
		students   = flag.Int("students", 64, "campus population (affects capture/delta cost)")
		tickRate   = flag.Int("tick-rate", 20, "simulation ticks per second")
		timeout    = flag.Duration("timeout", 15*time.Second, "silent connection timeout")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	session := demo.NewSession(demo.Config{Students: *students, TickRate: *tickRate, Seed: 1})
	srv, err := server.New(server.Config{
		Addr:       *addr,
		Factory:    session.Factory(),
		TickRate:   *tickRate,
		MinPlayers: *minPlayers,
		Autostart:  true,
		Timeout:    *timeout,
		Requests:   session.Requests(),
		DebugAddr:  *debugAddr,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	fmt.Printf("Benchmark server on udp://%s (%d students, %d ticks/s)\n", *addr, *students, *tickRate)
	fmt.Printf("Metrics at http://%s/metrics, status at http://%s/status\n", *debugAddr, *debugAddr)
	fmt.Printf("Drive it with: go run ../e2e_load -addr %s -clients 50\n", *addr)

	if err := srv.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
