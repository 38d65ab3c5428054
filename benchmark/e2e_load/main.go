// Gridwire E2E Load Benchmark
//
// This benchmark is designed to answer the questions we actually care about in production:
// - What is the p50/p95/p99 command roundtrip latency under concurrent load?
// - How fast do state deltas reach clients, and how expensive is applying them?
// - How much allocation + GC work does that load generate?
//
// It runs a real gridwire server over loopback UDP and drives N concurrent clients that
// speak the real protocol: join handshake, lobby, load-in, then a steady stream of
// commands while mirroring the entity state pushed at them.
//
// This is intentionally headless (no rendering). Command RTT measures:
// client send → kernel → server decode → tick dispatch → Execute → ack encode → UDP write → client read/decode
//
// Run:
//   cd benchmark/e2e_load
//   go run . -clients=50 -duration=30s -rate=4 -students=64
//
// Point it at a remote server (see benchmark/e2e_server) with -addr; GC numbers then
// describe the client process only.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"os"
	"runtime"
	"runtime/debug"
	"runtime/metrics"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gridwire-go/gridwire/internal/demo"
	"github.com/gridwire-go/gridwire/pkg/protocol"
	"github.com/gridwire-go/gridwire/pkg/server"
	"github.com/gridwire-go/gridwire/pkg/snapshot"
	"github.com/gridwire-go/gridwire/pkg/transport"
)

func main() {
	var (
		target    = flag.String("addr", "", "server UDP address; empty runs a server in-process")
		clients   = flag.Int("clients", 20, "number of concurrent game clients")
		duration  = flag.Duration("duration", 15*time.Second, "how long to run the load test")
		rate      = flag.Float64("rate", 2, "commands/sec per client (best-effort, response-gated)")
		hireEvery = flag.Int("hire-every", 25, "every Nth command hires staff, which relays to every other client (0 disables)")
		students  = flag.Int("students", 0, "campus population for the in-process server (affects capture/delta cost)")
		tickRate  = flag.Int("tick-rate", 20, "tick rate for the in-process server")
	)
	flag.Parse()

	if *clients <= 0 {
		log.Fatal("-clients must be > 0")
	}
	if *duration <= 0 {
		log.Fatal("-duration must be > 0")
	}
	if *rate <= 0 {
		log.Fatal("-rate must be > 0")
	}
	if *hireEvery < 0 {
		log.Fatal("-hire-every must be >= 0")
	}

	// Reduce incidental variability a bit.
	debug.SetGCPercent(100)

	clientLogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	addr := *target
	var srvDone chan error
	var cancelSrv context.CancelFunc
	if addr == "" {
		srvLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		lst, err := transport.ListenUDP("127.0.0.1:0", srvLogger)
		if err != nil {
			log.Fatalf("listen: %v", err)
		}
		session := demo.NewSession(demo.Config{Students: *students, TickRate: *tickRate, Seed: 1})
		srv, err := server.New(server.Config{
			Listener:   lst,
			Factory:    session.Factory(),
			TickRate:   *tickRate,
			MinPlayers: *clients,
			Autostart:  true,
			Requests:   session.Requests(),
			Logger:     srvLogger,
		})
		if err != nil {
			log.Fatalf("server: %v", err)
		}

		srvCtx, cancel := context.WithCancel(context.Background())
		cancelSrv = cancel
		srvDone = make(chan error, 1)
		go func() {
			srvDone <- srv.Run(srvCtx)
		}()
		addr = lst.Addr()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	samplesCh := make(chan time.Duration, 1024)
	var samples []time.Duration
	var samplesMu sync.Mutex
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for rtt := range samplesCh {
			samplesMu.Lock()
			samples = append(samples, rtt)
			samplesMu.Unlock()
		}
	}()

	var totals counters

	var before runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	beforeMetrics := readRuntimeMetrics()

	var wg sync.WaitGroup
	wg.Add(*clients)
	for i := 0; i < *clients; i++ {
		clientID := i
		go func() {
			defer wg.Done()
			if err := runClient(ctx, addr, clientLogger, clientID, *rate, *hireEvery, samplesCh, &totals); err != nil {
				totals.errors.Add(1)
				log.Printf("client %d: %v", clientID, err)
			}
		}()
	}

	wg.Wait()
	close(samplesCh)
	<-collectorDone

	if cancelSrv != nil {
		cancelSrv()
		if err := <-srvDone; err != nil {
			log.Printf("server: %v", err)
		}
	}

	var after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&after)
	afterMetrics := readRuntimeMetrics()

	samplesMu.Lock()
	latencies := append([]time.Duration(nil), samples...)
	samplesMu.Unlock()
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	commands := totals.commands.Load()
	runSeconds := math.Max(0.001, (*duration).Seconds())

	fmt.Println("=== Gridwire E2E Load Benchmark ===")
	fmt.Printf("Server: %s\n", addr)
	fmt.Printf("Clients: %d\n", *clients)
	fmt.Printf("Duration: %s\n", (*duration).String())
	fmt.Printf("Target per-client rate: %.2f commands/s\n", *rate)
	fmt.Printf("Commands sent: %d (%d rejected and rolled back)\n", commands, totals.rejections.Load())
	fmt.Printf("Commands relayed from peers: %d\n", totals.relayed.Load())
	fmt.Printf("Client errors: %d\n", totals.errors.Load())
	fmt.Printf("Command throughput: %.1f commands/s\n", float64(commands)/runSeconds)
	fmt.Println()

	if len(latencies) == 0 {
		fmt.Println("No latency samples recorded.")
	} else {
		fmt.Println("Command RTT (client send → tick dispatch → ack received):")
		fmt.Printf("  min: %s\n", latencies[0])
		fmt.Printf("  p50: %s\n", percentile(latencies, 0.50))
		fmt.Printf("  p95: %s\n", percentile(latencies, 0.95))
		fmt.Printf("  p99: %s\n", percentile(latencies, 0.99))
		fmt.Printf("  max: %s\n", latencies[len(latencies)-1])
	}
	fmt.Println()

	frames := totals.frames.Load()
	fmt.Println("State sync (summed across clients):")
	fmt.Printf("  entity frames: %d (%.1f/s)\n", frames, float64(frames)/runSeconds)
	fmt.Printf("  frame bytes:   %.2f MB\n", float64(totals.frameBytes.Load())/(1024*1024))
	if frames > 0 {
		fmt.Printf("  apply time:    %s avg\n", time.Duration(totals.applyNanos.Load()/int64(frames)))
	}
	fmt.Printf("  mirrored entities: %d created, %d removed, %d move orders\n",
		totals.created.Load(), totals.removed.Load(), totals.moves.Load())
	fmt.Println()

	fmt.Println("Go runtime / GC (this process):")
	fmt.Printf("  alloc:     %.2f MB\n", float64(after.TotalAlloc-before.TotalAlloc)/(1024*1024))
	fmt.Printf("  heap_live: %.2f MB\n", float64(after.HeapAlloc)/(1024*1024))
	fmt.Printf("  num_gc:    %d\n", after.NumGC-before.NumGC)
	fmt.Printf("  gc_pause:  %s (total)\n", time.Duration(after.PauseTotalNs-before.PauseTotalNs))
	fmt.Printf("  gc_pause:  %s (avg)\n", avgPause(after, before))
	fmt.Printf("  gc_cpu:    %.2f%%\n", 100*cpuFraction(afterMetrics, beforeMetrics))
	fmt.Printf("  allocs:    %.2f M objects\n", float64(afterMetrics.heapAllocsObjects-beforeMetrics.heapAllocsObjects)/1_000_000)
}

// counters aggregates what every client observed.
type counters struct {
	commands   atomic.Uint64
	rejections atomic.Uint64
	relayed    atomic.Uint64
	errors     atomic.Uint64

	frames     atomic.Uint64
	frameBytes atomic.Uint64
	applyNanos atomic.Int64

	created atomic.Int64
	removed atomic.Int64
	moves   atomic.Int64
}

func avgPause(after, before runtime.MemStats) time.Duration {
	gcCount := after.NumGC - before.NumGC
	if gcCount == 0 {
		return 0
	}
	return time.Duration((after.PauseTotalNs - before.PauseTotalNs) / uint64(gcCount))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type runtimeMetricsSnapshot struct {
	cpuTotalSeconds float64
	cpuGCSeconds    float64

	heapAllocsBytes   uint64
	heapAllocsObjects uint64
}

func readRuntimeMetrics() runtimeMetricsSnapshot {
	samples := []metrics.Sample{
		{Name: "/cpu/classes/total:cpu-seconds"},
		{Name: "/cpu/classes/gc/total:cpu-seconds"},
		{Name: "/gc/heap/allocs:bytes"},
		{Name: "/gc/heap/allocs:objects"},
	}
	metrics.Read(samples)

	var out runtimeMetricsSnapshot
	for _, s := range samples {
		switch s.Name {
		case "/cpu/classes/total:cpu-seconds":
			out.cpuTotalSeconds = s.Value.Float64()
		case "/cpu/classes/gc/total:cpu-seconds":
			out.cpuGCSeconds = s.Value.Float64()
		case "/gc/heap/allocs:bytes":
			out.heapAllocsBytes = s.Value.Uint64()
		case "/gc/heap/allocs:objects":
			out.heapAllocsObjects = s.Value.Uint64()
		}
	}
	return out
}

func cpuFraction(after, before runtimeMetricsSnapshot) float64 {
	total := after.cpuTotalSeconds - before.cpuTotalSeconds
	if total <= 0 {
		return 0
	}
	gc := after.cpuGCSeconds - before.cpuGCSeconds
	if gc < 0 {
		return 0
	}
	return gc / total
}

// runClient joins the server, loads into the game, and then splits its
// time between mirroring pushed state and issuing paced commands.
func runClient(
	ctx context.Context,
	addr string,
	logger *slog.Logger,
	clientID int,
	rate float64,
	hireEvery int,
	samples chan<- time.Duration,
	totals *counters,
) error {
	sock, err := transport.DialUDP(addr, logger)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer sock.Close()

	// Join handshake. Reliable sends so the benchmark also works across
	// lossy links.
	name := fmt.Sprintf("load-%03d", clientID)
	if err := transport.EnsureSendPacket(sock, &protocol.RemoteConnectionStart{Name: name}); err != nil {
		return fmt.Errorf("hello: %w", err)
	}
	start, err := await[*protocol.ServerConnectionStart](ctx, sock)
	if err != nil {
		return fmt.Errorf("await uid: %w", err)
	}
	uid := snapshot.PlayerID(start.UID)
	if err := transport.EnsureSendPacket(sock, &protocol.EnterLobby{}); err != nil {
		return fmt.Errorf("enter lobby: %w", err)
	}

	// The server autostarts once every client is in the lobby.
	begin, err := await[*protocol.GameBegin](ctx, sock)
	if err != nil {
		return fmt.Errorf("await game begin: %w", err)
	}
	if err := transport.EnsureSendPacket(sock, &protocol.LevelLoaded{}); err != nil {
		return fmt.Errorf("level loaded: %w", err)
	}
	if _, err := await[*protocol.GameStart](ctx, sock); err != nil {
		return fmt.Errorf("await game start: %w", err)
	}

	roster := make([]snapshot.PlayerID, len(begin.Players))
	for i, p := range begin.Players {
		roster[i] = snapshot.PlayerID(p.UID)
	}
	mirror := demo.NewMirror(uid)
	snaps := snapshot.NewSnapshots(logger, roster)
	applied := snapshot.NewSyncState()

	defer func() {
		totals.created.Add(int64(mirror.Created()))
		totals.removed.Add(int64(mirror.Removed()))
		totals.moves.Add(int64(mirror.Moves()))
		transport.SendPacket(sock, &protocol.Disconnect{})
	}()

	period := time.Duration(float64(time.Second) / rate)
	nextSend := time.Now().Add(period)
	nextID := uint32(1)
	sent := 0
	inflight := make(map[uint32]time.Time)
	var rolledBack uint32

	for {
		if ctx.Err() != nil {
			return nil
		}

		wait := time.Until(nextSend)
		if wait <= 0 {
			cmd := demo.CheerCommand()
			if hireEvery > 0 && sent%hireEvery == hireEvery-1 {
				cmd = demo.HireCommand("", "")
			}
			id := nextID
			nextID++
			inflight[id] = time.Now()
			pkt := &protocol.ExecutedCommands{StartID: id, Commands: [][]byte{cmd}}
			if err := transport.EnsureSendPacket(sock, pkt); err != nil {
				return fmt.Errorf("send command: %w", err)
			}
			sent++
			totals.commands.Add(1)
			nextSend = nextSend.Add(period)
			continue
		}

		data, err := sock.RecvTimeout(wait)
		if err != nil {
			if errors.Is(err, transport.ErrNoData) {
				continue
			}
			return fmt.Errorf("recv: %w", err)
		}
		pkt, err := protocol.DecodePacket(data)
		if err != nil {
			return fmt.Errorf("decode: %w", err)
		}

		switch pkt := pkt.(type) {
		case *protocol.EntityFrame:
			t0 := time.Now()
			eAck, pAck, err := mirror.Apply(snaps, applied, pkt)
			if err != nil {
				return fmt.Errorf("apply delta: %w", err)
			}
			totals.applyNanos.Add(time.Since(t0).Nanoseconds())
			totals.frames.Add(1)
			totals.frameBytes.Add(uint64(len(data)))
			// Lost acks are fine; the next delta diffs against an older
			// base.
			if eAck != nil {
				transport.SendPacket(sock, eAck)
			}
			if pAck != nil {
				transport.SendPacket(sock, pAck)
			}

		case *protocol.AckCommands:
			completeInflight(inflight, pkt.AcceptedID, samples)

		case *protocol.RejectCommands:
			completeInflight(inflight, pkt.AcceptedID, samples)
			for id := range inflight {
				delete(inflight, id)
			}
			// Acknowledge the rejection once; repeats just confirm the
			// stream is still frozen.
			if pkt.RejectedID != rolledBack {
				rolledBack = pkt.RejectedID
				totals.rejections.Add(1)
				rollback := &protocol.ExecutedCommands{StartID: pkt.RejectedID, Commands: [][]byte{nil}}
				if err := transport.EnsureSendPacket(sock, rollback); err != nil {
					return fmt.Errorf("rollback: %w", err)
				}
				nextID = pkt.RejectedID + 1
			}

		case *protocol.RemoteExecutedCommands:
			cmds, err := server.DecodeRelayBatch(pkt)
			if err != nil {
				return fmt.Errorf("relay batch: %w", err)
			}
			totals.relayed.Add(uint64(len(cmds)))
			if len(cmds) > 0 {
				transport.SendPacket(sock, &protocol.AckRemoteCommands{AcceptedID: cmds[len(cmds)-1].ID})
			}

		default:
			// Chat, stats, notices, keep-alives. A real client cares;
			// the load rig only keeps the link moving.
		}
	}
}

// completeInflight records RTT samples for every command the watermark
// covers.
func completeInflight(inflight map[uint32]time.Time, accepted uint32, samples chan<- time.Duration) {
	for id, sentAt := range inflight {
		if id <= accepted {
			delete(inflight, id)
			samples <- time.Since(sentAt)
		}
	}
}

// await reads packets until one is a T, skipping everything else.
func await[T protocol.Packet](ctx context.Context, sock transport.Socket) (T, error) {
	var zero T
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		data, err := sock.RecvTimeout(time.Second)
		if err != nil {
			if errors.Is(err, transport.ErrNoData) {
				continue
			}
			return zero, err
		}
		pkt, err := protocol.DecodePacket(data)
		if err != nil {
			return zero, err
		}
		if match, ok := pkt.(T); ok {
			return match, nil
		}
	}
}
