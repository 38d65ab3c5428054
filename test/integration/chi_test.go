package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridwire-go/gridwire/internal/demo"
	"github.com/gridwire-go/gridwire/pkg/middleware"
	"github.com/gridwire-go/gridwire/pkg/protocol"
	"github.com/gridwire-go/gridwire/pkg/server"
	"github.com/gridwire-go/gridwire/pkg/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func awaitPacket[T protocol.Packet](t *testing.T, sock transport.Socket) T {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		wait := time.Until(deadline)
		if wait <= 0 {
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
		}
		data, err := sock.RecvTimeout(wait)
		if err != nil {
			var zero T
			t.Fatalf("recv while waiting for %T: %v", zero, err)
		}
		pkt, err := protocol.DecodePacket(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if match, ok := pkt.(T); ok {
			return match
		}
	}
}

// TestChiRouterIntegration runs a game server behind a host-owned chi
// router: the WebSocket acceptor mounted next to the host's own routes,
// with the request metrics middleware across everything.
func TestChiRouterIntegration(t *testing.T) {
	logger := testLogger()

	acceptor := transport.NewWSAcceptor(logger)
	sess := demo.NewSession(demo.Config{Students: 4, TickRate: 50, Seed: 1})
	srv, err := server.New(server.Config{
		Listener:  acceptor,
		Factory:   sess.Factory(),
		Requests:  sess.Requests(),
		TickRate:  50,
		Autostart: true,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- srv.Run(ctx) }()

	reg := prometheus.NewRegistry()
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.Prometheus(middleware.WithRegistry(reg)))

	// The host's own routes live beside the game endpoints.
	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(srv.Status())
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Handle("/ws", acceptor)

	ts := httptest.NewServer(r)
	defer func() {
		cancel()
		select {
		case <-runDone:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
		acceptor.Close()
		ts.Close()
	}()

	t.Run("host routes still served", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/health")
		if err != nil {
			t.Fatalf("GET /api/health: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK || string(body) != "OK" {
			t.Fatalf("got %d %q, want 200 OK", resp.StatusCode, body)
		}
	})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	sock, err := transport.DialWebSocket(wsURL, logger)
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	defer sock.Close()

	t.Run("websocket clients reach the game", func(t *testing.T) {
		if err := transport.EnsureSendPacket(sock, &protocol.RemoteConnectionStart{Name: "mounted"}); err != nil {
			t.Fatalf("send RemoteConnectionStart: %v", err)
		}
		awaitPacket[*protocol.ServerConnectionStart](t, sock)
		if err := transport.EnsureSendPacket(sock, &protocol.EnterLobby{}); err != nil {
			t.Fatalf("send EnterLobby: %v", err)
		}
		awaitPacket[*protocol.GameBegin](t, sock)
		if err := transport.EnsureSendPacket(sock, &protocol.LevelLoaded{}); err != nil {
			t.Fatalf("send LevelLoaded: %v", err)
		}
		awaitPacket[*protocol.GameStart](t, sock)
		awaitPacket[*protocol.EntityFrame](t, sock)
	})

	t.Run("status reports the session", func(t *testing.T) {
		fetch := func() server.Status {
			t.Helper()
			resp, err := http.Get(ts.URL + "/status")
			if err != nil {
				t.Fatalf("GET /status: %v", err)
			}
			defer resp.Body.Close()
			var st server.Status
			if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
				t.Fatalf("decode status: %v", err)
			}
			return st
		}
		deadline := time.Now().Add(5 * time.Second)
		for fetch().Phase != "playing" {
			if time.Now().After(deadline) {
				t.Fatalf("Phase = %q, want %q", fetch().Phase, "playing")
			}
			time.Sleep(10 * time.Millisecond)
		}
		if st := fetch(); len(st.Players) != 1 || st.Players[0] != "mounted" {
			t.Errorf("Players = %v, want [mounted]", st.Players)
		}
	})

	t.Run("request metrics scraped", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/metrics")
		if err != nil {
			t.Fatalf("GET /metrics: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), "gridwire_http_requests_total") {
			t.Error("scrape missing gridwire_http_requests_total")
		}
		if !strings.Contains(string(body), `path="/api/health"`) {
			t.Error("scrape missing the /api/health request counter")
		}
	})
}

// TestStdlibMuxIntegration mounts the acceptor on a plain http.ServeMux.
func TestStdlibMuxIntegration(t *testing.T) {
	acceptor := transport.NewWSAcceptor(testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("/api/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("api"))
	})
	mux.Handle("/ws", acceptor)

	ts := httptest.NewServer(mux)
	defer ts.Close()

	t.Run("API route works", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/test")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if string(body) != "api" {
			t.Errorf("got %q, want %q", body, "api")
		}
	})

	t.Run("plain GET is not upgraded", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/ws")
		if err != nil {
			t.Fatalf("GET /ws: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("closed acceptor refuses upgrades", func(t *testing.T) {
		acceptor.Close()
		resp, err := http.Get(ts.URL + "/ws")
		if err != nil {
			t.Fatalf("GET /ws: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
		}
	})
}
