package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eargollo/ppfinder/internal/api"
	"github.com/eargollo/ppfinder/internal/compiler"
	"github.com/eargollo/ppfinder/internal/config"
	internaldb "github.com/eargollo/ppfinder/internal/db"
	"github.com/eargollo/ppfinder/internal/metrics"
	"github.com/eargollo/ppfinder/internal/model"
	"github.com/eargollo/ppfinder/internal/osu/osutest"
	"github.com/eargollo/ppfinder/internal/scan"
	"github.com/eargollo/ppfinder/internal/scheduler"
	"github.com/eargollo/ppfinder/internal/search"
	"github.com/eargollo/ppfinder/internal/store"
)

// testServer wraps an in-process ppfinder HTTP server backed by a temp
// database and songs directory.
type testServer struct {
	baseURL string
	client  *http.Client
	cfg     *config.Config
	mgr     *scan.Manager
	songs   string
}

// newTestServer starts a server scanning a fresh songs directory with
// numMaps valid beatmaps. comp replaces the real compiler when non-nil.
func newTestServer(t *testing.T, numMaps int, comp scan.Compiler) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sqlDB, err := internaldb.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test DB: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	if err := internaldb.RunMigrations(sqlDB); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	bdb := internaldb.NewBun(sqlDB)
	st := store.New(bdb)

	songs := t.TempDir()
	for i := 0; i < numMaps; i++ {
		writeMap(t, filepath.Join(songs, fmt.Sprintf("set%d", i), "map.osu"), osutest.Default(i+1))
	}

	if comp == nil {
		comp = compiler.New(compiler.WithWorkers(2))
	}
	cfg := config.Default()
	cfg.SongsDir = songs

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	scanner := scan.New(st, comp, scan.Config{Walkers: 2, Files: 4}, logger, m)
	mgr := scan.NewManager(scanner, songs, logger)
	sched := scheduler.New(logger)
	sched.Start()

	srv := api.New("", cfg, mgr, search.New(bdb, logger, m), st, sched, reg, "test")
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hs.Close()
		sched.Stop()
		if _, err := mgr.Cancel(); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			mgr.Wait(ctx)
		}
	})

	return &testServer{
		baseURL: hs.URL,
		client:  &http.Client{Timeout: 30 * time.Second},
		cfg:     cfg,
		mgr:     mgr,
		songs:   songs,
	}
}

func writeMap(t *testing.T, path string, m osutest.Map) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, m.Bytes(), 0644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

// get performs a GET request to path and returns the response.
func (ts *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := ts.client.Get(ts.baseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// post performs a POST request to path with the given JSON body.
func (ts *testServer) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := ts.client.Post(ts.baseURL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

// do performs a request with the given method and JSON body.
func (ts *testServer) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.baseURL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build %s %s: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// scanAndWait starts a scan of the configured songs directory and blocks
// until it finishes.
func (ts *testServer) scanAndWait(t *testing.T) {
	t.Helper()
	resp := ts.post(t, "/api/scans", "")
	requireStatus(t, resp, http.StatusAccepted)
	resp.Body.Close()
	ts.wait(t)
}

func (ts *testServer) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := ts.mgr.Wait(ctx); err != nil {
		t.Fatalf("scan did not finish: %v", err)
	}
}

// requireStatus fails the test if the response status code != want.
func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d\nbody: %s", want, resp.StatusCode, body)
	}
}

// requireErrorCode fails the test unless resp carries status and the error
// envelope with code.
func requireErrorCode(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	requireStatus(t, resp, status)
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeJSON(t, resp, &body)
	if body.Error.Code != code {
		t.Fatalf("error code: got %q, want %q (message %q)", body.Error.Code, code, body.Error.Message)
	}
}

// decodeJSON decodes the response body into v, failing the test on error.
func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
}

// requireContentType fails if the Content-Type header doesn't contain want.
func requireContentType(t *testing.T, resp *http.Response, want string) {
	t.Helper()
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, want) {
		t.Fatalf("Content-Type: got %q, want prefix %q", ct, want)
	}
}

// gateCompiler holds every compilation until release is closed or the scan
// is cancelled.
type gateCompiler struct {
	release chan struct{}
	inner   scan.Compiler
}

func (g *gateCompiler) Compile(ctx context.Context, data []byte) (*model.Record, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.inner.Compile(ctx, data)
}

func newGateCompiler() *gateCompiler {
	return &gateCompiler{
		release: make(chan struct{}),
		inner:   compiler.New(compiler.WithWorkers(2)),
	}
}
