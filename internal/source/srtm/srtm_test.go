package srtm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tilecast/hgtfetch/internal/cache/diskcache"
	"github.com/tilecast/hgtfetch/internal/source"
	"github.com/tilecast/hgtfetch/internal/source/index"
)

type memStore struct {
	mu      sync.Mutex
	names   []string
	loadErr error
	drops   int
}

func (m *memStore) Load(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.names == nil {
		return nil, index.ErrNoIndex
	}
	return append([]string(nil), m.names...), nil
}

func (m *memStore) Save(_ context.Context, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = append([]string(nil), names...)
	return nil
}

func (m *memStore) Drop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = nil
	m.drops++
	return nil
}

// eeServer doubles as login endpoint, download endpoint and coverage host.
type eeServer struct {
	*httptest.Server

	loginHTML string
	tileBody  []byte
	tileCT    string
	coverage  string

	mu        sync.Mutex
	requests  int
	logins    int
	loginForm url.Values
	downloads []string
	delay     time.Duration
}

// stall makes every download response sit for d before answering.
func (s *eeServer) stall(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

func newEEServer(t *testing.T) *eeServer {
	t.Helper()
	s := &eeServer{
		loginHTML: loginPageHTML,
		tileBody:  []byte("tiff payload"),
		tileCT:    "image/tiff",
		coverage:  coverageWithHole,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests++
		s.mu.Unlock()
		switch {
		case r.URL.Path == "/" && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(s.loginHTML))
		case r.URL.Path == "/" && r.Method == http.MethodPost:
			if err := r.ParseForm(); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			s.mu.Lock()
			s.logins++
			s.loginForm = r.PostForm
			s.mu.Unlock()
		case strings.HasPrefix(r.URL.Path, "/download/"):
			s.mu.Lock()
			s.downloads = append(s.downloads, r.URL.Path)
			delay := s.delay
			s.mu.Unlock()
			if delay > 0 {
				time.Sleep(delay)
			}
			w.Header().Set("Content-Type", s.tileCT)
			_, _ = w.Write(s.tileBody)
		case strings.HasPrefix(r.URL.Path, "/coverage/"):
			w.Header().Set("Content-Type", "application/vnd.google-earth.kml+xml")
			_, _ = w.Write([]byte(s.coverage))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *eeServer) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func testConfig(srv *eeServer) Config {
	cfg := DefaultConfig()
	cfg.User = "grace"
	cfg.Password = "hopper"
	cfg.LoginURL = srv.URL + "/"
	cfg.BaseURLs = map[int]string{
		1: srv.URL + "/download/SRTM1%sV3/EE",
		3: srv.URL + "/download/SRTM3%sV2/EE",
	}
	cfg.CoverageURL = srv.URL + "/coverage/srtmgl%d.kml"
	return cfg
}

func newTestSRTM(t *testing.T, srv *eeServer, store index.Store) *SRTM {
	t.Helper()
	return newTestSRTMWithConfig(t, srv, testConfig(srv), store)
}

func newTestSRTMWithConfig(t *testing.T, srv *eeServer, cfg Config, store index.Store) *SRTM {
	t.Helper()
	cache, err := diskcache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if store == nil {
		store = &memStore{}
	}
	s, err := New(cfg, cache, map[int]index.Store{1: store, 3: store}, zerolog.Nop(), srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestGetTileDownloadsAndCaches(t *testing.T) {
	srv := newEEServer(t)
	s := newTestSRTM(t, srv, &memStore{names: []string{"N00E000"}})
	ctx := context.Background()

	path, err := s.GetTile(ctx, "N00E000", 1)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("tile not on disk: %v", err)
	}
	if string(raw) != "tiff payload" {
		t.Errorf("tile content %q", raw)
	}
	if srv.logins != 1 {
		t.Errorf("logged in %d times, want 1", srv.logins)
	}
	if len(srv.downloads) != 1 || srv.downloads[0] != "/download/SRTM1N00E000V3/EE" {
		t.Errorf("downloads = %v", srv.downloads)
	}
	// credentials and anti-forgery tokens are both submitted
	for key, want := range map[string]string{
		"username": "grace", "password": "hopper",
		"csrf_token": "abc123", "__ncforminfo": "deadbeef",
	} {
		if got := srv.loginForm.Get(key); got != want {
			t.Errorf("login form %s = %q, want %q", key, got, want)
		}
	}

	// second request is served from the local cache, no network at all
	before := srv.requestCount()
	again, err := s.GetTile(ctx, "N00E000", 1)
	if err != nil {
		t.Fatalf("cached GetTile: %v", err)
	}
	if again != path {
		t.Errorf("cached path %q differs from %q", again, path)
	}
	if srv.requestCount() != before {
		t.Errorf("cached hit made %d network requests", srv.requestCount()-before)
	}
}

func TestGetTileLowercaseName(t *testing.T) {
	srv := newEEServer(t)
	s := newTestSRTM(t, srv, &memStore{names: []string{"N00E000"}})

	path, err := s.GetTile(context.Background(), "n00e000", 1)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if !strings.HasSuffix(path, "N00E000.tif") {
		t.Errorf("path %q not canonicalized", path)
	}
}

func TestGetTileOutsideCoverageSkipsNetwork(t *testing.T) {
	srv := newEEServer(t)
	s := newTestSRTM(t, srv, &memStore{names: []string{"N00E000"}})

	_, err := s.GetTile(context.Background(), "S42W073", 1)
	if !errors.Is(err, source.ErrTileNotFound) {
		t.Fatalf("GetTile error = %v, want ErrTileNotFound", err)
	}
	if n := srv.requestCount(); n != 0 {
		t.Errorf("index miss made %d network requests, want 0", n)
	}
}

func TestGetTileBuildsIndexFromCoverage(t *testing.T) {
	srv := newEEServer(t)
	store := &memStore{}
	s := newTestSRTM(t, srv, store)
	ctx := context.Background()

	// N01E001 is inside the coverage hole
	if _, err := s.GetTile(ctx, "N01E001", 1); !errors.Is(err, source.ErrTileNotFound) {
		t.Fatalf("hole tile error = %v, want ErrTileNotFound", err)
	}
	path, err := s.GetTile(ctx, "N01E000", 1)
	if err != nil {
		t.Fatalf("covered tile: %v", err)
	}
	if path == "" {
		t.Error("empty path for downloaded tile")
	}
	// the built index was persisted
	if names, err := store.Load(ctx); err != nil || len(names) != 8 {
		t.Errorf("persisted index: %v, %v (want 8 tiles)", names, err)
	}
}

func TestGetTileJSONErrorBody(t *testing.T) {
	srv := newEEServer(t)
	srv.tileCT = "application/json"
	srv.tileBody = []byte(`{"errorMessage":"Invalid scene or product for download"}`)
	s := newTestSRTM(t, srv, &memStore{names: []string{"N00E000"}})

	_, err := s.GetTile(context.Background(), "N00E000", 1)
	if !errors.Is(err, source.ErrTileNotFound) {
		t.Fatalf("GetTile error = %v, want ErrTileNotFound", err)
	}
}

func TestGetTileUnexpectedContentType(t *testing.T) {
	srv := newEEServer(t)
	srv.tileCT = "text/html; charset=utf-8"
	srv.tileBody = []byte("<html>server side error page</html>")
	s := newTestSRTM(t, srv, &memStore{names: []string{"N00E000"}})

	_, err := s.GetTile(context.Background(), "N00E000", 1)
	var ctErr *source.ContentTypeError
	if !errors.As(err, &ctErr) {
		t.Fatalf("GetTile error = %v, want ContentTypeError", err)
	}
	if ctErr.ContentType != "text/html; charset=utf-8" {
		t.Errorf("reported content type %q", ctErr.ContentType)
	}
}

func TestGetTileUnrecognizedJSONError(t *testing.T) {
	srv := newEEServer(t)
	srv.tileCT = "application/json"
	srv.tileBody = []byte(`{"errorMessage":"quota exceeded"}`)
	s := newTestSRTM(t, srv, &memStore{names: []string{"N00E000"}})

	_, err := s.GetTile(context.Background(), "N00E000", 1)
	var ctErr *source.ContentTypeError
	if !errors.As(err, &ctErr) {
		t.Fatalf("unrecognized message error = %v, want ContentTypeError", err)
	}
}

func TestGetTileDownloadTimeout(t *testing.T) {
	srv := newEEServer(t)
	srv.stall(500 * time.Millisecond)
	cfg := testConfig(srv)
	cfg.Timeout = 20 * time.Millisecond
	s := newTestSRTMWithConfig(t, srv, cfg, &memStore{names: []string{"N00E000"}})

	_, err := s.GetTile(context.Background(), "N00E000", 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("GetTile error = %v, want deadline exceeded", err)
	}
	// a slow server is an acquisition failure, not an account problem
	var authErr *source.AuthError
	if errors.As(err, &authErr) {
		t.Fatal("timeout reported as auth failure")
	}
}

func TestLoginWrongTitle(t *testing.T) {
	srv := newEEServer(t)
	srv.loginHTML = `<html><head><title>Scheduled Maintenance</title></head><body></body></html>`
	s := newTestSRTM(t, srv, &memStore{names: []string{"N00E000"}})

	_, err := s.GetTile(context.Background(), "N00E000", 1)
	var authErr *source.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("GetTile error = %v, want AuthError", err)
	}
	if !strings.Contains(authErr.Reason, "Scheduled Maintenance") {
		t.Errorf("reason %q does not name the unexpected title", authErr.Reason)
	}
}

func TestLoginMissingForm(t *testing.T) {
	srv := newEEServer(t)
	srv.loginHTML = `<html><head><title>Login - EROS Registration System</title></head><body>no form today</body></html>`
	s := newTestSRTM(t, srv, &memStore{names: []string{"N00E000"}})

	_, err := s.GetTile(context.Background(), "N00E000", 1)
	var authErr *source.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("GetTile error = %v, want AuthError", err)
	}
}

func TestGetTileIndexUnavailable(t *testing.T) {
	srv := newEEServer(t)
	s := newTestSRTM(t, srv, &memStore{loadErr: errors.New("disk on fire")})

	_, err := s.GetTile(context.Background(), "N00E000", 1)
	var ixErr *source.IndexUnavailableError
	if !errors.As(err, &ixErr) {
		t.Fatalf("GetTile error = %v, want IndexUnavailableError", err)
	}
	if ixErr.Resolution != 1 {
		t.Errorf("Resolution = %d, want 1", ixErr.Resolution)
	}
}

func TestGetTileUnsupportedResolution(t *testing.T) {
	srv := newEEServer(t)
	s := newTestSRTM(t, srv, nil)
	if _, err := s.GetTile(context.Background(), "N00E000", 9); err == nil {
		t.Fatal("resolution 9 accepted")
	}
}

func TestInvalidateIndex(t *testing.T) {
	srv := newEEServer(t)
	store := &memStore{names: []string{"N00E000"}}
	s := newTestSRTM(t, srv, store)

	if err := s.InvalidateIndex(context.Background(), 1); err != nil {
		t.Fatalf("InvalidateIndex: %v", err)
	}
	if store.drops == 0 {
		t.Error("store was not dropped")
	}
	if err := s.InvalidateIndex(context.Background(), 9); err == nil {
		t.Error("resolution 9 accepted")
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	cache, err := diskcache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	if _, err := New(cfg, cache, nil, zerolog.Nop(), nil); err == nil {
		t.Fatal("missing credentials accepted")
	}
}

func TestRegisteredInPool(t *testing.T) {
	registered := source.Registered()
	for _, nick := range registered {
		if nick == Nickname {
			return
		}
	}
	t.Fatalf("srtm not registered: %v", registered)
}
