// Package srtm downloads NASA Shuttle Radar Topography Mission v3.0 tiles
// from USGS EarthExplorer. Access requires an EROS account; authentication is
// cookie-session based, and tile existence is derived from the published
// world coverage map.
package srtm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tilecast/hgtfetch/internal/cache/diskcache"
	"github.com/tilecast/hgtfetch/internal/core/httpclient"
	"github.com/tilecast/hgtfetch/internal/core/observability"
	"github.com/tilecast/hgtfetch/internal/source"
	"github.com/tilecast/hgtfetch/internal/source/index"
)

const (
	Nickname      = "srtm"
	fileExtension = "tif"

	banner = "You're downloading from NASA Shuttle Radar Topography Mission v3.0. Please " +
		"consider visiting https://www.earthdata.nasa.gov/news/nasa-shuttle-radar-topography-mission-srtm-version-3-0-global-1-arc-second-data-released-over-asia-and-australia to support the author."
)

var supportedResolutions = []int{1, 3}

func init() {
	source.Register(Nickname, func(d source.Deps) (source.Source, error) {
		return NewFromDeps(d)
	})
}

type Config struct {
	User     string
	Password string

	// BaseURLs maps arc-second resolution to a download URL template taking
	// the tile identifier.
	BaseURLs map[int]string
	// CoverageURL is a template taking the resolution, serving the KML
	// coverage manifest.
	CoverageURL string

	LoginURL   string
	LoginTitle string

	// ContentType a successful tile download must declare.
	ContentType string
	// ErrorPatterns are errorMessage substrings in a JSON body that mean the
	// tile does not exist (the backend answers HTTP 200 for those). The list
	// tracks an undocumented remote API and is deliberately configurable.
	ErrorPatterns []string

	// Timeout bounds a single tile download, login included. Zero adds no
	// bound; the caller's context deadline then governs.
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURLs: map[int]string{
			1: "https://earthexplorer.usgs.gov/download/5e83a3efe0103743/SRTM1%sV3/EE",
			3: "https://earthexplorer.usgs.gov/download/5e83a43cb348f8ec/SRTM3%sV2/EE",
		},
		CoverageURL:   "https://dds.cr.usgs.gov/ee-data/coveragemaps/kml/ee/srtm_v3_srtmgl%d.kml",
		LoginURL:      "https://ers.cr.usgs.gov/",
		LoginTitle:    "Login - EROS Registration System",
		ContentType:   "image/tiff",
		ErrorPatterns: []string{"Invalid scene or product"},
	}
}

// urlForTile returns the download URL for a tile at the given resolution.
func (c Config) urlForTile(resolution int, tileName string) string {
	return fmt.Sprintf(c.BaseURLs[resolution], tileName)
}

type SRTM struct {
	cfg     Config
	log     zerolog.Logger
	cache   *diskcache.Cache
	indexes map[int]*index.Index

	// plain performs unauthenticated requests (coverage manifest).
	plain *http.Client
	// newClient builds the session client on first authenticated use.
	newClient func() (*http.Client, error)

	clientMu sync.Mutex
	client   *http.Client
}

var (
	_ source.Source           = (*SRTM)(nil)
	_ source.IndexInvalidator = (*SRTM)(nil)
)

// NewFromDeps builds the source from shared configuration, choosing the index
// backend and cache location it specifies.
func NewFromDeps(d source.Deps) (*SRTM, error) {
	cfg := DefaultConfig()
	cfg.User = d.Config.SRTMUser
	cfg.Password = d.Config.SRTMPassword
	if len(d.Config.SRTMErrorPatterns) > 0 {
		cfg.ErrorPatterns = d.Config.SRTMErrorPatterns
	}
	cfg.Timeout = d.Config.DownloadTimeout

	stores := make(map[int]index.Store, len(supportedResolutions))
	switch d.Config.IndexBackend {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rdb, err := index.Dial(ctx, d.Config.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("srtm index backend: %w", err)
		}
		for _, res := range supportedResolutions {
			stores[res] = index.NewRedisStore(rdb, Nickname, res)
		}
	default:
		for _, res := range supportedResolutions {
			stores[res] = index.NewFileStore(d.Config.ConfigDir, Nickname, res)
		}
	}

	cache, err := diskcache.New(d.Config.CacheDir)
	if err != nil {
		return nil, err
	}
	return New(cfg, cache, stores, d.Logger, d.Client)
}

// New builds the source from explicit parts. A non-nil client replaces both
// the session and the plain client; tests use this to point at doubles.
func New(cfg Config, cache *diskcache.Cache, stores map[int]index.Store, log zerolog.Logger, client *http.Client) (*SRTM, error) {
	if cfg.User == "" || cfg.Password == "" {
		return nil, errors.New("srtm user and password are required")
	}
	s := &SRTM{
		cfg:       cfg,
		log:       log,
		cache:     cache,
		indexes:   make(map[int]*index.Index, len(stores)),
		plain:     httpclient.NewOutbound(),
		newClient: httpclient.NewSession,
	}
	if client != nil {
		s.plain = client
		s.newClient = func() (*http.Client, error) { return client, nil }
	}
	for res, st := range stores {
		s.indexes[res] = index.New(Nickname, res, st, s.coverageBuilder(res), log)
	}
	return s, nil
}

func (s *SRTM) Nickname() string      { return Nickname }
func (s *SRTM) FileExtension() string { return fileExtension }
func (s *SRTM) Banner() string        { return banner }

func (s *SRTM) Resolutions() []int {
	return slices.Clone(supportedResolutions)
}

// GetTile returns the local path of a tile, downloading it when needed.
// Cached tiles and tiles absent from the existence index never touch the
// network.
func (s *SRTM) GetTile(ctx context.Context, tileName string, resolution int) (string, error) {
	tileName = strings.ToUpper(tileName)
	ix, ok := s.indexes[resolution]
	if !ok {
		return "", fmt.Errorf("srtm does not provide %d arc-second tiles", resolution)
	}

	path := s.cache.Path(Nickname, resolution, tileName, fileExtension)
	if s.cache.Exists(path) {
		observability.IncDiskCacheHit(Nickname)
		return path, nil
	}
	observability.IncDiskCacheMiss(Nickname)

	covered, err := ix.Contains(ctx, tileName)
	if err != nil {
		return "", &source.IndexUnavailableError{Source: Nickname, Resolution: resolution, Err: err}
	}
	if !covered {
		s.log.Debug().Str("tile", tileName).Int("res", resolution).Msg("not part of srtm coverage")
		return "", fmt.Errorf("%s not in srtm%d coverage: %w", tileName, resolution, source.ErrTileNotFound)
	}

	payload, err := s.download(ctx, tileName, resolution)
	if err != nil {
		return "", err
	}
	if err := s.cache.Write(path, payload); err != nil {
		return "", fmt.Errorf("cache tile %s: %w", tileName, err)
	}
	s.log.Info().Str("tile", tileName).Int("res", resolution).Int("bytes", len(payload)).Msg("tile downloaded")
	return path, nil
}

// InvalidateIndex drops the persisted existence index for one resolution.
func (s *SRTM) InvalidateIndex(ctx context.Context, resolution int) error {
	ix, ok := s.indexes[resolution]
	if !ok {
		return fmt.Errorf("srtm does not provide %d arc-second tiles", resolution)
	}
	return ix.Invalidate(ctx)
}

func (s *SRTM) coverageBuilder(resolution int) index.Builder {
	return func(ctx context.Context) ([]string, error) {
		u := fmt.Sprintf(s.cfg.CoverageURL, resolution)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("coverage request: %w", err)
		}
		resp, err := s.plain.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch coverage manifest: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch coverage manifest: status %s", resp.Status)
		}
		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read coverage manifest: %w", err)
		}
		return areasFromKML(payload)
	}
}

// session returns the authenticated client, logging in on first use. The
// bootstrap is mutually exclusive so a single login submission is in flight.
func (s *SRTM) session(ctx context.Context) (*http.Client, error) {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	client, err := s.login(ctx)
	if err != nil {
		return nil, err
	}
	s.client = client
	return client, nil
}

// login fetches the login page, verifies its shape, and submits credentials
// together with every hidden field the form carried.
func (s *SRTM) login(ctx context.Context) (*http.Client, error) {
	client, err := s.newClient()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.LoginURL, nil)
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch login page: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read login page: %w", err)
	}

	page, err := parseLoginPage(body)
	if err != nil {
		return nil, &source.AuthError{Source: Nickname, Reason: err.Error()}
	}
	if page.title != s.cfg.LoginTitle {
		return nil, &source.AuthError{Source: Nickname, Reason: fmt.Sprintf("unexpected login page title %q", page.title)}
	}
	if !page.hasForm {
		return nil, &source.AuthError{Source: Nickname, Reason: "login form not found"}
	}

	form := url.Values{}
	form.Set("username", s.cfg.User)
	form.Set("password", s.cfg.Password)
	for k, vs := range page.hidden {
		for _, v := range vs {
			form.Set(k, v)
		}
	}

	// Post back to wherever the redirects landed us.
	postURL := s.cfg.LoginURL
	if resp.Request != nil && resp.Request.URL != nil {
		postURL = resp.Request.URL.String()
	}
	postReq, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("login submission: %w", err)
	}
	postReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	postResp, err := client.Do(postReq)
	if err != nil {
		return nil, fmt.Errorf("submit login: %w", err)
	}
	_, _ = io.Copy(io.Discard, postResp.Body)
	_ = postResp.Body.Close()
	if postResp.StatusCode >= http.StatusBadRequest {
		return nil, &source.AuthError{Source: Nickname, Reason: fmt.Sprintf("login rejected with status %s", postResp.Status)}
	}

	s.log.Info().Str("user", s.cfg.User).Msg("logged in to earthexplorer")
	return client, nil
}

func (s *SRTM) download(ctx context.Context, tileName string, resolution int) ([]byte, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	client, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	u := s.cfg.urlForTile(resolution, tileName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("download request: %w", err)
	}

	start := time.Now()
	resp, err := client.Do(req)
	observability.ObserveDownload(Nickname, err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", tileName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %s", tileName, resp.Status)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tile %s: %w", tileName, err)
	}

	declared := resp.Header.Get("Content-Type")
	if mediaType(declared) == s.cfg.ContentType {
		return payload, nil
	}
	// Some backends answer HTTP 200 with a JSON error body for tiles they do
	// not have; only recognized messages count as not-found.
	if s.isNotFoundBody(payload) {
		return nil, fmt.Errorf("srtm%d has no tile %s: %w", resolution, tileName, source.ErrTileNotFound)
	}
	return nil, &source.ContentTypeError{Source: Nickname, Tile: tileName, ContentType: declared}
}

func (s *SRTM) isNotFoundBody(payload []byte) bool {
	var body struct {
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.ErrorMessage == "" {
		return false
	}
	for _, pat := range s.cfg.ErrorPatterns {
		if strings.Contains(body.ErrorMessage, pat) {
			return true
		}
	}
	return false
}

func mediaType(header string) string {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return header
	}
	return mt
}
