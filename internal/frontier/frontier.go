// internal/frontier/frontier.go
package frontier

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/config"
)

var (
	// ErrOutOfScope is returned by Normalize callers when a URL leaves the crawl's domain.
	ErrOutOfScope = errors.New("out of scope")
	// ErrStaticAsset marks URLs pointing at files the engine never visits.
	ErrStaticAsset = errors.New("static asset ignored")
)

// Frontier is a breadth-first crawl queue. It is safe for concurrent use.
type Frontier struct {
	mu        sync.Mutex
	queue     []schemas.CrawlTask
	seen      map[string]struct{}
	processed map[string]struct{}

	scope      *Scope
	maxDepth   int
	extensions map[string]struct{}
	logger     *zap.Logger
}

var _ schemas.Frontier = (*Frontier)(nil)

// New creates a Frontier scoped to startURL's registrable domain. The start
// URL itself is not enqueued.
func New(startURL string, cfg config.FrontierConfig, logger *zap.Logger) (*Frontier, error) {
	scope, err := NewScope(startURL, cfg.IncludeSubdomains)
	if err != nil {
		return nil, fmt.Errorf("failed to derive crawl scope: %w", err)
	}
	ext := make(map[string]struct{}, len(cfg.ExcludedExtensions))
	for _, e := range cfg.ExcludedExtensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		ext[e] = struct{}{}
	}
	return &Frontier{
		seen:       make(map[string]struct{}),
		processed:  make(map[string]struct{}),
		scope:      scope,
		maxDepth:   cfg.MaxDepth,
		extensions: ext,
		logger:     logger.Named("frontier"),
	}, nil
}

// AddURL enqueues rawURL at depth. It returns false when the URL is out of
// scope, deeper than the cap, a static asset, or already known.
func (f *Frontier) AddURL(rawURL string, depth int) bool {
	if depth > f.maxDepth {
		f.logger.Debug("Discarding URL beyond depth cap.", zap.String("url", rawURL), zap.Int("depth", depth))
		return false
	}
	u, err := f.normalizeAndValidate(rawURL)
	if err != nil {
		f.logger.Debug("Discarding URL.", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	key := u.String()

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[key]; ok {
		return false
	}
	f.seen[key] = struct{}{}
	f.queue = append(f.queue, schemas.CrawlTask{URL: key, Depth: depth})
	f.logger.Debug("URL enqueued.", zap.String("url", key), zap.Int("depth", depth))
	return true
}

// Next pops the oldest task.
func (f *Frontier) Next() (schemas.CrawlTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return schemas.CrawlTask{}, false
	}
	task := f.queue[0]
	f.queue[0] = schemas.CrawlTask{}
	f.queue = f.queue[1:]
	return task, true
}

// HasMore reports whether tasks remain.
func (f *Frontier) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue) > 0
}

// Len returns the number of queued tasks.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// MarkProcessed records that a URL has been visited.
func (f *Frontier) MarkProcessed(rawURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[normalizeKey(rawURL)] = struct{}{}
}

// IsProcessed reports whether a URL has been visited.
func (f *Frontier) IsProcessed(rawURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.processed[normalizeKey(rawURL)]
	return ok
}

// Scope exposes the crawl boundary.
func (f *Frontier) Scope() *Scope {
	return f.scope
}

func normalizeKey(rawURL string) string {
	u, err := Normalize(rawURL)
	if err != nil {
		return rawURL
	}
	return u.String()
}

func (f *Frontier) normalizeAndValidate(rawURL string) (*url.URL, error) {
	u, err := Normalize(rawURL)
	if err != nil {
		return nil, err
	}
	if !f.scope.Contains(u) {
		return nil, fmt.Errorf("%w: %s", ErrOutOfScope, u.String())
	}
	if _, ignore := f.extensions[strings.ToLower(path.Ext(u.Path))]; ignore {
		return nil, ErrStaticAsset
	}
	return u, nil
}

// Normalize cleans an absolute http(s) URL: default ports are dropped, an
// empty path becomes "/", the query is re-encoded in key order and the
// fragment is removed unless it is a hash route ("#/...").
func Normalize(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid URL format: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("relative URL without base: %s", rawURL)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) || (u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Hostname()
	}
	if u.Path == "" {
		u.Path = "/"
	}
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}
	if !strings.HasPrefix(u.Fragment, "/") {
		u.Fragment = ""
		u.RawFragment = ""
	}
	return u, nil
}
