// internal/deck/provider.go
package deck

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Default upstream endpoints.
const (
	DefaultSWAPIURL   = "https://swapi.dev/api/people/?page=1"
	DefaultPokeAPIURL = "https://pokeapi.co/api/v2/pokemon"
)

// Provider supplies the distinct card values of a theme.
type Provider interface {
	// Values returns the configured number of distinct values for the
	// theme. It never fails; upstream problems are absorbed by fallback data.
	Values(ctx context.Context, theme string) []string
}

// Config configures a ThemeProvider.
type Config struct {
	HTTPClient   *http.Client
	Pairs        int
	FetchTimeout time.Duration
	CacheTTL     time.Duration
	SWAPIURL     string
	PokeAPIURL   string
	Logger       *logrus.Logger
}

// ThemeProvider fetches themed values from public APIs and caches them.
type ThemeProvider struct {
	client     *http.Client
	pairs      int
	timeout    time.Duration
	ttl        time.Duration
	swapiURL   string
	pokeAPIURL string
	logger     *logrus.Logger
	cache      *ristretto.Cache

	mu sync.Mutex // serializes upstream fetches per provider
}

// NewThemeProvider builds a provider with a local ristretto cache.
func NewThemeProvider(cfg Config) (*ThemeProvider, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create theme cache: %w", err)
	}
	p := &ThemeProvider{
		client:     cfg.HTTPClient,
		pairs:      ClampPairs(cfg.Pairs),
		timeout:    cfg.FetchTimeout,
		ttl:        cfg.CacheTTL,
		swapiURL:   cfg.SWAPIURL,
		pokeAPIURL: cfg.PokeAPIURL,
		logger:     cfg.Logger,
		cache:      cache,
	}
	if p.client == nil {
		p.client = http.DefaultClient
	}
	if p.timeout <= 0 {
		p.timeout = 5 * time.Second
	}
	if p.ttl <= 0 {
		p.ttl = time.Hour
	}
	if p.swapiURL == "" {
		p.swapiURL = DefaultSWAPIURL
	}
	if p.pokeAPIURL == "" {
		p.pokeAPIURL = DefaultPokeAPIURL
	}
	if p.logger == nil {
		p.logger = logrus.StandardLogger()
	}
	return p, nil
}

// Close releases the cache.
func (p *ThemeProvider) Close() {
	p.cache.Close()
}

// Pairs reports how many distinct values Values returns.
func (p *ThemeProvider) Pairs() int {
	return p.pairs
}

// Values implements Provider.
func (p *ThemeProvider) Values(ctx context.Context, theme string) []string {
	theme = NormalizeTheme(theme)
	pairs := p.pairs
	if theme == ThemeEmoji {
		return fill(theme, nil, pairs)
	}

	key := fmt.Sprintf("%s:%d", theme, pairs)
	if values, ok := p.cached(key); ok {
		return values
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if values, ok := p.cached(key); ok {
		return values
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		values []string
		err    error
	)
	switch theme {
	case ThemeStarWars:
		values, err = p.fetchStarWars(fetchCtx, pairs)
	case ThemePokemon:
		values, err = p.fetchPokemon(fetchCtx, pairs)
	}
	if err != nil || len(values) < pairs {
		p.logger.WithFields(logrus.Fields{
			"theme": theme,
			"got":   len(values),
			"error": err,
		}).Warn("theme fetch failed, using fallback values")
		return fill(theme, nil, pairs)
	}

	values = fill(theme, values, pairs)
	p.cache.SetWithTTL(key, values, int64(len(values)), p.ttl)
	p.cache.Wait()
	return append([]string{}, values...)
}

func (p *ThemeProvider) cached(key string) ([]string, bool) {
	v, ok := p.cache.Get(key)
	if !ok {
		return nil, false
	}
	values, ok := v.([]string)
	if !ok {
		return nil, false
	}
	return append([]string{}, values...), true
}

// ClampPairs bounds a requested board size to what every theme can fill.
// Zero selects DefaultPairs.
func ClampPairs(pairs int) int {
	switch {
	case pairs == 0:
		return DefaultPairs
	case pairs < 2:
		return 2
	case pairs > MaxPairs:
		return MaxPairs
	default:
		return pairs
	}
}

func (p *ThemeProvider) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (p *ThemeProvider) fetchStarWars(ctx context.Context, pairs int) ([]string, error) {
	var page struct {
		Results []struct {
			Name string `json:"name"`
		} `json:"results"`
	}
	if err := p.getJSON(ctx, p.swapiURL, &page); err != nil {
		return nil, fmt.Errorf("swapi: %w", err)
	}
	names := make([]string, 0, pairs)
	for _, r := range page.Results {
		if len(names) == pairs {
			break
		}
		names = append(names, r.Name)
	}
	return names, nil
}

// fetchPokemon looks up pairs random first-generation pokemon concurrently.
func (p *ThemeProvider) fetchPokemon(ctx context.Context, pairs int) ([]string, error) {
	ids := rand.Perm(150)[:pairs]
	names := make([]string, pairs)

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id+1
		g.Go(func() error {
			var body struct {
				Name string `json:"name"`
			}
			if err := p.getJSON(gctx, fmt.Sprintf("%s/%d", strings.TrimRight(p.pokeAPIURL, "/"), id), &body); err != nil {
				return fmt.Errorf("pokeapi %d: %w", id, err)
			}
			names[i] = capitalize(body.Name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return names, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
