package scrapers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Factory builds scrapers by game name. Each scraper gets its own HTTP
// client so vendor sessions never bleed between instances.
type Factory struct {
	sites   map[string]Site
	timeout time.Duration
	logger  *zap.Logger
}

// NewFactory creates a factory over the builtin site table with credentials
// applied from the environment.
func NewFactory(timeout time.Duration, logger *zap.Logger) *Factory {
	sites := BuiltinSites()
	ApplyEnv(sites)
	return NewFactoryWithSites(sites, timeout, logger)
}

// NewFactoryWithSites creates a factory over a custom site table.
func NewFactoryWithSites(sites map[string]Site, timeout time.Duration, logger *zap.Logger) *Factory {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Factory{sites: sites, timeout: timeout, logger: logger}
}

// New instantiates a scraper for the given game.
func (f *Factory) New(game string) (Scraper, error) {
	site, ok := f.sites[strings.ToLower(strings.TrimSpace(game))]
	if !ok {
		return nil, fmt.Errorf("unsupported game: %s", game)
	}
	if err := site.validate(); err != nil {
		return nil, fmt.Errorf("invalid site config: %w", err)
	}

	client := &http.Client{Timeout: f.timeout}
	switch site.Family {
	case FamilySigned:
		return NewSignedClient(site, client, f.logger), nil
	case FamilyPanel:
		return NewPanelClient(site, client, f.logger), nil
	case FamilyConsole:
		return NewConsoleClient(site, client, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported game: %s", game)
	}
}

// Has reports whether a game name is known to the factory.
func (f *Factory) Has(game string) bool {
	_, ok := f.sites[strings.ToLower(strings.TrimSpace(game))]
	return ok
}

// Supported returns the sorted game names the factory can build.
func (f *Factory) Supported() []string {
	return SiteNames(f.sites)
}
