// Package bsky fetches location-bearing posts from Bluesky over the AT
// Protocol. Targets are resolved from handles or DIDs, locations come
// from geo:<lat>,<lon> self-tags on posts. Reads work unauthenticated
// through the public AppView; configuring an identifier and app
// password switches to an authenticated PDS session.
package bsky

import (
	"context"
	"net/http"
	"strings"
	"sync"

	appbsky "github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/xrpc"

	"github.com/geosift/geosift/config"
	"github.com/geosift/geosift/errors"
	"github.com/geosift/geosift/geo"
	"github.com/geosift/geosift/logger"
	"github.com/geosift/geosift/plugin"
)

// DriverName is the factory name manifests select this plugin by.
const DriverName = "bsky"

const (
	defaultPDSHost    = "https://bsky.social"
	publicAppViewHost = "https://public.api.bsky.app"

	defaultPageSize = 50
	maxPageSize     = 100 // feed endpoint cap
)

func init() {
	plugin.RegisterFactory(DriverName, New)
}

// Plugin reads author feeds from Bluesky.
type Plugin struct {
	manifest *plugin.Manifest
	store    *config.Store

	mu         sync.RWMutex
	httpClient *http.Client
	client     *xrpc.Client
	did        string
}

// New builds the plugin around its manifest and settings store.
func New(manifest *plugin.Manifest, store *config.Store) (plugin.Plugin, error) {
	return &Plugin{manifest: manifest, store: store, httpClient: defaultHTTPClient()}, nil
}

// SetHTTPClient overrides the transport, dropping any live session.
// Tests use it to reach local servers the guarded client refuses.
func (p *Plugin) SetHTTPClient(client *http.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.httpClient = client
	p.client = nil
	p.did = ""
}

func (p *Plugin) Descriptor() plugin.Descriptor {
	if p.manifest != nil {
		return p.manifest.Descriptor()
	}
	return plugin.Descriptor{
		Name:        DriverName,
		Category:    "social",
		Version:     "1.0.0",
		Description: "Bluesky posts over the AT Protocol",
	}
}

// IsConfigured accepts the zero config: without credentials reads go
// through the public AppView. Half-entered credentials are the only
// unconfigured state.
func (p *Plugin) IsConfigured() (bool, string) {
	identifier, appPassword := p.credentials()
	if identifier != "" && appPassword == "" {
		return false, "app_password is required when identifier is set"
	}
	if identifier == "" && appPassword != "" {
		return false, "identifier is required when app_password is set"
	}
	return true, ""
}

func (p *Plugin) Config() *config.Store {
	return p.store
}

func (p *Plugin) ConfigSchema() map[string]plugin.ConfigField {
	return map[string]plugin.ConfigField{
		"pds_host": {
			Type:        "string",
			Description: "PDS host URL for XRPC requests",
			Default:     defaultPDSHost,
		},
		"identifier": {
			Type:        "string",
			Description: "Handle or DID for authentication (e.g. user.bsky.social)",
		},
		"app_password": {
			Type:        "string",
			Description: "App password for authentication, generated under Settings > App Passwords",
			Secret:      true,
		},
	}
}

// RateLimit passes through the manifest's declared budget, defaulting
// to a rate the AppView tolerates from anonymous clients.
func (p *Plugin) RateLimit() plugin.RateLimit {
	if p.manifest != nil && p.manifest.RateLimit != nil {
		return *p.manifest.RateLimit
	}
	return plugin.RateLimit{MaxCalls: 100, WindowSeconds: 60}
}

// Activate establishes the XRPC session a fetch run will use.
func (p *Plugin) Activate(ctx context.Context) error {
	_, err := p.ensureClient(ctx)
	return err
}

// Deactivate drops the session.
func (p *Plugin) Deactivate(ctx context.Context) error {
	p.mu.Lock()
	p.client = nil
	p.did = ""
	p.mu.Unlock()
	return nil
}

// SearchForTargets resolves a handle or DID into one target, enriched
// from the actor's profile.
func (p *Plugin) SearchForTargets(ctx context.Context, query string) ([]geo.Target, error) {
	query = strings.TrimPrefix(strings.TrimSpace(query), "@")
	if query == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "empty search query")
	}

	client, err := p.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	did := query
	if !strings.HasPrefix(query, "did:") {
		did, err = resolveHandle(ctx, client, query)
		if err != nil {
			return nil, err
		}
	}

	profile, err := appbsky.ActorGetProfile(ctx, client, did)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching profile for %s", did)
	}

	display := profile.Handle
	if profile.DisplayName != nil && *profile.DisplayName != "" {
		display = *profile.DisplayName
	}
	avatar := ""
	if profile.Avatar != nil {
		avatar = *profile.Avatar
	}

	return []geo.Target{{
		PluginName:  p.Descriptor().Name,
		ExternalID:  profile.Did,
		DisplayName: display,
		AvatarRef:   avatar,
	}}, nil
}

// ReturnLocations fetches one page of the target's author feed. The
// cursor is the AppView's own continuation token, passed through
// opaquely. Untagged posts still become records; they drop later at
// standardization.
func (p *Plugin) ReturnLocations(ctx context.Context, target geo.Target, params plugin.FetchParams) (plugin.Page, error) {
	client, err := p.ensureClient(ctx)
	if err != nil {
		return plugin.Page{}, err
	}

	limit := int64(params.PageSize)
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	resp, err := appbsky.FeedGetAuthorFeed(ctx, client, target.ExternalID, params.Cursor, "", false, limit)
	if err != nil {
		return plugin.Page{}, errors.Wrapf(err, "fetching feed for %s", target.ExternalID)
	}

	cursor := ""
	if resp.Cursor != nil {
		cursor = *resp.Cursor
	}
	return plugin.Page{Records: feedRecords(resp.Feed), Cursor: cursor}, nil
}

// ensureClient returns the active client, connecting on first use so
// target search works without a prior Activate.
func (p *Plugin) ensureClient(ctx context.Context) (*xrpc.Client, error) {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()
	if client != nil {
		return client, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	identifier, appPassword := p.credentials()
	if identifier != "" && appPassword != "" {
		client := &xrpc.Client{Host: p.sessionHost(), Client: p.httpClient}
		did, err := createSession(ctx, client, identifier, appPassword)
		if err != nil {
			return nil, err
		}
		p.client = client
		p.did = did
		logger.Infow("Authenticated with PDS",
			"host", p.sessionHost(),
			"did", did)
		return p.client, nil
	}

	p.client = &xrpc.Client{Host: p.readHost(), Client: p.httpClient}
	logger.Debugw("Using unauthenticated AppView client", "host", p.readHost())
	return p.client, nil
}

// sessionHost is where authenticated sessions are created.
func (p *Plugin) sessionHost() string {
	if host := p.configuredHost(); host != "" {
		return host
	}
	return defaultPDSHost
}

// readHost serves unauthenticated reads. The PDS rejects anonymous feed
// requests, so the fallback is the public AppView rather than bsky.social.
func (p *Plugin) readHost() string {
	if host := p.configuredHost(); host != "" {
		return host
	}
	return publicAppViewHost
}

func (p *Plugin) configuredHost() string {
	if p.store == nil {
		return ""
	}
	return strings.TrimSpace(p.store.StringOption("pds_host"))
}

func (p *Plugin) credentials() (identifier, appPassword string) {
	if p.store == nil {
		return "", ""
	}
	return strings.TrimSpace(p.store.StringOption("identifier")),
		strings.TrimSpace(p.store.StringOption("app_password"))
}

var (
	_ plugin.Plugin       = (*Plugin)(nil)
	_ plugin.Activatable  = (*Plugin)(nil)
	_ plugin.Configurable = (*Plugin)(nil)
	_ plugin.RateLimited  = (*Plugin)(nil)
)
