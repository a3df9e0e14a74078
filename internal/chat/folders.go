package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	gocache "github.com/patrickmn/go-cache"

	"github.com/companygpt/sidekick/internal/browser"
	"github.com/companygpt/sidekick/internal/config"
	"github.com/companygpt/sidekick/internal/httpx"
)

// Folder is a server-side chat or knowledge-base folder. Only MEDIA
// folders are selectable as knowledge bases; the single ROOT_CHAT folder
// is the default chat folder.
type Folder struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Shared bool   `json:"shared,omitempty"`
}

const (
	FolderTypeRootChat = "ROOT_CHAT"
	FolderTypeMedia    = "MEDIA"
)

// AssistantRole is a server-side assistant role.
type AssistantRole struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Default bool   `json:"defaultRole,omitempty"`
}

// Directory loads and caches the tenant's folders and roles. With a
// storage surface attached, the last folder list also survives restarts
// and bridges backend outages.
type Directory struct {
	cfg     *config.Config
	broker  *httpx.Broker
	cache   *gocache.Cache
	storage browser.Storage
	logger  *log.Logger

	// URL hooks for tests.
	foldersURL func(tenant string) string
	rolesURL   func(tenant string) string
}

// NewDirectory builds the directory. storage may be nil; folders are then
// only cached in memory.
func NewDirectory(cfg *config.Config, broker *httpx.Broker, storage browser.Storage, logger *log.Logger) *Directory {
	if logger == nil {
		logger = log.Default()
	}
	return &Directory{
		cfg:        cfg,
		broker:     broker,
		cache:      gocache.New(cfg.FolderCacheTTL, cfg.FolderCacheTTL),
		storage:    storage,
		logger:     logger.With("component", "chat"),
		foldersURL: cfg.FoldersURL,
		rolesURL:   cfg.RolesURL,
	}
}

// Folders returns the tenant's folder list, cached for the configured TTL.
// The bootstrap retry policy applies: a tenant backend still warming up
// answers with retryable statuses.
func (d *Directory) Folders(ctx context.Context, tenant string) ([]Folder, error) {
	if cached, ok := d.cache.Get("folders:" + tenant); ok {
		return cached.([]Folder), nil
	}

	resp := d.broker.RequestWithRetry(ctx, httpx.Request{
		URL:    d.foldersURL(tenant),
		Method: http.MethodGet,
	})
	if !resp.OK {
		if stale, ok := d.persistedFolders(ctx, tenant); ok {
			d.logger.Warn("folders unreachable, serving persisted list", "tenant", tenant, "error", resp.Err)
			return stale, nil
		}
		return nil, fmt.Errorf("failed to load folders: %s", resp.Err)
	}

	var payload struct {
		Folders []Folder `json:"folders"`
	}
	if err := decodeData(resp.Data, &payload); err != nil {
		return nil, fmt.Errorf("unexpected folders payload: %w", err)
	}

	d.cache.Set("folders:"+tenant, payload.Folders, gocache.DefaultExpiration)
	d.persistFolders(ctx, tenant, payload.Folders)
	d.logger.Debug("loaded folders", "tenant", tenant, "count", len(payload.Folders))
	return payload.Folders, nil
}

// persistFolders writes the folder list to durable storage, keyed per
// tenant, so a later session can fall back to it when the backend is
// unreachable.
func (d *Directory) persistFolders(ctx context.Context, tenant string, folders []Folder) {
	if d.storage == nil {
		return
	}
	raw, err := json.Marshal(folders)
	if err != nil {
		return
	}
	if err := d.storage.Set(ctx, browser.KeyFoldersCache+":"+tenant, string(raw)); err != nil {
		d.logger.Warn("folder cache write failed", "tenant", tenant, "error", err)
	}
}

func (d *Directory) persistedFolders(ctx context.Context, tenant string) ([]Folder, bool) {
	if d.storage == nil {
		return nil, false
	}
	raw, ok, err := d.storage.Get(ctx, browser.KeyFoldersCache+":"+tenant)
	if err != nil || !ok || raw == "" {
		return nil, false
	}
	var folders []Folder
	if err := json.Unmarshal([]byte(raw), &folders); err != nil {
		return nil, false
	}
	return folders, true
}

// RootChatFolder returns the id of the tenant's ROOT_CHAT folder.
func (d *Directory) RootChatFolder(ctx context.Context, tenant string) (string, error) {
	folders, err := d.Folders(ctx, tenant)
	if err != nil {
		return "", err
	}
	for _, f := range folders {
		if f.Type == FolderTypeRootChat {
			return f.ID, nil
		}
	}
	return "", fmt.Errorf("no ROOT_CHAT folder for tenant %q", tenant)
}

// MediaFolders returns the selectable knowledge-base folders.
func (d *Directory) MediaFolders(ctx context.Context, tenant string) ([]Folder, error) {
	folders, err := d.Folders(ctx, tenant)
	if err != nil {
		return nil, err
	}
	var media []Folder
	for _, f := range folders {
		if f.Type == FolderTypeMedia {
			media = append(media, f)
		}
	}
	return media, nil
}

// Roles returns the tenant's roles, cached alongside the folders.
func (d *Directory) Roles(ctx context.Context, tenant string) ([]AssistantRole, error) {
	if cached, ok := d.cache.Get("roles:" + tenant); ok {
		return cached.([]AssistantRole), nil
	}

	resp := d.broker.RequestWithRetry(ctx, httpx.Request{
		URL:    d.rolesURL(tenant),
		Method: http.MethodGet,
	})
	if !resp.OK {
		return nil, fmt.Errorf("failed to load roles: %s", resp.Err)
	}

	var payload struct {
		Roles []json.RawMessage `json:"roles"`
	}
	if err := decodeData(resp.Data, &payload); err != nil {
		return nil, fmt.Errorf("unexpected roles payload: %w", err)
	}

	roles := make([]AssistantRole, 0, len(payload.Roles))
	for _, raw := range payload.Roles {
		// The roles endpoint is inconsistent: some deployments key the id
		// as "roleId".
		var item struct {
			ID      string `json:"id"`
			RoleID  string `json:"roleId"`
			Name    string `json:"name"`
			Default bool   `json:"defaultRole"`
		}
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		id := item.ID
		if id == "" {
			id = item.RoleID
		}
		roles = append(roles, AssistantRole{ID: id, Name: item.Name, Default: item.Default})
	}

	d.cache.Set("roles:"+tenant, roles, gocache.DefaultExpiration)
	return roles, nil
}

// DefaultRole returns the role flagged as default, else the first.
func (d *Directory) DefaultRole(ctx context.Context, tenant string) (AssistantRole, error) {
	roles, err := d.Roles(ctx, tenant)
	if err != nil {
		return AssistantRole{}, err
	}
	if len(roles) == 0 {
		return AssistantRole{}, fmt.Errorf("no roles for tenant %q", tenant)
	}
	for _, r := range roles {
		if r.Default {
			return r, nil
		}
	}
	return roles[0], nil
}

// Invalidate drops the tenant's cached folders and roles, forcing a
// reload on next access.
func (d *Directory) Invalidate(tenant string) {
	d.cache.Delete("folders:" + tenant)
	d.cache.Delete("roles:" + tenant)
}

// decodeData re-marshals a loosely-typed response body into a concrete
// shape.
func decodeData(data any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
