package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const appName = "sidekick"

// Config is the main configuration structure for the assistant.
type Config struct {
	// Tenant addressing
	RootDomain        string `json:"rootDomain"`        // e.g. "company-gpt.com"
	SessionCookieName string `json:"sessionCookieName"` // auth cookie observed under .rootDomain

	// Chat API
	ChatPath    string  `json:"chatPath"`
	FoldersPath string  `json:"foldersPath"`
	RolesPath   string  `json:"rolesPath"`
	Model       Model   `json:"model"`
	Temperature float64 `json:"temperature"`

	// Timing
	AuthCacheTTL    time.Duration `json:"authCacheTTL"`
	AuthSnapshotMax time.Duration `json:"authSnapshotMax"` // persisted snapshot restore window
	CookieDebounce  time.Duration `json:"cookieDebounce"`
	TabDebounce     time.Duration `json:"tabDebounce"`
	SyncDebounce    time.Duration `json:"syncDebounce"`
	RetryBaseDelay  time.Duration `json:"retryBaseDelay"`
	FolderCacheTTL  time.Duration `json:"folderCacheTTL"`

	// Font stack applied to paragraphs written into the Outlook compose
	// editor.
	ComposeFontStack string `json:"composeFontStack"`

	// DocsExportBase overrides the Google Docs export origin; empty means
	// the real one.
	DocsExportBase string `json:"docsExportBase,omitempty"`

	// TenantOriginBase overrides the derived https://{tenant}.{rootDomain}
	// origin, for running against a single local backend.
	TenantOriginBase string `json:"tenantOriginBase,omitempty"`

	// Storage
	Data Data `json:"data"`

	// Message API listen address
	ListenAddr string `json:"listenAddr"`

	Debug bool `json:"debug"`
}

// Model describes the model descriptor sent with every chat request.
type Model struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MaxLength int    `json:"maxLength"`
}

// Data defines storage configuration.
type Data struct {
	Directory string `json:"directory,omitempty"`
}

// Load reads configuration from file and environment, falling back to
// defaults for anything unset.
func Load(configPath string, debug bool) (*Config, error) {
	configureViper()
	setDefaults()

	if configPath != "" {
		viper.SetConfigFile(configPath)
	}
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Debug = cfg.Debug || debug
	if cfg.Data.Directory == "" {
		cfg.Data.Directory = defaultDataDirectory()
	}
	return &cfg, nil
}

// Default returns the built-in configuration without touching disk. Tests
// and embedding callers use this as a starting point.
func Default() *Config {
	return &Config{
		RootDomain:        "company-gpt.com",
		SessionCookieName: "cgpt-session",
		ChatPath:          "/api/qr/chat",
		FoldersPath:       "/api/folders",
		RolesPath:         "/api/roles",
		Model: Model{
			ID:        "gpt-4o-mini",
			Name:      "GPT-4o mini",
			MaxLength: 24000,
		},
		Temperature:      0.2,
		AuthCacheTTL:     30 * time.Second,
		AuthSnapshotMax:  5 * time.Minute,
		CookieDebounce:   300 * time.Millisecond,
		TabDebounce:      time.Second,
		SyncDebounce:     50 * time.Millisecond,
		RetryBaseDelay:   800 * time.Millisecond,
		FolderCacheTTL:   10 * time.Minute,
		ComposeFontStack: "Calibri, Arial, Helvetica, sans-serif",
		Data:             Data{Directory: defaultDataDirectory()},
		ListenAddr:       "127.0.0.1:47821",
	}
}

func configureViper() {
	viper.SetConfigName(fmt.Sprintf(".%s", appName))
	viper.SetConfigType("json")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(fmt.Sprintf("$XDG_CONFIG_HOME/%s", appName))
	viper.AddConfigPath(fmt.Sprintf("$HOME/.config/%s", appName))
	viper.SetEnvPrefix(strings.ToUpper(appName))
	viper.AutomaticEnv()
}

func setDefaults() {
	d := Default()
	viper.SetDefault("rootDomain", d.RootDomain)
	viper.SetDefault("sessionCookieName", d.SessionCookieName)
	viper.SetDefault("chatPath", d.ChatPath)
	viper.SetDefault("foldersPath", d.FoldersPath)
	viper.SetDefault("rolesPath", d.RolesPath)
	viper.SetDefault("model.id", d.Model.ID)
	viper.SetDefault("model.name", d.Model.Name)
	viper.SetDefault("model.maxLength", d.Model.MaxLength)
	viper.SetDefault("temperature", d.Temperature)
	viper.SetDefault("authCacheTTL", d.AuthCacheTTL)
	viper.SetDefault("authSnapshotMax", d.AuthSnapshotMax)
	viper.SetDefault("cookieDebounce", d.CookieDebounce)
	viper.SetDefault("tabDebounce", d.TabDebounce)
	viper.SetDefault("syncDebounce", d.SyncDebounce)
	viper.SetDefault("retryBaseDelay", d.RetryBaseDelay)
	viper.SetDefault("folderCacheTTL", d.FolderCacheTTL)
	viper.SetDefault("composeFontStack", d.ComposeFontStack)
	viper.SetDefault("listenAddr", d.ListenAddr)
}

func defaultDataDirectory() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./" + appName + "-data"
	}
	return filepath.Join(homeDir, ".local", "share", appName)
}

// CookieDomainSuffix returns the domain suffix the session cookie is
// observed under, e.g. ".company-gpt.com".
func (c *Config) CookieDomainSuffix() string {
	return "." + c.RootDomain
}

// TenantOrigin returns the https origin for a tenant label.
func (c *Config) TenantOrigin(tenant string) string {
	if c.TenantOriginBase != "" {
		return c.TenantOriginBase
	}
	return fmt.Sprintf("https://%s.%s", tenant, c.RootDomain)
}

// ChatURL returns the chat endpoint for a tenant.
func (c *Config) ChatURL(tenant string) string {
	return c.TenantOrigin(tenant) + c.ChatPath
}

// FoldersURL returns the folder-listing endpoint for a tenant.
func (c *Config) FoldersURL(tenant string) string {
	return c.TenantOrigin(tenant) + c.FoldersPath
}

// RolesURL returns the role-listing endpoint for a tenant.
func (c *Config) RolesURL(tenant string) string {
	return c.TenantOrigin(tenant) + c.RolesPath
}

// DocsExportURL returns the plain-text export URL for a Google Docs document.
func (c *Config) DocsExportURL(docID string) string {
	base := c.DocsExportBase
	if base == "" {
		base = "https://docs.google.com"
	}
	return fmt.Sprintf("%s/document/d/%s/export?format=txt", base, docID)
}

// IsTenantHost reports whether host is a tenant host under the root domain
// and returns the tenant label when it is.
func (c *Config) IsTenantHost(host string) (string, bool) {
	suffix := "." + c.RootDomain
	if !strings.HasSuffix(host, suffix) {
		return "", false
	}
	label := strings.TrimSuffix(host, suffix)
	if label == "" || strings.Contains(label, ".") {
		return "", false
	}
	return label, true
}

// StateFile returns the path of the persisted key-value state file.
func (c *Config) StateFile() string {
	return filepath.Join(c.Data.Directory, "state.toml")
}
