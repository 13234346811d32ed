package spacetraveling

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/eringen/spacetraveling/blog"
	"github.com/eringen/spacetraveling/prismic"
)

// SiteConfig holds all configuration for a spacetraveling site.
type SiteConfig struct {
	Name        string `yaml:"name" env:"SITE_NAME" env-default:"spacetraveling"`
	URL         string `yaml:"url" env:"SITE_URL" env-default:"http://localhost:3000"`
	Description string `yaml:"description" env:"SITE_DESCRIPTION"`
	Author      string `yaml:"author" env:"SITE_AUTHOR"`

	Addr         string `yaml:"addr" env:"ADDR" env-default:":3000"`
	DatabasePath string `yaml:"database_path" env:"DATABASE_PATH" env-default:"data/pages.db"`
	StaticDir    string `yaml:"static_dir" env:"STATIC_DIR" env-default:"public"`

	// Repository is the Prismic repository name. APIEndpoint overrides the
	// endpoint derived from it.
	Repository   string        `yaml:"prismic_repository" env:"PRISMIC_REPOSITORY"`
	APIEndpoint  string        `yaml:"prismic_api_endpoint" env:"PRISMIC_API_ENDPOINT"`
	AccessToken  string        `yaml:"prismic_access_token" env:"PRISMIC_ACCESS_TOKEN"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" env:"PRISMIC_TIMEOUT" env-default:"10s"`

	Revalidate      time.Duration `yaml:"revalidate" env:"REVALIDATE" env-default:"24h"`
	PageSize        int           `yaml:"page_size" env:"PAGE_SIZE" env-default:"1"`
	Orderings       []string      `yaml:"orderings" env:"ORDERINGS" env-separator:","`
	MalformedPolicy string        `yaml:"malformed_policy" env:"MALFORMED_POLICY" env-default:"fail"`
	MoreRateLimit   int           `yaml:"more_rate_limit" env:"MORE_RATE_LIMIT" env-default:"60"`
	OptimizeBanners bool          `yaml:"optimize_banners" env:"OPTIMIZE_BANNERS" env-default:"true"`
	Prebuild        bool          `yaml:"prebuild" env:"PREBUILD" env-default:"true"`
}

// LoadConfig reads the configuration from the YAML file at path, or from the
// environment alone when path is empty. Environment variables override the
// file in both cases.
func LoadConfig(path string) (SiteConfig, error) {
	var cfg SiteConfig
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return cfg, fmt.Errorf("config file %q: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		return cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("read env: %w", err)
	}
	return cfg, nil
}

// ConfigUsage describes every environment variable LoadConfig reads.
func ConfigUsage() string {
	var cfg SiteConfig
	desc, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return desc
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "spacetraveling"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/pages.db"
	}
	if c.StaticDir == "" {
		c.StaticDir = "public"
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
	if c.Revalidate <= 0 {
		c.Revalidate = 24 * time.Hour
	}
	if c.PageSize <= 0 {
		c.PageSize = 1
	}
	if c.MalformedPolicy == "" {
		c.MalformedPolicy = blog.PolicyFail.String()
	}
	if c.MoreRateLimit <= 0 {
		c.MoreRateLimit = 60
	}
}

func (c *SiteConfig) validate() error {
	if c.Repository == "" && c.APIEndpoint == "" {
		return errors.New("PRISMIC_REPOSITORY or PRISMIC_API_ENDPOINT is required")
	}
	if c.PageSize > 100 {
		return fmt.Errorf("page size %d exceeds the CMS maximum of 100", c.PageSize)
	}
	if _, err := blog.ParsePolicy(c.MalformedPolicy); err != nil {
		return err
	}
	return nil
}

func (c *SiteConfig) endpoint() string {
	if c.APIEndpoint != "" {
		return c.APIEndpoint
	}
	return prismic.EndpointForRepository(c.Repository)
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App after the built-in routes are set up.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithHTTPClient sets the client used for CMS and banner requests.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) {
		a.httpClient = c
	}
}

// WithoutStore keeps generated pages in memory only.
func WithoutStore() Option {
	return func(a *App) {
		a.memoryOnly = true
	}
}

// WithClock overrides time.Now for page freshness checks.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}
