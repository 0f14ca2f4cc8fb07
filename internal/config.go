package internal

import (
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/justwrite/internal/resource"
)

var (
	collectionName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	jsonFile       = regexp.MustCompile(`^[^/\\]+\.json$`)
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig  `yaml:"app"`
	Content     ContentConfig      `yaml:"content"`
	Collections []CollectionConfig `yaml:"collections"`
	CORS        CORSConfig         `yaml:"cors"`
	RateLimit   RateLimitConfig    `yaml:"rate_limit"`
	Metrics     MetricsConfig      `yaml:"metrics"`
	Events      EventsConfig       `yaml:"events"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Content.Validate(); err != nil {
		return err
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	return validateCollections(c.Collections)
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ContentConfig holds the directory that stores collection files.
type ContentConfig struct {
	Dir string `yaml:"dir"`
	// Watch invalidates cached collections when their files change on disk.
	Watch bool `yaml:"watch"`
}

// Validate validates the content configuration.
func (c *ContentConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
	)
}

// CollectionConfig declares one collection and its field policy.
type CollectionConfig struct {
	Name           string   `yaml:"name"`
	File           string   `yaml:"file"`
	RequiredFields []string `yaml:"required_fields"`
	UniqueFields   []string `yaml:"unique_fields"`
	// Timestamp defaults to true when omitted.
	Timestamp *bool  `yaml:"timestamp"`
	TagField  string `yaml:"tag_field"`
}

// Validate validates a single collection declaration.
func (c *CollectionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required, validation.Match(collectionName),
			validation.NotIn("events", "health", "metrics").Error("is reserved")),
		validation.Field(&c.File, validation.Required, validation.Match(jsonFile)),
		validation.Field(&c.RequiredFields, validation.Each(validation.Required)),
		validation.Field(&c.UniqueFields, validation.Each(validation.Required)),
	)
}

// Policy converts the declaration into an engine policy.
func (c *CollectionConfig) Policy() resource.Policy {
	ts := true
	if c.Timestamp != nil {
		ts = *c.Timestamp
	}
	return resource.Policy{
		RequiredFields: c.RequiredFields,
		UniqueFields:   c.UniqueFields,
		Timestamp:      ts,
		TagField:       c.TagField,
	}
}

func validateCollections(cs []CollectionConfig) error {
	if len(cs) == 0 {
		return fmt.Errorf("collections: at least one collection is required")
	}
	names := make(map[string]struct{}, len(cs))
	files := make(map[string]struct{}, len(cs))
	for i := range cs {
		if err := cs[i].Validate(); err != nil {
			return fmt.Errorf("collections[%d]: %w", i, err)
		}
		if _, dup := names[cs[i].Name]; dup {
			return fmt.Errorf("collections: duplicate name %q", cs[i].Name)
		}
		if _, dup := files[cs[i].File]; dup {
			return fmt.Errorf("collections: file %q used twice", cs[i].File)
		}
		names[cs[i].Name] = struct{}{}
		files[cs[i].File] = struct{}{}
	}
	return nil
}

// CORSConfig controls the Access-Control-Allow-Origin header.
// An empty AllowOrigin disables the header.
type CORSConfig struct {
	AllowOrigin string `yaml:"allow_origin"`
}

// RateLimitConfig configures the global request limiter. RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Validate validates the rate limit configuration.
func (c *RateLimitConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.RPS, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.RPS > 0 && c.Burst == 0 {
		return fmt.Errorf("rate_limit: burst must be positive when rps is set")
	}
	return nil
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the metrics configuration.
func (c *MetricsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required, validation.Match(regexp.MustCompile(`^/`))),
	)
}

// EventsConfig controls the Server-Sent Events stream.
type EventsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultCollections returns the built-in pages and tags declarations.
func DefaultCollections() []CollectionConfig {
	noTimestamp := false
	return []CollectionConfig{
		{
			Name:           "pages",
			File:           "pages.json",
			RequiredFields: []string{"content", "title"},
			TagField:       "tags",
		},
		{
			Name:           "tags",
			File:           "tags.json",
			RequiredFields: []string{"name", "slug"},
			UniqueFields:   []string{"slug"},
			Timestamp:      &noTimestamp,
		},
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Host: "localhost",
				Port: 8001,
			},
		},
		Content: ContentConfig{
			Dir:   "content",
			Watch: true,
		},
		Collections: DefaultCollections(),
		CORS: CORSConfig{
			AllowOrigin: "*",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Events: EventsConfig{
			Enabled: true,
		},
	}
}
