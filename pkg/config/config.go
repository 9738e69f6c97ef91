package config

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"flashdeck/pkg/errors"
)

// Duration is a time.Duration that reads and writes as "30m" in the config file.
type Duration time.Duration

// MarshalJSON writes the duration in time.Duration string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "30m" style strings or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration must be a string or seconds: %s", b)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// Config holds application configuration
type Config struct {
	ListenAddr string `json:"listenAddr"`
	PublicURL  string `json:"publicUrl,omitempty"`

	SupabaseURL       string `json:"supabaseUrl"`
	SupabaseAnonKey   string `json:"supabaseAnonKey"`
	SupabaseJWTSecret string `json:"supabaseJwtSecret,omitempty"`

	RedisAddr     string `json:"redisAddr,omitempty"`
	RedisPassword string `json:"redisPassword,omitempty"`
	RedisDB       int    `json:"redisDb,omitempty"`

	SessionSecret  string   `json:"sessionSecret,omitempty"`
	SessionTimeout Duration `json:"sessionTimeout"`
	CookieSecure   bool     `json:"cookieSecure"`

	TemplatesDir  string   `json:"templatesDir,omitempty"`
	RenderWait    Duration `json:"renderWait"`
	HTTPTimeout   Duration `json:"httpTimeout"`
	FetchAttempts int      `json:"fetchAttempts"`
	CountCards    bool     `json:"countCards"`

	OAuthProviders []string `json:"oauthProviders,omitempty"`
	LogFormat      string   `json:"logFormat,omitempty"`

	path string
}

// Default returns a configuration with every optional value filled in.
func Default() *Config {
	return &Config{
		ListenAddr:     ":8080",
		SessionTimeout: Duration(30 * time.Minute),
		RenderWait:     Duration(1500 * time.Millisecond),
		HTTPTimeout:    Duration(10 * time.Second),
		FetchAttempts:  1,
		CountCards:     true,
		LogFormat:      "text",
	}
}

// GetConfigFilePath returns the path where the config file should be stored
func GetConfigFilePath() string {
	if p := os.Getenv("FLASHDECK_CONFIG"); p != "" {
		return p
	}

	currentUser, err := user.Current()
	if err != nil {
		return "./config.json"
	}

	// Use .config/flashdeck directory for all platforms
	return filepath.Join(currentUser.HomeDir, ".config", "flashdeck", "config")
}

// Load builds the configuration from defaults, the JSON file at path (or the
// default location when path is empty) and the environment, in that order.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = GetConfigFilePath()
	}
	cfg.path = path

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.From(errors.ErrConfigLoadFailed, err).WithContext("path", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.From(errors.ErrConfigLoadFailed, err).WithContext("path", path)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides fields from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	str(&c.ListenAddr, "FLASHDECK_ADDR")
	str(&c.PublicURL, "FLASHDECK_PUBLIC_URL")
	str(&c.SupabaseURL, "SUPABASE_URL", "NEXT_PUBLIC_SUPABASE_URL")
	str(&c.SupabaseAnonKey, "SUPABASE_ANON_KEY", "NEXT_PUBLIC_SUPABASE_ANON_KEY")
	str(&c.SupabaseJWTSecret, "SUPABASE_JWT_SECRET")
	str(&c.RedisAddr, "REDIS_ADDR")
	str(&c.RedisPassword, "REDIS_PASSWORD")
	str(&c.SessionSecret, "FLASHDECK_SESSION_SECRET")
	str(&c.TemplatesDir, "FLASHDECK_TEMPLATES_DIR")
	str(&c.LogFormat, "LOG_FORMAT")

	if v, ok := lookup("FLASHDECK_OAUTH_PROVIDERS"); ok {
		c.OAuthProviders = splitList(v)
	}

	type durationVar struct {
		key string
		dst *Duration
	}
	for _, dv := range []durationVar{
		{"FLASHDECK_SESSION_TIMEOUT", &c.SessionTimeout},
		{"FLASHDECK_RENDER_WAIT", &c.RenderWait},
		{"FLASHDECK_HTTP_TIMEOUT", &c.HTTPTimeout},
	} {
		if v, ok := lookup(dv.key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return errors.Wrap(err, errors.ErrTypeConfig, "CONFIG_INVALID", "invalid duration").
					WithContext("key", dv.key)
			}
			*dv.dst = Duration(d)
		}
	}

	if v, ok := lookup("REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, errors.ErrTypeConfig, "CONFIG_INVALID", "invalid integer").
				WithContext("key", "REDIS_DB")
		}
		c.RedisDB = n
	}
	if v, ok := lookup("FLASHDECK_FETCH_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, errors.ErrTypeConfig, "CONFIG_INVALID", "invalid integer").
				WithContext("key", "FLASHDECK_FETCH_ATTEMPTS")
		}
		c.FetchAttempts = n
	}

	type boolVar struct {
		key string
		dst *bool
	}
	for _, bv := range []boolVar{
		{"FLASHDECK_COOKIE_SECURE", &c.CookieSecure},
		{"FLASHDECK_COUNT_CARDS", &c.CountCards},
	} {
		if v, ok := lookup(bv.key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return errors.Wrap(err, errors.ErrTypeConfig, "CONFIG_INVALID", "invalid boolean").
					WithContext("key", bv.key)
			}
			*bv.dst = b
		}
	}

	return nil
}

// Validate reports the required values that are missing.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.SupabaseURL) == "" {
		missing = append(missing, "SUPABASE_URL")
	}
	if strings.TrimSpace(c.SupabaseAnonKey) == "" {
		missing = append(missing, "SUPABASE_ANON_KEY")
	}
	if len(missing) > 0 {
		return errors.From(errors.ErrConfigMissing, nil).
			WithContext("missing", strings.Join(missing, ","))
	}
	if c.FetchAttempts < 1 {
		c.FetchAttempts = 1
	}
	return nil
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Save saves the configuration to file
func (c *Config) Save() error {
	configFile := c.path
	if configFile == "" {
		configFile = GetConfigFilePath()
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return errors.From(errors.ErrConfigSaveFailed, err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.From(errors.ErrConfigSaveFailed, err)
	}

	// The file may carry secrets
	if err := os.WriteFile(configFile, data, 0600); err != nil {
		return errors.From(errors.ErrConfigSaveFailed, err)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
