package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a yaml-decodable time.Duration. yaml.v3 refuses to put a
// scalar like "15m" into a time.Duration field, so every duration knob
// uses this type. Bare integers are taken as nanoseconds, matching
// time.Duration's underlying unit.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(n)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is loaded once at startup and passed by reference everywhere.
// Nothing mutates it after Load returns.
type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		Driver   string `yaml:"driver"` // memory | postgres
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int           `yaml:"max_conns"`
			MinConns        int           `yaml:"min_conns"`
			ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Expiration struct {
		CodeTTL      Duration `yaml:"code_ttl"`
		AccessMaxTTL Duration `yaml:"access_max_ttl"`
		// Tokens whose expiry predates this instant still verify after
		// their nominal expiry. Zero disables grandfathering.
		GrandfatherEpoch time.Time `yaml:"grandfather_epoch"`
	} `yaml:"expiration"`

	OAuth struct {
		// Scopes an untrusted client may request.
		UntrustedScopes []string `yaml:"untrusted_scopes"`
		// Regexes over the bearer email for client-management calls.
		AdminWhitelist []string `yaml:"admin_whitelist"`
		// Permit localhost/127.0.0.1 redirect targets (dev only).
		LocalRedirects bool `yaml:"local_redirects"`
	} `yaml:"oauth"`

	JWT struct {
		Issuer           string        `yaml:"issuer"`
		KeyDir           string        `yaml:"key_dir"`
		IDTokenTTL       Duration `yaml:"id_token_ttl"`
		KeyRotationGrace Duration `yaml:"key_rotation_grace"`
	} `yaml:"jwt"`

	Security struct {
		SecretBoxMasterKey string `yaml:"secretbox_master_key"` // base64(32 bytes), encrypts signing keys at rest
	} `yaml:"security"`

	Assertion struct {
		VerifierURL string        `yaml:"verifier_url"`
		Timeout     Duration `yaml:"timeout"`
	} `yaml:"assertion"`

	// Pre-configured jwt-bearer service clients.
	ServiceClients []ServiceClient `yaml:"service_clients"`

	Events struct {
		Enabled bool `yaml:"enabled"`
		Redis   struct {
			Addr    string `yaml:"addr"`
			DB      int    `yaml:"db"`
			Channel string `yaml:"channel"`
		} `yaml:"redis"`
	} `yaml:"events"`

	Purge struct {
		Count           int64         `yaml:"count"`
		Delay           Duration `yaml:"delay"`
		BatchSize       int64         `yaml:"batch_size"`
		IgnoreClientIDs []string      `yaml:"ignore_client_ids"` // hex, must be non-empty to run
	} `yaml:"purge"`
}

type ServiceClient struct {
	Name    string `yaml:"name"`
	ID      string `yaml:"id"` // hex client id used as jwt iss
	Scope   string `yaml:"scope"`
	JWKSURL string `yaml:"jwks_url"`
}

func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":9010"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Expiration.CodeTTL == 0 {
		c.Expiration.CodeTTL = Duration(15 * time.Minute)
	}
	if c.Expiration.AccessMaxTTL == 0 {
		c.Expiration.AccessMaxTTL = Duration(336 * time.Hour) // 14d
	}
	if len(c.OAuth.UntrustedScopes) == 0 {
		c.OAuth.UntrustedScopes = []string{"profile:uid", "profile:email", "profile:display_name"}
	}
	if c.JWT.IDTokenTTL == 0 {
		c.JWT.IDTokenTTL = Duration(5 * time.Minute)
	}
	if c.JWT.KeyRotationGrace == 0 {
		c.JWT.KeyRotationGrace = Duration(6 * time.Hour)
	}
	if c.JWT.KeyDir == "" {
		c.JWT.KeyDir = "./keys"
	}
	if c.Assertion.Timeout == 0 {
		c.Assertion.Timeout = Duration(10 * time.Second)
	}
	if c.Events.Redis.Channel == "" {
		c.Events.Redis.Channel = "account-events"
	}
	if c.Purge.Count == 0 {
		c.Purge.Count = 10000
	}
	if c.Purge.Delay == 0 {
		c.Purge.Delay = Duration(time.Second)
	}
	if c.Purge.BatchSize == 0 {
		c.Purge.BatchSize = 200
	}

	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case "memory", "mem", "postgres", "pg", "postgresql":
	default:
		return fmt.Errorf("storage.driver: unsupported %q", c.Storage.Driver)
	}
	if strings.HasPrefix(strings.ToLower(c.Storage.Driver), "p") && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn required for driver %q", c.Storage.Driver)
	}
	for _, sc := range c.ServiceClients {
		if sc.ID == "" || sc.JWKSURL == "" {
			return fmt.Errorf("service client %q: id and jwks_url required", sc.Name)
		}
	}
	return nil
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("STORAGE_PG_MAX_CONNS"); ok {
		c.Storage.Postgres.MaxConns = v
	}
	if v, ok := getEnvInt("STORAGE_PG_MIN_CONNS"); ok {
		c.Storage.Postgres.MinConns = v
	}
	if v, ok := getEnvDur("CODE_TTL"); ok {
		c.Expiration.CodeTTL = Duration(v)
	}
	if v, ok := getEnvDur("ACCESS_MAX_TTL"); ok {
		c.Expiration.AccessMaxTTL = Duration(v)
	}
	if v, ok := getEnvStr("GRANDFATHER_EPOCH"); ok {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(v)); err == nil {
			c.Expiration.GrandfatherEpoch = t
		}
	}
	if v, ok := getEnvCSV("UNTRUSTED_SCOPES"); ok {
		c.OAuth.UntrustedScopes = v
	}
	if v, ok := getEnvCSV("ADMIN_WHITELIST"); ok {
		c.OAuth.AdminWhitelist = v
	}
	if v, ok := getEnvBool("LOCAL_REDIRECTS"); ok {
		c.OAuth.LocalRedirects = v
	}
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("JWT_KEY_DIR"); ok {
		c.JWT.KeyDir = v
	}
	if v, ok := getEnvDur("JWT_KEY_ROTATION_GRACE"); ok {
		c.JWT.KeyRotationGrace = Duration(v)
	}
	if v, ok := getEnvStr("SECRETBOX_MASTER_KEY"); ok {
		c.Security.SecretBoxMasterKey = v
	}
	if v, ok := getEnvStr("ASSERTION_VERIFIER_URL"); ok {
		c.Assertion.VerifierURL = v
	}
	if v, ok := getEnvBool("EVENTS_ENABLED"); ok {
		c.Events.Enabled = v
	}
	if v, ok := getEnvStr("EVENTS_REDIS_ADDR"); ok {
		c.Events.Redis.Addr = v
	}
	if v, ok := getEnvInt("EVENTS_REDIS_DB"); ok {
		c.Events.Redis.DB = v
	}
	if v, ok := getEnvStr("EVENTS_REDIS_CHANNEL"); ok {
		c.Events.Redis.Channel = v
	}
	if v, ok := getEnvInt("PURGE_COUNT"); ok {
		c.Purge.Count = int64(v)
	}
	if v, ok := getEnvDur("PURGE_DELAY"); ok {
		c.Purge.Delay = Duration(v)
	}
	if v, ok := getEnvInt("PURGE_BATCH_SIZE"); ok {
		c.Purge.BatchSize = int64(v)
	}
	if v, ok := getEnvCSV("PURGE_IGNORE_CLIENT_IDS"); ok {
		c.Purge.IgnoreClientIDs = v
	}
}
