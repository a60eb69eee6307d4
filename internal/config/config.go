// Package config loads the application configuration from a YAML file and
// lets environment variables override any key in it.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	defaultPort           = 8080
	defaultMaxUploadBytes = 10 << 20
	defaultDatabasePath   = "recipes.db"
	defaultSessionMaxAge  = 7 * 24 * time.Hour
	defaultUploadDir      = "static/uploads"
	defaultBcryptCost     = 12
	defaultLogLevel       = "info"
	minSecretLength       = 16
)

// Upload drivers.
const (
	DriverLocal = "local"
	DriverS3    = "s3"
)

type Config struct {
	Server    Server    `json:"server" yaml:"server"`
	Database  Database  `json:"database" yaml:"database"`
	Session   Session   `json:"session" yaml:"session"`
	Upload    Upload    `json:"upload" yaml:"upload"`
	Auth      Auth      `json:"auth" yaml:"auth"`
	RateLimit RateLimit `json:"rateLimit" yaml:"rateLimit"`
	Log       Log       `json:"log" yaml:"log"`
}

type Server struct {
	Port int `json:"port" yaml:"port"`
	// MaxUploadBytes caps the size of a multipart recipe form.
	MaxUploadBytes int64 `json:"maxUploadBytes" yaml:"maxUploadBytes"`
	// TrustProxy takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a reverse proxy that sets them.
	TrustProxy bool `json:"trustProxy" yaml:"trustProxy"`
	Timeouts       struct {
		ReadTimeout       time.Duration `json:"readTimeout" yaml:"readTimeout"`
		ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"`
		WriteTimeout      time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
		IdleTimeout       time.Duration `json:"idleTimeout" yaml:"idleTimeout"`
		ShutdownTimeout   time.Duration `json:"shutdownTimeout" yaml:"shutdownTimeout"`
	} `json:"timeouts" yaml:"timeouts"`
}

type Database struct {
	// Path is a file path or ":memory:".
	Path string `json:"path" yaml:"path"`
}

type Session struct {
	Secret       string        `json:"secret" yaml:"secret"`
	MaxAge       time.Duration `json:"maxAge" yaml:"maxAge"`
	SecureCookie bool          `json:"secureCookie" yaml:"secureCookie"`
	// PurgeInterval is how often expired sessions are deleted. Zero disables it.
	PurgeInterval time.Duration `json:"purgeInterval" yaml:"purgeInterval"`
}

type Upload struct {
	Driver string   `json:"driver" yaml:"driver"`
	Dir    string   `json:"dir" yaml:"dir"`
	S3     S3Upload `json:"s3" yaml:"s3"`
}

type S3Upload struct {
	Bucket        string `json:"bucket" yaml:"bucket"`
	Region        string `json:"region" yaml:"region"`
	AccessKey     string `json:"accessKey" yaml:"accessKey"`
	SecretKey     string `json:"secretKey" yaml:"secretKey"`
	Endpoint      string `json:"endpoint" yaml:"endpoint"`
	Prefix        string `json:"prefix" yaml:"prefix"`
	PublicBaseURL string `json:"publicBaseURL" yaml:"publicBaseURL"`
}

type Auth struct {
	BcryptCost int `json:"bcryptCost" yaml:"bcryptCost"`
}

// RateLimit applies to the login and register endpoints, per client IP.
// RequestsPerSecond <= 0 disables limiting.
type RateLimit struct {
	RequestsPerSecond float64 `json:"requestsPerSecond" yaml:"requestsPerSecond"`
	Burst             int     `json:"burst" yaml:"burst"`
}

type Log struct {
	Pretty bool   `json:"pretty" yaml:"pretty"`
	Level  string `json:"level" yaml:"level"`
}

// New loads config.yaml from the working directory or a config/ directory
// next to it or up to two levels above.
func New() (*Config, error) {
	path, err := find("config", ".", "config", "../config", "../../config")
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Load reads the YAML file at path, overlays environment variables and
// fills defaults. The result is validated.
func Load(path string) (*Config, error) {
	return load(path, os.Environ)
}

func load(path string, environ func() []string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, errors.Wrapf(err, "read config %s failed", path)
	}

	existing := k.Raw()

	// SERVER_PORT -> server.port, SESSION_SECRET -> session.secret,
	// UPLOAD_S3_ACCESSKEY -> upload.s3.accessKey. Variables that do not
	// land on a key present in the file are ignored.
	if err := k.Load(env.Provider(".", env.Opt{
		EnvironFunc: environ,
		TransformFunc: func(k, v string) (string, any) {
			key, ok := canonicalizeEnvKey(k, existing)
			if !ok {
				return "", nil
			}
			return key, v
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	cfg := new(Config)
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			MatchName: func(mapKey, fieldName string) bool {
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrap(err, "unmarshal config failed")
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.MaxUploadBytes <= 0 {
		c.Server.MaxUploadBytes = defaultMaxUploadBytes
	}
	t := &c.Server.Timeouts
	if t.ReadTimeout == 0 {
		t.ReadTimeout = 15 * time.Second
	}
	if t.ReadHeaderTimeout == 0 {
		t.ReadHeaderTimeout = 5 * time.Second
	}
	if t.WriteTimeout == 0 {
		t.WriteTimeout = 30 * time.Second
	}
	if t.IdleTimeout == 0 {
		t.IdleTimeout = 60 * time.Second
	}
	if t.ShutdownTimeout == 0 {
		t.ShutdownTimeout = 30 * time.Second
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		c.Database.Path = defaultDatabasePath
	}
	if c.Session.MaxAge <= 0 {
		c.Session.MaxAge = defaultSessionMaxAge
	}
	if c.Upload.Driver == "" {
		c.Upload.Driver = DriverLocal
	}
	if c.Upload.Driver == DriverLocal && c.Upload.Dir == "" {
		c.Upload.Dir = defaultUploadDir
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = defaultBcryptCost
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
}

// Validate reports the first configuration problem that would stop the
// server from starting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("server.port %d out of range", c.Server.Port)
	}
	if len(c.Session.Secret) < minSecretLength {
		return errors.Errorf("session.secret must be at least %d characters", minSecretLength)
	}

	switch c.Upload.Driver {
	case DriverLocal:
		if strings.TrimSpace(c.Upload.Dir) == "" {
			return errors.New("upload.dir is required for the local driver")
		}
	case DriverS3:
		if c.Upload.S3.Bucket == "" || c.Upload.S3.Region == "" {
			return errors.New("upload.s3.bucket and upload.s3.region are required for the s3 driver")
		}
	default:
		return errors.Errorf("unknown upload.driver %q", c.Upload.Driver)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("unknown log.level %q", c.Log.Level)
	}

	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst < 1 {
		return errors.New("rateLimit.burst must be at least 1 when rate limiting is enabled")
	}
	return nil
}

// find returns the first <name>.yaml found in searchPaths.
func find(name string, searchPaths ...string) (string, error) {
	for _, dir := range searchPaths {
		candidate := filepath.Join(dir, name+".yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", errors.Errorf("config file %s.yaml not found in any search path", name)
}

// canonicalizeEnvKey maps an environment variable name onto a dotted key,
// matching each segment against the keys already loaded from YAML so
// camelCase survives (SESSION_MAXAGE -> session.maxAge). ok is false when
// the variable does not name a leaf that exists in the file.
func canonicalizeEnvKey(rawKey string, existing map[string]any) (key string, ok bool) {
	segments := strings.Split(strings.ToLower(rawKey), "_")
	canonical := make([]string, 0, len(segments))
	current := existing
	var last any

	for _, segment := range segments {
		if segment == "" {
			continue
		}
		matched, value, found := findExistingSegment(current, segment)
		if !found {
			return "", false
		}
		canonical = append(canonical, matched)
		last = value
		current, _ = value.(map[string]any)
	}

	if len(canonical) == 0 {
		return "", false
	}
	if _, isSection := last.(map[string]any); isSection {
		return "", false
	}
	return strings.Join(canonical, "."), true
}

func findExistingSegment(current map[string]any, segment string) (matched string, value any, ok bool) {
	if len(current) == 0 {
		return "", nil, false
	}

	needle := normalizeToken(segment)
	for key, v := range current {
		if normalizeToken(key) == needle {
			return key, v, true
		}
	}
	return "", nil, false
}

func normalizeToken(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
