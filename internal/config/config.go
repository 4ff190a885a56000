package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

// Resolve modes for GET /api/{shortId}.
const (
	ResolveRedirect = "redirect"
	ResolveInline   = "inline"
)

// Storage drivers.
const (
	StorageLocal = "local"
	StorageOSS   = "oss"
)

var (
	ErrUnknownResolveMode   = errors.New("unknown resolve mode")
	ErrUnknownStorageDriver = errors.New("unknown storage driver")
	ErrMissingCredentials   = errors.New("missing postgres credentials")
	ErrInvalidBaseURL       = errors.New("invalid public base url")
)

type Config struct {
	Env            string   `yaml:"env"`
	PublicBaseURL  string   `yaml:"public_base_url"`
	AllowedOrigin  string   `yaml:"allowed_origin"`
	MigrationsPath string   `yaml:"migrations_path"`
	HTTPServer     `yaml:"http_server"`
	Postgres       `yaml:"postgres"`
	Tracking       Tracking `yaml:"tracking"`
	Upload         Upload   `yaml:"upload"`
	Storage        Storage  `yaml:"storage"`
	Cache          Cache    `yaml:"cache"`
	Log            Log      `yaml:"log"`
}

type HTTPServer struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
}

var defaultHTTPServer = HTTPServer{
	Port:           3001,
	ReadTimeout:    5 * time.Second,
	WriteTimeout:   30 * time.Second,
	IdleTimeout:    time.Minute,
	MaxHeaderBytes: 1 << 20,
}

func (s *HTTPServer) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// Credentials is one database role.
type Credentials struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Postgres holds the connection settings shared by both roles. Anon is the restricted
// role used for ledger reads, Service the elevated role used for every write.
type Postgres struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	DB              string        `yaml:"db"`
	SSLMode         string        `yaml:"sslmode"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	Anon            Credentials   `yaml:"anon"`
	Service         Credentials   `yaml:"service"`
}

var defaultPostgres = Postgres{
	Host:            "localhost",
	Port:            5432,
	SSLMode:         "disable",
	ConnMaxIdleTime: 5 * time.Minute,
	ConnMaxLifetime: 30 * time.Minute,
	MaxIdleConns:    5,
	MaxOpenConns:    25,
}

func (p *Postgres) dsn(c Credentials) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     p.Host + ":" + strconv.Itoa(p.Port),
		Path:     p.DB,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}

	return u.String()
}

func (p *Postgres) AnonDSN() string {
	return p.dsn(p.Anon)
}

func (p *Postgres) ServiceDSN() string {
	return p.dsn(p.Service)
}

type Tracking struct {
	// Window in which identical accesses count once.
	Window time.Duration `yaml:"window"`
	// InternalHost is the front-end host whose referrers are not recorded.
	InternalHost string `yaml:"internal_host"`
	ResolveMode  string `yaml:"resolve_mode"`
}

type Upload struct {
	MaxFileSize int64 `yaml:"max_file_size"`
}

type Storage struct {
	Driver string       `yaml:"driver"`
	Local  LocalStorage `yaml:"local"`
	OSS    OSSStorage   `yaml:"oss"`
}

type LocalStorage struct {
	Dir string `yaml:"dir"`
}

type OSSStorage struct {
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Domain          string `yaml:"domain"`
}

type Cache struct {
	Enabled       bool          `yaml:"enabled"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
	LocalSize     int           `yaml:"local_size"`
}

type Log struct {
	Level   string `yaml:"level"`
	JSON    bool   `yaml:"json"`
	Concise bool   `yaml:"concise"`
}

// Load reads the YAML file at path. ${VAR} references are expanded from the environment first.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read config file: %w", op, err)
	}

	var cfg Config
	setDefaults(&cfg)

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to decode config file: %w", op, err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.Env = EnvDev
	cfg.PublicBaseURL = "http://localhost:3001"
	cfg.AllowedOrigin = "http://localhost:3000"
	cfg.MigrationsPath = "file://migrations"
	cfg.HTTPServer = defaultHTTPServer
	cfg.Postgres = defaultPostgres
	cfg.Tracking = Tracking{
		Window:      3 * time.Second,
		ResolveMode: ResolveRedirect,
	}
	cfg.Upload = Upload{MaxFileSize: 10 << 20}
	cfg.Storage = Storage{
		Driver: StorageLocal,
		Local:  LocalStorage{Dir: "public/images"},
	}
	cfg.Cache = Cache{
		TTL:       time.Hour,
		LocalSize: 1000,
	}
	cfg.Log = Log{
		Level:   "info",
		Concise: true,
	}
}

// Validate reports the first setting that cannot be served.
func (c *Config) Validate() error {
	const op = "config.Config.Validate"

	switch c.Tracking.ResolveMode {
	case ResolveRedirect, ResolveInline:
	default:
		return fmt.Errorf("%s: %w: %q", op, ErrUnknownResolveMode, c.Tracking.ResolveMode)
	}

	switch c.Storage.Driver {
	case StorageLocal, StorageOSS:
	default:
		return fmt.Errorf("%s: %w: %q", op, ErrUnknownStorageDriver, c.Storage.Driver)
	}

	if c.Postgres.Anon.User == "" || c.Postgres.Service.User == "" {
		return fmt.Errorf("%s: %w", op, ErrMissingCredentials)
	}

	u, err := url.Parse(c.PublicBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s: %w: %q", op, ErrInvalidBaseURL, c.PublicBaseURL)
	}

	return nil
}
