package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppName  string `yaml:"app_name"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`

	DBDriver    string `yaml:"db_driver"`
	DatabaseURL string `yaml:"database_url"`

	JWTSecret string `yaml:"jwt_secret"`

	HistoryLimit   int    `yaml:"history_limit"`
	DefaultChannel string `yaml:"default_channel"`

	UploadDir   string   `yaml:"upload_dir"`
	MaxUploadMB int      `yaml:"max_upload_mb"`
	CORSOrigins []string `yaml:"cors_origins"`

	AuthRateRPS   float64 `yaml:"auth_rate_rps"`
	AuthRateBurst int     `yaml:"auth_rate_burst"`

	// TrustedProxies are CIDRs or addresses whose X-Forwarded-For is
	// believed when keying the auth rate limiter.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// Flags are the command-line overrides. Empty values leave the loaded
// configuration untouched.
type Flags struct {
	ConfigFile string
	Addr       string
	DBDriver   string
	DBDSN      string
}

// ParseFlags parses the server's command-line flags.
func ParseFlags(name string, args []string) (Flags, error) {
	var f Flags
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVar(&f.ConfigFile, "config", "", "path to a YAML config file")
	fs.StringVar(&f.Addr, "addr", "", "listen address host:port (overrides HTTP_HOST/HTTP_PORT)")
	fs.StringVar(&f.DBDriver, "db-driver", "", "database driver: sqlite or postgres")
	fs.StringVar(&f.DBDSN, "db-dsn", "", "database DSN (overrides DATABASE_URL)")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	return f, nil
}

func defaults() *Config {
	return &Config{
		AppName:        "chatspace",
		Env:            "development",
		LogLevel:       "info",
		Host:           "0.0.0.0",
		Port:           3001,
		DBDriver:       "sqlite",
		DatabaseURL:    "chat.db",
		HistoryLimit:   100,
		DefaultChannel: "general",
		UploadDir:      "uploads",
		MaxUploadMB:    10,
		CORSOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
		AuthRateRPS:    5,
		AuthRateBurst:  10,
	}
}

// Load builds the effective configuration: defaults, then the YAML file (if
// any), then environment variables, then flags.
func Load(flags Flags) (*Config, error) {
	cfg := defaults()

	path := flags.ConfigFile
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.AppName = getEnv("APP_NAME", cfg.AppName)
	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Host = getEnv("HTTP_HOST", cfg.Host)
	cfg.Port = getEnvAsInt("HTTP_PORT", cfg.Port)
	cfg.DBDriver = getEnv("DB_DRIVER", cfg.DBDriver)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.HistoryLimit = getEnvAsInt("HISTORY_LIMIT", cfg.HistoryLimit)
	cfg.DefaultChannel = getEnv("DEFAULT_CHANNEL", cfg.DefaultChannel)
	cfg.UploadDir = getEnv("UPLOAD_DIR", cfg.UploadDir)
	cfg.MaxUploadMB = getEnvAsInt("MAX_UPLOAD_MB", cfg.MaxUploadMB)
	cfg.AuthRateRPS = getEnvAsFloat("AUTH_RATE_RPS", cfg.AuthRateRPS)
	cfg.AuthRateBurst = getEnvAsInt("AUTH_RATE_BURST", cfg.AuthRateBurst)

	if cors := getEnv("CORS_ORIGINS", ""); cors != "" {
		cfg.CORSOrigins = splitList(cors)
	}
	if proxies := getEnv("TRUSTED_PROXIES", ""); proxies != "" {
		cfg.TrustedProxies = splitList(proxies)
	}

	if flags.Addr != "" {
		host, port, err := splitAddr(flags.Addr)
		if err != nil {
			return nil, err
		}
		cfg.Host, cfg.Port = host, port
	}
	if flags.DBDriver != "" {
		cfg.DBDriver = flags.DBDriver
	}
	if flags.DBDSN != "" {
		cfg.DatabaseURL = flags.DBDSN
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	return nil
}

// TrustedProxyPrefixes parses TrustedProxies. Bare addresses become
// single-host prefixes.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, e := range c.TrustedProxies {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			pfx, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, err
			}
			out = append(out, pfx.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction reports whether APP_ENV selects production behaviour.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func splitAddr(addr string) (string, int, error) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return "", 0, fmt.Errorf("invalid --addr %q: want host:port", addr)
	}
	port, err := strconv.Atoi(addr[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid --addr port %q: %w", addr[i+1:], err)
	}
	return addr[:i], port, nil
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

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
