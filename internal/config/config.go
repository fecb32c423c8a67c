package config

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	SourceAPI       = "api"
	SourceWarehouse = "warehouse"
)

// Config holds runtime configuration for the API service and the CLI.
type Config struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	LogLevel string
	LogDev   bool

	APIBaseURL     string
	APITimeout     time.Duration
	CustomerSource string
	DefaultPage    int
	MaxUploadBytes int64

	DBEnabled      bool
	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	DBTable        string
	DBConnTimeout  time.Duration
	DBQueryTimeout time.Duration

	ViewsSQLitePath string
	ViewPresetsFile string

	ModelMetricsEnabled          bool
	ModelMetricsTargets          []string
	ModelMetricsScrapeTimeout    time.Duration
	ModelMetricsScrapeInterval   time.Duration
	ModelMetricsHistoryMaxPoints int
}

// FromEnv loads configuration from environment variables with sensible defaults.
func FromEnv() Config {
	loadConfigDefaultsFromFile()
	loadSecretsDefaultsFromFile()

	return Config{
		ListenAddr:      getEnv("APP_LISTEN_ADDR", ":8080"),
		ReadTimeout:     time.Duration(getEnvInt("APP_READ_TIMEOUT_SEC", 10)) * time.Second,
		WriteTimeout:    time.Duration(getEnvInt("APP_WRITE_TIMEOUT_SEC", 60)) * time.Second,
		ShutdownTimeout: time.Duration(getEnvInt("APP_SHUTDOWN_TIMEOUT_SEC", 10)) * time.Second,

		LogLevel: getEnv("APP_LOG_LEVEL", "info"),
		LogDev:   getEnvBool("APP_LOG_DEV", false),

		APIBaseURL:     getEnv("APP_API_BASE_URL", "http://127.0.0.1:8000"),
		APITimeout:     time.Duration(getEnvInt("APP_API_TIMEOUT_SEC", 30)) * time.Second,
		CustomerSource: strings.ToLower(getEnv("APP_CUSTOMER_SOURCE", SourceAPI)),
		DefaultPage:    getEnvInt("APP_DEFAULT_PAGE_SIZE", 10),
		MaxUploadBytes: int64(getEnvInt("APP_MAX_UPLOAD_MB", 32)) << 20,

		DBEnabled:      getEnvBool("APP_DB_ENABLED", false),
		DBHost:         getEnv("APP_DB_HOST", "127.0.0.1"),
		DBPort:         getEnvInt("APP_DB_PORT", 3306),
		DBUser:         getEnv("APP_DB_USER", "churn"),
		DBPassword:     getEnv("APP_DB_PASSWORD", ""),
		DBName:         getEnv("APP_DB_NAME", "churn"),
		DBTable:        getEnv("APP_DB_TABLE", "customers"),
		DBConnTimeout:  time.Duration(getEnvInt("APP_DB_CONN_TIMEOUT_SEC", 5)) * time.Second,
		DBQueryTimeout: time.Duration(getEnvInt("APP_DB_QUERY_TIMEOUT_SEC", 10)) * time.Second,

		ViewsSQLitePath: getEnv("APP_VIEWS_SQLITE_PATH", ""),
		ViewPresetsFile: getEnv("APP_VIEW_PRESETS_FILE", ""),

		ModelMetricsEnabled:          getEnvBool("APP_MODEL_METRICS_ENABLED", false),
		ModelMetricsTargets:          getEnvList("APP_MODEL_METRICS_TARGETS", []string{"http://127.0.0.1:8020/metrics"}),
		ModelMetricsScrapeTimeout:    time.Duration(getEnvInt("APP_MODEL_METRICS_SCRAPE_TIMEOUT_SEC", 5)) * time.Second,
		ModelMetricsScrapeInterval:   time.Duration(getEnvInt("APP_MODEL_METRICS_SCRAPE_INTERVAL_SEC", 60)) * time.Second,
		ModelMetricsHistoryMaxPoints: getEnvInt("APP_MODEL_METRICS_HISTORY_MAX_POINTS", 720),
	}
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	switch c.CustomerSource {
	case SourceAPI:
	case SourceWarehouse:
		if !c.DBEnabled {
			return fmt.Errorf("APP_CUSTOMER_SOURCE=%s requires APP_DB_ENABLED=true", SourceWarehouse)
		}
	default:
		return fmt.Errorf("APP_CUSTOMER_SOURCE must be %q or %q, got %q", SourceAPI, SourceWarehouse, c.CustomerSource)
	}
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("APP_API_BASE_URL is required")
	}
	if u, err := url.Parse(c.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("APP_API_BASE_URL %q is not an absolute URL", c.APIBaseURL)
	}
	if c.DefaultPage <= 0 {
		return fmt.Errorf("APP_DEFAULT_PAGE_SIZE must be positive")
	}
	return nil
}

// Env files only fill variables the environment leaves unset. The first
// readable file of each chain wins; the bootstrap files are always read.
var (
	bootstrapEnvFiles = []string{"./churn-dashboard.env", "/etc/default/churn-dashboard"}
	defaultConfigFile = "/etc/churn-dashboard/config.env"
	defaultSecretFile = "/etc/churn-dashboard/secrets.env"
)

func loadConfigDefaultsFromFile() {
	for _, path := range bootstrapEnvFiles {
		_ = applyEnvFile(absPath(path))
	}
	applyFirstEnvFile(os.Getenv("APP_CONFIG_FILE"), defaultConfigFile)
}

// loadSecretsDefaultsFromFile also looks in the systemd credentials
// directory when the service runs with LoadCredential=.
func loadSecretsDefaultsFromFile() {
	var credential string
	if dir := strings.TrimSpace(os.Getenv("CREDENTIALS_DIRECTORY")); dir != "" {
		credential = filepath.Join(dir, getEnv("APP_SECRETS_CREDENTIAL_NAME", "app-secrets"))
	}
	applyFirstEnvFile(os.Getenv("APP_SECRETS_FILE"), credential, defaultSecretFile)
}

func applyFirstEnvFile(paths ...string) {
	for _, path := range paths {
		if path = strings.TrimSpace(path); path == "" {
			continue
		}
		if applyEnvFile(absPath(path)) == nil {
			return
		}
	}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func applyEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	pairs, err := parseEnvFile(f)
	for _, kv := range pairs {
		if os.Getenv(kv[0]) == "" {
			_ = os.Setenv(kv[0], kv[1])
		}
	}
	return err
}

// parseEnvFile reads KEY=VALUE lines. An optional `export ` prefix and one
// level of matching quotes are removed; anything else unparseable is skipped.
func parseEnvFile(r io.Reader) ([][2]string, error) {
	var pairs [][2]string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		key, val, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		pairs = append(pairs, [2]string{key, unquote(strings.TrimSpace(val))})
	}
	return pairs, sc.Err()
}

func unquote(v string) string {
	if len(v) < 2 {
		return v
	}
	if q := v[0]; (q == '"' || q == '\'') && v[len(v)-1] == q {
		return v[1 : len(v)-1]
	}
	return v
}

// MySQLDSN returns a mysql driver DSN for the read-only warehouse.
func (c Config) MySQLDSN() string {
	dc := mysql.NewConfig()
	dc.User = c.DBUser
	dc.Passwd = c.DBPassword
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort))
	dc.DBName = c.DBName
	dc.ParseTime = true
	dc.Timeout = c.DBConnTimeout
	dc.ReadTimeout = c.DBQueryTimeout
	dc.WriteTimeout = c.DBQueryTimeout
	dc.Params = map[string]string{"charset": "utf8mb4"}
	return dc.FormatDSN()
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvBool(key string, def bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvList(key string, def []string) []string {
	raw := def
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		raw = strings.Split(val, ",")
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
