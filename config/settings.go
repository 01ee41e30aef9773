// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Tool command resolution (micromamba prefixes, override files)

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Defaults mirror the values the services were deployed with.
const (
	DefaultDBName        = "nr"
	DefaultEvalue        = 1e-3
	DefaultMaxTargetSeqs = 20
	DefaultOutfmt        = "6 qseqid sseqid pident length evalue bitscore sscinames"
	DefaultSpiderHome    = "/app/spider_tool"
	DefaultSpiderEnv     = "spider"
	DefaultPort          = 8000
	DefaultToolTimeout   = 300 * time.Second
)

// Settings holds all application configuration.
type Settings struct {
	Blast   BlastConfig
	Spider  SpiderConfig
	Tools   ToolsConfig
	Storage StorageConfig
	Server  ServerConfig
}

// BlastConfig holds sequence search configuration.
type BlastConfig struct {
	DBPath        string
	DBName        string
	AutoUpdate    bool
	Evalue        float64
	MaxTargetSeqs int
	Outfmt        string
	// MMEnv is the micromamba environment BLAST+ runs in. Empty runs the
	// binaries directly.
	MMEnv string
}

// SpiderConfig holds druggability classifier configuration.
type SpiderConfig struct {
	Home  string
	MMEnv string
}

// ToolsConfig holds external process configuration.
type ToolsConfig struct {
	Timeout      time.Duration
	CommandsFile string
}

// StorageConfig holds state and artifact storage configuration.
type StorageConfig struct {
	// StateDSN is a PostgreSQL DSN for database handles. It takes precedence
	// over StateDB.
	StateDSN string
	// StateDB is a SQLite path for database handles. Empty keeps them in memory.
	StateDB         string
	ArtifactBackend string
	ArtifactRoot    string
	MinIO           MinIOConfig
}

// MinIOConfig holds object storage credentials for the minio artifact backend.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ServerConfig holds HTTP listener configuration.
type ServerConfig struct {
	Port int
}

// Supported artifact backends.
var artifactBackends = map[string]bool{
	"none":  true,
	"local": true,
	"minio": true,
}

// New loads settings from environment variables.
// Returns an error if any variable holds an invalid value.
func New() (Settings, error) {
	autoUpdate, err := getEnvBool("AUTO_UPDATE", false)
	if err != nil {
		return Settings{}, err
	}

	evalue, err := getEnvFloat64("BLAST_EVALUE", DefaultEvalue)
	if err != nil {
		return Settings{}, err
	}

	maxTargetSeqs, err := getEnvInt("BLAST_MAX_TARGET_SEQS", DefaultMaxTargetSeqs)
	if err != nil {
		return Settings{}, err
	}

	timeout, err := getEnvSeconds("TOOL_TIMEOUT_SECONDS", DefaultToolTimeout)
	if err != nil {
		return Settings{}, err
	}

	port, err := getEnvInt("PORT", DefaultPort)
	if err != nil {
		return Settings{}, err
	}

	useSSL, err := getEnvBool("BIOTOOLS_MINIO_USE_SSL", false)
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		Blast: BlastConfig{
			DBPath:        os.Getenv("BLAST_DB_PATH"),
			DBName:        getEnvString("BLAST_DB_NAME", DefaultDBName),
			AutoUpdate:    autoUpdate,
			Evalue:        evalue,
			MaxTargetSeqs: maxTargetSeqs,
			Outfmt:        getEnvString("BLAST_OUTFMT", DefaultOutfmt),
			MMEnv:         os.Getenv("BLAST_MM_ENV"),
		},
		Spider: SpiderConfig{
			Home:  getEnvString("SPIDER_HOME", DefaultSpiderHome),
			MMEnv: getEnvString("SPIDER_MM_ENV", DefaultSpiderEnv),
		},
		Tools: ToolsConfig{
			Timeout:      timeout,
			CommandsFile: os.Getenv("BIOTOOLS_TOOLS_FILE"),
		},
		Storage: StorageConfig{
			StateDSN:        os.Getenv("BIOTOOLS_STATE_DSN"),
			StateDB:         os.Getenv("BIOTOOLS_STATE_DB"),
			ArtifactBackend: strings.ToLower(getEnvString("BIOTOOLS_ARTIFACT_BACKEND", "none")),
			ArtifactRoot:    getEnvString("BIOTOOLS_ARTIFACT_ROOT", "artifacts"),
			MinIO: MinIOConfig{
				Endpoint:  os.Getenv("BIOTOOLS_MINIO_ENDPOINT"),
				AccessKey: os.Getenv("BIOTOOLS_MINIO_ACCESS_KEY"),
				SecretKey: os.Getenv("BIOTOOLS_MINIO_SECRET_KEY"),
				Bucket:    os.Getenv("BIOTOOLS_MINIO_BUCKET"),
				UseSSL:    useSSL,
			},
		},
		Server: ServerConfig{Port: port},
	}, nil
}

// MustNew loads settings from the environment.
// Panics if environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew() Settings {
	settings, err := New()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// Validate checks values that New cannot, including that the database
// directory exists (it is created if needed) and is writable.
func (s Settings) Validate() error {
	if s.Blast.Evalue <= 0 {
		return fmt.Errorf("BLAST_EVALUE must be positive, got %g", s.Blast.Evalue)
	}
	if s.Blast.MaxTargetSeqs <= 0 {
		return fmt.Errorf("BLAST_MAX_TARGET_SEQS must be positive, got %d", s.Blast.MaxTargetSeqs)
	}
	if s.Tools.Timeout <= 0 {
		return fmt.Errorf("TOOL_TIMEOUT_SECONDS must be positive, got %s", s.Tools.Timeout)
	}
	if !artifactBackends[s.Storage.ArtifactBackend] {
		return fmt.Errorf("unknown artifact backend: %q", s.Storage.ArtifactBackend)
	}
	return CheckWritableDir(s.Blast.DBPath)
}

// CheckWritableDir creates dir if needed and probes it with a temporary file.
func CheckWritableDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("BLAST_DB_PATH environment variable must be set to a writable directory for database storage")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("BLAST_DB_PATH %q is not usable: %w", dir, err)
	}
	probe := filepath.Join(dir, ".test_write")
	if err := os.WriteFile(probe, []byte("test"), 0644); err != nil {
		return fmt.Errorf("BLAST_DB_PATH %q is not writable: %w", dir, err)
	}
	return os.Remove(probe)
}

// Environment variable helpers with proper error handling

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(strings.ToLower(val))
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return b, nil
}

// getEnvSeconds reads a whole or fractional number of seconds.
func getEnvSeconds(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return time.Duration(f * float64(time.Second)), nil
}
