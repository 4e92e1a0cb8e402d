package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/andresmejia3/facefolio/internal/facematch"
)

// DefaultFile is read when present and no --config flag is given.
const DefaultFile = "facefolio.yaml"

// Config holds everything a run needs; nothing is global.
type Config struct {
	WorkDir   string         `yaml:"workdir"`
	OutputDir string         `yaml:"output"`
	Unmatched string         `yaml:"unmatched_folder"` // reserved folder for photos matching nobody
	Matching  MatchingConfig `yaml:"matching"`
	Portrait  PortraitConfig `yaml:"portrait"`
	Engine    EngineConfig   `yaml:"engine"`
	Database  DatabaseConfig `yaml:"database"`
}

// MatchingConfig keeps the two workflows' tolerances independent.
type MatchingConfig struct {
	ReferenceTolerance float64 `yaml:"reference_tolerance"`
	DiscoveryTolerance float64 `yaml:"discovery_tolerance"`
}

type PortraitConfig struct {
	Padding int `yaml:"padding"`
}

type EngineConfig struct {
	Kind        string        `yaml:"kind"`   // "python" or "dlib"
	Count       int           `yaml:"count"`  // parallel engines
	Python      string        `yaml:"python"` // interpreter
	Script      string        `yaml:"script"` // python/worker.py
	Model       string        `yaml:"model"`  // face_recognition detector: hog or cnn
	ModelsDir   string        `yaml:"models_dir"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"` // PostgreSQL; empty selects the file store
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		WorkDir:   ".facefolio",
		OutputDir: "sorted",
		Unmatched: "_unmatched",
		Matching: MatchingConfig{
			ReferenceTolerance: facematch.DefaultTolerance,
			DiscoveryTolerance: 0.6,
		},
		Portrait: PortraitConfig{Padding: 20},
		Engine: EngineConfig{
			Kind:        "python",
			Count:       1,
			Python:      "python3",
			Script:      "python/worker.py",
			Model:       "hog",
			ModelsDir:   "models",
			ReadTimeout: 60 * time.Second,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file, then the environment.
// An empty path falls back to DefaultFile if it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.WorkDir = envString("FACEFOLIO_WORKDIR", c.WorkDir)
	c.OutputDir = envString("FACEFOLIO_OUTPUT", c.OutputDir)
	c.Unmatched = envString("FACEFOLIO_UNMATCHED_FOLDER", c.Unmatched)
	c.Matching.ReferenceTolerance = envFloat("FACEFOLIO_REFERENCE_TOLERANCE", c.Matching.ReferenceTolerance)
	c.Matching.DiscoveryTolerance = envFloat("FACEFOLIO_DISCOVERY_TOLERANCE", c.Matching.DiscoveryTolerance)
	c.Engine.Kind = envString("FACEFOLIO_ENGINE", c.Engine.Kind)
	c.Engine.Count = envInt("FACEFOLIO_ENGINES", c.Engine.Count)
	c.Engine.Python = envString("FACEFOLIO_PYTHON", c.Engine.Python)
	c.Engine.Script = envString("FACEFOLIO_WORKER_SCRIPT", c.Engine.Script)
	c.Engine.Model = envString("FACEFOLIO_MODEL", c.Engine.Model)
	c.Engine.ModelsDir = envString("FACEFOLIO_MODELS_DIR", c.Engine.ModelsDir)
	c.Engine.ReadTimeout = envDuration("FACEFOLIO_READ_TIMEOUT", c.Engine.ReadTimeout)
	c.Database.URL = envString("DATABASE_URL", c.Database.URL)

	// If no URL was provided, try to build the connection string from the environment
	if c.Database.URL == "" {
		if host := os.Getenv("POSTGRES_HOST"); host != "" {
			user := os.Getenv("POSTGRES_USER")
			pass := os.Getenv("POSTGRES_PASSWORD")
			name := os.Getenv("POSTGRES_DB")
			port := envString("POSTGRES_PORT", "5432")
			c.Database.URL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := ValidateTolerance("matching.reference_tolerance", c.Matching.ReferenceTolerance); err != nil {
		return err
	}
	if err := ValidateTolerance("matching.discovery_tolerance", c.Matching.DiscoveryTolerance); err != nil {
		return err
	}
	if c.Engine.Count < 1 {
		return fmt.Errorf("engine.count must be at least 1")
	}
	if c.Engine.Kind != "python" && c.Engine.Kind != "dlib" {
		return fmt.Errorf("engine.kind must be python or dlib, got %q", c.Engine.Kind)
	}
	if c.Engine.Model != "hog" && c.Engine.Model != "cnn" {
		return fmt.Errorf("engine.model must be hog or cnn, got %q", c.Engine.Model)
	}
	if c.Engine.ReadTimeout < 0 {
		return fmt.Errorf("engine.read_timeout must not be negative")
	}
	if c.Portrait.Padding < 0 {
		return fmt.Errorf("portrait.padding must not be negative")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("workdir must be set")
	}
	if c.Unmatched == "" {
		return fmt.Errorf("unmatched_folder must be set")
	}
	return nil
}

// ValidateTolerance accepts any finite, non-negative distance.
func ValidateTolerance(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%s must be a non-negative number, got %v", name, v)
	}
	return nil
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return defaultVal
}
