package dpos

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rondonetworks/rondo/src/common"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the miner's
	// private key.
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the
	// Badger database.
	DefaultBadgerFile = "badger_db"
)

// Default configuration values.
const (
	DefaultLogLevel       = "debug"
	DefaultMiningInterval = 4000 * time.Millisecond
	DefaultMaxBlocksCount = 8
	DefaultTermDuration   = 7 * 24 * time.Hour
	DefaultCacheSize      = 10000
	DefaultStore          = false
)

// Config contains the configuration properties of the consensus core.
type Config struct {
	// DataDir is the top-level directory containing configuration and data.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// MiningInterval is the length of one miner's time slot.
	MiningInterval time.Duration `mapstructure:"mining-interval"`

	// MaxBlocksCount is the maximum number of blocks a miner may produce
	// within one time slot when the chain is healthy. The effective ceiling
	// is recomputed at every point of use because it reacts to chain-health
	// status.
	MaxBlocksCount uint64 `mapstructure:"max-blocks-count"`

	// TermDuration is the length of a term. When a round terminates past the
	// term's time boundary, the next transition is a term transition.
	TermDuration time.Duration `mapstructure:"term-duration"`

	// CacheSize is the max number of rounds kept in the in-memory store
	// window.
	CacheSize int `mapstructure:"cache-size"`

	// Store activates persistent storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// Moniker defines the friendly name of this miner.
	Moniker string `mapstructure:"moniker"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	return &Config{
		DataDir:        DefaultDataDir(),
		LogLevel:       DefaultLogLevel,
		MiningInterval: DefaultMiningInterval,
		MaxBlocksCount: DefaultMaxBlocksCount,
		TermDuration:   DefaultTermDuration,
		CacheSize:      DefaultCacheSize,
		Store:          DefaultStore,
		DatabaseDir:    DefaultDatabaseDir(),
	}
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests. The intervals are shortened so that tests can
// play whole rounds on a virtual clock.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.MiningInterval = 4 * time.Second
	config.TermDuration = 10 * time.Minute
	config.logger = common.NewTestLogger(t)
	return config
}

// SetDataDir sets the top-level data directory, and updates the database
// directory if it is currently set to the default value.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// Logger returns a formatted logrus Entry, with prefix set to "rondo".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "rondo")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir returns the default directory for top-level configuration
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Rondo")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Rondo")
		} else {
			return filepath.Join(home, ".rondo")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
