package cfg

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

// LoggingConfiguration controls logging behavior.
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration controls the metrics endpoint.
type PrometheusConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// MVCCConfiguration controls the concurrency-control core: garbage
// collection cadence and per-worker sizing.
type MVCCConfiguration struct {
	WorkerCount             int  `toml:"worker_count"`               // number of WorkerContext slots
	CommitLogCapacity       int  `toml:"commit_log_capacity"`        // pre-sized capacity of each worker's commit log
	EnableGC                bool `toml:"enable_gc"`                  // run watermark tracking + purge/graveyard migration
	EnableEagerGC           bool `toml:"enable_eager_gc"`            // bypass the probabilistic watermark-refresh gate
	EnableLongRunningTx     bool `toml:"enable_long_running_tx"`     // honor the long-running bit and maintain a graveyard
	GCIntervalSeconds       int  `toml:"gc_interval_seconds"`        // how often the GC loop calls GarbageCollection
	GCProbabilisticGateN    int  `toml:"gc_probabilistic_gate_n"`    // watermark refresh runs with probability 1/N
	HeartbeatTimeoutSeconds int  `toml:"heartbeat_timeout_seconds"`  // parsed and validated only; no component reads it
	VersionRetentionCount   int  `toml:"version_retention_count"`    // parsed and validated only; GC does not retain versions per key
}

// Configuration is the top-level configuration for an embedded
// leancc instance.
type Configuration struct {
	DataDir string `toml:"data_dir"`

	MVCC       MVCCConfiguration       `toml:"mvcc"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Command line flags.
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	DataDirFlag    = flag.String("data-dir", "", "Data directory (overrides config)")
)

// Config is the process-wide configuration instance, populated by Load.
var Config = &Configuration{
	DataDir: "./leancc-data",

	MVCC: MVCCConfiguration{
		WorkerCount:             8,
		CommitLogCapacity:       64,
		EnableGC:                true,
		EnableEagerGC:           false,
		EnableLongRunningTx:     true,
		GCIntervalSeconds:       1,
		GCProbabilisticGateN:    64,
		HeartbeatTimeoutSeconds: 30,
		VersionRetentionCount:   1,
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
		Address: "0.0.0.0",
		Port:    9090,
	},
}

// Load loads configuration from file and applies CLI overrides.
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("config file not found, using defaults")
		}
	}

	if *DataDirFlag != "" {
		Config.DataDir = *DataDirFlag
	}

	if err := os.MkdirAll(Config.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	return nil
}

// Validate checks configuration for errors.
func Validate() error {
	if Config.MVCC.WorkerCount < 0 {
		return fmt.Errorf("mvcc worker count must be >= 0")
	}

	if Config.MVCC.CommitLogCapacity < 1 {
		return fmt.Errorf("mvcc commit log capacity must be >= 1")
	}

	if Config.MVCC.GCIntervalSeconds < 1 {
		return fmt.Errorf("mvcc gc interval must be >= 1 second")
	}

	if Config.MVCC.GCProbabilisticGateN < 1 {
		return fmt.Errorf("mvcc gc probabilistic gate must be >= 1")
	}

	if Config.MVCC.HeartbeatTimeoutSeconds < 1 {
		return fmt.Errorf("mvcc heartbeat timeout must be >= 1 second")
	}

	if Config.MVCC.VersionRetentionCount < 1 {
		return fmt.Errorf("mvcc version retention count must be >= 1")
	}

	if Config.Prometheus.Enabled && (Config.Prometheus.Port < 1 || Config.Prometheus.Port > 65535) {
		return fmt.Errorf("invalid prometheus port: %d", Config.Prometheus.Port)
	}

	if Config.Logging.Format != "console" && Config.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s", Config.Logging.Format)
	}

	return nil
}
