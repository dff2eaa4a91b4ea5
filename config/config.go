package config

import (
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	Server struct {
		Port string `env:"PORT" envDefault:"8080"`

		// Origins allowed to call the API from a browser
		AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	}

	Database struct {
		Path string `env:"DB_PATH" envDefault:"data/propertyhub.db"`
	}

	// Logrus level name: debug, info, warn, error
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Optional JSON or YAML file overriding dedup and ranking parameters
	CalibrationFile string `env:"CALIBRATION_FILE"`

	// BatchProcessing configuration
	BatchProcessing struct {
		// Maximum number of listings accepted in one ingest request
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"100"`

		// Capacity of the listing queue, in batches
		QueueSize int `env:"BATCH_QUEUE_SIZE" envDefault:"1000"`

		// Number of concurrent batch processors
		ProcessorCount int `env:"BATCH_PROCESSOR_COUNT" envDefault:"2"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"BATCH_RETRY_DELAY" envDefault:"5"`
	}

	// Sweep re-scans every tenant's pool for duplicates the ingest path missed
	Sweep struct {
		Enabled  bool          `env:"SWEEP_ENABLED" envDefault:"true"`
		Interval time.Duration `env:"SWEEP_INTERVAL" envDefault:"6h"`

		// Goroutines sharing the pairwise scan; 0 uses GOMAXPROCS
		Workers int `env:"SWEEP_WORKERS" envDefault:"0"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
