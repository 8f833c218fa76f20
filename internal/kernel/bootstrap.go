package kernel

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// BootConfig holds the orchestrator's own startup knobs: where to find
// plugins, how to log, how big the event bus queue is. This is distinct
// from the tiered internal/config.Store, which holds runtime configuration
// the kernel and its plugins consult after boot.
type BootConfig struct {
	PlatformName string `envconfig:"PLATFORM_NAME" default:"linux"`
	DataDir      string `envconfig:"DATA_DIR" default:"./data"`
	PluginRoots  string `envconfig:"PLUGIN_ROOTS" default:"./plugins"`

	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogDevelopment bool   `envconfig:"LOG_DEV" default:"false"`

	EventQueueCapacity int `envconfig:"EVENT_QUEUE_CAPACITY" default:"1024"`
	EventWorkerCount   int `envconfig:"EVENT_WORKER_COUNT" default:"4"`

	RequirePluginSignature bool   `envconfig:"PLUGIN_REQUIRE_SIGNATURE" default:"false"`
	SigningKey             string `envconfig:"SIGNING_KEY" default:"development-only-signing-key"`

	ShutdownTimeoutSeconds int `envconfig:"SHUTDOWN_TIMEOUT_SECONDS" default:"30"`
}

// LoadBootConfig reads BootConfig from QORZEN_KERNEL_-prefixed environment
// variables, falling back to the struct tag defaults.
func LoadBootConfig() (*BootConfig, error) {
	var cfg BootConfig
	if err := envconfig.Process("qorzen_kernel", &cfg); err != nil {
		return nil, fmt.Errorf("load boot config: %w", err)
	}
	return &cfg, nil
}

// DefaultBootConfig returns the BootConfig LoadBootConfig reads from the
// environment, falling back to hard-coded values equal to the struct-tag
// defaults when the environment cannot be parsed.
func DefaultBootConfig() *BootConfig {
	cfg, err := LoadBootConfig()
	if err != nil {
		return &BootConfig{
			PlatformName:           "linux",
			DataDir:                "./data",
			PluginRoots:            "./plugins",
			LogLevel:               "info",
			EventQueueCapacity:     1024,
			EventWorkerCount:       4,
			SigningKey:             "development-only-signing-key",
			ShutdownTimeoutSeconds: 30,
		}
	}
	return cfg
}
