// Package config provides the configuration structure for the speech-service.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/caarlos0/env/v11"
)

// Defaults applied when the project TOML leaves a field unset.
const (
	defaultListenAddr     = ":8787"
	defaultJobSubject     = "speech.synthesize.jobs"
	defaultQueueGroup     = "speech-workers"
	defaultWorkers        = 4
	defaultCloudEndpoint  = "https://texttospeech.googleapis.com/v1/text:synthesize"
	defaultCloudTimeout   = 60
	defaultLocalTimeout   = 120
	defaultSynthesizerCmd = "espeak-ng"
	defaultFFmpegCmd      = "ffmpeg"
)

// HTTPConfig holds the listener configuration for the public API.
type HTTPConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	CacheDir    string `toml:"cache_dir"`
}

// CloudTTSConfig configures the remote speech API backend.
type CloudTTSConfig struct {
	Endpoint       string `toml:"endpoint"`
	CredentialPath string `toml:"credential_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ForceOffline   bool   `toml:"force_offline"`
}

// Enabled reports whether the cloud backend should be selected: a credential
// must be configured and the offline override must not be set.
func (c CloudTTSConfig) Enabled() bool {
	return c.CredentialPath != "" && !c.ForceOffline
}

// LocalTTSConfig configures the local OS synthesizer backend and its
// transcoder.
type LocalTTSConfig struct {
	SynthesizerCommand string `toml:"synthesizer_command"`
	FFmpegCommand      string `toml:"ffmpeg_command"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
}

// NATSConfig holds the configuration for the internal job bus.
type NATSConfig struct {
	URL        string `toml:"url"`
	Embedded   bool   `toml:"embedded"`
	JobSubject string `toml:"job_subject"`
	QueueGroup string `toml:"queue_group"`
	Workers    int    `toml:"workers"`
}

// Config is the root configuration structure.
type Config struct {
	HTTP  HTTPConfig     `toml:"http"`
	Paths PathsConfig    `toml:"paths"`
	Cloud CloudTTSConfig `toml:"cloud_tts"`
	Local LocalTTSConfig `toml:"local_tts"`
	NATS  NATSConfig     `toml:"nats"`
}

// envOverrides are environment variables layered on top of the project TOML.
// They mirror the knobs the original deployment tuned per machine.
type envOverrides struct {
	CacheDir       string `env:"TTS_CACHE_DIR"`
	CredentialPath string `env:"GOOGLE_TTS_KEY_PATH"`
	ForceOffline   bool   `env:"TTS_OFFLINE"`
	ListenAddr     string `env:"SPEECH_HTTP_ADDR"`
}

// Load loads the configuration for the speech-service, applies environment
// overrides, and fills defaults.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	err = cfg.ApplyEnvironment()
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyEnvironment merges environment variable overrides into the config.
func (c *Config) ApplyEnvironment() error {
	var overrides envOverrides

	err := env.Parse(&overrides)
	if err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	if overrides.CacheDir != "" {
		c.Paths.CacheDir = overrides.CacheDir
	}

	if overrides.CredentialPath != "" {
		c.Cloud.CredentialPath = overrides.CredentialPath
	}

	if overrides.ForceOffline {
		c.Cloud.ForceOffline = true
	}

	if overrides.ListenAddr != "" {
		c.HTTP.ListenAddr = overrides.ListenAddr
	}

	return nil
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = defaultListenAddr
	}

	if c.NATS.JobSubject == "" {
		c.NATS.JobSubject = defaultJobSubject
	}

	if c.NATS.QueueGroup == "" {
		c.NATS.QueueGroup = defaultQueueGroup
	}

	if c.NATS.Workers <= 0 {
		c.NATS.Workers = defaultWorkers
	}

	if c.Cloud.Endpoint == "" {
		c.Cloud.Endpoint = defaultCloudEndpoint
	}

	if c.Cloud.TimeoutSeconds <= 0 {
		c.Cloud.TimeoutSeconds = defaultCloudTimeout
	}

	if c.Local.SynthesizerCommand == "" {
		c.Local.SynthesizerCommand = defaultSynthesizerCmd
	}

	if c.Local.FFmpegCommand == "" {
		c.Local.FFmpegCommand = defaultFFmpegCmd
	}

	if c.Local.TimeoutSeconds <= 0 {
		c.Local.TimeoutSeconds = defaultLocalTimeout
	}
}
