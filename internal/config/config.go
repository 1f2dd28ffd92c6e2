// Package config loads the instrument configuration from defaults, an
// optional YAML file and DUALSCOPE_* environment overrides.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the complete instrument configuration.
type Config struct {
	Acquisition AcquisitionConfig `mapstructure:"acquisition"`
	Trigger     TriggerConfig     `mapstructure:"trigger"`
	Serial      SerialConfig      `mapstructure:"serial"`
	Sink        SinkConfig        `mapstructure:"sink"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// AcquisitionConfig controls the sampling loop and the display windowing.
type AcquisitionConfig struct {
	// SamplingRate in samples per second
	SamplingRate int `mapstructure:"sampling_rate"`
	// BufferCapacity is the main buffer depth in samples
	BufferCapacity int `mapstructure:"buffer_capacity"`
	// PreTriggerSamples kept from before a trigger event
	PreTriggerSamples int `mapstructure:"pre_trigger_samples"`
	// PostTriggerSamples captured after a trigger event
	PostTriggerSamples int `mapstructure:"post_trigger_samples"`
	// StreamIntervalMs is the dispatcher cadence in milliseconds
	StreamIntervalMs int `mapstructure:"stream_interval_ms"`
	// Timebase in seconds per display division
	Timebase float64 `mapstructure:"timebase"`
	// AmplitudeScale applied by the viewer
	AmplitudeScale float64 `mapstructure:"amplitude_scale"`
	// ChannelMode is "ch1", "ch2" or "both"
	ChannelMode string `mapstructure:"channel_mode"`
}

// TriggerConfig is the startup trigger setup; it can be reconfigured at
// runtime through the session.
type TriggerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Channel is "ch1" or "ch2"
	Channel string `mapstructure:"channel"`
	// Edge is "rising" or "falling"
	Edge string `mapstructure:"edge"`
	// Level is the differential level echoed to the viewer (-1, 0 or 1)
	Level int `mapstructure:"level"`
	// TimeoutSeconds armed before giving up
	TimeoutSeconds float64 `mapstructure:"timeout_seconds"`
}

// SerialConfig locates the probe.
type SerialConfig struct {
	// Port is the device path; empty means autodetect
	Port     string `mapstructure:"port"`
	BaudRate int    `mapstructure:"baud_rate"`
}

// SinkConfig is the viewer endpoint windows are pushed to.
type SinkConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	File string `mapstructure:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Acquisition: AcquisitionConfig{
			SamplingRate:       10000,
			BufferCapacity:     100000,
			PreTriggerSamples:  5000,
			PostTriggerSamples: 10000,
			StreamIntervalMs:   50,
			Timebase:           0.00001,
			AmplitudeScale:     1.0,
			ChannelMode:        "both",
		},
		Trigger: TriggerConfig{
			Enabled:        false,
			Channel:        "ch1",
			Edge:           "rising",
			Level:          0,
			TimeoutSeconds: 5.0,
		},
		Serial: SerialConfig{
			Port:     "",
			BaudRate: 115200,
		},
		Sink: SinkConfig{
			Addr: "127.0.0.1:4021",
		},
		Logging: LoggingConfig{
			File: "dualscope.logs",
		},
	}
}

// Load reads the configuration. With an empty path, a dualscope.yaml in the
// working directory or ~/.config/dualscope is used when present; a missing
// file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DUALSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", path)
		}
	} else {
		v.SetConfigName("dualscope")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/dualscope")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.Wrap(err, "reading config file")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("acquisition.sampling_rate", def.Acquisition.SamplingRate)
	v.SetDefault("acquisition.buffer_capacity", def.Acquisition.BufferCapacity)
	v.SetDefault("acquisition.pre_trigger_samples", def.Acquisition.PreTriggerSamples)
	v.SetDefault("acquisition.post_trigger_samples", def.Acquisition.PostTriggerSamples)
	v.SetDefault("acquisition.stream_interval_ms", def.Acquisition.StreamIntervalMs)
	v.SetDefault("acquisition.timebase", def.Acquisition.Timebase)
	v.SetDefault("acquisition.amplitude_scale", def.Acquisition.AmplitudeScale)
	v.SetDefault("acquisition.channel_mode", def.Acquisition.ChannelMode)
	v.SetDefault("trigger.enabled", def.Trigger.Enabled)
	v.SetDefault("trigger.channel", def.Trigger.Channel)
	v.SetDefault("trigger.edge", def.Trigger.Edge)
	v.SetDefault("trigger.level", def.Trigger.Level)
	v.SetDefault("trigger.timeout_seconds", def.Trigger.TimeoutSeconds)
	v.SetDefault("serial.port", def.Serial.Port)
	v.SetDefault("serial.baud_rate", def.Serial.BaudRate)
	v.SetDefault("sink.addr", def.Sink.Addr)
	v.SetDefault("logging.file", def.Logging.File)
}
