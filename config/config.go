// Package config loads the bridge configuration from hostbridge.yaml.
package config

import (
	"io"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/flutterbridge/hostbridge/instance"
)

const (
	DefaultName          = "hostbridge"
	DefaultChannelPrefix = "dev.flutter.pigeon"
	DefaultPickerTimeout = 5 * time.Minute
)

type Config struct {
	Channel struct {
		Prefix string `ms:"prefix"`
	} `ms:"channel"`
	Instance struct {
		SweepInterval      time.Duration `ms:"sweep-interval"`
		HostIdentifierBase int64         `ms:"host-identifier-base"`
	} `ms:"instance"`
	Log struct {
		Level string `ms:"level"`
	} `ms:"log"`
	ImagePicker struct {
		Timeout time.Duration `ms:"timeout"`
	} `ms:"image-picker"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("channel.prefix", DefaultChannelPrefix)
	v.SetDefault("instance.sweep-interval", instance.DefaultSweepInterval)
	v.SetDefault("instance.host-identifier-base", instance.MinHostCreatedIdentifier)
	v.SetDefault("log.level", "info")
	v.SetDefault("image-picker.timeout", DefaultPickerTimeout)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	return v
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c, err := decode(newViper())
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads path, or hostbridge.yaml in the working directory if path is
// empty. A missing default file yields the defaults; a missing explicit
// file is an error.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultName)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "config: read")
		}
	}
	return decode(v)
}

// Parse reads yaml from r.
func Parse(r io.Reader) (*Config, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, errors.Wrap(err, "config: read")
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	err := v.UnmarshalExact(&c, func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnset = true
		dc.ErrorUnused = true
		dc.TagName = "ms"
	})
	if err != nil {
		return nil, errors.Wrap(err, "config: decode")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

var levels = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
	"fatal": log.LevelFatal,
}

func (c *Config) Validate() error {
	if c.Channel.Prefix == "" {
		return errors.New("config: channel.prefix is empty")
	}
	if c.Instance.SweepInterval < 0 {
		return errors.Errorf("config: negative instance.sweep-interval %s", c.Instance.SweepInterval)
	}
	if c.Instance.HostIdentifierBase <= 0 {
		return errors.Errorf("config: instance.host-identifier-base must be positive, got %d", c.Instance.HostIdentifierBase)
	}
	if _, ok := levels[strings.ToLower(c.Log.Level)]; !ok {
		return errors.Errorf("config: unknown log.level %q", c.Log.Level)
	}
	if c.ImagePicker.Timeout <= 0 {
		return errors.Errorf("config: image-picker.timeout must be positive, got %s", c.ImagePicker.Timeout)
	}
	return nil
}

func (c *Config) LogLevel() log.Level {
	return levels[strings.ToLower(c.Log.Level)]
}

// Logger returns a logger writing to w that drops records below the
// configured level.
func (c *Config) Logger(w io.Writer) log.Logger {
	return log.NewFilter(log.NewStdLogger(w), log.FilterLevel(c.LogLevel()))
}

// InstanceOptions returns the instance manager options for c.
func (c *Config) InstanceOptions() []instance.Option {
	return []instance.Option{
		instance.WithSweepInterval(c.Instance.SweepInterval),
		instance.WithHostIdentifierBase(c.Instance.HostIdentifierBase),
	}
}
