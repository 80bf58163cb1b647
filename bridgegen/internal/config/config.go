package config

import (
	"os"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type ConfigStruct struct {
	Output string `ms:"output"`
	Bridge string `ms:"bridge-import"`
}

// Parse reads the generator config at path over defaults. A missing file
// leaves the defaults in place.
func (c *ConfigStruct) Parse(path string, defaults ConfigStruct) error {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("output", defaults.Output)
	v.SetDefault("bridge-import", defaults.Bridge)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrap(err, "read generator config")
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, "read generator config")
	}
	err := v.UnmarshalExact(c, func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnset = true
		dc.ErrorUnused = true
		dc.TagName = "ms"
	})
	return errors.Wrap(err, "decode generator config")
}
