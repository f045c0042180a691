// Package config locates the readingprogress configuration file for the CLI.
// Values themselves are decoded and validated by internal/config.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// ConfigName is the file name, without extension, searched for when no
// explicit path is given.
const ConfigName = "readingprogress"

// SearchPaths are checked in order for ConfigName.
var SearchPaths = []string{
	".",
	"/etc/readingprogress/",
	"$HOME/.readingprogress",
}

// InitConfig points v at path, or at the search paths when path is empty,
// and reads the file. A missing file in the search paths is not an error;
// the returned string is empty in that case.
func InitConfig(v *viper.Viper, path string) (string, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		for _, p := range SearchPaths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("read config: %w", err)
	}
	return v.ConfigFileUsed(), nil
}
