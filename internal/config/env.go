package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Environment overrides applied on top of the config file.
const (
	EnvVolumeSize = "BROM_ROMVOLUMESIZE"
	EnvUsernames  = "BROM_USERNAMES"
)

// ApplyEnv overrides the volume size and the username allow-list from the
// environment. Usernames are separated by ';'.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvVolumeSize)); v != "" {
		size, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvVolumeSize, err)
		}
		cfg.VolumeSize = size
	}
	if v := getenv(EnvUsernames); v != "" {
		var names []string
		for _, name := range strings.Split(v, ";") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
		cfg.Usernames = names
	}
	return nil
}
