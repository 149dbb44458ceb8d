package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/errors"
)

// GlobalConfigDir returns the global cutover directory, typically ~/.cutover.
func GlobalConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, constants.CutoverHome), nil
}

// GlobalConfigPath returns ~/.cutover/config.yaml.
func GlobalConfigPath() (string, error) {
	dir, err := GlobalConfigDir()
	if err != nil {
		return "", fmt.Errorf("get global config path: %w", err)
	}
	return filepath.Join(dir, constants.ConfigFileName), nil
}

// ProjectConfigPath returns .cutover/config.yaml relative to the working directory.
func ProjectConfigPath() string {
	return filepath.Join(constants.CutoverHome, constants.ConfigFileName)
}

// StateDir returns the directory holding leases, incidents and attempts.
// incidents.dir wins when set.
func (c *Config) StateDir() (string, error) {
	if c.Incidents.Dir != "" {
		return c.Incidents.Dir, nil
	}
	return GlobalConfigDir()
}

// SQLitePath returns the sqlite incident database path.
func (c *Config) SQLitePath() (string, error) {
	if c.Incidents.SQLitePath != "" {
		return c.Incidents.SQLitePath, nil
	}
	dir, err := c.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.IncidentDBFile), nil
}
