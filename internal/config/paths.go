package config

import "path/filepath"

const (
	// Layout under GEOSTREAM_HOME.
	ConfigFilePath  = "config.toml"
	DataDirPath     = "data"
	HistoryFilePath = "history"
	PIDFilePath     = "geostream.pid"
)

func homeConfigPath(home string) string {
	return filepath.Join(home, ConfigFilePath)
}

func defaultHomePath(home string) string {
	return filepath.Join(home, ".geostream")
}

func (c *Config) ConfigPath() string {
	return homeConfigPath(c.HomeDir)
}

func (c *Config) DataDir() string {
	return filepath.Join(c.HomeDir, DataDirPath)
}

func (c *Config) PIDPath() string {
	return filepath.Join(c.DataDir(), PIDFilePath)
}

// HistoryPath is the console REPL history file.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir(), HistoryFilePath)
}
