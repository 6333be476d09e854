package constants

const (
	// ConfigName is the base name of the configuration file (without extension).
	ConfigName = "config"
	// ConfigFormat is the configuration file format viper expects.
	ConfigFormat = "yaml"
)
