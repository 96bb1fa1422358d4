package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Client holds the client-side connection and resource-download settings.
// The shape mirrors Server's Load/Default pattern for consistency.
type Client struct {
	ServerIP   string `toml:"server_ip"`
	ServerPort int    `toml:"server_port"`

	PlayerName string `toml:"player_name"`

	DownloadBasePath string `toml:"download_base_path"`
	DownloadToken    string `toml:"download_token"`

	InterpolationSnapDistance   float64 `toml:"interpolation_snap_distance"`
	InterpolationSmoothDistance float64 `toml:"interpolation_smooth_distance"`

	LogLevel string `toml:"log_level"`
}

// DefaultClient returns documented client defaults (§4.10's 400/50-unit
// thresholds, kept configurable per the §9 Open Question on tuning).
func DefaultClient() Client {
	return Client{
		ServerIP:                    "127.0.0.1",
		ServerPort:                  28906,
		DownloadBasePath:            "/public",
		InterpolationSnapDistance:   400,
		InterpolationSmoothDistance: 50,
		LogLevel:                    "info",
	}
}

// LoadClient reads a TOML file at path into a Client, falling back to
// DefaultClient() if the file does not exist.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.InterpolationSnapDistance <= 0 {
		cfg.InterpolationSnapDistance = DefaultClient().InterpolationSnapDistance
	}
	if cfg.InterpolationSmoothDistance <= 0 {
		cfg.InterpolationSmoothDistance = DefaultClient().InterpolationSmoothDistance
	}
	return cfg, nil
}
