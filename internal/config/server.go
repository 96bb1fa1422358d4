// Package config loads the server and client TOML configuration files
// (§6.2, §6.3): missing files fall back to documented defaults, and
// malformed values are clamped with a logged warning rather than
// rejected outright.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Server holds the recognised keys from §6.2.
type Server struct {
	Name string `toml:"name"`
	Port int    `toml:"port"`

	Public bool `toml:"public"`
	Slots  int  `toml:"slots"`

	AdminPasswd string `toml:"admin_passwd"`
	AuthKey     string `toml:"auth_key"`

	Map    string `toml:"map"`
	MapMD5 string `toml:"map_md5"`

	AllowModification bool `toml:"allow_modification"`
	HideMap           bool `toml:"hide_map"`

	GameMode  uint8 `toml:"game_mode"`
	QuickPots bool  `toml:"quick_pots"`
	DropItems bool  `toml:"allow_dropitems"`

	RespawnTimeSeconds int `toml:"respawn_time_seconds"`

	LogFile      string `toml:"log_file"`
	LogToStdout  bool   `toml:"log_to_stdout"`
	LogLevel     string `toml:"log_level"`

	Scripts []string `toml:"scripts"`

	TickRateMs int `toml:"tick_rate_ms"`

	BeUnconsciousBeforeDead bool `toml:"be_unconscious_before_dead"`

	Daemon bool `toml:"daemon"`

	PublicListURL string `toml:"public_list_url"`
}

// DefaultServer returns a Server config with its documented defaults
// (unnamed values default to the zero value of their type, which for
// bools is "off" and for strings is "").
func DefaultServer() Server {
	return Server{
		Name:               "Gothic Multiplayer Server",
		Port:               28906,
		Slots:              16,
		Map:                "newworld",
		RespawnTimeSeconds: 30,
		LogLevel:           "info",
		LogToStdout:        true,
		TickRateMs:         100,
		PublicListURL:      "http://gmp-master.example",
	}
}

const (
	maxNameLen        = 100
	maxAdminPasswdLen = 32
	maxAuthKeyLen     = 32
)

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true,
	"error": true, "critical": true, "off": true,
}

// LoadServer reads a TOML file at path into a Server, falling back to
// DefaultServer() if the file does not exist. Out-of-range values are
// corrected to their default with a warning (§7, Config error kind),
// rather than failing the load.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()

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

	cfg.sanitize()
	return cfg, nil
}

// sanitize clamps and corrects fields per §6.2 and §7's Config error kind
// ("out-of-range value (corrected to default with a warning)").
func (c *Server) sanitize() {
	def := DefaultServer()

	if len(c.Name) > maxNameLen {
		c.Name = c.Name[:maxNameLen]
	}
	if len(c.AdminPasswd) > maxAdminPasswdLen {
		slog.Warn("admin_passwd exceeds max length, truncating", "max", maxAdminPasswdLen)
		c.AdminPasswd = c.AdminPasswd[:maxAdminPasswdLen]
	}
	if len(c.AuthKey) > maxAuthKeyLen {
		slog.Warn("auth_key exceeds max length, truncating", "max", maxAuthKeyLen)
		c.AuthKey = c.AuthKey[:maxAuthKeyLen]
	}
	if c.RespawnTimeSeconds < -1 {
		slog.Warn("respawn_time_seconds out of range, using default", "value", c.RespawnTimeSeconds, "default", def.RespawnTimeSeconds)
		c.RespawnTimeSeconds = def.RespawnTimeSeconds
	}
	if c.TickRateMs <= 0 {
		slog.Warn("tick_rate_ms out of range, using default", "value", c.TickRateMs, "default", def.TickRateMs)
		c.TickRateMs = def.TickRateMs
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	} else if !validLogLevels[c.LogLevel] {
		slog.Warn("log_level unrecognised, using default", "value", c.LogLevel, "default", def.LogLevel)
		c.LogLevel = def.LogLevel
	}
	if c.Slots <= 0 {
		slog.Warn("slots out of range, using default", "value", c.Slots, "default", def.Slots)
		c.Slots = def.Slots
	}
}
