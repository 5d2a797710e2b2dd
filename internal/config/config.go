package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Node struct {
		Name     string `mapstructure:"name"`
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"node"`

	Network struct {
		ListenAddr       string        `mapstructure:"listen_addr"`
		MasterAddr       string        `mapstructure:"master_addr"`
		Secret           string        `mapstructure:"secret"`
		DrainInterval    time.Duration `mapstructure:"drain_interval"`
		WriteTimeout     time.Duration `mapstructure:"write_timeout"`
		HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
		MaxFrameSize     int           `mapstructure:"max_frame_size"`
	} `mapstructure:"network"`

	TLS struct {
		CertFile           string `mapstructure:"cert_file"`
		KeyFile            string `mapstructure:"key_file"`
		CAFile             string `mapstructure:"ca_file"`
		ServerName         string `mapstructure:"server_name"`
		InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
	} `mapstructure:"tls"`

	Arena struct {
		CountdownInterval time.Duration `mapstructure:"countdown_interval"`
		CountdownSeconds  int           `mapstructure:"countdown_seconds"`
		Games             []GameSpec    `mapstructure:"games"`
	} `mapstructure:"arena"`

	API struct {
		ListenAddr string `mapstructure:"listen_addr"`
	} `mapstructure:"api"`
}

// GameSpec describes one arena a slave hosts on startup.
type GameSpec struct {
	Minigame string `mapstructure:"minigame"`
	Tag      string `mapstructure:"tag"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node.name", "slave-1")
	v.SetDefault("node.log_level", "info")

	v.SetDefault("network.listen_addr", ":29631")
	v.SetDefault("network.master_addr", "127.0.0.1:29631")
	v.SetDefault("network.secret", "")
	v.SetDefault("network.drain_interval", 10*time.Millisecond)
	v.SetDefault("network.write_timeout", 5*time.Second)
	v.SetDefault("network.handshake_timeout", 10*time.Second)
	v.SetDefault("network.max_frame_size", 1<<20)

	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")
	v.SetDefault("tls.ca_file", "")
	v.SetDefault("tls.server_name", "pexel.eu")
	v.SetDefault("tls.insecure_skip_verify", false)

	v.SetDefault("arena.countdown_interval", time.Second)
	v.SetDefault("arena.countdown_seconds", 10)

	v.SetDefault("api.listen_addr", "")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("PEXEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c, err := unmarshal(newViper())
	if err != nil {
		// defaults are static, this only fires on a programming error
		panic(err)
	}
	return c
}

// LoadConfig reads a YAML file at path, applies PEXEL_* environment
// overrides and validates the result. An empty path loads defaults and
// environment only.
func LoadConfig(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	c, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &c, nil
}

// Validate rejects values the network layer cannot run with.
func (c *Config) Validate() error {
	if c.Network.Secret == "" {
		return fmt.Errorf("network.secret must be set")
	}
	if c.Network.DrainInterval <= 0 {
		return fmt.Errorf("network.drain_interval must be positive, got %s", c.Network.DrainInterval)
	}
	if c.Network.WriteTimeout <= 0 {
		return fmt.Errorf("network.write_timeout must be positive, got %s", c.Network.WriteTimeout)
	}
	if c.Network.MaxFrameSize < 8 {
		return fmt.Errorf("network.max_frame_size too small: %d", c.Network.MaxFrameSize)
	}
	if c.Arena.CountdownInterval <= 0 {
		return fmt.Errorf("arena.countdown_interval must be positive, got %s", c.Arena.CountdownInterval)
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("tls.cert_file and tls.key_file must be set together")
	}
	return nil
}
