package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Host      HostConfig      `mapstructure:"host"`
	Sentinel  SentinelConfig  `mapstructure:"sentinel"`
	Naming    NamingConfig    `mapstructure:"naming"`
	Handshake HandshakeConfig `mapstructure:"handshake"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Power     PowerConfig     `mapstructure:"power"`
	Wake      WakeConfig      `mapstructure:"wake"`
	Inbox     InboxConfig     `mapstructure:"inbox"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type AuthConfig struct {
	JWTSecretEnv      string        `mapstructure:"jwt_secret_env"`
	TokenTTL          time.Duration `mapstructure:"token_ttl"`
	AdminUsername     string        `mapstructure:"admin_username"`
	AdminPasswordHash string        `mapstructure:"admin_password_hash"`
}

// HostConfig describes the tracked high-power machine.
type HostConfig struct {
	IP         string `mapstructure:"ip"`
	MACAddress string `mapstructure:"mac_address"`
	HealthURL  string `mapstructure:"health_url"`
	// InboxURL is the host endpoint queued files are relocated to.
	InboxURL string `mapstructure:"inbox_url"`
}

// SentinelConfig describes this node.
type SentinelConfig struct {
	IP string `mapstructure:"ip"`
}

type NamingConfig struct {
	PiholeURL         string `mapstructure:"pihole_url"`
	PiholePasswordEnv string `mapstructure:"pihole_password_env"`
	Hostname          string `mapstructure:"hostname"`
}

type HandshakeConfig struct {
	SecretEnv    string        `mapstructure:"secret_env"`
	ReplayWindow time.Duration `mapstructure:"replay_window"`
	ClockSkew    time.Duration `mapstructure:"clock_skew"`
}

type HeartbeatConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	FastInterval     time.Duration `mapstructure:"fast_interval"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
}

type PowerConfig struct {
	SampleURL      string        `mapstructure:"sample_url"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	StaleAfter     time.Duration `mapstructure:"stale_after"`
}

type WakeConfig struct {
	BroadcastAddr string        `mapstructure:"broadcast_addr"`
	Port          int           `mapstructure:"port"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

type InboxConfig struct {
	Dir             string        `mapstructure:"dir"`
	TransferTimeout time.Duration `mapstructure:"transfer_timeout"`
}

type StorageConfig struct {
	StatePath   string `mapstructure:"state_path"`
	SnapshotDir string `mapstructure:"snapshot_dir"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	viper.SetDefault("server.http_port", 8000)
	viper.SetDefault("server.shutdown_timeout", "30s")

	viper.SetDefault("auth.jwt_secret_env", "BALUPI_JWT_SECRET")
	viper.SetDefault("auth.token_ttl", "12h")
	viper.SetDefault("auth.admin_username", "admin")

	viper.SetDefault("naming.pihole_url", "http://127.0.0.1:8080")
	viper.SetDefault("naming.pihole_password_env", "BALUPI_PIHOLE_PASSWORD")
	viper.SetDefault("naming.hostname", "baluhost.local")

	viper.SetDefault("handshake.secret_env", "BALUPI_HANDSHAKE_SECRET")
	viper.SetDefault("handshake.replay_window", "60s")
	viper.SetDefault("handshake.clock_skew", "5s")

	viper.SetDefault("heartbeat.interval", "30s")
	viper.SetDefault("heartbeat.fast_interval", "5s")
	viper.SetDefault("heartbeat.probe_timeout", "5s")
	viper.SetDefault("heartbeat.failure_threshold", 3)

	viper.SetDefault("power.sample_interval", "30s")
	viper.SetDefault("power.stale_after", "5m")

	viper.SetDefault("wake.broadcast_addr", "255.255.255.255")
	viper.SetDefault("wake.port", 9)
	viper.SetDefault("wake.max_attempts", 12)
	viper.SetDefault("wake.shutdown_grace", "15s")

	viper.SetDefault("inbox.dir", "./data/inbox")
	viper.SetDefault("inbox.transfer_timeout", "120s")

	viper.SetDefault("storage.state_path", "./data/balupi.db")
	viper.SetDefault("storage.snapshot_dir", "./data/snapshot")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("BALUPI")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// GetJWTSecret loads the dashboard token secret from the environment.
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "BALUPI_JWT_SECRET"
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		// Development fallback only.
		return "dev-secret-change-in-production-min-32-chars"
	}
	return secret
}

// GetHandshakeSecret loads the shared handshake secret from the environment.
func (h *HandshakeConfig) GetHandshakeSecret() string {
	envVar := h.SecretEnv
	if envVar == "" {
		envVar = "BALUPI_HANDSHAKE_SECRET"
	}
	return os.Getenv(envVar)
}

// GetPiholePassword loads the Pi-hole admin password from the environment.
func (n *NamingConfig) GetPiholePassword() string {
	envVar := n.PiholePasswordEnv
	if envVar == "" {
		envVar = "BALUPI_PIHOLE_PASSWORD"
	}
	return os.Getenv(envVar)
}
