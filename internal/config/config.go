package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Scope for every stored row. One deployment uses one app ID.
	AppID  string
	UserID string

	// Directory holding crate.db
	// Default: ~/.local/share/crate
	DataDir string

	// Poll interval for pending scan events (in milliseconds)
	PollInterval int

	LastFM  LastFMConfig
	Catalog CatalogConfig
	MQTT    MQTTConfig
	HTTP    HTTPConfig
	Reader  ReaderConfig

	// Discord application ID for Rich Presence. Empty disables it.
	DiscordAppID string
}

// LastFMConfig holds Last.fm specific configuration. Keys set here are
// copied into the credential store when the daemon starts.
type LastFMConfig struct {
	APIKey     string
	APISecret  string
	Username   string
	SessionKey string
	BaseURL    string
	Timeout    time.Duration
}

// CatalogConfig configures the Discogs barcode lookup.
type CatalogConfig struct {
	Token   string
	BaseURL string
}

// MQTTConfig configures the MQTT scan source. An empty Broker disables it.
type MQTTConfig struct {
	Broker   string
	Topic    string
	Username string
	Password string
	ClientID string
	QoS      int
}

// HTTPConfig configures the HTTP API. An empty Listen disables it.
type HTTPConfig struct {
	Listen string
	Token  string
}

// ReaderConfig configures a line-oriented tag reader device.
type ReaderConfig struct {
	Device   string
	Debounce time.Duration
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Config file locations (in order of precedence)
	v.AddConfigPath(getConfigDir())
	v.AddConfigPath(".")

	setDefaults(v)

	// Read config file (optional - don't fail if missing)
	_ = v.ReadInConfig()

	// CRATE_LASTFM_API_KEY overrides lastfm.api_key
	v.SetEnvPrefix("CRATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_id", "crate")
	v.SetDefault("user_id", "default")
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("poll_interval", 500)
	v.SetDefault("lastfm.timeout", 10*time.Second)
	v.SetDefault("mqtt.topic", "crate/scans")
	v.SetDefault("mqtt.client_id", "crate")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("reader.debounce", 3*time.Second)

	// Registered so AutomaticEnv can supply keys absent from the file.
	for _, key := range []string{
		"lastfm.api_key", "lastfm.api_secret", "lastfm.username", "lastfm.session_key", "lastfm.base_url",
		"catalog.token", "catalog.base_url",
		"mqtt.broker", "mqtt.username", "mqtt.password",
		"http.listen", "http.token",
		"reader.device",
		"discord.app_id",
	} {
		v.SetDefault(key, "")
	}
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		AppID:        v.GetString("app_id"),
		UserID:       v.GetString("user_id"),
		DataDir:      v.GetString("data_dir"),
		PollInterval: v.GetInt("poll_interval"),
		LastFM: LastFMConfig{
			APIKey:     v.GetString("lastfm.api_key"),
			APISecret:  v.GetString("lastfm.api_secret"),
			Username:   v.GetString("lastfm.username"),
			SessionKey: v.GetString("lastfm.session_key"),
			BaseURL:    v.GetString("lastfm.base_url"),
			Timeout:    v.GetDuration("lastfm.timeout"),
		},
		Catalog: CatalogConfig{
			Token:   v.GetString("catalog.token"),
			BaseURL: v.GetString("catalog.base_url"),
		},
		MQTT: MQTTConfig{
			Broker:   v.GetString("mqtt.broker"),
			Topic:    v.GetString("mqtt.topic"),
			Username: v.GetString("mqtt.username"),
			Password: v.GetString("mqtt.password"),
			ClientID: v.GetString("mqtt.client_id"),
			QoS:      v.GetInt("mqtt.qos"),
		},
		HTTP: HTTPConfig{
			Listen: v.GetString("http.listen"),
			Token:  v.GetString("http.token"),
		},
		Reader: ReaderConfig{
			Device:   v.GetString("reader.device"),
			Debounce: v.GetDuration("reader.debounce"),
		},
		DiscordAppID: v.GetString("discord.app_id"),
	}
}

// PollDuration returns PollInterval as a duration.
func (c *Config) PollDuration() time.Duration {
	if c.PollInterval <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.PollInterval) * time.Millisecond
}

// DBPath returns the path of the SQLite database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "crate.db")
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	if dir := os.Getenv("CRATE_CONFIG_DIR"); dir != "" {
		_ = os.MkdirAll(dir, 0755)
		return dir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	configDir := filepath.Join(homeDir, ".config", "crate")
	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".local", "share", "crate")
}

// Save writes configuration to file
func (c *Config) Save() error {
	v := viper.New()

	configFile := filepath.Join(getConfigDir(), "config.yaml")

	v.Set("app_id", c.AppID)
	v.Set("user_id", c.UserID)
	v.Set("data_dir", c.DataDir)
	v.Set("poll_interval", c.PollInterval)
	v.Set("lastfm.api_key", c.LastFM.APIKey)
	v.Set("lastfm.api_secret", c.LastFM.APISecret)
	v.Set("lastfm.username", c.LastFM.Username)
	v.Set("lastfm.session_key", c.LastFM.SessionKey)
	v.Set("lastfm.base_url", c.LastFM.BaseURL)
	v.Set("lastfm.timeout", c.LastFM.Timeout.String())
	v.Set("catalog.token", c.Catalog.Token)
	v.Set("catalog.base_url", c.Catalog.BaseURL)
	v.Set("mqtt.broker", c.MQTT.Broker)
	v.Set("mqtt.topic", c.MQTT.Topic)
	v.Set("mqtt.username", c.MQTT.Username)
	v.Set("mqtt.password", c.MQTT.Password)
	v.Set("mqtt.client_id", c.MQTT.ClientID)
	v.Set("mqtt.qos", c.MQTT.QoS)
	v.Set("http.listen", c.HTTP.Listen)
	v.Set("http.token", c.HTTP.Token)
	v.Set("reader.device", c.Reader.Device)
	v.Set("reader.debounce", c.Reader.Debounce.String())
	v.Set("discord.app_id", c.DiscordAppID)

	return v.WriteConfigAs(configFile)
}
