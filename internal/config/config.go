package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Room   RoomConfig   `mapstructure:"room"`
	Clock  ClockConfig  `mapstructure:"clock"`
	Client ClientConfig `mapstructure:"client"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Redis  RedisConfig  `mapstructure:"redis"`
	NATS   NATSConfig   `mapstructure:"nats"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
}

type ServerConfig struct {
	Addr             string `mapstructure:"addr"`
	BroadcastWorkers int    `mapstructure:"broadcast_workers"`
	BroadcastQueue   int    `mapstructure:"broadcast_queue"`
}

// RoomConfig 房间行为参数
// 防抖窗口、心跳超时、快照时效都是行为常量，但按部署可调
type RoomConfig struct {
	QueueCap               int           `mapstructure:"queue_cap"`
	DebounceWindow         time.Duration `mapstructure:"debounce_window"`
	HeartbeatTimeout       time.Duration `mapstructure:"heartbeat_timeout"`
	HeartbeatCheckInterval time.Duration `mapstructure:"heartbeat_check_interval"`
	EvictTimeout           time.Duration `mapstructure:"evict_timeout"`
	EvictInterval          time.Duration `mapstructure:"evict_interval"`
	SnapshotStaleness      time.Duration `mapstructure:"snapshot_staleness"`
}

type ClockConfig struct {
	ProbeCount     int           `mapstructure:"probe_count"`
	SampleWindow   int           `mapstructure:"sample_window"`
	DelayCeiling   time.Duration `mapstructure:"delay_ceiling"`
	ResyncInterval time.Duration `mapstructure:"resync_interval"`
}

type ClientConfig struct {
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	JoinTimeout          time.Duration `mapstructure:"join_timeout"`
	ReconnectMaxAttempts int           `mapstructure:"reconnect_max_attempts"`
	ReconnectBaseDelay   time.Duration `mapstructure:"reconnect_base_delay"`
}

type AuthConfig struct {
	TokenSecret string        `mapstructure:"token_secret"`
	TokenExpire time.Duration `mapstructure:"token_expire"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// Load 从指定路径加载配置，缺失项回落到默认值
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "musicroom")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.broadcast_workers", 16)
	v.SetDefault("server.broadcast_queue", 1024)

	v.SetDefault("room.queue_cap", 50)
	v.SetDefault("room.debounce_window", 300*time.Millisecond)
	v.SetDefault("room.heartbeat_timeout", 10*time.Minute)
	v.SetDefault("room.heartbeat_check_interval", 5*time.Minute)
	v.SetDefault("room.evict_timeout", 30*time.Minute)
	v.SetDefault("room.evict_interval", time.Minute)
	v.SetDefault("room.snapshot_staleness", 60*time.Second)

	v.SetDefault("clock.probe_count", 10)
	v.SetDefault("clock.sample_window", 10)
	v.SetDefault("clock.delay_ceiling", 500*time.Millisecond)
	v.SetDefault("clock.resync_interval", 60*time.Second)

	v.SetDefault("client.request_timeout", 5*time.Second)
	v.SetDefault("client.join_timeout", 10*time.Second)
	v.SetDefault("client.reconnect_max_attempts", 5)
	v.SetDefault("client.reconnect_base_delay", time.Second)

	v.SetDefault("auth.token_secret", "dev-secret-change-me")
	v.SetDefault("auth.token_expire", 24*time.Hour)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
}
