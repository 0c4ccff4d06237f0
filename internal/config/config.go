package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/elmchat/elm-chat/pkg/config"
	"github.com/elmchat/elm-chat/pkg/storage"
)

type Config struct {
	Server     ServerConfig
	GRPC       GRPCConfig
	WebSocket  WebSocketConfig
	Cassandra  CassandraConfig
	Redis      RedisConfig
	Membership MembershipConfig
	Events     EventsConfig
	Auth       AuthConfig
	Storage    StorageConfig
	Mail       MailConfig
	Log        LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type GRPCConfig struct {
	Enabled bool
	Host    string
	Port    int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type CassandraConfig struct {
	Hosts             []string
	Keyspace          string
	Username          string
	Password          string
	Consistency       string
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	Timeout           time.Duration
	NumConns          int `mapstructure:"num_conns"`
	ReplicationFactor int `mapstructure:"replication_factor"`
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	KeyTTL   time.Duration `mapstructure:"key_ttl"`
}

// MembershipConfig selects the room membership backend: "memory" or "redis".
type MembershipConfig struct {
	Backend    string
	InstanceID string `mapstructure:"instance_id"`
}

// EventsConfig mirrors room broadcasts to a Redis channel.
type EventsConfig struct {
	Enabled bool
	Channel string
	// Buffer is the number of events queued for publishing before new
	// ones are dropped.
	Buffer int
}

type AuthConfig struct {
	JWTSecret          string        `mapstructure:"jwt_secret"`
	TokenTTL           time.Duration `mapstructure:"token_ttl"`
	Issuer             string
	Pepper             string
	BcryptCost         int  `mapstructure:"bcrypt_cost"`
	RequireSocketToken bool `mapstructure:"require_socket_token"`
}

type StorageConfig struct {
	storage.Config `mapstructure:",squash"`
	AvatarURLTTL   time.Duration `mapstructure:"avatar_url_ttl"`
	AvatarSize     int           `mapstructure:"avatar_size"`
	AvatarQuality  int           `mapstructure:"avatar_quality"`
}

type MailConfig struct {
	Enabled     bool
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	FrontendURL string `mapstructure:"frontend_url"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads config.yaml from configPath (optional) and the environment.
func Load(configPath string) (*Config, error) {
	v, err := pkgconfig.Load(configPath, "config")
	if err != nil {
		return nil, err
	}

	setDefaults(v)

	if err := pkgconfig.BindEnvs(v, map[string]string{
		"server.port":                  "PORT",
		"grpc.port":                    "GRPC_PORT",
		"cassandra.hosts":              "CASSANDRA_HOSTS",
		"cassandra.keyspace":           "CASSANDRA_KEYSPACE",
		"cassandra.username":           "CASSANDRA_USERNAME",
		"cassandra.password":           "CASSANDRA_PASSWORD",
		"redis.address":                "REDIS_ADDRESS",
		"redis.password":               "REDIS_PASSWORD",
		"membership.backend":           "MEMBERSHIP_BACKEND",
		"events.enabled":               "EVENTS_ENABLED",
		"auth.jwt_secret":              "JWT_SECRET",
		"auth.pepper":                  "PEPPER_STRING",
		"storage.type":                 "STORAGE_TYPE",
		"storage.s3.endpoint":          "S3_ENDPOINT",
		"storage.s3.bucket":            "S3_BUCKET",
		"storage.s3.region":            "S3_REGION",
		"storage.s3.access_key_id":     "S3_ACCESS_KEY_ID",
		"storage.s3.secret_access_key": "S3_SECRET_ACCESS_KEY",
		"mail.host":                    "SMTP_HOST",
		"mail.port":                    "SMTP_PORT",
		"mail.username":                "SMTP_USERNAME",
		"mail.password":                "SMTP_PASSWORD",
		"mail.from":                    "MAIL_FROM",
		"mail.frontend_url":            "FRONTEND_URL",
		"log.level":                    "LOG_LEVEL",
	}); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Server.ReadTimeout = pkgconfig.ParseDuration(v, "server.read_timeout", 15*time.Second)
	cfg.Server.WriteTimeout = pkgconfig.ParseDuration(v, "server.write_timeout", 15*time.Second)
	cfg.Server.IdleTimeout = pkgconfig.ParseDuration(v, "server.idle_timeout", 60*time.Second)
	cfg.Server.ShutdownTimeout = pkgconfig.ParseDuration(v, "server.shutdown_timeout", 30*time.Second)
	cfg.Server.AllowedOrigins = pkgconfig.SplitList(v, "server.allowed_origins")
	cfg.WebSocket.PingInterval = pkgconfig.ParseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.ParseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.ParseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Cassandra.Hosts = pkgconfig.SplitList(v, "cassandra.hosts")
	cfg.Cassandra.ConnectTimeout = pkgconfig.ParseDuration(v, "cassandra.connect_timeout", 10*time.Second)
	cfg.Cassandra.Timeout = pkgconfig.ParseDuration(v, "cassandra.timeout", 5*time.Second)
	cfg.Redis.KeyTTL = pkgconfig.ParseDuration(v, "redis.key_ttl", 24*time.Hour)
	cfg.Auth.TokenTTL = pkgconfig.ParseDuration(v, "auth.token_ttl", 2*time.Hour)
	cfg.Storage.AvatarURLTTL = pkgconfig.ParseDuration(v, "storage.avatar_url_ttl", 7*24*time.Hour)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 9090)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("cassandra.hosts", []string{"localhost:9042"})
	v.SetDefault("cassandra.keyspace", "elmchat")
	v.SetDefault("cassandra.consistency", "LOCAL_QUORUM")
	v.SetDefault("cassandra.connect_timeout", "10s")
	v.SetDefault("cassandra.timeout", "5s")
	v.SetDefault("cassandra.num_conns", 2)
	v.SetDefault("cassandra.replication_factor", 1)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "elmchat")
	v.SetDefault("redis.key_ttl", "24h")
	v.SetDefault("membership.backend", "memory")
	v.SetDefault("membership.instance_id", "")
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.channel", "elmchat:room:events")
	v.SetDefault("events.buffer", 256)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "2h")
	v.SetDefault("auth.issuer", "elm-chat")
	v.SetDefault("auth.pepper", "")
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.require_socket_token", false)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local.base_path", "./data/uploads")
	v.SetDefault("storage.local.public_url", "http://localhost:8080/files")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.avatar_url_ttl", "168h")
	v.SetDefault("storage.avatar_size", 256)
	v.SetDefault("storage.avatar_quality", 85)
	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.host", "localhost")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from", "no-reply@elm-chat.local")
	v.SetDefault("mail.frontend_url", "http://localhost:8000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}
