package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации robyd.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// Лимит запросов к API в секунду и размер всплеска
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type GRPCConfig struct {
	Port int `mapstructure:"port"` // 0 - gRPC выключен
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // пусто - /metrics на основном HTTP
}

// DatabaseConfig описывает подключение к PostgreSQL. Пустой URL - хранилище в памяти.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub и защита от повторов).
// Пустой Addr - режим одного инстанса.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT для read API.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"` // Только для выдачи токенов
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	Issuer         string        `mapstructure:"issuer"`
	// Операторы API: имя -> bcrypt хэш пароля и scopes
	Users      map[string]UserConfig `mapstructure:"users"`
	PublicKey  []byte
	PrivateKey []byte
}

type UserConfig struct {
	PasswordHash string   `mapstructure:"password_hash"`
	Scopes       []string `mapstructure:"scopes"`
}

// EngineConfig: настройки хоста исполнения.
type EngineConfig struct {
	AuditBufferSize    int           `mapstructure:"audit_buffer_size"`
	AuditBatchSize     int           `mapstructure:"audit_batch_size"`
	AuditFlushInterval time.Duration `mapstructure:"audit_flush_interval"`

	// Настройки Circuit Breaker для хранилища
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	CBMaxFailures uint32        `mapstructure:"cb_max_failures"`

	RetryAttempts uint          `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	CallTimeout   time.Duration `mapstructure:"call_timeout"`

	DepositPerByte      uint64        `mapstructure:"deposit_per_byte"`
	ReplayWindow        time.Duration `mapstructure:"replay_window"`
	MaxProofLength      int           `mapstructure:"max_proof_length"`
	StrictCommandLevels bool          `mapstructure:"strict_command_levels"`
	EStopResyncInterval time.Duration `mapstructure:"estop_resync_interval"` // 0 - без пересборки
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
// path: явный путь к файлу (флаг --config), пустой - поиск по умолчанию.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")    // имя файла без расширения
		v.SetConfigType("yaml")      // формат
		v.AddConfigPath(".")         // ищем в корне
		v.AddConfigPath("./configs") // и в папке с конфигами
	}

	// Позволяет перекрывать конфиг: SERVER_PORT=9000 перекроет server.port
	v.SetEnvPrefix("ROBY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет - работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// Сначала проверяем, не лежит ли сам PEM-ключ в ENV (для Docker/K8s),
	// если нет - читаем файл по указанному пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "ROBY_AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "ROBY_AUTH_PRIVATE_KEY_DATA")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit", 200.0)
	v.SetDefault("server.rate_burst", 50)
	v.SetDefault("grpc.port", 9090)
	v.SetDefault("metrics.addr", "")
	// Пустые значения по умолчанию нужны, чтобы viper видел ключи из ENV
	v.SetDefault("database.url", "")
	v.SetDefault("database.migrate", false)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("auth.public_key_path", "")
	v.SetDefault("auth.private_key_path", "")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.issuer", "robyd")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("engine.audit_buffer_size", 10000)
	v.SetDefault("engine.audit_batch_size", 100)
	v.SetDefault("engine.audit_flush_interval", 500*time.Millisecond)
	v.SetDefault("engine.cb_max_requests", 3)
	v.SetDefault("engine.cb_interval", 5*time.Second)
	v.SetDefault("engine.cb_timeout", 30*time.Second)
	v.SetDefault("engine.cb_max_failures", 5)
	v.SetDefault("engine.retry_attempts", 3)
	v.SetDefault("engine.retry_delay", 20*time.Millisecond)
	v.SetDefault("engine.call_timeout", 10*time.Second)
	v.SetDefault("engine.deposit_per_byte", 0)
	v.SetDefault("engine.replay_window", 10*time.Minute)
	v.SetDefault("engine.max_proof_length", 32)
	v.SetDefault("engine.strict_command_levels", false)
	v.SetDefault("engine.estop_resync_interval", 30*time.Second)
}

// Validate отсекает заведомо нерабочие значения до старта сервисов.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.GRPC.Port < 0 || c.GRPC.Port > 65535 {
		return fmt.Errorf("config: grpc.port %d out of range", c.GRPC.Port)
	}
	if c.Engine.MaxProofLength < 1 || c.Engine.MaxProofLength > 64 {
		return fmt.Errorf("config: engine.max_proof_length must be in [1, 64], got %d", c.Engine.MaxProofLength)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("config: server.rate_limit must not be negative")
	}
	return nil
}

// loadKeyResource — ключ из ENV (PEM целиком) или из файла
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
