package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервера мира.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	World     WorldConfig     `yaml:"world" toml:"world"`
	Landblock LandblockConfig `yaml:"landblock" toml:"landblock"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	EventBus  EventBusConfig  `yaml:"eventbus" toml:"eventbus"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
}

type ServerConfig struct {
	Name      string `yaml:"name" toml:"name"`
	AdminPort int    `yaml:"admin_port" toml:"admin_port"`
}

// WorldConfig управляет внешним планировщиком (менеджером ландблоков)
type WorldConfig struct {
	TickRate      time.Duration `yaml:"tick_rate" toml:"tick_rate"`
	MaxParallel   int           `yaml:"max_parallel" toml:"max_parallel"` // 0 — по числу CPU
	StatsInterval time.Duration `yaml:"stats_interval" toml:"stats_interval"`
	Permaload     []string      `yaml:"permaload" toml:"permaload"` // hex-идентификаторы, например "A9B4"
	Dungeons      []string      `yaml:"dungeons" toml:"dungeons"`   // ландблоки без соседей
	Terrain       TerrainConfig `yaml:"terrain" toml:"terrain"`
}

// TerrainConfig выбирает местность для физики
type TerrainConfig struct {
	Kind      string  `yaml:"kind" toml:"kind"` // open|perlin
	Seed      int64   `yaml:"seed" toml:"seed"`
	Scale     float64 `yaml:"scale" toml:"scale"`
	Threshold float64 `yaml:"threshold" toml:"threshold"` // доля проходимых высот для perlin
}

// LandblockConfig — таймеры жизненного цикла одного ландблока
type LandblockConfig struct {
	DormantInterval      time.Duration `yaml:"dormant_interval" toml:"dormant_interval"`
	UnloadInterval       time.Duration `yaml:"unload_interval" toml:"unload_interval"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval" toml:"heartbeat_interval"`
	DatabaseSaveInterval time.Duration `yaml:"database_save_interval" toml:"database_save_interval"`
	MonitorInterval      time.Duration `yaml:"monitor_interval" toml:"monitor_interval"`
}

type StorageConfig struct {
	Backend     string        `yaml:"backend" toml:"backend"` // badger|mysql|postgres|sqlite|redis|mongo|memory
	Path        string        `yaml:"path" toml:"path"`       // каталог badger / файл sqlite
	DSN         string        `yaml:"dsn" toml:"dsn"`
	RedisAddr   string        `yaml:"redis_addr" toml:"redis_addr"`
	RedisDB     int           `yaml:"redis_db" toml:"redis_db"`
	Database    string        `yaml:"database" toml:"database"` // база MongoDB
	SaveWorkers int           `yaml:"save_workers" toml:"save_workers"`
	SaveTimeout time.Duration `yaml:"save_timeout" toml:"save_timeout"`
}

// AuthConfig защищает изменяющие маршруты административного API
type AuthConfig struct {
	JWTSecret string            `yaml:"jwt_secret" toml:"jwt_secret"` // base64, не короче 32 байт; пусто — случайный
	TokenTTL  time.Duration     `yaml:"token_ttl" toml:"token_ttl"`
	Admins    []AdminCredential `yaml:"admins" toml:"admins"`
}

// AdminCredential — логин администратора и bcrypt-хэш пароля
type AdminCredential struct {
	Username     string `yaml:"username" toml:"username"`
	PasswordHash string `yaml:"password_hash" toml:"password_hash"`
}

type EventBusConfig struct {
	URL       string `yaml:"url" toml:"url"` // пусто — in-memory шина
	Stream    string `yaml:"stream" toml:"stream"`
	Retention int    `yaml:"retention_hours" toml:"retention_hours"`
	Buffer    int    `yaml:"buffer" toml:"buffer"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // "json" или "console"
	Dir    string `yaml:"dir" toml:"dir"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	ServiceName string `yaml:"service_name" toml:"service_name"`
}

// Defaults возвращает конфигурацию по умолчанию
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name:      "landblock-server",
			AdminPort: 8088,
		},
		World: WorldConfig{
			TickRate:      50 * time.Millisecond,
			StatsInterval: 30 * time.Second,
			Terrain:       TerrainConfig{Kind: "open", Scale: 0.05, Threshold: 0.7},
		},
		Landblock: DefaultLandblockConfig(),
		Storage: StorageConfig{
			Backend:     "badger",
			Path:        "data",
			SaveWorkers: 4,
			SaveTimeout: 10 * time.Second,
		},
		EventBus: EventBusConfig{
			Stream:    "LANDBLOCK",
			Retention: 24,
			Buffer:    1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "landblock-server",
		},
		Auth: AuthConfig{
			TokenTTL: 12 * time.Hour,
		},
	}
}

// DefaultLandblockConfig возвращает стандартные интервалы жизненного цикла
func DefaultLandblockConfig() LandblockConfig {
	return LandblockConfig{
		DormantInterval:      time.Minute,
		UnloadInterval:       30 * time.Minute,
		HeartbeatInterval:    5 * time.Second,
		DatabaseSaveInterval: 5 * time.Minute,
		MonitorInterval:      10 * time.Second,
	}
}

// Load читает YAML или TOML файл конфигурации (по расширению) поверх значений по умолчанию.
// Если path == "", пытается взять путь из ENV LANDBLOCK_CONFIG; без файла возвращает дефолты.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv("LANDBLOCK_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv применяет переопределения из переменных окружения
func (c *Config) applyEnv() {
	c.Server.AdminPort = getPortWithEnvFallback(c.Server.AdminPort, "LANDBLOCK_ADMIN_PORT", 8088)
	if dsn := os.Getenv("LANDBLOCK_STORAGE_DSN"); dsn != "" {
		c.Storage.DSN = dsn
	}
	if backend := os.Getenv("LANDBLOCK_STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = backend
	}
	if secret := os.Getenv("LANDBLOCK_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
}

// Validate проверяет согласованность интервалов
func (c *Config) Validate() error {
	lb := c.Landblock
	if lb.HeartbeatInterval <= 0 {
		return fmt.Errorf("landblock.heartbeat_interval must be > 0")
	}
	if lb.DormantInterval <= 0 || lb.UnloadInterval <= 0 {
		return fmt.Errorf("landblock dormant/unload intervals must be > 0")
	}
	if lb.UnloadInterval < lb.DormantInterval {
		return fmt.Errorf("landblock.unload_interval (%s) must not be shorter than dormant_interval (%s)",
			lb.UnloadInterval, lb.DormantInterval)
	}
	if c.World.TickRate <= 0 {
		return fmt.Errorf("world.tick_rate must be > 0")
	}
	switch c.World.Terrain.Kind {
	case "", "open", "perlin":
	default:
		return fmt.Errorf("world.terrain.kind %q: expected open or perlin", c.World.Terrain.Kind)
	}
	for i, adm := range c.Auth.Admins {
		if adm.Username == "" || adm.PasswordHash == "" {
			return fmt.Errorf("auth.admins[%d]: username and password_hash are required", i)
		}
	}
	return nil
}

// getPortWithEnvFallback возвращает порт с приоритетом: env -> config -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}
	if configPort > 0 {
		return configPort
	}
	return defaultPort
}
