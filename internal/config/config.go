package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewTuningHolder),
)

// Config holds application configuration.
type Config struct {
	AppName          string
	AppVersion       string
	Environment      string
	HTTPAddr         string
	AuthCookieSecure bool
	AdminUsernames   []string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Weather   WeatherConfig
	MQTT      MQTTConfig

	Simulation SimulationOverrides
	TuningFile string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	ReadingsPerSecond float64
	ReadingsBurst     int
}

type WeatherConfig struct {
	BaseURL  string
	APIKey   string
	Units    string
	CacheTTL time.Duration
	Timeout  time.Duration
}

type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	Topic     string
}

// SimulationOverrides are env level switches layered over the tuning file.
type SimulationOverrides struct {
	Enabled  bool
	Mode     string
	Interval time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	cfg := Config{
		AppName:          getenv("APP_SERVICE", "plantcare"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      environment,
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		AuthCookieSecure: authCookieSecure,
		AdminUsernames:   getenvList("ADMIN_USERNAMES"),
		OTLPEndpoint:     getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "sqlite")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "plantcare"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "plant_data.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			ReadingsPerSecond: getenvFloat("RATE_LIMIT_READINGS_PER_SECOND", 2),
			ReadingsBurst:     getenvInt("RATE_LIMIT_READINGS_BURST", 20),
		},
		Weather: WeatherConfig{
			BaseURL:  getenv("WEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5"),
			APIKey:   strings.TrimSpace(getenv("WEATHER_API_KEY", "demo")),
			Units:    getenv("WEATHER_UNITS", "metric"),
			CacheTTL: getenvDuration("WEATHER_CACHE_TTL", 10*time.Minute),
			Timeout:  getenvDuration("WEATHER_TIMEOUT", 5*time.Second),
		},
		MQTT: MQTTConfig{
			BrokerURL: strings.TrimSpace(getenv("MQTT_BROKER_URL", "")),
			ClientID:  getenv("MQTT_CLIENT_ID", "plantcare-ingest"),
			Username:  getenv("MQTT_USERNAME", ""),
			Password:  getenv("MQTT_PASSWORD", ""),
			Topic:     getenv("MQTT_TOPIC", "plantcare/readings/+"),
		},

		Simulation: SimulationOverrides{
			Enabled:  getenvBool("SIMULATION_ENABLED", true),
			Mode:     strings.ToLower(strings.TrimSpace(getenv("SIMULATION_MODE", ""))),
			Interval: getenvDuration("SIMULATION_INTERVAL", 0),
		},
		TuningFile: getenv("PLANTCARE_TUNING_FILE", ""),
	}

	return cfg
}

// IsAdmin reports whether username is listed in ADMIN_USERNAMES.
func (c Config) IsAdmin(username string) bool {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return false
	}
	for _, admin := range c.AdminUsernames {
		if admin == username {
			return true
		}
	}
	return false
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
