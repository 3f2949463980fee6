package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	GinMode  string `env:"GIN_MODE" envDefault:"release"`
	MongoURI string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	DBName   string `env:"DB_NAME" envDefault:"volunteer_listings"`

	JWTSecret  string        `env:"JWT_SECRET,required,notEmpty"`
	AccessTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"10"`

	MapAPIKey       string        `env:"MAP_API_KEY"`
	GeocodeCacheTTL time.Duration `env:"GEOCODE_CACHE_TTL" envDefault:"720h"`
	Timezone        string        `env:"APP_TIMEZONE" envDefault:"Asia/Kolkata"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	Reminder   ReminderConfig
	Mail       MailConfig
	Cloudinary CloudinaryConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig

	// Location is resolved from Timezone by Load.
	Location *time.Location `env:"-"`
}

type ReminderConfig struct {
	Lead            time.Duration `env:"REMINDER_LEAD" envDefault:"5m"`
	Persist         bool          `env:"REMINDER_PERSIST" envDefault:"true"`
	JanitorSchedule string        `env:"REMINDER_JANITOR_SCHEDULE" envDefault:"@every 1h"`
	Retention       time.Duration `env:"REMINDER_RETENTION" envDefault:"168h"`
}

type MailConfig struct {
	APIURL string `env:"ZEPTO_API_URL" envDefault:"https://api.zeptomail.com/v1.1/email"`
	APIKey string `env:"ZEPTO_API_KEY"`
	From   string `env:"EMAIL_FROM"`
	ToName string `env:"EMAIL_TO_NAME" envDefault:"Volunteer"`
}

type CloudinaryConfig struct {
	CloudName string `env:"CLOUDINARY_CLOUD_NAME"`
	APIKey    string `env:"CLOUDINARY_API_KEY"`
	APISecret string `env:"CLOUDINARY_API_SECRET"`
	Folder    string `env:"CLOUDINARY_FOLDER" envDefault:"listings"`
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file, using process environment")
	}
	return Parse()
}

// Parse builds a Config from the process environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc
	return &cfg, nil
}
