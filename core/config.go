package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
		CronSecret                string
	}

	DatabaseConfig struct {
		Engine        string // postgres | memory
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	MongoConfig struct {
		URI      string
		Database string
	}

	RedisConfig struct {
		URL string // empty disables redis
	}

	AIServiceConfig struct {
		URL          string
		Timeout      time.Duration
		MaxBodyBytes int64
	}

	EmailConfig struct {
		Provider       string // console | sendgrid | ses
		SendgridApiKey string
	}

	SMSConfig struct {
		Provider string // console | sns | none
		SenderID string
	}

	AWSConfig struct {
		Region string
	}

	RemindersConfig struct {
		Enabled          bool
		Schedule         string
		BatchSize        int
		MaxAttempts      int
		RetryBackoff     time.Duration
		LockTTL          time.Duration
		DefaultLeadHours []int
	}

	Config struct {
		Env              string
		Debug            bool
		TestMode         bool
		AppName          string
		Build            string
		SecretKey        string
		FrontendBaseURL  string
		RollbarToken     string
		LogLevel         string
		defaultFromEmail string

		Server    ServerConfig
		Database  DatabaseConfig
		Mongo     MongoConfig
		Redis     RedisConfig
		AIService AIServiceConfig
		Email     EmailConfig
		SMS       SMSConfig
		AWS       AWSConfig
		Reminders RemindersConfig
	}
)

// NewConfig loads the configuration of the current environment (ENV): defaults, then config/.env.<env>, then
// environment variables prefixed with the environment name (eg: PROD_DATABASE_HOST).
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "EduLens")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "n8#w0k1s^m!c3$edulens-dev-secret-key)2q+x7v")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "EduLens <noreply@localhost>")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("logLevel", "info")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.readTimeout", 10*time.Second)
	v.SetDefault("server.writeTimeout", 60*time.Second)
	v.SetDefault("server.shutdownTimeout", 10*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 28*24*time.Hour)
	v.SetDefault("server.passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("server.cronSecret", "")

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "edulens")
	v.SetDefault("database.user", "edulens")
	v.SetDefault("database.password", "edulens")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "edulens")

	v.SetDefault("redis.url", "")

	v.SetDefault("aiService.url", "http://localhost:8080")
	v.SetDefault("aiService.timeout", 60*time.Second)
	v.SetDefault("aiService.maxBodyBytes", int64(4<<20))

	v.SetDefault("email.provider", "console")
	v.SetDefault("email.sendgridApiKey", "")
	v.SetDefault("sms.provider", "console")
	v.SetDefault("sms.senderID", "EduLens")
	v.SetDefault("aws.region", "us-east-1")

	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.schedule", "@hourly")
	v.SetDefault("reminders.batchSize", 100)
	v.SetDefault("reminders.maxAttempts", 5)
	v.SetDefault("reminders.retryBackoff", 15*time.Minute)
	v.SetDefault("reminders.lockTTL", 10*time.Minute)
	v.SetDefault("reminders.defaultLeadHours", "168,24")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	if wd, err := os.Getwd(); err == nil {
		dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}
	v.AutomaticEnv()
	_ = v.BindEnv("aiService.url", "AI_SERVICE_URL")

	return &Config{
		Env:              env,
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		Build:            v.GetString("build"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		RollbarToken:     v.GetString("rollbarToken"),
		LogLevel:         v.GetString("logLevel"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			ReadTimeout:               v.GetDuration("server.readTimeout"),
			WriteTimeout:              v.GetDuration("server.writeTimeout"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: v.GetDuration("server.passwordResetTimeoutDelta"),
			CronSecret:                v.GetString("server.cronSecret"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("mongo.uri"),
			Database: v.GetString("mongo.database"),
		},
		Redis: RedisConfig{URL: v.GetString("redis.url")},
		AIService: AIServiceConfig{
			URL:          strings.TrimRight(v.GetString("aiService.url"), "/"),
			Timeout:      v.GetDuration("aiService.timeout"),
			MaxBodyBytes: v.GetInt64("aiService.maxBodyBytes"),
		},
		Email: EmailConfig{
			Provider:       v.GetString("email.provider"),
			SendgridApiKey: v.GetString("email.sendgridApiKey"),
		},
		SMS: SMSConfig{
			Provider: v.GetString("sms.provider"),
			SenderID: v.GetString("sms.senderID"),
		},
		AWS: AWSConfig{Region: v.GetString("aws.region")},
		Reminders: RemindersConfig{
			Enabled:          v.GetBool("reminders.enabled"),
			Schedule:         v.GetString("reminders.schedule"),
			BatchSize:        v.GetInt("reminders.batchSize"),
			MaxAttempts:      v.GetInt("reminders.maxAttempts"),
			RetryBackoff:     v.GetDuration("reminders.retryBackoff"),
			LockTTL:          v.GetDuration("reminders.lockTTL"),
			DefaultLeadHours: ParseIntList(v.GetString("reminders.defaultLeadHours")),
		},
	}
}

// NewTestConfig returns a config suited for tests: debug off, in-memory storage, console email & SMS.
func NewTestConfig() *Config {
	return &Config{
		Env:              "TEST",
		TestMode:         true,
		AppName:          "EduLens",
		Build:            "test",
		SecretKey:        "test-secret-key",
		FrontendBaseURL:  "http://localhost:3000",
		defaultFromEmail: "EduLens <noreply@localhost>",
		Server: ServerConfig{
			Host:                      "localhost",
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
			PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
			CronSecret:                "cron-secret",
		},
		Database:  DatabaseConfig{Engine: "memory"},
		AIService: AIServiceConfig{Timeout: 5 * time.Second, MaxBodyBytes: 1 << 20},
		Email:     EmailConfig{Provider: "console"},
		SMS:       SMSConfig{Provider: "console", SenderID: "EduLens"},
		Reminders: RemindersConfig{
			Enabled:          true,
			Schedule:         "@hourly",
			BatchSize:        50,
			MaxAttempts:      3,
			RetryBackoff:     15 * time.Minute,
			LockTTL:          time.Minute,
			DefaultLeadHours: []int{168, 24},
		},
	}
}

func (conf *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(conf.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: conf.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}
