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
	Config struct {
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		WorkDir          string
		FrontendBaseURL  string
		SendgridApiKey   string
		RollbarToken     string
		LogLevel         string
		defaultFromEmail string

		Server   serverConfig
		Database databaseConfig
		Redis    redisConfig
		Cache    cacheConfig
		Sync     syncConfig
		Auth     authConfig
		Local    localConfig
		I18n     i18nConfig
	}

	serverConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration // session timeout
		JWTRefreshExpirationDelta time.Duration
		JWTRefreshThreshold       time.Duration
		DisableReqLogs            bool
	}

	databaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	redisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	cacheConfig struct {
		Backend string // memory | redis
		TTL     time.Duration
	}

	syncConfig struct {
		RetryAttempts     int
		RetryDelay        time.Duration
		PollInterval      time.Duration
		MinSaveGap        time.Duration
		EnableRealtime    bool
		EnableOfflineMode bool
	}

	authConfig struct {
		MaxLoginAttempts          int
		LockoutDuration           time.Duration
		PasswordResetTimeoutDelta time.Duration
	}

	localConfig struct {
		Path     string // sqlite file backing the local fallback store
		FilesDir string // root of the file buckets
	}

	i18nConfig struct {
		DefaultLanguage string
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
}

func (dbConf databaseConfig) Address() string {
	return net.JoinHostPort(dbConf.Host, dbConf.Port)
}

// NewConfig reads the configuration from defaults, the optional `config/.env.<env>` file and the environment.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	wd, err := ProjectRoot()
	if err != nil {
		log.Fatal(err)
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "dev")
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("appName", "SchoolHub")
	v.SetDefault("secretKey", "x9#f2l!w0q^dkm1z-3bn$e7+rpt(s)8vyu=ajh&c64go*i5")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("logLevel", "info")

	v.SetDefault("serverHost", "0.0.0.0:8000")
	v.SetDefault("serverDebugHost", "0.0.0.0:4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 8*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshThreshold", 5*time.Minute)
	v.SetDefault("disableReqLogs", false)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "schoolhub")
	v.SetDefault("dbUser", "schoolhub")
	v.SetDefault("dbPassword", "")
	v.SetDefault("dbAdminUser", "postgres")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", env == "DEV" || env == "TEST")

	v.SetDefault("redisAddr", "127.0.0.1:6379")
	v.SetDefault("redisPassword", "")
	v.SetDefault("redisDB", 0)

	v.SetDefault("cacheBackend", "memory")
	v.SetDefault("cacheTTL", 5*time.Minute)

	v.SetDefault("syncRetryAttempts", 3)
	v.SetDefault("syncRetryDelay", time.Second)
	v.SetDefault("syncPollInterval", 30*time.Second)
	v.SetDefault("syncMinSaveGap", 5*time.Second)
	v.SetDefault("syncEnableRealtime", true)
	v.SetDefault("syncEnableOfflineMode", true)

	v.SetDefault("authMaxLoginAttempts", 5)
	v.SetDefault("authLockoutDuration", 15*time.Minute)
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("localPath", filepath.Join(wd, "var", "local.db"))
	v.SetDefault("localFilesDir", filepath.Join(wd, "var", "files"))

	v.SetDefault("i18nDefaultLanguage", "nl")

	v.SetEnvPrefix(env)
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		WorkDir:          wd,
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		LogLevel:         v.GetString("logLevel"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: serverConfig{
			Host:                      v.GetString("serverHost"),
			DebugHost:                 v.GetString("serverDebugHost"),
			ShutdownTimeout:           v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
			JWTRefreshThreshold:       v.GetDuration("jwtRefreshThreshold"),
			DisableReqLogs:            v.GetBool("disableReqLogs"),
		},
		Database: databaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
		Redis: redisConfig{
			Addr:     v.GetString("redisAddr"),
			Password: v.GetString("redisPassword"),
			DB:       v.GetInt("redisDB"),
		},
		Cache: cacheConfig{
			Backend: v.GetString("cacheBackend"),
			TTL:     v.GetDuration("cacheTTL"),
		},
		Sync: syncConfig{
			RetryAttempts:     v.GetInt("syncRetryAttempts"),
			RetryDelay:        v.GetDuration("syncRetryDelay"),
			PollInterval:      v.GetDuration("syncPollInterval"),
			MinSaveGap:        v.GetDuration("syncMinSaveGap"),
			EnableRealtime:    v.GetBool("syncEnableRealtime"),
			EnableOfflineMode: v.GetBool("syncEnableOfflineMode"),
		},
		Auth: authConfig{
			MaxLoginAttempts:          v.GetInt("authMaxLoginAttempts"),
			LockoutDuration:           v.GetDuration("authLockoutDuration"),
			PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		},
		Local: localConfig{
			Path:     v.GetString("localPath"),
			FilesDir: v.GetString("localFilesDir"),
		},
		I18n: i18nConfig{
			DefaultLanguage: v.GetString("i18nDefaultLanguage"),
		},
	}
}

// NewTestConfig returns the configuration used by tests: no .env lookup, no project root lookup.
func NewTestConfig() *Config {
	return &Config{
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		AppName:          "SchoolHub",
		SecretKey:        "test-secret",
		FrontendBaseURL:  "http://localhost:3000",
		LogLevel:         "debug",
		defaultFromEmail: "noreply@localhost",
		Server: serverConfig{
			JWTExpirationDelta:        8 * time.Hour,
			JWTRefreshExpirationDelta: 7 * 24 * time.Hour,
			JWTRefreshThreshold:       5 * time.Minute,
			ShutdownTimeout:           time.Second,
			DisableReqLogs:            true,
		},
		Cache: cacheConfig{Backend: "memory", TTL: 5 * time.Minute},
		Sync: syncConfig{
			RetryAttempts:     3,
			RetryDelay:        time.Millisecond,
			PollInterval:      30 * time.Second,
			MinSaveGap:        5 * time.Second,
			EnableRealtime:    true,
			EnableOfflineMode: true,
		},
		Auth: authConfig{
			MaxLoginAttempts:          5,
			LockoutDuration:           15 * time.Minute,
			PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		},
		I18n: i18nConfig{DefaultLanguage: "nl"},
	}
}
