// Package config loads service settings into the shared gconfig store.
package config

import (
	"os"
	"path/filepath"

	"github.com/Laisky/disaster-alert/library/log"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	"github.com/Laisky/zap"
	"github.com/joho/godotenv"
)

// LoadFromFile loads the yaml settings file, panics on failure.
func LoadFromFile(cfgPath string) {
	gconfig.Shared.Set("cfg_dir", filepath.Dir(cfgPath))
	if err := gconfig.Shared.LoadFromFile(cfgPath); err != nil {
		log.Logger.Panic("load configuration",
			zap.Error(err),
			zap.String("config", cfgPath))
	}

	log.Logger.Info("load configuration",
		zap.String("config", cfgPath))
}

// envBindings maps environment variables onto settings keys.
// Secrets usually live in .env rather than in the yaml file.
var envBindings = map[string]string{
	"MONGO_ADDR":          "settings.db.mongo.addr",
	"MONGO_DB":            "settings.db.mongo.db",
	"MONGO_USER":          "settings.db.mongo.user",
	"MONGO_PASSWORD":      "settings.db.mongo.pwd",
	"MONGO_AUTH_DB":       "settings.db.mongo.auth_db",
	"REDIS_ADDR":          "settings.db.redis.addr",
	"REDIS_PASSWORD":      "settings.db.redis.pwd",
	"JWT_SECRET":          "settings.secret",
	"CLASSIFIER_API_KEY":  "settings.classifier.api_key",
	"CLASSIFIER_API_BASE": "settings.classifier.api_base",
	"CLASSIFIER_MODEL":    "settings.classifier.model",
	"WEATHER_API_KEY":     "settings.weather.api_key",
	"SMTP_HOST":           "settings.mail.host",
	"SMTP_PORT":           "settings.mail.port",
	"SMTP_USER":           "settings.mail.user",
	"SMTP_PASS":           "settings.mail.pwd",
	"MAIL_FROM":           "settings.mail.from",
	"APP_URL":             "settings.web.app_url",
	"S3_ENDPOINT":         "settings.s3.endpoint",
	"S3_ACCESS_KEY":       "settings.s3.access_key",
	"S3_SECRET_KEY":       "settings.s3.secret_key",
	"S3_BUCKET":           "settings.s3.bucket",
	"S3_PUBLIC_URL":       "settings.s3.public_url",
}

// LoadEnv reads an optional dotenv file and copies known variables
// into gconfig.Shared. A missing file is not an error.
func LoadEnv(envPath string) error {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(err, "load env file %q", envPath)
		}
	}

	applied := applyEnv(os.LookupEnv, gconfig.Shared.Set)
	if applied > 0 {
		log.Logger.Info("settings overridden by environment", zap.Int("count", applied))
	}

	return nil
}

// applyEnv copies every bound variable found by lookup into set and
// returns how many were applied.
func applyEnv(lookup func(string) (string, bool), set func(string, any)) (applied int) {
	for env, key := range envBindings {
		val, ok := lookup(env)
		if !ok || val == "" {
			continue
		}

		set(key, val)
		applied++
	}

	return applied
}
