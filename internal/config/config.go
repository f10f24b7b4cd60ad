package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment         string
	EncryptionKeyBase64 string
	APIToken            string
	DBHost              string
	DBPort              string
	DBUsername          string
	DBPassword          string
	DBName              string
	DBSSLMode           string
	Port                string
	Timezone            string
}

func NewConfig() (*Config, error) {
	env := os.Getenv("MAILROOM_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment:         env,
		EncryptionKeyBase64: os.Getenv("MAILROOM_ENCRYPTION_KEY_BASE64"),
		APIToken:            os.Getenv("MAILROOM_API_TOKEN"),
		DBHost:              getEnvOrDefault("MAILROOM_DB_HOST", "localhost"),
		DBPort:              getEnvOrDefault("MAILROOM_DB_PORT", "5432"),
		DBUsername:          getEnvOrDefault("MAILROOM_DB_USER", "mailroom"),
		DBPassword:          os.Getenv("MAILROOM_DB_PASSWORD"),
		DBName:              getEnvOrDefault("MAILROOM_DB_NAME", "mailroom"),
		DBSSLMode:           getEnvOrDefault("MAILROOM_DB_SSLMODE", "disable"),
		Port:                getEnvOrDefault("PORT", "8080"),
		Timezone:            getEnvOrDefault("TZ", "UTC"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.EncryptionKeyBase64 == "" {
		return fmt.Errorf("MAILROOM_ENCRYPTION_KEY_BASE64 is required")
	}

	if c.APIToken == "" {
		return fmt.Errorf("MAILROOM_API_TOKEN is required")
	}

	if c.DBPassword == "" {
		return fmt.Errorf("MAILROOM_DB_PASSWORD is required")
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUsername,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
