// Package config loads service settings from the environment, an optional
// .env file and an optional YAML file named by CONFIG_FILE.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Corpus sources
const (
	CorpusSourceFile     = "file"
	CorpusSourcePostgres = "postgres"
)

// Config holds all service settings
type Config struct {
	Port string

	GeminiAPIKey    string
	ChatModel       string
	EmbedModel      string
	EmbedTimeout    time.Duration
	GenerateTimeout time.Duration
	MaxOutputTokens int32
	Temperature     float32

	RetrievalTopK int
	RetrievalMode string

	CorpusSource string
	CorpusPath   string
	DatabaseURL  string

	StorageType      string
	StorageLocalPath string
	S3Bucket         string
	S3Region         string
	S3Prefix         string
	AWSAccessKey     string
	AWSSecretKey     string

	LogLevel  string
	LogFormat string
}

// LoadEnvFiles loads .env from the working directory or the project root
// relative to cmd/<binary>/. A missing file is not an error.
func LoadEnvFiles() {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Printf("Warning: No .env file found, using environment variables")
		}
	}
}

// Load reads the configuration from the process environment
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom reads the configuration through v, applying defaults
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()
	if err := v.BindEnv("gemini_api_key", "GEMINI_API_KEY", "GOOGLE_API_KEY"); err != nil {
		return nil, err
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Port:             v.GetString("port"),
		GeminiAPIKey:     v.GetString("gemini_api_key"),
		ChatModel:        v.GetString("gemini_chat_model"),
		EmbedModel:       v.GetString("gemini_embed_model"),
		EmbedTimeout:     v.GetDuration("embed_timeout"),
		GenerateTimeout:  v.GetDuration("generate_timeout"),
		MaxOutputTokens:  v.GetInt32("max_output_tokens"),
		Temperature:      float32(v.GetFloat64("temperature")),
		RetrievalTopK:    v.GetInt("retrieval_top_k"),
		RetrievalMode:    strings.ToLower(v.GetString("retrieval_mode")),
		CorpusSource:     strings.ToLower(v.GetString("corpus_source")),
		CorpusPath:       v.GetString("corpus_path"),
		DatabaseURL:      v.GetString("database_url"),
		StorageType:      strings.ToLower(v.GetString("storage_type")),
		StorageLocalPath: v.GetString("storage_local_path"),
		S3Bucket:         v.GetString("aws_s3_bucket"),
		S3Region:         v.GetString("aws_region"),
		S3Prefix:         v.GetString("aws_s3_prefix"),
		AWSAccessKey:     v.GetString("aws_access_key_id"),
		AWSSecretKey:     v.GetString("aws_secret_access_key"),
		LogLevel:         v.GetString("log_level"),
		LogFormat:        strings.ToLower(v.GetString("log_format")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("gemini_chat_model", "gemini-2.5-flash")
	v.SetDefault("gemini_embed_model", "text-embedding-004")
	v.SetDefault("embed_timeout", 30*time.Second)
	v.SetDefault("generate_timeout", 120*time.Second)
	v.SetDefault("max_output_tokens", 16384)
	v.SetDefault("temperature", 0.2)
	v.SetDefault("retrieval_top_k", 6)
	v.SetDefault("retrieval_mode", "auto")
	v.SetDefault("corpus_source", CorpusSourceFile)
	v.SetDefault("corpus_path", "")
	v.SetDefault("database_url", "")
	v.SetDefault("storage_type", "local")
	v.SetDefault("storage_local_path", "./data/cache")
	v.SetDefault("aws_s3_bucket", "")
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("aws_s3_prefix", "")
	v.SetDefault("aws_access_key_id", "")
	v.SetDefault("aws_secret_access_key", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// Validate checks value ranges and required combinations
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if c.EmbedTimeout <= 0 || c.GenerateTimeout <= 0 {
		errs = append(errs, errors.New("EMBED_TIMEOUT and GENERATE_TIMEOUT must be positive"))
	}
	if c.MaxOutputTokens <= 0 {
		errs = append(errs, errors.New("MAX_OUTPUT_TOKENS must be positive"))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, errors.New("TEMPERATURE must be between 0 and 2"))
	}
	if c.RetrievalTopK <= 0 {
		errs = append(errs, errors.New("RETRIEVAL_TOP_K must be positive"))
	}
	switch c.RetrievalMode {
	case "auto", "semantic", "keyword":
	default:
		errs = append(errs, fmt.Errorf("unknown RETRIEVAL_MODE %q", c.RetrievalMode))
	}
	switch c.CorpusSource {
	case CorpusSourceFile:
	case CorpusSourcePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when CORPUS_SOURCE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CORPUS_SOURCE %q", c.CorpusSource))
	}
	switch c.StorageType {
	case "local":
		if c.StorageLocalPath == "" {
			errs = append(errs, errors.New("STORAGE_LOCAL_PATH is required for local storage"))
		}
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("AWS_S3_BUCKET is required for S3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_TYPE %q", c.StorageType))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
