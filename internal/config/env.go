package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	JWTSecret   string

	AIAPIKey   string
	EmbedModel string
	GenModel   string
	EmbedDim   int
	// EmbedInputTokenLimit is the model's documented input cap; the embedder
	// truncates text to roughly EmbedInputTokenLimit * CharsPerToken characters.
	EmbedInputTokenLimit int
	CharsPerToken        float64

	ChunkSize        int
	ChunkOverlap     int
	EmbedConcurrency int
	EmbedMaxRetries  int
	IngestWorkers    int
	IngestQueueSize  int
	MaxDocRetries    int
	StaleAfter       time.Duration

	QueryCacheSize int
	QueryCacheTTL  time.Duration

	StorageType   string // "local" or "s3"
	UploadDir     string
	MaxUploadSize int64
	AwsAccessKey  string
	AwsSecretKey  string
	AwsRegion     string
	BucketName    string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	MailFrom     string
}

// LoadConfig loads the environment variables and returns the config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		AIAPIKey:             getEnv("GEMINI_API_KEY", ""),
		EmbedModel:           getEnv("EMBED_MODEL", "gemini-embedding-001"),
		GenModel:             getEnv("GEN_MODEL", "gemini-2.0-flash"),
		EmbedDim:             getEnvInt("EMBED_DIM", 768),
		EmbedInputTokenLimit: getEnvInt("EMBED_INPUT_TOKEN_LIMIT", 2048),
		CharsPerToken:        3.9,

		ChunkSize:        getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:     getEnvInt("CHUNK_OVERLAP", 200),
		EmbedConcurrency: getEnvInt("EMBED_CONCURRENCY", 4),
		EmbedMaxRetries:  getEnvInt("EMBED_MAX_RETRIES", 3),
		IngestWorkers:    getEnvInt("INGEST_WORKERS", 2),
		IngestQueueSize:  getEnvInt("INGEST_QUEUE_SIZE", 64),
		MaxDocRetries:    getEnvInt("MAX_DOC_RETRIES", 3),
		StaleAfter:       getEnvDur("STALE_AFTER", 30*time.Minute),

		QueryCacheSize: getEnvInt("QUERY_CACHE_SIZE", 512),
		QueryCacheTTL:  getEnvDur("QUERY_CACHE_TTL", 15*time.Minute),

		StorageType:   getEnv("STORAGE_TYPE", "local"),
		UploadDir:     getEnv("UPLOAD_DIR", "./uploads/documents"),
		MaxUploadSize: int64(getEnvInt("MAX_UPLOAD_SIZE", 10<<20)),
		AwsAccessKey:  getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:  getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:     getEnv("AWS_REGION", "us-east-2"),
		BucketName:    getEnv("BUCKET_NAME", "paperpilot-docs"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		MailFrom:     getEnv("MAIL_FROM", "no-reply@paperpilot.app"),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET not set")
	}

	return cfg
}

// MaxEmbedChars is the character budget derived from the model's token limit.
func (c *Config) MaxEmbedChars() int {
	return int(float64(c.EmbedInputTokenLimit) * c.CharsPerToken)
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvDur(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
