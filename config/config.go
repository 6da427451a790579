package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	Auth       AuthConfig       `json:"auth"`
	Logging    LoggingConfig    `json:"logging"`
	DenseIndex DenseIndexConfig `json:"dense_index"`
	Embedder   EmbedderConfig   `json:"embedder"`
	Reranker   RerankerConfig   `json:"reranker"`
	LLM        LLMConfig        `json:"llm"`
	Retrieval  RetrievalConfig  `json:"retrieval"`
	Precedence PrecedenceConfig `json:"precedence"`
	Safety     SafetyConfig     `json:"safety"`
	Citation   CitationConfig   `json:"citation"`
	Cache      CacheConfig      `json:"cache"`
	Budget     BudgetConfig     `json:"budget"`
	Coding     CodingConfig     `json:"coding"`
	Session    SessionConfig    `json:"session"`
	Corpus     CorpusConfig     `json:"corpus"`
}

type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	IdleTimeout  int    `json:"idle_timeout"`
}

type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	SSLMode      string `json:"ssl_mode"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
	MaxLifetime  int    `json:"max_lifetime"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Enabled  bool   `json:"enabled"`
}

type AuthConfig struct {
	JWTSecret      string   `json:"jwt_secret"`
	JWTExpiration  int      `json:"jwt_expiration"`
	AllowedOrigins []string `json:"allowed_origins"`
	AllowedIssuers []string `json:"allowed_issuers"`
}

type LoggingConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
}

// DenseIndexConfig configures the vector-store KNN client.
type DenseIndexConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	Timeout int    `json:"timeout"`
}

// EmbedderConfig configures the query/article embedding encoder.
type EmbedderConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	Timeout int     `json:"timeout"`
}

// RerankerConfig configures the cross-encoder reranker client.
type RerankerConfig struct {
	BaseURL   string `json:"base_url"`
	APIKey    string `json:"api_key"`
	Timeout   int    `json:"timeout"`
	BatchSize int    `json:"batch_size"`
	Enabled   bool   `json:"enabled"`
}

// LLMConfig configures the synthesis model client.
type LLMConfig struct {
	BaseURL    string `json:"base_url"`
	APIKey     string `json:"api_key"`
	Model      string `json:"model"`
	Timeout    int    `json:"timeout"`
	MaxRetries int    `json:"max_retries"`
}

// RetrievalConfig holds the hybrid retriever's tunables.
type RetrievalConfig struct {
	TopM            int `json:"top_m"`
	TopK            int `json:"top_k"`
	RerankerEnabled bool `json:"reranker_enabled"`
}

// PrecedenceConfig holds the precedence model's per-domain half-lives and
// the A1 recency floor, enumerated per domain the way the spec names them.
type PrecedenceConfig struct {
	HalfLifeCodingBilling        float64 `json:"halflife_coding_billing"`
	HalfLifeTechnologyNavigation float64 `json:"halflife_technology_navigation"`
	HalfLifeAblation             float64 `json:"halflife_ablation"`
	HalfLifeClinical             float64 `json:"halflife_clinical"`
	HalfLifeLungVolumeReduction  float64 `json:"halflife_lung_volume_reduction"`
	A1Floor                      float64 `json:"a1_floor"`
}

// SafetyConfig holds the safety checker's keyword lists and thresholds.
type SafetyConfig struct {
	PediatricKeywords     []string `json:"pediatric_keywords"`
	EmergencyPatterns     []string `json:"emergency_patterns"`
	DoseConfirmMinSources int      `json:"dose_confirm_min_sources"`
	DoseVariancePct       float64  `json:"dose_variance_pct"`
}

// CitationConfig holds the citation resolver's visibility policy.
type CitationConfig struct {
	VisibleDocTypes []string `json:"visible_doctypes"`
}

// CacheConfig holds the result cache's TTL and size bound.
type CacheConfig struct {
	TTLSec int `json:"ttl_sec"`
	Max    int `json:"max"`
}

// BudgetConfig holds the per-request latency budgets.
type BudgetConfig struct {
	RequestMs   int `json:"request_ms"`
	EmergencyMs int `json:"emergency_ms"`
}

// CodingConfig points at the ordered knowledge-base files the procedural
// coder merges, later files overriding earlier ones key by key.
type CodingConfig struct {
	KBFilePaths []string `json:"kb_file_paths"`
}

// CorpusConfig points at the ingestion collaborator's startup handoff: a
// newline-delimited chunk stream and a citation index, both loaded once at
// process start.
type CorpusConfig struct {
	ChunksPath        string `json:"chunks_path"`
	CitationIndexPath string `json:"citation_index_path"`
}

// SessionConfig bounds per-session conversation history.
type SessionConfig struct {
	MaxTurns   int `json:"max_turns"`
	TTLSeconds int `json:"ttl_seconds"`
}

func LoadConfig() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 30),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "ipassist"),
			Password:     getEnv("DB_PASSWORD", "ipassist"),
			Name:         getEnv("DB_NAME", "ipassist_core"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},
		Auth: AuthConfig{
			JWTSecret:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			JWTExpiration:  getEnvAsInt("JWT_EXPIRATION", 3600),
			AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedIssuers: getEnvAsSlice("JWT_ALLOWED_ISSUERS", []string{"ipassist-core"}),
		},
		Logging: LoggingConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Console: getEnvAsBool("LOG_CONSOLE", false),
		},
		DenseIndex: DenseIndexConfig{
			BaseURL: getEnv("DENSE_INDEX_BASE_URL", "http://localhost:8090"),
			APIKey:  getEnv("DENSE_INDEX_API_KEY", ""),
			Timeout: getEnvAsInt("DENSE_INDEX_TIMEOUT", 2),
		},
		Embedder: EmbedderConfig{
			BaseURL: getEnv("EMBEDDER_BASE_URL", "http://localhost:8091"),
			APIKey:  getEnv("EMBEDDER_API_KEY", ""),
			Timeout: getEnvAsInt("EMBEDDER_TIMEOUT", 2),
		},
		Reranker: RerankerConfig{
			BaseURL:   getEnv("RERANKER_BASE_URL", "http://localhost:8092"),
			APIKey:    getEnv("RERANKER_API_KEY", ""),
			Timeout:   getEnvAsInt("RERANKER_TIMEOUT", 2),
			BatchSize: getEnvAsInt("RERANKER_BATCH_SIZE", 16),
			Enabled:   getEnvAsBool("RERANKER_ENABLED", true),
		},
		LLM: LLMConfig{
			BaseURL:    getEnv("LLM_BASE_URL", "http://localhost:8081"),
			APIKey:     getEnv("LLM_API_KEY", ""),
			Model:      getEnv("LLM_MODEL", "ip-assist-synthesis"),
			Timeout:    getEnvAsInt("LLM_TIMEOUT", 20),
			MaxRetries: getEnvAsInt("LLM_MAX_RETRIES", 2),
		},
		Retrieval: RetrievalConfig{
			TopM:            getEnvAsInt("RETRIEVAL_TOP_M", 60),
			TopK:            getEnvAsInt("RETRIEVAL_TOP_K", 5),
			RerankerEnabled: getEnvAsBool("RETRIEVAL_RERANKER_ENABLED", true),
		},
		Precedence: PrecedenceConfig{
			HalfLifeCodingBilling:        getEnvAsFloat("PRECEDENCE_HALFLIFE_CODING_BILLING", 3),
			HalfLifeTechnologyNavigation: getEnvAsFloat("PRECEDENCE_HALFLIFE_TECHNOLOGY_NAVIGATION", 4),
			HalfLifeAblation:             getEnvAsFloat("PRECEDENCE_HALFLIFE_ABLATION", 5),
			HalfLifeClinical:             getEnvAsFloat("PRECEDENCE_HALFLIFE_CLINICAL", 6),
			HalfLifeLungVolumeReduction:  getEnvAsFloat("PRECEDENCE_HALFLIFE_LUNG_VOLUME_REDUCTION", 5),
			A1Floor:                      getEnvAsFloat("PRECEDENCE_A1_FLOOR", 0.7),
		},
		Safety: SafetyConfig{
			PediatricKeywords: getEnvAsSlice("SAFETY_PEDIATRIC_KEYWORDS", []string{
				"pediatric", "neonate", "neonatal", "infant", "child", "children", "newborn",
			}),
			EmergencyPatterns: getEnvAsSlice("SAFETY_EMERGENCY_PATTERNS", []string{
				`massive hemoptysis`, `airway obstruction`, `tension pneumothorax`,
				`foreign body aspiration`, `respiratory failure`, `cardiac arrest`,
			}),
			DoseConfirmMinSources: getEnvAsInt("SAFETY_DOSE_CONFIRM_MIN_SOURCES", 2),
			DoseVariancePct:       getEnvAsFloat("SAFETY_DOSE_VARIANCE_PCT", 20),
		},
		Citation: CitationConfig{
			VisibleDocTypes: getEnvAsSlice("CITATION_VISIBLE_DOCTYPES", []string{
				"journal_article", "guideline", "systematic_review",
			}),
		},
		Cache: CacheConfig{
			TTLSec: getEnvAsInt("CACHE_TTL_SEC", 600),
			Max:    getEnvAsInt("CACHE_MAX", 256),
		},
		Budget: BudgetConfig{
			RequestMs:   getEnvAsInt("BUDGET_REQUEST_MS", 5000),
			EmergencyMs: getEnvAsInt("BUDGET_EMERGENCY_MS", 500),
		},
		Coding: CodingConfig{
			KBFilePaths: getEnvAsSlice("CODING_KB_FILE_PATHS", []string{"./data/coding_kb_base.json"}),
		},
		Corpus: CorpusConfig{
			ChunksPath:        getEnv("CORPUS_CHUNKS_PATH", "./data/chunks.ndjson"),
			CitationIndexPath: getEnv("CORPUS_CITATION_INDEX_PATH", "./data/citation_index.json"),
		},
		Session: SessionConfig{
			MaxTurns:   getEnvAsInt("SESSION_MAX_TURNS", 10),
			TTLSeconds: getEnvAsInt("SESSION_TTL_SECONDS", 86400),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func validateConfig(config *Config) error {
	if config.Database.Password == "" {
		return fmt.Errorf("database password is required (DB_PASSWORD)")
	}

	if config.LLM.BaseURL == "" {
		return fmt.Errorf("LLM base URL is required (LLM_BASE_URL)")
	}

	if config.Auth.JWTSecret == "your-secret-key-change-in-production" {
		return fmt.Errorf("JWT secret must be changed from default value (JWT_SECRET)")
	}

	if len(config.Coding.KBFilePaths) == 0 {
		return fmt.Errorf("at least one coding KB file path is required (CODING_KB_FILE_PATHS)")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
