package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	AI         AIConfig         `yaml:"ai"`
	Search     SearchConfig     `yaml:"search"`
	Scraper    ScraperConfig    `yaml:"scraper"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

type ServerConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// AIConfig selects the generation backend. Keys are normally supplied
// through the environment rather than the file.
type AIConfig struct {
	Provider        string `yaml:"provider"` // gemini, openai, ollama, chutes, anthropic
	Model           string `yaml:"model"`
	BaseURL         string `yaml:"base_url"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`
	ChutesAPIKey    string `yaml:"chutes_api_key"`
}

type SearchConfig struct {
	Provider     string `yaml:"provider"` // tavily or wikipedia
	TavilyAPIKey string `yaml:"tavily_api_key"`
	MaxResults   int    `yaml:"max_results"`
	QuerySuffix  string `yaml:"query_suffix"`
}

type ScraperConfig struct {
	UserAgent       string `yaml:"user_agent"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	ParallelLimit   int    `yaml:"parallel_limit"`
	ChunkSize       int    `yaml:"chunk_size"`
	MaxContentChars int    `yaml:"max_content_chars"`
}

type PipelineConfig struct {
	Perspectives        []string `yaml:"perspectives"`
	MaxChunksPerSource  int      `yaml:"max_chunks_per_source"`
	DigestFactsPerView  int      `yaml:"digest_facts_per_perspective"`
	MaxFactsPerSection  int      `yaml:"max_facts_per_section"`
	MinRefineLength     int      `yaml:"min_refine_length"`
	ResearchConcurrency int      `yaml:"research_concurrency"`
	DraftConcurrency    int      `yaml:"draft_concurrency"`
}

type SimilarityConfig struct {
	Threshold float64 `yaml:"threshold"`
	NGramSize int     `yaml:"ngram_size"`
}

type SchedulerConfig struct {
	IntervalSeconds   int `yaml:"interval_seconds"`
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`
}

// DefaultPerspectives are the analytical lenses facts are extracted through.
var DefaultPerspectives = []string{
	"technical_fundamentals",
	"historical_context",
	"current_applications",
	"future_implications",
	"ethical_considerations",
	"economic_impact",
	"security_concerns",
}

func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 600,
		},
		Database: DatabaseConfig{
			Path: "./autoresearch.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		AI: AIConfig{
			Provider: "openai",
		},
		Search: SearchConfig{
			Provider:    "tavily",
			MaxResults:  5,
			QuerySuffix: "recent developments",
		},
		Scraper: ScraperConfig{
			UserAgent:       "AutoResearch/1.0 (+https://github.com/thinkscotty/autoresearch)",
			TimeoutSeconds:  10,
			ParallelLimit:   5,
			ChunkSize:       500,
			MaxContentChars: 50000,
		},
		Pipeline: PipelineConfig{
			Perspectives:        append([]string(nil), DefaultPerspectives...),
			MaxChunksPerSource:  3,
			DigestFactsPerView:  3,
			MaxFactsPerSection:  10,
			MinRefineLength:     100,
			ResearchConcurrency: 4,
			DraftConcurrency:    4,
		},
		Similarity: SimilarityConfig{
			Threshold: 0.8,
			NGramSize: 3,
		},
		Scheduler: SchedulerConfig{
			IntervalSeconds:   30,
			MaxConcurrentRuns: 2,
		},
	}
}

// Load reads a YAML config file and merges it over defaults, then applies
// environment overrides (a .env file next to the working directory is loaded
// first if present). If the config file does not exist, defaults are used.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
		slog.Info("No config file found, using defaults", "path", path)
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"OPENAI_API_KEY":               &cfg.AI.OpenAIAPIKey,
		"ANTHROPIC_API_KEY":            &cfg.AI.AnthropicAPIKey,
		"GEMINI_API_KEY":               &cfg.AI.GeminiAPIKey,
		"CHUTES_API_KEY":               &cfg.AI.ChutesAPIKey,
		"TAVILY_API_KEY":               &cfg.Search.TavilyAPIKey,
		"AUTORESEARCH_AI_PROVIDER":     &cfg.AI.Provider,
		"AUTORESEARCH_AI_MODEL":        &cfg.AI.Model,
		"AUTORESEARCH_AI_BASE_URL":     &cfg.AI.BaseURL,
		"AUTORESEARCH_SEARCH_PROVIDER": &cfg.Search.Provider,
		"AUTORESEARCH_DB_PATH":         &cfg.Database.Path,
		"AUTORESEARCH_LOG_LEVEL":       &cfg.Logging.Level,
	}
	for key, dst := range overrides {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
}

// Validate rejects unknown providers and non-positive limits.
func (c Config) Validate() error {
	switch strings.ToLower(c.AI.Provider) {
	case "gemini", "openai", "ollama", "chutes", "anthropic":
	default:
		return fmt.Errorf("unknown ai provider %q", c.AI.Provider)
	}
	switch strings.ToLower(c.Search.Provider) {
	case "tavily", "wikipedia":
	default:
		return fmt.Errorf("unknown search provider %q", c.Search.Provider)
	}

	positive := map[string]int{
		"search.max_results":                    c.Search.MaxResults,
		"scraper.timeout_seconds":               c.Scraper.TimeoutSeconds,
		"scraper.parallel_limit":                c.Scraper.ParallelLimit,
		"scraper.chunk_size":                    c.Scraper.ChunkSize,
		"pipeline.max_chunks_per_source":        c.Pipeline.MaxChunksPerSource,
		"pipeline.digest_facts_per_perspective": c.Pipeline.DigestFactsPerView,
		"pipeline.max_facts_per_section":        c.Pipeline.MaxFactsPerSection,
		"pipeline.research_concurrency":         c.Pipeline.ResearchConcurrency,
		"pipeline.draft_concurrency":            c.Pipeline.DraftConcurrency,
		"scheduler.interval_seconds":            c.Scheduler.IntervalSeconds,
		"scheduler.max_concurrent_runs":         c.Scheduler.MaxConcurrentRuns,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}

	if len(c.Pipeline.Perspectives) == 0 {
		return fmt.Errorf("pipeline.perspectives must not be empty")
	}
	seen := make(map[string]bool, len(c.Pipeline.Perspectives))
	for _, p := range c.Pipeline.Perspectives {
		if p == "" || seen[p] {
			return fmt.Errorf("pipeline.perspectives contains an empty or duplicate entry %q", p)
		}
		seen[p] = true
	}

	if c.Similarity.Threshold <= 0 || c.Similarity.Threshold > 1 {
		return fmt.Errorf("similarity.threshold must be in (0,1], got %.2f", c.Similarity.Threshold)
	}
	return nil
}

// Settings flattens provider configuration into the key/value settings the
// ai and search packages read. Every managed key is present; an empty value
// means the key is unset and should be cleared from the store.
func (c Config) Settings() map[string]string {
	return map[string]string{
		"ai_provider":       strings.ToLower(c.AI.Provider),
		"ai_model":          c.AI.Model,
		"ai_base_url":       c.AI.BaseURL,
		"openai_api_key":    c.AI.OpenAIAPIKey,
		"anthropic_api_key": c.AI.AnthropicAPIKey,
		"gemini_api_key":    c.AI.GeminiAPIKey,
		"chutes_api_key":    c.AI.ChutesAPIKey,
		"search_provider":   strings.ToLower(c.Search.Provider),
		"tavily_api_key":    c.Search.TavilyAPIKey,
	}
}
