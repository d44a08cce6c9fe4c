package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type LLMConfig struct {
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"api_key"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

type EmbedderConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	VectorDim      int    `yaml:"vector_dim"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type IndexConfig struct {
	Backend   string `yaml:"backend"` // "local" or "pgvector"
	Dir       string `yaml:"dir"`
	URL       string `yaml:"url"` // PostgreSQL connection string
	TableName string `yaml:"table_name"`
	BatchSize int    `yaml:"batch_size"`
}

type IngestConfig struct {
	DataDir      string   `yaml:"data_dir"`
	Glob         string   `yaml:"glob"`
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Separators   []string `yaml:"separators"`
}

type RetrieverConfig struct {
	TopK int `yaml:"top_k"`
}

type ScraperConfig struct {
	Sources    []string `yaml:"sources"`
	Keywords   []string `yaml:"keywords"`
	RateLimit  float64  `yaml:"rate_limit"`
	MaxRetries int      `yaml:"max_retries"`
}

type ChatConfig struct {
	SystemTemplate       string `yaml:"system_template"`
	ContextTemplate      string `yaml:"context_template"`
	HistoryLimit         int    `yaml:"history_limit"`
	AnswerWithoutContext *bool  `yaml:"answer_without_context"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Index     IndexConfig     `yaml:"index"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Retriever RetrieverConfig `yaml:"retriever"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Chat      ChatConfig      `yaml:"chat"`
	Server    ServerConfig    `yaml:"server"`
}

// Default prompt text. The wording is a product policy choice, so it lives in
// configuration rather than code that depends on it.
const (
	DefaultSystemTemplate = "You are an AI assistant for answering personal loan queries for ABC Bank. " +
		"Use the provided context or existing knowledge to answer the question. If the context does not contain the answer, " +
		"politely inform the user that you do not have the requested information, but DO NOT say that the document does not mention it. " +
		"Provide alternative guidance if possible."
	DefaultContextTemplate = "Context:\n%s\n\nQuestion: %s\n\nAnswer:"
)

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/loanassist/config.yaml"),
			"/etc/loanassist/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "https://api.groq.com/openai/v1"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "llama-3.3-70b-versatile"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.1
	}
	if config.LLM.TimeoutSeconds == 0 {
		config.LLM.TimeoutSeconds = 60
	}

	if config.Embedder.BaseURL == "" {
		config.Embedder.BaseURL = "http://localhost:11434"
	}
	if config.Embedder.Model == "" {
		config.Embedder.Model = "nomic-embed-text:latest"
	}
	if config.Embedder.VectorDim == 0 {
		config.Embedder.VectorDim = 768
	}
	if config.Embedder.TimeoutSeconds == 0 {
		config.Embedder.TimeoutSeconds = 30
	}

	if config.Index.Backend == "" {
		config.Index.Backend = "local"
	}
	if config.Index.Dir == "" {
		config.Index.Dir = "vector_db_dir"
	}
	if config.Index.TableName == "" {
		config.Index.TableName = "loan_chunks"
	}
	if config.Index.BatchSize == 0 {
		config.Index.BatchSize = 100
	}

	if config.Ingest.DataDir == "" {
		config.Ingest.DataDir = "data"
	}
	if config.Ingest.Glob == "" {
		config.Ingest.Glob = "*.pdf"
	}
	if config.Ingest.ChunkSize == 0 {
		config.Ingest.ChunkSize = 2000
	}
	if config.Ingest.ChunkOverlap == 0 {
		config.Ingest.ChunkOverlap = 500
	}
	if len(config.Ingest.Separators) == 0 {
		config.Ingest.Separators = []string{"\n\n", "\n", " ", ""}
	}

	if config.Retriever.TopK == 0 {
		config.Retriever.TopK = 3
	}

	if len(config.Scraper.Sources) == 0 {
		config.Scraper.Sources = []string{
			"https://www.bankbazaar.com/personal-loan.html",
			"https://www.paisabazaar.com/personal-loan/",
			"https://www.moneycontrol.com/personal-loan",
		}
	}
	if len(config.Scraper.Keywords) == 0 {
		config.Scraper.Keywords = []string{
			"personal loan", "interest rate", "eligibility", "tenure", "loan amount",
		}
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 0.5
	}
	if config.Scraper.MaxRetries == 0 {
		config.Scraper.MaxRetries = 3
	}

	if config.Chat.SystemTemplate == "" {
		config.Chat.SystemTemplate = DefaultSystemTemplate
	}
	if config.Chat.ContextTemplate == "" {
		config.Chat.ContextTemplate = DefaultContextTemplate
	}
	if config.Chat.HistoryLimit == 0 {
		config.Chat.HistoryLimit = 20
	}
	if config.Chat.AnswerWithoutContext == nil {
		t := true
		config.Chat.AnswerWithoutContext = &t
	}

	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}
}

func mergeWithEnv(config *Config) {
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		config.LLM.APIKey = key
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.Embedder.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Index.URL = dbURL
	}
}
