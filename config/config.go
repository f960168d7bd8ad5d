// Package config loads settings from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/apeiron/engine"
	"github.com/becomeliminal/apeiron/journal"
	"github.com/becomeliminal/apeiron/memory"
)

// Embedder backends.
const (
	EmbedderOllama = "ollama"
	EmbedderONNX   = "onnx"
	EmbedderMock   = "mock"
)

// Config holds every runtime setting.
type Config struct {
	// Project
	ProjectRoot     string   `yaml:"project_root"`
	LogFile         string   `yaml:"log_file"`
	StoreDir        string   `yaml:"store_dir"`
	Compress        bool     `yaml:"compress"`
	WatchExtensions []string `yaml:"watch_extensions"`
	IgnoreDirs      []string `yaml:"ignore_dirs"`
	MaxFileChars    int      `yaml:"max_file_chars"`

	// Retrieval
	RelevantK        int    `yaml:"relevant_k"`
	RecallK          int    `yaml:"recall_k"`
	ContextLimit     int    `yaml:"context_limit"`
	MaxContextTokens int    `yaml:"max_context_tokens"`
	DeletePolicy     string `yaml:"delete_policy"`

	// Models
	Provider           string `yaml:"provider"`
	OllamaBaseURL      string `yaml:"ollama_base_url"`
	TextModel          string `yaml:"text_model"`
	VisionModel        string `yaml:"vision_model"`
	Embedder           string `yaml:"embedder"`
	EmbeddingModel     string `yaml:"embedding_model"`
	EmbeddingDim       int    `yaml:"embedding_dim"` // 0 uses the backend's native size
	EmbedCacheBytes    int64  `yaml:"embed_cache_bytes"`
	OnnxLibraryPath    string `yaml:"onnx_library_path"`
	OnnxModelPath      string `yaml:"onnx_model_path"`
	OnnxTokenizerPath  string `yaml:"onnx_tokenizer_path"`
	AnthropicAPIKey    string `yaml:"-"`
	AnthropicModel     string `yaml:"anthropic_model"`
	AnthropicMaxTokens int64  `yaml:"anthropic_max_tokens"`
	SystemPrompt       string `yaml:"system_prompt"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ProjectRoot:        ".",
		LogFile:            journal.FileName,
		StoreDir:           "memory_db",
		WatchExtensions:    append([]string(nil), memory.DefaultExtensions...),
		IgnoreDirs:         append([]string(nil), memory.DefaultIgnoreDirs...),
		MaxFileChars:       memory.DefaultMaxFileChars,
		RelevantK:          memory.DefaultRelevantK,
		RecallK:            3,
		ContextLimit:       engine.DefaultContextLimit,
		DeletePolicy:       string(memory.DeleteEvict),
		Provider:           "ollama",
		OllamaBaseURL:      "http://localhost:11434",
		TextModel:          "llama3",
		VisionModel:        "llava",
		Embedder:           EmbedderOllama,
		EmbeddingModel:     "nomic-embed-text",
		EmbedCacheBytes:    64 << 20,
		AnthropicModel:     "claude-sonnet-4-20250514",
		AnthropicMaxTokens: 4096,
		SystemPrompt:       engine.DefaultSystemPrompt,
		LogLevel:           "info",
	}
}

// Load builds the configuration. path may be empty; a named file that does
// not exist is an error. Relative paths set in the file are taken relative
// to the file's directory.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.resolveFilePaths(filepath.Dir(path))
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ProjectRoot = envStr("APEIRON_PROJECT_ROOT", c.ProjectRoot)
	c.LogFile = envStr("APEIRON_LOG_FILE", c.LogFile)
	c.StoreDir = envStr("APEIRON_STORE_DIR", c.StoreDir)
	c.Compress = envBool("APEIRON_COMPRESS", c.Compress)
	c.WatchExtensions = envList("APEIRON_WATCH_EXTENSIONS", c.WatchExtensions)
	c.IgnoreDirs = envList("APEIRON_IGNORE_DIRS", c.IgnoreDirs)
	c.MaxFileChars = envInt("APEIRON_MAX_FILE_CHARS", c.MaxFileChars)
	c.RelevantK = envInt("APEIRON_RELEVANT_K", c.RelevantK)
	c.RecallK = envInt("APEIRON_RECALL_K", c.RecallK)
	c.ContextLimit = envInt("APEIRON_CONTEXT_LIMIT", c.ContextLimit)
	c.MaxContextTokens = envInt("APEIRON_MAX_CONTEXT_TOKENS", c.MaxContextTokens)
	c.DeletePolicy = envStr("APEIRON_DELETE_POLICY", c.DeletePolicy)
	c.Provider = envStr("APEIRON_PROVIDER", c.Provider)
	c.OllamaBaseURL = envStr("OLLAMA_BASE_URL", c.OllamaBaseURL)
	c.TextModel = envStr("APEIRON_TEXT_MODEL", c.TextModel)
	c.VisionModel = envStr("APEIRON_VISION_MODEL", c.VisionModel)
	c.Embedder = envStr("APEIRON_EMBEDDER", c.Embedder)
	c.EmbeddingModel = envStr("APEIRON_EMBEDDING_MODEL", c.EmbeddingModel)
	c.EmbeddingDim = envInt("APEIRON_EMBEDDING_DIM", c.EmbeddingDim)
	c.OnnxLibraryPath = envStr("ONNXRUNTIME_LIB", c.OnnxLibraryPath)
	c.OnnxModelPath = envStr("APEIRON_ONNX_MODEL", c.OnnxModelPath)
	c.OnnxTokenizerPath = envStr("APEIRON_ONNX_TOKENIZER", c.OnnxTokenizerPath)
	c.AnthropicAPIKey = envStr("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.AnthropicModel = envStr("APEIRON_ANTHROPIC_MODEL", c.AnthropicModel)
	c.LogLevel = envStr("APEIRON_LOG_LEVEL", c.LogLevel)
}

func (c *Config) validate() error {
	var errs []error
	if c.StoreDir == "" {
		errs = append(errs, errors.New("store_dir must not be empty"))
	}
	if c.LogFile == "" {
		errs = append(errs, errors.New("log_file must not be empty"))
	}
	if len(c.WatchExtensions) == 0 {
		errs = append(errs, errors.New("watch_extensions must not be empty"))
	}
	if c.MaxFileChars < 1 {
		errs = append(errs, fmt.Errorf("max_file_chars must be positive, got %d", c.MaxFileChars))
	}
	if c.RelevantK < 1 {
		errs = append(errs, fmt.Errorf("relevant_k must be positive, got %d", c.RelevantK))
	}
	if c.RecallK < 1 {
		errs = append(errs, fmt.Errorf("recall_k must be positive, got %d", c.RecallK))
	}
	if c.ContextLimit < 2 {
		errs = append(errs, fmt.Errorf("context_limit must be at least 2, got %d", c.ContextLimit))
	}
	if c.MaxContextTokens < 0 {
		errs = append(errs, fmt.Errorf("max_context_tokens must not be negative, got %d", c.MaxContextTokens))
	}
	switch memory.DeletePolicy(c.DeletePolicy) {
	case memory.DeleteEvict, memory.DeleteRetain:
	default:
		errs = append(errs, fmt.Errorf("delete_policy must be evict or retain, got %q", c.DeletePolicy))
	}
	switch c.Provider {
	case "ollama":
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required for provider anthropic"))
		}
	default:
		errs = append(errs, fmt.Errorf("provider must be ollama or anthropic, got %q", c.Provider))
	}
	switch c.Embedder {
	case EmbedderOllama, EmbedderMock:
	case EmbedderONNX:
		if c.OnnxModelPath == "" || c.OnnxTokenizerPath == "" {
			errs = append(errs, errors.New("onnx_model_path and onnx_tokenizer_path are required for embedder onnx"))
		}
	default:
		errs = append(errs, fmt.Errorf("embedder must be ollama, onnx or mock, got %q", c.Embedder))
	}
	if c.EmbeddingDim < 0 {
		errs = append(errs, fmt.Errorf("embedding_dim must not be negative, got %d", c.EmbeddingDim))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// Filter builds the shared project filter.
func (c *Config) Filter() (*memory.Filter, error) {
	return memory.NewFilter(c.WatchExtensions, c.IgnoreDirs)
}

// Resolve returns p unchanged when absolute, otherwise joined to base.
func Resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// resolveFilePaths anchors relative paths that the config file changed from
// their defaults at dir. Defaults and environment values stay relative to the
// working directory.
func (c *Config) resolveFilePaths(dir string) {
	def := Default()
	for _, f := range []struct {
		value *string
		def   string
	}{
		{&c.ProjectRoot, def.ProjectRoot},
		{&c.LogFile, def.LogFile},
		{&c.StoreDir, def.StoreDir},
		{&c.OnnxLibraryPath, def.OnnxLibraryPath},
		{&c.OnnxModelPath, def.OnnxModelPath},
		{&c.OnnxTokenizerPath, def.OnnxTokenizerPath},
	} {
		if *f.value != f.def {
			*f.value = Resolve(dir, *f.value)
		}
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
