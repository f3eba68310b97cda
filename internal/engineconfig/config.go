// Package engineconfig loads the memory engine's typed configuration
// object from YAML, the way internal/config/config.go does for the
// teacher: read once, fill defaults, return a struct threaded explicitly
// through the call graph — never a process-global.
package engineconfig

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v2"
)

// MemoryConfig is the per-config_id object from spec §3.
type MemoryConfig struct {
	LLMModelID               string  `yaml:"llm_model_id"`
	EmbeddingModelID         string  `yaml:"embedding_model_id"`
	RerankAlpha              float64 `yaml:"rerank_alpha"`
	ActivationBoostFactor    float64 `yaml:"activation_boost_factor"`
	ForgettingThreshold      float64 `yaml:"forgetting_threshold"`
	AccessHistoryCap         int     `yaml:"access_history_cap"`
	ActivationDecayD         float64 `yaml:"activation_decay_d"`
	CandidateMultiplier      int     `yaml:"candidate_multiplier"`
	MaxToolConsecutiveCalls  int     `yaml:"max_tool_consecutive_calls"`
	AutoMaxIterationsBase    int     `yaml:"auto_max_iterations_base"`
	AutoMaxIterationsPerTool int     `yaml:"auto_max_iterations_per_tool"`
}

// Defaults fills zero-valued fields with the spec's documented defaults.
func (c *MemoryConfig) Defaults() {
	if c.RerankAlpha == 0 {
		c.RerankAlpha = 0.6
	}
	if c.ActivationBoostFactor == 0 {
		c.ActivationBoostFactor = 0.8
	}
	if c.ForgettingThreshold == 0 {
		c.ForgettingThreshold = 0.3
	}
	if c.AccessHistoryCap == 0 {
		c.AccessHistoryCap = 50
	}
	if c.ActivationDecayD == 0 {
		c.ActivationDecayD = 0.5
	}
	if c.CandidateMultiplier == 0 {
		c.CandidateMultiplier = 3
	}
	if c.MaxToolConsecutiveCalls == 0 {
		c.MaxToolConsecutiveCalls = 3
	}
	if c.AutoMaxIterationsBase == 0 {
		c.AutoMaxIterationsBase = 5
	}
	if c.AutoMaxIterationsPerTool == 0 {
		c.AutoMaxIterationsPerTool = 2
	}
}

// GraphStoreConfig carries connection details for C1's backend.
type GraphStoreConfig struct {
	Backend          string `yaml:"backend"` // "postgres" | "memory"
	ConnectionString string `yaml:"connection_string"`
	EmbeddingDims    int    `yaml:"embedding_dims"`
}

// RelationalConfig carries connection details for the relational store
// (config rows, short-term memory, task/workflow execution rows, §6).
type RelationalConfig struct {
	ConnectionString string `yaml:"connection_string"`
}

// RedisConfig mirrors §6's environment variables for health-probe cache,
// periodic-job locks, and per-user ingestion advisory locks.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password,omitempty"`
}

// TaskQueueConfig configures C10's Kafka-backed dispatch.
type TaskQueueConfig struct {
	Brokers       []string `yaml:"brokers"`
	GroupID       string   `yaml:"group_id"`
	CommandsTopic string   `yaml:"commands_topic"`
	DefaultReply  string   `yaml:"default_reply_topic"`
	WorkerCount   int      `yaml:"worker_count"`
	DedupeTTLSecs int      `yaml:"dedupe_ttl_seconds"`
}

// ProviderConfig selects and configures the C2 LLM/embedding backend.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// ObservabilityConfig configures the ambient logging/tracing stack.
type ObservabilityConfig struct {
	LogPath      string `yaml:"log_path,omitempty"`
	LogLevel     string `yaml:"log_level"`
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
}

// WorkflowConfig configures C9's runtime limits (§6 env vars).
type WorkflowConfig struct {
	NodeTimeoutSeconds    int `yaml:"node_timeout_seconds"`
	LogStreamKeepaliveSec int `yaml:"log_stream_keepalive_seconds"`
}

// Config is the root object loaded once at process start and threaded
// explicitly; nothing under it is ever read from a global.
type Config struct {
	Memory             MemoryConfig        `yaml:"memory"`
	GraphStore         GraphStoreConfig    `yaml:"graph_store"`
	Relational         RelationalConfig    `yaml:"relational"`
	Redis              RedisConfig         `yaml:"redis"`
	TaskQueue          TaskQueueConfig     `yaml:"task_queue"`
	Provider           ProviderConfig      `yaml:"provider"`
	Observability      ObservabilityConfig `yaml:"observability"`
	Workflow           WorkflowConfig      `yaml:"workflow"`
	HealthCheckSeconds int                 `yaml:"health_check_seconds"`
}

// Load reads and parses filename, applying documented defaults, the way
// internal/config/config.go's LoadConfig does (pterm banner included).
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		pterm.Error.Printf("Error reading config file: %v\n", err)
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		pterm.Error.Printf("Error unmarshaling config: %v\n", err)
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Memory.Defaults()

	if cfg.GraphStore.Backend == "" {
		cfg.GraphStore.Backend = "memory"
		pterm.Info.Println("No graph_store.backend specified, defaulting to in-memory store.")
	}
	if cfg.TaskQueue.WorkerCount <= 0 {
		cfg.TaskQueue.WorkerCount = 4
		pterm.Info.Println("No task_queue.worker_count specified, defaulting to 4.")
	}
	if cfg.TaskQueue.DedupeTTLSecs <= 0 {
		cfg.TaskQueue.DedupeTTLSecs = 3600
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "memoryengine"
	}
	if cfg.Workflow.NodeTimeoutSeconds <= 0 {
		cfg.Workflow.NodeTimeoutSeconds = 30
	}
	if cfg.Workflow.LogStreamKeepaliveSec <= 0 {
		cfg.Workflow.LogStreamKeepaliveSec = 300
	}
	if cfg.HealthCheckSeconds <= 0 {
		cfg.HealthCheckSeconds = 30
	}

	pterm.Success.Println("Configuration loaded successfully.")
	return &cfg, nil
}
