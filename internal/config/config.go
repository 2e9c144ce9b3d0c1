package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"AgentFlow/internal/auth"
	xerrors "AgentFlow/internal/errors"
	"AgentFlow/pkg/logger"
)

// EnvConfigPath 是指定配置文件路径的环境变量。
const EnvConfigPath = "AGENTFLOW_CONFIG"

// Config 描述了 AgentFlow 在启动阶段需要加载的全部配置。
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Agent     AgentConfig     `json:"agent" yaml:"agent"`
	Tools     ToolsConfig     `json:"tools" yaml:"tools"`
	Knowledge KnowledgeConfig `json:"knowledge" yaml:"knowledge"`
	Queue     QueueConfig     `json:"queue" yaml:"queue"`
	Alerting  AlertingConfig  `json:"alerting" yaml:"alerting"`
	Auth      auth.Config     `json:"auth" yaml:"auth"`
	Log       logger.Config   `json:"log" yaml:"log"`
}

// ServerConfig 控制 API 服务的监听地址与限流参数。
type ServerConfig struct {
	Address         string   `json:"address" yaml:"address" validate:"required"`
	RateLimit       float64  `json:"rate_limit" yaml:"rate_limit" validate:"gte=0"`
	RateBurst       int      `json:"rate_burst" yaml:"rate_burst" validate:"gte=0"`
	ReadTimeout     Duration `json:"read_timeout" yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    Duration `json:"write_timeout" yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gte=0"`
}

// AgentConfig 控制编排器的节奏与工具超时。
type AgentConfig struct {
	SettleDelay Duration `json:"settle_delay" yaml:"settle_delay" validate:"gte=0"`
	ToolTimeout Duration `json:"tool_timeout" yaml:"tool_timeout" validate:"gte=0"`
}

// ToolsConfig 控制模拟工具。
type ToolsConfig struct {
	Latency        string `json:"latency" yaml:"latency" validate:"oneof=none simulated"`
	DictionaryPath string `json:"dictionary_path" yaml:"dictionary_path"`
}

// KnowledgeConfig 描述知识库来源，Source 为空时使用内置条目。
type KnowledgeConfig struct {
	Source     string `json:"source" yaml:"source"`
	MaxResults int    `json:"max_results" yaml:"max_results" validate:"gte=1,lte=50"`
}

// QueueConfig 选择异步任务队列的实现。
type QueueConfig struct {
	Driver   string         `json:"driver" yaml:"driver" validate:"oneof=memory redis rabbitmq"`
	Workers  int            `json:"workers" yaml:"workers" validate:"gte=1,lte=256"`
	Buffer   int            `json:"buffer" yaml:"buffer" validate:"gte=1"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

// RedisConfig 是 Redis 队列的连接参数。
type RedisConfig struct {
	Address   string   `json:"address" yaml:"address"`
	Password  string   `json:"password" yaml:"password"`
	DB        int      `json:"db" yaml:"db" validate:"gte=0"`
	Queue     string   `json:"queue" yaml:"queue"`
	BlockWait Duration `json:"block_wait" yaml:"block_wait" validate:"gte=0"`
}

// RabbitMQConfig 是 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL      string `json:"url" yaml:"url" validate:"omitempty,url"`
	Queue    string `json:"queue" yaml:"queue"`
	Prefetch int    `json:"prefetch" yaml:"prefetch" validate:"gte=0"`
	Durable  bool   `json:"durable" yaml:"durable"`
}

// AlertingConfig 配置失败执行的告警渠道。
type AlertingConfig struct {
	WebhookURL string `json:"webhook_url" yaml:"webhook_url" validate:"omitempty,url"`
}

// Default 返回以当前工作目录为基准、填充了默认值的配置。
func Default() *Config {
	cfg := &Config{}
	baseDir, err := os.Getwd()
	if err != nil {
		baseDir = "."
	}
	cfg.applyDefaults(baseDir)
	return cfg
}

// Resolve 返回显式给出的路径，否则返回环境变量中的路径。
func Resolve(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	return strings.TrimSpace(os.Getenv(EnvConfigPath))
}

// Load 按扩展名解析 YAML 或 JSON 配置文件，填充默认值并校验。路径为空时返回默认配置。
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("read config file %s", path))
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &cfg)
	case ".json":
		err = json.Unmarshal(content, &cfg)
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("unsupported config format %q", filepath.Ext(path)))
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("parse config file %s", path))
	}

	baseDir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		baseDir = filepath.Dir(path)
	}
	cfg.applyDefaults(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值，相对路径以配置文件目录为基准。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst == 0 {
		c.Server.RateBurst = int(c.Server.RateLimit)
		if c.Server.RateBurst < 1 {
			c.Server.RateBurst = 1
		}
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(15 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(60 * time.Second)
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if c.Tools.Latency == "" {
		c.Tools.Latency = "none"
	}
	c.Tools.DictionaryPath = resolvePath(baseDir, c.Tools.DictionaryPath)

	c.Knowledge.Source = resolvePath(baseDir, c.Knowledge.Source)
	if c.Knowledge.MaxResults == 0 {
		c.Knowledge.MaxResults = 3
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 4
	}
	if c.Queue.Buffer == 0 {
		c.Queue.Buffer = 256
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = auth.ModeDisabled
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if len(c.Log.OutputPaths) == 0 {
		c.Log.OutputPaths = []string{"stdout"}
	}
	for i, out := range c.Log.OutputPaths {
		switch strings.ToLower(out) {
		case "stdout", "stderr", "discard":
		default:
			c.Log.OutputPaths[i] = resolvePath(baseDir, out)
		}
	}
	if c.Log.Audit.Enabled && c.Log.Audit.Path == "" {
		c.Log.Audit.Path = "logs/audit.log"
	}
	c.Log.Audit.Path = resolvePath(baseDir, c.Log.Audit.Path)
}

func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
