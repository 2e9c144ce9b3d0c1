package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"AgentFlow/internal/agent"
	"AgentFlow/internal/config"
	"AgentFlow/internal/knowledge"
	"AgentFlow/internal/observability/alerting"
	"AgentFlow/internal/task"
	"AgentFlow/internal/tools"
)

// buildRegistry 根据配置装配模拟工具。
func buildRegistry(cfg *config.Config) (*tools.MockRegistry, error) {
	opts := []tools.Option{}

	if cfg.Tools.DictionaryPath != "" {
		dictionary, err := tools.LoadDictionary(cfg.Tools.DictionaryPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, tools.WithDictionary(dictionary))
	}

	var provider *knowledge.StaticProvider
	if cfg.Knowledge.Source != "" {
		loaded, err := knowledge.LoadStaticProvider(cfg.Knowledge.Source, cfg.Knowledge.MaxResults)
		if err != nil {
			return nil, err
		}
		provider = loaded
	} else {
		provider = knowledge.NewStaticProvider(knowledge.DefaultSnippets(), cfg.Knowledge.MaxResults)
	}
	opts = append(opts, tools.WithKnowledgeProvider(provider))

	if cfg.Tools.Latency == "simulated" {
		opts = append(opts, tools.WithLatency(tools.DefaultSimulatedLatency()))
	}
	return tools.NewMockRegistry(opts...), nil
}

func buildAgent(cfg *config.Config, registry tools.Registry, opts ...agent.Option) *agent.Agent {
	base := []agent.Option{
		agent.WithSettleDelay(cfg.Agent.SettleDelay.Std()),
		agent.WithToolTimeout(cfg.Agent.ToolTimeout.Std()),
	}
	return agent.New(registry, append(base, opts...)...)
}

// buildQueue 根据驱动名称创建任务队列。
func buildQueue(ctx context.Context, cfg config.QueueConfig) (task.Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return task.NewMemoryQueue(cfg.Buffer), nil
	case "redis":
		queue, err := task.NewRedisQueue(ctx, task.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: cfg.Redis.BlockWait.Std(),
		})
		if err != nil {
			return nil, err
		}
		return queue, nil
	case "rabbitmq":
		queue, err := task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:      cfg.RabbitMQ.URL,
			Queue:    cfg.RabbitMQ.Queue,
			Prefetch: cfg.RabbitMQ.Prefetch,
			Durable:  cfg.RabbitMQ.Durable,
		})
		if err != nil {
			return nil, err
		}
		return queue, nil
	default:
		return nil, fmt.Errorf("unknown queue driver: %s", cfg.Driver)
	}
}

// buildAlerter 组合审计日志与可选的 webhook 告警渠道。
func buildAlerter(cfg config.AlertingConfig) *alerting.FanoutDispatcher {
	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{
			URL:    cfg.WebhookURL,
			Client: &http.Client{Timeout: 5 * time.Second},
		})
	}
	return alerting.NewFanout(notifiers...)
}
