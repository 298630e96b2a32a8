package config

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/consul/api"
)

// OverrideFromConsulKV 用 Consul KV 中的 JSON 片段覆盖已加载的配置。
//
// 约定：
// - cfg.Consul.ConfigKey 为空表示未启用集中配置，原样返回
// - KV 值必须是 JSON，结构与 Config 一致；只需给出要覆盖的字段，
//   未出现的字段保持文件/默认值（部分覆盖）
// - 只在启动阶段读取一次，不做动态 watch
func OverrideFromConsulKV(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	key := cfg.Consul.ConfigKey
	if key == "" {
		return cfg, nil
	}

	c, err := api.NewClient(&api.Config{
		Address: fmt.Sprintf("%s:%d", cfg.Consul.Host, cfg.Consul.Port),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	pair, _, err := c.KV().Get(key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get consul kv key=%s: %w", key, err)
	}
	if pair == nil || len(pair.Value) == 0 {
		return nil, fmt.Errorf("consul kv key=%s is empty or not found", key)
	}

	if err := applyOverride(cfg, pair.Value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal consul kv json key=%s: %w", key, err)
	}
	return cfg, nil
}

// applyOverride 把 JSON 片段反序列化到已有配置上：
// 片段里缺失的字段不会被清零。
func applyOverride(cfg *Config, data []byte) error {
	return json.Unmarshal(data, cfg)
}
