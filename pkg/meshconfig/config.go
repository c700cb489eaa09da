// Package meshconfig loads runtime configuration for the router and the
// coordination engine: a YAML file overlaid with environment variables,
// mirroring the teacher's caarlos0/env-tagged struct-of-structs convention.
package meshconfig

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ServerConfig addresses the Registry/Router service.
type ServerConfig struct {
	Hostname string `yaml:"hostname" env:"MESHROUTER_SERVER_HOSTNAME" envDefault:"0.0.0.0"`
	Port     int    `yaml:"port" env:"MESHROUTER_SERVER_PORT" envDefault:"8800"`
}

// CommLLMConfig configures the LLM Gateway used by one agent client.
type CommLLMConfig struct {
	Provider    string `yaml:"provider" env:"MESHROUTER_LLM_PROVIDER" envDefault:"anthropic"`
	Model       string `yaml:"model" env:"MESHROUTER_LLM_MODEL" envDefault:"claude-sonnet-4.6"`
	APIKey      string `yaml:"api_key" env:"MESHROUTER_LLM_API_KEY"`
	BaseURL     string `yaml:"base_url" env:"MESHROUTER_LLM_BASE_URL"`
	MaxTokens   int    `yaml:"max_tokens" env:"MESHROUTER_LLM_MAX_TOKENS" envDefault:"4096"`
	Temperature float64 `yaml:"temperature" env:"MESHROUTER_LLM_TEMPERATURE" envDefault:"0.7"`
}

// CommConfig configures one agent client's coordination engine.
type CommConfig struct {
	Name                string        `yaml:"name" env:"MESHROUTER_COMM_NAME"`
	Desc                string        `yaml:"desc" env:"MESHROUTER_COMM_DESC"`
	Type                string        `yaml:"type" env:"MESHROUTER_COMM_TYPE" envDefault:"Human"`
	LLM                 CommLLMConfig `yaml:"llm"`
	ObservationFunc     string        `yaml:"observation_func" env:"MESHROUTER_COMM_OBSERVATION_FUNC" envDefault:"dummy"`
	SupportNestedTeams  bool          `yaml:"support_nested_teams" env:"MESHROUTER_COMM_SUPPORT_NESTED_TEAMS" envDefault:"false"`
	DiscussionOnly      bool          `yaml:"discussion_only" env:"MESHROUTER_COMM_DISCUSSION_ONLY" envDefault:"false"`
	MaxTeamUpAttempts   int           `yaml:"max_team_up_attempts" env:"MESHROUTER_COMM_MAX_TEAM_UP_ATTEMPTS"`
	RouterURL           string        `yaml:"router_url" env:"MESHROUTER_COMM_ROUTER_URL" envDefault:"ws://127.0.0.1:8800"`
}

// ToolAgentConfig is the tool_agent section. No binary in this module reads
// it: cmd/agentd leaves Engine.Executor nil, so the coordination LLM itself
// produces task conclusions.
type ToolAgentConfig struct {
	Enabled bool   `yaml:"enabled" env:"MESHROUTER_TOOL_AGENT_ENABLED" envDefault:"false"`
	Command string `yaml:"command" env:"MESHROUTER_TOOL_AGENT_COMMAND"`
}

// Config is the top-level configuration document for either binary; each
// binary only reads the sections relevant to it.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Comm      CommConfig      `yaml:"comm"`
	ToolAgent ToolAgentConfig `yaml:"tool_agent"`
}

// Load reads path as YAML (if it exists) and then overlays environment
// variables, so env always wins over the file, matching the teacher's
// config layering in pkg/config/config.go.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overlay: %w", err)
	}
	return cfg, nil
}
