package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"stratline/internal/domain"
	"stratline/internal/rules"
)

// Config models a plan's stratline.yml: the seed status rules, who may decide
// approvals, and outbound webhooks.
type Config struct {
	Plan struct {
		ID    string `yaml:"id"`
		Title string `yaml:"title"`
	} `yaml:"plan"`
	Rules     []RuleConfig `yaml:"rules"`
	Approvals struct {
		ApproverRoles []string `yaml:"approver_roles"`
	} `yaml:"approvals"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type RuleConfig struct {
	ID          string  `yaml:"id"`
	Status      string  `yaml:"status"`
	Description string  `yaml:"description"`
	Min         float64 `yaml:"min"`
	Max         float64 `yaml:"max"`
	Unbounded   bool    `yaml:"unbounded"`
	Condition   string  `yaml:"condition"`
	System      bool    `yaml:"system"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Plan.ID == "" {
		return fmt.Errorf("config.plan.id is required")
	}
	seen := map[string]bool{}
	for i, r := range c.Rules {
		if r.ID == "" {
			return fmt.Errorf("rules[%d] has empty id", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("rule id %s is duplicated", r.ID)
		}
		seen[r.ID] = true
		if r.Status == "" {
			return fmt.Errorf("rule %s has empty status", r.ID)
		}
		if !rules.KnownCondition(r.Condition) {
			return fmt.Errorf("rule %s has unknown condition %s", r.ID, r.Condition)
		}
		if r.Condition == "" && !r.Unbounded && r.Min > r.Max {
			return fmt.Errorf("rule %s has min %v above max %v", r.ID, r.Min, r.Max)
		}
	}
	for _, role := range c.Approvals.ApproverRoles {
		switch role {
		case "administrator", "approver", "contributor":
		default:
			return fmt.Errorf("unknown approver role %s", role)
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhooks[%d] has empty url", i)
		}
	}
	return nil
}

// SeedRules converts the configured rules to domain rules with positions
// matching their serialized order.
func (c *Config) SeedRules(planID string) []domain.Rule {
	out := make([]domain.Rule, 0, len(c.Rules))
	for i, r := range c.Rules {
		out = append(out, domain.Rule{
			ID:          r.ID,
			PlanID:      planID,
			Status:      r.Status,
			Description: r.Description,
			Min:         r.Min,
			Max:         r.Max,
			Unbounded:   r.Unbounded,
			Condition:   r.Condition,
			IsSystem:    r.System,
			Position:    i + 1,
		})
	}
	return out
}

// CanApprove reports whether the role may decide pending updates.
func (c *Config) CanApprove(role string) bool {
	roles := c.Approvals.ApproverRoles
	if len(roles) == 0 {
		roles = []string{"administrator", "approver"}
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Default returns the default Config struct for a plan.
func Default(planID string) *Config {
	var cfg Config
	cfg.Plan.ID = planID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, planID))).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(planID string) string {
	return fmt.Sprintf(defaultTemplate, planID)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `plan:
  id: %s

rules:
  - id: rule-overdue
    status: Overdue
    description: "Past deadline and not complete"
    condition: overdue
    system: true
  - id: rule-not-started
    status: Not Started
    description: "No progress recorded"
    min: 0
    max: 0
    system: true
  - id: rule-delayed
    status: Delayed
    description: "Progress behind expectations"
    min: 0
    max: 69.99
  - id: rule-on-track
    status: On Track
    description: "Progress within expectations"
    min: 70
    max: 99.99
    system: true
  - id: rule-completed
    status: Completed As Per Target
    description: "Target reached"
    min: 100
    unbounded: true
    system: true

approvals:
  approver_roles: [administrator, approver]

webhooks: []
`
