package ratelimit

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRequests      = 100
	DefaultWindowSeconds = 60
)

// Rule caps requests per user on one endpoint within a fixed window.
type Rule struct {
	Requests      int `yaml:"requests" json:"requests"`
	WindowSeconds int `yaml:"window_seconds" json:"window_seconds"`
}

func (r Rule) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

func DefaultRule() Rule {
	return Rule{Requests: DefaultRequests, WindowSeconds: DefaultWindowSeconds}
}

func applyDefaults(r Rule) Rule {
	if r.Requests <= 0 {
		r.Requests = DefaultRequests
	}
	if r.WindowSeconds <= 0 {
		r.WindowSeconds = DefaultWindowSeconds
	}
	return r
}

// Rules maps an endpoint name to its rule. Endpoints without an entry use DefaultRule.
type Rules struct {
	RateLimits map[string]Rule `yaml:"rate_limits" json:"rate_limits"`
}

func LoadRules(data []byte) (Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("failed to parse rate limit rules: %w", err)
	}
	for name, r := range rules.RateLimits {
		rules.RateLimits[name] = applyDefaults(r)
	}
	return rules, nil
}

// LoadRulesFile reads rules from path. A missing file yields empty rules.
func LoadRulesFile(path string) (Rules, error) {
	if path == "" {
		return Rules{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Rules{}, nil
		}
		return Rules{}, fmt.Errorf("failed to read rate limit rules: %w", err)
	}
	return LoadRules(data)
}

func (r Rules) Get(endpoint string) Rule {
	if rule, ok := r.RateLimits[endpoint]; ok {
		return applyDefaults(rule)
	}
	return DefaultRule()
}

// longestWindow is the retention horizon for stored counters.
func (r Rules) longestWindow() time.Duration {
	longest := DefaultRule().Window()
	for _, rule := range r.RateLimits {
		longest = max(longest, applyDefaults(rule).Window())
	}
	return longest
}
