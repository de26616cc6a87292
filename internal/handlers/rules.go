package handlers

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Rule is one auto-response entry: any of Commands (matched case-insensitively
// against the whole message) triggers Response.
type Rule struct {
	Commands []string `json:"commands"`
	Response string   `json:"response"`
}

// RuleSet is the loaded auto-response configuration.
type RuleSet struct {
	rules []Rule
	index map[string]string // normalized command -> response
}

// LoadRules reads an auto-response JSON file. A missing file yields an empty
// set: auto-response is simply off until the file exists.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &RuleSet{index: map[string]string{}}, nil
		}
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	set := &RuleSet{rules: rules, index: map[string]string{}}
	for _, rule := range rules {
		for _, cmd := range rule.Commands {
			set.index[normalize(cmd)] = rule.Response
		}
	}
	return set, nil
}

// Match returns the response for a message, if any rule covers it.
func (s *RuleSet) Match(text string) (string, bool) {
	response, ok := s.index[normalize(text)]
	return response, ok
}

// Len returns the number of loaded rules.
func (s *RuleSet) Len() int { return len(s.rules) }

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
