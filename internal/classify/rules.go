package classify

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var embeddedRules []byte

// RuleFile is the top-level YAML structure for classification rules.
type RuleFile struct {
	Rules []RuleConfig `yaml:"rules"`
}

// RuleConfig is one heuristic rule: a category plus regexes matched against
// the column name and the sample values. A rule fires when the column name
// matches any name pattern, or when more than half of the samples match a
// value pattern.
type RuleConfig struct {
	Name          string   `yaml:"name"`
	Category      string   `yaml:"category"`
	Rationale     string   `yaml:"rationale,omitempty"`
	NamePatterns  []string `yaml:"name_patterns,omitempty"`
	ValuePatterns []string `yaml:"value_patterns,omitempty"`
}

type compiledRule struct {
	name      string
	category  Category
	rationale string
	names     []*regexp.Regexp
	values    []*regexp.Regexp
}

// RuleGateway is an offline classifier gateway driven by regex rules. It is
// the zero-dependency alternative to the LLM gateway: no network, fully
// deterministic, useful for air-gapped runs and tests.
type RuleGateway struct {
	rules []compiledRule
}

// NewRuleGateway compiles the embedded default rules, optionally merged with
// a user rule file layered on top (matching rule names override, new rules
// append).
func NewRuleGateway(userRuleFile string) (*RuleGateway, error) {
	var base RuleFile
	if err := yaml.Unmarshal(embeddedRules, &base); err != nil {
		return nil, fmt.Errorf("parsing embedded rules: %w", err)
	}

	merged := base.Rules
	if userRuleFile != "" {
		data, err := os.ReadFile(userRuleFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading rule file %s: %w", userRuleFile, err)
			}
		} else {
			var user RuleFile
			if err := yaml.Unmarshal(data, &user); err != nil {
				return nil, fmt.Errorf("parsing rule file %s: %w", userRuleFile, err)
			}
			merged = mergeRules(merged, user.Rules)
		}
	}

	compiled := make([]compiledRule, 0, len(merged))
	for _, rc := range merged {
		cr := compiledRule{
			name:      rc.Name,
			category:  ParseCategory(rc.Category),
			rationale: rc.Rationale,
		}
		if cr.rationale == "" {
			cr.rationale = fmt.Sprintf("matched rule %q", rc.Name)
		}
		for _, p := range rc.NamePatterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("rule %q: compiling name pattern %q: %w", rc.Name, p, err)
			}
			cr.names = append(cr.names, re)
		}
		for _, p := range rc.ValuePatterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("rule %q: compiling value pattern %q: %w", rc.Name, p, err)
			}
			cr.values = append(cr.values, re)
		}
		compiled = append(compiled, cr)
	}

	return &RuleGateway{rules: compiled}, nil
}

// Classify matches the column against the rules in order and returns the
// first hit. Columns matching no rule are plain text.
func (g *RuleGateway) Classify(ctx context.Context, column string, samples []string) (Record, error) {
	_, span := tracer.Start(ctx, "classify.rules")
	defer span.End()

	for _, rule := range g.rules {
		if rule.matches(column, samples) {
			return Record{
				Column:    column,
				Category:  rule.category,
				Sensitive: rule.category != CategoryText,
				Rationale: rule.rationale,
			}.Normalize(), nil
		}
	}
	return Record{
		Column:    column,
		Category:  CategoryText,
		Sensitive: false,
		Rationale: "no rule matched",
	}, nil
}

func (r compiledRule) matches(column string, samples []string) bool {
	for _, re := range r.names {
		if re.MatchString(column) {
			return true
		}
	}
	if len(r.values) == 0 || len(samples) == 0 {
		return false
	}
	hits := 0
	for _, s := range samples {
		for _, re := range r.values {
			if re.MatchString(s) {
				hits++
				break
			}
		}
	}
	return hits*2 > len(samples)
}

func mergeRules(base, overlay []RuleConfig) []RuleConfig {
	index := make(map[string]int, len(base))
	merged := append([]RuleConfig(nil), base...)
	for i, rc := range merged {
		index[rc.Name] = i
	}
	for _, rc := range overlay {
		if i, ok := index[rc.Name]; ok {
			merged[i] = rc
		} else {
			index[rc.Name] = len(merged)
			merged = append(merged, rc)
		}
	}
	return merged
}
