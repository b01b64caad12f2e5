package mood

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rule contributes weight to a record's score when any of its keywords
// appears in the record text. Topic labels the contribution for the
// mood result's event-type breakdown.
type Rule struct {
	Topic    string   `yaml:"topic"`
	Keywords []string `yaml:"keywords"`
	Weight   float64  `yaml:"weight"`
}

// Rules bundles the scoring rules with the label thresholds. Exact weights
// are tuning configuration, not a contract; these defaults mirror the
// label behavior of the original mood heuristic.
type Rules struct {
	HappyThreshold float64 `yaml:"happy_threshold"`
	TenseThreshold float64 `yaml:"tense_threshold"`
	Rules          []Rule  `yaml:"rules"`
}

// DefaultRules is the built-in rule set used when no rules file is
// configured.
func DefaultRules(happyThreshold, tenseThreshold float64) Rules {
	return Rules{
		HappyThreshold: happyThreshold,
		TenseThreshold: tenseThreshold,
		Rules: []Rule{
			{
				Topic:    "celebration",
				Keywords: []string{"festival", "concert", "celebration", "parade", "carnival", "fireworks"},
				Weight:   1,
			},
			{
				Topic:    "positive",
				Keywords: []string{"happy", "beautiful", "amazing", "great", "love", "fun", "win", "opening"},
				Weight:   0.7,
			},
			{
				Topic:    "incident",
				Keywords: []string{"accident", "fire", "flood", "crime", "robbery", "violence", "protest", "emergency"},
				Weight:   -1,
			},
			{
				Topic:    "negative",
				Keywords: []string{"angry", "terrible", "awful", "scam", "broken", "closed", "cancelled"},
				Weight:   -0.7,
			},
			{
				Topic:    "traffic",
				Keywords: []string{"traffic", "jam", "congestion", "gridlock", "roadblock", "diversion", "pothole"},
				Weight:   -0.5,
			},
		},
	}
}

// LoadRules reads a YAML rules file, falling back to the passed thresholds
// for any the file omits.
func LoadRules(path string, happyThreshold, tenseThreshold float64) (Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read mood rules: %w", err)
	}

	var rules Rules
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse mood rules: %w", err)
	}

	if rules.HappyThreshold == 0 {
		rules.HappyThreshold = happyThreshold
	}
	if rules.TenseThreshold == 0 {
		rules.TenseThreshold = tenseThreshold
	}
	if rules.TenseThreshold >= rules.HappyThreshold {
		return Rules{}, fmt.Errorf("mood rules: tense threshold %v must be below happy threshold %v", rules.TenseThreshold, rules.HappyThreshold)
	}
	if len(rules.Rules) == 0 {
		return Rules{}, fmt.Errorf("mood rules: no rules defined")
	}
	return rules, nil
}
