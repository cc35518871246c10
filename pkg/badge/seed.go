package badge

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/AccelByte/extend-badge-engine/pkg/rule"
)

// Seed is the badge catalog file format.
type Seed struct {
	Badges []Badge `yaml:"badges"`
}

// LoadSeed reads a badge catalog from a YAML file.
// Supports environment variable expansion in the form ${VAR_NAME} or ${VAR_NAME:default}.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	return ParseSeed(data)
}

// ParseSeed parses a YAML badge catalog.
func ParseSeed(data []byte) (*Seed, error) {
	expanded := expandEnvVars(string(data))

	var seed Seed
	if err := yaml.Unmarshal([]byte(expanded), &seed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML seed: %w", err)
	}

	if err := seed.Validate(); err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}

	return &seed, nil
}

// Validate checks ids and badge fields. Rule kinds are not checked here;
// unknown kinds are handled by the evaluator's policy.
func (s *Seed) Validate() error {
	ids := make(map[string]bool)
	for _, b := range s.Badges {
		if b.ID == "" {
			return fmt.Errorf("badge with empty ID found")
		}
		if ids[b.ID] {
			return fmt.Errorf("duplicate badge ID: %s", b.ID)
		}
		ids[b.ID] = true

		if err := Validate(b, nil); err != nil {
			return fmt.Errorf("badge %s: %w", b.ID, err)
		}
	}
	return nil
}

// Apply upserts the seed badges into repo and warns about rule kinds the
// registry does not know.
func (s *Seed) Apply(ctx context.Context, repo Repository, registry *rule.Registry) error {
	for _, b := range s.Badges {
		for _, k := range b.Rules.Kinds() {
			if registry != nil && !registry.Known(k) {
				logrus.Warnf("badge %s uses unknown rule type %s", b.ID, k)
			}
		}
	}

	if err := repo.Upsert(ctx, s.Badges); err != nil {
		return fmt.Errorf("failed to seed badges: %w", err)
	}

	logrus.Infof("seeded %d badges", len(s.Badges))
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		parts := strings.SplitN(key, ":", 2)
		name := parts[0]
		def := ""
		if len(parts) == 2 {
			def = parts[1]
		}

		if v := os.Getenv(name); v != "" {
			return v
		}
		return def
	})
}
