package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed plans.yaml
var defaultPlans []byte

type Plan struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	MonthlyPosts  int    `yaml:"monthly_posts"`
	MonthlyVideos int    `yaml:"monthly_videos"`
	MonthlyImages int    `yaml:"monthly_images"`
}

type PlanCatalog struct {
	Plans []Plan `yaml:"plans"`
}

// LoadPlans reads the plan catalog from path, or the embedded default when
// path is empty.
func LoadPlans(path string) (*PlanCatalog, error) {
	data := defaultPlans
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading plans file: %w", err)
		}
		data = b
	}
	return ParsePlans(data)
}

func ParsePlans(data []byte) (*PlanCatalog, error) {
	var catalog PlanCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parsing plans: %w", err)
	}
	seen := make(map[string]struct{}, len(catalog.Plans))
	for _, p := range catalog.Plans {
		if p.ID == "" {
			return nil, fmt.Errorf("plan without id")
		}
		if _, ok := seen[p.ID]; ok {
			return nil, fmt.Errorf("duplicate plan %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return &catalog, nil
}

func (c *PlanCatalog) Get(id string) (Plan, bool) {
	for _, p := range c.Plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
