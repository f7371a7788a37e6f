package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlCatalog mirrors the YAML plan catalog layout.
type yamlCatalog struct {
	Plans []yamlPlan `yaml:"plans"`
}

type yamlPlan struct {
	ID            string           `yaml:"id"`
	Name          string           `yaml:"name"`
	MonthlyPrice  float64          `yaml:"monthly_price"`
	Quotas        map[string]int64 `yaml:"quotas"`
	Default       bool             `yaml:"default"`
	PricingScript string           `yaml:"pricing_script"`
}

// LoadPlanCatalogYAML loads a plan catalog from a YAML file. This is
// the fallback for installations that keep the billing catalog
// separate from the CUE config.
func LoadPlanCatalogYAML(path string) ([]PlanConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var catalog yamlCatalog
	if err := yaml.Unmarshal(content, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	plans := make([]PlanConfig, 0, len(catalog.Plans))
	defaults := 0
	for i, entry := range catalog.Plans {
		if entry.Name == "" {
			return nil, fmt.Errorf("plan %d has no name", i)
		}
		if entry.MonthlyPrice < 0 {
			return nil, fmt.Errorf("plan %s has a negative price", entry.Name)
		}
		if entry.Default {
			defaults++
		}
		plans = append(plans, PlanConfig{
			ID:            entry.ID,
			Name:          entry.Name,
			MonthlyPrice:  entry.MonthlyPrice,
			Quotas:        entry.Quotas,
			Default:       entry.Default,
			PricingScript: entry.PricingScript,
		})
	}

	if defaults > 1 {
		return nil, fmt.Errorf("only one plan may be marked default")
	}

	return plans, nil
}
