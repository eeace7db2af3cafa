package sources

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Registry holds the configuration for all upstream sources.
type Registry struct {
	Sources []SourceConfig `yaml:"sources"`
}

// FetchConfig defines HTTP fetching configuration for a source.
type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"`
	MaxRetries     int     `yaml:"max_retries,omitempty"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty"`
	AcceptLanguage string  `yaml:"accept_language,omitempty"`
}

// SourceConfig defines a single upstream source.
type SourceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"` // "api_grants_gov", "api_eu_portal", "html_ukri"
	BaseURL  string `yaml:"base_url,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	Enabled  bool   `yaml:"enabled"`
	Currency string `yaml:"currency,omitempty"`

	Fetch FetchConfig `yaml:"fetch,omitempty"`

	// Selectors drive the HTML adapter.
	Selectors SelectorConfig `yaml:"selectors,omitempty"`
	MaxPages  int            `yaml:"max_pages,omitempty"`
}

type SelectorConfig struct {
	Container string `yaml:"container,omitempty"`
	Link      string `yaml:"link,omitempty"`
	Title     string `yaml:"title,omitempty"`
	Deadline  string `yaml:"deadline,omitempty"`
	Amount    string `yaml:"amount,omitempty"`
	Summary   string `yaml:"summary,omitempty"`
}

// LoadRegistry reads a sources.yaml from path, or the embedded default when
// path is empty. Environment references like ${EU_API_KEY} are expanded
// before parsing.
func LoadRegistry(path string) (*Registry, error) {
	var data []byte
	var err error
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = sourcesYAML.ReadFile("config/sources.yaml")
	}
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("parsing sources config: %w", err)
	}
	return &reg, nil
}

// BuildAdapters constructs an adapter per enabled source config.
func BuildAdapters(reg *Registry) ([]Adapter, error) {
	var adapters []Adapter
	for _, cfg := range reg.Sources {
		if !cfg.Enabled {
			continue
		}
		switch cfg.Kind {
		case "api_grants_gov":
			adapters = append(adapters, NewGrantsGovAdapter(cfg))
		case "api_eu_portal":
			adapters = append(adapters, NewEUPortalAdapter(cfg))
		case "html_ukri":
			adapters = append(adapters, NewUKRIAdapter(cfg))
		default:
			return nil, fmt.Errorf("unknown source kind %q for %q", cfg.Kind, cfg.ID)
		}
	}
	return adapters, nil
}
