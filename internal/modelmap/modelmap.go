// Package modelmap resolves client-facing Claude model names to the backend models
// configured for the big, middle and small tiers.
package modelmap

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Tier groups Claude models by capability.
type Tier string

const (
	TierBig    Tier = "big"
	TierMiddle Tier = "middle"
	TierSmall  Tier = "small"
)

// Model is one entry of the embedded catalog.
type Model struct {
	ID          string    `yaml:"id"`
	DisplayName string    `yaml:"display_name"`
	Tier        Tier      `yaml:"tier"`
	CreatedAt   time.Time `yaml:"created_at"`
	Aliases     []string  `yaml:"aliases"`
}

type catalog struct {
	Models []Model `yaml:"models"`
}

// passthroughPrefixes mark names that already address a backend model.
var passthroughPrefixes = []string{"gpt-", "o1-", "o3-", "o4-", "ep-", "doubao-", "deepseek-"}

// Config names the backend model of each tier. An empty MiddleModel falls back to
// BigModel.
type Config struct {
	BigModel    string
	MiddleModel string
	SmallModel  string
}

// Mapper resolves model names. It is immutable and safe for concurrent use.
type Mapper struct {
	tiers  map[Tier]string
	models []Model
	// byName indexes catalog entries by id and alias.
	byName map[string]int
}

// New loads the embedded catalog and binds it to the configured backend models.
func New(cfg Config) (*Mapper, error) {
	if cfg.BigModel == "" {
		return nil, errors.New("big model must be set")
	}
	if cfg.SmallModel == "" {
		return nil, errors.New("small model must be set")
	}
	if cfg.MiddleModel == "" {
		cfg.MiddleModel = cfg.BigModel
	}

	models, err := parseCatalog(catalogYAML)
	if err != nil {
		return nil, err
	}

	m := &Mapper{
		tiers: map[Tier]string{
			TierBig:    cfg.BigModel,
			TierMiddle: cfg.MiddleModel,
			TierSmall:  cfg.SmallModel,
		},
		models: models,
		byName: make(map[string]int, len(models)*2),
	}
	for i, model := range models {
		m.byName[model.ID] = i
		for _, alias := range model.Aliases {
			m.byName[alias] = i
		}
	}
	return m, nil
}

func parseCatalog(data []byte) ([]Model, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}

	seen := make(map[string]bool, len(c.Models))
	for i, model := range c.Models {
		if model.ID == "" {
			return nil, fmt.Errorf("model catalog entry %d has no id", i)
		}
		switch model.Tier {
		case TierBig, TierMiddle, TierSmall:
		default:
			return nil, fmt.Errorf("model %s has unknown tier %q", model.ID, model.Tier)
		}
		if seen[model.ID] {
			return nil, fmt.Errorf("duplicate model %s in catalog", model.ID)
		}
		seen[model.ID] = true
	}
	return c.Models, nil
}

// Resolve returns the backend model for a requested name.
//
// Names that already address a backend model pass through unchanged. Catalog ids and
// aliases use their tier. Other names are matched by family (haiku, sonnet, opus) and
// default to the big tier.
func (m *Mapper) Resolve(model string) string {
	for _, prefix := range passthroughPrefixes {
		if strings.HasPrefix(model, prefix) {
			return model
		}
	}
	return m.tiers[m.TierOf(model)]
}

// TierOf reports the tier a requested model name maps to.
func (m *Mapper) TierOf(model string) Tier {
	if i, ok := m.byName[model]; ok {
		return m.models[i].Tier
	}

	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "haiku"):
		return TierSmall
	case strings.Contains(lower, "sonnet"):
		return TierMiddle
	default:
		// Opus and unknown names.
		return TierBig
	}
}

// Backend returns the backend model configured for tier.
func (m *Mapper) Backend(tier Tier) string {
	return m.tiers[tier]
}

// List returns the catalog in declaration order.
func (m *Mapper) List() []Model {
	return append([]Model(nil), m.models...)
}

// Lookup finds a catalog model by id or alias.
func (m *Mapper) Lookup(name string) (Model, bool) {
	i, ok := m.byName[name]
	if !ok {
		return Model{}, false
	}
	return m.models[i], true
}
