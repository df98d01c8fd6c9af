// Package catalog holds the registry of chat models the service can route to,
// loaded once from a YAML file at startup.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
	ProviderCompatible = "compatible"
)

var ErrNoModels = errors.New("model catalog is empty")

var providerOrder = []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderCompatible}

type Pricing struct {
	Input  float64 `yaml:"input" json:"input"`
	Output float64 `yaml:"output" json:"output"`
}

type Model struct {
	Key           string  `yaml:"-" json:"id"`
	Name          string  `yaml:"name" json:"name"`
	Provider      string  `yaml:"provider" json:"provider"`
	ModelID       string  `yaml:"model_id" json:"model"`
	Image         bool    `yaml:"image" json:"image"`
	MaxTokens     int     `yaml:"max_tokens" json:"max_tokens"`
	ContextWindow int     `yaml:"context_window" json:"context_window"`
	Pricing       Pricing `yaml:"pricing" json:"pricing"`
	Description   string  `yaml:"description" json:"description"`
}

type file struct {
	Models             map[string]map[string]Model `yaml:"models"`
	DefaultModel       string                      `yaml:"default_model"`
	ImageUploadEnabled bool                        `yaml:"image_upload_enabled"`
	MaxFileSizeMB      int                         `yaml:"max_file_size_mb"`
	SupportedFileTypes []string                    `yaml:"supported_file_types"`
}

type Catalog struct {
	models             []Model
	byKey              map[string]Model
	defaultKey         string
	ImageUploadEnabled bool
	MaxFileSizeMB      int
	SupportedFileTypes []string
}

func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model catalog failed: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode model catalog failed: %w", err)
	}

	c := &Catalog{
		byKey:              make(map[string]Model),
		ImageUploadEnabled: f.ImageUploadEnabled,
		MaxFileSizeMB:      f.MaxFileSizeMB,
		SupportedFileTypes: f.SupportedFileTypes,
	}
	for group, entries := range f.Models {
		for key, m := range entries {
			if _, dup := c.byKey[key]; dup {
				return nil, fmt.Errorf("model %q is declared twice", key)
			}
			m.Key = key
			if m.Provider == "" {
				m.Provider = group
			}
			if m.ModelID == "" {
				return nil, fmt.Errorf("model %q has no model_id", key)
			}
			c.byKey[key] = m
			c.models = append(c.models, m)
		}
	}
	if len(c.models) == 0 {
		return nil, ErrNoModels
	}

	slices.SortFunc(c.models, func(a, b Model) int {
		if d := providerRank(a.Provider) - providerRank(b.Provider); d != 0 {
			return d
		}
		if d := strings.Compare(a.Provider, b.Provider); d != 0 {
			return d
		}
		return strings.Compare(a.Key, b.Key)
	})

	if f.DefaultModel != "" {
		if _, ok := c.byKey[f.DefaultModel]; !ok {
			return nil, fmt.Errorf("default_model %q is not declared", f.DefaultModel)
		}
		c.defaultKey = f.DefaultModel
	} else {
		c.defaultKey = c.models[0].Key
	}
	return c, nil
}

func providerRank(p string) int {
	if i := slices.Index(providerOrder, p); i >= 0 {
		return i
	}
	return len(providerOrder)
}

// All returns every model, grouped by provider.
func (c *Catalog) All() []Model {
	return slices.Clone(c.models)
}

func (c *Catalog) Get(key string) (Model, bool) {
	m, ok := c.byKey[key]
	return m, ok
}

func (c *Catalog) Default() Model {
	return c.byKey[c.defaultKey]
}

// Resolve returns the model for key, or the default model when key is empty.
func (c *Catalog) Resolve(key string) (Model, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return c.Default(), true
	}
	return c.Get(key)
}

func (c *Catalog) SupportsImages(key string) bool {
	m, ok := c.Get(key)
	return ok && m.Image
}
