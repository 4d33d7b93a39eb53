package generation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"studio/internal/domain"
)

// Model is one priced generation model.
type Model struct {
	Name    string         `json:"name"`
	Kind    domain.JobKind `json:"kind"`
	Credits int64          `json:"credits"`
}

// DefaultModels is used when GENERATION_MODELS is empty.
var DefaultModels = []Model{
	{Name: "google/nano-banana", Kind: domain.JobKindImage, Credits: 4},
	{Name: "flux-kontext-pro", Kind: domain.JobKindImage, Credits: 6},
	{Name: "veo3_fast", Kind: domain.JobKindVideo, Credits: 40},
	{Name: "veo3", Kind: domain.JobKindVideo, Credits: 120},
}

// Catalog prices generation requests.
type Catalog struct {
	models map[string]Model
}

// NewCatalog builds a catalog from models. Later duplicates win.
func NewCatalog(models []Model) *Catalog {
	c := &Catalog{models: make(map[string]Model, len(models))}
	for _, m := range models {
		c.models[m.Name] = m
	}
	return c
}

// ParseCatalog reads "name:kind:credits" items separated by commas.
func ParseCatalog(raw string) (*Catalog, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NewCatalog(DefaultModels), nil
	}
	var models []Model
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("generation model %q: want name:kind:credits", item)
		}
		kind := domain.JobKind(strings.ToLower(strings.TrimSpace(parts[1])))
		if kind != domain.JobKindImage && kind != domain.JobKindVideo {
			return nil, fmt.Errorf("generation model %q: unknown kind %q", item, parts[1])
		}
		credits, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
		if err != nil || credits < 0 {
			return nil, fmt.Errorf("generation model %q: invalid credits", item)
		}
		models = append(models, Model{Name: strings.TrimSpace(parts[0]), Kind: kind, Credits: credits})
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("generation models: none configured")
	}
	return NewCatalog(models), nil
}

// Lookup returns the model by name.
func (c *Catalog) Lookup(name string) (Model, bool) {
	m, ok := c.models[name]
	return m, ok
}

// Price is the credit cost of quantity outputs of model.
func (c *Catalog) Price(name string, quantity int) (Model, int64, error) {
	m, ok := c.models[name]
	if !ok {
		return Model{}, 0, fmt.Errorf("unknown model %q: %w", name, domain.ErrInvalidInput)
	}
	if quantity <= 0 {
		quantity = 1
	}
	return m, m.Credits * int64(quantity), nil
}

// Models lists the catalog sorted by name.
func (c *Catalog) Models() []Model {
	out := make([]Model, 0, len(c.models))
	for _, m := range c.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
