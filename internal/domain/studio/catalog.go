package studio

import (
	"sort"

	"arbiter-backend/internal/errors"
)

// Catalog holds the validated studios the service is configured with.
// It is built once at startup and read-only afterwards.
type Catalog struct {
	studios map[string]*Studio
}

// NewCatalog indexes studios by id. Duplicate ids are a configuration
// error.
func NewCatalog(studios ...*Studio) (*Catalog, error) {
	byID := make(map[string]*Studio, len(studios))
	for _, s := range studios {
		if _, ok := byID[s.ID]; ok {
			return nil, errors.Config("DUPLICATE_STUDIO", "studio id is declared twice").
				WithResource(s.ID).Build()
		}
		byID[s.ID] = s
	}
	return &Catalog{studios: byID}, nil
}

// Get returns the studio with the given id.
func (c *Catalog) Get(id string) (*Studio, error) {
	s, ok := c.studios[id]
	if !ok {
		return nil, errors.NotFound("STUDIO_NOT_FOUND", "studio is not configured").
			WithResource(id).Build()
	}
	return s, nil
}

// IDs lists the configured studio ids in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.studios))
	for id := range c.studios {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
