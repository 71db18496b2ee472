package ingest

import (
	"slices"
	"strings"

	"pricewise-backend/internal/catalog"
	"pricewise-backend/internal/components/assert"
)

// Registry maps shop names to their sources, names are matched without
// regard to case.
type Registry struct {
	sources map[string]Source
}

func NewRegistry(sources ...Source) Registry {
	r := Registry{sources: map[string]Source{}}
	for _, s := range sources {
		assert.NotNil(s)
		r.sources[strings.ToLower(s.Shop().Name)] = s
	}
	return r
}

func (r Registry) Lookup(shopName string) (Source, error) {
	shopName = strings.TrimSpace(shopName)
	if shopName == "" {
		return nil, catalog.ValidationError{Field: "shopName", Reason: "required"}
	}
	s, ok := r.sources[strings.ToLower(shopName)]
	if !ok {
		return nil, catalog.ValidationError{
			Field:  "shopName",
			Reason: "unsupported shop " + shopName,
		}
	}
	return s, nil
}

// Names returns the canonical name of every registered shop, sorted.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for _, s := range r.sources {
		names = append(names, s.Shop().Name)
	}
	slices.Sort(names)
	return names
}
