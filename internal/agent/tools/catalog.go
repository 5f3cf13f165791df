package tools

import (
	"context"
	"sort"
	"strings"

	"github.com/tilemart/salescore/internal/agent/model"
)

// ProductSearcher is the product-search collaborator contract. An empty
// match list is valid output, not an error; the gating logic handles it by
// not advancing the tool chain.
type ProductSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]model.ProductMatch, error)
}

// StaticCatalog is a keyword-matching stand-in for the semantic search
// service, backed by a fixed tile catalog.
type StaticCatalog struct {
	products []model.Product
}

func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{products: tileCatalog}
}

func (c *StaticCatalog) Search(_ context.Context, query string, maxResults int) ([]model.ProductMatch, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	queryLower := strings.ToLower(query)
	terms := strings.Fields(queryLower)

	var matches []model.ProductMatch
	for _, p := range c.products {
		hay := strings.ToLower(p.Name + " " + p.Material + " " + p.Description)
		hits := 0
		for _, t := range terms {
			if strings.Contains(hay, t) {
				hits++
			}
		}
		if hits == 0 && len(terms) > 0 {
			continue
		}
		score := 1.0
		if len(terms) > 0 {
			score = float64(hits) / float64(len(terms))
		}
		matches = append(matches, model.ProductMatch{Product: p, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches, nil
}

var tileCatalog = []model.Product{
	{
		ID:               "tile-oak-07",
		Name:             "Harvest Oak Wood-Look Porcelain",
		Material:         "porcelain",
		CoverageSqFt:     15,
		PriceCentsPerBox: 499,
		Description:      "Warm oak-grain plank tile for bathroom and kitchen floors, slip-rated for wet rooms",
		Patterns:         []string{"straight", "diagonal", "herringbone"},
		InStock:          true,
	},
	{
		ID:               "tile-slate-01",
		Name:             "Ridgeline Slate",
		Material:         "natural stone",
		CoverageSqFt:     12.5,
		PriceCentsPerBox: 1249,
		Description:      "Cleft-face slate for entryways and mudroom floors, sealed finish",
		Patterns:         []string{"straight", "diagonal"},
		InStock:          true,
	},
	{
		ID:               "tile-subway-03",
		Name:             "Classic White Subway Ceramic",
		Material:         "ceramic",
		CoverageSqFt:     10.75,
		PriceCentsPerBox: 329,
		Description:      "Glossy 3x6 subway tile for kitchen backsplash and shower walls",
		Patterns:         []string{"straight", "herringbone", "complex"},
		InStock:          true,
	},
	{
		ID:               "tile-hex-11",
		Name:             "Carrara Hex Mosaic",
		Material:         "natural stone",
		CoverageSqFt:     9.8,
		PriceCentsPerBox: 1599,
		Description:      "Marble hexagon mosaic sheets for bathroom floors and accent walls",
		Patterns:         []string{"straight"},
		InStock:          false,
	},
	{
		ID:               "tile-terra-05",
		Name:             "Terracotta Saltillo",
		Material:         "ceramic",
		CoverageSqFt:     13.2,
		PriceCentsPerBox: 689,
		Description:      "Hand-finished terracotta for patios and sunrooms, warm rustic tones",
		Patterns:         []string{"straight", "diagonal"},
		InStock:          true,
	},
	{
		ID:               "tile-marble-09",
		Name:             "Calacatta Gold Polished Porcelain",
		Material:         "porcelain",
		CoverageSqFt:     16,
		PriceCentsPerBox: 1899,
		Description:      "Large-format marble-look porcelain for kitchen floors and feature walls",
		Patterns:         []string{"straight", "diagonal", "complex"},
		InStock:          true,
	},
}
