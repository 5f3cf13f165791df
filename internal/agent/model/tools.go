package model

// Product is one tile product in the catalog.
type Product struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Material is the tile material: porcelain, ceramic, natural stone.
	Material string `json:"material"`
	// CoverageSqFt is the area one box covers.
	CoverageSqFt float64 `json:"coverage_sq_ft"`
	// PriceCentsPerBox keeps money exact.
	PriceCentsPerBox int64  `json:"price_cents_per_box"`
	Description      string `json:"description"`
	// Patterns lists the installation patterns the tile suits.
	Patterns []string `json:"patterns"`
	InStock  bool     `json:"in_stock"`
}

// ProductMatch is one semantic-search hit from the product-search
// collaborator. An empty match list is valid output, not an error.
type ProductMatch struct {
	Product Product `json:"product"`
	Score   float64 `json:"score"`
}

// Customer is the data-store collaborator's view of a customer.
type Customer struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ProjectFacts is what save_project persists at a checkpoint.
type ProjectFacts struct {
	CustomerID  string            `json:"customer_id"`
	SessionID   string            `json:"session_id"`
	ProjectType string            `json:"project_type,omitempty"`
	Facts       map[string]string `json:"facts"`
}
