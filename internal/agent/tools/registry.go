package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/tilemart/salescore/internal/agent/model"
	"github.com/tilemart/salescore/internal/sales/calc"
	"github.com/tilemart/salescore/internal/sales/phase"
)

// ErrUnknownTool is returned when a tool name falls outside the closed set.
// Unknown names are a validation error, never a silent no-op.
var ErrUnknownTool = errors.New("unknown tool")

// Registry holds the closed set of sales tools. Every invocation goes
// through Invoke so the gate and sequencer see one uniform entry point.
type Registry struct {
	tools map[string]tool.InvokableTool
}

func NewRegistry(catalog ProductSearcher, store CustomerStore) *Registry {
	r := &Registry{tools: make(map[string]tool.InvokableTool)}
	r.tools[phase.ToolSearchProduct] = createSearchProductTool(catalog)
	r.tools[phase.ToolCalculateMaterials] = createCalculateMaterialsTool()
	r.tools[phase.ToolAttemptClose] = createAttemptCloseTool()
	r.tools[phase.ToolLookupCustomer] = createLookupCustomerTool(store)
	r.tools[phase.ToolSaveProject] = createSaveProjectTool(store)
	return r
}

// Known reports whether name belongs to the tool set.
func (r *Registry) Known(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Invoke runs one tool with JSON arguments and returns its JSON payload.
func (r *Registry) Invoke(ctx context.Context, name string, argumentsJSON string) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return t.InvokableRun(ctx, argumentsJSON)
}

// Infos returns the tool schemas for binding to the response model.
func (r *Registry) Infos(ctx context.Context) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(r.tools))
	for _, name := range []string{
		phase.ToolSearchProduct,
		phase.ToolCalculateMaterials,
		phase.ToolAttemptClose,
		phase.ToolLookupCustomer,
		phase.ToolSaveProject,
	} {
		info, err := r.tools[name].Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info for %s: %w", name, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// ===================================
// Search Product Tool
// ===================================

type SearchProductInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

type SearchProductOutput struct {
	Matches []model.ProductMatch `json:"matches"`
	Total   int                  `json:"total"`
}

func createSearchProductTool(catalog ProductSearcher) tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: phase.ToolSearchProduct,
			Desc: "Search the tile catalog by keywords. Use material names (porcelain, ceramic, slate, marble), room types (bathroom, kitchen, patio), or style words. Returns scored matches with coverage per box and price.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "Search keywords, e.g. 'porcelain bathroom floor' or 'marble look kitchen'.",
					Required: true,
				},
				"max_results": {
					Type: "number",
					Desc: "Maximum number of matches to return (default 5).",
				},
			}),
		},
		func(ctx context.Context, in *SearchProductInput) (*SearchProductOutput, error) {
			if in.Query == "" {
				return nil, fmt.Errorf("query is required")
			}
			matches, err := catalog.Search(ctx, in.Query, in.MaxResults)
			if err != nil {
				return nil, fmt.Errorf("product search: %w", err)
			}
			return &SearchProductOutput{Matches: matches, Total: len(matches)}, nil
		},
	)
}

// ===================================
// Calculate Materials Tool
// ===================================

type CalculateMaterialsInput struct {
	ProductID        string  `json:"product_id"`
	Length           float64 `json:"length"`
	Width            float64 `json:"width"`
	Unit             string  `json:"unit,omitempty"`
	Pattern          string  `json:"pattern,omitempty"`
	CoveragePerBox   float64 `json:"coverage_per_box"`
	PriceCentsPerBox int64   `json:"price_cents_per_box"`
}

type CalculateMaterialsOutput struct {
	ProductID string      `json:"product_id"`
	Result    calc.Result `json:"result"`
}

func createCalculateMaterialsTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: phase.ToolCalculateMaterials,
			Desc: "Calculate box count and total cost for a tile project from room dimensions, installation pattern, and the selected product's coverage and price. Applies pattern waste factors and rounds boxes up.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"product_id": {
					Type:     "string",
					Desc:     "ID of the selected tile product.",
					Required: true,
				},
				"length": {
					Type:     "number",
					Desc:     "Room length.",
					Required: true,
				},
				"width": {
					Type:     "number",
					Desc:     "Room width.",
					Required: true,
				},
				"unit": {
					Type: "string",
					Desc: "Measurement unit, 'ft' or 'm' (default ft).",
				},
				"pattern": {
					Type: "string",
					Desc: "Installation pattern: straight, diagonal, herringbone, or complex (default straight).",
				},
				"coverage_per_box": {
					Type:     "number",
					Desc:     "Area one box covers, in the same unit squared.",
					Required: true,
				},
				"price_cents_per_box": {
					Type:     "number",
					Desc:     "Price per box in cents.",
					Required: true,
				},
			}),
		},
		func(_ context.Context, in *CalculateMaterialsInput) (*CalculateMaterialsOutput, error) {
			pattern := in.Pattern
			if pattern == "" {
				pattern = calc.PatternStraight
			}
			unit := in.Unit
			if unit == "" {
				unit = "ft"
			}
			res, err := calc.Calculate(calc.Input{
				Length:         in.Length,
				Width:          in.Width,
				Unit:           unit,
				CoveragePerBox: in.CoveragePerBox,
				PriceCents:     in.PriceCentsPerBox,
				Pattern:        pattern,
			})
			if err != nil {
				return nil, err
			}
			return &CalculateMaterialsOutput{ProductID: in.ProductID, Result: res}, nil
		},
	)
}

// ===================================
// Attempt Close Tool
// ===================================

type AttemptCloseInput struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	BoxCount       int64  `json:"box_count"`
	TotalCostCents int64  `json:"total_cost_cents"`
}

type AttemptCloseOutput struct {
	Proposal string `json:"proposal"`
	Accepted bool   `json:"accepted"`
}

func createAttemptCloseTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: phase.ToolAttemptClose,
			Desc: "Present the final purchase proposal: selected product, box count, and total cost. Only call after materials have been calculated.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"product_id": {
					Type:     "string",
					Desc:     "ID of the proposed tile product.",
					Required: true,
				},
				"product_name": {
					Type:     "string",
					Desc:     "Display name of the proposed product.",
					Required: true,
				},
				"box_count": {
					Type:     "number",
					Desc:     "Number of boxes in the proposal.",
					Required: true,
				},
				"total_cost_cents": {
					Type:     "number",
					Desc:     "Total cost of the proposal in cents.",
					Required: true,
				},
			}),
		},
		func(_ context.Context, in *AttemptCloseInput) (*AttemptCloseOutput, error) {
			if in.ProductID == "" || in.BoxCount <= 0 {
				return nil, fmt.Errorf("proposal requires a product and a positive box count")
			}
			dollars := in.TotalCostCents / 100
			cents := in.TotalCostCents % 100
			proposal := fmt.Sprintf("%d boxes of %s for $%d.%02d", in.BoxCount, in.ProductName, dollars, cents)
			return &AttemptCloseOutput{Proposal: proposal, Accepted: false}, nil
		},
	)
}

// ===================================
// Lookup Customer Tool
// ===================================

type LookupCustomerInput struct {
	CustomerID string `json:"customer_id,omitempty"`
}

func createLookupCustomerTool(store CustomerStore) tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: phase.ToolLookupCustomer,
			Desc: "Look up a returning customer by ID, or register a new one when no ID is known.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"customer_id": {
					Type: "string",
					Desc: "Known customer ID. Leave empty for a new customer.",
				},
			}),
		},
		func(ctx context.Context, in *LookupCustomerInput) (*model.Customer, error) {
			c, err := store.GetOrCreateCustomer(ctx, in.CustomerID)
			if err != nil {
				return nil, fmt.Errorf("customer lookup: %w", err)
			}
			return c, nil
		},
	)
}

// ===================================
// Save Project Tool
// ===================================

type SaveProjectInput struct {
	CustomerID  string            `json:"customer_id"`
	SessionID   string            `json:"session_id"`
	ProjectType string            `json:"project_type,omitempty"`
	Facts       map[string]string `json:"facts"`
}

type SaveProjectOutput struct {
	ProjectRecordID string `json:"project_record_id"`
}

func createSaveProjectTool(store CustomerStore) tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: phase.ToolSaveProject,
			Desc: "Persist the collected project facts as a checkpoint. Call once the core project details are known.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"customer_id": {
					Type:     "string",
					Desc:     "Customer the project belongs to.",
					Required: true,
				},
				"session_id": {
					Type:     "string",
					Desc:     "Conversation session ID.",
					Required: true,
				},
				"project_type": {
					Type: "string",
					Desc: "Project type, e.g. bathroom floor, kitchen backsplash.",
				},
				"facts": {
					Type:     "object",
					Desc:     "Collected requirement facts keyed by requirement name.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *SaveProjectInput) (*SaveProjectOutput, error) {
			if in.SessionID == "" {
				return nil, fmt.Errorf("session_id is required")
			}
			id, err := store.SaveProject(ctx, &model.ProjectFacts{
				CustomerID:  in.CustomerID,
				SessionID:   in.SessionID,
				ProjectType: in.ProjectType,
				Facts:       in.Facts,
			})
			if err != nil {
				return nil, fmt.Errorf("save project: %w", err)
			}
			return &SaveProjectOutput{ProjectRecordID: id}, nil
		},
	)
}
