package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/tilemart/salescore/internal/agent/model"
	"github.com/tilemart/salescore/internal/sales/phase"
	"github.com/tilemart/salescore/internal/sales/question"
	"github.com/tilemart/salescore/internal/sales/requirement"
)

//go:embed template/response_prompt.txt
var coreSystemPrompt string

// RenderResponseSystem renders the dynamic response system prompt from the
// session's orchestration state and triggers prompt callbacks.
func RenderResponseSystem(ctx context.Context, config model.ResponsePromptConfig, session *model.Session, questions []question.Ranked) (string, error) {
	if session == nil {
		return "", fmt.Errorf("session is nil")
	}

	customerName := "the customer"
	if e, ok := session.Ledger.Get(requirement.KeyIdentity); ok {
		customerName = e.Value
	}

	var known []string
	for _, k := range requirement.MandatoryKeys() {
		if e, ok := session.Ledger.Get(k); ok {
			known = append(known, fmt.Sprintf("%s: %s", k, e.Value))
		}
	}

	var missing []string
	for _, k := range session.Ledger.Missing() {
		missing = append(missing, string(k))
	}

	var nextQuestions []string
	for _, q := range questions {
		nextQuestions = append(nextQuestions, q.Text)
	}

	// Render via Eino prompt component (Go template) to both format and emit callbacks
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(coreSystemPrompt),
	)
	vars := map[string]any{
		"BusinessType":  config.BusinessType,
		"BusinessName":  config.BusinessName,
		"Phase":         string(session.Phase),
		"ProjectType":   session.ProjectType,
		"CustomerName":  customerName,
		"KnownFacts":    strings.Join(known, "; "),
		"Missing":       strings.Join(missing, ", "),
		"NextQuestions": strings.Join(nextQuestions, " | "),
		"SearchTool":    phase.ToolSearchProduct,
		"CalculateTool": phase.ToolCalculateMaterials,
		"CloseTool":     phase.ToolAttemptClose,
		"LookupTool":    phase.ToolLookupCustomer,
		"SaveTool":      phase.ToolSaveProject,
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("response prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("response prompt render: empty result")
	}
	return msgs[0].Content, nil
}
