// Package engine coordinates one conversation turn: it applies extracted
// facts to the requirement ledger, re-evaluates the phase state machine,
// authorizes and dispatches tool invocations, runs the auto-sequenced tool
// chain, selects follow-up questions, and refreshes the compliance score.
// The engine owns session state exclusively for the duration of a turn.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tilemart/salescore/internal/agent/model"
	"github.com/tilemart/salescore/internal/agent/tools"
	"github.com/tilemart/salescore/internal/sales/calc"
	"github.com/tilemart/salescore/internal/sales/gate"
	"github.com/tilemart/salescore/internal/sales/phase"
	"github.com/tilemart/salescore/internal/sales/question"
	"github.com/tilemart/salescore/internal/sales/requirement"
	"github.com/tilemart/salescore/internal/sales/score"
	"github.com/tilemart/salescore/internal/sales/sequence"
	logx "github.com/tilemart/salescore/pkg/logger"
)

// minFactConfidence filters out guesses from the extraction model. Facts
// below this never touch the ledger.
const minFactConfidence = 0.5

// Config wires the engine's collaborators and policies.
type Config struct {
	Registry     *tools.Registry
	Questions    *question.Policy
	Scorer       *score.Scorer
	ResetPolicy  phase.ResetPolicy
	MaxQuestions int
}

type Engine struct {
	registry     *tools.Registry
	questions    *question.Policy
	scorer       *score.Scorer
	resetPolicy  phase.ResetPolicy
	maxQuestions int
}

func New(cfg Config) *Engine {
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = 2
	}
	if cfg.ResetPolicy == "" {
		cfg.ResetPolicy = phase.ResetPhaseOnly
	}
	return &Engine{
		registry:     cfg.Registry,
		questions:    cfg.Questions,
		scorer:       cfg.Scorer,
		resetPolicy:  cfg.ResetPolicy,
		maxQuestions: cfg.MaxQuestions,
	}
}

// ApplyExtraction folds one turn's extraction into the session: topic-change
// reset, project type, then facts in extraction order. It returns the phases
// entered by the re-evaluation that follows.
func (e *Engine) ApplyExtraction(s *model.Session, ex *model.Extraction) []phase.Phase {
	if ex == nil {
		return e.Reevaluate(s)
	}

	if ex.TopicChange {
		logx.Info().
			Str("session_id", s.ID).
			Str("policy", string(e.resetPolicy)).
			Msg("topic change detected, resetting phase")
		m := phase.Restore(s.Phase)
		m.Reset(e.resetPolicy, s.Ledger)
		s.Phase = m.Current()
		s.ProjectType = ""
	}

	if ex.ProjectType != "" {
		s.ProjectType = ex.ProjectType
	}

	for _, f := range ex.Facts {
		if f.Confidence > 0 && f.Confidence < minFactConfidence {
			continue
		}
		res, err := s.Ledger.Record(f.Key, f.Value, f.Revision)
		if err != nil {
			logx.Warn().
				Str("session_id", s.ID).
				Str("key", string(f.Key)).
				Err(err).
				Msg("skipping fact with invalid key")
			continue
		}
		if !res.Updated {
			logx.Debug().
				Str("session_id", s.ID).
				Str("key", string(f.Key)).
				Msg("fact already recorded, kept prior value")
		}
	}

	return e.Reevaluate(s)
}

// Reevaluate advances the session's phase as far as entry conditions allow
// and returns the phases entered.
func (e *Engine) Reevaluate(s *model.Session) []phase.Phase {
	m := phase.Restore(s.Phase)
	entered := m.Reevaluate(phase.Input{Ledger: s.Ledger, Tools: s, ProjectType: s.ProjectType})
	if len(entered) > 0 {
		logx.Info().
			Str("session_id", s.ID).
			Str("from", string(s.Phase)).
			Str("to", string(m.Current())).
			Msg("phase advanced")
	}
	s.Phase = m.Current()
	return entered
}

// Authorize evaluates the gating table plus chain-specific conditions the
// table cannot see, such as a product search that succeeded with zero
// matches.
func (e *Engine) Authorize(s *model.Session, toolName string) gate.Decision {
	d := gate.Authorize(toolName, gate.State{Phase: s.Phase, Ledger: s.Ledger, Tools: s})
	if !d.Allowed {
		return d
	}
	if toolName == phase.ToolCalculateMaterials {
		if _, ok := selectedProduct(s); !ok {
			return gate.Decision{Allowed: false, Reason: "product search returned no matches"}
		}
	}
	return d
}

// ExecuteTool authorizes and runs one model-requested tool invocation. A gate
// denial is recorded and returned as a normal record, not an error; the
// caller turns the reason into a clarifying question. Unknown tool names are
// a validation error.
func (e *Engine) ExecuteTool(ctx context.Context, s *model.Session, toolName, argumentsJSON string) (model.ToolRecord, error) {
	if !e.registry.Known(toolName) {
		return model.ToolRecord{}, fmt.Errorf("%w: %q", tools.ErrUnknownTool, toolName)
	}

	decision := e.Authorize(s, toolName)
	if !decision.Allowed {
		logx.Info().
			Str("session_id", s.ID).
			Str("tool", toolName).
			Str("reason", decision.Reason).
			Msg("tool invocation denied")
		rec := s.AppendRecord(model.ToolRecord{
			Tool:      toolName,
			Arguments: argumentsJSON,
			Allowed:   false,
			Reason:    decision.Reason,
		})
		return rec, nil
	}

	payload, err := e.registry.Invoke(ctx, toolName, argumentsJSON)
	rec := model.ToolRecord{
		Tool:      toolName,
		Arguments: argumentsJSON,
		Allowed:   true,
		Reason:    decision.Reason,
	}
	if err != nil {
		logx.Warn().
			Str("session_id", s.ID).
			Str("tool", toolName).
			Err(err).
			Msg("tool invocation failed")
		rec.Error = err.Error()
	} else {
		rec.Succeeded = true
		rec.Payload = payload
	}
	out := s.AppendRecord(rec)

	e.absorbOutcome(s, out)
	e.Reevaluate(s)
	return out, nil
}

// RunChain executes the search -> calculate -> close dependency chain with
// arguments bound from session state, resuming past steps that already
// succeeded. The returned result carries partial progress when a step was
// blocked or failed.
func (e *Engine) RunChain(ctx context.Context, s *model.Session) sequence.Result {
	boundArgs := map[string]string{}

	bind := func(tool string, build func() (string, error)) sequence.StepFunc {
		return func(ctx context.Context) (any, error) {
			args, err := build()
			if err != nil {
				return nil, err
			}
			boundArgs[tool] = args
			return e.registry.Invoke(ctx, tool, args)
		}
	}

	runner := sequence.NewRunner([]sequence.Step{
		{Tool: phase.ToolSearchProduct, Run: bind(phase.ToolSearchProduct, func() (string, error) {
			return e.searchArgs(s)
		})},
		{Tool: phase.ToolCalculateMaterials, Run: bind(phase.ToolCalculateMaterials, func() (string, error) {
			return e.calculateArgs(s)
		})},
		{Tool: phase.ToolAttemptClose, Mutating: true, Run: bind(phase.ToolAttemptClose, func() (string, error) {
			return e.closeArgs(s)
		})},
	})

	res := runner.Run(ctx, sequence.Hooks{
		Authorize: func(tool string) gate.Decision { return e.Authorize(s, tool) },
		Succeeded: s.Succeeded,
		Record: func(sr sequence.StepResult) {
			rec := model.ToolRecord{
				Tool:      sr.Tool,
				Arguments: boundArgs[sr.Tool],
				Allowed:   sr.Decision.Allowed,
				Reason:    sr.Decision.Reason,
				Succeeded: sr.Status == sequence.StatusDone,
				Payload:   sr.Payload,
				Error:     sr.Err,
			}
			out := s.AppendRecord(rec)
			e.absorbOutcome(s, out)
			e.Reevaluate(s)
		},
	})
	return res
}

// Questions picks the next clarifying questions for the session.
func (e *Engine) Questions(s *model.Session, topicHint string) []question.Ranked {
	return e.questions.NextQuestions(s.Ledger, topicHint, e.maxQuestions)
}

// Score refreshes the session's compliance report from the recorded state.
func (e *Engine) Score(s *model.Session) score.Report {
	s.Scores = e.scorer.Evaluate(s.Transcript())
	return s.Scores
}

// absorbOutcome folds a tool outcome back into the ledger. A successful
// product search with at least one match records the top hit as the selected
// product; zero matches record nothing, so the chain does not advance.
func (e *Engine) absorbOutcome(s *model.Session, rec model.ToolRecord) {
	if rec.Tool != phase.ToolSearchProduct || !rec.Succeeded {
		return
	}
	out, ok := decodePayload[tools.SearchProductOutput](rec.Payload)
	if !ok || out.Total == 0 {
		return
	}
	if _, err := s.Ledger.Record(requirement.KeyProductSelected, out.Matches[0].Product.ID, true); err != nil {
		logx.Error().Err(err).Str("session_id", s.ID).Msg("failed to record selected product")
	}
}

// searchArgs derives the catalog query from collected facts.
func (e *Engine) searchArgs(s *model.Session) (string, error) {
	var terms []string
	if s.ProjectType != "" {
		terms = append(terms, strings.ReplaceAll(s.ProjectType, "_", " "))
	}
	if entry, ok := s.Ledger.Get(requirement.KeyBudget); ok {
		terms = append(terms, entry.Value)
	}
	if len(terms) == 0 {
		terms = append(terms, "tile")
	}
	in := tools.SearchProductInput{Query: strings.Join(terms, " ")}
	b, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// calculateArgs binds the calculation request from the selected product and
// the recorded room dimensions.
func (e *Engine) calculateArgs(s *model.Session) (string, error) {
	product, ok := selectedProduct(s)
	if !ok {
		return "", fmt.Errorf("no product selected")
	}
	entry, ok := s.Ledger.Get(requirement.KeyDimensions)
	if !ok {
		return "", fmt.Errorf("dimensions not collected")
	}
	length, width, unit, ok := ParseDimensions(entry.Value)
	if !ok {
		return "", fmt.Errorf("unparseable dimensions %q", entry.Value)
	}
	in := tools.CalculateMaterialsInput{
		ProductID:        product.ID,
		Length:           length,
		Width:            width,
		Unit:             unit,
		Pattern:          chainPattern(s, product),
		CoveragePerBox:   product.CoverageSqFt,
		PriceCentsPerBox: product.PriceCentsPerBox,
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// closeArgs binds the proposal from the latest successful calculation.
func (e *Engine) closeArgs(s *model.Session) (string, error) {
	out, ok := latestPayload[tools.CalculateMaterialsOutput](s, phase.ToolCalculateMaterials)
	if !ok {
		return "", fmt.Errorf("no calculation on record")
	}
	name := out.ProductID
	if p, ok := selectedProduct(s); ok && p.ID == out.ProductID {
		name = p.Name
	}
	in := tools.AttemptCloseInput{
		ProductID:      out.ProductID,
		ProductName:    name,
		BoxCount:       out.Result.BoxCount,
		TotalCostCents: out.Result.TotalCostCents,
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// chainPattern picks the waste-factor pattern for the auto-chain's
// calculation. The customer's stated layout, recorded under
// installation_method, wins when the selected product supports it; anything
// else falls back to a straight lay.
func chainPattern(s *model.Session, product model.Product) string {
	entry, ok := s.Ledger.Get(requirement.KeyInstallationMethod)
	if !ok {
		return calc.PatternStraight
	}
	stated := strings.ToLower(entry.Value)
	for _, p := range []string{calc.PatternHerringbone, calc.PatternDiagonal, calc.PatternComplex} {
		if !strings.Contains(stated, p) {
			continue
		}
		for _, supported := range product.Patterns {
			if supported == p {
				return p
			}
		}
		return calc.PatternStraight
	}
	return calc.PatternStraight
}

// selectedProduct resolves the ledger's product_selected entry against the
// latest successful search payload.
func selectedProduct(s *model.Session) (model.Product, bool) {
	entry, ok := s.Ledger.Get(requirement.KeyProductSelected)
	if !ok {
		return model.Product{}, false
	}
	out, ok := latestPayload[tools.SearchProductOutput](s, phase.ToolSearchProduct)
	if !ok {
		return model.Product{}, false
	}
	for _, m := range out.Matches {
		if m.Product.ID == entry.Value {
			return m.Product, true
		}
	}
	return model.Product{}, false
}

// latestPayload scans the tool record backwards for the newest successful
// invocation of the tool and decodes its payload.
func latestPayload[T any](s *model.Session, tool string) (T, bool) {
	var zero T
	for i := len(s.Records) - 1; i >= 0; i-- {
		r := s.Records[i]
		if r.Tool != tool || !r.Succeeded {
			continue
		}
		if out, ok := decodePayload[T](r.Payload); ok {
			return out, true
		}
	}
	return zero, false
}

// decodePayload tolerates the two shapes a payload takes: the JSON string a
// live invocation returns, and the map a checkpoint round-trip produces.
func decodePayload[T any](payload any) (T, bool) {
	var out T
	switch p := payload.(type) {
	case string:
		if err := json.Unmarshal([]byte(p), &out); err != nil {
			return out, false
		}
		return out, true
	case nil:
		return out, false
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return out, false
		}
		if err := json.Unmarshal(b, &out); err != nil {
			return out, false
		}
		return out, true
	}
}

var dimensionsPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:x|by|\*)\s*(\d+(?:\.\d+)?)\s*(ft|feet|foot|m|meters|metres)?`)

// ParseDimensions reads a recorded dimensions value like "10x10 ft" or
// "3.5 by 4 m". The unit defaults to feet when absent.
func ParseDimensions(value string) (length, width float64, unit string, ok bool) {
	m := dimensionsPattern.FindStringSubmatch(value)
	if m == nil {
		return 0, 0, "", false
	}
	length, err1 := strconv.ParseFloat(m[1], 64)
	width, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil || length <= 0 || width <= 0 {
		return 0, 0, "", false
	}
	unit = strings.ToLower(m[3])
	switch unit {
	case "", "ft", "feet", "foot":
		unit = "ft"
	case "m", "meters", "metres":
		unit = "m"
	}
	return length, width, unit, true
}
