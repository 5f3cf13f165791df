package nodes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/tilemart/salescore/internal/agent/engine"
	"github.com/tilemart/salescore/internal/agent/graph/conversations"
	"github.com/tilemart/salescore/internal/agent/graph/parsers"
	"github.com/tilemart/salescore/internal/agent/graph/prompts"
	"github.com/tilemart/salescore/internal/agent/model"
	errx "github.com/tilemart/salescore/internal/core/error"
	"github.com/tilemart/salescore/internal/sales/phase"
	logx "github.com/tilemart/salescore/pkg/logger"
)

// NewInputConverterPreHandler loads or creates the session and resets
// per-turn counters before anything else runs.
func NewInputConverterPreHandler(repo model.ConversationRepository) func(context.Context, model.QueryInput, *model.AppState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.AppState) (model.QueryInput, error) {
		session, err := repo.LoadSession(ctx, in.SessionID)
		if err != nil {
			if !errors.Is(err, model.ErrSessionNotFound) {
				return in, fmt.Errorf("load session: %w", err)
			}
			session = model.NewSession(in.SessionID, in.CustomerID)
			logx.Info().Str("session_id", session.ID).Msg("starting new session")
		}
		session.AppendTurn(model.RoleUser, in.Query)

		s.Session = session
		s.RecordsAtTurnStart = len(session.Records)
		// Reset tool call counter and limit flag for each new query
		s.ToolCallCount = 0
		s.ToolCallLimitReached = false
		s.ToolCallIDSeq = 0
		// Reset accumulated total cost for each new query
		s.TotalCostUSD = 0

		in.SessionID = session.ID
		return in, nil
	}
}

// NewInputConverterNode builds the extraction model's message window from
// the persisted history plus the current utterance.
func NewInputConverterNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) ([]*schema.Message, error) {
		conversationCtx, err := mm.ProcessExtractionMessage(ctx, input.SessionID, input.Query)
		if err != nil {
			return nil, fmt.Errorf("error getting conversation context: %w", err)
		}

		// Generate system prompt via Eino prompt component (enables prompt callbacks)
		systemPrompt, err := prompts.RenderExtractionSystem(ctx)
		if err != nil {
			return nil, fmt.Errorf("render extraction system prompt: %w", err)
		}

		messages := []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(conversationCtx),
		}

		return messages, nil
	})
}

// NewModelUsagePostHandler computes and logs usage cost for a chat model node.
func NewModelUsagePostHandler(nodeName, modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		if model.CostEnabled() && out != nil && out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
			pricing := model.ResolvePricing(modelName)
			inC, outC, totalC := model.ComputeCost(out.ResponseMeta.Usage, pricing)
			if out.Extra == nil {
				out.Extra = map[string]any{}
			}
			out.Extra["usage_cost"] = map[string]any{
				"currency":          "USD",
				"model":             modelName,
				"prompt_tokens":     out.ResponseMeta.Usage.PromptTokens,
				"completion_tokens": out.ResponseMeta.Usage.CompletionTokens,
				"total_tokens":      out.ResponseMeta.Usage.TotalTokens,
				"input_cost":        inC,
				"output_cost":       outC,
				"total_cost":        totalC,
			}
			logx.Debug().
				Str("session_id", sessionID(state)).
				Str("node", nodeName).
				Str("model", modelName).
				Int("prompt_tokens", out.ResponseMeta.Usage.PromptTokens).
				Int("completion_tokens", out.ResponseMeta.Usage.CompletionTokens).
				Int("total_tokens", out.ResponseMeta.Usage.TotalTokens).
				Float64("input_cost_usd", inC).
				Float64("output_cost_usd", outC).
				Float64("total_cost_usd", totalC).
				Msg("LLM usage")

			// Accumulate only total cost into state
			state.TotalCostUSD += totalC

			// Also expose running total in the message Extra for visibility
			out.Extra["usage_cost_total_usd"] = state.TotalCostUSD
		}
		return out, nil
	}
}

// NewParserNode parses the extraction model's delimited output.
func NewParserNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (model.Extraction, error) {
		result, err := parsers.ParseExtraction(resp.Content)
		if err != nil {
			logx.Error().Err(err).Msg("Error parsing extraction response")
			return model.Extraction{}, err
		}
		if result == nil {
			logx.Error().Msg("Parsing returned nil result")
			return model.Extraction{}, fmt.Errorf("parsing returned nil result")
		}
		return *result, nil
	})
}

// NewParserPostHandler folds the extraction into the session: ledger facts,
// topic-change reset, and phase re-evaluation.
func NewParserPostHandler(eng *engine.Engine) func(context.Context, model.Extraction, *model.AppState) (model.Extraction, error) {
	return func(ctx context.Context, out model.Extraction, state *model.AppState) (model.Extraction, error) {
		state.Extraction = &out

		entered := eng.ApplyExtraction(state.Session, &out)
		logx.Debug().
			Str("session_id", sessionID(state)).
			Int("facts", len(out.Facts)).
			Str("project_type", out.ProjectType).
			Str("phase", string(state.Session.Phase)).
			Int("phases_entered", len(entered)).
			Msg("extraction applied")
		return out, nil
	}
}

// NewSequencerNode runs the dependent tool chain once its first step could
// pass the gate. The chain is skipped entirely while needs assessment is
// still open so gate denials on the audit trail stay meaningful.
func NewSequencerNode(eng *engine.Engine) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, ex model.Extraction) (model.Extraction, error) {
		err := compose.ProcessState(ctx, func(ctx context.Context, state *model.AppState) error {
			s := state.Session
			if !s.Succeeded(phase.ToolSearchProduct) && !eng.Authorize(s, phase.ToolSearchProduct).Allowed {
				logx.Debug().
					Str("session_id", s.ID).
					Msg("chain prerequisites not met, skipping auto-sequencing")
				return nil
			}
			res := eng.RunChain(ctx, s)
			state.ChainResult = &res
			logx.Info().
				Str("session_id", s.ID).
				Int("steps", len(res.Steps)).
				Bool("halted", res.Halted).
				Str("phase", string(s.Phase)).
				Msg("auto-sequenced tool chain")
			return nil
		})
		if err != nil {
			return ex, fmt.Errorf("auto sequencer: %w", err)
		}
		return ex, nil
	})
}

// NewHumanHandoffCondition routes high-confidence frustrated customers to a
// human before any selling continues.
func NewHumanHandoffCondition() func(context.Context, model.Extraction) (string, error) {
	return func(ctx context.Context, input model.Extraction) (string, error) {
		s := input.Sentiment
		if (s.Label == "negative" || s.Label == "frustrated") && s.Confidence > 0.94 {
			logx.Debug().Str("sentiment_label", s.Label).Float64("sentiment_confidence", s.Confidence).
				Msg("Routing to human handoff - high confidence negative sentiment detected")
			return NodeHumanHandoff, nil
		}
		return NodeSequencer, nil
	}
}

// NewHumanHandoffNode escalates the session instead of generating a reply.
func NewHumanHandoffNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.Extraction) (*schema.Message, error) {
		sentiment := input.Sentiment
		logx.Warn().
			Str("sentiment_label", sentiment.Label).
			Float64("sentiment_confidence", sentiment.Confidence).
			Msg("Human intervention required for negative sentiment")

		return schema.AssistantMessage(
			"I'm sorry this hasn't gone smoothly. Let me bring in one of our store specialists to help you directly - they'll be with you in a moment.",
			nil,
		), nil
	})
}

// NewResponseAssemblerNode selects the next questions and renders the
// response system prompt from the session's orchestration state.
func NewResponseAssemblerNode(
	mm *conversations.MessagesManager,
	eng *engine.Engine,
	responsePromptConfig *model.ResponsePromptConfig,
) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, ex model.Extraction) ([]*schema.Message, error) {
		var (
			systemPrompt string
			sid          string
		)
		err := compose.ProcessState(ctx, func(ctx context.Context, state *model.AppState) error {
			session := state.Session
			if session == nil {
				return fmt.Errorf("missing session in state")
			}
			sid = session.ID

			topicHint := strings.ReplaceAll(ex.ProjectType, "_", " ")
			if topicHint == "" {
				topicHint = strings.ReplaceAll(session.ProjectType, "_", " ")
			}
			state.PendingQuestions = eng.Questions(session, topicHint)

			sp, err := prompts.RenderResponseSystem(ctx, *responsePromptConfig, session, state.PendingQuestions)
			if err != nil {
				return fmt.Errorf("generate response prompt: %w", err)
			}
			systemPrompt = sp
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		// Build context with conversation history
		messages, err := mm.BuildResponseContext(ctx, sid, systemPrompt)
		if err != nil {
			return nil, fmt.Errorf("build response context: %w", err)
		}

		return messages, nil
	})
}

// NewResponseChatModelPreHandler creates the pre-handler for ResponseChatModel node
func NewResponseChatModelPreHandler(maxToolCalls int) func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		// Heuristic fix for Gemini OpenAI-compat: ensure tool results carry tool_call_id
		if len(in) > 0 {
			last := in[len(in)-1]
			if last != nil && last.Role == schema.Tool && strings.TrimSpace(last.ToolCallID) == "" {
				// Try to find the most recent assistant tool call id from history
				for i := len(state.History) - 1; i >= 0; i-- {
					msg := state.History[i]
					if msg == nil || msg.Role != schema.Assistant || len(msg.ToolCalls) == 0 {
						continue
					}
					id := msg.ToolCalls[0].ID
					if strings.TrimSpace(id) != "" {
						last.ToolCallID = id
					}
					break
				}
			}
		}

		state.History = append(state.History, in...)

		if checkAndMarkToolLimit(state, maxToolCalls) {
			maxToolCalls = normalizeMaxToolCalls(maxToolCalls)
			wrapUp := &schema.Message{
				Role: schema.System,
				Content: fmt.Sprintf(
					"SYSTEM NOTICE: You have reached the maximum tool call limit (%d). "+
						"Please synthesize a helpful response using the information you've already gathered. "+
						"Acknowledge any limitations in your response if you couldn't complete all necessary tool calls.",
					maxToolCalls,
				),
			}
			state.History = append(state.History, wrapUp)
		}

		logx.Debug().Msg("AI thinking...")

		return state.History, nil
	}
}

// NewResponseChatModelPostHandler creates the post-handler for ResponseChatModel node
func NewResponseChatModelPostHandler(
	mm *conversations.MessagesManager,
	modelName string,
) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	usage := NewModelUsagePostHandler(NodeResponseChatModel, modelName)
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		out, err := usage(ctx, out, state)
		if err != nil {
			return out, err
		}

		// Normalize tool calls: some providers (Gemini OpenAI-compat) may omit tool_call IDs.
		if out != nil && len(out.ToolCalls) > 0 {
			for i := range out.ToolCalls {
				if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
					state.ToolCallIDSeq++
					out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
				}
			}
		}

		state.History = append(state.History, out)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
		} else {
			logx.Debug().Msg("AI response ready")
		}

		// Save only when it's a final assistant message (no further tool calls),
		// or when we've reached the tool-call limit but still have a content response.
		if out.Role == schema.Assistant && (len(out.ToolCalls) == 0 || state.ToolCallLimitReached) && strings.TrimSpace(out.Content) != "" {
			if err := mm.SaveResponse(ctx, sessionID(state), out.Content); err != nil {
				logx.Error().
					Str("session_id", sessionID(state)).
					Err(err).
					Msg("Error saving assistant response")
			}
		}

		return out, nil
	}
}

// NewToolExecutorCondition creates the condition function for tool execution routing
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		// Check if tool limit was reached
		var limitReached bool
		compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			limitReached = state.ToolCallLimitReached
			return nil
		})

		if limitReached {
			logx.Debug().Msg("Tool limit reached previously - routing to output")
			return NodeOutputConverter, nil
		}

		if len(input.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(input.ToolCalls)).Msg("Routing to ToolExecutor")
			return NodeToolExecutor, nil
		}

		return NodeOutputConverter, nil
	}
}

// NewToolExecutorNode executes the model's tool calls through the gate. A
// denied call produces a structured denial payload the model turns into a
// clarifying question; it is never an error.
func NewToolExecutorNode(eng *engine.Engine) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *schema.Message) ([]*schema.Message, error) {
		var results []*schema.Message
		err := compose.ProcessState(ctx, func(ctx context.Context, state *model.AppState) error {
			for _, tc := range in.ToolCalls {
				rec, err := eng.ExecuteTool(ctx, state.Session, tc.Function.Name, tc.Function.Arguments)
				if err != nil {
					// Unknown or malformed tool call; answer the model
					// instead of failing the turn.
					logx.Warn().
						Str("tool_name", tc.Function.Name).
						Err(err).
						Msg("invalid tool call")
					results = append(results, schema.ToolMessage(
						fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q}", tc.Function.Name),
						tc.ID,
						schema.WithToolName(tc.Function.Name),
					))
					continue
				}
				results = append(results, schema.ToolMessage(toolResultContent(rec), tc.ID, schema.WithToolName(tc.Function.Name)))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return results, nil
	})
}

// toolResultContent renders a tool record as the JSON the model reads back.
// Failures carry the safe collaborator message; the raw error stays on the
// audit record and in the logs.
func toolResultContent(rec model.ToolRecord) string {
	if !rec.Allowed {
		b, _ := json.Marshal(map[string]any{"denied": true, "reason": rec.Reason})
		return string(b)
	}
	if rec.Error != "" {
		b, _ := json.Marshal(map[string]any{"failed": true, "error": errx.CollaboratorErrorMessage})
		return string(b)
	}
	if s, ok := rec.Payload.(string); ok {
		return s
	}
	b, err := json.Marshal(rec.Payload)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// NewToolExecutorPreHandler enforces the per-turn tool budget.
func NewToolExecutorPreHandler(maxToolCalls int) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		exceeded := incrementToolCallAndCheck(state, maxToolCalls)

		logx.Debug().
			Int("tool_call_count", state.ToolCallCount).
			Str("session_id", sessionID(state)).
			Msg("Tool execution attempt")

		if exceeded {
			maxToolCalls = normalizeMaxToolCalls(maxToolCalls)
			logx.Warn().
				Int("tool_call_count", state.ToolCallCount).
				Int("max_tool_calls", maxToolCalls).
				Str("session_id", sessionID(state)).
				Msg("Tool call limit exceeded - flagging and continuing")
		}

		return in, nil
	}
}

// NewOutputConverterNode finalizes the turn: appends the assistant turn,
// refreshes the compliance score, checkpoints the session, and shapes the
// transport response.
func NewOutputConverterNode(eng *engine.Engine, repo model.ConversationRepository) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *schema.Message) (*model.TurnOutput, error) {
		var out *model.TurnOutput
		err := compose.ProcessState(ctx, func(ctx context.Context, state *model.AppState) error {
			session := state.Session
			if session == nil {
				return fmt.Errorf("missing session in state")
			}

			response := ""
			if in != nil {
				response = strings.TrimSpace(in.Content)
			}
			if response != "" {
				session.AppendTurn(model.RoleAssistant, response)
			}

			scores := eng.Score(session)

			if err := repo.SaveSession(ctx, session); err != nil {
				logx.Error().Err(err).Str("session_id", session.ID).Msg("failed to checkpoint session")
				return fmt.Errorf("checkpoint session: %w", err)
			}

			out = &model.TurnOutput{
				SessionID:  session.ID,
				Response:   response,
				Phase:      session.Phase,
				FiredTools: session.Records[state.RecordsAtTurnStart:],
				Scores:     scores,
				Chain:      state.ChainResult,
				CostUSD:    state.TotalCostUSD,
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}

func sessionID(state *model.AppState) string {
	if state == nil || state.Session == nil {
		return ""
	}
	return state.Session.ID
}
