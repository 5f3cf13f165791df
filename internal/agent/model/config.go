package model

// ================ Config ================
type ConversationConfig struct {
	TTL        string `envconfig:"CONVERSATION_TTL" default:"30m"`
	Extraction struct {
		MaxTurns int `envconfig:"CONVERSATION_EXTRACTION_MAX_TURNS" default:"6"`
	}
	Tools struct {
		MaxCalls int `envconfig:"CONVERSATION_TOOL_MAX_CALLS" default:"8"`
	}
	Questions struct {
		MaxPerTurn int `envconfig:"CONVERSATION_QUESTIONS_PER_TURN" default:"2"`
	}
	// ResetPolicy decides what a customer-initiated topic change clears:
	// "phase_only" keeps collected facts, "phase_and_ledger" discards them.
	ResetPolicy string `envconfig:"CONVERSATION_RESET_POLICY" default:"phase_only"`
}

type ExtractionModelConfig struct {
	Model       string  `envconfig:"EXTRACTION_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"EXTRACTION_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"EXTRACTION_TEMPERATURE" default:"0.1"`
}

type ResponseModelConfig struct {
	Model       string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.4"`
}

type ResponsePromptConfig struct {
	BusinessType string `envconfig:"PROMPT_BUSINESS_TYPE" default:"tile and flooring store"`
	BusinessName string `envconfig:"PROMPT_BUSINESS_NAME" default:"Tilemart"`
}

type PolicyConfig struct {
	// QuestionLibraryPath overrides the embedded question library.
	QuestionLibraryPath string `envconfig:"QUESTION_LIBRARY_PATH"`
	// RubricPath overrides the embedded compliance rubric.
	RubricPath string `envconfig:"RUBRIC_PATH"`
}
