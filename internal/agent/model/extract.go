package model

import (
	"time"

	"github.com/tilemart/salescore/internal/sales/requirement"
)

// Fact is one requirement extracted from the customer's utterance.
type Fact struct {
	Key        requirement.Key `json:"key"`
	Value      string          `json:"value"`
	Confidence float64         `json:"confidence"`
	// Revision marks the fact as an explicit correction of an earlier
	// value (the customer changed their mind).
	Revision bool `json:"revision,omitempty"`
}

// Extraction is the structured result of the extraction model for one turn.
type Extraction struct {
	Facts []Fact `json:"facts"`
	// ProjectType is the detected project type signal, e.g.
	// "bathroom_floor", "kitchen_backsplash"; empty when undetected.
	ProjectType string  `json:"project_type,omitempty"`
	Intent      string  `json:"intent,omitempty"`
	IntentConf  float64 `json:"intent_confidence,omitempty"`
	// TopicChange is set when the customer switched to a different
	// project mid-conversation; drives the configurable reset policy.
	TopicChange bool `json:"topic_change,omitempty"`
	Sentiment   Sentiment
	// ParsingMetadata carries parser diagnostics (errors, truncation).
	ParsingMetadata map[string]any `json:"parsing_metadata,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

// Sentiment is the extraction model's read of the customer's mood.
type Sentiment struct {
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}
