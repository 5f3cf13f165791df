package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilemart/salescore/internal/sales/requirement"
)

func TestParseExtractionFullOutput(t *testing.T) {
	content := `(fact<||>identity<||>Dana<||>0.95)##
(fact<||>dimensions<||>10x10 ft<||>0.9)##
(fact<||>budget<||>500 dollars<||>0.8<||>{"revision":true})##
(project_type<||>bathroom_floor<||>0.85)##
(intent<||>purchase_intent<||>0.7)##
(sentiment<||>positive<||>0.8)##
<|COMPLETE|>`

	resp, err := ParseExtraction(content)
	require.NoError(t, err)
	require.Len(t, resp.Facts, 3)

	assert.Equal(t, requirement.KeyIdentity, resp.Facts[0].Key)
	assert.Equal(t, "Dana", resp.Facts[0].Value)
	assert.InDelta(t, 0.95, resp.Facts[0].Confidence, 1e-9)
	assert.False(t, resp.Facts[0].Revision)

	assert.Equal(t, requirement.KeyBudget, resp.Facts[2].Key)
	assert.True(t, resp.Facts[2].Revision)

	assert.Equal(t, "bathroom_floor", resp.ProjectType)
	assert.Equal(t, "purchase_intent", resp.Intent)
	assert.Equal(t, "positive", resp.Sentiment.Label)
	assert.False(t, resp.TopicChange)
	assert.Empty(t, resp.ParsingMetadata["parsing_errors"])
}

func TestParseExtractionTopicChange(t *testing.T) {
	resp, err := ParseExtraction(`(topic_change<||>1<||>0.9)##`)
	require.NoError(t, err)
	assert.True(t, resp.TopicChange)

	resp, err = ParseExtraction(`(topic_change<||>1<||>0.3)##`)
	require.NoError(t, err)
	assert.False(t, resp.TopicChange, "low-confidence topic change must be ignored")

	resp, err = ParseExtraction(`(topic_change<||>0<||>0.9)##`)
	require.NoError(t, err)
	assert.False(t, resp.TopicChange)
}

func TestParseExtractionSkipsMalformedRecords(t *testing.T) {
	content := `(fact<||>identity<||>Dana<||>0.9)##
garbage without parens##
(fact<||>favorite_color<||>blue<||>0.9)##
(fact<||>budget<||><||>0.9)##
(fact<||>timeline<||>next month<||>1.5)##
(fact<||>dimensions<||>10x10<||>0.8)##`

	resp, err := ParseExtraction(content)
	require.NoError(t, err)
	require.Len(t, resp.Facts, 2, "only the valid facts survive")
	assert.Equal(t, requirement.KeyIdentity, resp.Facts[0].Key)
	assert.Equal(t, requirement.KeyDimensions, resp.Facts[1].Key)

	errs, _ := resp.ParsingMetadata["parsing_errors"].([]string)
	assert.Len(t, errs, 4)
}

func TestParseExtractionEmptyContent(t *testing.T) {
	resp, err := ParseExtraction("")
	require.NoError(t, err)
	assert.Empty(t, resp.Facts)
	assert.Empty(t, resp.ProjectType)
}

func TestParseExtractionStopsAtCompleteDelimiter(t *testing.T) {
	content := `(fact<||>identity<||>Dana<||>0.9)##
<|COMPLETE|>
(fact<||>budget<||>500<||>0.9)##`

	resp, err := ParseExtraction(content)
	require.NoError(t, err)
	require.Len(t, resp.Facts, 1)
	assert.Equal(t, requirement.KeyIdentity, resp.Facts[0].Key)
}

func TestParseExtractionProjectTypeHighestConfidenceWins(t *testing.T) {
	content := `(project_type<||>kitchen_backsplash<||>0.4)##
(project_type<||>bathroom_floor<||>0.9)##`

	resp, err := ParseExtraction(content)
	require.NoError(t, err)
	assert.Equal(t, "bathroom_floor", resp.ProjectType)
}

func TestParseExtractionTruncatesOversizedContent(t *testing.T) {
	content := "(fact<||>identity<||>Dana<||>0.9)##" + strings.Repeat("x", maxContentLen)

	resp, err := ParseExtraction(content)
	require.NoError(t, err)
	assert.Equal(t, true, resp.ParsingMetadata["truncated"])
	require.Len(t, resp.Facts, 1)
}
