package nodes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tilemart/salescore/internal/agent/model"
	errx "github.com/tilemart/salescore/internal/core/error"
)

func TestToolResultContentRendersDenial(t *testing.T) {
	content := toolResultContent(model.ToolRecord{
		Allowed: false,
		Reason:  "needs assessment incomplete, missing: dimensions",
	})
	assert.JSONEq(t, `{"denied":true,"reason":"needs assessment incomplete, missing: dimensions"}`, content)
}

func TestToolResultContentHidesRawFailureDetail(t *testing.T) {
	content := toolResultContent(model.ToolRecord{
		Allowed: true,
		Error:   "dial tcp 10.0.0.1:6379: connection refused",
	})
	assert.JSONEq(t, `{"failed":true,"error":"`+errx.CollaboratorErrorMessage+`"}`, content)
	assert.NotContains(t, content, "dial tcp")
}

func TestToolResultContentPassesPayloadThrough(t *testing.T) {
	content := toolResultContent(model.ToolRecord{
		Allowed:   true,
		Succeeded: true,
		Payload:   `{"total":1}`,
	})
	assert.Equal(t, `{"total":1}`, content)
}
