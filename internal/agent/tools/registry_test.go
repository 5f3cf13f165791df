package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilemart/salescore/internal/agent/model"
	"github.com/tilemart/salescore/internal/sales/phase"
)

func newTestRegistry() (*Registry, *MemoryCustomerStore) {
	store := NewMemoryCustomerStore()
	return NewRegistry(NewStaticCatalog(), store), store
}

func TestCatalogRanksFullKeywordMatchesFirst(t *testing.T) {
	catalog := NewStaticCatalog()

	matches, err := catalog.Search(context.Background(), "porcelain bathroom floor", 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "tile-oak-07", matches[0].Product.ID)
	assert.Equal(t, 1.0, matches[0].Score)
	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i].Score, matches[i-1].Score)
	}
}

func TestCatalogNoMatchesIsNotAnError(t *testing.T) {
	catalog := NewStaticCatalog()

	matches, err := catalog.Search(context.Background(), "zirconium spaceship", 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCatalogCapsResults(t *testing.T) {
	catalog := NewStaticCatalog()

	matches, err := catalog.Search(context.Background(), "tile", 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(matches), 2)
}

func TestRegistryRejectsUnknownTool(t *testing.T) {
	registry, _ := newTestRegistry()

	_, err := registry.Invoke(context.Background(), "drop_tables", `{}`)
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.False(t, registry.Known("drop_tables"))
	assert.True(t, registry.Known(phase.ToolSearchProduct))
}

func TestRegistryInfosCoverEveryTool(t *testing.T) {
	registry, _ := newTestRegistry()

	infos, err := registry.Infos(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	assert.ElementsMatch(t, []string{
		phase.ToolSearchProduct,
		phase.ToolCalculateMaterials,
		phase.ToolAttemptClose,
		phase.ToolLookupCustomer,
		phase.ToolSaveProject,
	}, names)
}

func TestCalculateMaterialsToolExactTotals(t *testing.T) {
	registry, _ := newTestRegistry()

	args := `{"product_id":"tile-oak-07","length":10,"width":10,"pattern":"straight","coverage_per_box":15,"price_cents_per_box":499}`
	payload, err := registry.Invoke(context.Background(), phase.ToolCalculateMaterials, args)
	require.NoError(t, err)

	var out CalculateMaterialsOutput
	require.NoError(t, json.Unmarshal([]byte(payload), &out))
	assert.Equal(t, "tile-oak-07", out.ProductID)
	assert.Equal(t, int64(8), out.Result.BoxCount)
	assert.Equal(t, int64(3992), out.Result.TotalCostCents)
	assert.Equal(t, int64(10), out.Result.WastePercent)
}

func TestAttemptCloseFormatsExactDollars(t *testing.T) {
	registry, _ := newTestRegistry()

	args := `{"product_id":"tile-oak-07","product_name":"Harvest Oak","box_count":8,"total_cost_cents":3992}`
	payload, err := registry.Invoke(context.Background(), phase.ToolAttemptClose, args)
	require.NoError(t, err)

	var out AttemptCloseOutput
	require.NoError(t, json.Unmarshal([]byte(payload), &out))
	assert.Equal(t, "8 boxes of Harvest Oak for $39.92", out.Proposal)
	assert.False(t, out.Accepted)
}

func TestLookupCustomerCreatesAndReturnsSame(t *testing.T) {
	registry, _ := newTestRegistry()
	ctx := context.Background()

	payload, err := registry.Invoke(ctx, phase.ToolLookupCustomer, `{}`)
	require.NoError(t, err)
	var created model.Customer
	require.NoError(t, json.Unmarshal([]byte(payload), &created))
	assert.NotEmpty(t, created.ID)

	payload, err = registry.Invoke(ctx, phase.ToolLookupCustomer, `{"customer_id":"`+created.ID+`"}`)
	require.NoError(t, err)
	var found model.Customer
	require.NoError(t, json.Unmarshal([]byte(payload), &found))
	assert.Equal(t, created.ID, found.ID)
}

func TestSaveProjectCopiesFacts(t *testing.T) {
	registry, store := newTestRegistry()

	args := `{"customer_id":"cust-9","session_id":"sess-9","project_type":"bathroom floor","facts":{"dimensions":"10x10 ft","budget":"500 dollars"}}`
	payload, err := registry.Invoke(context.Background(), phase.ToolSaveProject, args)
	require.NoError(t, err)

	var out SaveProjectOutput
	require.NoError(t, json.Unmarshal([]byte(payload), &out))
	require.NotEmpty(t, out.ProjectRecordID)

	saved, ok := store.Project(out.ProjectRecordID)
	require.True(t, ok)
	assert.Equal(t, "cust-9", saved.CustomerID)
	assert.Equal(t, "bathroom floor", saved.ProjectType)
	assert.Equal(t, "10x10 ft", saved.Facts["dimensions"])
}

func TestSaveProjectRequiresSession(t *testing.T) {
	registry, _ := newTestRegistry()

	_, err := registry.Invoke(context.Background(), phase.ToolSaveProject, `{"customer_id":"c","facts":{}}`)
	assert.Error(t, err)
}
