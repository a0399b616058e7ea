package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openelt/nsgateway/pkg/errors"
	"github.com/openelt/nsgateway/pkg/upstream"
)

func TestBuilder_IsReport(t *testing.T) {
	b := NewBuilder()
	assert.True(t, b.IsReport("salesorder"))
	assert.False(t, b.IsReport("customer"))
}

func TestBuildListing_RawPassthrough(t *testing.T) {
	b := NewBuilder()

	raw := "SELECT id, tranid FROM Transaction WHERE rownum <= 10"
	q, err := b.BuildListing(&Spec{Raw: raw, Filter: "ignored", Fields: "ignored"})
	require.NoError(t, err)

	assert.Equal(t, upstream.KindSuiteQL, q.Kind)
	assert.Equal(t, raw, q.SuiteQL, "raw text passes through verbatim")
	assert.Empty(t, q.Params, "raw queries bypass generated filtering")
}

func TestBuildListing_SavedSearch(t *testing.T) {
	b := NewBuilder()

	q, err := b.BuildListing(&Spec{Entity: "customer", SavedSearchID: "customsearch_42"})
	require.NoError(t, err)

	assert.Equal(t, upstream.KindList, q.Kind)
	assert.Equal(t, "customer", q.Entity)
	assert.Equal(t, "customsearch_42", q.Params["savedSearchId"])
}

func TestBuildListing_FilterAndFields(t *testing.T) {
	b := NewBuilder()

	q, err := b.BuildListing(&Spec{
		Entity: "customer",
		Filter: `email IS_NOT_EMPTY`,
		Fields: "id,companyName,email",
	})
	require.NoError(t, err)

	assert.Equal(t, upstream.KindList, q.Kind)
	assert.Equal(t, `email IS_NOT_EMPTY`, q.Params["q"])
	assert.Equal(t, "id,companyName,email", q.Params["fields"])
}

func TestBuildReport_UnknownEntity(t *testing.T) {
	b := NewBuilder()

	plan, err := b.BuildReport(&Spec{Entity: "customer"})
	assert.Nil(t, plan)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidRequest))
}

func TestBuildReport_SalesOrderPlan(t *testing.T) {
	b := NewBuilder()

	plan, err := b.BuildReport(&Spec{Entity: "salesorder"})
	require.NoError(t, err)

	assert.Equal(t, "salesorder", plan.Entity)
	assert.Equal(t, upstream.KindSuiteQL, plan.Header.Kind)
	assert.Equal(t, upstream.KindSuiteQL, plan.Line.Kind)
	require.NotNil(t, plan.Fulfillment)

	// join keys line up: the line FK points at the header key, the
	// fulfillment FK points at the line key
	assert.Equal(t, []string{"so_internal_id"}, plan.HeaderKey)
	assert.Equal(t, []string{"header_fk"}, plan.LineFK)
	assert.Equal(t, []string{"header_fk", "item_id"}, plan.LineKey)
	assert.Equal(t, plan.LineKey, plan.FulfillmentFK)
	assert.Contains(t, plan.InternalFields, "header_fk")

	assert.Contains(t, plan.Header.SuiteQL, "SO.type = 'SalesOrd'")
	assert.Contains(t, plan.Header.SuiteQL, "AS don_hang")
	assert.Contains(t, plan.Line.SuiteQL, "SOL.mainline = 'F'")
	assert.Contains(t, plan.Line.SuiteQL, "AS header_fk")
	assert.Contains(t, plan.Fulfillment.SuiteQL, "IFT.type = 'ItemShip'")
}

func TestBuildReport_ScopeFilters(t *testing.T) {
	b := NewBuilder()

	spec := &Spec{
		Entity:    "salesorder",
		DateStart: date("2026-01-01"),
		DateEnd:   date("2026-03-31"),
		OwnerID:   77,
	}
	plan, err := b.BuildReport(spec)
	require.NoError(t, err)

	// each level carries the same scope filters
	for name, sql := range map[string]string{
		"header":      plan.Header.SuiteQL,
		"line":        plan.Line.SuiteQL,
		"fulfillment": plan.Fulfillment.SuiteQL,
	} {
		assert.Contains(t, sql, "TO_DATE('2026-01-01', 'YYYY-MM-DD')", name)
		assert.Contains(t, sql, "TO_DATE('2026-03-31', 'YYYY-MM-DD')", name)
		assert.Contains(t, sql, "SO.employee = 77", name)
	}
}

func TestBuildReport_UnscopedHasNoFilters(t *testing.T) {
	b := NewBuilder()

	plan, err := b.BuildReport(&Spec{Entity: "salesorder"})
	require.NoError(t, err)

	assert.NotContains(t, plan.Header.SuiteQL, "trandate >=")
	assert.NotContains(t, plan.Header.SuiteQL, "employee =")
}
