package report

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/openelt/nsgateway/pkg/errors"
	"github.com/openelt/nsgateway/pkg/models"
	"github.com/openelt/nsgateway/pkg/query"
	"github.com/openelt/nsgateway/pkg/upstream"
)

// stubExecutor serves canned rows per query role.
type stubExecutor struct {
	byRole  map[string][]models.Record
	hasMore map[string]bool
	errs    map[string]error
}

func (s *stubExecutor) FetchAll(ctx context.Context, q upstream.Query, limit, startOffset int) ([]models.Record, bool, error) {
	if err := s.errs[q.Role]; err != nil {
		return nil, false, err
	}
	return s.byRole[q.Role], s.hasMore[q.Role], nil
}

func testPlan() *query.ReportPlan {
	fulfillment := upstream.Query{Kind: upstream.KindSuiteQL, Role: "fulfillment"}
	return &query.ReportPlan{
		Entity:         "salesorder",
		Header:         upstream.Query{Kind: upstream.KindSuiteQL, Role: "header"},
		HeaderKey:      []string{"so_internal_id"},
		Line:           upstream.Query{Kind: upstream.KindSuiteQL, Role: "line"},
		LineFK:         []string{"header_fk"},
		LineKey:        []string{"header_fk", "item_id"},
		Fulfillment:    &fulfillment,
		FulfillmentFK:  []string{"header_fk", "item_id"},
		InternalFields: []string{"header_fk"},
	}
}

func assemble(t *testing.T, exec Executor) *Result {
	t.Helper()
	a := NewAssembler(exec, 4, zaptest.NewLogger(t))
	res, err := a.Assemble(context.Background(), testPlan(), 100, 0)
	require.NoError(t, err)
	return res
}

func TestAssemble_OneRecordPerLine(t *testing.T) {
	exec := &stubExecutor{byRole: map[string][]models.Record{
		"header": {
			{"so_internal_id": "1", "don_hang": "SO-1", "tong_tien_gom_vat": 100.0},
			{"so_internal_id": "2", "don_hang": "SO-2", "tong_tien_gom_vat": 200.0},
		},
		"line": {
			{"header_fk": "1", "item_id": "a", "so_luong": 1.0},
			{"header_fk": "1", "item_id": "b", "so_luong": 2.0},
			{"header_fk": "1", "item_id": "c", "so_luong": 3.0},
			{"header_fk": "2", "item_id": "a", "so_luong": 4.0},
			{"header_fk": "2", "item_id": "d", "so_luong": 5.0},
		},
	}}

	res := assemble(t, exec)
	require.Len(t, res.Records, 5, "one record per line")

	// header fields flatten into every line, in header return order
	assert.Equal(t, "SO-1", res.Records[0]["don_hang"])
	assert.Equal(t, "SO-1", res.Records[2]["don_hang"])
	assert.Equal(t, "SO-2", res.Records[3]["don_hang"])
	assert.Equal(t, 1.0, res.Records[0]["so_luong"])
	assert.Equal(t, 5.0, res.Records[4]["so_luong"])
}

func TestAssemble_HeaderWithoutLines(t *testing.T) {
	exec := &stubExecutor{byRole: map[string][]models.Record{
		"header": {
			{"so_internal_id": "1", "don_hang": "SO-1"},
		},
		"line": {},
	}}

	res := assemble(t, exec)
	require.Len(t, res.Records, 1, "a lineless header still yields one record")

	rec := res.Records[0]
	assert.Equal(t, "SO-1", rec["don_hang"])
	// line fields are absent from the field universe when no lines exist,
	// so the record carries only header fields
	_, hasItem := rec["item_id"]
	assert.False(t, hasItem)
}

func TestAssemble_NullFillAcrossLevels(t *testing.T) {
	exec := &stubExecutor{byRole: map[string][]models.Record{
		"header": {
			{"so_internal_id": "1", "don_hang": "SO-1"},
			{"so_internal_id": "2", "don_hang": "SO-2"},
		},
		"line": {
			{"header_fk": "1", "item_id": "a", "so_luong": 1.0},
		},
	}}

	res := assemble(t, exec)
	require.Len(t, res.Records, 2)

	// SO-2 has no lines; its line-side fields are explicit nulls
	withoutLines := res.Records[1]
	assert.Equal(t, "SO-2", withoutLines["don_hang"])
	val, present := withoutLines["item_id"]
	assert.True(t, present, "line fields present on every record")
	assert.Nil(t, val)
	assert.Nil(t, withoutLines["so_luong"])
}

func TestAssemble_OrphanLinesKeptWithNullHeader(t *testing.T) {
	exec := &stubExecutor{byRole: map[string][]models.Record{
		"header": {
			{"so_internal_id": "1", "don_hang": "SO-1"},
		},
		"line": {
			{"header_fk": "1", "item_id": "a", "so_luong": 1.0},
			{"header_fk": "99", "item_id": "z", "so_luong": 9.0}, // no matching header
		},
	}}

	res := assemble(t, exec)
	require.Len(t, res.Records, 2, "orphan lines are kept, not dropped")

	// orphans come after all matched headers
	orphan := res.Records[1]
	assert.Nil(t, orphan["don_hang"])
	assert.Equal(t, "z", orphan["item_id"])
}

func TestAssemble_FulfillmentFanOut(t *testing.T) {
	exec := &stubExecutor{byRole: map[string][]models.Record{
		"header": {
			{"so_internal_id": "1", "don_hang": "SO-1"},
		},
		"line": {
			{"header_fk": "1", "item_id": "a", "so_luong": 10.0},
			{"header_fk": "1", "item_id": "b", "so_luong": 5.0},
		},
		"fulfillment": {
			{"header_fk": "1", "item_id": "a", "so_chung_tu_xuat": "IF-1", "so_luong_da_xuat": 4.0},
			{"header_fk": "1", "item_id": "a", "so_chung_tu_xuat": "IF-2", "so_luong_da_xuat": 6.0},
		},
	}}

	res := assemble(t, exec)
	// line a fans out to two fulfillments, line b gets one null-filled record
	require.Len(t, res.Records, 3)

	assert.Equal(t, "IF-1", res.Records[0]["so_chung_tu_xuat"])
	assert.Equal(t, "IF-2", res.Records[1]["so_chung_tu_xuat"])
	assert.Nil(t, res.Records[2]["so_chung_tu_xuat"])

	// a shared field like item_id belongs to the line level; a matched
	// fulfillment must not overwrite it and an unmatched one must not
	// null it
	assert.Equal(t, "a", res.Records[0]["item_id"])
	assert.Equal(t, "b", res.Records[2]["item_id"])
	assert.Equal(t, 5.0, res.Records[2]["so_luong"])
}

func TestAssemble_InternalFieldsExcluded(t *testing.T) {
	exec := &stubExecutor{byRole: map[string][]models.Record{
		"header": {{"so_internal_id": "1", "don_hang": "SO-1"}},
		"line":   {{"header_fk": "1", "item_id": "a"}},
	}}

	res := assemble(t, exec)
	require.Len(t, res.Records, 1)
	_, present := res.Records[0]["header_fk"]
	assert.False(t, present, "join plumbing fields stay out of the output")
}

func TestAssemble_ErrorPropagatesUntouched(t *testing.T) {
	upstreamErr := errors.New(errors.ErrorTypeUpstreamUnavailable, "upstream returned 503")
	exec := &stubExecutor{
		byRole: map[string][]models.Record{
			"header": {{"so_internal_id": "1"}},
			"line":   {{"header_fk": "1", "item_id": "a"}},
		},
		errs: map[string]error{"fulfillment": upstreamErr},
	}

	a := NewAssembler(exec, 4, zaptest.NewLogger(t))
	res, err := a.Assemble(context.Background(), testPlan(), 100, 0)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUpstreamUnavailable))
}

func TestAssemble_HasMoreFollowsHeaderQuery(t *testing.T) {
	exec := &stubExecutor{
		byRole: map[string][]models.Record{
			"header": {{"so_internal_id": "1", "don_hang": "SO-1"}},
			"line":   {{"header_fk": "1", "item_id": "a"}},
		},
		hasMore: map[string]bool{"header": true, "line": false},
	}

	res := assemble(t, exec)
	assert.True(t, res.HasMore)
}

func TestAssemble_PlanWithoutFulfillment(t *testing.T) {
	plan := testPlan()
	plan.Fulfillment = nil

	exec := &stubExecutor{byRole: map[string][]models.Record{
		"header": {{"so_internal_id": "1", "don_hang": "SO-1"}},
		"line":   {{"header_fk": "1", "item_id": "a"}},
	}}

	a := NewAssembler(exec, 4, zaptest.NewLogger(t))
	res, err := a.Assemble(context.Background(), plan, 100, 0)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "a", res.Records[0]["item_id"])
}
