package query

import (
	"strconv"
	"strings"

	"github.com/openelt/nsgateway/pkg/errors"
	"github.com/openelt/nsgateway/pkg/upstream"
)

// ReportPlan describes the query set for one report endpoint and the
// keys the assembler joins on. Key fields are composite: a record's join
// identity is the concatenation of its key field values.
type ReportPlan struct {
	Entity string

	Header    upstream.Query
	HeaderKey []string

	Line    upstream.Query
	LineFK  []string // line → header
	LineKey []string

	Fulfillment   *upstream.Query
	FulfillmentFK []string // fulfillment → line

	// InternalFields are join plumbing fields excluded from output
	InternalFields []string
}

// Builder constructs concrete upstream queries for logical specs.
type Builder struct {
	plans map[string]func(*Spec) *ReportPlan
}

// NewBuilder creates a Builder with the built-in report plans registered.
func NewBuilder() *Builder {
	b := &Builder{plans: make(map[string]func(*Spec) *ReportPlan)}
	b.plans["salesorder"] = salesOrderPlan
	return b
}

// IsReport reports whether the entity has a registered report plan.
func (b *Builder) IsReport(entity string) bool {
	_, ok := b.plans[entity]
	return ok
}

// BuildListing emits the single query for a plain entity listing. A raw
// override bypasses all generated filtering and is passed through
// verbatim; it is still wrapped for pagination by the client.
func (b *Builder) BuildListing(spec *Spec) (upstream.Query, error) {
	if spec.Raw != "" {
		return upstream.Query{
			Kind:    upstream.KindSuiteQL,
			Entity:  spec.Entity,
			SuiteQL: spec.Raw,
		}, nil
	}

	if spec.SavedSearchID != "" {
		return upstream.Query{
			Kind:   upstream.KindList,
			Entity: spec.Entity,
			Params: map[string]string{"savedSearchId": spec.SavedSearchID},
		}, nil
	}

	params := map[string]string{}
	if spec.Filter != "" {
		params["q"] = spec.Filter
	}
	if spec.Fields != "" {
		params["fields"] = spec.Fields
	}

	return upstream.Query{
		Kind:   upstream.KindList,
		Entity: spec.Entity,
		Params: params,
	}, nil
}

// BuildReport emits the query set for a report endpoint: one header
// query plus one query per related line-level entity, each independently
// paginated and all scoped by the same date range and owning-user filter.
func (b *Builder) BuildReport(spec *Spec) (*ReportPlan, error) {
	plan, ok := b.plans[spec.Entity]
	if !ok {
		return nil, errors.New(errors.ErrorTypeInvalidRequest,
			"no report defined for entity "+spec.Entity)
	}
	return plan(spec), nil
}

// salesOrderPlan builds the sales-order detail report: order headers
// with customer/location/classification context, order lines with item
// context, and fulfillment lines matched back by (order, item).
func salesOrderPlan(spec *Spec) *ReportPlan {
	headerWhere := []string{"SO.type = 'SalesOrd'"}
	headerWhere = append(headerWhere, soScopeFilters(spec, "SO")...)

	header := "SELECT " + strings.Join([]string{
		"SO.id AS so_internal_id",
		"SO.tranid AS don_hang",
		"SO.trandate AS ngay_so",
		"SO.otherrefnum AS ma_dh_kd",
		"C.entityid AS ma_khach_hang",
		"C.companyname AS ten_khach_hang",
		"L.name AS kho_hang",
		"CL.name AS class_name",
		"DEPT.name AS bo_phan",
		"SO.subtotal AS sub_total",
		"SO.taxtotal AS tien_vat",
		"SO.discounttotal AS tien_chiet_khau",
		"SO.total AS tong_tien_gom_vat",
		"SO.status AS trang_thai",
		"SO.memo AS dien_giai",
	}, ", ") +
		" FROM Transaction SO" +
		" LEFT JOIN Customer C ON SO.entity = C.id" +
		" LEFT JOIN Location L ON SO.location = L.id" +
		" LEFT JOIN Classification CL ON SO.class = CL.id" +
		" LEFT JOIN Department DEPT ON SO.department = DEPT.id" +
		" WHERE " + strings.Join(headerWhere, " AND ") +
		" ORDER BY SO.trandate DESC, SO.id DESC"

	lineWhere := []string{"SO.type = 'SalesOrd'", "SOL.mainline = 'F'"}
	lineWhere = append(lineWhere, soScopeFilters(spec, "SO")...)

	line := "SELECT " + strings.Join([]string{
		"SOL.transaction AS header_fk",
		"SOL.item AS item_id",
		"I.itemid AS ma_hang",
		"I.displayname AS mo_ta_day_du",
		"I.itemtype AS loai_hang",
		"SOL.quantity AS so_luong",
		"SOL.rate AS don_gia",
		"SOL.amount AS thanh_tien_so",
	}, ", ") +
		" FROM TransactionLine SOL" +
		" JOIN Transaction SO ON SOL.transaction = SO.id" +
		" LEFT JOIN Item I ON SOL.item = I.id" +
		" WHERE " + strings.Join(lineWhere, " AND ") +
		" ORDER BY SOL.transaction, SOL.id"

	fulfillWhere := []string{
		"IFT.type = 'ItemShip'",
		"EXISTS (SELECT 1 FROM Transaction SO WHERE SO.id = IFT.createdfrom AND " +
			strings.Join(append([]string{"SO.type = 'SalesOrd'"}, soScopeFilters(spec, "SO")...), " AND ") + ")",
	}

	fulfillment := "SELECT " + strings.Join([]string{
		"IFT.createdfrom AS header_fk",
		"IFL.item AS item_id",
		"IFT.tranid AS so_chung_tu_xuat",
		"IFT.trandate AS ngay_xuat",
		"IFL.quantity AS so_luong_da_xuat",
	}, ", ") +
		" FROM Transaction IFT" +
		" JOIN TransactionLine IFL ON IFT.id = IFL.transaction" +
		" WHERE " + strings.Join(fulfillWhere, " AND ") +
		" ORDER BY IFT.createdfrom, IFL.id"

	fulfillQuery := upstream.Query{
		Kind:    upstream.KindSuiteQL,
		Entity:  spec.Entity,
		SuiteQL: fulfillment,
		Role:    "fulfillment",
	}

	return &ReportPlan{
		Entity: spec.Entity,
		Header: upstream.Query{
			Kind:    upstream.KindSuiteQL,
			Entity:  spec.Entity,
			SuiteQL: header,
			Role:    "header",
		},
		HeaderKey: []string{"so_internal_id"},
		Line: upstream.Query{
			Kind:    upstream.KindSuiteQL,
			Entity:  spec.Entity,
			SuiteQL: line,
			Role:    "line",
		},
		LineFK:         []string{"header_fk"},
		LineKey:        []string{"header_fk", "item_id"},
		Fulfillment:    &fulfillQuery,
		FulfillmentFK:  []string{"header_fk", "item_id"},
		InternalFields: []string{"header_fk"},
	}
}

// soScopeFilters renders the shared date-range and owning-user filters
// for a transaction alias.
func soScopeFilters(spec *Spec, alias string) []string {
	var filters []string
	if spec.DateStart != nil {
		filters = append(filters, alias+".trandate >= "+sqlDate(*spec.DateStart))
	}
	if spec.DateEnd != nil {
		filters = append(filters, alias+".trandate <= "+sqlDate(*spec.DateEnd))
	}
	if spec.OwnerID > 0 {
		filters = append(filters, alias+".employee = "+strconv.Itoa(spec.OwnerID))
	}
	return filters
}
