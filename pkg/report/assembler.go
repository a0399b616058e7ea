// Package report executes a report query set and joins the results into
// denormalized canonical records: header fields flattened into every
// line, fulfillment fields flattened into every matching line, with
// null-fill instead of dropped records when a join side is missing.
package report

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/openelt/nsgateway/pkg/models"
	"github.com/openelt/nsgateway/pkg/query"
	"github.com/openelt/nsgateway/pkg/upstream"
)

// Executor is the slice of the upstream client the assembler needs.
type Executor interface {
	FetchAll(ctx context.Context, q upstream.Query, limit, startOffset int) ([]models.Record, bool, error)
}

// Result is one assembled report.
type Result struct {
	Records []models.Record
	HasMore bool
}

// Assembler fans out the queries of a report plan and joins the results.
type Assembler struct {
	exec           Executor
	logger         *zap.Logger
	maxConcurrency int
}

// NewAssembler creates an Assembler. maxConcurrency bounds the per-request
// query fan-out.
func NewAssembler(exec Executor, maxConcurrency int, logger *zap.Logger) *Assembler {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Assembler{
		exec:           exec,
		logger:         logger.With(zap.String("component", "report_assembler")),
		maxConcurrency: maxConcurrency,
	}
}

// fetchResult carries one entity's rows across the join barrier.
type fetchResult struct {
	role    string
	records []models.Record
	hasMore bool
	err     error
}

// Assemble executes the plan's query set concurrently, waits for all
// results (partial joins are never exposed), and joins them.
// headerLimit and headerOffset page the header query; secondary
// entities page independently from zero up to the configured maximum
// (a zero limit).
func (a *Assembler) Assemble(ctx context.Context, plan *query.ReportPlan, headerLimit, headerOffset int) (*Result, error) {
	type fanQuery struct {
		role   string
		q      upstream.Query
		limit  int
		offset int
	}
	queries := []fanQuery{
		{"header", plan.Header, headerLimit, headerOffset},
		{"line", plan.Line, 0, 0},
	}
	if plan.Fulfillment != nil {
		queries = append(queries, fanQuery{"fulfillment", *plan.Fulfillment, 0, 0})
	}

	results := make(chan fetchResult, len(queries))
	semaphore := make(chan struct{}, a.maxConcurrency)
	var wg sync.WaitGroup

	for _, entry := range queries {
		wg.Add(1)
		go func(fq fanQuery) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			records, hasMore, err := a.exec.FetchAll(ctx, fq.q, fq.limit, fq.offset)
			results <- fetchResult{role: fq.role, records: records, hasMore: hasMore, err: err}
		}(entry)
	}

	// Join barrier: every query completes before assembly proceeds
	wg.Wait()
	close(results)

	var headers, lines, fulfillments []models.Record
	hasMore := false
	for r := range results {
		if r.err != nil {
			// Upstream errors propagate untouched
			return nil, r.err
		}
		switch r.role {
		case "header":
			headers = r.records
			hasMore = hasMore || r.hasMore
		case "line":
			lines = r.records
		case "fulfillment":
			fulfillments = r.records
		}
	}

	records := a.join(plan, headers, lines, fulfillments)

	a.logger.Debug("report assembled",
		zap.String("entity", plan.Entity),
		zap.Int("headers", len(headers)),
		zap.Int("lines", len(lines)),
		zap.Int("fulfillments", len(fulfillments)),
		zap.Int("records", len(records)))

	return &Result{Records: records, HasMore: hasMore}, nil
}

// join performs the hash-indexed two-level join. Output order is the
// header-query's return order; within a header, line order follows the
// line-query's return order. Orphaned lines are attached with header
// fields left null, after all matched headers.
func (a *Assembler) join(plan *query.ReportPlan, headers, lines, fulfillments []models.Record) []models.Record {
	internal := make(map[string]bool, len(plan.InternalFields))
	for _, f := range plan.InternalFields {
		internal[f] = true
	}

	// Each level owns only the fields earlier levels did not claim, so a
	// null-filled fulfillment can never clobber a line's value for a
	// shared field such as the item id
	headerFields := fieldUniverse(headers, internal, nil)
	lineFields := fieldUniverse(lines, internal, headerFields)
	fulfillFields := fieldUniverse(fulfillments, internal, append(headerFields, lineFields...))

	linesByHeader := make(map[string][]models.Record, len(headers))
	var orphanLines []models.Record
	headerIndex := make(map[string]bool, len(headers))
	for _, h := range headers {
		headerIndex[joinKey(h, plan.HeaderKey)] = true
	}
	for _, l := range lines {
		fk := joinKey(l, plan.LineFK)
		if headerIndex[fk] {
			linesByHeader[fk] = append(linesByHeader[fk], l)
		} else {
			// Eventual-consistency skew upstream: keep the line,
			// null-fill the header side
			orphanLines = append(orphanLines, l)
		}
	}

	fulfillsByLine := make(map[string][]models.Record, len(fulfillments))
	for _, f := range fulfillments {
		fk := joinKey(f, plan.FulfillmentFK)
		fulfillsByLine[fk] = append(fulfillsByLine[fk], f)
	}

	out := make([]models.Record, 0, len(lines)+len(headers))

	emit := func(header, line models.Record) {
		fulfills := []models.Record{nil}
		if line != nil {
			if matched := fulfillsByLine[joinKey(line, plan.LineKey)]; len(matched) > 0 {
				fulfills = matched
			}
		}
		for _, f := range fulfills {
			record := make(models.Record, len(headerFields)+len(lineFields)+len(fulfillFields))
			mergeLevel(record, headerFields, header)
			mergeLevel(record, lineFields, line)
			mergeLevel(record, fulfillFields, f)
			out = append(out, record)
		}
	}

	for _, h := range headers {
		matched := linesByHeader[joinKey(h, plan.HeaderKey)]
		if len(matched) == 0 {
			// A header with no lines still yields exactly one record
			emit(h, nil)
			continue
		}
		for _, l := range matched {
			emit(h, l)
		}
	}

	for _, l := range orphanLines {
		emit(nil, l)
	}

	return out
}

// mergeLevel copies one join level's fields into the output record,
// writing explicit nulls when the source is absent.
func mergeLevel(dst models.Record, fields []string, src models.Record) {
	for _, f := range fields {
		if src == nil {
			dst[f] = nil
			continue
		}
		dst[f] = src[f]
	}
}

// fieldUniverse returns the union of field names across records,
// excluding internal plumbing fields and fields claimed by an earlier
// join level.
func fieldUniverse(records []models.Record, internal map[string]bool, claimed []string) []string {
	seen := make(map[string]bool, len(claimed))
	for _, f := range claimed {
		seen[f] = true
	}
	var fields []string
	for _, r := range records {
		for k := range r {
			if internal[k] || seen[k] {
				continue
			}
			seen[k] = true
			fields = append(fields, k)
		}
	}
	return fields
}

// joinKey builds the composite join identity for a record.
func joinKey(r models.Record, fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = r.StringField(f)
	}
	return strings.Join(parts, "\x1f")
}
