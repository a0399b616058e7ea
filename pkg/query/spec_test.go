package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openelt/nsgateway/pkg/config"
	"github.com/openelt/nsgateway/pkg/errors"
)

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Upstream.DefaultPageSize = 100
	cfg.Upstream.MaxPageSize = 500
	return cfg
}

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestSpec_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		spec     Spec
		wantErr  bool
		wantSpec func(t *testing.T, s Spec)
	}{
		{
			name: "zero limit takes default",
			spec: Spec{Entity: "customer"},
			wantSpec: func(t *testing.T, s Spec) {
				assert.Equal(t, 100, s.Limit)
			},
		},
		{
			name: "limit above max is clamped not rejected",
			spec: Spec{Entity: "customer", Limit: 9999},
			wantSpec: func(t *testing.T, s Spec) {
				assert.Equal(t, 500, s.Limit)
			},
		},
		{
			name: "limit inside bounds is kept",
			spec: Spec{Entity: "customer", Limit: 50, Offset: 200},
			wantSpec: func(t *testing.T, s Spec) {
				assert.Equal(t, 50, s.Limit)
				assert.Equal(t, 200, s.Offset)
			},
		},
		{
			name:    "negative limit rejected",
			spec:    Spec{Entity: "customer", Limit: -1},
			wantErr: true,
		},
		{
			name:    "negative offset rejected",
			spec:    Spec{Entity: "customer", Offset: -1},
			wantErr: true,
		},
		{
			name:    "negative owner rejected",
			spec:    Spec{Entity: "customer", OwnerID: -5},
			wantErr: true,
		},
		{
			name:    "short entity rejected",
			spec:    Spec{Entity: "x"},
			wantErr: true,
		},
		{
			name: "raw query needs no entity",
			spec: Spec{Raw: "SELECT id FROM Transaction"},
		},
		{
			name:    "date range end before start rejected",
			spec:    Spec{Entity: "customer", DateStart: date("2026-02-01"), DateEnd: date("2026-01-01")},
			wantErr: true,
		},
		{
			name: "equal date bounds allowed",
			spec: Spec{Entity: "customer", DateStart: date("2026-01-01"), DateEnd: date("2026-01-01")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Normalize(testConfig())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidRequest))
				return
			}
			require.NoError(t, err)
			if tt.wantSpec != nil {
				tt.wantSpec(t, tt.spec)
			}
		})
	}
}

func TestSpec_CacheKeyParts(t *testing.T) {
	a := Spec{Entity: "customer", Limit: 10, Offset: 0}
	b := Spec{Entity: "customer", Limit: 10, Offset: 0}
	assert.Equal(t, a.CacheKeyParts(), b.CacheKeyParts())

	c := Spec{Entity: "customer", Limit: 10, Offset: 10}
	assert.NotEqual(t, a.CacheKeyParts(), c.CacheKeyParts())

	d := Spec{Entity: "customer", Limit: 10, Expand: true}
	assert.NotEqual(t, a.CacheKeyParts(), d.CacheKeyParts())

	// NoCache is a delivery directive, not part of the request identity
	e := Spec{Entity: "customer", Limit: 10, NoCache: true}
	assert.Equal(t, a.CacheKeyParts(), e.CacheKeyParts())

	// raw text participates as a digest, not verbatim
	f := Spec{Raw: "SELECT id FROM Transaction"}
	g := Spec{Raw: "SELECT tranid FROM Transaction"}
	assert.NotEqual(t, f.CacheKeyParts(), g.CacheKeyParts())
	for _, part := range f.CacheKeyParts() {
		assert.NotContains(t, part, "SELECT")
	}
}
