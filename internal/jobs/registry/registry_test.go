package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/cuongbtq/openclerk/internal/jobs/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptHandler records which script a resolved handler would run
type scriptHandler struct {
	script string
	vars   map[string]string
}

func (h *scriptHandler) Run(context.Context, *domain.Job) error { return nil }

type fakeScripts struct {
	existing map[string]bool
}

func (f *fakeScripts) Handler(script string, vars map[string]string) Handler {
	return &scriptHandler{script: script, vars: vars}
}

func (f *fakeScripts) Exists(script string) bool { return f.existing[script] }

func newDefaultRegistry() *Registry {
	return NewDefault(&fakeScripts{existing: map[string]bool{"addresses/nmc": true}}, Discovery{
		AddressCurrencies:    []string{"btc", "ltc", "nmc", "dog"},
		BalanceCurrencies:    []string{"btc", "ltc"},
		BlockCurrencies:      []string{"btc"},
		DifficultyCurrencies: []string{"ltc"},
		Exchanges:            []string{"bitstamp", "btce"},
	})
}

func TestResolve_Literal(t *testing.T) {
	r := newDefaultRegistry()

	tests := []struct {
		jobType string
		script  string
	}{
		{"ticker", "ticker"},
		{"bitstamp", "bitstamp"},
		{"bit2c", "bit2c"},
		{"securities_crypto-trade", "securities_cryptotrade"},
		{"individual_796", "individual_796"},
		{"delete_user", "delete_user"},
	}

	for _, tt := range tests {
		t.Run(tt.jobType, func(t *testing.T) {
			h, err := r.Resolve(tt.jobType)
			require.NoError(t, err)
			assert.Equal(t, tt.script, h.(*scriptHandler).script)
		})
	}
}

func TestResolve_Families(t *testing.T) {
	r := newDefaultRegistry()

	tests := []struct {
		name    string
		jobType string
		script  string
		vars    map[string]string
		wantErr string
	}{
		{name: "balance currency", jobType: "address_btc", script: "addresses/discovered", vars: map[string]string{"CURRENCY": "btc"}},
		{name: "legacy address script", jobType: "address_nmc", script: "addresses/nmc", vars: map[string]string{"CURRENCY": "nmc"}},
		{name: "missing address script", jobType: "address_dog", wantErr: "Could not find any addresses/dog include"},
		{name: "unknown address currency", jobType: "address_xyz", wantErr: "Currency xyz is not a valid address currency"},
		{name: "blockcount", jobType: "blockcount_btc", script: "blockcount/discovered", vars: map[string]string{"CURRENCY": "btc"}},
		{name: "bad blockcount", jobType: "blockcount_ltc", wantErr: "Currency ltc is not a valid block currency"},
		{name: "difficulty", jobType: "difficulty_ltc", script: "difficulty/discovered", vars: map[string]string{"CURRENCY": "ltc"}},
		{name: "markets", jobType: "markets_btce", script: "markets/discovered", vars: map[string]string{"EXCHANGE": "btce"}},
		{name: "ticker exchange", jobType: "ticker_bitstamp", script: "ticker/discovered", vars: map[string]string{"EXCHANGE": "bitstamp"}},
		{name: "bad exchange", jobType: "ticker_mtgox", wantErr: "Exchange mtgox is not a valid exchange"},
		{name: "path traversal", jobType: "address_../../etc", wantErr: "Invalid job type 'address_../../etc'"},
		{name: "unknown", jobType: "nope", wantErr: "Unknown job type 'nope'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := r.Resolve(tt.jobType)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, err.Error())
				var jobErr *domain.JobError
				assert.True(t, errors.As(err, &jobErr))
				return
			}
			require.NoError(t, err)
			sh := h.(*scriptHandler)
			assert.Equal(t, tt.script, sh.script)
			assert.Equal(t, tt.vars, sh.vars)
		})
	}
}

func TestRegister_Overrides(t *testing.T) {
	r := New()
	called := false
	r.Register("custom", HandlerFunc(func(context.Context, *domain.Job) error {
		called = true
		return nil
	}))

	h, err := r.Resolve("custom")
	require.NoError(t, err)
	require.NoError(t, h.Run(context.Background(), &domain.Job{}))
	assert.True(t, called)
	assert.Equal(t, []string{"custom"}, r.JobTypes())
}

func TestNewDefault_RegistersEveryLiteralOnce(t *testing.T) {
	r := newDefaultRegistry()
	assert.Len(t, r.JobTypes(), len(literalJobTypes))
}
