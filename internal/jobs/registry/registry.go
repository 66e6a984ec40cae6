// Package registry maps job types to the handlers that execute them.
package registry

import (
	"context"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/cuongbtq/openclerk/internal/jobs/domain"
)

// Handler executes one job
type Handler interface {
	Run(ctx context.Context, job *domain.Job) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, job *domain.Job) error

// Run calls f
func (f HandlerFunc) Run(ctx context.Context, job *domain.Job) error {
	return f(ctx, job)
}

// FamilyFunc resolves the suffix of a prefixed job type
type FamilyFunc func(suffix string) (Handler, error)

type family struct {
	prefix  string
	resolve FamilyFunc
}

var familySuffix = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Registry is safe for concurrent Resolve calls
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	families []family
}

// New creates an empty registry
func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a literal job type
func (r *Registry) Register(jobType string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = handler
}

// RegisterFamily binds every job type starting with prefix. Families are
// tried in registration order after literal types.
func (r *Registry) RegisterFamily(prefix string, resolve FamilyFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.families = append(r.families, family{prefix: prefix, resolve: resolve})
}

// Resolve finds the handler for a job type
func (r *Registry) Resolve(jobType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.handlers[jobType]; ok {
		return h, nil
	}

	for _, f := range r.families {
		suffix, ok := strings.CutPrefix(jobType, f.prefix)
		if !ok {
			continue
		}
		if !familySuffix.MatchString(suffix) {
			return nil, domain.NewJobError("Invalid job type '%s'", jobType)
		}
		return f.resolve(suffix)
	}

	return nil, domain.NewJobError("Unknown job type '%s'", jobType)
}

// JobTypes lists the literal job types, sorted
func (r *Registry) JobTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// ScriptSource builds handlers that run named external scripts
type ScriptSource interface {
	Handler(script string, vars map[string]string) Handler
	Exists(script string) bool
}

// Discovery lists the currencies and exchanges the families accept
type Discovery struct {
	AddressCurrencies    []string `yaml:"address_currencies"`
	BalanceCurrencies    []string `yaml:"balance_currencies"`
	BlockCurrencies      []string `yaml:"block_currencies"`
	DifficultyCurrencies []string `yaml:"difficulty_currencies"`
	Exchanges            []string `yaml:"exchanges"`
}

// scriptOverrides holds job types whose script name differs from the type
var scriptOverrides = map[string]string{
	"securities_crypto-trade": "securities_cryptotrade",
}

// literalJobTypes is every job type dispatched by exact name
var literalJobTypes = []string{
	// ticker jobs
	"ticker", "reported_currencies",

	// account jobs
	"generic", "bit2c", "btce", "vircurex", "poolx", "wemineltc", "wemineftc", "givemecoins",
	"slush", "cryptostocks", "securities_cryptostocks", "btcguild", "havelock", "securities_havelock",
	"bitminter", "liteguardian", "khore", "cexio", "ghashio", "crypto-trade", "securities_crypto-trade",
	"bitstamp", "796", "securities_796", "kattare", "litepooleu", "coinhuntr", "eligius",
	"litecoinpool", "elitistjerks", "hashfaster_ltc", "hashfaster_ftc", "hashfaster_doge",
	"triplemining", "ozcoin_ltc", "ozcoin_btc", "scryptpools", "justcoin", "multipool", "ypool",
	"coinbase", "litecoininvest", "miningpoolco", "vaultofsatoshi", "50btc", "ecoining_ppc",
	"teamdoge", "dedicatedpool_doge", "nut2pools_ftc", "cryptsy", "cryptopools_dgc", "d2_wdc",
	"kraken", "cryptotroll_doge", "bitmarket_pl", "poloniex", "mupool", "anxpro", "bittrex",
	"nicehash", "westhash", "eobot", "hashtocoins", "btclevels", "bitnz",

	// individual securities jobs
	"individual_cryptostocks", "individual_havelock", "individual_crypto-trade", "individual_796",
	"individual_litecoininvest",

	// summary jobs
	"sum", "securities_count",

	// notification jobs
	"notification",

	// system jobs
	"securities_update", "version_check", "vote_coins",

	// transaction jobs
	"transaction_creator", "transactions",

	// cleanup and admin jobs
	"outstanding", "expiring", "expire", "cleanup", "disable_warning", "disable", "delete_user",
}

// NewDefault builds the production registry on top of external scripts
func NewDefault(scripts ScriptSource, discovery Discovery) *Registry {
	r := New()

	for _, jobType := range literalJobTypes {
		script := jobType
		if override, ok := scriptOverrides[jobType]; ok {
			script = override
		}
		r.Register(jobType, scripts.Handler(script, nil))
	}

	r.RegisterFamily("address_", func(currency string) (Handler, error) {
		if !slices.Contains(discovery.AddressCurrencies, currency) {
			return nil, domain.NewJobError("Currency %s is not a valid address currency", currency)
		}
		vars := map[string]string{"CURRENCY": currency}
		if slices.Contains(discovery.BalanceCurrencies, currency) {
			return scripts.Handler("addresses/discovered", vars), nil
		}
		script := "addresses/" + currency
		if !scripts.Exists(script) {
			return nil, domain.NewJobError("Could not find any %s include", script)
		}
		return scripts.Handler(script, vars), nil
	})

	r.RegisterFamily("blockcount_", currencyFamily(scripts, discovery.BlockCurrencies, "block", "blockcount/discovered"))
	r.RegisterFamily("difficulty_", currencyFamily(scripts, discovery.DifficultyCurrencies, "difficulty", "difficulty/discovered"))
	r.RegisterFamily("markets_", exchangeFamily(scripts, discovery.Exchanges, "markets/discovered"))
	r.RegisterFamily("ticker_", exchangeFamily(scripts, discovery.Exchanges, "ticker/discovered"))

	return r
}

func currencyFamily(scripts ScriptSource, allowed []string, kind, script string) FamilyFunc {
	return func(currency string) (Handler, error) {
		if !slices.Contains(allowed, currency) {
			return nil, domain.NewJobError("Currency %s is not a valid %s currency", currency, kind)
		}
		return scripts.Handler(script, map[string]string{"CURRENCY": currency}), nil
	}
}

func exchangeFamily(scripts ScriptSource, allowed []string, script string) FamilyFunc {
	return func(exchange string) (Handler, error) {
		if !slices.Contains(allowed, exchange) {
			return nil, domain.NewJobError("Exchange %s is not a valid exchange", exchange)
		}
		return scripts.Handler(script, map[string]string{"EXCHANGE": exchange}), nil
	}
}

