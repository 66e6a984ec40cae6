package accounts

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind describes the account table a job type reads from
type Kind struct {
	Exchange string
	Table    string
	Label    string
	Labels   string
	Failure  bool

	// TitleFromArg uses the job's arg_id as the account title in notifications
	TitleFromArg bool
}

// accountJobTypes are the exchanges, pools and securities sites with one
// tracked API account per row
var accountJobTypes = []string{
	"generic", "bit2c", "btce", "vircurex", "poolx", "wemineltc", "wemineftc", "givemecoins",
	"slush", "cryptostocks", "btcguild", "havelock", "bitminter", "liteguardian", "khore", "cexio",
	"ghashio", "crypto-trade", "bitstamp", "796", "kattare", "litepooleu", "coinhuntr", "eligius",
	"litecoinpool", "elitistjerks", "hashfaster_ltc", "hashfaster_ftc", "hashfaster_doge",
	"triplemining", "ozcoin_ltc", "ozcoin_btc", "scryptpools", "justcoin", "multipool", "ypool",
	"coinbase", "litecoininvest", "miningpoolco", "vaultofsatoshi", "50btc", "ecoining_ppc",
	"teamdoge", "dedicatedpool_doge", "nut2pools_ftc", "cryptsy", "cryptopools_dgc", "d2_wdc",
	"kraken", "cryptotroll_doge", "bitmarket_pl", "poloniex", "mupool", "anxpro", "bittrex",
	"nicehash", "westhash", "eobot", "hashtocoins", "btclevels", "bitnz",
}

// securities are tracked per ticker rather than per account
var securities = map[string]Kind{
	"securities_havelock": {
		Exchange: "securities_havelock", Table: "securities_havelock",
		Label: "ticker", Labels: "tickers", Failure: true, TitleFromArg: true,
	},
	"securities_crypto-trade": {
		Exchange: "securities_cryptotrade", Table: "securities_cryptotrade",
		Label: "ticker", Labels: "tickers", Failure: true, TitleFromArg: true,
	},
}

const (
	addressPrefix = "address_"
	addressTable  = "addresses"
)

var exchangeNames = map[string]string{
	"50btc":                  "50BTC",
	"796":                    "796 Xchange",
	"anxpro":                 "ANXPRO",
	"bit2c":                  "Bit2c",
	"bitmarket_pl":           "BitMarket.pl",
	"bitnz":                  "BitNZ",
	"btce":                   "BTC-e",
	"btcguild":               "BTC Guild",
	"cexio":                  "CEX.io",
	"crypto-trade":           "Crypto-Trade",
	"generic":                "Generic API",
	"ghashio":                "GHash.io",
	"havelock":               "Havelock Investments",
	"securities_havelock":    "Havelock Investments",
	"securities_cryptotrade": "Crypto-Trade",
	"slush":                  "Slush's pool",
	"vaultofsatoshi":         "Vault of Satoshi",
	"wemineltc":              "WeMineLTC",
	"wemineftc":              "WeMineFTC",
}

// Catalog resolves job types to account kinds
type Catalog struct {
	kinds  map[string]Kind
	tables []string
}

// NewCatalog builds the catalog of failure-tracked job types
func NewCatalog() *Catalog {
	kinds := make(map[string]Kind, len(accountJobTypes)+len(securities))
	for _, exchange := range accountJobTypes {
		kinds[exchange] = Kind{
			Exchange: exchange,
			Table:    TableFor(exchange),
			Label:    "account",
			Labels:   "accounts",
			Failure:  true,
		}
	}
	for jobType, kind := range securities {
		kinds[jobType] = kind
	}

	tables := []string{addressTable}
	for _, kind := range kinds {
		if !slices.Contains(tables, kind.Table) {
			tables = append(tables, kind.Table)
		}
	}
	slices.Sort(tables)

	return &Catalog{kinds: kinds, tables: tables}
}

// TableFor names the account table of an exchange key
func TableFor(exchange string) string {
	return "accounts_" + strings.ReplaceAll(exchange, "-", "")
}

// Lookup returns the kind for a job type
func (c *Catalog) Lookup(jobType string) (Kind, bool) {
	if kind, ok := c.kinds[jobType]; ok {
		return kind, true
	}
	if currency, ok := strings.CutPrefix(jobType, addressPrefix); ok && currency != "" {
		return Kind{
			Exchange: currency,
			Table:    addressTable,
			Label:    "address",
			Labels:   "addresses",
			Failure:  true,
		}, true
	}
	return Kind{}, false
}

// HasTable reports whether table belongs to a catalogued kind
func (c *Catalog) HasTable(table string) bool {
	_, found := slices.BinarySearch(c.tables, table)
	return found
}

// Tables lists every account table, sorted
func (c *Catalog) Tables() []string {
	return slices.Clone(c.tables)
}

// ExchangeName is the display name of an exchange or currency key
func ExchangeName(key string) string {
	if name, ok := exchangeNames[key]; ok {
		return name
	}
	if len(key) == 3 && !strings.ContainsAny(key, "_-") {
		return strings.ToUpper(key)
	}
	words := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' })
	return cases.Title(language.English).String(strings.Join(words, " "))
}
