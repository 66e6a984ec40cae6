package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuongbtq/openclerk/internal/jobs/domain"
	"github.com/cuongbtq/openclerk/internal/notify"
	"github.com/cuongbtq/openclerk/internal/testing/testdb"
	"github.com/cuongbtq/openclerk/shared/logger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	sent []*notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n *notify.Notification) error {
	r.sent = append(r.sent, n)
	return nil
}

type trackerFixture struct {
	db       *sqlx.DB
	store    *Store
	notifier *recordingNotifier
	clock    *testdb.Clock
	tracker  *Tracker
}

func newTrackerFixture(t *testing.T) *trackerFixture {
	t.Helper()
	catalog := NewCatalog()
	db := testdb.New(t, catalog.Tables()...)
	clock := testdb.NewClock()
	f := &trackerFixture{
		db:       db,
		store:    NewStore(db, catalog),
		notifier: &recordingNotifier{},
		clock:    clock,
	}
	f.tracker = NewTracker(catalog, f.store, NewUserStore(db), f.notifier, TrackerConfig{
		Limits:  Limits{Free: 3, Premium: 6},
		BaseURL: "https://openclerk.example/",
		Now:     clock.Now,
	}, logger.NewNop().Logger)
	return f
}

func (f *trackerFixture) account(t *testing.T, table string, id int64) *Account {
	t.Helper()
	a, err := f.store.Get(context.Background(), table, id)
	require.NoError(t, err)
	return a
}

func TestRecord_SuccessResetsFailures(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	userID := testdb.InsertUser(t, f.db, "ann", "ann@example.com", false)
	accountID := testdb.InsertAccount(t, f.db, "accounts_bitstamp", userID, "main")

	job := &domain.Job{ID: 1, JobType: "bitstamp", UserID: userID, ArgID: accountID}
	require.NoError(t, f.tracker.Record(ctx, job, errors.New("bad key")))
	assert.Equal(t, 1, f.account(t, "accounts_bitstamp", accountID).Failures)

	require.NoError(t, f.tracker.Record(ctx, job, nil))
	assert.Equal(t, 0, f.account(t, "accounts_bitstamp", accountID).Failures)
}

func TestRecord_TransientFailuresNotCounted(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	userID := testdb.InsertUser(t, f.db, "ann", "ann@example.com", false)
	accountID := testdb.InsertAccount(t, f.db, "accounts_btce", userID, "")

	job := &domain.Job{ID: 1, JobType: "btce", UserID: userID, ArgID: accountID}
	for _, err := range []error{
		&domain.CloudFlareError{Message: "challenge"},
		&domain.IncapsulaError{Message: "blocked"},
		&domain.WrappedJobError{JobID: 1, Err: &domain.BlockchainError{Message: "down"}},
		&domain.WrappedJobError{JobID: 1, Err: &domain.CanceledError{Err: context.Canceled}},
	} {
		require.NoError(t, f.tracker.Record(ctx, job, err))
	}

	a := f.account(t, "accounts_btce", accountID)
	assert.Zero(t, a.Failures)
	assert.Nil(t, a.FirstFailure)
}

func TestRecord_DisablesAndNotifiesOnce(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	userID := testdb.InsertUser(t, f.db, "", "bob@example.com", false)
	accountID := testdb.InsertAccount(t, f.db, "accounts_cryptotrade", userID, "trading")

	job := &domain.Job{ID: 9, JobType: "crypto-trade", UserID: userID, ArgID: accountID}
	firstFailure := f.clock.Now()
	for i := 0; i < 2; i++ {
		require.NoError(t, f.tracker.Record(ctx, job, errors.New("Invalid API key")))
		f.clock.Advance(time.Hour)
		assert.False(t, f.account(t, "accounts_cryptotrade", accountID).IsDisabled)
	}
	require.Empty(t, f.notifier.sent)

	require.NoError(t, f.tracker.Record(ctx, job, &domain.WrappedJobError{JobID: 9, Err: errors.New("Invalid API key")}))

	a := f.account(t, "accounts_cryptotrade", accountID)
	assert.True(t, a.IsDisabled)
	assert.Equal(t, 3, a.Failures)
	require.NotNil(t, a.FirstFailure)
	assert.True(t, a.FirstFailure.Equal(firstFailure))

	require.Len(t, f.notifier.sent, 1)
	n := f.notifier.sent[0]
	assert.Equal(t, notify.TemplateFailure, n.Template)
	assert.Equal(t, "bob@example.com", n.To)
	assert.Equal(t, map[string]string{
		"name":     "bob@example.com",
		"exchange": "Crypto-Trade",
		"label":    "account",
		"labels":   "accounts",
		"failures": "3",
		"message":  "Invalid API key",
		"length":   "2 hours",
		"title":    `"trading"`,
		"url":      "https://openclerk.example/wizard_accounts",
	}, n.Arguments)

	// already disabled: counted again but no second mail
	require.NoError(t, f.tracker.Record(ctx, job, errors.New("Invalid API key")))
	assert.Len(t, f.notifier.sent, 1)
	assert.Equal(t, 4, f.account(t, "accounts_cryptotrade", accountID).Failures)
}

func TestRecord_PremiumLimitAndNoEmail(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	premium := testdb.InsertUser(t, f.db, "carol", "carol@example.com", true)
	premiumAccount := testdb.InsertAccount(t, f.db, "addresses", premium, "")

	job := &domain.Job{ID: 2, JobType: "address_btc", UserID: premium, ArgID: premiumAccount}
	for i := 0; i < 5; i++ {
		require.NoError(t, f.tracker.Record(ctx, job, errors.New("bad address")))
	}
	assert.False(t, f.account(t, "addresses", premiumAccount).IsDisabled)
	require.NoError(t, f.tracker.Record(ctx, job, errors.New("bad address")))
	assert.True(t, f.account(t, "addresses", premiumAccount).IsDisabled)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "untitled", f.notifier.sent[0].Arguments["title"])
	assert.Equal(t, "BTC", f.notifier.sent[0].Arguments["exchange"])

	silent := testdb.InsertUser(t, f.db, "dave", "", false)
	silentAccount := testdb.InsertAccount(t, f.db, "accounts_kraken", silent, "k")
	job = &domain.Job{ID: 3, JobType: "kraken", UserID: silent, ArgID: silentAccount}
	for i := 0; i < 3; i++ {
		require.NoError(t, f.tracker.Record(ctx, job, errors.New("nope")))
	}
	assert.True(t, f.account(t, "accounts_kraken", silentAccount).IsDisabled)
	assert.Len(t, f.notifier.sent, 1)
}

func TestRecord_SecuritiesTitleFromArg(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	userID := testdb.InsertUser(t, f.db, "erin", "erin@example.com", false)
	accountID := testdb.InsertAccount(t, f.db, "securities_havelock", userID, "")

	job := &domain.Job{ID: 4, JobType: "securities_havelock", UserID: userID, ArgID: accountID}
	for i := 0; i < 3; i++ {
		require.NoError(t, f.tracker.Record(ctx, job, errors.New("unknown ticker")))
	}
	require.Len(t, f.notifier.sent, 1)
	args := f.notifier.sent[0].Arguments
	assert.Equal(t, "ticker", args["label"])
	assert.Equal(t, "Havelock Investments", args["exchange"])
	assert.Equal(t, `"1"`, args["title"])
}

func TestRecord_IgnoresUntrackedAndMissingRows(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	assert.NoError(t, f.tracker.Record(ctx, &domain.Job{JobType: "ticker"}, errors.New("x")))

	// missing user only warns
	accountID := testdb.InsertAccount(t, f.db, "accounts_poloniex", 77, "")
	assert.NoError(t, f.tracker.Record(ctx, &domain.Job{JobType: "poloniex", UserID: 77, ArgID: accountID}, errors.New("x")))
	assert.Equal(t, 1, f.account(t, "accounts_poloniex", accountID).Failures)

	// missing account only warns
	userID := testdb.InsertUser(t, f.db, "fay", "fay@example.com", false)
	assert.NoError(t, f.tracker.Record(ctx, &domain.Job{JobType: "poloniex", UserID: userID, ArgID: 999}, errors.New("x")))
}

func TestStore_RejectsUnknownTable(t *testing.T) {
	f := newTrackerFixture(t)
	err := f.store.ResetFailures(context.Background(), "users", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown account table")
}

func TestRecentFormat(t *testing.T) {
	assert.Equal(t, "30 seconds", RecentFormat(30*time.Second))
	assert.Equal(t, "1 minute", RecentFormat(time.Minute+10*time.Second))
	assert.Equal(t, "5 hours", RecentFormat(5*time.Hour))
	assert.Equal(t, "1 day", RecentFormat(36*time.Hour))
	assert.Equal(t, "3 days", RecentFormat(72*time.Hour))
}

func TestLimits_For(t *testing.T) {
	assert.Equal(t, 4, Limits{}.For(&User{}))
	assert.Equal(t, 8, Limits{}.For(&User{IsPremium: true}))
	assert.Equal(t, 2, Limits{Free: 2}.For(&User{}))
}
