package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/openclerk/internal/jobs/domain"
	"github.com/cuongbtq/openclerk/internal/notify"
	"github.com/cuongbtq/openclerk/internal/observability"
)

// AccountRepository is the account storage the tracker writes to
type AccountRepository interface {
	Get(ctx context.Context, table string, id int64) (*Account, error)
	IncrementFailures(ctx context.Context, table string, id int64, now time.Time) error
	ResetFailures(ctx context.Context, table string, id int64) error
	Disable(ctx context.Context, table string, id int64) error
}

// UserRepository loads the owner of a job
type UserRepository interface {
	GetUser(ctx context.Context, id int64) (*User, error)
}

// Limits is the number of consecutive failures before an account is disabled
type Limits struct {
	Free    int `yaml:"free"`
	Premium int `yaml:"premium"`
}

// DefaultLimits are used when the configuration leaves them unset
var DefaultLimits = Limits{Free: 4, Premium: 8}

// For returns the limit that applies to user
func (l Limits) For(user *User) int {
	if user.IsPremium {
		if l.Premium > 0 {
			return l.Premium
		}
		return DefaultLimits.Premium
	}
	if l.Free > 0 {
		return l.Free
	}
	return DefaultLimits.Free
}

// TrackerConfig configures a Tracker
type TrackerConfig struct {
	Limits  Limits
	BaseURL string
	Now     func() time.Time
}

// Tracker maintains per-account failure counters after each job run
type Tracker struct {
	catalog  *Catalog
	accounts AccountRepository
	users    UserRepository
	notifier notify.Notifier
	config   TrackerConfig
	logger   *slog.Logger
}

// NewTracker creates a Tracker
func NewTracker(catalog *Catalog, accounts AccountRepository, users UserRepository, notifier notify.Notifier, config TrackerConfig, logger *slog.Logger) *Tracker {
	if config.Now == nil {
		config.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Tracker{
		catalog:  catalog,
		accounts: accounts,
		users:    users,
		notifier: notifier,
		config:   config,
		logger:   logger,
	}
}

// Record updates the account behind job after it ran, runErr being the
// failure if any. Job types without a failure-tracked account are ignored.
func (t *Tracker) Record(ctx context.Context, job *domain.Job, runErr error) error {
	kind, ok := t.catalog.Lookup(job.JobType)
	if !ok || !kind.Failure {
		return nil
	}

	logger := t.logger.With(
		slog.Int64("job_id", job.ID),
		slog.String("table", kind.Table),
		slog.Int64("account_id", job.ArgID),
	)

	if runErr == nil {
		if err := t.accounts.ResetFailures(ctx, kind.Table, job.ArgID); err != nil {
			return fmt.Errorf("failed to reset failures: %w", err)
		}
		return nil
	}

	if transient, ok := domain.TransientKind(runErr); ok {
		logger.Info("Not increasing failure count", slog.String("reason", transient))
	} else {
		if err := t.accounts.IncrementFailures(ctx, kind.Table, job.ArgID, t.config.Now()); err != nil {
			return fmt.Errorf("failed to increment failures: %w", err)
		}
		observability.AccountFailures.WithLabelValues(kind.Exchange).Inc()
		logger.Info("Increasing account failure count")
	}

	user, err := t.users.GetUser(ctx, job.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		logger.Warn("No user found for job", slog.Int64("user_id", job.UserID))
		return nil
	}
	if err != nil {
		return err
	}

	account, err := t.accounts.Get(ctx, kind.Table, job.ArgID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		logger.Warn("No account found for job")
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("Current account failure count", slog.Int("failures", account.Failures))

	if account.Failures < t.config.Limits.For(user) {
		return nil
	}

	if err := t.accounts.Disable(ctx, kind.Table, account.ID); err != nil {
		return fmt.Errorf("failed to disable account: %w", err)
	}

	// only the run that disables the account sends mail
	if account.IsDisabled {
		return nil
	}
	observability.AccountsDisabled.WithLabelValues(kind.Exchange).Inc()

	if user.Email == "" {
		return nil
	}

	n := &notify.Notification{
		Template:  notify.TemplateFailure,
		UserID:    user.ID,
		To:        user.Email,
		Arguments: t.failureArguments(kind, job, user, account, runErr),
	}
	if err := t.notifier.Notify(ctx, n); err != nil {
		return fmt.Errorf("failed to send failure notification: %w", err)
	}

	logger.Info("Sent failure notification", slog.String("to", user.Email))
	return nil
}

func (t *Tracker) failureArguments(kind Kind, job *domain.Job, user *User, account *Account, runErr error) map[string]string {
	title := account.Title
	if title == "" && kind.TitleFromArg {
		title = strconv.FormatInt(job.ArgID, 10)
	}
	if title != "" {
		title = `"` + title + `"`
	} else {
		title = "untitled"
	}

	length := ""
	if account.FirstFailure != nil {
		length = RecentFormat(t.config.Now().Sub(*account.FirstFailure))
	}

	return map[string]string{
		"name":     user.DisplayName(),
		"exchange": ExchangeName(kind.Exchange),
		"label":    kind.Label,
		"labels":   kind.Labels,
		"failures": strconv.Itoa(account.Failures),
		"message":  unwrapMessage(runErr),
		"length":   length,
		"title":    title,
		"url":      strings.TrimRight(t.config.BaseURL, "/") + "/wizard_accounts",
	}
}

// unwrapMessage drops the job wrapper so users see the handler's own text
func unwrapMessage(err error) string {
	var wrapped *domain.WrappedJobError
	if errors.As(err, &wrapped) {
		return wrapped.Err.Error()
	}
	return err.Error()
}

// RecentFormat renders an elapsed time the way account emails phrase it,
// such as "3 hours" or "1 day"
func RecentFormat(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return strconv.FormatInt(n, 10) + " " + unit + "s"
	}

	switch {
	case d < time.Minute:
		return plural(int64(d/time.Second), "second")
	case d < time.Hour:
		return plural(int64(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return plural(int64(d/time.Hour), "hour")
	default:
		return plural(int64(d/(24*time.Hour)), "day")
	}
}
