package sync

import (
	"context"
	stderrors "errors"
	stdsync "sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/account"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/conflict"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/errors"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/transaction"
)

// Options tunes the orchestrator. Zero values fall back to defaults.
type Options struct {
	// PageSize is the requested provider page size
	PageSize int
	// MaxPages is the safety cap on pages fetched per account per pass
	MaxPages int
	// MaxConcurrentAccounts caps concurrently syncing accounts; provider
	// rate limits are per-credential, not per-account
	MaxConcurrentAccounts int
	// RateLimitDelay is the retry delay when the provider rate-limits
	// without a retry-after hint
	RateLimitDelay time.Duration
	// BackoffInitialInterval seeds the exponential backoff used before the
	// single page-level retry of a network failure
	BackoffInitialInterval time.Duration
	// BackoffMaxInterval caps that backoff
	BackoffMaxInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 100
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 50
	}
	if o.MaxConcurrentAccounts <= 0 {
		o.MaxConcurrentAccounts = 3
	}
	if o.RateLimitDelay <= 0 {
		o.RateLimitDelay = 30 * time.Second
	}
	if o.BackoffInitialInterval <= 0 {
		o.BackoffInitialInterval = 500 * time.Millisecond
	}
	if o.BackoffMaxInterval <= 0 {
		o.BackoffMaxInterval = 10 * time.Second
	}
	return o
}

// Orchestrator is the sync engine. It decides what to fetch, merges provider
// records against the local store through the conflict resolver, publishes
// state transitions into the tracker, and folds per-account outcomes into
// one result.
type Orchestrator struct {
	provider  ProviderGateway
	store     RecordStore
	creds     CredentialSource
	conflicts ConflictLog
	resolver  *conflict.Resolver
	tracker   *Tracker
	log       *zap.Logger
	opts      Options
	sem       chan struct{}

	mu   stdsync.Mutex
	runs map[string]*accountRun
}

// accountRun is an in-flight per-account pass. A second trigger for the same
// account waits on done and shares result instead of starting a duplicate.
type accountRun struct {
	userID string
	cancel context.CancelFunc
	done   chan struct{}
	result Result
}

// NewOrchestrator creates the sync engine. conflicts may be nil to disable
// the audit trail.
func NewOrchestrator(provider ProviderGateway, store RecordStore, creds CredentialSource, conflicts ConflictLog, tracker *Tracker, log *zap.Logger, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		provider:  provider,
		store:     store,
		creds:     creds,
		conflicts: conflicts,
		resolver:  conflict.NewResolver(),
		tracker:   tracker,
		log:       log,
		opts:      opts,
		sem:       make(chan struct{}, opts.MaxConcurrentAccounts),
		runs:      make(map[string]*accountRun),
	}
}

// Tracker exposes the status read model
func (o *Orchestrator) Tracker() *Tracker {
	return o.tracker
}

// LinkedAccountIDs lists the ids of the user's linked accounts
func (o *Orchestrator) LinkedAccountIDs(ctx context.Context, userID string) ([]string, error) {
	return o.store.ListLinkedAccountIDs(ctx, userID)
}

// SyncAllAccounts runs a full sync for every account linked to the user.
// Accounts are processed independently; one account failing never aborts
// the others.
func (o *Orchestrator) SyncAllAccounts(ctx context.Context, userID string) (Result, error) {
	return o.syncUser(ctx, userID, func(context.Context, string) (Window, error) {
		return Window{}, nil
	})
}

// IncrementalSync syncs only activity since each account's last successful
// pass. An account with no prior checkpoint degrades to a full sync.
func (o *Orchestrator) IncrementalSync(ctx context.Context, userID string) (Result, error) {
	return o.syncUser(ctx, userID, func(ctx context.Context, accountID string) (Window, error) {
		cp, err := o.store.GetSyncCheckpoint(ctx, accountID)
		if err != nil {
			if stderrors.Is(err, ErrNotFound) {
				return Window{}, nil
			}
			return Window{}, err
		}
		return Window{Start: cp.LastSyncTime}, nil
	})
}

// SyncAccount runs a full sync for a single account
func (o *Orchestrator) SyncAccount(ctx context.Context, accountID string) (Result, error) {
	start := time.Now()
	acc, err := o.store.GetAccount(ctx, accountID)
	if err != nil {
		var sErr *errors.SyncError
		if stderrors.Is(err, ErrNotFound) {
			sErr = errors.NewValidationError("account is not linked: " + accountID)
		} else {
			sErr = errors.Classify(err).WithAccount(accountID)
		}
		return failure(sErr, time.Since(start)), sErr
	}
	credential, err := o.creds.Credential(ctx, acc.UserID)
	if err != nil {
		sErr := errors.Classify(err).WithAccount(accountID)
		return failure(sErr, time.Since(start)), sErr
	}
	return o.runCoalesced(ctx, acc.UserID, credential, accountID, Window{}, true), nil
}

// SyncTransactions runs a bounded-window sync for a single account. The
// window must not be inverted. An explicit window never advances the
// incremental checkpoint, so a later incremental pass still covers the gap.
func (o *Orchestrator) SyncTransactions(ctx context.Context, accountID string, startDate, endDate time.Time) (Result, error) {
	start := time.Now()
	window := Window{Start: startDate, End: endDate}
	if err := window.Validate(); err != nil {
		sErr := errors.Classify(err).WithAccount(accountID)
		return failure(sErr, time.Since(start)), sErr
	}
	acc, err := o.store.GetAccount(ctx, accountID)
	if err != nil {
		var sErr *errors.SyncError
		if stderrors.Is(err, ErrNotFound) {
			sErr = errors.NewValidationError("account is not linked: " + accountID)
		} else {
			sErr = errors.Classify(err).WithAccount(accountID)
		}
		return failure(sErr, time.Since(start)), sErr
	}
	credential, err := o.creds.Credential(ctx, acc.UserID)
	if err != nil {
		sErr := errors.Classify(err).WithAccount(accountID)
		return failure(sErr, time.Since(start)), sErr
	}
	return o.runCoalesced(ctx, acc.UserID, credential, accountID, window, false), nil
}

// CancelSync cancels every in-flight sync for the user's accounts. The
// cancellation is cooperative: each pass observes it at its next fetch or
// record boundary, so no record is ever left half-written.
func (o *Orchestrator) CancelSync(ctx context.Context, userID string) error {
	o.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(o.runs))
	for _, run := range o.runs {
		if run.userID == userID {
			cancels = append(cancels, run.cancel)
		}
	}
	o.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	o.log.Info("cancelled in-flight syncs", zap.String("userId", userID), zap.Int("count", len(cancels)))
	return nil
}

func (o *Orchestrator) syncUser(ctx context.Context, userID string, windowFor func(context.Context, string) (Window, error)) (Result, error) {
	start := time.Now()
	log := o.log.With(zap.String("userId", userID), zap.String("runId", uuid.New().String()))

	credential, err := o.creds.Credential(ctx, userID)
	if err != nil {
		sErr := errors.Classify(err)
		log.Warn("failed to resolve provider credential", zap.Error(sErr))
		return failure(sErr, time.Since(start)), sErr
	}

	accountIDs, err := o.store.ListLinkedAccountIDs(ctx, userID)
	if err != nil {
		sErr := errors.Classify(err)
		log.Warn("failed to list linked accounts", zap.Error(sErr))
		return failure(sErr, time.Since(start)), sErr
	}
	if len(accountIDs) == 0 {
		return Result{Outcome: OutcomeSuccess, Duration: time.Since(start)}, nil
	}

	results := make([]Result, len(accountIDs))
	var wg stdsync.WaitGroup
	for i, accountID := range accountIDs {
		wg.Add(1)
		go func(i int, accountID string) {
			defer wg.Done()
			window, err := windowFor(ctx, accountID)
			if err != nil {
				sErr := errors.Classify(err).WithAccount(accountID)
				results[i] = failure(sErr, 0)
				return
			}
			results[i] = o.runCoalesced(ctx, userID, credential, accountID, window, true)
		}(i, accountID)
	}
	wg.Wait()

	agg := aggregate(results, time.Since(start))
	log.Info("sync pass finished",
		zap.String("outcome", string(agg.Outcome)),
		zap.Int("accountsUpdated", agg.AccountsUpdated),
		zap.Int("transactionsAdded", agg.TransactionsAdded),
		zap.Int("transactionsUpdated", agg.TransactionsUpdated),
		zap.Int("conflictsResolved", agg.ConflictsResolved),
		zap.Int("errors", len(agg.Errors)),
		zap.Duration("duration", agg.Duration))
	return agg, nil
}

// runCoalesced serializes passes per account: a trigger for an account
// already syncing waits on the existing pass and shares its result.
func (o *Orchestrator) runCoalesced(ctx context.Context, userID, credential, accountID string, window Window, updateCheckpoint bool) Result {
	o.mu.Lock()
	if existing, ok := o.runs[accountID]; ok {
		o.mu.Unlock()
		select {
		case <-existing.done:
			return existing.result
		case <-ctx.Done():
			return failure(errors.NewUnknownError("wait for in-flight sync cancelled", ctx.Err()).WithAccount(accountID), 0)
		}
	}
	runCtx, cancel := context.WithCancel(ctx)
	run := &accountRun{userID: userID, cancel: cancel, done: make(chan struct{})}
	o.runs[accountID] = run
	o.mu.Unlock()

	run.result = o.syncAccountPass(runCtx, userID, credential, accountID, window, updateCheckpoint)

	o.mu.Lock()
	delete(o.runs, accountID)
	o.mu.Unlock()
	cancel()
	close(run.done)
	return run.result
}

// pass accumulates the counters and collected errors of one account pass
type pass struct {
	accountID           string
	accountsUpdated     int
	transactionsAdded   int
	transactionsUpdated int
	conflictsResolved   int
	errs                []*errors.SyncError
}

func (p *pass) fail(sErr *errors.SyncError) {
	p.errs = append(p.errs, sErr)
}

func (p *pass) result(duration time.Duration) Result {
	r := Result{
		AccountsUpdated:     p.accountsUpdated,
		TransactionsAdded:   p.transactionsAdded,
		TransactionsUpdated: p.transactionsUpdated,
		ConflictsResolved:   p.conflictsResolved,
		Duration:            duration,
	}
	switch {
	case len(p.errs) == 0:
		r.Outcome = OutcomeSuccess
	case r.progressed():
		r.Outcome = OutcomePartialSuccess
		r.Errors = p.errs
	default:
		r.Outcome = OutcomeFailure
		r.Err = p.errs[0]
		if len(p.errs) > 1 {
			r.Errors = p.errs[1:]
		}
	}
	return r
}

func failure(sErr *errors.SyncError, duration time.Duration) Result {
	return Result{Outcome: OutcomeFailure, Err: sErr, Duration: duration}
}

func (o *Orchestrator) syncAccountPass(ctx context.Context, userID, credential, accountID string, window Window, updateCheckpoint bool) Result {
	start := time.Now()
	log := o.log.With(zap.String("accountId", accountID))

	if err := o.tracker.StartPass(accountID); err != nil {
		return failure(errors.NewUnknownError("pass already in flight", err).WithAccount(accountID), time.Since(start))
	}

	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		o.tracker.Cancel(accountID)
		return o.cancelled(&pass{accountID: accountID}, start)
	}
	defer func() { <-o.sem }()

	p := &pass{accountID: accountID}

	o.tracker.AddTotal(accountID, 1)
	snap, sErr := o.fetchSnapshot(ctx, credential, accountID)
	if sErr != nil {
		if ctx.Err() != nil {
			o.tracker.Cancel(accountID)
			return o.cancelled(p, start)
		}
		p.fail(sErr)
		return o.finishError(log, p, start)
	}
	if sErr := o.applySnapshot(ctx, userID, accountID, snap, p); sErr != nil {
		p.fail(sErr)
		return o.finishError(log, p, start)
	}
	o.tracker.Advance(accountID, 1)

	pageToken := ""
	for page := 0; ; page++ {
		if ctx.Err() != nil {
			o.tracker.Cancel(accountID)
			return o.cancelled(p, start)
		}
		txnPage, sErr := o.fetchPage(ctx, credential, accountID, window, pageToken)
		if sErr != nil {
			if ctx.Err() != nil {
				o.tracker.Cancel(accountID)
				return o.cancelled(p, start)
			}
			p.fail(sErr)
			return o.finishError(log, p, start)
		}

		o.tracker.AddTotal(accountID, len(txnPage.Records))
		for _, rec := range txnPage.Records {
			if ctx.Err() != nil {
				o.tracker.Cancel(accountID)
				return o.cancelled(p, start)
			}
			o.applyTransaction(ctx, rec, p)
			o.tracker.Advance(accountID, 1)
		}

		if txnPage.NextPageToken == "" || page+1 >= o.opts.MaxPages {
			break
		}
		pageToken = txnPage.NextPageToken
	}

	if updateCheckpoint && len(p.errs) == 0 {
		cp := &Checkpoint{AccountID: accountID, LastSyncTime: start.UTC(), UpdatedAt: time.Now().UTC()}
		if err := o.store.SaveSyncCheckpoint(ctx, cp); err != nil {
			p.fail(errors.Classify(err).WithAccount(accountID))
		}
	}

	res := p.result(time.Since(start))
	if len(p.errs) == 0 {
		o.tracker.FinishSuccess(accountID, time.Now().UTC())
	} else {
		o.tracker.FinishError(accountID, p.errs[0])
	}
	log.Info("account sync finished",
		zap.String("outcome", string(res.Outcome)),
		zap.Int("transactionsAdded", res.TransactionsAdded),
		zap.Int("transactionsUpdated", res.TransactionsUpdated),
		zap.Int("conflictsResolved", res.ConflictsResolved),
		zap.Duration("duration", res.Duration))
	return res
}

func (o *Orchestrator) cancelled(p *pass, start time.Time) Result {
	res := p.result(time.Since(start))
	cancelErr := errors.NewUnknownError("sync cancelled", context.Canceled).WithAccount(p.accountID)
	if res.progressed() {
		res.Outcome = OutcomePartialSuccess
		res.Errors = append(res.Errors, cancelErr)
		res.Err = nil
	} else {
		res.Outcome = OutcomeFailure
		res.Err = cancelErr
	}
	return res
}

func (o *Orchestrator) finishError(log *zap.Logger, p *pass, start time.Time) Result {
	res := p.result(time.Since(start))
	o.tracker.FinishError(p.accountID, p.errs[0])
	log.Warn("account sync failed",
		zap.String("outcome", string(res.Outcome)),
		zap.Error(p.errs[0]),
		zap.Duration("duration", res.Duration))
	return res
}

// fetchSnapshot retrieves the provider's view of one account, retrying once
// on a transient failure. An account missing from the provider's listing is
// a removal: it becomes an inactive snapshot, never a delete.
func (o *Orchestrator) fetchSnapshot(ctx context.Context, credential, accountID string) (*account.Snapshot, *errors.SyncError) {
	snaps, sErr := retryOnce(ctx, o, accountID, func() ([]*account.Snapshot, error) {
		return o.provider.FetchAccounts(ctx, credential)
	})
	if sErr != nil {
		return nil, sErr
	}
	for _, snap := range snaps {
		if snap.AccountID == accountID {
			if err := snap.Validate(); err != nil {
				return nil, errors.Classify(err).WithAccount(accountID)
			}
			return snap, nil
		}
	}

	local, err := o.store.GetAccount(ctx, accountID)
	if err != nil {
		if stderrors.Is(err, ErrNotFound) {
			return nil, errors.NewValidationError("account not found at provider: " + accountID).WithAccount(accountID)
		}
		return nil, errors.Classify(err).WithAccount(accountID)
	}
	return &account.Snapshot{
		AccountID:        local.ID,
		InstitutionID:    local.InstitutionID,
		InstitutionName:  local.InstitutionName,
		Type:             local.Type,
		Balance:          local.Balance,
		AvailableBalance: local.AvailableBalance,
		Active:           false,
		AsOf:             time.Now().UTC(),
	}, nil
}

func (o *Orchestrator) fetchPage(ctx context.Context, credential, accountID string, window Window, pageToken string) (*TransactionPage, *errors.SyncError) {
	return retryOnce(ctx, o, accountID, func() (*TransactionPage, error) {
		return o.provider.FetchTransactions(ctx, credential, accountID, window, pageToken)
	})
}

// applySnapshot reconciles the remote snapshot into the local account
// record. Balances are last-write-wins from the provider.
func (o *Orchestrator) applySnapshot(ctx context.Context, userID, accountID string, snap *account.Snapshot, p *pass) *errors.SyncError {
	local, err := o.store.GetAccount(ctx, accountID)
	if err != nil {
		if !stderrors.Is(err, ErrNotFound) {
			return errors.Classify(err).WithAccount(accountID)
		}
		acc := account.NewFromSnapshot(userID, snap)
		if err := acc.Validate(); err != nil {
			return errors.Classify(err).WithAccount(accountID)
		}
		if err := o.store.UpsertAccount(ctx, acc); err != nil {
			return errors.Classify(err).WithAccount(accountID)
		}
		p.accountsUpdated++
		return nil
	}

	merged, details := o.resolver.ResolveAccount(local, snap)
	if err := o.store.UpsertAccount(ctx, merged); err != nil {
		return errors.Classify(err).WithAccount(accountID)
	}
	p.accountsUpdated++
	for _, d := range details {
		p.conflictsResolved++
		o.recordConflict(ctx, d)
	}
	return nil
}

// applyTransaction merges one provider record. Commits are per-record, so a
// failure or cancellation here never leaves a record half-written; errors
// are collected and the pass moves on.
func (o *Orchestrator) applyTransaction(ctx context.Context, rec *transaction.Transaction, p *pass) {
	if err := rec.Validate(); err != nil {
		p.fail(errors.Classify(err).WithAccount(rec.AccountID))
		return
	}

	local, err := o.store.GetTransaction(ctx, rec.AccountID, rec.ID)
	if err != nil {
		if !stderrors.Is(err, ErrNotFound) {
			p.fail(errors.Classify(err).WithAccount(rec.AccountID))
			return
		}
		now := time.Now().UTC()
		ins := *rec
		ins.CreatedAt = now
		ins.UpdatedAt = now
		if err := o.store.UpsertTransaction(ctx, &ins); err != nil {
			p.fail(errors.Classify(err).WithAccount(rec.AccountID))
			return
		}
		p.transactionsAdded++
		return
	}

	merged, resolution, details := o.resolver.ResolveTransaction(local, rec)
	switch resolution {
	case conflict.UseLocal:
		// Identical content: no write, no conflict counted.
	case conflict.ManualReviewRequired:
		o.recordConflict(ctx, details)
		p.fail(errors.NewDataConflictError(rec.AccountID, rec.ID,
			"transaction id reused by provider, merge requires manual review").
			WithDetail("conflictId", details.ID))
	case conflict.UseRemote:
		if err := o.store.UpsertTransaction(ctx, merged); err != nil {
			p.fail(errors.Classify(err).WithAccount(rec.AccountID))
			return
		}
		p.transactionsUpdated++
		if details != nil {
			p.conflictsResolved++
			o.recordConflict(ctx, details)
		}
	}
}

func (o *Orchestrator) recordConflict(ctx context.Context, details *conflict.Details) {
	if o.conflicts == nil || details == nil {
		return
	}
	if err := o.conflicts.RecordConflict(ctx, details); err != nil {
		o.log.Warn("failed to record conflict",
			zap.String("accountId", details.AccountID),
			zap.String("conflictId", details.ID),
			zap.Error(err))
	}
}

// retryOnce runs op and, on a retryable failure, waits out the backoff and
// tries exactly once more. A second failure is surfaced, not swallowed.
func retryOnce[T any](ctx context.Context, o *Orchestrator, accountID string, op func() (T, error)) (T, *errors.SyncError) {
	var zero T
	v, err := op()
	if err == nil {
		return v, nil
	}
	sErr := errors.Classify(err).WithAccount(accountID)
	if !sErr.Retryable() {
		return zero, sErr
	}

	delay := o.retryDelay(sErr)
	o.log.Debug("retrying provider call after backoff",
		zap.String("accountId", accountID),
		zap.String("code", sErr.Code),
		zap.Duration("delay", delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return zero, errors.NewUnknownError("sync cancelled during backoff", ctx.Err()).WithAccount(accountID)
	}

	v, err = op()
	if err != nil {
		return zero, errors.Classify(err).WithAccount(accountID)
	}
	return v, nil
}

func (o *Orchestrator) retryDelay(sErr *errors.SyncError) time.Duration {
	if sErr.Code == errors.CodeRateLimit {
		if sErr.RetryAfter > 0 {
			return sErr.RetryAfter
		}
		return o.opts.RateLimitDelay
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.opts.BackoffInitialInterval
	b.MaxInterval = o.opts.BackoffMaxInterval
	return b.NextBackOff()
}
