package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/account"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/errors"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/sync"
	"github.com/odaialmoqa/north-api-clean-sub010/internal/domain/transaction"
)

const defaultTimeout = 30 * time.Second

// Config configures the provider HTTP client
type Config struct {
	BaseURL    string
	PageSize   int
	HTTPClient *http.Client
}

// HTTPGateway talks to the aggregation provider's JSON API. Each linked
// user has one access token, passed per request.
type HTTPGateway struct {
	baseURL  string
	pageSize int
	http     *http.Client
	logger   *slog.Logger
}

var _ sync.ProviderGateway = (*HTTPGateway)(nil)

// NewHTTPGateway creates a new provider gateway
func NewHTTPGateway(cfg Config, logger *slog.Logger) *HTTPGateway {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPGateway{
		baseURL:  cfg.BaseURL,
		pageSize: cfg.PageSize,
		http:     httpClient,
		logger:   logger,
	}
}

// FetchAccounts retrieves the provider's current snapshots of every account
// reachable with the credential
func (g *HTTPGateway) FetchAccounts(ctx context.Context, credential string) ([]*account.Snapshot, error) {
	req := accountsListRequest{AccessToken: credential}
	var resp accountsListResponse
	if err := g.post(ctx, "/accounts/list", req, &resp); err != nil {
		return nil, err
	}

	snaps := make([]*account.Snapshot, 0, len(resp.Accounts))
	for _, wa := range resp.Accounts {
		snaps = append(snaps, toSnapshot(wa))
	}
	return snaps, nil
}

// FetchTransactions retrieves one page of the account's transactions,
// oldest first, optionally bounded by the window
func (g *HTTPGateway) FetchTransactions(ctx context.Context, credential, accountID string, window sync.Window, pageToken string) (*sync.TransactionPage, error) {
	req := transactionsListRequest{
		AccessToken: credential,
		AccountID:   accountID,
		PageSize:    g.pageSize,
		PageToken:   pageToken,
	}
	if !window.Start.IsZero() {
		req.StartDate = window.Start.UTC().Format(time.RFC3339)
	}
	if !window.End.IsZero() {
		req.EndDate = window.End.UTC().Format(time.RFC3339)
	}

	var resp transactionsListResponse
	if err := g.post(ctx, "/transactions/list", req, &resp); err != nil {
		return nil, err
	}

	page := &sync.TransactionPage{NextPageToken: resp.NextPageToken}
	page.Records = make([]*transaction.Transaction, 0, len(resp.Transactions))
	for _, wt := range resp.Transactions {
		page.Records = append(page.Records, toTransaction(wt))
	}
	return page, nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.NewUnknownError("failed to marshal provider request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.NewUnknownError("failed to build provider request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return errors.NewNetworkError(fmt.Sprintf("provider request %s failed", path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return g.statusError(path, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewNetworkError(fmt.Sprintf("failed to decode provider response from %s", path), err)
	}
	return nil
}

// statusError maps a non-200 provider response onto the sync error taxonomy
func (g *HTTPGateway) statusError(path string, resp *http.Response) error {
	var body errorResponse
	if raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		_ = json.Unmarshal(raw, &body)
	}
	msg := body.ErrorMessage
	if msg == "" {
		msg = fmt.Sprintf("provider returned status %d from %s", resp.StatusCode, path)
	}
	g.logger.Warn("provider request rejected",
		"path", path,
		"status", resp.StatusCode,
		"errorCode", body.ErrorCode)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.NewAuthenticationError("", msg)
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.NewRateLimitError(retryAfter(resp))
	case resp.StatusCode == http.StatusBadRequest:
		return errors.NewValidationError(msg)
	case resp.StatusCode >= 500:
		return errors.NewNetworkError(msg, nil)
	default:
		return errors.NewUnknownError(msg, nil)
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func toSnapshot(wa wireAccount) *account.Snapshot {
	snap := &account.Snapshot{
		AccountID:       wa.AccountID,
		InstitutionID:   wa.InstitutionID,
		InstitutionName: wa.InstitutionName,
		Type:            account.Type(wa.AccountType),
		Balance:         account.Money{Amount: wa.Balance.Amount, Currency: wa.Balance.Currency},
		Active:          wa.Active,
		AsOf:            wa.AsOf,
	}
	if wa.AvailableBalance != nil {
		snap.AvailableBalance = &account.Money{
			Amount:   wa.AvailableBalance.Amount,
			Currency: wa.AvailableBalance.Currency,
		}
	}
	return snap
}

func toTransaction(wt wireTransaction) *transaction.Transaction {
	return &transaction.Transaction{
		ID:                wt.TransactionID,
		AccountID:         wt.AccountID,
		Amount:            account.Money{Amount: wt.Amount.Amount, Currency: wt.Amount.Currency},
		PostedAt:          wt.PostedAt,
		Description:       wt.Description,
		Category:          wt.Category,
		Pending:           wt.Pending,
		ProviderUpdatedAt: wt.UpdatedAt,
		RawCategoryID:     wt.RawCategoryID,
	}
}
