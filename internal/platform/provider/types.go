package provider

import "time"

// Wire types for the aggregation provider's JSON API.

type accountsListRequest struct {
	AccessToken string `json:"accessToken"`
}

type accountsListResponse struct {
	Accounts []wireAccount `json:"accounts"`
}

type wireAccount struct {
	AccountID        string      `json:"accountId"`
	InstitutionID    string      `json:"institutionId"`
	InstitutionName  string      `json:"institutionName"`
	AccountType      string      `json:"accountType"`
	Balance          wireAmount  `json:"balance"`
	AvailableBalance *wireAmount `json:"availableBalance,omitempty"`
	Active           bool        `json:"active"`
	AsOf             time.Time   `json:"asOf"`
}

type wireAmount struct {
	// Amount is in the smallest currency unit (e.g. cents)
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type transactionsListRequest struct {
	AccessToken string `json:"accessToken"`
	AccountID   string `json:"accountId"`
	StartDate   string `json:"startDate,omitempty"`
	EndDate     string `json:"endDate,omitempty"`
	PageSize    int    `json:"pageSize,omitempty"`
	PageToken   string `json:"pageToken,omitempty"`
}

type transactionsListResponse struct {
	Transactions  []wireTransaction `json:"transactions"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

type wireTransaction struct {
	TransactionID string     `json:"transactionId"`
	AccountID     string     `json:"accountId"`
	Amount        wireAmount `json:"amount"`
	PostedAt      time.Time  `json:"postedAt"`
	Description   string     `json:"description"`
	Category      string     `json:"category,omitempty"`
	Pending       bool       `json:"pending"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	RawCategoryID string     `json:"rawCategoryId,omitempty"`
}

type errorResponse struct {
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}
