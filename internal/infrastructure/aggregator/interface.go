package aggregator

import (
	"context"
	"time"
)

// ClientInterface defines the methods required from the aggregator API client.
type ClientInterface interface {
	ExchangeToken(ctx context.Context, publicToken string) (*ExchangeTokenResponse, error)
	GetInstitution(ctx context.Context, accessToken string) (*Institution, error)
	GetAccounts(ctx context.Context, accessToken string) (*AccountsResponse, error)
	GetBalances(ctx context.Context, accessToken string, minUpdatedTime *time.Time) (*BalancesResponse, error)
	GetLiabilities(ctx context.Context, accessToken string) (*LiabilitiesResponse, error)
	GetTransactions(ctx context.Context, accessToken string, startDate, endDate time.Time, count, offset int) (*TransactionsResponse, error)
	CreateLinkToken(ctx context.Context, userID string) (*LinkTokenResponse, error)
	CreateUpdateLinkToken(ctx context.Context, userID, itemID string) (*LinkTokenResponse, error)
	RemoveItem(ctx context.Context, accessToken string) error
}
