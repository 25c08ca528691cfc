package cardsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cartera/internal/domain/card"
	"cartera/internal/domain/connection"
	"cartera/internal/domain/cycle"
	"cartera/internal/domain/transaction"
	"cartera/internal/infrastructure/aggregator"
)

// mockClient implements aggregator.ClientInterface with overridable funcs.
// Unset methods fail loudly so a test only wires what it exercises.
type mockClient struct {
	ExchangeTokenFunc         func(ctx context.Context, publicToken string) (*aggregator.ExchangeTokenResponse, error)
	GetInstitutionFunc        func(ctx context.Context, accessToken string) (*aggregator.Institution, error)
	GetAccountsFunc           func(ctx context.Context, accessToken string) (*aggregator.AccountsResponse, error)
	GetBalancesFunc           func(ctx context.Context, accessToken string, minUpdatedTime *time.Time) (*aggregator.BalancesResponse, error)
	GetLiabilitiesFunc        func(ctx context.Context, accessToken string) (*aggregator.LiabilitiesResponse, error)
	GetTransactionsFunc       func(ctx context.Context, accessToken string, startDate, endDate time.Time, count, offset int) (*aggregator.TransactionsResponse, error)
	CreateLinkTokenFunc       func(ctx context.Context, userID string) (*aggregator.LinkTokenResponse, error)
	CreateUpdateLinkTokenFunc func(ctx context.Context, userID, itemID string) (*aggregator.LinkTokenResponse, error)
	RemoveItemFunc            func(ctx context.Context, accessToken string) error
}

var _ aggregator.ClientInterface = (*mockClient)(nil)

func (m *mockClient) ExchangeToken(ctx context.Context, publicToken string) (*aggregator.ExchangeTokenResponse, error) {
	if m.ExchangeTokenFunc == nil {
		return nil, fmt.Errorf("ExchangeToken not wired")
	}
	return m.ExchangeTokenFunc(ctx, publicToken)
}

func (m *mockClient) GetInstitution(ctx context.Context, accessToken string) (*aggregator.Institution, error) {
	if m.GetInstitutionFunc == nil {
		return nil, fmt.Errorf("GetInstitution not wired")
	}
	return m.GetInstitutionFunc(ctx, accessToken)
}

func (m *mockClient) GetAccounts(ctx context.Context, accessToken string) (*aggregator.AccountsResponse, error) {
	if m.GetAccountsFunc == nil {
		return nil, fmt.Errorf("GetAccounts not wired")
	}
	return m.GetAccountsFunc(ctx, accessToken)
}

func (m *mockClient) GetBalances(ctx context.Context, accessToken string, minUpdatedTime *time.Time) (*aggregator.BalancesResponse, error) {
	if m.GetBalancesFunc == nil {
		return nil, fmt.Errorf("GetBalances not wired")
	}
	return m.GetBalancesFunc(ctx, accessToken, minUpdatedTime)
}

func (m *mockClient) GetLiabilities(ctx context.Context, accessToken string) (*aggregator.LiabilitiesResponse, error) {
	if m.GetLiabilitiesFunc == nil {
		return nil, fmt.Errorf("GetLiabilities not wired")
	}
	return m.GetLiabilitiesFunc(ctx, accessToken)
}

func (m *mockClient) GetTransactions(ctx context.Context, accessToken string, startDate, endDate time.Time, count, offset int) (*aggregator.TransactionsResponse, error) {
	if m.GetTransactionsFunc == nil {
		return nil, fmt.Errorf("GetTransactions not wired")
	}
	return m.GetTransactionsFunc(ctx, accessToken, startDate, endDate, count, offset)
}

func (m *mockClient) CreateLinkToken(ctx context.Context, userID string) (*aggregator.LinkTokenResponse, error) {
	if m.CreateLinkTokenFunc == nil {
		return nil, fmt.Errorf("CreateLinkToken not wired")
	}
	return m.CreateLinkTokenFunc(ctx, userID)
}

func (m *mockClient) CreateUpdateLinkToken(ctx context.Context, userID, itemID string) (*aggregator.LinkTokenResponse, error) {
	if m.CreateUpdateLinkTokenFunc == nil {
		return nil, fmt.Errorf("CreateUpdateLinkToken not wired")
	}
	return m.CreateUpdateLinkTokenFunc(ctx, userID, itemID)
}

func (m *mockClient) RemoveItem(ctx context.Context, accessToken string) error {
	if m.RemoveItemFunc == nil {
		return fmt.Errorf("RemoveItem not wired")
	}
	return m.RemoveItemFunc(ctx, accessToken)
}

// memTransactionRepo is an in-memory transaction.Repository for accumulator
// and service tests.
type memTransactionRepo struct {
	mu   sync.Mutex
	rows map[string]*transaction.Transaction

	// failBatch forces UpsertBatch to error so the per-record fallback runs.
	failBatch bool
	// failIDs makes single-record Upsert fail for these ids.
	failIDs map[string]bool
	// failCountOlderThan makes CountOlderThan return this error.
	failCountOlderThan error
}

var _ transaction.Repository = (*memTransactionRepo)(nil)

func newMemTransactionRepo() *memTransactionRepo {
	return &memTransactionRepo{rows: map[string]*transaction.Transaction{}, failIDs: map[string]bool{}}
}

func (r *memTransactionRepo) GetByID(ctx context.Context, id string) (*transaction.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id], nil
}

func (r *memTransactionRepo) ListByCardID(ctx context.Context, cardID int64, limit, offset int) ([]*transaction.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*transaction.Transaction
	for _, tx := range r.rows {
		if tx.CardID != nil && *tx.CardID == cardID {
			out = append(out, tx)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memTransactionRepo) CountByCardID(ctx context.Context, cardID int64) (int64, error) {
	rows, _ := r.ListByCardID(ctx, cardID, 0, 0)
	return int64(len(rows)), nil
}

func (r *memTransactionRepo) apply(p transaction.UpsertParams) {
	r.rows[p.ID] = &transaction.Transaction{
		ID:           p.ID,
		ConnectionID: p.ConnectionID,
		CardID:       p.CardID,
		Amount:       p.Amount,
		Date:         p.Date,
		Name:         p.Name,
		MerchantName: p.MerchantName,
		Category:     p.Category,
		Subcategory:  p.Subcategory,
		Pending:      p.Pending,
		NeedsReview:  p.NeedsReview,
	}
}

func (r *memTransactionRepo) Upsert(ctx context.Context, p transaction.UpsertParams) (*transaction.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failIDs[p.ID] {
		return nil, fmt.Errorf("forced failure for %s", p.ID)
	}
	r.apply(p)
	return r.rows[p.ID], nil
}

func (r *memTransactionRepo) UpsertBatch(ctx context.Context, params []transaction.UpsertParams) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failBatch {
		return 0, fmt.Errorf("forced batch failure")
	}
	for _, p := range params {
		r.apply(p)
	}
	return len(params), nil
}

func (r *memTransactionRepo) CountOlderThan(ctx context.Context, connectionID int64, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCountOlderThan != nil {
		return 0, r.failCountOlderThan
	}
	var n int64
	for _, tx := range r.rows {
		if tx.ConnectionID == connectionID && tx.Date.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (r *memTransactionRepo) EarliestDateByCard(ctx context.Context, cardID int64) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var earliest *time.Time
	for _, tx := range r.rows {
		if tx.CardID == nil || *tx.CardID != cardID {
			continue
		}
		if earliest == nil || tx.Date.Before(*earliest) {
			d := tx.Date
			earliest = &d
		}
	}
	return earliest, nil
}

// memCardRepo is an in-memory card.Repository.
type memCardRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*card.Card
}

var _ card.Repository = (*memCardRepo)(nil)

func newMemCardRepo() *memCardRepo {
	return &memCardRepo{nextID: 1, rows: map[int64]*card.Card{}}
}

func (r *memCardRepo) GetByID(ctx context.Context, id int64) (*card.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id], nil
}

func (r *memCardRepo) GetByExternalID(ctx context.Context, externalAccountID string) (*card.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.rows {
		if c.ExternalAccountID == externalAccountID {
			return c, nil
		}
	}
	return nil, nil
}

func (r *memCardRepo) ListByConnectionID(ctx context.Context, connectionID int64) ([]*card.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*card.Card
	for _, c := range r.rows {
		if c.ConnectionID == connectionID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memCardRepo) Upsert(ctx context.Context, p card.UpsertParams) (*card.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.rows {
		if c.ExternalAccountID == p.ExternalAccountID {
			applyCardParams(c, p)
			return c, nil
		}
	}
	c := &card.Card{ID: r.nextID, ConnectionID: p.ConnectionID, ExternalAccountID: p.ExternalAccountID, CreatedAt: time.Now()}
	r.nextID++
	applyCardParams(c, p)
	r.rows[c.ID] = c
	return c, nil
}

func applyCardParams(c *card.Card, p card.UpsertParams) {
	c.Name = p.Name
	c.OfficialName = p.OfficialName
	c.Mask = p.Mask
	c.CurrentBalance = p.CurrentBalance
	c.AvailableBalance = p.AvailableBalance
	if p.CreditLimit != nil {
		c.CreditLimit = p.CreditLimit
	}
	if p.ClearManualLimit {
		c.ManualLimit = nil
	}
	c.LastStatementBalance = p.LastStatementBalance
	c.LastStatementDate = p.LastStatementDate
	c.NextPaymentDueDate = p.NextPaymentDueDate
	c.MinimumPayment = p.MinimumPayment
	c.OpenDate = p.OpenDate
	c.UpdatedAt = time.Now()
}

func (r *memCardRepo) SetManualLimit(ctx context.Context, id int64, limit *float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.rows[id]; ok {
		c.ManualLimit = limit
	}
	return nil
}

func (r *memCardRepo) ReassignChildren(ctx context.Context, fromCardID, toCardID int64) error {
	return nil
}

func (r *memCardRepo) DeleteCard(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

// memAPRRepo is an in-memory card.APRRepository.
type memAPRRepo struct {
	mu     sync.Mutex
	byCard map[int64][]card.APR
}

var _ card.APRRepository = (*memAPRRepo)(nil)

func newMemAPRRepo() *memAPRRepo {
	return &memAPRRepo{byCard: map[int64][]card.APR{}}
}

func (r *memAPRRepo) ListByCardID(ctx context.Context, cardID int64) ([]*card.APR, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*card.APR
	for i := range r.byCard[cardID] {
		out = append(out, &r.byCard[cardID][i])
	}
	return out, nil
}

func (r *memAPRRepo) ReplaceForCard(ctx context.Context, cardID int64, aprs []card.APR) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCard[cardID] = aprs
	return nil
}

// memCycleRepo is an in-memory cycle.Repository.
type memCycleRepo struct {
	mu     sync.Mutex
	byCard map[int64][]*cycle.BillingCycle
}

var _ cycle.Repository = (*memCycleRepo)(nil)

func newMemCycleRepo() *memCycleRepo {
	return &memCycleRepo{byCard: map[int64][]*cycle.BillingCycle{}}
}

func (r *memCycleRepo) ListByCardID(ctx context.Context, cardID int64) ([]*cycle.BillingCycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byCard[cardID], nil
}

func (r *memCycleRepo) Upsert(ctx context.Context, c *cycle.BillingCycle) (*cycle.BillingCycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCard[c.CardID] = append(r.byCard[c.CardID], c)
	return c, nil
}

func (r *memCycleRepo) ReplaceForCard(ctx context.Context, cardID int64, cycles []*cycle.BillingCycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCard[cardID] = cycles
	return nil
}

// memConnectionRepo is an in-memory connection.Repository.
type memConnectionRepo struct {
	mu   sync.Mutex
	rows map[int64]*connection.Connection
}

var _ connection.Repository = (*memConnectionRepo)(nil)

func newMemConnectionRepo(conns ...*connection.Connection) *memConnectionRepo {
	r := &memConnectionRepo{rows: map[int64]*connection.Connection{}}
	for _, c := range conns {
		r.rows[c.ID] = c
	}
	return r
}

func (r *memConnectionRepo) Create(ctx context.Context, p connection.CreateParams) (*connection.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := int64(len(r.rows) + 1)
	c := &connection.Connection{
		ID: id, UserID: p.UserID, ItemID: p.ItemID,
		InstitutionID: p.InstitutionID, InstitutionName: p.InstitutionName,
		AccessToken: p.AccessToken, Status: connection.StatusActive,
	}
	r.rows[id] = c
	return c, nil
}

func (r *memConnectionRepo) GetByID(ctx context.Context, id int64) (*connection.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id], nil
}

func (r *memConnectionRepo) GetByItemID(ctx context.Context, itemID string) (*connection.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.rows {
		if c.ItemID == itemID {
			return c, nil
		}
	}
	return nil, nil
}

func (r *memConnectionRepo) ListActive(ctx context.Context) ([]*connection.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*connection.Connection
	for _, c := range r.rows {
		if c.Status == connection.StatusActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memConnectionRepo) UpdateStatus(ctx context.Context, id int64, status string, errorCode, errorMessage *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.rows[id]; ok {
		c.Status = status
		c.LastErrorCode = errorCode
		c.LastErrorMessage = errorMessage
	}
	return nil
}

func (r *memConnectionRepo) UpdateAccessToken(ctx context.Context, id int64, encryptedToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.rows[id]; ok {
		c.AccessToken = encryptedToken
	}
	return nil
}

func (r *memConnectionRepo) TouchLastSynced(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.rows[id]; ok {
		c.LastSyncedAt = &at
	}
	return nil
}

func (r *memConnectionRepo) UpdateInstitution(ctx context.Context, id int64, institutionID, institutionName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.rows[id]; ok {
		c.InstitutionID = institutionID
		c.InstitutionName = institutionName
	}
	return nil
}

// memLeaseRepo is an in-memory LeaseRepository.
type memLeaseRepo struct {
	mu      sync.Mutex
	holders map[int64]string
	// denyAll simulates a lease held elsewhere.
	denyAll bool
}

var _ LeaseRepository = (*memLeaseRepo)(nil)

func newMemLeaseRepo() *memLeaseRepo {
	return &memLeaseRepo{holders: map[int64]string{}}
}

func (r *memLeaseRepo) Acquire(ctx context.Context, connectionID int64, holder string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.denyAll {
		return false, nil
	}
	if h, held := r.holders[connectionID]; held && h != holder {
		return false, nil
	}
	r.holders[connectionID] = holder
	return true, nil
}

func (r *memLeaseRepo) Release(ctx context.Context, connectionID int64, holder string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.holders[connectionID] == holder {
		delete(r.holders, connectionID)
	}
	return nil
}
