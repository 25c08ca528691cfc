package cardsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"cartera/internal/domain/card"
	"cartera/internal/domain/connection"
	"cartera/internal/domain/cycle"
	"cartera/internal/domain/transaction"
	"cartera/internal/infrastructure/aggregator"
	"cartera/internal/infrastructure/crypto"
)

// Outcome statuses for one connection sync.
const (
	OutcomeSucceeded         = "succeeded"
	OutcomeDegraded          = "degraded"
	OutcomeReconnectRequired = "reconnect_required"
	OutcomeFailed            = "failed"
)

// SyncOutcome summarizes one connection sync attempt.
type SyncOutcome struct {
	ConnectionID        int64
	Status              string
	CardsSynced         int
	TransactionsStored  int
	TransactionsSkipped int
	CyclesReconciled    int
	Errors              []string
}

func (o *SyncOutcome) recordError(err error) {
	o.Errors = append(o.Errors, err.Error())
}

// transactionPageSize bounds how many stored transactions are loaded per query
// when rebuilding billing cycles.
const transactionPageSize = 1000

// Service orchestrates a full sync for one connection: accounts, card field
// extraction, transactions, and billing-cycle reconciliation.
type Service struct {
	connections  connection.Repository
	cards        card.Repository
	aprs         card.APRRepository
	transactions transaction.Repository
	cycles       cycle.Repository
	leases       LeaseRepository

	client      aggregator.ClientInterface
	encryptor   *crypto.Encryptor
	classifier  *Classifier
	fetcher     *Fetcher
	accumulator *Accumulator
	retry       *Executor

	lookbackMonths int
	leaseTTL       time.Duration
	holder         string

	now func() time.Time
}

// ServiceParams wires a Service.
type ServiceParams struct {
	Connections  connection.Repository
	Cards        card.Repository
	APRs         card.APRRepository
	Transactions transaction.Repository
	Cycles       cycle.Repository
	Leases       LeaseRepository

	Client     aggregator.ClientInterface
	Encryptor  *crypto.Encryptor
	Classifier *Classifier
	Fetcher    *Fetcher
	Retry      *Executor

	LookbackMonths int
	LeaseTTL       time.Duration
	Holder         string
}

func NewService(p ServiceParams) *Service {
	if p.Retry == nil {
		p.Retry = NewExecutor(RetryConfig{})
	}
	return &Service{
		connections:    p.Connections,
		cards:          p.Cards,
		aprs:           p.APRs,
		transactions:   p.Transactions,
		cycles:         p.Cycles,
		leases:         p.Leases,
		client:         p.Client,
		encryptor:      p.Encryptor,
		classifier:     p.Classifier,
		fetcher:        p.Fetcher,
		accumulator:    NewAccumulator(p.Transactions),
		retry:          p.Retry,
		lookbackMonths: p.LookbackMonths,
		leaseTTL:       p.LeaseTTL,
		holder:         p.Holder,
		now:            time.Now,
	}
}

// SyncConnection runs one full sync for a connection. It always returns an
// outcome; the error is non-nil only when nothing at all could be done.
func (s *Service) SyncConnection(ctx context.Context, connectionID int64) (*SyncOutcome, error) {
	outcome := &SyncOutcome{ConnectionID: connectionID, Status: OutcomeFailed}

	acquired, err := s.leases.Acquire(ctx, connectionID, s.holder, s.leaseTTL)
	if err != nil {
		return outcome, fmt.Errorf("acquiring sync lease for connection %d: %w", connectionID, err)
	}
	if !acquired {
		return outcome, fmt.Errorf("connection %d: %w", connectionID, ErrSyncInProgress)
	}
	defer func() {
		if rerr := s.leases.Release(context.WithoutCancel(ctx), connectionID, s.holder); rerr != nil {
			log.Printf("Failed to release sync lease for connection %d: %v", connectionID, rerr)
		}
	}()

	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return outcome, fmt.Errorf("loading connection %d: %w", connectionID, err)
	}
	if conn == nil {
		return outcome, fmt.Errorf("connection %d not found", connectionID)
	}

	accessToken, err := s.encryptor.Decrypt(conn.AccessToken)
	if err != nil {
		s.markError(ctx, conn.ID, "DECRYPT_FAILED", err)
		return outcome, fmt.Errorf("decrypting access token for connection %d: %w", connectionID, err)
	}

	err = s.run(ctx, conn, accessToken, outcome)
	switch {
	case errors.Is(err, ErrReconnectRequired):
		outcome.Status = OutcomeReconnectRequired
		s.markExpired(ctx, conn.ID, err)
		return outcome, nil
	case err != nil:
		outcome.recordError(err)
		s.markError(ctx, conn.ID, "SYNC_FAILED", err)
		return outcome, err
	}

	if len(outcome.Errors) > 0 {
		outcome.Status = OutcomeDegraded
	} else {
		outcome.Status = OutcomeSucceeded
	}
	if uerr := s.connections.UpdateStatus(ctx, conn.ID, connection.StatusActive, nil, nil); uerr != nil {
		log.Printf("Failed to mark connection %d active: %v", conn.ID, uerr)
	}
	if terr := s.connections.TouchLastSynced(ctx, conn.ID, s.now()); terr != nil {
		log.Printf("Failed to record sync time for connection %d: %v", conn.ID, terr)
	}

	log.Printf("Sync %s for connection %d: %d cards, %d transactions stored, %d cycles",
		outcome.Status, conn.ID, outcome.CardsSynced, outcome.TransactionsStored, outcome.CyclesReconciled)
	return outcome, nil
}

func (s *Service) run(ctx context.Context, conn *connection.Connection, accessToken string, outcome *SyncOutcome) error {
	institutionName := s.resolveInstitution(ctx, conn, accessToken)

	cardsByExternal, err := s.syncCards(ctx, conn, accessToken, institutionName, outcome)
	if err != nil {
		return err
	}
	outcome.CardsSynced = len(cardsByExternal)

	// The fetch window is institution-wide, so classify on the institution
	// name alone; per-card signals matter only for the extraction cascades.
	policy := s.classifier.Classify(institutionName, "")

	end := s.now()
	start := end.AddDate(0, -s.lookbackMonths, 0)
	fetched, err := s.fetcher.FetchTransactions(ctx, accessToken, start, end, policy)
	if err != nil {
		return err
	}
	if fetched.Status == FetchPartialFailure {
		outcome.Errors = append(outcome.Errors, fetched.Errors...)
	}

	acc, err := s.accumulator.Accumulate(ctx, conn.ID, cardsByExternal, fetched.Transactions, fetched.WindowStart)
	if err != nil {
		return err
	}
	outcome.TransactionsStored = acc.Stored
	outcome.TransactionsSkipped = acc.Skipped

	for _, c := range cardsByExternal {
		n, cerr := s.reconcileCycles(ctx, c)
		if cerr != nil {
			log.Printf("Cycle reconciliation failed for card %d: %v", c.ID, cerr)
			outcome.recordError(fmt.Errorf("card %d cycles: %w", c.ID, cerr))
			continue
		}
		outcome.CyclesReconciled += n
	}
	return nil
}

// resolveInstitution returns the institution name, refreshing the stored
// identity when the aggregator reports one and ours is missing or stale.
func (s *Service) resolveInstitution(ctx context.Context, conn *connection.Connection, accessToken string) string {
	var inst *aggregator.Institution
	err := s.retry.Do(ctx, "item/institution", func(ctx context.Context) error {
		var callErr error
		inst, callErr = s.client.GetInstitution(ctx, accessToken)
		return callErr
	})
	if err != nil || inst == nil || inst.Name == "" {
		if err != nil {
			log.Printf("Institution lookup failed for connection %d, using stored name %q: %v",
				conn.ID, conn.InstitutionName, err)
		}
		return conn.InstitutionName
	}
	if inst.Name != conn.InstitutionName || inst.InstitutionID != conn.InstitutionID {
		if uerr := s.connections.UpdateInstitution(ctx, conn.ID, inst.InstitutionID, inst.Name); uerr != nil {
			log.Printf("Failed to update institution for connection %d: %v", conn.ID, uerr)
		}
	}
	return inst.Name
}

// syncCards pulls accounts, liabilities, and balances, runs the extraction
// cascades, upserts every credit-card account, and collapses duplicates. The
// returned map is keyed by external account id and contains only canonical
// cards.
func (s *Service) syncCards(ctx context.Context, conn *connection.Connection, accessToken, institutionName string, outcome *SyncOutcome) (map[string]*card.Card, error) {
	var accountsResp *aggregator.AccountsResponse
	err := s.retry.Do(ctx, "accounts/get", func(ctx context.Context) error {
		var callErr error
		accountsResp, callErr = s.client.GetAccounts(ctx, accessToken)
		return callErr
	})
	if err != nil {
		if aggregator.IsReconnectRequired(err) {
			return nil, fmt.Errorf("fetching accounts: %w", ErrReconnectRequired)
		}
		return nil, fmt.Errorf("fetching accounts: %w", err)
	}

	// Liabilities and balances enrich the cascade but are optional: plenty of
	// institutions serve accounts yet fail these endpoints. Any failure here,
	// exhausted retries included, degrades the sync instead of aborting it.
	liabilitiesByAccount := map[string]*aggregator.CreditLiability{}
	var liabilitiesResp *aggregator.LiabilitiesResponse
	if lerr := s.retry.Do(ctx, "liabilities/get", func(ctx context.Context) error {
		var callErr error
		liabilitiesResp, callErr = s.client.GetLiabilities(ctx, accessToken)
		return callErr
	}); lerr != nil {
		log.Printf("Liabilities unavailable for connection %d: %v", conn.ID, lerr)
		outcome.recordError(fmt.Errorf("liabilities unavailable: %w", lerr))
	} else {
		for i := range liabilitiesResp.Liabilities.Credit {
			l := &liabilitiesResp.Liabilities.Credit[i]
			liabilitiesByAccount[l.AccountID] = l
		}
	}

	balancesByAccount := map[string]*aggregator.Account{}
	var balancesResp *aggregator.BalancesResponse
	if berr := s.retry.Do(ctx, "accounts/balance/get", func(ctx context.Context) error {
		var callErr error
		balancesResp, callErr = s.client.GetBalances(ctx, accessToken, nil)
		return callErr
	}); berr != nil {
		log.Printf("Balances unavailable for connection %d: %v", conn.ID, berr)
		outcome.recordError(fmt.Errorf("balances unavailable: %w", berr))
	} else {
		for i := range balancesResp.Accounts {
			a := &balancesResp.Accounts[i]
			balancesByAccount[a.AccountID] = a
		}
	}

	now := s.now()
	for i := range accountsResp.Accounts {
		account := &accountsResp.Accounts[i]
		if !account.IsCreditCard() {
			continue
		}
		if err := s.syncCard(ctx, conn, institutionName, account,
			liabilitiesByAccount[account.AccountID], balancesByAccount[account.AccountID], now); err != nil {
			log.Printf("Card sync failed for account %s: %v", account.AccountID, err)
			outcome.recordError(fmt.Errorf("account %s: %w", account.AccountID, err))
		}
	}

	return s.collapseDuplicates(ctx, conn.ID)
}

func (s *Service) syncCard(ctx context.Context, conn *connection.Connection, institutionName string, account *aggregator.Account, liability *aggregator.CreditLiability, balanceAccount *aggregator.Account, now time.Time) error {
	existing, err := s.cards.GetByExternalID(ctx, account.AccountID)
	if err != nil {
		return fmt.Errorf("loading existing card: %w", err)
	}

	var earliest *time.Time
	if existing != nil {
		earliest, err = s.transactions.EarliestDateByCard(ctx, existing.ID)
		if err != nil {
			return fmt.Errorf("loading earliest transaction: %w", err)
		}
	}

	in := &ExtractionInput{
		Policy:              s.classifier.Classify(institutionName, account.Name),
		Account:             account,
		Liability:           liability,
		BalanceAccount:      balanceAccount,
		Existing:            existing,
		EarliestTransaction: earliest,
		Now:                 now,
	}
	limit := ExtractCreditLimit(in)
	openDate := ExtractOpenDate(in)

	params := card.UpsertParams{
		ConnectionID:      conn.ID,
		ExternalAccountID: account.AccountID,
		Name:              account.Name,
		CreditLimit:       limit.Limit,
		ClearManualLimit:  limit.ClearManualOverride,
		OpenDate:          &openDate.OpenDate,
	}
	if account.OfficialName != nil && *account.OfficialName != "" {
		params.OfficialName = account.OfficialName
	}
	if account.Mask != nil && *account.Mask != "" {
		params.Mask = account.Mask
	}

	balances := pickBalances(balanceAccount, account)
	if v, ok := balances.Current.Float(); ok {
		params.CurrentBalance = &v
	}
	if v, ok := balances.Available.Float(); ok {
		params.AvailableBalance = &v
	}

	if liability != nil {
		if v, ok := liability.LastStatementBalance.Float(); ok {
			params.LastStatementBalance = &v
		}
		if d, derr := liability.GetLastStatementIssueDate(); derr == nil && d != nil {
			params.LastStatementDate = d
		}
		if v, ok := liability.MinimumPaymentAmount.Float(); ok {
			params.MinimumPayment = &v
		}
		if d, derr := liability.GetNextPaymentDueDate(); derr == nil && d != nil {
			params.NextPaymentDueDate = d
		}
	}

	stored, err := s.cards.Upsert(ctx, params)
	if err != nil {
		return fmt.Errorf("upserting card: %w", err)
	}

	if liability != nil && len(liability.APRs) > 0 {
		aprs := make([]card.APR, 0, len(liability.APRs))
		for _, a := range liability.APRs {
			pct, ok := a.Percentage.Float()
			if !ok {
				continue
			}
			snapshot := card.APR{CardID: stored.ID, APRType: a.APRType, Percentage: pct}
			if bal, bok := a.BalanceSubjectToAPR.Float(); bok {
				snapshot.BalanceSubjectToAPR = &bal
			}
			aprs = append(aprs, snapshot)
		}
		if err := s.aprs.ReplaceForCard(ctx, stored.ID, aprs); err != nil {
			return fmt.Errorf("replacing APR snapshots: %w", err)
		}
	}
	return nil
}

// collapseDuplicates applies the two-pass duplicate merge and returns the
// canonical card set keyed by external account id.
func (s *Service) collapseDuplicates(ctx context.Context, connectionID int64) (map[string]*card.Card, error) {
	cards, err := s.cards.ListByConnectionID(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("listing cards: %w", err)
	}

	merges := card.PlanMerges(cards)
	for _, m := range merges {
		for _, dup := range m.DuplicateIDs {
			if err := s.cards.ReassignChildren(ctx, dup, m.CanonicalID); err != nil {
				return nil, fmt.Errorf("reassigning children of card %d: %w", dup, err)
			}
			if err := s.cards.DeleteCard(ctx, dup); err != nil {
				return nil, fmt.Errorf("removing duplicate card %d: %w", dup, err)
			}
			log.Printf("Merged duplicate card %d into %d", dup, m.CanonicalID)
		}
	}

	canonical := card.CanonicalIDMap(merges)
	result := make(map[string]*card.Card, len(cards))
	for _, c := range cards {
		if _, isDup := canonical[c.ID]; isDup {
			continue
		}
		result[c.ExternalAccountID] = c
	}
	return result, nil
}

// reconcileCycles rebuilds the billing-cycle set for one card from its full
// stored transaction history, merges it with what is already persisted, and
// replaces the stored set with the canonical result.
func (s *Service) reconcileCycles(ctx context.Context, c *card.Card) (int, error) {
	var points []cycle.TxPoint
	for offset := 0; ; offset += transactionPageSize {
		page, err := s.transactions.ListByCardID(ctx, c.ID, transactionPageSize, offset)
		if err != nil {
			return 0, fmt.Errorf("listing transactions: %w", err)
		}
		for _, tx := range page {
			if tx.NeedsReview {
				continue
			}
			points = append(points, cycle.TxPoint{Date: tx.Date, Amount: tx.Amount})
		}
		if len(page) < transactionPageSize {
			break
		}
	}

	built := cycle.BuildFromTransactions(c.ID, points, c.LastStatementDate)
	s.attachClosingData(built, c)

	stored, err := s.cycles.ListByCardID(ctx, c.ID)
	if err != nil {
		return 0, fmt.Errorf("listing stored cycles: %w", err)
	}

	// Stored cycles go first so an exact tie keeps what we already have.
	reconciled := cycle.Reconcile(append(stored, built...))
	if err := s.cycles.ReplaceForCard(ctx, c.ID, reconciled); err != nil {
		return 0, fmt.Errorf("replacing cycles: %w", err)
	}
	return len(reconciled), nil
}

// attachClosingData copies the card's latest statement figures onto the built
// cycle whose end date matches the statement date.
func (s *Service) attachClosingData(built []*cycle.BillingCycle, c *card.Card) {
	if c.LastStatementDate == nil {
		return
	}
	target := c.LastStatementDate.Format("2006-01-02")
	for _, bc := range built {
		if bc.EndDate.Format("2006-01-02") != target {
			continue
		}
		if c.LastStatementBalance != nil {
			bal := decimal.NewFromFloat(*c.LastStatementBalance)
			bc.StatementBalance = &bal
		}
		if c.MinimumPayment != nil {
			minDue := decimal.NewFromFloat(*c.MinimumPayment)
			bc.MinimumPayment = &minDue
		}
		if c.NextPaymentDueDate != nil {
			d := *c.NextPaymentDueDate
			bc.DueDate = &d
		}
		return
	}
}

func pickBalances(balanceAccount, account *aggregator.Account) *aggregator.Balances {
	if balanceAccount != nil {
		return &balanceAccount.Balances
	}
	if account != nil {
		return &account.Balances
	}
	return &aggregator.Balances{}
}

func (s *Service) markError(ctx context.Context, connectionID int64, code string, err error) {
	msg := err.Error()
	if uerr := s.connections.UpdateStatus(ctx, connectionID, connection.StatusError, &code, &msg); uerr != nil {
		log.Printf("Failed to mark connection %d errored: %v", connectionID, uerr)
	}
}

func (s *Service) markExpired(ctx context.Context, connectionID int64, err error) {
	code := "ITEM_LOGIN_REQUIRED"
	msg := err.Error()
	if uerr := s.connections.UpdateStatus(ctx, connectionID, connection.StatusExpired, &code, &msg); uerr != nil {
		log.Printf("Failed to mark connection %d expired: %v", connectionID, uerr)
	}
}
