package escrow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/fees"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/models"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/payments"
)

// ---------------------------------------------------------------------------
// noopTx satisfies pgx.Tx for test use; only Commit/Rollback are called.
// ---------------------------------------------------------------------------

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// ---------------------------------------------------------------------------
// In-memory stores. mockEscrowStore.TransitionTx enforces real
// compare-and-swap semantics under a mutex, so the at-most-once settlement
// property is genuinely exercised.
// ---------------------------------------------------------------------------

type mockGigStore struct {
	mu   sync.Mutex
	gigs map[uuid.UUID]*models.Gig
}

func newMockGigStore(gigs ...*models.Gig) *mockGigStore {
	m := &mockGigStore{gigs: make(map[uuid.UUID]*models.Gig)}
	for _, g := range gigs {
		cp := *g
		m.gigs[g.ID] = &cp
	}
	return m
}

func (m *mockGigStore) GetByID(_ context.Context, id uuid.UUID) (*models.Gig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gigs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *g
	return &cp, nil
}

func (m *mockGigStore) MarkAssignedTx(_ context.Context, _ pgx.Tx, gigID, workerID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gigs[gigID]
	if !ok || g.Status != models.GigStatusOpen {
		return false, nil
	}
	g.Status = models.GigStatusAssigned
	g.PaymentStatus = models.PaymentStatusHeld
	g.AssignedWorkerID = &workerID
	return true, nil
}

func (m *mockGigStore) MarkDelivered(_ context.Context, gigID, workerID uuid.UUID, autoReleaseAt time.Time, deliveryLink *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gigs[gigID]
	if !ok || g.Status != models.GigStatusAssigned || g.AssignedWorkerID == nil || *g.AssignedWorkerID != workerID {
		return false, nil
	}
	now := time.Now()
	g.Status = models.GigStatusDelivered
	g.DeliveredAt = &now
	g.AutoReleaseAt = &autoReleaseAt
	g.DeliveryLink = deliveryLink
	return true, nil
}

func (m *mockGigStore) MarkCompletedTx(_ context.Context, _ pgx.Tx, gigID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gigs[gigID]
	if !ok {
		return pgx.ErrNoRows
	}
	g.Status = models.GigStatusCompleted
	g.PaymentStatus = models.PaymentStatusReleased
	return nil
}

func (m *mockGigStore) MarkDisputedTx(_ context.Context, _ pgx.Tx, gigID uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gigs[gigID]
	if !ok {
		return pgx.ErrNoRows
	}
	g.Status = models.GigStatusDisputed
	g.PaymentStatus = models.PaymentStatusDisputeHeld
	g.DisputeReason = &reason
	return nil
}

func (m *mockGigStore) MarkCancelledTx(_ context.Context, _ pgx.Tx, gigID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gigs[gigID]
	if !ok {
		return pgx.ErrNoRows
	}
	now := time.Now()
	g.Status = models.GigStatusCancelled
	g.PaymentStatus = models.PaymentStatusRefunded
	g.CancelledAt = &now
	return nil
}

func (m *mockGigStore) ListAutoReleasable(_ context.Context, now time.Time, limit int) ([]*models.Gig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Gig
	for _, g := range m.gigs {
		if g.Status != models.GigStatusDelivered || g.DisputeReason != nil {
			continue
		}
		if g.AutoReleaseAt == nil || !g.AutoReleaseAt.Before(now) {
			continue
		}
		cp := *g
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockGigStore) status(id uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gigs[id].Status
}

// ---

type mockEscrowStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.EscrowRecord
}

func newMockEscrowStore(recs ...*models.EscrowRecord) *mockEscrowStore {
	m := &mockEscrowStore{records: make(map[uuid.UUID]*models.EscrowRecord)}
	for _, r := range recs {
		cp := *r
		m.records[r.GigID] = &cp
	}
	return m
}

func (m *mockEscrowStore) CreateTx(_ context.Context, _ pgx.Tx, e *models.EscrowRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[e.GigID]; exists {
		return fmt.Errorf("duplicate escrow record for gig %s", e.GigID)
	}
	cp := *e
	m.records[e.GigID] = &cp
	return nil
}

func (m *mockEscrowStore) GetByGigID(_ context.Context, gigID uuid.UUID) (*models.EscrowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[gigID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (m *mockEscrowStore) TransitionTx(_ context.Context, _ pgx.Tx, gigID uuid.UUID, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[gigID]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	now := time.Now()
	r.ReleasedAt = &now
	return true, nil
}

func (m *mockEscrowStore) status(gigID uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[gigID].Status
}

// ---

type mockTxnStore struct {
	mu      sync.Mutex
	entries []*models.Transaction
}

func (m *mockTxnStore) Create(_ context.Context, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockTxnStore) CreateTx(_ context.Context, _ pgx.Tx, t *models.Transaction) error {
	return m.Create(context.Background(), t)
}

func (m *mockTxnStore) GetByGatewayOrderID(_ context.Context, orderID string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.GatewayOrderID != nil && *e.GatewayOrderID == orderID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockTxnStore) MarkCompletedTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			if e.Status != models.TxStatusPending {
				return false, nil
			}
			e.Status = models.TxStatusCompleted
			return true, nil
		}
	}
	return false, nil
}

func (m *mockTxnStore) byType(txType string) []*models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Transaction
	for _, e := range m.entries {
		if e.Type == txType {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

// releasedTotal sums the COMPLETED journal rows a settlement wrote for the
// gig. The funding-side ESCROW_DEPOSIT row records what the payer paid, not
// what was held, so it is excluded.
func (m *mockTxnStore) releasedTotal(gigID uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, e := range m.entries {
		if e.GigID == nil || *e.GigID != gigID || e.Status != models.TxStatusCompleted {
			continue
		}
		if e.Type == models.TxEscrowDeposit {
			continue
		}
		total += e.Amount
	}
	return total
}

// ---

type mockUser struct {
	jobs        int
	balance     int64
	totalEarned int64
	ratingSum   int
	ratingCount int
}

type mockUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*mockUser
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[uuid.UUID]*mockUser)}
}

func (m *mockUserStore) add(id uuid.UUID, jobs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &mockUser{jobs: jobs}
}

func (m *mockUserStore) JobsCompleted(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	return u.jobs, nil
}

func (m *mockUserStore) CreditWalletTx(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.balance += amount
	return nil
}

func (m *mockUserStore) ApplyCompletionStats(_ context.Context, id uuid.UUID, earned int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.jobs++
	u.totalEarned += earned
	return nil
}

func (m *mockUserStore) ApplyRating(_ context.Context, id uuid.UUID, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.ratingSum += score
	u.ratingCount++
	return nil
}

func (m *mockUserStore) balance(id uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].balance
}

func (m *mockUserStore) jobsOf(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].jobs
}

// ---

type mockAppStore struct {
	mu   sync.Mutex
	apps map[uuid.UUID]*models.Application
}

func newMockAppStore(apps ...*models.Application) *mockAppStore {
	m := &mockAppStore{apps: make(map[uuid.UUID]*models.Application)}
	for _, a := range apps {
		cp := *a
		m.apps[a.ID] = &cp
	}
	return m
}

func (m *mockAppStore) GetByID(_ context.Context, id uuid.UUID) (*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (m *mockAppStore) AcceptTx(_ context.Context, _ pgx.Tx, gigID, applicationID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.apps {
		if a.GigID != gigID || a.Status != models.ApplicationApplied {
			continue
		}
		if a.ID == applicationID {
			a.Status = models.ApplicationAccepted
		} else {
			a.Status = models.ApplicationRejected
		}
	}
	return nil
}

func (m *mockAppStore) statusOf(id uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apps[id].Status
}

// ---

type mockPayoutStore struct {
	mu      sync.Mutex
	entries []*models.PayoutQueueEntry
}

func (m *mockPayoutStore) CreateTx(_ context.Context, _ pgx.Tx, p *models.PayoutQueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockPayoutStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// ---

type mockGateway struct {
	mu     sync.Mutex
	seq    int
	orders map[string]*payments.Order
}

func newMockGateway() *mockGateway {
	return &mockGateway{orders: make(map[string]*payments.Order)}
}

func (m *mockGateway) CreateOrder(_ context.Context, amount int64, _ string) (*payments.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	o := &payments.Order{ID: fmt.Sprintf("order_%d", m.seq), Amount: amount, Status: payments.OrderStatusCreated}
	m.orders[o.ID] = o
	return o, nil
}

func (m *mockGateway) FetchOrder(_ context.Context, orderID string) (*payments.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	cp := *o
	return &cp, nil
}

func (m *mockGateway) markPaid(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[orderID].Status = payments.OrderStatusPaid
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fixture struct {
	gigs    *mockGigStore
	escrows *mockEscrowStore
	txns    *mockTxnStore
	users   *mockUserStore
	apps    *mockAppStore
	payouts *mockPayoutStore
	gateway *mockGateway
	svc     *Service
}

func newFixture(gigs []*models.Gig, escrows []*models.EscrowRecord, apps []*models.Application) *fixture {
	f := &fixture{
		gigs:    newMockGigStore(gigs...),
		escrows: newMockEscrowStore(escrows...),
		txns:    &mockTxnStore{},
		users:   newMockUserStore(),
		apps:    newMockAppStore(apps...),
		payouts: &mockPayoutStore{},
		gateway: newMockGateway(),
	}
	f.svc = NewService(Deps{
		DB:           mockPool{},
		Gigs:         f.gigs,
		Escrows:      f.escrows,
		Transactions: f.txns,
		Users:        f.users,
		Applications: f.apps,
		Payouts:      f.payouts,
		Gateway:      f.gateway,
		Policy:       fees.DefaultPolicy(),
	})
	return f
}

func hustleGig(id, poster uuid.UUID, price int64) *models.Gig {
	return &models.Gig{ID: id, PosterID: poster, ListingType: models.ListingHustle, Price: price, Status: models.GigStatusOpen, PaymentStatus: models.PaymentStatusPending}
}

func saleGig(id, poster uuid.UUID, price int64) *models.Gig {
	sell := models.MarketSell
	return &models.Gig{ID: id, PosterID: poster, ListingType: models.ListingMarket, MarketType: &sell, Price: price, Status: models.GigStatusOpen, PaymentStatus: models.PaymentStatusPending}
}

func rentalGig(id, poster uuid.UUID, price, deposit int64) *models.Gig {
	rent := models.MarketRent
	return &models.Gig{ID: id, PosterID: poster, ListingType: models.ListingMarket, MarketType: &rent, Price: price, SecurityDeposit: deposit, Status: models.GigStatusOpen, PaymentStatus: models.PaymentStatusPending}
}

func assigned(g *models.Gig, worker uuid.UUID) *models.Gig {
	g.Status = models.GigStatusAssigned
	g.PaymentStatus = models.PaymentStatusHeld
	g.AssignedWorkerID = &worker
	return g
}

func delivered(g *models.Gig, worker uuid.UUID, autoReleaseAt time.Time) *models.Gig {
	assigned(g, worker)
	now := time.Now().Add(-time.Hour)
	link := "https://cdn.example.com/delivery/" + g.ID.String()
	g.Status = models.GigStatusDelivered
	g.DeliveredAt = &now
	g.AutoReleaseAt = &autoReleaseAt
	g.DeliveryLink = &link
	return g
}

func heldEscrow(gigID, poster, worker uuid.UUID, held, deposit, platformFee int64) *models.EscrowRecord {
	return &models.EscrowRecord{
		ID:               uuid.New(),
		GigID:            gigID,
		PosterID:         poster,
		WorkerID:         worker,
		OriginalAmount:   held - deposit,
		SecurityDeposit:  deposit,
		PlatformFee:      platformFee,
		AmountHeld:       held,
		Status:           models.EscrowHeld,
		ReleaseCondition: models.ReleaseOnCompletion,
	}
}

// ---------------------------------------------------------------------------
// Funding and the idempotency gate
// ---------------------------------------------------------------------------

func TestFundIsIdempotent(t *testing.T) {
	poster, worker, rival := uuid.New(), uuid.New(), uuid.New()
	gigID := uuid.New()
	appID, rivalAppID := uuid.New(), uuid.New()

	f := newFixture(
		[]*models.Gig{hustleGig(gigID, poster, 1000)},
		nil,
		[]*models.Application{
			{ID: appID, GigID: gigID, WorkerID: worker, Status: models.ApplicationApplied},
			{ID: rivalAppID, GigID: gigID, WorkerID: rival, Status: models.ApplicationApplied},
		},
	)
	f.users.add(poster, 0)
	f.users.add(worker, 3)

	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, gigID, poster, appID)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	// 1000 + 10% platform fee = 1100, + 2% gateway fee on 1100 = 22.
	if order.TotalPayable != 1122 {
		t.Errorf("total payable: got %d, want 1122", order.TotalPayable)
	}

	// Verification before the gateway captures the payment must fail.
	if _, err := f.svc.Fund(ctx, gigID, order.GatewayOrderID); !errors.Is(err, ErrPaymentNotCaptured) {
		t.Errorf("expected ErrPaymentNotCaptured before capture, got: %v", err)
	}

	f.gateway.markPaid(order.GatewayOrderID)

	res, err := f.svc.Fund(ctx, gigID, order.GatewayOrderID)
	if err != nil {
		t.Fatalf("Fund: %v", err)
	}
	if res.AlreadyProcessed {
		t.Error("first verification should not report already processed")
	}
	if res.HandshakeCode == "" {
		t.Error("non-rental funding should return a handshake code")
	}

	// Replay: no-op success, no second escrow record.
	res2, err := f.svc.Fund(ctx, gigID, order.GatewayOrderID)
	if err != nil {
		t.Fatalf("Fund replay: %v", err)
	}
	if !res2.AlreadyProcessed {
		t.Error("replay should report already processed")
	}
	if res2.HandshakeCode != "" {
		t.Error("replay must never re-issue the handshake code")
	}

	esc, err := f.escrows.GetByGigID(ctx, gigID)
	if err != nil {
		t.Fatalf("escrow record missing after funding: %v", err)
	}
	if esc.Status != models.EscrowHeld {
		t.Errorf("escrow status: got %s, want HELD", esc.Status)
	}
	if esc.AmountHeld != 1000 {
		t.Errorf("amount held: got %d, want 1000 (fees are a surcharge, not held)", esc.AmountHeld)
	}
	if got := f.gigs.status(gigID); got != models.GigStatusAssigned {
		t.Errorf("gig status after funding: got %s, want assigned", got)
	}
	if got := f.apps.statusOf(rivalAppID); got != models.ApplicationRejected {
		t.Errorf("rival application: got %s, want rejected", got)
	}

	deposits := f.txns.byType(models.TxEscrowDeposit)
	if len(deposits) != 1 {
		t.Fatalf("deposit journal rows: got %d, want 1", len(deposits))
	}
	if deposits[0].Status != models.TxStatusCompleted {
		t.Errorf("deposit row status: got %s, want COMPLETED", deposits[0].Status)
	}
}

func TestFundUnknownOrder(t *testing.T) {
	f := newFixture(nil, nil, nil)
	if _, err := f.svc.Fund(context.Background(), uuid.New(), "order_none"); !errors.Is(err, ErrOrderMissing) {
		t.Errorf("expected ErrOrderMissing, got: %v", err)
	}
}

func TestCreateOrderRejectsWrongActor(t *testing.T) {
	poster, worker, stranger := uuid.New(), uuid.New(), uuid.New()
	gigID, appID := uuid.New(), uuid.New()

	f := newFixture(
		[]*models.Gig{hustleGig(gigID, poster, 1000)},
		nil,
		[]*models.Application{{ID: appID, GigID: gigID, WorkerID: worker, Status: models.ApplicationApplied}},
	)
	f.users.add(worker, 0)

	if _, err := f.svc.CreateOrder(context.Background(), gigID, stranger, appID); !errors.Is(err, ErrNotPayer) {
		t.Errorf("expected ErrNotPayer, got: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Release triggers: at-most-once, conservation, authorization
// ---------------------------------------------------------------------------

func TestReleaseSettlesOnce(t *testing.T) {
	poster, worker := uuid.New(), uuid.New()
	gigID := uuid.New()

	f := newFixture(
		[]*models.Gig{delivered(hustleGig(gigID, poster, 1000), worker, time.Now().Add(time.Hour))},
		[]*models.EscrowRecord{heldEscrow(gigID, poster, worker, 1000, 0, 100)},
		nil,
	)
	f.users.add(worker, 0)

	ctx := context.Background()
	rating := 5
	if err := f.svc.Release(ctx, gigID, poster, &rating); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// New-user worker: 10% release commission on the held 1000.
	if got := f.users.balance(worker); got != 900 {
		t.Errorf("worker balance: got %d, want 900", got)
	}
	payouts := f.txns.byType(models.TxPayoutCredit)
	if len(payouts) != 1 || payouts[0].Amount != 900 {
		t.Fatalf("payout journal rows: got %+v, want one row of 900", payouts)
	}
	feeRows := f.txns.byType(models.TxPlatformFee)
	if len(feeRows) != 1 || feeRows[0].Amount != 100 {
		t.Fatalf("platform fee journal rows: got %+v, want one row of 100", feeRows)
	}
	if got := f.txns.releasedTotal(gigID); got != 1000 {
		t.Errorf("released journal total: got %d, want amount held 1000", got)
	}
	if got := f.escrows.status(gigID); got != models.EscrowReleased {
		t.Errorf("escrow status: got %s, want RELEASED", got)
	}
	if got := f.gigs.status(gigID); got != models.GigStatusCompleted {
		t.Errorf("gig status: got %s, want completed", got)
	}
	if got := f.users.jobsOf(worker); got != 1 {
		t.Errorf("worker jobs after release: got %d, want 1", got)
	}
	if f.payouts.count() != 1 {
		t.Errorf("payout queue entries: got %d, want 1", f.payouts.count())
	}

	// Second trigger loses the status guard.
	if err := f.svc.Release(ctx, gigID, poster, nil); !errors.Is(err, ErrAlreadySettled) {
		t.Errorf("expected ErrAlreadySettled on second release, got: %v", err)
	}
	if got := f.users.balance(worker); got != 900 {
		t.Errorf("worker balance after replayed release: got %d, want 900", got)
	}
}

func TestReleaseMarketSalePaysSellerInFull(t *testing.T) {
	poster, seller := uuid.New(), uuid.New()
	gigID := uuid.New()

	f := newFixture(
		[]*models.Gig{delivered(saleGig(gigID, poster, 500), seller, time.Now().Add(time.Hour))},
		[]*models.EscrowRecord{heldEscrow(gigID, poster, seller, 500, 0, 50)},
		nil,
	)
	f.users.add(seller, 0)

	if err := f.svc.Release(context.Background(), gigID, poster, nil); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// No release commission on market sales: the seller gets the full held
	// amount and no fee row is journaled.
	if got := f.users.balance(seller); got != 500 {
		t.Errorf("seller balance: got %d, want 500", got)
	}
	payouts := f.txns.byType(models.TxPayoutCredit)
	if len(payouts) != 1 || payouts[0].Amount != 500 || payouts[0].UserID != seller {
		t.Fatalf("payout journal rows: got %+v, want one row of 500 for the seller", payouts)
	}
	if feeRows := f.txns.byType(models.TxPlatformFee); len(feeRows) != 0 {
		t.Errorf("platform fee journal rows: got %+v, want none", feeRows)
	}
	if got := f.txns.releasedTotal(gigID); got != 500 {
		t.Errorf("released journal total: got %d, want amount held 500", got)
	}
}

func TestReleaseAuthorization(t *testing.T) {
	poster, worker := uuid.New(), uuid.New()
	gigID := uuid.New()

	f := newFixture(
		[]*models.Gig{delivered(hustleGig(gigID, poster, 1000), worker, time.Now().Add(time.Hour))},
		[]*models.EscrowRecord{heldEscrow(gigID, poster, worker, 1000, 0, 100)},
		nil,
	)
	f.users.add(worker, 0)

	ctx := context.Background()
	if err := f.svc.Release(ctx, gigID, worker, nil); !errors.Is(err, ErrNotPoster) {
		t.Errorf("worker releasing: expected ErrNotPoster, got: %v", err)
	}
	bad := 6
	if err := f.svc.Release(ctx, gigID, poster, &bad); !errors.Is(err, ErrInvalidRating) {
		t.Errorf("rating 6: expected ErrInvalidRating, got: %v", err)
	}
	if got := f.escrows.status(gigID); got != models.EscrowHeld {
		t.Errorf("escrow must stay HELD after rejected attempts, got %s", got)
	}
}

func TestReleaseFeeTierAtReleaseTime(t *testing.T) {
	poster, worker := uuid.New(), uuid.New()
	gigID := uuid.New()

	f := newFixture(
		[]*models.Gig{delivered(hustleGig(gigID, poster, 1000), worker, time.Now().Add(time.Hour))},
		[]*models.EscrowRecord{heldEscrow(gigID, poster, worker, 1000, 0, 100)},
		nil,
	)
	// 11 completed jobs puts the worker on the 7.5% commission tier.
	f.users.add(worker, 11)

	if err := f.svc.Release(context.Background(), gigID, poster, nil); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := f.users.balance(worker); got != 925 {
		t.Errorf("tiered worker balance: got %d, want 925", got)
	}
	if got := f.txns.releasedTotal(gigID); got != 1000 {
		t.Errorf("released journal total: got %d, want 1000", got)
	}
}

func TestVerifyHandshake(t *testing.T) {
	poster, worker := uuid.New(), uuid.New()
	gigID, appID := uuid.New(), uuid.New()

	f := newFixture(
		[]*models.Gig{hustleGig(gigID, poster, 1000)},
		nil,
		[]*models.Application{{ID: appID, GigID: gigID, WorkerID: worker, Status: models.ApplicationApplied}},
	)
	f.users.add(poster, 0)
	f.users.add(worker, 0)

	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, gigID, poster, appID)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	f.gateway.markPaid(order.GatewayOrderID)
	res, err := f.svc.Fund(ctx, gigID, order.GatewayOrderID)
	if err != nil {
		t.Fatalf("Fund: %v", err)
	}

	if err := f.svc.VerifyHandshake(ctx, gigID, poster, res.HandshakeCode); !errors.Is(err, ErrNotWorker) {
		t.Errorf("poster verifying handshake: expected ErrNotWorker, got: %v", err)
	}
	if err := f.svc.VerifyHandshake(ctx, gigID, worker, "000000"); !errors.Is(err, ErrHandshakeMismatch) {
		t.Errorf("wrong code: expected ErrHandshakeMismatch, got: %v", err)
	}
	if err := f.svc.VerifyHandshake(ctx, gigID, worker, res.HandshakeCode); err != nil {
		t.Fatalf("VerifyHandshake with correct code: %v", err)
	}
	if got := f.escrows.status(gigID); got != models.EscrowReleased {
		t.Errorf("escrow status after handshake: got %s, want RELEASED", got)
	}
	if got := f.txns.releasedTotal(gigID); got != 1000 {
		t.Errorf("released journal total: got %d, want 1000", got)
	}
}

// ---------------------------------------------------------------------------
// Rental return
// ---------------------------------------------------------------------------

func TestConfirmRentalReturn(t *testing.T) {
	owner, renter := uuid.New(), uuid.New()
	gigID := uuid.New()

	esc := heldEscrow(gigID, owner, renter, 1500, 500, 45)
	esc.ReleaseCondition = models.ReleaseOnRentalReturn
	f := newFixture(
		[]*models.Gig{assigned(rentalGig(gigID, owner, 1000, 500), renter)},
		[]*models.EscrowRecord{esc},
		nil,
	)
	f.users.add(owner, 0)
	f.users.add(renter, 0)

	ctx := context.Background()
	if err := f.svc.ConfirmRentalReturn(ctx, gigID, renter, 0, nil); !errors.Is(err, ErrNotPoster) {
		t.Errorf("renter confirming return: expected ErrNotPoster, got: %v", err)
	}
	if err := f.svc.ConfirmRentalReturn(ctx, gigID, owner, 501, nil); !errors.Is(err, ErrInvalidDeduction) {
		t.Errorf("deduction above deposit: expected ErrInvalidDeduction, got: %v", err)
	}

	rating := 4
	if err := f.svc.ConfirmRentalReturn(ctx, gigID, owner, 100, &rating); err != nil {
		t.Fatalf("ConfirmRentalReturn: %v", err)
	}

	// Owner gets rent plus the 100 deduction; renter gets the deposit remainder.
	if got := f.users.balance(owner); got != 1100 {
		t.Errorf("owner balance: got %d, want 1100", got)
	}
	if got := f.users.balance(renter); got != 400 {
		t.Errorf("renter balance: got %d, want 400", got)
	}
	refunds := f.txns.byType(models.TxRefundCredit)
	if len(refunds) != 1 || refunds[0].Amount != 400 || refunds[0].UserID != renter {
		t.Errorf("refund journal rows: got %+v, want one row of 400 for renter", refunds)
	}
	if got := f.txns.releasedTotal(gigID); got != 1500 {
		t.Errorf("released journal total: got %d, want amount held 1500", got)
	}
	// No jobs bump for a rental; rating still applies.
	if got := f.users.jobsOf(renter); got != 0 {
		t.Errorf("renter jobs after rental: got %d, want 0", got)
	}

	if err := f.svc.ConfirmRentalReturn(ctx, gigID, owner, 0, nil); !errors.Is(err, ErrAlreadySettled) {
		t.Errorf("second return: expected ErrAlreadySettled, got: %v", err)
	}
}

func TestRentalReturnRejectsNonRental(t *testing.T) {
	poster, worker := uuid.New(), uuid.New()
	gigID := uuid.New()

	f := newFixture(
		[]*models.Gig{assigned(hustleGig(gigID, poster, 1000), worker)},
		[]*models.EscrowRecord{heldEscrow(gigID, poster, worker, 1000, 0, 100)},
		nil,
	)
	if err := f.svc.ConfirmRentalReturn(context.Background(), gigID, poster, 0, nil); !errors.Is(err, ErrNotRental) {
		t.Errorf("expected ErrNotRental, got: %v", err)
	}
}

func TestReleaseRentalPaysOwner(t *testing.T) {
	owner, renter := uuid.New(), uuid.New()
	gigID := uuid.New()

	esc := heldEscrow(gigID, owner, renter, 1500, 500, 45)
	esc.ReleaseCondition = models.ReleaseOnRentalReturn
	f := newFixture(
		[]*models.Gig{delivered(rentalGig(gigID, owner, 1000, 500), renter, time.Now().Add(time.Hour))},
		[]*models.EscrowRecord{esc},
		nil,
	)
	f.users.add(owner, 0)
	f.users.add(renter, 0)

	if err := f.svc.Release(context.Background(), gigID, owner, nil); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// A rental released through the completion trigger still settles as a
	// zero-deduction return: rent to the owner, deposit back to the renter.
	if got := f.users.balance(owner); got != 1000 {
		t.Errorf("owner balance: got %d, want 1000", got)
	}
	if got := f.users.balance(renter); got != 500 {
		t.Errorf("renter balance: got %d, want 500", got)
	}
	payouts := f.txns.byType(models.TxPayoutCredit)
	if len(payouts) != 1 || payouts[0].Amount != 1000 || payouts[0].UserID != owner {
		t.Fatalf("payout journal rows: got %+v, want one row of 1000 for the owner", payouts)
	}
	if got := f.users.jobsOf(renter); got != 0 {
		t.Errorf("renter jobs after rental release: got %d, want 0", got)
	}
	if got := f.txns.releasedTotal(gigID); got != 1500 {
		t.Errorf("released journal total: got %d, want amount held 1500", got)
	}
}

func TestSweepRentalPaysOwnerNotRenter(t *testing.T) {
	owner, renter := uuid.New(), uuid.New()
	gigID := uuid.New()

	esc := heldEscrow(gigID, owner, renter, 1500, 500, 45)
	esc.ReleaseCondition = models.ReleaseOnRentalReturn
	f := newFixture(
		[]*models.Gig{delivered(rentalGig(gigID, owner, 1000, 500), renter, time.Now().Add(-time.Minute))},
		[]*models.EscrowRecord{esc},
		nil,
	)
	f.users.add(owner, 0)
	f.users.add(renter, 0)

	res, err := f.svc.SweepAutoRelease(context.Background())
	if err != nil {
		t.Fatalf("SweepAutoRelease: %v", err)
	}
	if res.ReleasedCount != 1 {
		t.Fatalf("released count: got %d, want 1", res.ReleasedCount)
	}

	// The renter marked the rental delivered and sat out the review window;
	// the sweep must still send the rent to the owner, not the renter.
	if got := f.users.balance(owner); got != 1000 {
		t.Errorf("owner balance: got %d, want 1000", got)
	}
	if got := f.users.balance(renter); got != 500 {
		t.Errorf("renter balance: got %d, want 500", got)
	}
	autos := f.txns.byType(models.TxEscrowAutoRelease)
	if len(autos) != 1 || autos[0].Amount != 1000 || autos[0].UserID != owner {
		t.Fatalf("auto-release journal rows: got %+v, want one row of 1000 for the owner", autos)
	}
	refunds := f.txns.byType(models.TxRefundCredit)
	if len(refunds) != 1 || refunds[0].Amount != 500 || refunds[0].UserID != renter {
		t.Fatalf("refund journal rows: got %+v, want one row of 500 for the renter", refunds)
	}
	if got := f.users.jobsOf(renter); got != 0 {
		t.Errorf("renter jobs after rental auto-release: got %d, want 0", got)
	}
	if got := f.txns.releasedTotal(gigID); got != 1500 {
		t.Errorf("released journal total: got %d, want amount held 1500", got)
	}
	if got := f.escrows.status(gigID); got != models.EscrowReleased {
		t.Errorf("escrow status: got %s, want RELEASED", got)
	}

	res2, err := f.svc.SweepAutoRelease(context.Background())
	if err != nil {
		t.Fatalf("second SweepAutoRelease: %v", err)
	}
	if res2.ReleasedCount != 0 {
		t.Errorf("second sweep released %d, want 0", res2.ReleasedCount)
	}
}

// ---------------------------------------------------------------------------
// Cancellation
// ---------------------------------------------------------------------------

func TestCancelRefundsMinusFee(t *testing.T) {
	poster, worker := uuid.New(), uuid.New()
	gigID := uuid.New()

	f := newFixture(
		[]*models.Gig{assigned(hustleGig(gigID, poster, 1000), worker)},
		[]*models.EscrowRecord{heldEscrow(gigID, poster, worker, 1000, 0, 100)},
		nil,
	)
	f.users.add(poster, 0)
	f.users.add(worker, 0)

	ctx := context.Background()
	res, err := f.svc.Cancel(ctx, gigID, poster)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if res.RefundAmount != 900 || res.PlatformFee != 100 {
		t.Errorf("cancel split: got refund %d fee %d, want 900/100", res.RefundAmount, res.PlatformFee)
	}
	if got := f.users.balance(poster); got != 900 {
		t.Errorf("poster balance after cancel: got %d, want 900", got)
	}
	if got := f.users.balance(worker); got != 0 {
		t.Errorf("worker balance after cancel: got %d, want 0", got)
	}
	if got := f.txns.releasedTotal(gigID); got != 1000 {
		t.Errorf("released journal total: got %d, want 1000", got)
	}
	if got := f.escrows.status(gigID); got != models.EscrowCancelled {
		t.Errorf("escrow status: got %s, want CANCELLED", got)
	}
	if got := f.gigs.status(gigID); got != models.GigStatusCancelled {
		t.Errorf("gig status: got %s, want cancelled", got)
	}

	if _, err := f.svc.Cancel(ctx, gigID, poster); !errors.Is(err, ErrWrongState) {
		t.Errorf("cancelling a cancelled gig: expected ErrWrongState, got: %v", err)
	}
}

func TestCancelRejectedAfterDelivery(t *testing.T) {
	poster, worker := uuid.New(), uuid.New()
	gigID := uuid.New()

	f := newFixture(
		[]*models.Gig{delivered(hustleGig(gigID, poster, 1000), worker, time.Now().Add(time.Hour))},
		[]*models.EscrowRecord{heldEscrow(gigID, poster, worker, 1000, 0, 100)},
		nil,
	)
	if _, err := f.svc.Cancel(context.Background(), gigID, poster); !errors.Is(err, ErrWrongState) {
		t.Errorf("expected ErrWrongState after delivery, got: %v", err)
	}
	if got := f.escrows.status(gigID); got != models.EscrowHeld {
		t.Errorf("escrow must stay HELD, got %s", got)
	}
}

// ---------------------------------------------------------------------------
// Disputes and the auto-release sweep
// ---------------------------------------------------------------------------

func TestDisputeFreezesEscrow(t *testing.T) {
	poster, worker := uuid.New(), uuid.New()
	gigID := uuid.New()

	f := newFixture(
		[]*models.Gig{delivered(hustleGig(gigID, poster, 1000), worker, time.Now().Add(-time.Minute))},
		[]*models.EscrowRecord{heldEscrow(gigID, poster, worker, 1000, 0, 100)},
		nil,
	)
	f.users.add(worker, 0)

	ctx := context.Background()
	if err := f.svc.RaiseDispute(ctx, gigID, poster, "too short"); !errors.Is(err, ErrReasonTooShort) {
		t.Errorf("short reason: expected ErrReasonTooShort, got: %v", err)
	}
	reason := "The delivered work does not match the agreed description and several required items are missing entirely."
	if err := f.svc.RaiseDispute(ctx, gigID, poster, reason); err != nil {
		t.Fatalf("RaiseDispute: %v", err)
	}
	if got := f.escrows.status(gigID); got != models.EscrowDisputeHeld {
		t.Errorf("escrow status: got %s, want DISPUTE_HELD", got)
	}

	// Manual release fails the guard.
	if err := f.svc.Release(ctx, gigID, poster, nil); !errors.Is(err, ErrAlreadySettled) {
		t.Errorf("release on disputed escrow: expected ErrAlreadySettled, got: %v", err)
	}

	// The sweep must skip it even though its review window has expired.
	res, err := f.svc.SweepAutoRelease(ctx)
	if err != nil {
		t.Fatalf("SweepAutoRelease: %v", err)
	}
	if res.ReleasedCount != 0 {
		t.Errorf("sweep released %d disputed gigs, want 0", res.ReleasedCount)
	}
	if got := f.users.balance(worker); got != 0 {
		t.Errorf("worker balance after frozen sweep: got %d, want 0", got)
	}
	if got := f.txns.releasedTotal(gigID); got != 0 {
		t.Errorf("dispute must move no money, journal total %d", got)
	}
}

func TestSweepReleasesExpiredAndIsolatesFailures(t *testing.T) {
	poster := uuid.New()
	worker1, worker2, worker3 := uuid.New(), uuid.New(), uuid.New()
	expired1, expired2, broken, fresh := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	// "broken" is auto-releasable but has no escrow record; it must fail
	// alone without aborting the batch.
	f := newFixture(
		[]*models.Gig{
			delivered(hustleGig(expired1, poster, 1000), worker1, past),
			delivered(hustleGig(expired2, poster, 2000), worker2, past),
			delivered(hustleGig(broken, poster, 500), worker3, past),
			delivered(hustleGig(fresh, poster, 800), worker1, future),
		},
		[]*models.EscrowRecord{
			heldEscrow(expired1, poster, worker1, 1000, 0, 100),
			heldEscrow(expired2, poster, worker2, 2000, 0, 200),
			heldEscrow(fresh, poster, worker1, 800, 0, 80),
		},
		nil,
	)
	f.users.add(worker1, 0)
	f.users.add(worker2, 0)
	f.users.add(worker3, 0)

	res, err := f.svc.SweepAutoRelease(context.Background())
	if err != nil {
		t.Fatalf("SweepAutoRelease: %v", err)
	}
	if res.ReleasedCount != 2 {
		t.Errorf("released count: got %d, want 2", res.ReleasedCount)
	}
	if len(res.Details) != 3 {
		t.Fatalf("sweep scanned %d gigs, want 3 (fresh one excluded)", len(res.Details))
	}
	var brokenDetail *SweepDetail
	for i := range res.Details {
		if res.Details[i].GigID == broken {
			brokenDetail = &res.Details[i]
		}
	}
	if brokenDetail == nil || brokenDetail.Released || brokenDetail.Error == "" {
		t.Errorf("broken gig should report a non-released detail with an error, got %+v", brokenDetail)
	}

	// Auto-released payouts are journaled under their own entry type.
	autos := f.txns.byType(models.TxEscrowAutoRelease)
	if len(autos) != 2 {
		t.Fatalf("auto-release journal rows: got %d, want 2", len(autos))
	}
	if got := f.users.balance(worker1); got != 900 {
		t.Errorf("worker1 balance: got %d, want 900", got)
	}
	if got := f.users.balance(worker2); got != 1800 {
		t.Errorf("worker2 balance: got %d, want 1800", got)
	}
	if got := f.escrows.status(fresh); got != models.EscrowHeld {
		t.Errorf("unexpired escrow must stay HELD, got %s", got)
	}

	// A second sweep finds nothing left to do.
	res2, err := f.svc.SweepAutoRelease(context.Background())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if res2.ReleasedCount != 0 {
		t.Errorf("second sweep released %d, want 0", res2.ReleasedCount)
	}
}

// ---------------------------------------------------------------------------
// Concurrent triggers: exactly one winner
// ---------------------------------------------------------------------------

func TestConcurrentReleaseSingleWinner(t *testing.T) {
	poster, worker := uuid.New(), uuid.New()
	gigID := uuid.New()

	f := newFixture(
		[]*models.Gig{delivered(hustleGig(gigID, poster, 1000), worker, time.Now().Add(-time.Minute))},
		[]*models.EscrowRecord{heldEscrow(gigID, poster, worker, 1000, 0, 100)},
		nil,
	)
	f.users.add(worker, 0)

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.svc.Release(context.Background(), gigID, poster, nil)
		}()
	}
	wg.Wait()
	close(errs)

	var wins, losses int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadySettled):
			losses++
		default:
			t.Errorf("unexpected error from concurrent release: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("concurrent releases: got %d winners, want exactly 1", wins)
	}
	if losses != attempts-1 {
		t.Errorf("concurrent releases: got %d guard losses, want %d", losses, attempts-1)
	}
	if got := f.users.balance(worker); got != 900 {
		t.Errorf("worker balance after %d concurrent releases: got %d, want 900", attempts, got)
	}
	if got := f.txns.releasedTotal(gigID); got != 1000 {
		t.Errorf("released journal total: got %d, want 1000", got)
	}
}
