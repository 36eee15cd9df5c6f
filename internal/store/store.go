package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/pofinance/internal/backend"
	"github.com/example/pofinance/internal/ledger"
)

// LedgerReader is the slice of the ledger gateway the store consumes.
type LedgerReader interface {
	ReadPurchaseOrderCount(ctx context.Context) (uint64, error)
	ReadPurchaseOrder(ctx context.Context, id uint64) (*ledger.PurchaseOrder, error)
}

// BackendReader is the slice of the backend client the store consumes.
type BackendReader interface {
	ListLoans(ctx context.Context) ([]backend.Loan, error)
	GetStats(ctx context.Context) (*backend.AggregateStats, error)
}

// AccountSource provides the active account used for the vendor-filtered
// PO view.
type AccountSource interface {
	Address() string
}

// PartialSyncError records that one of the two reconciliation sources failed
// during a refresh. The store keeps the last-good data for that source and
// retries on the next refresh; callers see this through LastError, not as a
// refresh failure.
type PartialSyncError struct {
	Source string
	Err    error
}

func (e *PartialSyncError) Error() string {
	return fmt.Sprintf("%s source failed during refresh: %v", e.Source, e.Err)
}

func (e *PartialSyncError) Unwrap() error {
	return e.Err
}

// State is the store's refresh lifecycle state, exposed for observability.
type State string

const (
	StateIdle       State = "Idle"
	StateRefreshing State = "Refreshing"
)

// Snapshot is one consistent published view of POs, loans and stats. The
// snapshot is not transactional across the two sources: a loan whose po_id
// does not resolve to a currently known PO is kept, never dropped, and the
// reverse skew is equally tolerated.
type Snapshot struct {
	POs          []ledger.PurchaseOrder
	Loans        []backend.Loan
	Stats        backend.AggregateStats
	Account      string
	LedgerStale  bool
	BackendStale bool
	RefreshedAt  time.Time
}

// FindPO resolves a PO id within the snapshot. Orphan loans resolve false.
func (s *Snapshot) FindPO(id uint64) (ledger.PurchaseOrder, bool) {
	for _, po := range s.POs {
		if po.ID == id {
			return po, true
		}
	}
	return ledger.PurchaseOrder{}, false
}

// Store owns the merged PurchaseOrder/Loan/AggregateStats collections for the
// lifetime of the client session. Nothing else mutates the snapshot; workflow
// and presentation code may only trigger Refresh and read the latest
// published snapshot.
type Store struct {
	ledger  LedgerReader
	backend BackendReader
	session AccountSource
	cache   *POCache
	logger  *slog.Logger

	mu          sync.Mutex
	snapshot    Snapshot
	lastErr     error
	lastStarted uint64
	inFlight    int
}

// New creates a store. cache may be nil to run without the local PO cache.
func New(l LedgerReader, b BackendReader, session AccountSource, cache *POCache, logger *slog.Logger) *Store {
	return &Store{
		ledger:  l,
		backend: b,
		session: session,
		cache:   cache,
		logger:  logger,
	}
}

// Snapshot returns a copy of the latest published snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot
	snap.POs = append([]ledger.PurchaseOrder(nil), s.snapshot.POs...)
	snap.Loans = append([]backend.Loan(nil), s.snapshot.Loans...)
	return snap
}

// LastError returns the error recorded by the most recent completed refresh,
// nil if both sources succeeded.
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// State reports whether any refresh is in flight.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight > 0 {
		return StateRefreshing
	}
	return StateIdle
}

// Refresh reads both sources and publishes a new snapshot. Overlapping
// refreshes never interleave writes: a refresh applies its result only if no
// newer refresh was triggered while it ran, so the published snapshot always
// reflects the latest-triggered consistent read. A superseded refresh is
// discarded, not cancelled.
//
// A single failing source retains its last-good data, marks it stale and
// records a PartialSyncError; Refresh itself returns an error only when both
// sources fail.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.lastStarted++
	gen := s.lastStarted
	s.inFlight++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	account := s.session.Address()
	pos, ledgerErr := s.scanPurchaseOrders(ctx, account)
	loans, stats, backendErr := s.readBackend(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.lastStarted {
		return nil
	}

	next := s.snapshot
	if ledgerErr == nil {
		next.POs = pos
		next.LedgerStale = false
	} else {
		next.LedgerStale = true
		if !strings.EqualFold(account, s.snapshot.Account) {
			// The retained PO view was filtered for a different account;
			// keeping it would leak the previous account's entries.
			next.POs = nil
		}
	}
	if backendErr == nil {
		next.Loans = loans
		next.Stats = *stats
		next.BackendStale = false
	} else {
		next.BackendStale = true
	}
	next.Account = account
	next.RefreshedAt = time.Now()
	s.snapshot = next

	switch {
	case ledgerErr != nil && backendErr != nil:
		err := fmt.Errorf("refresh failed on both sources: %w", errors.Join(ledgerErr, backendErr))
		s.lastErr = err
		return err
	case ledgerErr != nil:
		s.lastErr = &PartialSyncError{Source: "ledger", Err: ledgerErr}
		s.logger.Warn("ledger source failed during refresh, retaining last-good data", "error", ledgerErr)
		return nil
	case backendErr != nil:
		s.lastErr = &PartialSyncError{Source: "backend", Err: backendErr}
		s.logger.Warn("backend source failed during refresh, retaining last-good data", "error", backendErr)
		return nil
	default:
		s.lastErr = nil
		return nil
	}
}

// scanPurchaseOrders reads every PO record and filters by the active account.
// The contract offers no batch or range read, so one scan costs O(count)
// sequential ledger reads; that bound comes from the contract interface
// itself. Records the ledger cannot serve mid-scan are backfilled from the
// local cache when possible.
func (s *Store) scanPurchaseOrders(ctx context.Context, account string) ([]ledger.PurchaseOrder, error) {
	count, err := s.ledger.ReadPurchaseOrderCount(ctx)
	if err != nil {
		return nil, err
	}

	pos := make([]ledger.PurchaseOrder, 0, count)
	for id := uint64(1); id <= count; id++ {
		po, err := s.ledger.ReadPurchaseOrder(ctx, id)
		if err != nil {
			cached := s.cachedPO(ctx, id)
			if cached == nil {
				return nil, fmt.Errorf("read po %d: %w", id, err)
			}
			s.logger.Debug("serving cached purchase order", "id", id, "error", err)
			po = cached
		} else {
			s.rememberPO(ctx, po)
		}

		if account == "" || strings.EqualFold(po.Vendor, account) {
			pos = append(pos, *po)
		}
	}
	return pos, nil
}

func (s *Store) readBackend(ctx context.Context) ([]backend.Loan, *backend.AggregateStats, error) {
	loans, err := s.backend.ListLoans(ctx)
	if err != nil {
		return nil, nil, err
	}
	stats, err := s.backend.GetStats(ctx)
	if err != nil {
		return nil, nil, err
	}
	return loans, stats, nil
}

func (s *Store) cachedPO(ctx context.Context, id uint64) *ledger.PurchaseOrder {
	if s.cache == nil {
		return nil
	}
	po, err := s.cache.Get(ctx, id)
	if err != nil {
		return nil
	}
	return po
}

// rememberPO upserts a freshly read record into the cache and flags
// observations the contract's status machine should make impossible. Cache
// trouble is logged, never fatal to a refresh.
func (s *Store) rememberPO(ctx context.Context, po *ledger.PurchaseOrder) {
	if s.cache == nil {
		return
	}

	cached, err := s.cache.Get(ctx, po.ID)
	if err == nil {
		if cached.Status != po.Status && !ledger.IsValidTransition(cached.Status, po.Status) {
			s.logger.Warn("observed status transition the contract should not allow",
				"id", po.ID, "from", cached.Status.String(), "to", po.Status.String())
		}
		if !strings.EqualFold(cached.Vendor, po.Vendor) || !strings.EqualFold(cached.Buyer, po.Buyer) {
			s.logger.Warn("immutable purchase order fields drifted from cached record", "id", po.ID)
		}
	}

	if err := s.cache.Put(ctx, po); err != nil {
		s.logger.Warn("failed to update po cache", "id", po.ID, "error", err)
	}
}
