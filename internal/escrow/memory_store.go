package escrow

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory transaction store for demo/development mode.
// It enforces the same uniqueness and transition guards as the Postgres
// store so the service behaves identically in both modes.
type MemoryStore struct {
	transactions map[string]*Transaction
	bySession    map[string]string // session ID -> transaction ID
	mu           sync.Mutex
}

// NewMemoryStore creates a new in-memory transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]*Transaction),
		bySession:    make(map[string]string),
	}
}

func (m *MemoryStore) Create(ctx context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bySession[tx.SessionID]; ok {
		return ErrSessionAlreadyConsumed
	}
	for _, existing := range m.transactions {
		if existing.ListingID == tx.ListingID && existing.Status == StatusHeld {
			return ErrListingUnavailable
		}
	}

	cp := *tx
	m.transactions[tx.ID] = &cp
	m.bySession[tx.SessionID] = tx.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *MemoryStore) GetBySession(ctx context.Context, sessionID string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.bySession[sessionID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *m.transactions[id]
	return &cp, nil
}

func (m *MemoryStore) GetForListing(ctx context.Context, listingID, userID string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *Transaction
	for _, tx := range m.transactions {
		if tx.ListingID != listingID {
			continue
		}
		if tx.BuyerID != userID && tx.SellerID != userID {
			continue
		}
		if best == nil || rank(tx.Status) < rank(best.Status) ||
			(rank(tx.Status) == rank(best.Status) && tx.CreatedAt.After(best.CreatedAt)) {
			best = tx
		}
	}
	if best == nil {
		return nil, ErrTransactionNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *MemoryStore) ActiveForListing(ctx context.Context, listingID string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tx := range m.transactions {
		if tx.ListingID == listingID && tx.Status == StatusHeld {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (m *MemoryStore) SetSellerConfirmed(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[id]
	if !ok {
		return ErrTransactionNotFound
	}
	if tx.Status != StatusHeld || tx.SellerConfirmedAt != nil {
		return ErrInvalidState
	}
	tx.SellerConfirmedAt = &at
	tx.UpdatedAt = at
	return nil
}

func (m *MemoryStore) Transition(ctx context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.transactions[tx.ID]
	if !ok {
		return ErrTransactionNotFound
	}
	if current.Status != StatusHeld {
		return ErrInvalidState
	}
	cp := *tx
	m.transactions[tx.ID] = &cp
	return nil
}

// rank orders statuses by relevance for GetForListing.
func rank(s Status) int {
	switch s {
	case StatusHeld:
		return 0
	case StatusDisputed:
		return 1
	default:
		return 2
	}
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
