package offerstore

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// MemStore is an in-memory Store and PaymentStore, used in tests and by
// tooling that has no database at hand.
type MemStore struct {
	mu       sync.Mutex
	offers   map[chainhash.Hash]*OfferRecord
	payments map[string][]*Payment
}

// Compile-time checks that MemStore satisfies both store interfaces.
var (
	_ Store        = (*MemStore)(nil)
	_ PaymentStore = (*MemStore)(nil)
)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		offers:   make(map[chainhash.Hash]*OfferRecord),
		payments: make(map[string][]*Payment),
	}
}

// CreateOffer stores a new offer, failing on duplicate ids.
func (s *MemStore) CreateOffer(record *OfferRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.offers[record.OfferID]; ok {
		return ErrDuplicateOffer
	}

	clone := *record
	s.offers[record.OfferID] = &clone

	return nil
}

// FetchOffer fetches an offer by id.
func (s *MemStore) FetchOffer(id chainhash.Hash) (*OfferRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.offers[id]
	if !ok {
		return nil, ErrOfferNotFound
	}

	clone := *record
	return &clone, nil
}

// ListOffers lists all stored offers.
func (s *MemStore) ListOffers() ([]*OfferRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]*OfferRecord, 0, len(s.offers))
	for _, record := range s.offers {
		clone := *record
		records = append(records, &clone)
	}

	return records, nil
}

// UpdateOfferStatus moves an offer to the given status.
func (s *MemStore) UpdateOfferStatus(id chainhash.Hash,
	status OfferStatus) (*OfferRecord, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.offers[id]
	if !ok {
		return nil, ErrOfferNotFound
	}

	record.Status = status

	clone := *record
	return &clone, nil
}

// AddPayment appends a payment under its label.
func (s *MemStore) AddPayment(payment *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *payment
	s.payments[payment.Label] = append(
		s.payments[payment.Label], &clone,
	)

	return nil
}

// ListPaymentsByLabel lists payments made under the given label.
func (s *MemStore) ListPaymentsByLabel(label string) ([]*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payments := make([]*Payment, 0, len(s.payments[label]))
	for _, payment := range s.payments[label] {
		clone := *payment
		payments = append(payments, &clone)
	}

	return payments, nil
}
