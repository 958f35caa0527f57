package offerstore

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/kvdb"
)

var (
	// offerBucket holds offers keyed by offer id.
	offerBucket = []byte("offers")

	// paymentBucket holds payment lists keyed by label.
	paymentBucket = []byte("payments")
)

// KVStore persists offers and payments in a kvdb backend.
type KVStore struct {
	db kvdb.Backend
}

// Compile-time checks that KVStore satisfies both store interfaces.
var (
	_ Store        = (*KVStore)(nil)
	_ PaymentStore = (*KVStore)(nil)
)

// NewKVStore opens a store over the given backend, creating its buckets
// if needed.
func NewKVStore(db kvdb.Backend) (*KVStore, error) {
	err := kvdb.Update(db, func(tx kvdb.RwTx) error {
		if _, err := tx.CreateTopLevelBucket(offerBucket); err != nil {
			return err
		}

		_, err := tx.CreateTopLevelBucket(paymentBucket)
		return err
	}, func() {})
	if err != nil {
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &KVStore{db: db}, nil
}

// serializeOfferRecord writes an offer record without its key.
func serializeOfferRecord(w io.Writer, record *OfferRecord) error {
	if _, err := w.Write([]byte{byte(record.Status)}); err != nil {
		return err
	}

	label := []byte(record.Label)
	if len(label) > 0xffff {
		return fmt.Errorf("label too long: %d", len(label))
	}
	lenBytes := []byte{byte(len(label) >> 8), byte(len(label))}
	if _, err := w.Write(lenBytes); err != nil {
		return err
	}
	if _, err := w.Write(label); err != nil {
		return err
	}

	_, err := w.Write([]byte(record.Bolt12))
	return err
}

// deserializeOfferRecord reads an offer record, filling in the id from
// the bucket key.
func deserializeOfferRecord(id chainhash.Hash,
	value []byte) (*OfferRecord, error) {

	if len(value) < 3 {
		return nil, fmt.Errorf("offer record too short: %d",
			len(value))
	}

	status := OfferStatus(value[0])
	labelLen := int(value[1])<<8 | int(value[2])
	if len(value) < 3+labelLen {
		return nil, fmt.Errorf("offer record truncated label")
	}

	return &OfferRecord{
		OfferID: id,
		Status:  status,
		Label:   string(value[3 : 3+labelLen]),
		Bolt12:  string(value[3+labelLen:]),
	}, nil
}

// CreateOffer stores a new offer, failing on duplicate ids.
func (s *KVStore) CreateOffer(record *OfferRecord) error {
	return kvdb.Update(s.db, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(offerBucket)

		if bucket.Get(record.OfferID[:]) != nil {
			return ErrDuplicateOffer
		}

		var b bytes.Buffer
		if err := serializeOfferRecord(&b, record); err != nil {
			return err
		}

		return bucket.Put(record.OfferID[:], b.Bytes())
	}, func() {})
}

// FetchOffer fetches an offer by id.
func (s *KVStore) FetchOffer(id chainhash.Hash) (*OfferRecord, error) {
	var record *OfferRecord
	err := kvdb.View(s.db, func(tx kvdb.RTx) error {
		value := tx.ReadBucket(offerBucket).Get(id[:])
		if value == nil {
			return ErrOfferNotFound
		}

		var err error
		record, err = deserializeOfferRecord(id, value)
		return err
	}, func() {
		record = nil
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// ListOffers lists all stored offers.
func (s *KVStore) ListOffers() ([]*OfferRecord, error) {
	var records []*OfferRecord
	err := kvdb.View(s.db, func(tx kvdb.RTx) error {
		return tx.ReadBucket(offerBucket).ForEach(
			func(k, v []byte) error {
				var id chainhash.Hash
				copy(id[:], k)

				record, err := deserializeOfferRecord(id, v)
				if err != nil {
					return err
				}

				records = append(records, record)
				return nil
			},
		)
	}, func() {
		records = nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// UpdateOfferStatus moves an offer to the given status.
func (s *KVStore) UpdateOfferStatus(id chainhash.Hash,
	status OfferStatus) (*OfferRecord, error) {

	var record *OfferRecord
	err := kvdb.Update(s.db, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(offerBucket)

		value := bucket.Get(id[:])
		if value == nil {
			return ErrOfferNotFound
		}

		var err error
		record, err = deserializeOfferRecord(id, value)
		if err != nil {
			return err
		}
		record.Status = status

		var b bytes.Buffer
		if err := serializeOfferRecord(&b, record); err != nil {
			return err
		}

		return bucket.Put(id[:], b.Bytes())
	}, func() {
		record = nil
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// serializePayment writes one payment entry length-prefixed so that
// multiple entries can share a label's value blob.
func serializePayment(w io.Writer, payment *Payment) error {
	if _, err := w.Write([]byte{byte(payment.Status)}); err != nil {
		return err
	}

	invoice := []byte(payment.Bolt12)
	if len(invoice) > 0xffff {
		return fmt.Errorf("invoice too long: %d", len(invoice))
	}
	lenBytes := []byte{byte(len(invoice) >> 8), byte(len(invoice))}
	if _, err := w.Write(lenBytes); err != nil {
		return err
	}

	_, err := w.Write(invoice)
	return err
}

// AddPayment appends a payment under its label.
func (s *KVStore) AddPayment(payment *Payment) error {
	return kvdb.Update(s.db, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(paymentBucket)

		var b bytes.Buffer
		b.Write(bucket.Get([]byte(payment.Label)))
		if err := serializePayment(&b, payment); err != nil {
			return err
		}

		return bucket.Put([]byte(payment.Label), b.Bytes())
	}, func() {})
}

// ListPaymentsByLabel lists payments made under the given label.
func (s *KVStore) ListPaymentsByLabel(label string) ([]*Payment, error) {
	var payments []*Payment
	err := kvdb.View(s.db, func(tx kvdb.RTx) error {
		value := tx.ReadBucket(paymentBucket).Get([]byte(label))

		for len(value) > 0 {
			if len(value) < 3 {
				return fmt.Errorf("payment entry too short")
			}

			status := PaymentStatus(value[0])
			invoiceLen := int(value[1])<<8 | int(value[2])
			if len(value) < 3+invoiceLen {
				return fmt.Errorf("payment entry truncated")
			}

			payments = append(payments, &Payment{
				Label:  label,
				Status: status,
				Bolt12: string(value[3 : 3+invoiceLen]),
			})

			value = value[3+invoiceLen:]
		}

		return nil
	}, func() {
		payments = nil
	})
	if err != nil {
		return nil, err
	}

	return payments, nil
}
