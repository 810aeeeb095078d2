package store

import (
	"encoding/binary"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	bolt "go.etcd.io/bbolt"

	"main/internal/model"
	"main/pkg/exception"
)

const (
	bucketOrders     = "orders"
	bucketIntents    = "orders_by_intent"
	bucketExecutions = "executions"
	bucketPositions  = "positions"
	bucketJournal    = "journal"
)

// BoltStore persists all records in a single bbolt file. bbolt runs one
// write transaction at a time and fsyncs on commit, which gives the
// single-writer, many-reader behavior the contract asks for without an
// extra process-wide mutex.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open bolt db").With("path", path)
	}
	s := &BoltStore{db: db}
	if err := s.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BoltStore) ensureBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketOrders, bucketIntents, bucketExecutions, bucketPositions, bucketJournal} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) UpsertOrder(o model.Order) error {
	if o.ClientOrderID == "" {
		return exception.ErrOrderMissingClientID
	}
	o.LastUpdateTs = time.Now().UTC().UnixNano()
	return s.db.Update(func(tx *bolt.Tx) error {
		orders := tx.Bucket([]byte(bucketOrders))
		intents := tx.Bucket([]byte(bucketIntents))
		key := []byte(o.ClientOrderID)

		if prev := orders.Get(key); prev != nil {
			var old model.Order
			if err := sonic.ConfigFastest.Unmarshal(prev, &old); err == nil &&
				old.IntentHash != "" && old.IntentHash != o.IntentHash {
				if err := intents.Delete([]byte(old.IntentHash)); err != nil {
					return err
				}
			}
		}

		buf, err := sonic.ConfigFastest.Marshal(o)
		if err != nil {
			return errors.Wrap(err, "marshal order")
		}
		if err := orders.Put(key, buf); err != nil {
			return err
		}
		if o.IntentHash != "" {
			return intents.Put([]byte(o.IntentHash), key)
		}
		return nil
	})
}

func (s *BoltStore) UpdateOrderState(clientOrderID string, state model.OrderState, patch OrderPatch) error {
	now := time.Now().UTC().UnixNano()
	return s.db.Update(func(tx *bolt.Tx) error {
		orders := tx.Bucket([]byte(bucketOrders))
		key := []byte(clientOrderID)
		prev := orders.Get(key)
		if prev == nil {
			// Zero rows affected. Callers detect this by re-reading.
			return nil
		}
		var o model.Order
		if err := sonic.ConfigFastest.Unmarshal(prev, &o); err != nil {
			return errors.Wrap(err, "unmarshal order").With("client_order_id", clientOrderID)
		}
		o.State = state
		o.LastUpdateTs = now
		if patch.BrokerOrderID != nil {
			o.BrokerOrderID = *patch.BrokerOrderID
		}
		if patch.FilledQty != nil {
			o.FilledQty = *patch.FilledQty
		}
		if patch.Raw != nil {
			o.Raw = *patch.Raw
		}
		buf, err := sonic.ConfigFastest.Marshal(o)
		if err != nil {
			return errors.Wrap(err, "marshal order")
		}
		return orders.Put(key, buf)
	})
}

func (s *BoltStore) AppendExecution(e model.Execution) error {
	if e.EventTs == 0 {
		e.EventTs = time.Now().UTC().UnixNano()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		executions := tx.Bucket([]byte(bucketExecutions))
		seq, err := executions.NextSequence()
		if err != nil {
			return err
		}
		e.ID = seq
		buf, err := sonic.ConfigFastest.Marshal(e)
		if err != nil {
			return errors.Wrap(err, "marshal execution")
		}
		return executions.Put(seqKey(seq), buf)
	})
}

func (s *BoltStore) ReplacePositions(ps []model.Position) error {
	now := time.Now().UTC().UnixNano()
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketPositions)); err != nil {
			return err
		}
		positions, err := tx.CreateBucket([]byte(bucketPositions))
		if err != nil {
			return err
		}
		for _, p := range ps {
			if p.LastUpdateTs == 0 {
				p.LastUpdateTs = now
			}
			buf, err := sonic.ConfigFastest.Marshal(p)
			if err != nil {
				return errors.Wrap(err, "marshal position").With("symbol", p.Symbol)
			}
			if err := positions.Put([]byte(p.Symbol), buf); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) AppendJournal(category, message string, details any) error {
	entry := model.JournalEntry{
		Ts:       time.Now().UTC().UnixNano(),
		Category: category,
		Message:  message,
	}
	if details != nil {
		entry.Details = model.EncodeRaw(details)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		journal := tx.Bucket([]byte(bucketJournal))
		seq, err := journal.NextSequence()
		if err != nil {
			return err
		}
		entry.ID = seq
		buf, err := sonic.ConfigFastest.Marshal(entry)
		if err != nil {
			return errors.Wrap(err, "marshal journal entry")
		}
		return journal.Put(seqKey(seq), buf)
	})
}

func (s *BoltStore) TailJournal(n int) ([]model.JournalEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	out := make([]model.JournalEntry, 0, n)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketJournal)).Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var entry model.JournalEntry
			if err := sonic.ConfigFastest.Unmarshal(v, &entry); err != nil {
				return errors.Wrap(err, "unmarshal journal entry")
			}
			out = append(out, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Cursor walked newest-first; return oldest-to-newest.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *BoltStore) OpenOrders() ([]model.Order, error) {
	var out []model.Order
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketOrders)).ForEach(func(_, v []byte) error {
			var o model.Order
			if err := sonic.ConfigFastest.Unmarshal(v, &o); err != nil {
				return errors.Wrap(err, "unmarshal order")
			}
			if o.State.Open() {
				out = append(out, o)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) OrderByCOID(clientOrderID string) (model.Order, error) {
	var o model.Order
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketOrders)).Get([]byte(clientOrderID))
		if v == nil {
			return exception.ErrStoreNotFound
		}
		return sonic.ConfigFastest.Unmarshal(v, &o)
	})
	return o, err
}

func (s *BoltStore) OrderByIntent(intentHash string) (model.Order, error) {
	var o model.Order
	err := s.db.View(func(tx *bolt.Tx) error {
		coid := tx.Bucket([]byte(bucketIntents)).Get([]byte(intentHash))
		if coid == nil {
			return exception.ErrStoreNotFound
		}
		v := tx.Bucket([]byte(bucketOrders)).Get(coid)
		if v == nil {
			return exception.ErrStoreNotFound
		}
		return sonic.ConfigFastest.Unmarshal(v, &o)
	})
	return o, err
}

func (s *BoltStore) Positions() ([]model.Position, error) {
	var out []model.Position
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketPositions)).ForEach(func(_, v []byte) error {
			var p model.Position
			if err := sonic.ConfigFastest.Unmarshal(v, &p); err != nil {
				return errors.Wrap(err, "unmarshal position")
			}
			out = append(out, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) MetricsSnapshot() (model.StoreMetrics, error) {
	metrics := model.StoreMetrics{OrdersByState: make(map[model.OrderState]int64)}
	err := s.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(bucketOrders)).ForEach(func(_, v []byte) error {
			var o model.Order
			if err := sonic.ConfigFastest.Unmarshal(v, &o); err != nil {
				return errors.Wrap(err, "unmarshal order")
			}
			metrics.OrdersByState[o.State]++
			return nil
		}); err != nil {
			return err
		}
		metrics.Executions = int64(tx.Bucket([]byte(bucketExecutions)).Stats().KeyN)
		return nil
	})
	if err != nil {
		return model.StoreMetrics{}, err
	}
	return metrics, nil
}

func seqKey(seq uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], seq)
	return key[:]
}
