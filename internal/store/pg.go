package store

import (
	stderrors "errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"main/internal/model"
	"main/pkg/exception"
)

const (
	defaultPgHost    = "localhost"
	defaultPgPort    = 5432
	defaultPgSSLMode = "disable"
)

// PgOption defines connection options for the PostgreSQL backend.
type PgOption struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	ConnString string
	Config     *gorm.Config
}

// PgStore is the server-deployment backend. A process-wide write mutex on
// top of per-statement transactions keeps it single-writer, many-reader;
// reconciliation polling, broker callbacks and UI actions all write here
// from independent goroutines.
type PgStore struct {
	writeMu sync.Mutex
	db      *gorm.DB
}

// NewPgStore connects and migrates the order-lifecycle tables.
func NewPgStore(opt PgOption) (*PgStore, error) {
	dsn, err := opt.dsn()
	if err != nil {
		return nil, err
	}
	config := opt.Config
	if config == nil {
		config = &gorm.Config{}
	}
	db, err := gorm.Open(postgres.Open(dsn), config)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.AutoMigrate(
		&model.Order{},
		&model.Execution{},
		&model.Position{},
		&model.JournalEntry{},
	); err != nil {
		return nil, errors.Wrap(err, "migrate order store schema")
	}
	return &PgStore{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *PgStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PgStore) UpsertOrder(o model.Order) error {
	if o.ClientOrderID == "" {
		return exception.ErrOrderMissingClientID
	}
	o.LastUpdateTs = time.Now().UTC().UnixNano()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "client_order_id"}},
		UpdateAll: true,
	}).Create(&o).Error
}

func (s *PgStore) UpdateOrderState(clientOrderID string, state model.OrderState, patch OrderPatch) error {
	values := map[string]any{
		"state":          state,
		"last_update_ts": time.Now().UTC().UnixNano(),
	}
	if patch.BrokerOrderID != nil {
		values["broker_order_id"] = *patch.BrokerOrderID
	}
	if patch.FilledQty != nil {
		values["filled_qty"] = *patch.FilledQty
	}
	if patch.Raw != nil {
		values["raw"] = *patch.Raw
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	// Unknown ids update zero rows by design; callers re-read to detect.
	return s.db.Model(&model.Order{}).
		Where("client_order_id = ?", clientOrderID).
		Updates(values).Error
}

func (s *PgStore) AppendExecution(e model.Execution) error {
	if e.EventTs == 0 {
		e.EventTs = time.Now().UTC().UnixNano()
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Create(&e).Error
}

func (s *PgStore) ReplacePositions(ps []model.Position) error {
	now := time.Now().UTC().UnixNano()
	for i := range ps {
		if ps[i].LastUpdateTs == 0 {
			ps[i].LastUpdateTs = now
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&model.Position{}).Error; err != nil {
			return err
		}
		if len(ps) == 0 {
			return nil
		}
		return tx.Create(&ps).Error
	})
}

func (s *PgStore) AppendJournal(category, message string, details any) error {
	entry := model.JournalEntry{
		Ts:       time.Now().UTC().UnixNano(),
		Category: category,
		Message:  message,
	}
	if details != nil {
		entry.Details = model.EncodeRaw(details)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Create(&entry).Error
}

func (s *PgStore) TailJournal(n int) ([]model.JournalEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	var out []model.JournalEntry
	if err := s.db.Order("id DESC").Limit(n).Find(&out).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *PgStore) OpenOrders() ([]model.Order, error) {
	var out []model.Order
	err := s.db.Where("state IN ?", model.OpenStates).Find(&out).Error
	return out, err
}

func (s *PgStore) OrderByCOID(clientOrderID string) (model.Order, error) {
	var o model.Order
	err := s.db.Where("client_order_id = ?", clientOrderID).First(&o).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return o, exception.ErrStoreNotFound
	}
	return o, err
}

func (s *PgStore) OrderByIntent(intentHash string) (model.Order, error) {
	var o model.Order
	err := s.db.Where("intent_hash = ?", intentHash).First(&o).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return o, exception.ErrStoreNotFound
	}
	return o, err
}

func (s *PgStore) Positions() ([]model.Position, error) {
	var out []model.Position
	err := s.db.Find(&out).Error
	return out, err
}

func (s *PgStore) MetricsSnapshot() (model.StoreMetrics, error) {
	metrics := model.StoreMetrics{OrdersByState: make(map[model.OrderState]int64)}

	type stateCount struct {
		State model.OrderState
		Count int64
	}
	var counts []stateCount
	if err := s.db.Model(&model.Order{}).
		Select("state", "COUNT(*) AS count").
		Group("state").
		Scan(&counts).Error; err != nil {
		return model.StoreMetrics{}, err
	}
	for _, c := range counts {
		metrics.OrdersByState[c.State] = c.Count
	}
	if err := s.db.Model(&model.Execution{}).Count(&metrics.Executions).Error; err != nil {
		return model.StoreMetrics{}, err
	}
	return metrics, nil
}

func (opt PgOption) dsn() (string, error) {
	if opt.ConnString != "" {
		return opt.ConnString, nil
	}

	host := opt.Host
	if host == "" {
		host = defaultPgHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPgPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPgSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}
	query := url.Values{}
	query.Set("sslmode", sslMode)
	u.RawQuery = query.Encode()
	return u.String(), nil
}
