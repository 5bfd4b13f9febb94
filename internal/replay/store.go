package replay

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNoRecording is returned by the Player when no stored record matches
// an incoming request.
var ErrNoRecording = errors.New("replay: no recording for request")

// HTTPRecord is one recorded request/response pair.
type HTTPRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Method     string `gorm:"index:idx_req_lookup"`
	URL        string `gorm:"index:idx_req_lookup"`
	Query      string
	ReqBody    string
	StatusCode int
	RespBody   string
	RecordedAt time.Time
}

// Store persists HTTP records to a SQLite fixture database.
type Store struct {
	db *gorm.DB
}

// OpenStore opens (or creates) the fixture database at path.
// Use ":memory:" for an in-memory store.
func OpenStore(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open fixture db: %w", err)
	}
	if err := db.AutoMigrate(&HTTPRecord{}); err != nil {
		return nil, fmt.Errorf("migrate fixture db: %w", err)
	}
	return &Store{db: db}, nil
}

// Save persists a record.
func (s *Store) Save(rec *HTTPRecord) error {
	rec.RecordedAt = time.Now()
	return s.db.Create(rec).Error
}

// Find returns the most recent record matching method, URL and request body.
func (s *Store) Find(method, url, reqBody string) (*HTTPRecord, error) {
	var rec HTTPRecord
	err := s.db.
		Where("method = ? AND url = ? AND req_body = ?", method, url, reqBody).
		Order("id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s %s", ErrNoRecording, method, url)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns all records ordered by insertion.
func (s *Store) List() ([]HTTPRecord, error) {
	var recs []HTTPRecord
	if err := s.db.Order("id ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// Count returns the number of stored records.
func (s *Store) Count() (int64, error) {
	var n int64
	if err := s.db.Model(&HTTPRecord{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// PruneBefore deletes records recorded before cutoff and returns how many
// were removed.
func (s *Store) PruneBefore(cutoff time.Time) (int64, error) {
	res := s.db.Where("recorded_at < ?", cutoff).Delete(&HTTPRecord{})
	return res.RowsAffected, res.Error
}
