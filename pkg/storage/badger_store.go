package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/seo-audit/pkg/config"
	"github.com/Sriram-PR/seo-audit/pkg/log"
	"github.com/Sriram-PR/seo-audit/pkg/models"
	"github.com/Sriram-PR/seo-audit/pkg/utils"
)

const (
	reportKeyPrefix = "report:"    // report:<id> -> storedReport JSON
	indexKeyPrefix  = "idx:"       // idx:<unix-nano, zero padded>:<id> -> empty, for ordering
	historyDBDir    = "history_db" // Subdirectory name within stateDir for Badger DB files
)

// ErrReportNotFound is returned for unknown report ids
var ErrReportNotFound = fmt.Errorf("%w: report", utils.ErrNotFound)

// storedReport is the value kept under a report key
type storedReport struct {
	SavedAt int64              `json:"saved_at"` // Unix nanoseconds, also encoded in the index key
	Report  *models.ScanReport `json:"report"`
}

// BadgerStore implements the ReportStore interface using BadgerDB
type BadgerStore struct {
	db           *badger.DB
	historyLimit int // 0 = unlimited
	log          *logrus.Entry

	stampMu   sync.Mutex
	lastStamp int64 // Keeps index timestamps strictly increasing
}

var _ ReportStore = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) the report history database under cfg.StateDir
func NewBadgerStore(cfg config.StorageConfig, logger *logrus.Entry) (*BadgerStore, error) {
	if strings.TrimSpace(cfg.StateDir) == "" {
		return nil, fmt.Errorf("%w: storage.state_dir is empty", utils.ErrConfigValidation)
	}
	dbPath := filepath.Join(cfg.StateDir, historyDBDir)
	logger.Infof("Initializing report history database at: %s", dbPath)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", dbPath, err)
	}

	badgerLogger := log.NewBadgerAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %v", utils.ErrDatabase, dbPath, err)
	}

	store := &BadgerStore{
		db:           db,
		historyLimit: cfg.HistoryLimit,
		log:          logger,
	}
	logger.Info("Report history database initialized successfully.")
	return store, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

func (s *BadgerStore) nextStamp() int64 {
	s.stampMu.Lock()
	defer s.stampMu.Unlock()
	stamp := time.Now().UnixNano()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}
	s.lastStamp = stamp
	return stamp
}

func reportKey(id string) []byte {
	return []byte(reportKeyPrefix + id)
}

func indexKey(stamp int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", indexKeyPrefix, stamp, id))
}

// idFromIndexKey extracts the report id from an idx key
func idFromIndexKey(key []byte) (string, bool) {
	rest := bytes.TrimPrefix(key, []byte(indexKeyPrefix))
	sep := bytes.IndexByte(rest, ':')
	if sep < 0 {
		return "", false
	}
	return string(rest[sep+1:]), true
}

// getStored reads and decodes one report record inside txn
func getStored(txn *badger.Txn, id string) (*storedReport, error) {
	item, err := txn.Get(reportKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed getting report '%s': %w", utils.ErrDatabase, id, err)
	}
	var rec storedReport
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: JSON decode of report '%s': %v", utils.ErrParsing, id, err)
	}
	return &rec, nil
}

// SaveReport implements the ReportStore interface
func (s *BadgerStore) SaveReport(id string, report *models.ScanReport) error {
	if id == "" || report == nil {
		return fmt.Errorf("%w: report id and report are required", utils.ErrInvalidInput)
	}
	rec := storedReport{SavedAt: s.nextStamp(), Report: report}
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: JSON encode of report '%s': %v", utils.ErrParsing, id, err)
	}

	err = s.dbUpdate(func(txn *badger.Txn) error {
		// Replacing a report moves it to the front of the history
		prev, errGet := getStored(txn, id)
		if errGet == nil {
			if errDel := txn.Delete(indexKey(prev.SavedAt, id)); errDel != nil {
				return errDel
			}
		} else if !errors.Is(errGet, ErrReportNotFound) {
			return errGet
		}
		if errSet := txn.Set(reportKey(id), val); errSet != nil {
			return errSet
		}
		return txn.Set(indexKey(rec.SavedAt, id), []byte{})
	})
	if err != nil {
		s.log.WithField("report_id", id).Errorf("DB Update error in SaveReport: %v", err)
		return fmt.Errorf("%w: saving report '%s': %w", utils.ErrDatabase, id, err)
	}
	s.log.WithFields(logrus.Fields{"report_id": id, "target": report.Meta.TargetURL}).Debug("Report saved")

	if s.historyLimit > 0 {
		if pruned, err := s.prune(s.historyLimit); err != nil {
			s.log.Warnf("Failed to prune report history: %v", err)
		} else if pruned > 0 {
			s.log.Debugf("Pruned %d old reports (history_limit %d)", pruned, s.historyLimit)
		}
	}
	return nil
}

// GetReport implements the ReportStore interface
func (s *BadgerStore) GetReport(id string) (*models.ScanReport, error) {
	var report *models.ScanReport
	err := s.db.View(func(txn *badger.Txn) error {
		rec, err := getStored(txn, id)
		if err != nil {
			return err
		}
		report = rec.Report
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ListReports implements the ReportStore interface
func (s *BadgerStore) ListReports(limit int) ([]models.ReportSummary, error) {
	summaries := make([]models.ReportSummary, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		ids := newestIDs(txn, limit)
		for _, id := range ids {
			rec, err := getStored(txn, id)
			if errors.Is(err, ErrReportNotFound) {
				s.log.Warnf("Dangling history index entry for report '%s'", id)
				continue
			}
			if err != nil {
				return err
			}
			summaries = append(summaries, rec.Report.Summary(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// newestIDs walks the index in reverse (newest first), returning at most limit ids (all when limit <= 0)
func newestIDs(txn *badger.Txn, limit int) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = true
	opts.Prefix = []byte(indexKeyPrefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	// In reverse mode Seek lands on the largest key <= the seek key
	seekKey := append([]byte(indexKeyPrefix), 0xFF)
	for it.Seek(seekKey); it.Valid(); it.Next() {
		if limit > 0 && len(ids) >= limit {
			break
		}
		if id, ok := idFromIndexKey(it.Item().Key()); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// DeleteReport implements the ReportStore interface
func (s *BadgerStore) DeleteReport(id string) error {
	err := s.dbUpdate(func(txn *badger.Txn) error {
		rec, err := getStored(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(indexKey(rec.SavedAt, id)); err != nil {
			return err
		}
		return txn.Delete(reportKey(id))
	})
	if errors.Is(err, ErrReportNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: deleting report '%s': %w", utils.ErrDatabase, id, err)
	}
	return nil
}

// prune deletes the oldest reports beyond keep
func (s *BadgerStore) prune(keep int) (int, error) {
	var stale []string
	err := s.db.View(func(txn *badger.Txn) error {
		ids := newestIDs(txn, 0)
		if len(ids) > keep {
			stale = ids[keep:]
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, id := range stale {
		if err := s.DeleteReport(id); err != nil && !errors.Is(err, ErrReportNotFound) {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

// RunGC implements the ReportStore interface
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute // Default interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				s.log.Info("DB GC: Database is nil or closed, skipping GC cycle.")
				continue
			}

			s.log.Debug("Running BadgerDB value log garbage collection...")
			var err error
			// Loop GC until it returns ErrNoRewrite or another error
			for {
				if err = s.db.RunValueLogGC(0.5); err != nil {
					break
				}
				s.log.Debug("BadgerDB GC cycle completed.")
			}

			if errors.Is(err, badger.ErrNoRewrite) {
				s.log.Debug("BadgerDB GC finished (no rewrite needed).")
			} else {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Infof("Stopping BadgerDB garbage collection goroutine due to context cancellation: %v", ctx.Err())
			return
		}
	}
}

// Close implements the ReportStore interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Info("Closing report history DB...")
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing report history DB: %v", err)
			return err
		}
		s.log.Info("Report history DB closed.")
		return nil
	}
	s.log.Info("Report history DB already closed or was not initialized.")
	return nil
}
