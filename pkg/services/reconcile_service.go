package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/classlens-inc/classlens-engine/pkg/models"
	"github.com/classlens-inc/classlens-engine/pkg/repositories"
)

// ReconcileService merges presence decisions into the persisted record
// collection and answers day-level queries over it.
type ReconcileService interface {
	// Merge folds a full-roster decision for one calendar day into the
	// store. Any prior records for the same (student, day) pairs are
	// replaced, so re-merging the same decision is a no-op.
	Merge(ctx context.Context, date time.Time, decision models.PresenceDecision) ([]models.AttendanceRecord, error)

	// RecordsForDay returns the stored records for one calendar day.
	RecordsForDay(ctx context.Context, date time.Time) ([]models.AttendanceRecord, error)

	// Toggle flips one student's presence for one day, for manual
	// correction after review. A student with no stored record is
	// treated as absent, so the first toggle marks them present.
	Toggle(ctx context.Context, date time.Time, rollNumber string) (models.AttendanceRecord, error)
}

type reconcileService struct {
	store         repositories.AttendanceStore
	retentionDays int
	logger        *zap.Logger

	// mu serializes read-modify-write cycles. The store only offers
	// whole-collection get/set, so concurrent merges would lose updates
	// without it.
	mu sync.Mutex

	// now is swapped in tests to pin the retention cutoff.
	now func() time.Time
}

// NewReconcileService creates a new ReconcileService.
func NewReconcileService(store repositories.AttendanceStore, retentionDays int, logger *zap.Logger) ReconcileService {
	return &reconcileService{
		store:         store,
		retentionDays: retentionDays,
		logger:        logger.Named("reconcile"),
		now:           time.Now,
	}
}

var _ ReconcileService = (*reconcileService)(nil)

func (s *reconcileService) Merge(ctx context.Context, date time.Time, decision models.PresenceDecision) ([]models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.GetRecords(ctx)
	if err != nil {
		return nil, err
	}

	day := models.DayOf(date)
	cutoff := s.retentionCutoff()

	// Keep everything inside the retention window that this decision
	// does not supersede.
	merged := make([]models.AttendanceRecord, 0, len(existing)+len(decision))
	for _, rec := range existing {
		if rec.Date.Before(cutoff) {
			continue
		}
		if models.SameDay(rec.Date, day) {
			if _, covered := decision[rec.StudentRollNumber]; covered {
				continue
			}
		}
		merged = append(merged, rec)
	}

	dayRecords := make([]models.AttendanceRecord, 0, len(decision))
	for roll, present := range decision {
		dayRecords = append(dayRecords, models.NewAttendanceRecord(day, roll, present))
	}
	sortRecords(dayRecords)
	merged = append(merged, dayRecords...)
	sortRecords(merged)

	if err := s.store.SetRecords(ctx, merged); err != nil {
		return nil, err
	}

	s.logger.Info("merged attendance decision",
		zap.Time("date", day),
		zap.Int("students", len(decision)),
		zap.Int("present", decision.PresentCount()),
		zap.Int("stored_total", len(merged)))

	return dayRecords, nil
}

func (s *reconcileService) RecordsForDay(ctx context.Context, date time.Time) ([]models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.store.GetRecords(ctx)
	if err != nil {
		return nil, err
	}

	dayRecords := make([]models.AttendanceRecord, 0)
	for _, rec := range records {
		if models.SameDay(rec.Date, date) {
			dayRecords = append(dayRecords, rec)
		}
	}
	sortRecords(dayRecords)

	return dayRecords, nil
}

func (s *reconcileService) Toggle(ctx context.Context, date time.Time, rollNumber string) (models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.store.GetRecords(ctx)
	if err != nil {
		return models.AttendanceRecord{}, err
	}

	day := models.DayOf(date)
	cutoff := s.retentionCutoff()

	var toggled models.AttendanceRecord
	found := false

	kept := make([]models.AttendanceRecord, 0, len(records)+1)
	for _, rec := range records {
		if rec.Date.Before(cutoff) {
			continue
		}
		if !found && rec.StudentRollNumber == rollNumber && models.SameDay(rec.Date, day) {
			rec.IsPresent = !rec.IsPresent
			toggled = rec
			found = true
		}
		kept = append(kept, rec)
	}

	if !found {
		toggled = models.NewAttendanceRecord(day, rollNumber, true)
		kept = append(kept, toggled)
	}
	sortRecords(kept)

	if err := s.store.SetRecords(ctx, kept); err != nil {
		return models.AttendanceRecord{}, err
	}

	s.logger.Info("toggled attendance",
		zap.Time("date", day),
		zap.String("roll_number", rollNumber),
		zap.Bool("is_present", toggled.IsPresent))

	return toggled, nil
}

func (s *reconcileService) retentionCutoff() time.Time {
	return models.DayOf(s.now()).AddDate(0, 0, -s.retentionDays)
}

// sortRecords orders by day then roll number so stored blobs and API
// responses are deterministic.
func sortRecords(records []models.AttendanceRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		return records[i].StudentRollNumber < records[j].StudentRollNumber
	})
}
