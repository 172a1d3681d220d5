package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/classlens-inc/classlens-engine/pkg/apperrors"
	"github.com/classlens-inc/classlens-engine/pkg/models"
)

// attendanceKey is the single key holding the whole record collection.
const attendanceKey = "classlens:attendance:records"

// AttendanceStore is the persistence substrate for attendance records.
// It deliberately exposes only whole-collection get/set - there is no
// partial update API - so the reconciler must read-modify-write under
// its own lock.
type AttendanceStore interface {
	GetRecords(ctx context.Context) ([]models.AttendanceRecord, error)
	SetRecords(ctx context.Context, records []models.AttendanceRecord) error
}

type redisAttendanceStore struct {
	client *redis.Client
}

// NewAttendanceStore creates a Redis-backed AttendanceStore. The full
// collection is stored as one JSON blob; record counts stay small (one
// record per student per day inside a 30-day window), so blob semantics
// cost nothing and keep dedup logic in one place.
func NewAttendanceStore(client *redis.Client) AttendanceStore {
	return &redisAttendanceStore{client: client}
}

var _ AttendanceStore = (*redisAttendanceStore)(nil)

func (s *redisAttendanceStore) GetRecords(ctx context.Context) ([]models.AttendanceRecord, error) {
	data, err := s.client.Get(ctx, attendanceKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return []models.AttendanceRecord{}, nil
		}
		return nil, fmt.Errorf("%w: get records: %v", apperrors.ErrStoreAccess, err)
	}

	var records []models.AttendanceRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: decode records: %v", apperrors.ErrStoreAccess, err)
	}

	return records, nil
}

func (s *redisAttendanceStore) SetRecords(ctx context.Context, records []models.AttendanceRecord) error {
	if records == nil {
		records = []models.AttendanceRecord{}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("%w: encode records: %v", apperrors.ErrStoreAccess, err)
	}

	if err := s.client.Set(ctx, attendanceKey, data, 0).Err(); err != nil {
		return fmt.Errorf("%w: set records: %v", apperrors.ErrStoreAccess, err)
	}

	return nil
}
