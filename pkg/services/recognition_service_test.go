package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classlens-inc/classlens-engine/pkg/apperrors"
	"github.com/classlens-inc/classlens-engine/pkg/config"
	"github.com/classlens-inc/classlens-engine/pkg/models"
	"github.com/classlens-inc/classlens-engine/pkg/vision"
)

// mockRosterRepo implements repositories.RosterRepository over a fixed roster.
type mockRosterRepo struct {
	roster  models.Roster
	listErr error
}

func (m *mockRosterRepo) List(context.Context) (models.Roster, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.roster, nil
}

func (m *mockRosterRepo) GetByRoll(context.Context, string) (*models.Student, error) {
	return nil, apperrors.ErrNotFound
}
func (m *mockRosterRepo) Create(context.Context, *models.Student) error { return nil }
func (m *mockRosterRepo) Upsert(context.Context, []models.Student) (int, error) {
	return 0, nil
}

// mockLineRecognizer implements ocr.LineRecognizer.
type mockLineRecognizer struct {
	lines []models.DetectedLine
	err   error
	calls int
}

func (m *mockLineRecognizer) RecognizeLines(context.Context, []byte) ([]models.DetectedLine, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.lines, nil
}

// mockNameRecognizer implements vision.NameRecognizer.
type mockNameRecognizer struct {
	names       []string
	err         error
	calls       int
	absentNames []string
}

func (m *mockNameRecognizer) RecognizeNames(_ context.Context, _ []byte, absent []string) ([]string, error) {
	m.calls++
	m.absentNames = absent
	if m.err != nil {
		return nil, m.err
	}
	return m.names, nil
}

// mockVisionFactory implements vision.RecognizerFactory.
type mockVisionFactory struct {
	recognizer *mockNameRecognizer
	createErr  error
	calls      int
}

func (m *mockVisionFactory) Create(context.Context) (vision.NameRecognizer, error) {
	m.calls++
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.recognizer, nil
}

func testRoster() models.Roster {
	return models.Roster{
		{RollNumber: "R1", Name: "Alice Johnson"},
		{RollNumber: "R2", Name: "Bob Smith"},
		{RollNumber: "R3", Name: "Carol White"},
	}
}

func testRecognitionConfig() *config.RecognitionConfig {
	return &config.RecognitionConfig{
		ConfidenceThreshold: 0.75,
		EscalationLowBar:    0.75,
		ShortfallTolerance:  1,
		ExcessTolerance:     3,
		RetentionDays:       30,
	}
}

type recognitionFixture struct {
	svc     RecognitionService
	store   *memoryAttendanceStore
	ocr     *mockLineRecognizer
	factory *mockVisionFactory
}

func newRecognitionFixture(ocrMock *mockLineRecognizer, factory *mockVisionFactory, visionCfg *config.VisionConfig) *recognitionFixture {
	store := &memoryAttendanceStore{}
	reconciler := newTestReconciler(store, testDay)
	if visionCfg == nil {
		visionCfg = &config.VisionConfig{Provider: "openai"}
	}
	svc := NewRecognitionService(
		&mockRosterRepo{roster: testRoster()},
		ocrMock,
		factory,
		reconciler,
		testRecognitionConfig(),
		visionCfg,
		zap.NewNop(),
	)
	return &recognitionFixture{svc: svc, store: store, ocr: ocrMock, factory: factory}
}

func image() []byte { return []byte("fake-image-bytes") }

func TestProcessImage_HighConfidenceLocalPass(t *testing.T) {
	f := newRecognitionFixture(&mockLineRecognizer{lines: []models.DetectedLine{
		{Text: "1. Alice Johnson"},
		{Text: "2) Bob Smith"},
	}}, &mockVisionFactory{}, nil)

	outcome, err := f.svc.ProcessImage(context.Background(), image(), testDay)
	require.NoError(t, err)

	assert.Equal(t, models.StateDecided, outcome.State)
	assert.True(t, outcome.Presence["R1"])
	assert.True(t, outcome.Presence["R2"])
	assert.False(t, outcome.Presence["R3"])
	assert.Equal(t, 2, outcome.DetectedCount)
	assert.Equal(t, 2, outcome.PresentCount)
	assert.False(t, outcome.CountMismatch)
	assert.Empty(t, outcome.FallbackError)

	// The outcome carries a per-line audit trail of the local pass.
	require.Len(t, outcome.Matches, 2)
	assert.Equal(t, "Alice Johnson", outcome.Matches[0].CandidateString)
	assert.Equal(t, "R1", outcome.Matches[0].MatchedRollNumber)
	assert.Equal(t, 1.0, outcome.Matches[0].Score)
	assert.Equal(t, "R2", outcome.Matches[1].MatchedRollNumber)

	// Decided means merged: the full roster is persisted for the day.
	assert.Len(t, f.store.records, 3)
	// The fallback was never consulted.
	assert.Equal(t, 0, f.factory.calls)
	assert.Equal(t, models.StateDecided, f.svc.CurrentState())
}

func TestProcessImage_NoisyLinesStillMatch(t *testing.T) {
	f := newRecognitionFixture(&mockLineRecognizer{lines: []models.DetectedLine{
		{Text: "#1  ALICE  JOHNSON!!"},
		{Text: "bob smith"},
		{Text: "Carol  White."},
	}}, &mockVisionFactory{}, nil)

	outcome, err := f.svc.ProcessImage(context.Background(), image(), testDay)
	require.NoError(t, err)

	assert.Equal(t, models.StateDecided, outcome.State)
	assert.Equal(t, 3, outcome.PresentCount)
}

func TestProcessImage_OCRErrorIsNotFatal(t *testing.T) {
	f := newRecognitionFixture(&mockLineRecognizer{err: apperrors.ErrNoTextFound},
		&mockVisionFactory{}, nil)

	outcome, err := f.svc.ProcessImage(context.Background(), image(), testDay)
	require.NoError(t, err)

	// Zero matches makes the attempt escalation-eligible, not failed.
	assert.Equal(t, models.StateEscalationOffered, outcome.State)
	assert.Equal(t, 0, outcome.PresentCount)
	// Nothing is persisted until the offer settles.
	assert.Empty(t, f.store.records)
	assert.Equal(t, models.StateEscalationOffered, f.svc.CurrentState())
}

func TestProcessImage_MostlyLowConfidenceOffersEscalation(t *testing.T) {
	f := newRecognitionFixture(&mockLineRecognizer{lines: []models.DetectedLine{
		{Text: "Alice Johnson"},
		{Text: "zzqqxxvvkk"},
		{Text: "mmppwwrrtt"},
	}}, &mockVisionFactory{}, nil)

	outcome, err := f.svc.ProcessImage(context.Background(), image(), testDay)
	require.NoError(t, err)

	// Two of three best scores fall below the low bar.
	assert.Equal(t, models.StateEscalationOffered, outcome.State)
	// The confident match is already applied in the offered decision.
	assert.True(t, outcome.Presence["R1"])
	assert.Equal(t, 1, outcome.PresentCount)

	// Low-confidence lines still show up in the audit trail, unmatched.
	require.Len(t, outcome.Matches, 3)
	assert.Equal(t, "R1", outcome.Matches[0].MatchedRollNumber)
	assert.Empty(t, outcome.Matches[1].MatchedRollNumber)
	assert.Empty(t, outcome.Matches[2].MatchedRollNumber)
}

func TestProcessImage_ShortfallFlagsMismatch(t *testing.T) {
	// Four detected lines but only three can match: the sheet has a name
	// the roster does not. Majority match confidently, so no escalation.
	f := newRecognitionFixture(&mockLineRecognizer{lines: []models.DetectedLine{
		{Text: "Alice Johnson"},
		{Text: "Bob Smith"},
		{Text: "Carol White"},
		{Text: "Unknown Visitor"},
	}}, &mockVisionFactory{}, nil)

	outcome, err := f.svc.ProcessImage(context.Background(), image(), testDay)
	require.NoError(t, err)

	assert.Equal(t, models.StateDecided, outcome.State)
	assert.Equal(t, 4, outcome.DetectedCount)
	assert.Equal(t, 3, outcome.PresentCount)
	assert.True(t, outcome.CountMismatch)
}

func TestMismatchTolerances(t *testing.T) {
	svc := &recognitionService{cfg: testRecognitionConfig()}

	tests := []struct {
		name     string
		detected int
		present  int
		want     bool
	}{
		{"exact agreement", 3, 3, false},
		{"shortfall of one flags", 4, 3, true},
		{"excess of one tolerated", 3, 4, false},
		{"excess at tolerance boundary", 3, 6, false},
		{"excess beyond tolerance flags", 3, 7, true},
		{"empty sheet", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.mismatch(tt.detected, tt.present))
		})
	}
}

func TestEscalate_ExcessBeyondToleranceFlagsMismatch(t *testing.T) {
	// The fallback reads far more signatures than the local pass saw
	// lines for, pushing present past detected by more than the excess
	// tolerance. Five confident lines plus six scribbles escalate; the
	// fallback then reads ten of the remaining eleven absentees.
	roster := models.Roster{
		{RollNumber: "S01", Name: "Alpha Ward"},
		{RollNumber: "S02", Name: "Bravo Quinn"},
		{RollNumber: "S03", Name: "Congo Marsh"},
		{RollNumber: "S04", Name: "Delta Frost"},
		{RollNumber: "S05", Name: "Echo Palmer"},
		{RollNumber: "S06", Name: "Foxtrot Reed"},
		{RollNumber: "S07", Name: "Golf Hunter"},
		{RollNumber: "S08", Name: "Hotel Mercer"},
		{RollNumber: "S09", Name: "India Brooks"},
		{RollNumber: "S10", Name: "Julia Stone"},
		{RollNumber: "S11", Name: "Kilo Draper"},
		{RollNumber: "S12", Name: "Lima Vance"},
		{RollNumber: "S13", Name: "Mike Harmon"},
		{RollNumber: "S14", Name: "Nova Fields"},
		{RollNumber: "S15", Name: "Oscar Tate"},
		{RollNumber: "S16", Name: "Papa Walsh"},
	}

	lines := []models.DetectedLine{
		{Text: "1. Alpha Ward"},
		{Text: "2. Bravo Quinn"},
		{Text: "3. Congo Marsh"},
		{Text: "4. Delta Frost"},
		{Text: "5. Echo Palmer"},
		{Text: "zzqqxxvv"},
		{Text: "mmppwwrr"},
		{Text: "kkjjhhgg"},
		{Text: "yyttuuii"},
		{Text: "bbnnccxx"},
		{Text: "qqwweerr"},
	}

	recognizer := &mockNameRecognizer{names: []string{
		"Foxtrot Reed", "Golf Hunter", "Hotel Mercer", "India Brooks",
		"Julia Stone", "Kilo Draper", "Lima Vance", "Mike Harmon",
		"Nova Fields", "Oscar Tate",
	}}

	store := &memoryAttendanceStore{}
	svc := NewRecognitionService(
		&mockRosterRepo{roster: roster},
		&mockLineRecognizer{lines: lines},
		&mockVisionFactory{recognizer: recognizer},
		newTestReconciler(store, testDay),
		testRecognitionConfig(),
		&config.VisionConfig{Provider: "openai"},
		zap.NewNop(),
	)

	offered, err := svc.ProcessImage(context.Background(), image(), testDay)
	require.NoError(t, err)
	require.Equal(t, models.StateEscalationOffered, offered.State)
	require.Equal(t, 11, offered.DetectedCount)
	require.Equal(t, 5, offered.PresentCount)

	outcome, err := svc.Escalate(context.Background(), offered.AttemptID, true)
	require.NoError(t, err)

	assert.Equal(t, models.StateDecided, outcome.State)
	assert.Equal(t, 15, outcome.PresentCount)
	// The local pass saw more lines than the fallback read names, so the
	// detection estimate stays at eleven and present exceeds it by four.
	assert.Equal(t, 11, outcome.DetectedCount)
	assert.True(t, outcome.CountMismatch)
	assert.False(t, outcome.Presence["S16"])
	assert.Len(t, store.records, 16)
}

func TestEscalate_DeclineFinalizesLocalDecision(t *testing.T) {
	f := newRecognitionFixture(&mockLineRecognizer{lines: []models.DetectedLine{
		{Text: "Alice Johnson"},
		{Text: "xxxxyyyyzzzz"},
		{Text: "qqqqwwwweeee"},
	}}, &mockVisionFactory{recognizer: &mockNameRecognizer{}}, nil)

	offered, err := f.svc.ProcessImage(context.Background(), image(), testDay)
	require.NoError(t, err)
	require.Equal(t, models.StateEscalationOffered, offered.State)

	outcome, err := f.svc.Escalate(context.Background(), offered.AttemptID, false)
	require.NoError(t, err)

	assert.Equal(t, models.StateDecided, outcome.State)
	assert.True(t, outcome.Presence["R1"])
	assert.Len(t, f.store.records, 3)
	// Declining never touches the vision service.
	assert.Equal(t, 0, f.factory.calls)
}

func TestEscalate_AcceptUpgradesAbsentStudents(t *testing.T) {
	recognizer := &mockNameRecognizer{names: []string{"Bob Smith", "Carol White"}}
	f := newRecognitionFixture(&mockLineRecognizer{lines: []models.DetectedLine{
		{Text: "Alice Johnson"},
		{Text: "scribble one"},
		{Text: "scribble two"},
	}}, &mockVisionFactory{recognizer: recognizer}, nil)

	offered, err := f.svc.ProcessImage(context.Background(), image(), testDay)
	require.NoError(t, err)
	require.Equal(t, models.StateEscalationOffered, offered.State)

	outcome, err := f.svc.Escalate(context.Background(), offered.AttemptID, true)
	require.NoError(t, err)

	assert.Equal(t, models.StateDecided, outcome.State)
	assert.True(t, outcome.Presence["R1"])
	assert.True(t, outcome.Presence["R2"])
	assert.True(t, outcome.Presence["R3"])
	assert.Equal(t, 3, outcome.PresentCount)
	assert.Empty(t, outcome.FallbackError)

	// The fallback only saw still-absent students as context.
	assert.ElementsMatch(t, []string{"Bob Smith", "Carol White"}, recognizer.absentNames)
	assert.Len(t, f.store.records, 3)
}

func TestEscalate_FallbackNeverDowngrades(t *testing.T) {
	// The fallback re-reads Alice, who the local pass already marked
	// present, and nothing else.
	recognizer := &mockNameRecognizer{names: []string{"Alice Johnson"}}
	f := newRecognitionFixture(&mockLineRecognizer{lines: []models.DetectedLine{
		{Text: "Alice Johnson"},
		{Text: "scribble one"},
		{Text: "scribble two"},
	}}, &mockVisionFactory{recognizer: recognizer}, nil)

	offered, err := f.svc.ProcessImage(context.Background(), image(), testDay)
	require.NoError(t, err)

	outcome, err := f.svc.Escalate(context.Background(), offered.AttemptID, true)
	require.NoError(t, err)

	assert.True(t, outcome.Presence["R1"])
	assert.Equal(t, 1, outcome.PresentCount)
}

func TestEscalate_FallbackErrorAttachesButLocalMarksPersist(t *testing.T) {
	recognizer := &mockNameRecognizer{err: vision.NewError(vision.KindNetwork, "provider unreachable", true, nil)}
	f := newRecognitionFixture(&mockLineRecognizer{lines: []models.DetectedLine{
		{Text: "Alice Johnson"},
		{Text: "scribble one"},
		{Text: "scribble two"},
	}}, &mockVisionFactory{recognizer: recognizer}, nil)

	offered, err := f.svc.ProcessImage(context.Background(), image(), testDay)
	require.NoError(t, err)

	outcome, err := f.svc.Escalate(context.Background(), offered.AttemptID, true)
	require.NoError(t, err)

	assert.Equal(t, models.StateDecided, outcome.State)
	assert.NotEmpty(t, outcome.FallbackError)
	// The local mark survives the fallback failure and is persisted.
	assert.True(t, outcome.Presence["R1"])
	assert.Len(t, f.store.records, 3)
}

func TestEscalate_FallbackErrorIsBounded(t *testing.T) {
	// Provider SDKs sometimes echo whole response bodies in their
	// errors; the outcome must not carry that verbatim to clients.
	recognizer := &mockNameRecognizer{
		err: vision.NewError(vision.KindInvalidResponse, strings.Repeat("x", 2000), false, nil),
	}
	f := newRecognitionFixture(&mockLineRecognizer{err: apperrors.ErrNoTextFound},
		&mockVisionFactory{recognizer: recognizer}, nil)

	offered, err := f.svc.ProcessImage(context.Background(), image(), testDay)
	require.NoError(t, err)

	outcome, err := f.svc.Escalate(context.Background(), offered.AttemptID, true)
	require.NoError(t, err)

	require.NotEmpty(t, outcome.FallbackError)
	assert.LessOrEqual(t, len(outcome.FallbackError), maxFallbackErrorLen+len("..."))
	assert.True(t, strings.HasSuffix(outcome.FallbackError, "..."))
}

func TestEscalate_MissingCredentialShortCircuits(t *testing.T) {
	factory := &mockVisionFactory{createErr: apperrors.ErrCredentialMissing}
	f := newRecognitionFixture(&mockLineRecognizer{err: apperrors.ErrNoTextFound}, factory, nil)

	offered, err := f.svc.ProcessImage(context.Background(), image(), testDay)
	require.NoError(t, err)

	outcome, err := f.svc.Escalate(context.Background(), offered.AttemptID, true)
	require.NoError(t, err)

	assert.Equal(t, models.StateDecided, outcome.State)
	assert.Contains(t, outcome.FallbackError, "credential")
	assert.Equal(t, 1, factory.calls)
}

func TestEscalate_StaleAttemptRejected(t *testing.T) {
	f := newRecognitionFixture(&mockLineRecognizer{err: apperrors.ErrNoTextFound},
		&mockVisionFactory{}, nil)

	first, err := f.svc.ProcessImage(context.Background(), image(), testDay)
	require.NoError(t, err)

	// A new attempt supersedes the unanswered offer.
	second, err := f.svc.ProcessImage(context.Background(), image(), testDay)
	require.NoError(t, err)
	require.NotEqual(t, first.AttemptID, second.AttemptID)

	_, err = f.svc.Escalate(context.Background(), first.AttemptID, true)
	assert.ErrorIs(t, err, apperrors.ErrStaleAttempt)

	// The current offer still settles normally.
	outcome, err := f.svc.Escalate(context.Background(), second.AttemptID, false)
	require.NoError(t, err)
	assert.Equal(t, models.StateDecided, outcome.State)
}

func TestEscalate_NoPendingOffer(t *testing.T) {
	f := newRecognitionFixture(&mockLineRecognizer{}, &mockVisionFactory{}, nil)

	_, err := f.svc.Escalate(context.Background(), uuid.New(), true)
	assert.ErrorIs(t, err, apperrors.ErrNoPendingEscalation)
}

func TestProcessImage_BusyRejectsReentry(t *testing.T) {
	f := newRecognitionFixture(&mockLineRecognizer{}, &mockVisionFactory{}, nil)

	svc := f.svc.(*recognitionService)
	svc.mu.Lock()
	svc.busy = true
	svc.mu.Unlock()

	_, err := f.svc.ProcessImage(context.Background(), image(), testDay)
	assert.ErrorIs(t, err, apperrors.ErrRecognitionBusy)

	_, err = f.svc.Escalate(context.Background(), uuid.New(), true)
	assert.ErrorIs(t, err, apperrors.ErrRecognitionBusy)
}

func TestProcessImage_AutoEscalateRunsFallbackInline(t *testing.T) {
	recognizer := &mockNameRecognizer{names: []string{"Carol White"}}
	f := newRecognitionFixture(&mockLineRecognizer{err: apperrors.ErrNoTextFound},
		&mockVisionFactory{recognizer: recognizer},
		&config.VisionConfig{Provider: "openai", AutoEscalate: true})

	outcome, err := f.svc.ProcessImage(context.Background(), image(), testDay)
	require.NoError(t, err)

	// No offer round-trip: the attempt goes straight to decided.
	assert.Equal(t, models.StateDecided, outcome.State)
	assert.True(t, outcome.Presence["R3"])
	assert.Equal(t, 1, recognizer.calls)
	assert.Len(t, f.store.records, 3)
}

func TestProcessImage_EachAttemptStartsAllAbsent(t *testing.T) {
	ocrMock := &mockLineRecognizer{lines: []models.DetectedLine{
		{Text: "Alice Johnson"},
		{Text: "Bob Smith"},
	}}
	f := newRecognitionFixture(ocrMock, &mockVisionFactory{}, nil)

	_, err := f.svc.ProcessImage(context.Background(), image(), testDay)
	require.NoError(t, err)

	// The second photo shows only Bob. Alice's earlier mark must not
	// leak into the new attempt, and the merge supersedes the day.
	ocrMock.lines = []models.DetectedLine{{Text: "Bob Smith"}}
	outcome, err := f.svc.ProcessImage(context.Background(), image(), testDay)
	require.NoError(t, err)

	assert.False(t, outcome.Presence["R1"])
	assert.True(t, outcome.Presence["R2"])

	for _, rec := range f.store.records {
		if rec.StudentRollNumber == "R1" {
			assert.False(t, rec.IsPresent)
		}
	}
}

func TestProcessImage_RosterErrorIsFatal(t *testing.T) {
	store := &memoryAttendanceStore{}
	reconciler := newTestReconciler(store, testDay)
	svc := NewRecognitionService(
		&mockRosterRepo{listErr: errors.New("database down")},
		&mockLineRecognizer{},
		&mockVisionFactory{},
		reconciler,
		testRecognitionConfig(),
		&config.VisionConfig{},
		zap.NewNop(),
	)

	_, err := svc.ProcessImage(context.Background(), image(), testDay)
	require.Error(t, err)
	// The coordinator is reusable after a fatal error.
	assert.Equal(t, models.StateIdle, svc.CurrentState())
}
