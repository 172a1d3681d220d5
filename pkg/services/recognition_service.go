package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classlens-inc/classlens-engine/pkg/apperrors"
	"github.com/classlens-inc/classlens-engine/pkg/config"
	"github.com/classlens-inc/classlens-engine/pkg/logging"
	"github.com/classlens-inc/classlens-engine/pkg/models"
	"github.com/classlens-inc/classlens-engine/pkg/ocr"
	"github.com/classlens-inc/classlens-engine/pkg/repositories"
	"github.com/classlens-inc/classlens-engine/pkg/textmatch"
	"github.com/classlens-inc/classlens-engine/pkg/vision"
)

// RecognitionService coordinates one attendance attempt from photo to
// persisted records: local OCR, fuzzy matching, the escalation decision,
// the optional fallback vision pass, and the merge into the store.
type RecognitionService interface {
	// ProcessImage runs the local recognition pass over a sign-in sheet
	// photo for the given calendar day. The returned outcome is either
	// decided (records already merged) or an escalation offer awaiting
	// Escalate. Returns ErrRecognitionBusy while another attempt is in
	// flight; starting a new attempt discards any pending offer.
	ProcessImage(ctx context.Context, image []byte, date time.Time) (*models.RecognitionOutcome, error)

	// Escalate settles a pending escalation offer. With accept the
	// fallback vision pass runs over the same photo; without it the
	// local decision is finalized as-is. Either way the attempt ends
	// decided and its records are merged. Returns ErrNoPendingEscalation
	// when no offer is outstanding and ErrStaleAttempt when attemptID
	// does not name the outstanding offer.
	Escalate(ctx context.Context, attemptID uuid.UUID, accept bool) (*models.RecognitionOutcome, error)

	// CurrentState reports where the coordinator is right now.
	CurrentState() models.RecognitionState
}

// pendingAttempt holds everything needed to settle an escalation offer
// later: the photo, the day, and the local-pass decision.
type pendingAttempt struct {
	id      uuid.UUID
	image   []byte
	date    time.Time
	outcome *models.RecognitionOutcome
	roster  models.Roster
}

type recognitionService struct {
	roster     repositories.RosterRepository
	recognizer ocr.LineRecognizer
	visions    vision.RecognizerFactory
	reconciler ReconcileService
	cfg        *config.RecognitionConfig
	visionCfg  *config.VisionConfig
	logger     *zap.Logger

	// mu guards state, busy, and pending. The recognition work itself
	// runs outside the lock; busy keeps the coordinator non-reentrant.
	mu      sync.Mutex
	state   models.RecognitionState
	busy    bool
	pending *pendingAttempt
}

// NewRecognitionService creates a new RecognitionService.
func NewRecognitionService(
	roster repositories.RosterRepository,
	recognizer ocr.LineRecognizer,
	visionFactory vision.RecognizerFactory,
	reconciler ReconcileService,
	cfg *config.RecognitionConfig,
	visionCfg *config.VisionConfig,
	logger *zap.Logger,
) RecognitionService {
	return &recognitionService{
		roster:     roster,
		recognizer: recognizer,
		visions:    visionFactory,
		reconciler: reconciler,
		cfg:        cfg,
		visionCfg:  visionCfg,
		logger:     logger.Named("recognition"),
		state:      models.StateIdle,
	}
}

var _ RecognitionService = (*recognitionService)(nil)

func (s *recognitionService) CurrentState() models.RecognitionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *recognitionService) ProcessImage(ctx context.Context, image []byte, date time.Time) (*models.RecognitionOutcome, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, apperrors.ErrRecognitionBusy
	}
	if s.pending != nil {
		// A new attempt supersedes an unanswered offer.
		s.logger.Info("discarding stale escalation offer",
			zap.String("attempt_id", s.pending.id.String()))
		s.pending = nil
	}
	s.busy = true
	s.state = models.StateProcessingLocal
	s.mu.Unlock()

	outcome, err := s.processLocal(ctx, image, date)
	if err != nil {
		s.settle(models.StateIdle)
		return nil, err
	}

	if outcome.State == models.StateEscalationOffered {
		s.mu.Lock()
		s.busy = false
		s.state = models.StateEscalationOffered
		s.mu.Unlock()
		return outcome, nil
	}

	if _, err := s.reconciler.Merge(ctx, date, outcome.Presence); err != nil {
		s.settle(models.StateIdle)
		return nil, err
	}

	s.settle(models.StateDecided)
	return outcome, nil
}

// processLocal runs OCR and matching and decides whether to escalate.
func (s *recognitionService) processLocal(ctx context.Context, image []byte, date time.Time) (*models.RecognitionOutcome, error) {
	roster, err := s.roster.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}

	// Hard reset: every attempt starts all-absent.
	decision := models.NewPresenceDecision(roster)
	names := roster.Names()
	byName := roster.ByName()

	lines, err := s.recognizer.RecognizeLines(ctx, image)
	if err != nil {
		// OCR failure is never fatal. The attempt continues with zero
		// matches, which makes it escalation-eligible.
		s.logger.Warn("local recognition failed", zap.Error(err))
		lines = nil
	}

	var bestScores []float64
	var matches []models.MatchResult
	for _, line := range lines {
		match, ok := textmatch.BestMatch(line.Text, names)
		if !ok {
			continue
		}
		bestScores = append(bestScores, match.Score)
		result := models.MatchResult{
			CandidateString: textmatch.Clean(line.Text),
			Score:           match.Score,
		}
		if match.Score >= s.cfg.ConfidenceThreshold {
			roll := byName[match.Candidate]
			decision[roll] = true
			result.MatchedRollNumber = roll
		}
		matches = append(matches, result)
	}

	lowCount := 0
	for _, score := range bestScores {
		if score < s.cfg.EscalationLowBar {
			lowCount++
		}
	}
	// Escalate on zero matches, or when more than half of them score
	// below the low bar.
	escalate := len(bestScores) == 0 || lowCount*2 > len(bestScores)

	outcome := &models.RecognitionOutcome{
		AttemptID:     uuid.New(),
		Date:          models.DayOf(date),
		Presence:      decision,
		Matches:       matches,
		DetectedCount: len(lines),
		PresentCount:  decision.PresentCount(),
	}
	outcome.CountMismatch = s.mismatch(outcome.DetectedCount, outcome.PresentCount)

	s.logger.Info("local pass complete",
		zap.String("attempt_id", outcome.AttemptID.String()),
		zap.Int("lines", len(lines)),
		zap.Int("present", outcome.PresentCount),
		zap.Int("low_confidence", lowCount),
		zap.Bool("escalate", escalate))

	if !escalate {
		outcome.State = models.StateDecided
		return outcome, nil
	}

	if s.visionCfg.AutoEscalate {
		s.setState(models.StateProcessingFallback)
		s.runFallback(ctx, image, roster, outcome)
		outcome.State = models.StateDecided
		return outcome, nil
	}

	outcome.State = models.StateEscalationOffered
	s.mu.Lock()
	s.pending = &pendingAttempt{
		id:      outcome.AttemptID,
		image:   image,
		date:    models.DayOf(date),
		outcome: outcome,
		roster:  roster,
	}
	s.mu.Unlock()

	return outcome, nil
}

func (s *recognitionService) Escalate(ctx context.Context, attemptID uuid.UUID, accept bool) (*models.RecognitionOutcome, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, apperrors.ErrRecognitionBusy
	}
	if s.pending == nil {
		s.mu.Unlock()
		return nil, apperrors.ErrNoPendingEscalation
	}
	if s.pending.id != attemptID {
		s.mu.Unlock()
		return nil, apperrors.ErrStaleAttempt
	}
	attempt := s.pending
	s.pending = nil
	s.busy = true
	if accept {
		s.state = models.StateProcessingFallback
	}
	s.mu.Unlock()

	outcome := attempt.outcome

	if accept {
		s.runFallback(ctx, attempt.image, attempt.roster, outcome)
	} else {
		s.logger.Info("escalation declined, finalizing local decision",
			zap.String("attempt_id", attemptID.String()))
	}

	outcome.State = models.StateDecided

	if _, err := s.reconciler.Merge(ctx, attempt.date, outcome.Presence); err != nil {
		s.settle(models.StateIdle)
		return nil, err
	}

	s.settle(models.StateDecided)
	return outcome, nil
}

// runFallback sends the photo to the vision service and upgrades the
// decision with any names it reads. Only still-absent students are
// candidates; present marks from the local pass are never reverted.
// Failures are attached to the outcome, never returned.
func (s *recognitionService) runFallback(ctx context.Context, image []byte, roster models.Roster, outcome *models.RecognitionOutcome) {
	recognizer, err := s.visions.Create(ctx)
	if err != nil {
		s.attachFallbackError(outcome, err)
		return
	}

	absentNames := roster.AbsentNames(outcome.Presence)
	byName := roster.ByName()

	names, err := recognizer.RecognizeNames(ctx, image, absentNames)
	if err != nil {
		s.attachFallbackError(outcome, err)
		return
	}

	upgraded := 0
	for _, name := range names {
		match, ok := textmatch.BestMatch(name, absentNames)
		if !ok || match.Score < s.cfg.ConfidenceThreshold {
			continue
		}
		roll := byName[match.Candidate]
		if !outcome.Presence[roll] {
			outcome.Presence[roll] = true
			upgraded++
		}
	}

	outcome.PresentCount = outcome.Presence.PresentCount()
	// The fallback may read signatures the local pass missed entirely,
	// so take the larger line count as the detection estimate.
	if len(names) > outcome.DetectedCount {
		outcome.DetectedCount = len(names)
	}
	outcome.CountMismatch = s.mismatch(outcome.DetectedCount, outcome.PresentCount)

	s.logger.Info("fallback pass complete",
		zap.String("attempt_id", outcome.AttemptID.String()),
		zap.Int("names", len(names)),
		zap.Int("upgraded", upgraded))
}

// maxFallbackErrorLen bounds the provider error echoed back to clients;
// vision SDKs sometimes embed whole response bodies in their errors.
const maxFallbackErrorLen = 300

func (s *recognitionService) attachFallbackError(outcome *models.RecognitionOutcome, err error) {
	kind := vision.KindOf(err)
	if errors.Is(err, apperrors.ErrCredentialMissing) {
		kind = vision.KindCredential
	}

	s.logger.Warn("fallback pass failed",
		zap.String("attempt_id", outcome.AttemptID.String()),
		zap.String("kind", string(kind)),
		zap.Error(err))

	outcome.FallbackError = logging.TruncateString(logging.SanitizeError(err), maxFallbackErrorLen)
}

// mismatch applies the asymmetric detected-vs-present tolerance: a
// shortfall of even one name is worth flagging, a small excess is not.
func (s *recognitionService) mismatch(detected, present int) bool {
	if detected-present >= s.cfg.ShortfallTolerance && detected > present {
		return true
	}
	return present-detected > s.cfg.ExcessTolerance
}

func (s *recognitionService) setState(state models.RecognitionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// settle releases the busy flag and records the final state of the
// attempt.
func (s *recognitionService) settle(state models.RecognitionState) {
	s.mu.Lock()
	s.busy = false
	s.state = state
	s.mu.Unlock()
}
