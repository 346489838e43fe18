package consultation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TQuyenG/clinic-system-sub001/internal/config"
	"github.com/TQuyenG/clinic-system-sub001/internal/otp"
	redisclient "github.com/TQuyenG/clinic-system-sub001/internal/redis"
)

const (
	EventConsultationCreated   = "CONSULTATION_CREATED"
	EventConsultationConfirmed = "CONSULTATION_CONFIRMED"
	EventConsultationRejected  = "CONSULTATION_REJECTED"
	EventConsultationStarted   = "CONSULTATION_STARTED"
	EventConsultationCompleted = "CONSULTATION_COMPLETED"
	EventConsultationCancelled = "CONSULTATION_CANCELLED"
	EventReviewAdded           = "REVIEW_ADDED"
	EventRefundProcessed       = "REFUND_PROCESSED"
	EventOTPIssued             = "OTP_ISSUED"
	EventFeesUpdated           = "FEES_UPDATED"
)

// AutoCancelReason is the stored cancel reason when the sweep cancels a
// confirmed consultation nobody joined.
const AutoCancelReason = "Tự động hủy do không vào phòng tư vấn sau 10 phút"

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidRating      = errors.New("rating must be between 1 and 5")
	ErrInvalidRefund      = errors.New("refund amount must be positive")
	ErrStartWindowClosed  = errors.New("consultation room is not open at this time")
	ErrOTPUnavailable     = errors.New("otp can only be issued for a confirmed or in-progress consultation")
	ErrConsultationLocked = errors.New("consultation is being updated, please retry")
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	cfg    config.Config
	log    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		log:    log,
	}
}

// CreateParams is the booking payload. Fees are VND.
type CreateParams struct {
	PatientID          uuid.UUID
	DoctorID           uuid.UUID
	Type               Type
	SpecialtyID        *uuid.UUID
	PricingPackageID   *uuid.UUID
	AppointmentTime    time.Time
	ChiefComplaint     string
	MedicalHistory     *string
	CurrentMedications *string
	SymptomDuration    *string
	BaseFee            int64
	PlatformFee        int64
	Metadata           []byte
	PatientDeviceID    *string
}

func (p CreateParams) validate() error {
	if p.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patient_id is required", ErrValidation)
	}
	if p.DoctorID == uuid.Nil {
		return fmt.Errorf("%w: doctor_id is required", ErrValidation)
	}
	switch p.Type {
	case TypeChat, TypeVideo, TypeOffline:
	default:
		return fmt.Errorf("%w: consultation_type must be chat, video or offline", ErrValidation)
	}
	if p.AppointmentTime.IsZero() {
		return fmt.Errorf("%w: appointment_time is required", ErrValidation)
	}
	if p.ChiefComplaint == "" {
		return fmt.Errorf("%w: chief_complaint is required", ErrValidation)
	}
	if p.BaseFee < 0 || p.PlatformFee < 0 {
		return fmt.Errorf("%w: fees must not be negative", ErrValidation)
	}
	return nil
}

// Create books a new pending consultation. The consultation code is
// generated here, before the first persist, and never again; a unique-index
// conflict surfaces as ErrCodeConflict so the caller can retry the booking.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Consultation, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetUserByID(ctx, p.PatientID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: patient %s", ErrUserNotFound, p.PatientID)
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if _, err := s.repo.GetUserByID(ctx, p.DoctorID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: doctor %s", ErrUserNotFound, p.DoctorID)
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	c := &Consultation{
		Code:               NewCode(time.Now()),
		PatientID:          p.PatientID,
		DoctorID:           p.DoctorID,
		Type:               p.Type,
		SpecialtyID:        p.SpecialtyID,
		PricingPackageID:   p.PricingPackageID,
		AppointmentTime:    p.AppointmentTime,
		ChiefComplaint:     p.ChiefComplaint,
		MedicalHistory:     p.MedicalHistory,
		CurrentMedications: p.CurrentMedications,
		SymptomDuration:    p.SymptomDuration,
		BaseFee:            p.BaseFee,
		PlatformFee:        p.PlatformFee,
		Metadata:           p.Metadata,
		PatientDeviceID:    p.PatientDeviceID,
	}
	c.RecomputeTotal()

	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("create consultation: %w", err)
	}

	s.logEvent(ctx, created.ID, EventConsultationCreated, map[string]any{
		"consultation_code": created.Code,
		"patient_id":        created.PatientID.String(),
		"doctor_id":         created.DoctorID.String(),
		"appointment_time":  created.AppointmentTime,
		"total_fee":         created.TotalFee,
	})

	return created, nil
}

// Confirm moves a pending consultation to confirmed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load consultation: %w", err)
	}

	next, err := Next(c.Status, OpConfirm)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, c.ID, c.Status, next)
	if err != nil {
		// The row moved out of pending between the read and the update.
		if errors.Is(err, ErrConsultationNotFound) {
			return nil, fmt.Errorf("%w: consultation changed concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("confirm consultation: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventConsultationConfirmed, map[string]any{})
	return updated, nil
}

// Reject is the doctor declining a pending consultation.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string) (*Consultation, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load consultation: %w", err)
	}

	next, err := Next(c.Status, OpReject)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.MarkTerminated(ctx, c.ID, []Status{StatusPending}, next, ActorDoctor, reason, time.Now())
	if err != nil {
		if errors.Is(err, ErrConsultationNotFound) {
			return nil, fmt.Errorf("%w: consultation changed concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("reject consultation: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventConsultationRejected, map[string]any{"reason": reason})
	return updated, nil
}

// Start opens the consultation room. Only allowed inside the start window
// around the appointment time.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load consultation: %w", err)
	}

	if _, err := Next(c.Status, OpStart); err != nil {
		return nil, err
	}

	now := time.Now()
	if !CanStart(c.Status, c.AppointmentTime, now, s.cfg.StartEarlyMargin, s.cfg.StartLateMargin) {
		return nil, ErrStartWindowClosed
	}

	updated, err := s.repo.MarkStarted(ctx, c.ID, now)
	if err != nil {
		if errors.Is(err, ErrConsultationNotFound) {
			return nil, fmt.Errorf("%w: consultation changed concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("start consultation: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventConsultationStarted, map[string]any{"started_at": now})
	return updated, nil
}

// Complete closes an in-progress consultation, records the doctor's notes
// and derives the billed duration.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, data CompletionData) (*Consultation, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load consultation: %w", err)
	}

	if _, err := Next(c.Status, OpComplete); err != nil {
		return nil, err
	}

	now := time.Now()
	var duration *int
	if c.StartedAt != nil {
		d := DurationMinutes(*c.StartedAt, now)
		duration = &d
	}

	updated, err := s.repo.MarkCompleted(ctx, c.ID, now, duration, data)
	if err != nil {
		if errors.Is(err, ErrConsultationNotFound) {
			return nil, fmt.Errorf("%w: consultation changed concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("complete consultation: %w", err)
	}

	payload := map[string]any{"ended_at": now}
	if duration != nil {
		payload["duration_minutes"] = *duration
	}
	s.logEvent(ctx, updated.ID, EventConsultationCompleted, payload)
	return updated, nil
}

// Cancel terminates a pending or confirmed consultation on behalf of the
// given actor.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, by Actor, reason string) (*Consultation, error) {
	switch by {
	case ActorPatient, ActorDoctor, ActorSystem, ActorAdmin:
	default:
		return nil, fmt.Errorf("%w: cancelled_by must be patient, doctor, system or admin", ErrValidation)
	}

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load consultation: %w", err)
	}

	next, err := Next(c.Status, OpCancel)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.MarkTerminated(ctx, c.ID, []Status{StatusPending, StatusConfirmed}, next, by, reason, time.Now())
	if err != nil {
		if errors.Is(err, ErrConsultationNotFound) {
			return nil, fmt.Errorf("%w: consultation changed concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("cancel consultation: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventConsultationCancelled, map[string]any{
		"cancelled_by": string(by),
		"reason":       reason,
	})
	return updated, nil
}

// AddReview records the patient's rating after completion.
func (s *Service) AddReview(ctx context.Context, id uuid.UUID, rating int, review *string) (*Consultation, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load consultation: %w", err)
	}
	if c.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: cannot review a %s consultation", ErrInvalidTransition, c.Status)
	}

	updated, err := s.repo.SaveReview(ctx, c.ID, rating, review, time.Now())
	if err != nil {
		if errors.Is(err, ErrConsultationNotFound) {
			return nil, fmt.Errorf("%w: consultation changed concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("save review: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventReviewAdded, map[string]any{"rating": rating})
	return updated, nil
}

// Refund books a refund against the consultation. A refund covering the
// full total marks the payment refunded, anything smaller partial_refund.
func (s *Service) Refund(ctx context.Context, id uuid.UUID, amount int64, reason string) (*Consultation, error) {
	if amount <= 0 {
		return nil, ErrInvalidRefund
	}

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load consultation: %w", err)
	}

	status := ClassifyRefund(amount, c.TotalFee)
	updated, err := s.repo.SaveRefund(ctx, c.ID, amount, reason, status, time.Now())
	if err != nil {
		return nil, fmt.Errorf("save refund: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventRefundProcessed, map[string]any{
		"amount":         amount,
		"payment_status": string(status),
	})
	return updated, nil
}

// UpdateFees adjusts base and platform fee; the total is recomputed in the
// same write so the fee invariant survives partial updates.
func (s *Service) UpdateFees(ctx context.Context, id uuid.UUID, baseFee, platformFee int64) (*Consultation, error) {
	if baseFee < 0 || platformFee < 0 {
		return nil, fmt.Errorf("%w: fees must not be negative", ErrValidation)
	}

	updated, err := s.repo.UpdateFees(ctx, id, baseFee, platformFee)
	if err != nil {
		return nil, fmt.Errorf("update fees: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventFeesUpdated, map[string]any{
		"base_fee":     baseFee,
		"platform_fee": platformFee,
		"total_fee":    updated.TotalFee,
	})
	return updated, nil
}

// IssueOTP generates and stores a session passcode for the chat or video
// channel. The per-consultation lock keeps two concurrent issuances from
// interleaving generate and store.
func (s *Service) IssueOTP(ctx context.Context, id uuid.UUID, channel OTPChannel) (*Consultation, error) {
	if channel != ChannelChat && channel != ChannelVideo {
		return nil, fmt.Errorf("%w: channel must be chat or video", ErrValidation)
	}

	var updated *Consultation

	err := s.locker.WithConsultationLock(ctx, id, func(lockCtx context.Context) error {
		c, err := s.repo.GetByID(lockCtx, id)
		if err != nil {
			return fmt.Errorf("load consultation: %w", err)
		}
		if c.Status != StatusConfirmed && c.Status != StatusInProgress {
			return ErrOTPUnavailable
		}

		code, expiresAt, err := otp.Generate(s.cfg.OTPTTL)
		if err != nil {
			return fmt.Errorf("generate otp: %w", err)
		}

		updated, err = s.repo.SaveOTP(lockCtx, c.ID, channel, code, expiresAt)
		if err != nil {
			return fmt.Errorf("save otp: %w", err)
		}

		s.logEvent(lockCtx, updated.ID, EventOTPIssued, map[string]any{
			"channel":    string(channel),
			"expires_at": expiresAt,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrConsultationLocked
		}
		return nil, err
	}

	return updated, nil
}

// AutoCancelOverdue cancels every confirmed consultation whose appointment
// time passed more than the configured window ago. Called periodically by
// the sweep worker. Per-row failures are logged and skipped; the conditional
// update re-checks status so rows that moved on since the scan are left
// alone.
func (s *Service) AutoCancelOverdue(ctx context.Context) (int, error) {
	now := time.Now()
	cutoff := now.Add(-s.cfg.AutoCancelAfter)

	candidates, err := s.repo.FindOverdueConfirmed(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find overdue confirmed consultations: %w", err)
	}

	cancelled := 0
	for _, c := range candidates {
		updated, err := s.repo.MarkTerminated(ctx, c.ID, []Status{StatusConfirmed}, StatusCancelled, ActorSystem, AutoCancelReason, now)
		if err != nil {
			if errors.Is(err, ErrConsultationNotFound) {
				continue
			}
			s.log.Error().Err(err).Str("consultation_id", c.ID.String()).Msg("auto-cancel failed")
			continue
		}
		cancelled++
		s.logEvent(ctx, updated.ID, EventConsultationCancelled, map[string]any{
			"cancelled_by": string(ActorSystem),
			"reason":       AutoCancelReason,
		})
	}

	if len(candidates) > 0 {
		s.log.Info().Int("candidates", len(candidates)).Int("cancelled", cancelled).Msg("auto-cancel sweep")
	}
	return cancelled, nil
}

// Get retrieves a fully hydrated consultation by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Detail, error) {
	detail, err := s.repo.GetDetail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get consultation: %w", err)
	}
	return detail, nil
}

func clampFilter(f ListFilter) ListFilter {
	if f.Limit <= 0 {
		f.Limit = 20 // default
	}
	if f.Limit > 100 {
		f.Limit = 100 // max
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter) ([]Detail, error) {
	list, err := s.repo.ListByPatient(ctx, patientID, clampFilter(f))
	if err != nil {
		return nil, fmt.Errorf("list consultations by patient: %w", err)
	}
	return list, nil
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, f ListFilter) ([]Detail, error) {
	list, err := s.repo.ListByDoctor(ctx, doctorID, clampFilter(f))
	if err != nil {
		return nil, fmt.Errorf("list consultations by doctor: %w", err)
	}
	return list, nil
}

func (s *Service) CountByStatus(ctx context.Context, userID uuid.UUID, role string) (map[Status]int64, error) {
	if role != "patient" && role != "doctor" {
		return nil, fmt.Errorf("%w: role must be patient or doctor", ErrValidation)
	}
	counts, err := s.repo.CountByStatus(ctx, userID, role)
	if err != nil {
		return nil, fmt.Errorf("count consultations by status: %w", err)
	}
	return counts, nil
}

func (s *Service) DoctorRevenue(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (*RevenueReport, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end date must be after start date", ErrValidation)
	}
	rep, err := s.repo.DoctorRevenue(ctx, doctorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("calculate doctor revenue: %w", err)
	}
	return rep, nil
}

func (s *Service) logEvent(ctx context.Context, consultationID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	cid := consultationID

	ev := EventLog{
		EventType:      eventType,
		ConsultationID: &cid,
		Payload:        data,
		CreatedAt:      time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event", eventType).
			Str("consultation_id", consultationID.String()).
			Msg("insert event log")
	}
}
