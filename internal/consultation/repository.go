package consultation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrConsultationNotFound = errors.New("consultation not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrCodeConflict         = errors.New("consultation code already exists")
)

// ListFilter narrows and pages the participant list queries.
type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}

// Repository contains all DB interactions needed by the service. Status
// mutations are conditional updates: each carries the set of statuses the
// row must still be in, so a row that moved on concurrently is reported as
// not found instead of being overwritten.
type Repository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*UserSummary, error)

	Create(ctx context.Context, c *Consultation) (*Consultation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	GetByCode(ctx context.Context, code string) (*Consultation, error)

	// Transitions
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Consultation, error)
	MarkTerminated(ctx context.Context, id uuid.UUID, from []Status, to Status, by Actor, reason string, at time.Time) (*Consultation, error)
	MarkStarted(ctx context.Context, id uuid.UUID, at time.Time) (*Consultation, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time, durationMinutes *int, data CompletionData) (*Consultation, error)

	// Post-terminal bookkeeping
	SaveReview(ctx context.Context, id uuid.UUID, rating int, review *string, at time.Time) (*Consultation, error)
	SaveRefund(ctx context.Context, id uuid.UUID, amount int64, reason string, status PaymentStatus, at time.Time) (*Consultation, error)
	SaveOTP(ctx context.Context, id uuid.UUID, channel OTPChannel, code string, expiresAt time.Time) (*Consultation, error)
	UpdateFees(ctx context.Context, id uuid.UUID, baseFee, platformFee int64) (*Consultation, error)

	// Auto-cancel sweep
	FindOverdueConfirmed(ctx context.Context, cutoff time.Time) ([]Consultation, error)

	// Read projections
	GetDetail(ctx context.Context, id uuid.UUID) (*Detail, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter) ([]Detail, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, f ListFilter) ([]Detail, error)
	CountByStatus(ctx context.Context, userID uuid.UUID, role string) (map[Status]int64, error)
	DoctorRevenue(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (*RevenueReport, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
