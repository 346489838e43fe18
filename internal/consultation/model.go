package consultation

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRejected   Status = "rejected"
	StatusExpired    Status = "expired"
)

type Type string

const (
	TypeChat    Type = "chat"
	TypeVideo   Type = "video"
	TypeOffline Type = "offline"
)

type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentPaid          PaymentStatus = "paid"
	PaymentRefunded      PaymentStatus = "refunded"
	PaymentPartialRefund PaymentStatus = "partial_refund"
)

// Actor identifies who triggered a cancellation or rejection.
type Actor string

const (
	ActorPatient Actor = "patient"
	ActorDoctor  Actor = "doctor"
	ActorSystem  Actor = "system"
	ActorAdmin   Actor = "admin"
)

type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityModerate Severity = "moderate"
	SeverityUrgent   Severity = "urgent"
)

// OTPChannel selects which session passcode an issue request targets.
type OTPChannel string

const (
	ChannelChat  OTPChannel = "chat"
	ChannelVideo OTPChannel = "video"
)

// Consultation is one booked patient-doctor interaction. Fee amounts are
// integer VND.
type Consultation struct {
	ID               uuid.UUID
	Code             string
	PatientID        uuid.UUID
	DoctorID         uuid.UUID
	Type             Type
	SpecialtyID      *uuid.UUID
	PricingPackageID *uuid.UUID

	AppointmentTime time.Time
	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationMinutes *int

	Status       Status
	CancelledBy  *Actor
	CancelReason *string
	CancelledAt  *time.Time

	ChiefComplaint     string
	MedicalHistory     *string
	CurrentMedications *string
	SymptomDuration    *string
	Diagnosis          *string
	TreatmentPlan      *string
	PrescriptionData   []byte
	SeverityLevel      *Severity
	NeedFollowup       bool
	FollowupDate       *time.Time
	FollowupNotes      *string

	BaseFee              int64
	PlatformFee          int64
	TotalFee             int64
	PaymentStatus        PaymentStatus
	PaymentMethod        *string
	PaymentTransactionID *string
	PaidAt               *time.Time
	RefundAmount         *int64
	RefundReason         *string
	RefundedAt           *time.Time

	Rating     *int
	Review     *string
	ReviewedAt *time.Time

	RoomID            *string
	ChatSessionID     *string
	ChatOTP           *string
	ChatOTPExpiresAt  *time.Time
	VideoOTP          *string
	VideoOTPExpiresAt *time.Time
	ReminderSent      bool
	Attachments       []byte
	DoctorFiles       []byte
	Metadata          []byte
	PatientDeviceID   *string
	DoctorDeviceID    *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserSummary carries the joined participant fields returned by list queries.
type UserSummary struct {
	ID       uuid.UUID
	FullName string
	Email    *string
	Role     string
}

type Specialty struct {
	ID   uuid.UUID
	Name string
}

// Detail is a consultation hydrated with participant and specialty summaries.
type Detail struct {
	Consultation
	Patient   *UserSummary
	Doctor    *UserSummary
	Specialty *Specialty
}

// CompletionData holds the medical fields a doctor submits when completing
// a consultation. Nil pointers leave the stored value untouched.
type CompletionData struct {
	Diagnosis        *string
	TreatmentPlan    *string
	PrescriptionData []byte
	SeverityLevel    *Severity
	NeedFollowup     *bool
	FollowupDate     *time.Time
	FollowupNotes    *string
}

// RevenueReport aggregates completed, paid consultations for one doctor.
type RevenueReport struct {
	ConsultationCount int64
	TotalBaseFee      int64
	AverageRating     *float64
}

type EventLog struct {
	ID             int64
	EventType      string
	ConsultationID *uuid.UUID
	Payload        []byte
	CreatedAt      time.Time
}
