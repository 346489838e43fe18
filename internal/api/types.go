package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/TQuyenG/clinic-system-sub001/internal/consultation"
)

type CreateConsultationRequest struct {
	PatientID          string    `json:"patient_id"`
	DoctorID           string    `json:"doctor_id"`
	ConsultationType   string    `json:"consultation_type"`
	SpecialtyID        *string   `json:"specialty_id,omitempty"`
	PricingPackageID   *string   `json:"pricing_package_id,omitempty"`
	AppointmentTime    time.Time `json:"appointment_time"`
	ChiefComplaint     string    `json:"chief_complaint"`
	MedicalHistory     *string   `json:"medical_history,omitempty"`
	CurrentMedications *string   `json:"current_medications,omitempty"`
	SymptomDuration    *string   `json:"symptom_duration,omitempty"`
	BaseFee            int64     `json:"base_fee"`
	PlatformFee        int64     `json:"platform_fee"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type CancelRequest struct {
	CancelledBy string `json:"cancelled_by"`
	Reason      string `json:"reason"`
}

type CompleteRequest struct {
	Diagnosis        *string    `json:"diagnosis,omitempty"`
	TreatmentPlan    *string    `json:"treatment_plan,omitempty"`
	PrescriptionData []byte     `json:"prescription_data,omitempty"`
	SeverityLevel    *string    `json:"severity_level,omitempty"`
	NeedFollowup     *bool      `json:"need_followup,omitempty"`
	FollowupDate     *time.Time `json:"followup_date,omitempty"`
	FollowupNotes    *string    `json:"followup_notes,omitempty"`
}

type ReviewRequest struct {
	Rating int     `json:"rating"`
	Review *string `json:"review,omitempty"`
}

type RefundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type FeesRequest struct {
	BaseFee     int64 `json:"base_fee"`
	PlatformFee int64 `json:"platform_fee"`
}

type ConsultationResponse struct {
	ID               uuid.UUID  `json:"id"`
	ConsultationCode string     `json:"consultation_code"`
	PatientID        uuid.UUID  `json:"patient_id"`
	DoctorID         uuid.UUID  `json:"doctor_id"`
	ConsultationType string     `json:"consultation_type"`
	SpecialtyID      *uuid.UUID `json:"specialty_id,omitempty"`
	PricingPackageID *uuid.UUID `json:"pricing_package_id,omitempty"`
	AppointmentTime  time.Time  `json:"appointment_time"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	DurationMinutes  *int       `json:"duration_minutes,omitempty"`
	Status           string     `json:"status"`
	CancelledBy      *string    `json:"cancelled_by,omitempty"`
	CancelReason     *string    `json:"cancel_reason,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	ChiefComplaint   string     `json:"chief_complaint"`
	Diagnosis        *string    `json:"diagnosis,omitempty"`
	TreatmentPlan    *string    `json:"treatment_plan,omitempty"`
	SeverityLevel    *string    `json:"severity_level,omitempty"`
	BaseFee          int64      `json:"base_fee"`
	PlatformFee      int64      `json:"platform_fee"`
	TotalFee         int64      `json:"total_fee"`
	PaymentStatus    string     `json:"payment_status"`
	RefundAmount     *int64     `json:"refund_amount,omitempty"`
	RefundedAt       *time.Time `json:"refunded_at,omitempty"`
	Rating           *int       `json:"rating,omitempty"`
	Review           *string    `json:"review,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type UserSummaryResponse struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Email    *string   `json:"email,omitempty"`
	Role     string    `json:"role"`
}

type SpecialtyResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type DetailResponse struct {
	ConsultationResponse
	Patient   *UserSummaryResponse `json:"patient,omitempty"`
	Doctor    *UserSummaryResponse `json:"doctor,omitempty"`
	Specialty *SpecialtyResponse   `json:"specialty,omitempty"`
}

type OTPResponse struct {
	ConsultationID uuid.UUID `json:"consultation_id"`
	Channel        string    `json:"channel"`
	Code           string    `json:"code"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type StatusCountsResponse struct {
	UserID uuid.UUID        `json:"user_id"`
	Role   string           `json:"role"`
	Counts map[string]int64 `json:"counts"`
}

type RevenueResponse struct {
	DoctorID          uuid.UUID `json:"doctor_id"`
	StartDate         time.Time `json:"start_date"`
	EndDate           time.Time `json:"end_date"`
	ConsultationCount int64     `json:"consultation_count"`
	TotalBaseFee      int64     `json:"total_base_fee"`
	AverageRating     *float64  `json:"average_rating,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toConsultationResponse(c *consultation.Consultation) ConsultationResponse {
	resp := ConsultationResponse{
		ID:               c.ID,
		ConsultationCode: c.Code,
		PatientID:        c.PatientID,
		DoctorID:         c.DoctorID,
		ConsultationType: string(c.Type),
		SpecialtyID:      c.SpecialtyID,
		PricingPackageID: c.PricingPackageID,
		AppointmentTime:  c.AppointmentTime,
		StartedAt:        c.StartedAt,
		EndedAt:          c.EndedAt,
		DurationMinutes:  c.DurationMinutes,
		Status:           string(c.Status),
		CancelReason:     c.CancelReason,
		CancelledAt:      c.CancelledAt,
		ChiefComplaint:   c.ChiefComplaint,
		Diagnosis:        c.Diagnosis,
		TreatmentPlan:    c.TreatmentPlan,
		BaseFee:          c.BaseFee,
		PlatformFee:      c.PlatformFee,
		TotalFee:         c.TotalFee,
		PaymentStatus:    string(c.PaymentStatus),
		RefundAmount:     c.RefundAmount,
		RefundedAt:       c.RefundedAt,
		Rating:           c.Rating,
		Review:           c.Review,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
	if c.CancelledBy != nil {
		s := string(*c.CancelledBy)
		resp.CancelledBy = &s
	}
	if c.SeverityLevel != nil {
		s := string(*c.SeverityLevel)
		resp.SeverityLevel = &s
	}
	return resp
}

func toDetailResponse(d *consultation.Detail) DetailResponse {
	resp := DetailResponse{
		ConsultationResponse: toConsultationResponse(&d.Consultation),
	}
	if d.Patient != nil {
		resp.Patient = &UserSummaryResponse{ID: d.Patient.ID, FullName: d.Patient.FullName, Email: d.Patient.Email, Role: d.Patient.Role}
	}
	if d.Doctor != nil {
		resp.Doctor = &UserSummaryResponse{ID: d.Doctor.ID, FullName: d.Doctor.FullName, Email: d.Doctor.Email, Role: d.Doctor.Role}
	}
	if d.Specialty != nil {
		resp.Specialty = &SpecialtyResponse{ID: d.Specialty.ID, Name: d.Specialty.Name}
	}
	return resp
}
