package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/TQuyenG/clinic-system-sub001/internal/consultation"
	redisclient "github.com/TQuyenG/clinic-system-sub001/internal/redis"
)

// ConsultationService is the surface of consultation.Service the handlers
// need; narrowed to an interface so handler tests can run against a fake.
type ConsultationService interface {
	Create(ctx context.Context, p consultation.CreateParams) (*consultation.Consultation, error)
	Confirm(ctx context.Context, id uuid.UUID) (*consultation.Consultation, error)
	Reject(ctx context.Context, id uuid.UUID, reason string) (*consultation.Consultation, error)
	Start(ctx context.Context, id uuid.UUID) (*consultation.Consultation, error)
	Complete(ctx context.Context, id uuid.UUID, data consultation.CompletionData) (*consultation.Consultation, error)
	Cancel(ctx context.Context, id uuid.UUID, by consultation.Actor, reason string) (*consultation.Consultation, error)
	AddReview(ctx context.Context, id uuid.UUID, rating int, review *string) (*consultation.Consultation, error)
	Refund(ctx context.Context, id uuid.UUID, amount int64, reason string) (*consultation.Consultation, error)
	UpdateFees(ctx context.Context, id uuid.UUID, baseFee, platformFee int64) (*consultation.Consultation, error)
	IssueOTP(ctx context.Context, id uuid.UUID, channel consultation.OTPChannel) (*consultation.Consultation, error)
	Get(ctx context.Context, id uuid.UUID) (*consultation.Detail, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, f consultation.ListFilter) ([]consultation.Detail, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, f consultation.ListFilter) ([]consultation.Detail, error)
	CountByStatus(ctx context.Context, userID uuid.UUID, role string) (map[consultation.Status]int64, error)
	DoctorRevenue(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (*consultation.RevenueReport, error)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func createConsultationHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateConsultationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		params := consultation.CreateParams{
			PatientID:          patientID,
			DoctorID:           doctorID,
			Type:               consultation.Type(req.ConsultationType),
			AppointmentTime:    req.AppointmentTime,
			ChiefComplaint:     req.ChiefComplaint,
			MedicalHistory:     req.MedicalHistory,
			CurrentMedications: req.CurrentMedications,
			SymptomDuration:    req.SymptomDuration,
			BaseFee:            req.BaseFee,
			PlatformFee:        req.PlatformFee,
		}

		if req.SpecialtyID != nil {
			sid, err := uuid.Parse(*req.SpecialtyID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_specialty_id", "specialty_id must be a valid UUID")
				return
			}
			params.SpecialtyID = &sid
		}
		if req.PricingPackageID != nil {
			pid, err := uuid.Parse(*req.PricingPackageID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_pricing_package_id", "pricing_package_id must be a valid UUID")
				return
			}
			params.PricingPackageID = &pid
		}

		c, err := svc.Create(r.Context(), params)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toConsultationResponse(c))
	}
}

func confirmConsultationHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		c, err := svc.Confirm(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toConsultationResponse(c))
	}
}

func rejectConsultationHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req RejectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		c, err := svc.Reject(r.Context(), id, req.Reason)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toConsultationResponse(c))
	}
}

func startConsultationHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		c, err := svc.Start(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toConsultationResponse(c))
	}
}

func completeConsultationHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req CompleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		data := consultation.CompletionData{
			Diagnosis:        req.Diagnosis,
			TreatmentPlan:    req.TreatmentPlan,
			PrescriptionData: req.PrescriptionData,
			NeedFollowup:     req.NeedFollowup,
			FollowupDate:     req.FollowupDate,
			FollowupNotes:    req.FollowupNotes,
		}
		if req.SeverityLevel != nil {
			s := consultation.Severity(*req.SeverityLevel)
			data.SeverityLevel = &s
		}

		c, err := svc.Complete(r.Context(), id, data)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toConsultationResponse(c))
	}
}

func cancelConsultationHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req CancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		c, err := svc.Cancel(r.Context(), id, consultation.Actor(req.CancelledBy), req.Reason)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toConsultationResponse(c))
	}
}

func reviewConsultationHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req ReviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		c, err := svc.AddReview(r.Context(), id, req.Rating, req.Review)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toConsultationResponse(c))
	}
}

func refundConsultationHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req RefundRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		c, err := svc.Refund(r.Context(), id, req.Amount, req.Reason)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toConsultationResponse(c))
	}
}

func updateFeesHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req FeesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		c, err := svc.UpdateFees(r.Context(), id, req.BaseFee, req.PlatformFee)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toConsultationResponse(c))
	}
}

func issueOTPHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		channel := consultation.OTPChannel(r.URL.Query().Get("channel"))
		if channel == "" {
			channel = consultation.ChannelChat
		}

		c, err := svc.IssueOTP(r.Context(), id, channel)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := OTPResponse{ConsultationID: c.ID, Channel: string(channel)}
		switch channel {
		case consultation.ChannelVideo:
			if c.VideoOTP != nil {
				resp.Code = *c.VideoOTP
			}
			if c.VideoOTPExpiresAt != nil {
				resp.ExpiresAt = *c.VideoOTPExpiresAt
			}
		default:
			if c.ChatOTP != nil {
				resp.Code = *c.ChatOTP
			}
			if c.ChatOTPExpiresAt != nil {
				resp.ExpiresAt = *c.ChatOTPExpiresAt
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getConsultationHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		d, err := svc.Get(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDetailResponse(d))
	}
}

func parseListFilter(r *http.Request) consultation.ListFilter {
	q := r.URL.Query()
	var f consultation.ListFilter
	if s := q.Get("status"); s != "" {
		st := consultation.Status(s)
		f.Status = &st
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Offset = n
		}
	}
	return f
}

func listByPatientHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		list, err := svc.ListByPatient(r.Context(), id, parseListFilter(r))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]DetailResponse, 0, len(list))
		for i := range list {
			resp = append(resp, toDetailResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listByDoctorHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		list, err := svc.ListByDoctor(r.Context(), id, parseListFilter(r))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]DetailResponse, 0, len(list))
		for i := range list {
			resp = append(resp, toDetailResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func statusCountsHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		role := r.URL.Query().Get("role")
		counts, err := svc.CountByStatus(r.Context(), id, role)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		out := make(map[string]int64, len(counts))
		for s, n := range counts {
			out[string(s)] = n
		}
		writeJSON(w, http.StatusOK, StatusCountsResponse{UserID: id, Role: role, Counts: out})
	}
}

func doctorRevenueHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		q := r.URL.Query()
		start, err := time.Parse(time.RFC3339, q.Get("start_date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_date", "start_date must be RFC3339")
			return
		}
		end, err := time.Parse(time.RFC3339, q.Get("end_date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_date", "end_date must be RFC3339")
			return
		}

		rep, err := svc.DoctorRevenue(r.Context(), id, start, end)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, RevenueResponse{
			DoctorID:          id,
			StartDate:         start,
			EndDate:           end,
			ConsultationCount: rep.ConsultationCount,
			TotalBaseFee:      rep.TotalBaseFee,
			AverageRating:     rep.AverageRating,
		})
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, consultation.ErrConsultationNotFound):
		writeError(w, http.StatusNotFound, "consultation_not_found", err.Error())
	case errors.Is(err, consultation.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, consultation.ErrValidation),
		errors.Is(err, consultation.ErrInvalidRating),
		errors.Is(err, consultation.ErrInvalidRefund):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, consultation.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, consultation.ErrStartWindowClosed):
		writeError(w, http.StatusConflict, "start_window_closed", err.Error())
	case errors.Is(err, consultation.ErrOTPUnavailable):
		writeError(w, http.StatusConflict, "otp_unavailable", err.Error())
	case errors.Is(err, consultation.ErrCodeConflict):
		writeError(w, http.StatusConflict, "consultation_code_conflict", "code collision, please retry the booking")
	case errors.Is(err, consultation.ErrConsultationLocked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "consultation_locked", "consultation is being updated, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
