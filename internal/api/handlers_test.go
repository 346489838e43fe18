package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TQuyenG/clinic-system-sub001/internal/consultation"
)

// fakeService stubs ConsultationService with per-method functions; nil
// functions fail the request with a 500 so a test cannot silently hit an
// endpoint it did not stub.
type fakeService struct {
	create        func(ctx context.Context, p consultation.CreateParams) (*consultation.Consultation, error)
	confirm       func(ctx context.Context, id uuid.UUID) (*consultation.Consultation, error)
	reject        func(ctx context.Context, id uuid.UUID, reason string) (*consultation.Consultation, error)
	start         func(ctx context.Context, id uuid.UUID) (*consultation.Consultation, error)
	complete      func(ctx context.Context, id uuid.UUID, data consultation.CompletionData) (*consultation.Consultation, error)
	cancel        func(ctx context.Context, id uuid.UUID, by consultation.Actor, reason string) (*consultation.Consultation, error)
	addReview     func(ctx context.Context, id uuid.UUID, rating int, review *string) (*consultation.Consultation, error)
	refund        func(ctx context.Context, id uuid.UUID, amount int64, reason string) (*consultation.Consultation, error)
	updateFees    func(ctx context.Context, id uuid.UUID, baseFee, platformFee int64) (*consultation.Consultation, error)
	issueOTP      func(ctx context.Context, id uuid.UUID, channel consultation.OTPChannel) (*consultation.Consultation, error)
	get           func(ctx context.Context, id uuid.UUID) (*consultation.Detail, error)
	listByPatient func(ctx context.Context, patientID uuid.UUID, f consultation.ListFilter) ([]consultation.Detail, error)
	listByDoctor  func(ctx context.Context, doctorID uuid.UUID, f consultation.ListFilter) ([]consultation.Detail, error)
	countByStatus func(ctx context.Context, userID uuid.UUID, role string) (map[consultation.Status]int64, error)
	doctorRevenue func(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (*consultation.RevenueReport, error)
}

var errNotStubbed = fmt.Errorf("not stubbed")

func (f *fakeService) Create(ctx context.Context, p consultation.CreateParams) (*consultation.Consultation, error) {
	if f.create == nil {
		return nil, errNotStubbed
	}
	return f.create(ctx, p)
}

func (f *fakeService) Confirm(ctx context.Context, id uuid.UUID) (*consultation.Consultation, error) {
	if f.confirm == nil {
		return nil, errNotStubbed
	}
	return f.confirm(ctx, id)
}

func (f *fakeService) Reject(ctx context.Context, id uuid.UUID, reason string) (*consultation.Consultation, error) {
	if f.reject == nil {
		return nil, errNotStubbed
	}
	return f.reject(ctx, id, reason)
}

func (f *fakeService) Start(ctx context.Context, id uuid.UUID) (*consultation.Consultation, error) {
	if f.start == nil {
		return nil, errNotStubbed
	}
	return f.start(ctx, id)
}

func (f *fakeService) Complete(ctx context.Context, id uuid.UUID, data consultation.CompletionData) (*consultation.Consultation, error) {
	if f.complete == nil {
		return nil, errNotStubbed
	}
	return f.complete(ctx, id, data)
}

func (f *fakeService) Cancel(ctx context.Context, id uuid.UUID, by consultation.Actor, reason string) (*consultation.Consultation, error) {
	if f.cancel == nil {
		return nil, errNotStubbed
	}
	return f.cancel(ctx, id, by, reason)
}

func (f *fakeService) AddReview(ctx context.Context, id uuid.UUID, rating int, review *string) (*consultation.Consultation, error) {
	if f.addReview == nil {
		return nil, errNotStubbed
	}
	return f.addReview(ctx, id, rating, review)
}

func (f *fakeService) Refund(ctx context.Context, id uuid.UUID, amount int64, reason string) (*consultation.Consultation, error) {
	if f.refund == nil {
		return nil, errNotStubbed
	}
	return f.refund(ctx, id, amount, reason)
}

func (f *fakeService) UpdateFees(ctx context.Context, id uuid.UUID, baseFee, platformFee int64) (*consultation.Consultation, error) {
	if f.updateFees == nil {
		return nil, errNotStubbed
	}
	return f.updateFees(ctx, id, baseFee, platformFee)
}

func (f *fakeService) IssueOTP(ctx context.Context, id uuid.UUID, channel consultation.OTPChannel) (*consultation.Consultation, error) {
	if f.issueOTP == nil {
		return nil, errNotStubbed
	}
	return f.issueOTP(ctx, id, channel)
}

func (f *fakeService) Get(ctx context.Context, id uuid.UUID) (*consultation.Detail, error) {
	if f.get == nil {
		return nil, errNotStubbed
	}
	return f.get(ctx, id)
}

func (f *fakeService) ListByPatient(ctx context.Context, patientID uuid.UUID, filter consultation.ListFilter) ([]consultation.Detail, error) {
	if f.listByPatient == nil {
		return nil, errNotStubbed
	}
	return f.listByPatient(ctx, patientID, filter)
}

func (f *fakeService) ListByDoctor(ctx context.Context, doctorID uuid.UUID, filter consultation.ListFilter) ([]consultation.Detail, error) {
	if f.listByDoctor == nil {
		return nil, errNotStubbed
	}
	return f.listByDoctor(ctx, doctorID, filter)
}

func (f *fakeService) CountByStatus(ctx context.Context, userID uuid.UUID, role string) (map[consultation.Status]int64, error) {
	if f.countByStatus == nil {
		return nil, errNotStubbed
	}
	return f.countByStatus(ctx, userID, role)
}

func (f *fakeService) DoctorRevenue(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (*consultation.RevenueReport, error) {
	if f.doctorRevenue == nil {
		return nil, errNotStubbed
	}
	return f.doctorRevenue(ctx, doctorID, start, end)
}

func newTestRouter(svc ConsultationService) http.Handler {
	return NewRouter(RouterConfig{
		Service: svc,
		Logger:  zerolog.Nop(),
		Env:     "test",
		Version: "test",
	})
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateConsultation_Created(t *testing.T) {
	id := uuid.New()
	patientID := uuid.New()
	doctorID := uuid.New()
	appt := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)

	svc := &fakeService{
		create: func(_ context.Context, p consultation.CreateParams) (*consultation.Consultation, error) {
			assert.Equal(t, patientID, p.PatientID)
			assert.Equal(t, doctorID, p.DoctorID)
			assert.Equal(t, consultation.TypeVideo, p.Type)
			assert.Equal(t, int64(200000), p.BaseFee)
			return &consultation.Consultation{
				ID:              id,
				Code:            "CS-MFHX2K01-A8F3KQ-9ZB2MC",
				PatientID:       p.PatientID,
				DoctorID:        p.DoctorID,
				Type:            p.Type,
				Status:          consultation.StatusPending,
				AppointmentTime: p.AppointmentTime,
				ChiefComplaint:  p.ChiefComplaint,
				BaseFee:         p.BaseFee,
				PlatformFee:     p.PlatformFee,
				TotalFee:        p.BaseFee + p.PlatformFee,
				PaymentStatus:   consultation.PaymentPending,
			}, nil
		},
	}

	rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/consultations", CreateConsultationRequest{
		PatientID:        patientID.String(),
		DoctorID:         doctorID.String(),
		ConsultationType: "video",
		AppointmentTime:  appt,
		ChiefComplaint:   "Sốt cao hai ngày",
		BaseFee:          200000,
		PlatformFee:      20000,
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp ConsultationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.ID)
	assert.Equal(t, "CS-MFHX2K01-A8F3KQ-9ZB2MC", resp.ConsultationCode)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, int64(220000), resp.TotalFee)
}

func TestCreateConsultation_BadPatientID(t *testing.T) {
	rec := doRequest(t, newTestRouter(&fakeService{}), http.MethodPost, "/consultations", map[string]any{
		"patient_id": "not-a-uuid",
		"doctor_id":  uuid.NewString(),
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_patient_id", resp.Error)
}

func TestCreateConsultation_ValidationError(t *testing.T) {
	svc := &fakeService{
		create: func(context.Context, consultation.CreateParams) (*consultation.Consultation, error) {
			return nil, fmt.Errorf("%w: chief_complaint is required", consultation.ErrValidation)
		},
	}

	rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/consultations", CreateConsultationRequest{
		PatientID: uuid.NewString(),
		DoctorID:  uuid.NewString(),
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation_failed", resp.Error)
}

func TestConfirmConsultation_Conflict(t *testing.T) {
	svc := &fakeService{
		confirm: func(context.Context, uuid.UUID) (*consultation.Consultation, error) {
			return nil, fmt.Errorf("%w: cannot confirm a completed consultation", consultation.ErrInvalidTransition)
		},
	}

	rec := doRequest(t, newTestRouter(svc), http.MethodPut, "/consultations/"+uuid.NewString()+"/confirm", nil)

	require.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_status_transition", resp.Error)
}

func TestConfirmConsultation_InvalidID(t *testing.T) {
	rec := doRequest(t, newTestRouter(&fakeService{}), http.MethodPut, "/consultations/abc/confirm", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartConsultation_WindowClosed(t *testing.T) {
	svc := &fakeService{
		start: func(context.Context, uuid.UUID) (*consultation.Consultation, error) {
			return nil, consultation.ErrStartWindowClosed
		},
	}

	rec := doRequest(t, newTestRouter(svc), http.MethodPut, "/consultations/"+uuid.NewString()+"/start", nil)

	require.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "start_window_closed", resp.Error)
}

func TestCancelConsultation_PassesActorAndReason(t *testing.T) {
	id := uuid.New()
	svc := &fakeService{
		cancel: func(_ context.Context, gotID uuid.UUID, by consultation.Actor, reason string) (*consultation.Consultation, error) {
			assert.Equal(t, id, gotID)
			assert.Equal(t, consultation.ActorPatient, by)
			assert.Equal(t, "bận đột xuất", reason)
			return &consultation.Consultation{ID: gotID, Status: consultation.StatusCancelled}, nil
		},
	}

	rec := doRequest(t, newTestRouter(svc), http.MethodPut, "/consultations/"+id.String()+"/cancel", CancelRequest{
		CancelledBy: "patient",
		Reason:      "bận đột xuất",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConsultationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cancelled", resp.Status)
}

func TestGetConsultation_NotFound(t *testing.T) {
	svc := &fakeService{
		get: func(context.Context, uuid.UUID) (*consultation.Detail, error) {
			return nil, consultation.ErrConsultationNotFound
		},
	}

	rec := doRequest(t, newTestRouter(svc), http.MethodGet, "/consultations/"+uuid.NewString(), nil)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "consultation_not_found", resp.Error)
}

func TestIssueOTP_DefaultsToChatChannel(t *testing.T) {
	id := uuid.New()
	code := "042137"
	expiresAt := time.Now().Add(5 * time.Minute).UTC().Truncate(time.Second)

	svc := &fakeService{
		issueOTP: func(_ context.Context, gotID uuid.UUID, channel consultation.OTPChannel) (*consultation.Consultation, error) {
			assert.Equal(t, consultation.ChannelChat, channel)
			return &consultation.Consultation{
				ID:               gotID,
				Status:           consultation.StatusConfirmed,
				ChatOTP:          &code,
				ChatOTPExpiresAt: &expiresAt,
			}, nil
		},
	}

	rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/consultations/"+id.String()+"/otp", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp OTPResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.ConsultationID)
	assert.Equal(t, "chat", resp.Channel)
	assert.Equal(t, code, resp.Code)
	assert.True(t, expiresAt.Equal(resp.ExpiresAt))
}

func TestIssueOTP_Locked(t *testing.T) {
	svc := &fakeService{
		issueOTP: func(context.Context, uuid.UUID, consultation.OTPChannel) (*consultation.Consultation, error) {
			return nil, consultation.ErrConsultationLocked
		},
	}

	rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/consultations/"+uuid.NewString()+"/otp?channel=video", nil)

	require.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "consultation_locked", resp.Error)
}

func TestListByPatient_ForwardsFilter(t *testing.T) {
	patientID := uuid.New()
	svc := &fakeService{
		listByPatient: func(_ context.Context, gotID uuid.UUID, f consultation.ListFilter) ([]consultation.Detail, error) {
			assert.Equal(t, patientID, gotID)
			require.NotNil(t, f.Status)
			assert.Equal(t, consultation.StatusCompleted, *f.Status)
			assert.Equal(t, 5, f.Limit)
			assert.Equal(t, 10, f.Offset)
			return []consultation.Detail{}, nil
		},
	}

	path := "/patients/" + patientID.String() + "/consultations?status=completed&limit=5&offset=10"
	rec := doRequest(t, newTestRouter(svc), http.MethodGet, path, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestStatusCounts(t *testing.T) {
	userID := uuid.New()
	svc := &fakeService{
		countByStatus: func(_ context.Context, gotID uuid.UUID, role string) (map[consultation.Status]int64, error) {
			assert.Equal(t, userID, gotID)
			assert.Equal(t, "doctor", role)
			return map[consultation.Status]int64{
				consultation.StatusCompleted: 12,
				consultation.StatusCancelled: 3,
			}, nil
		},
	}

	path := "/users/" + userID.String() + "/consultations/status-counts?role=doctor"
	rec := doRequest(t, newTestRouter(svc), http.MethodGet, path, nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusCountsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(12), resp.Counts["completed"])
	assert.Equal(t, int64(3), resp.Counts["cancelled"])
}

func TestDoctorRevenue(t *testing.T) {
	doctorID := uuid.New()
	avg := 4.6
	svc := &fakeService{
		doctorRevenue: func(_ context.Context, gotID uuid.UUID, start, end time.Time) (*consultation.RevenueReport, error) {
			assert.Equal(t, doctorID, gotID)
			assert.True(t, start.Before(end))
			return &consultation.RevenueReport{ConsultationCount: 8, TotalBaseFee: 1600000, AverageRating: &avg}, nil
		},
	}

	path := "/doctors/" + doctorID.String() + "/revenue?start_date=2026-08-01T00:00:00Z&end_date=2026-08-31T00:00:00Z"
	rec := doRequest(t, newTestRouter(svc), http.MethodGet, path, nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp RevenueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(8), resp.ConsultationCount)
	assert.Equal(t, int64(1600000), resp.TotalBaseFee)
	require.NotNil(t, resp.AverageRating)
	assert.InDelta(t, 4.6, *resp.AverageRating, 0.001)
}

func TestDoctorRevenue_BadDates(t *testing.T) {
	path := "/doctors/" + uuid.NewString() + "/revenue?start_date=yesterday&end_date=2026-08-31T00:00:00Z"
	rec := doRequest(t, newTestRouter(&fakeService{}), http.MethodGet, path, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLiveness(t *testing.T) {
	rec := doRequest(t, newTestRouter(&fakeService{}), http.MethodGet, "/health/live", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp LivenessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Env)
}
