package consultation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// consultationColumns is the canonical SELECT/RETURNING column list; every
// scan goes through scanConsultation so the order is defined in one place.
const consultationColumns = `
	id, consultation_code, patient_id, doctor_id, consultation_type,
	specialty_id, pricing_package_id,
	appointment_time, started_at, ended_at, duration_minutes,
	status, cancelled_by, cancel_reason, cancelled_at,
	chief_complaint, medical_history, current_medications, symptom_duration,
	diagnosis, treatment_plan, prescription_data, severity_level,
	need_followup, followup_date, followup_notes,
	base_fee, platform_fee, total_fee, payment_status, payment_method,
	payment_transaction_id, paid_at, refund_amount, refund_reason, refunded_at,
	rating, review, reviewed_at,
	room_id, chat_session_id, chat_otp, chat_otp_expires_at,
	video_otp, video_otp_expires_at, reminder_sent,
	attachments, doctor_files, metadata, patient_device_id, doctor_device_id,
	created_at, updated_at`

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation
	var cancelledBy, severity *string

	err := row.Scan(
		&c.ID, &c.Code, &c.PatientID, &c.DoctorID, &c.Type,
		&c.SpecialtyID, &c.PricingPackageID,
		&c.AppointmentTime, &c.StartedAt, &c.EndedAt, &c.DurationMinutes,
		&c.Status, &cancelledBy, &c.CancelReason, &c.CancelledAt,
		&c.ChiefComplaint, &c.MedicalHistory, &c.CurrentMedications, &c.SymptomDuration,
		&c.Diagnosis, &c.TreatmentPlan, &c.PrescriptionData, &severity,
		&c.NeedFollowup, &c.FollowupDate, &c.FollowupNotes,
		&c.BaseFee, &c.PlatformFee, &c.TotalFee, &c.PaymentStatus, &c.PaymentMethod,
		&c.PaymentTransactionID, &c.PaidAt, &c.RefundAmount, &c.RefundReason, &c.RefundedAt,
		&c.Rating, &c.Review, &c.ReviewedAt,
		&c.RoomID, &c.ChatSessionID, &c.ChatOTP, &c.ChatOTPExpiresAt,
		&c.VideoOTP, &c.VideoOTPExpiresAt, &c.ReminderSent,
		&c.Attachments, &c.DoctorFiles, &c.Metadata, &c.PatientDeviceID, &c.DoctorDeviceID,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		return nil, err
	}

	if cancelledBy != nil {
		a := Actor(*cancelledBy)
		c.CancelledBy = &a
	}
	if severity != nil {
		s := Severity(*severity)
		c.SeverityLevel = &s
	}
	return &c, nil
}

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*UserSummary, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, full_name, email, role
		FROM users
		WHERE id = $1
	`, id)

	var u UserSummary
	if err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.Role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *PgRepository) Create(ctx context.Context, c *Consultation) (*Consultation, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO consultations (
			id, consultation_code, patient_id, doctor_id, consultation_type,
			specialty_id, pricing_package_id, appointment_time, status,
			chief_complaint, medical_history, current_medications, symptom_duration,
			base_fee, platform_fee, total_fee, payment_status,
			metadata, patient_device_id, created_at, updated_at
		)
		VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, 'pending',
			$9, $10, $11, $12,
			$13, $14, $15, 'pending',
			$16, $17, now(), now()
		)
		RETURNING`+consultationColumns+`
	`, c.ID, c.Code, c.PatientID, c.DoctorID, c.Type,
		c.SpecialtyID, c.PricingPackageID, c.AppointmentTime,
		c.ChiefComplaint, c.MedicalHistory, c.CurrentMedications, c.SymptomDuration,
		c.BaseFee, c.PlatformFee, c.TotalFee,
		c.Metadata, c.PatientDeviceID)

	created, err := scanConsultation(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrCodeConflict
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+consultationColumns+`
		FROM consultations
		WHERE id = $1
	`, id)
	return scanConsultation(row)
}

func (r *PgRepository) GetByCode(ctx context.Context, code string) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+consultationColumns+`
		FROM consultations
		WHERE consultation_code = $1
	`, code)
	return scanConsultation(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE consultations
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING`+consultationColumns+`
	`, id, to, from)
	return scanConsultation(row)
}

func (r *PgRepository) MarkTerminated(ctx context.Context, id uuid.UUID, from []Status, to Status, by Actor, reason string, at time.Time) (*Consultation, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE consultations
		SET status = $2,
		    cancelled_by = $3,
		    cancel_reason = $4,
		    cancelled_at = $5,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($6)
		RETURNING`+consultationColumns+`
	`, id, to, string(by), reason, at, allowed)
	return scanConsultation(row)
}

func (r *PgRepository) MarkStarted(ctx context.Context, id uuid.UUID, at time.Time) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE consultations
		SET status = 'in_progress',
		    started_at = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'confirmed'
		RETURNING`+consultationColumns+`
	`, id, at)
	return scanConsultation(row)
}

func (r *PgRepository) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time, durationMinutes *int, data CompletionData) (*Consultation, error) {
	var severity *string
	if data.SeverityLevel != nil {
		s := string(*data.SeverityLevel)
		severity = &s
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE consultations
		SET status = 'completed',
		    ended_at = $2,
		    duration_minutes = COALESCE($3, duration_minutes),
		    diagnosis = COALESCE($4, diagnosis),
		    treatment_plan = COALESCE($5, treatment_plan),
		    prescription_data = COALESCE($6, prescription_data),
		    severity_level = COALESCE($7, severity_level),
		    need_followup = COALESCE($8, need_followup),
		    followup_date = COALESCE($9, followup_date),
		    followup_notes = COALESCE($10, followup_notes),
		    updated_at = now()
		WHERE id = $1
		  AND status = 'in_progress'
		RETURNING`+consultationColumns+`
	`, id, at, durationMinutes,
		data.Diagnosis, data.TreatmentPlan, data.PrescriptionData, severity,
		data.NeedFollowup, data.FollowupDate, data.FollowupNotes)
	return scanConsultation(row)
}

func (r *PgRepository) SaveReview(ctx context.Context, id uuid.UUID, rating int, review *string, at time.Time) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE consultations
		SET rating = $2,
		    review = $3,
		    reviewed_at = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'completed'
		RETURNING`+consultationColumns+`
	`, id, rating, review, at)
	return scanConsultation(row)
}

func (r *PgRepository) SaveRefund(ctx context.Context, id uuid.UUID, amount int64, reason string, status PaymentStatus, at time.Time) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE consultations
		SET payment_status = $2,
		    refund_amount = $3,
		    refund_reason = $4,
		    refunded_at = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING`+consultationColumns+`
	`, id, status, amount, reason, at)
	return scanConsultation(row)
}

func (r *PgRepository) SaveOTP(ctx context.Context, id uuid.UUID, channel OTPChannel, code string, expiresAt time.Time) (*Consultation, error) {
	var query string
	switch channel {
	case ChannelVideo:
		query = `
			UPDATE consultations
			SET video_otp = $2,
			    video_otp_expires_at = $3,
			    updated_at = now()
			WHERE id = $1
			RETURNING` + consultationColumns
	default:
		query = `
			UPDATE consultations
			SET chat_otp = $2,
			    chat_otp_expires_at = $3,
			    updated_at = now()
			WHERE id = $1
			RETURNING` + consultationColumns
	}

	row := r.pool.QueryRow(ctx, query, id, code, expiresAt)
	return scanConsultation(row)
}

func (r *PgRepository) UpdateFees(ctx context.Context, id uuid.UUID, baseFee, platformFee int64) (*Consultation, error) {
	// total_fee is recomputed in the same statement so the invariant holds
	// for partial fee updates too.
	row := r.pool.QueryRow(ctx, `
		UPDATE consultations
		SET base_fee = $2,
		    platform_fee = $3,
		    total_fee = $2 + $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING`+consultationColumns+`
	`, id, baseFee, platformFee)
	return scanConsultation(row)
}

func (r *PgRepository) FindOverdueConfirmed(ctx context.Context, cutoff time.Time) ([]Consultation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+consultationColumns+`
		FROM consultations
		WHERE status = 'confirmed'
		  AND appointment_time < $1
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const detailColumns = `
	p.full_name, p.email, p.role,
	d.full_name, d.email, d.role,
	s.id, s.name`

const detailJoins = `
	JOIN users p ON p.id = c.patient_id
	JOIN users d ON d.id = c.doctor_id
	LEFT JOIN specialties s ON s.id = c.specialty_id`

// consultationColumns with the c. alias for joined queries.
const aliasedColumns = `
	c.id, c.consultation_code, c.patient_id, c.doctor_id, c.consultation_type,
	c.specialty_id, c.pricing_package_id,
	c.appointment_time, c.started_at, c.ended_at, c.duration_minutes,
	c.status, c.cancelled_by, c.cancel_reason, c.cancelled_at,
	c.chief_complaint, c.medical_history, c.current_medications, c.symptom_duration,
	c.diagnosis, c.treatment_plan, c.prescription_data, c.severity_level,
	c.need_followup, c.followup_date, c.followup_notes,
	c.base_fee, c.platform_fee, c.total_fee, c.payment_status, c.payment_method,
	c.payment_transaction_id, c.paid_at, c.refund_amount, c.refund_reason, c.refunded_at,
	c.rating, c.review, c.reviewed_at,
	c.room_id, c.chat_session_id, c.chat_otp, c.chat_otp_expires_at,
	c.video_otp, c.video_otp_expires_at, c.reminder_sent,
	c.attachments, c.doctor_files, c.metadata, c.patient_device_id, c.doctor_device_id,
	c.created_at, c.updated_at`

func scanDetail(row pgx.Row) (*Detail, error) {
	var d Detail
	var cancelledBy, severity *string
	var patientName, doctorName string
	var patientEmail, doctorEmail *string
	var patientRole, doctorRole string
	var specialtyID *uuid.UUID
	var specialtyName *string

	c := &d.Consultation
	err := row.Scan(
		&c.ID, &c.Code, &c.PatientID, &c.DoctorID, &c.Type,
		&c.SpecialtyID, &c.PricingPackageID,
		&c.AppointmentTime, &c.StartedAt, &c.EndedAt, &c.DurationMinutes,
		&c.Status, &cancelledBy, &c.CancelReason, &c.CancelledAt,
		&c.ChiefComplaint, &c.MedicalHistory, &c.CurrentMedications, &c.SymptomDuration,
		&c.Diagnosis, &c.TreatmentPlan, &c.PrescriptionData, &severity,
		&c.NeedFollowup, &c.FollowupDate, &c.FollowupNotes,
		&c.BaseFee, &c.PlatformFee, &c.TotalFee, &c.PaymentStatus, &c.PaymentMethod,
		&c.PaymentTransactionID, &c.PaidAt, &c.RefundAmount, &c.RefundReason, &c.RefundedAt,
		&c.Rating, &c.Review, &c.ReviewedAt,
		&c.RoomID, &c.ChatSessionID, &c.ChatOTP, &c.ChatOTPExpiresAt,
		&c.VideoOTP, &c.VideoOTPExpiresAt, &c.ReminderSent,
		&c.Attachments, &c.DoctorFiles, &c.Metadata, &c.PatientDeviceID, &c.DoctorDeviceID,
		&c.CreatedAt, &c.UpdatedAt,
		&patientName, &patientEmail, &patientRole,
		&doctorName, &doctorEmail, &doctorRole,
		&specialtyID, &specialtyName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		return nil, err
	}

	if cancelledBy != nil {
		a := Actor(*cancelledBy)
		c.CancelledBy = &a
	}
	if severity != nil {
		s := Severity(*severity)
		c.SeverityLevel = &s
	}

	d.Patient = &UserSummary{ID: c.PatientID, FullName: patientName, Email: patientEmail, Role: patientRole}
	d.Doctor = &UserSummary{ID: c.DoctorID, FullName: doctorName, Email: doctorEmail, Role: doctorRole}
	if specialtyID != nil && specialtyName != nil {
		d.Specialty = &Specialty{ID: *specialtyID, Name: *specialtyName}
	}
	return &d, nil
}

func (r *PgRepository) GetDetail(ctx context.Context, id uuid.UUID) (*Detail, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+aliasedColumns+`,`+detailColumns+`
		FROM consultations c`+detailJoins+`
		WHERE c.id = $1
	`, id)
	return scanDetail(row)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter) ([]Detail, error) {
	return r.listByParticipant(ctx, "c.patient_id", patientID, f)
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, f ListFilter) ([]Detail, error) {
	return r.listByParticipant(ctx, "c.doctor_id", doctorID, f)
}

func (r *PgRepository) listByParticipant(ctx context.Context, column string, id uuid.UUID, f ListFilter) ([]Detail, error) {
	query := `
		SELECT` + aliasedColumns + `,` + detailColumns + `
		FROM consultations c` + detailJoins + `
		WHERE ` + column + ` = $1`
	args := []any{id}

	if f.Status != nil {
		args = append(args, *f.Status)
		query += fmt.Sprintf(" AND c.status = $%d", len(args))
	}

	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY c.appointment_time DESC LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Detail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) CountByStatus(ctx context.Context, userID uuid.UUID, role string) (map[Status]int64, error) {
	column := "patient_id"
	if role == "doctor" {
		column = "doctor_id"
	}

	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM consultations
		WHERE `+column+` = $1
		GROUP BY status
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Status]int64)
	for rows.Next() {
		var s Status
		var n int64
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *PgRepository) DoctorRevenue(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (*RevenueReport, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(base_fee), 0), AVG(rating)
		FROM consultations
		WHERE doctor_id = $1
		  AND status = 'completed'
		  AND payment_status = 'paid'
		  AND ended_at >= $2
		  AND ended_at < $3
	`, doctorID, start, end)

	var rep RevenueReport
	if err := row.Scan(&rep.ConsultationCount, &rep.TotalBaseFee, &rep.AverageRating); err != nil {
		return nil, err
	}
	return &rep, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO consultation_events (event_type, consultation_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.ConsultationID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert consultation event: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
