package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TQuyenG/clinic-system-sub001/internal/consultation"
	"github.com/TQuyenG/clinic-system-sub001/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	specialtyIDs, err := seedSpecialties(context.Background(), pool)
	if err != nil {
		log.Fatalf("seed specialties: %v", err)
	}
	doctorIDs, err := seedUsers(context.Background(), pool, "doctor", 50)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	patientIDs, err := seedUsers(context.Background(), pool, "patient", 2000)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedConsultations(context.Background(), pool, patientIDs, doctorIDs, specialtyIDs, 5000); err != nil {
		log.Fatalf("seed consultations: %v", err)
	}

	log.Println("seed complete")
}

func seedSpecialties(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	names := []string{
		"Nội tổng quát",
		"Tim mạch",
		"Da liễu",
		"Nhi khoa",
		"Tai mũi họng",
		"Thần kinh",
		"Nội tiết",
		"Cơ xương khớp",
		"Sản phụ khoa",
		"Tâm lý",
	}

	log.Printf("seeding %d specialties", len(names))

	ids := make([]uuid.UUID, 0, len(names))
	for _, name := range names {
		id := uuid.New()
		_, err := pool.Exec(ctx, `
			INSERT INTO specialties (id, name, created_at, updated_at)
			VALUES ($1, $2, now(), now())
			ON CONFLICT (name) DO NOTHING
		`, id, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, role string, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d %ss", count, role)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		email := gofakeit.Email()
		_, err := pool.Exec(ctx, `
			INSERT INTO users (id, full_name, email, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, gofakeit.Name(), email, role)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func seedConsultations(ctx context.Context, pool *pgxpool.Pool, patients, doctors, specialties []uuid.UUID, count int) error {
	log.Printf("seeding %d consultations", count)

	complaints := []string{
		"Đau đầu kéo dài",
		"Sốt nhẹ hai ngày",
		"Khó ngủ, lo âu",
		"Đau lưng khi ngồi lâu",
		"Ho khan kéo dài",
		"Nổi mẩn ngứa ở tay",
		"Chóng mặt buổi sáng",
		"Đau bụng sau khi ăn",
	}
	types := []consultation.Type{consultation.TypeChat, consultation.TypeVideo, consultation.TypeOffline}

	for i := 0; i < count; i++ {
		patientID := patients[gofakeit.Number(0, len(patients)-1)]
		doctorID := doctors[gofakeit.Number(0, len(doctors)-1)]
		specialtyID := specialties[gofakeit.Number(0, len(specialties)-1)]

		// Appointments spread from a week back to two weeks out.
		appt := time.Now().Add(time.Duration(gofakeit.Number(-7*24, 14*24)) * time.Hour)

		baseFee := int64(gofakeit.Number(100, 500)) * 1000
		platformFee := baseFee / 10

		_, err := pool.Exec(ctx, `
			INSERT INTO consultations (
				id, consultation_code, patient_id, doctor_id, consultation_type,
				specialty_id, appointment_time, status, chief_complaint,
				base_fee, platform_fee, total_fee, payment_status,
				created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, $9, $10, $11, 'pending', now(), now())
		`, uuid.New(), consultation.NewCode(time.Now()), patientID, doctorID,
			types[gofakeit.Number(0, len(types)-1)], specialtyID, appt,
			complaints[gofakeit.Number(0, len(complaints)-1)],
			baseFee, platformFee, baseFee+platformFee)
		if err != nil {
			return err
		}
	}
	return nil
}
