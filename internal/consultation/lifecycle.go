package consultation

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// Op is a lifecycle operation applied to a consultation.
type Op string

const (
	OpConfirm  Op = "confirm"
	OpReject   Op = "reject"
	OpStart    Op = "start"
	OpComplete Op = "complete"
	OpCancel   Op = "cancel"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// Next returns the status an operation moves a consultation into, or
// ErrInvalidTransition when the (status, op) pair is not allowed. Transition
// legality lives here and nowhere else; callers must not mutate status
// directly.
func Next(current Status, op Op) (Status, error) {
	switch op {
	case OpConfirm:
		if current == StatusPending {
			return StatusConfirmed, nil
		}
	case OpReject:
		if current == StatusPending {
			return StatusRejected, nil
		}
	case OpStart:
		if current == StatusConfirmed {
			return StatusInProgress, nil
		}
	case OpComplete:
		if current == StatusInProgress {
			return StatusCompleted, nil
		}
	case OpCancel:
		if current == StatusPending || current == StatusConfirmed {
			return StatusCancelled, nil
		}
	}
	return "", fmt.Errorf("%w: cannot %s a %s consultation", ErrInvalidTransition, op, current)
}

// CanCancel reports whether a consultation in the given status may still be
// cancelled by any party.
func CanCancel(s Status) bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanStart reports whether a confirmed consultation may start at the given
// instant. The room opens early minutes before the appointment and closes
// late minutes after it.
func CanStart(s Status, appointmentTime, now time.Time, early, late time.Duration) bool {
	if s != StatusConfirmed {
		return false
	}
	opens := appointmentTime.Add(-early)
	closes := appointmentTime.Add(late)
	return !now.Before(opens) && !now.After(closes)
}

// DurationMinutes derives the billed duration from actual start and end,
// rounded to the nearest minute.
func DurationMinutes(startedAt, endedAt time.Time) int {
	ms := endedAt.Sub(startedAt).Milliseconds()
	return int(float64(ms)/60000 + 0.5)
}

// RecomputeTotal enforces totalFee = baseFee + platformFee. Every persist
// path calls this before writing.
func (c *Consultation) RecomputeTotal() {
	c.TotalFee = c.BaseFee + c.PlatformFee
}

// ClassifyRefund maps a refund amount to the resulting payment status: a
// refund covering the full total is a refund, anything less is partial.
func ClassifyRefund(amount, totalFee int64) PaymentStatus {
	if amount >= totalFee {
		return PaymentRefunded
	}
	return PaymentPartialRefund
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewCode synthesizes a consultation code of the form
// CS-<millis base36>-<random6>-<random6>. Codes are generated once per row;
// uniqueness is enforced by the consultation_code unique index and callers
// retry on conflict.
func NewCode(now time.Time) string {
	ts := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return "CS-" + ts + "-" + randomChunk(6) + "-" + randomChunk(6)
}

func randomChunk(n int) string {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing means the platform entropy source is
			// broken; there is no sensible recovery for an ID generator.
			panic(fmt.Sprintf("consultation code entropy: %v", err))
		}
		b[i] = codeAlphabet[idx.Int64()]
	}
	return string(b)
}
