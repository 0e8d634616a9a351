package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TxFunc runs fn inside a single database transaction.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo Repository
	tx   TxFunc
	now  func() time.Time
}

func NewService(repo Repository, tx TxFunc) *Service {
	if tx == nil {
		tx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Service{repo: repo, tx: tx, now: time.Now}
}

func (s *Service) validate(a *Appointment) error {
	if a.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patient_id is required", ErrInvalid)
	}
	if a.DoctorID == uuid.Nil {
		return fmt.Errorf("%w: doctor_id is required", ErrInvalid)
	}
	if a.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduled_datetime is required", ErrInvalid)
	}
	if a.DurationMinutes == 0 {
		a.DurationMinutes = DefaultDuration
	}
	if a.DurationMinutes < 5 || a.DurationMinutes > 480 {
		return fmt.Errorf("%w: duration_minutes must be between 5 and 480", ErrInvalid)
	}
	a.ScheduledAt = a.ScheduledAt.UTC()
	return nil
}

// book checks the references and the doctor's agenda, then runs write. It
// runs in one transaction holding the doctor row lock, so two bookings for
// the same doctor cannot both pass the conflict check.
func (s *Service) book(ctx context.Context, a *Appointment, exclude uuid.UUID, write func(ctx context.Context) error) error {
	return s.tx(ctx, func(ctx context.Context) error {
		ok, err := s.repo.PatientExists(ctx, a.ClinicID, a.PatientID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnknownPatient
		}
		if err := s.repo.LockDoctor(ctx, a.ClinicID, a.DoctorID); err != nil {
			return err
		}
		taken, err := s.repo.HasConflict(ctx, a.ClinicID, a.DoctorID, a.ScheduledAt, a.DurationMinutes, exclude)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotTaken
		}
		return write(ctx)
	})
}

// CreateAppointment schedules a new appointment in clinicID.
func (s *Service) CreateAppointment(ctx context.Context, clinicID uuid.UUID, a *Appointment) error {
	if clinicID == uuid.Nil {
		return ErrNoClinic
	}
	if err := s.validate(a); err != nil {
		return err
	}
	a.ClinicID = clinicID
	a.Status = StatusScheduled
	a.CheckedInAt, a.StartedAt, a.CompletedAt, a.CancelledAt = nil, nil, nil, nil
	if err := s.book(ctx, a, uuid.Nil, func(ctx context.Context) error { return s.repo.Create(ctx, a) }); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("appointment_id", a.ID.String()).Str("doctor_id", a.DoctorID.String()).
		Time("scheduled_datetime", a.ScheduledAt).Msg("appointment scheduled")
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	return s.repo.GetByID(ctx, clinicID, id)
}

// UpdateAppointment reschedules an appointment that has not started yet.
func (s *Service) UpdateAppointment(ctx context.Context, clinicID uuid.UUID, a *Appointment) error {
	if clinicID == uuid.Nil {
		return ErrNoClinic
	}
	if err := s.validate(a); err != nil {
		return err
	}
	current, err := s.repo.GetByID(ctx, clinicID, a.ID)
	if err != nil {
		return err
	}
	if current.Status != StatusScheduled {
		return fmt.Errorf("%w: only scheduled appointments can be changed (status %s)", ErrInvalidTransition, current.Status)
	}
	a.ClinicID = clinicID
	return s.book(ctx, a, a.ID, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, a); err != nil {
			return err
		}
		a.Status = current.Status
		return nil
	})
}

// ChangeStatus moves an appointment along its lifecycle and stamps the
// time it entered the new status.
func (s *Service) ChangeStatus(ctx context.Context, clinicID, id uuid.UUID, status string) (*Appointment, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	if !ValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, status)
	}
	a, err := s.repo.GetByID(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, status)
	}
	from := a.Status
	stamp(a, status, s.now().UTC())
	if err := s.repo.UpdateStatus(ctx, a); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("appointment_id", a.ID.String()).Str("from", from).Str("to", status).
		Msg("appointment status changed")
	return a, nil
}

func (s *Service) DeleteAppointment(ctx context.Context, clinicID, id uuid.UUID) error {
	if clinicID == uuid.Nil {
		return ErrNoClinic
	}
	return s.repo.Delete(ctx, clinicID, id)
}

func (s *Service) ListAppointments(ctx context.Context, clinicID uuid.UUID, f Filter, limit, offset int) ([]*Appointment, int, error) {
	if clinicID == uuid.Nil {
		return nil, 0, ErrNoClinic
	}
	if f.Status != "" && !ValidStatus(f.Status) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalid, f.Status)
	}
	return s.repo.List(ctx, clinicID, f, limit, offset)
}
