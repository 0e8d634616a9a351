package clinical

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/icd10"
	"github.com/clinicore/clinicore/internal/platform/auth"
)

// CodeLookup resolves ICD-10 codes. *icd10.Service satisfies it.
type CodeLookup interface {
	Lookup(ctx context.Context, code string) (*icd10.Code, error)
}

type Service struct {
	repo  Repository
	codes CodeLookup
}

// NewService builds the clinical service. With a nil codes lookup diagnosis
// codes are stored as given.
func NewService(repo Repository, codes CodeLookup) *Service {
	return &Service{repo: repo, codes: codes}
}

// authorize allows admins and the doctor assigned to the appointment.
func authorize(ctx context.Context, doctorID uuid.UUID) error {
	if auth.HasRole(ctx, auth.RoleAdmin) || auth.UserIDFromContext(ctx) == doctorID.String() {
		return nil
	}
	return ErrForbidden
}

// SaveRecord creates or replaces the SOAP note of an appointment.
func (s *Service) SaveRecord(ctx context.Context, clinicID, appointmentID uuid.UUID, rec *Record) error {
	if clinicID == uuid.Nil {
		return ErrNoClinic
	}
	doctorID, err := s.repo.AppointmentDoctor(ctx, clinicID, appointmentID)
	if err != nil {
		return err
	}
	if err := authorize(ctx, doctorID); err != nil {
		return err
	}
	rec.AppointmentID = appointmentID
	rec.Subjective, rec.Objective = trimOptional(rec.Subjective), trimOptional(rec.Objective)
	rec.Assessment, rec.Plan = trimOptional(rec.Assessment), trimOptional(rec.Plan)
	if err := s.repo.UpsertRecord(ctx, rec); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("appointment_id", appointmentID.String()).Str("record_id", rec.ID.String()).
		Msg("clinical record saved")
	return s.attachDiagnoses(ctx, rec)
}

// GetRecord returns the record of an appointment with its diagnoses.
func (s *Service) GetRecord(ctx context.Context, clinicID, appointmentID uuid.UUID) (*Record, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	rec, err := s.repo.GetRecordByAppointment(ctx, clinicID, appointmentID)
	if err != nil {
		return nil, err
	}
	return rec, s.attachDiagnoses(ctx, rec)
}

func (s *Service) attachDiagnoses(ctx context.Context, recs ...*Record) error {
	ids := make([]uuid.UUID, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	byRecord, err := s.repo.DiagnosesByRecord(ctx, ids)
	if err != nil {
		return fmt.Errorf("load diagnoses: %w", err)
	}
	for _, r := range recs {
		r.Diagnoses = byRecord[r.ID]
		if r.Diagnoses == nil {
			r.Diagnoses = []*Diagnosis{}
		}
	}
	return nil
}

// resolveCode normalizes the code and, when a lookup is configured, rejects
// codes absent from the ICD-10 tables. A missing description is taken from
// the table.
func (s *Service) resolveCode(ctx context.Context, d *Diagnosis) error {
	d.CIDCode = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(d.CIDCode), ".", ""))
	if d.CIDCode == "" {
		return fmt.Errorf("%w: cid_code is required", ErrInvalid)
	}
	d.Description = trimOptional(d.Description)
	if s.codes == nil {
		return nil
	}
	code, err := s.codes.Lookup(ctx, d.CIDCode)
	if errors.Is(err, icd10.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownCode, d.CIDCode)
	}
	if err != nil {
		return fmt.Errorf("lookup %s: %w", d.CIDCode, err)
	}
	if d.Description == nil {
		desc := code.Description
		d.Description = &desc
	}
	return nil
}

// AddDiagnosis attaches a diagnosis to a record.
func (s *Service) AddDiagnosis(ctx context.Context, clinicID, recordID uuid.UUID, d *Diagnosis) error {
	if clinicID == uuid.Nil {
		return ErrNoClinic
	}
	doctorID, err := s.repo.RecordDoctor(ctx, clinicID, recordID)
	if err != nil {
		return err
	}
	if err := authorize(ctx, doctorID); err != nil {
		return err
	}
	if err := s.resolveCode(ctx, d); err != nil {
		return err
	}
	d.ClinicalRecordID = recordID
	return s.repo.CreateDiagnosis(ctx, d)
}

func (s *Service) ListDiagnoses(ctx context.Context, clinicID, recordID uuid.UUID) ([]*Diagnosis, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	if _, err := s.repo.RecordDoctor(ctx, clinicID, recordID); err != nil {
		return nil, err
	}
	byRecord, err := s.repo.DiagnosesByRecord(ctx, []uuid.UUID{recordID})
	if err != nil {
		return nil, err
	}
	if out := byRecord[recordID]; out != nil {
		return out, nil
	}
	return []*Diagnosis{}, nil
}

// UpdateDiagnosis replaces the code and description of a diagnosis.
func (s *Service) UpdateDiagnosis(ctx context.Context, clinicID uuid.UUID, d *Diagnosis) error {
	if _, err := s.ownDiagnosis(ctx, clinicID, d.ID); err != nil {
		return err
	}
	if err := s.resolveCode(ctx, d); err != nil {
		return err
	}
	return s.repo.UpdateDiagnosis(ctx, d)
}

func (s *Service) DeleteDiagnosis(ctx context.Context, clinicID, id uuid.UUID) error {
	if _, err := s.ownDiagnosis(ctx, clinicID, id); err != nil {
		return err
	}
	return s.repo.DeleteDiagnosis(ctx, id)
}

// ownDiagnosis loads a diagnosis of clinicID and checks that the caller may
// change it.
func (s *Service) ownDiagnosis(ctx context.Context, clinicID, id uuid.UUID) (*Diagnosis, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	d, err := s.repo.GetDiagnosis(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	doctorID, err := s.repo.RecordDoctor(ctx, clinicID, d.ClinicalRecordID)
	if err != nil {
		return nil, err
	}
	return d, authorize(ctx, doctorID)
}

// PatientHistory lists every appointment of a patient, newest first, with
// its record and diagnoses when one exists.
func (s *Service) PatientHistory(ctx context.Context, clinicID, patientID uuid.UUID) ([]*HistoryEntry, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	ok, err := s.repo.PatientExists(ctx, clinicID, patientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPatientNotFound
	}
	entries, err := s.repo.PatientHistory(ctx, clinicID, patientID)
	if err != nil {
		return nil, err
	}
	var recs []*Record
	for _, e := range entries {
		if e.ClinicalRecord != nil {
			recs = append(recs, e.ClinicalRecord)
		}
	}
	if err := s.attachDiagnoses(ctx, recs...); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*HistoryEntry{}
	}
	return entries, nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
