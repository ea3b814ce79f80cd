// Package core composes the store, the persistence adapter and the artifact
// store into a Service that checks references and input before dispatching.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"classledger/internal/blob"
	"classledger/internal/logging"
	"classledger/internal/persist"
	"classledger/internal/query"
	"classledger/internal/store"
	"classledger/pkg/domain"
)

// ErrInvalidSnapshot is returned by Import when the input is not a snapshot object.
var ErrInvalidSnapshot = errors.New("input is not a snapshot object")

// Service is the checked entry point for mutations and the owner of the
// process-wide store.
type Service struct {
	store    *store.Store
	adapter  *persist.Adapter
	validate *validator.Validate
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	closers  []domain.Closer
}

type options struct {
	logger    Logger
	metrics   MetricsRecorder
	tracer    Tracer
	blobs     blob.Store
	now       func() time.Time
	storeOpts []store.Option
	closers   []domain.Closer
}

// Option configures a Service.
type Option func(*options)

// WithLogger sets the logger shared by the service, store and adapter.
func WithLogger(l Logger) Option { return func(o *options) { o.logger = logging.OrNoop(l) } }

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithBlobStore sets the artifact store used for exports.
func WithBlobStore(b blob.Store) Option { return func(o *options) { o.blobs = b } }

// WithClock overrides the clock used for createdAt stamps and export names.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithCascadeMode selects group-delete cascade behaviour.
func WithCascadeMode(mode store.CascadeMode) Option {
	return func(o *options) { o.storeOpts = append(o.storeOpts, store.WithCascadeMode(mode)) }
}

// WithStoreOptions passes extra options to the store.
func WithStoreOptions(opts ...store.Option) Option {
	return func(o *options) { o.storeOpts = append(o.storeOpts, opts...) }
}

// WithCloser registers a resource released by Close.
func WithCloser(c domain.Closer) Option {
	return func(o *options) {
		if c != nil {
			o.closers = append(o.closers, c)
		}
	}
}

// New loads the dataset from slot and returns a service over it.
func New(ctx context.Context, slot domain.Slot, opts ...Option) *Service {
	o := options{logger: logging.Noop(), metrics: noopMetrics{}, tracer: noopTracer{}}
	for _, opt := range opts {
		opt(&o)
	}
	adapterOpts := []persist.Option{persist.WithLogger(o.logger)}
	if o.blobs != nil {
		adapterOpts = append(adapterOpts, persist.WithBlobStore(o.blobs))
	}
	if o.now != nil {
		adapterOpts = append(adapterOpts, persist.WithClock(o.now))
	}
	s := &Service{
		adapter:  persist.New(slot, adapterOpts...),
		validate: validator.New(),
		logger:   o.logger,
		metrics:  o.metrics,
		tracer:   o.tracer,
		closers:  o.closers,
	}

	var initial domain.Dataset
	_ = s.observe(ctx, "load", func(ctx context.Context) error {
		initial = s.adapter.Load(ctx)
		return nil
	})

	storeOpts := []store.Option{store.WithSaver(observedSaver{s}), store.WithLogger(o.logger)}
	if o.now != nil {
		storeOpts = append(storeOpts, store.WithClock(o.now))
	}
	s.store = store.New(initial, append(storeOpts, o.storeOpts...)...)
	s.logger.Info("dataset loaded", "driver", s.adapter.Driver(), "cascade", string(s.store.CascadeMode()), "students", len(initial.Students), "groups", len(initial.Groups))
	return s
}

type observedSaver struct{ s *Service }

func (o observedSaver) Save(ctx context.Context, d domain.Dataset) error {
	return o.s.observe(ctx, "save", func(ctx context.Context) error {
		return o.s.adapter.Save(ctx, d)
	})
}

func (s *Service) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	err := fn(ctx)
	s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	span.End(err)
	return err
}

// Store returns the underlying store.
func (s *Service) Store() *store.Store { return s.store }

// Adapter returns the persistence adapter.
func (s *Service) Adapter() *persist.Adapter { return s.adapter }

// Snapshot returns the current dataset.
func (s *Service) Snapshot() domain.Dataset { return s.store.Snapshot() }

// LastSaveError returns the error of the most recent save, or nil.
func (s *Service) LastSaveError() error { return s.store.LastSaveError() }

// Close releases the slot and any other registered resources.
func (s *Service) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatch applies an action without reference checks. A not_found outcome
// is reported as ErrNotFound; the outcome is returned either way.
func (s *Service) Dispatch(ctx context.Context, action store.Action) (store.Outcome, error) {
	if action == nil {
		return store.Outcome{Status: store.StatusUnchanged}, nil
	}
	var out store.Outcome
	err := s.observe(ctx, "dispatch."+string(action.Kind()), func(ctx context.Context) error {
		out = s.store.Dispatch(ctx, action)
		if out.Status == store.StatusNotFound {
			return ErrNotFound{Entity: out.Entity, ID: out.ID}
		}
		return nil
	})
	return out, err
}

func (s *Service) check(entity domain.EntityType, v any) error {
	return fromValidator(entity, s.validate.Struct(v))
}

func (s *Service) requireStudent(d domain.Dataset, id string) error {
	if _, ok := query.StudentByID(d, id); !ok {
		return ErrNotFound{Entity: domain.EntityStudent, ID: id}
	}
	return nil
}

func (s *Service) requireGroup(d domain.Dataset, id string) error {
	if _, ok := query.GroupByID(d, id); !ok {
		return ErrNotFound{Entity: domain.EntityGroup, ID: id}
	}
	return nil
}

func (s *Service) requireSession(d domain.Dataset, id string) (domain.Session, error) {
	sess, ok := query.SessionByID(d, id)
	if !ok {
		return domain.Session{}, ErrNotFound{Entity: domain.EntitySession, ID: id}
	}
	return sess, nil
}

func (s *Service) requireAssessment(d domain.Dataset, id string) (domain.Assessment, error) {
	a, ok := query.AssessmentByID(d, id)
	if !ok {
		return domain.Assessment{}, ErrNotFound{Entity: domain.EntityAssessment, ID: id}
	}
	return a, nil
}

// Students ---------------------------------------------------------------

// CreateStudent validates and adds a student.
func (s *Service) CreateStudent(ctx context.Context, st domain.Student) (domain.Student, error) {
	if err := s.check(domain.EntityStudent, st); err != nil {
		return domain.Student{}, err
	}
	out, err := s.Dispatch(ctx, store.CreateStudent{Student: st})
	if err != nil {
		return domain.Student{}, err
	}
	created, _ := query.StudentByID(s.Snapshot(), out.ID)
	return created, nil
}

// UpdateStudent replaces an existing student.
func (s *Service) UpdateStudent(ctx context.Context, st domain.Student) (domain.Student, error) {
	if err := s.check(domain.EntityStudent, st); err != nil {
		return domain.Student{}, err
	}
	if _, err := s.Dispatch(ctx, store.UpdateStudent{Student: st}); err != nil {
		return domain.Student{}, err
	}
	updated, _ := query.StudentByID(s.Snapshot(), st.ID)
	return updated, nil
}

// DeleteStudent removes a student with their memberships, attendance and grades.
func (s *Service) DeleteStudent(ctx context.Context, id string) (store.Outcome, error) {
	return s.Dispatch(ctx, store.DeleteStudent{ID: id})
}

// Groups -----------------------------------------------------------------

// CreateGroup validates and adds a group.
func (s *Service) CreateGroup(ctx context.Context, g domain.Group) (domain.Group, error) {
	if err := s.check(domain.EntityGroup, g); err != nil {
		return domain.Group{}, err
	}
	out, err := s.Dispatch(ctx, store.CreateGroup{Group: g})
	if err != nil {
		return domain.Group{}, err
	}
	created, _ := query.GroupByID(s.Snapshot(), out.ID)
	return created, nil
}

// UpdateGroup replaces an existing group.
func (s *Service) UpdateGroup(ctx context.Context, g domain.Group) (domain.Group, error) {
	if err := s.check(domain.EntityGroup, g); err != nil {
		return domain.Group{}, err
	}
	if _, err := s.Dispatch(ctx, store.UpdateGroup{Group: g}); err != nil {
		return domain.Group{}, err
	}
	updated, _ := query.GroupByID(s.Snapshot(), g.ID)
	return updated, nil
}

// DeleteGroup removes a group using the configured cascade mode.
func (s *Service) DeleteGroup(ctx context.Context, id string) (store.Outcome, error) {
	return s.Dispatch(ctx, store.DeleteGroup{ID: id})
}

// AddStudentToGroup links two existing records. Adding an existing link is a no-op.
func (s *Service) AddStudentToGroup(ctx context.Context, studentID, groupID string) (store.Outcome, error) {
	d := s.Snapshot()
	if err := s.requireStudent(d, studentID); err != nil {
		return store.Outcome{}, err
	}
	if err := s.requireGroup(d, groupID); err != nil {
		return store.Outcome{}, err
	}
	return s.Dispatch(ctx, store.AddStudentToGroup{StudentID: studentID, GroupID: groupID})
}

// RemoveStudentFromGroup unlinks a student from a group.
func (s *Service) RemoveStudentFromGroup(ctx context.Context, studentID, groupID string) (store.Outcome, error) {
	return s.Dispatch(ctx, store.RemoveStudentFromGroup{StudentID: studentID, GroupID: groupID})
}

// Sessions ---------------------------------------------------------------

// CreateSession adds a session to an existing group.
func (s *Service) CreateSession(ctx context.Context, sess domain.Session) (domain.Session, error) {
	if err := s.check(domain.EntitySession, sess); err != nil {
		return domain.Session{}, err
	}
	if err := s.requireGroup(s.Snapshot(), sess.GroupID); err != nil {
		return domain.Session{}, err
	}
	out, err := s.Dispatch(ctx, store.CreateSession{Session: sess})
	if err != nil {
		return domain.Session{}, err
	}
	created, _ := query.SessionByID(s.Snapshot(), out.ID)
	return created, nil
}

// UpdateSession replaces an existing session; its group must exist.
func (s *Service) UpdateSession(ctx context.Context, sess domain.Session) (domain.Session, error) {
	if err := s.check(domain.EntitySession, sess); err != nil {
		return domain.Session{}, err
	}
	if err := s.requireGroup(s.Snapshot(), sess.GroupID); err != nil {
		return domain.Session{}, err
	}
	if _, err := s.Dispatch(ctx, store.UpdateSession{Session: sess}); err != nil {
		return domain.Session{}, err
	}
	updated, _ := query.SessionByID(s.Snapshot(), sess.ID)
	return updated, nil
}

// DeleteSession removes a session with its attendance and report.
func (s *Service) DeleteSession(ctx context.Context, id string) (store.Outcome, error) {
	return s.Dispatch(ctx, store.DeleteSession{ID: id})
}

// RecordAttendance upserts one student's status for a session.
func (s *Service) RecordAttendance(ctx context.Context, sessionID, studentID string, status domain.AttendanceStatus) (store.Outcome, error) {
	return s.MarkAttendance(ctx, sessionID, []store.AttendanceMark{{StudentID: studentID, Status: status}})
}

// MarkAttendance upserts several statuses for one session. Every student
// must exist; nothing is written when any mark is rejected.
func (s *Service) MarkAttendance(ctx context.Context, sessionID string, marks []store.AttendanceMark) (store.Outcome, error) {
	d := s.Snapshot()
	if _, err := s.requireSession(d, sessionID); err != nil {
		return store.Outcome{}, err
	}
	for _, m := range marks {
		rec := domain.AttendanceRecord{SessionID: sessionID, StudentID: m.StudentID, Status: m.Status}
		if err := s.check(domain.EntityAttendance, rec); err != nil {
			return store.Outcome{}, err
		}
		if err := s.requireStudent(d, m.StudentID); err != nil {
			return store.Outcome{}, err
		}
	}
	if len(marks) == 1 {
		return s.Dispatch(ctx, store.UpsertAttendance{SessionID: sessionID, StudentID: marks[0].StudentID, Status: marks[0].Status})
	}
	return s.Dispatch(ctx, store.MarkAttendance{SessionID: sessionID, Marks: marks})
}

// RecordReport writes the report of an existing session, replacing any previous one.
func (s *Service) RecordReport(ctx context.Context, r domain.SessionReport) (domain.SessionReport, error) {
	if err := s.check(domain.EntitySessionReport, r); err != nil {
		return domain.SessionReport{}, err
	}
	if _, err := s.requireSession(s.Snapshot(), r.SessionID); err != nil {
		return domain.SessionReport{}, err
	}
	if _, err := s.Dispatch(ctx, store.UpsertSessionReport{SessionID: r.SessionID, Summary: r.Summary, Homework: r.Homework, Notes: r.Notes}); err != nil {
		return domain.SessionReport{}, err
	}
	saved, _ := query.ReportForSession(s.Snapshot(), r.SessionID)
	return saved, nil
}

// DeleteReport removes a session report by id.
func (s *Service) DeleteReport(ctx context.Context, id string) (store.Outcome, error) {
	return s.Dispatch(ctx, store.DeleteSessionReport{ID: id})
}

// Assessments and grades -------------------------------------------------

// CreateAssessment adds an assessment to an existing group.
func (s *Service) CreateAssessment(ctx context.Context, a domain.Assessment) (domain.Assessment, error) {
	if err := s.check(domain.EntityAssessment, a); err != nil {
		return domain.Assessment{}, err
	}
	if err := s.requireGroup(s.Snapshot(), a.GroupID); err != nil {
		return domain.Assessment{}, err
	}
	out, err := s.Dispatch(ctx, store.CreateAssessment{Assessment: a})
	if err != nil {
		return domain.Assessment{}, err
	}
	created, _ := query.AssessmentByID(s.Snapshot(), out.ID)
	return created, nil
}

// UpdateAssessment replaces an existing assessment.
func (s *Service) UpdateAssessment(ctx context.Context, a domain.Assessment) (domain.Assessment, error) {
	if err := s.check(domain.EntityAssessment, a); err != nil {
		return domain.Assessment{}, err
	}
	if err := s.requireGroup(s.Snapshot(), a.GroupID); err != nil {
		return domain.Assessment{}, err
	}
	if _, err := s.Dispatch(ctx, store.UpdateAssessment{Assessment: a}); err != nil {
		return domain.Assessment{}, err
	}
	updated, _ := query.AssessmentByID(s.Snapshot(), a.ID)
	return updated, nil
}

// DeleteAssessment removes an assessment with its grades.
func (s *Service) DeleteAssessment(ctx context.Context, id string) (store.Outcome, error) {
	return s.Dispatch(ctx, store.DeleteAssessment{ID: id})
}

// RecordGrade upserts a student's score. The score must lie in [0, maxScore].
func (s *Service) RecordGrade(ctx context.Context, assessmentID, studentID string, score float64, comments string) (domain.Grade, error) {
	d := s.Snapshot()
	a, err := s.requireAssessment(d, assessmentID)
	if err != nil {
		return domain.Grade{}, err
	}
	if err := s.requireStudent(d, studentID); err != nil {
		return domain.Grade{}, err
	}
	if score < 0 {
		return domain.Grade{}, invalid(domain.EntityGrade, FieldError{Field: "Score", Rule: "gte", Param: "0"})
	}
	if score > a.MaxScore {
		return domain.Grade{}, invalid(domain.EntityGrade, FieldError{Field: "Score", Rule: "lte", Param: fmt.Sprint(a.MaxScore)})
	}
	if _, err := s.Dispatch(ctx, store.UpsertGrade{AssessmentID: assessmentID, StudentID: studentID, Score: score, Comments: comments}); err != nil {
		return domain.Grade{}, err
	}
	for _, g := range query.GradesForAssessment(s.Snapshot(), assessmentID) {
		if g.StudentID == studentID {
			return g, nil
		}
	}
	return domain.Grade{}, ErrNotFound{Entity: domain.EntityGrade, ID: assessmentID + "/" + studentID}
}

// Payments ---------------------------------------------------------------

// RecordPayment creates the payment record for (student, group, month), or
// replaces the existing one for that month.
func (s *Service) RecordPayment(ctx context.Context, p domain.PaymentRecord) (domain.PaymentRecord, error) {
	if err := s.check(domain.EntityPayment, p); err != nil {
		return domain.PaymentRecord{}, err
	}
	d := s.Snapshot()
	if err := s.requireStudent(d, p.StudentID); err != nil {
		return domain.PaymentRecord{}, err
	}
	if err := s.requireGroup(d, p.GroupID); err != nil {
		return domain.PaymentRecord{}, err
	}
	var action store.Action = store.CreatePayment{Payment: p}
	if existing, ok := query.PaymentStatusForStudentInMonth(d, p.StudentID, p.GroupID, p.Month); ok {
		p.ID = existing.ID
		action = store.UpdatePayment{Payment: p}
	}
	out, err := s.Dispatch(ctx, action)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	saved, _ := query.PaymentByID(s.Snapshot(), out.ID)
	return saved, nil
}

// DeletePayment removes a payment record.
func (s *Service) DeletePayment(ctx context.Context, id string) (store.Outcome, error) {
	return s.Dispatch(ctx, store.DeletePayment{ID: id})
}

// Dataset ----------------------------------------------------------------

// Clear empties every collection.
func (s *Service) Clear(ctx context.Context) (store.Outcome, error) {
	return s.Dispatch(ctx, store.ClearDataset{})
}

// Import replaces the dataset with raw after coercion. Input that is not a
// snapshot object is rejected with ErrInvalidSnapshot and changes nothing.
func (s *Service) Import(ctx context.Context, raw []byte) error {
	return s.observe(ctx, "import", func(ctx context.Context) error {
		d, ok := s.adapter.ImportSnapshot(ctx, raw)
		if !ok {
			return ErrInvalidSnapshot
		}
		s.store.Dispatch(ctx, store.ReplaceDataset{Dataset: d})
		return nil
	})
}

// Export publishes the persisted dataset to the artifact store.
func (s *Service) Export(ctx context.Context) (persist.Export, error) {
	var exp persist.Export
	err := s.observe(ctx, "export", func(ctx context.Context) error {
		var err error
		exp, err = s.adapter.ExportSnapshot(ctx)
		return err
	})
	return exp, err
}

// ListExports lists published exports.
func (s *Service) ListExports(ctx context.Context) ([]blob.Info, error) {
	return s.adapter.ListExports(ctx)
}

// RestoreExport imports a published export.
func (s *Service) RestoreExport(ctx context.Context, key string) error {
	return s.observe(ctx, "restore", func(ctx context.Context) error {
		d, ok, err := s.adapter.RestoreExport(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidSnapshot
		}
		s.store.Dispatch(ctx, store.ReplaceDataset{Dataset: d})
		return nil
	})
}
