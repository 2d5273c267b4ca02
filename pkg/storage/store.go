// Package storage persists subjects, sessions, trials and thresholds in
// SQLite. Trials are written once and never updated.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Sentinel errors.
var (
	// ErrSubjectExists is returned when creating a subject twice.
	ErrSubjectExists = errors.New("storage: subject already exists")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("storage: not found")
)

// Subject is a participant.
type Subject struct {
	Name      string    `json:"name"`
	Group     string    `json:"group"`
	Sex       string    `json:"sex"`
	Cohort    string    `json:"cohort"`
	Species   string    `json:"species"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one run of a paradigm for a subject.
type Session struct {
	ID           uuid.UUID  `json:"id"`
	Subject      string     `json:"subject"`
	Paradigm     string     `json:"paradigm"`
	Experimenter string     `json:"experimenter"`
	Plane        string     `json:"plane"`
	Example      bool       `json:"example"`
	Calibrated   bool       `json:"calibrated"`
	OffsetAz     float64    `json:"offset_azimuth"`
	OffsetEl     float64    `json:"offset_elevation"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Trial is one recorded trial.
type Trial struct {
	ID            int64         `json:"id"`
	SessionID     uuid.UUID     `json:"session_id"`
	N             int           `json:"n"`
	Condition     string        `json:"condition"`
	TargetSpeaker int           `json:"target_speaker"`
	MaskerSpeaker int           `json:"masker_speaker,omitempty"`
	Level         float64       `json:"level"`
	Response      int           `json:"response"`
	Solution      int           `json:"solution"`
	ReactionTime  time.Duration `json:"reaction_time"`
	Correct       bool          `json:"correct"`
	PoseAz        float64       `json:"pose_azimuth"`
	PoseEl        float64       `json:"pose_elevation"`
	ErrorAz       float64       `json:"error_azimuth"`
	ErrorEl       float64       `json:"error_elevation"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Threshold is a staircase result.
type Threshold struct {
	ID            int64     `json:"id"`
	SessionID     uuid.UUID `json:"session_id"`
	Condition     string    `json:"condition"`
	MaskerSpeaker int       `json:"masker_speaker"`
	Value         float64   `json:"value"`
	Reversals     int       `json:"reversals"`
	Trials        int       `json:"trials"`
	Converged     bool      `json:"converged"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store wraps the database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (or creates) the database at path and migrates it. Use
// ":memory:" for an ephemeral store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	if path == ":memory:" {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	s := &Store{db: db, logger: logger.With("component", "storage"), now: time.Now}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// dsn appends per-connection pragmas so every pooled connection enforces
// foreign keys.
func dsn(path string) string {
	pragmas := []string{"foreign_keys(1)", "busy_timeout(5000)"}
	if path != ":memory:" {
		pragmas = append(pragmas, "journal_mode(WAL)", "synchronous(NORMAL)")
	}
	return path + "?_pragma=" + strings.Join(pragmas, "&_pragma=")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSubject inserts a new subject.
func (s *Store) CreateSubject(ctx context.Context, sub Subject) (Subject, error) {
	if sub.Name == "" {
		return Subject{}, errors.New("storage: subject name required")
	}
	if sub.Species == "" {
		sub.Species = "Human"
	}
	sub.CreatedAt = s.now().UTC().Truncate(time.Millisecond)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subjects (name, grp, sex, cohort, species, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sub.Name, sub.Group, sub.Sex, sub.Cohort, sub.Species, sub.CreatedAt.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return Subject{}, fmt.Errorf("%w: %s", ErrSubjectExists, sub.Name)
		}
		return Subject{}, fmt.Errorf("storage: create subject: %w", err)
	}
	return sub, nil
}

// GetSubject loads a subject by name.
func (s *Store) GetSubject(ctx context.Context, name string) (Subject, error) {
	var sub Subject
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT name, grp, sex, cohort, species, created_at FROM subjects WHERE name = ?`, name).
		Scan(&sub.Name, &sub.Group, &sub.Sex, &sub.Cohort, &sub.Species, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Subject{}, fmt.Errorf("%w: subject %s", ErrNotFound, name)
	}
	if err != nil {
		return Subject{}, fmt.Errorf("storage: get subject: %w", err)
	}
	sub.CreatedAt = time.UnixMilli(created).UTC()
	return sub, nil
}

// EnsureSubject creates the subject, or loads the stored one when it
// already exists. created reports which happened.
func (s *Store) EnsureSubject(ctx context.Context, sub Subject) (stored Subject, created bool, err error) {
	stored, err = s.CreateSubject(ctx, sub)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, ErrSubjectExists) {
		return Subject{}, false, err
	}
	stored, err = s.GetSubject(ctx, sub.Name)
	return stored, false, err
}

// CreateSession starts a session with a fresh id.
func (s *Store) CreateSession(ctx context.Context, sess Session) (Session, error) {
	sess.ID = uuid.New()
	sess.StartedAt = s.now().UTC().Truncate(time.Millisecond)
	sess.FinishedAt = nil
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, subject, paradigm, experimenter, plane, example, calibrated, offset_az, offset_el, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID.String(), sess.Subject, sess.Paradigm, sess.Experimenter, sess.Plane,
		sess.Example, sess.Calibrated, sess.OffsetAz, sess.OffsetEl, sess.StartedAt.UnixMilli())
	if err != nil {
		return Session{}, fmt.Errorf("storage: create session: %w", err)
	}
	return sess, nil
}

// SetCalibration records the head offset used by a session.
func (s *Store) SetCalibration(ctx context.Context, id uuid.UUID, calibrated bool, az, el float64) error {
	return s.updateSession(ctx, id,
		`UPDATE sessions SET calibrated = ?, offset_az = ?, offset_el = ? WHERE id = ?`,
		calibrated, az, el, id.String())
}

// FinishSession stamps the end time.
func (s *Store) FinishSession(ctx context.Context, id uuid.UUID) error {
	return s.updateSession(ctx, id,
		`UPDATE sessions SET finished_at = ? WHERE id = ?`,
		s.now().UTC().UnixMilli(), id.String())
}

func (s *Store) updateSession(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("storage: update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return nil
}

const sessionColumns = `id, subject, paradigm, experimenter, plane, example, calibrated, offset_az, offset_el, started_at, finished_at`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var sess Session
	var id string
	var started int64
	var finished sql.NullInt64
	if err := row.Scan(&id, &sess.Subject, &sess.Paradigm, &sess.Experimenter, &sess.Plane,
		&sess.Example, &sess.Calibrated, &sess.OffsetAz, &sess.OffsetEl, &started, &finished); err != nil {
		return Session{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Session{}, fmt.Errorf("storage: bad session id %q: %w", id, err)
	}
	sess.ID = parsed
	sess.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		t := time.UnixMilli(finished.Int64).UTC()
		sess.FinishedAt = &t
	}
	return sess, nil
}

// GetSession loads a session.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id.String())
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if err != nil {
		return Session{}, fmt.Errorf("storage: get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns sessions newest first. An empty subject lists all.
func (s *Store) ListSessions(ctx context.Context, subject string) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []any
	if subject != "" {
		query += ` WHERE subject = ?`
		args = append(args, subject)
	}
	query += ` ORDER BY started_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// RecordTrial appends a trial and returns it with its id.
func (s *Store) RecordTrial(ctx context.Context, t Trial) (Trial, error) {
	t.CreatedAt = s.now().UTC().Truncate(time.Millisecond)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO trials (session_id, n, condition, target_speaker, masker_speaker, level, response, solution,
		                     reaction_ms, correct, pose_az, pose_el, error_az, error_el, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.SessionID.String(), t.N, t.Condition, t.TargetSpeaker, t.MaskerSpeaker, t.Level, t.Response, t.Solution,
		t.ReactionTime.Milliseconds(), t.Correct, t.PoseAz, t.PoseEl, t.ErrorAz, t.ErrorEl, t.CreatedAt.UnixMilli())
	if err != nil {
		return Trial{}, fmt.Errorf("storage: record trial: %w", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return Trial{}, fmt.Errorf("storage: record trial: %w", err)
	}
	return t, nil
}

// Trials returns the trials of a session in order.
func (s *Store) Trials(ctx context.Context, sessionID uuid.UUID) ([]Trial, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, n, condition, target_speaker, masker_speaker, level, response, solution,
		        reaction_ms, correct, pose_az, pose_el, error_az, error_el, created_at
		 FROM trials WHERE session_id = ? ORDER BY n, id`, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("storage: list trials: %w", err)
	}
	defer rows.Close()

	var out []Trial
	for rows.Next() {
		var t Trial
		var sid string
		var rtMs, created int64
		if err := rows.Scan(&t.ID, &sid, &t.N, &t.Condition, &t.TargetSpeaker, &t.MaskerSpeaker, &t.Level,
			&t.Response, &t.Solution, &rtMs, &t.Correct, &t.PoseAz, &t.PoseEl, &t.ErrorAz, &t.ErrorEl, &created); err != nil {
			return nil, fmt.Errorf("storage: scan trial: %w", err)
		}
		t.SessionID = sessionID
		t.ReactionTime = time.Duration(rtMs) * time.Millisecond
		t.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecordThreshold stores a staircase result.
func (s *Store) RecordThreshold(ctx context.Context, th Threshold) (Threshold, error) {
	th.CreatedAt = s.now().UTC().Truncate(time.Millisecond)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO thresholds (session_id, condition, masker_speaker, value, reversals, trials, converged, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		th.SessionID.String(), th.Condition, th.MaskerSpeaker, th.Value, th.Reversals, th.Trials, th.Converged,
		th.CreatedAt.UnixMilli())
	if err != nil {
		return Threshold{}, fmt.Errorf("storage: record threshold: %w", err)
	}
	if th.ID, err = res.LastInsertId(); err != nil {
		return Threshold{}, fmt.Errorf("storage: record threshold: %w", err)
	}
	return th, nil
}

// Thresholds returns the thresholds of a session in insertion order.
func (s *Store) Thresholds(ctx context.Context, sessionID uuid.UUID) ([]Threshold, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, condition, masker_speaker, value, reversals, trials, converged, created_at
		 FROM thresholds WHERE session_id = ? ORDER BY id`, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("storage: list thresholds: %w", err)
	}
	defer rows.Close()

	var out []Threshold
	for rows.Next() {
		th := Threshold{SessionID: sessionID}
		var created int64
		if err := rows.Scan(&th.ID, &th.Condition, &th.MaskerSpeaker, &th.Value, &th.Reversals, &th.Trials,
			&th.Converged, &created); err != nil {
			return nil, fmt.Errorf("storage: scan threshold: %w", err)
		}
		th.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, th)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
