package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"service-intake/internal/common/errors"
	"service-intake/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Schema creates the log tables. Safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS error_logs (
	id          TEXT PRIMARY KEY,
	error_id    TEXT NOT NULL,
	kind        TEXT NOT NULL,
	severity    TEXT NOT NULL,
	message     TEXT NOT NULL,
	user_id     TEXT,
	session_id  TEXT,
	metadata    JSONB,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS error_logs_created_at_idx ON error_logs (created_at);

CREATE TABLE IF NOT EXISTS validation_logs (
	id                TEXT PRIMARY KEY,
	user_id           TEXT,
	query             TEXT NOT NULL,
	service_code      TEXT,
	zone_code         TEXT,
	is_valid          BOOLEAN NOT NULL,
	error_kinds       TEXT[],
	correction_count  INTEGER NOT NULL,
	confidence        DOUBLE PRECISION NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS validation_logs_created_at_idx ON validation_logs (created_at);

CREATE TABLE IF NOT EXISTS retry_attempts (
	id          TEXT PRIMARY KEY,
	error_id    TEXT NOT NULL,
	kind        TEXT NOT NULL,
	attempt     INTEGER NOT NULL,
	success     BOOLEAN NOT NULL,
	delay_ms    BIGINT NOT NULL,
	error       TEXT,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS escalations (
	id           TEXT PRIMARY KEY,
	error_id     TEXT NOT NULL,
	kind         TEXT NOT NULL,
	reason       TEXT NOT NULL,
	final_error  TEXT,
	user_id      TEXT,
	created_at   TIMESTAMPTZ NOT NULL
);
`

type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return errors.NewDatabaseError("create audit schema", err)
	}
	return nil
}

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func at(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func (s *PostgresSink) LogError(ctx context.Context, e models.ErrorLog) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return errors.NewSystemError(err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO error_logs (id, error_id, kind, severity, message, user_id, session_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		newID(e.ID), e.ErrorID, string(e.Kind), e.Severity.String(), e.Message, e.UserID, e.SessionID, meta, at(e.CreatedAt),
	)
	if err != nil {
		return errors.NewDatabaseError("insert error log", err)
	}
	return nil
}

func (s *PostgresSink) LogValidation(ctx context.Context, v models.ValidationLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO validation_logs (id, user_id, query, service_code, zone_code, is_valid, error_kinds, correction_count, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		newID(v.ID), v.UserID, v.Query, v.ServiceCode, v.ZoneCode, v.IsValid, pq.Array(v.ErrorKinds), v.CorrectionCount, v.Confidence, at(v.CreatedAt),
	)
	if err != nil {
		return errors.NewDatabaseError("insert validation log", err)
	}
	return nil
}

func (s *PostgresSink) LogRetryAttempt(ctx context.Context, a models.RetryAttempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO retry_attempts (id, error_id, kind, attempt, success, delay_ms, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		newID(a.ID), a.ErrorID, string(a.Kind), a.Attempt, a.Success, a.Delay.Milliseconds(), a.Error, at(a.CreatedAt),
	)
	if err != nil {
		return errors.NewDatabaseError("insert retry attempt", err)
	}
	return nil
}

func (s *PostgresSink) LogEscalation(ctx context.Context, r models.EscalationRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO escalations (id, error_id, kind, reason, final_error, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		newID(r.ID), r.ErrorID, string(r.Kind), r.Reason, r.FinalError, r.UserID, at(r.Timestamp),
	)
	if err != nil {
		return errors.NewDatabaseError("insert escalation", err)
	}
	return nil
}

func (s *PostgresSink) ErrorsSince(ctx context.Context, since time.Time) ([]models.ErrorLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, error_id, kind, severity, message, COALESCE(user_id, ''), COALESCE(session_id, ''), metadata, created_at
		FROM error_logs WHERE created_at >= $1 ORDER BY created_at`, since)
	if err != nil {
		return nil, errors.NewDatabaseError("read error logs", err)
	}
	defer rows.Close()

	var out []models.ErrorLog
	for rows.Next() {
		var (
			e        models.ErrorLog
			kind     string
			severity string
			meta     []byte
		)
		if err := rows.Scan(&e.ID, &e.ErrorID, &kind, &severity, &e.Message, &e.UserID, &e.SessionID, &meta, &e.CreatedAt); err != nil {
			return nil, errors.NewDatabaseError("scan error log", err)
		}
		e.Kind = errors.ErrorKind(kind)
		e.Severity, _ = errors.ParseSeverity(severity)
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Metadata)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("read error logs", err)
	}
	return out, nil
}

func (s *PostgresSink) ValidationsSince(ctx context.Context, since time.Time) ([]models.ValidationLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(user_id, ''), query, COALESCE(service_code, ''), COALESCE(zone_code, ''), is_valid, error_kinds, correction_count, confidence, created_at
		FROM validation_logs WHERE created_at >= $1 ORDER BY created_at`, since)
	if err != nil {
		return nil, errors.NewDatabaseError("read validation logs", err)
	}
	defer rows.Close()

	var out []models.ValidationLog
	for rows.Next() {
		var (
			v     models.ValidationLog
			kinds pq.StringArray
		)
		if err := rows.Scan(&v.ID, &v.UserID, &v.Query, &v.ServiceCode, &v.ZoneCode, &v.IsValid, &kinds, &v.CorrectionCount, &v.Confidence, &v.CreatedAt); err != nil {
			return nil, errors.NewDatabaseError("scan validation log", err)
		}
		v.ErrorKinds = []string(kinds)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("read validation logs", err)
	}
	return out, nil
}

func (s *PostgresSink) RetryAttemptsSince(ctx context.Context, since time.Time) ([]models.RetryAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, error_id, kind, attempt, success, delay_ms, COALESCE(error, ''), created_at
		FROM retry_attempts WHERE created_at >= $1 ORDER BY created_at`, since)
	if err != nil {
		return nil, errors.NewDatabaseError("read retry attempts", err)
	}
	defer rows.Close()

	var out []models.RetryAttempt
	for rows.Next() {
		var (
			a       models.RetryAttempt
			kind    string
			delayMs int64
		)
		if err := rows.Scan(&a.ID, &a.ErrorID, &kind, &a.Attempt, &a.Success, &delayMs, &a.Error, &a.CreatedAt); err != nil {
			return nil, errors.NewDatabaseError("scan retry attempt", err)
		}
		a.Kind = errors.ErrorKind(kind)
		a.Delay = time.Duration(delayMs) * time.Millisecond
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("read retry attempts", err)
	}
	return out, nil
}

func (s *PostgresSink) EscalationsSince(ctx context.Context, since time.Time) ([]models.EscalationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, error_id, kind, reason, COALESCE(final_error, ''), COALESCE(user_id, ''), created_at
		FROM escalations WHERE created_at >= $1 ORDER BY created_at`, since)
	if err != nil {
		return nil, errors.NewDatabaseError("read escalations", err)
	}
	defer rows.Close()

	var out []models.EscalationRecord
	for rows.Next() {
		var (
			r    models.EscalationRecord
			kind string
		)
		if err := rows.Scan(&r.ID, &r.ErrorID, &kind, &r.Reason, &r.FinalError, &r.UserID, &r.Timestamp); err != nil {
			return nil, errors.NewDatabaseError("scan escalation", err)
		}
		r.Kind = errors.ErrorKind(kind)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("read escalations", err)
	}
	return out, nil
}
