package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/dreamforge/internal/apperr"
	"github.com/ternarybob/dreamforge/internal/common"
	"github.com/ternarybob/dreamforge/internal/models"
	"github.com/ternarybob/dreamforge/internal/store"
)

// hashIdempotencyKey reduces a caller-supplied Idempotency-Key header to a
// fixed-size digest so the unique index stays compact regardless of the
// header's original length.
func hashIdempotencyKey(key string) []byte {
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}

// Repository implements store.Repository over a *SQLiteDB. Every public
// method is one logical operation: one transaction, one commit or rollback.
type Repository struct {
	db *SQLiteDB
}

// NewRepository wraps an already-opened SQLiteDB as a store.Repository.
func NewRepository(db *SQLiteDB) *Repository {
	return &Repository{db: db}
}

var _ store.Repository = (*Repository)(nil)

func (r *Repository) Ping(ctx context.Context) error { return r.db.Ping(ctx) }
func (r *Repository) Close() error                   { return r.db.Close() }

func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return retryOnBusy(ctx, func() error {
		tx, err := r.db.BeginTx(ctx)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalMap(raw string) map[string]interface{} {
	out := map[string]interface{}{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func unixNow() int64   { return time.Now().UTC().UnixNano() }
func toTime(ns int64) time.Time { return time.Unix(0, ns).UTC() }

// CreateJobWithChain inserts a Job (status=queued) plus one Step per element
// of chain, preserving chain order by created_at.
func (r *Repository) CreateJobWithChain(ctx context.Context, jobType models.JobType, params map[string]interface{}, idempotencyKey string, chain store.ChainSpec) (*models.Job, error) {
	job := &models.Job{
		ID:            common.NewID(),
		Type:          jobType,
		Status:        models.StatusQueued,
		Params:        params,
		SchemaVersion: 1,
		CreatedAt:     toTime(unixNow()),
	}
	job.UpdatedAt = job.CreatedAt

	var hash []byte
	if idempotencyKey != "" {
		hash = hashIdempotencyKey(idempotencyKey)
		job.IdempotencyKeyHash = hash
	}

	paramsJSON, err := marshalJSON(params)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	err = r.withTx(ctx, func(tx *sql.Tx) error {
		if hash != nil {
			var existing string
			row := tx.QueryRowContext(ctx, `SELECT id FROM jobs WHERE idempotency_key_hash = ?`, hash)
			if scanErr := row.Scan(&existing); scanErr == nil {
				conflict := apperr.Conflict(fmt.Sprintf("job with this idempotency key already exists: %s", existing))
				conflict.Details = map[string]interface{}{"job_id": existing}
				return conflict
			} else if scanErr != sql.ErrNoRows {
				return scanErr
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO jobs (id, type, status, params_json, schema_version, idempotency_key_hash, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			job.ID, string(job.Type), string(job.Status), paramsJSON, job.SchemaVersion, hash,
			job.CreatedAt.UnixNano(), job.UpdatedAt.UnixNano())
		if err != nil {
			return err
		}

		for _, cs := range chain {
			stepID := common.NewID()
			meta := cs.Metadata
			if meta == nil {
				meta = map[string]interface{}{}
			}
			metaJSON, _ := marshalJSON(meta)
			now := unixNow()
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO steps (id, job_id, name, status, metadata_json, schema_version, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
				stepID, job.ID, string(cs.Name), string(models.StatusQueued), metaJSON, now, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *Repository) scanJob(row interface {
	Scan(dest ...interface{}) error
}) (*models.Job, error) {
	var j models.Job
	var jobType, status string
	var paramsJSON string
	var hash []byte
	var errCode, errMessage sql.NullString
	var createdAt, updatedAt int64

	if err := row.Scan(&j.ID, &jobType, &status, &paramsJSON, &j.SchemaVersion, &hash, &errCode, &errMessage, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	j.Type = models.JobType(jobType)
	j.Status = models.Status(status)
	j.Params = unmarshalMap(paramsJSON)
	j.IdempotencyKeyHash = hash
	j.ErrorCode = errCode.String
	j.ErrorMessage = errMessage.String
	j.CreatedAt = toTime(createdAt)
	j.UpdatedAt = toTime(updatedAt)
	return &j, nil
}

const jobColumns = `id, type, status, params_json, schema_version, idempotency_key_hash, error_code, error_message, created_at, updated_at`

func (r *Repository) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := r.db.DB().QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := r.scanJob(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("job not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return job, nil
}

func (r *Repository) GetJobWithSteps(ctx context.Context, id string) (*models.Job, []models.Step, error) {
	job, err := r.GetJob(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	steps, err := r.listStepsByJob(ctx, id)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	return job, steps, nil
}

func (r *Repository) listStepsByJob(ctx context.Context, jobID string) ([]models.Step, error) {
	rows, err := r.db.DB().QueryContext(ctx, `
		SELECT id, job_id, name, status, started_at, finished_at, metadata_json, schema_version, created_at, updated_at
		FROM steps WHERE job_id = ? ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Step
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanStep(rows *sql.Rows) (*models.Step, error) {
	var s models.Step
	var name, status, metaJSON string
	var startedAt, finishedAt sql.NullInt64
	var schemaVersion int
	var createdAt, updatedAt int64

	if err := rows.Scan(&s.ID, &s.JobID, &name, &status, &startedAt, &finishedAt, &metaJSON, &schemaVersion, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	s.Name = models.StepName(name)
	s.Status = models.Status(status)
	s.Metadata = unmarshalMap(metaJSON)
	if startedAt.Valid {
		t := toTime(startedAt.Int64)
		s.StartedAt = &t
	}
	if finishedAt.Valid {
		t := toTime(finishedAt.Int64)
		s.FinishedAt = &t
	}
	s.CreatedAt = toTime(createdAt)
	s.UpdatedAt = toTime(updatedAt)
	return &s, nil
}

func (r *Repository) ListJobs(ctx context.Context, status models.Status, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = r.db.DB().QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY updated_at DESC LIMIT ?`, string(status), limit)
	} else {
		rows, err = r.db.DB().QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY updated_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		j, err := r.scanJob(rows)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (r *Repository) GetStepByName(ctx context.Context, jobID string, name models.StepName) (*models.Step, error) {
	rows, err := r.db.DB().QueryContext(ctx, `
		SELECT id, job_id, name, status, started_at, finished_at, metadata_json, schema_version, created_at, updated_at
		FROM steps WHERE job_id = ? AND name = ? ORDER BY created_at ASC LIMIT 1`, jobID, string(name))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, apperr.NotFound("step not found")
	}
	return scanStep(rows)
}

func (r *Repository) MarkStepRunning(ctx context.Context, stepID string) error {
	now := unixNow()
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE steps SET status = ?, started_at = ?, updated_at = ? WHERE id = ?`,
			string(models.StatusRunning), now, now, stepID)
		return err
	})
}

func (r *Repository) MarkStepFinished(ctx context.Context, stepID string, status models.Status) error {
	now := unixNow()
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE steps SET status = ?, finished_at = ?, updated_at = ? WHERE id = ?`,
			string(status), now, now, stepID)
		return err
	})
}

func (r *Repository) MarkJobStatus(ctx context.Context, jobID string, status models.Status, errCode, errMessage string) error {
	now := unixNow()
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var code, msg interface{}
		if errCode != "" {
			code = errCode
		}
		if errMessage != "" {
			msg = errMessage
		}
		_, err := tx.ExecContext(ctx, `UPDATE jobs SET status = ?, error_code = ?, error_message = ?, updated_at = ? WHERE id = ?`,
			string(status), code, msg, now, jobID)
		return err
	})
}

func (r *Repository) AppendEvent(ctx context.Context, jobID, stepID, code string, level models.EventLevel, payload map[string]interface{}) (*models.Event, error) {
	if level == "" {
		level = models.LevelInfo
	}
	ev := &models.Event{
		ID:      common.NewID(),
		JobID:   jobID,
		StepID:  stepID,
		Ts:      toTime(unixNow()),
		Code:    code,
		Level:   level,
		Payload: payload,
	}
	payloadJSON, err := marshalJSON(payload)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	var stepIDArg interface{}
	if stepID != "" {
		stepIDArg = stepID
	}

	err = r.withTx(ctx, func(tx *sql.Tx) error {
		var seq int64
		row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM events WHERE job_id = ?`, jobID)
		if err := row.Scan(&seq); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO events (id, job_id, step_id, ts, code, level, payload_json, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, jobID, stepIDArg, ev.Ts.UnixNano(), code, string(level), payloadJSON, seq)
		return err
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return ev, nil
}

// IterEvents returns events for jobID. If sinceTs > 0, returns events with
// ts >= sinceTs in ascending order (tail is ignored in this mode). Otherwise
// returns up to the last `tail` events in ascending ts order.
func (r *Repository) IterEvents(ctx context.Context, jobID string, sinceTs int64, tail int) ([]models.Event, error) {
	var rows *sql.Rows
	var err error

	if sinceTs > 0 {
		rows, err = r.db.DB().QueryContext(ctx, `
			SELECT id, job_id, step_id, ts, code, level, payload_json FROM events
			WHERE job_id = ? AND ts >= ? ORDER BY ts ASC, seq ASC`, jobID, sinceTs)
	} else {
		if tail <= 0 {
			tail = 100
		}
		rows, err = r.db.DB().QueryContext(ctx, `
			SELECT id, job_id, step_id, ts, code, level, payload_json FROM
			(SELECT id, job_id, step_id, ts, code, level, payload_json FROM events
			 WHERE job_id = ? ORDER BY ts DESC, seq DESC LIMIT ?)
			ORDER BY ts ASC`, jobID, tail)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var ev models.Event
		var stepID sql.NullString
		var ts int64
		var level, payloadJSON string
		if err := rows.Scan(&ev.ID, &ev.JobID, &stepID, &ts, &ev.Code, &level, &payloadJSON); err != nil {
			return nil, apperr.Internal(err)
		}
		ev.StepID = stepID.String
		ev.Ts = toTime(ts)
		ev.Level = models.EventLevel(level)
		ev.Payload = unmarshalMap(payloadJSON)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *Repository) InsertArtifact(ctx context.Context, a *models.Artifact) error {
	if a.ID == "" {
		a.ID = common.NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = toTime(unixNow())
	}
	metaJSON, err := marshalJSON(a.Metadata)
	if err != nil {
		return apperr.Internal(err)
	}

	var seed interface{}
	if a.Seed != nil {
		seed = *a.Seed
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		var existing string
		row := tx.QueryRowContext(ctx, `SELECT id FROM artifacts WHERE job_id = ? AND step_id = ? AND item_index = ?`,
			a.JobID, a.StepID, a.ItemIndex)
		if scanErr := row.Scan(&existing); scanErr == nil {
			return apperr.Conflict("artifact already exists for this job/step/item")
		} else if scanErr != sql.ErrNoRows {
			return scanErr
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO artifacts (id, job_id, step_id, created_at, format, width, height, seed, item_index, s3_key, checksum, metadata_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.JobID, a.StepID, a.CreatedAt.UnixNano(), string(a.Format), a.Width, a.Height, seed, a.ItemIndex, a.S3Key, nullIfEmpty(a.Checksum), metaJSON)
		return err
	})
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

const artifactColumns = `id, job_id, step_id, created_at, format, width, height, seed, item_index, s3_key, checksum, metadata_json`

func scanArtifact(rows *sql.Rows) (*models.Artifact, error) {
	var a models.Artifact
	var format string
	var createdAt int64
	var seed sql.NullInt64
	var checksum sql.NullString
	var metaJSON string

	if err := rows.Scan(&a.ID, &a.JobID, &a.StepID, &createdAt, &format, &a.Width, &a.Height, &seed, &a.ItemIndex, &a.S3Key, &checksum, &metaJSON); err != nil {
		return nil, err
	}
	a.Format = models.ArtifactFormat(format)
	a.CreatedAt = toTime(createdAt)
	if seed.Valid {
		v := seed.Int64
		a.Seed = &v
	}
	a.Checksum = checksum.String
	a.Metadata = unmarshalMap(metaJSON)
	return &a, nil
}

func (r *Repository) ListArtifactsByJob(ctx context.Context, jobID string) ([]models.Artifact, error) {
	rows, err := r.db.DB().QueryContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE job_id = ? ORDER BY item_index ASC, created_at ASC`, jobID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	var out []models.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *Repository) ListArtifactsByStep(ctx context.Context, stepID string) ([]models.Artifact, error) {
	rows, err := r.db.DB().QueryContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE step_id = ? ORDER BY item_index ASC`, stepID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	var out []models.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

const modelColumns = `id, name, kind, version, checkpoint_hash, source_uri, local_path, installed, enabled, parameters_schema_json, capabilities_json, files_json, created_at, updated_at`

func scanModel(row interface {
	Scan(dest ...interface{}) error
}) (*models.Model, error) {
	var m models.Model
	var version, checkpointHash, sourceURI, localPath sql.NullString
	var installed, enabled int
	var paramsJSON, capsJSON, filesJSON string
	var createdAt, updatedAt int64

	if err := row.Scan(&m.ID, &m.Name, &m.Kind, &version, &checkpointHash, &sourceURI, &localPath,
		&installed, &enabled, &paramsJSON, &capsJSON, &filesJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	m.Version = version.String
	m.CheckpointHash = checkpointHash.String
	m.SourceURI = sourceURI.String
	m.LocalPath = localPath.String
	m.Installed = installed != 0
	m.Enabled = enabled != 0
	m.ParametersSchema = unmarshalMap(paramsJSON)
	_ = json.Unmarshal([]byte(capsJSON), &m.Capabilities)
	_ = json.Unmarshal([]byte(filesJSON), &m.Files)
	m.CreatedAt = toTime(createdAt)
	m.UpdatedAt = toTime(updatedAt)
	return &m, nil
}

func (r *Repository) ListModels(ctx context.Context, enabledOnly bool) ([]models.Model, error) {
	query := `SELECT ` + modelColumns + ` FROM models`
	var rows *sql.Rows
	var err error
	if enabledOnly {
		rows, err = r.db.DB().QueryContext(ctx, query+` WHERE enabled = 1 AND installed = 1 ORDER BY name ASC`)
	} else {
		rows, err = r.db.DB().QueryContext(ctx, query+` ORDER BY name ASC`)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	var out []models.Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *Repository) GetModel(ctx context.Context, id string) (*models.Model, error) {
	row := r.db.DB().QueryRowContext(ctx, `SELECT `+modelColumns+` FROM models WHERE id = ?`, id)
	m, err := scanModel(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("model not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return m, nil
}

func (r *Repository) GetModelByKey(ctx context.Context, name, version, kind string) (*models.Model, error) {
	row := r.db.DB().QueryRowContext(ctx, `SELECT `+modelColumns+` FROM models WHERE name = ? AND version = ? AND kind = ?`, name, version, kind)
	m, err := scanModel(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("model not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return m, nil
}

// UpsertModel inserts a new Model or updates an existing one keyed on
// (name, version, kind), the same uniqueness the registry enforces.
func (r *Repository) UpsertModel(ctx context.Context, m *models.Model) error {
	if m.ID == "" {
		m.ID = common.NewID()
	}
	now := unixNow()
	paramsJSON, err := marshalJSON(m.ParametersSchema)
	if err != nil {
		return apperr.Internal(err)
	}
	capsJSON, err := marshalJSON(m.Capabilities)
	if err != nil {
		return apperr.Internal(err)
	}
	filesJSON, err := marshalJSON(m.Files)
	if err != nil {
		return apperr.Internal(err)
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		var existingID string
		row := tx.QueryRowContext(ctx, `SELECT id FROM models WHERE name = ? AND version = ? AND kind = ?`, m.Name, m.Version, m.Kind)
		err := row.Scan(&existingID)
		switch err {
		case nil:
			m.ID = existingID
			_, err = tx.ExecContext(ctx, `
				UPDATE models SET checkpoint_hash = ?, source_uri = ?, local_path = ?, installed = ?, enabled = ?,
					parameters_schema_json = ?, capabilities_json = ?, files_json = ?, updated_at = ?
				WHERE id = ?`,
				nullIfEmpty(m.CheckpointHash), nullIfEmpty(m.SourceURI), nullIfEmpty(m.LocalPath),
				boolToInt(m.Installed), boolToInt(m.Enabled), paramsJSON, capsJSON, filesJSON, now, m.ID)
			return err
		case sql.ErrNoRows:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO models (id, name, kind, version, checkpoint_hash, source_uri, local_path, installed, enabled,
					parameters_schema_json, capabilities_json, files_json, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				m.ID, m.Name, m.Kind, nullIfEmpty(m.Version), nullIfEmpty(m.CheckpointHash), nullIfEmpty(m.SourceURI),
				nullIfEmpty(m.LocalPath), boolToInt(m.Installed), boolToInt(m.Enabled), paramsJSON, capsJSON, filesJSON, now, now)
			return err
		default:
			return err
		}
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r *Repository) MarkModelInstalled(ctx context.Context, id string, localPath string, files []models.ModelFile) error {
	filesJSON, err := marshalJSON(files)
	if err != nil {
		return apperr.Internal(err)
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE models SET installed = 1, local_path = ?, files_json = ?, updated_at = ? WHERE id = ?`,
			localPath, filesJSON, unixNow(), id)
		if err != nil {
			return err
		}
		return checkRowsAffected(res)
	})
}

func (r *Repository) SetModelEnabled(ctx context.Context, id string, enabled bool) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE models SET enabled = ?, updated_at = ? WHERE id = ?`, boolToInt(enabled), unixNow(), id)
		if err != nil {
			return err
		}
		return checkRowsAffected(res)
	})
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("model not found")
	}
	return nil
}

// GetDefaultModel returns the oldest installed, enabled model of the given
// kind (per §4.1), used when a job submission omits an explicit model
// selection.
func (r *Repository) GetDefaultModel(ctx context.Context, kind string) (*models.Model, error) {
	row := r.db.DB().QueryRowContext(ctx, `
		SELECT `+modelColumns+` FROM models
		WHERE kind = ? AND installed = 1 AND enabled = 1
		ORDER BY created_at ASC LIMIT 1`, kind)
	m, err := scanModel(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound(fmt.Sprintf("no eligible default model for kind %q", kind))
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return m, nil
}
