package sqlite

// schemaStatements creates the Jobs/Steps/Events/Artifacts/Models tables and
// their supporting indexes. SQLite lacks partial indexes in the form the
// original Postgres schema used for the idempotency hash, so the unique
// index below is unconditional; callers only populate the column when an
// idempotency key was supplied, and NULL values are treated as distinct by
// SQLite's unique index semantics, which reproduces the intended behavior.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL CHECK (type IN ('generate','model_download')),
		status TEXT NOT NULL CHECK (status IN ('queued','running','succeeded','failed')),
		params_json TEXT NOT NULL,
		schema_version INTEGER NOT NULL DEFAULT 1,
		idempotency_key_hash BLOB,
		error_code TEXT,
		error_message TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS jobs_idempo_uniq ON jobs(idempotency_key_hash)`,
	`CREATE INDEX IF NOT EXISTS jobs_status_idx ON jobs(status)`,
	`CREATE INDEX IF NOT EXISTS jobs_updated_idx ON jobs(updated_at)`,

	`CREATE TABLE IF NOT EXISTS steps (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('queued','running','succeeded','failed')),
		started_at INTEGER,
		finished_at INTEGER,
		metadata_json TEXT NOT NULL DEFAULT '{}',
		schema_version INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS steps_job_created_idx ON steps(job_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		step_id TEXT REFERENCES steps(id) ON DELETE CASCADE,
		ts INTEGER NOT NULL,
		code TEXT NOT NULL,
		level TEXT NOT NULL DEFAULT 'info' CHECK (level IN ('debug','info','warn','error')),
		payload_json TEXT NOT NULL DEFAULT '{}',
		seq INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS events_job_ts_idx ON events(job_id, ts, seq)`,

	`CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		step_id TEXT NOT NULL REFERENCES steps(id) ON DELETE CASCADE,
		created_at INTEGER NOT NULL,
		format TEXT NOT NULL CHECK (format IN ('png','jpg')),
		width INTEGER NOT NULL CHECK (width > 0),
		height INTEGER NOT NULL CHECK (height > 0),
		seed INTEGER,
		item_index INTEGER NOT NULL DEFAULT 0,
		s3_key TEXT NOT NULL,
		checksum TEXT,
		metadata_json TEXT NOT NULL DEFAULT '{}',
		UNIQUE(job_id, step_id, item_index)
	)`,
	`CREATE INDEX IF NOT EXISTS artifacts_job_idx ON artifacts(job_id)`,

	`CREATE TABLE IF NOT EXISTS models (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		version TEXT,
		checkpoint_hash TEXT,
		source_uri TEXT,
		local_path TEXT,
		installed INTEGER NOT NULL DEFAULT 0,
		enabled INTEGER NOT NULL DEFAULT 1,
		parameters_schema_json TEXT NOT NULL DEFAULT '{}',
		capabilities_json TEXT NOT NULL DEFAULT '[]',
		files_json TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(name, version, kind)
	)`,
	`CREATE INDEX IF NOT EXISTS models_enabled_installed_idx ON models(enabled, installed)`,
}

// InitSchema creates every table and index if it does not already exist.
func (s *SQLiteDB) InitSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
