package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"fame-flywheel/internal/models"
	"fame-flywheel/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	pgUniqueViolation = "23505"
)

// Store is the Postgres-backed job store for deployments where several
// trigger processes share one database.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New creates a pooled connection to Postgres and runs migrations. now is
// the injected clock; nil means time.Now.
func New(ctx context.Context, dsn string, now func() time.Time) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := runMigrations(dsn); err != nil {
		pool.Close()
		return nil, err
	}

	if now == nil {
		now = time.Now
	}
	return &Store{pool: pool, now: now}, nil
}

// runMigrations goes through database/sql because goose requires it; all
// query traffic stays on the pgx pool.
func runMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

const jobColumns = `key, status, genre, style, voice, script, hook_prompt, external_id, created_at, upload_time`

func scanJob(row pgx.Row) (models.Job, error) {
	var j models.Job
	var script, hook, ext *string
	var created int64
	var upload *int64

	err := row.Scan(&j.Key, &j.Status, &j.Parameters.Genre, &j.Parameters.Style, &j.Parameters.Voice,
		&script, &hook, &ext, &created, &upload)
	if err != nil {
		return models.Job{}, err
	}
	j.Script = script
	j.HookPrompt = hook
	j.ExternalID = ext
	j.CreatedAt = time.Unix(created, 0).UTC()
	if upload != nil {
		t := time.Unix(*upload, 0).UTC()
		j.UploadTime = &t
	}
	return j, nil
}

func (s *Store) CreateJob(ctx context.Context, params models.ParameterCombination) (models.Job, error) {
	now := s.now().UTC()
	key := store.NewJobKey(now)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (key, status, genre, style, voice, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, key, models.StatusPending, params.Genre, params.Style, params.Voice, now.Unix())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return models.Job{}, fmt.Errorf("insert job %s: %w", key, store.ErrDuplicateKey)
		}
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}

	return models.Job{
		Key:        key,
		Status:     models.StatusPending,
		Parameters: params,
		CreatedAt:  time.Unix(now.Unix(), 0).UTC(),
	}, nil
}

func (s *Store) GetJob(ctx context.Context, key string) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE key = $1`, key)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, store.ErrNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("scan job: %w", err)
	}
	return job, nil
}

func (s *Store) NextPendingJob(ctx context.Context) (models.Job, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE status = $1 ORDER BY key LIMIT 1
	`, models.StatusPending)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, false, nil
	}
	if err != nil {
		return models.Job{}, false, fmt.Errorf("scan pending job: %w", err)
	}
	return job, true, nil
}

// ClaimPendingJob relies on SKIP LOCKED so concurrent producers each claim a
// distinct job in a single statement.
func (s *Store) ClaimPendingJob(ctx context.Context) (models.Job, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs SET status = $1
		WHERE key = (
			SELECT key FROM jobs WHERE status = $2
			ORDER BY key LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns+`
	`, models.StatusCreating, models.StatusPending)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, false, nil
	}
	if err != nil {
		return models.Job{}, false, fmt.Errorf("claim pending job: %w", err)
	}
	return job, true, nil
}

func (s *Store) UpdateStatus(ctx context.Context, key, to string, upd store.StatusUpdate) error {
	from, ok := models.TransitionSource(to)
	if !ok {
		return fmt.Errorf("no transition into status %q", to)
	}

	sets := []string{"status = $1"}
	args := []any{to}
	next := func() string { return fmt.Sprintf("$%d", len(args)+1) }
	if upd.Script != nil {
		sets = append(sets, "script = "+next())
		args = append(args, *upd.Script)
	}
	if upd.HookPrompt != nil {
		sets = append(sets, "hook_prompt = "+next())
		args = append(args, *upd.HookPrompt)
	}
	if upd.ExternalID != nil {
		sets = append(sets, "external_id = "+next())
		args = append(args, *upd.ExternalID)
	}
	if upd.StampUpload {
		sets = append(sets, "upload_time = "+next())
		args = append(args, s.now().UTC().Unix())
	}
	keyArg := next()
	args = append(args, key)
	fromArg := next()
	args = append(args, from)

	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET `+strings.Join(sets, ", ")+` WHERE key = `+keyArg+` AND status = `+fromArg,
		args...)
	if err != nil {
		return fmt.Errorf("update status of %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		cur, err := s.GetJob(ctx, key)
		if err != nil {
			return err
		}
		return &store.InvalidTransitionError{Key: key, From: cur.Status, To: to}
	}
	return nil
}

func (s *Store) RecordSample(ctx context.Context, sample models.PerformanceSample) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	var one int
	err = tx.QueryRow(ctx, `SELECT 1 FROM jobs WHERE key = $1`, sample.JobKey).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("record sample for %s: %w", sample.JobKey, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check job %s: %w", sample.JobKey, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO performance_log (job_key, ts, views, likes, comments)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_key, ts) DO NOTHING
	`, sample.JobKey, sample.Timestamp.UTC().Unix(), sample.Views, sample.Likes, sample.Comments)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) SamplesForJob(ctx context.Context, key string) ([]models.PerformanceSample, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT job_key, ts, views, likes, comments FROM performance_log
		WHERE job_key = $1 ORDER BY ts
	`, key)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var samples []models.PerformanceSample
	for rows.Next() {
		var p models.PerformanceSample
		var ts int64
		if err := rows.Scan(&p.JobKey, &ts, &p.Views, &p.Likes, &p.Comments); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		p.Timestamp = time.Unix(ts, 0).UTC()
		samples = append(samples, p)
	}
	return samples, rows.Err()
}

func (s *Store) EligibleForTelemetry(ctx context.Context, maxAge time.Duration) ([]models.Job, error) {
	cutoff := s.now().UTC().Add(-maxAge).Unix()
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN ($1, $2) AND upload_time IS NOT NULL AND upload_time > $3
		ORDER BY key
	`, models.StatusUploaded, models.StatusAnalyzed, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query eligible jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *Store) TimeSinceUpload(ctx context.Context, key string) (time.Duration, error) {
	var upload *int64
	err := s.pool.QueryRow(ctx, `SELECT upload_time FROM jobs WHERE key = $1`, key).Scan(&upload)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query upload time: %w", err)
	}
	if upload == nil {
		return 0, store.ErrNoUploadTime
	}
	return s.now().Sub(time.Unix(*upload, 0)), nil
}

func (s *Store) WindowGains(ctx context.Context, start, end time.Duration) ([]models.WindowGain, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT j.key, j.genre, j.style, j.voice, MAX(p.views) - MIN(p.views) AS gain
		FROM jobs j
		JOIN performance_log p ON p.job_key = j.key
		WHERE j.status = $1
		  AND j.upload_time IS NOT NULL
		  AND p.ts BETWEEN j.upload_time + $2 AND j.upload_time + $3
		GROUP BY j.key, j.genre, j.style, j.voice
		HAVING COUNT(*) > 1
		ORDER BY j.key
	`, models.StatusAnalyzed, int64(start.Seconds()), int64(end.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("query window gains: %w", err)
	}
	defer rows.Close()

	var gains []models.WindowGain
	for rows.Next() {
		var g models.WindowGain
		if err := rows.Scan(&g.JobKey, &g.Parameters.Genre, &g.Parameters.Style, &g.Parameters.Voice, &g.Gain); err != nil {
			return nil, fmt.Errorf("scan window gain: %w", err)
		}
		gains = append(gains, g)
	}
	return gains, rows.Err()
}

func (s *Store) PendingDepth(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM jobs WHERE status = $1
	`, models.StatusPending).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return n, nil
}

func (s *Store) StuckCreating(ctx context.Context, olderThan time.Duration) ([]models.Job, error) {
	cutoff := s.now().UTC().Add(-olderThan).Unix()
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = $1 AND created_at <= $2
		ORDER BY key
	`, models.StatusCreating, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query stuck jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows pgx.Rows) ([]models.Job, error) {
	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

var _ store.Store = (*Store)(nil)
