package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	sqlitedriver "modernc.org/sqlite"

	"fame-flywheel/internal/models"
	"fame-flywheel/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is the SQLite-backed job store, the default for single-host
// deployments. SQLite allows one writer, so the pool is pinned to a single
// connection; transactions on that connection are the atomic claim.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var hookOnce sync.Once

func registerHook() {
	hookOnce.Do(func() {
		sqlitedriver.RegisterConnectionHook(func(conn sqlitedriver.ExecQuerierContext, dsn string) error {
			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA busy_timeout = 5000",
				"PRAGMA synchronous = NORMAL",
				"PRAGMA foreign_keys = ON",
			}
			for _, p := range pragmas {
				if _, err := conn.ExecContext(context.Background(), p, nil); err != nil {
					return fmt.Errorf("execute %s: %w", p, err)
				}
			}
			return nil
		})
	})
}

// Open opens (and migrates) the database at path. now is the injected clock;
// nil means time.Now.
func Open(path string, now func() time.Time) (*Store, error) {
	registerHook()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const jobColumns = `key, status, genre, style, voice, script, hook_prompt, external_id, created_at, upload_time`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (models.Job, error) {
	var j models.Job
	var script, hook, ext sql.NullString
	var created int64
	var upload sql.NullInt64

	err := row.Scan(&j.Key, &j.Status, &j.Parameters.Genre, &j.Parameters.Style, &j.Parameters.Voice,
		&script, &hook, &ext, &created, &upload)
	if err != nil {
		return models.Job{}, err
	}
	if script.Valid {
		j.Script = &script.String
	}
	if hook.Valid {
		j.HookPrompt = &hook.String
	}
	if ext.Valid {
		j.ExternalID = &ext.String
	}
	j.CreatedAt = time.Unix(created, 0).UTC()
	if upload.Valid {
		t := time.Unix(upload.Int64, 0).UTC()
		j.UploadTime = &t
	}
	return j, nil
}

func (s *Store) CreateJob(ctx context.Context, params models.ParameterCombination) (models.Job, error) {
	now := s.now().UTC()
	key := store.NewJobKey(now)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (key, status, genre, style, voice, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, key, models.StatusPending, params.Genre, params.Style, params.Voice, now.Unix())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
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
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE key = ?`, key)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Job{}, store.ErrNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("scan job: %w", err)
	}
	return job, nil
}

func (s *Store) NextPendingJob(ctx context.Context) (models.Job, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY key LIMIT 1
	`, models.StatusPending)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Job{}, false, nil
	}
	if err != nil {
		return models.Job{}, false, fmt.Errorf("scan pending job: %w", err)
	}
	return job, true, nil
}

func (s *Store) ClaimPendingJob(ctx context.Context) (models.Job, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Job{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // safe no-op on commit

	row := tx.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY key LIMIT 1
	`, models.StatusPending)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Job{}, false, nil
	}
	if err != nil {
		return models.Job{}, false, fmt.Errorf("scan pending job: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = ? WHERE key = ? AND status = ?
	`, models.StatusCreating, job.Key, models.StatusPending)
	if err != nil {
		return models.Job{}, false, fmt.Errorf("claim job %s: %w", job.Key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Another claimer got there between our read and write.
		return models.Job{}, false, nil
	}
	if err := tx.Commit(); err != nil {
		return models.Job{}, false, fmt.Errorf("commit claim: %w", err)
	}
	job.Status = models.StatusCreating
	return job, true, nil
}

func (s *Store) UpdateStatus(ctx context.Context, key, to string, upd store.StatusUpdate) error {
	from, ok := models.TransitionSource(to)
	if !ok {
		return fmt.Errorf("no transition into status %q", to)
	}

	sets := []string{"status = ?"}
	args := []any{to}
	if upd.Script != nil {
		sets = append(sets, "script = ?")
		args = append(args, *upd.Script)
	}
	if upd.HookPrompt != nil {
		sets = append(sets, "hook_prompt = ?")
		args = append(args, *upd.HookPrompt)
	}
	if upd.ExternalID != nil {
		sets = append(sets, "external_id = ?")
		args = append(args, *upd.ExternalID)
	}
	if upd.StampUpload {
		sets = append(sets, "upload_time = ?")
		args = append(args, s.now().UTC().Unix())
	}
	args = append(args, key, from)

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET `+strings.Join(sets, ", ")+` WHERE key = ? AND status = ?
	`, args...)
	if err != nil {
		return fmt.Errorf("update status of %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		cur, err := s.GetJob(ctx, key)
		if err != nil {
			return err
		}
		return &store.InvalidTransitionError{Key: key, From: cur.Status, To: to}
	}
	return nil
}

func (s *Store) RecordSample(ctx context.Context, sample models.PerformanceSample) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE key = ?`, sample.JobKey).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("record sample for %s: %w", sample.JobKey, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check job %s: %w", sample.JobKey, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO performance_log (job_key, ts, views, likes, comments)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (job_key, ts) DO NOTHING
	`, sample.JobKey, sample.Timestamp.UTC().Unix(), sample.Views, sample.Likes, sample.Comments)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return tx.Commit()
}

func (s *Store) SamplesForJob(ctx context.Context, key string) ([]models.PerformanceSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_key, ts, views, likes, comments FROM performance_log
		WHERE job_key = ? ORDER BY ts
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN (?, ?) AND upload_time IS NOT NULL AND upload_time > ?
		ORDER BY key
	`, models.StatusUploaded, models.StatusAnalyzed, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query eligible jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *Store) TimeSinceUpload(ctx context.Context, key string) (time.Duration, error) {
	var upload sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT upload_time FROM jobs WHERE key = ?`, key).Scan(&upload)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query upload time: %w", err)
	}
	if !upload.Valid {
		return 0, store.ErrNoUploadTime
	}
	return s.now().Sub(time.Unix(upload.Int64, 0)), nil
}

func (s *Store) WindowGains(ctx context.Context, start, end time.Duration) ([]models.WindowGain, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT j.key, j.genre, j.style, j.voice, MAX(p.views) - MIN(p.views) AS gain
		FROM jobs j
		JOIN performance_log p ON p.job_key = j.key
		WHERE j.status = ?
		  AND j.upload_time IS NOT NULL
		  AND p.ts BETWEEN j.upload_time + ? AND j.upload_time + ?
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
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM jobs WHERE status = ?
	`, models.StatusPending).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return n, nil
}

func (s *Store) StuckCreating(ctx context.Context, olderThan time.Duration) ([]models.Job, error) {
	cutoff := s.now().UTC().Add(-olderThan).Unix()
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = ? AND created_at <= ?
		ORDER BY key
	`, models.StatusCreating, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query stuck jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows *sql.Rows) ([]models.Job, error) {
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
