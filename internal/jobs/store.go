package jobs

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"refractoriq/internal/report"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Run is a finished analysis kept in the local history.
type Run struct {
	JobID             string                 `json:"jobId"`
	RepoURL           string                 `json:"repoUrl"`
	Status            Phase                  `json:"status"`
	Error             string                 `json:"error,omitempty"`
	Warning           string                 `json:"warning,omitempty"`
	ExcludeThirdParty bool                   `json:"excludeThirdParty"`
	ExcludeTests      bool                   `json:"excludeTests"`
	Summary           report.Summary         `json:"summary"`
	Result            *report.AnalysisResult `json:"result,omitempty"`
	SubmittedAt       time.Time              `json:"submittedAt"`
	CompletedAt       time.Time              `json:"completedAt"`
}

// RunFromState builds a history entry from a terminal poller state.
// It returns nil when the state has no job to record.
func RunFromState(s State) *Run {
	if !s.Phase.IsTerminal() || s.LastJob == nil || s.LastJob.ID == "" {
		return nil
	}
	j := s.LastJob
	completed := j.UpdatedAt
	if j.CompletedAt != nil {
		completed = *j.CompletedAt
	}
	run := &Run{
		JobID:             j.ID,
		RepoURL:           j.RepoURL,
		Status:            s.Phase,
		Error:             s.Error,
		Warning:           s.Warning,
		ExcludeThirdParty: j.ExcludeThirdParty,
		ExcludeTests:      j.ExcludeTests,
		SubmittedAt:       j.SubmittedAt,
		CompletedAt:       completed,
	}
	if s.ErrorKind == ErrorValidation {
		run.Error = ""
	}
	if s.Phase == PhaseCompleted {
		run.Result = s.Result
		run.Summary = report.Summarize(s.Result)
	}
	return run
}

// ListOptions filters and pages history listings.
type ListOptions struct {
	Status []Phase
	Limit  int
	Offset int
}

// ListResponse is one page of history.
type ListResponse struct {
	Runs       []Run `json:"runs"`
	TotalCount int   `json:"totalCount"`
}

// Store persists analysis history in SQLite.
type Store struct {
	conn   *sql.DB
	logger *slog.Logger
	dbPath string
}

// OpenStore opens or creates the history database at path and applies migrations.
func OpenStore(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	logger.Debug("Opened history database", "path", path)
	return &Store{conn: conn, logger: logger, dbPath: path}, nil
}

func migrate(ctx context.Context, conn *sql.DB) error {
	goose.SetBaseFS(migrationFiles)
	goose.SetLogger(log.New(io.Discard, "", 0))
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, conn, "migrations")
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Record inserts or replaces a history entry.
func (s *Store) Record(ctx context.Context, run *Run) error {
	blob, err := compressResult(run.Result)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO analysis_runs (job_id, repo_url, status, error, warning, exclude_third_party, exclude_tests,
			loc, debt_score, avg_complexity, duplicate_pairs, report, submitted_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			warning = excluded.warning,
			loc = excluded.loc,
			debt_score = excluded.debt_score,
			avg_complexity = excluded.avg_complexity,
			duplicate_pairs = excluded.duplicate_pairs,
			report = excluded.report,
			completed_at = excluded.completed_at
	`
	_, err = s.conn.ExecContext(ctx, query,
		run.JobID,
		run.RepoURL,
		string(run.Status),
		nullString(run.Error),
		nullString(run.Warning),
		run.ExcludeThirdParty,
		run.ExcludeTests,
		nullNum(run.Summary.LOC),
		nullNum(run.Summary.DebtScore),
		nullNum(run.Summary.AvgComplexity),
		nullNum(run.Summary.DuplicatePairs),
		blob,
		run.SubmittedAt.UTC().Format(time.RFC3339),
		run.CompletedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Get returns the run with its full result document, or nil if unknown.
func (s *Store) Get(ctx context.Context, jobID string) (*Run, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT job_id, repo_url, status, error, warning, exclude_third_party, exclude_tests,
			loc, debt_score, avg_complexity, duplicate_pairs, report, submitted_at, completed_at
		FROM analysis_runs WHERE job_id = ?
	`, jobID)

	run, err := scanRun(row, true)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// List returns history newest first, without result documents.
func (s *Store) List(ctx context.Context, opts ListOptions) (*ListResponse, error) {
	var conditions []string
	var args []interface{}

	if len(opts.Status) > 0 {
		placeholders := make([]string, len(opts.Status))
		for i, status := range opts.Status {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var totalCount int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM analysis_runs %s", whereClause)
	if err := s.conn.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT job_id, repo_url, status, error, warning, exclude_third_party, exclude_tests,
			loc, debt_score, avg_complexity, duplicate_pairs, NULL, submitted_at, completed_at
		FROM analysis_runs %s
		ORDER BY completed_at DESC
		LIMIT ? OFFSET ?
	`, whereClause)
	args = append(args, limit, opts.Offset)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows, false)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return &ListResponse{Runs: runs, TotalCount: totalCount}, nil
}

// Prune removes runs that completed more than retention ago.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339)
	result, err := s.conn.ExecContext(ctx, `DELETE FROM analysis_runs WHERE completed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		s.logger.Info("Pruned history", "removed", n, "retention", retention.String())
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner, withReport bool) (*Run, error) {
	var run Run
	var status, submittedAt, completedAt string
	var errMsg, warning sql.NullString
	var loc, debt, avg, dup sql.NullFloat64
	var blob []byte

	err := row.Scan(
		&run.JobID,
		&run.RepoURL,
		&status,
		&errMsg,
		&warning,
		&run.ExcludeThirdParty,
		&run.ExcludeTests,
		&loc,
		&debt,
		&avg,
		&dup,
		&blob,
		&submittedAt,
		&completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Status = Phase(status)
	run.Error = errMsg.String
	run.Warning = warning.String
	run.Summary = report.Summary{
		LOC:            numFromNull(loc),
		DebtScore:      numFromNull(debt),
		AvgComplexity:  numFromNull(avg),
		DuplicatePairs: numFromNull(dup),
	}
	if t, err := time.Parse(time.RFC3339, submittedAt); err == nil {
		run.SubmittedAt = t
	}
	if t, err := time.Parse(time.RFC3339, completedAt); err == nil {
		run.CompletedAt = t
	}

	if withReport && len(blob) > 0 {
		result, err := decompressResult(blob)
		if err != nil {
			return nil, err
		}
		run.Result = result
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullNum(n report.Num) sql.NullFloat64 {
	return sql.NullFloat64{Float64: n.Value, Valid: n.Valid}
}

func numFromNull(f sql.NullFloat64) report.Num {
	if !f.Valid {
		return report.Num{}
	}
	return report.N(f.Float64)
}

// Result documents are stored as zstd-compressed JSON.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

func compressResult(result *report.AnalysisResult) ([]byte, error) {
	if result == nil {
		return nil, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return zstdEncoder.EncodeAll(data, nil), nil
}

func decompressResult(blob []byte) (*report.AnalysisResult, error) {
	data, err := zstdDecoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress result: %w", err)
	}
	var result report.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}
