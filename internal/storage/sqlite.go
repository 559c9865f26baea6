// Package storage - SQLite backend core: connection, pragmas,
// self-repair, projects and chapters.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/pauubach/narrassist/internal/types"
)

// SQLiteStorage is the durable backend.
type SQLiteStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStorage opens (or creates) the database at path.
func NewSQLiteStorage(path string, busyTimeoutMs int, logger *zap.Logger) (*SQLiteStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if busyTimeoutMs <= 0 {
		busyTimeoutMs = 5000
	}

	dsn := path + fmt.Sprintf("?_busy_timeout=%d", busyTimeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite works best with a small pool.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := configureSQLite(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if err := initializeSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, logger: logger}, nil
}

func configureSQLite(db *sql.DB) error {
	pragmas := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA foreign_keys = ON`,
		`PRAGMA synchronous = NORMAL`,
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *SQLiteStorage) Close() error { return s.db.Close() }

// exec runs a statement, attempting a one-shot schema self-repair when
// a core table is missing (for example after a partial restore).
func (s *SQLiteStorage) exec(query string, args ...any) (sql.Result, error) {
	res, err := s.db.Exec(query, args...)
	if err != nil && isMissingTable(err) {
		s.logger.Error("missing core table, re-applying schema", zap.Error(err))
		if repairErr := initializeSchema(s.db); repairErr != nil {
			return nil, fmt.Errorf("schema self-repair failed: %v (original: %w)", repairErr, err)
		}
		return s.db.Exec(query, args...)
	}
	return res, err
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

func nowUnix() int64 { return time.Now().Unix() }

func marshalJSON(v any) string {
	if v == nil {
		return "null"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

// ==================== Projects ====================

func (s *SQLiteStorage) CreateProject(p *types.Project) error {
	if p.AnalysisStatus == "" {
		p.AnalysisStatus = types.StatusPending
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now

	res, err := s.exec(
		`INSERT INTO projects
		 (name, document_path, document_fingerprint, document_type, document_subtype,
		  analysis_status, analysis_progress, word_count, settings_json,
		  collection_id, collection_order, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.DocumentPath, p.DocumentFingerprint, p.DocumentType, p.DocumentSubtype,
		string(p.AnalysisStatus), p.AnalysisProgress, p.WordCount, marshalJSON(p.Settings),
		nullableID(p.CollectionID), p.CollectionOrder, now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStorage) GetProject(id int64) (*types.Project, error) {
	row := s.db.QueryRow(
		`SELECT id, name, document_path, document_fingerprint, document_type,
		        document_subtype, analysis_status, analysis_progress, word_count,
		        settings_json, COALESCE(collection_id, 0), collection_order,
		        created_at, updated_at
		 FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

func (s *SQLiteStorage) ListProjects() ([]*types.Project, error) {
	rows, err := s.db.Query(
		`SELECT id, name, document_path, document_fingerprint, document_type,
		        document_subtype, analysis_status, analysis_progress, word_count,
		        settings_json, COALESCE(collection_id, 0), collection_order,
		        created_at, updated_at
		 FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*types.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanProject(r rowScanner) (*types.Project, error) {
	var p types.Project
	var settings string
	var status string
	var created, updated int64
	err := r.Scan(&p.ID, &p.Name, &p.DocumentPath, &p.DocumentFingerprint,
		&p.DocumentType, &p.DocumentSubtype, &status, &p.AnalysisProgress,
		&p.WordCount, &settings, &p.CollectionID, &p.CollectionOrder,
		&created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	p.AnalysisStatus = types.AnalysisStatus(status)
	_ = json.Unmarshal([]byte(settings), &p.Settings)
	p.CreatedAt = time.Unix(created, 0)
	p.UpdatedAt = time.Unix(updated, 0)
	return &p, nil
}

func (s *SQLiteStorage) UpdateProject(p *types.Project) error {
	p.UpdatedAt = time.Now()
	res, err := s.exec(
		`UPDATE projects SET name = ?, document_path = ?, document_fingerprint = ?,
		        document_type = ?, document_subtype = ?, analysis_status = ?,
		        analysis_progress = ?, word_count = ?, settings_json = ?,
		        collection_id = ?, collection_order = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, p.DocumentPath, p.DocumentFingerprint, p.DocumentType, p.DocumentSubtype,
		string(p.AnalysisStatus), p.AnalysisProgress, p.WordCount, marshalJSON(p.Settings),
		nullableID(p.CollectionID), p.CollectionOrder, p.UpdatedAt.Unix(), p.ID)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStorage) DeleteProject(id int64) error {
	res, err := s.exec(`DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStorage) SetAnalysisState(id int64, status types.AnalysisStatus, progress float64) error {
	res, err := s.exec(
		`UPDATE projects SET analysis_status = ?, analysis_progress = ?, updated_at = ? WHERE id = ?`,
		string(status), progress, nowUnix(), id)
	if err != nil {
		return fmt.Errorf("set analysis state: %w", err)
	}
	return requireRow(res)
}

// ==================== Chapters ====================

func (s *SQLiteStorage) ReplaceChapters(projectID int64, chapters []types.Chapter) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chapters WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("clear chapters: %w", err)
	}
	for i := range chapters {
		ch := &chapters[i]
		ch.ProjectID = projectID
		res, err := tx.Exec(
			`INSERT INTO chapters (project_id, chapter_number, title, start_char, end_char, content, structure_type)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			projectID, ch.ChapterNumber, ch.Title, ch.StartChar, ch.EndChar, ch.Content, ch.StructureType)
		if err != nil {
			return fmt.Errorf("insert chapter %d: %w", ch.ChapterNumber, err)
		}
		ch.ID, _ = res.LastInsertId()
	}
	return tx.Commit()
}

func (s *SQLiteStorage) ListChapters(projectID int64) ([]*types.Chapter, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, chapter_number, title, start_char, end_char, content, structure_type
		 FROM chapters WHERE project_id = ? ORDER BY chapter_number`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	var out []*types.Chapter
	for rows.Next() {
		var ch types.Chapter
		if err := rows.Scan(&ch.ID, &ch.ProjectID, &ch.ChapterNumber, &ch.Title,
			&ch.StartChar, &ch.EndChar, &ch.Content, &ch.StructureType); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		out = append(out, &ch)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
