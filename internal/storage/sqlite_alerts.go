// Package storage - SQLite backend: attributes, alerts, snapshots.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pauubach/narrassist/internal/types"
)

// ==================== Attributes ====================

func (s *SQLiteStorage) CreateAttribute(a *types.Attribute) error {
	res, err := s.exec(
		`INSERT INTO entity_attributes
		 (entity_id, attribute_type, attribute_key, attribute_value, confidence,
		  is_verified, first_mention_chapter)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.EntityID, string(a.Category), a.Key, a.Value, a.Confidence,
		boolToInt(a.Verified), a.FirstMentionChapter)
	if err != nil {
		return fmt.Errorf("insert attribute: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStorage) ListAttributes(entityID int64) ([]*types.Attribute, error) {
	attrs, err := func() ([]types.Attribute, error) {
		tx, err := s.db.Begin()
		if err != nil {
			return nil, err
		}
		defer tx.Rollback()
		return attributesTx(tx, entityID)
	}()
	if err != nil {
		return nil, err
	}
	out := make([]*types.Attribute, len(attrs))
	for i := range attrs {
		out[i] = &attrs[i]
	}
	return out, nil
}

func (s *SQLiteStorage) UpdateAttribute(a *types.Attribute) error {
	res, err := s.exec(
		`UPDATE entity_attributes SET attribute_type = ?, attribute_key = ?,
		        attribute_value = ?, confidence = ?, is_verified = ?,
		        first_mention_chapter = ?
		 WHERE id = ?`,
		string(a.Category), a.Key, a.Value, a.Confidence,
		boolToInt(a.Verified), a.FirstMentionChapter, a.ID)
	if err != nil {
		return fmt.Errorf("update attribute: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStorage) DeleteAttribute(id int64) error {
	res, err := s.exec(`DELETE FROM entity_attributes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete attribute: %w", err)
	}
	return requireRow(res)
}

// ==================== Alerts ====================

const alertColumns = `id, project_id, category, alert_type, severity, status, title,
	description, explanation, suggestion, excerpt, chapter, start_char, end_char,
	confidence, content_hash, entity_ids_json, extra_data_json,
	previous_snapshot_alert_id, match_confidence, resolution_reason`

// CreateAlert enforces unique-on-open in application logic inside a
// transaction: the schema keeps a plain index so historical resolved
// duplicates stay representable.
func (s *SQLiteStorage) CreateAlert(a *types.Alert) error {
	if a.Status == "" {
		a.Status = types.AlertNew
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if a.ContentHash != "" {
		var existing int64
		err := tx.QueryRow(
			`SELECT id FROM alerts
			 WHERE project_id = ? AND content_hash = ?
			   AND status IN ('new', 'open', 'acknowledged', 'in_progress')`,
			a.ProjectID, a.ContentHash).Scan(&existing)
		if err == nil {
			return fmt.Errorf("open alert %d has the same content hash: %w", existing, ErrConflict)
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("dedup lookup: %w", err)
		}
	}

	res, err := tx.Exec(
		`INSERT INTO alerts
		 (project_id, category, alert_type, severity, status, title, description,
		  explanation, suggestion, excerpt, chapter, start_char, end_char,
		  confidence, content_hash, entity_ids_json, extra_data_json,
		  previous_snapshot_alert_id, match_confidence, resolution_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ProjectID, a.Category, a.Type, string(a.Severity), string(a.Status),
		a.Title, a.Description, a.Explanation, a.Suggestion, a.Excerpt,
		a.Chapter, a.StartChar, a.EndChar, a.Confidence, a.ContentHash,
		marshalJSON(emptyIDs(a.EntityIDs)), marshalJSON(a.ExtraData),
		a.PreviousSnapshotAlertID, a.MatchConfidence, string(a.ResolutionReason))
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	a.ID, _ = res.LastInsertId()
	return tx.Commit()
}

func (s *SQLiteStorage) GetAlert(id int64) (*types.Alert, error) {
	row := s.db.QueryRow(`SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	return scanAlert(row)
}

func (s *SQLiteStorage) ListAlerts(projectID int64) ([]*types.Alert, error) {
	rows, err := s.db.Query(
		`SELECT `+alertColumns+` FROM alerts WHERE project_id = ? ORDER BY chapter, start_char, id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []*types.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAlert(r rowScanner) (*types.Alert, error) {
	var a types.Alert
	var severity, status, entityIDs, extra, reason string
	err := r.Scan(&a.ID, &a.ProjectID, &a.Category, &a.Type, &severity, &status,
		&a.Title, &a.Description, &a.Explanation, &a.Suggestion, &a.Excerpt,
		&a.Chapter, &a.StartChar, &a.EndChar, &a.Confidence, &a.ContentHash,
		&entityIDs, &extra, &a.PreviousSnapshotAlertID, &a.MatchConfidence, &reason)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	a.Severity = types.AlertSeverity(severity)
	a.Status = types.AlertStatus(status)
	a.ResolutionReason = types.ResolutionReason(reason)
	_ = json.Unmarshal([]byte(entityIDs), &a.EntityIDs)
	_ = json.Unmarshal([]byte(extra), &a.ExtraData)
	return &a, nil
}

func (s *SQLiteStorage) UpdateAlertStatus(id int64, status types.AlertStatus) error {
	res, err := s.exec(`UPDATE alerts SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update alert status: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStorage) LinkAlert(id, previousSnapshotAlertID int64, matchConfidence float64, reason types.ResolutionReason) error {
	res, err := s.exec(
		`UPDATE alerts SET previous_snapshot_alert_id = ?, match_confidence = ?, resolution_reason = ? WHERE id = ?`,
		previousSnapshotAlertID, matchConfidence, string(reason), id)
	if err != nil {
		return fmt.Errorf("link alert: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStorage) ClearAlerts(projectID int64) error {
	_, err := s.exec(`DELETE FROM alerts WHERE project_id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("clear alerts: %w", err)
	}
	return nil
}

// ==================== Snapshots ====================

// CreateSnapshot captures alerts (denormalizing entity names),
// entities and chapter texts in one transaction taken immediately
// before a re-analysis mutates anything.
func (s *SQLiteStorage) CreateSnapshot(projectID int64) (*types.Snapshot, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var fingerprint string
	if err := tx.QueryRow(`SELECT document_fingerprint FROM projects WHERE id = ?`, projectID).
		Scan(&fingerprint); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read fingerprint: %w", err)
	}

	var alertCount, entityCount int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM alerts WHERE project_id = ?`, projectID).Scan(&alertCount); err != nil {
		return nil, fmt.Errorf("count alerts: %w", err)
	}
	if err := tx.QueryRow(`SELECT COUNT(*) FROM entities WHERE project_id = ? AND is_active = 1`, projectID).Scan(&entityCount); err != nil {
		return nil, fmt.Errorf("count entities: %w", err)
	}
	if alertCount == 0 && entityCount == 0 {
		return nil, nil // nothing to capture
	}

	snap := &types.Snapshot{
		ProjectID:           projectID,
		DocumentFingerprint: fingerprint,
		AlertCount:          alertCount,
		EntityCount:         entityCount,
		Status:              "complete",
		CreatedAt:           time.Now(),
	}
	res, err := tx.Exec(
		`INSERT INTO analysis_snapshots
		 (project_id, document_fingerprint, alert_count, entity_count, status, created_at)
		 VALUES (?, ?, ?, ?, 'complete', ?)`,
		projectID, fingerprint, alertCount, entityCount, snap.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	snap.ID, _ = res.LastInsertId()

	// Copy alerts with entity names resolved for stable matching.
	alertRows, err := tx.Query(
		`SELECT alert_type, category, severity, title, description, chapter,
		        start_char, end_char, excerpt, content_hash, confidence,
		        entity_ids_json, extra_data_json
		 FROM alerts WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("read alerts: %w", err)
	}
	type alertCopy struct {
		args      []any
		entityIDs []int64
	}
	var copies []alertCopy
	for alertRows.Next() {
		var atype, category, severity, title, description, excerpt, hash, entityIDsJSON, extraJSON string
		var chapter, startChar, endChar int
		var confidence float64
		if err := alertRows.Scan(&atype, &category, &severity, &title, &description,
			&chapter, &startChar, &endChar, &excerpt, &hash, &confidence,
			&entityIDsJSON, &extraJSON); err != nil {
			alertRows.Close()
			return nil, fmt.Errorf("scan alert copy: %w", err)
		}
		var ids []int64
		_ = json.Unmarshal([]byte(entityIDsJSON), &ids)
		copies = append(copies, alertCopy{
			args: []any{snap.ID, atype, category, severity, title, description,
				chapter, startChar, endChar, excerpt, hash, confidence,
				entityIDsJSON, extraJSON},
			entityIDs: ids,
		})
	}
	alertRows.Close()

	for _, c := range copies {
		names, err := entityNamesTx(tx, c.entityIDs)
		if err != nil {
			return nil, err
		}
		args := append(c.args[:13:13], marshalJSON(names), c.args[13])
		if _, err := tx.Exec(
			`INSERT INTO snapshot_alerts
			 (snapshot_id, alert_type, category, severity, title, description,
			  chapter, start_char, end_char, excerpt, content_hash, confidence,
			  entity_ids_json, related_entity_names_json, extra_data_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
			return nil, fmt.Errorf("copy alert: %w", err)
		}
	}

	// Copy active entities with their stored aliases.
	if _, err := tx.Exec(
		`INSERT INTO snapshot_entities
		 (snapshot_id, original_entity_id, entity_type, canonical_name, aliases_json,
		  importance, mention_count)
		 SELECT ?, id, entity_type, canonical_name, aliases_json, importance, mention_count
		 FROM entities WHERE project_id = ? AND is_active = 1`,
		snap.ID, projectID); err != nil {
		return nil, fmt.Errorf("copy entities: %w", err)
	}

	// Keep chapter texts so content diffing can run against the exact
	// pre-edit version.
	if _, err := tx.Exec(
		`INSERT INTO snapshot_chapters (snapshot_id, chapter_number, content)
		 SELECT ?, chapter_number, content FROM chapters WHERE project_id = ?`,
		snap.ID, projectID); err != nil {
		return nil, fmt.Errorf("copy chapters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}
	s.logger.Info("snapshot created",
		zap.Int64("project_id", projectID),
		zap.Int64("snapshot_id", snap.ID),
		zap.Int("alerts", alertCount),
		zap.Int("entities", entityCount))
	return snap, nil
}

func entityNamesTx(tx *sql.Tx, ids []int64) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := tx.Query(
		`SELECT canonical_name FROM entities WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("entity names: %w", err)
	}
	defer rows.Close()
	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *SQLiteStorage) LatestSnapshot(projectID int64) (*types.Snapshot, error) {
	row := s.db.QueryRow(
		`SELECT id, project_id, document_fingerprint, alert_count, entity_count, status, created_at
		 FROM analysis_snapshots
		 WHERE project_id = ? AND status = 'complete'
		 ORDER BY created_at DESC, id DESC LIMIT 1`, projectID)
	return scanSnapshot(row)
}

func (s *SQLiteStorage) ListSnapshots(projectID int64) ([]*types.Snapshot, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, document_fingerprint, alert_count, entity_count, status, created_at
		 FROM analysis_snapshots WHERE project_id = ? ORDER BY created_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()
	var out []*types.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func scanSnapshot(r rowScanner) (*types.Snapshot, error) {
	var snap types.Snapshot
	var created int64
	err := r.Scan(&snap.ID, &snap.ProjectID, &snap.DocumentFingerprint,
		&snap.AlertCount, &snap.EntityCount, &snap.Status, &created)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	snap.CreatedAt = time.Unix(created, 0)
	return &snap, nil
}

func (s *SQLiteStorage) SnapshotAlerts(snapshotID int64) ([]*types.SnapshotAlert, error) {
	rows, err := s.db.Query(
		`SELECT id, snapshot_id, alert_type, category, severity, title, description,
		        chapter, start_char, end_char, excerpt, content_hash, confidence,
		        entity_ids_json, related_entity_names_json, extra_data_json
		 FROM snapshot_alerts WHERE snapshot_id = ?`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("snapshot alerts: %w", err)
	}
	defer rows.Close()

	var out []*types.SnapshotAlert
	for rows.Next() {
		var a types.SnapshotAlert
		var severity, entityIDs, names, extra string
		if err := rows.Scan(&a.ID, &a.SnapshotID, &a.Type, &a.Category, &severity,
			&a.Title, &a.Description, &a.Chapter, &a.StartChar, &a.EndChar,
			&a.Excerpt, &a.ContentHash, &a.Confidence, &entityIDs, &names, &extra); err != nil {
			return nil, fmt.Errorf("scan snapshot alert: %w", err)
		}
		a.Severity = types.AlertSeverity(severity)
		_ = json.Unmarshal([]byte(entityIDs), &a.EntityIDs)
		_ = json.Unmarshal([]byte(names), &a.RelatedEntityNames)
		_ = json.Unmarshal([]byte(extra), &a.ExtraData)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) SnapshotEntities(snapshotID int64) ([]*types.SnapshotEntity, error) {
	rows, err := s.db.Query(
		`SELECT id, snapshot_id, original_entity_id, entity_type, canonical_name,
		        aliases_json, importance, mention_count
		 FROM snapshot_entities WHERE snapshot_id = ?`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("snapshot entities: %w", err)
	}
	defer rows.Close()

	var out []*types.SnapshotEntity
	for rows.Next() {
		var e types.SnapshotEntity
		var etype, aliases, importance string
		if err := rows.Scan(&e.ID, &e.SnapshotID, &e.OriginalEntityID, &etype,
			&e.CanonicalName, &aliases, &importance, &e.MentionCount); err != nil {
			return nil, fmt.Errorf("scan snapshot entity: %w", err)
		}
		e.Type = types.EntityType(etype)
		e.Importance = types.Importance(importance)
		_ = json.Unmarshal([]byte(aliases), &e.Aliases)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) SnapshotChapterTexts(snapshotID int64) (map[int]string, error) {
	rows, err := s.db.Query(
		`SELECT chapter_number, content FROM snapshot_chapters WHERE snapshot_id = ?`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("snapshot chapters: %w", err)
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var num int
		var content string
		if err := rows.Scan(&num, &content); err != nil {
			return nil, err
		}
		out[num] = content
	}
	return out, rows.Err()
}

// CleanupSnapshots removes all but the newest keep snapshots; the
// snapshot_alerts, snapshot_entities and snapshot_chapters rows go via
// ON DELETE CASCADE.
func (s *SQLiteStorage) CleanupSnapshots(projectID int64, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	res, err := s.exec(
		`DELETE FROM analysis_snapshots
		 WHERE project_id = ? AND id NOT IN (
		     SELECT id FROM analysis_snapshots
		     WHERE project_id = ?
		     ORDER BY created_at DESC, id DESC LIMIT ?)`,
		projectID, projectID, keep)
	if err != nil {
		return 0, fmt.Errorf("cleanup snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
