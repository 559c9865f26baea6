// Package storage - SQLite backend: entities, mentions, atomic merge.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pauubach/narrassist/internal/types"
)

const entityColumns = `id, project_id, entity_type, canonical_name, aliases_json,
	importance, first_appearance_char, mention_count, is_active,
	merged_from_ids_json, created_at, updated_at`

func (s *SQLiteStorage) CreateEntity(e *types.Entity) error {
	if e.Importance == "" {
		e.Importance = types.ImportanceSecondary
	}
	now := time.Now()
	e.CreatedAt, e.UpdatedAt = now, now
	e.IsActive = true

	res, err := s.exec(
		`INSERT INTO entities
		 (project_id, entity_type, canonical_name, aliases_json, importance,
		  first_appearance_char, mention_count, is_active, merged_from_ids_json,
		  created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		e.ProjectID, string(e.Type), e.CanonicalName, marshalJSON(emptySlice(e.Aliases)),
		string(e.Importance), e.FirstAppearanceChar, e.MentionCount,
		marshalJSON(emptyIDs(e.MergedFromIDs)), now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStorage) GetEntity(id int64) (*types.Entity, error) {
	row := s.db.QueryRow(`SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	return scanEntity(row)
}

func (s *SQLiteStorage) ListEntities(projectID int64, filter EntityFilter) ([]*types.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE project_id = ?`
	args := []any{projectID}
	if !filter.IncludeInactive {
		query += ` AND is_active = 1`
	}
	if filter.Type != "" {
		query += ` AND entity_type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.MinMentions > 0 {
		query += ` AND mention_count >= ?`
		args = append(args, filter.MinMentions)
	}
	query += ` ORDER BY mention_count DESC, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []*types.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out, err = s.applyEntityFilters(projectID, out, filter)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// applyEntityFilters resolves the filter clauses that need data beyond
// the entities table (relevance against word count, chapter presence).
func (s *SQLiteStorage) applyEntityFilters(projectID int64, entities []*types.Entity, filter EntityFilter) ([]*types.Entity, error) {
	if filter.MinRelevance <= 0 && filter.ChapterNumber <= 0 {
		return entities, nil
	}

	wordCount := 0
	if filter.MinRelevance > 0 {
		if p, err := s.GetProject(projectID); err == nil {
			wordCount = p.WordCount
		}
	}

	var chapterEntityIDs map[int64]bool
	if filter.ChapterNumber > 0 {
		chapterEntityIDs = make(map[int64]bool)
		rows, err := s.db.Query(
			`SELECT DISTINCT m.entity_id
			 FROM entity_mentions m JOIN chapters c ON m.chapter_id = c.id
			 WHERE c.project_id = ? AND c.chapter_number = ?`,
			projectID, filter.ChapterNumber)
		if err != nil {
			return nil, fmt.Errorf("chapter presence: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return nil, err
			}
			chapterEntityIDs[id] = true
		}
	}

	filtered := entities[:0]
	for _, e := range entities {
		if filter.MinRelevance > 0 && e.Relevance(wordCount) < filter.MinRelevance {
			continue
		}
		if chapterEntityIDs != nil && !chapterEntityIDs[e.ID] {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered, nil
}

func scanEntity(r rowScanner) (*types.Entity, error) {
	var e types.Entity
	var etype, importance, aliases, mergedFrom string
	var active int
	var created, updated int64
	err := r.Scan(&e.ID, &e.ProjectID, &etype, &e.CanonicalName, &aliases,
		&importance, &e.FirstAppearanceChar, &e.MentionCount, &active,
		&mergedFrom, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan entity: %w", err)
	}
	e.Type = types.EntityType(etype)
	e.Importance = types.Importance(importance)
	e.IsActive = active == 1
	_ = json.Unmarshal([]byte(aliases), &e.Aliases)
	_ = json.Unmarshal([]byte(mergedFrom), &e.MergedFromIDs)
	e.CreatedAt = time.Unix(created, 0)
	e.UpdatedAt = time.Unix(updated, 0)
	return &e, nil
}

func (s *SQLiteStorage) UpdateEntity(e *types.Entity) error {
	e.UpdatedAt = time.Now()
	res, err := s.exec(
		`UPDATE entities SET entity_type = ?, canonical_name = ?, aliases_json = ?,
		        importance = ?, first_appearance_char = ?, mention_count = ?,
		        is_active = ?, merged_from_ids_json = ?, updated_at = ?
		 WHERE id = ?`,
		string(e.Type), e.CanonicalName, marshalJSON(emptySlice(e.Aliases)),
		string(e.Importance), e.FirstAppearanceChar, e.MentionCount,
		boolToInt(e.IsActive), marshalJSON(emptyIDs(e.MergedFromIDs)),
		e.UpdatedAt.Unix(), e.ID)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStorage) SoftDeleteEntity(id int64) error {
	res, err := s.exec(
		`UPDATE entities SET is_active = 0, updated_at = ? WHERE id = ?`, nowUnix(), id)
	if err != nil {
		return fmt.Errorf("soft delete entity: %w", err)
	}
	return requireRow(res)
}

// ==================== Mentions ====================

const mentionColumns = `id, entity_id, COALESCE(chapter_id, 0), surface_form, start_char,
	end_char, mention_type, gender, number_, sentence_idx, context_before,
	context_after, confidence, source, metadata_json`

func (s *SQLiteStorage) CreateMentions(entityID int64, mentions []types.Mention) error {
	if len(mentions) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO entity_mentions
		 (entity_id, chapter_id, surface_form, start_char, end_char, mention_type,
		  gender, number_, sentence_idx, context_before, context_after,
		  confidence, source, metadata_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare mention insert: %w", err)
	}
	defer stmt.Close()

	for i := range mentions {
		m := &mentions[i]
		m.EntityID = entityID
		res, err := stmt.Exec(entityID, nullableID(m.ChapterID), m.Surface,
			m.StartChar, m.EndChar, string(m.Type), string(m.Gender), string(m.Number),
			m.SentenceIdx, m.ContextBefore, m.ContextAfter, m.Confidence, m.Source,
			marshalJSON(m.Metadata))
		if err != nil {
			return fmt.Errorf("insert mention: %w", err)
		}
		m.ID, _ = res.LastInsertId()
	}

	if _, err := tx.Exec(
		`UPDATE entities SET mention_count = mention_count + ?, updated_at = ? WHERE id = ?`,
		len(mentions), nowUnix(), entityID); err != nil {
		return fmt.Errorf("bump mention count: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStorage) ListMentions(entityID int64) ([]*types.Mention, error) {
	rows, err := s.db.Query(
		`SELECT `+mentionColumns+` FROM entity_mentions WHERE entity_id = ? ORDER BY start_char`,
		entityID)
	if err != nil {
		return nil, fmt.Errorf("list mentions: %w", err)
	}
	defer rows.Close()
	return scanMentions(rows)
}

func (s *SQLiteStorage) ListProjectMentions(projectID int64) ([]*types.Mention, error) {
	rows, err := s.db.Query(
		`SELECT `+mentionColumnsPrefixed("m")+`
		 FROM entity_mentions m JOIN entities e ON m.entity_id = e.id
		 WHERE e.project_id = ? ORDER BY m.start_char`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project mentions: %w", err)
	}
	defer rows.Close()
	return scanMentions(rows)
}

func mentionColumnsPrefixed(p string) string {
	return p + `.id, ` + p + `.entity_id, COALESCE(` + p + `.chapter_id, 0), ` +
		p + `.surface_form, ` + p + `.start_char, ` + p + `.end_char, ` +
		p + `.mention_type, ` + p + `.gender, ` + p + `.number_, ` +
		p + `.sentence_idx, ` + p + `.context_before, ` + p + `.context_after, ` +
		p + `.confidence, ` + p + `.source, ` + p + `.metadata_json`
}

func scanMentions(rows *sql.Rows) ([]*types.Mention, error) {
	var out []*types.Mention
	for rows.Next() {
		var m types.Mention
		var mtype, gender, number, metadata string
		if err := rows.Scan(&m.ID, &m.EntityID, &m.ChapterID, &m.Surface,
			&m.StartChar, &m.EndChar, &mtype, &gender, &number, &m.SentenceIdx,
			&m.ContextBefore, &m.ContextAfter, &m.Confidence, &m.Source, &metadata); err != nil {
			return nil, fmt.Errorf("scan mention: %w", err)
		}
		m.Type = types.MentionType(mtype)
		m.Gender = types.Gender(gender)
		m.Number = types.Number(number)
		_ = json.Unmarshal([]byte(metadata), &m.Metadata)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// ReassignMention moves a mention to another entity, keeping both
// mention counters consistent in one transaction.
func (s *SQLiteStorage) ReassignMention(mentionID, newEntityID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var oldEntityID int64
	err = tx.QueryRow(`SELECT entity_id FROM entity_mentions WHERE id = ?`, mentionID).Scan(&oldEntityID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read mention: %w", err)
	}
	if oldEntityID == newEntityID {
		return nil
	}

	if _, err := tx.Exec(`UPDATE entity_mentions SET entity_id = ? WHERE id = ?`, newEntityID, mentionID); err != nil {
		return fmt.Errorf("reassign mention: %w", err)
	}
	if _, err := tx.Exec(`UPDATE entities SET mention_count = mention_count - 1, updated_at = ? WHERE id = ?`, nowUnix(), oldEntityID); err != nil {
		return fmt.Errorf("decrement count: %w", err)
	}
	if _, err := tx.Exec(`UPDATE entities SET mention_count = mention_count + 1, updated_at = ? WHERE id = ?`, nowUnix(), newEntityID); err != nil {
		return fmt.Errorf("increment count: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStorage) DeleteMention(mentionID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var entityID int64
	err = tx.QueryRow(`SELECT entity_id FROM entity_mentions WHERE id = ?`, mentionID).Scan(&entityID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read mention: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM entity_mentions WHERE id = ?`, mentionID); err != nil {
		return fmt.Errorf("delete mention: %w", err)
	}
	if _, err := tx.Exec(`UPDATE entities SET mention_count = mention_count - 1, updated_at = ? WHERE id = ?`, nowUnix(), entityID); err != nil {
		return fmt.Errorf("decrement count: %w", err)
	}
	return tx.Commit()
}

// ==================== Atomic merge ====================

// MergeEntities performs the single-transaction merge: mention
// reassignment, alias union, counter adjustment, source soft-delete
// and the history record either all succeed or none do.
func (s *SQLiteStorage) MergeEntities(req MergeRequest) (*types.MergeRecord, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	primary, err := s.getEntityTx(tx, req.PrimaryEntityID)
	if err != nil {
		return nil, fmt.Errorf("primary entity: %w", err)
	}
	if primary.ProjectID != req.ProjectID {
		return nil, ErrNotFound
	}

	record := &types.MergeRecord{
		ProjectID:       req.ProjectID,
		PrimaryEntityID: req.PrimaryEntityID,
		MergedBy:        req.MergedBy,
		PrimaryBefore:   primary,
		CreatedAt:       time.Now(),
	}

	for _, sourceID := range req.SourceEntityIDs {
		if sourceID == req.PrimaryEntityID {
			continue
		}
		source, err := s.getEntityTx(tx, sourceID)
		if err != nil || source.ProjectID != req.ProjectID || !source.IsActive {
			continue
		}

		mentionIDs, err := mentionIDsTx(tx, sourceID)
		if err != nil {
			return nil, err
		}
		attrs, err := attributesTx(tx, sourceID)
		if err != nil {
			return nil, err
		}
		record.Sources = append(record.Sources, types.MergedSource{
			Entity:     *source,
			MentionIDs: mentionIDs,
			Attributes: attrs,
		})
		record.SourceEntityIDs = append(record.SourceEntityIDs, sourceID)

		if _, err := tx.Exec(`UPDATE entity_mentions SET entity_id = ? WHERE entity_id = ?`,
			req.PrimaryEntityID, sourceID); err != nil {
			return nil, fmt.Errorf("reassign mentions of %d: %w", sourceID, err)
		}
		if _, err := tx.Exec(`UPDATE entity_attributes SET entity_id = ? WHERE entity_id = ?`,
			req.PrimaryEntityID, sourceID); err != nil {
			return nil, fmt.Errorf("reassign attributes of %d: %w", sourceID, err)
		}
		if _, err := tx.Exec(`UPDATE entities SET is_active = 0, updated_at = ? WHERE id = ?`,
			nowUnix(), sourceID); err != nil {
			return nil, fmt.Errorf("soft delete %d: %w", sourceID, err)
		}
	}

	if len(record.SourceEntityIDs) == 0 {
		return nil, fmt.Errorf("no mergeable sources: %w", ErrConflict)
	}

	if _, err := tx.Exec(
		`UPDATE entities SET aliases_json = ?, merged_from_ids_json = ?,
		        mention_count = mention_count + ?, updated_at = ?
		 WHERE id = ?`,
		marshalJSON(emptySlice(req.CombinedAliases)),
		marshalJSON(emptyIDs(req.NewMergedFromIDs)),
		req.TotalMentionDelta, nowUnix(), req.PrimaryEntityID); err != nil {
		return nil, fmt.Errorf("update primary: %w", err)
	}

	res, err := tx.Exec(
		`INSERT INTO entity_merges
		 (project_id, primary_entity_id, source_entity_ids_json, sources_json,
		  primary_before_json, merged_by, undone, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		req.ProjectID, req.PrimaryEntityID,
		marshalJSON(record.SourceEntityIDs), marshalJSON(record.Sources),
		marshalJSON(record.PrimaryBefore), req.MergedBy, record.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("record merge: %w", err)
	}
	record.ID, _ = res.LastInsertId()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit merge: %w", err)
	}
	s.logger.Info("entities merged",
		zap.Int64("project_id", req.ProjectID),
		zap.Int64("primary", req.PrimaryEntityID),
		zap.Int64s("sources", record.SourceEntityIDs))
	return record, nil
}

// UndoMerge restores the source entities, the exact mention-to-entity
// assignment, aliases and attributes captured in the history record.
func (s *SQLiteStorage) UndoMerge(mergeID int64) error {
	record, err := s.getMergeRecord(mergeID)
	if err != nil {
		return err
	}
	if record.Undone {
		return fmt.Errorf("merge %d already undone: %w", mergeID, ErrConflict)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, src := range record.Sources {
		e := src.Entity
		if _, err := tx.Exec(
			`UPDATE entities SET is_active = 1, canonical_name = ?, aliases_json = ?,
			        importance = ?, mention_count = ?, merged_from_ids_json = ?, updated_at = ?
			 WHERE id = ?`,
			e.CanonicalName, marshalJSON(emptySlice(e.Aliases)), string(e.Importance),
			e.MentionCount, marshalJSON(emptyIDs(e.MergedFromIDs)), nowUnix(), e.ID); err != nil {
			return fmt.Errorf("restore entity %d: %w", e.ID, err)
		}
		for _, mid := range src.MentionIDs {
			if _, err := tx.Exec(`UPDATE entity_mentions SET entity_id = ? WHERE id = ?`, e.ID, mid); err != nil {
				return fmt.Errorf("restore mention %d: %w", mid, err)
			}
		}
		for _, a := range src.Attributes {
			if _, err := tx.Exec(`UPDATE entity_attributes SET entity_id = ? WHERE id = ?`, e.ID, a.ID); err != nil {
				return fmt.Errorf("restore attribute %d: %w", a.ID, err)
			}
		}
	}

	if record.PrimaryBefore != nil {
		p := record.PrimaryBefore
		if _, err := tx.Exec(
			`UPDATE entities SET aliases_json = ?, merged_from_ids_json = ?,
			        mention_count = ?, updated_at = ?
			 WHERE id = ?`,
			marshalJSON(emptySlice(p.Aliases)), marshalJSON(emptyIDs(p.MergedFromIDs)),
			p.MentionCount, nowUnix(), p.ID); err != nil {
			return fmt.Errorf("restore primary: %w", err)
		}
	}

	if _, err := tx.Exec(`UPDATE entity_merges SET undone = 1 WHERE id = ?`, mergeID); err != nil {
		return fmt.Errorf("mark undone: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStorage) MergeHistory(projectID int64) ([]*types.MergeRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, primary_entity_id, source_entity_ids_json,
		        sources_json, primary_before_json, merged_by, undone, created_at
		 FROM entity_merges WHERE project_id = ? ORDER BY created_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("merge history: %w", err)
	}
	defer rows.Close()

	var out []*types.MergeRecord
	for rows.Next() {
		r, err := scanMergeRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) getMergeRecord(id int64) (*types.MergeRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, project_id, primary_entity_id, source_entity_ids_json,
		        sources_json, primary_before_json, merged_by, undone, created_at
		 FROM entity_merges WHERE id = ?`, id)
	return scanMergeRecord(row)
}

func scanMergeRecord(r rowScanner) (*types.MergeRecord, error) {
	var rec types.MergeRecord
	var sourceIDs, sources, primaryBefore string
	var undone int
	var created int64
	err := r.Scan(&rec.ID, &rec.ProjectID, &rec.PrimaryEntityID, &sourceIDs,
		&sources, &primaryBefore, &rec.MergedBy, &undone, &created)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan merge record: %w", err)
	}
	rec.Undone = undone == 1
	rec.CreatedAt = time.Unix(created, 0)
	_ = json.Unmarshal([]byte(sourceIDs), &rec.SourceEntityIDs)
	_ = json.Unmarshal([]byte(sources), &rec.Sources)
	if primaryBefore != "" && primaryBefore != "null" {
		var p types.Entity
		if json.Unmarshal([]byte(primaryBefore), &p) == nil {
			rec.PrimaryBefore = &p
		}
	}
	return &rec, nil
}

func (s *SQLiteStorage) getEntityTx(tx *sql.Tx, id int64) (*types.Entity, error) {
	row := tx.QueryRow(`SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	return scanEntity(row)
}

func mentionIDsTx(tx *sql.Tx, entityID int64) ([]int64, error) {
	rows, err := tx.Query(`SELECT id FROM entity_mentions WHERE entity_id = ?`, entityID)
	if err != nil {
		return nil, fmt.Errorf("mention ids: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func attributesTx(tx *sql.Tx, entityID int64) ([]types.Attribute, error) {
	rows, err := tx.Query(
		`SELECT id, entity_id, attribute_type, attribute_key, attribute_value,
		        confidence, is_verified, first_mention_chapter
		 FROM entity_attributes WHERE entity_id = ?`, entityID)
	if err != nil {
		return nil, fmt.Errorf("attributes: %w", err)
	}
	defer rows.Close()
	var out []types.Attribute
	for rows.Next() {
		var a types.Attribute
		var cat string
		var verified int
		if err := rows.Scan(&a.ID, &a.EntityID, &cat, &a.Key, &a.Value,
			&a.Confidence, &verified, &a.FirstMentionChapter); err != nil {
			return nil, err
		}
		a.Category = types.AttributeCategory(cat)
		a.Verified = verified == 1
		out = append(out, a)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyIDs(s []int64) []int64 {
	if s == nil {
		return []int64{}
	}
	return s
}
