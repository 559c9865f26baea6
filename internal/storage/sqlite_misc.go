// Package storage - SQLite backend: corrections, filters, collections,
// identity ledger, voice profiles, timeline, editorial rules.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pauubach/narrassist/internal/types"
)

// ==================== Corrections ====================

func (s *SQLiteStorage) CreateCoreferenceCorrection(c *types.CoreferenceCorrection) error {
	c.CreatedAt = time.Now()
	res, err := s.exec(
		`INSERT INTO coreference_corrections
		 (project_id, mention_start_char, mention_end_char, mention_text,
		  chapter_number, original_entity_id, corrected_entity_id,
		  correction_type, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ProjectID, c.MentionStartChar, c.MentionEndChar, c.MentionText,
		c.ChapterNumber, c.OriginalEntityID, c.CorrectedEntityID,
		string(c.Type), c.Notes, c.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert coref correction: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStorage) ListCoreferenceCorrections(projectID int64) ([]*types.CoreferenceCorrection, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, mention_start_char, mention_end_char, mention_text,
		        chapter_number, original_entity_id, corrected_entity_id,
		        correction_type, notes, created_at
		 FROM coreference_corrections WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list coref corrections: %w", err)
	}
	defer rows.Close()

	var out []*types.CoreferenceCorrection
	for rows.Next() {
		var c types.CoreferenceCorrection
		var ctype string
		var created int64
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.MentionStartChar, &c.MentionEndChar,
			&c.MentionText, &c.ChapterNumber, &c.OriginalEntityID,
			&c.CorrectedEntityID, &ctype, &c.Notes, &created); err != nil {
			return nil, fmt.Errorf("scan coref correction: %w", err)
		}
		c.Type = types.CorrectionType(ctype)
		c.CreatedAt = time.Unix(created, 0)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) DeleteCoreferenceCorrection(id int64) error {
	res, err := s.exec(`DELETE FROM coreference_corrections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete coref correction: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStorage) CreateSpeakerCorrection(c *types.SpeakerCorrection) error {
	c.CreatedAt = time.Now()
	res, err := s.exec(
		`INSERT INTO speaker_corrections
		 (project_id, chapter_number, dialogue_start_char, dialogue_end_char,
		  dialogue_text, original_speaker_id, corrected_speaker_id, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ProjectID, c.ChapterNumber, c.DialogueStartChar, c.DialogueEndChar,
		c.DialogueText, c.OriginalSpeakerID, c.CorrectedSpeakerID, c.Notes,
		c.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert speaker correction: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStorage) ListSpeakerCorrections(projectID int64) ([]*types.SpeakerCorrection, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, chapter_number, dialogue_start_char,
		        dialogue_end_char, dialogue_text, original_speaker_id,
		        corrected_speaker_id, notes, created_at
		 FROM speaker_corrections WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list speaker corrections: %w", err)
	}
	defer rows.Close()

	var out []*types.SpeakerCorrection
	for rows.Next() {
		var c types.SpeakerCorrection
		var created int64
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.ChapterNumber,
			&c.DialogueStartChar, &c.DialogueEndChar, &c.DialogueText,
			&c.OriginalSpeakerID, &c.CorrectedSpeakerID, &c.Notes, &created); err != nil {
			return nil, fmt.Errorf("scan speaker correction: %w", err)
		}
		c.CreatedAt = time.Unix(created, 0)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) DeleteSpeakerCorrection(id int64) error {
	res, err := s.exec(`DELETE FROM speaker_corrections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete speaker correction: %w", err)
	}
	return requireRow(res)
}

// ==================== Filters ====================

func (s *SQLiteStorage) ListSystemPatterns() ([]*types.SystemPattern, error) {
	rows, err := s.db.Query(
		`SELECT id, pattern, kind, language, active FROM rejected_entities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list system patterns: %w", err)
	}
	defer rows.Close()
	var out []*types.SystemPattern
	for rows.Next() {
		var p types.SystemPattern
		var active int
		if err := rows.Scan(&p.ID, &p.Pattern, &p.Kind, &p.Language, &active); err != nil {
			return nil, fmt.Errorf("scan system pattern: %w", err)
		}
		p.Active = active == 1
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) SetSystemPatternActive(id int64, active bool) error {
	res, err := s.exec(`UPDATE rejected_entities SET active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("toggle system pattern: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStorage) AddUserRejection(r *types.UserRejection) error {
	r.CreatedAt = time.Now()
	res, err := s.exec(
		`INSERT INTO user_rejected_entities (text, reason, created_at) VALUES (?, ?, ?)`,
		r.Text, r.Reason, r.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert user rejection: %w", err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStorage) ListUserRejections() ([]*types.UserRejection, error) {
	rows, err := s.db.Query(
		`SELECT id, text, reason, created_at FROM user_rejected_entities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list user rejections: %w", err)
	}
	defer rows.Close()
	var out []*types.UserRejection
	for rows.Next() {
		var r types.UserRejection
		var created int64
		if err := rows.Scan(&r.ID, &r.Text, &r.Reason, &created); err != nil {
			return nil, fmt.Errorf("scan user rejection: %w", err)
		}
		r.CreatedAt = time.Unix(created, 0)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) RemoveUserRejection(id int64) error {
	res, err := s.exec(`DELETE FROM user_rejected_entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove user rejection: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStorage) AddProjectOverride(o *types.ProjectOverride) error {
	o.CreatedAt = time.Now()
	res, err := s.exec(
		`INSERT INTO project_entity_overrides (project_id, text, action, created_at)
		 VALUES (?, ?, ?, ?)`,
		o.ProjectID, o.Text, string(o.Action), o.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert project override: %w", err)
	}
	o.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStorage) ListProjectOverrides(projectID int64) ([]*types.ProjectOverride, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, text, action, created_at
		 FROM project_entity_overrides WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project overrides: %w", err)
	}
	defer rows.Close()
	var out []*types.ProjectOverride
	for rows.Next() {
		var o types.ProjectOverride
		var action string
		var created int64
		if err := rows.Scan(&o.ID, &o.ProjectID, &o.Text, &action, &created); err != nil {
			return nil, fmt.Errorf("scan project override: %w", err)
		}
		o.Action = types.FilterAction(action)
		o.CreatedAt = time.Unix(created, 0)
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) RemoveProjectOverride(id int64) error {
	res, err := s.exec(`DELETE FROM project_entity_overrides WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove project override: %w", err)
	}
	return requireRow(res)
}

// ==================== Collections ====================

func (s *SQLiteStorage) CreateCollection(c *types.Collection) error {
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	res, err := s.exec(
		`INSERT INTO collections (name, description, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		c.Name, c.Description, now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("insert collection: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStorage) GetCollection(id int64) (*types.Collection, error) {
	row := s.db.QueryRow(
		`SELECT c.id, c.name, c.description, c.created_at, c.updated_at,
		        (SELECT COUNT(*) FROM projects p WHERE p.collection_id = c.id)
		 FROM collections c WHERE c.id = ?`, id)
	return scanCollection(row)
}

func (s *SQLiteStorage) ListCollections() ([]*types.Collection, error) {
	rows, err := s.db.Query(
		`SELECT c.id, c.name, c.description, c.created_at, c.updated_at,
		        (SELECT COUNT(*) FROM projects p WHERE p.collection_id = c.id)
		 FROM collections c ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()
	var out []*types.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCollection(r rowScanner) (*types.Collection, error) {
	var c types.Collection
	var created, updated int64
	err := r.Scan(&c.ID, &c.Name, &c.Description, &created, &updated, &c.ProjectCount)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan collection: %w", err)
	}
	c.CreatedAt = time.Unix(created, 0)
	c.UpdatedAt = time.Unix(updated, 0)
	return &c, nil
}

func (s *SQLiteStorage) DeleteCollection(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE projects SET collection_id = NULL, collection_order = 0 WHERE collection_id = ?`, id); err != nil {
		return fmt.Errorf("unlink projects: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) AddProjectToCollection(collectionID, projectID int64, order int) error {
	if _, err := s.GetCollection(collectionID); err != nil {
		return err
	}
	res, err := s.exec(
		`UPDATE projects SET collection_id = ?, collection_order = ?, updated_at = ? WHERE id = ?`,
		collectionID, order, nowUnix(), projectID)
	if err != nil {
		return fmt.Errorf("add project to collection: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStorage) RemoveProjectFromCollection(collectionID, projectID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE projects SET collection_id = NULL, collection_order = 0
		 WHERE id = ? AND collection_id = ?`, projectID, collectionID); err != nil {
		return fmt.Errorf("remove project: %w", err)
	}
	// Entity links touching the removed project are no longer valid.
	if _, err := tx.Exec(
		`DELETE FROM collection_entity_links
		 WHERE collection_id = ? AND (source_project_id = ? OR target_project_id = ?)`,
		collectionID, projectID, projectID); err != nil {
		return fmt.Errorf("prune entity links: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStorage) CreateEntityLink(l *types.EntityLink) error {
	for _, pid := range []int64{l.SourceProjectID, l.TargetProjectID} {
		p, err := s.GetProject(pid)
		if err != nil {
			return err
		}
		if p.CollectionID != l.CollectionID {
			return fmt.Errorf("project %d is not in collection %d: %w", pid, l.CollectionID, ErrConflict)
		}
	}

	l.CreatedAt = time.Now()
	res, err := s.exec(
		`INSERT INTO collection_entity_links
		 (collection_id, source_entity_id, target_entity_id, source_project_id,
		  target_project_id, similarity, match_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.CollectionID, l.SourceEntityID, l.TargetEntityID, l.SourceProjectID,
		l.TargetProjectID, l.Similarity, string(l.MatchType), l.CreatedAt.Unix())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("entity link already exists: %w", ErrConflict)
		}
		return fmt.Errorf("insert entity link: %w", err)
	}
	l.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStorage) ListEntityLinks(collectionID int64) ([]*types.EntityLink, error) {
	rows, err := s.db.Query(
		`SELECT id, collection_id, source_entity_id, target_entity_id,
		        source_project_id, target_project_id, similarity, match_type, created_at
		 FROM collection_entity_links WHERE collection_id = ? ORDER BY id`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list entity links: %w", err)
	}
	defer rows.Close()
	var out []*types.EntityLink
	for rows.Next() {
		var l types.EntityLink
		var matchType string
		var created int64
		if err := rows.Scan(&l.ID, &l.CollectionID, &l.SourceEntityID, &l.TargetEntityID,
			&l.SourceProjectID, &l.TargetProjectID, &l.Similarity, &matchType, &created); err != nil {
			return nil, fmt.Errorf("scan entity link: %w", err)
		}
		l.MatchType = types.MatchType(matchType)
		l.CreatedAt = time.Unix(created, 0)
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) DeleteEntityLink(id int64) error {
	res, err := s.exec(`DELETE FROM collection_entity_links WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entity link: %w", err)
	}
	return requireRow(res)
}

// ==================== Identity ledger ====================

func (s *SQLiteStorage) RecordIdentityCheck(c *types.IdentityCheck) error {
	c.CreatedAt = time.Now()
	res, err := s.exec(
		`INSERT INTO identity_checks
		 (project_id, license_subject, previous_fingerprint, candidate_fingerprint,
		  classification, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ProjectID, c.LicenseSubject, c.PreviousFingerprint, c.CandidateFingerprint,
		string(c.Classification), c.Confidence, c.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("record identity check: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStorage) LastIdentityCheck(projectID int64) (*types.IdentityCheck, error) {
	row := s.db.QueryRow(
		`SELECT id, project_id, license_subject, previous_fingerprint,
		        candidate_fingerprint, classification, confidence, created_at
		 FROM identity_checks WHERE project_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`, projectID)
	var c types.IdentityCheck
	var class string
	var created int64
	err := row.Scan(&c.ID, &c.ProjectID, &c.LicenseSubject, &c.PreviousFingerprint,
		&c.CandidateFingerprint, &class, &c.Confidence, &created)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("last identity check: %w", err)
	}
	c.Classification = types.IdentityClass(class)
	c.CreatedAt = time.Unix(created, 0)
	return &c, nil
}

func (s *SQLiteStorage) UncertainCountSince(licenseSubject string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM identity_checks
		 WHERE license_subject = ? AND classification = ? AND created_at >= ?`,
		licenseSubject, string(types.IdentityUncertain), since.Unix()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("uncertain count: %w", err)
	}
	return n, nil
}

func (s *SQLiteStorage) SetReviewRequired(licenseSubject string, required bool) error {
	_, err := s.exec(
		`INSERT INTO identity_risk_state (license_subject, review_required, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(license_subject) DO UPDATE SET review_required = excluded.review_required,
		     updated_at = excluded.updated_at`,
		licenseSubject, boolToInt(required), nowUnix())
	if err != nil {
		return fmt.Errorf("set review required: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ReviewRequired(licenseSubject string) (bool, error) {
	var required int
	err := s.db.QueryRow(
		`SELECT review_required FROM identity_risk_state WHERE license_subject = ?`,
		licenseSubject).Scan(&required)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("review required: %w", err)
	}
	return required == 1, nil
}

// ==================== Voice profiles ====================

func (s *SQLiteStorage) UpsertVoiceProfile(p *types.VoiceProfile) error {
	p.UpdatedAt = time.Now()
	_, err := s.exec(
		`INSERT INTO voice_profiles
		 (project_id, entity_id, avg_intervention, type_token_ratio, formality_score,
		  filler_ratio, exclamation_ratio, question_ratio, avg_sentence_length,
		  subordinate_ratio, total_interventions, total_words,
		  characteristic_words_json, filler_words_json, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(project_id, entity_id) DO UPDATE SET
		     avg_intervention = excluded.avg_intervention,
		     type_token_ratio = excluded.type_token_ratio,
		     formality_score = excluded.formality_score,
		     filler_ratio = excluded.filler_ratio,
		     exclamation_ratio = excluded.exclamation_ratio,
		     question_ratio = excluded.question_ratio,
		     avg_sentence_length = excluded.avg_sentence_length,
		     subordinate_ratio = excluded.subordinate_ratio,
		     total_interventions = excluded.total_interventions,
		     total_words = excluded.total_words,
		     characteristic_words_json = excluded.characteristic_words_json,
		     filler_words_json = excluded.filler_words_json,
		     updated_at = excluded.updated_at`,
		p.ProjectID, p.EntityID, p.AvgIntervention, p.TypeTokenRatio, p.FormalityScore,
		p.FillerRatio, p.ExclamationRatio, p.QuestionRatio, p.AvgSentenceLength,
		p.SubordinateRatio, p.TotalInterventions, p.TotalWords,
		marshalJSON(emptySlice(p.CharacteristicWords)), marshalJSON(emptySlice(p.FillerWords)),
		p.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert voice profile: %w", err)
	}
	return nil
}

const voiceProfileColumns = `project_id, entity_id, avg_intervention, type_token_ratio,
	formality_score, filler_ratio, exclamation_ratio, question_ratio,
	avg_sentence_length, subordinate_ratio, total_interventions, total_words,
	characteristic_words_json, filler_words_json, updated_at`

func (s *SQLiteStorage) GetVoiceProfile(projectID, entityID int64) (*types.VoiceProfile, error) {
	row := s.db.QueryRow(
		`SELECT `+voiceProfileColumns+` FROM voice_profiles WHERE project_id = ? AND entity_id = ?`,
		projectID, entityID)
	return scanVoiceProfile(row)
}

func (s *SQLiteStorage) ListVoiceProfiles(projectID int64) ([]*types.VoiceProfile, error) {
	rows, err := s.db.Query(
		`SELECT `+voiceProfileColumns+` FROM voice_profiles WHERE project_id = ? ORDER BY entity_id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list voice profiles: %w", err)
	}
	defer rows.Close()
	var out []*types.VoiceProfile
	for rows.Next() {
		p, err := scanVoiceProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanVoiceProfile(r rowScanner) (*types.VoiceProfile, error) {
	var p types.VoiceProfile
	var charWords, fillerWords string
	var updated int64
	err := r.Scan(&p.ProjectID, &p.EntityID, &p.AvgIntervention, &p.TypeTokenRatio,
		&p.FormalityScore, &p.FillerRatio, &p.ExclamationRatio, &p.QuestionRatio,
		&p.AvgSentenceLength, &p.SubordinateRatio, &p.TotalInterventions,
		&p.TotalWords, &charWords, &fillerWords, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan voice profile: %w", err)
	}
	_ = json.Unmarshal([]byte(charWords), &p.CharacteristicWords)
	_ = json.Unmarshal([]byte(fillerWords), &p.FillerWords)
	p.UpdatedAt = time.Unix(updated, 0)
	return &p, nil
}

func (s *SQLiteStorage) DeleteVoiceProfiles(projectID int64) error {
	_, err := s.exec(`DELETE FROM voice_profiles WHERE project_id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("delete voice profiles: %w", err)
	}
	return nil
}

// ==================== Timeline ====================

// ReplaceTimeline rewrites the cached timeline in one transaction.
// Every field is written, including day_offset, weekday and
// temporal_instance_id: the cached timeline is the source of truth
// for the review surface.
func (s *SQLiteStorage) ReplaceTimeline(projectID int64, events []types.TimelineEvent, markers []types.TemporalMarker) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM timeline_events WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM temporal_markers WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("clear markers: %w", err)
	}

	for i := range events {
		e := &events[i]
		e.ProjectID = projectID
		res, err := tx.Exec(
			`INSERT INTO timeline_events
			 (project_id, chapter, start_char, description, story_date, resolution,
			  narrative_order, day_offset, weekday, entity_id, temporal_instance_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			projectID, e.Chapter, e.StartChar, e.Description, e.StoryDate,
			string(e.Resolution), string(e.Order), e.DayOffset, e.Weekday,
			e.EntityID, e.TemporalInstanceID)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		e.ID, _ = res.LastInsertId()
	}

	for i := range markers {
		m := &markers[i]
		m.ProjectID = projectID
		res, err := tx.Exec(
			`INSERT INTO temporal_markers
			 (project_id, chapter, start_char, end_char, surface, kind, value)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			projectID, m.Chapter, m.StartChar, m.EndChar, m.Surface, m.Kind, m.Value)
		if err != nil {
			return fmt.Errorf("insert marker: %w", err)
		}
		m.ID, _ = res.LastInsertId()
	}
	return tx.Commit()
}

func (s *SQLiteStorage) ListTimelineEvents(projectID int64) ([]*types.TimelineEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, chapter, start_char, description, story_date,
		        resolution, narrative_order, day_offset, weekday, entity_id,
		        temporal_instance_id
		 FROM timeline_events WHERE project_id = ? ORDER BY chapter, start_char, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list timeline events: %w", err)
	}
	defer rows.Close()
	var out []*types.TimelineEvent
	for rows.Next() {
		var e types.TimelineEvent
		var resolution, order string
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Chapter, &e.StartChar,
			&e.Description, &e.StoryDate, &resolution, &order, &e.DayOffset,
			&e.Weekday, &e.EntityID, &e.TemporalInstanceID); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		e.Resolution = types.DateResolution(resolution)
		e.Order = types.NarrativeOrder(order)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) ListTemporalMarkers(projectID int64) ([]*types.TemporalMarker, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, chapter, start_char, end_char, surface, kind, value
		 FROM temporal_markers WHERE project_id = ? ORDER BY chapter, start_char, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list temporal markers: %w", err)
	}
	defer rows.Close()
	var out []*types.TemporalMarker
	for rows.Next() {
		var m types.TemporalMarker
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Chapter, &m.StartChar,
			&m.EndChar, &m.Surface, &m.Kind, &m.Value); err != nil {
			return nil, fmt.Errorf("scan temporal marker: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// ==================== Editorial ====================

func (s *SQLiteStorage) UpsertEditorialRules(r *types.EditorialRules) error {
	now := time.Now()
	r.UpdatedAt = now
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	_, err := s.exec(
		`INSERT INTO editorial_rules (project_id, rules_text, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(project_id) DO UPDATE SET rules_text = excluded.rules_text,
		     enabled = excluded.enabled, updated_at = excluded.updated_at`,
		r.ProjectID, r.RulesText, boolToInt(r.Enabled), r.CreatedAt.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("upsert editorial rules: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetEditorialRules(projectID int64) (*types.EditorialRules, error) {
	row := s.db.QueryRow(
		`SELECT project_id, rules_text, enabled, created_at, updated_at
		 FROM editorial_rules WHERE project_id = ?`, projectID)
	var r types.EditorialRules
	var enabled int
	var created, updated int64
	err := row.Scan(&r.ProjectID, &r.RulesText, &enabled, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get editorial rules: %w", err)
	}
	r.Enabled = enabled == 1
	r.CreatedAt = time.Unix(created, 0)
	r.UpdatedAt = time.Unix(updated, 0)
	return &r, nil
}

func (s *SQLiteStorage) CreateFocalization(f *types.Focalization) error {
	res, err := s.exec(
		`INSERT INTO focalizations
		 (project_id, chapter_number, focalization_type, focal_entity_id, notes)
		 VALUES (?, ?, ?, ?, ?)`,
		f.ProjectID, f.ChapterNumber, string(f.Type), f.FocalEntityID, f.Notes)
	if err != nil {
		return fmt.Errorf("insert focalization: %w", err)
	}
	f.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStorage) ListFocalizations(projectID int64) ([]*types.Focalization, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, chapter_number, focalization_type, focal_entity_id, notes
		 FROM focalizations WHERE project_id = ? ORDER BY chapter_number, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list focalizations: %w", err)
	}
	defer rows.Close()
	var out []*types.Focalization
	for rows.Next() {
		var f types.Focalization
		var ftype string
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.ChapterNumber, &ftype,
			&f.FocalEntityID, &f.Notes); err != nil {
			return nil, fmt.Errorf("scan focalization: %w", err)
		}
		f.Type = types.FocalizationType(ftype)
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) DeleteFocalization(id int64) error {
	res, err := s.exec(`DELETE FROM focalizations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete focalization: %w", err)
	}
	return requireRow(res)
}
