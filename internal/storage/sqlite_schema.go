// Package storage - SQLite schema definition and migrations.
package storage

import (
	"database/sql"
	"fmt"
	"strings"
)

const schemaVersion = 3

// schema is the complete database schema. Tables referenced by foreign
// keys are created first.
const schema = `
CREATE TABLE IF NOT EXISTS schema_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS collections (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    document_path TEXT NOT NULL DEFAULT '',
    document_fingerprint TEXT NOT NULL DEFAULT '',
    document_type TEXT NOT NULL DEFAULT 'fiction',
    document_subtype TEXT NOT NULL DEFAULT '',
    analysis_status TEXT NOT NULL DEFAULT 'pending',
    analysis_progress REAL NOT NULL DEFAULT 0,
    word_count INTEGER NOT NULL DEFAULT 0,
    settings_json TEXT NOT NULL DEFAULT '{}',
    collection_id INTEGER,
    collection_order INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS chapters (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    chapter_number INTEGER NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    start_char INTEGER NOT NULL,
    end_char INTEGER NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    structure_type TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_chapters_project ON chapters(project_id, chapter_number);

CREATE TABLE IF NOT EXISTS entities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    entity_type TEXT NOT NULL,
    canonical_name TEXT NOT NULL,
    aliases_json TEXT NOT NULL DEFAULT '[]',
    importance TEXT NOT NULL DEFAULT 'secondary',
    first_appearance_char INTEGER NOT NULL DEFAULT 0,
    mention_count INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1,
    merged_from_ids_json TEXT NOT NULL DEFAULT '[]',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_entities_project_active ON entities(project_id, is_active);

CREATE TABLE IF NOT EXISTS entity_mentions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id INTEGER NOT NULL,
    chapter_id INTEGER,
    surface_form TEXT NOT NULL,
    start_char INTEGER NOT NULL,
    end_char INTEGER NOT NULL,
    mention_type TEXT NOT NULL DEFAULT 'proper_noun',
    gender TEXT NOT NULL DEFAULT 'unknown',
    number_ TEXT NOT NULL DEFAULT 'unknown',
    sentence_idx INTEGER NOT NULL DEFAULT 0,
    context_before TEXT NOT NULL DEFAULT '',
    context_after TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0,
    source TEXT NOT NULL DEFAULT '',
    metadata_json TEXT NOT NULL DEFAULT '{}',
    FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE,
    FOREIGN KEY (chapter_id) REFERENCES chapters(id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_mentions_entity ON entity_mentions(entity_id);
CREATE INDEX IF NOT EXISTS idx_mentions_chapter ON entity_mentions(chapter_id);

CREATE TABLE IF NOT EXISTS entity_attributes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id INTEGER NOT NULL,
    attribute_type TEXT NOT NULL,
    attribute_key TEXT NOT NULL,
    attribute_value TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 0,
    is_verified INTEGER NOT NULL DEFAULT 0,
    first_mention_chapter INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_attributes_entity ON entity_attributes(entity_id);

CREATE TABLE IF NOT EXISTS entity_merges (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    primary_entity_id INTEGER NOT NULL,
    source_entity_ids_json TEXT NOT NULL,
    sources_json TEXT NOT NULL,
    primary_before_json TEXT NOT NULL DEFAULT '',
    merged_by TEXT NOT NULL DEFAULT 'system',
    undone INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS alerts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    category TEXT NOT NULL,
    alert_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'new',
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    explanation TEXT NOT NULL DEFAULT '',
    suggestion TEXT NOT NULL DEFAULT '',
    excerpt TEXT NOT NULL DEFAULT '',
    chapter INTEGER NOT NULL DEFAULT 0,
    start_char INTEGER NOT NULL DEFAULT 0,
    end_char INTEGER NOT NULL DEFAULT 0,
    confidence REAL NOT NULL DEFAULT 0.8,
    content_hash TEXT NOT NULL DEFAULT '',
    entity_ids_json TEXT NOT NULL DEFAULT '[]',
    extra_data_json TEXT NOT NULL DEFAULT '{}',
    previous_snapshot_alert_id INTEGER NOT NULL DEFAULT 0,
    match_confidence REAL NOT NULL DEFAULT 0,
    resolution_reason TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_alerts_project ON alerts(project_id);
CREATE INDEX IF NOT EXISTS idx_alerts_hash ON alerts(project_id, content_hash);

CREATE TABLE IF NOT EXISTS analysis_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    document_fingerprint TEXT NOT NULL DEFAULT '',
    alert_count INTEGER NOT NULL DEFAULT 0,
    entity_count INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'complete',
    created_at INTEGER NOT NULL,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS snapshot_alerts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    snapshot_id INTEGER NOT NULL,
    alert_type TEXT NOT NULL,
    category TEXT NOT NULL,
    severity TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    chapter INTEGER NOT NULL DEFAULT 0,
    start_char INTEGER NOT NULL DEFAULT 0,
    end_char INTEGER NOT NULL DEFAULT 0,
    excerpt TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0.8,
    entity_ids_json TEXT NOT NULL DEFAULT '[]',
    related_entity_names_json TEXT NOT NULL DEFAULT '[]',
    extra_data_json TEXT NOT NULL DEFAULT '{}',
    FOREIGN KEY (snapshot_id) REFERENCES analysis_snapshots(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_snapshot_alerts ON snapshot_alerts(snapshot_id);

CREATE TABLE IF NOT EXISTS snapshot_entities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    snapshot_id INTEGER NOT NULL,
    original_entity_id INTEGER NOT NULL,
    entity_type TEXT NOT NULL,
    canonical_name TEXT NOT NULL,
    aliases_json TEXT NOT NULL DEFAULT '[]',
    importance TEXT NOT NULL DEFAULT 'secondary',
    mention_count INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (snapshot_id) REFERENCES analysis_snapshots(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_snapshot_entities ON snapshot_entities(snapshot_id);

CREATE TABLE IF NOT EXISTS snapshot_chapters (
    snapshot_id INTEGER NOT NULL,
    chapter_number INTEGER NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (snapshot_id, chapter_number),
    FOREIGN KEY (snapshot_id) REFERENCES analysis_snapshots(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS coreference_corrections (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    mention_start_char INTEGER NOT NULL,
    mention_end_char INTEGER NOT NULL,
    mention_text TEXT NOT NULL DEFAULT '',
    chapter_number INTEGER NOT NULL DEFAULT 0,
    original_entity_id INTEGER NOT NULL DEFAULT 0,
    corrected_entity_id INTEGER NOT NULL DEFAULT 0,
    correction_type TEXT NOT NULL,
    notes TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS speaker_corrections (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    chapter_number INTEGER NOT NULL DEFAULT 0,
    dialogue_start_char INTEGER NOT NULL,
    dialogue_end_char INTEGER NOT NULL,
    dialogue_text TEXT NOT NULL DEFAULT '',
    original_speaker_id INTEGER NOT NULL DEFAULT 0,
    corrected_speaker_id INTEGER NOT NULL DEFAULT 0,
    notes TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS rejected_entities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    pattern TEXT NOT NULL,
    kind TEXT NOT NULL DEFAULT '',
    language TEXT NOT NULL DEFAULT 'es',
    active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS user_rejected_entities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    text TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS project_entity_overrides (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    text TEXT NOT NULL,
    action TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS collection_entity_links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    collection_id INTEGER NOT NULL,
    source_entity_id INTEGER NOT NULL,
    target_entity_id INTEGER NOT NULL,
    source_project_id INTEGER NOT NULL,
    target_project_id INTEGER NOT NULL,
    similarity REAL NOT NULL DEFAULT 1,
    match_type TEXT NOT NULL DEFAULT 'manual',
    created_at INTEGER NOT NULL,
    UNIQUE (source_entity_id, target_entity_id),
    FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS identity_checks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    license_subject TEXT NOT NULL DEFAULT '',
    previous_fingerprint TEXT NOT NULL DEFAULT '',
    candidate_fingerprint TEXT NOT NULL DEFAULT '',
    classification TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_identity_subject ON identity_checks(license_subject, created_at);

CREATE TABLE IF NOT EXISTS identity_risk_state (
    license_subject TEXT PRIMARY KEY,
    review_required INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS voice_profiles (
    project_id INTEGER NOT NULL,
    entity_id INTEGER NOT NULL,
    avg_intervention REAL NOT NULL DEFAULT 0,
    type_token_ratio REAL NOT NULL DEFAULT 0,
    formality_score REAL NOT NULL DEFAULT 0,
    filler_ratio REAL NOT NULL DEFAULT 0,
    exclamation_ratio REAL NOT NULL DEFAULT 0,
    question_ratio REAL NOT NULL DEFAULT 0,
    avg_sentence_length REAL NOT NULL DEFAULT 0,
    subordinate_ratio REAL NOT NULL DEFAULT 0,
    total_interventions INTEGER NOT NULL DEFAULT 0,
    total_words INTEGER NOT NULL DEFAULT 0,
    characteristic_words_json TEXT NOT NULL DEFAULT '[]',
    filler_words_json TEXT NOT NULL DEFAULT '[]',
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (project_id, entity_id),
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS timeline_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    chapter INTEGER NOT NULL DEFAULT 0,
    start_char INTEGER NOT NULL DEFAULT 0,
    description TEXT NOT NULL DEFAULT '',
    story_date TEXT NOT NULL DEFAULT '',
    resolution TEXT NOT NULL DEFAULT 'UNKNOWN',
    narrative_order TEXT NOT NULL DEFAULT 'chronological',
    day_offset INTEGER NOT NULL DEFAULT 0,
    weekday TEXT NOT NULL DEFAULT '',
    entity_id INTEGER NOT NULL DEFAULT 0,
    temporal_instance_id TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS temporal_markers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    chapter INTEGER NOT NULL DEFAULT 0,
    start_char INTEGER NOT NULL DEFAULT 0,
    end_char INTEGER NOT NULL DEFAULT 0,
    surface TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL DEFAULT '',
    value TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS editorial_rules (
    project_id INTEGER PRIMARY KEY,
    rules_text TEXT NOT NULL DEFAULT '',
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS focalizations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    chapter_number INTEGER NOT NULL,
    focalization_type TEXT NOT NULL,
    focal_entity_id INTEGER NOT NULL DEFAULT 0,
    notes TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);
`

// defaultSystemPatterns seed the built-in false-positive filter.
var defaultSystemPatterns = []struct {
	Pattern string
	Kind    string
}{
	{`(?i)^(hola|adiós|hey|oye)\b`, "greeting"},
	{`(?i)^buen(os|as)\s+(días|tardes|noches)`, "greeting"},
	{`(?i)^(dios mío|por dios|madre mía)$`, "interjection"},
	{`(?i)^(señor|señora|don|doña)$`, "honorific_alone"},
	{`^\W+$`, "punctuation"},
}

// initializeSchema applies the DDL, records the schema version and
// seeds the system patterns. It also performs the additive migrations
// for rows created by earlier versions (alert lineage, snapshot
// chapter texts, temporal instance ids): a row missing a lineage field
// reads as its zero value, which consumers treat as "unknown".
func initializeSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var current string
	err := db.QueryRow(`SELECT value FROM schema_metadata WHERE key = 'version'`).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.Exec(
			`INSERT INTO schema_metadata (key, value) VALUES ('version', ?)`,
			fmt.Sprintf("%d", schemaVersion)); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	default:
		if err := migrate(db, current); err != nil {
			return err
		}
	}

	return seedSystemPatterns(db)
}

// migrate upgrades from older schema versions. All migrations here are
// additive: historical rows are preserved and new columns default to
// their zero value.
func migrate(db *sql.DB, from string) error {
	switch from {
	case "1":
		// v1 → v2: alert lineage columns.
		for _, stmt := range []string{
			`ALTER TABLE alerts ADD COLUMN previous_snapshot_alert_id INTEGER NOT NULL DEFAULT 0`,
			`ALTER TABLE alerts ADD COLUMN match_confidence REAL NOT NULL DEFAULT 0`,
			`ALTER TABLE alerts ADD COLUMN resolution_reason TEXT NOT NULL DEFAULT ''`,
		} {
			if _, err := db.Exec(stmt); err != nil && !isDuplicateColumn(err) {
				return fmt.Errorf("migrate v1→v2: %w", err)
			}
		}
		fallthrough
	case "2":
		// v2 → v3: temporal instance ids on timeline events.
		if _, err := db.Exec(
			`ALTER TABLE timeline_events ADD COLUMN temporal_instance_id TEXT NOT NULL DEFAULT ''`,
		); err != nil && !isDuplicateColumn(err) {
			return fmt.Errorf("migrate v2→v3: %w", err)
		}
		if _, err := db.Exec(
			`UPDATE schema_metadata SET value = ? WHERE key = 'version'`,
			fmt.Sprintf("%d", schemaVersion)); err != nil {
			return fmt.Errorf("bump schema version: %w", err)
		}
	}
	return nil
}

func isDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}

func seedSystemPatterns(db *sql.DB) error {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM rejected_entities`).Scan(&count); err != nil {
		return fmt.Errorf("count system patterns: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, p := range defaultSystemPatterns {
		if _, err := db.Exec(
			`INSERT INTO rejected_entities (pattern, kind, language, active) VALUES (?, ?, 'es', 1)`,
			p.Pattern, p.Kind); err != nil {
			return fmt.Errorf("seed system pattern: %w", err)
		}
	}
	return nil
}
