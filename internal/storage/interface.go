// Package storage persists the manuscript knowledge graph: projects,
// chapters, entities, mentions, attributes, alerts, snapshots,
// corrections and collections.
//
// Two backends implement the same Storage interface: SQLite (the
// durable store, WAL mode, cascading snapshot cleanup) and an
// in-memory store used by tests and as a scratch backend.
package storage

import (
	"errors"
	"time"

	"github.com/pauubach/narrassist/internal/types"
)

// Typed errors the HTTP layer maps onto 404/409.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// EntityFilter narrows entity listings.
type EntityFilter struct {
	Type          types.EntityType // empty = all
	MinMentions   int
	MinRelevance  float64 // computed against the project word count
	ChapterNumber int     // >0: only entities with a mention in that chapter
	IncludeInactive bool
}

// MergeRequest is the single atomic merge operation: all mentions of
// the sources are reassigned to the primary, aliases union, the
// mention counter adjusts by TotalMentionDelta, sources soft-delete,
// and a history record is written — all in one transaction.
type MergeRequest struct {
	ProjectID         int64
	PrimaryEntityID   int64
	SourceEntityIDs   []int64
	CombinedAliases   []string
	NewMergedFromIDs  []int64
	TotalMentionDelta int
	MergedBy          string
}

// ProjectRepository manages project rows.
type ProjectRepository interface {
	CreateProject(p *types.Project) error
	GetProject(id int64) (*types.Project, error)
	ListProjects() ([]*types.Project, error)
	UpdateProject(p *types.Project) error
	DeleteProject(id int64) error
	SetAnalysisState(id int64, status types.AnalysisStatus, progress float64) error
}

// ChapterRepository manages chapter rows.
type ChapterRepository interface {
	ReplaceChapters(projectID int64, chapters []types.Chapter) error
	ListChapters(projectID int64) ([]*types.Chapter, error)
}

// EntityRepository manages entities, their mentions, and merges.
type EntityRepository interface {
	CreateEntity(e *types.Entity) error
	GetEntity(id int64) (*types.Entity, error)
	ListEntities(projectID int64, filter EntityFilter) ([]*types.Entity, error)
	UpdateEntity(e *types.Entity) error
	SoftDeleteEntity(id int64) error

	CreateMentions(entityID int64, mentions []types.Mention) error
	ListMentions(entityID int64) ([]*types.Mention, error)
	ListProjectMentions(projectID int64) ([]*types.Mention, error)
	ReassignMention(mentionID, newEntityID int64) error
	DeleteMention(mentionID int64) error

	MergeEntities(req MergeRequest) (*types.MergeRecord, error)
	UndoMerge(mergeID int64) error
	MergeHistory(projectID int64) ([]*types.MergeRecord, error)
}

// AttributeRepository manages entity attributes.
type AttributeRepository interface {
	CreateAttribute(a *types.Attribute) error
	ListAttributes(entityID int64) ([]*types.Attribute, error)
	UpdateAttribute(a *types.Attribute) error
	DeleteAttribute(id int64) error
}

// AlertRepository manages alerts. CreateAlert enforces the
// unique-on-open constraint: a second open alert with the same
// content hash in the same project returns ErrConflict.
type AlertRepository interface {
	CreateAlert(a *types.Alert) error
	GetAlert(id int64) (*types.Alert, error)
	ListAlerts(projectID int64) ([]*types.Alert, error)
	UpdateAlertStatus(id int64, status types.AlertStatus) error
	LinkAlert(id int64, previousSnapshotAlertID int64, matchConfidence float64, reason types.ResolutionReason) error
	ClearAlerts(projectID int64) error
}

// SnapshotRepository captures and serves pre-analysis snapshots.
type SnapshotRepository interface {
	// CreateSnapshot captures the current alerts (with denormalized
	// entity names), entities and chapter texts. Returns nil, nil when
	// there is nothing to capture.
	CreateSnapshot(projectID int64) (*types.Snapshot, error)
	LatestSnapshot(projectID int64) (*types.Snapshot, error)
	ListSnapshots(projectID int64) ([]*types.Snapshot, error)
	SnapshotAlerts(snapshotID int64) ([]*types.SnapshotAlert, error)
	SnapshotEntities(snapshotID int64) ([]*types.SnapshotEntity, error)
	SnapshotChapterTexts(snapshotID int64) (map[int]string, error)
	// CleanupSnapshots deletes all but the newest keep snapshots;
	// snapshot alerts/entities/chapters go with them.
	CleanupSnapshots(projectID int64, keep int) (int, error)
}

// CorrectionRepository manages user overrides.
type CorrectionRepository interface {
	CreateCoreferenceCorrection(c *types.CoreferenceCorrection) error
	ListCoreferenceCorrections(projectID int64) ([]*types.CoreferenceCorrection, error)
	DeleteCoreferenceCorrection(id int64) error

	CreateSpeakerCorrection(c *types.SpeakerCorrection) error
	ListSpeakerCorrections(projectID int64) ([]*types.SpeakerCorrection, error)
	DeleteSpeakerCorrection(id int64) error
}

// FilterRepository stores the three mention-filter layers.
type FilterRepository interface {
	ListSystemPatterns() ([]*types.SystemPattern, error)
	SetSystemPatternActive(id int64, active bool) error

	AddUserRejection(r *types.UserRejection) error
	ListUserRejections() ([]*types.UserRejection, error)
	RemoveUserRejection(id int64) error

	AddProjectOverride(o *types.ProjectOverride) error
	ListProjectOverrides(projectID int64) ([]*types.ProjectOverride, error)
	RemoveProjectOverride(id int64) error
}

// CollectionRepository manages sagas and cross-book entity links.
type CollectionRepository interface {
	CreateCollection(c *types.Collection) error
	GetCollection(id int64) (*types.Collection, error)
	ListCollections() ([]*types.Collection, error)
	DeleteCollection(id int64) error

	AddProjectToCollection(collectionID, projectID int64, order int) error
	RemoveProjectFromCollection(collectionID, projectID int64) error

	// CreateEntityLink enforces that both projects belong to the
	// collection and that the (source, target) pair is unique.
	CreateEntityLink(l *types.EntityLink) error
	ListEntityLinks(collectionID int64) ([]*types.EntityLink, error)
	DeleteEntityLink(id int64) error
}

// IdentityRepository persists identity decisions and the per-subject
// risk ledger.
type IdentityRepository interface {
	RecordIdentityCheck(c *types.IdentityCheck) error
	LastIdentityCheck(projectID int64) (*types.IdentityCheck, error)
	UncertainCountSince(licenseSubject string, since time.Time) (int, error)
	SetReviewRequired(licenseSubject string, required bool) error
	ReviewRequired(licenseSubject string) (bool, error)
}

// VoiceProfileRepository caches per-character voice profiles.
type VoiceProfileRepository interface {
	UpsertVoiceProfile(p *types.VoiceProfile) error
	GetVoiceProfile(projectID, entityID int64) (*types.VoiceProfile, error)
	ListVoiceProfiles(projectID int64) ([]*types.VoiceProfile, error)
	DeleteVoiceProfiles(projectID int64) error
}

// TimelineRepository persists the computed timeline. ReplaceTimeline
// must write every field including day offsets, weekdays and temporal
// instance ids — the cached timeline is the source of truth for the
// review surface.
type TimelineRepository interface {
	ReplaceTimeline(projectID int64, events []types.TimelineEvent, markers []types.TemporalMarker) error
	ListTimelineEvents(projectID int64) ([]*types.TimelineEvent, error)
	ListTemporalMarkers(projectID int64) ([]*types.TemporalMarker, error)
}

// EditorialRepository stores per-project editorial rules and
// focalization declarations.
type EditorialRepository interface {
	UpsertEditorialRules(r *types.EditorialRules) error
	GetEditorialRules(projectID int64) (*types.EditorialRules, error)

	CreateFocalization(f *types.Focalization) error
	ListFocalizations(projectID int64) ([]*types.Focalization, error)
	DeleteFocalization(id int64) error
}

// Storage combines all repositories for unified access.
type Storage interface {
	ProjectRepository
	ChapterRepository
	EntityRepository
	AttributeRepository
	AlertRepository
	SnapshotRepository
	CorrectionRepository
	FilterRepository
	CollectionRepository
	IdentityRepository
	VoiceProfileRepository
	TimelineRepository
	EditorialRepository

	Close() error
}

// Verify both backends implement Storage.
var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*SQLiteStorage)(nil)
)
