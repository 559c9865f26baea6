// Package storage - in-memory backend. Used by unit tests and as a
// scratch backend; returns deep copies so callers can never mutate
// stored state through aliasing.
package storage

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pauubach/narrassist/internal/types"
)

// MemoryStorage implements Storage with maps behind one mutex.
type MemoryStorage struct {
	mu sync.RWMutex

	nextID int64

	projects  map[int64]*types.Project
	chapters  map[int64][]*types.Chapter // by project
	entities  map[int64]*types.Entity
	mentions  map[int64]*types.Mention
	attrs     map[int64]*types.Attribute
	alerts    map[int64]*types.Alert
	merges    map[int64]*types.MergeRecord
	snapshots map[int64]*types.Snapshot
	snapAlerts   map[int64][]*types.SnapshotAlert
	snapEntities map[int64][]*types.SnapshotEntity
	snapChapters map[int64]map[int]string

	corefCorrections  map[int64]*types.CoreferenceCorrection
	speakerCorrections map[int64]*types.SpeakerCorrection

	systemPatterns  map[int64]*types.SystemPattern
	userRejections  map[int64]*types.UserRejection
	projectOverride map[int64]*types.ProjectOverride

	collections map[int64]*types.Collection
	entityLinks map[int64]*types.EntityLink

	identityChecks []*types.IdentityCheck
	reviewRequired map[string]bool

	voiceProfiles map[[2]int64]*types.VoiceProfile
	timelineEvents map[int64][]*types.TimelineEvent
	temporalMarkers map[int64][]*types.TemporalMarker

	editorialRules map[int64]*types.EditorialRules
	focalizations  map[int64]*types.Focalization
}

// NewMemoryStorage creates an empty in-memory store with the default
// system patterns seeded.
func NewMemoryStorage() *MemoryStorage {
	s := &MemoryStorage{
		projects:           make(map[int64]*types.Project),
		chapters:           make(map[int64][]*types.Chapter),
		entities:           make(map[int64]*types.Entity),
		mentions:           make(map[int64]*types.Mention),
		attrs:              make(map[int64]*types.Attribute),
		alerts:             make(map[int64]*types.Alert),
		merges:             make(map[int64]*types.MergeRecord),
		snapshots:          make(map[int64]*types.Snapshot),
		snapAlerts:         make(map[int64][]*types.SnapshotAlert),
		snapEntities:       make(map[int64][]*types.SnapshotEntity),
		snapChapters:       make(map[int64]map[int]string),
		corefCorrections:   make(map[int64]*types.CoreferenceCorrection),
		speakerCorrections: make(map[int64]*types.SpeakerCorrection),
		systemPatterns:     make(map[int64]*types.SystemPattern),
		userRejections:     make(map[int64]*types.UserRejection),
		projectOverride:    make(map[int64]*types.ProjectOverride),
		collections:        make(map[int64]*types.Collection),
		entityLinks:        make(map[int64]*types.EntityLink),
		reviewRequired:     make(map[string]bool),
		voiceProfiles:      make(map[[2]int64]*types.VoiceProfile),
		timelineEvents:     make(map[int64][]*types.TimelineEvent),
		temporalMarkers:    make(map[int64][]*types.TemporalMarker),
		editorialRules:     make(map[int64]*types.EditorialRules),
		focalizations:      make(map[int64]*types.Focalization),
	}
	for _, p := range defaultSystemPatterns {
		id := s.id()
		s.systemPatterns[id] = &types.SystemPattern{
			ID: id, Pattern: p.Pattern, Kind: p.Kind, Language: "es", Active: true,
		}
	}
	return s
}

func (s *MemoryStorage) Close() error { return nil }

func (s *MemoryStorage) id() int64 {
	s.nextID++
	return s.nextID
}

// ==================== Projects ====================

func (s *MemoryStorage) CreateProject(p *types.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.AnalysisStatus == "" {
		p.AnalysisStatus = types.StatusPending
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	p.ID = s.id()
	s.projects[p.ID] = cloneProject(p)
	return nil
}

func (s *MemoryStorage) GetProject(id int64) (*types.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProject(p), nil
}

func (s *MemoryStorage) ListProjects() ([]*types.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, cloneProject(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStorage) UpdateProject(p *types.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; !ok {
		return ErrNotFound
	}
	p.UpdatedAt = time.Now()
	s.projects[p.ID] = cloneProject(p)
	return nil
}

func (s *MemoryStorage) DeleteProject(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return ErrNotFound
	}
	delete(s.projects, id)
	delete(s.chapters, id)
	for eid, e := range s.entities {
		if e.ProjectID == id {
			delete(s.entities, eid)
		}
	}
	for mid, m := range s.mentions {
		if _, ok := s.entities[m.EntityID]; !ok {
			delete(s.mentions, mid)
		}
	}
	for aid, a := range s.alerts {
		if a.ProjectID == id {
			delete(s.alerts, aid)
		}
	}
	for sid, snap := range s.snapshots {
		if snap.ProjectID == id {
			s.dropSnapshotLocked(sid)
		}
	}
	return nil
}

func (s *MemoryStorage) SetAnalysisState(id int64, status types.AnalysisStatus, progress float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return ErrNotFound
	}
	p.AnalysisStatus = status
	p.AnalysisProgress = progress
	p.UpdatedAt = time.Now()
	return nil
}

// ==================== Chapters ====================

func (s *MemoryStorage) ReplaceChapters(projectID int64, chapters []types.Chapter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	replaced := make([]*types.Chapter, 0, len(chapters))
	for i := range chapters {
		ch := chapters[i]
		ch.ProjectID = projectID
		ch.ID = s.id()
		chapters[i].ID = ch.ID
		replaced = append(replaced, &ch)
	}
	s.chapters[projectID] = replaced
	return nil
}

func (s *MemoryStorage) ListChapters(projectID int64) ([]*types.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Chapter
	for _, ch := range s.chapters[projectID] {
		c := *ch
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChapterNumber < out[j].ChapterNumber })
	return out, nil
}

// ==================== Entities & mentions ====================

func (s *MemoryStorage) CreateEntity(e *types.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Importance == "" {
		e.Importance = types.ImportanceSecondary
	}
	now := time.Now()
	e.CreatedAt, e.UpdatedAt = now, now
	e.IsActive = true
	e.ID = s.id()
	s.entities[e.ID] = cloneEntity(e)
	return nil
}

func (s *MemoryStorage) GetEntity(id int64) (*types.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEntity(e), nil
}

func (s *MemoryStorage) ListEntities(projectID int64, filter EntityFilter) ([]*types.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wordCount := 0
	if p, ok := s.projects[projectID]; ok {
		wordCount = p.WordCount
	}

	chapterIDByNumber := make(map[int64]int)
	for _, ch := range s.chapters[projectID] {
		chapterIDByNumber[ch.ID] = ch.ChapterNumber
	}

	var out []*types.Entity
	for _, e := range s.entities {
		if e.ProjectID != projectID {
			continue
		}
		if !filter.IncludeInactive && !e.IsActive {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.MinMentions > 0 && e.MentionCount < filter.MinMentions {
			continue
		}
		if filter.MinRelevance > 0 && e.Relevance(wordCount) < filter.MinRelevance {
			continue
		}
		if filter.ChapterNumber > 0 {
			present := false
			for _, m := range s.mentions {
				if m.EntityID == e.ID && chapterIDByNumber[m.ChapterID] == filter.ChapterNumber {
					present = true
					break
				}
			}
			if !present {
				continue
			}
		}
		out = append(out, cloneEntity(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MentionCount != out[j].MentionCount {
			return out[i].MentionCount > out[j].MentionCount
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStorage) UpdateEntity(e *types.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[e.ID]; !ok {
		return ErrNotFound
	}
	e.UpdatedAt = time.Now()
	s.entities[e.ID] = cloneEntity(e)
	return nil
}

func (s *MemoryStorage) SoftDeleteEntity(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return ErrNotFound
	}
	e.IsActive = false
	e.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) CreateMentions(entityID int64, mentions []types.Mention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[entityID]
	if !ok {
		return ErrNotFound
	}
	for i := range mentions {
		m := mentions[i]
		m.EntityID = entityID
		m.ID = s.id()
		mentions[i].ID = m.ID
		s.mentions[m.ID] = &m
	}
	e.MentionCount += len(mentions)
	e.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) ListMentions(entityID int64) ([]*types.Mention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Mention
	for _, m := range s.mentions {
		if m.EntityID == entityID {
			c := *m
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartChar < out[j].StartChar })
	return out, nil
}

func (s *MemoryStorage) ListProjectMentions(projectID int64) ([]*types.Mention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Mention
	for _, m := range s.mentions {
		if e, ok := s.entities[m.EntityID]; ok && e.ProjectID == projectID {
			c := *m
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartChar < out[j].StartChar })
	return out, nil
}

func (s *MemoryStorage) ReassignMention(mentionID, newEntityID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mentions[mentionID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := s.entities[newEntityID]; !ok {
		return ErrNotFound
	}
	if m.EntityID == newEntityID {
		return nil
	}
	if old, ok := s.entities[m.EntityID]; ok {
		old.MentionCount--
	}
	s.entities[newEntityID].MentionCount++
	m.EntityID = newEntityID
	return nil
}

func (s *MemoryStorage) DeleteMention(mentionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mentions[mentionID]
	if !ok {
		return ErrNotFound
	}
	if e, ok := s.entities[m.EntityID]; ok {
		e.MentionCount--
	}
	delete(s.mentions, mentionID)
	return nil
}

func (s *MemoryStorage) MergeEntities(req MergeRequest) (*types.MergeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	primary, ok := s.entities[req.PrimaryEntityID]
	if !ok || primary.ProjectID != req.ProjectID {
		return nil, ErrNotFound
	}

	record := &types.MergeRecord{
		ProjectID:       req.ProjectID,
		PrimaryEntityID: req.PrimaryEntityID,
		MergedBy:        req.MergedBy,
		PrimaryBefore:   cloneEntity(primary),
		CreatedAt:       time.Now(),
	}

	for _, sourceID := range req.SourceEntityIDs {
		if sourceID == req.PrimaryEntityID {
			continue
		}
		source, ok := s.entities[sourceID]
		if !ok || source.ProjectID != req.ProjectID || !source.IsActive {
			continue
		}

		src := types.MergedSource{Entity: *cloneEntity(source)}
		for _, m := range s.mentions {
			if m.EntityID == sourceID {
				src.MentionIDs = append(src.MentionIDs, m.ID)
			}
		}
		for _, a := range s.attrs {
			if a.EntityID == sourceID {
				src.Attributes = append(src.Attributes, *a)
			}
		}
		sort.Slice(src.MentionIDs, func(i, j int) bool { return src.MentionIDs[i] < src.MentionIDs[j] })
		record.Sources = append(record.Sources, src)
		record.SourceEntityIDs = append(record.SourceEntityIDs, sourceID)

		for _, mid := range src.MentionIDs {
			s.mentions[mid].EntityID = req.PrimaryEntityID
		}
		for _, a := range s.attrs {
			if a.EntityID == sourceID {
				a.EntityID = req.PrimaryEntityID
			}
		}
		source.IsActive = false
		source.UpdatedAt = time.Now()
	}

	if len(record.SourceEntityIDs) == 0 {
		return nil, fmt.Errorf("no mergeable sources: %w", ErrConflict)
	}

	primary.Aliases = append([]string(nil), req.CombinedAliases...)
	primary.MergedFromIDs = append([]int64(nil), req.NewMergedFromIDs...)
	primary.MentionCount += req.TotalMentionDelta
	primary.UpdatedAt = time.Now()

	record.ID = s.id()
	s.merges[record.ID] = cloneMergeRecord(record)
	return cloneMergeRecord(record), nil
}

func (s *MemoryStorage) UndoMerge(mergeID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.merges[mergeID]
	if !ok {
		return ErrNotFound
	}
	if record.Undone {
		return fmt.Errorf("merge %d already undone: %w", mergeID, ErrConflict)
	}

	for _, src := range record.Sources {
		restored := src.Entity
		restored.IsActive = true
		restored.UpdatedAt = time.Now()
		s.entities[restored.ID] = cloneEntity(&restored)
		for _, mid := range src.MentionIDs {
			if m, ok := s.mentions[mid]; ok {
				m.EntityID = restored.ID
			}
		}
		for _, a := range src.Attributes {
			if attr, ok := s.attrs[a.ID]; ok {
				attr.EntityID = restored.ID
			}
		}
	}

	if record.PrimaryBefore != nil {
		if primary, ok := s.entities[record.PrimaryBefore.ID]; ok {
			primary.Aliases = append([]string(nil), record.PrimaryBefore.Aliases...)
			primary.MergedFromIDs = append([]int64(nil), record.PrimaryBefore.MergedFromIDs...)
			primary.MentionCount = record.PrimaryBefore.MentionCount
			primary.UpdatedAt = time.Now()
		}
	}

	record.Undone = true
	return nil
}

func (s *MemoryStorage) MergeHistory(projectID int64) ([]*types.MergeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.MergeRecord
	for _, r := range s.merges {
		if r.ProjectID == projectID {
			out = append(out, cloneMergeRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// ==================== Attributes ====================

func (s *MemoryStorage) CreateAttribute(a *types.Attribute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[a.EntityID]; !ok {
		return ErrNotFound
	}
	a.ID = s.id()
	c := *a
	s.attrs[a.ID] = &c
	return nil
}

func (s *MemoryStorage) ListAttributes(entityID int64) ([]*types.Attribute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Attribute
	for _, a := range s.attrs {
		if a.EntityID == entityID {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStorage) UpdateAttribute(a *types.Attribute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attrs[a.ID]; !ok {
		return ErrNotFound
	}
	c := *a
	s.attrs[a.ID] = &c
	return nil
}

func (s *MemoryStorage) DeleteAttribute(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attrs[id]; !ok {
		return ErrNotFound
	}
	delete(s.attrs, id)
	return nil
}

// ==================== Alerts ====================

func (s *MemoryStorage) CreateAlert(a *types.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Status == "" {
		a.Status = types.AlertNew
	}
	if a.ContentHash != "" {
		for _, existing := range s.alerts {
			if existing.ProjectID == a.ProjectID &&
				existing.ContentHash == a.ContentHash &&
				existing.Status.IsOpen() {
				return fmt.Errorf("open alert %d has the same content hash: %w", existing.ID, ErrConflict)
			}
		}
	}
	a.ID = s.id()
	s.alerts[a.ID] = cloneAlert(a)
	return nil
}

func (s *MemoryStorage) GetAlert(id int64) (*types.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAlert(a), nil
}

func (s *MemoryStorage) ListAlerts(projectID int64) ([]*types.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Alert
	for _, a := range s.alerts {
		if a.ProjectID == projectID {
			out = append(out, cloneAlert(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Chapter != out[j].Chapter {
			return out[i].Chapter < out[j].Chapter
		}
		if out[i].StartChar != out[j].StartChar {
			return out[i].StartChar < out[j].StartChar
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStorage) UpdateAlertStatus(id int64, status types.AlertStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	return nil
}

func (s *MemoryStorage) LinkAlert(id, previousSnapshotAlertID int64, matchConfidence float64, reason types.ResolutionReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return ErrNotFound
	}
	a.PreviousSnapshotAlertID = previousSnapshotAlertID
	a.MatchConfidence = matchConfidence
	a.ResolutionReason = reason
	return nil
}

func (s *MemoryStorage) ClearAlerts(projectID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.alerts {
		if a.ProjectID == projectID {
			delete(s.alerts, id)
		}
	}
	return nil
}

// ==================== Snapshots ====================

func (s *MemoryStorage) CreateSnapshot(projectID int64) (*types.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[projectID]
	if !ok {
		return nil, ErrNotFound
	}

	var alerts []*types.Alert
	for _, a := range s.alerts {
		if a.ProjectID == projectID {
			alerts = append(alerts, a)
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].ID < alerts[j].ID })

	var entities []*types.Entity
	for _, e := range s.entities {
		if e.ProjectID == projectID && e.IsActive {
			entities = append(entities, e)
		}
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })

	if len(alerts) == 0 && len(entities) == 0 {
		return nil, nil
	}

	snap := &types.Snapshot{
		ID:                  s.id(),
		ProjectID:           projectID,
		DocumentFingerprint: p.DocumentFingerprint,
		AlertCount:          len(alerts),
		EntityCount:         len(entities),
		Status:              "complete",
		CreatedAt:           time.Now(),
	}
	s.snapshots[snap.ID] = snap

	for _, a := range alerts {
		var names []string
		for _, eid := range a.EntityIDs {
			if e, ok := s.entities[eid]; ok {
				names = append(names, e.CanonicalName)
			}
		}
		s.snapAlerts[snap.ID] = append(s.snapAlerts[snap.ID], &types.SnapshotAlert{
			ID:                 s.id(),
			SnapshotID:         snap.ID,
			Type:               a.Type,
			Category:           a.Category,
			Severity:           a.Severity,
			Title:              a.Title,
			Description:        a.Description,
			Chapter:            a.Chapter,
			StartChar:          a.StartChar,
			EndChar:            a.EndChar,
			Excerpt:            a.Excerpt,
			ContentHash:        a.ContentHash,
			Confidence:         a.Confidence,
			EntityIDs:          append([]int64(nil), a.EntityIDs...),
			RelatedEntityNames: names,
		})
	}

	for _, e := range entities {
		s.snapEntities[snap.ID] = append(s.snapEntities[snap.ID], &types.SnapshotEntity{
			ID:               s.id(),
			SnapshotID:       snap.ID,
			OriginalEntityID: e.ID,
			Type:             e.Type,
			CanonicalName:    e.CanonicalName,
			Aliases:          append([]string(nil), e.Aliases...),
			Importance:       e.Importance,
			MentionCount:     e.MentionCount,
		})
	}

	texts := make(map[int]string)
	for _, ch := range s.chapters[projectID] {
		texts[ch.ChapterNumber] = ch.Content
	}
	s.snapChapters[snap.ID] = texts

	c := *snap
	return &c, nil
}

func (s *MemoryStorage) LatestSnapshot(projectID int64) (*types.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *types.Snapshot
	for _, snap := range s.snapshots {
		if snap.ProjectID != projectID || snap.Status != "complete" {
			continue
		}
		if latest == nil || snap.ID > latest.ID {
			latest = snap
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	c := *latest
	return &c, nil
}

func (s *MemoryStorage) ListSnapshots(projectID int64) ([]*types.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Snapshot
	for _, snap := range s.snapshots {
		if snap.ProjectID == projectID {
			c := *snap
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemoryStorage) SnapshotAlerts(snapshotID int64) ([]*types.SnapshotAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.SnapshotAlert
	for _, a := range s.snapAlerts[snapshotID] {
		c := *a
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemoryStorage) SnapshotEntities(snapshotID int64) ([]*types.SnapshotEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.SnapshotEntity
	for _, e := range s.snapEntities[snapshotID] {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemoryStorage) SnapshotChapterTexts(snapshotID int64) (map[int]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]string)
	for k, v := range s.snapChapters[snapshotID] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStorage) CleanupSnapshots(projectID int64, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keep < 1 {
		keep = 1
	}
	var ids []int64
	for _, snap := range s.snapshots {
		if snap.ProjectID == projectID {
			ids = append(ids, snap.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	if len(ids) <= keep {
		return 0, nil
	}
	removed := 0
	for _, id := range ids[keep:] {
		s.dropSnapshotLocked(id)
		removed++
	}
	return removed, nil
}

func (s *MemoryStorage) dropSnapshotLocked(id int64) {
	delete(s.snapshots, id)
	delete(s.snapAlerts, id)
	delete(s.snapEntities, id)
	delete(s.snapChapters, id)
}

// ==================== Corrections ====================

func (s *MemoryStorage) CreateCoreferenceCorrection(c *types.CoreferenceCorrection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.CreatedAt = time.Now()
	c.ID = s.id()
	cp := *c
	s.corefCorrections[c.ID] = &cp
	return nil
}

func (s *MemoryStorage) ListCoreferenceCorrections(projectID int64) ([]*types.CoreferenceCorrection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.CoreferenceCorrection
	for _, c := range s.corefCorrections {
		if c.ProjectID == projectID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStorage) DeleteCoreferenceCorrection(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.corefCorrections[id]; !ok {
		return ErrNotFound
	}
	delete(s.corefCorrections, id)
	return nil
}

func (s *MemoryStorage) CreateSpeakerCorrection(c *types.SpeakerCorrection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.CreatedAt = time.Now()
	c.ID = s.id()
	cp := *c
	s.speakerCorrections[c.ID] = &cp
	return nil
}

func (s *MemoryStorage) ListSpeakerCorrections(projectID int64) ([]*types.SpeakerCorrection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.SpeakerCorrection
	for _, c := range s.speakerCorrections {
		if c.ProjectID == projectID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStorage) DeleteSpeakerCorrection(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.speakerCorrections[id]; !ok {
		return ErrNotFound
	}
	delete(s.speakerCorrections, id)
	return nil
}

// ==================== Filters ====================

func (s *MemoryStorage) ListSystemPatterns() ([]*types.SystemPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.SystemPattern
	for _, p := range s.systemPatterns {
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStorage) SetSystemPatternActive(id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.systemPatterns[id]
	if !ok {
		return ErrNotFound
	}
	p.Active = active
	return nil
}

func (s *MemoryStorage) AddUserRejection(r *types.UserRejection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.CreatedAt = time.Now()
	r.ID = s.id()
	c := *r
	s.userRejections[r.ID] = &c
	return nil
}

func (s *MemoryStorage) ListUserRejections() ([]*types.UserRejection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.UserRejection
	for _, r := range s.userRejections {
		c := *r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStorage) RemoveUserRejection(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.userRejections[id]; !ok {
		return ErrNotFound
	}
	delete(s.userRejections, id)
	return nil
}

func (s *MemoryStorage) AddProjectOverride(o *types.ProjectOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.CreatedAt = time.Now()
	o.ID = s.id()
	c := *o
	s.projectOverride[o.ID] = &c
	return nil
}

func (s *MemoryStorage) ListProjectOverrides(projectID int64) ([]*types.ProjectOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.ProjectOverride
	for _, o := range s.projectOverride {
		if o.ProjectID == projectID {
			c := *o
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStorage) RemoveProjectOverride(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projectOverride[id]; !ok {
		return ErrNotFound
	}
	delete(s.projectOverride, id)
	return nil
}

// ==================== Collections ====================

func (s *MemoryStorage) CreateCollection(c *types.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	c.ID = s.id()
	cp := *c
	s.collections[c.ID] = &cp
	return nil
}

func (s *MemoryStorage) GetCollection(id int64) (*types.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	cp.ProjectCount = 0
	for _, p := range s.projects {
		if p.CollectionID == id {
			cp.ProjectCount++
		}
	}
	return &cp, nil
}

func (s *MemoryStorage) ListCollections() ([]*types.Collection, error) {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.collections))
	for id := range s.collections {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []*types.Collection
	for _, id := range ids {
		c, err := s.GetCollection(id)
		if err == nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStorage) DeleteCollection(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[id]; !ok {
		return ErrNotFound
	}
	for _, p := range s.projects {
		if p.CollectionID == id {
			p.CollectionID = 0
			p.CollectionOrder = 0
		}
	}
	for lid, l := range s.entityLinks {
		if l.CollectionID == id {
			delete(s.entityLinks, lid)
		}
	}
	delete(s.collections, id)
	return nil
}

func (s *MemoryStorage) AddProjectToCollection(collectionID, projectID int64, order int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collectionID]; !ok {
		return ErrNotFound
	}
	p, ok := s.projects[projectID]
	if !ok {
		return ErrNotFound
	}
	p.CollectionID = collectionID
	p.CollectionOrder = order
	return nil
}

func (s *MemoryStorage) RemoveProjectFromCollection(collectionID, projectID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return ErrNotFound
	}
	if p.CollectionID == collectionID {
		p.CollectionID = 0
		p.CollectionOrder = 0
	}
	for lid, l := range s.entityLinks {
		if l.CollectionID == collectionID &&
			(l.SourceProjectID == projectID || l.TargetProjectID == projectID) {
			delete(s.entityLinks, lid)
		}
	}
	return nil
}

func (s *MemoryStorage) CreateEntityLink(l *types.EntityLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pid := range []int64{l.SourceProjectID, l.TargetProjectID} {
		p, ok := s.projects[pid]
		if !ok {
			return ErrNotFound
		}
		if p.CollectionID != l.CollectionID {
			return fmt.Errorf("project %d is not in collection %d: %w", pid, l.CollectionID, ErrConflict)
		}
	}
	for _, existing := range s.entityLinks {
		if existing.SourceEntityID == l.SourceEntityID && existing.TargetEntityID == l.TargetEntityID {
			return fmt.Errorf("entity link already exists: %w", ErrConflict)
		}
	}
	l.CreatedAt = time.Now()
	l.ID = s.id()
	c := *l
	s.entityLinks[l.ID] = &c
	return nil
}

func (s *MemoryStorage) ListEntityLinks(collectionID int64) ([]*types.EntityLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.EntityLink
	for _, l := range s.entityLinks {
		if l.CollectionID == collectionID {
			c := *l
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStorage) DeleteEntityLink(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entityLinks[id]; !ok {
		return ErrNotFound
	}
	delete(s.entityLinks, id)
	return nil
}

// ==================== Identity ====================

func (s *MemoryStorage) RecordIdentityCheck(c *types.IdentityCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.CreatedAt = time.Now()
	c.ID = s.id()
	cp := *c
	s.identityChecks = append(s.identityChecks, &cp)
	return nil
}

func (s *MemoryStorage) LastIdentityCheck(projectID int64) (*types.IdentityCheck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.identityChecks) - 1; i >= 0; i-- {
		if s.identityChecks[i].ProjectID == projectID {
			c := *s.identityChecks[i]
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) UncertainCountSince(licenseSubject string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.identityChecks {
		if c.LicenseSubject == licenseSubject &&
			c.Classification == types.IdentityUncertain &&
			!c.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStorage) SetReviewRequired(licenseSubject string, required bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviewRequired[licenseSubject] = required
	return nil
}

func (s *MemoryStorage) ReviewRequired(licenseSubject string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reviewRequired[licenseSubject], nil
}

// ==================== Voice profiles ====================

func (s *MemoryStorage) UpsertVoiceProfile(p *types.VoiceProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.UpdatedAt = time.Now()
	c := *p
	s.voiceProfiles[[2]int64{p.ProjectID, p.EntityID}] = &c
	return nil
}

func (s *MemoryStorage) GetVoiceProfile(projectID, entityID int64) (*types.VoiceProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.voiceProfiles[[2]int64{projectID, entityID}]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}

func (s *MemoryStorage) ListVoiceProfiles(projectID int64) ([]*types.VoiceProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.VoiceProfile
	for key, p := range s.voiceProfiles {
		if key[0] == projectID {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

func (s *MemoryStorage) DeleteVoiceProfiles(projectID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.voiceProfiles {
		if key[0] == projectID {
			delete(s.voiceProfiles, key)
		}
	}
	return nil
}

// ==================== Timeline ====================

func (s *MemoryStorage) ReplaceTimeline(projectID int64, events []types.TimelineEvent, markers []types.TemporalMarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	evs := make([]*types.TimelineEvent, 0, len(events))
	for i := range events {
		e := events[i]
		e.ProjectID = projectID
		e.ID = s.id()
		events[i].ID = e.ID
		evs = append(evs, &e)
	}
	mks := make([]*types.TemporalMarker, 0, len(markers))
	for i := range markers {
		m := markers[i]
		m.ProjectID = projectID
		m.ID = s.id()
		markers[i].ID = m.ID
		mks = append(mks, &m)
	}
	s.timelineEvents[projectID] = evs
	s.temporalMarkers[projectID] = mks
	return nil
}

func (s *MemoryStorage) ListTimelineEvents(projectID int64) ([]*types.TimelineEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.TimelineEvent
	for _, e := range s.timelineEvents[projectID] {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemoryStorage) ListTemporalMarkers(projectID int64) ([]*types.TemporalMarker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.TemporalMarker
	for _, m := range s.temporalMarkers[projectID] {
		c := *m
		out = append(out, &c)
	}
	return out, nil
}

// ==================== Editorial ====================

func (s *MemoryStorage) UpsertEditorialRules(r *types.EditorialRules) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if existing, ok := s.editorialRules[r.ProjectID]; ok {
		r.CreatedAt = existing.CreatedAt
	} else if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	c := *r
	s.editorialRules[r.ProjectID] = &c
	return nil
}

func (s *MemoryStorage) GetEditorialRules(projectID int64) (*types.EditorialRules, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.editorialRules[projectID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *r
	return &c, nil
}

func (s *MemoryStorage) CreateFocalization(f *types.Focalization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.ID = s.id()
	c := *f
	s.focalizations[f.ID] = &c
	return nil
}

func (s *MemoryStorage) ListFocalizations(projectID int64) ([]*types.Focalization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Focalization
	for _, f := range s.focalizations {
		if f.ProjectID == projectID {
			c := *f
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChapterNumber != out[j].ChapterNumber {
			return out[i].ChapterNumber < out[j].ChapterNumber
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStorage) DeleteFocalization(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.focalizations[id]; !ok {
		return ErrNotFound
	}
	delete(s.focalizations, id)
	return nil
}

// ==================== clone helpers ====================

func cloneProject(p *types.Project) *types.Project {
	c := *p
	if p.Settings != nil {
		c.Settings = make(map[string]map[string]any, len(p.Settings))
		for k, v := range p.Settings {
			inner := make(map[string]any, len(v))
			for ik, iv := range v {
				inner[ik] = iv
			}
			c.Settings[k] = inner
		}
	}
	return &c
}

func cloneEntity(e *types.Entity) *types.Entity {
	c := *e
	c.Aliases = append([]string(nil), e.Aliases...)
	c.MergedFromIDs = append([]int64(nil), e.MergedFromIDs...)
	return &c
}

func cloneAlert(a *types.Alert) *types.Alert {
	c := *a
	c.EntityIDs = append([]int64(nil), a.EntityIDs...)
	if a.ExtraData != nil {
		c.ExtraData = make(map[string]any, len(a.ExtraData))
		for k, v := range a.ExtraData {
			c.ExtraData[k] = v
		}
	}
	return &c
}

func cloneMergeRecord(r *types.MergeRecord) *types.MergeRecord {
	c := *r
	c.SourceEntityIDs = append([]int64(nil), r.SourceEntityIDs...)
	c.Sources = make([]types.MergedSource, len(r.Sources))
	for i, src := range r.Sources {
		cs := src
		cs.Entity = *cloneEntity(&src.Entity)
		cs.MentionIDs = append([]int64(nil), src.MentionIDs...)
		cs.Attributes = append([]types.Attribute(nil), src.Attributes...)
		c.Sources[i] = cs
	}
	if r.PrimaryBefore != nil {
		c.PrimaryBefore = cloneEntity(r.PrimaryBefore)
	}
	return &c
}

// FilterDecision applies the three-layer mention filter with the
// documented precedence: project override > user global rejection >
// system pattern > allow.
func FilterDecision(text string, overrides []*types.ProjectOverride, rejections []*types.UserRejection, patterns []*types.SystemPattern) types.FilterAction {
	for _, o := range overrides {
		if equalsFold(o.Text, text) {
			return o.Action
		}
	}
	for _, r := range rejections {
		if equalsFold(r.Text, text) {
			return types.FilterReject
		}
	}
	for _, p := range patterns {
		if !p.Active {
			continue
		}
		if re, err := regexp.Compile(p.Pattern); err == nil && re.MatchString(text) {
			return types.FilterReject
		}
	}
	return types.FilterAllow
}

func equalsFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
