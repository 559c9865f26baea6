package snapshot

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pauubach/narrassist/internal/entity"
	"github.com/pauubach/narrassist/internal/storage"
	"github.com/pauubach/narrassist/internal/types"
)

// Match-confidence tiers, highest to lowest: exact hash, explicit track
// change, removed-paragraph proximity, fuzzy entity-name key, then
// title match and modified-area proximity, and the detector-improved
// floor.
const (
	confidenceExactHash   = 1.0
	confidenceEntityNames = 0.8
	confidenceTitleMatch  = 0.7
	confidenceTrackChange = 0.95
	confidenceRemoved     = 0.9
	confidenceModified    = 0.7
	confidenceDetector    = 0.5

	fuzzyEntityThreshold = 0.7
	modifiedAreaMargin   = 200
)

// AlertDiff summarizes one alert in the comparison report.
type AlertDiff struct {
	Type             string                 `json:"alert_type"`
	Category         string                 `json:"category"`
	Severity         types.AlertSeverity    `json:"severity"`
	Title            string                 `json:"title"`
	Chapter          int                    `json:"chapter"`
	StartChar        int                    `json:"start_char"`
	EndChar          int                    `json:"end_char"`
	Confidence       float64                `json:"confidence"`
	ContentHash      string                 `json:"content_hash"`
	ResolutionReason types.ResolutionReason `json:"resolution_reason,omitempty"`
	MatchConfidence  float64                `json:"match_confidence,omitempty"`
}

// EntityDiff summarizes one entity in the comparison report.
type EntityDiff struct {
	CanonicalName string           `json:"canonical_name"`
	Type          types.EntityType `json:"entity_type"`
	Importance    types.Importance `json:"importance"`
	MentionCount  int              `json:"mention_count"`
}

// Report is the outcome of comparing the current state against the
// latest snapshot.
type Report struct {
	ProjectID                  int64     `json:"project_id"`
	SnapshotID                 int64     `json:"snapshot_id"`
	SnapshotCreatedAt          time.Time `json:"snapshot_created_at"`
	DocumentFingerprintChanged bool      `json:"document_fingerprint_changed"`

	AlertsNew       []AlertDiff `json:"alerts_new"`
	AlertsResolved  []AlertDiff `json:"alerts_resolved"`
	AlertsUnchanged int         `json:"alerts_unchanged"`

	EntitiesAdded     []EntityDiff `json:"entities_added"`
	EntitiesRemoved   []EntityDiff `json:"entities_removed"`
	EntitiesUnchanged int          `json:"entities_unchanged"`

	TotalAlertsBefore   int `json:"total_alerts_before"`
	TotalAlertsAfter    int `json:"total_alerts_after"`
	TotalEntitiesBefore int `json:"total_entities_before"`
	TotalEntitiesAfter  int `json:"total_entities_after"`
}

// Comparator runs the cross-run comparison.
type Comparator struct {
	store  storage.Storage
	logger *zap.Logger
}

func NewComparator(store storage.Storage, logger *zap.Logger) *Comparator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Comparator{store: store, logger: logger}
}

// Compare builds the report against the latest snapshot. Returns nil
// when there is no snapshot or the analysis is not completed.
func (c *Comparator) Compare(projectID int64) (*Report, error) {
	snap, err := c.store.LatestSnapshot(projectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	project, err := c.store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if project.AnalysisStatus != types.StatusCompleted {
		c.logger.Warn("skipping comparison: analysis not completed",
			zap.Int64("project_id", projectID),
			zap.String("status", string(project.AnalysisStatus)))
		return nil, nil
	}

	fpChanged := snap.DocumentFingerprint != "" &&
		project.DocumentFingerprint != snap.DocumentFingerprint

	// Content diff runs only when the manuscript actually changed.
	var docDiff *DocumentDiff
	if fpChanged {
		oldTexts, err := c.store.SnapshotChapterTexts(snap.ID)
		if err == nil && len(oldTexts) > 0 {
			chapters, err := c.store.ListChapters(projectID)
			if err == nil {
				newTexts := make(map[int]string, len(chapters))
				for _, ch := range chapters {
					newTexts[ch.ChapterNumber] = ch.Content
				}
				docDiff = ComputeChapterDiffs(oldTexts, newTexts)
			}
		}
	}

	// Track changes apply only to .docx sources.
	var delRanges [][2]int
	if strings.EqualFold(filepath.Ext(project.DocumentPath), ".docx") {
		if revisions, err := ParseDocxRevisions(project.DocumentPath); err == nil && revisions.HasRevisions() {
			delRanges = DeletionCharRanges(revisions, nil)
			c.logger.Info("track changes parsed",
				zap.Int("revisions", len(revisions.Revisions)),
				zap.Int("deletion_ranges", len(delRanges)))
		}
	}

	oldAlerts, err := c.store.SnapshotAlerts(snap.ID)
	if err != nil {
		return nil, err
	}
	currentAlerts, err := c.store.ListAlerts(projectID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ProjectID:                  projectID,
		SnapshotID:                 snap.ID,
		SnapshotCreatedAt:          snap.CreatedAt,
		DocumentFingerprintChanged: fpChanged,
		TotalAlertsBefore:          len(oldAlerts),
		TotalAlertsAfter:           len(currentAlerts),
	}

	c.diffAlerts(report, oldAlerts, currentAlerts, docDiff, delRanges)

	oldEntities, err := c.store.SnapshotEntities(snap.ID)
	if err != nil {
		return nil, err
	}
	currentEntities, err := c.store.ListEntities(projectID, storage.EntityFilter{})
	if err != nil {
		return nil, err
	}
	report.TotalEntitiesBefore = len(oldEntities)
	report.TotalEntitiesAfter = len(currentEntities)
	c.diffEntities(report, oldEntities, currentEntities)

	return report, nil
}

// CompareAndLink runs Compare and then writes alert lineage
// (previous_snapshot_alert_id, match_confidence, resolution_reason)
// back to live alerts.
func (c *Comparator) CompareAndLink(projectID int64) (*Report, error) {
	report, err := c.Compare(projectID)
	if err != nil || report == nil {
		return report, err
	}
	if err := c.writeAlertLinks(projectID, report.SnapshotID); err != nil {
		// Linking is best-effort; the report stands on its own.
		c.logger.Warn("alert linking failed", zap.Error(err))
	}
	return report, nil
}

// diffAlerts runs the four matching passes:
//  1. exact content hash,
//  2. fuzzy key (same type+chapter AND overlapping entity names or
//     identical title),
//  3. proximity against the content diff,
//  4. docx w:del ranges.
//
// Unmatched old alerts left over get reason detector_improved;
// unmatched current alerts are new.
func (c *Comparator) diffAlerts(report *Report, oldAlerts []*types.SnapshotAlert, current []*types.Alert, docDiff *DocumentDiff, delRanges [][2]int) {
	oldMatched := make(map[int]bool)
	newMatched := make(map[int]bool)

	// Pass 1: exact content hash.
	oldByHash := make(map[string][]int)
	for i, oa := range oldAlerts {
		if oa.ContentHash != "" {
			oldByHash[oa.ContentHash] = append(oldByHash[oa.ContentHash], i)
		}
	}
	currentNames := c.currentEntityNames(current)
	for j, ca := range current {
		if ca.ContentHash == "" {
			continue
		}
		for _, i := range oldByHash[ca.ContentHash] {
			if !oldMatched[i] {
				oldMatched[i] = true
				newMatched[j] = true
				break
			}
		}
	}

	// Pass 2: fuzzy key.
	for j, ca := range current {
		if newMatched[j] {
			continue
		}
		for i, oa := range oldAlerts {
			if oldMatched[i] {
				continue
			}
			if ca.Type != oa.Type || ca.Chapter != oa.Chapter {
				continue
			}
			if namesOverlap(oa.RelatedEntityNames, currentNames[j]) ||
				(oa.Title != "" && oa.Title == ca.Title) {
				oldMatched[i] = true
				newMatched[j] = true
				break
			}
		}
	}

	// Passes 3 and 4 classify the remaining old alerts.
	reasons := make(map[int]types.ResolutionReason)
	confidences := make(map[int]float64)

	if docDiff != nil {
		for i, oa := range oldAlerts {
			if oldMatched[i] || oa.StartChar == 0 && oa.EndChar == 0 {
				continue
			}
			switch {
			case docDiff.InRemovedRange(oa.Chapter, oa.StartChar, oa.EndChar):
				reasons[i] = types.ResolutionTextChanged
				confidences[i] = confidenceRemoved
			case docDiff.InModifiedArea(oa.Chapter, oa.StartChar, oa.EndChar, modifiedAreaMargin):
				reasons[i] = types.ResolutionTextChanged
				confidences[i] = confidenceModified
			}
		}
	}

	for i, oa := range oldAlerts {
		if oldMatched[i] || reasons[i] != "" {
			continue
		}
		for _, r := range delRanges {
			if oa.StartChar < r[1] && oa.EndChar > r[0] {
				reasons[i] = types.ResolutionTextChanged
				confidences[i] = confidenceTrackChange
				break
			}
		}
	}

	for i := range oldAlerts {
		if !oldMatched[i] && reasons[i] == "" {
			reasons[i] = types.ResolutionDetectorImproved
			confidences[i] = confidenceDetector
		}
	}

	for j, ca := range current {
		if newMatched[j] {
			continue
		}
		report.AlertsNew = append(report.AlertsNew, AlertDiff{
			Type: ca.Type, Category: ca.Category, Severity: ca.Severity,
			Title: ca.Title, Chapter: ca.Chapter,
			StartChar: ca.StartChar, EndChar: ca.EndChar,
			Confidence: ca.Confidence, ContentHash: ca.ContentHash,
		})
	}
	for i, oa := range oldAlerts {
		if oldMatched[i] {
			continue
		}
		report.AlertsResolved = append(report.AlertsResolved, AlertDiff{
			Type: oa.Type, Category: oa.Category, Severity: oa.Severity,
			Title: oa.Title, Chapter: oa.Chapter,
			StartChar: oa.StartChar, EndChar: oa.EndChar,
			Confidence: oa.Confidence, ContentHash: oa.ContentHash,
			ResolutionReason: reasons[i], MatchConfidence: confidences[i],
		})
	}
	report.AlertsUnchanged = len(oldMatched)
}

// diffEntities runs exact canonical-name-plus-type, then fuzzy n-gram
// Jaccard/containment at the 0.7 threshold on same type.
func (c *Comparator) diffEntities(report *Report, oldEntities []*types.SnapshotEntity, current []*types.Entity) {
	oldMatched := make(map[int]bool)
	newMatched := make(map[int]bool)

	for j, ce := range current {
		for i, oe := range oldEntities {
			if oldMatched[i] || ce.Type != oe.Type {
				continue
			}
			if entity.ExactMatch(ce.CanonicalName, oe.CanonicalName) {
				oldMatched[i] = true
				newMatched[j] = true
				break
			}
		}
	}

	for j, ce := range current {
		if newMatched[j] {
			continue
		}
		for i, oe := range oldEntities {
			if oldMatched[i] || ce.Type != oe.Type {
				continue
			}
			if entity.FuzzyMatch(ce.CanonicalName, oe.CanonicalName, ce.Aliases, oe.Aliases) >= fuzzyEntityThreshold {
				oldMatched[i] = true
				newMatched[j] = true
				break
			}
		}
	}

	for j, ce := range current {
		if !newMatched[j] {
			report.EntitiesAdded = append(report.EntitiesAdded, EntityDiff{
				CanonicalName: ce.CanonicalName, Type: ce.Type,
				Importance: ce.Importance, MentionCount: ce.MentionCount,
			})
		}
	}
	for i, oe := range oldEntities {
		if !oldMatched[i] {
			report.EntitiesRemoved = append(report.EntitiesRemoved, EntityDiff{
				CanonicalName: oe.CanonicalName, Type: oe.Type,
				Importance: oe.Importance, MentionCount: oe.MentionCount,
			})
		}
	}
	report.EntitiesUnchanged = len(oldMatched)
}

// writeAlertLinks matches current alerts to their snapshot
// predecessors (hash, then type+chapter+title) and persists the links.
func (c *Comparator) writeAlertLinks(projectID, snapshotID int64) error {
	oldAlerts, err := c.store.SnapshotAlerts(snapshotID)
	if err != nil {
		return err
	}
	if len(oldAlerts) == 0 {
		return nil
	}
	current, err := c.store.ListAlerts(projectID)
	if err != nil {
		return err
	}

	oldByHash := make(map[string]int64)
	oldByKey := make(map[string]int64)
	for _, oa := range oldAlerts {
		if oa.ContentHash != "" {
			oldByHash[oa.ContentHash] = oa.ID
		}
		oldByKey[alertKey(oa.Type, oa.Chapter, oa.Title)] = oa.ID
	}

	linked := 0
	for _, ca := range current {
		snapAlertID, confidence := int64(0), 0.0
		if id, ok := oldByHash[ca.ContentHash]; ok && ca.ContentHash != "" {
			snapAlertID, confidence = id, confidenceExactHash
		} else if id, ok := oldByKey[alertKey(ca.Type, ca.Chapter, ca.Title)]; ok {
			snapAlertID, confidence = id, confidenceTitleMatch
		}
		if snapAlertID == 0 {
			continue
		}
		if err := c.store.LinkAlert(ca.ID, snapAlertID, confidence, ca.ResolutionReason); err != nil {
			return err
		}
		linked++
	}
	c.logger.Info("alert lineage written",
		zap.Int64("project_id", projectID), zap.Int("links", linked))
	return nil
}

func alertKey(alertType string, chapter int, title string) string {
	return fmt.Sprintf("%s\x00%d\x00%s", alertType, chapter, title)
}

func (c *Comparator) currentEntityNames(alerts []*types.Alert) map[int][]string {
	out := make(map[int][]string, len(alerts))
	cache := make(map[int64]string)
	for j, a := range alerts {
		for _, eid := range a.EntityIDs {
			name, ok := cache[eid]
			if !ok {
				if e, err := c.store.GetEntity(eid); err == nil {
					name = e.CanonicalName
				}
				cache[eid] = name
			}
			if name != "" {
				out[j] = append(out[j], name)
			}
		}
	}
	return out
}

func namesOverlap(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, n := range a {
		set[entity.NormalizeName(n)] = true
	}
	for _, n := range b {
		if set[entity.NormalizeName(n)] {
			return true
		}
	}
	return false
}
