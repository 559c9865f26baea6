// Package collections manages sagas: groups of projects, entity links
// across books, link suggestions and cross-book attribute
// inconsistency analysis.
package collections

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/pauubach/narrassist/internal/entity"
	"github.com/pauubach/narrassist/internal/storage"
	"github.com/pauubach/narrassist/internal/types"
)

// warnProjectsThreshold triggers a soft warning; large sagas slow the
// cross-book sweep but are never hard-limited.
const warnProjectsThreshold = 10

// suggestionThreshold is the minimum similarity for a link suggestion.
const suggestionThreshold = 0.7

// Service runs collection-level analysis on top of the store.
type Service struct {
	store    storage.Storage
	exporter GraphExporter
	logger   *zap.Logger
}

func NewService(store storage.Storage, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, exporter: NoopExporter{}, logger: logger}
}

// SetExporter replaces the graph exporter; a nil exporter restores the
// no-op.
func (s *Service) SetExporter(exporter GraphExporter) {
	if exporter == nil {
		exporter = NoopExporter{}
	}
	s.exporter = exporter
}

// Export publishes the collection's entity graph through the
// configured exporter.
func (s *Service) Export(ctx context.Context, collectionID int64) error {
	if _, err := s.store.GetCollection(collectionID); err != nil {
		return err
	}
	return s.exporter.ExportCollection(ctx, collectionID)
}

// AddProjectWarning describes the soft warning returned when a saga
// grows large.
type AddProjectWarning struct {
	Warning string `json:"warning,omitempty"`
}

// AddProject attaches a project to a collection, returning a soft
// warning past the size threshold.
func (s *Service) AddProject(collectionID, projectID int64, order int) (*AddProjectWarning, error) {
	col, err := s.store.GetCollection(collectionID)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddProjectToCollection(collectionID, projectID, order); err != nil {
		return nil, err
	}
	out := &AddProjectWarning{}
	if col.ProjectCount+1 > warnProjectsThreshold {
		out.Warning = fmt.Sprintf(
			"Colección con %d proyectos. El análisis cross-book puede tardar más.",
			col.ProjectCount+1)
	}
	return out, nil
}

// LinkSuggestion proposes that two entities in different books are the
// same referent.
type LinkSuggestion struct {
	SourceEntityID   int64           `json:"source_entity_id"`
	SourceEntityName string          `json:"source_entity_name"`
	SourceProjectID  int64           `json:"source_project_id"`
	TargetEntityID   int64           `json:"target_entity_id"`
	TargetEntityName string          `json:"target_entity_name"`
	TargetProjectID  int64           `json:"target_project_id"`
	Similarity       float64         `json:"similarity"`
	MatchType        types.MatchType `json:"match_type"`
}

// SuggestLinks pairs entities across every project pair of a
// collection with exact and fuzzy name matching, skipping pairs
// already linked.
func (s *Service) SuggestLinks(collectionID int64) ([]LinkSuggestion, error) {
	projects, err := s.collectionProjects(collectionID)
	if err != nil {
		return nil, err
	}

	existing := make(map[[2]int64]bool)
	links, err := s.store.ListEntityLinks(collectionID)
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		existing[[2]int64{l.SourceEntityID, l.TargetEntityID}] = true
		existing[[2]int64{l.TargetEntityID, l.SourceEntityID}] = true
	}

	entitiesByProject := make(map[int64][]*types.Entity, len(projects))
	for _, p := range projects {
		es, err := s.store.ListEntities(p.ID, storage.EntityFilter{MinMentions: 2})
		if err != nil {
			return nil, err
		}
		entitiesByProject[p.ID] = es
	}

	var out []LinkSuggestion
	for i := 0; i < len(projects); i++ {
		for j := i + 1; j < len(projects); j++ {
			src, tgt := projects[i], projects[j]
			for _, se := range entitiesByProject[src.ID] {
				for _, te := range entitiesByProject[tgt.ID] {
					if se.Type != te.Type || existing[[2]int64{se.ID, te.ID}] {
						continue
					}
					sim := 0.0
					matchType := types.MatchFuzzy
					if entity.ExactMatch(se.CanonicalName, te.CanonicalName) {
						sim, matchType = 1, types.MatchExact
					} else {
						sim = entity.FuzzyMatch(se.CanonicalName, te.CanonicalName, se.Aliases, te.Aliases)
					}
					if sim < suggestionThreshold {
						continue
					}
					out = append(out, LinkSuggestion{
						SourceEntityID:   se.ID,
						SourceEntityName: se.CanonicalName,
						SourceProjectID:  src.ID,
						TargetEntityID:   te.ID,
						TargetEntityName: te.CanonicalName,
						TargetProjectID:  tgt.ID,
						Similarity:       sim,
						MatchType:        matchType,
					})
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out, nil
}

// Inconsistency is a linked entity whose attributes disagree across
// books.
type Inconsistency struct {
	EntityName    string                  `json:"entity_name"`
	AttributeKey  string                  `json:"attribute_key"`
	Category      types.AttributeCategory `json:"attribute_type"`
	ValueBookA    string                  `json:"value_book_a"`
	ValueBookB    string                  `json:"value_book_b"`
	BookAName     string                  `json:"book_a_name"`
	BookBName     string                  `json:"book_b_name"`
	Confidence    float64                 `json:"confidence"`
}

// CrossBookReport is the result of analyzing a collection.
type CrossBookReport struct {
	CollectionID    int64           `json:"collection_id"`
	CollectionName  string          `json:"collection_name"`
	Inconsistencies []Inconsistency `json:"inconsistencies"`
	LinksAnalyzed   int             `json:"entity_links_analyzed"`
	ProjectsAnalyzed int            `json:"projects_analyzed"`
}

// Analyze compares attributes of every linked entity pair: the same
// attribute key with different values across books is an
// inconsistency.
func (s *Service) Analyze(collectionID int64) (*CrossBookReport, error) {
	col, err := s.store.GetCollection(collectionID)
	if err != nil {
		return nil, err
	}
	report := &CrossBookReport{
		CollectionID:   collectionID,
		CollectionName: col.Name,
	}

	links, err := s.store.ListEntityLinks(collectionID)
	if err != nil {
		return nil, err
	}
	report.LinksAnalyzed = len(links)

	projectNames := make(map[int64]string)
	seenProjects := make(map[int64]bool)
	for _, l := range links {
		for _, pid := range []int64{l.SourceProjectID, l.TargetProjectID} {
			if !seenProjects[pid] {
				seenProjects[pid] = true
				if p, err := s.store.GetProject(pid); err == nil {
					projectNames[pid] = p.Name
				}
			}
		}
	}
	report.ProjectsAnalyzed = len(seenProjects)

	for _, l := range links {
		source, err := s.store.GetEntity(l.SourceEntityID)
		if err != nil {
			continue
		}
		srcAttrs, err := s.store.ListAttributes(l.SourceEntityID)
		if err != nil {
			continue
		}
		tgtAttrs, err := s.store.ListAttributes(l.TargetEntityID)
		if err != nil {
			continue
		}

		tgtByKey := make(map[string]*types.Attribute, len(tgtAttrs))
		for _, a := range tgtAttrs {
			tgtByKey[a.Key] = a
		}
		for _, sa := range srcAttrs {
			ta, ok := tgtByKey[sa.Key]
			if !ok || sa.Value == ta.Value {
				continue
			}
			report.Inconsistencies = append(report.Inconsistencies, Inconsistency{
				EntityName:   source.CanonicalName,
				AttributeKey: sa.Key,
				Category:     sa.Category,
				ValueBookA:   sa.Value,
				ValueBookB:   ta.Value,
				BookAName:    projectNames[l.SourceProjectID],
				BookBName:    projectNames[l.TargetProjectID],
				Confidence:   minF(sa.Confidence, ta.Confidence),
			})
		}
	}

	s.logger.Info("cross-book analysis done",
		zap.Int64("collection_id", collectionID),
		zap.Int("links", report.LinksAnalyzed),
		zap.Int("inconsistencies", len(report.Inconsistencies)))
	return report, nil
}

func (s *Service) collectionProjects(collectionID int64) ([]*types.Project, error) {
	all, err := s.store.ListProjects()
	if err != nil {
		return nil, err
	}
	var out []*types.Project
	for _, p := range all {
		if p.CollectionID == collectionID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CollectionOrder < out[j].CollectionOrder })
	return out, nil
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
