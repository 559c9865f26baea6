package server

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pauubach/narrassist/internal/attributes"
	"github.com/pauubach/narrassist/internal/entity"
	"github.com/pauubach/narrassist/internal/storage"
	"github.com/pauubach/narrassist/internal/types"
)

type ListEntitiesRequest struct {
	ProjectID     int64   `json:"project_id"`
	Type          string  `json:"entity_type,omitempty"`
	MinMentions   int     `json:"min_mentions,omitempty"`
	MinRelevance  float64 `json:"min_relevance,omitempty"`
	ChapterNumber int     `json:"chapter_number,omitempty"`
}

type EntityWithRelevance struct {
	*types.Entity
	Relevance float64 `json:"relevance"`
}

type ListEntitiesResponse struct {
	Entities []EntityWithRelevance `json:"entities"`
	Count    int                   `json:"count"`
}

func (s *Server) handleListEntities(ctx context.Context, req *mcp.CallToolRequest, input ListEntitiesRequest) (*mcp.CallToolResult, *ListEntitiesResponse, error) {
	project, err := s.store.GetProject(input.ProjectID)
	if err != nil {
		return nil, nil, userError(err, "Proyecto no encontrado")
	}
	entities, err := s.store.ListEntities(input.ProjectID, storage.EntityFilter{
		Type:          types.EntityType(input.Type),
		MinMentions:   input.MinMentions,
		MinRelevance:  input.MinRelevance,
		ChapterNumber: input.ChapterNumber,
	})
	if err != nil {
		return nil, nil, err
	}
	out := make([]EntityWithRelevance, len(entities))
	for i, e := range entities {
		out[i] = EntityWithRelevance{Entity: e, Relevance: e.Relevance(project.WordCount)}
	}
	return &mcp.CallToolResult{}, &ListEntitiesResponse{Entities: out, Count: len(out)}, nil
}

type EntityRequest struct {
	ProjectID int64 `json:"project_id"`
	EntityID  int64 `json:"entity_id"`
}

type EntityDetailResponse struct {
	Entity     EntityWithRelevance `json:"entity"`
	Attributes []*types.Attribute  `json:"attributes"`
}

func (s *Server) handleGetEntity(ctx context.Context, req *mcp.CallToolRequest, input EntityRequest) (*mcp.CallToolResult, *EntityDetailResponse, error) {
	e, err := s.entityInProject(input.ProjectID, input.EntityID)
	if err != nil {
		return nil, nil, err
	}
	project, err := s.store.GetProject(input.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	attrs, err := s.store.ListAttributes(e.ID)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{}, &EntityDetailResponse{
		Entity:     EntityWithRelevance{Entity: e, Relevance: e.Relevance(project.WordCount)},
		Attributes: attrs,
	}, nil
}

type UpdateEntityRequest struct {
	ProjectID     int64  `json:"project_id"`
	EntityID      int64  `json:"entity_id"`
	CanonicalName string `json:"canonical_name,omitempty"`
	Type          string `json:"entity_type,omitempty"`
	Importance    string `json:"importance,omitempty"`
}

func (s *Server) handleUpdateEntity(ctx context.Context, req *mcp.CallToolRequest, input UpdateEntityRequest) (*mcp.CallToolResult, *ProjectResponse, error) {
	e, err := s.entityInProject(input.ProjectID, input.EntityID)
	if err != nil {
		return nil, nil, err
	}
	if input.CanonicalName != "" {
		e.CanonicalName = input.CanonicalName
	}
	if input.Type != "" {
		e.Type = types.EntityType(input.Type)
	}
	if input.Importance != "" {
		e.Importance = types.Importance(input.Importance)
	}
	if err := s.store.UpdateEntity(e); err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{}, &ProjectResponse{}, nil
}

func (s *Server) handleDeleteEntity(ctx context.Context, req *mcp.CallToolRequest, input EntityRequest) (*mcp.CallToolResult, *ProjectResponse, error) {
	if _, err := s.entityInProject(input.ProjectID, input.EntityID); err != nil {
		return nil, nil, err
	}
	if err := s.store.SoftDeleteEntity(input.EntityID); err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{}, &ProjectResponse{}, nil
}

type EntityMentionsRequest struct {
	ProjectID int64 `json:"project_id"`
	EntityID  int64 `json:"entity_id"`
	// DedupOverlaps drops mentions whose spans overlap an earlier,
	// longer mention (IoU above 0.5).
	DedupOverlaps bool `json:"dedup_overlaps,omitempty"`
}

type EntityMentionsResponse struct {
	Mentions []*types.Mention `json:"mentions"`
	Count    int              `json:"count"`
}

func (s *Server) handleGetEntityMentions(ctx context.Context, req *mcp.CallToolRequest, input EntityMentionsRequest) (*mcp.CallToolResult, *EntityMentionsResponse, error) {
	if _, err := s.entityInProject(input.ProjectID, input.EntityID); err != nil {
		return nil, nil, err
	}
	mentions, err := s.store.ListMentions(input.EntityID)
	if err != nil {
		return nil, nil, err
	}
	if input.DedupOverlaps {
		mentions = dedupOverlapping(mentions)
	}
	return &mcp.CallToolResult{}, &EntityMentionsResponse{Mentions: mentions, Count: len(mentions)}, nil
}

// dedupOverlapping keeps the longest mention of each overlapping
// cluster, measured by intersection-over-union.
func dedupOverlapping(mentions []*types.Mention) []*types.Mention {
	sorted := make([]*types.Mention, len(mentions))
	copy(sorted, mentions)
	sort.Slice(sorted, func(i, j int) bool {
		li := sorted[i].EndChar - sorted[i].StartChar
		lj := sorted[j].EndChar - sorted[j].StartChar
		return li > lj
	})

	var kept []*types.Mention
	for _, m := range sorted {
		overlaps := false
		for _, k := range kept {
			if iou(m.StartChar, m.EndChar, k.StartChar, k.EndChar) > 0.5 {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, m)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].StartChar < kept[j].StartChar })
	return kept
}

func iou(s1, e1, s2, e2 int) float64 {
	interStart, interEnd := s1, e1
	if s2 > interStart {
		interStart = s2
	}
	if e2 < interEnd {
		interEnd = e2
	}
	if interEnd <= interStart {
		return 0
	}
	inter := interEnd - interStart
	union := (e1 - s1) + (e2 - s2) - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

type MergePreviewRequest struct {
	ProjectID       int64   `json:"project_id"`
	PrimaryEntityID int64   `json:"primary_entity_id"`
	EntityIDs       []int64 `json:"entity_ids"`
}

func (s *Server) handlePreviewMerge(ctx context.Context, req *mcp.CallToolRequest, input MergePreviewRequest) (*mcp.CallToolResult, *entity.MergePreview, error) {
	preview, err := entity.PreviewMerge(s.store, input.ProjectID, input.PrimaryEntityID, input.EntityIDs)
	if err != nil {
		return nil, nil, userError(err, "Entidad principal no encontrada")
	}
	return &mcp.CallToolResult{}, preview, nil
}

type MergeEntitiesRequest struct {
	ProjectID            int64                        `json:"project_id"`
	PrimaryEntityID      int64                        `json:"primary_entity_id"`
	EntityIDs            []int64                      `json:"entity_ids"`
	AttributeResolutions []entity.AttributeResolution `json:"attribute_resolutions,omitempty"`
}

type MergeEntitiesResponse struct {
	MergeID         int64   `json:"merge_id"`
	MergedCount     int     `json:"merged_count"`
	MergedEntityIDs []int64 `json:"merged_entity_ids"`
	ResultEntity    *types.Entity `json:"result_entity,omitempty"`
}

// handleMergeEntities computes the merge inputs (alias union, mention
// delta) and delegates the atomic mutation to the store, then applies
// attribute conflict resolutions as a follow-on pass.
func (s *Server) handleMergeEntities(ctx context.Context, req *mcp.CallToolRequest, input MergeEntitiesRequest) (*mcp.CallToolResult, *MergeEntitiesResponse, error) {
	primary, err := s.entityInProject(input.ProjectID, input.PrimaryEntityID)
	if err != nil {
		return nil, nil, err
	}

	aliasSet := make(map[string]bool)
	for _, a := range primary.Aliases {
		aliasSet[a] = true
	}
	mergedIDs := make(map[int64]bool)
	for _, id := range primary.MergedFromIDs {
		mergedIDs[id] = true
	}

	totalDelta := 0
	var sourceIDs []int64
	for _, id := range input.EntityIDs {
		if id == input.PrimaryEntityID {
			continue
		}
		source, err := s.store.GetEntity(id)
		if err != nil || source.ProjectID != input.ProjectID || !source.IsActive {
			continue
		}
		sourceIDs = append(sourceIDs, id)
		mergedIDs[id] = true
		totalDelta += source.MentionCount
		aliasSet[source.CanonicalName] = true
		for _, a := range source.Aliases {
			aliasSet[a] = true
		}
	}
	if len(sourceIDs) == 0 {
		return nil, nil, fmt.Errorf("no hay entidades fusionables")
	}

	delete(aliasSet, primary.CanonicalName)
	aliases := make([]string, 0, len(aliasSet))
	for a := range aliasSet {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	newMergedFrom := make([]int64, 0, len(mergedIDs))
	for id := range mergedIDs {
		newMergedFrom = append(newMergedFrom, id)
	}
	sort.Slice(newMergedFrom, func(i, j int) bool { return newMergedFrom[i] < newMergedFrom[j] })

	record, err := s.store.MergeEntities(storage.MergeRequest{
		ProjectID:         input.ProjectID,
		PrimaryEntityID:   input.PrimaryEntityID,
		SourceEntityIDs:   sourceIDs,
		CombinedAliases:   aliases,
		NewMergedFromIDs:  newMergedFrom,
		TotalMentionDelta: totalDelta,
		MergedBy:          "user",
	})
	if err != nil {
		return nil, nil, err
	}

	if _, err := entity.ApplyAttributeResolutions(s.store, input.PrimaryEntityID, input.AttributeResolutions); err != nil {
		s.logger.Warn("attribute resolutions failed")
	}

	updated, _ := s.store.GetEntity(input.PrimaryEntityID)
	return &mcp.CallToolResult{}, &MergeEntitiesResponse{
		MergeID:         record.ID,
		MergedCount:     len(record.SourceEntityIDs),
		MergedEntityIDs: record.SourceEntityIDs,
		ResultEntity:    updated,
	}, nil
}

type UndoMergeRequest struct {
	ProjectID int64 `json:"project_id"`
	MergeID   int64 `json:"merge_id"`
}

func (s *Server) handleUndoMerge(ctx context.Context, req *mcp.CallToolRequest, input UndoMergeRequest) (*mcp.CallToolResult, *ProjectResponse, error) {
	if err := s.store.UndoMerge(input.MergeID); err != nil {
		return nil, nil, userError(err, "No se pudo deshacer la fusión")
	}
	return &mcp.CallToolResult{}, &ProjectResponse{}, nil
}

type MergeHistoryResponse struct {
	Merges []*types.MergeRecord `json:"merges"`
	Total  int                  `json:"total"`
}

func (s *Server) handleMergeHistory(ctx context.Context, req *mcp.CallToolRequest, input ProjectRequest) (*mcp.CallToolResult, *MergeHistoryResponse, error) {
	history, err := s.store.MergeHistory(input.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{}, &MergeHistoryResponse{Merges: history, Total: len(history)}, nil
}

type AttributesRequest struct {
	Action    string `json:"action"` // list, create, update, delete
	ProjectID int64  `json:"project_id"`
	EntityID  int64  `json:"entity_id"`

	AttributeID int64   `json:"attribute_id,omitempty"`
	Category    string  `json:"attribute_type,omitempty"`
	Key         string  `json:"attribute_key,omitempty"`
	Value       string  `json:"attribute_value,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	Verified    bool    `json:"is_verified,omitempty"`
}

type AttributesResponse struct {
	Attributes []*types.Attribute `json:"attributes,omitempty"`
	Attribute  *types.Attribute   `json:"attribute,omitempty"`
}

func (s *Server) handleAttributes(ctx context.Context, req *mcp.CallToolRequest, input AttributesRequest) (*mcp.CallToolResult, *AttributesResponse, error) {
	e, err := s.entityInProject(input.ProjectID, input.EntityID)
	if err != nil {
		return nil, nil, err
	}

	switch strings.ToLower(input.Action) {
	case "", "list":
		attrs, err := s.store.ListAttributes(input.EntityID)
		if err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{}, &AttributesResponse{Attributes: attrs}, nil

	case "create":
		a := &types.Attribute{
			EntityID:   input.EntityID,
			Category:   types.AttributeCategory(input.Category),
			Key:        input.Key,
			Value:      input.Value,
			Confidence: input.Confidence,
			Verified:   input.Verified,
		}
		if err := attributes.Validate(e.Type, a); err != nil {
			return nil, nil, err
		}
		if err := s.store.CreateAttribute(a); err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{}, &AttributesResponse{Attribute: a}, nil

	case "update":
		attrs, err := s.store.ListAttributes(input.EntityID)
		if err != nil {
			return nil, nil, err
		}
		for _, a := range attrs {
			if a.ID != input.AttributeID {
				continue
			}
			if input.Category != "" {
				a.Category = types.AttributeCategory(input.Category)
			}
			if input.Value != "" {
				a.Value = input.Value
			}
			a.Verified = input.Verified
			if err := attributes.Validate(e.Type, a); err != nil {
				return nil, nil, err
			}
			if err := s.store.UpdateAttribute(a); err != nil {
				return nil, nil, err
			}
			return &mcp.CallToolResult{}, &AttributesResponse{Attribute: a}, nil
		}
		return nil, nil, fmt.Errorf("atributo no encontrado")

	case "delete":
		if err := s.store.DeleteAttribute(input.AttributeID); err != nil {
			return nil, nil, userError(err, "Atributo no encontrado")
		}
		return &mcp.CallToolResult{}, &AttributesResponse{}, nil
	}
	return nil, nil, fmt.Errorf("unknown action %q", input.Action)
}

func (s *Server) entityInProject(projectID, entityID int64) (*types.Entity, error) {
	e, err := s.store.GetEntity(entityID)
	if err != nil {
		return nil, userError(err, "Entidad no encontrada")
	}
	if e.ProjectID != projectID {
		return nil, fmt.Errorf("entidad no encontrada en el proyecto")
	}
	return e, nil
}
