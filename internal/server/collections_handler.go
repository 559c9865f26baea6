package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pauubach/narrassist/internal/collections"
	"github.com/pauubach/narrassist/internal/types"
)

type CollectionsRequest struct {
	Action string `json:"action"` // list, get, create, delete, add-project, remove-project, links, link, unlink, suggest-links, analyze, export

	CollectionID int64  `json:"collection_id,omitempty"`
	Name         string `json:"name,omitempty"`
	Description  string `json:"description,omitempty"`
	ProjectID    int64  `json:"project_id,omitempty"`
	Order        int    `json:"order,omitempty"`

	LinkID          int64   `json:"link_id,omitempty"`
	SourceEntityID  int64   `json:"source_entity_id,omitempty"`
	TargetEntityID  int64   `json:"target_entity_id,omitempty"`
	SourceProjectID int64   `json:"source_project_id,omitempty"`
	TargetProjectID int64   `json:"target_project_id,omitempty"`
	Similarity      float64 `json:"similarity,omitempty"`
	MatchType       string  `json:"match_type,omitempty"`
}

type CollectionsResponse struct {
	Collections []*types.Collection            `json:"collections,omitempty"`
	Collection  *types.Collection              `json:"collection,omitempty"`
	Links       []*types.EntityLink            `json:"links,omitempty"`
	Suggestions []collections.LinkSuggestion   `json:"suggestions,omitempty"`
	Report      *collections.CrossBookReport   `json:"report,omitempty"`
	Warning     string                         `json:"warning,omitempty"`
}

func (s *Server) handleCollections(ctx context.Context, req *mcp.CallToolRequest, input CollectionsRequest) (*mcp.CallToolResult, *CollectionsResponse, error) {
	switch strings.ToLower(input.Action) {
	case "", "list":
		list, err := s.store.ListCollections()
		if err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{}, &CollectionsResponse{Collections: list}, nil

	case "get":
		c, err := s.store.GetCollection(input.CollectionID)
		if err != nil {
			return nil, nil, userError(err, "Colección no encontrada")
		}
		return &mcp.CallToolResult{}, &CollectionsResponse{Collection: c}, nil

	case "create":
		if input.Name == "" {
			return nil, nil, fmt.Errorf("name is required")
		}
		c := &types.Collection{Name: input.Name, Description: input.Description}
		if err := s.store.CreateCollection(c); err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{}, &CollectionsResponse{Collection: c}, nil

	case "delete":
		if err := s.store.DeleteCollection(input.CollectionID); err != nil {
			return nil, nil, userError(err, "Colección no encontrada")
		}
		return &mcp.CallToolResult{}, &CollectionsResponse{}, nil

	case "add-project":
		warning, err := s.collections.AddProject(input.CollectionID, input.ProjectID, input.Order)
		if err != nil {
			return nil, nil, userError(err, "Colección o proyecto no encontrado")
		}
		return &mcp.CallToolResult{}, &CollectionsResponse{Warning: warning.Warning}, nil

	case "remove-project":
		if err := s.store.RemoveProjectFromCollection(input.CollectionID, input.ProjectID); err != nil {
			return nil, nil, userError(err, "Proyecto no encontrado")
		}
		return &mcp.CallToolResult{}, &CollectionsResponse{}, nil

	case "links":
		links, err := s.store.ListEntityLinks(input.CollectionID)
		if err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{}, &CollectionsResponse{Links: links}, nil

	case "link":
		matchType := types.MatchType(input.MatchType)
		if matchType == "" {
			matchType = types.MatchManual
		}
		similarity := input.Similarity
		if similarity == 0 && matchType == types.MatchManual {
			similarity = 1
		}
		link := &types.EntityLink{
			CollectionID:    input.CollectionID,
			SourceEntityID:  input.SourceEntityID,
			TargetEntityID:  input.TargetEntityID,
			SourceProjectID: input.SourceProjectID,
			TargetProjectID: input.TargetProjectID,
			Similarity:      similarity,
			MatchType:       matchType,
		}
		if err := s.store.CreateEntityLink(link); err != nil {
			return nil, nil, userError(err, "No se pudo crear el enlace")
		}
		links := []*types.EntityLink{link}
		return &mcp.CallToolResult{}, &CollectionsResponse{Links: links}, nil

	case "unlink":
		if err := s.store.DeleteEntityLink(input.LinkID); err != nil {
			return nil, nil, userError(err, "Enlace no encontrado")
		}
		return &mcp.CallToolResult{}, &CollectionsResponse{}, nil

	case "suggest-links":
		suggestions, err := s.collections.SuggestLinks(input.CollectionID)
		if err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{}, &CollectionsResponse{Suggestions: suggestions}, nil

	case "analyze":
		report, err := s.collections.Analyze(input.CollectionID)
		if err != nil {
			return nil, nil, userError(err, "Colección no encontrada")
		}
		return &mcp.CallToolResult{}, &CollectionsResponse{Report: report}, nil

	case "export":
		if err := s.collections.Export(ctx, input.CollectionID); err != nil {
			return nil, nil, userError(err, "Colección no encontrada")
		}
		return &mcp.CallToolResult{}, &CollectionsResponse{}, nil
	}
	return nil, nil, fmt.Errorf("unknown action %q", input.Action)
}
