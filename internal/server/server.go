// Package server exposes the knowledge-graph API over MCP (stdio).
//
// The HTTP layer proper is out of scope; these tools are the backend
// surface it would call: projects and document replacement (gated by
// the identity classifier), entities with merge/undo, mentions,
// attributes, corrections, alerts, voice profiles, timeline,
// snapshots, comparison reports and collections.
package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/pauubach/narrassist/internal/capability"
	"github.com/pauubach/narrassist/internal/collections"
	"github.com/pauubach/narrassist/internal/identity"
	"github.com/pauubach/narrassist/internal/orchestration"
	"github.com/pauubach/narrassist/internal/snapshot"
	"github.com/pauubach/narrassist/internal/storage"
)

// Server wires the engines behind the tool handlers.
type Server struct {
	store       storage.Storage
	pipeline    *orchestration.Pipeline
	progress    *orchestration.ProgressRegistry
	comparator  *snapshot.Comparator
	identity    *identity.Service
	collections *collections.Service
	capability  *capability.Registry
	logger      *zap.Logger
}

func New(
	store storage.Storage,
	pipeline *orchestration.Pipeline,
	progress *orchestration.ProgressRegistry,
	comparator *snapshot.Comparator,
	identitySvc *identity.Service,
	collectionsSvc *collections.Service,
	capabilityReg *capability.Registry,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:       store,
		pipeline:    pipeline,
		progress:    progress,
		comparator:  comparator,
		identity:    identitySvc,
		collections: collectionsSvc,
		capability:  capabilityReg,
		logger:      logger,
	}
}

// RegisterTools attaches every tool to the MCP server.
func (s *Server) RegisterTools(mcpServer *mcp.Server) {
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "list-projects",
		Description: "List all projects with analysis status",
	}, s.handleListProjects)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "get-project",
		Description: "Get one project by id",
	}, s.handleGetProject)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "create-project",
		Description: "Create a project for a manuscript",
	}, s.handleCreateProject)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "replace-document",
		Description: "Replace a project's document, gated by the manuscript identity classifier",
	}, s.handleReplaceDocument)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "run-analysis",
		Description: "Run the full analysis pipeline over a project's text",
	}, s.handleRunAnalysis)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "analysis-status",
		Description: "Get analysis status and progress, normalizing stuck runs",
	}, s.handleAnalysisStatus)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "list-chapters",
		Description: "List a project's chapters",
	}, s.handleListChapters)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "list-entities",
		Description: "List entities with relevance/mention/type/chapter filters",
	}, s.handleListEntities)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "get-entity",
		Description: "Get one entity with attributes and relevance",
	}, s.handleGetEntity)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "update-entity",
		Description: "Update an entity's name, type or importance",
	}, s.handleUpdateEntity)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "delete-entity",
		Description: "Soft-delete an entity",
	}, s.handleDeleteEntity)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "get-entity-mentions",
		Description: "List an entity's mentions with overlap dedup",
	}, s.handleGetEntityMentions)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "preview-merge",
		Description: "Preview an entity merge: name similarity and attribute conflicts",
	}, s.handlePreviewMerge)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "merge-entities",
		Description: "Atomically merge entities into a primary",
	}, s.handleMergeEntities)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "undo-merge",
		Description: "Undo a merge from its history record",
	}, s.handleUndoMerge)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "merge-history",
		Description: "List a project's merge history",
	}, s.handleMergeHistory)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "attributes",
		Description: "List, create, update or delete entity attributes (category-validated)",
	}, s.handleAttributes)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "coreference-corrections",
		Description: "List, create or delete coreference corrections",
	}, s.handleCorefCorrections)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "speaker-corrections",
		Description: "List, create or delete speaker corrections",
	}, s.handleSpeakerCorrections)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "entity-filters",
		Description: "Manage the mention filter layers: system patterns, user rejections, project overrides",
	}, s.handleEntityFilters)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "list-alerts",
		Description: "List a project's alerts with lineage fields",
	}, s.handleListAlerts)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "update-alert",
		Description: "Update an alert's status",
	}, s.handleUpdateAlert)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "voice-profiles",
		Description: "Get or compare character voice profiles",
	}, s.handleVoiceProfiles)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "timeline",
		Description: "Get the cached story timeline and temporal markers",
	}, s.handleTimeline)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "snapshots",
		Description: "List snapshots or get the latest one",
	}, s.handleSnapshots)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "comparison-report",
		Description: "Compare the current state against the latest snapshot, with alert lineage",
	}, s.handleComparisonReport)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "collections",
		Description: "Manage collections (sagas), entity links, link suggestions and cross-book analysis",
	}, s.handleCollections)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "capabilities",
		Description: "Get the hardware capability report and pipeline recommendation",
	}, s.handleCapabilities)
}
