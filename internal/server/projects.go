package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pauubach/narrassist/internal/capability"
	"github.com/pauubach/narrassist/internal/identity"
	"github.com/pauubach/narrassist/internal/orchestration"
	"github.com/pauubach/narrassist/internal/storage"
	"github.com/pauubach/narrassist/internal/types"
)

// EmptyRequest is used by tools without parameters.
type EmptyRequest struct{}

type ListProjectsResponse struct {
	Projects []*types.Project `json:"projects"`
	Count    int              `json:"count"`
}

func (s *Server) handleListProjects(ctx context.Context, req *mcp.CallToolRequest, input EmptyRequest) (*mcp.CallToolResult, *ListProjectsResponse, error) {
	projects, err := s.store.ListProjects()
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{}, &ListProjectsResponse{Projects: projects, Count: len(projects)}, nil
}

type ProjectRequest struct {
	ProjectID int64 `json:"project_id"`
}

type ProjectResponse struct {
	Project *types.Project `json:"project"`
}

func (s *Server) handleGetProject(ctx context.Context, req *mcp.CallToolRequest, input ProjectRequest) (*mcp.CallToolResult, *ProjectResponse, error) {
	project, err := s.store.GetProject(input.ProjectID)
	if err != nil {
		return nil, nil, userError(err, "Proyecto no encontrado")
	}
	return &mcp.CallToolResult{}, &ProjectResponse{Project: project}, nil
}

type CreateProjectRequest struct {
	Name         string `json:"name"`
	DocumentPath string `json:"document_path,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
	Text         string `json:"text,omitempty"`
}

func (s *Server) handleCreateProject(ctx context.Context, req *mcp.CallToolRequest, input CreateProjectRequest) (*mcp.CallToolResult, *ProjectResponse, error) {
	if input.Name == "" {
		return nil, nil, fmt.Errorf("name is required")
	}
	docType := input.DocumentType
	if docType == "" {
		docType = "fiction"
	}
	project := &types.Project{
		Name:         input.Name,
		DocumentPath: input.DocumentPath,
		DocumentType: docType,
	}
	if input.Text != "" {
		project.DocumentFingerprint = identity.Fingerprint(input.Text)
		project.WordCount = wordCount(input.Text)
	}
	if err := s.store.CreateProject(project); err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{}, &ProjectResponse{Project: project}, nil
}

type ReplaceDocumentRequest struct {
	ProjectID      int64  `json:"project_id"`
	PreviousText   string `json:"previous_text"`
	CandidateText  string `json:"candidate_text"`
	DocumentPath   string `json:"document_path,omitempty"`
	LicenseSubject string `json:"license_subject,omitempty"`
}

type ReplaceDocumentResponse struct {
	Classification types.IdentityClass `json:"classification"`
	Confidence     float64             `json:"confidence"`
	Replaced       bool                `json:"replaced"`
	Message        string              `json:"message"`
}

// handleReplaceDocument enforces the identity gate: same_document
// replaces, different_document blocks, uncertain blocks once the
// subject exceeds its uncertainty budget.
func (s *Server) handleReplaceDocument(ctx context.Context, req *mcp.CallToolRequest, input ReplaceDocumentRequest) (*mcp.CallToolResult, *ReplaceDocumentResponse, error) {
	if _, err := s.store.GetProject(input.ProjectID); err != nil {
		return nil, nil, userError(err, "Proyecto no encontrado")
	}
	subject := input.LicenseSubject
	if subject == "" {
		subject = "local"
	}

	decision, err := s.identity.CheckReplacement(input.ProjectID, subject, input.PreviousText, input.CandidateText)
	if err != nil {
		if errors.Is(err, identity.ErrReplacementBlocked) {
			return &mcp.CallToolResult{}, &ReplaceDocumentResponse{
				Classification: decision.Classification,
				Confidence:     decision.Confidence,
				Replaced:       false,
				Message:        err.Error(),
			}, nil
		}
		return nil, nil, err
	}

	if err := s.identity.ApplyReplacement(input.ProjectID, input.CandidateText, input.DocumentPath); err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{}, &ReplaceDocumentResponse{
		Classification: decision.Classification,
		Confidence:     decision.Confidence,
		Replaced:       true,
		Message:        "Manuscrito actualizado correctamente. Ejecuta un nuevo análisis.",
	}, nil
}

type RunAnalysisRequest struct {
	ProjectID int64           `json:"project_id"`
	Text      string          `json:"text"`
	Chapters  []types.Chapter `json:"chapters"`
}

func (s *Server) handleRunAnalysis(ctx context.Context, req *mcp.CallToolRequest, input RunAnalysisRequest) (*mcp.CallToolResult, *orchestration.RunReport, error) {
	report, err := s.pipeline.Run(ctx, input.ProjectID, input.Text, input.Chapters)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{}, report, nil
}

type AnalysisStatusResponse struct {
	Status   types.AnalysisStatus `json:"status"`
	Progress float64              `json:"progress"`
	Tracked  bool                 `json:"tracked"`
}

func (s *Server) handleAnalysisStatus(ctx context.Context, req *mcp.CallToolRequest, input ProjectRequest) (*mcp.CallToolResult, *AnalysisStatusResponse, error) {
	// Stuck statuses normalize on observation.
	if _, err := s.progress.NormalizeStuck(s.store); err != nil {
		s.logger.Warn("stuck normalization failed")
	}
	project, err := s.store.GetProject(input.ProjectID)
	if err != nil {
		return nil, nil, userError(err, "Proyecto no encontrado")
	}
	progress, tracked := s.progress.Get(input.ProjectID)
	if !tracked {
		progress = project.AnalysisProgress
	}
	return &mcp.CallToolResult{}, &AnalysisStatusResponse{
		Status:   project.AnalysisStatus,
		Progress: progress,
		Tracked:  tracked,
	}, nil
}

type ListChaptersResponse struct {
	Chapters []*types.Chapter `json:"chapters"`
	Count    int              `json:"count"`
}

func (s *Server) handleListChapters(ctx context.Context, req *mcp.CallToolRequest, input ProjectRequest) (*mcp.CallToolResult, *ListChaptersResponse, error) {
	chapters, err := s.store.ListChapters(input.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{}, &ListChaptersResponse{Chapters: chapters, Count: len(chapters)}, nil
}

type CapabilitiesResponse struct {
	Report         *capability.Report        `json:"report"`
	Recommendation capability.Recommendation `json:"recommendation"`
}

func (s *Server) handleCapabilities(ctx context.Context, req *mcp.CallToolRequest, input EmptyRequest) (*mcp.CallToolResult, *CapabilitiesResponse, error) {
	return &mcp.CallToolResult{}, &CapabilitiesResponse{
		Report:         s.capability.Report(),
		Recommendation: s.capability.Recommend(),
	}, nil
}

// userError keeps the short Spanish message for the caller; internal
// detail stays in the wrapped error for logs.
func userError(err error, message string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s", message)
	}
	if errors.Is(err, storage.ErrConflict) {
		return fmt.Errorf("%s: %w", message, err)
	}
	return err
}

func wordCount(text string) int {
	n, inWord := 0, false
	for _, r := range text {
		switch r {
		case ' ', '\n', '\t', '\r':
			inWord = false
		default:
			if !inWord {
				inWord = true
				n++
			}
		}
	}
	return n
}
