package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pauubach/narrassist/internal/snapshot"
	"github.com/pauubach/narrassist/internal/speech"
	"github.com/pauubach/narrassist/internal/types"
)

type CorefCorrectionsRequest struct {
	Action    string `json:"action"` // list, create, delete
	ProjectID int64  `json:"project_id"`

	CorrectionID      int64  `json:"correction_id,omitempty"`
	MentionStartChar  int    `json:"mention_start_char,omitempty"`
	MentionEndChar    int    `json:"mention_end_char,omitempty"`
	MentionText       string `json:"mention_text,omitempty"`
	ChapterNumber     int    `json:"chapter_number,omitempty"`
	OriginalEntityID  int64  `json:"original_entity_id,omitempty"`
	CorrectedEntityID int64  `json:"corrected_entity_id,omitempty"`
	CorrectionType    string `json:"correction_type,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

type CorefCorrectionsResponse struct {
	Corrections []*types.CoreferenceCorrection `json:"corrections,omitempty"`
	Correction  *types.CoreferenceCorrection   `json:"correction,omitempty"`
}

func (s *Server) handleCorefCorrections(ctx context.Context, req *mcp.CallToolRequest, input CorefCorrectionsRequest) (*mcp.CallToolResult, *CorefCorrectionsResponse, error) {
	switch strings.ToLower(input.Action) {
	case "", "list":
		list, err := s.store.ListCoreferenceCorrections(input.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{}, &CorefCorrectionsResponse{Corrections: list}, nil

	case "create":
		ctype := types.CorrectionType(input.CorrectionType)
		switch ctype {
		case types.CorrectionReassign, types.CorrectionUnlink, types.CorrectionConfirm:
		default:
			return nil, nil, fmt.Errorf("correction_type inválido: %q", input.CorrectionType)
		}
		c := &types.CoreferenceCorrection{
			ProjectID:         input.ProjectID,
			MentionStartChar:  input.MentionStartChar,
			MentionEndChar:    input.MentionEndChar,
			MentionText:       input.MentionText,
			ChapterNumber:     input.ChapterNumber,
			OriginalEntityID:  input.OriginalEntityID,
			CorrectedEntityID: input.CorrectedEntityID,
			Type:              ctype,
			Notes:             input.Notes,
		}
		if err := s.store.CreateCoreferenceCorrection(c); err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{}, &CorefCorrectionsResponse{Correction: c}, nil

	case "delete":
		if err := s.store.DeleteCoreferenceCorrection(input.CorrectionID); err != nil {
			return nil, nil, userError(err, "Corrección no encontrada")
		}
		return &mcp.CallToolResult{}, &CorefCorrectionsResponse{}, nil
	}
	return nil, nil, fmt.Errorf("unknown action %q", input.Action)
}

type SpeakerCorrectionsRequest struct {
	Action    string `json:"action"`
	ProjectID int64  `json:"project_id"`

	CorrectionID       int64  `json:"correction_id,omitempty"`
	ChapterNumber      int    `json:"chapter_number,omitempty"`
	DialogueStartChar  int    `json:"dialogue_start_char,omitempty"`
	DialogueEndChar    int    `json:"dialogue_end_char,omitempty"`
	DialogueText       string `json:"dialogue_text,omitempty"`
	OriginalSpeakerID  int64  `json:"original_speaker_id,omitempty"`
	CorrectedSpeakerID int64  `json:"corrected_speaker_id,omitempty"`
	Notes              string `json:"notes,omitempty"`
}

type SpeakerCorrectionsResponse struct {
	Corrections []*types.SpeakerCorrection `json:"corrections,omitempty"`
	Correction  *types.SpeakerCorrection   `json:"correction,omitempty"`
}

func (s *Server) handleSpeakerCorrections(ctx context.Context, req *mcp.CallToolRequest, input SpeakerCorrectionsRequest) (*mcp.CallToolResult, *SpeakerCorrectionsResponse, error) {
	switch strings.ToLower(input.Action) {
	case "", "list":
		list, err := s.store.ListSpeakerCorrections(input.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{}, &SpeakerCorrectionsResponse{Corrections: list}, nil

	case "create":
		c := &types.SpeakerCorrection{
			ProjectID:          input.ProjectID,
			ChapterNumber:      input.ChapterNumber,
			DialogueStartChar:  input.DialogueStartChar,
			DialogueEndChar:    input.DialogueEndChar,
			DialogueText:       input.DialogueText,
			OriginalSpeakerID:  input.OriginalSpeakerID,
			CorrectedSpeakerID: input.CorrectedSpeakerID,
			Notes:              input.Notes,
		}
		if err := s.store.CreateSpeakerCorrection(c); err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{}, &SpeakerCorrectionsResponse{Correction: c}, nil

	case "delete":
		if err := s.store.DeleteSpeakerCorrection(input.CorrectionID); err != nil {
			return nil, nil, userError(err, "Corrección no encontrada")
		}
		return &mcp.CallToolResult{}, &SpeakerCorrectionsResponse{}, nil
	}
	return nil, nil, fmt.Errorf("unknown action %q", input.Action)
}

type EntityFiltersRequest struct {
	Action    string `json:"action"` // list, reject, unreject, override, remove-override, toggle-pattern
	ProjectID int64  `json:"project_id,omitempty"`

	Text          string `json:"text,omitempty"`
	Reason        string `json:"reason,omitempty"`
	OverrideAction string `json:"override_action,omitempty"` // reject or force_include
	ID            int64  `json:"id,omitempty"`
	Active        bool   `json:"active,omitempty"`
}

type EntityFiltersResponse struct {
	SystemPatterns []*types.SystemPattern   `json:"system_patterns,omitempty"`
	UserRejections []*types.UserRejection   `json:"user_rejections,omitempty"`
	Overrides      []*types.ProjectOverride `json:"project_overrides,omitempty"`
}

func (s *Server) handleEntityFilters(ctx context.Context, req *mcp.CallToolRequest, input EntityFiltersRequest) (*mcp.CallToolResult, *EntityFiltersResponse, error) {
	switch strings.ToLower(input.Action) {
	case "", "list":
		patterns, err := s.store.ListSystemPatterns()
		if err != nil {
			return nil, nil, err
		}
		rejections, err := s.store.ListUserRejections()
		if err != nil {
			return nil, nil, err
		}
		out := &EntityFiltersResponse{SystemPatterns: patterns, UserRejections: rejections}
		if input.ProjectID != 0 {
			overrides, err := s.store.ListProjectOverrides(input.ProjectID)
			if err != nil {
				return nil, nil, err
			}
			out.Overrides = overrides
		}
		return &mcp.CallToolResult{}, out, nil

	case "reject":
		r := &types.UserRejection{Text: input.Text, Reason: input.Reason}
		if err := s.store.AddUserRejection(r); err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{}, &EntityFiltersResponse{}, nil

	case "unreject":
		if err := s.store.RemoveUserRejection(input.ID); err != nil {
			return nil, nil, userError(err, "Rechazo no encontrado")
		}
		return &mcp.CallToolResult{}, &EntityFiltersResponse{}, nil

	case "override":
		action := types.FilterAction(input.OverrideAction)
		if action != types.FilterReject && action != types.FilterForceInclude {
			return nil, nil, fmt.Errorf("override_action inválido: %q", input.OverrideAction)
		}
		o := &types.ProjectOverride{ProjectID: input.ProjectID, Text: input.Text, Action: action}
		if err := s.store.AddProjectOverride(o); err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{}, &EntityFiltersResponse{}, nil

	case "remove-override":
		if err := s.store.RemoveProjectOverride(input.ID); err != nil {
			return nil, nil, userError(err, "Override no encontrado")
		}
		return &mcp.CallToolResult{}, &EntityFiltersResponse{}, nil

	case "toggle-pattern":
		if err := s.store.SetSystemPatternActive(input.ID, input.Active); err != nil {
			return nil, nil, userError(err, "Patrón no encontrado")
		}
		return &mcp.CallToolResult{}, &EntityFiltersResponse{}, nil
	}
	return nil, nil, fmt.Errorf("unknown action %q", input.Action)
}

type ListAlertsResponse struct {
	Alerts []*types.Alert `json:"alerts"`
	Count  int            `json:"count"`
}

func (s *Server) handleListAlerts(ctx context.Context, req *mcp.CallToolRequest, input ProjectRequest) (*mcp.CallToolResult, *ListAlertsResponse, error) {
	alerts, err := s.store.ListAlerts(input.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{}, &ListAlertsResponse{Alerts: alerts, Count: len(alerts)}, nil
}

type UpdateAlertRequest struct {
	ProjectID int64  `json:"project_id"`
	AlertID   int64  `json:"alert_id"`
	Status    string `json:"status"`
}

func (s *Server) handleUpdateAlert(ctx context.Context, req *mcp.CallToolRequest, input UpdateAlertRequest) (*mcp.CallToolResult, *ProjectResponse, error) {
	status := types.AlertStatus(input.Status)
	switch status {
	case types.AlertNew, types.AlertOpen, types.AlertAcknowledged, types.AlertInProgress, types.AlertResolved:
	default:
		return nil, nil, fmt.Errorf("estado inválido: %q", input.Status)
	}
	if err := s.store.UpdateAlertStatus(input.AlertID, status); err != nil {
		return nil, nil, userError(err, "Alerta no encontrada")
	}
	return &mcp.CallToolResult{}, &ProjectResponse{}, nil
}

type VoiceProfilesRequest struct {
	ProjectID int64 `json:"project_id"`
	EntityID  int64 `json:"entity_id,omitempty"`
	// CompareWith triggers a pairwise profile comparison.
	CompareWith int64 `json:"compare_with,omitempty"`
}

type VoiceProfilesResponse struct {
	Profiles   []*types.VoiceProfile `json:"profiles,omitempty"`
	Profile    *types.VoiceProfile   `json:"profile,omitempty"`
	Comparison []speech.ProfileDelta `json:"comparison,omitempty"`
}

func (s *Server) handleVoiceProfiles(ctx context.Context, req *mcp.CallToolRequest, input VoiceProfilesRequest) (*mcp.CallToolResult, *VoiceProfilesResponse, error) {
	if input.EntityID == 0 {
		profiles, err := s.store.ListVoiceProfiles(input.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{}, &VoiceProfilesResponse{Profiles: profiles}, nil
	}

	profile, err := s.store.GetVoiceProfile(input.ProjectID, input.EntityID)
	if err != nil {
		return nil, nil, userError(err, "Perfil de voz no encontrado")
	}
	out := &VoiceProfilesResponse{Profile: profile}

	if input.CompareWith != 0 {
		other, err := s.store.GetVoiceProfile(input.ProjectID, input.CompareWith)
		if err != nil {
			return nil, nil, userError(err, "Perfil de voz no encontrado")
		}
		out.Comparison = speech.CompareProfiles(profile, other)
	}
	return &mcp.CallToolResult{}, out, nil
}

type TimelineRequest struct {
	ProjectID int64 `json:"project_id"`
	// EntityID narrows the view to one character's events (including
	// their temporal instances, e.g. Ana@40 vs Ana@45).
	EntityID int64 `json:"entity_id,omitempty"`
}

type TimelineResponse struct {
	Events  []*types.TimelineEvent  `json:"events"`
	Markers []*types.TemporalMarker `json:"markers,omitempty"`
}

func (s *Server) handleTimeline(ctx context.Context, req *mcp.CallToolRequest, input TimelineRequest) (*mcp.CallToolResult, *TimelineResponse, error) {
	events, err := s.store.ListTimelineEvents(input.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if input.EntityID != 0 {
		filtered := events[:0]
		for _, ev := range events {
			if ev.EntityID == input.EntityID {
				filtered = append(filtered, ev)
			}
		}
		return &mcp.CallToolResult{}, &TimelineResponse{Events: filtered}, nil
	}
	markers, err := s.store.ListTemporalMarkers(input.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{}, &TimelineResponse{Events: events, Markers: markers}, nil
}

type SnapshotsRequest struct {
	ProjectID  int64 `json:"project_id"`
	LatestOnly bool  `json:"latest_only,omitempty"`
}

type SnapshotsResponse struct {
	Snapshots []*types.Snapshot `json:"snapshots,omitempty"`
	Latest    *types.Snapshot   `json:"latest,omitempty"`
}

func (s *Server) handleSnapshots(ctx context.Context, req *mcp.CallToolRequest, input SnapshotsRequest) (*mcp.CallToolResult, *SnapshotsResponse, error) {
	if input.LatestOnly {
		latest, err := s.store.LatestSnapshot(input.ProjectID)
		if err != nil {
			return nil, nil, userError(err, "No hay snapshots para el proyecto")
		}
		return &mcp.CallToolResult{}, &SnapshotsResponse{Latest: latest}, nil
	}
	list, err := s.store.ListSnapshots(input.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{}, &SnapshotsResponse{Snapshots: list}, nil
}

type ComparisonResponse struct {
	Report *snapshot.Report `json:"report,omitempty"`
	// NoSnapshot is true when the project has nothing to compare
	// against.
	NoSnapshot bool `json:"no_snapshot,omitempty"`
}

func (s *Server) handleComparisonReport(ctx context.Context, req *mcp.CallToolRequest, input ProjectRequest) (*mcp.CallToolResult, *ComparisonResponse, error) {
	report, err := s.comparator.CompareAndLink(input.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if report == nil {
		return &mcp.CallToolResult{}, &ComparisonResponse{NoSnapshot: true}, nil
	}
	return &mcp.CallToolResult{}, &ComparisonResponse{Report: report}, nil
}
