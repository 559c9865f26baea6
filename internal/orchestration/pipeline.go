package orchestration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pauubach/narrassist/internal/alerts"
	"github.com/pauubach/narrassist/internal/attributes"
	"github.com/pauubach/narrassist/internal/capability"
	"github.com/pauubach/narrassist/internal/coref"
	"github.com/pauubach/narrassist/internal/entity"
	"github.com/pauubach/narrassist/internal/nlp"
	"github.com/pauubach/narrassist/internal/scheduler"
	"github.com/pauubach/narrassist/internal/snapshot"
	"github.com/pauubach/narrassist/internal/speech"
	"github.com/pauubach/narrassist/internal/storage"
	"github.com/pauubach/narrassist/internal/style"
	"github.com/pauubach/narrassist/internal/temporal"
	"github.com/pauubach/narrassist/internal/types"
)

// Deps wires every engine the pipeline drives.
type Deps struct {
	Store      storage.Storage
	Extractor  *nlp.Extractor
	Resolver   *coref.Resolver
	Attributor *speech.Attributor
	Detector   *speech.Detector
	Redundancy *style.RedundancyDetector
	Alerts     *alerts.Engine
	Comparator *snapshot.Comparator
	Scheduler  *scheduler.Scheduler
	Capability *capability.Registry
	Progress   *ProgressRegistry
	Logger     *zap.Logger

	// SnapshotRetention caps kept snapshots per project.
	SnapshotRetention int
}

// Pipeline runs one full analysis.
type Pipeline struct {
	deps Deps
}

func NewPipeline(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.SnapshotRetention < 1 {
		deps.SnapshotRetention = 10
	}
	return &Pipeline{deps: deps}
}

// StageResult records whether a stage ran.
type StageResult struct {
	Name    string `json:"name"`
	Ran     bool   `json:"ran"`
	Skipped string `json:"skipped_reason,omitempty"`
	Err     string `json:"error,omitempty"`
}

// RunReport is the final report of one analysis run.
type RunReport struct {
	// RunID identifies this run in logs and in the run record the
	// failing-stage diagnostics reference.
	RunID      string         `json:"run_id"`
	ProjectID  int64          `json:"project_id"`
	Stages     []StageResult  `json:"stages"`
	Entities   int            `json:"entities"`
	Mentions   int            `json:"mentions"`
	AlertsMade int            `json:"alerts_created"`
	Coverage   []string       `json:"method_coverage,omitempty"`
	Comparison *snapshot.Report `json:"comparison,omitempty"`
	Duration   time.Duration  `json:"duration"`
}

// Run executes the full stage sequence over the given text and
// chapter ranges. Parsing is external: the pipeline receives
// (text, chapters) ready-made.
//
// A snapshot of the previous run's state is captured before any
// mutation. Non-prerequisite stage failures are recorded and the run
// continues; only mention extraction is strictly prerequisite for the
// coreference stages.
func (p *Pipeline) Run(ctx context.Context, projectID int64, text string, chapters []types.Chapter) (*RunReport, error) {
	d := p.deps
	start := time.Now()
	report := &RunReport{RunID: uuid.NewString(), ProjectID: projectID}

	project, err := d.Store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	logger := d.Logger.With(zap.String("run_id", report.RunID), zap.Int64("project_id", projectID))

	d.Progress.Start(projectID)
	defer d.Progress.Finish(projectID)
	if err := d.Store.SetAnalysisState(projectID, types.StatusAnalyzing, 0); err != nil {
		return nil, err
	}

	fail := func(stage string, err error) (*RunReport, error) {
		logger.Error("analysis failed", zap.String("stage", stage), zap.Error(err))
		_ = d.Store.SetAnalysisState(projectID, types.StatusFailed, progressOf(d, projectID))
		report.Stages = append(report.Stages, StageResult{Name: stage, Err: err.Error()})
		return report, fmt.Errorf("%s: %w", stage, err)
	}
	step := func(name string, progress float64, fn func() error) bool {
		err := fn()
		res := StageResult{Name: name, Ran: err == nil}
		if err != nil {
			res.Err = err.Error()
			logger.Warn("stage failed, continuing", zap.String("stage", name), zap.Error(err))
		}
		report.Stages = append(report.Stages, res)
		d.Progress.Update(projectID, progress)
		_ = d.Store.SetAnalysisState(projectID, types.StatusAnalyzing, progress)
		return err == nil
	}
	skip := func(name, reason string) {
		report.Stages = append(report.Stages, StageResult{Name: name, Skipped: reason})
	}

	// Snapshot before any mutation of the new run's data.
	if _, err := d.Store.CreateSnapshot(projectID); err != nil {
		return fail("snapshot", err)
	}
	if _, err := d.Store.CleanupSnapshots(projectID, d.SnapshotRetention); err != nil {
		logger.Warn("snapshot cleanup failed", zap.Error(err))
	}
	report.Stages = append(report.Stages, StageResult{Name: "snapshot", Ran: true})

	if strings.TrimSpace(text) == "" || len(chapters) == 0 {
		// Empty documents complete cleanly with no content.
		skip("all", "no content")
		_ = d.Store.SetAnalysisState(projectID, types.StatusCompleted, 1)
		report.Duration = time.Since(start)
		return report, nil
	}

	// Chapter persistence. Old alerts clear so re-created findings
	// dedup against the snapshot, not against themselves.
	if err := d.Store.ReplaceChapters(projectID, chapters); err != nil {
		return fail("chapters", err)
	}
	if err := d.Store.ClearAlerts(projectID); err != nil {
		return fail("chapters", err)
	}
	d.Progress.Update(projectID, 0.05)

	persisted, _ := d.Store.ListChapters(projectID)
	chapterIDByIdx := make(map[int]int64, len(persisted))
	for i, ch := range persisted {
		chapterIDByIdx[i] = ch.ID
	}

	// Mention extraction: strictly prerequisite for coreference.
	mentions, err := d.Extractor.Extract(ctx, text, chapters)
	if err != nil {
		return fail("mentions", err)
	}
	mentions = p.filterMentions(projectID, mentions)
	report.Mentions = len(mentions)
	report.Stages = append(report.Stages, StageResult{Name: "mentions", Ran: true})
	d.Progress.Update(projectID, 0.2)
	_ = d.Store.SetAnalysisState(projectID, types.StatusAnalyzing, 0.2)

	var resolution coref.Resolution
	var candidates []*entity.Candidate
	if len(mentions) == 0 {
		skip("coreference", "no mentions")
		skip("entities", "no mentions")
	} else {
		resolution = d.Resolver.Resolve(ctx, text, mentions, chapters)
		report.Coverage = resolution.Coverage
		report.Stages = append(report.Stages, StageResult{Name: "coreference", Ran: true})
		d.Progress.Update(projectID, 0.35)
		_ = d.Store.SetAnalysisState(projectID, types.StatusAnalyzing, 0.35)

		for _, chain := range resolution.Chains {
			if c := entity.Canonicalize(chain); c != nil {
				candidates = append(candidates, c)
			}
		}
		// Proper nouns outside any chain still become entities.
		candidates = append(candidates, singletonCandidates(mentions, resolution.Chains)...)

		if err := p.persistEntities(projectID, candidates, chapterIDByIdx, len(mentions)); err != nil {
			return fail("entities", err)
		}
		report.Stages = append(report.Stages, StageResult{Name: "entities", Ran: true})
	}
	d.Progress.Update(projectID, 0.45)
	_ = d.Store.SetAnalysisState(projectID, types.StatusAnalyzing, 0.45)

	// Coreference corrections have maximum authority over the
	// automatic assignment.
	step("corrections", 0.5, func() error { return p.applyCorrections(projectID) })

	entities, _ := d.Store.ListEntities(projectID, storage.EntityFilter{})
	report.Entities = len(entities)

	var findings []alerts.Finding

	step("attributes", 0.55, func() error {
		extractor := attributes.NewExtractor()
		for _, e := range entities {
			ms, err := d.Store.ListMentions(e.ID)
			if err != nil {
				return err
			}
			for _, ex := range extractor.Extract(text, e.Type, e.ID, ms, chapters) {
				a := ex.Attribute
				if attributes.Validate(e.Type, &a) != nil {
					continue
				}
				if err := d.Store.CreateAttribute(&a); err != nil {
					return err
				}
			}
		}
		return nil
	})

	// Speech attribution + voice profiles.
	dialoguesByEntity := make(map[int64]map[int][]string) // entity → chapter → lines
	step("speech_attribution", 0.62, func() error {
		corrections, err := d.Store.ListSpeakerCorrections(projectID)
		if err != nil {
			return err
		}
		for _, ch := range persisted {
			for _, ad := range d.Attributor.Attribute(ch, entities, corrections) {
				if ad.SpeakerID == 0 {
					continue
				}
				if dialoguesByEntity[ad.SpeakerID] == nil {
					dialoguesByEntity[ad.SpeakerID] = make(map[int][]string)
				}
				dialoguesByEntity[ad.SpeakerID][ad.ChapterNumber] = append(
					dialoguesByEntity[ad.SpeakerID][ad.ChapterNumber], ad.Text)
			}
		}
		return nil
	})

	step("voice_profiles", 0.68, func() error {
		for entityID, byChapter := range dialoguesByEntity {
			var all []string
			for _, lines := range byChapter {
				all = append(all, lines...)
			}
			if err := d.Store.UpsertVoiceProfile(speech.BuildProfile(projectID, entityID, all)); err != nil {
				return err
			}
		}
		return nil
	})

	step("speech_changes", 0.74, func() error {
		chapterTexts := make(map[int]string, len(persisted))
		for _, ch := range persisted {
			chapterTexts[ch.ChapterNumber] = ch.Content
		}
		for entityID, byChapter := range dialoguesByEntity {
			name := ""
			for _, e := range entities {
				if e.ID == entityID {
					name = e.CanonicalName
					break
				}
			}
			for _, alert := range d.Detector.DetectChanges(entityID, name, byChapter, len(persisted), chapterTexts) {
				findings = append(findings, speechChangeFinding(alert, entityID))
			}
		}
		return nil
	})

	step("temporal", 0.8, func() error {
		var markers []types.TemporalMarker
		for _, ch := range persisted {
			markers = append(markers, temporal.ExtractMarkers(ch)...)
		}
		builder := temporal.NewBuilder(d.Logger)
		tl := builder.Build(projectID, markers, entityLocator(entities, mentions))
		if err := d.Store.ReplaceTimeline(projectID, tl.Events, tl.Markers); err != nil {
			return err
		}
		for _, inc := range temporal.CheckConsistency(tl) {
			findings = append(findings, temporalFinding(inc))
		}
		return nil
	})

	step("style", 0.88, func() error {
		var pacings []style.ChapterPacing
		for _, ch := range persisted {
			pacings = append(pacings, style.AnalyzePacing(ch))
			for _, rep := range style.DetectRepetitions(ch) {
				findings = append(findings, repetitionFinding(rep))
			}
			for _, dup := range style.DetectDuplicates(ch) {
				findings = append(findings, duplicateFinding(dup))
			}
			for _, issue := range style.AnalyzeSentences(ch) {
				findings = append(findings, sentenceFinding(issue))
			}
		}
		if style.PacingFlat(pacings) {
			findings = append(findings, alerts.Finding{
				Category:    "structure",
				Type:        "flat_pacing",
				Severity:    types.SeverityInfo,
				Title:       "Ritmo narrativo plano",
				Description: "El ritmo apenas varía entre capítulos.",
				Confidence:  0.6,
			})
		}

		focals, err := d.Store.ListFocalizations(projectID)
		if err != nil {
			return err
		}
		for _, ch := range persisted {
			for _, f := range focals {
				if f.ChapterNumber != ch.ChapterNumber {
					continue
				}
				focalName := ""
				if f.FocalEntityID != 0 {
					if e, err := d.Store.GetEntity(f.FocalEntityID); err == nil {
						focalName = e.CanonicalName
					}
				}
				for _, v := range style.DetectFocalizationViolations(ch, f, focalName) {
					findings = append(findings, focalizationFinding(v))
				}
			}
		}
		return nil
	})

	// Semantic redundancy is the one unbounded-memory analysis: it
	// runs under the heavy-task gate and is disabled outright on
	// low-tier hardware.
	rec := d.Capability.Recommend()
	if !rec.EnableSemanticRedundancy || d.Redundancy == nil {
		skip("semantic_redundancy", "disabled on this hardware tier")
	} else {
		step("semantic_redundancy", 0.92, func() error {
			pairs, err := scheduler.Run(ctx, d.Scheduler, "semantic_redundancy", 0,
				func(ctx context.Context) ([]style.RedundantPair, error) {
					return d.Redundancy.Detect(ctx, persisted)
				})
			if err != nil {
				return err
			}
			for _, pair := range pairs {
				findings = append(findings, redundancyFinding(pair))
			}
			return nil
		})
	}

	step("alerts", 0.95, func() error {
		created, err := d.Alerts.SubmitAll(projectID, findings)
		report.AlertsMade = created
		return err
	})

	if err := d.Store.SetAnalysisState(projectID, types.StatusCompleted, 1); err != nil {
		return fail("complete", err)
	}
	d.Progress.Update(projectID, 1)

	// Comparison + lineage linking runs after completion.
	step("comparison", 1, func() error {
		cmp, err := d.Comparator.CompareAndLink(projectID)
		if err != nil {
			return err
		}
		report.Comparison = cmp
		return nil
	})

	report.Duration = time.Since(start)
	logger.Info("analysis completed",
		zap.String("project", project.Name),
		zap.Int("entities", report.Entities),
		zap.Int("alerts", report.AlertsMade),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func progressOf(d Deps, projectID int64) float64 {
	p, _ := d.Progress.Get(projectID)
	return p
}

// filterMentions applies the three-layer false-positive filter.
func (p *Pipeline) filterMentions(projectID int64, mentions []types.Mention) []types.Mention {
	d := p.deps
	overrides, _ := d.Store.ListProjectOverrides(projectID)
	rejections, _ := d.Store.ListUserRejections()
	patterns, _ := d.Store.ListSystemPatterns()

	out := mentions[:0]
	for _, m := range mentions {
		if m.Type == types.MentionProperNoun {
			if storage.FilterDecision(m.Surface, overrides, rejections, patterns) == types.FilterReject {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// singletonCandidates creates entity candidates for proper nouns that
// no chain absorbed, grouping identical surfaces.
func singletonCandidates(mentions []types.Mention, chains []coref.Chain) []*entity.Candidate {
	inChain := make(map[*types.Mention]bool)
	for _, c := range chains {
		for _, m := range c.Mentions {
			inChain[m] = true
		}
	}
	grouped := make(map[string][]*types.Mention)
	for i := range mentions {
		m := &mentions[i]
		if m.Type != types.MentionProperNoun || inChain[m] {
			continue
		}
		grouped[m.Surface] = append(grouped[m.Surface], m)
	}

	var out []*entity.Candidate
	for surface, ms := range grouped {
		out = append(out, &entity.Candidate{
			CanonicalName:       surface,
			Type:                types.EntityCharacter,
			FirstAppearanceChar: ms[0].StartChar,
			Mentions:            ms,
			Confidence:          0.7,
		})
	}
	return out
}

// persistEntities writes candidates and their mentions, classifying
// importance by mention share.
func (p *Pipeline) persistEntities(projectID int64, candidates []*entity.Candidate, chapterIDByIdx map[int]int64, totalMentions int) error {
	d := p.deps
	for _, c := range candidates {
		e := &types.Entity{
			ProjectID:           projectID,
			Type:                c.Type,
			CanonicalName:       c.CanonicalName,
			Aliases:             c.Aliases,
			Importance:          entity.ClassifyImportance(len(c.Mentions), totalMentions),
			FirstAppearanceChar: c.FirstAppearanceChar,
		}
		if err := d.Store.CreateEntity(e); err != nil {
			return err
		}
		ms := make([]types.Mention, 0, len(c.Mentions))
		for _, m := range c.Mentions {
			cm := *m
			if id, ok := chapterIDByIdx[m.ChapterIdx]; ok && m.ChapterIdx >= 0 {
				cm.ChapterID = id
			}
			cm.Confidence = maxF(cm.Confidence, c.Confidence)
			ms = append(ms, cm)
		}
		if err := d.Store.CreateMentions(e.ID, ms); err != nil {
			return err
		}
	}
	return nil
}

// applyCorrections replays stored coreference corrections over the
// freshly created mentions.
func (p *Pipeline) applyCorrections(projectID int64) error {
	d := p.deps
	corrections, err := d.Store.ListCoreferenceCorrections(projectID)
	if err != nil {
		return err
	}
	if len(corrections) == 0 {
		return nil
	}
	mentions, err := d.Store.ListProjectMentions(projectID)
	if err != nil {
		return err
	}

	byRange := make(map[[2]int]*types.Mention, len(mentions))
	for _, m := range mentions {
		byRange[[2]int{m.StartChar, m.EndChar}] = m
	}

	for _, c := range corrections {
		m, ok := byRange[[2]int{c.MentionStartChar, c.MentionEndChar}]
		if !ok {
			continue // the edit moved the mention; the correction no longer applies
		}
		switch c.Type {
		case types.CorrectionReassign:
			if c.CorrectedEntityID != 0 {
				if err := d.Store.ReassignMention(m.ID, c.CorrectedEntityID); err != nil {
					return err
				}
			}
		case types.CorrectionUnlink:
			if err := d.Store.DeleteMention(m.ID); err != nil {
				return err
			}
		case types.CorrectionConfirm:
			// Confirmations pin the automatic result; nothing to do.
		}
	}
	return nil
}

// entityLocator resolves which entity a temporal age reference talks
// about: the nearest preceding proper-noun mention whose surface maps
// to a known character.
func entityLocator(entities []*types.Entity, mentions []types.Mention) func(chapter, offset int) (int64, string) {
	byName := make(map[string]*types.Entity, len(entities))
	for _, e := range entities {
		if e.Type != types.EntityCharacter {
			continue
		}
		byName[strings.ToLower(e.CanonicalName)] = e
		for _, a := range e.Aliases {
			if _, taken := byName[strings.ToLower(a)]; !taken {
				byName[strings.ToLower(a)] = e
			}
		}
	}
	return func(chapter, offset int) (int64, string) {
		var best *types.Entity
		bestDist := 1 << 30
		for i := range mentions {
			m := &mentions[i]
			if m.Type != types.MentionProperNoun || m.StartChar > offset {
				continue
			}
			e, ok := byName[strings.ToLower(m.Surface)]
			if !ok {
				continue
			}
			if dist := offset - m.StartChar; dist < bestDist {
				bestDist = dist
				best = e
			}
		}
		if best == nil {
			return 0, ""
		}
		return best.ID, best.CanonicalName
	}
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
