// Package alerts unifies detector findings into alerts with stable
// content hashes, categories, severities and entity links.
package alerts

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pauubach/narrassist/internal/storage"
	"github.com/pauubach/narrassist/internal/types"
)

// positionQuantum coarsens offsets inside the content hash so small
// upstream shifts do not change an alert's identity. Only alert types
// whose meaning is positional keep quantized positions in the hash.
const positionQuantum = 100

// positionalTypes hash their (quantized) offsets; the rest are
// identified by type, chapter and normalized excerpt alone.
var positionalTypes = map[string]bool{
	"repetition":          true,
	"sticky_sentence":     true,
	"semantic_redundancy": true,
}

// ContentHash computes the stable identity of an alert across runs:
// SHA-256 over alert type, chapter, whitespace-normalized excerpt,
// quantized positions (for position-bound types) and sorted key
// fields. Equal inputs produce equal hashes.
func ContentHash(alertType string, chapter int, excerpt string, startChar, endChar int, keyFields map[string]string) string {
	var b strings.Builder
	b.WriteString(alertType)
	b.WriteByte('|')
	fmt.Fprintf(&b, "%d", chapter)
	b.WriteByte('|')
	b.WriteString(normalizeExcerpt(excerpt))

	if positionalTypes[alertType] {
		fmt.Fprintf(&b, "|%d:%d", startChar/positionQuantum, endChar/positionQuantum)
	}

	if len(keyFields) > 0 {
		keys := make([]string, 0, len(keyFields))
		for k := range keyFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte('|')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(keyFields[k])
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func normalizeExcerpt(excerpt string) string {
	return strings.ToLower(strings.Join(strings.Fields(excerpt), " "))
}

// severityRank orders severities for min-severity filtering.
var severityRank = map[types.AlertSeverity]int{
	types.SeverityInfo:     0,
	types.SeverityWarning:  1,
	types.SeverityCritical: 2,
}

// Engine creates and deduplicates alerts.
type Engine struct {
	store storage.Storage
	// minSeverity filters alert creation uniformly: findings below it
	// are not persisted at all (not merely hidden).
	minSeverity types.AlertSeverity
	logger      *zap.Logger
}

// NewEngine builds an alert engine. minSeverity empty means no filter.
func NewEngine(store storage.Storage, minSeverity types.AlertSeverity, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if minSeverity == "" {
		minSeverity = types.SeverityInfo
	}
	return &Engine{store: store, minSeverity: minSeverity, logger: logger}
}

// Finding is what a detector submits.
type Finding struct {
	Category    string
	Type        string
	Severity    types.AlertSeverity
	Title       string
	Description string
	Explanation string
	Suggestion  string
	Excerpt     string
	Chapter     int
	StartChar   int
	EndChar     int
	Confidence  float64
	EntityIDs   []int64
	KeyFields   map[string]string
	ExtraData   map[string]any
}

// Submit converts a finding into a persisted alert with status new.
// Duplicate open alerts (same project + content hash) are dropped
// silently; that is the idempotence guarantee re-runs rely on.
// Findings below the engine's minimum severity are not created.
func (e *Engine) Submit(projectID int64, f Finding) (*types.Alert, error) {
	if severityRank[f.Severity] < severityRank[e.minSeverity] {
		return nil, nil
	}

	alert := &types.Alert{
		ProjectID:   projectID,
		Category:    f.Category,
		Type:        f.Type,
		Severity:    f.Severity,
		Status:      types.AlertNew,
		Title:       f.Title,
		Description: f.Description,
		Explanation: f.Explanation,
		Suggestion:  f.Suggestion,
		Excerpt:     f.Excerpt,
		Chapter:     f.Chapter,
		StartChar:   f.StartChar,
		EndChar:     f.EndChar,
		Confidence:  f.Confidence,
		EntityIDs:   f.EntityIDs,
		ExtraData:   f.ExtraData,
		ContentHash: ContentHash(f.Type, f.Chapter, f.Excerpt, f.StartChar, f.EndChar, f.KeyFields),
	}

	if err := e.store.CreateAlert(alert); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			e.logger.Debug("duplicate open alert dropped",
				zap.String("type", f.Type),
				zap.Int("chapter", f.Chapter),
				zap.String("hash", alert.ContentHash[:16]))
			return nil, nil
		}
		return nil, fmt.Errorf("create alert: %w", err)
	}
	return alert, nil
}

// SubmitAll submits a batch, returning how many were created.
func (e *Engine) SubmitAll(projectID int64, findings []Finding) (int, error) {
	created := 0
	for _, f := range findings {
		alert, err := e.Submit(projectID, f)
		if err != nil {
			return created, err
		}
		if alert != nil {
			created++
		}
	}
	return created, nil
}
