// Package identity classifies whether a candidate replacement
// document is the same manuscript, uncertain, or a different
// manuscript, and keeps the per-subject uncertainty budget that gates
// replacements.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
	"go.uber.org/zap"

	"github.com/pauubach/narrassist/internal/storage"
	"github.com/pauubach/narrassist/internal/types"
)

// Classification thresholds over the combined structural similarity.
const (
	sameThreshold      = 0.80
	differentThreshold = 0.40
)

// Decision is the classifier's verdict.
type Decision struct {
	Classification types.IdentityClass `json:"classification"`
	Confidence     float64             `json:"confidence"`
	// RecommendedFullRun suggests a full re-analysis rather than an
	// incremental one.
	RecommendedFullRun bool `json:"recommended_full_run"`
}

// Fingerprint is the SHA-256 content hash of the full manuscript text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Classify compares the current text against a candidate replacement.
// Identical fingerprints short-circuit to same_document; an empty
// previous text cannot be verified and classifies uncertain.
func Classify(previousText, candidateText string) Decision {
	if previousText == "" {
		return Decision{
			Classification:     types.IdentityUncertain,
			Confidence:         0.5,
			RecommendedFullRun: true,
		}
	}
	if Fingerprint(previousText) == Fingerprint(candidateText) {
		return Decision{Classification: types.IdentitySame, Confidence: 1}
	}

	similarity := structuralSimilarity(previousText, candidateText)
	switch {
	case similarity >= sameThreshold:
		return Decision{
			Classification:     types.IdentitySame,
			Confidence:         similarity,
			RecommendedFullRun: similarity < 0.95,
		}
	case similarity <= differentThreshold:
		return Decision{
			Classification: types.IdentityDifferent,
			Confidence:     1 - similarity,
		}
	default:
		return Decision{
			Classification:     types.IdentityUncertain,
			Confidence:         similarity,
			RecommendedFullRun: true,
		}
	}
}

// structuralSimilarity combines length ratio, shingle overlap and a
// Jaro-Winkler comparison of the opening, weighted toward content
// overlap.
func structuralSimilarity(a, b string) float64 {
	lenA, lenB := len(a), len(b)
	if lenA == 0 || lenB == 0 {
		return 0
	}
	lengthRatio := float64(min(lenA, lenB)) / float64(max(lenA, lenB))

	shingleSim := shingleOverlap(a, b, 5)

	headA, headB := head(a, 2000), head(b, 2000)
	openingSim := matchr.JaroWinkler(headA, headB, true)

	return 0.25*lengthRatio + 0.55*shingleSim + 0.20*openingSim
}

// shingleOverlap is Jaccard similarity over word n-gram shingles.
func shingleOverlap(a, b string, n int) float64 {
	sa := shingles(a, n)
	sb := shingles(b, n)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for s := range sa {
		if sb[s] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

func shingles(text string, n int) map[string]bool {
	words := strings.Fields(strings.ToLower(text))
	out := make(map[string]bool)
	for i := 0; i+n <= len(words); i++ {
		out[strings.Join(words[i:i+n], " ")] = true
	}
	return out
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Service persists decisions and enforces the replacement policy.
type Service struct {
	store storage.Storage
	// uncertainLimit is the rolling 30-day uncertainty budget per
	// license subject.
	uncertainLimit int
	logger         *zap.Logger
}

func NewService(store storage.Storage, uncertainLimit int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if uncertainLimit < 1 {
		uncertainLimit = 3
	}
	return &Service{store: store, uncertainLimit: uncertainLimit, logger: logger}
}

// ErrReplacementBlocked reports a replacement the policy refuses; the
// HTTP layer maps it to 409.
var ErrReplacementBlocked = errors.New("document replacement blocked")

// CheckReplacement classifies the candidate, records the decision and
// updates the risk ledger. Replacement is allowed on same_document,
// blocked on different_document, and blocked on uncertain once the
// subject exceeds its uncertainty budget.
func (s *Service) CheckReplacement(projectID int64, licenseSubject, previousText, candidateText string) (Decision, error) {
	decision := Classify(previousText, candidateText)

	check := &types.IdentityCheck{
		ProjectID:            projectID,
		LicenseSubject:       licenseSubject,
		PreviousFingerprint:  Fingerprint(previousText),
		CandidateFingerprint: Fingerprint(candidateText),
		Classification:       decision.Classification,
		Confidence:           decision.Confidence,
	}
	if err := s.store.RecordIdentityCheck(check); err != nil {
		return decision, err
	}

	reviewRequired := false
	if decision.Classification == types.IdentityUncertain {
		since := time.Now().AddDate(0, 0, -30)
		count, err := s.store.UncertainCountSince(licenseSubject, since)
		if err != nil {
			return decision, err
		}
		reviewRequired = count > s.uncertainLimit
		if err := s.store.SetReviewRequired(licenseSubject, reviewRequired); err != nil {
			return decision, err
		}
		if reviewRequired {
			s.logger.Warn("uncertainty budget exceeded",
				zap.String("subject", licenseSubject), zap.Int("count_30d", count))
		}
	}

	switch decision.Classification {
	case types.IdentityDifferent:
		return decision, fmt.Errorf(
			"el documento no parece una nueva versión del manuscrito actual: %w", ErrReplacementBlocked)
	case types.IdentityUncertain:
		if reviewRequired {
			return decision, fmt.Errorf(
				"no se pudo confirmar que sea el mismo manuscrito: %w", ErrReplacementBlocked)
		}
	}
	return decision, nil
}

// ApplyReplacement updates the project after an allowed replacement:
// new fingerprint, status back to pending, progress reset.
func (s *Service) ApplyReplacement(projectID int64, candidateText, documentPath string) error {
	project, err := s.store.GetProject(projectID)
	if err != nil {
		return err
	}
	if project.AnalysisStatus == types.StatusAnalyzing {
		return fmt.Errorf("analysis in progress: %w", storage.ErrConflict)
	}
	project.DocumentFingerprint = Fingerprint(candidateText)
	if documentPath != "" {
		project.DocumentPath = documentPath
	}
	project.WordCount = len(strings.Fields(candidateText))
	project.AnalysisStatus = types.StatusPending
	project.AnalysisProgress = 0
	return s.store.UpdateProject(project)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
