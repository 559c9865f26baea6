package entity

import (
	"fmt"

	"github.com/pauubach/narrassist/internal/storage"
	"github.com/pauubach/narrassist/internal/types"
)

// AttributeConflict is a key with different values across merge
// candidates.
type AttributeConflict struct {
	Key    string            `json:"attribute_name"`
	Values map[int64]string  `json:"values_by_entity"` // entity id → value
	Category types.AttributeCategory `json:"category"`
}

// MergePreview describes what a merge would do before it runs.
type MergePreview struct {
	PrimaryEntityID int64               `json:"primary_entity_id"`
	SourceEntityIDs []int64             `json:"source_entity_ids"`
	CombinedAliases []string            `json:"combined_aliases"`
	TotalMentions   int                 `json:"total_mentions"`
	NameSimilarities []MatchResult      `json:"name_similarities"`
	Conflicts       []AttributeConflict `json:"attribute_conflicts"`
}

// PreviewMerge computes pairwise name similarity and attribute
// conflicts for a proposed merge without mutating anything.
func PreviewMerge(store storage.Storage, projectID, primaryID int64, sourceIDs []int64) (*MergePreview, error) {
	primary, err := store.GetEntity(primaryID)
	if err != nil {
		return nil, fmt.Errorf("primary entity: %w", err)
	}
	if primary.ProjectID != projectID {
		return nil, storage.ErrNotFound
	}

	preview := &MergePreview{
		PrimaryEntityID: primaryID,
		TotalMentions:   primary.MentionCount,
	}

	aliasSet := make(map[string]bool)
	for _, a := range primary.Aliases {
		aliasSet[a] = true
	}

	attrValues := make(map[string]map[int64]string)
	attrCategory := make(map[string]types.AttributeCategory)
	collect := func(e *types.Entity) error {
		attrs, err := store.ListAttributes(e.ID)
		if err != nil {
			return err
		}
		for _, a := range attrs {
			if attrValues[a.Key] == nil {
				attrValues[a.Key] = make(map[int64]string)
			}
			attrValues[a.Key][e.ID] = a.Value
			attrCategory[a.Key] = a.Category
		}
		return nil
	}
	if err := collect(primary); err != nil {
		return nil, err
	}

	for _, sid := range sourceIDs {
		if sid == primaryID {
			continue
		}
		source, err := store.GetEntity(sid)
		if err != nil || source.ProjectID != projectID {
			continue
		}
		preview.SourceEntityIDs = append(preview.SourceEntityIDs, sid)
		preview.TotalMentions += source.MentionCount
		aliasSet[source.CanonicalName] = true
		for _, a := range source.Aliases {
			aliasSet[a] = true
		}

		sim := FuzzyMatch(primary.CanonicalName, source.CanonicalName, primary.Aliases, source.Aliases)
		matchType := types.MatchFuzzy
		if ExactMatch(primary.CanonicalName, source.CanonicalName) {
			sim, matchType = 1, types.MatchExact
		}
		preview.NameSimilarities = append(preview.NameSimilarities, MatchResult{
			SourceName: source.CanonicalName,
			TargetName: primary.CanonicalName,
			SourceType: source.Type,
			TargetType: primary.Type,
			Similarity: sim,
			MatchType:  matchType,
		})

		if err := collect(source); err != nil {
			return nil, err
		}
	}

	delete(aliasSet, primary.CanonicalName)
	for a := range aliasSet {
		preview.CombinedAliases = append(preview.CombinedAliases, a)
	}

	for key, values := range attrValues {
		if len(values) < 2 {
			continue
		}
		distinct := make(map[string]bool)
		for _, v := range values {
			distinct[v] = true
		}
		if len(distinct) > 1 {
			preview.Conflicts = append(preview.Conflicts, AttributeConflict{
				Key:      key,
				Values:   values,
				Category: attrCategory[key],
			})
		}
	}

	return preview, nil
}

// AttributeResolution keeps one value for a conflicting key after a
// merge: duplicates are deleted, a missing chosen value updates the
// first attribute.
type AttributeResolution struct {
	Key         string `json:"attribute_name"`
	ChosenValue string `json:"chosen_value"`
}

// ApplyAttributeResolutions is the follow-on pass after an atomic
// merge.
func ApplyAttributeResolutions(store storage.Storage, primaryID int64, resolutions []AttributeResolution) (int, error) {
	if len(resolutions) == 0 {
		return 0, nil
	}
	attrs, err := store.ListAttributes(primaryID)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, res := range resolutions {
		var matching []*types.Attribute
		for _, a := range attrs {
			if a.Key == res.Key {
				matching = append(matching, a)
			}
		}
		if len(matching) == 0 {
			continue
		}

		keep := 0
		for i, a := range matching {
			if a.Value == res.ChosenValue {
				keep = i
				break
			}
		}
		for i, a := range matching {
			if i == keep {
				continue
			}
			if err := store.DeleteAttribute(a.ID); err != nil {
				return applied, err
			}
			applied++
		}
		if matching[keep].Value != res.ChosenValue {
			first := matching[keep]
			first.Value = res.ChosenValue
			first.Verified = true
			if err := store.UpdateAttribute(first); err != nil {
				return applied, err
			}
			applied++
		}
	}
	return applied, nil
}
