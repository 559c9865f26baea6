package coref

import (
	"sort"

	"github.com/pauubach/narrassist/internal/types"
)

// ResolvedPair is one accepted (anaphor, antecedent) resolution.
type ResolvedPair struct {
	Anaphor    *types.Mention
	Antecedent *types.Mention
	Confidence float64
}

// Chain is a set of mentions referring to the same entity, ordered by
// position, with the average confidence of the resolutions that built
// it.
type Chain struct {
	Mentions   []*types.Mention
	Confidence float64
}

// Root returns the chain's anchor: its first proper-noun mention, or
// its first mention when no proper noun is present.
func (c *Chain) Root() *types.Mention {
	for _, m := range c.Mentions {
		if m.Type == types.MentionProperNoun {
			return m
		}
	}
	if len(c.Mentions) > 0 {
		return c.Mentions[0]
	}
	return nil
}

// BuildChains groups resolved pairs into coreference chains with
// union-find. When two sets merge, the set containing a proper-noun
// mention becomes the root, which breaks the apparent cycles of a
// naive pointer representation.
func BuildChains(pairs []ResolvedPair) []Chain {
	if len(pairs) == 0 {
		return nil
	}

	parent := make(map[*types.Mention]*types.Mention)
	// hasProper marks roots whose set contains a proper-noun mention.
	hasProper := make(map[*types.Mention]bool)

	var find func(m *types.Mention) *types.Mention
	find = func(m *types.Mention) *types.Mention {
		if _, ok := parent[m]; !ok {
			parent[m] = m
			hasProper[m] = m.Type == types.MentionProperNoun
		}
		if parent[m] != m {
			parent[m] = find(parent[m])
		}
		return parent[m]
	}

	union := func(anaphor, antecedent *types.Mention) {
		r1, r2 := find(anaphor), find(antecedent)
		if r1 == r2 {
			return
		}
		if hasProper[r2] {
			parent[r1] = r2
		} else {
			parent[r2] = r1
		}
	}

	members := make(map[*types.Mention]bool)
	for _, p := range pairs {
		union(p.Anaphor, p.Antecedent)
		members[p.Anaphor] = true
		members[p.Antecedent] = true
	}

	groups := make(map[*types.Mention][]*types.Mention)
	for m := range members {
		root := find(m)
		groups[root] = append(groups[root], m)
	}

	chains := make([]Chain, 0, len(groups))
	for _, group := range groups {
		sort.Slice(group, func(i, j int) bool {
			return group[i].StartChar < group[j].StartChar
		})

		inGroup := make(map[*types.Mention]bool, len(group))
		for _, m := range group {
			inGroup[m] = true
		}
		var sum float64
		var n int
		for _, p := range pairs {
			if inGroup[p.Anaphor] || inGroup[p.Antecedent] {
				sum += p.Confidence
				n++
			}
		}
		confidence := 0.0
		if n > 0 {
			confidence = sum / float64(n)
		}

		chains = append(chains, Chain{Mentions: group, Confidence: confidence})
	}

	sort.Slice(chains, func(i, j int) bool {
		return chains[i].Mentions[0].StartChar < chains[j].Mentions[0].StartChar
	})
	return chains
}
