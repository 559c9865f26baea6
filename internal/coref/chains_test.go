package coref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pauubach/narrassist/internal/types"
)

func TestBuildChainsProperNounRoot(t *testing.T) {
	maria := &types.Mention{Surface: "María", StartChar: 0, EndChar: 5, Type: types.MentionProperNoun}
	ella := &types.Mention{Surface: "ella", StartChar: 30, EndChar: 34, Type: types.MentionPronoun}
	su := &types.Mention{Surface: "su", StartChar: 60, EndChar: 62, Type: types.MentionPossessive}

	pairs := []ResolvedPair{
		{Anaphor: ella, Antecedent: maria, Confidence: 0.9},
		{Anaphor: su, Antecedent: ella, Confidence: 0.7},
	}

	chains := BuildChains(pairs)
	require.Len(t, chains, 1)

	chain := chains[0]
	assert.Len(t, chain.Mentions, 3)
	assert.Equal(t, maria, chain.Root(), "the proper noun anchors the chain")
	assert.InDelta(t, 0.8, chain.Confidence, 1e-9)

	// Mentions come out in document order.
	for i := 1; i < len(chain.Mentions); i++ {
		assert.Less(t, chain.Mentions[i-1].StartChar, chain.Mentions[i].StartChar)
	}
}

func TestBuildChainsSeparateEntities(t *testing.T) {
	maria := &types.Mention{Surface: "María", StartChar: 0, EndChar: 5, Type: types.MentionProperNoun}
	juan := &types.Mention{Surface: "Juan", StartChar: 50, EndChar: 54, Type: types.MentionProperNoun}
	ella := &types.Mention{Surface: "ella", StartChar: 100, EndChar: 104, Type: types.MentionPronoun}
	el := &types.Mention{Surface: "él", StartChar: 120, EndChar: 122, Type: types.MentionPronoun}

	chains := BuildChains([]ResolvedPair{
		{Anaphor: ella, Antecedent: maria, Confidence: 0.8},
		{Anaphor: el, Antecedent: juan, Confidence: 0.8},
	})
	require.Len(t, chains, 2)
	assert.Equal(t, "María", chains[0].Root().Surface)
	assert.Equal(t, "Juan", chains[1].Root().Surface)
}

func TestBuildChainsEmpty(t *testing.T) {
	assert.Nil(t, BuildChains(nil))
}

func TestFilterCandidates(t *testing.T) {
	anaphor := &types.Mention{StartChar: 100, SentenceIdx: 4, ChapterIdx: 0}
	cfg := CandidateFilterConfig{MaxSentenceDistance: 3, RespectChapterBoundaries: true}

	before := &types.Mention{StartChar: 10, EndChar: 15, SentenceIdx: 3, ChapterIdx: 0}
	after := &types.Mention{StartChar: 200, EndChar: 205, SentenceIdx: 4, ChapterIdx: 0}
	tooFar := &types.Mention{StartChar: 5, EndChar: 9, SentenceIdx: 0, ChapterIdx: 0}
	otherChapter := &types.Mention{StartChar: 20, EndChar: 25, SentenceIdx: 3, ChapterIdx: 1}

	got := FilterCandidates(anaphor, []*types.Mention{before, after, tooFar, otherChapter}, cfg)
	require.Len(t, got, 1)
	assert.Same(t, before, got[0])
}
