package generator

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign_scheduler/internal/domain"
	"campaign_scheduler/testdata/utils"
)

func newTestGenerator() *RuleBased {
	return NewRuleBased(rand.New(rand.NewSource(7)))
}

func testCampaign() *domain.Campaign {
	return &domain.Campaign{
		Title:        "Spring Launch",
		Description:  utils.Ptr("Our biggest release of the year."),
		Language:     "en",
		Tone:         "professional",
		Hashtags:     []string{"launch", "#spring"},
		CallToAction: utils.Ptr("Join the waitlist today."),
	}
}

func TestGenerateCount(t *testing.T) {
	g := newTestGenerator()

	variants, err := g.Generate(context.Background(), testCampaign(), 5)
	require.NoError(t, err)
	require.Len(t, variants, 5)

	for i, v := range variants {
		assert.Equal(t, i, v.Index)
		assert.NotEmpty(t, v.Text)
		assert.Equal(t, utf8.RuneCountInString(v.Text), v.CharCount)
	}
}

func TestGenerateRespectsCharLimit(t *testing.T) {
	g := newTestGenerator()
	campaign := testCampaign()
	campaign.Description = utils.Ptr(strings.Repeat("A very long description sentence. ", 20))

	variants, err := g.Generate(context.Background(), campaign, 4)
	require.NoError(t, err)

	for _, v := range variants {
		assert.LessOrEqual(t, v.CharCount, MaxPostChars)
		assert.Contains(t, v.Text, "Spring Launch", "the opener always survives trimming")
	}
}

func TestGenerateNormalizesHashtags(t *testing.T) {
	g := newTestGenerator()
	campaign := testCampaign()
	campaign.Description = nil
	campaign.CallToAction = nil

	variants, err := g.Generate(context.Background(), campaign, 1)
	require.NoError(t, err)
	require.Len(t, variants[0].HashtagsUsed, 2)

	for _, h := range variants[0].HashtagsUsed {
		assert.True(t, strings.HasPrefix(h, "#"), "hashtag %q missing # prefix", h)
		assert.Contains(t, variants[0].Text, h)
	}
}

func TestGenerateHashtagBudget(t *testing.T) {
	g := newTestGenerator()
	campaign := testCampaign()
	campaign.Hashtags = []string{"one", "two", "three", "four", "five", "six"}

	variants, err := g.Generate(context.Background(), campaign, 1)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(variants[0].HashtagsUsed), maxHashtags)
}

func TestGenerateVariantsDiffer(t *testing.T) {
	g := newTestGenerator()

	variants, err := g.Generate(context.Background(), testCampaign(), 3)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, v := range variants {
		assert.False(t, seen[v.Text], "variant texts should not repeat within a batch")
		seen[v.Text] = true
	}
}

func TestGenerateUnknownLanguageFallsBack(t *testing.T) {
	g := newTestGenerator()
	campaign := testCampaign()
	campaign.Language = "xx"
	campaign.Tone = "mysterious"

	variants, err := g.Generate(context.Background(), campaign, 2)
	require.NoError(t, err)
	assert.Len(t, variants, 2)
}

func TestGenerateTurkishTemplates(t *testing.T) {
	g := newTestGenerator()
	campaign := testCampaign()
	campaign.Language = "tr"
	campaign.Tone = "casual"

	variants, err := g.Generate(context.Background(), campaign, 2)
	require.NoError(t, err)
	for _, v := range variants {
		assert.Contains(t, v.Text, "Spring Launch")
	}
}

func TestGenerateInvalidCount(t *testing.T) {
	g := newTestGenerator()
	_, err := g.Generate(context.Background(), testCampaign(), 0)
	require.Error(t, err)
}
