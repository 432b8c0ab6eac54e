// Package generator produces draft post variants from campaign
// metadata. The rule-based implementation composes an opener, the
// campaign pitch, a call to action and a hashtag tail from per-tone
// templates; the variant index selects different templates so the
// batch does not read as copies of one post.
package generator

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"unicode/utf8"

	"campaign_scheduler/internal/domain"
)

// MaxPostChars is the platform's hard post length cap, counted in runes.
const MaxPostChars = 280

// Variant is one generated post candidate before it becomes a draft.
type Variant struct {
	Index        int
	Text         string
	CharCount    int
	HashtagsUsed []string
}

var openers = map[string]map[string][]string{
	"en": {
		"professional": {
			"%s.",
			"A closer look at %s.",
			"Why %s matters now.",
			"%s, explained.",
		},
		"casual": {
			"So, %s!",
			"Let's talk about %s.",
			"Okay, %s. Here's the deal.",
			"You've probably heard about %s.",
		},
		"playful": {
			"Guess what? %s \U0001F389",
			"Plot twist: %s \U0001F440",
			"Big news, people: %s ✨",
			"%s? Yes. Absolutely yes. \U0001F525",
		},
	},
	"tr": {
		"professional": {
			"%s.",
			"%s hakkında bilmeniz gerekenler.",
			"%s neden önemli?",
			"%s üzerine kısa bir not.",
		},
		"casual": {
			"Hadi %s konusuna bakalım.",
			"%s hakkında konuşalım mı?",
			"%s ile ilgili bir haberimiz var.",
			"Duydunuz mu? %s!",
		},
		"playful": {
			"Sürpriz! %s \U0001F389",
			"Haber var: %s ✨",
			"%s mi? Evet, kesinlikle! \U0001F525",
			"Bomba gibi geldik: %s \U0001F440",
		},
	},
}

// maxHashtags caps the hashtag tail regardless of how many the campaign
// carries; more reads as spam on every platform.
const maxHashtags = 4

type RuleBased struct {
	rng *rand.Rand
}

func NewRuleBased(rng *rand.Rand) *RuleBased {
	return &RuleBased{rng: rng}
}

// Generate returns count variants for the campaign. Every variant fits
// MaxPostChars; the hashtag tail and then the description are trimmed
// before the opener is ever touched.
func (g *RuleBased) Generate(ctx context.Context, campaign *domain.Campaign, count int) ([]Variant, error) {
	if count <= 0 {
		return nil, fmt.Errorf("variant count must be positive, got %d", count)
	}

	lang := campaign.Language
	if _, ok := openers[lang]; !ok {
		lang = "en"
	}
	tone := campaign.Tone
	templates, ok := openers[lang][tone]
	if !ok {
		templates = openers[lang]["professional"]
	}

	variants := make([]Variant, 0, count)
	offset := g.rng.Intn(len(templates))
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		opener := fmt.Sprintf(templates[(offset+i)%len(templates)], campaign.Title)
		text, used := g.compose(opener, campaign)
		variants = append(variants, Variant{
			Index:        i,
			Text:         text,
			CharCount:    utf8.RuneCountInString(text),
			HashtagsUsed: used,
		})
	}
	return variants, nil
}

func (g *RuleBased) compose(opener string, campaign *domain.Campaign) (string, []string) {
	parts := []string{opener}
	if campaign.Description != nil && *campaign.Description != "" {
		parts = append(parts, *campaign.Description)
	}
	if campaign.CallToAction != nil && *campaign.CallToAction != "" {
		parts = append(parts, *campaign.CallToAction)
	}

	tags := hashtagTail(campaign.Hashtags)

	// Drop hashtags from the end, then the description, until the post
	// fits. The opener always survives.
	for {
		text := strings.Join(parts, " ")
		if len(tags) > 0 {
			text += " " + strings.Join(tags, " ")
		}
		if utf8.RuneCountInString(text) <= MaxPostChars {
			return text, tags
		}
		if len(tags) > 0 {
			tags = tags[:len(tags)-1]
			continue
		}
		if len(parts) > 1 {
			parts = parts[:len(parts)-1]
			continue
		}
		return truncate(parts[0], MaxPostChars), nil
	}
}

func hashtagTail(hashtags []string) []string {
	tags := make([]string, 0, len(hashtags))
	for _, h := range hashtags {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if !strings.HasPrefix(h, "#") {
			h = "#" + h
		}
		tags = append(tags, h)
		if len(tags) == maxHashtags {
			break
		}
	}
	return tags
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
