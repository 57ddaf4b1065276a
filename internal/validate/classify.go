package validate

import (
	"strings"
	"unicode"

	"focusaura/internal/domain"
)

type keywordRule struct {
	keyword  string
	category domain.Category
}

// keywordRules is matched in order against the event's tokens; the first
// keyword present as a whole token wins.
var keywordRules = []keywordRule{
	{"video", domain.CategoryVideo},
	{"videos", domain.CategoryVideo},
	{"youtube", domain.CategoryVideo},
	{"netflix", domain.CategoryVideo},
	{"twitch", domain.CategoryVideo},
	{"stream", domain.CategoryVideo},
	{"streaming", domain.CategoryVideo},
	{"social", domain.CategorySocial},
	{"twitter", domain.CategorySocial},
	{"facebook", domain.CategorySocial},
	{"instagram", domain.CategorySocial},
	{"reddit", domain.CategorySocial},
	{"tiktok", domain.CategorySocial},
	{"linkedin", domain.CategorySocial},
	{"news", domain.CategoryNews},
	{"shop", domain.CategoryShopping},
	{"shopping", domain.CategoryShopping},
	{"amazon", domain.CategoryShopping},
	{"ebay", domain.CategoryShopping},
	{"game", domain.CategoryGaming},
	{"games", domain.CategoryGaming},
	{"gaming", domain.CategoryGaming},
	{"steam", domain.CategoryGaming},
	{"idle", domain.CategoryIdle},
	{"afk", domain.CategoryIdle},
}

// Classify maps a free-text event tag to a distraction category. The input is
// lower-cased and split into tokens on anything that is not a letter or digit,
// so "switched_to_youtube" and "youtube.com" both yield the token "youtube"
// while "workshop" does not match "shop". Anything without a known keyword is
// CategoryUnknown.
func Classify(event string) domain.Category {
	e := strings.ToLower(strings.TrimSpace(event))
	if e == "" {
		return domain.CategoryUnknown
	}
	for _, c := range domain.Categories() {
		if e == string(c) {
			return c
		}
	}
	tokens := map[string]bool{}
	for _, tok := range strings.FieldsFunc(e, isSeparator) {
		tokens[tok] = true
	}
	for _, rule := range keywordRules {
		if tokens[rule.keyword] {
			return rule.category
		}
	}
	return domain.CategoryUnknown
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
