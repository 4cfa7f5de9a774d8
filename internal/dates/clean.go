package dates

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	markerRe    = regexp.MustCompile(`(?i)\b(?:posted|published|updated)(?:\s+on)?\b:?`)
	dashRe      = regexp.MustCompile(`(?:^|\s)[-–—]+(?:\s|$)`)
	separatorRe = regexp.MustCompile(`[•|,·]`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// Clean strips listing-page noise from a raw date string: bylines,
// "Posted on" style markers, bullets, pipes, commas and stray dashes.
func Clean(raw string) string {
	text := strings.TrimSpace(strings.ReplaceAll(raw, "\u00a0", " "))
	if text == "" {
		return ""
	}

	text = stripByline(text)
	text = markerRe.ReplaceAllString(text, " ")
	text = separatorRe.ReplaceAllString(text, " ")
	text = dashRe.ReplaceAllString(text, " ")
	text = spaceRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// stripByline drops "by" and the name tokens after it. The name ends at the
// first token that could belong to the date.
func stripByline(text string) string {
	tokens := strings.Fields(text)
	out := make([]string, 0, len(tokens))

	for i := 0; i < len(tokens); i++ {
		tok := strings.ToLower(tokens[i])
		if tok != "by" && tok != "by:" {
			out = append(out, tokens[i])
			continue
		}
		j := i + 1
		for j < len(tokens) && !endsByline(tokens[j]) {
			j++
		}
		i = j - 1
	}

	return strings.Join(out, " ")
}

func endsByline(tok string) bool {
	for _, r := range tok {
		if unicode.IsDigit(r) {
			return true
		}
	}

	word := strings.ToLower(strings.TrimFunc(tok, func(r rune) bool {
		return unicode.IsPunct(r) && r != '|'
	}))
	if word == "" || strings.ContainsAny(tok, "|•") {
		return true
	}
	if _, ok := lookupMonth(word); ok {
		return true
	}
	switch word {
	case "on", "posted", "published", "updated", "ago", "today", "yesterday", "-", "–", "—":
		return true
	}
	return containsAny(word, agoWords) || containsAny(word, todayWords) || containsAny(word, yesterdayWords)
}
