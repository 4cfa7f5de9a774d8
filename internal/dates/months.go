package dates

import (
	"strings"
	"time"
)

var monthNames = map[string]time.Month{
	"january":   time.January,
	"february":  time.February,
	"march":     time.March,
	"april":     time.April,
	"may":       time.May,
	"june":      time.June,
	"july":      time.July,
	"august":    time.August,
	"september": time.September,
	"october":   time.October,
	"november":  time.November,
	"december":  time.December,
	"sept":      time.September,

	// Hindi, with the common alternate spellings.
	"जनवरी":   time.January,
	"फरवरी":   time.February,
	"फ़रवरी":  time.February,
	"मार्च":   time.March,
	"अप्रैल":  time.April,
	"अप्रेल":  time.April,
	"मई":      time.May,
	"जून":     time.June,
	"जुलाई":   time.July,
	"अगस्त":   time.August,
	"सितंबर":  time.September,
	"सितम्बर": time.September,
	"अक्टूबर": time.October,
	"अक्तूबर": time.October,
	"नवंबर":   time.November,
	"नवम्बर":  time.November,
	"दिसंबर":  time.December,
	"दिसम्बर": time.December,
}

// lookupMonth accepts full names and three-letter English abbreviations.
func lookupMonth(word string) (time.Month, bool) {
	word = strings.TrimSuffix(strings.ToLower(word), ".")
	if m, ok := monthNames[word]; ok {
		return m, true
	}
	if len(word) == 3 {
		for name, m := range monthNames {
			if len(name) > 3 && strings.HasPrefix(name, word) && name[0] < 0x80 {
				return m, true
			}
		}
	}
	return 0, false
}
