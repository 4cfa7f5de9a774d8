package scraper

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreview(t *testing.T) {
	s, _ := newTestScraper()
	now := time.Date(2025, 6, 15, 18, 0, 0, 0, ist)
	site := testSite()
	site.Limit = 2

	var buf bytes.Buffer
	err := Preview(&buf, mustDoc(t, listing), site, s.extractor, 6, now)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `news-test: 6 containers match "article.card" (limit 2)`)
	assert.Contains(t, out, "[1] invalid: title too short")
	assert.Contains(t, out, "[2] ok")
	assert.Contains(t, out, `date:    "Posted on • 2 hours ago" -> 2025-06-15 16:00:00`)
	assert.NotContains(t, out, "[3]")
}
