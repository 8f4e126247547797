package memory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polaris-ecosystems/rfp-agent/internal/memory"
)

func TestExtractKeywordsDropsStopwordsAndShortTokens(t *testing.T) {
	keywords := memory.ExtractKeywords("The quick fox and a big deadline for the RFP submission")
	assert.NotContains(t, keywords, "the")
	assert.NotContains(t, keywords, "and")
	assert.NotContains(t, keywords, "a")
	assert.Contains(t, keywords, "quick")
	assert.Contains(t, keywords, "deadline")
	assert.Contains(t, keywords, "submission")
}

func TestExtractKeywordsDeduplicates(t *testing.T) {
	keywords := memory.ExtractKeywords("deadline deadline deadline")
	assert.Equal(t, []string{"deadline"}, keywords)
}

func TestExtractTagsCapsAtFive(t *testing.T) {
	tags := memory.ExtractTags("alpha bravo charlie delta echo foxtrot golf hotel")
	assert.LessOrEqual(t, len(tags), 5)
}
