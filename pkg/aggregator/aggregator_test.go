package aggregator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeywordScoreNoKeywordsMatchesEverything(t *testing.T) {
	require.Equal(t, float64(1), keywordScore(nil, "anything", ""))
}

func TestKeywordScoreCountsCaseInsensitiveHits(t *testing.T) {
	score := keywordScore([]string{"Weather", "forecast"}, "weather-lookup", "returns a local forecast")
	require.Equal(t, float64(2), score)
}

func TestKeywordScoreZeroOnNoMatch(t *testing.T) {
	score := keywordScore([]string{"nope"}, "weather-lookup", "returns a forecast")
	require.Equal(t, float64(0), score)
}
