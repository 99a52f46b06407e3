package rewind

import (
	"context"
	"encoding/json"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftline/rift-rewind/internal/cache"
	"github.com/riftline/rift-rewind/internal/riot"
)

// countingDispatcher stands in for the scheduler and serves a small canned
// history, counting every call that reaches it.
type countingDispatcher struct {
	calls   int
	matches map[string]*riot.Match
}

func (d *countingDispatcher) Do(ctx context.Context, req riot.Request) (json.RawMessage, error) {
	d.calls++
	switch req.Endpoint {
	case "account-by-riot-id":
		return json.RawMessage(`{"puuid":"puuid-under-test","gameName":"Faker","tagLine":"KR1"}`), nil
	case "summoner-by-puuid":
		return json.RawMessage(`{"puuid":"puuid-under-test","summonerLevel":512}`), nil
	case "match-ids":
		if req.Query.Get("start") == "0" {
			return json.RawMessage(`["KR_1","KR_2"]`), nil
		}
		return json.RawMessage(`[]`), nil
	case "match-details":
		m, ok := d.matches[path.Base(req.Path)]
		if !ok {
			return nil, &riot.UpstreamError{Endpoint: req.Endpoint, Status: 404}
		}
		return json.Marshal(m)
	}
	return nil, &riot.UpstreamError{Endpoint: req.Endpoint, Status: 404}
}

// A rewind against an unchanged history must cost zero upstream calls the
// second time: every payload, including empty listing pages, is cached.
func TestRepeatedRewindServedEntirelyFromCache(t *testing.T) {
	start, end := window()
	dispatcher := &countingDispatcher{matches: map[string]*riot.Match{
		"KR_1": mkMatch("KR_1", start.UnixMilli()+2000, true, "Ahri"),
		"KR_2": mkMatch("KR_2", start.UnixMilli()+1000, false, "Jinx"),
	}}

	logger := testLogger()
	disk, err := cache.NewDiskTier(t.TempDir(), logger)
	require.NoError(t, err)
	layered := cache.NewLayered(cache.NewMemoryTier(64), disk, logger)
	client := riot.NewClient(dispatcher, layered, logger)

	agg := NewAggregator(client, AggregatorConfig{}, logger)

	first, err := agg.BuildRewind(context.Background(), "Faker", "KR1", "kr", start, end)
	require.NoError(t, err)
	assert.Equal(t, 2, first.TotalGames)
	// account + summoner + three listing pages + two matches
	assert.Equal(t, 7, dispatcher.calls)

	second, err := agg.BuildRewind(context.Background(), "Faker", "KR1", "kr", start, end)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 7, dispatcher.calls, "second run must not reach the scheduler")
}
