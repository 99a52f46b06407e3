package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftline/rift-rewind/internal/rewind"
	"github.com/riftline/rift-rewind/internal/riot"
	"github.com/riftline/rift-rewind/pkg/config"
	"github.com/riftline/rift-rewind/pkg/utils"
)

type stubRiot struct {
	err error
}

func (s *stubRiot) AccountByRiotID(ctx context.Context, gameName, tagLine, region string) (*riot.Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &riot.Account{PUUID: "p-1", GameName: gameName, TagLine: tagLine}, nil
}

func (s *stubRiot) SummonerByPUUID(ctx context.Context, puuid, region string) (*riot.Summoner, error) {
	return &riot.Summoner{PUUID: puuid, SummonerLevel: 42}, nil
}

func (s *stubRiot) MatchIDs(ctx context.Context, puuid, region string, start, count, queue int) ([]string, error) {
	return nil, nil
}

func (s *stubRiot) Match(ctx context.Context, matchID, region string) (*riot.Match, error) {
	return nil, &riot.NotFoundError{Context: "match " + matchID}
}

func newRewindRouter(stub *stubRiot) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	agg := rewind.NewAggregator(stub, rewind.AggregatorConfig{}, logger)
	handler := NewRewindHandler(agg, &config.Config{}, logger)

	router := gin.New()
	router.GET("/rewind", handler.GetRewind)
	return router
}

func doRequest(t *testing.T, router *gin.Engine, target string) (*httptest.ResponseRecorder, utils.Response) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	router.ServeHTTP(w, req)

	var body utils.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestGetRewindRequiresNameAndTag(t *testing.T) {
	router := newRewindRouter(&stubRiot{})

	w, body := doRequest(t, router, "/rewind?name=Faker")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, utils.ErrCodeValidation, body.Error.Code)
}

func TestGetRewindRejectsBadWindow(t *testing.T) {
	router := newRewindRouter(&stubRiot{})

	w, body := doRequest(t, router, "/rewind?name=Faker&tag=KR1&from=yesterday")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, utils.ErrCodeValidation, body.Error.Code)
}

func TestGetRewindSuccess(t *testing.T) {
	router := newRewindRouter(&stubRiot{})

	w, body := doRequest(t, router, "/rewind?name=Faker&tag=KR1&region=kr")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.Success)

	data, err := json.Marshal(body.Data)
	require.NoError(t, err)
	var summary rewind.Summary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, "Faker", summary.GameName)
	assert.Equal(t, 42, summary.Level)
}

func TestGetRewindMapsNotFound(t *testing.T) {
	router := newRewindRouter(&stubRiot{err: &riot.NotFoundError{Context: "account Faker#KR1"}})

	w, body := doRequest(t, router, "/rewind?name=Faker&tag=KR1")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, utils.ErrCodeNotFound, body.Error.Code)
}

func TestGetRewindMapsRateLimit(t *testing.T) {
	router := newRewindRouter(&stubRiot{err: &riot.RateLimitedError{Endpoint: "match-ids"}})

	w, body := doRequest(t, router, "/rewind?name=Faker&tag=KR1")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, utils.ErrCodeRateLimited, body.Error.Code)
}

func TestGetRewindMapsCredentialFailure(t *testing.T) {
	router := newRewindRouter(&stubRiot{err: riot.ErrNoKeysAvailable})

	w, body := doRequest(t, router, "/rewind?name=Faker&tag=KR1")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, utils.ErrCodeAuth, body.Error.Code)
}
