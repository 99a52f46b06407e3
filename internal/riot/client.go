package riot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/riftline/rift-rewind/internal/cache"
	"github.com/sirupsen/logrus"
)

// dispatcher is the slice of the scheduler the client depends on.
type dispatcher interface {
	Do(ctx context.Context, req Request) (json.RawMessage, error)
}

// Client is the typed accessor layer over the scheduler and cache. Every
// accessor validates its inputs, tries the cache, issues at most one
// scheduler call on a miss, and normalizes upstream failures into the
// package's error taxonomy.
type Client struct {
	sched  dispatcher
	cache  *cache.Layered
	logger *logrus.Logger
}

func NewClient(sched dispatcher, layered *cache.Layered, logger *logrus.Logger) *Client {
	return &Client{
		sched:  sched,
		cache:  layered,
		logger: logger,
	}
}

// AccountByRiotID resolves a "name#tag" identifier to an account. Served on
// regional routing; account-v1 has no sea cluster.
func (c *Client) AccountByRiotID(ctx context.Context, gameName, tagLine, region string) (*Account, error) {
	if gameName == "" {
		return nil, &ValidationError{Field: "gameName", Reason: "must not be empty"}
	}
	if tagLine == "" {
		return nil, &ValidationError{Field: "tagLine", Reason: "must not be empty"}
	}

	key := cache.NewKey(cache.PrefixAccount, gameName, tagLine, region)
	var account Account
	if ok, err := c.fetch(ctx, key, Request{
		Endpoint:   "account-by-riot-id",
		Path:       fmt.Sprintf("/riot/account/v1/accounts/by-riot-id/%s/%s", url.PathEscape(gameName), url.PathEscape(tagLine)),
		RegionHint: region,
		Scope:      ScopeRegionNoSEA,
	}, &account); err != nil {
		return nil, c.normalize(err, fmt.Sprintf("account %s#%s", gameName, tagLine))
	} else if !ok {
		return nil, &UpstreamError{Endpoint: "account-by-riot-id", Status: 0, Body: "malformed account payload"}
	}
	return &account, nil
}

// SummonerByPUUID fetches the profile summary. Served on platform routing.
func (c *Client) SummonerByPUUID(ctx context.Context, puuid, region string) (*Summoner, error) {
	if puuid == "" {
		return nil, &ValidationError{Field: "puuid", Reason: "must not be empty"}
	}

	key := cache.NewKey(cache.PrefixSummoner, puuid, region)
	var summoner Summoner
	if ok, err := c.fetch(ctx, key, Request{
		Endpoint:   "summoner-by-puuid",
		Path:       "/lol/summoner/v4/summoners/by-puuid/" + url.PathEscape(puuid),
		RegionHint: region,
		Scope:      ScopePlatform,
	}, &summoner); err != nil {
		return nil, c.normalize(err, "summoner for puuid "+puuid)
	} else if !ok {
		return nil, &UpstreamError{Endpoint: "summoner-by-puuid", Status: 0, Body: "malformed summoner payload"}
	}
	return &summoner, nil
}

// MatchIDs lists one page of match identifiers for a player, newest first.
// count is capped at 100 by the upstream. queue <= 0 means no queue filter.
func (c *Client) MatchIDs(ctx context.Context, puuid, region string, start, count, queue int) ([]string, error) {
	if puuid == "" {
		return nil, &ValidationError{Field: "puuid", Reason: "must not be empty"}
	}
	if count <= 0 || count > 100 {
		count = 100
	}
	if start < 0 {
		start = 0
	}

	query := url.Values{}
	query.Set("start", strconv.Itoa(start))
	query.Set("count", strconv.Itoa(count))
	if queue > 0 {
		query.Set("queue", strconv.Itoa(queue))
	}

	key := cache.NewKey(cache.PrefixMatchIDs, puuid, region, strconv.Itoa(start), strconv.Itoa(count), strconv.Itoa(queue))
	var ids []string
	if ok, err := c.fetch(ctx, key, Request{
		Endpoint:   "match-ids",
		Path:       fmt.Sprintf("/lol/match/v5/matches/by-puuid/%s/ids", url.PathEscape(puuid)),
		Query:      query,
		RegionHint: region,
		Scope:      ScopeRegion,
	}, &ids); err != nil {
		return nil, c.normalize(err, "match ids for puuid "+puuid)
	} else if !ok {
		return nil, &UpstreamError{Endpoint: "match-ids", Status: 0, Body: "malformed match id payload"}
	}
	return ids, nil
}

// Match fetches full match details. Closed matches are immutable, which is
// what makes the permanent disk tier safe.
func (c *Client) Match(ctx context.Context, matchID, region string) (*Match, error) {
	if matchID == "" {
		return nil, &ValidationError{Field: "matchId", Reason: "must not be empty"}
	}

	key := cache.NewKey(cache.PrefixMatchDetails, matchID, region)
	var match Match
	if ok, err := c.fetch(ctx, key, Request{
		Endpoint:   "match-details",
		Path:       "/lol/match/v5/matches/" + url.PathEscape(matchID),
		RegionHint: region,
		Scope:      ScopeRegion,
	}, &match); err != nil {
		return nil, c.normalize(err, "match "+matchID)
	} else if !ok {
		return nil, &UpstreamError{Endpoint: "match-details", Status: 0, Body: "malformed match payload"}
	}
	return &match, nil
}

// fetch is the shared cache-then-schedule path. It reports ok=false when the
// payload failed to decode into target.
func (c *Client) fetch(ctx context.Context, key cache.Key, req Request, target interface{}) (bool, error) {
	if payload, ok := c.cache.Get(key); ok {
		if err := json.Unmarshal(payload, target); err == nil {
			return true, nil
		}
		// A cached payload that no longer decodes is dropped and refetched.
		c.logger.Warnf("Dropping undecodable cache entry for %s", key.Prefix)
		c.cache.Delete(key)
	}

	payload, err := c.sched.Do(ctx, req)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return false, nil
	}
	// Disk write failures are logged inside the cache; the response is
	// still good, so the caller proceeds either way.
	_ = c.cache.Set(key, payload)
	return true, nil
}

// normalize maps scheduler rejections onto the caller-facing taxonomy.
func (c *Client) normalize(err error, context string) error {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		switch upstream.Status {
		case http.StatusNotFound:
			return &NotFoundError{Context: context}
		case http.StatusUnauthorized, http.StatusForbidden:
			return &AuthError{}
		case http.StatusTooManyRequests:
			return &RateLimitedError{Endpoint: upstream.Endpoint}
		}
	}
	return err
}
