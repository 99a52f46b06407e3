package rewind

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/riftline/rift-rewind/internal/riot"
	"github.com/sirupsen/logrus"
)

// RiotAPI is the slice of the domain client the aggregator drives.
type RiotAPI interface {
	AccountByRiotID(ctx context.Context, gameName, tagLine, region string) (*riot.Account, error)
	SummonerByPUUID(ctx context.Context, puuid, region string) (*riot.Summoner, error)
	MatchIDs(ctx context.Context, puuid, region string, start, count, queue int) ([]string, error)
	Match(ctx context.Context, matchID, region string) (*riot.Match, error)
}

// AggregatorConfig carries the pagination tunables.
type AggregatorConfig struct {
	// PageSize is the match listing page size, capped upstream at 100.
	PageSize int
	// OutOfWindowStop is how many consecutive pre-window matches end
	// pagination early. Match listings are reverse-chronological by
	// upstream contract; if that ever breaks this heuristic under-collects
	// rather than failing, which is the accepted trade.
	OutOfWindowStop int
	// Queue filters the listing to one competition mode; <= 0 disables it.
	Queue int
}

func (c *AggregatorConfig) applyDefaults() {
	if c.PageSize <= 0 || c.PageSize > 100 {
		c.PageSize = 100
	}
	if c.OutOfWindowStop <= 0 {
		c.OutOfWindowStop = 10
	}
}

// Aggregator drives bulk match-history pagination and reduces the season's
// matches into a Summary. Everything it fetches flows through the cache, so
// a repeated run against an unchanged history costs zero upstream calls.
type Aggregator struct {
	client RiotAPI
	cfg    AggregatorConfig
	logger *logrus.Logger
}

func NewAggregator(client RiotAPI, cfg AggregatorConfig, logger *logrus.Logger) *Aggregator {
	cfg.applyDefaults()
	return &Aggregator{client: client, cfg: cfg, logger: logger}
}

// BuildRewind resolves the player identity, walks their match history over
// [windowStart, windowEnd] (inclusive on both ends), and reduces it.
func (a *Aggregator) BuildRewind(ctx context.Context, gameName, tagLine, region string, windowStart, windowEnd time.Time) (*Summary, error) {
	account, err := a.client.AccountByRiotID(ctx, gameName, tagLine, region)
	if err != nil {
		return nil, err
	}

	summoner, err := a.client.SummonerByPUUID(ctx, account.PUUID, region)
	if err != nil {
		return nil, err
	}

	facts, skipped, err := a.collect(ctx, account.PUUID, region, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	summary := summarize(facts, skipped)
	summary.GameName = account.GameName
	summary.TagLine = account.TagLine
	summary.PUUID = account.PUUID
	summary.Level = summoner.SummonerLevel
	summary.WindowStart = windowStart
	summary.WindowEnd = windowEnd

	a.logger.WithFields(logrus.Fields{
		"player":  fmt.Sprintf("%s#%s", account.GameName, account.TagLine),
		"games":   summary.TotalGames,
		"skipped": summary.SkippedRecords,
	}).Info("Season rewind built")

	return &summary, nil
}

// collect paginates the match listing and accumulates in-window facts.
// Pagination ends on two consecutive empty pages, or early once
// OutOfWindowStop consecutive matches predate the window.
func (a *Aggregator) collect(ctx context.Context, puuid, region string, windowStart, windowEnd time.Time) ([]MatchFact, int, error) {
	startMs := windowStart.UnixMilli()
	endMs := windowEnd.UnixMilli()

	var facts []MatchFact
	skipped := 0
	offset := 0
	emptyPages := 0
	consecutivePreWindow := 0

	for {
		ids, err := a.client.MatchIDs(ctx, puuid, region, offset, a.cfg.PageSize, a.cfg.Queue)
		if err != nil {
			return nil, 0, err
		}
		offset += a.cfg.PageSize

		if len(ids) == 0 {
			emptyPages++
			// One empty page can be a transient upstream hiccup; two in a
			// row means the history is exhausted.
			if emptyPages >= 2 {
				break
			}
			continue
		}
		emptyPages = 0

		stop := false
		for _, matchID := range ids {
			match, err := a.client.Match(ctx, matchID, region)
			if err != nil {
				if recoverable(err) {
					a.logger.Warnf("Skipping match %s: %v", matchID, err)
					skipped++
					continue
				}
				return nil, 0, err
			}

			created := match.Info.GameCreation
			if created < startMs {
				consecutivePreWindow++
				if consecutivePreWindow >= a.cfg.OutOfWindowStop {
					a.logger.Debugf("Stopping pagination after %d consecutive pre-window matches", consecutivePreWindow)
					stop = true
					break
				}
				continue
			}
			consecutivePreWindow = 0

			if created > endMs {
				continue
			}

			fact, ok := reduce(match, puuid)
			if !ok {
				skipped++
				continue
			}
			facts = append(facts, fact)
		}
		if stop {
			break
		}
	}

	return facts, skipped, nil
}

// reduce extracts the queried player's participant record from a match.
func reduce(match *riot.Match, puuid string) (MatchFact, bool) {
	if match.Metadata.MatchID == "" {
		return MatchFact{}, false
	}
	for _, p := range match.Info.Participants {
		if p.PUUID != puuid {
			continue
		}
		return MatchFact{
			MatchID:      match.Metadata.MatchID,
			ChampionID:   p.ChampionID,
			ChampionName: p.ChampionName,
			Win:          p.Win,
			Kills:        p.Kills,
			Deaths:       p.Deaths,
			Assists:      p.Assists,
			GameCreation: match.Info.GameCreation,
			DurationSec:  match.Info.GameDuration,
		}, true
	}
	return MatchFact{}, false
}

// recoverable reports whether a per-match failure should be skipped rather
// than aborting the whole aggregation. Not-found and malformed payloads are
// local to one record; auth and rate-limit exhaustion are not.
func recoverable(err error) bool {
	switch err.(type) {
	case *riot.NotFoundError:
		return true
	case *riot.ValidationError:
		return true
	}
	var upstream *riot.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Status == 0 // malformed payload, no usable status
	}
	return false
}
