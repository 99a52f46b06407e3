package rewind

import (
	"sort"
	"time"
)

// MatchFact is the reduced, read-only form of one match from the queried
// player's point of view. Held only for the duration of one rewind run.
type MatchFact struct {
	MatchID      string
	ChampionID   int
	ChampionName string
	Win          bool
	Kills        int
	Deaths       int
	Assists      int
	GameCreation int64
	DurationSec  int64
}

// ChampionCount is one entry of the top-champions table.
type ChampionCount struct {
	ChampionName string  `json:"champion"`
	Games        int     `json:"games"`
	Wins         int     `json:"wins"`
	WinRate      float64 `json:"win_rate"`
}

// Summary is the year-end rewind output.
type Summary struct {
	GameName string `json:"game_name"`
	TagLine  string `json:"tag_line"`
	PUUID    string `json:"puuid"`
	Level    int    `json:"summoner_level"`

	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	TotalGames int     `json:"total_games"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	WinRate    float64 `json:"win_rate"`

	Kills      int     `json:"kills"`
	Deaths     int     `json:"deaths"`
	Assists    int     `json:"assists"`
	AvgKills   float64 `json:"avg_kills"`
	AvgDeaths  float64 `json:"avg_deaths"`
	AvgAssists float64 `json:"avg_assists"`
	KDA        float64 `json:"kda"`

	TopChampions     []ChampionCount `json:"top_champions"`
	LongestWinStreak int             `json:"longest_win_streak"`
	TotalPlaySeconds int64           `json:"total_play_seconds"`

	SkippedRecords int `json:"skipped_records"`
}

// summarize reduces the collected facts into the Summary's derived stats.
// Facts arrive newest first; streaks are computed over chronological order.
func summarize(facts []MatchFact, skipped int) Summary {
	s := Summary{SkippedRecords: skipped, TotalGames: len(facts)}
	if len(facts) == 0 {
		return s
	}

	byChampion := make(map[string]*ChampionCount)
	for _, f := range facts {
		if f.Win {
			s.Wins++
		}
		s.Kills += f.Kills
		s.Deaths += f.Deaths
		s.Assists += f.Assists
		s.TotalPlaySeconds += f.DurationSec

		cc := byChampion[f.ChampionName]
		if cc == nil {
			cc = &ChampionCount{ChampionName: f.ChampionName}
			byChampion[f.ChampionName] = cc
		}
		cc.Games++
		if f.Win {
			cc.Wins++
		}
	}
	s.Losses = s.TotalGames - s.Wins

	games := float64(s.TotalGames)
	s.WinRate = float64(s.Wins) / games
	s.AvgKills = float64(s.Kills) / games
	s.AvgDeaths = float64(s.Deaths) / games
	s.AvgAssists = float64(s.Assists) / games
	if s.Deaths > 0 {
		s.KDA = float64(s.Kills+s.Assists) / float64(s.Deaths)
	} else {
		s.KDA = float64(s.Kills + s.Assists)
	}

	champions := make([]ChampionCount, 0, len(byChampion))
	for _, cc := range byChampion {
		cc.WinRate = float64(cc.Wins) / float64(cc.Games)
		champions = append(champions, *cc)
	}
	sort.Slice(champions, func(i, j int) bool {
		if champions[i].Games != champions[j].Games {
			return champions[i].Games > champions[j].Games
		}
		return champions[i].ChampionName < champions[j].ChampionName
	})
	if len(champions) > 5 {
		champions = champions[:5]
	}
	s.TopChampions = champions

	s.LongestWinStreak = longestWinStreak(facts)
	return s
}

func longestWinStreak(facts []MatchFact) int {
	ordered := make([]MatchFact, len(facts))
	copy(ordered, facts)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].GameCreation < ordered[j].GameCreation
	})

	best, current := 0, 0
	for _, f := range ordered {
		if f.Win {
			current++
			if current > best {
				best = current
			}
		} else {
			current = 0
		}
	}
	return best
}
