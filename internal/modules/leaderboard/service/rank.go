package service

import (
	"sort"
	"strings"

	"anoa.com/drawsocial/internal/entity"
	leaderboardDto "anoa.com/drawsocial/internal/modules/leaderboard/dto"
)

const (
	GoldPoints   = 100
	SilverPoints = 25
	BronzePoints = 10
)

func Points(counts entity.MedalCounts) int {
	return counts.Gold*GoldPoints + counts.Silver*SilverPoints + counts.Bronze*BronzePoints
}

// Rank orders entries by points descending. Ties go to the case-folded full
// name, then the uid, so input order never matters. Points, Tier and Position
// are recomputed from Medals; the input slice is not modified.
func Rank(entries []leaderboardDto.Entry) []leaderboardDto.Entry {
	ranked := make([]leaderboardDto.Entry, len(entries))
	copy(ranked, entries)

	for i := range ranked {
		ranked[i].Points = Points(ranked[i].Medals)
		ranked[i].Tier = TierFor(ranked[i].Points)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		an, bn := strings.ToLower(a.FullName), strings.ToLower(b.FullName)
		if an != bn {
			return an < bn
		}
		return a.UID < b.UID
	})

	for i := range ranked {
		ranked[i].Position = i + 1
	}
	return ranked
}
