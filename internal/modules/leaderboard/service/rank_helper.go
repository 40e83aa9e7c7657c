package service

import (
	"math"

	commonDto "anoa.com/drawsocial/pkg/dto"
)

// Tier thresholds on leaderboard points. Tiers never demote because medal
// counts only change when a giver moves their medal.
const (
	PointsMaster      = 15000
	PointsArtist      = 5000
	PointsIllustrator = 1500
	PointsSketcher    = 500
	PointsDoodler     = 100
	PointsNewcomer    = 0
)

var tiers = []struct {
	name   string
	points int
}{
	{"Master", PointsMaster},
	{"Artist", PointsArtist},
	{"Illustrator", PointsIllustrator},
	{"Sketcher", PointsSketcher},
	{"Doodler", PointsDoodler},
	{"Newcomer", PointsNewcomer},
}

// TierFor places points on the tier ladder.
func TierFor(points int) commonDto.TierStatus {
	status := commonDto.TierStatus{CurrentPoints: points}

	for i, tier := range tiers {
		if points < tier.points {
			continue
		}
		status.Tier = tier.name
		if i == 0 {
			status.NextTier = "Max Level"
			status.TargetPoints = tier.points
			status.Progress = 100
			return status
		}
		next := tiers[i-1]
		status.NextTier = next.name
		status.TargetPoints = next.points
		status.Progress = math.Round(float64(points)/float64(next.points)*100*100) / 100
		return status
	}

	// Negative points cannot come from medal counts.
	status.Tier = "Newcomer"
	status.NextTier = "Doodler"
	status.TargetPoints = PointsDoodler
	return status
}
