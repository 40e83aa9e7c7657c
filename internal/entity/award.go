package entity

import (
	"fmt"
	"strings"
	"time"
)

type MedalType string

const (
	MedalGold   MedalType = "gold"
	MedalSilver MedalType = "silver"
	MedalBronze MedalType = "bronze"
)

// Medals lists the medal types from highest to lowest.
var Medals = []MedalType{MedalGold, MedalSilver, MedalBronze}

func ParseMedal(s string) (MedalType, error) {
	m := MedalType(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown medal type %q", s)
	}
	return m, nil
}

func (m MedalType) Valid() bool {
	switch m {
	case MedalGold, MedalSilver, MedalBronze:
		return true
	}
	return false
}

// DayLayout is the calendar-day key format. Days are always UTC.
const DayLayout = "2006-01-02"

func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// AwardUsage is the giver's daily quota at users/<giver>/awardUsage/<day>.
// Each flag flips false to true at most once per day.
type AwardUsage struct {
	Day        string `json:"day" validate:"required,datetime=2006-01-02"`
	GoldUsed   bool   `json:"goldUsed"`
	SilverUsed bool   `json:"silverUsed"`
	BronzeUsed bool   `json:"bronzeUsed"`
}

func (u AwardUsage) Used(m MedalType) bool {
	switch m {
	case MedalGold:
		return u.GoldUsed
	case MedalSilver:
		return u.SilverUsed
	case MedalBronze:
		return u.BronzeUsed
	}
	return false
}

func (u *AwardUsage) MarkUsed(m MedalType) {
	switch m {
	case MedalGold:
		u.GoldUsed = true
	case MedalSilver:
		u.SilverUsed = true
	case MedalBronze:
		u.BronzeUsed = true
	}
}

// AwardRecord is the giver's active medal on a recipient, stored at
// users/<recipient>/awards/<giver>. At most one flag is true.
type AwardRecord struct {
	GiverUID  string    `json:"giverUid" validate:"required"`
	Gold      bool      `json:"gold"`
	Silver    bool      `json:"silver"`
	Bronze    bool      `json:"bronze"`
	UpdatedAt time.Time `json:"updatedAt" validate:"required"`
}

// Grant makes m the only active medal.
func (r *AwardRecord) Grant(m MedalType, at time.Time) {
	r.Gold = m == MedalGold
	r.Silver = m == MedalSilver
	r.Bronze = m == MedalBronze
	r.UpdatedAt = at
}

func (r AwardRecord) Active() (MedalType, bool) {
	switch {
	case r.Gold:
		return MedalGold, true
	case r.Silver:
		return MedalSilver, true
	case r.Bronze:
		return MedalBronze, true
	}
	return "", false
}

type MedalCounts struct {
	Gold   int `json:"gold"`
	Silver int `json:"silver"`
	Bronze int `json:"bronze"`
}

func (c *MedalCounts) Add(r AwardRecord) {
	if r.Gold {
		c.Gold++
	}
	if r.Silver {
		c.Silver++
	}
	if r.Bronze {
		c.Bronze++
	}
}
