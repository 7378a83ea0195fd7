// Package feed はニュースフィードの結合と並び替え、固定のシード記事を提供する。
//
// 記事の新しさはタイムスタンプではなく「Hace 2 horas」のような
// 相対時間ラベルで表現され、ラベルごとの順位で並べ替える。
package feed

import "time"

// 相対時間ラベル
const (
	LabelJustNow    = "Hace unos momentos"
	LabelTwoHours   = "Hace 2 horas"
	LabelFiveHours  = "Hace 5 horas"
	LabelOneDay     = "Hace 1 día"
	LabelTwoDays    = "Hace 2 días"
	LabelThreeDays  = "Hace 3 días"
	LabelFourDays   = "Hace 4 días"
	LabelFiveDays   = "Hace 5 días"
	LabelOneWeek    = "Hace 1 semana"
	LabelOlderWeeks = "Hace más de una semana"
)

// rankedLabels は新しい順に並べた既知のラベル。インデックスが順位となる。
var rankedLabels = []string{
	LabelJustNow,
	LabelTwoHours,
	LabelFiveHours,
	LabelOneDay,
	LabelTwoDays,
	LabelThreeDays,
	LabelFourDays,
	LabelFiveDays,
	LabelOneWeek,
}

// UnknownRank は未知のラベルの順位。既知のどのラベルよりも後ろに並ぶ。
var UnknownRank = len(rankedLabels)

// Rank はラベルの順位を返す。小さいほど新しい。
func Rank(label string) int {
	for i, l := range rankedLabels {
		if l == label {
			return i
		}
	}
	return UnknownRank
}

// LabelFor は公開からの経過時間に対応するラベルを返す。
// 1週間を超える経過時間には順位表にないLabelOlderWeeksを返す。
func LabelFor(published, now time.Time) string {
	age := now.Sub(published)
	switch {
	case age < time.Hour:
		return LabelJustNow
	case age < 3*time.Hour:
		return LabelTwoHours
	case age < 24*time.Hour:
		return LabelFiveHours
	}

	days := int(age / (24 * time.Hour))
	switch {
	case days == 1:
		return LabelOneDay
	case days == 2:
		return LabelTwoDays
	case days == 3:
		return LabelThreeDays
	case days == 4:
		return LabelFourDays
	case days == 5:
		return LabelFiveDays
	case days < 14:
		return LabelOneWeek
	default:
		return LabelOlderWeeks
	}
}
