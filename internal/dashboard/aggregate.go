package dashboard

import (
	"sort"

	"github.com/hitoshi/feedbackflow/internal/model"
)

// RecentLimit は従業員ダッシュボードに表示する最新フィードバックの件数。
const RecentLimit = 2

// Badge はチームメンバーの傾向バッジ。
type Badge string

const (
	BadgePositive       Badge = "Positive"
	BadgeMixed          Badge = "Mixed"
	BadgeNeedsAttention Badge = "Needs Attention"
)

// SentimentCounts はSentimentごとの件数。
type SentimentCounts struct {
	Positive int
	Neutral  int
	Negative int
}

// Total は合計件数を返す。
func (c SentimentCounts) Total() int {
	return c.Positive + c.Neutral + c.Negative
}

// Of は指定したSentimentの件数を返す。
func (c SentimentCounts) Of(s model.Sentiment) int {
	switch s {
	case model.SentimentPositive:
		return c.Positive
	case model.SentimentNeutral:
		return c.Neutral
	case model.SentimentNegative:
		return c.Negative
	default:
		return 0
	}
}

func (c *SentimentCounts) add(s model.Sentiment) {
	switch s {
	case model.SentimentPositive:
		c.Positive++
	case model.SentimentNeutral:
		c.Neutral++
	case model.SentimentNegative:
		c.Negative++
	}
}

// Dominant は件数から傾向バッジを決める。
// Positiveが他以上ならPositive、そうでなくNeutralがNegative以上ならMixed、それ以外はNeeds Attention。
func (c SentimentCounts) Dominant() Badge {
	switch {
	case c.Positive >= c.Neutral && c.Positive >= c.Negative:
		return BadgePositive
	case c.Neutral >= c.Negative:
		return BadgeMixed
	default:
		return BadgeNeedsAttention
	}
}

// CountSentiments はチームメンバー宛てのフィードバックだけをSentimentごとに数える。
// チームに属さない宛先のレコードは除外する。
func CountSentiments(feedbacks []model.Feedback, team []model.Employee) SentimentCounts {
	members := make(map[string]struct{}, len(team))
	for _, e := range team {
		members[e.UID] = struct{}{}
	}

	var c SentimentCounts
	for _, f := range feedbacks {
		if _, ok := members[f.To]; !ok {
			continue
		}
		c.add(f.Sentiment)
	}
	return c
}

// MemberSummary はチームメンバー1人分の集計。
type MemberSummary struct {
	Employee model.Employee
	Counts   SentimentCounts
	Badge    Badge
}

// MemberSummaries はチームメンバーごとの集計をディレクトリの順序で返す。
func MemberSummaries(feedbacks []model.Feedback, team []model.Employee) []MemberSummary {
	byMember := make(map[string]*SentimentCounts, len(team))
	for _, e := range team {
		byMember[e.UID] = &SentimentCounts{}
	}
	for _, f := range feedbacks {
		if c, ok := byMember[f.To]; ok {
			c.add(f.Sentiment)
		}
	}

	out := make([]MemberSummary, 0, len(team))
	for _, e := range team {
		c := *byMember[e.UID]
		out = append(out, MemberSummary{Employee: e, Counts: c, Badge: c.Dominant()})
	}
	return out
}

// History はフィードバックを新しい順に並べたコピーを返す。日付が同じ場合は元の順序を保つ。
func History(feedbacks []model.Feedback) []model.Feedback {
	out := make([]model.Feedback, len(feedbacks))
	copy(out, feedbacks)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time().After(out[j].Time())
	})
	return out
}

// Recent は新しい順に最大n件を返す。
func Recent(feedbacks []model.Feedback, n int) []model.Feedback {
	out := History(feedbacks)
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
