package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Sentiment はフィードバックに付与する評価カテゴリ。
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNeutral  Sentiment = "Neutral"
	SentimentNegative Sentiment = "Negative"
)

// Sentiments はチャートと選択肢の表示順に並べた全Sentimentを返す。
func Sentiments() []Sentiment {
	return []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative}
}

// Valid はSentimentが定義済みの値かどうかを返す。
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	default:
		return false
	}
}

// ObjectID はバックエンドのドキュメントID。
// 文字列と {"$oid": "..."} 形式のどちらからでもデコードできる。
type ObjectID string

// UnmarshalJSON はObjectIDをデコードする。
func (id *ObjectID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			OID string `json:"$oid"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		*id = ObjectID(wrapped.OID)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*id = ObjectID(s)
	return nil
}

// Comment はフィードバックに追記されたコメント。クライアントからは追記のみ可能。
type Comment struct {
	By     string `json:"by,omitempty"`
	ByName string `json:"byName,omitempty"`
	Text   string `json:"text"`
	Date   string `json:"date"`
}

// Feedback はマネージャーから従業員へのフィードバックレコード。
// サーバーが所有し、クライアントは一時的なコピーのみを保持する。
type Feedback struct {
	ID           ObjectID  `json:"_id"`
	From         string    `json:"from"`
	FromName     string    `json:"fromName,omitempty"`
	To           string    `json:"to"`
	ToName       string    `json:"toName,omitempty"`
	Strengths    string    `json:"strengths"`
	Improvements string    `json:"improvements"`
	Sentiment    Sentiment `json:"sentiment"`
	Tags         []string  `json:"tags,omitempty"`
	Date         string    `json:"date"`
	Acknowledged bool      `json:"acknowledged,omitempty"`
	Comments     []Comment `json:"comments,omitempty"`
}

// Time はDateを解析した時刻を返す。解析できない場合はゼロ値を返す。
func (f Feedback) Time() time.Time {
	return ParseTimestamp(f.Date)
}

// FeedbackInput はフィードバック作成リクエストのボディ。
type FeedbackInput struct {
	To           string    `json:"to"`
	Strengths    string    `json:"strengths"`
	Improvements string    `json:"improvements"`
	Sentiment    Sentiment `json:"sentiment"`
	Tags         []string  `json:"tags"`
}

// FeedbackUpdate はフィードバック更新リクエストのボディ。
// 差分ではなく、変更可能なフィールド一式を常に送る。
type FeedbackUpdate struct {
	Strengths    string    `json:"strengths"`
	Improvements string    `json:"improvements"`
	Sentiment    Sentiment `json:"sentiment"`
}

// Tag はフィードバックに付けられるタグの選択肢。
type Tag struct {
	Value string
	Label string
}

// TagOptions はフィードバックフォームで選択可能なタグ一覧を返す。
func TagOptions() []Tag {
	return []Tag{
		{Value: "communication", Label: "Communication"},
		{Value: "leadership", Label: "Leadership"},
		{Value: "technical", Label: "Technical Skills"},
		{Value: "collaboration", Label: "Collaboration"},
	}
}

// Notification は現在のユーザー宛ての通知。
// 既読化はサーバー側の副作用であり、取り消しはできない。
type Notification struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Read      bool   `json:"read,omitempty"`
}

// timestampLayouts はバックエンドが返しうる日時表現。
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp はバックエンドの日付・日時文字列を解析する。
// タイムゾーンのない値はUTCとして扱う。解析できない場合はゼロ値を返す。
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
