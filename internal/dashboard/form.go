package dashboard

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/feedbackflow/internal/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// FeedbackForm はマネージャーのフィードバック作成フォームの入力値。
type FeedbackForm struct {
	Employee     string   `validate:"required"`
	Strengths    string   `validate:"required"`
	Improvements string   `validate:"required"`
	Sentiment    string   `validate:"required,oneof=Positive Neutral Negative"`
	Tags         []string `validate:"dive,oneof=communication leadership technical collaboration"`
}

// normalized は前後の空白を取り除いたコピーを返す。
func (f FeedbackForm) normalized() FeedbackForm {
	out := FeedbackForm{
		Employee:     strings.TrimSpace(f.Employee),
		Strengths:    strings.TrimSpace(f.Strengths),
		Improvements: strings.TrimSpace(f.Improvements),
		Sentiment:    strings.TrimSpace(f.Sentiment),
	}
	for _, t := range f.Tags {
		if t = strings.TrimSpace(t); t != "" {
			out.Tags = append(out.Tags, t)
		}
	}
	return out
}

// Validate はフォームを検証し、問題があればユーザー向けのメッセージを返す。
// 問題がなければ空文字列を返す。
func (f FeedbackForm) Validate() string {
	err := validate.Struct(f.normalized())
	if err == nil {
		return ""
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return msgFillRequired
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return msgFillRequired
		}
	}
	for _, fe := range verrs {
		// diveで検出した要素のエラーは Tags[0] のように添字付きで報告される
		switch field := fe.StructField(); {
		case field == "Sentiment":
			return msgInvalidSentiment
		case strings.HasPrefix(field, "Tags"):
			return msgUnknownTag
		}
	}
	return msgFillRequired
}

// input は作成リクエストのボディに変換する。
func (f FeedbackForm) input() model.FeedbackInput {
	n := f.normalized()
	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	return model.FeedbackInput{
		To:           n.Employee,
		Strengths:    n.Strengths,
		Improvements: n.Improvements,
		Sentiment:    model.Sentiment(n.Sentiment),
		Tags:         tags,
	}
}
