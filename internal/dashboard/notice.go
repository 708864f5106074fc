package dashboard

import "github.com/google/uuid"

// NoticeLevel は通知トーストの種類。
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
	NoticeWarning NoticeLevel = "warning"
)

// Notice は操作結果をユーザーに伝える一時的な通知。表示後に破棄される。
type Notice struct {
	ID    string
	Level NoticeLevel
	Text  string
}

// 通知メッセージ
const (
	msgFillRequired      = "⚠️ Please fill all required fields."
	msgInvalidSentiment  = "⚠️ Please choose Positive, Neutral or Negative."
	msgUnknownTag        = "⚠️ Please choose tags from the list."
	msgProfileNotLoaded  = "❌ Profile not loaded."
	msgFeedbackSubmitted = "✅ Feedback submitted!"
	msgFeedbackFailed    = "❌ Failed to submit feedback"
	msgUpdated           = "✅ Feedback updated"
	msgUpdateFailed      = "❌ Failed to update feedback"
	msgAcknowledged      = "✅ Feedback acknowledged!"
	msgAckFailed         = "❌ Failed to acknowledge"
	msgEmptyComment      = "⚠️ Please write a comment before submitting."
	msgCommentSubmitted  = "📝 Comment submitted!"
	msgCommentFailed     = "❌ Failed to submit comment"
	msgRequestSent       = "✅ Feedback request sent to your manager!"
	msgGenericFailure    = "Something went wrong. Please try again later."
	msgNotificationsFail = "❌ Failed to open notifications"
	msgLoadFailed        = "❌ Failed to load %s"
	msgUnknownFeedback   = "❌ Feedback not found"
)

func newNotice(level NoticeLevel, text string) Notice {
	return Notice{ID: uuid.NewString(), Level: level, Text: text}
}
