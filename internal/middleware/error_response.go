package middleware

import (
	"net/http"

	"github.com/hitoshi/feedbackflow/internal/model"
	"github.com/hitoshi/feedbackflow/internal/view"
)

// WriteErrorPage は統一エラーフォーマットの内容をエラー画面として書き込む。
func WriteErrorPage(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	view.Render(w, statusCode, view.ErrorPage(statusCode, apiErr.Message, apiErr.Action))
}

// WriteInternalServerError は内部サーバーエラーの画面を書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorPage(w, http.StatusInternalServerError, model.NewInternalError())
}
