// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// Role はユーザーの役割を表す。表示するダッシュボードとナビゲーション項目を決定する。
type Role string

const (
	// RoleManager はフィードバックを送るマネージャー。
	RoleManager Role = "manager"
	// RoleEmployee はフィードバックを受け取る従業員。
	RoleEmployee Role = "employee"
)

// ParseRole は文字列をRoleに変換する。未知の値の場合はfalseを返す。
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleManager:
		return RoleManager, true
	case RoleEmployee:
		return RoleEmployee, true
	default:
		return "", false
	}
}

// Label は画面表示用の役割名を返す。
func (r Role) Label() string {
	switch r {
	case RoleManager:
		return "Manager"
	case RoleEmployee:
		return "Employee"
	default:
		return string(r)
	}
}

// Profile はバックエンドが保持するユーザープロフィール。
// ダッシュボードのマウントごとに取得し直し、クライアント側ではキャッシュしない。
type Profile struct {
	UID     string `json:"uid"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Role    Role   `json:"role"`
	Manager string `json:"manager,omitempty"`
	Joined  string `json:"joined,omitempty"`
}

// Employee はマネージャーのチームに属する従業員のディレクトリエントリ。
// ラベル表示とチャートの集計にのみ使用する読み取り専用データ。
type Employee struct {
	UID         string `json:"uid"`
	Name        string `json:"name"`
	Designation string `json:"designation,omitempty"`
}

// Label は従業員選択リスト用の表示名を返す。
func (e Employee) Label() string {
	designation := e.Designation
	if designation == "" {
		designation = "Employee"
	}
	return fmt.Sprintf("%s (%s)", e.Name, designation)
}

// Manager は登録フォームのマネージャー選択に使う公開ディレクトリのエントリ。
type Manager struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

// Registration はIdP登録後にバックエンドへ送るプロフィール作成リクエスト。
type Registration struct {
	UID     string `json:"uid"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Role    Role   `json:"role"`
	Manager string `json:"manager,omitempty"`
}

// StoredSession はポータルが保持するブラウザセッションの永続化レコード。
// IdPが自前で持つサインイン状態の写しであり、これ以上のデータは保存しない。
type StoredSession struct {
	ID           string
	UID          string
	Email        string
	IDToken      string
	RefreshToken string
	TokenExpiry  time.Time
	ExpiresAt    time.Time
	CreatedAt    time.Time
}
