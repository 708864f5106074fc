package view

import (
	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"

	"github.com/hitoshi/feedbackflow/internal/model"
)

// LoginForm はログインフォームの再表示用の値。パスワードは保持しない。
type LoginForm struct {
	Email string
}

// RegisterForm は登録フォームの再表示用の値。パスワードは保持しない。
type RegisterForm struct {
	Name    string
	Email   string
	Role    string
	Manager string
}

// authLayout はログイン・登録画面の共通枠。
func authLayout(title string, body ...Node) Node {
	return document(title, nil,
		Main(Class("container d-flex align-items-center justify-content-center"), StyleAttr("min-height: 100vh;"),
			Div(Class("card border-0 shadow-sm rounded-4 p-4"), StyleAttr("width: 100%; max-width: 440px;"),
				Div(Class("text-center mb-4"),
					I(Class("bi bi-chat-square-text fs-1 text-primary")),
					H3(Class("fw-bold mt-2"), Text("Feedback Flow")),
				),
				Group(body),
			),
		),
	)
}

// formError はフォーム上部に表示するエラーを返す。
func formError(apiErr *model.APIError) Node {
	if apiErr == nil {
		return nil
	}
	return Div(Class("alert alert-danger form-error"), Attr("role", "alert"),
		Text(apiErr.Message),
		If(apiErr.Action != "", Div(Class("small mt-1"), Text(apiErr.Action))),
	)
}

// LoginPage はログイン画面を返す。
func LoginPage(csrf string, form LoginForm, apiErr *model.APIError) Node {
	return authLayout("Login",
		H5(Class("mb-3"), Text("Sign in")),
		formError(apiErr),
		postForm("/login", csrf,
			Div(Class("mb-3"),
				Label(For("email"), Class("form-label"), Text("Email")),
				Input(Type("email"), ID("email"), Name("email"), Class("form-control"), Value(form.Email), Required(), AutoComplete("email")),
			),
			Div(Class("mb-3"),
				Label(For("password"), Class("form-label"), Text("Password")),
				Input(Type("password"), ID("password"), Name("password"), Class("form-control"), Required(), AutoComplete("current-password")),
			),
			Button(Type("submit"), Class("btn btn-primary w-100"), Text("Login")),
		),
		P(Class("text-center mt-3 mb-0"),
			Text("Don't have an account? "), A(Href("/register"), Text("Register")),
		),
	)
}

// RegisterPage は登録画面を返す。managersはマネージャー選択肢。
func RegisterPage(csrf string, form RegisterForm, managers []model.Manager, apiErr *model.APIError) Node {
	role := form.Role
	if role == "" {
		role = string(model.RoleEmployee)
	}

	return authLayout("Register",
		H5(Class("mb-3"), Text("Create an account")),
		formError(apiErr),
		postForm("/register", csrf,
			Div(Class("mb-3"),
				Label(For("name"), Class("form-label"), Text("Name")),
				Input(Type("text"), ID("name"), Name("name"), Class("form-control"), Value(form.Name), Required()),
			),
			Div(Class("mb-3"),
				Label(For("email"), Class("form-label"), Text("Email")),
				Input(Type("email"), ID("email"), Name("email"), Class("form-control"), Value(form.Email), Required(), AutoComplete("email")),
			),
			Div(Class("mb-3"),
				Label(For("password"), Class("form-label"), Text("Password")),
				Input(Type("password"), ID("password"), Name("password"), Class("form-control"), Required(), AutoComplete("new-password")),
			),
			Div(Class("mb-3"),
				Label(For("role"), Class("form-label"), Text("Role")),
				Select(ID("role"), Name("role"), Class("form-select"),
					option(string(model.RoleEmployee), model.RoleEmployee.Label(), role),
					option(string(model.RoleManager), model.RoleManager.Label(), role),
				),
			),
			Div(Class("mb-3"),
				Label(For("manager"), Class("form-label"), Text("Manager (employees only)")),
				Select(ID("manager"), Name("manager"), Class("form-select"),
					option("", "Select your manager", form.Manager),
					Map(managers, func(m model.Manager) Node {
						return option(m.UID, m.Name, form.Manager)
					}),
				),
			),
			Button(Type("submit"), Class("btn btn-primary w-100"), Text("Register")),
		),
		P(Class("text-center mt-3 mb-0"),
			Text("Already have an account? "), A(Href("/login"), Text("Login")),
		),
	)
}

// option は選択状態付きのoption要素を返す。
func option(value, label, selected string) Node {
	return Option(Value(value), If(value == selected, Selected()), Text(label))
}
