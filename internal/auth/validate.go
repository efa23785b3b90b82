package auth

import (
	"regexp"

	"github.com/GEARdHAX/NotebookAppOAuth/internal/model"
)

// 入力検証の境界値。検証ルール自体が外部契約のため、
// 宣言的バリデータではなく明示的な関数として実装する。
const (
	passwordMinLen = 6
	passwordMaxLen = 128
	nameMinLen     = 2
	nameMaxLen     = 50
)

// emailPattern はメールアドレスの形式検証用の正規表現。
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateEmail はメールアドレスの形式を検証する。
// 入力は正規化済みであること。登録時とプロフィールのメール変更時で同一のルールを適用する。
func ValidateEmail(email string) *model.FieldError {
	if email == "" {
		return &model.FieldError{Field: "email", Message: "メールアドレスは必須です。"}
	}
	if !emailPattern.MatchString(email) {
		return &model.FieldError{Field: "email", Message: "メールアドレスの形式が正しくありません。"}
	}
	return nil
}

// validatePassword はパスワードの長さを検証する。
func validatePassword(password string) *model.FieldError {
	if len(password) < passwordMinLen || len(password) > passwordMaxLen {
		return &model.FieldError{Field: "password", Message: "パスワードは6文字以上128文字以下で入力してください。"}
	}
	return nil
}

// validateName は表示名の長さを検証する。
func validateName(name string) *model.FieldError {
	if len([]rune(name)) < nameMinLen || len([]rune(name)) > nameMaxLen {
		return &model.FieldError{Field: "name", Message: "名前は2文字以上50文字以下で入力してください。"}
	}
	return nil
}

// validateRegistration は登録入力の全フィールドを検証し、
// 違反のリストを返す。違反がなければnilを返す。
func validateRegistration(email, password, name string) []model.FieldError {
	var fields []model.FieldError
	if fe := ValidateEmail(email); fe != nil {
		fields = append(fields, *fe)
	}
	if fe := validatePassword(password); fe != nil {
		fields = append(fields, *fe)
	}
	if fe := validateName(name); fe != nil {
		fields = append(fields, *fe)
	}
	return fields
}
