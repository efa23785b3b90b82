package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// otpDigits は確認コードの桁数。
const otpDigits = 6

// otpMax は6桁コードの排他的上限（10^6）。
var otpMax = big.NewInt(1000000)

// GenerateOTP は暗号的に安全な乱数から6桁の数字文字列を生成する。
// 全数値域から一様に抽出するため、先頭ゼロを含むコードも生成される
// （ゼロ埋めで常に6文字になる）。
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpMax)
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n), nil
}
