package utils

import (
	"os"
	"strings"
)

// GetEnvDefault は環境変数 key の値を前後の空白を除いて返します。未設定か空白のみなら defaultValue です。
func GetEnvDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
