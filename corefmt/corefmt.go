// Package corefmt 提供 binary 狀態（例如 PRNG snapshot）與文字傳輸格式之間的轉換。
package corefmt

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/zintix-labs/flipvault/errs"
)

// EncodeBase64URL 輸出不帶 padding 的 base64url，可直接放進 URL query 或 JSON。
func EncodeBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func DecodeBase64URL(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errs.Wrap(err, "decode base64url failed")
	}
	return b, err
}

// DecodeHex 接受有無 0x 前綴的十六進位字串。
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errs.Wrap(err, "decode hex failed")
	}
	return b, err
}
