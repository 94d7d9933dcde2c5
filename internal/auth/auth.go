package auth

import (
	"net/http"
	"strings"

	"github.com/cupOJoseph/meatboard/pkg/errors"
)

// Authenticator 把Bearer密钥映射到主体钱包地址。
// 密钥表来自配置，重启生效，不做在线轮换。
type Authenticator struct {
	keys map[string]string
}

func NewAuthenticator(apiKeys map[string]string) *Authenticator {
	keys := make(map[string]string, len(apiKeys))
	for k, addr := range apiKeys {
		keys[k] = strings.ToLower(addr)
	}
	return &Authenticator{keys: keys}
}

// Principal 从请求解析出调用方地址，缺失或无效返回UNAUTHORIZED
func (a *Authenticator) Principal(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New(errors.CodeUnauthorized, "missing Authorization header", nil)
	}

	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || token == "" {
		return "", errors.New(errors.CodeUnauthorized, "expected Bearer token", nil)
	}

	address, ok := a.keys[token]
	if !ok {
		return "", errors.New(errors.CodeUnauthorized, "invalid API key", nil)
	}
	return address, nil
}
