package password

import (
	"golang.org/x/crypto/bcrypt"
)

// Cost bcrypt计算强度，测试中可调低
var Cost = bcrypt.DefaultCost

// Hash 生成密码哈希；超过72字节的密码会返回 bcrypt.ErrPasswordTooLong
func Hash(plain string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(plain), Cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// Verify 校验密码
func Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
