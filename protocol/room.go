package protocol

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	codeChars   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength  = 4
	topicPrefix = "game:"
)

// NewRoomCode 随机房间码（去掉易混淆字符）
func NewRoomCode() string {
	b := make([]byte, CodeLength)
	n := big.NewInt(int64(len(codeChars)))
	for i := range b {
		idx, _ := rand.Int(rand.Reader, n)
		b[i] = codeChars[idx.Int64()]
	}
	return string(b)
}

// NormalizeCode 大写并去掉空白，便于手工输入
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode 长度与字符集均合法
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(codeChars, code[i]) < 0 {
			return false
		}
	}
	return true
}

// Topic 房间对应的广播频道名
func Topic(code string) string {
	return topicPrefix + code
}

// CodeFromTopic Topic 的逆运算；不是房间频道时 ok=false
func CodeFromTopic(topic string) (code string, ok bool) {
	return strings.CutPrefix(topic, topicPrefix)
}
