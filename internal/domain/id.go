package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ItemID 是 Lumiere 条目的数字主键。
//
// 约束：URL 中固定格式化为 5 位补零（例如 00042、48028），超出范围直接拒绝。
type ItemID int

// MaxItemID 是 5 位补零格式能表达的最大 ID。
const MaxItemID ItemID = 99999

// ParseItemID 解析十进制 ID（允许前导 0），范围 [0, MaxItemID]。
func ParseItemID(s string) (ItemID, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || ItemID(n) > MaxItemID {
		return 0, false
	}
	return ItemID(n), true
}

func (id ItemID) Valid() bool { return id >= 0 && id <= MaxItemID }

// String 返回 URL 使用的 5 位补零形式。
func (id ItemID) String() string { return fmt.Sprintf("%05d", int(id)) }
