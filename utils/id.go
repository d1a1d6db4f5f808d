package utils

import (
	"strconv"
	"sync/atomic"
	"time"
)

var idSeq atomic.Uint32

// GenerateID 生成基于时间戳的ID，同一纳秒内追加序号避免重复
func GenerateID(prefix string) string {
	n := idSeq.Add(1)
	return prefix + strconv.FormatInt(time.Now().UnixNano(), 36) + strconv.FormatUint(uint64(n%1296), 36)
}
