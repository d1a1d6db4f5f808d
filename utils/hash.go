package utils

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// BytesMD5 计算字节数组MD5
func BytesMD5(data []byte) string {
	hash := md5.Sum(data)
	return hex.EncodeToString(hash[:])
}

// CacheKey 由图片MD5与处理参数拼出缓存键，参数不同的结果互不覆盖
func CacheKey(md5 string, params ...string) string {
	if len(params) == 0 {
		return md5
	}
	return md5 + ":" + BytesMD5([]byte(strings.Join(params, "|")))[:12]
}
