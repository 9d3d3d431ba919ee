// Package guard 对每个文件访问事件做出判定
package guard

import "strings"

// IsUnderProtection 按字节长度比较前缀，大小写不敏感
//
// 不做路径规范化 (分隔符、尾部斜杠、"..", 符号链接)，也不检查目录边界:
// 根目录 /guard/vault 同样匹配 /guard/vaultage/file.txt。
func IsUnderProtection(candidatePath, protectedRoot string) bool {
	if len(candidatePath) < len(protectedRoot) {
		return false
	}
	return strings.EqualFold(candidatePath[:len(protectedRoot)], protectedRoot)
}
