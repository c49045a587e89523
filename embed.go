//go:build !embed

package main

import "io/fs"

// GetFrontendFS 开发模式下不内嵌前端，返回 nil
func GetFrontendFS() (fs.FS, error) {
	return nil, nil
}

// IsEmbedMode 是否为前端内嵌模式
func IsEmbedMode() bool {
	return false
}
