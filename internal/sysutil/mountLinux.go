//go:build linux

package sysutil

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// MountPointOf 在 /proc/mounts 中查找包含 path 的最长挂载点
func MountPointOf(path string) (mountPoint, fsType string) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return "/", ""
	}
	defer f.Close()

	clean := filepath.Clean(path)
	mountPoint = "/"
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		// /proc/mounts 中空格被转义为 \040
		mp := strings.ReplaceAll(fields[1], `\040`, " ")
		if !isWithin(clean, mp) || len(mp) < len(mountPoint) {
			continue
		}
		mountPoint = mp
		fsType = fields[2]
	}
	return mountPoint, fsType
}

func isWithin(path, dir string) bool {
	if dir == "/" {
		return true
	}
	return path == dir || strings.HasPrefix(path, dir+"/")
}
