//go:build !windows

package filesystem

import "os"

// osReplace: POSIX rename 覆盖目标，同一文件系统内原子。
func osReplace(tmpPath, dest string) error { return os.Rename(tmpPath, dest) }

// syncDir 最佳努力 fsync 父目录以持久化目录项。
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
