//go:build !windows

package filesystem

import "os"

// syncDir 对父目录做 fsync，持久化 rename 元数据。
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
