//go:build windows

package filesystem

// syncDir 在 Windows 上无对应的目录 fsync，空实现。
func syncDir(dir string) error { return nil }
