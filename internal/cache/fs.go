package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// tempPattern 以 .tmp 结尾，永远不会匹配 filenamePattern。
const (
	tempPattern = ".write-*.tmp"
	tempPrefix  = ".write-"
	tempSuffix  = ".tmp"
)

// writeFileAtomic 先写临时文件再 rename，失败时清理临时文件，
// 并把 mtime 设为 modTime，重启后以此恢复 createdAt/accessedAt。
func writeFileAtomic(dir, name string, data []byte, modTime time.Time) error {
	tempFile, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(data)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if !modTime.IsZero() {
		if err := os.Chtimes(tempName, modTime, modTime); err != nil {
			os.Remove(tempName)
			return err
		}
	}

	target := filepath.Join(dir, name)
	if err := os.Rename(tempName, target); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

// removeFile 把"文件已不存在"视为成功。
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func isTempFile(name string) bool {
	return strings.HasPrefix(name, tempPrefix) && strings.HasSuffix(name, tempSuffix)
}

func ensureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", &fs.PathError{Op: "open", Path: abs, Err: errors.New("not a directory")}
	}
	return abs, nil
}
