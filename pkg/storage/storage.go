// Package storage 提供按用户命名空间划分的对象存储访问。
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode"
)

// ErrObjectNotFound 表示对象不存在。
var ErrObjectNotFound = errors.New("object not found")

// ErrInvalidUserID 表示 user id 不能安全地作为单个路径段使用。
var ErrInvalidUserID = errors.New("invalid user id")

// maxUserIDLen 限制 user id 长度，避免生成过长的对象键与目录名。
const maxUserIDLen = 128

// BlobStore 是以 (namespace, name) 为键的对象存储。
type BlobStore interface {
	Upload(ctx context.Context, namespace, name string, data []byte) error
	// Download 在对象不存在时返回 ErrObjectNotFound。
	Download(ctx context.Context, namespace, name string) ([]byte, error)
	// Delete 删除对象，对象不存在时的行为由实现决定，调用方应忽略其错误。
	Delete(ctx context.Context, namespace, name string) error
}

// ValidateUserID 要求 user id 是单个安全的路径段：非空、不含路径分隔符、".." 与控制字符。
func ValidateUserID(userID string) error {
	switch {
	case userID == "":
		return fmt.Errorf("%w: empty", ErrInvalidUserID)
	case len(userID) > maxUserIDLen:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidUserID, maxUserIDLen)
	case strings.ContainsAny(userID, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidUserID, userID)
	case userID == "." || strings.Contains(userID, ".."):
		return fmt.Errorf("%w: %q contains a relative path element", ErrInvalidUserID, userID)
	}
	for _, r := range userID {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return fmt.Errorf("%w: %q contains a control character", ErrInvalidUserID, userID)
		}
	}
	return nil
}

// Namespace 返回用户的命名空间前缀，所有该用户的对象都存放在此前缀下。
// user id 不合法时返回 ErrInvalidUserID。
func Namespace(userID string) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}
	return "user_" + userID, nil
}

func objectKey(namespace, name string) string {
	return path.Join(namespace, name)
}

// ArchiveName 返回原始 PDF 在命名空间下的归档对象名。
func ArchiveName(fileName string) string {
	return path.Join("pdfs", path.Base(fileName))
}
