// Package filestore 负责附件的校验、命名与存储（本地目录或 FTP）。
package filestore

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	ErrTooLarge  = errors.New("file too large")
	ErrExtension = errors.New("file extension not allowed")
	ErrMIMEType  = errors.New("file type not allowed")
)

// DefaultMaxSize 默认单文件大小上限（10MB）。
const DefaultMaxSize int64 = 10 << 20

// DefaultTypes 允许上传的 MIME 类型及其对应扩展名。
var DefaultTypes = map[string]string{
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.ms-powerpoint":                                             ".ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"text/plain":      ".txt",
	"application/pdf": ".pdf",
}

// Policy 上传校验规则。
type Policy struct {
	MaxSize int64
	Types   map[string]string
}

// DefaultPolicy 返回默认规则，maxSize <= 0 时使用 DefaultMaxSize。
func DefaultPolicy(maxSize int64) Policy {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return Policy{MaxSize: maxSize, Types: DefaultTypes}
}

// Validate 依次校验大小、扩展名和 MIME 类型（须与扩展名对应），返回规范化后的 MIME 类型。
func (p Policy) Validate(name, contentType string, size int64) (string, error) {
	if size > p.MaxSize {
		return "", fmt.Errorf("%w: max %d bytes", ErrTooLarge, p.MaxSize)
	}

	ext := strings.ToLower(filepath.Ext(name))
	if !p.extensionAllowed(ext) {
		return "", fmt.Errorf("%w: %q", ErrExtension, ext)
	}

	mt := normalizeMIME(contentType)
	if want, ok := p.Types[mt]; !ok || want != ext {
		return "", fmt.Errorf("%w: %q", ErrMIMEType, contentType)
	}
	return mt, nil
}

func (p Policy) extensionAllowed(ext string) bool {
	if ext == "" {
		return false
	}
	for _, allowed := range p.Types {
		if allowed == ext {
			return true
		}
	}
	return false
}

func normalizeMIME(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// maxNameBytes 是清洗后文件名的最大字节数。
const maxNameBytes = 120

// SanitizeName 去掉目录部分与不安全字符，保留扩展名。
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20, r == 0x7f:
			continue
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('_')
		case r == ' ':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	if len(out) > maxNameBytes {
		ext := filepath.Ext(out)
		if len(ext) > 16 {
			ext = ""
		}
		cut := maxNameBytes - len(ext)
		// 回退到字符边界，避免截断多字节字符
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut] + ext
	}
	return out
}

// StoredName 生成存储文件名：<毫秒时间戳>_<随机串>_<原文件名>。
func StoredName(original string, now time.Time) string {
	return fmt.Sprintf("%d_%s_%s", now.UnixMilli(), uuid.NewString()[:8], SanitizeName(original))
}
