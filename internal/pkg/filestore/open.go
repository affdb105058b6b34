package filestore

import (
	"fmt"
	"strings"

	"github.com/fenger067850/todo-manager/internal/config"
)

// Open 按配置创建附件存储。
func Open(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "local":
		return NewLocalStore(cfg.LocalDir)
	case "ftp":
		return NewFTPStore(FTPConfig{
			Host:     cfg.FTPHost,
			Port:     cfg.FTPPort,
			User:     cfg.FTPUser,
			Password: cfg.FTPPassword,
			BaseDir:  cfg.FTPBaseDir,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
