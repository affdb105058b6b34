package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPConfig FTP 存储连接参数。
type FTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	BaseDir  string
	Timeout  time.Duration
}

// FTPStore 把附件保存在 FTP 服务器上，每次操作单独建立连接。
type FTPStore struct {
	cfg FTPConfig
}

func NewFTPStore(cfg FTPConfig) (*FTPStore, error) {
	if cfg.Host == "" {
		return nil, errors.New("ftp host is empty")
	}
	if cfg.Port <= 0 {
		cfg.Port = 21
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &FTPStore{cfg: cfg}, nil
}

func (s *FTPStore) connect(ctx context.Context) (*ftp.ServerConn, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(s.cfg.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp connect: %w", err)
	}
	if err := conn.Login(s.cfg.User, s.cfg.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("ftp login: %w", err)
	}
	return conn, nil
}

func (s *FTPStore) remotePath(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	if s.cfg.BaseDir == "" {
		return name, nil
	}
	return path.Join(s.cfg.BaseDir, name), nil
}

func (s *FTPStore) Save(ctx context.Context, name string, r io.Reader) (int64, error) {
	p, err := s.remotePath(name)
	if err != nil {
		return 0, err
	}
	conn, err := s.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Quit()

	cr := &countingReader{r: &ctxReader{ctx: ctx, r: r}}
	if err := conn.Stor(p, cr); err != nil {
		return 0, fmt.Errorf("ftp upload: %w", err)
	}
	return cr.n, nil
}

func (s *FTPStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	p, err := s.remotePath(name)
	if err != nil {
		return nil, err
	}
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := conn.Retr(p)
	if err != nil {
		_ = conn.Quit()
		return nil, mapFTPError("ftp download", err)
	}
	return &ftpReadCloser{resp: resp, conn: conn}, nil
}

func (s *FTPStore) Delete(ctx context.Context, name string) error {
	p, err := s.remotePath(name)
	if err != nil {
		return err
	}
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()

	if err := conn.Delete(p); err != nil {
		return mapFTPError("ftp delete", err)
	}
	return nil
}

// mapFTPError 把 550 响应映射为 ErrNotExist。
func mapFTPError(op string, err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileUnavailable {
		return fmt.Errorf("%s: %w", op, ErrNotExist)
	}
	return fmt.Errorf("%s: %w", op, err)
}

type ftpReadCloser struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (f *ftpReadCloser) Read(p []byte) (int, error) {
	return f.resp.Read(p)
}

func (f *ftpReadCloser) Close() error {
	err := f.resp.Close()
	if qerr := f.conn.Quit(); err == nil {
		err = qerr
	}
	return err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
