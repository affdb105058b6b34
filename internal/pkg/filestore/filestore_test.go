package filestore

import (
	"context"
	"errors"
	"io"
	"net/textproto"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/fenger067850/todo-manager/internal/config"
)

func TestPolicy_Validate(t *testing.T) {
	p := DefaultPolicy(100)

	cases := []struct {
		name     string
		file     string
		mime     string
		size     int64
		wantErr  error
		wantMIME string
	}{
		{name: "pdf ok", file: "a.pdf", mime: "application/pdf", size: 10, wantMIME: "application/pdf"},
		{name: "uppercase ext", file: "NOTES.TXT", mime: "text/plain; charset=utf-8", size: 1, wantMIME: "text/plain"},
		{name: "empty file allowed", file: "a.txt", mime: "text/plain", size: 0, wantMIME: "text/plain"},
		{name: "too large", file: "a.pdf", mime: "application/pdf", size: 101, wantErr: ErrTooLarge},
		{name: "size before ext", file: "a.exe", mime: "application/pdf", size: 101, wantErr: ErrTooLarge},
		{name: "bad ext", file: "a.exe", mime: "application/pdf", size: 10, wantErr: ErrExtension},
		{name: "no ext", file: "README", mime: "text/plain", size: 10, wantErr: ErrExtension},
		{name: "bad mime", file: "a.pdf", mime: "image/png", size: 10, wantErr: ErrMIMEType},
		{name: "mime mismatch", file: "a.pdf", mime: "text/plain", size: 10, wantErr: ErrMIMEType},
		{name: "docx", file: "plan.docx", mime: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", size: 10, wantMIME: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mt, err := p.Validate(tc.file, tc.mime, tc.size)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if mt != tc.wantMIME {
				t.Fatalf("mime = %q, want %q", mt, tc.wantMIME)
			}
		})
	}
}

func TestDefaultPolicy_MaxSize(t *testing.T) {
	if DefaultPolicy(0).MaxSize != DefaultMaxSize {
		t.Fatalf("expected default max size")
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"report.pdf":           "report.pdf",
		"../../etc/passwd":     "passwd",
		`C:\Users\me\plan.doc`: "plan.doc",
		"my notes?.txt":        "my_notes_.txt",
		"..":                   "file",
		"":                     "file",
	}
	for in, want := range cases {
		if got := SanitizeName(in); got != want {
			t.Fatalf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}

	long := strings.Repeat("a", 300) + ".pdf"
	got := SanitizeName(long)
	if len(got) != 120 || !strings.HasSuffix(got, ".pdf") {
		t.Fatalf("long name not truncated with ext: %d %q", len(got), got[len(got)-8:])
	}
}

func TestSanitizeName_TruncatesOnRuneBoundary(t *testing.T) {
	got := SanitizeName(strings.Repeat("报", 41) + ".pdf")
	if !utf8.ValidString(got) {
		t.Fatalf("truncated name is not valid utf-8: %q", got)
	}
	if len(got) > 120 || !strings.HasSuffix(got, ".pdf") {
		t.Fatalf("unexpected truncation: %d %q", len(got), got)
	}
	if want := strings.Repeat("报", 38) + ".pdf"; got != want {
		t.Fatalf("SanitizeName = %q, want %q", got, want)
	}

	stored := StoredName(strings.Repeat("周报", 30)+".docx", time.UnixMilli(1700000000123))
	if !utf8.ValidString(stored) || !strings.HasSuffix(stored, ".docx") {
		t.Fatalf("stored name is not valid utf-8: %q", stored)
	}
}

func TestStoredName(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	name := StoredName("../My Plan.docx", now)
	if !regexp.MustCompile(`^1700000000123_[0-9a-f]{8}_My_Plan\.docx$`).MatchString(name) {
		t.Fatalf("unexpected stored name %q", name)
	}
	if name == StoredName("../My Plan.docx", now) {
		t.Fatalf("stored names should be unique")
	}
}

func TestLocalStore_RoundTrip(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	n, err := s.Save(ctx, "1_abc_a.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 bytes, got %d", n)
	}

	if _, err := s.Save(ctx, "1_abc_a.txt", strings.NewReader("again")); err == nil {
		t.Fatalf("expected existing file to be kept")
	}

	rc, err := s.Open(ctx, "1_abc_a.txt")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "hello" {
		t.Fatalf("unexpected content %q", data)
	}

	if err := s.Delete(ctx, "1_abc_a.txt"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Open(ctx, "1_abc_a.txt"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("expected not exist, got %v", err)
	}
	if err := s.Delete(ctx, "1_abc_a.txt"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist on second delete, got %v", err)
	}
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, name := range []string{"../x.txt", "a/b.txt", `a\b.txt`, "..", ""} {
		if _, err := s.Save(context.Background(), name, strings.NewReader("x")); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("Save(%q): expected ErrInvalidName, got %v", name, err)
		}
		if _, err := s.Open(context.Background(), name); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("Open(%q): expected ErrInvalidName, got %v", name, err)
		}
	}
}

func TestLocalStore_SaveCancelled(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewLocalStore(dir)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Save(ctx, "x.txt", strings.NewReader("data")); err == nil {
		t.Fatalf("expected cancelled save to fail")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("partial file should be removed")
	}
}

func TestFTPStore_Config(t *testing.T) {
	if _, err := NewFTPStore(FTPConfig{}); err == nil {
		t.Fatalf("expected error for empty host")
	}
	s, err := NewFTPStore(FTPConfig{Host: "ftp.example.com", BaseDir: "/attachments"})
	if err != nil {
		t.Fatalf("new ftp store: %v", err)
	}
	if s.cfg.Port != 21 || s.cfg.Timeout != 10*time.Second {
		t.Fatalf("defaults not applied: %+v", s.cfg)
	}
	p, err := s.remotePath("1_abc_a.pdf")
	if err != nil || p != "/attachments/1_abc_a.pdf" {
		t.Fatalf("remote path = %q, %v", p, err)
	}
	if _, err := s.remotePath("../a.pdf"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestMapFTPError(t *testing.T) {
	err := mapFTPError("ftp download", &textproto.Error{Code: 550, Msg: "No such file"})
	if !errors.Is(err, ErrNotExist) {
		t.Fatalf("550 should map to ErrNotExist, got %v", err)
	}
	err = mapFTPError("ftp download", &textproto.Error{Code: 421, Msg: "Service not available"})
	if errors.Is(err, ErrNotExist) {
		t.Fatalf("421 must not map to ErrNotExist")
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(config.StorageConfig{LocalDir: t.TempDir()})
	if err != nil {
		t.Fatalf("open local: %v", err)
	}
	if _, ok := s.(*LocalStore); !ok {
		t.Fatalf("expected LocalStore, got %T", s)
	}

	s, err = Open(config.StorageConfig{Backend: "FTP", FTPHost: "ftp.example.com"})
	if err != nil {
		t.Fatalf("open ftp: %v", err)
	}
	if _, ok := s.(*FTPStore); !ok {
		t.Fatalf("expected FTPStore, got %T", s)
	}

	if _, err := Open(config.StorageConfig{Backend: "s3"}); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}
