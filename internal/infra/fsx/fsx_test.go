package fsx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestWriteFileAtomic_SuccessAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()
	fs := afero.NewOsFs()

	if err := WriteFileAtomic(fs, filepath.Join(dir, "a.txt"), []byte("hello")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	// 覆盖写。
	if err := WriteFileAtomic(fs, filepath.Join(dir, "a.txt"), []byte("world")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("读取文件失败：%v", err)
	}
	if string(b) != "world" {
		t.Fatalf("内容不一致：%q", string(b))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".a.txt.tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}

func TestWriteFileAtomic_RenameFail_CleanupTemp(t *testing.T) {
	fs := afero.NewMemMapFs()

	old := renameFunc
	renameFunc = func(fs afero.Fs, oldpath, newpath string) error {
		return os.ErrPermission
	}
	defer func() { renameFunc = old }()

	err := WriteFileAtomic(fs, "/out/a.txt", []byte("hello"))
	if err == nil {
		t.Fatalf("期望失败，但得到 nil")
	}

	entries, err := afero.ReadDir(fs, "/out")
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".a.txt.tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
		if e.Name() == "a.txt" {
			t.Fatalf("不应写出最终文件：%q", e.Name())
		}
	}
}

func TestWriteFileAtomic_TargetConflictDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/out/a.txt", 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	err := WriteFileAtomic(fs, "/out/a.txt", []byte("hello"))
	if !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%T %v", err, err)
	}
}

func TestWriteLines(t *testing.T) {
	fs := afero.NewMemMapFs()

	if err := WriteLines(fs, "/failed_ids.txt", []string{"48029", "48030"}); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, err := afero.ReadFile(fs, "/failed_ids.txt")
	if err != nil {
		t.Fatalf("读取失败：%v", err)
	}
	if string(b) != "48029\n48030\n" {
		t.Fatalf("内容不一致：%q", string(b))
	}

	if err := WriteLines(fs, "/failed_ids.txt", nil); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, _ = afero.ReadFile(fs, "/failed_ids.txt")
	if len(b) != 0 {
		t.Fatalf("空列表应得到空文件：%q", string(b))
	}
}
