package files

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalUpload(t *testing.T) {
	root := t.TempDir()
	up := NewLocal(root)

	url, err := up.Upload(context.Background(), "u-1", "t-1", "main.go", []byte("package main"))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Errorf("url = %q, want file:// scheme", url)
	}

	content, err := os.ReadFile(filepath.Join(root, "u-1", "t-1", "main.go"))
	if err != nil {
		t.Fatalf("uploaded file missing: %v", err)
	}
	if string(content) != "package main" {
		t.Errorf("content = %q", content)
	}
}

func TestLocalUpload_FlattensTraversal(t *testing.T) {
	root := t.TempDir()
	up := NewLocal(root)

	_, err := up.Upload(context.Background(), "u-1", "t-1", "../../escape.txt", []byte("x"))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "u-1", "t-1", "escape.txt")); err != nil {
		t.Errorf("file should be flattened into the task directory: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "escape.txt")); err == nil {
		t.Error("file escaped the upload root")
	}
}

func TestLocalUpload_DotDotComponentsStayUnderRoot(t *testing.T) {
	root := t.TempDir()
	up := NewLocal(root)

	// Base("..") is still "..", so each component needs its own guard.
	url, err := up.Upload(context.Background(), "..", "..", "..", []byte("x"))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	path := filepath.Join(root, "anonymous", "unknown", "file")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("dot-dot components should fall back to safe segments: %v", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(strings.TrimPrefix(url, "file://"), abs+string(filepath.Separator)) {
		t.Errorf("url %q points outside the upload root %q", url, abs)
	}
}

func TestLocalUpload_OwnerTraversalStaysUnderRoot(t *testing.T) {
	root := t.TempDir()
	up := NewLocal(root)

	if _, err := up.Upload(context.Background(), "..", "task-1", "evil.txt", []byte("x")); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "anonymous", "task-1", "evil.txt")); err != nil {
		t.Errorf("dot-dot owner should fall back to anonymous: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "task-1", "evil.txt")); err == nil {
		t.Error("file materialized outside the upload root")
	}
}

func TestLocalUpload_EmptyOwner(t *testing.T) {
	root := t.TempDir()
	up := NewLocal(root)

	if _, err := up.Upload(context.Background(), "", "t-1", "a.txt", []byte("x")); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "anonymous", "t-1", "a.txt")); err != nil {
		t.Errorf("empty owner should fall back to anonymous: %v", err)
	}
}
