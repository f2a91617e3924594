package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/phanxgames/diorama"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{"", "*store.DirStore"},
		{"dir", "*store.DirStore"},
		{"sqlite", "*store.SQLiteStore"},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			root := t.TempDir()
			s, err := Open(diorama.StoreConfig{Driver: tt.driver, Root: root, DBPath: "d.db"})
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer s.Close()
			if got := typeName(s); got != tt.want {
				t.Errorf("type = %s, want %s", got, tt.want)
			}
			if _, err := s.SaveScene(context.Background(), sceneWith("park", "tree")); err != nil {
				t.Errorf("SaveScene: %v", err)
			}
		})
	}
}

func TestOpenSQLiteRelativePath(t *testing.T) {
	root := t.TempDir()
	s, err := Open(diorama.StoreConfig{Driver: "sqlite", Root: root, DBPath: "x.db"})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if m, _ := filepath.Glob(filepath.Join(root, "x.db*")); len(m) == 0 {
		t.Error("database not created under root")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(diorama.StoreConfig{Driver: "ftp"}); err == nil {
		t.Error("expected error")
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *DirStore:
		return "*store.DirStore"
	case *SQLiteStore:
		return "*store.SQLiteStore"
	case *GdataStore:
		return "*store.GdataStore"
	}
	return "?"
}
