package repolist

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeList(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repos.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "simple list",
			content: "repo1\nrepo2\nrepo3\n",
			want:    []string{"repo1", "repo2", "repo3"},
		},
		{
			name:    "blank lines discarded",
			content: "repo1\n\n\nrepo2\n\n",
			want:    []string{"repo1", "repo2"},
		},
		{
			name:    "whitespace trimmed",
			content: "  repo1  \n\trepo2\t\n",
			want:    []string{"repo1", "repo2"},
		},
		{
			name:    "duplicates collapsed",
			content: "repo1\nrepo2\nrepo1\nrepo1\n",
			want:    []string{"repo1", "repo2"},
		},
		{
			name:    "no trailing newline",
			content: "repo1\nrepo2",
			want:    []string{"repo1", "repo2"},
		},
		{
			name:    "whitespace-only lines discarded",
			content: "repo1\n   \n\t\nrepo2\n",
			want:    []string{"repo1", "repo2"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			set, err := Load(writeList(t, tc.content))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got := set.Names(); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Names() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.txt"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	for _, content := range []string{"", "\n\n\n", "   \n\t\n"} {
		_, err := Load(writeList(t, content))
		if !errors.Is(err, ErrEmptyList) {
			t.Errorf("content %q: expected ErrEmptyList, got %v", content, err)
		}
	}
}

func TestSetContains(t *testing.T) {
	set, err := Load(writeList(t, "repo1\nrepo2\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !set.Contains("repo1") {
		t.Error("expected set to contain repo1")
	}
	if set.Contains("repo3") {
		t.Error("did not expect set to contain repo3")
	}
}
