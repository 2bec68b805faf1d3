package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStoreReadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "bsky.conf"))

	values, ok := store.Read(SectionStringOptions)
	if ok {
		t.Error("Expected ok=false for missing file")
	}
	if len(values) != 0 {
		t.Errorf("Expected empty values, got %v", values)
	}
}

func TestStoreWriteRead(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "bsky.conf"))

	err := store.Write(SectionStringOptions, map[string]string{
		"handle":       "example.bsky.social",
		"app_password": "xxxx-xxxx-xxxx-xxxx",
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	values, ok := store.Read(SectionStringOptions)
	if !ok {
		t.Fatal("Expected string_options section to exist")
	}
	if values["handle"] != "example.bsky.social" {
		t.Errorf("Expected handle to round-trip, got %q", values["handle"])
	}
	if values["app_password"] != "xxxx-xxxx-xxxx-xxxx" {
		t.Errorf("Expected app_password to round-trip, got %q", values["app_password"])
	}
}

func TestStoreMergeOnWrite(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "localfiles.conf"))

	if err := store.Write(SectionStringOptions, map[string]string{
		"root":    "/data/photos",
		"recurse": "yes",
	}); err != nil {
		t.Fatalf("First write failed: %v", err)
	}

	// Second write touches one existing key and adds one new key
	if err := store.Write(SectionStringOptions, map[string]string{
		"recurse": "no",
		"pattern": "*.jpg",
	}); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	values, ok := store.Read(SectionStringOptions)
	if !ok {
		t.Fatal("Expected string_options section to exist")
	}
	if values["root"] != "/data/photos" {
		t.Errorf("Untouched key should survive merge, got root=%q", values["root"])
	}
	if values["recurse"] != "no" {
		t.Errorf("Rewritten key should update, got recurse=%q", values["recurse"])
	}
	if values["pattern"] != "*.jpg" {
		t.Errorf("New key should be added, got pattern=%q", values["pattern"])
	}
}

func TestStoreSectionsAreIndependent(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "bsky.conf"))

	if err := store.Write(SectionStringOptions, map[string]string{"handle": "a.bsky.social"}); err != nil {
		t.Fatalf("Write string_options failed: %v", err)
	}
	if err := store.Write(SectionBooleanOptions, map[string]string{"enabled": "true"}); err != nil {
		t.Fatalf("Write boolean_options failed: %v", err)
	}

	strValues, _ := store.Read(SectionStringOptions)
	if _, found := strValues["enabled"]; found {
		t.Error("boolean_options key leaked into string_options")
	}
	boolValues, _ := store.Read(SectionBooleanOptions)
	if _, found := boolValues["handle"]; found {
		t.Error("string_options key leaked into boolean_options")
	}

	sections := store.Sections()
	if len(sections) != 2 {
		t.Fatalf("Expected 2 sections, got %v", sections)
	}
	if sections[0] != SectionBooleanOptions || sections[1] != SectionStringOptions {
		t.Errorf("Expected sorted section names, got %v", sections)
	}
}

func TestStoreUnknownSectionsPassThrough(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "bsky.conf"))

	if err := store.Write("search_options", map[string]string{"depth": "3"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := store.Write(SectionStringOptions, map[string]string{"handle": "a.bsky.social"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	values, ok := store.Read("search_options")
	if !ok {
		t.Fatal("Expected custom section to survive unrelated writes")
	}
	if values["depth"] != "3" {
		t.Errorf("Expected depth=3, got %q", values["depth"])
	}
}

func TestStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.conf")
	if err := os.WriteFile(path, []byte("{{{ not toml at all"), 0644); err != nil {
		t.Fatalf("Failed to write corrupt file: %v", err)
	}

	store := NewStore(path)

	values, ok := store.Read(SectionStringOptions)
	if ok {
		t.Error("Corrupt file should read as empty, got ok=true")
	}
	if len(values) != 0 {
		t.Errorf("Corrupt file should yield no values, got %v", values)
	}

	// A write after corruption starts a fresh document; the corrupt
	// original is preserved in the rotated backup.
	if err := store.Write(SectionStringOptions, map[string]string{"key": "value"}); err != nil {
		t.Fatalf("Write over corrupt file failed: %v", err)
	}

	backup, err := os.ReadFile(path + ".back1")
	if err != nil {
		t.Fatalf("Expected backup of corrupt file: %v", err)
	}
	if string(backup) != "{{{ not toml at all" {
		t.Errorf("Backup should hold the corrupt original, got %q", backup)
	}

	values, ok = store.Read(SectionStringOptions)
	if !ok || values["key"] != "value" {
		t.Errorf("Fresh document should be readable, got ok=%v values=%v", ok, values)
	}
}

func TestStoreScalarCoercion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dummy.conf")
	content := `[string_options]
count = 42
ratio = 2.5
enabled = true
name = "plain"

[string_options.nested]
dropped = "yes"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	store := NewStore(path)
	values, ok := store.Read(SectionStringOptions)
	if !ok {
		t.Fatal("Expected string_options section")
	}

	tests := []struct {
		key  string
		want string
	}{
		{"count", "42"},
		{"ratio", "2.5"},
		{"enabled", "true"},
		{"name", "plain"},
	}
	for _, tt := range tests {
		if got := values[tt.key]; got != tt.want {
			t.Errorf("Key %s: expected %q, got %q", tt.key, tt.want, got)
		}
	}
	if _, found := values["nested"]; found {
		t.Error("Nested tables should be dropped from section values")
	}
}

func TestStoreBoolOption(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "bsky.conf"))

	if err := store.Write(SectionBooleanOptions, map[string]string{
		"enabled":    "true",
		"verbose":    "1",
		"shout":      "ON",
		"titled":     "True",
		"padded":     "  true  ",
		"weird":      "sure",
		"turned_off": "false",
	}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	tests := []struct {
		key  string
		want bool
	}{
		{"enabled", true},
		{"verbose", true},
		{"shout", true},
		{"titled", true},
		{"padded", true},
		{"weird", false},
		{"turned_off", false},
		{"missing", false},
	}
	for _, tt := range tests {
		if got := store.BoolOption(tt.key); got != tt.want {
			t.Errorf("BoolOption(%q): expected %v, got %v", tt.key, tt.want, got)
		}
	}
}

func TestStoreStringOption(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "bsky.conf"))

	if got := store.StringOption("handle"); got != "" {
		t.Errorf("Missing file should read as empty string, got %q", got)
	}

	if err := store.Write(SectionStringOptions, map[string]string{"handle": "a.bsky.social"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := store.StringOption("handle"); got != "a.bsky.social" {
		t.Errorf("Expected handle, got %q", got)
	}
	if got := store.StringOption("missing"); got != "" {
		t.Errorf("Missing key should read as empty string, got %q", got)
	}
}

func TestStoreWriteEmptySectionName(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "bsky.conf"))

	if err := store.Write("", map[string]string{"key": "value"}); err == nil {
		t.Error("Expected error for empty section name")
	}
}

func TestStoreBackupRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bsky.conf")
	store := NewStore(path)

	for i := 0; i < 4; i++ {
		if err := store.Write(SectionStringOptions, map[string]string{
			"generation": string(rune('a' + i)),
		}); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	for _, suffix := range []string{".back1", ".back2", ".back3"} {
		if _, err := os.Stat(path + suffix); err != nil {
			t.Errorf("Expected backup %s to exist: %v", suffix, err)
		}
	}
}

func TestLabelFor(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"api_key", "Api Key"},
		{"API_KEY", "Api Key"},
		{"requests_per_minute", "Requests Per Minute"},
		{"handle", "Handle"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := LabelFor(tt.key); got != tt.want {
			t.Errorf("LabelFor(%q): expected %q, got %q", tt.key, tt.want, got)
		}
	}
}
