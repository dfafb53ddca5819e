package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMissingFileIsNil(t *testing.T) {
	f, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if f != nil {
		t.Fatal("expected nil for a directory without .loctree.yaml")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base_file: locales/en.json\n")

	f, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if f.SourceLang != "en" {
		t.Errorf("SourceLang = %q", f.SourceLang)
	}
	if f.FilePattern != filepath.Join("locales", "{lang}.json") {
		t.Errorf("FilePattern = %q", f.FilePattern)
	}
}

func TestLoadFullConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `base_file: i18n/en.json
source_lang: en
languages: [fr, de, ja]
provider: groq
model: llama-3.3-70b
chunk_budget: 2048
`)

	f, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(f.Languages, []string{"fr", "de", "ja"}) {
		t.Errorf("Languages = %v", f.Languages)
	}
	if f.Provider != "groq" || f.Model != "llama-3.3-70b" || f.ChunkBudget != 2048 {
		t.Errorf("config = %+v", f)
	}
}

func TestLoadRejectsMissingBaseFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "languages: [fr]\n")

	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "base_file") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadRejectsPatternWithoutPlaceholder(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base_file: en.json\nfile_pattern: locales/all.json\n")

	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "{lang}") {
		t.Fatalf("err = %v", err)
	}
}

func TestTargetPath(t *testing.T) {
	f := &File{BaseFile: "locales/en.json", FilePattern: "locales/{lang}.json"}
	got := f.TargetPath("/proj", "fr")
	want := filepath.Join("/proj", "locales", "fr.json")
	if got != want {
		t.Errorf("TargetPath = %q, want %q", got, want)
	}
}

func TestDetectLanguagesSkipsSourceAndSnapshots(t *testing.T) {
	dir := t.TempDir()
	locDir := filepath.Join(dir, "locales")
	if err := os.MkdirAll(locDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"en.json", "fr.json", "de.json", "fr.snapshot.json", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(locDir, name), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	f := &File{BaseFile: "locales/en.json", SourceLang: "en", FilePattern: filepath.Join("locales", "{lang}.json")}
	got := f.DetectLanguages(dir)
	want := []string{"de", "fr"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DetectLanguages = %v, want %v", got, want)
	}
}

func TestEffectiveLanguagesPrefersConfigured(t *testing.T) {
	f := &File{BaseFile: "en.json", Languages: []string{"ja"}, FilePattern: "{lang}.json"}
	got := f.EffectiveLanguages("/nonexistent")
	if !reflect.DeepEqual(got, []string{"ja"}) {
		t.Errorf("EffectiveLanguages = %v", got)
	}
}
