// Package config — .loctree.yaml configuration file support.
//
// When a .loctree.yaml file exists in the project root, loctree uses it
// as the source of truth for the base file, target languages, and provider
// defaults. Command-line flags override individual fields.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .loctree.yaml structure.
type File struct {
	// BaseFile is the source-language locale file relative to the project
	// root (e.g. "locales/en.json").
	BaseFile string `yaml:"base_file"`
	// SourceLang is the source language code (default "en").
	SourceLang string `yaml:"source_lang,omitempty"`
	// Languages is the list of target language codes.
	Languages []string `yaml:"languages,omitempty"`
	// FilePattern locates target files; "{lang}" is replaced with the
	// language code. Defaults to the base file's directory + "{lang}.json".
	FilePattern string `yaml:"file_pattern,omitempty"`
	// Provider is the default AI provider ID (google, groq, ollama,
	// custom-openai).
	Provider string `yaml:"provider,omitempty"`
	// Model is the default model identifier.
	Model string `yaml:"model,omitempty"`
	// BaseURL overrides the provider's API base URL.
	BaseURL string `yaml:"base_url,omitempty"`
	// ChunkBudget caps the serialized size of one translation request
	// (0 = built-in default).
	ChunkBudget int `yaml:"chunk_budget,omitempty"`
	// Prompt overrides the system prompt. The {{targetLang}} placeholder
	// is substituted before sending.
	Prompt string `yaml:"prompt,omitempty"`
}

// FileName is the default config file name.
const FileName = ".loctree.yaml"

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads and validates .loctree.yaml from the given directory.
// Returns nil if no .loctree.yaml exists.
func Load(rootDir string) (*File, error) {
	path := filepath.Join(rootDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if f.BaseFile == "" {
		return nil, fmt.Errorf("%s: base_file is required", path)
	}

	// Defaults
	if f.SourceLang == "" {
		f.SourceLang = "en"
	}
	if f.FilePattern == "" {
		f.FilePattern = filepath.Join(filepath.Dir(f.BaseFile), "{lang}.json")
	}
	if !strings.Contains(f.FilePattern, "{lang}") {
		return nil, fmt.Errorf("%s: file_pattern %q has no {lang} placeholder", path, f.FilePattern)
	}

	return &f, nil
}

// ---------------------------------------------------------------------------
// Path resolution
// ---------------------------------------------------------------------------

// BasePath returns the absolute path of the source-language file.
func (f *File) BasePath(rootDir string) string {
	return filepath.Join(rootDir, f.BaseFile)
}

// TargetPath returns the absolute path of a target language's file.
func (f *File) TargetPath(rootDir, lang string) string {
	rel := strings.ReplaceAll(f.FilePattern, "{lang}", lang)
	return filepath.Join(rootDir, rel)
}

// ---------------------------------------------------------------------------
// Language detection
// ---------------------------------------------------------------------------

// DetectLanguages scans the file pattern's directory for existing locale
// files and returns their language codes, excluding the source language
// and snapshot siblings. Used when .loctree.yaml lists no languages.
func (f *File) DetectLanguages(rootDir string) []string {
	pattern := strings.ReplaceAll(f.FilePattern, "{lang}", "*")
	dir := filepath.Dir(filepath.Join(rootDir, pattern))
	base := filepath.Base(pattern)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var langs []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.Contains(name, ".snapshot.") {
			continue
		}
		lang, ok := matchPattern(base, name)
		if !ok || lang == f.SourceLang {
			continue
		}
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// matchPattern extracts the language code from a file name given a
// one-wildcard glob like "*.json".
func matchPattern(pattern, name string) (string, bool) {
	i := strings.IndexByte(pattern, '*')
	if i < 0 {
		return "", false
	}
	prefix, suffix := pattern[:i], pattern[i+1:]
	if len(name) <= len(prefix)+len(suffix) {
		return "", false
	}
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return "", false
	}
	return name[len(prefix) : len(name)-len(suffix)], true
}

// EffectiveLanguages returns the languages to translate: the configured
// list, or whatever already exists on disk.
func (f *File) EffectiveLanguages(rootDir string) []string {
	if len(f.Languages) > 0 {
		return f.Languages
	}
	return f.DetectLanguages(rootDir)
}
