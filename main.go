// loctree — incremental AI translation for nested JSON locale files.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/loctree/loctree/changeset"
	"github.com/loctree/loctree/chunk"
	"github.com/loctree/loctree/config"
	"github.com/loctree/loctree/diffview"
	"github.com/loctree/loctree/engine"
	"github.com/loctree/loctree/langmeta"
	"github.com/loctree/loctree/locfile"
	"github.com/loctree/loctree/settings"
	"github.com/loctree/loctree/translate"
	"github.com/loctree/loctree/tree"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flag
// ---------------------------------------------------------------------------

var rootDir string

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "loctree",
		Short: "Incremental AI translation for nested JSON locale files",
		Long: `loctree — incremental AI translation for nested JSON locale files.

Tracks what changed in the source-language file since the last sync and
translates only that, preserving key order and existing translations.
Changes are reviewed before anything is written to disk.

Commands:
  status      Show per-language sync state
  translate   Translate changed keys using AI
  auth        Manage provider API keys

AI Providers:
  google         Google AI (Gemini) — API key
  groq           Groq — API key required
  ollama         Ollama local server
  custom-openai  Custom OpenAI-compatible endpoint`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flag — inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")

	root.AddCommand(
		newStatusCmd(),
		newTranslateCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("loctree version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// status (read-only: per-language sync state)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-language sync state",
		Long: `Show, for each target language, how many keys need translation
and how many orphaned keys would be removed on the next run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runStatus(); err != nil {
				logError("%v", err)
				os.Exit(1)
			}
		},
	}
}

func runStatus() error {
	cfg, err := mustLoadConfig()
	if err != nil {
		return err
	}

	base, err := locfile.ParseFile(cfg.BasePath(rootDir))
	if err != nil {
		return err
	}
	baseLeaves := tree.Flatten(base).Len()

	langs := cfg.EffectiveLanguages(rootDir)
	if len(langs) == 0 {
		logWarning("no target languages configured or detected")
		return nil
	}

	fmt.Printf("Base: %s (%s keys)\n\n", cfg.BaseFile, humanize.Comma(int64(baseLeaves)))
	for _, lang := range langs {
		target, err := loadTargetTree(cfg.TargetPath(rootDir, lang))
		if err != nil {
			return err
		}
		snapshot, err := locfile.LoadSnapshot(cfg.TargetPath(rootDir, lang))
		if err != nil {
			return err
		}

		changes := changeset.Calculate(base, target, snapshot)
		add, del := 0, 0
		for _, p := range changes.Paths() {
			v, _ := changes.Get(p)
			if v.Kind == tree.KindNull {
				del++
			} else {
				add++
			}
		}

		label := langmeta.Label(lang)
		switch {
		case changes.Len() == 0:
			fmt.Printf("  %-32s up to date\n", label)
		case snapshot == nil:
			fmt.Printf("  %-32s %s to translate (no snapshot, full sync)\n",
				label, humanize.Comma(int64(add)))
		default:
			fmt.Printf("  %-32s %s to translate, %s to remove\n",
				label, humanize.Comma(int64(add)), humanize.Comma(int64(del)))
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// translate
// ---------------------------------------------------------------------------

type translateArgs struct {
	langs                            string
	provider, apiKey, model, baseURL string
	chunkBudget                      int
	prompt                           string
	verbose, dryRun, yes             bool
	parallel                         bool
	maxConcurrent                    int
	timeout                          time.Duration
	proxy                            string
	maxRetries                       int
}

func newTranslateCmd() *cobra.Command {
	var a translateArgs

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate changed keys using AI",
		Long: `Translate the keys that changed since the last sync.

Reads .loctree.yaml for the base file and target languages; flags override
individual settings. Each language's result is shown as a diff and applied
only after confirmation.

Examples:
  # Translate all configured languages
  loctree translate --provider google --model gemini-2.5-flash

  # Specific languages, parallel chunks, no prompt
  loctree translate --provider groq --model llama-3.3-70b-versatile \
      --lang fr,de --parallel --yes

  # Show what would be sent without calling the provider
  loctree translate --dry-run`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runTranslate(a); err != nil {
				logError("%v", err)
				os.Exit(1)
			}
		},
	}

	// Provider selection
	cmd.Flags().StringVar(&a.provider, "provider", "", "AI provider: google, groq, ollama, custom-openai")
	cmd.Flags().StringVar(&a.model, "model", "", "Model name")
	cmd.Flags().StringVar(&a.apiKey, "api-key", "", "API key (or LOCTREE_API_KEY env var)")
	cmd.Flags().StringVar(&a.baseURL, "base-url", "", "Custom API base URL")

	// Target selection
	cmd.Flags().StringVar(&a.langs, "lang", "", "Languages to translate (comma-separated, default: all configured)")

	// Translation behavior
	cmd.Flags().IntVar(&a.chunkBudget, "chunk-budget", 0, "Max serialized bytes per API request (0 = default)")
	cmd.Flags().StringVar(&a.prompt, "prompt", "", "Custom system prompt (use {{targetLang}} placeholder)")
	cmd.Flags().BoolVar(&a.verbose, "verbose", false, "Enable detailed logging")
	cmd.Flags().BoolVar(&a.dryRun, "dry-run", false, "Show what would be translated without calling AI")
	cmd.Flags().BoolVarP(&a.yes, "yes", "y", false, "Apply changes without asking")

	// Parallelization
	cmd.Flags().BoolVar(&a.parallel, "parallel", false, "Translate chunks concurrently")
	cmd.Flags().IntVar(&a.maxConcurrent, "max-concurrent", 3, "Maximum concurrent requests (with --parallel)")

	// Network
	cmd.Flags().DurationVar(&a.timeout, "timeout", 0, "Request timeout (0 = provider default)")
	cmd.Flags().StringVar(&a.proxy, "proxy", "", "HTTP/HTTPS proxy URL")
	cmd.Flags().IntVar(&a.maxRetries, "max-retries", 3, "Maximum retries on rate limit (429)")

	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"google\tGoogle AI (Gemini) — API key required",
			"groq\tGroq — API key required",
			"ollama\tOllama local server",
			"custom-openai\tCustom OpenAI-compatible endpoint",
		}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runTranslate(a translateArgs) error {
	cfg, err := mustLoadConfig()
	if err != nil {
		return err
	}

	langs := parseLangs(a.langs)
	if len(langs) == 0 {
		langs = cfg.EffectiveLanguages(rootDir)
	}
	if len(langs) == 0 {
		return errors.New("no target languages: set languages in .loctree.yaml or pass --lang")
	}

	basePath := cfg.BasePath(rootDir)
	base, err := locfile.ParseFile(basePath)
	if err != nil {
		return err
	}

	budget := a.chunkBudget
	if budget == 0 {
		budget = cfg.ChunkBudget
	}

	if a.dryRun {
		return dryRun(cfg, base, langs, budget)
	}

	providerName := firstNonEmpty(a.provider, cfg.Provider)
	if providerName == "" {
		return errors.New("--provider is required (or set provider in .loctree.yaml)")
	}
	prov := resolveProvider(providerName, firstNonEmpty(a.baseURL, cfg.BaseURL),
		a.apiKey, firstNonEmpty(a.model, cfg.Model), a.proxy, a.timeout)
	if err := validateProvider(prov); err != nil {
		return err
	}

	client := &translate.Client{
		Provider:     prov,
		SystemPrompt: firstNonEmpty(a.prompt, cfg.Prompt),
		MaxRetries:   a.maxRetries,
		Verbose:      a.verbose,
		Logf:         logInfo,
	}

	// Ctrl-C stops launching new chunks; whatever already merged is still
	// offered for review.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var totalCost engine.Cost
	accepted, rejected := 0, 0

	for _, lang := range langs {
		label := langmeta.Label(lang)
		targetPath := cfg.TargetPath(rootDir, lang)

		target, err := loadTargetTree(targetPath)
		if err != nil {
			return err
		}
		snapshot, err := locfile.LoadSnapshot(targetPath)
		if err != nil {
			return err
		}

		eng := &engine.Engine{
			Translator: client,
			Presenter: &diffview.Presenter{
				Out:        os.Stderr,
				In:         os.Stdin,
				Quiet:      !a.verbose,
				AutoAccept: a.yes,
			},
			Budget: budget,
		}
		if a.parallel {
			eng.Parallel = a.maxConcurrent
		}
		if a.verbose {
			eng.Logf = logInfo
		}

		logInfo("translating %s", label)
		out, err := eng.Run(ctx, base, target, snapshot, langmeta.Resolve(lang).Name)
		if errors.Is(err, engine.ErrNoChanges) {
			logSuccess("%s is up to date", label)
			continue
		}
		if err != nil {
			logError("%s: %v", label, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		totalCost.Add(out.Summary.Cost)
		if out.Summary.ChunksFailed > 0 {
			logWarning("%s: %d of %d chunks failed and were skipped",
				label, out.Summary.ChunksFailed, out.Summary.ChunksTotal)
		}
		if out.Summary.Interrupted {
			logWarning("%s: interrupted, reviewing partial result", label)
		}

		if !out.Accepted {
			rejected++
			logWarning("%s: changes discarded", label)
			continue
		}
		if err := engine.Commit(targetPath, basePath, out); err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
		accepted++
		logSuccess("%s: %s translated, %s removed",
			label,
			humanize.Comma(int64(out.Summary.PathsTranslated)),
			humanize.Comma(int64(out.Summary.Deletions)))

		if ctx.Err() != nil {
			break
		}
	}

	if totalCost.InputUnits > 0 || totalCost.OutputUnits > 0 {
		logInfo("tokens used: %s in, %s out",
			humanize.Comma(int64(totalCost.InputUnits)),
			humanize.Comma(int64(totalCost.OutputUnits)))
	}
	logInfo("%d language(s) updated, %d discarded", accepted, rejected)
	return nil
}

// dryRun reports what a real run would send, without network calls.
func dryRun(cfg *config.File, base *tree.Tree, langs []string, budget int) error {
	for _, lang := range langs {
		targetPath := cfg.TargetPath(rootDir, lang)
		target, err := loadTargetTree(targetPath)
		if err != nil {
			return err
		}
		snapshot, err := locfile.LoadSnapshot(targetPath)
		if err != nil {
			return err
		}

		changes := changeset.Calculate(base, target, snapshot)
		additions := tree.NewFlatMap()
		del := 0
		for _, p := range changes.Paths() {
			v, _ := changes.Get(p)
			if v.Kind == tree.KindNull {
				del++
			} else {
				additions.Set(p, v)
			}
		}
		chunks := chunk.Split(additions, budget)

		label := langmeta.Label(lang)
		if changes.Len() == 0 {
			logSuccess("%s is up to date", label)
			continue
		}
		logInfo("%s: %s keys in %d request(s), %s deletion(s)",
			label,
			humanize.Comma(int64(additions.Len())), len(chunks),
			humanize.Comma(int64(del)))
	}
	return nil
}

// ---------------------------------------------------------------------------
// auth (manage provider API keys)
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider API keys",
		Long: `Manage API keys for AI providers.

Keys are stored in ` + settings.FilePath() + ` with 0600 permissions.`,
	}
	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthListCmd(),
	)
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var provider, baseURL string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API key for a provider",
		Run: func(cmd *cobra.Command, args []string) {
			if provider == "" {
				logError("--provider is required (google, groq, custom-openai)")
				os.Exit(1)
			}
			authLogin(provider, baseURL)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Provider ID")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Endpoint URL (custom-openai)")
	return cmd
}

func authLogin(providerID, baseURL string) {
	existing := settings.GetAPIKey(providerID)
	if existing != "" {
		fmt.Fprintf(os.Stderr, "Current key: %s\n", settings.MaskKey(existing))
		fmt.Fprint(os.Stderr, "Enter new key to replace, or press Enter to keep: ")
	} else {
		fmt.Fprint(os.Stderr, "Enter API key: ")
	}

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		logError("No input received")
		os.Exit(1)
	}
	key := strings.TrimSpace(scanner.Text())

	if key == "" {
		if existing != "" {
			logInfo("Keeping existing key")
			return
		}
		logError("No API key provided")
		os.Exit(1)
	}

	var err error
	if baseURL != "" {
		err = settings.SetAPIKeyWithBaseURL(providerID, key, baseURL)
	} else {
		err = settings.SetAPIKey(providerID, key)
	}
	if err != nil {
		logError("Failed to save API key: %v", err)
		os.Exit(1)
	}
	logSuccess("%s API key saved", providerID)
}

func newAuthLogoutCmd() *cobra.Command {
	var provider string
	var all bool
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored API keys",
		Run: func(cmd *cobra.Command, args []string) {
			switch {
			case all:
				if err := settings.RemoveAll(); err != nil {
					logError("%v", err)
					os.Exit(1)
				}
				logSuccess("All credentials removed")
			case provider != "":
				if err := settings.Remove(provider); err != nil {
					logError("%v", err)
					os.Exit(1)
				}
				logSuccess("%s credentials removed", provider)
			default:
				logError("pass --provider or --all")
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Provider ID")
	cmd.Flags().BoolVar(&all, "all", false, "Remove all stored credentials")
	return cmd
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored credentials",
		Run: func(cmd *cobra.Command, args []string) {
			store := settings.Load()
			if len(store) == 0 {
				logInfo("No credentials stored")
				return
			}
			for id, info := range store {
				line := fmt.Sprintf("  %-16s %s", id, settings.MaskKey(info.Key))
				if info.BaseURL != "" {
					line += "  " + info.BaseURL
				}
				fmt.Println(line)
			}
		},
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func mustLoadConfig() (*config.File, error) {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("no %s found in %s", config.FileName, rootDir)
	}
	return cfg, nil
}

// loadTargetTree parses a target locale file, treating a missing file as
// an empty tree (first-time translation).
func loadTargetTree(path string) (*tree.Tree, error) {
	t, err := locfile.ParseFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return tree.New(), nil
	}
	return t, err
}

func parseLangs(csv string) []string {
	if csv == "" {
		return nil
	}
	var langs []string
	for _, l := range strings.Split(csv, ",") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return langs
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func resolveProvider(name, baseURL, apiKey, model, proxy string, timeout time.Duration) translate.Provider {
	defaults := translate.DefaultProviders()

	var prov translate.Provider
	if p, ok := defaults[strings.ToLower(name)]; ok {
		prov = p
	} else {
		prov = translate.Provider{
			ID:      translate.ProviderCustomOpenAI,
			Name:    name,
			BaseURL: name,
			Timeout: 60 * time.Second,
		}
	}

	if baseURL != "" {
		prov.BaseURL = baseURL
	} else if prov.ID == translate.ProviderCustomOpenAI {
		if storedURL := settings.GetBaseURL(prov.ID); storedURL != "" {
			prov.BaseURL = storedURL
		}
	}
	prov.APIKey = settings.ResolveAPIKey(prov.ID, apiKey)
	if model != "" {
		prov.Model = model
	}
	if proxy != "" {
		prov.Proxy = proxy
	}
	if timeout > 0 {
		prov.Timeout = timeout
	}

	return prov
}

func validateProvider(prov translate.Provider) error {
	if prov.Model == "" {
		return fmt.Errorf("--model is required for provider %q", prov.ID)
	}
	switch prov.ID {
	case translate.ProviderGoogle, translate.ProviderGroq:
		if prov.APIKey == "" {
			return fmt.Errorf("%s requires an API key: run 'loctree auth login --provider %s' or set --api-key",
				prov.Name, prov.ID)
		}
	case translate.ProviderCustomOpenAI:
		if prov.BaseURL == "" {
			return errors.New("custom-openai requires --base-url")
		}
	}
	return nil
}
