// Package main provides the CLI entrypoint for kbopt.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/kbopt/internal/config"
	"github.com/verte-zerg/kbopt/internal/corpus"
	"github.com/verte-zerg/kbopt/internal/freq"
	"github.com/verte-zerg/kbopt/internal/keyboard"
	"github.com/verte-zerg/kbopt/internal/metrics"
	"github.com/verte-zerg/kbopt/internal/optimizer"
	"github.com/verte-zerg/kbopt/internal/store"
)

const (
	defaultQWERTY    = "qwertyuiop asdfghjkl; zxcvbnm,./"
	defaultStrategy  = "multistart"
	defaultObjective = "keylag"
	defaultWorkers   = 1
)

var (
	verbose    bool
	dbPath     string
	configPath string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "kbopt",
		Short:         "Keyboard layout analyzer and optimizer",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log search diagnostics to stderr")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default: XDG data dir)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: XDG config dir)")

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newOptimizeCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newCacheCmd())
	return rootCmd
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadFileConfig() (config.FileConfig, error) {
	cfg, err := config.LoadConfig(resolvedConfigPath())
	if err != nil {
		return config.FileConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func openStore() (*store.Store, error) {
	path := dbPath
	if path == "" {
		path = config.DefaultDBPath()
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if st == nil {
		return
	}
	if cerr := st.Close(); cerr != nil {
		logErrf("failed to close db: %v\n", cerr)
	}
}

// boardFlags are the layout settings shared by analyze and optimize.
type boardFlags struct {
	layout       string
	fingers      string
	locks        string
	corpus       string
	trigramDepth int
	noCache      bool
}

func (b *boardFlags) register(cmd *cobra.Command, withLocks bool) {
	cmd.Flags().StringVar(&b.layout, "layout", defaultQWERTY, "three layout rows separated by spaces")
	cmd.Flags().StringVar(&b.fingers, "fingers", "", "three finger map rows of digits 0-9 or '-' (default: standard touch typing)")
	cmd.Flags().StringVar(&b.corpus, "corpus", "", "text corpus file")
	cmd.Flags().IntVar(&b.trigramDepth, "trigram-depth", metrics.DefaultTrigramDepth, "number of most frequent trigrams classified")
	cmd.Flags().BoolVar(&b.noCache, "no-cache", false, "count the corpus again instead of using cached tables")
	if withLocks {
		cmd.Flags().StringVar(&b.locks, "lock", "", "three lock rows: 'x' or '#' pins a key, '.' leaves it free")
	}
}

func (b *boardFlags) apply(cmd *cobra.Command, fc config.FileConfig) {
	applyRowsConfig(cmd, "layout", &b.layout, fc.Layout.Rows)
	applyRowsConfig(cmd, "fingers", &b.fingers, fc.Layout.Fingers)
	if cmd.Flags().Lookup("lock") != nil {
		applyRowsConfig(cmd, "lock", &b.locks, fc.Layout.Locks)
	}
	applyStringConfig(cmd, "corpus", &b.corpus, fc.Corpus.Path)
	applyIntConfig(cmd, "trigram-depth", &b.trigramDepth, fc.Corpus.TrigramDepth)
	if fc.Corpus.Cache != nil && !cmd.Flags().Changed("no-cache") {
		b.noCache = !*fc.Corpus.Cache
	}
}

func splitRows(s string) []string {
	return strings.Fields(s)
}

// board holds the parsed layout settings.
type board struct {
	layout  keyboard.Layout
	fingers keyboard.FingerMap
	locks   keyboard.Locks
}

func (b *boardFlags) parse() (board, error) {
	var out board
	layout, err := keyboard.ParseLayout(splitRows(b.layout), ' ')
	if err != nil {
		return out, fmt.Errorf("invalid --layout: %w", err)
	}
	out.layout = layout
	out.fingers = keyboard.DefaultFingerMap()
	if strings.TrimSpace(b.fingers) != "" {
		if out.fingers, err = keyboard.ParseFingerMap(splitRows(b.fingers)); err != nil {
			return out, fmt.Errorf("invalid --fingers: %w", err)
		}
	}
	if strings.TrimSpace(b.locks) != "" {
		if out.locks, err = keyboard.ParseLocks(splitRows(b.locks)); err != nil {
			return out, fmt.Errorf("invalid --lock: %w", err)
		}
	}
	if b.corpus == "" {
		return out, fmt.Errorf("--corpus is required (or set [corpus] path in %s)", resolvedConfigPath())
	}
	if b.trigramDepth < 0 {
		return out, fmt.Errorf("--trigram-depth must be >= 0")
	}
	return out, nil
}

// loadTables counts the corpus, reusing tables cached in the store under
// the corpus cache key.
func loadTables(ctx context.Context, st *store.Store, path string, alphabet []rune, useCache bool) (*freq.Tables, error) {
	var key string
	if useCache && st != nil {
		k, err := corpus.CacheKey(path, alphabet)
		if err != nil {
			return nil, fmt.Errorf("failed to read corpus: %w", err)
		}
		key = k
		tables, ok, err := st.LoadTables(ctx, key)
		if err != nil {
			logErrf("ignoring table cache: %v\n", err)
		} else if ok {
			return tables, nil
		}
	}
	tables, err := corpus.LoadFile(path, alphabet)
	if err != nil {
		return nil, fmt.Errorf("failed to count corpus %s: %w", path, err)
	}
	if key != "" {
		if err := st.SaveTables(ctx, key, tables); err != nil {
			logErrf("failed to cache corpus tables: %v\n", err)
		}
	}
	return tables, nil
}

func newSession(b board, tables *freq.Tables, trigramDepth int) *metrics.Session {
	session := metrics.NewSession(b.layout, tables)
	session.Fingers = b.fingers
	session.TrigramDepth = trigramDepth
	return session
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := resolvedConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# kbopt configuration
# Uncomment a value to enable it. CLI flags override config values.

[layout]
# rows = ["qwertyuiop", "asdfghjkl;", "zxcvbnm,./"]
# fingers = ["0123366789", "0123366789", "0123366789"]
# locks = ["..........", "..........", ".........."]

[corpus]
# path = "/path/to/corpus.txt"  # Text corpus counted into n-gram tables
# trigram-depth = %d        # Most frequent trigrams classified
# cache = true              # Cache counted tables in the database

[optimizer]
# strategy = %q     # climb, lookahead or multistart
# objective = %q        # keylag or score
# depth = %d                # Lookahead depth (1-6)
# restarts = %d          # Multi-start restarts
# workers = %d              # Parallel multi-start workers
# seed = 42                 # Fixed seed for reproducible runs
# sanity-trials = %d     # Swap sanity checks before searching
# cache = false             # Transposition cache for restarts

[telemetry]
# metrics-addr = "localhost:9090"   # Serve Prometheus metrics while optimizing
`,
		metrics.DefaultTrigramDepth,
		defaultStrategy,
		defaultObjective,
		optimizer.DefaultDepth,
		optimizer.DefaultRestarts,
		defaultWorkers,
		optimizer.DefaultSanityTrials,
	)
}

func applyRowsConfig(cmd *cobra.Command, name string, target *string, rows []string) {
	if len(rows) == 0 {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = strings.Join(rows, " ")
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyInt64Config(cmd *cobra.Command, name string, target, value *int64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
