// Package setup prepares a machine to run grid jobs: it fetches the corpus,
// builds fastText and writes the config file.
package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/kiranshivaraju/gridrunner/internal/config"
	"github.com/kiranshivaraju/gridrunner/internal/runner"
)

const (
	DefaultCorpusURL     = "https://lang-uk.nbu.rocks/static/ubertext.fiction_news_wikipedia.filter_rus+short.tokens.txt.bz2"
	DefaultFastTextRepo  = "https://github.com/facebookresearch/fastText.git"
	DefaultSpreadsheetID = "150DjEZKCuJEcsCJWahWmhPkfHzn9pA-N3UIYYx7XM04"
	DefaultAPIKey        = "api_keys/fasttext_gridtraining.json"
)

// ErrMissingDependency means a required tool is not on PATH.
var ErrMissingDependency = errors.New("missing dependency")

// Options are the inputs of one bootstrap run.
type Options struct {
	ConfigPath   string
	CorpusURL    string
	CorpusDir    string
	FastTextDir  string
	FastTextRepo string
	VectorsDir   string
	Threads      int
	LogFile      string
	Hostname     string

	Queue config.QueueConfig

	OverwriteConfig   bool
	OverwriteCorpus   bool
	OverwriteFastText bool
}

// Bootstrapper runs the setup steps. Every step is skipped when its output
// already exists, unless the matching Overwrite flag is set.
type Bootstrapper struct {
	Exec     runner.Executor
	Client   *http.Client
	LookPath func(string) (string, error)
	// Progress receives the download progress bar; nil disables it.
	Progress io.Writer
	Logger   *slog.Logger
}

// New returns a Bootstrapper using the real environment.
func New(logger *slog.Logger, progress io.Writer) *Bootstrapper {
	return &Bootstrapper{
		Exec:     &runner.OSExecutor{},
		Client:   &http.Client{},
		LookPath: exec.LookPath,
		Progress: progress,
		Logger:   logger,
	}
}

// Run performs the whole bootstrap and returns the config it wrote (or the
// one it would have written, when an existing config is kept).
func (b *Bootstrapper) Run(ctx context.Context, opts Options) (*config.Config, error) {
	if err := b.checkDependencies(opts); err != nil {
		return nil, err
	}

	for _, dir := range []string{opts.CorpusDir, opts.VectorsDir} {
		b.Logger.InfoContext(ctx, "creating directory", "path", dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	corpus, err := b.fetchCorpus(ctx, opts)
	if err != nil {
		return nil, err
	}

	fasttext, err := b.buildFastText(ctx, opts)
	if err != nil {
		return nil, err
	}

	cfg := &config.Config{
		Corpus:   corpus,
		Vectors:  opts.VectorsDir,
		FastText: fasttext,
		Threads:  opts.Threads,
		LogFile:  opts.LogFile,
		Hostname: opts.Hostname,
		Queue:    opts.Queue,
	}
	cfg.ApplyDefaults()

	err = config.Save(opts.ConfigPath, cfg, opts.OverwriteConfig)
	switch {
	case errors.Is(err, config.ErrConfigExists):
		b.Logger.WarnContext(ctx, "config already exists, not overwriting", "path", opts.ConfigPath)
	case err != nil:
		return nil, err
	default:
		b.Logger.InfoContext(ctx, "config stored", "path", opts.ConfigPath)
	}
	return cfg, nil
}

func (b *Bootstrapper) checkDependencies(opts Options) error {
	for _, dep := range []string{"git", "make"} {
		if _, err := b.LookPath(dep); err != nil {
			return fmt.Errorf("%w: cannot find %s, please install it", ErrMissingDependency, dep)
		}
	}

	if opts.Queue.Backend == config.BackendSheets || opts.Queue.Backend == "" {
		if _, err := os.Stat(opts.Queue.Sheets.APIKey); err != nil {
			return fmt.Errorf("%w: api key file %s: %v", config.ErrConfigMissing, opts.Queue.Sheets.APIKey, err)
		}
	}
	return nil
}

// fetchCorpus downloads and, when compressed, unpacks the corpus. It returns
// the path of the plain-text corpus.
func (b *Bootstrapper) fetchCorpus(ctx context.Context, opts Options) (string, error) {
	u, err := url.Parse(opts.CorpusURL)
	if err != nil {
		return "", fmt.Errorf("parsing corpus url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", fmt.Errorf("corpus url %s has no file name", opts.CorpusURL)
	}
	archive := filepath.Join(opts.CorpusDir, name)
	logger := b.Logger.With("corpus", archive)

	if exists(archive) && !opts.OverwriteCorpus {
		logger.InfoContext(ctx, "corpus already downloaded, skipping")
	} else {
		logger.InfoContext(ctx, "downloading corpus", "url", opts.CorpusURL)
		if err := Download(ctx, b.Client, opts.CorpusURL, archive, b.Progress); err != nil {
			return "", err
		}
		logger.InfoContext(ctx, "corpus downloaded", "size", fileSize(archive))
	}

	if !Compressed(archive) {
		return archive, nil
	}

	plain := DecompressedPath(archive)
	if exists(plain) && !opts.OverwriteCorpus {
		logger.InfoContext(ctx, "corpus already decompressed, skipping", "path", plain)
		return plain, nil
	}

	logger.InfoContext(ctx, "decompressing corpus", "format", strings.TrimPrefix(filepath.Ext(archive), "."))
	if _, err := Decompress(archive); err != nil {
		return "", err
	}
	logger.InfoContext(ctx, "corpus decompressed", "path", plain, "size", fileSize(plain))
	return plain, nil
}

// buildFastText clones and compiles fastText into opts.FastTextDir and
// returns the binary path.
func (b *Bootstrapper) buildFastText(ctx context.Context, opts Options) (string, error) {
	binary := filepath.Join(opts.FastTextDir, "fasttext")
	if exists(binary) && !opts.OverwriteFastText {
		b.Logger.InfoContext(ctx, "fasttext binary already exists, skipping", "path", binary)
		return binary, nil
	}

	if err := os.RemoveAll(opts.FastTextDir); err != nil {
		return "", fmt.Errorf("removing %s: %w", opts.FastTextDir, err)
	}

	repo := opts.FastTextRepo
	if repo == "" {
		repo = DefaultFastTextRepo
	}

	b.Logger.InfoContext(ctx, "cloning fasttext", "repo", repo)
	if err := b.run(ctx, runner.Command{Path: "git", Args: []string{"clone", repo, opts.FastTextDir}}); err != nil {
		return "", fmt.Errorf("cloning fasttext: %w", err)
	}

	b.Logger.InfoContext(ctx, "building fasttext")
	if err := b.run(ctx, runner.Command{Path: "make", Dir: opts.FastTextDir}); err != nil {
		return "", fmt.Errorf("building fasttext: %w", err)
	}

	b.Logger.InfoContext(ctx, "fasttext built", "path", binary)
	return binary, nil
}

func (b *Bootstrapper) run(ctx context.Context, cmd runner.Command) error {
	res, err := b.Exec.Execute(ctx, cmd)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s exited with code %d: %s", cmd.Path, res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}
	return nil
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func fileSize(p string) string {
	info, err := os.Stat(p)
	if err != nil {
		return "unknown"
	}
	return humanize.Bytes(uint64(info.Size()))
}
