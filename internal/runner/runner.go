// Package runner turns validated task params into a fastText training run
// and resolves the artifacts it leaves behind.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kiranshivaraju/gridrunner/pkg/models"
	"github.com/kiranshivaraju/gridrunner/pkg/taskparams"
)

// Dim is the vector dimensionality of every trained model.
const Dim = 300

var (
	// ErrJobExecutionFailed is matched by every failed run.
	ErrJobExecutionFailed = errors.New("job execution failed")
	// ErrArtifactMissing means the binary exited cleanly but left no model file.
	ErrArtifactMissing = errors.New("model artifact missing")
)

// ExecError reports a training binary that could not start or exited
// non-zero. ExitCode is -1 when the process never ran.
type ExecError struct {
	ExitCode   int
	StderrTail string
	Err        error
}

func (e *ExecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fasttext did not run: %v", e.Err)
	}
	tail := strings.TrimSpace(e.StderrTail)
	if tail == "" {
		return fmt.Sprintf("fasttext exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("fasttext exited with code %d: %s", e.ExitCode, tail)
}

func (e *ExecError) Unwrap() error { return e.Err }

func (e *ExecError) Is(target error) bool { return target == ErrJobExecutionFailed }

// Config is the static part of every invocation.
type Config struct {
	FastText string
	Corpus   string
	Vectors  string
	Threads  int
}

// Artifacts are the files a successful run leaves behind.
type Artifacts struct {
	// Basename is the output path without extension, as passed to -output.
	Basename string
	// Model is the .bin file.
	Model     string
	ModelSize int64
	Elapsed   time.Duration
}

// Runner executes one training job at a time.
type Runner struct {
	exec   Executor
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Runner. A nil logger means slog.Default().
func New(exec Executor, cfg Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{exec: exec, cfg: cfg, now: time.Now, logger: logger}
}

// Basename is the deterministic output path for p: identical params always
// map to the same file, so a rerun overwrites a partial result.
func (r *Runner) Basename(p models.Params) string {
	return filepath.Join(r.cfg.Vectors, filepath.Base(r.cfg.Corpus)+"."+taskparams.Suffix(p))
}

// Command builds the fastText invocation for p.
func (r *Runner) Command(p models.Params) Command {
	return Command{
		Path: r.cfg.FastText,
		Args: []string{
			p.Algo,
			"-epoch", strconv.Itoa(p.Epochs),
			"-neg", strconv.Itoa(p.NegSampling),
			"-wordNgrams", strconv.Itoa(p.WordNgram),
			"-minn", strconv.Itoa(p.SubwordsMin),
			"-maxn", strconv.Itoa(p.SubwordsMax),
			"-input", r.cfg.Corpus,
			"-output", r.Basename(p),
			"-dim", strconv.Itoa(Dim),
			"-threads", strconv.Itoa(r.cfg.Threads),
		},
	}
}

// Run trains one model and blocks until the binary exits. On success the
// plain-text .vec output is removed and the .bin path is returned.
func (r *Runner) Run(ctx context.Context, p models.Params) (Artifacts, error) {
	cmd := r.Command(p)
	basename := r.Basename(p)
	logger := r.logger.With("output", basename)

	logger.InfoContext(ctx, "training started", "algo", p.Algo, "args", strings.Join(cmd.Args, " "))
	start := r.now()

	res, err := r.exec.Execute(ctx, cmd)
	if err != nil {
		return Artifacts{}, &ExecError{ExitCode: -1, Err: err}
	}
	if res.ExitCode != 0 {
		return Artifacts{}, &ExecError{ExitCode: res.ExitCode, StderrTail: string(res.Stderr)}
	}

	art := Artifacts{
		Basename: basename,
		Model:    basename + ".bin",
		Elapsed:  r.now().Sub(start),
	}

	info, err := os.Stat(art.Model)
	if err != nil {
		return Artifacts{}, fmt.Errorf("%w: %w: %s: %v", ErrJobExecutionFailed, ErrArtifactMissing, art.Model, err)
	}
	art.ModelSize = info.Size()

	vec := basename + ".vec"
	switch err := os.Remove(vec); {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		logger.WarnContext(ctx, "text vectors not found, nothing to remove", "path", vec)
	default:
		logger.WarnContext(ctx, "could not remove text vectors", "path", vec, "error", err)
	}

	logger.InfoContext(ctx, "training finished",
		"model", art.Model,
		"size", humanize.Bytes(uint64(art.ModelSize)),
		"elapsed", art.Elapsed.Round(time.Second).String(),
	)
	return art, nil
}
