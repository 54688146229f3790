package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Preflight checks that the files and directories the config points to are
// in place before a run starts.
func (c *Config) Preflight() error {
	if err := requireFile(c.Corpus, "corpus file"); err != nil {
		return err
	}

	info, err := os.Stat(c.Vectors)
	if err != nil {
		return fmt.Errorf("%w: vectors directory %s: %v, re-run `gridrunner setup`", ErrConfigMissing, c.Vectors, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: vectors path %s is not a directory", ErrConfigInvalid, c.Vectors)
	}

	if c.Queue.Backend == BackendSheets {
		if err := requireFile(c.Queue.Sheets.APIKey, "api key file"); err != nil {
			return err
		}
	}

	info, err = os.Stat(c.FastText)
	if err != nil {
		return fmt.Errorf("%w: fasttext binary %s: %v, re-run `gridrunner setup`", ErrConfigMissing, c.FastText, err)
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%w: fasttext binary %s is not executable, re-run `gridrunner setup --overwrite-fasttext`", ErrConfigInvalid, c.FastText)
	}

	return nil
}

func requireFile(path, what string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s %s does not exist, re-run `gridrunner setup`", ErrConfigMissing, what, path)
	}
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrConfigMissing, what, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s %s is a directory", ErrConfigInvalid, what, path)
	}
	return nil
}
