// Package download drains a manifest of remote scene paths through an
// external bucket-copy command.
package download

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/clearsat/atmcorr/internal/logging"
	"github.com/clearsat/atmcorr/internal/properties"
)

// ReadManifest loads one remote path per line, skipping blanks and
// comment lines.
func ReadManifest(manifest string) ([]string, error) {
	f, err := os.Open(manifest)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Copier transfers one remote object tree into a local directory.
type Copier interface {
	Copy(ctx context.Context, remote, outDir string) error
}

// GsutilCopier shells out to the configured bucket-copy command.
type GsutilCopier struct {
	Bin   string
	Multi bool
}

func NewGsutilCopier(multi bool) *GsutilCopier {
	return &GsutilCopier{Bin: properties.GsutilBin(), Multi: multi}
}

func (g *GsutilCopier) Copy(ctx context.Context, remote, outDir string) error {
	cmd := exec.CommandContext(ctx, g.Bin, g.args(remote, outDir)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("executing %s: %w: %s", g.Bin, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (g *GsutilCopier) args(remote, outDir string) []string {
	var args []string
	if g.Multi {
		args = append(args, "-m")
	}
	return append(args, "cp", "-r", remote, outDir)
}

// Options steer one manifest run. FailList, when set, is rewritten after
// every attempt with the remotes that have failed so far, so a crash
// still leaves a usable retry manifest behind.
type Options struct {
	Manifest  string
	OutDir    string
	FailList  string
	Overwrite bool
	Workers   int
}

// Downloader walks manifests entry by entry through a Copier.
type Downloader struct {
	Copier Copier

	log zerolog.Logger
}

func New(copier Copier) *Downloader {
	return &Downloader{Copier: copier, log: logging.Component("download")}
}

// Run downloads every manifest entry that is not already present. Failed
// entries are collected and returned, never retried; only reading the
// manifest or preparing the output directory can fail the run itself.
func (d *Downloader) Run(ctx context.Context, opts Options) ([]string, error) {
	entries, err := ReadManifest(opts.Manifest)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	pool := workerpool.New(workers)
	bar := progressbar.Default(int64(len(entries)), "Downloading")

	var (
		mu     sync.Mutex
		failed []string
	)
	finishEntry := func(remote string, copyErr error) {
		mu.Lock()
		defer mu.Unlock()
		if copyErr != nil {
			failed = append(failed, remote)
			d.log.Error().Err(copyErr).Str("remote", remote).Msg("download failed")
		}
		if opts.FailList != "" {
			if err := writeFailList(opts.FailList, failed); err != nil {
				d.log.Error().Err(err).Str("path", opts.FailList).Msg("could not write failure list")
			}
		}
	}

	for _, remote := range entries {
		pool.Submit(func() {
			defer bar.Add(1)

			name := path.Base(remote)
			if !opts.Overwrite {
				if _, err := os.Stat(filepath.Join(opts.OutDir, name)); err == nil {
					d.log.Debug().Str("file", name).Msg("already downloaded")
					finishEntry(remote, nil)
					return
				}
			}

			d.log.Info().Str("file", name).Msg("downloading")
			finishEntry(remote, d.Copier.Copy(ctx, remote, opts.OutDir))
		})
	}
	pool.StopWait()

	d.log.Info().Int("entries", len(entries)).Int("failed", len(failed)).Msg("manifest finished")
	return failed, nil
}

func writeFailList(path string, failed []string) error {
	var b strings.Builder
	for _, remote := range failed {
		b.WriteString(remote)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
