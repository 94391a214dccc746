// Package workspace stages a job on an execution host reached through a
// transport, and collects its results and run markers back.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tigerroll/waves/pkg/waves/adaptor/transport"
	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/job/command"
	"github.com/tigerroll/waves/pkg/waves/core/job/workdir"
	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

const (
	// ScriptFile is the wrapper script run on the execution host.
	ScriptFile = "job.sh"
	// ExitCodeFile receives the command exit status.
	ExitCodeFile = "job.exitcode"
	// StartedFile and FinishedFile receive epoch seconds.
	StartedFile  = "job.started"
	FinishedFile = "job.finished"
)

// Workspace is the job directory on the execution host.
type Workspace struct {
	Transport transport.Transport
	// Base is the remote parent directory; unused for local transports where
	// the job working directory is used directly.
	Base string
}

// Dir returns the job directory on the execution host.
func (w Workspace) Dir(job *model.Job) string {
	if w.Transport.Local() {
		return job.WorkingDir
	}
	return path.Join(w.Base, job.Slug)
}

// WrapperScript returns the script that runs cmdline in dir and records its
// start time, end time and exit status.
func WrapperScript(dir, cmdline string) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "cd %s || exit 1\n", command.Quote(dir))
	fmt.Fprintf(&b, "date +%%s > %s\n", StartedFile)
	// The subshell keeps exit and exec in cmdline from skipping the markers.
	b.WriteString("(\n" + cmdline + "\n)\n")
	b.WriteString("code=$?\n")
	fmt.Fprintf(&b, "date +%%s > %s\n", FinishedFile)
	fmt.Fprintf(&b, "echo $code > %s\n", ExitCodeFile)
	return b.String()
}

// Stage creates the job directory, uploads file inputs and the wrapper script.
func (w Workspace) Stage(ctx context.Context, job *model.Job, cmdline string) error {
	dir := w.Dir(job)
	if err := w.Transport.MkdirAll(ctx, dir); err != nil {
		return fmt.Errorf("create job directory %s: %w", dir, err)
	}
	for _, in := range job.Inputs {
		if !in.IsFile() || in.Value == "" {
			continue
		}
		name, err := stagedName(in.Value)
		if err != nil {
			return exception.NewJobPrepareError("workspace", fmt.Sprintf("cannot stage input %s", in.Name), err)
		}
		local := filepath.Join(job.WorkingDir, filepath.FromSlash(name))
		if err := w.Transport.Upload(ctx, local, path.Join(dir, name)); err != nil {
			return fmt.Errorf("stage input %s: %w", in.Name, err)
		}
	}
	script := filepath.Join(job.WorkingDir, ScriptFile)
	if err := os.WriteFile(script, []byte(WrapperScript(dir, cmdline)), 0o775); err != nil {
		return fmt.Errorf("write wrapper script: %w", err)
	}
	if err := w.Transport.Upload(ctx, script, path.Join(dir, ScriptFile)); err != nil {
		return fmt.Errorf("upload wrapper script: %w", err)
	}
	return nil
}

// stagedName cleans an input file name and refuses names that leave the job
// directory.
func stagedName(value string) (string, error) {
	name := path.Clean(filepath.ToSlash(value))
	if path.IsAbs(name) || name == "." || name == ".." || strings.HasPrefix(name, "../") {
		return "", fmt.Errorf("file '%s' is outside of the job directory", value)
	}
	return name, nil
}

// List returns the regular files of the job directory, relative and sorted.
func (w Workspace) List(ctx context.Context, job *model.Job) ([]string, error) {
	res, err := w.Transport.Exec(ctx, fmt.Sprintf("cd %s && find . -type f", command.Quote(w.Dir(job))))
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("list job directory: exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	var files []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimPrefix(strings.TrimSpace(line), "./")
		if line != "" {
			files = append(files, line)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Collect copies the capture files and the files matching the declared
// outputs into the local working directory. Copying the same files twice is harmless.
func (w Workspace) Collect(ctx context.Context, job *model.Job) error {
	files, err := w.List(ctx, job)
	if err != nil {
		return err
	}
	wanted := map[string]bool{workdir.StdoutFile: true, workdir.StderrFile: true, ExitCodeFile: true}
	for _, out := range job.Outputs {
		matched := false
		for _, f := range files {
			ok, err := doublestar.Match(out.Value, f)
			if err != nil {
				return fmt.Errorf("output %s: invalid pattern %q: %w", out.Name, out.Value, err)
			}
			if ok {
				wanted[f] = true
				matched = true
			}
		}
		if !matched && !out.Optional {
			logger.Warnf("Job %s: expected output %s (%s) not found", job.Slug, out.Name, out.Value)
		}
	}
	if w.Transport.Local() {
		return nil
	}
	dir := w.Dir(job)
	for _, f := range files {
		if !wanted[f] {
			continue
		}
		if err := w.Transport.Download(ctx, path.Join(dir, f), filepath.Join(job.WorkingDir, filepath.FromSlash(f))); err != nil {
			return fmt.Errorf("download %s: %w", f, err)
		}
	}
	return nil
}

// Markers are the run markers written by the wrapper script.
type Markers struct {
	Started  time.Time
	Finished time.Time
	ExitCode int
	Exited   bool
}

// ReadMarkers reads the wrapper markers; missing ones are left zero.
func (w Workspace) ReadMarkers(ctx context.Context, job *model.Job) (Markers, error) {
	cmd := fmt.Sprintf("cd %s && for f in %s %s %s; do printf '%%s=' $f; cat $f 2>/dev/null || echo; done",
		command.Quote(w.Dir(job)), StartedFile, FinishedFile, ExitCodeFile)
	res, err := w.Transport.Exec(ctx, cmd)
	if err != nil {
		return Markers{}, err
	}
	if res.ExitCode != 0 {
		return Markers{}, fmt.Errorf("read markers: exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return ParseMarkers(res.Stdout), nil
}

// ParseMarkers parses "name=value" lines produced by ReadMarkers.
func ParseMarkers(out string) Markers {
	var m Markers
	for _, line := range strings.Split(out, "\n") {
		name, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok || value == "" {
			continue
		}
		switch name {
		case StartedFile:
			if sec, err := strconv.ParseInt(value, 10, 64); err == nil {
				m.Started = time.Unix(sec, 0).UTC()
			}
		case FinishedFile:
			if sec, err := strconv.ParseInt(value, 10, 64); err == nil {
				m.Finished = time.Unix(sec, 0).UTC()
			}
		case ExitCodeFile:
			if code, err := strconv.Atoi(value); err == nil {
				m.ExitCode = code
				m.Exited = true
			}
		}
	}
	return m
}

// Details builds run details from the markers.
func (w Workspace) Details(ctx context.Context, job *model.Job) (*model.RunDetails, error) {
	m, err := w.ReadMarkers(ctx, job)
	if err != nil {
		return nil, err
	}
	if m.Exited {
		job.ExitCode = m.ExitCode
	}
	return &model.RunDetails{
		ID:          job.ID,
		Slug:        job.Slug,
		RemoteJobID: job.RemoteJobID,
		Title:       job.Title,
		ExitCode:    job.ExitCode,
		Created:     job.CreatedAt,
		Started:     m.Started,
		Finished:    m.Finished,
	}, nil
}
