// Package workdir manages the per-job working directory: staged inputs, the
// stdout/stderr capture files, the job log and the run-details snapshot.
package workdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

const module = "workdir"

const (
	// StdoutFile captures the remote standard output.
	StdoutFile = "job.stdout"
	// StderrFile captures the remote standard error and job error lines.
	StderrFile = "job.stderr"
	// LogFile is the job log truncated on re-run.
	LogFile = "job.log"
	// RunDetailsFile is the run-details snapshot.
	RunDetailsFile = "job_run_details.json"

	dirMode  fs.FileMode = 0o775
	fileMode fs.FileMode = 0o664
)

// Manager resolves and manipulates job working directories under BaseDir.
type Manager struct {
	BaseDir string
}

// NewManager creates a Manager rooted at baseDir.
func NewManager(baseDir string) *Manager {
	return &Manager{BaseDir: baseDir}
}

// WorkingDir returns BaseDir/<slug>.
func (m *Manager) WorkingDir(job *model.Job) string {
	if job.WorkingDir != "" {
		return job.WorkingDir
	}
	return filepath.Join(m.BaseDir, job.Slug)
}

// Path resolves name inside the job working directory, refusing paths that
// escape it.
func (m *Manager) Path(job *model.Job, name string) (string, error) {
	dir := m.WorkingDir(job)
	full := filepath.Join(dir, name)
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	absFull, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	if absFull != absDir && !strings.HasPrefix(absFull, absDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("resolved path '%s' is outside of job directory '%s'", full, dir)
	}
	return full, nil
}

// MakeJobDirs creates the working directory with 0775 permissions and records
// it on the job.
func (m *Manager) MakeJobDirs(job *model.Job) error {
	dir := m.WorkingDir(job)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return exception.NewWavesError(module, fmt.Sprintf("failed to create job directory %s", dir), err)
	}
	// MkdirAll honours the umask, the directory mode is fixed explicitly.
	if err := os.Chmod(dir, dirMode); err != nil {
		return exception.NewWavesError(module, fmt.Sprintf("failed to set permissions on %s", dir), err)
	}
	job.WorkingDir = dir
	return nil
}

// DeleteJobDirs removes the working directory and its content.
func (m *Manager) DeleteJobDirs(job *model.Job) error {
	return os.RemoveAll(m.WorkingDir(job))
}

// CreateDefaultOutputs creates empty stdout/stderr capture files and the job log.
func (m *Manager) CreateDefaultOutputs(job *model.Job) error {
	for _, name := range []string{StdoutFile, StderrFile, LogFile} {
		if err := m.truncate(job, name); err != nil {
			return err
		}
	}
	return nil
}

// ResetOutputs truncates the capture files, the declared outputs and the log,
// and drops the run-details snapshot.
func (m *Manager) ResetOutputs(job *model.Job) error {
	if err := m.CreateDefaultOutputs(job); err != nil {
		return err
	}
	for _, out := range job.Outputs {
		if strings.ContainsAny(out.Value, "*?[{") {
			continue
		}
		if err := m.truncate(job, out.Value); err != nil {
			return err
		}
	}
	p, err := m.Path(job, RunDetailsFile)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return exception.NewWavesError(module, "failed to remove run details snapshot", err)
	}
	return nil
}

func (m *Manager) truncate(job *model.Job, name string) error {
	p, err := m.Path(job, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), dirMode); err != nil {
		return exception.NewWavesError(module, fmt.Sprintf("failed to create %s", filepath.Dir(p)), err)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fileMode)
	if err != nil {
		return exception.NewWavesError(module, fmt.Sprintf("failed to create %s", p), err)
	}
	return f.Close()
}

// AppendStderr appends a line to job.stderr.
func (m *Manager) AppendStderr(job *model.Job, line string) error {
	return m.appendTo(job, StderrFile, line)
}

// AppendLog appends a line to job.log.
func (m *Manager) AppendLog(job *model.Job, line string) error {
	return m.appendTo(job, LogFile, line)
}

func (m *Manager) appendTo(job *model.Job, name, line string) error {
	p, err := m.Path(job, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), dirMode); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, fileMode)
	if err != nil {
		return err
	}
	defer f.Close()
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	_, err = f.WriteString(line)
	return err
}

// StderrSize returns the size of job.stderr, 0 when it does not exist.
func (m *Manager) StderrSize(job *model.Job) (int64, error) {
	p, err := m.Path(job, StderrFile)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// HasRunDetails reports whether the snapshot file exists.
func (m *Manager) HasRunDetails(job *model.Job) bool {
	p, err := m.Path(job, RunDetailsFile)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// ReadRunDetails loads the snapshot. It returns fs.ErrNotExist (wrapped) when absent.
func (m *Manager) ReadRunDetails(job *model.Job) (*model.RunDetails, error) {
	p, err := m.Path(job, RunDetailsFile)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	var d model.RunDetails
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, exception.NewWavesError(module, "corrupted run details snapshot", err)
	}
	return &d, nil
}

// WriteRunDetails writes the snapshot.
func (m *Manager) WriteRunDetails(job *model.Job, d *model.RunDetails) error {
	p, err := m.Path(job, RunDetailsFile)
	if err != nil {
		return err
	}
	data, err := json.Marshal(d)
	if err != nil {
		return exception.NewWavesError(module, "failed to encode run details", err)
	}
	if err := os.WriteFile(p, data, fileMode); err != nil {
		return exception.NewWavesError(module, "failed to write run details snapshot", err)
	}
	logger.Debugf("Run details snapshot written for job %s", job.Slug)
	return nil
}
