package cluster

import (
	"fmt"
	"strings"

	"github.com/tigerroll/waves/pkg/waves/adaptor"
	"github.com/tigerroll/waves/pkg/waves/core/job/command"
	"github.com/tigerroll/waves/pkg/waves/core/job/workdir"
)

// Scheduler renders and parses the commands of one batch scheduler.
type Scheduler interface {
	Name() string
	// Binary is the submission command used to check availability.
	Binary() string
	SubmitCommand(script, jobName, queue string) string
	ParseSubmit(stdout string) (string, error)
	StatusCommand(id string) string
	// ParseStatus returns the native state, or "" when the job left the queue.
	ParseStatus(stdout string) string
	CancelCommand(id string) string
	States() adaptor.StatusTable
}

const (
	SchedulerSGE   = "sge"
	SchedulerSlurm = "slurm"
)

// SchedulerFor returns the scheduler named name.
func SchedulerFor(name string) (Scheduler, error) {
	switch strings.ToLower(name) {
	case SchedulerSGE:
		return SGE{}, nil
	case SchedulerSlurm:
		return Slurm{}, nil
	}
	return nil, fmt.Errorf("unsupported scheduler %q", name)
}

// SGE drives Sun/Open Grid Engine.
type SGE struct{}

func (SGE) Name() string   { return SchedulerSGE }
func (SGE) Binary() string { return "qsub" }

func (SGE) SubmitCommand(script, jobName, queue string) string {
	cmd := fmt.Sprintf("qsub -terse -cwd -V -N %s -o %s -e %s", command.Quote(jobName), workdir.StdoutFile, workdir.StderrFile)
	if queue != "" {
		cmd += " -q " + command.Quote(queue)
	}
	return cmd + " " + script
}

// ParseSubmit reads the job id printed by qsub -terse; array ids keep their
// base number only.
func (SGE) ParseSubmit(stdout string) (string, error) {
	id := strings.TrimSpace(stdout)
	if i := strings.IndexByte(id, '.'); i > 0 {
		id = id[:i]
	}
	if id == "" {
		return "", fmt.Errorf("qsub returned no job id")
	}
	return id, nil
}

func (SGE) StatusCommand(id string) string {
	return fmt.Sprintf("qstat | awk '$1 == \"%s\" {print $5}'", id)
}

func (SGE) ParseStatus(stdout string) string { return firstLine(stdout) }

func (SGE) CancelCommand(id string) string { return "qdel " + command.Quote(id) }

func (SGE) States() adaptor.StatusTable { return adaptor.SGEStates }

// Slurm drives the SLURM workload manager.
type Slurm struct{}

func (Slurm) Name() string   { return SchedulerSlurm }
func (Slurm) Binary() string { return "sbatch" }

func (Slurm) SubmitCommand(script, jobName, queue string) string {
	cmd := fmt.Sprintf("sbatch --parsable -J %s -o %s -e %s", command.Quote(jobName), workdir.StdoutFile, workdir.StderrFile)
	if queue != "" {
		cmd += " -p " + command.Quote(queue)
	}
	return cmd + " " + script
}

// ParseSubmit reads "id[;cluster]".
func (Slurm) ParseSubmit(stdout string) (string, error) {
	id, _, _ := strings.Cut(strings.TrimSpace(stdout), ";")
	if id == "" {
		return "", fmt.Errorf("sbatch returned no job id")
	}
	return id, nil
}

func (Slurm) StatusCommand(id string) string {
	return fmt.Sprintf("squeue -h -j %s -o %%T 2>/dev/null", command.Quote(id))
}

func (Slurm) ParseStatus(stdout string) string { return firstLine(stdout) }

func (Slurm) CancelCommand(id string) string { return "scancel " + command.Quote(id) }

func (Slurm) States() adaptor.StatusTable { return adaptor.SlurmStates }

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}
