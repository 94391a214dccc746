package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tigerroll/waves/internal/app"
	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/domain/repository"
	"github.com/tigerroll/waves/pkg/waves/core/job/runner"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
)

func newAdvanceCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "advance <job> <operation>",
		Short: "Run one lifecycle operation on a job",
		Long: `Run one operation on the job given by id or slug and print its new status.
Operations: prepare, run, cancel, poll, fetch_results.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := statemachine.ParseOperation(args[1])
			if err != nil {
				return err
			}
			return withRunner(cmd, g, args[0], func(ctx context.Context, r *runner.JobRunner, job *model.Job) (*model.Job, error) {
				return r.Advance(ctx, job.ID, op)
			})
		},
	}
}

func newRerunCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "rerun <job>",
		Short: "Reset a finished job so it runs again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, g, args[0], func(ctx context.Context, r *runner.JobRunner, job *model.Job) (*model.Job, error) {
				return r.ReRun(ctx, job.ID)
			})
		},
	}
}

// withRunner resolves ref, applies fn and prints the resulting status.
func withRunner(cmd *cobra.Command, g *globals, ref string, fn func(context.Context, *runner.JobRunner, *model.Job) (*model.Job, error)) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	var (
		r    *runner.JobRunner
		repo repository.JobRepository
		job  *model.Job
	)
	err = app.Execute(cmd.Context(), cfg, func(ctx context.Context) error {
		found, err := ResolveJob(ctx, repo, ref)
		if err != nil {
			return err
		}
		job, err = fn(ctx, r, found)
		return err
	}, &r, &repo)
	if job != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", job.Slug, job.Status)
	}
	return err
}

// ResolveJob finds a job by id, then by slug.
func ResolveJob(ctx context.Context, repo repository.JobRepository, ref string) (*model.Job, error) {
	job, err := repo.FindJobByID(ctx, ref)
	if errors.Is(err, repository.ErrJobNotFound) {
		job, err = repo.FindJobBySlug(ctx, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", ref, err)
	}
	return job, nil
}

type historyView struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	IsAdmin   bool      `json:"is_admin,omitempty"`
}

type jobView struct {
	ID          string        `json:"id"`
	Slug        string        `json:"slug"`
	Title       string        `json:"title"`
	Service     string        `json:"service,omitempty"`
	Status      string        `json:"status"`
	Adaptor     string        `json:"adaptor,omitempty"`
	NbRetry     int           `json:"nb_retry"`
	RemoteJobID string        `json:"remote_job_id,omitempty"`
	ExitCode    int           `json:"exit_code"`
	CommandLine string        `json:"command_line,omitempty"`
	WorkingDir  string        `json:"working_dir,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	History     []historyView `json:"history,omitempty"`
}

func newJobView(job *model.Job, withHistory bool) jobView {
	v := jobView{
		ID:          job.ID,
		Slug:        job.Slug,
		Title:       job.Title,
		Service:     job.Service,
		Status:      job.Status.String(),
		NbRetry:     job.NbRetry,
		RemoteJobID: job.RemoteJobID,
		ExitCode:    job.ExitCode,
		CommandLine: job.CommandLine,
		WorkingDir:  job.WorkingDir,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}
	if job.Adaptor != nil {
		v.Adaptor = job.Adaptor.Kind
	}
	if withHistory {
		for _, h := range job.History {
			v.History = append(v.History, historyView{
				Status:    h.Status.String(),
				Message:   h.Message,
				Timestamp: h.Timestamp,
				IsAdmin:   h.IsAdmin,
			})
		}
	}
	return v
}

func newStatusCommand(g *globals) *cobra.Command {
	c := &cobra.Command{
		Use:   "status [job]",
		Short: "Show one job with its history, or list jobs",
		Long: `Show the job given by id or slug with its public history, or list the
pending jobs when no job is given. --all lists finished jobs too and, for a
single job, includes the administrative history entries.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			asJSON, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := g.load()
			if err != nil {
				return err
			}
			var repo repository.JobRepository
			return app.Execute(cmd.Context(), cfg, func(ctx context.Context) error {
				w := cmd.OutOrStdout()
				if len(args) == 1 {
					job, err := ResolveJob(ctx, repo, args[0])
					if err != nil {
						return err
					}
					if !all {
						job.History = job.PublicHistory()
					}
					if asJSON {
						return writeJSON(w, newJobView(job, true))
					}
					return printJob(w, job)
				}

				statuses := model.PendingStatuses
				if all {
					statuses = model.AllStatuses
				}
				jobs, err := repo.FindJobsByStatus(ctx, limit, statuses...)
				if err != nil {
					return err
				}
				if asJSON {
					views := make([]jobView, 0, len(jobs))
					for _, j := range jobs {
						views = append(views, newJobView(j, false))
					}
					return writeJSON(w, views)
				}
				return printJobs(w, jobs)
			}, &repo)
		},
	}
	c.Flags().Bool("all", false, "Include finished jobs and administrative history")
	c.Flags().Bool("json", false, "Output as JSON")
	c.Flags().Int("limit", 100, "Maximum number of listed jobs (0 = no limit)")
	return c
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJobs(w io.Writer, jobs []*model.Job) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tSTATUS\tRETRY\tTITLE\tUPDATED")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", j.Slug, j.Status, j.NbRetry, j.Title, j.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func printJob(w io.Writer, job *model.Job) error {
	v := newJobView(job, false)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", v.ID)
	fmt.Fprintf(tw, "Slug:\t%s\n", v.Slug)
	fmt.Fprintf(tw, "Title:\t%s\n", v.Title)
	fmt.Fprintf(tw, "Status:\t%s\n", v.Status)
	fmt.Fprintf(tw, "Adaptor:\t%s\n", v.Adaptor)
	fmt.Fprintf(tw, "Retries:\t%d\n", v.NbRetry)
	if v.RemoteJobID != "" {
		fmt.Fprintf(tw, "Remote id:\t%s\n", v.RemoteJobID)
	}
	if v.CommandLine != "" {
		fmt.Fprintf(tw, "Command:\t%s\n", v.CommandLine)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tSTATUS\tMESSAGE")
	for _, h := range job.History {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", h.Timestamp.UTC().Format(time.RFC3339), h.Status, h.Message)
	}
	return tw.Flush()
}
