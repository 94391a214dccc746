package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/waves/internal/app"
	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/job/runner"
)

// submission is the YAML document accepted by 'submit --file'.
type submission struct {
	Title   string            `yaml:"title"`
	Service string            `yaml:"service"`
	Runner  string            `yaml:"runner"`
	Inputs  []model.JobInput  `yaml:"inputs"`
	Outputs []model.JobOutput `yaml:"outputs"`
	Notify  bool              `yaml:"notify"`
	EmailTo string            `yaml:"email_to"`
}

func newSubmitCommand(g *globals) *cobra.Command {
	c := &cobra.Command{
		Use:   "submit",
		Short: "Create a job on a configured runner",
		Long: `Create a job in CREATED state bound to one of the runners of the
configuration. The scheduler of 'wavesd serve' picks it up, or it can be
driven by hand with 'wavesd advance'.

The job is described by flags, by a YAML document (--file) or both; flags
win. Inputs given as --input name=value are text inputs rendered as
--name=value, in flag order.`,
		Example: `  wavesd submit --runner blast --title "nr search" --input evalue=1e-5 --output hits=*.tsv
  wavesd submit --file job.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := buildRequest(cmd)
			if err != nil {
				return err
			}
			cfg, err := g.load()
			if err != nil {
				return err
			}
			var r *runner.JobRunner
			var job *model.Job
			err = app.Execute(cmd.Context(), cfg, func(ctx context.Context) error {
				var err error
				job, err = r.CreateJob(ctx, req)
				return err
			}, &r)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", job.ID, job.Slug, job.Status)
			return nil
		},
	}
	f := c.Flags()
	f.String("file", "", "YAML job description")
	f.String("title", "", "Job title")
	f.String("service", "", "Service the job belongs to")
	f.String("runner", "", "Name of the runner executing the job")
	f.StringArray("input", nil, "Text input as name=value (repeatable)")
	f.StringArray("output", nil, "Expected output as name=glob (repeatable)")
	f.Bool("notify", false, "Send status notifications for this job")
	f.String("email-to", "", "Notification recipient")
	return c
}

func buildRequest(cmd *cobra.Command) (runner.JobRequest, error) {
	var s submission
	f := cmd.Flags()
	if path, _ := f.GetString("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return runner.JobRequest{}, err
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return runner.JobRequest{}, fmt.Errorf("invalid job description %s: %w", path, err)
		}
	}
	if f.Changed("title") {
		s.Title, _ = f.GetString("title")
	}
	if f.Changed("service") {
		s.Service, _ = f.GetString("service")
	}
	if f.Changed("runner") {
		s.Runner, _ = f.GetString("runner")
	}
	if f.Changed("notify") {
		s.Notify, _ = f.GetBool("notify")
	}
	if f.Changed("email-to") {
		s.EmailTo, _ = f.GetString("email-to")
	}
	raw, _ := f.GetStringArray("input")
	inputs, err := ParseInputs(raw, len(s.Inputs))
	if err != nil {
		return runner.JobRequest{}, err
	}
	s.Inputs = append(s.Inputs, inputs...)
	raw, _ = f.GetStringArray("output")
	outputs, err := ParseOutputs(raw)
	if err != nil {
		return runner.JobRequest{}, err
	}
	s.Outputs = append(s.Outputs, outputs...)

	if s.Runner == "" {
		return runner.JobRequest{}, fmt.Errorf("a runner is required (--runner or 'runner' in --file)")
	}
	if s.Title == "" {
		s.Title = s.Runner
	}
	return runner.JobRequest{
		Title:   s.Title,
		Service: s.Service,
		Runner:  s.Runner,
		Inputs:  s.Inputs,
		Outputs: s.Outputs,
		Notify:  s.Notify,
		EmailTo: s.EmailTo,
	}, nil
}

// ParseInputs turns name=value pairs into text inputs ordered after the
// first offset ones.
func ParseInputs(pairs []string, offset int) ([]model.JobInput, error) {
	inputs := make([]model.JobInput, 0, len(pairs))
	for i, p := range pairs {
		name, value, err := splitPair(p)
		if err != nil {
			return nil, fmt.Errorf("invalid --input: %w", err)
		}
		inputs = append(inputs, model.JobInput{
			Name:      name,
			Value:     value,
			Type:      model.InputText,
			CmdFormat: model.CmdValuated,
			Order:     offset + i,
		})
	}
	return inputs, nil
}

// ParseOutputs turns name=glob pairs into optional outputs.
func ParseOutputs(pairs []string) ([]model.JobOutput, error) {
	outputs := make([]model.JobOutput, 0, len(pairs))
	for _, p := range pairs {
		name, value, err := splitPair(p)
		if err != nil {
			return nil, fmt.Errorf("invalid --output: %w", err)
		}
		outputs = append(outputs, model.JobOutput{Name: name, Value: value, Optional: true})
	}
	return outputs, nil
}

func splitPair(p string) (string, string, error) {
	name, value, ok := strings.Cut(p, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("%q is not name=value", p)
	}
	return name, value, nil
}
