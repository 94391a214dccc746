package model

import "time"

// RunDetails is the execution metadata of a remote run. It is persisted as the
// job_run_details.json snapshot in the job working directory.
type RunDetails struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	RemoteJobID string    `json:"remote_job_id"`
	Title       string    `json:"title"`
	ExitCode    int       `json:"exit_code"`
	Created     time.Time `json:"created"`
	Started     time.Time `json:"started"`
	Finished    time.Time `json:"finished"`
	Extra       string    `json:"extra"`
}
