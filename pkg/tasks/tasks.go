// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// IngestTask represents one asynchronous ingest job. The PDFs have already been
// archived under the user's namespace; FileNames are the original upload names.
type IngestTask struct {
	JobID     string   `json:"job_id"`
	UserID    string   `json:"user_id"`
	FileNames []string `json:"file_names"`
}
