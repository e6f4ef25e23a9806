package models

// Progress is the transient position of a job in the pipeline. It lives only while
// the job is queued or processing and is polled, never pushed.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Status  string `json:"status"`
}
