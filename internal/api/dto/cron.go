package dto

// JobRunResponse reports the outcome of a manually triggered job
type JobRunResponse struct {
	Job     string `json:"job"`
	Tenants int    `json:"tenants"`
	Items   int    `json:"items"`
	Errors  int    `json:"errors"`
}
