package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a unique job-run ID with the "run_" prefix
// Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewInterviewID generates a unique interview ID with the "ivw_" prefix
// Format: ivw_<uuid>
func NewInterviewID() string {
	return "ivw_" + uuid.New().String()
}
