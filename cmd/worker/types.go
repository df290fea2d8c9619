package main

import "time"

// PurgeReport summarizes one collector run.
type PurgeReport struct {
	Cutoff  time.Time `json:"cutoff"`
	Expired int       `json:"expired"`
	Purged  int       `json:"purged"`
	// Skipped orders were restored or removed between the scan and the delete.
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}
