// Package model defines shared data structures.
package model

import "time"

// OptimizeConfig defines the resolved settings of an optimize run.
type OptimizeConfig struct {
	Strategy     string
	Objective    string
	Depth        int
	Restarts     int
	Workers      int
	Seed         int64
	SanityTrials int
	Cache        bool
	CorpusPath   string
	TrigramDepth int
}

// RunsConfig defines filters for listing stored runs.
type RunsConfig struct {
	Strategy string
	Since    *time.Time
	Last     int
}

// RunRecord captures a finished optimize run.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	EndedAt    time.Time
	Strategy   string
	Objective  string
	Seed       int64
	Restarts   int
	Workers    int
	Depth      int
	CorpusPath string
	// Initial and Final hold the three layout rows joined by newlines.
	Initial      string
	Final        string
	InitialScore float64
	Score        float64
	Swaps        uint64
	DurationMs   int64
	Cancelled    bool
}

// RunScore is the climb result of one restart.
type RunScore struct {
	Restart int
	Score   float64
}

// Improvement returns InitialScore minus Score.
func (r RunRecord) Improvement() float64 {
	return r.InitialScore - r.Score
}
