package app

import (
	"fmt"
	"time"
)

// PhaseMsg announces the pipeline moving to a new phase.
type PhaseMsg struct {
	Name string
}

// GridMsg reports one grid's extraction outcome.
type GridMsg struct {
	Name    string
	Status  string // "Complete", "Skipped" or "Error"
	Total   int    // grids in the run, for progress sizing
	Elapsed time.Duration
	ErrMsg  string
}

// DoneMsg signals the pipeline has finished, successfully or not.
type DoneMsg struct {
	Err       error
	StartTime time.Time
	EndTime   time.Time
}

func (p PhaseMsg) String() string { return fmt.Sprintf("Phase: %s", p.Name) }
func (g GridMsg) String() string  { return fmt.Sprintf("Grid %s: %s", g.Name, g.Status) }
func (d DoneMsg) String() string {
	if d.Err != nil {
		return fmt.Sprintf("Done with error: %v", d.Err)
	}
	return "Done"
}
