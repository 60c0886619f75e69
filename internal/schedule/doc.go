// Package schedule provides the weekly broadcast schedule model and the
// machinery that runs things at points in time.
//
// NextOccurrence resolves the next broadcast slot of a WeeklySchedule as an
// absolute instant. Scheduler executes registered actions at future instants
// on a single background pump. Cron helpers preview upcoming slots.
package schedule
