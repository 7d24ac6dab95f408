// Package daylight computes sun windows and budget-aware poll
// intervals for the solar production source.
//
// The inverter cloud API enforces a daily request quota. Rather than
// polling on a fixed timer and burning quota at night, the planner
// spreads the usable budget evenly across the daylight minutes of the
// current day, recomputed once per day by the scheduler.
package daylight
