// Package solaredge fetches live solar production from the SolarEdge
// monitoring API.
//
// The API reports power in kilowatts and caps requests per day; the
// client converts to watts and leaves budgeting to the scheduler.
package solaredge
