// Package scheduler runs the sequential poll loop that paces the
// spot price and solar production sources.
//
// The spot price changes on settlement period boundaries, so it is
// fetched at most once per quarter hour. Solar production is fetched
// on a daylight-aware interval that spreads the API's daily call
// budget across the sun window. Both sources are skipped entirely
// while no observer is connected.
package scheduler
