// Package spotprice fetches electricity spot prices from the
// elprisetjustnu.se day-ahead feed.
//
// The feed is a static JSON file per day and bidding zone; there is no
// rate limit to budget for, but prices only change on settlement period
// boundaries, so the scheduler fetches at most once per quarter hour.
package spotprice
