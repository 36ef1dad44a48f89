// Package dispatch fires schedules at their next_send instants.
//
// One pending timer exists per active schedule id; arming an id that already
// has a timer atomically supersedes it, so an update can never double-fire.
// Expired timers push fire events onto a channel drained by a coordinator,
// which hands the actual sends to a small worker pool so a slow SMTP
// conversation cannot stall the timer loop.
package dispatch
