// Package calendar derives month and day views from a snapshot of posts.
//
// Every function here is pure: it reads its arguments and returns fresh
// values. Navigation state (which month is on screen, the active filter and
// search term) belongs to the caller.
package calendar
