// Package batch runs one tool operation over several task IDs.
//
// Tools accept either a single ID or an array of IDs; each ID is processed
// independently so one failure does not stop the rest, and the outcome is
// reported per ID in a Summary.
package batch
