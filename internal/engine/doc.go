// Package engine is the dispatch core of the bot: a priority job queue, a
// polling scheduler gated by an in-flight guard, and worker loops that run
// the poll/react protocols against the feed, classifier, and store
// collaborators.
package engine
