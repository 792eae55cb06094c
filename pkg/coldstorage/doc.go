// Package coldstorage moves document content to a cold storage tier and back.
//
// A document's cold storage state is derived from its persisted fields:
//
//	NONE                 no cold content
//	ARCHIVED             cold content set, no usable restored copy
//	RETRIEVAL_REQUESTED  a restore was requested and has not completed
//	AVAILABLE            a restored copy is readable until AvailableUntil
//
// Move replaces the live content with a thumbnail and keeps the original in
// the cold store. Retrieve asks the cold backend for a temporary restored copy.
// Sweep polls the backend for every document being retrieved and marks the
// completed ones available; the Service dispatches a content-available event
// for each of them.
package coldstorage
