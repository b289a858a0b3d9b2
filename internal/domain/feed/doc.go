// Package feed supervises the lifecycle of the cards in a vertical feed.
//
// Only the active card and its two neighbours hold a surface. When the
// viewport settles the Supervisor recomputes every index's role, mounts
// surfaces entering the window, stops and releases those leaving it, and
// sends RESUME to the active card and PAUSE to the preloaded ones. Each
// mount gets a fresh card id and context, so messages and tasks of a torn
// down card can never reach its successor.
package feed
