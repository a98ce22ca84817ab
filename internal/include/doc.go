// Package include supplies the fetch side of include resolution: the
// source fetch contract, cycle detection over ancestor reference chains,
// operation tokens for pending asynchronous fetches, and an optional
// fetch cache.
//
// The engine owns the tree side - parsing fetched markup, splicing it in
// place of the include node, and discarding completions whose target
// position has since been unmounted. This package deliberately knows
// nothing about render trees so fetchers stay trivially testable.
//
// Fetches may be synchronous (local files) or asynchronous (remote); both
// sit behind the same Fetcher interface and the engine treats every fetch
// as a deferred result.
package include
