// Package lsm implements an ordered, in-process key-value store backed by
// an LSM tree: a mutable in-memory memtable plus a sequence of immutable,
// sorted on-disk SSTables organized into levels. Two engine variants share
// the same on-disk table format and read paths but differ in how they
// compact: TieredStore keeps at most one table per level, cascading a
// two-way merge down through occupied levels on every flush; GranularStore
// keeps many size-bounded, non-overlapping tables per level, with each
// level's capacity growing geometrically.
//
// Every write is tagged with a monotonically increasing sequence number,
// giving both point reads and range scans snapshot semantics: GetAt and
// ScanAt see only versions committed at or before a given sequence number.
package lsm
