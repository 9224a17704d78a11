// Package infra contains the concrete implementations of the contracts in
// package domain.
//
// Examples:
//   - Store: sharded in-memory block list and window counters
//   - Slots: channel semaphore for the in-flight limit
//   - MemoryStatsStore, RedisStatsStore, PrometheusStatsStore: decision statistics
//   - AsyncStatsStore: keeps sinks that do I/O off the request path
package infra
