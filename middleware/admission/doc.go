// Package admission provides the net/http adapters for request admission:
// the per-IP fixed-window limiter with its temporary block list, and the
// in-flight concurrency cap.
//
// Layers:
//
//   - domain: verdicts, entries and store contracts (no net/http)
//   - application: the Allow/Throttled/Blocked decision and slot acquisition
//   - infra: sharded in-memory store, channel semaphore, stats sinks
//   - admission (this package): middlewares, client key extraction and the
//     translation of decisions into status codes, headers and JSON bodies
//
// Request flow:
//
//  1. Extract the client key (RemoteAddr, or the first X-Forwarded-For hop)
//  2. Ask the controller for a decision
//  3. Blocked or Throttled: answer 429 with a JSON body
//  4. Allow: call the next handler
package admission
