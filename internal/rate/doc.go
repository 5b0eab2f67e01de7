// Package rate throttles failed logins with fixed-window counters.
//
// # Window semantics
//
// The first failure in a window starts it; the window lasts LoginCooldownDuration.
// Key prefixes:
//   - al:  login per email
//   - ali: login per IP
//
// [RedisLimiter] shares counters across instances. [MemoryLimiter] keeps them
// in process memory.
package rate
