// Package timeclient is the client side of clocksync. A Manager fetches
// corrected time from a clocksync server, keeps the difference to the local
// clock, and answers CurrentTime without further network access. When the
// server cannot be reached the Manager keeps working on the local clock.
package timeclient
