//go:build linux && cgo

package ring

/*
#include <stdint.h>

// x86-64 store fence: ensures a submission slot write is globally
// visible before the doorbell tail write that follows it.
static inline void sfence_impl(void) {
    __asm__ __volatile__("sfence" ::: "memory");
}

// x86-64 full memory fence: ensures a completion phase-tag read is not
// reordered ahead of the rest of that entry's fields.
static inline void mfence_impl(void) {
    __asm__ __volatile__("mfence" ::: "memory");
}

// x86-64 pause hint: yields the core to a hyperthread sibling during a
// tight spin-wait instead of burning full issue width on an empty loop.
static inline void pause_impl(void) {
    __asm__ __volatile__("pause" ::: "memory");
}
*/
import "C"

// Release issues a store fence before a doorbell write, per spec.md's
// requirement that the submission slot be visible before the tail is
// published.
func Release() {
	C.sfence_impl()
}

// Acquire issues a full memory fence before inspecting a completion
// entry's phase tag, so a stale (pre-write) copy of the rest of the
// entry is never observed as matching the current phase.
func Acquire() {
	C.mfence_impl()
}

// Pause hints the CPU that the calling goroutine is in a tight
// spin-wait, for every busy-poll loop that waits on a doorbell-driven
// register or ring slot rather than blocking on a channel.
func Pause() {
	C.pause_impl()
}
