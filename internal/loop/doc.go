// Package loop implements the single logical thread the store runs on.
//
// ARCHITECTURE:
//
// Single-Goroutine Task Loop:
// Every piece of store work (API calls made from tasks, observer callbacks,
// promise continuations, timer callbacks, change detection) runs as a task
// on one goroutine. Tasks never preempt each other, so state touched only
// from tasks needs no locks.
//
// Turn Processing Flow:
//  1. Tasks are posted to a FIFO queue from any goroutine (Post, After, Do)
//  2. Run dequeues one task at a time and executes it
//  3. After each task the end-of-turn hooks run (change detection lives here)
//  4. Do callers are released once their task and its hooks have finished
//
// Timers armed with After count as outstanding work until their callback
// task has run, so Drain can wait for a scenario to quiesce.
package loop
