// Package engine runs one evaluation end to end: it builds the environment
// for an event, gives the run a fresh identity allocator and hands both to
// the task graph assembler.
package engine
