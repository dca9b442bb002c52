// Package core defines the shared data model and execution contracts of
// supplymesh: events, sessions (shared per-conversation context with
// producer-guarded state keys), the Agent/Step interfaces, the step failure
// taxonomy, and the RunContext threaded through every chain run.
package core
