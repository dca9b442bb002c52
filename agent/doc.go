// Package agent provides the step implementations composing supply-chain
// pipelines: generative prompt steps, and the sequential / parallel
// composites orchestrating them over a shared session.
package agent
