// Package transform provides generic Transformers for the CLI.
//
// Business-specific transforms are expected to live with their callers and
// implement job.Transformer directly; these cover the common text rewrites.
package transform
