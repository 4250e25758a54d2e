// Package config loads job files.
//
// A job file is YAML. It is first validated against an embedded CUE schema
// (schema.cue), which reports every structural problem with its position,
// and then decoded into Job with unknown fields rejected. Relative paths in
// the file are resolved against the file's directory.
//
// Secrets are never stored in the job file: the repository password and SQL
// DSNs are read from environment variables named in the file, which may be
// populated from .env files (see LoadEnv).
package config
