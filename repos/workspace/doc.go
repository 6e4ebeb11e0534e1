/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package workspace provides ephemeral, single-owner git clones for one
// pipeline invocation. A Manager is configured once with the git host,
// commit identity and clone depth, and exposes Acquire, which:
//   - Creates a uniquely named temporary directory.
//   - Performs a shallow, single-branch clone authenticated with the caller's
//     token.
//   - Records the commit identity in the clone's local configuration.
//
// Every Acquire must be paired with a deferred Release, which removes the
// directory and never fails. Handles are never pooled or shared between
// requests; Handle.Resolve confines every caller-supplied path to the clone.
package workspace
