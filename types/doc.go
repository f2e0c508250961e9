// Copyright (c) ContextMem Authors.
// Licensed under the MIT License.

/*
Package types provides the shared type definitions for the contextmem module.

types is the lowest-level package and depends on no other contextmem
packages. All cross-package contracts live here to avoid circular imports:

  - Message / Role         — conversation message and participant role
  - ConversationSegment    — summarized, already-evicted block of messages
  - GlobalSummary          — running narrative folded from retired segments
  - RunState / ToolDigest  — durable per-execution progress checkpoint
  - Error / ErrorCode      — structured error taxonomy (store, compression,
    checkpoint, summarizer failures)

The ordering invariants on ConversationSegment and GlobalSummary are the
backbone of the sliding-window compaction engine: consecutive segments tile
the message index space without gap or overlap, and global-summary coverage
only ever extends forward.
*/
package types
