// Package token finds and parses reference tokens embedded in document values.
//
// A reference token has the form <prefix>:<body>:
//
//	ssm:/prod/db/host
//	env:FEATURE_X@default(off)
//	kv:/shared/hosts@split(comma)@lower
//
// The prefix selects the value source that owns the token. The body (the
// value pattern) is a source-specific path optionally followed by modifiers
// introduced with '@'. Modifiers are applied by the transform package after
// the source has produced a value.
//
// MATCHING RULES:
//
//   - Matching is global: every non-overlapping occurrence in a string is found.
//   - Matching is not anchored: tokens may sit inside literal text.
//   - The body may contain further colons and parentheses. The matcher does
//     not try to delimit nested structure; Parse does that.
//   - Duplicates are dropped by Distinct, keeping first-seen order.
package token
