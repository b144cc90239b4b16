// Package harness runs resolution scenarios against the replacement engine.
//
// A scenario declares a document, the value sources available to it and the
// outcome expected after one pass. The harness builds recording sources from
// the scenario, runs a real ReplacingInjector over the document and then
// evaluates the assertions against the final document, the pass report and
// the recorded source calls.
//
// # Scenario Format
//
//	name: ssm_db_host
//	description: "A registered source resolves a nested entry"
//	pass_id: test-pass-ssm
//	document:
//	  db:
//	    host: ssm:/prod/db/host
//	    port: 5432
//	sources:
//	  - prefix: ssm
//	    values:
//	      ssm:/prod/db/host: db.internal
//	    errors:
//	      ssm:/prod/db/broken: "throttled"
//	kv:
//	  /prod/db/user: app
//	assertions:
//	  - type: value
//	    key: db.host
//	    expect: db.internal
//	  - type: fetch_count
//	    token: ssm:/prod/db/host
//	    count: 1
//
// Entries under kv are written to an in-memory sqlite store and served by a
// KV source registered under the "kv" prefix.
//
// # Assertion Types
//
//   - value: the entry at key equals expect after the pass
//   - unchanged: the entry at key equals its value before the pass
//   - update_count: the document saw exactly count updates for key
//   - fetch_count: token was fetched exactly count times
//   - fetch_order: tokens were fetched in this relative order
//   - unresolved: token in key did not resolve
//   - failed: the entry at key failed at stage
//
// # Deterministic Testing
//
// Pass IDs come from testutil.FixedPassIDGenerator and every snapshot is
// encoded with sorted keys, so RunWithGolden output is byte-identical across
// runs regardless of goroutine scheduling.
package harness
