// Package harness runs YAML scenarios against a fresh domain store and
// checks the resulting session trace.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: library-cascade
//	description: "Removing a library removes its embedded books"
//	schema: library.yaml
//	correlation_prefix: s
//	domains: [lib]
//	steps:
//	  - op: session
//	    steps:
//	      - {op: create, domain: lib, schema: Library, id: l1}
//	      - {op: set, id: "lib:l1", property: name, value: Central}
//	  - op: relate
//	    domain: lib
//	    schema: Holds
//	    start: "lib:l1"
//	    end: "lib:b1"
//	  - {op: remove, id: "lib:l1"}
//	  - {op: create, domain: lib, schema: Library, id: l1, expect_error: duplicate_element}
//	assertions:
//	  - {type: absent, id: "lib:l1"}
//	  - {type: event_count, kind: RemoveEntity, count: 1}
//
// Every top-level step runs in its own session; a session step groups its
// nested steps into one. Setting accept: false on a session step leaves it
// unaccepted, so it rolls back on close.
//
// # Golden Traces
//
// The trace of completed sessions is serialized as canonical JSON and
// compared with testdata/golden/{name}.golden. Correlation ids come from a
// sequence generator, so traces are byte-stable across runs.
package harness
