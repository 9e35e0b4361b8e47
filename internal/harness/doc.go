// Package harness runs YAML scenarios against a real store.
//
// A scenario names a CUE models directory, seeds an in-memory SQLite
// database with a server payload, and drives an engine.Store through steps
// (push, create, find, set, relationship mutators, save, delete, reload,
// unload, rollback). Each step may expect a store error code. After the
// last step, assertions check flags, attributes and relationships, and the
// trace plus a snapshot of the graph can be compared with a golden file.
//
// Example scenario:
//
//	name: rename_and_save
//	models: ../models
//	server:
//	  user:
//	    - {id: "1", name: Ann}
//	steps:
//	  - {op: find, type: user, id: "1"}
//	  - {op: set, record: "user:1", field: name, value: Bob}
//	  - {op: save, record: "user:1"}
//	assertions:
//	  - {type: dirty, record: "user:1", value: false}
//	  - {type: attribute, record: "user:1", field: name, value: Bob}
//
// Records are addressed as "type:id" or, for records a create or find step
// named with "as", "@alias". Aliases survive the temporary-to-permanent id
// change on save.
package harness
