// Package compiler turns CUE model declarations into a schema.Schema.
//
// Models live under a top-level "model" struct keyed by type:
//
//	model: user: {
//		attributes: {
//			name: "string"
//			age:  {type: "number", default: 0}
//			role: {type: "enum", values: ["admin", "member"], default: "member", readOnly: true}
//		}
//		relationships: {
//			posts:   {hasMany: "post", inverse: "author", optional: true}
//			profile: {hasOne: "profile", inverse: "user", optional: true}
//		}
//	}
//
// Field-level problems are reported as CompileError with a source position.
// CompileSchema additionally cross-checks inverses through schema.New.
package compiler
