// Package nativemodule holds the native side of the bridge: module
// descriptors, per-module method dispatch tables and the registry that
// aggregates them for one runtime context.
//
// Modules declare their methods explicitly instead of being discovered by
// reflection. Each module returns a method table once; the registry memoizes
// it and assigns method IDs by declaration order:
//
//	func (m *Timing) Methods() []nativemodule.Method {
//		return []nativemodule.Method{
//			{Name: "createTimer", Handler: m.createTimer},
//			{Name: "now", Kind: nativemodule.Sync,
//				Signature: &nativemodule.Signature{Result: wit.F64{}},
//				Handler:   m.now},
//		}
//	}
//
// Asynchronous methods are invoked by (module ID, method ID, args) with an
// optional callback and never return a value across the boundary. Sync
// methods block the runtime, must carry a full WIT signature and return a
// value directly.
package nativemodule
