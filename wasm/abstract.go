package wasm

import (
	"fmt"
	"sync/atomic"
)

// TypeRef identifies an abstract type while a module is considered in
// isolation, before any instance exists. The closed set of implementations is
// ModuleTypeRef and LocalTypeRef.
type TypeRef interface {
	fmt.Stringer
	typeRef()
}

// ModuleTypeRef names an abstract type imported under a two-part name.
type ModuleTypeRef struct {
	Module string
	Name   string
}

func (ModuleTypeRef) typeRef() {}

// String implements fmt.Stringer
func (r ModuleTypeRef) String() string {
	return fmt.Sprintf("%s.%s", r.Module, r.Name)
}

// LocalTypeRef refers to the Nth abstract type exported by the module under
// consideration, numbered in export order.
type LocalTypeRef struct {
	Index Index
}

func (LocalTypeRef) typeRef() {}

// String implements fmt.Stringer
func (r LocalTypeRef) String() string {
	return fmt.Sprintf("export[%d]", r.Index)
}

// MatchTypeRef reports whether two unresolved references denote the same
// abstract type. Both implementations compare structurally.
func MatchTypeRef(a, b TypeRef) bool {
	return a == b
}

// InstanceID identifies one instantiation of a module. IDs are never reused:
// instantiating the same module twice yields two IDs, and therefore two
// families of mutually non-matching abstract types.
type InstanceID uint64

// HostID is the sentinel owner of entities supplied by the host rather than
// by any module instance. Host-defined abstract types are not supported:
// resolving one panics.
const HostID InstanceID = 0

var instanceIDs uint64

// NewInstanceID mints a fresh module-instance identity. This counter is the
// only process-wide state the validator relies on.
func NewInstanceID() InstanceID {
	return InstanceID(atomic.AddUint64(&instanceIDs, 1))
}

// InstanceTypeRef is an abstract type bound to a concrete module instance:
// the Index-th abstract type exported by the instance identified by Owner.
type InstanceTypeRef struct {
	Owner InstanceID
	Index Index
}

// String implements fmt.Stringer
func (r InstanceTypeRef) String() string {
	return fmt.Sprintf("instance[%d].abstract[%d]", uint64(r.Owner), r.Index)
}

// MatchInstanceTypeRef reports whether two resolved references denote the same
// abstract type: identity of the owning instance conjoined with the local
// index. Structure of the underlying representation plays no part.
func MatchInstanceTypeRef(a, b InstanceTypeRef) bool {
	return a == b
}
