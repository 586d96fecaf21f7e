package docstore

// Field operators usable as values in Fields. They are resolved inside the
// store's write transaction.

type deleteOp struct{}

type serverTimestampOp struct{}

type arrayUnionOp struct{ elems []any }

type arrayRemoveOp struct{ elems []any }

// Delete removes the addressed field from the document.
func Delete() any { return deleteOp{} }

// ServerTimestamp writes the store's current time in Unix milliseconds.
func ServerTimestamp() any { return serverTimestampOp{} }

// ArrayUnion appends each element not already present in the addressed
// array field. Presence is decided by deep equality after JSON
// normalization, so structs and maps compare by content.
func ArrayUnion(elems ...any) any { return arrayUnionOp{elems: elems} }

// ArrayRemove removes every occurrence of each element from the addressed
// array field.
func ArrayRemove(elems ...any) any { return arrayRemoveOp{elems: elems} }

// IsOperator reports whether v is a field operator. Exposed for store
// implementations.
func IsOperator(v any) bool {
	switch v.(type) {
	case deleteOp, serverTimestampOp, arrayUnionOp, arrayRemoveOp:
		return true
	}
	return false
}

// OpVisitor dispatches on the operator kind. Store implementations resolve
// operators through it.
type OpVisitor struct {
	Delete          func()
	ServerTimestamp func()
	ArrayUnion      func(elems []any)
	ArrayRemove     func(elems []any)
}

// Visit calls the visitor hook matching v and reports whether v was an
// operator.
func (ov OpVisitor) Visit(v any) bool {
	switch op := v.(type) {
	case deleteOp:
		ov.Delete()
	case serverTimestampOp:
		ov.ServerTimestamp()
	case arrayUnionOp:
		ov.ArrayUnion(op.elems)
	case arrayRemoveOp:
		ov.ArrayRemove(op.elems)
	default:
		return false
	}
	return true
}
