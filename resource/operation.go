package resource

// Operation names one of the five CRUD entry points.
type Operation string

const (
	OpList     Operation = "list"
	OpRetrieve Operation = "retrieve"
	OpCreate   Operation = "create"
	OpUpdate   Operation = "update"
	OpDestroy  Operation = "destroy"
)

// AllOperations lists every operation in dispatch order.
var AllOperations = []Operation{OpList, OpRetrieve, OpCreate, OpUpdate, OpDestroy}

// OperationSet is the set of operations a resource exposes.
// The zero value allows every operation.
type OperationSet []Operation

// Allows reports whether op is part of the set.
func (s OperationSet) Allows(op Operation) bool {
	if len(s) == 0 {
		return true
	}
	for _, o := range s {
		if o == op {
			return true
		}
	}
	return false
}
