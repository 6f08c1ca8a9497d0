// Package guard makes authorization decisions. It is the only producer of
// Capability values, and every mutating entry point of the workflow and
// payments packages requires one, so a code path cannot reach a mutation
// without having authorized first.
package guard

import (
	"fmt"

	"github.com/google/uuid"
)

// Actor roles.
const (
	RoleBusiness   = "business"
	RoleContractor = "contractor"
	RoleAdmin      = "admin"
)

// Operations an actor can attempt against a resource.
type Operation string

const (
	OpRead    Operation = "read"
	OpCreate  Operation = "create"
	OpUpdate  Operation = "update"
	OpAssign  Operation = "assign"
	OpAccept  Operation = "accept"
	OpDecline Operation = "decline"
	OpSubmit  Operation = "submit"
	OpApprove Operation = "approve"
	OpReject  Operation = "reject"
	OpCancel  Operation = "cancel"
	OpPay     Operation = "pay"
)

// Actor is the resolved caller identity: account ID plus role.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// Resource carries the ownership attributes of the target being acted on.
type Resource struct {
	BusinessID   uuid.UUID
	ContractorID *uuid.UUID
}

// Capability proves that Authorize allowed an (actor, operation, resource)
// triple. The unexported field keeps other packages from constructing one.
type Capability struct {
	actor    Actor
	op       Operation
	resource Resource
}

// Actor returns the actor the capability was granted to.
func (c Capability) Actor() Actor { return c.actor }

// Operation returns the authorized operation.
func (c Capability) Operation() Operation { return c.op }

// Resource returns the resource the capability covers.
func (c Capability) Resource() Resource { return c.resource }

// DeniedError reports why an operation was not permitted.
type DeniedError struct {
	ActorID uuid.UUID
	Role    string
	Op      Operation
	Reason  string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("operation %s denied for %s %s: %s", e.Op, e.Role, e.ActorID, e.Reason)
}

// businessOps are operations only the owning business (or an admin) may perform.
var businessOps = map[Operation]bool{
	OpCreate:  true,
	OpUpdate:  true,
	OpAssign:  true,
	OpApprove: true,
	OpReject:  true,
	OpCancel:  true,
	OpPay:     true,
}

// contractorOps are operations only the assigned contractor may perform.
var contractorOps = map[Operation]bool{
	OpAccept:  true,
	OpDecline: true,
	OpSubmit:  true,
}

// Authorize decides whether actor may perform op on the resource. It is a
// pure decision: no side effects, callers log denials.
func Authorize(actor Actor, op Operation, res Resource) (Capability, error) {
	deny := func(reason string) (Capability, error) {
		return Capability{}, &DeniedError{ActorID: actor.ID, Role: actor.Role, Op: op, Reason: reason}
	}

	switch actor.Role {
	case RoleAdmin:
		return Capability{actor: actor, op: op, resource: res}, nil

	case RoleBusiness:
		if contractorOps[op] {
			return deny("contractor-only operation")
		}
		if res.BusinessID != actor.ID {
			return deny("resource belongs to another business")
		}
		return Capability{actor: actor, op: op, resource: res}, nil

	case RoleContractor:
		if businessOps[op] {
			return deny("business-only operation")
		}
		if op == OpRead {
			if res.ContractorID == nil || *res.ContractorID != actor.ID {
				return deny("work item is not assigned or offered to caller")
			}
			return Capability{actor: actor, op: op, resource: res}, nil
		}
		if !contractorOps[op] {
			return deny("operation not available to contractors")
		}
		if res.ContractorID == nil || *res.ContractorID != actor.ID {
			return deny("work item is not assigned to caller")
		}
		return Capability{actor: actor, op: op, resource: res}, nil

	default:
		return deny("unknown role")
	}
}
