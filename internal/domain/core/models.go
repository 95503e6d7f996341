package core

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type Profile struct {
	EmployeeID           string    `json:"employeeId"`
	FullName             string    `json:"fullName"`
	HireDate             time.Time `json:"hireDate"`
	Status               string    `json:"status"`
	ContractType         string    `json:"contractType"`
	PrimaryPositionID    string    `json:"primaryPositionId"`
	SupervisorPositionID string    `json:"supervisorPositionId"`
	WorkEmail            string    `json:"workEmail"`
}

type Position struct {
	ID                   string `json:"id"`
	Title                string `json:"title"`
	SupervisorPositionID string `json:"supervisorPositionId"`
}

// ReportingLine is the position this one reports to.
func (p Position) ReportingLine() string {
	return p.SupervisorPositionID
}

type ActorKind string

const (
	ActorEmployee  ActorKind = "employee"
	ActorCandidate ActorKind = "candidate"
)

// Actor is a requester resolved once at the boundary.
type Actor struct {
	Kind ActorKind `json:"kind"`
	ID   string    `json:"id"`
}

func EmployeeActor(id string) Actor {
	return Actor{Kind: ActorEmployee, ID: id}
}

func CandidateActor(id string) Actor {
	return Actor{Kind: ActorCandidate, ID: id}
}

func (a Actor) IsEmployee() bool {
	return a.Kind == ActorEmployee && a.ID != ""
}

// ResolveActor picks the actor kind from the identifiers carried by a token.
// An employee id always wins over a candidate id.
func ResolveActor(employeeID, candidateID string) (Actor, error) {
	switch {
	case employeeID != "":
		return EmployeeActor(employeeID), nil
	case candidateID != "":
		return CandidateActor(candidateID), nil
	default:
		return Actor{}, errors.New("token carries no employee or candidate identity")
	}
}
