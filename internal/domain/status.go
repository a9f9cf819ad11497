package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusPreparing,
	StatusReady,
	StatusDelivered,
	StatusCancelled,
}

// transitions is the lifecycle graph. Terminal statuses have no outgoing edges.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCancelled},
	StatusReady:     {StatusDelivered, StatusCancelled},
	StatusDelivered: {},
	StatusCancelled: {},
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) IsTerminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// Successors returns the statuses directly reachable from s.
func (s Status) Successors() StatusSet {
	return NewStatusSet(transitions[s]...)
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// StatusSet is an unordered set of statuses.
type StatusSet map[Status]struct{}

func NewStatusSet(statuses ...Status) StatusSet {
	set := make(StatusSet, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}

func (set StatusSet) Has(s Status) bool {
	_, ok := set[s]
	return ok
}

func (set StatusSet) Intersect(other StatusSet) StatusSet {
	out := make(StatusSet)
	for s := range set {
		if other.Has(s) {
			out[s] = struct{}{}
		}
	}
	return out
}

// Slice returns the members in lifecycle order.
func (set StatusSet) Slice() []Status {
	out := make([]Status, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return statusRank(out[i]) < statusRank(out[j]) })
	return out
}

func statusRank(s Status) int {
	for i, candidate := range AllStatuses {
		if candidate == s {
			return i
		}
	}
	return len(AllStatuses)
}

// StatusLog represents a log entry for order status changes
type StatusLog struct {
	ID        int
	OrderID   string
	Status    Status
	ChangedBy string
	ChangedAt time.Time
}
