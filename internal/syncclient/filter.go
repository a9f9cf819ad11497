package syncclient

import (
	"fmt"
	"strings"

	"github.com/YelzhanWeb/orderflow/internal/domain"
)

type FilterMode string

const (
	FilterAll    FilterMode = "all"
	FilterMine   FilterMode = "mine"
	FilterStatus FilterMode = "status"
)

// Filter narrows what a viewer shows. Status is used only in FilterStatus mode.
type Filter struct {
	Mode   FilterMode
	Status domain.Status
}

func ParseFilter(s string) (Filter, error) {
	mode, arg, _ := strings.Cut(strings.TrimSpace(s), " ")
	switch FilterMode(strings.ToLower(mode)) {
	case FilterAll, "":
		return Filter{Mode: FilterAll}, nil
	case FilterMine:
		return Filter{Mode: FilterMine}, nil
	case FilterStatus:
		status, err := domain.ParseStatus(arg)
		if err != nil {
			return Filter{}, err
		}
		return Filter{Mode: FilterStatus, Status: status}, nil
	}
	return Filter{}, fmt.Errorf("unknown filter %q", mode)
}

func (f Filter) Apply(orders []*domain.Order, actor domain.StaffIdentity) []*domain.Order {
	out := make([]*domain.Order, 0, len(orders))
	for _, o := range orders {
		switch f.Mode {
		case FilterMine:
			if !o.IsAssignedTo(actor.ID) {
				continue
			}
		case FilterStatus:
			if o.Status != f.Status {
				continue
			}
		}
		out = append(out, o)
	}
	return out
}

func (f Filter) String() string {
	if f.Mode == FilterStatus {
		return string(f.Mode) + " " + string(f.Status)
	}
	return string(f.Mode)
}

// DefaultFilter shows the actor's own orders when there are any.
func DefaultFilter(orders []*domain.Order, actor domain.StaffIdentity) Filter {
	for _, o := range orders {
		if o.IsAssignedTo(actor.ID) {
			return Filter{Mode: FilterMine}
		}
	}
	return Filter{Mode: FilterAll}
}
