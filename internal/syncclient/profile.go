package syncclient

import "github.com/YelzhanWeb/orderflow/internal/domain"

type JoinKind string

const (
	JoinStaff        JoinKind = "staff"
	JoinTable        JoinKind = "table"
	JoinLocation     JoinKind = "location"
	JoinServicePoint JoinKind = "service-point"
)

// Join is one push subscription a viewer asks for.
type Join struct {
	Kind JoinKind
	ID   string
}

// Profile describes who is watching and from where.
type Profile struct {
	Actor          domain.StaffIdentity
	TableID        string
	LocationID     string
	ServicePointID string
}

// Joins derives the subscriptions for the profile. Broadcast topics are
// joined by the server for staff connections and are not listed.
func (p Profile) Joins() []Join {
	var joins []Join
	if p.Actor.Role.IsStaff() && p.Actor.ID != "" {
		joins = append(joins, Join{Kind: JoinStaff, ID: p.Actor.ID})
	}
	if p.TableID != "" {
		joins = append(joins, Join{Kind: JoinTable, ID: p.TableID})
	}
	if p.LocationID != "" {
		joins = append(joins, Join{Kind: JoinLocation, ID: p.LocationID})
	}
	if p.ServicePointID != "" {
		joins = append(joins, Join{Kind: JoinServicePoint, ID: p.ServicePointID})
	}
	return joins
}
