package viewer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/YelzhanWeb/orderflow/internal/syncclient"
	"github.com/olekukonko/tablewriter"
)

// Actions are the server calls a viewer can make.
type Actions interface {
	UpdateStatus(ctx context.Context, orderID string, status domain.Status) (*domain.Order, error)
	AllowedNext(ctx context.Context, orderID string) ([]domain.Status, error)
}

// Session is the part of syncclient.SyncSession the viewer drives.
type Session interface {
	Board() *syncclient.Board
	State() syncclient.ConnectionState
	Refresh(ctx context.Context) error
	ApplyActionResult(order *domain.Order)
}

var ErrAmbiguousID = errors.New("order id prefix matches more than one order")

// Service renders one staff member's board and turns commands into actions.
type Service struct {
	session Session
	actions Actions
	actor   domain.StaffIdentity
	policy  *domain.Policy
	out     io.Writer
	logger  logger.Logger

	mu        sync.Mutex
	filter    syncclient.Filter
	filterSet bool

	// redraws come from the poll, push and command goroutines
	renderMu sync.Mutex
}

func NewService(session Session, actions Actions, actor domain.StaffIdentity, policy *domain.Policy, out io.Writer, logger logger.Logger) *Service {
	if policy == nil {
		policy = domain.DefaultPolicy()
	}
	return &Service{
		session: session,
		actions: actions,
		actor:   actor,
		policy:  policy,
		out:     out,
		logger:  logger,
	}
}

// Orders returns the board contents under the current filter. Until a filter
// is chosen the actor's own orders are shown when there are any.
func (s *Service) Orders() []*domain.Order {
	orders := s.session.Board().Orders()
	return s.currentFilter(orders).Apply(orders, s.actor)
}

func (s *Service) SetFilter(raw string) error {
	f, err := syncclient.ParseFilter(raw)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.filter, s.filterSet = f, true
	s.mu.Unlock()
	return nil
}

func (s *Service) currentFilter(orders []*domain.Order) syncclient.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filterSet {
		return s.filter
	}
	return syncclient.DefaultFilter(orders, s.actor)
}

// Render writes the board as a table. NEXT is the local hint of what the
// actor may set; the server decides.
func (s *Service) Render(w io.Writer) error {
	all := s.session.Board().Orders()
	filter := s.currentFilter(all)
	orders := filter.Apply(all, s.actor)

	fmt.Fprintf(w, "%s (%s) | %s | filter: %s | %d/%d orders\n",
		s.actor.ID, s.actor.Role, s.session.State(), filter, len(orders), len(all))

	table := tablewriter.NewWriter(w)
	table.Header("ID", "Location", "Status", "Staff", "Total", "Updated", "Next")
	for _, o := range orders {
		if err := table.Append([]string{
			o.ID,
			locationLabel(o.Location),
			string(o.Status),
			staffLabel(o.AssignedStaff),
			o.Total.StringFixed(2),
			o.UpdatedAt.Local().Format(time.TimeOnly),
			nextLabel(s.policy.AllowedNext(o.Status, s.actor.Role).Slice()),
		}); err != nil {
			return fmt.Errorf("failed to render order %s: %w", o.ID, err)
		}
	}
	return table.Render()
}

// Redraw renders to the viewer's own output. Wired to the session's OnChange.
func (s *Service) Redraw() {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()
	if err := s.Render(s.out); err != nil {
		s.logger.Error("render_failed", "Failed to render board", "", nil, err)
	}
}

// Act asks the server for a status change and merges the returned order.
// CONFLICT, INVALID_TRANSITION and TERMINAL_ORDER mean the board is behind,
// so it is refreshed.
func (s *Service) Act(ctx context.Context, idOrPrefix string, status domain.Status) (*domain.Order, error) {
	orderID, err := s.resolve(idOrPrefix)
	if err != nil {
		return nil, err
	}

	order, err := s.actions.UpdateStatus(ctx, orderID, status)
	if err != nil {
		details := map[string]interface{}{"order_id": orderID, "status": status, "code": domain.CodeOf(err)}
		switch domain.CodeOf(err) {
		case domain.CodeConflict, domain.CodeInvalidTransition, domain.CodeTerminalOrder:
			s.logger.Info("action_stale", "Board is behind the server, refreshing", "", details)
			if rerr := s.session.Refresh(ctx); rerr != nil {
				s.logger.Error("refresh_failed", "Failed to refresh after rejected action", "", details, rerr)
			}
		case domain.CodeForbidden, domain.CodeNotFound:
			s.logger.Info("action_rejected", "Status change rejected", "", details)
		default:
			s.logger.Error("action_failed", "Status change failed", "", details, err)
		}
		return nil, err
	}

	s.session.ApplyActionResult(order)
	return order, nil
}

// Allowed asks the server which statuses the actor may set next.
func (s *Service) Allowed(ctx context.Context, idOrPrefix string) ([]domain.Status, error) {
	orderID, err := s.resolve(idOrPrefix)
	if err != nil {
		return nil, err
	}
	return s.actions.AllowedNext(ctx, orderID)
}

// resolve expands a unique id prefix against the board. Unknown ids are
// passed through so the server can answer NOT_FOUND.
func (s *Service) resolve(idOrPrefix string) (string, error) {
	idOrPrefix = strings.TrimSpace(idOrPrefix)
	if idOrPrefix == "" {
		return "", fmt.Errorf("order id is required")
	}

	var match string
	for _, o := range s.session.Board().Orders() {
		if o.ID == idOrPrefix {
			return o.ID, nil
		}
		if strings.HasPrefix(o.ID, idOrPrefix) {
			if match != "" {
				return "", fmt.Errorf("%q: %w", idOrPrefix, ErrAmbiguousID)
			}
			match = o.ID
		}
	}
	if match == "" {
		return idOrPrefix, nil
	}
	return match, nil
}

const help = `commands:
  show                      render the board
  set <id> <status>         change an order's status
  allowed <id>              ask which statuses you may set
  filter all|mine|status X  change the board filter
  refresh                   fetch a fresh snapshot
  quit`

// Run reads commands from in until quit, EOF or ctx is done.
func (s *Service) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	s.Redraw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := s.execute(ctx, line); quit {
				return nil
			}
		}
	}
}

func (s *Service) execute(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		return true
	case "show", "ls":
		s.Redraw()
	case "set":
		if len(fields) != 3 {
			fmt.Fprintln(s.out, "usage: set <id> <status>")
			return false
		}
		status, err := domain.ParseStatus(fields[2])
		if err != nil {
			fmt.Fprintln(s.out, err)
			return false
		}
		order, err := s.Act(ctx, fields[1], status)
		if err != nil {
			fmt.Fprintln(s.out, describe(err))
			return false
		}
		fmt.Fprintf(s.out, "order %s is now %s\n", order.ID, order.Status)
	case "allowed":
		if len(fields) != 2 {
			fmt.Fprintln(s.out, "usage: allowed <id>")
			return false
		}
		allowed, err := s.Allowed(ctx, fields[1])
		if err != nil {
			fmt.Fprintln(s.out, describe(err))
			return false
		}
		fmt.Fprintf(s.out, "allowed: %s\n", nextLabel(allowed))
	case "filter":
		if len(fields) < 2 {
			fmt.Fprintln(s.out, "usage: filter all|mine|status <STATUS>")
			return false
		}
		if err := s.SetFilter(strings.Join(fields[1:], " ")); err != nil {
			fmt.Fprintln(s.out, err)
			return false
		}
		s.Redraw()
	case "refresh":
		if err := s.session.Refresh(ctx); err != nil {
			fmt.Fprintln(s.out, describe(err))
			return false
		}
		s.Redraw()
	default:
		fmt.Fprintln(s.out, help)
	}
	return false
}

func describe(err error) string {
	switch domain.CodeOf(err) {
	case domain.CodeForbidden:
		return "not allowed: " + message(err)
	case domain.CodeConflict:
		return "someone else changed this order first, board refreshed"
	case domain.CodeInvalidTransition, domain.CodeTerminalOrder:
		return message(err) + ", board refreshed"
	case domain.CodeTransport:
		return "server unreachable, try again"
	}
	return message(err)
}

func message(err error) string {
	var te *domain.TransitionError
	if errors.As(err, &te) {
		return te.Message
	}
	return err.Error()
}

func locationLabel(l domain.LocationRef) string {
	if l.Kind() == "" {
		return "-"
	}
	return string(l.Kind()) + ":" + l.Ref()
}

func staffLabel(staff *string) string {
	if staff == nil || *staff == "" {
		return "-"
	}
	return *staff
}

func nextLabel(statuses []domain.Status) string {
	if len(statuses) == 0 {
		return "-"
	}
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return strings.Join(out, ",")
}
