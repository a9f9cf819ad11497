package apiclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	httpAdapter "github.com/YelzhanWeb/orderflow/internal/adapter/http"
	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/YelzhanWeb/orderflow/internal/syncclient"
	"github.com/gorilla/websocket"
)

// PushClient keeps a websocket open to the order service push channel.
type PushClient struct {
	url    string
	actor  domain.StaffIdentity
	dialer *websocket.Dialer
	logger logger.Logger
}

var _ syncclient.PushClient = (*PushClient)(nil)

// NewPushClient derives the websocket URL from the service base URL.
func NewPushClient(baseURL string, actor domain.StaffIdentity, logger logger.Logger) *PushClient {
	wsURL := strings.TrimRight(baseURL, "/") + "/ws"
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	return &PushClient{
		url:    wsURL,
		actor:  actor,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
	}
}

func (p *PushClient) Listen(ctx context.Context, joins []syncclient.Join, connected func(), deliver func(syncclient.Input)) error {
	target := p.url
	if p.actor.ID != "" {
		q := url.Values{}
		q.Set(httpAdapter.HeaderStaffID, p.actor.ID)
		q.Set(httpAdapter.HeaderStaffRole, string(p.actor.Role))
		if len(p.actor.Zones) > 0 {
			q.Set(httpAdapter.HeaderStaffZones, strings.Join(p.actor.Zones, ","))
		}
		target += "?" + q.Encode()
	}

	conn, _, err := p.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("failed to dial push channel: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for _, join := range joins {
		if err := conn.WriteJSON(joinMessage(join)); err != nil {
			return fmt.Errorf("failed to send %s join: %w", join.Kind, err)
		}
	}
	connected()

	for {
		var frame httpAdapter.PushFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("push channel closed: %w", err)
		}

		if in, ok := inputFor(frame); ok {
			deliver(in)
			continue
		}
		if frame.Type == httpAdapter.FrameError {
			p.logger.Debug("push_refused", frame.Message, "", nil)
		}
	}
}

func joinMessage(j syncclient.Join) httpAdapter.ClientMessage {
	switch j.Kind {
	case syncclient.JoinStaff:
		return httpAdapter.ClientMessage{Type: httpAdapter.MessageJoinStaff, StaffID: j.ID}
	case syncclient.JoinTable:
		return httpAdapter.ClientMessage{Type: httpAdapter.MessageJoinTable, TableID: j.ID}
	case syncclient.JoinLocation:
		return httpAdapter.ClientMessage{Type: httpAdapter.MessageJoinLocation, LocationID: j.ID}
	}
	return httpAdapter.ClientMessage{Type: httpAdapter.MessageJoinServicePoint, ServicePointID: j.ID}
}

func inputFor(frame httpAdapter.PushFrame) (syncclient.Input, bool) {
	var ts time.Time
	if frame.Timestamp != nil {
		ts = *frame.Timestamp
	}
	switch frame.Type {
	case httpAdapter.FrameNewOrder:
		if frame.Order == nil {
			return nil, false
		}
		return syncclient.Created{Order: frame.Order}, true
	case httpAdapter.FrameStatusUpdate:
		return syncclient.StatusChanged{OrderID: frame.OrderID, Status: frame.Status, Timestamp: ts}, true
	case httpAdapter.FrameOrderDeleted:
		return syncclient.Deleted{OrderID: frame.OrderID, Timestamp: ts}, true
	}
	return nil, false
}
