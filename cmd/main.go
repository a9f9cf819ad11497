package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/adapter/apiclient"
	"github.com/YelzhanWeb/orderflow/internal/adapter/kafka"
	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/adapter/memory"
	"github.com/YelzhanWeb/orderflow/internal/adapter/postgres"
	"github.com/YelzhanWeb/orderflow/internal/adapter/rabbitmq"
	"github.com/YelzhanWeb/orderflow/internal/adapter/redis"
	"github.com/YelzhanWeb/orderflow/internal/app/dispatch"
	"github.com/YelzhanWeb/orderflow/internal/app/order"
	"github.com/YelzhanWeb/orderflow/internal/app/tracking"
	"github.com/YelzhanWeb/orderflow/internal/app/transition"
	"github.com/YelzhanWeb/orderflow/internal/app/viewer"
	"github.com/YelzhanWeb/orderflow/internal/config"
	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/YelzhanWeb/orderflow/internal/hub"
	"github.com/YelzhanWeb/orderflow/internal/interfaces"
	"github.com/YelzhanWeb/orderflow/internal/syncclient"

	amqpAdapter "github.com/YelzhanWeb/orderflow/internal/adapter/amqp"
	httpAdapter "github.com/YelzhanWeb/orderflow/internal/adapter/http"
)

type viewerFlags struct {
	server         string
	staffID        string
	role           string
	zones          string
	tableID        string
	locationID     string
	servicePointID string
	filter         string
}

func main() {
	// Parse command-line flags
	mode := flag.String("mode", "", "Service mode: order-service, viewer, notification-subscriber")
	configPath := flag.String("config", "config.yaml", "Path to config file; empty uses built-in defaults")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	instance := flag.String("instance", "", "Instance name used to tag relayed events (defaults to hostname)")
	prefetch := flag.Int("prefetch", 10, "RabbitMQ prefetch count")
	kinds := flag.String("kinds", "", "Comma-separated event kinds to print (for notification-subscriber)")

	var vf viewerFlags
	flag.StringVar(&vf.server, "server", "http://localhost:3000", "Order service base URL (for viewer)")
	flag.StringVar(&vf.staffID, "staff-id", "", "Staff id (for viewer)")
	flag.StringVar(&vf.role, "role", "", "Staff role: WAITER, CASHIER, BARTENDER, ADMIN (for viewer)")
	flag.StringVar(&vf.zones, "zones", "", "Comma-separated zones (for viewer)")
	flag.StringVar(&vf.tableID, "table", "", "Table to follow (for viewer)")
	flag.StringVar(&vf.locationID, "location", "", "Location to follow (for viewer)")
	flag.StringVar(&vf.servicePointID, "service-point", "", "Service point to follow (for viewer)")
	flag.StringVar(&vf.filter, "filter", "", "Initial board filter: all, mine, status <STATUS> (for viewer)")
	flag.Parse()

	if *mode == "" {
		log.Fatal("--mode flag is required")
	}

	// Load configuration
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}
	if *instance == "" {
		*instance, _ = os.Hostname()
	}

	// Initialize logger
	lgr := logger.New(*mode, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Route to appropriate service
	switch *mode {
	case "order-service":
		runOrderService(ctx, cfg, lgr, *instance, *prefetch)

	case "viewer":
		runViewer(ctx, cfg, lgr, vf)

	case "notification-subscriber":
		runNotificationSubscriber(ctx, cfg, lgr, *instance, *prefetch, *kinds)

	default:
		log.Fatalf("Invalid mode: %s", *mode)
	}
}

func runOrderService(ctx context.Context, cfg *config.Config, lgr logger.Logger, instance string, prefetch int) {
	// Initialize repositories
	orderRepo, closeStore := openStore(ctx, cfg, lgr)
	defer closeStore()

	var cache interfaces.SnapshotCache
	if cfg.Redis.Enabled {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer client.Close()
		cache = redis.NewSnapshotCache(client, cfg.Redis.TTL)

		lgr.Info("redis_connected", "Connected to Redis", "startup", map[string]interface{}{
			"addr": cfg.Redis.Addr,
		})
	}

	// Initialize messaging
	relay := openRelay(cfg, lgr, instance, prefetch)
	if relay != nil {
		defer relay.Close()
	}

	pushHub := hub.New(cfg.Events.QueueSize, lgr)
	dispatcher := dispatch.New(pushHub, relay, instance, cfg.Events.PublishTimeout, lgr)
	defer dispatcher.Wait()

	// Initialize services
	orderService := order.NewService(orderRepo, dispatcher, cache, lgr)
	transitions := transition.NewCoordinator(orderRepo, dispatcher, cfg.TransitionPolicy(), cfg.ZoneMap(), lgr)
	trackingService := tracking.NewService(orderRepo, lgr)

	if cache != nil {
		dispatcher.Use(orderService.InvalidateSnapshots)
	}

	if relay != nil {
		go func() {
			if err := relay.ConsumeEvents(ctx, dispatcher.HandleRemote); err != nil && !errors.Is(err, context.Canceled) {
				lgr.Error("consumer_error", "Error consuming relayed events", "runtime", nil, err)
			}
		}()
	}

	// Initialize HTTP handlers
	router := httpAdapter.NewRouter(lgr, cfg.HTTP.AllowedOrigins,
		httpAdapter.NewOrderHandler(orderService, transitions, lgr),
		httpAdapter.NewTrackingHandler(trackingService, pushHub, lgr),
		httpAdapter.NewPushHandler(pushHub, httpAdapter.OriginChecker(cfg.HTTP.AllowedOrigins), lgr),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	lgr.Info("service_started", fmt.Sprintf("Order Service started on port %d", cfg.HTTP.Port), "startup", map[string]interface{}{
		"port":     cfg.HTTP.Port,
		"store":    cfg.Store.Kind,
		"bus":      cfg.Events.Bus,
		"cache":    cfg.Redis.Enabled,
		"instance": instance,
	})

	// Graceful shutdown
	go func() {
		<-ctx.Done()

		lgr.Info("shutdown_initiated", "Shutting down Order Service", "shutdown", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			lgr.Error("shutdown_error", "Error during shutdown", "shutdown", nil, err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lgr.Error("server_error", "Server error", "runtime", nil, err)
	}
}

func runViewer(ctx context.Context, cfg *config.Config, lgr logger.Logger, vf viewerFlags) {
	actor := domain.StaffIdentity{ID: strings.TrimSpace(vf.staffID), Role: domain.ParseRole(vf.role)}
	for _, zone := range strings.Split(vf.zones, ",") {
		if zone = strings.TrimSpace(zone); zone != "" {
			actor.Zones = append(actor.Zones, zone)
		}
	}
	if actor.ID == "" {
		actor.Role = domain.RoleDenied
	}

	profile := syncclient.Profile{
		Actor:          actor,
		TableID:        vf.tableID,
		LocationID:     vf.locationID,
		ServicePointID: vf.servicePointID,
	}

	client := apiclient.New(vf.server, actor, cfg.Sync.RequestTimeout)
	pusher := apiclient.NewPushClient(vf.server, actor, lgr)

	var board *viewer.Service
	session := syncclient.NewSession(syncclient.NewBoard(), client, pusher, profile, cfg.Sync, syncclient.Options{
		OnChange: func() { board.Redraw() },
		OnError: func(err error) {
			fmt.Fprintf(os.Stdout, "! %v\n", err)
		},
		OnState: func(state syncclient.ConnectionState) {
			lgr.Info("push_state", fmt.Sprintf("Push channel %s", state), "", nil)
		},
	}, lgr)
	board = viewer.NewService(session, client, actor, cfg.TransitionPolicy(), os.Stdout, lgr)

	if vf.filter != "" {
		if err := board.SetFilter(vf.filter); err != nil {
			log.Fatalf("Invalid filter: %v", err)
		}
	}

	if err := session.Start(ctx); err != nil {
		log.Fatalf("Failed to start sync session: %v", err)
	}
	defer session.Stop()

	lgr.Info("service_started", fmt.Sprintf("Viewer for %s started", actor.ID), "startup", map[string]interface{}{
		"server": vf.server,
		"role":   actor.Role,
	})

	if err := board.Run(ctx, os.Stdin); err != nil {
		lgr.Error("viewer_error", "Viewer stopped", "runtime", nil, err)
	}
}

func runNotificationSubscriber(ctx context.Context, cfg *config.Config, lgr logger.Logger, instance string, prefetch int, kinds string) {
	relay := openRelay(cfg, lgr, instance, prefetch)
	if relay == nil {
		log.Fatal("notification-subscriber needs events.bus set to rabbitmq or kafka")
	}
	defer relay.Close()

	var filter []domain.EventKind
	for _, k := range strings.Split(kinds, ",") {
		if k = strings.TrimSpace(k); k != "" {
			filter = append(filter, domain.EventKind(k))
		}
	}

	// Initialize handler
	notificationHandler := amqpAdapter.NewNotificationHandler(lgr, os.Stdout, filter...)

	lgr.Info("service_started", "Notification Subscriber started", "startup", map[string]interface{}{
		"bus": cfg.Events.Bus,
	})

	if err := relay.ConsumeEvents(ctx, notificationHandler.HandleNotification); err != nil && !errors.Is(err, context.Canceled) {
		lgr.Error("consumer_error", "Error consuming notifications", "runtime", nil, err)
	}

	lgr.Info("shutdown_initiated", "Shutting down Notification Subscriber", "shutdown", nil)
}

func openStore(ctx context.Context, cfg *config.Config, lgr logger.Logger) (interfaces.OrderRepository, func()) {
	if cfg.Store.Kind == "memory" {
		lgr.Info("store_ready", "Using in-memory order store", "startup", nil)
		return memory.NewOrderRepository(), func() {}
	}

	// Connect to PostgreSQL
	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}

	lgr.Info("db_connected", "Connected to PostgreSQL database", "startup", map[string]interface{}{
		"host": cfg.Database.Host,
		"db":   cfg.Database.Database,
	})
	return postgres.NewOrderRepository(db), db.Close
}

// openRelay returns nil when events.bus is "none".
func openRelay(cfg *config.Config, lgr logger.Logger, instance string, prefetch int) interfaces.EventRelay {
	switch cfg.Events.Bus {
	case "rabbitmq":
		// Connect to RabbitMQ
		mqConn, err := rabbitmq.Connect(cfg.RabbitMQ)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}

		lgr.Info("rabbitmq_connected", "Connected to RabbitMQ", "startup", map[string]interface{}{
			"host": cfg.RabbitMQ.Host,
		})
		return rabbitmq.NewRelay(mqConn, prefetch, lgr)

	case "kafka":
		lgr.Info("kafka_configured", "Using Kafka event relay", "startup", map[string]interface{}{
			"brokers": cfg.Kafka.Brokers,
			"topic":   cfg.Kafka.Topic,
		})
		return kafka.NewRelay(cfg.Kafka, instance, lgr)
	}
	return nil
}
