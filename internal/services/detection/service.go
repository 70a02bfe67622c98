package detection

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/AmitAK1/missing-object-surveillance/internal/config"
	"github.com/AmitAK1/missing-object-surveillance/internal/models"
)

// TrackMethod is the tracker's unary RPC. Request and response are
// google.protobuf.Struct messages.
const TrackMethod = "/tracker.v1.TrackerService/Track"

// ErrBackoff is returned while the client waits out consecutive failures.
var ErrBackoff = errors.New("tracker in backoff period after consecutive failures")

// Client runs frames through the remote detector + multi-object tracker.
type Client struct {
	cfg *config.Config

	mu       sync.RWMutex
	conn     *grpc.ClientConn
	endpoint string

	// Retry management
	lastFailTime     time.Time
	consecutiveFails int
	maxRetryBackoff  time.Duration
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:             cfg,
		maxRetryBackoff: 30 * time.Second,
	}
}

// Connect establishes the gRPC connection. The tracker does not need to be
// up yet; grpc connects lazily.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	target, creds, err := parseEndpoint(c.cfg.TrackerGRPCURL)
	if err != nil {
		return fmt.Errorf("failed to parse tracker endpoint %s: %w", c.cfg.TrackerGRPCURL, err)
	}

	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(creds))
	if err != nil {
		return fmt.Errorf("failed to connect to tracker at %s: %w", target, err)
	}

	c.conn = conn
	c.endpoint = target
	c.consecutiveFails = 0

	log.Info().
		Str("endpoint", target).
		Bool("use_tls", creds.Info().SecurityProtocol == "tls").
		Msg("Tracker gRPC connection initialized")
	return nil
}

// Track sends one JPEG frame to the tracker and returns its observations.
func (c *Client) Track(ctx context.Context, frame models.Frame) ([]models.Observation, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	req, err := structpb.NewStruct(map[string]interface{}{
		"camera_id": frame.CameraID,
		"frame_id":  float64(frame.FrameID),
		"width":     float64(frame.Width),
		"height":    float64(frame.Height),
		"format":    "jpeg",
		"image":     base64.StdEncoding.EncodeToString(frame.JPEG),
	})
	if err != nil {
		return nil, fmt.Errorf("build track request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.TrackerTimeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := conn.Invoke(ctx, TrackMethod, req, resp); err != nil {
		c.recordFailure()
		return nil, fmt.Errorf("track frame %d: %w", frame.FrameID, err)
	}

	c.mu.Lock()
	c.consecutiveFails = 0
	c.mu.Unlock()

	return ObservationsFromStruct(resp)
}

// HealthCheck queries the standard gRPC health service of the tracker.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.ensureConnected(); err != nil {
		return err
	}
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("tracker health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("tracker not serving: %s", resp.GetStatus())
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return false
	}
	state := c.conn.GetState()
	return state == connectivity.Ready || state == connectivity.Idle || state == connectivity.Connecting
}

func (c *Client) Endpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	log.Info().Msg("Tracker gRPC connection closed")
	return err
}

// ensureConnected reconnects after a transport failure, honoring backoff.
func (c *Client) ensureConnected() error {
	if !c.shouldRetry() {
		return ErrBackoff
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	needsConnection := c.conn == nil
	if c.conn != nil {
		state := c.conn.GetState()
		needsConnection = state == connectivity.TransientFailure || state == connectivity.Shutdown
	}
	if !needsConnection {
		return nil
	}
	if err := c.connectLocked(); err != nil {
		c.consecutiveFails++
		c.lastFailTime = time.Now()
		return err
	}
	return nil
}

func (c *Client) shouldRetry() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return backoffElapsed(c.consecutiveFails, c.lastFailTime, c.maxRetryBackoff, time.Now())
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFails++
	c.lastFailTime = time.Now()

	if c.consecutiveFails <= 5 {
		log.Warn().
			Int("consecutive_fails", c.consecutiveFails).
			Msg("Tracker call failure recorded")
	}
}

// backoffElapsed implements exponential backoff: 1s, 2s, 4s ... capped at max.
func backoffElapsed(fails int, lastFail time.Time, max time.Duration, now time.Time) bool {
	if fails == 0 {
		return true
	}
	shift := fails - 1
	if shift > 16 {
		shift = 16
	}
	wait := time.Duration(1<<uint(shift)) * time.Second
	if wait > max {
		wait = max
	}
	return now.Sub(lastFail) >= wait
}

// parseEndpoint normalizes host:port, bare hosts and http(s) URLs into a
// dial target plus matching transport credentials.
func parseEndpoint(endpoint string) (string, credentials.TransportCredentials, error) {
	if !strings.Contains(endpoint, "://") {
		host, port, found := strings.Cut(endpoint, ":")
		switch {
		case !found:
			endpoint = "https://" + endpoint + ":443"
		case host == "":
			return "", nil, fmt.Errorf("missing host in %q", endpoint)
		default:
			if p, err := strconv.Atoi(port); err == nil && (p == 443 || p == 8443 || p == 9443) {
				endpoint = "https://" + endpoint
			} else {
				endpoint = "http://" + endpoint
			}
		}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("invalid endpoint URL: %w", err)
	}

	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https":
			host = u.Hostname() + ":443"
		case "http":
			host = u.Hostname() + ":80"
		}
	}

	switch u.Scheme {
	case "https":
		return host, credentials.NewTLS(&tls.Config{ServerName: u.Hostname()}), nil
	case "http":
		return host, insecure.NewCredentials(), nil
	default:
		return "", nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
}
