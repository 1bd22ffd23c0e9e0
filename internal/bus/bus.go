// Package bus provides the internal NATS job bus.
//
// The service runs a self-contained deployment by default: an embedded NATS
// server carries job dispatch between the synthesis service and the worker
// pool, so no external broker is required. An external URL can be configured
// instead.
package bus

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/speech-service/internal/config"
)

const readyTimeout = 5 * time.Second

// Bus owns the NATS connection and, when embedded, the in-process server.
type Bus struct {
	server *server.Server
	conn   *nats.Conn
}

// Start brings up the job bus according to the NATS config: embedded when
// requested (or when no URL is configured), otherwise a client connection to
// the configured server.
func Start(cfg config.NATSConfig) (*Bus, error) {
	url := cfg.URL

	var embedded *server.Server

	if cfg.Embedded || url == "" {
		natsServer, err := startEmbeddedServer()
		if err != nil {
			return nil, err
		}

		embedded = natsServer
		url = natsServer.ClientURL()
	}

	conn, err := nats.Connect(url, nats.Name("speech-service"))
	if err != nil {
		if embedded != nil {
			embedded.Shutdown()
		}

		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	return &Bus{server: embedded, conn: conn}, nil
}

// Conn returns the NATS connection for publishing and subscribing.
func (b *Bus) Conn() *nats.Conn {
	return b.conn
}

// Close drains the connection and shuts the embedded server down.
func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}

	if b.server != nil {
		b.server.Shutdown()
	}
}

func startEmbeddedServer() (*server.Server, error) {
	opts := &server.Options{
		Host:    "127.0.0.1",
		Port:    server.RANDOM_PORT,
		NoLog:   true,
		NoSigs:  true,
		MaxConn: 0,
	}

	natsServer, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}

	go natsServer.Start()

	if !natsServer.ReadyForConnections(readyTimeout) {
		natsServer.Shutdown()

		return nil, fmt.Errorf("embedded NATS server not ready within %s", readyTimeout)
	}

	return natsServer, nil
}
