// Package testutil provides an in-process NATS server for event tests.
package testutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// EventServer is an embedded NATS server with JetStream and one client
type EventServer struct {
	Server *server.Server
	Conn   *nats.Conn
	JS     nats.JetStreamContext
}

// URL returns the client address of the embedded server
func (e *EventServer) URL() string {
	return e.Server.ClientURL()
}

// StartEventServer starts a JetStream-enabled server on a random loopback
// port. The server and client are shut down when the test ends.
func StartEventServer(t *testing.T) *EventServer {
	t.Helper()

	s, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      server.RANDOM_PORT,
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	require.NoError(t, err)

	go s.Start()
	if !s.ReadyForConnections(10 * time.Second) {
		t.Fatal("embedded NATS server did not become ready")
	}

	nc, err := nats.Connect(s.ClientURL(), nats.Timeout(5*time.Second))
	require.NoError(t, err)

	js, err := nc.JetStream(nats.MaxWait(5 * time.Second))
	require.NoError(t, err)

	t.Cleanup(func() {
		nc.Close()
		s.Shutdown()
		s.WaitForShutdown()
	})

	return &EventServer{Server: s, Conn: nc, JS: js}
}
