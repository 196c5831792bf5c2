package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for the connect.
	defaultConnectTimeout = 10 * time.Second

	// defaultOpTimeout is the maximum time to wait for publish/subscribe
	// acknowledgment.
	defaultOpTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations
	// on disconnect, in milliseconds.
	defaultDisconnectQuiesce = 1000

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for broker connections.
	tlsMinVersion = tls.VersionTLS12
)

// defaultDial builds the production transport client for a session.
//
// This configures:
//   - Broker URL (always ssl://, the broker rejects plaintext)
//   - Client ID for identification
//   - Mutual TLS from the configured root CA, certificate and key
//   - Auto-reconnect with exponential backoff
//   - Subscription restoration on reconnect
func defaultDial(s *Session) (pahomqtt.Client, error) {
	tlsConfig, err := newTLSConfig(s.cfg.RootCA, s.cfg.Cert, s.cfg.Key)
	if err != nil {
		return nil, err
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("ssl://%s:%d", s.cfg.Endpoint, s.cfg.Port))
	opts.SetClientID(s.cfg.ClientID)
	opts.SetTLSConfig(tlsConfig)

	// Start fresh on connect; subscriptions are tracked session-side and
	// restored by the OnConnect handler.
	opts.SetCleanSession(true)

	// The session itself connects once; dropped links are the transport's
	// problem from here on.
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(s.cfg.ConnectRetryInterval())
	opts.SetMaxReconnectInterval(s.cfg.MaxReconnectInterval())

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		s.restoreSubscriptions()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		if logger := s.getLogger(); logger != nil {
			logger.Warn("transport connection lost", "error", err)
		}
	})

	return pahomqtt.NewClient(opts), nil
}

// newTLSConfig loads the mutual-TLS credentials for the broker connection.
func newTLSConfig(rootCAPath, certPath, keyPath string) (*tls.Config, error) {
	caPEM, err := os.ReadFile(rootCAPath)
	if err != nil {
		return nil, fmt.Errorf("reading root CA: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("parsing root CA %s: no certificates found", rootCAPath)
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading client certificate: %w", err)
	}

	return &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tlsMinVersion,
	}, nil
}
