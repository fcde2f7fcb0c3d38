package natsx

import (
	"os"

	"github.com/nats-io/nats.go"
)

// URL returns the NATS server URL from the NATS_URL environment variable,
// falling back to nats.DefaultURL.
func URL() string {
	if url := os.Getenv("NATS_URL"); url != "" {
		return url
	}
	return nats.DefaultURL
}

// NewClient creates a new connection to a NATS server at url, or at URL() when
// url is empty. Without options the connection is named "errand" and uses
// compression.
func NewClient(url string, opts ...nats.Option) (*nats.Conn, error) {
	if url == "" {
		url = URL()
	}
	if len(opts) == 0 {
		opts = append(opts, nats.Name("errand"), nats.Compression(true))
	}
	return nats.Connect(url, opts...)
}
