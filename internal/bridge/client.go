package bridge

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"sbx/internal/protocol"
)

// Client is the bridge for Go programs running as process suites. Each call
// writes one serialized envelope line to the writer (stdout by default),
// which the process sandbox relays to the owning suite.
type Client struct {
	*Relay

	mu sync.Mutex
	w  io.Writer
}

// NewClient creates a Client writing to w. config defaults to the SBX_*
// variables the sandbox injected into the environment.
func NewClient(w io.Writer, config any) *Client {
	if w == nil {
		w = os.Stdout
	}
	if config == nil {
		config = EnvConfig()
	}
	c := &Client{w: w}
	c.Relay = NewRelay(c.write, config)
	return c
}

func (c *Client) write(action string, args []any) error {
	data, err := protocol.Marshal(action, args...)
	if err != nil {
		return fmt.Errorf("encode %s: %w", action, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", action, err)
	}
	return nil
}

// Run installs start and signals loaded
func (c *Client) Run(start StartFunc) error {
	c.SetStart(start)
	return c.Loaded()
}

// EnvConfig collects SBX_* environment variables, keyed by their lowercased
// suffix (SBX_SUITE becomes "suite").
func EnvConfig() map[string]any {
	config := map[string]any{}
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "SBX_") {
			continue
		}
		config[strings.ToLower(strings.TrimPrefix(key, "SBX_"))] = value
	}
	return config
}
