// Command mcpcli is a small terminal client for MCP v2 servers: connect,
// issue a method call, and print the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/statcode-ai/mcpclient/internal/client"
	"github.com/statcode-ai/mcpclient/internal/config"
	"github.com/statcode-ai/mcpclient/internal/eventbus"
	"github.com/statcode-ai/mcpclient/internal/protocol"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	endpoint   string
	transport  string
	auth       string
	timeout    time.Duration
	logLevel   string
	logPath    string

	ping       bool
	stream     bool
	notify     bool
	showEvents bool

	method string
	params json.RawMessage
}

func parseArgs(args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("mcpcli", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "path to a JSON config file")
	fs.StringVar(&opts.endpoint, "endpoint", "", "server endpoint (ws://, wss://, http://, https://)")
	fs.StringVar(&opts.transport, "transport", "", "transport type: websocket or http")
	fs.StringVar(&opts.auth, "auth", "", "bearer token sent with every request")
	fs.DurationVar(&opts.timeout, "timeout", 0, "per-request timeout (e.g. 5s)")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error, none")
	fs.StringVar(&opts.logPath, "log-path", "", "log file path")
	fs.BoolVar(&opts.ping, "ping", false, "measure server round trip and exit")
	fs.BoolVar(&opts.stream, "stream", false, "request a streamed result, one chunk per line")
	fs.BoolVar(&opts.notify, "notify", false, "fire and forget, do not wait for a response")
	fs.BoolVar(&opts.showEvents, "events", false, "print protocol events to stderr")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: mcpcli [flags] <method> [params-json]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if !opts.ping {
		if fs.NArg() < 1 {
			fs.Usage()
			return nil, errors.New("a method name is required")
		}
		opts.method = fs.Arg(0)
		if fs.NArg() > 1 {
			raw := json.RawMessage(fs.Arg(1))
			if !json.Valid(raw) {
				return nil, fmt.Errorf("params are not valid JSON: %s", fs.Arg(1))
			}
			opts.params = raw
		}
	}
	return opts, nil
}

func buildConfig(opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.endpoint != "" {
		cfg.Transport.Endpoint = opts.endpoint
	}
	if opts.transport != "" {
		cfg.Transport.Type = opts.transport
	}
	if opts.auth != "" {
		cfg.Transport.Authentication = opts.auth
	}
	if opts.timeout > 0 {
		cfg.RequestTimeoutMs = int(opts.timeout / time.Millisecond)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.logPath != "" {
		cfg.LogPath = opts.logPath
	}

	if cfg.Transport.Endpoint == "" {
		return nil, errors.New("an endpoint is required (use -endpoint or a config file)")
	}
	return cfg, nil
}

func run() error {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := buildConfig(opts)
	if err != nil {
		return err
	}

	c, err := client.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if opts.showEvents {
		watchEvents(c)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Disconnect()

	// An untyped nil keeps params out of the wire request entirely.
	var params interface{}
	if len(opts.params) > 0 {
		params = opts.params
	}

	switch {
	case opts.ping:
		return doPing(ctx, c)
	case opts.notify:
		return c.Notify(opts.method, params)
	case opts.stream:
		return doStream(ctx, c, opts.method, params)
	default:
		return doCall(ctx, c, opts.method, params)
	}
}

func watchEvents(c *client.Client) {
	for _, et := range []eventbus.Type{
		eventbus.Connected,
		eventbus.Disconnected,
		eventbus.Reconnecting,
		eventbus.Error,
		eventbus.ContextUpdate,
		eventbus.ServerInfo,
	} {
		et := et
		c.Subscribe(et, func(e eventbus.Event) {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", e.Timestamp.Format(time.RFC3339), et)
		})
	}
}

func doPing(ctx context.Context, c *client.Client) error {
	rtt, err := c.Ping(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("pong: %s\n", rtt.Round(time.Microsecond))
	return nil
}

func doCall(ctx context.Context, c *client.Client, method string, params interface{}) error {
	result, err := c.Request(ctx, method, params, nil)
	if err != nil {
		return describeError(err)
	}
	return printJSON(result)
}

func doStream(ctx context.Context, c *client.Client, method string, params interface{}) error {
	chunks, err := c.Stream(ctx, method, params, nil)
	if err != nil {
		return describeError(err)
	}
	for chunk := range chunks {
		if chunk.Err != nil {
			return describeError(chunk.Err)
		}
		fmt.Println(string(chunk.Data))
	}
	return nil
}

// describeError keeps server error details readable on the terminal.
func describeError(err error) error {
	var pe *protocol.Error
	if errors.As(err, &pe) && len(pe.Data) > 0 {
		return fmt.Errorf("%s (details: %s)", pe.Error(), string(pe.Data))
	}
	return err
}

func printJSON(data json.RawMessage) error {
	if len(data) == 0 {
		fmt.Println("null")
		return nil
	}
	var buf json.RawMessage = data
	out, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		// Fall back to the raw payload rather than failing the call.
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(string(out))
	return nil
}
