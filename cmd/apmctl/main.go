// Command apmctl queries the analytics API and tails the live event stream.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"github.com/xiaot623/gogo/apm/internal/auth"
	"github.com/xiaot623/gogo/apm/internal/domain"
)

// Client talks to the analytics HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient creates a client for the server at addr.
func NewClient(addr, token string) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(addr, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse addr: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("addr must be an http or https url, got %q", addr)
	}
	return &Client{base: base, token: token, http: &http.Client{Timeout: 30 * time.Second}}, nil
}

// GetJSON fetches path and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String()+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Detail != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Detail)
		}
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

// StreamURL is the websocket address of the live event stream.
func (c *Client) StreamURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += "/v1/events/stream"
	u.RawQuery = url.Values{"token": {c.token}}.Encode()
	return u.String()
}

// Tail prints events from the live stream until ctx is done or the server
// closes the connection.
func (c *Client) Tail(ctx context.Context, w io.Writer) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.StreamURL(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var event domain.Event
		if err := json.Unmarshal(data, &event); err != nil {
			fmt.Fprintf(w, "%s\n", data)
			continue
		}
		fmt.Fprintf(w, "%s  org=%d agent=%d %-28s %s\n",
			event.CreatedAt.Format(time.RFC3339), event.OrgID, event.AgentID, event.Name, event.Property)
	}
}

func printUsage(w io.Writer, usage []domain.ToolUsage) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tTOOLKIT\tAGENTS\tCALLS")
	for _, u := range usage {
		toolkit := "-"
		if u.Toolkit != nil {
			toolkit = *u.Toolkit
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", u.ToolName, toolkit, u.UniqueAgents, u.TotalUsage)
	}
	tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageText() {
	fmt.Fprintf(os.Stderr, `Usage: apmctl [flags] <command> [args]

Commands:
  usage               usage of every tool
  tool-usage <name>   call and agent counts for one tool
  tool-logs <name>    completed runs that used a tool
  tail                follow the live event stream

Flags:
`)
	pflag.PrintDefaults()
}

func run(ctx context.Context, client *Client, args []string, out io.Writer) error {
	switch cmd := args[0]; cmd {
	case "usage":
		var usage []domain.ToolUsage
		if err := client.GetJSON(ctx, "/v1/analytics/tools/usage", &usage); err != nil {
			return err
		}
		printUsage(out, usage)
		return nil
	case "tool-usage", "tool-logs":
		if len(args) != 2 {
			return fmt.Errorf("%s needs a tool name", cmd)
		}
		suffix := "/usage"
		if cmd == "tool-logs" {
			suffix = "/logs"
		}
		var result json.RawMessage
		if err := client.GetJSON(ctx, "/v1/analytics/tools/"+url.PathEscape(args[1])+suffix, &result); err != nil {
			return err
		}
		return printJSON(out, result)
	case "tail":
		return client.Tail(ctx, out)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func main() {
	addr := pflag.String("addr", "http://localhost:8080", "API server address")
	token := pflag.String("token", os.Getenv("APM_TOKEN"), "bearer token")
	secret := pflag.String("jwt-secret", "", "sign a token locally with this secret instead of --token")
	orgID := pflag.Int64("org", 1, "organisation id for tokens signed with --jwt-secret")
	pflag.Usage = usageText
	pflag.Parse()

	if pflag.NArg() == 0 {
		usageText()
		os.Exit(2)
	}

	if *token == "" && *secret != "" {
		signed, err := auth.NewManager(*secret, time.Hour).Generate(*orgID, "apmctl")
		if err != nil {
			fmt.Fprintf(os.Stderr, "apmctl: sign token: %v\n", err)
			os.Exit(1)
		}
		*token = signed
	}
	if *token == "" {
		fmt.Fprintln(os.Stderr, "apmctl: --token or --jwt-secret is required")
		os.Exit(2)
	}

	client, err := NewClient(*addr, *token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "apmctl: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, client, pflag.Args(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "apmctl: %v\n", err)
		os.Exit(1)
	}
}
