package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

type target struct {
	ID                  string     `json:"id"`
	URL                 string     `json:"url"`
	Status              string     `json:"status"`
	NotifiedStatus      string     `json:"notified_status"`
	ConsecutiveFailures uint       `json:"consecutive_failures"`
	Reason              string     `json:"reason"`
	LastCheckedAt       *time.Time `json:"last_checked_at"`
}

// Usage:
//
//	cli               list targets and their state
//	cli <target-id>   show one target
//	cli check         ask the daemon for an immediate cycle (admin key)
func main() {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	c := &client{base: strings.TrimRight(api, "/"), key: os.Getenv("API_KEY"), http: &http.Client{Timeout: 10 * time.Second}}

	var err error
	switch {
	case len(os.Args) < 2:
		err = c.list(os.Stdout)
	case os.Args[1] == "check":
		err = c.check(os.Stdout)
	default:
		err = c.show(os.Stdout, os.Args[1])
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type client struct {
	base string
	key  string
	http *http.Client
}

func (c *client) do(method, path string, v any) error {
	req, err := http.NewRequest(method, c.base+path, nil)
	if err != nil {
		return err
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *client) list(w io.Writer) error {
	var ts []target
	if err := c.do(http.MethodGet, "/api/targets", &ts); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tFAILS\tLAST CHECK\tURL\tREASON")
	for _, t := range ts {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", t.Status, t.ConsecutiveFailures, when(t.LastCheckedAt), t.URL, t.Reason)
	}
	return tw.Flush()
}

func (c *client) show(w io.Writer, id string) error {
	var t target
	if err := c.do(http.MethodGet, "/api/targets/"+url.PathEscape(id), &t); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n  status:   %s (notified: %s)\n  failures: %d\n  checked:  %s\n", t.URL, t.Status, t.NotifiedStatus, t.ConsecutiveFailures, when(t.LastCheckedAt))
	if t.Reason != "" {
		fmt.Fprintf(w, "  reason:   %s\n", t.Reason)
	}
	return nil
}

func (c *client) check(w io.Writer) error {
	var res struct {
		Queued bool `json:"queued"`
	}
	if err := c.do(http.MethodPost, "/api/check", &res); err != nil {
		return err
	}
	if res.Queued {
		fmt.Fprintln(w, "Check cycle queued.")
	} else {
		fmt.Fprintln(w, "A check cycle is already pending.")
	}
	return nil
}

func when(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}
