package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/existflow/hearth/internal/logger"
	"github.com/existflow/hearth/internal/store"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Subscribe implements store.Store over the server's event stream. A
// dropped stream is reopened with backoff; each reconnect is reported as
// an EventResync since changes may have been missed meanwhile.
func (c *Client) Subscribe(ctx context.Context, table string, where store.Filter) (<-chan store.Event, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	query, err := c.tableQuery(where, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.openStream(ctx, table, query)
	if err != nil {
		return nil, err
	}

	out := make(chan store.Event, 64)
	go func() {
		defer close(out)
		backoff := minBackoff
		for {
			err := readEvents(ctx, body, out)
			body.Close()
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("change stream dropped", logger.F("table", table), logger.Err(err))

			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				body, err = c.openStream(ctx, table, query)
				if err == nil {
					break
				}
				c.log.Debug("change stream reconnect failed", logger.F("table", table), logger.Err(err))
				if backoff *= 2; backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			backoff = minBackoff
			select {
			case out <- store.Event{Table: table, Type: store.EventResync}:
			case <-ctx.Done():
				body.Close()
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) openStream(ctx context.Context, table string, query map[string]string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, tablePath(table)+"/changes", query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.streamer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("subscribe %s: %w", table, errorFor(resp.StatusCode, data))
	}
	return resp.Body, nil
}

// readEvents parses "event:"/"data:" frames until the stream ends. Only
// "change" events are forwarded; heartbeats and others are skipped.
func readEvents(ctx context.Context, r io.Reader, out chan<- store.Event) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		name string
		data bytes.Buffer
	)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if name == "change" && data.Len() > 0 {
				ev, err := decodeEvent(data.Bytes())
				if err != nil {
					return err
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			name = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

func decodeEvent(data []byte) (store.Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var ev store.Event
	if err := dec.Decode(&ev); err != nil {
		return store.Event{}, fmt.Errorf("invalid change event: %w", err)
	}
	return ev, nil
}
