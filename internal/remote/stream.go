package remote

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
)

// maxEventSize はServer-Sent Events 1行あたりの上限。
const maxEventSize = 4 * 1024 * 1024

// Event はServer-Sent Eventsの1イベントを表す。
type Event struct {
	Name string
	Data string
}

// Stream はpathにGETでtext/event-streamを要求し、受信したイベントごとにfnを呼ぶ。
// ctxがキャンセルされるかサーバーが接続を閉じるとnilを返す。
// 接続の確立に失敗した場合と読み取りエラーはerrorとして返す。
func (c *Client) Stream(ctx context.Context, path string, fn func(Event)) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("GET %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return c.decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var name string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if name != "" || len(data) > 0 {
				if name == "" {
					name = "message"
				}
				fn(Event{Name: name, Data: strings.Join(data, "\n")})
			}
			name, data = "", nil
		case strings.HasPrefix(line, ":"):
			// heartbeat
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to read event stream %s: %w", path, err)
	}
	return nil
}
