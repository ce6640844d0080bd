package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"robot-telemetry/pkg/model"
	"robot-telemetry/pkg/version"
)

// HTTPPull talks to the REST interface.
type HTTPPull struct {
	base   string
	client *http.Client
}

func NewHTTPPull(serverURL string, client *http.Client) *HTTPPull {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPPull{base: strings.TrimRight(serverURL, "/"), client: client}
}

type historyPage struct {
	Count int                     `json:"count"`
	Data  []model.TelemetrySample `json:"data"`
}

type apiError struct {
	Error string `json:"error"`
}

func (p *HTTPPull) Latest(ctx context.Context, robotID string) (model.TelemetrySample, error) {
	var s model.TelemetrySample
	q := url.Values{"robot_id": {robotID}}
	err := p.getJSON(ctx, "/api/telemetry/latest?"+q.Encode(), &s)
	return s, err
}

func (p *HTTPPull) History(ctx context.Context, robotID string, limit int) ([]model.TelemetrySample, error) {
	var page historyPage
	q := url.Values{"robot_id": {robotID}, "limit": {strconv.Itoa(limit)}}
	if err := p.getJSON(ctx, "/api/telemetry/history?"+q.Encode(), &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

// Command posts a command. Rejections come back as a result with Success false, not an error.
func (p *HTTPPull) Command(ctx context.Context, robotID, command string) (model.CommandResult, error) {
	var res model.CommandResult
	body, _ := json.Marshal(model.CommandRequest{Command: command, RobotID: robotID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+"/api/robot/command", bytes.NewReader(body))
	if err != nil {
		return res, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := p.client.Do(req)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return res, fmt.Errorf("command: status %d: %w", resp.StatusCode, err)
	}
	if res.Message == "" && resp.StatusCode >= 300 {
		return res, fmt.Errorf("command: status %d", resp.StatusCode)
	}
	return res, nil
}

func (p *HTTPPull) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e apiError
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return errors.New(e.Error)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
