// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package hardware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"heatpilot/v2/pkg/logger"
)

type pointRequest struct {
	ParameterID string  `json:"parameter_id"`
	Value       float64 `json:"value"`
}

// HTTPWriter posts point values to a vendor gateway at
// {base}/devices/{deviceID}/points.
type HTTPWriter struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

func NewHTTPWriter(baseURL string, timeout time.Duration) *HTTPWriter {
	return &HTTPWriter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     logger.New("HTTPWriter"),
	}
}

func (w *HTTPWriter) SetPointValue(ctx context.Context, deviceID, code string, value float64) error {
	endpoint := fmt.Sprintf("%s/devices/%s/points", w.baseURL, url.PathEscape(deviceID))
	if err := w.postJSON(ctx, endpoint, pointRequest{ParameterID: code, Value: value}); err != nil {
		if we, ok := err.(*WriteError); ok {
			we.Code = code
		}
		return err
	}
	w.log.Info("%s/%s <- %v", deviceID, code, value)
	return nil
}

func (w *HTTPWriter) postJSON(ctx context.Context, endpoint string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return &WriteError{Timeout: isTimeout(ctx, err), Err: fmt.Errorf("HTTP POST failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &WriteError{Status: resp.StatusCode, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	return nil
}
