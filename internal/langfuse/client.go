package langfuse

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jmercadier/amortization-extractor/internal/extract"
	"github.com/jmercadier/amortization-extractor/internal/resilience"
)

// Dispatch implements extract.Dispatcher against the Langfuse-style
// extraction endpoint. Depending on the configured mode the file travels
// inline (base64 in the request body) or by reference (uploaded first, then
// pointed to). Transient HTTP statuses come back wrapped so the
// orchestrator's retry loop can classify them; 4xx statuses signal a
// malformed request and stay terminal.
func (c *Client) Dispatch(ctx context.Context, req extract.DispatchRequest) (extract.RawResponse, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("langfuse.dispatch.start",
		"req_id", rid,
		"mode", string(c.cfg.Mode),
		"filename", req.Filename,
		"file_bytes", len(req.FileBytes),
		"prompt", c.cfg.PromptName,
		"prompt_version", c.cfg.PromptVersion,
	)

	body := map[string]any{
		"prompt_name":    c.cfg.PromptName,
		"prompt_version": c.cfg.PromptVersion,
	}
	switch c.cfg.Mode {
	case DispatchUpload:
		fileID, err := c.upload(ctx, rid, req)
		if err != nil {
			return extract.RawResponse{}, err
		}
		body["file_id"] = fileID
	default:
		body["file"] = map[string]any{
			"name":      req.Filename,
			"mime_type": mimeTypeFor(req.Filename),
			"data":      base64.StdEncoding.EncodeToString(req.FileBytes),
		}
	}

	raw, contentType, err := c.post(ctx, c.endpoint("/extract"), body)
	if err != nil {
		c.logger.Error("langfuse.dispatch.error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return extract.RawResponse{}, err
	}

	c.logger.Info("langfuse.dispatch.ok",
		"req_id", rid,
		"response_bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return extract.RawResponse{Body: raw, ContentType: contentType}, nil
}

// upload sends the raw bytes and returns the server-assigned file ID.
func (c *Client) upload(ctx context.Context, rid string, req extract.DispatchRequest) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint("/files"), bytes.NewReader(req.FileBytes))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mimeTypeFor(req.Filename))
	httpReq.Header.Set("X-Filename", req.Filename)
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	defer c.closeBody(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return "", c.statusError("upload", resp.StatusCode, raw)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("upload response has no file id")
	}
	c.logger.Debug("langfuse.upload.ok", "req_id", rid, "file_id", out.ID)
	return out.ID, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, string, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("langfuse http error: %w", err)
	}
	defer c.closeBody(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, "", c.statusError("extract", resp.StatusCode, raw)
	}
	return raw, resp.Header.Get("Content-Type"), nil
}

func (c *Client) statusError(op string, status int, body []byte) error {
	err := fmt.Errorf("langfuse %s status %d: %s", op, status, truncate(string(body), 200))
	if resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(err, status)
	}
	return err
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	if c.cfg.PublicKey != "" {
		req.Header.Set("X-Langfuse-Public-Key", c.cfg.PublicKey)
	}
}

func (c *Client) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Warn("langfuse response body close error", "error", err)
	}
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func mimeTypeFor(filename string) string {
	if mt := mime.TypeByExtension(filepath.Ext(filename)); mt != "" {
		return mt
	}
	return "application/pdf"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
