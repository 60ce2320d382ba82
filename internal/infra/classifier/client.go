// Package classifier talks to the drawing-recognition service.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"aksara-duel-service/internal/evaluate"
	"github.com/valyala/fasthttp"
)

// Client posts drawings to {baseURL}/predict. Requests are never retried.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	timeout time.Duration
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 32},
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type predictResponse struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"` // percent
	Error      string  `json:"error"`
}

// Predict uploads the image as multipart field "file".
func (c *Client) Predict(ctx context.Context, image []byte) (evaluate.Prediction, error) {
	body, contentType, err := multipartBody(image)
	if err != nil {
		return evaluate.Prediction{}, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(c.baseURL + "/predict")
	req.Header.SetContentType(contentType)
	req.SetBody(body)

	if err := c.http.DoDeadline(req, resp, c.deadline(ctx)); err != nil {
		return evaluate.Prediction{}, fmt.Errorf("predict request: %w", err)
	}

	var out predictResponse
	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		_ = json.Unmarshal(resp.Body(), &out)
		if out.Error != "" {
			return evaluate.Prediction{}, fmt.Errorf("classifier status=%d: %s", status, out.Error)
		}
		return evaluate.Prediction{}, fmt.Errorf("classifier status=%d", status)
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return evaluate.Prediction{}, fmt.Errorf("decode prediction: %w", err)
	}
	return evaluate.Prediction{
		Label:      out.Prediction,
		Confidence: out.Confidence / 100,
	}, nil
}

func (c *Client) deadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func multipartBody(image []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "drawing.png")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
