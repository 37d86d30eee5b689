package genimage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNoImage is returned when the generation service answers without an
// image part.
var ErrNoImage = errors.New("no image in generation response")

// Client sends a source photo plus a text prompt to the generative-image
// service and returns the generated image bytes. The model call is opaque;
// there is no retry here.
type Client struct {
	Endpoint string
	APIKey   string
	Model    string
	HTTP     *http.Client
}

// New builds a generation client.
func New(endpoint, apiKey, model string) *Client {
	return &Client{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Model:    model,
		HTTP:     &http.Client{Timeout: 120 * time.Second},
	}
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type contentPart struct {
	InlineData *inlineData `json:"inlineData,omitempty"`
	Text       string      `json:"text,omitempty"`
}

type generateRequest struct {
	Contents struct {
		Parts []contentPart `json:"parts"`
	} `json:"contents"`
	Config struct {
		ResponseModalities []string `json:"responseModalities"`
	} `json:"config"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []contentPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generated is the result of a successful generation call.
type Generated struct {
	Data     []byte
	MimeType string
	Text     string
}

// Generate submits the photo and prompt and returns the first image part
// of the response.
func (c *Client) Generate(ctx context.Context, image []byte, mimeType, prompt string) (Generated, error) {
	if c.APIKey == "" {
		return Generated{}, errors.New("generation API key not configured")
	}

	var reqBody generateRequest
	reqBody.Contents.Parts = []contentPart{
		{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(image)}},
		{Text: prompt},
	}
	reqBody.Config.ResponseModalities = []string{"IMAGE", "TEXT"}

	buf, err := json.Marshal(reqBody)
	if err != nil {
		return Generated{}, err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.Endpoint, c.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return Generated{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Generated{}, fmt.Errorf("generation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Generated{}, fmt.Errorf("generation status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Generated{}, fmt.Errorf("decode generation response: %w", err)
	}

	var gen Generated
	for _, cand := range out.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" && gen.Data == nil {
				data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return Generated{}, fmt.Errorf("decode image data: %w", err)
				}
				gen.Data = data
				gen.MimeType = part.InlineData.MimeType
			} else if part.Text != "" && gen.Text == "" {
				gen.Text = part.Text
			}
		}
	}
	if gen.Data == nil {
		if gen.Text != "" {
			return Generated{}, fmt.Errorf("%w: %s", ErrNoImage, gen.Text)
		}
		return Generated{}, ErrNoImage
	}
	return gen, nil
}
