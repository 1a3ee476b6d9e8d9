package discourse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client posts proposal events to a Discourse forum. All calls are bounded by
// short timeouts; callers treat failures as best-effort.
type Client struct {
	baseURL  string
	apiKey   string
	username string
	client   *http.Client
}

func NewClient(baseURL, apiKey, username string) *Client {
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		username: username,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type postRequest struct {
	Title    string `json:"title,omitempty"`
	Raw      string `json:"raw"`
	TopicID  int    `json:"topic_id,omitempty"`
	Category int    `json:"category,omitempty"`
}

type postResponse struct {
	TopicID int             `json:"topic_id"`
	Errors  json.RawMessage `json:"errors,omitempty"`
}

func (c *Client) post(ctx context.Context, payload postRequest) (postResponse, error) {
	var out postResponse

	body, err := json.Marshal(payload)
	if err != nil {
		return out, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/posts", bytes.NewBuffer(body))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "funding")
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Api-Username", c.username)

	resp, err := c.client.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, err
	}
	if len(out.Errors) > 0 {
		return out, fmt.Errorf("discourse: %s", out.Errors)
	}
	return out, nil
}

// NewPost replies to an existing topic. The forum enforces a minimum body
// length; reject short bodies before the roundtrip.
func (c *Client) NewPost(ctx context.Context, topicID int, body string) (int, error) {
	if len(body) < 6 {
		return 0, fmt.Errorf("post too short")
	}

	res, err := c.post(ctx, postRequest{Raw: body, TopicID: topicID})
	if err != nil {
		return 0, err
	}
	return res.TopicID, nil
}

// NewTopic creates a fresh topic and returns its id.
func (c *Client) NewTopic(ctx context.Context, title, body string, category int) (int, error) {
	if len(body) < 40 {
		return 0, fmt.Errorf("post too short")
	}

	payload := postRequest{Title: title, Raw: body}
	if category > 0 {
		payload.Category = category
	}

	res, err := c.post(ctx, payload)
	if err != nil {
		return 0, err
	}
	if res.TopicID == 0 {
		return 0, fmt.Errorf("discourse: no topic id in response")
	}
	return res.TopicID, nil
}
