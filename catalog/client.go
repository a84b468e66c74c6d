package catalog

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

	"github.com/irsalhamdi/course-checkout/core/course"
	"github.com/shopspring/decimal"
)

// Client reads courses from the catalog service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type courseDoc struct {
	Title        string          `json:"title"`
	Price        decimal.Decimal `json:"price"`
	IsPublished  *bool           `json:"isPublished"`
	Published    *bool           `json:"published"`
	InstructorID json.RawMessage `json:"instructorId"`
}

// Fetch returns course.ErrNotFound when the catalog does not know id. Any
// other error means the catalog could not answer.
func (c *Client) Fetch(ctx context.Context, id string) (course.Course, error) {
	u := c.baseURL + "/courses/" + url.PathEscape(id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return course.Course{}, fmt.Errorf("building catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return course.Course{}, fmt.Errorf("fetching course[%s]: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return course.Course{}, fmt.Errorf("fetching course[%s]: %w", id, course.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return course.Course{}, fmt.Errorf("fetching course[%s]: catalog answered with status %d", id, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return course.Course{}, fmt.Errorf("reading course[%s]: %w", id, err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return course.Course{}, fmt.Errorf("fetching course[%s]: %w", id, course.ErrNotFound)
	}

	var doc courseDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return course.Course{}, fmt.Errorf("decoding course[%s]: %w", id, err)
	}

	published := false
	switch {
	case doc.IsPublished != nil:
		published = *doc.IsPublished
	case doc.Published != nil:
		published = *doc.Published
	}

	return course.Course{
		ID:           id,
		Title:        doc.Title,
		Price:        doc.Price,
		Published:    published,
		InstructorID: strings.Trim(string(doc.InstructorID), `"`),
	}, nil
}
