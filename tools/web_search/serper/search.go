package serper

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/goutham-kaluvakolu/MA-System/tools/web_search/models"
	"github.com/goutham-kaluvakolu/MA-System/utils"
)

const defaultEndpoint = "https://google.serper.dev/search"

type Search struct {
	ApiKey   string
	Endpoint string // defaults to the public Serper API
}

func (s Search) Search(ctx context.Context, q string, max int) ([]models.Result, error) {
	// https://serper.dev/ docs
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	payload := map[string]any{"q": q, "num": max}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.ApiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &models.StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	var out []models.Result
	if items, ok := raw["organic"].([]any); ok {
		for i, it := range items {
			if i >= max {
				break
			}
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, models.Result{
				Title: utils.Str(m["title"]), URL: utils.Str(m["link"]), Snippet: utils.Str(m["snippet"]),
			})
		}
	}
	return out, nil
}
