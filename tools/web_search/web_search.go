package web_search

import (
	"context"
	"errors"

	"github.com/goutham-kaluvakolu/MA-System/tools/web_search/brave"
	"github.com/goutham-kaluvakolu/MA-System/tools/web_search/models"
	"github.com/goutham-kaluvakolu/MA-System/tools/web_search/serper"
)

type WebSearcher interface {
	Search(ctx context.Context, q string, max int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

func NewWebSearcher(provider Provider, apiKey string) (WebSearcher, error) {
	switch provider {
	case SerperProvider:
		return serper.Search{ApiKey: apiKey}, nil
	case BraveProvider:
		return brave.Search{ApiKey: apiKey}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
