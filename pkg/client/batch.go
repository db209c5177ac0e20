package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/civicsource/fetch-helpers/pkg/batch"
	"github.com/tidwall/gjson"
)

// RequestBuilder builds the request that fetches one chunk of keys.
type RequestBuilder[K comparable] func(ctx context.Context, c *Client, keys []K, extra ...any) (*http.Request, error)

// QueryBuilder returns a RequestBuilder issuing GET path?param=k1&param=k2...
// Extra arguments of type url.Values are merged into the query.
func QueryBuilder[K comparable](path, param string) RequestBuilder[K] {
	return func(ctx context.Context, c *Client, keys []K, extra ...any) (*http.Request, error) {
		query := url.Values{}
		for _, e := range extra {
			values, ok := e.(url.Values)
			if !ok {
				continue
			}
			for k, vs := range values {
				for _, v := range vs {
					query.Add(k, v)
				}
			}
		}
		for _, key := range keys {
			query.Add(param, fmt.Sprint(key))
		}

		return c.NewRequest(ctx, http.MethodGet, path, query)
	}
}

// BatchFetch returns a batch.FetchFunc issuing one request per chunk through c.
func BatchFetch[K comparable, T any](c *Client, build RequestBuilder[K]) batch.FetchFunc[K, T] {
	return func(ctx context.Context, keys []K, extra ...any) (batch.Response[T], error) {
		req, err := build(ctx, c, keys, extra...)
		if err != nil {
			return batch.Response[T]{}, err
		}

		resp, err := c.Do(req)
		if err != nil {
			return batch.Response[T]{}, err
		}
		defer resp.Body.Close()

		body, err := readJSON(resp)
		if err != nil {
			return batch.Response[T]{}, err
		}

		return Decode[T](body)
	}
}

// Decode converts a JSON body into a batch response: an array becomes a list
// of items, any other value a single bare item.
func Decode[T any](body []byte) (batch.Response[T], error) {
	if gjson.ParseBytes(body).IsArray() {
		var items []T
		if err := json.Unmarshal(body, &items); err != nil {
			return batch.Response[T]{}, fmt.Errorf("decode items: %w", err)
		}
		return batch.Items(items...), nil
	}

	var item T
	if err := json.Unmarshal(body, &item); err != nil {
		return batch.Response[T]{}, fmt.Errorf("decode item: %w", err)
	}
	return batch.One(item), nil
}
