package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"

	simplejson "github.com/bitly/go-simplejson"
)

// httpGet fetches a JSON envelope with the caller's deadline.
func httpGet(ctx context.Context, client *http.Client, url string) (*simplejson.Json, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sources: %v", resp.Status)
	}

	rawData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return simplejson.NewJson(rawData)
}

// httpGetRaw fetches a plaintext or XML body.
func httpGetRaw(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sources: %v", resp.Status)
	}

	return io.ReadAll(resp.Body)
}
