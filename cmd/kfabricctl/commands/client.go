package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

var httpClient = &http.Client{Timeout: 5 * time.Second}

// getJSON fetches path from the control-plane API and decodes its body
// into v.
func getJSON(path string, v any) error {
	url := fmt.Sprintf("http://%s%s", addr, path)
	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("failed to reach kfabricd at %s: %w", addr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error != "" {
			return fmt.Errorf("%s: %s", url, errBody.Error)
		}
		return fmt.Errorf("%s: unexpected status %s", url, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}
