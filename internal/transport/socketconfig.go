package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// socketConfig is the payload served at /socketconfig/<channel>.json.
type socketConfig struct {
	Servers []struct {
		URL    string `json:"url"`
		Secure bool   `json:"secure"`
	} `json:"servers"`
	Error string `json:"error"`
}

// FetchServerURL resolves the event-server endpoint for a channel by
// querying the domain's socket config. Secure endpoints are preferred;
// otherwise the first candidate wins. A fetch failure and an empty
// candidate list are distinct errors: only the former wraps
// ErrConnectionFailed.
func FetchServerURL(ctx context.Context, client *http.Client, domain, channel string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	base := domain
	if !strings.HasPrefix(base, "http") {
		base = "https://" + base
	}
	url := fmt.Sprintf("%s/socketconfig/%s.json", strings.TrimRight(base, "/"), channel)
	log.Info().Str("url", url).Msg("fetching socket config")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build socket config request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: fetch socket config: %v", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: socket config returned %d", ErrConnectionFailed, resp.StatusCode)
	}

	var conf socketConfig
	if err := json.NewDecoder(resp.Body).Decode(&conf); err != nil {
		return "", fmt.Errorf("%w: decode socket config: %v", ErrConnectionFailed, err)
	}
	if conf.Error != "" {
		return "", fmt.Errorf("socket config error: %s", conf.Error)
	}

	for _, srv := range conf.Servers {
		if srv.Secure {
			log.Info().Str("server", srv.URL).Msg("using secure server")
			return srv.URL, nil
		}
	}
	if len(conf.Servers) > 0 {
		log.Info().Str("server", conf.Servers[0].URL).Msg("no secure servers, using first")
		return conf.Servers[0].URL, nil
	}
	return "", fmt.Errorf("no servers in socket config")
}
