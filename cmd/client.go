package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"datasync/internal/observability"
	apperrors "datasync/pkg/errors"
	"datasync/pkg/models"
)

// remoteClient drives a running `datasync serve` over its HTTP API.
type remoteClient struct {
	base string
	http *http.Client
}

func newRemoteClient(base string) *remoteClient {
	return &remoteClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

// post calls a sync route and decodes the reply into an outcome. Every
// status the API documents carries a JSON body with at least a message.
func (c *remoteClient) post(ctx context.Context, route string, op models.Operation) (*models.Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+route, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "invalid server URL").
			WithContext("server", c.base)
	}
	req.Header.Set(observability.TraceHeader, uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.NetworkError("DataSync server is not reachable", err).
			WithContext("server", c.base).
			WithSuggestions("Start it with 'datasync serve' or pass --server")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.NetworkError("failed to read server response", err)
	}

	out := &models.Outcome{Operation: op}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeServiceUnavailable,
			fmt.Sprintf("unexpected response from server (HTTP %d)", resp.StatusCode)).
			WithOutput(string(body))
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, apperrors.New(apperrors.ErrCodeServiceUnavailable, out.Message).
			WithContext("status", resp.StatusCode)
	}
	if !out.Success && out.Kind == apperrors.KindNone {
		out.Kind = apperrors.KindGeneral
	}
	return out, nil
}
