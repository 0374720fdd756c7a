// Package profile resolves user ids to public profiles via the external
// user service. Lookup failures are a normal condition here, distinct
// from persistence errors: callers substitute a placeholder profile.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/c-pro/geche"

	"lichka/internal/models"
)

const (
	DefaultCacheTTL       = 5 * time.Minute
	defaultRequestTimeout = 3 * time.Second
)

// Directory is the lookup capability consumed by the delivery router.
type Directory interface {
	Lookup(ctx context.Context, userID string) (models.Profile, error)
}

// userPayload tolerates both id shapes the user service emits.
type userPayload struct {
	ID             string `json:"id"`
	MongoID        string `json:"_id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
}

type Config struct {
	BaseURL  string
	CacheTTL time.Duration
}

// HTTPDirectory looks profiles up over the user service's REST API and
// keeps them in a TTL cache so inbox listings do not hammer the service.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
	cache   geche.Geche[string, models.Profile]
}

func NewHTTPDirectory(ctx context.Context, config Config) *HTTPDirectory {
	ttl := config.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	return &HTTPDirectory{
		baseURL: config.BaseURL,
		client:  &http.Client{Timeout: defaultRequestTimeout},
		cache:   geche.NewMapTTLCache[string, models.Profile](ctx, ttl, time.Minute),
	}
}

// Lookup resolves userID to a profile. Returns models.ErrNotFound when
// the user service does not know the id; any other failure is a
// transport error the caller may also treat as "absent".
func (d *HTTPDirectory) Lookup(ctx context.Context, userID string) (models.Profile, error) {
	if p, err := d.cache.Get(userID); err == nil {
		return p, nil
	}

	url := fmt.Sprintf("%s/api/users/%s", d.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Profile{}, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return models.Profile{}, fmt.Errorf("user service unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return models.Profile{}, models.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return models.Profile{}, fmt.Errorf("user service returned status %d", resp.StatusCode)
	}

	var payload userPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.Profile{}, fmt.Errorf("failed to decode user payload: %w", err)
	}

	id := payload.ID
	if id == "" {
		id = payload.MongoID
	}
	p := models.Profile{
		ID:             id,
		Username:       payload.Username,
		ProfilePicture: payload.ProfilePicture,
	}

	d.cache.Set(userID, p)
	return p, nil
}

// LookupOrPlaceholder is the fetch-or-fallback used on read paths:
// a failed lookup degrades to a minimal profile carrying just the id.
func LookupOrPlaceholder(ctx context.Context, d Directory, userID string) models.Profile {
	p, err := d.Lookup(ctx, userID)
	if err != nil {
		return models.PlaceholderProfile(userID)
	}
	return p
}
