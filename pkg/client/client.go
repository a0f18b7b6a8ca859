// Package client provides a typed HTTP client SDK for the AMS API.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ff-monheim/ams-console/pkg/types"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3

	// CoursesPath is the collection path of courses.
	CoursesPath = "/api/v1/courses"
	// LocationsPath is the collection path of locations.
	LocationsPath = "/api/v1/locations"
	// RanksPath is the collection path of ranks.
	RanksPath = "/api/v1/ranks"
)

// Config holds AMS client configuration.
type Config struct {
	// TokenRefresh optionally resolves a token dynamically when Token is empty.
	TokenRefresh func(ctx context.Context) (string, error)
	// BaseURL is the root URL of the AMS API (for example: http://localhost:3000).
	BaseURL string
	// Token is the bearer token used for API requests.
	Token string
	// Timeout is the per-request timeout. Defaults to 30s.
	Timeout time.Duration
	// MaxRetries is the number of attempts for idempotent requests that fail
	// transiently. Defaults to 3.
	MaxRetries int
	// HTTPClient overrides the underlying HTTP client.
	HTTPClient *http.Client
}

// Client is the typed HTTP SDK for AMS APIs.
type Client struct {
	http    *transport
	baseURL string
	cfg     Config

	courses   collection[types.Course]
	locations collection[types.Location]
	ranks     collection[types.Rank]
}

// ListResponse is the envelope of collection responses.
type ListResponse[T any] struct {
	Data []T `json:"data"`
}

// New creates a new AMS client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("client: BaseURL is required")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	cfg.BaseURL = baseURL

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	t := &transport{
		httpClient:   httpClient,
		baseURL:      baseURL,
		token:        cfg.Token,
		tokenRefresh: cfg.TokenRefresh,
		maxRetries:   cfg.MaxRetries,
	}

	return &Client{
		http:      t,
		baseURL:   baseURL,
		cfg:       cfg,
		courses:   collection[types.Course]{http: t, path: CoursesPath, noun: "course"},
		locations: collection[types.Location]{http: t, path: LocationsPath, noun: "location"},
		ranks:     collection[types.Rank]{http: t, path: RanksPath, noun: "rank"},
	}, nil
}

// ListCourses returns all courses.
func (c *Client) ListCourses(ctx context.Context) ([]types.Course, error) {
	return c.courses.list(ctx)
}

// GetCourse returns one course by ID.
func (c *Client) GetCourse(ctx context.Context, id string) (*types.Course, error) {
	return c.courses.get(ctx, id)
}

// CreateCourse creates a course and returns the stored record.
func (c *Client) CreateCourse(ctx context.Context, req types.CreateCourseRequest) (*types.Course, error) {
	return c.courses.create(ctx, req)
}

// UpdateCourse replaces the fields of an existing course.
func (c *Client) UpdateCourse(ctx context.Context, id string, req types.UpdateCourseRequest) (*types.Course, error) {
	return c.courses.update(ctx, id, req)
}

// DeleteCourse deletes a course by ID.
func (c *Client) DeleteCourse(ctx context.Context, id string) error {
	return c.courses.delete(ctx, id)
}

// ListLocations returns all locations.
func (c *Client) ListLocations(ctx context.Context) ([]types.Location, error) {
	return c.locations.list(ctx)
}

// GetLocation returns one location by ID.
func (c *Client) GetLocation(ctx context.Context, id string) (*types.Location, error) {
	return c.locations.get(ctx, id)
}

// CreateLocation creates a location and returns the stored record.
func (c *Client) CreateLocation(ctx context.Context, req types.CreateLocationRequest) (*types.Location, error) {
	return c.locations.create(ctx, req)
}

// UpdateLocation replaces the fields of an existing location.
func (c *Client) UpdateLocation(ctx context.Context, id string, req types.UpdateLocationRequest) (*types.Location, error) {
	return c.locations.update(ctx, id, req)
}

// DeleteLocation deletes a location by ID.
func (c *Client) DeleteLocation(ctx context.Context, id string) error {
	return c.locations.delete(ctx, id)
}

// ListRanks returns all ranks.
func (c *Client) ListRanks(ctx context.Context) ([]types.Rank, error) {
	return c.ranks.list(ctx)
}

// GetRank returns one rank by ID.
func (c *Client) GetRank(ctx context.Context, id string) (*types.Rank, error) {
	return c.ranks.get(ctx, id)
}

// CreateRank creates a rank and returns the stored record.
func (c *Client) CreateRank(ctx context.Context, req types.CreateRankRequest) (*types.Rank, error) {
	return c.ranks.create(ctx, req)
}

// UpdateRank replaces the fields of an existing rank.
func (c *Client) UpdateRank(ctx context.Context, id string, req types.UpdateRankRequest) (*types.Rank, error) {
	return c.ranks.update(ctx, id, req)
}

// DeleteRank deletes a rank by ID.
func (c *Client) DeleteRank(ctx context.Context, id string) error {
	return c.ranks.delete(ctx, id)
}

// collection implements the four CRUD verbs shared by every AMS resource.
type collection[T any] struct {
	http *transport
	path string
	noun string
}

func (c collection[T]) list(ctx context.Context) ([]T, error) {
	var result ListResponse[T]
	if err := c.http.get(ctx, c.path, &result); err != nil {
		return nil, fmt.Errorf("listing %ss: %w", c.noun, err)
	}
	if result.Data == nil {
		result.Data = []T{}
	}
	return result.Data, nil
}

func (c collection[T]) get(ctx context.Context, id string) (*T, error) {
	path, err := c.itemPath(id)
	if err != nil {
		return nil, err
	}
	var result T
	if err := c.http.get(ctx, path, &result); err != nil {
		return nil, fmt.Errorf("getting %s %q: %w", c.noun, strings.TrimSpace(id), err)
	}
	return &result, nil
}

func (c collection[T]) create(ctx context.Context, req any) (*T, error) {
	var result T
	if err := c.http.post(ctx, c.path, req, &result); err != nil {
		return nil, fmt.Errorf("creating %s: %w", c.noun, err)
	}
	return &result, nil
}

func (c collection[T]) update(ctx context.Context, id string, req any) (*T, error) {
	path, err := c.itemPath(id)
	if err != nil {
		return nil, err
	}
	var result T
	if err := c.http.put(ctx, path, req, &result); err != nil {
		return nil, fmt.Errorf("updating %s %q: %w", c.noun, strings.TrimSpace(id), err)
	}
	return &result, nil
}

func (c collection[T]) delete(ctx context.Context, id string) error {
	path, err := c.itemPath(id)
	if err != nil {
		return err
	}
	if err := c.http.delete(ctx, path); err != nil {
		return fmt.Errorf("deleting %s %q: %w", c.noun, strings.TrimSpace(id), err)
	}
	return nil
}

func (c collection[T]) itemPath(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", fmt.Errorf("%s id is required", c.noun)
	}
	return c.path + "/" + url.PathEscape(trimmed), nil
}
