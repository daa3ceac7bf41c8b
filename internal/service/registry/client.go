package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"Detector/internal/domain/models"
	"Detector/internal/domain/repository"
	"Detector/internal/service/cache"
	pkghttp "Detector/pkg/http"
	"Detector/pkg/logger"
)

// Client reads the remote plugin catalogue. Successful answers are cached per
// user; failures are logged and degrade to "not found" or an empty list.
type Client struct {
	http    *pkghttp.Client
	baseURL string
	token   string
	cache   cache.BytesCache
	ttl     time.Duration
	log     *logger.Logger
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithCache enables response caching with ttl.
func WithCache(bc cache.BytesCache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = bc
		c.ttl = ttl
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

func NewClient(httpClient *pkghttp.Client, baseURL string, opts ...Option) *Client {
	c := &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(logger.String("component", "plugin_registry"))
	return c
}

type listReply struct {
	Data []models.PluginMeta `json:"data"`
}

func (c *Client) headers(userID string) map[string]string {
	h := map[string]string{"x-user-id": userID}
	if c.token != "" {
		h["Authorization"] = "Bearer " + c.token
	}
	return h
}

func (c *Client) GetPlugin(ctx context.Context, userID, guid string) (*models.PluginMeta, error) {
	key := "registry:plugin:" + userID + ":" + guid
	var meta models.PluginMeta
	if c.cached(ctx, key, &meta) {
		return &meta, nil
	}

	raw, err := c.fetch(ctx, userID, "/plugins/"+url.PathEscape(guid))
	if err != nil {
		var se *pkghttp.StatusError
		if !errors.As(err, &se) || se.Status != http.StatusNotFound {
			c.log.Warn("fetch plugin failed", logger.String("guid", guid), logger.Error(err))
		}
		return nil, fmt.Errorf("plugin %s: %w", guid, models.ErrPluginNotFound)
	}
	if err := json.Unmarshal(raw, &meta); err != nil || meta.GUID == "" {
		c.log.Warn("undecodable plugin meta", logger.String("guid", guid))
		return nil, fmt.Errorf("plugin %s: %w", guid, models.ErrPluginNotFound)
	}
	c.store(ctx, key, raw)
	return &meta, nil
}

func (c *Client) ListPlugins(ctx context.Context, userID string) ([]models.PluginMeta, error) {
	key := "registry:plugins:" + userID
	var reply listReply
	if c.cached(ctx, key, &reply) {
		return reply.Data, nil
	}

	raw, err := c.fetch(ctx, userID, "/plugins")
	if err != nil {
		c.log.Warn("list plugins failed", logger.Error(err))
		return []models.PluginMeta{}, nil
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		c.log.Warn("undecodable plugin list", logger.Error(err))
		return []models.PluginMeta{}, nil
	}
	if reply.Data == nil {
		reply.Data = []models.PluginMeta{}
	}
	c.store(ctx, key, raw)
	return reply.Data, nil
}

// Download fetches a bundle artifact.
func (c *Client) Download(ctx context.Context, sourceURL string) ([]byte, error) {
	var b []byte
	if err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{Method: pkghttp.MethodGet, URL: sourceURL}, &b); err != nil {
		return nil, fmt.Errorf("download %s: %w: %w", sourceURL, models.ErrUpstreamUnavailable, err)
	}
	return b, nil
}

func (c *Client) fetch(ctx context.Context, userID, path string) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("registry url is not configured")
	}
	var raw []byte
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method:  pkghttp.MethodGet,
		URL:     c.baseURL + path,
		Headers: c.headers(userID),
	}, &raw)
	return raw, err
}

func (c *Client) cached(ctx context.Context, key string, dest interface{}) bool {
	if c.cache == nil {
		return false
	}
	b, ok, err := c.cache.GetBytes(ctx, key)
	if err != nil {
		c.log.Debug("registry cache read failed", logger.String("key", key), logger.Error(err))
		return false
	}
	return ok && json.Unmarshal(b, dest) == nil
}

func (c *Client) store(ctx context.Context, key string, raw []byte) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SetBytes(ctx, key, raw, c.ttl); err != nil {
		c.log.Debug("registry cache write failed", logger.String("key", key), logger.Error(err))
	}
}

var _ repository.PluginRegistry = (*Client)(nil)
