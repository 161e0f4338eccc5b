package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"brand-deck-platform/internal/config"
)

// RedisConnOpt builds the asynq connection from the same settings
// config.NewRedisClient accepts: a full redis:// or rediss:// URL, or a
// bare host:port with separate password/db settings.
func RedisConnOpt(cfg *config.Config) (asynq.RedisConnOpt, error) {
	if strings.HasPrefix(cfg.RedisURL, "redis://") || strings.HasPrefix(cfg.RedisURL, "rediss://") {
		opt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %v", err)
		}
		return opt, nil
	}
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

// Client enqueues background tasks. It satisfies the enqueuer interfaces
// the services and crawler packages define, so those stay unaware of asynq.
type Client struct {
	client *asynq.Client
}

func NewClient(cfg *config.Config) (*Client, error) {
	opt, err := RedisConnOpt(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{client: asynq.NewClient(opt)}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) EnqueueDocumentProcess(ctx context.Context, brandID, documentID, filePath string) (string, error) {
	task, err := NewDocumentProcessTask(brandID, documentID, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create document task: %w", err)
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue document task: %w", err)
	}
	return info.ID, nil
}

func (c *Client) EnqueueDeckBuild(ctx context.Context, brandID, deckID string) (string, error) {
	task, err := NewDeckBuildTask(brandID, deckID)
	if err != nil {
		return "", fmt.Errorf("failed to create deck build task: %w", err)
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue deck build task: %w", err)
	}
	return info.ID, nil
}

func (c *Client) EnqueueSnapshotCrawl(ctx context.Context, brandID, snapshotID, siteURL string) (string, error) {
	task, err := NewSnapshotCrawlTask(brandID, snapshotID, siteURL)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot task: %w", err)
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue snapshot task: %w", err)
	}
	return info.ID, nil
}
