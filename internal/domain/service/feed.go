package service

import "context"

// FeedFetcher downloads a raw feed document (threat intel, phishing lists,
// price APIs, registration data).
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
