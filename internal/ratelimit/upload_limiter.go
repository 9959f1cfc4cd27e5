package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atolldev/billscan/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyUploadClient = "billscan:upload:client:%s"
	keyIngestLock   = "billscan:ingest:lock:%s"

	uploadRate  = 0.5 // tokens per second, i.e. one upload every 2s sustained
	uploadBurst = 5
	ingestTTL   = 5 * time.Minute
)

// UploadLimiter throttles uploads per client and serializes ingestion per
// document hash. When Redis is not configured every call allows.
type UploadLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker
}

func NewUploadLimiter(cfg config.Config) *UploadLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return &UploadLimiter{}
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	return &UploadLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
	}
}

func (l *UploadLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *UploadLimiter) AllowUpload(ctx context.Context, clientID string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyUploadClient, strings.TrimSpace(clientID)), uploadRate, uploadBurst)
}

// TryLockDocument claims the ingestion lock for a file hash. A second upload
// of the same bytes waits for or rejects while the first is still in flight.
func (l *UploadLimiter) TryLockDocument(ctx context.Context, fileHash string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keyIngestLock, fileHash), ingestTTL)
}

func (l *UploadLimiter) ReleaseDocument(ctx context.Context, fileHash, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keyIngestLock, fileHash), token)
}
