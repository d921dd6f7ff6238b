package service

import (
	"context"
	"time"

	"gowork_messaging/internal/repository"
	"gowork_messaging/pkg/logger"
)

type RateLimitService interface {
	Allow(ctx context.Context, key string, limit int, windowSeconds int) (bool, int64, error)
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, log logger.Logger) RateLimitService {
	return &rateLimitService{rateLimitRepo: rateLimitRepo, log: log}
}

func (s *rateLimitService) Allow(ctx context.Context, key string, limit int, windowSeconds int) (bool, int64, error) {
	return s.rateLimitRepo.Allow(ctx, key, limit, time.Duration(windowSeconds)*time.Second)
}
