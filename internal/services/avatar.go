package services

import (
	"context"
	"fmt"
	"io"

	"github.com/accountd/apiserver/internal/storage"
)

// AvatarService stores profile pictures in object storage, keyed by user id.
type AvatarService struct {
	storage *storage.Storage
}

func NewAvatarService(st *storage.Storage) *AvatarService {
	return &AvatarService{storage: st}
}

func (s *AvatarService) Upload(ctx context.Context, userID string, r io.Reader, size int64, contentType string) error {
	return s.storage.Put(ctx, avatarKey(userID), r, size, contentType)
}

func (s *AvatarService) Get(ctx context.Context, userID string) (io.ReadCloser, error) {
	return s.storage.Get(ctx, avatarKey(userID))
}

func (s *AvatarService) Delete(ctx context.Context, userID string) error {
	return s.storage.Delete(ctx, avatarKey(userID))
}

func avatarKey(userID string) string {
	return fmt.Sprintf("avatars/%s", userID)
}
