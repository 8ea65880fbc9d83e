package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tally/apperr"
	"tally/config"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresigner struct {
	expires time.Duration
	err     error
}

func (p *fakePresigner) PresignPutObject(_ context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if p.err != nil {
		return nil, p.err
	}
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	p.expires = opts.Expires
	return &v4.PresignedHTTPRequest{Method: "PUT", URL: "https://s3.example.com/" + *in.Bucket + "/" + *in.Key + "?sig=put"}, nil
}

func (p *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &v4.PresignedHTTPRequest{Method: "GET", URL: "https://s3.example.com/" + *in.Bucket + "/" + *in.Key + "?sig=get"}, nil
}

func newTestStorage(cfg *config.StorageConfig, p objectPresigner) *StorageService {
	clock := newFakeClock()
	return &StorageService{cfg: cfg, presigner: p, now: clock.Now}
}

func TestStorageService_GenerateUploadURL(t *testing.T) {
	p := &fakePresigner{}
	s := newTestStorage(&config.StorageConfig{Enabled: true, Bucket: "tally", UploadExpireMinutes: 10}, p)

	ticket, err := s.GenerateUploadURL(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ticket.StorageKey, "avatars/42/"))
	assert.Len(t, strings.TrimPrefix(ticket.StorageKey, "avatars/42/"), 36)
	assert.Contains(t, ticket.UploadURL, ticket.StorageKey)
	assert.Equal(t, 10*time.Minute, p.expires)
	assertSameTime(t, baseTime.Add(10*time.Minute), ticket.ExpiresAt)

	other, err := s.GenerateUploadURL(context.Background(), 42)
	require.NoError(t, err)
	assert.NotEqual(t, ticket.StorageKey, other.StorageKey)

	_, err = s.GenerateUploadURL(context.Background(), 0)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthentication))

	p.err = errors.New("boom")
	_, err = s.GenerateUploadURL(context.Background(), 42)
	assert.True(t, apperr.IsKind(err, apperr.KindInternal))
}

func TestStorageService_Disabled(t *testing.T) {
	s, err := NewStorageService(context.Background(), &config.StorageConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	_, err = s.GenerateUploadURL(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInternal))
	assert.Equal(t, "storage is not configured", err.Error())
	assert.Equal(t, "", s.AvatarURL(context.Background(), "avatars/1/x"))
}

func TestStorageService_AvatarURL(t *testing.T) {
	ctx := context.Background()

	public := newTestStorage(&config.StorageConfig{Enabled: true, Bucket: "tally", PublicBaseURL: "https://cdn.example.com/"}, &fakePresigner{})
	assert.Equal(t, "https://cdn.example.com/avatars/1/x", public.AvatarURL(ctx, "avatars/1/x"))
	assert.Equal(t, "", public.AvatarURL(ctx, ""))

	signed := newTestStorage(&config.StorageConfig{Enabled: true, Bucket: "tally"}, &fakePresigner{})
	assert.Equal(t, "https://s3.example.com/tally/avatars/1/x?sig=get", signed.AvatarURL(ctx, "avatars/1/x"))

	failing := newTestStorage(&config.StorageConfig{Enabled: true, Bucket: "tally"}, &fakePresigner{err: errors.New("boom")})
	assert.Equal(t, "", failing.AvatarURL(ctx, "avatars/1/x"))
}

func TestNewStorageService_RequiresBucket(t *testing.T) {
	_, err := NewStorageService(context.Background(), &config.StorageConfig{Enabled: true})
	assert.Error(t, err)
}

func TestNewStorageService_Enabled(t *testing.T) {
	s, err := NewStorageService(context.Background(), &config.StorageConfig{
		Enabled:   true,
		Bucket:    "tally",
		Region:    "us-east-1",
		Endpoint:  "http://127.0.0.1:9000",
		AccessKey: "minio",
		SecretKey: "minio-secret",
	})
	require.NoError(t, err)
	assert.True(t, s.Enabled())

	// 预签名在本地完成，不访问网络
	ticket, err := s.GenerateUploadURL(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ticket.UploadURL, "http://127.0.0.1:9000/tally/avatars/7/"))
	assert.Contains(t, ticket.UploadURL, "X-Amz-Signature=")
}
