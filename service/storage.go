package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"tally/apperr"
	"tally/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// avatarGetExpire 头像预签名 GET 地址有效期
const avatarGetExpire = time.Hour

// objectPresigner *s3.PresignClient 的子集
type objectPresigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// UploadTicket 直传凭证：客户端向 UploadURL 发起 PUT，再把 StorageKey 写入资料
type UploadTicket struct {
	UploadURL  string    `json:"upload_url"`
	StorageKey string    `json:"storage_key"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// StorageService S3 兼容对象存储，只负责签发地址，不经手文件内容
type StorageService struct {
	cfg       *config.StorageConfig
	presigner objectPresigner
	now       Clock
}

// AvatarKeyPrefix 用户头像 key 前缀
func AvatarKeyPrefix(userID uint) string {
	return fmt.Sprintf("avatars/%d/", userID)
}

// NewStorageService 按配置创建 S3 客户端，未启用时返回的服务只会报错
func NewStorageService(ctx context.Context, cfg *config.StorageConfig) (*StorageService, error) {
	s := &StorageService{cfg: cfg, now: time.Now}
	if !cfg.Enabled {
		return s, nil
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("对象存储缺少 bucket 配置")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("加载 AWS 配置失败: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	s.presigner = s3.NewPresignClient(client)
	log.Printf("对象存储已启用: bucket=%s region=%s", cfg.Bucket, region)
	return s, nil
}

// Enabled 是否已配置对象存储
func (s *StorageService) Enabled() bool {
	return s != nil && s.presigner != nil
}

func (s *StorageService) uploadExpire() time.Duration {
	minutes := s.cfg.UploadExpireMinutes
	if minutes <= 0 {
		minutes = 15
	}
	return time.Duration(minutes) * time.Minute
}

// GenerateUploadURL 为用户头像签发一次性 PUT 地址
func (s *StorageService) GenerateUploadURL(ctx context.Context, userID uint) (*UploadTicket, error) {
	if userID == 0 {
		return nil, apperr.Authentication("Unauthorized: You must be signed in to upload images")
	}
	if !s.Enabled() {
		return nil, apperr.Internal("storage is not configured")
	}

	key := AvatarKeyPrefix(userID) + uuid.NewString()
	expire := s.uploadExpire()
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = expire
	})
	if err != nil {
		return nil, apperr.Internalf(err, "failed to presign upload")
	}
	return &UploadTicket{
		UploadURL:  req.URL,
		StorageKey: key,
		ExpiresAt:  s.now().Add(expire),
	}, nil
}

// AvatarURL 配置了公共地址时直接拼接，否则签发 GET 地址；失败或未启用返回空串
func (s *StorageService) AvatarURL(ctx context.Context, key string) string {
	if key == "" || s == nil || s.cfg == nil {
		return ""
	}
	if base := strings.TrimRight(s.cfg.PublicBaseURL, "/"); base != "" {
		return base + "/" + key
	}
	if !s.Enabled() {
		return ""
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = avatarGetExpire
	})
	if err != nil {
		log.Printf("签发头像地址失败 key=%s: %v", key, err)
		return ""
	}
	return req.URL
}
