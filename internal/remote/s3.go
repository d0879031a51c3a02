package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Object tag marking a version that lifecycle rules must not expire.
const (
	keepTagKey   = "savehaven-keep"
	keepTagValue = "forever"
)

// S3Options configures an S3Store
type S3Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store implements Store on a versioned S3 bucket. Folders are key
// prefixes with a zero-byte marker object; file IDs are object keys and
// revision IDs are object version IDs.
type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	endpoint   string
}

// NewS3Store creates a new S3 store. Static credentials are used when given,
// otherwise the default AWS credential chain applies.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		// Most S3-compatible services need path-style addressing
		o.UsePathStyle = opts.PathStyle || opts.Endpoint != ""
	})

	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     opts.Bucket,
		endpoint:   opts.Endpoint,
	}, nil
}

// Name returns the provider name
func (s *S3Store) Name() string {
	if s.endpoint != "" {
		return "S3-compatible (" + s.endpoint + ")"
	}
	return "AWS S3"
}

func folderKey(name, parentID string) string {
	return parentID + strings.Trim(name, "/") + "/"
}

func (s *S3Store) FindFolder(ctx context.Context, name, parentID string) (string, bool, error) {
	key := folderKey(name, parentID)

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return key, true, nil
	}
	if !isNotFound(err) {
		return "", false, fmt.Errorf("failed to check S3 folder: %w", err)
	}

	// Prefixes created by other tools have no marker object
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(key),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to list S3 folder: %w", err)
	}
	return key, len(out.Contents) > 0, nil
}

func (s *S3Store) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	key := folderKey(name, parentID)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          strings.NewReader(""),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create S3 folder: %w", err)
	}
	return key, nil
}

func (s *S3Store) ListChildren(ctx context.Context, folderID string) ([]File, error) {
	var files []File

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(folderID),
		Delimiter: aws.String("/"),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			if f, ok := objectToFile(folderID, obj); ok {
				files = append(files, f)
			}
		}
		for _, p := range page.CommonPrefixes {
			prefix := aws.ToString(p.Prefix)
			files = append(files, File{
				ID:       prefix,
				Name:     strings.TrimSuffix(strings.TrimPrefix(prefix, folderID), "/"),
				IsFolder: true,
			})
		}
	}

	return files, nil
}

func objectToFile(folderID string, obj types.Object) (File, bool) {
	key := aws.ToString(obj.Key)
	if key == folderID || strings.HasSuffix(key, "/") {
		return File{}, false
	}
	return File{
		ID:         key,
		Name:       strings.TrimPrefix(key, folderID),
		ModifiedAt: EpochSeconds(aws.ToTime(obj.LastModified)),
		Size:       aws.ToInt64(obj.Size),
	}, true
}

func (s *S3Store) Upload(ctx context.Context, localPath, name, parentID string) (string, error) {
	key := parentID + name
	if err := s.put(ctx, localPath, key); err != nil {
		return "", err
	}
	return key, nil
}

// UpdateContent writes a new object version under the same key
func (s *S3Store) UpdateContent(ctx context.Context, fileID, localPath string) (string, error) {
	if err := s.put(ctx, localPath, fileID); err != nil {
		return "", err
	}
	return fileID, nil
}

func (s *S3Store) put(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, fileID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fileID),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

func (s *S3Store) Download(ctx context.Context, fileID, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	_, err = s.downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fileID),
	})
	if err != nil {
		os.Remove(localPath) // Clean up partial file
		if isNotFound(err) {
			return fmt.Errorf("%s: %w", fileID, ErrNotFound)
		}
		return fmt.Errorf("failed to download from S3: %w", err)
	}

	return nil
}

func (s *S3Store) ListRevisions(ctx context.Context, fileID string) ([]Revision, error) {
	var revs []Revision

	input := &s3.ListObjectVersionsInput{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fileID),
	}
	for {
		page, err := s.client.ListObjectVersions(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to list object versions: %w", err)
		}

		for _, v := range page.Versions {
			if aws.ToString(v.Key) != fileID {
				continue
			}
			rev := Revision{
				ID:         aws.ToString(v.VersionId),
				ModifiedAt: EpochSeconds(aws.ToTime(v.LastModified)),
				Size:       aws.ToInt64(v.Size),
				Latest:     aws.ToBool(v.IsLatest),
			}
			tags, err := s.versionTags(ctx, fileID, rev.ID)
			if err != nil {
				return nil, err
			}
			rev.KeepForever = hasKeepTag(tags)
			revs = append(revs, rev)
		}

		if !aws.ToBool(page.IsTruncated) {
			break
		}
		input.KeyMarker = page.NextKeyMarker
		input.VersionIdMarker = page.NextVersionIdMarker
	}

	sort.SliceStable(revs, func(i, j int) bool {
		return revs[i].ModifiedAt < revs[j].ModifiedAt
	})
	return revs, nil
}

// SetRevisionRetained tags the object version so lifecycle rules skip it.
// Existing tags are preserved.
func (s *S3Store) SetRevisionRetained(ctx context.Context, fileID, revisionID string) error {
	tags, err := s.versionTags(ctx, fileID, revisionID)
	if err != nil {
		return err
	}
	if hasKeepTag(tags) {
		return nil
	}

	tags = append(tags, types.Tag{Key: aws.String(keepTagKey), Value: aws.String(keepTagValue)})
	_, err = s.client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket:    aws.String(s.bucket),
		Key:       aws.String(fileID),
		VersionId: aws.String(revisionID),
		Tagging:   &types.Tagging{TagSet: tags},
	})
	if err != nil {
		return fmt.Errorf("failed to tag object version: %w", err)
	}
	return nil
}

func (s *S3Store) versionTags(ctx context.Context, key, versionID string) ([]types.Tag, error) {
	out, err := s.client.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket:    aws.String(s.bucket),
		Key:       aws.String(key),
		VersionId: aws.String(versionID),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s@%s: %w", key, versionID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read object tags: %w", err)
	}
	return out.TagSet, nil
}

func hasKeepTag(tags []types.Tag) bool {
	for _, t := range tags {
		if aws.ToString(t.Key) == keepTagKey && aws.ToString(t.Value) == keepTagValue {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchVersion":
			return true
		}
	}
	return false
}
