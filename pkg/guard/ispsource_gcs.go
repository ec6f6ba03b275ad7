package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSISPSource loads institutional ISP profile JSON documents from a
// GCS bucket, mirroring DirectoryISPSource's layout as object names:
// <prefix><domain_id>.json for customized profiles, falling back to
// <prefix>templates/<domain_id>.json for onboarding boilerplate.
type GCSISPSource struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSISPSourceConfig configures a GCSISPSource.
type GCSISPSourceConfig struct {
	Bucket string
	Prefix string
}

// NewGCSISPSource constructs a GCSISPSource against cfg.Bucket, using
// Application Default Credentials.
func NewGCSISPSource(ctx context.Context, cfg GCSISPSourceConfig) (*GCSISPSource, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("isp source: gcs client: %w", err)
	}
	return &GCSISPSource{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// ListDomains enumerates objects directly under prefix, skipping the
// templates/ subdirectory so only customized domains are watched for
// drift.
func (s *GCSISPSource) ListDomains(ctx context.Context) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix})
	var domains []string
	for {
		obj, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("isp source: list %s: %w", s.bucket, err)
		}
		name := strings.TrimPrefix(obj.Name, s.prefix)
		if strings.Contains(name, "/") || !strings.HasSuffix(name, ".json") {
			continue
		}
		domains = append(domains, strings.TrimSuffix(name, ".json"))
	}
	return domains, nil
}

// LoadProfile reads the domain's object, falling back to its
// templates/ counterpart.
func (s *GCSISPSource) LoadProfile(ctx context.Context, domainID string) (map[string]interface{}, []byte, bool, error) {
	data, err := s.readObject(ctx, s.prefix+domainID+".json")
	isTemplate := false
	if err != nil {
		data, err = s.readObject(ctx, s.prefix+"templates/"+domainID+".json")
		if err != nil {
			return nil, nil, false, fmt.Errorf("isp source: load %s: %w", domainID, err)
		}
		isTemplate = true
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, false, fmt.Errorf("isp source: parse %s: %w", domainID, err)
	}
	if inlineTemplate(raw) {
		isTemplate = true
	}
	return raw, data, isTemplate, nil
}

func (s *GCSISPSource) readObject(ctx context.Context, name string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

// Close releases the underlying GCS client.
func (s *GCSISPSource) Close() error { return s.client.Close() }
