// Package r2s3 uploads objects to an S3-compatible bucket (Cloudflare R2 in
// production) with SigV4 request signing.
package r2s3

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

const (
	sigV4Algorithm = "AWS4-HMAC-SHA256"
	sigV4Region    = "auto"
	sigV4Service   = "s3"
)

type Client struct {
	endpoint        string
	bucket          string
	accessKeyID     string
	secretAccessKey string
	httpClient      *http.Client
	now             func() time.Time
}

func New(endpoint, bucket, accessKeyID, secretAccessKey string) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	bucket = strings.TrimSpace(bucket)
	accessKeyID = strings.TrimSpace(accessKeyID)
	secretAccessKey = strings.TrimSpace(secretAccessKey)

	if endpoint == "" || bucket == "" || accessKeyID == "" || secretAccessKey == "" {
		return nil, fmt.Errorf("endpoint/bucket/access key/secret key are required")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint: %s", endpoint)
	}

	base := strings.TrimRight(u.String(), "/")
	return &Client{
		endpoint:        base,
		bucket:          bucket,
		accessKeyID:     accessKeyID,
		secretAccessKey: secretAccessKey,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		now: time.Now,
	}, nil
}

// PutFile uploads a local file under objectKey.
func (c *Client) PutFile(ctx context.Context, objectKey, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("path is directory: %s", localPath)
	}
	payloadHash, err := readerSHA256Hex(f)
	if err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return c.put(ctx, objectKey, "application/octet-stream", f, st.Size(), payloadHash)
}

// PutObject uploads an in-memory body.
func (c *Client) PutObject(ctx context.Context, objectKey, contentType string, body []byte) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return c.put(ctx, objectKey, contentType, bytes.NewReader(body), int64(len(body)), sha256Hex(body))
}

func (c *Client) put(ctx context.Context, objectKey, contentType string, body io.Reader, size int64, payloadHash string) error {
	objectKey = normalizeObjectKey(objectKey)
	if objectKey == "" {
		return fmt.Errorf("empty object key")
	}
	uri := "/" + c.bucket + "/" + escapePath(objectKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint+uri, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = size
	signer{c.accessKeyID, c.secretAccessKey}.sign(req, uri, payloadHash, c.now())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		return nil
	}
	return putError(resp, objectKey)
}

func putError(resp *http.Response, objectKey string) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return fmt.Errorf("r2 put %s: status=%d %s", objectKey, resp.StatusCode, bytes.TrimSpace(detail))
}

// signer computes SigV4 header signatures for one key pair.
type signer struct {
	accessKeyID string
	secret      string
}

// Headers covered by the signature, in canonical (sorted) order.
var signedHeaders = []string{"host", "x-amz-content-sha256", "x-amz-date"}

// sign stamps req with its date and payload hash and sets Authorization.
// uri is the already escaped request path.
func (s signer) sign(req *http.Request, uri, payloadHash string, at time.Time) {
	at = at.UTC()
	stamp := at.Format("20060102T150405Z")
	day := stamp[:8]
	req.Header.Set("x-amz-date", stamp)
	req.Header.Set("x-amz-content-sha256", payloadHash)

	var canon strings.Builder
	fmt.Fprintf(&canon, "%s\n%s\n%s\n", req.Method, uri, req.URL.RawQuery)
	for _, h := range signedHeaders {
		v := req.Header.Get(h)
		if h == "host" {
			v = req.URL.Host
		}
		fmt.Fprintf(&canon, "%s:%s\n", h, strings.TrimSpace(v))
	}
	list := strings.Join(signedHeaders, ";")
	fmt.Fprintf(&canon, "\n%s\n%s", list, payloadHash)

	scope := day + "/" + sigV4Region + "/" + sigV4Service + "/aws4_request"
	toSign := sigV4Algorithm + "\n" + stamp + "\n" + scope + "\n" + sha256Hex([]byte(canon.String()))

	key := []byte("AWS4" + s.secret)
	for _, part := range []string{day, sigV4Region, sigV4Service, "aws4_request"} {
		key = hmacSHA256(key, []byte(part))
	}
	req.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%x",
		sigV4Algorithm, s.accessKeyID, scope, list, hmacSHA256(key, []byte(toSign))))
}

func normalizeObjectKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return ""
	}
	clean := path.Clean("/" + key)
	clean = strings.TrimPrefix(clean, "/")
	if clean == "." || strings.HasPrefix(clean, "../") {
		return ""
	}
	return clean
}

func escapePath(p string) string {
	if p == "" {
		return ""
	}
	parts := strings.Split(p, "/")
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return strings.Join(parts, "/")
}

func readerSHA256Hex(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	_, _ = h.Write(data)
	return h.Sum(nil)
}
