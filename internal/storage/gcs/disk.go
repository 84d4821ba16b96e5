// Package gcs provides a storage disk backed by Google Cloud Storage via
// the JSON API, authenticating with a service account or the instance
// metadata server.
package gcs

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mediakit-go/mediakit/pkg/config"
	"github.com/mediakit-go/mediakit/pkg/errors"
	"github.com/mediakit-go/mediakit/pkg/logger"
)

const (
	tokenEndpoint = "https://oauth2.googleapis.com/token"
	scope         = "https://www.googleapis.com/auth/devstorage.read_write"
	pingTimeout   = 5 * time.Second
	metadataToken = "http://metadata.google.internal/computeMetadata/v1/instance/service-accounts/default/token"
)

// Disk stores objects in a single GCS bucket. Objects written through it
// are publicly readable via storage.googleapis.com.
type Disk struct {
	httpClient  *http.Client
	bucket      string
	tokenSource *tokenSource
}

func NewDisk(ctx context.Context, bucket string, gcp config.GCPConfig, logg *logger.Logger) (*Disk, error) {
	if bucket == "" {
		return nil, errors.New(errors.CodeValidation, "gcs bucket name is required")
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	var ts *tokenSource
	var err error
	switch {
	case gcp.CredentialsJSON != "":
		ts, err = newServiceAccountTokenSource(httpClient, gcp.CredentialsJSON)
	case gcp.ApplicationCredentials != "":
		raw, readErr := os.ReadFile(gcp.ApplicationCredentials)
		if readErr != nil {
			return nil, fmt.Errorf("reading credentials file: %w", readErr)
		}
		ts, err = newServiceAccountTokenSource(httpClient, string(raw))
	default:
		ts = newMetadataTokenSource(httpClient)
	}
	if err != nil {
		return nil, err
	}

	d := &Disk{httpClient: httpClient, bucket: bucket, tokenSource: ts}

	if err := d.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "gcs disk initialized")
	}

	return d, nil
}

func (d *Disk) Name() string { return "gcs" }

func (d *Disk) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	u := fmt.Sprintf(
		"https://storage.googleapis.com/storage/v1/b/%s/o?maxResults=1",
		url.PathEscape(d.bucket),
	)
	resp, err := d.do(ctx, http.MethodGet, u, nil, "")
	if err != nil {
		return err
	}
	defer drainClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gcs bucket check failed: %s", resp.Status)
	}
	return nil
}

func (d *Disk) do(ctx context.Context, method, u string, body io.Reader, contentType string) (*http.Response, error) {
	token, err := d.tokenSource.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return d.httpClient.Do(req)
}

func (d *Disk) objectURL(path string) string {
	return fmt.Sprintf(
		"https://storage.googleapis.com/storage/v1/b/%s/o/%s",
		url.PathEscape(d.bucket), url.PathEscape(path),
	)
}

func (d *Disk) Put(ctx context.Context, path string, data []byte) error {
	u := fmt.Sprintf(
		"https://storage.googleapis.com/upload/storage/v1/b/%s/o?uploadType=media&name=%s",
		url.PathEscape(d.bucket), url.QueryEscape(path),
	)
	resp, err := d.do(ctx, http.MethodPost, u, bytes.NewReader(data), "application/octet-stream")
	if err != nil {
		return errors.Wrap(errors.CodeStorageWrite, err, fmt.Sprintf("uploading %s", path))
	}
	defer drainClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.CodeStorageWrite, fmt.Sprintf("uploading %s: %s", path, resp.Status))
	}
	return nil
}

func (d *Disk) Get(ctx context.Context, path string) ([]byte, error) {
	resp, err := d.do(ctx, http.MethodGet, d.objectURL(path)+"?alt=media", nil, "")
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, fmt.Sprintf("downloading %s", path))
	}
	defer drainClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)
	case http.StatusNotFound:
		return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("object %s not found", path))
	default:
		return nil, errors.New(errors.CodeInternal, fmt.Sprintf("downloading %s: %s", path, resp.Status))
	}
}

func (d *Disk) stat(ctx context.Context, path string) (int64, bool, error) {
	resp, err := d.do(ctx, http.MethodGet, d.objectURL(path), nil, "")
	if err != nil {
		return 0, false, errors.Wrap(errors.CodeInternal, err, fmt.Sprintf("stat %s", path))
	}
	defer drainClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		var meta struct {
			Size string `json:"size"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
			return 0, false, err
		}
		size, _ := strconv.ParseInt(meta.Size, 10, 64)
		return size, true, nil
	case http.StatusNotFound:
		return 0, false, nil
	default:
		return 0, false, errors.New(errors.CodeInternal, fmt.Sprintf("stat %s: %s", path, resp.Status))
	}
}

func (d *Disk) Exists(ctx context.Context, path string) (bool, error) {
	_, ok, err := d.stat(ctx, path)
	return ok, err
}

func (d *Disk) Size(ctx context.Context, path string) (int64, error) {
	size, ok, err := d.stat(ctx, path)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.New(errors.CodeNotFound, fmt.Sprintf("object %s not found", path))
	}
	return size, nil
}

func (d *Disk) Delete(ctx context.Context, path string) error {
	resp, err := d.do(ctx, http.MethodDelete, d.objectURL(path), nil, "")
	if err != nil {
		return errors.Wrap(errors.CodeStorageDelete, err, fmt.Sprintf("deleting %s", path))
	}
	defer drainClose(resp.Body)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return errors.New(errors.CodeStorageDelete, fmt.Sprintf("deleting %s: %s", path, resp.Status))
	}
	return nil
}

func (d *Disk) DeleteDir(ctx context.Context, prefix string) error {
	names, err := d.list(ctx, strings.TrimRight(prefix, "/")+"/")
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := d.Delete(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (d *Disk) list(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	pageToken := ""
	for {
		u := fmt.Sprintf(
			"https://storage.googleapis.com/storage/v1/b/%s/o?prefix=%s",
			url.PathEscape(d.bucket), url.QueryEscape(prefix),
		)
		if pageToken != "" {
			u += "&pageToken=" + url.QueryEscape(pageToken)
		}
		resp, err := d.do(ctx, http.MethodGet, u, nil, "")
		if err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, fmt.Sprintf("listing %s", prefix))
		}

		var page struct {
			Items []struct {
				Name string `json:"name"`
			} `json:"items"`
			NextPageToken string `json:"nextPageToken"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&page)
		drainClose(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return nil, errors.New(errors.CodeInternal, fmt.Sprintf("listing %s: %s", prefix, resp.Status))
		}
		if decodeErr != nil {
			return nil, decodeErr
		}

		for _, item := range page.Items {
			names = append(names, item.Name)
		}
		if page.NextPageToken == "" {
			return names, nil
		}
		pageToken = page.NextPageToken
	}
}

func (d *Disk) URL(path string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", d.bucket, path)
}

func drainClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}

type tokenSource struct {
	mu     sync.Mutex
	token  string
	expiry time.Time
	fetch  func(context.Context) (string, time.Time, error)
}

func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Until(t.expiry) > time.Minute {
		return t.token, nil
	}

	token, expiry, err := t.fetch(ctx)
	if err != nil {
		return "", err
	}
	t.token = token
	t.expiry = expiry
	return token, nil
}

func newServiceAccountTokenSource(client *http.Client, jsonCreds string) (*tokenSource, error) {
	var creds struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
		TokenURI    string `json:"token_uri"`
	}
	if err := json.Unmarshal([]byte(jsonCreds), &creds); err != nil {
		return nil, fmt.Errorf("parsing service account credentials: %w", err)
	}
	if creds.ClientEmail == "" || creds.PrivateKey == "" {
		return nil, fmt.Errorf("invalid service account credentials")
	}
	tokenURI := creds.TokenURI
	if tokenURI == "" {
		tokenURI = tokenEndpoint
	}
	priv, err := parsePrivateKey(creds.PrivateKey)
	if err != nil {
		return nil, err
	}

	return &tokenSource{
		fetch: func(ctx context.Context) (string, time.Time, error) {
			return fetchServiceAccountToken(ctx, client, creds.ClientEmail, priv, tokenURI)
		},
	}, nil
}

func newMetadataTokenSource(client *http.Client) *tokenSource {
	return &tokenSource{
		fetch: func(ctx context.Context) (string, time.Time, error) {
			return fetchMetadataToken(ctx, client)
		},
	}
}

func fetchServiceAccountToken(ctx context.Context, client *http.Client, email string, key *rsa.PrivateKey, tokenURI string) (string, time.Time, error) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	now := time.Now()
	claims := map[string]any{
		"iss":   email,
		"scope": scope,
		"aud":   tokenURI,
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
	}
	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	unsigned := header + "." + payload
	signature, err := signJWT(unsigned, key)
	if err != nil {
		return "", time.Time{}, err
	}
	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", unsigned+"."+signature)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer drainClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("token endpoint returned %s", resp.Status)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", time.Time{}, err
	}

	return tokenResp.AccessToken, time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second), nil
}

func fetchMetadataToken(ctx context.Context, client *http.Client) (string, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataToken, nil)
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Metadata-Flavor", "Google")
	resp, err := client.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer drainClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("metadata token request returned %s", resp.Status)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", time.Time{}, err
	}

	return tokenResp.AccessToken, time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second), nil
}

func parsePrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("invalid private key")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		if priv, ok := key.(*rsa.PrivateKey); ok {
			return priv, nil
		}
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("unsupported private key format")
	}
	return priv, nil
}

func signJWT(unsigned string, key *rsa.PrivateKey) (string, error) {
	hash := sha256.Sum256([]byte(unsigned))
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hash[:])
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(signature), nil
}
