package tracking

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Схемы artifact_uri.
const (
	schemeMLflowArtifacts = "mlflow-artifacts"
	schemeS3              = "s3"
)

// LogArtifact загружает локальный файл в артефакты run.
// artifactPath — каталог внутри артефактов run ("" — корень).
func (c *Client) LogArtifact(ctx context.Context, run *Run, localPath, artifactPath string) error {
	dest := path.Join(artifactPath, filepath.Base(localPath))

	u, err := url.Parse(run.ArtifactURI)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrUnsupportedArtifactURI, run.ArtifactURI, err)
	}

	switch u.Scheme {
	case schemeMLflowArtifacts:
		err = c.putProxied(ctx, u.Path, dest, localPath)
	case schemeS3:
		err = c.putS3(ctx, u, dest, localPath)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedArtifactURI, run.ArtifactURI)
	}
	if err != nil {
		return fmt.Errorf("log artifact %s: %w", dest, err)
	}

	c.logger.Debug("artifact logged", "tracking_run_id", run.ID, "artifact", dest)
	return nil
}

// putProxied загружает файл через proxied artifact storage tracking server.
func (c *Client) putProxied(ctx context.Context, root, dest, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}

	endpoint := c.baseURL + "/api/2.0/mlflow-artifacts/artifacts/" +
		escapePath(path.Join(strings.TrimPrefix(root, "/"), dest))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, f)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("PUT artifact: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, body)
	}
	return nil
}

// putS3 загружает файл напрямую в S3-хранилище артефактов.
func (c *Client) putS3(ctx context.Context, u *url.URL, dest, localPath string) error {
	if c.uploader == nil {
		return fmt.Errorf("%w: %s:// requires an object storage uploader", ErrUnsupportedArtifactURI, u.Scheme)
	}

	key := path.Join(strings.TrimPrefix(u.Path, "/"), dest)
	return c.uploader.Upload(ctx, u.Host, key, localPath)
}

// escapePath экранирует каждый сегмент пути отдельно.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
