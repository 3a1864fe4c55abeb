package remote

import (
	"context"
	"fmt"

	"github.com/imroc/req/v3"
	"github.com/noahbaxter/chartsync/internal/manifest"
)

// ManifestSource fetches the pre-built manifest document published
// alongside the remote tree.
type ManifestSource struct {
	url    string
	client *req.Client
}

func NewManifestSource(url string) *ManifestSource {
	return &ManifestSource{
		url:    url,
		client: req.C(),
	}
}

// FetchManifest downloads and validates the manifest. A manifest that does
// not validate is rejected whole.
func (s *ManifestSource) FetchManifest(ctx context.Context) (*manifest.Manifest, error) {
	resp, err := s.client.R().SetContext(ctx).Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("remote: fetch manifest %q: %w", s.url, err)
	}
	if resp.IsErrorState() {
		return nil, fmt.Errorf("remote: fetch manifest %q: status %d", s.url, resp.GetStatusCode())
	}

	m, err := manifest.Parse(resp.Bytes())
	if err != nil {
		return nil, fmt.Errorf("remote: fetch manifest %q: %w", s.url, err)
	}
	return m, nil
}
