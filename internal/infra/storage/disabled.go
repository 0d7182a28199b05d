package storage

import "context"

// Disabled is the ArtifactStore used when no object storage is
// configured. Uploads vanish and statuses carry no artifact URL.
type Disabled struct{}

func (Disabled) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return "", nil
}
