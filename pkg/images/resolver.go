package images

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/containers/image/v5/docker"
	"github.com/containers/image/v5/types"
)

type DigestFunc func(ctx context.Context, imageName string) (string, error)

// Resolver pins runner images to the digest currently published in their registry, so
// every instance of a run uses the same image even if the tag moves mid-run.
type Resolver struct {
	digest  DigestFunc
	cache   map[string]*ResolvedImage
	cacheMu sync.RWMutex
}

type ResolvedImage struct {
	Name    string
	Digest  string
	FullRef string
}

func NewResolver() *Resolver {
	sysCtx := &types.SystemContext{}
	return NewResolverWithDigest(func(ctx context.Context, imageName string) (string, error) {
		return registryDigest(ctx, sysCtx, imageName)
	})
}

func NewResolverWithDigest(digest DigestFunc) *Resolver {
	return &Resolver{
		digest: digest,
		cache:  make(map[string]*ResolvedImage),
	}
}

func (r *Resolver) Resolve(ctx context.Context, imageName string) (*ResolvedImage, error) {
	if resolved, ok, err := pinned(imageName); err != nil {
		return nil, err
	} else if ok {
		return resolved, nil
	}

	r.cacheMu.RLock()
	if cached, ok := r.cache[imageName]; ok {
		r.cacheMu.RUnlock()
		slog.Debug("resolved image from cache", "image", imageName, "digest", cached.Digest)
		return cached, nil
	}
	r.cacheMu.RUnlock()

	raw, err := r.digest(ctx, imageName)
	if err != nil {
		return nil, fmt.Errorf("resolving digest for %q: %w", imageName, err)
	}
	d, err := parseDigest(raw)
	if err != nil {
		return nil, err
	}
	ref, err := pinTo(imageName, d)
	if err != nil {
		return nil, err
	}

	resolved := &ResolvedImage{
		Name:    imageName,
		Digest:  d.String(),
		FullRef: ref,
	}
	slog.Debug("resolved image from registry", "image", imageName, "digest", resolved.Digest)

	r.cacheMu.Lock()
	r.cache[imageName] = resolved
	r.cacheMu.Unlock()

	return resolved, nil
}

// Pin returns imageName with its tag replaced by the resolved digest.
func (r *Resolver) Pin(ctx context.Context, imageName string) (string, error) {
	resolved, err := r.Resolve(ctx, imageName)
	if err != nil {
		return "", err
	}
	return resolved.FullRef, nil
}

func registryDigest(ctx context.Context, sysCtx *types.SystemContext, imageName string) (string, error) {
	ref, err := docker.ParseReference("//" + imageName)
	if err != nil {
		return "", fmt.Errorf("parsing image reference: %w", err)
	}

	digest, err := docker.GetDigest(ctx, sysCtx, ref)
	if err != nil {
		return "", fmt.Errorf("fetching manifest digest: %w", err)
	}
	return digest.String(), nil
}
