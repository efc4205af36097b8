package images

import (
	"fmt"
	"strings"

	"github.com/containers/image/v5/docker/reference"
	"github.com/opencontainers/go-digest"
)

// parseDigest accepts either an algorithm-prefixed digest or bare sha256 hex.
func parseDigest(value string) (digest.Digest, error) {
	if !strings.Contains(value, ":") {
		value = string(digest.SHA256) + ":" + value
	}
	d, err := digest.Parse(value)
	if err != nil {
		return "", fmt.Errorf("invalid digest %q: %w", value, err)
	}
	return d, nil
}

// pinned reports the name and digest of imageName if it already names a digest.
func pinned(imageName string) (*ResolvedImage, bool, error) {
	named, err := reference.ParseNormalizedNamed(imageName)
	if err != nil {
		return nil, false, fmt.Errorf("parsing image reference %q: %w", imageName, err)
	}
	digested, ok := named.(reference.Digested)
	if !ok {
		return nil, false, nil
	}
	return &ResolvedImage{
		Name:    reference.FamiliarName(named),
		Digest:  digested.Digest().String(),
		FullRef: imageName,
	}, true, nil
}

// pinTo replaces any tag on imageName with d, keeping the short form the user wrote.
func pinTo(imageName string, d digest.Digest) (string, error) {
	named, err := reference.ParseNormalizedNamed(imageName)
	if err != nil {
		return "", fmt.Errorf("parsing image reference %q: %w", imageName, err)
	}
	canonical, err := reference.WithDigest(reference.TrimNamed(named), d)
	if err != nil {
		return "", fmt.Errorf("pinning %q: %w", imageName, err)
	}
	return reference.FamiliarString(canonical), nil
}
