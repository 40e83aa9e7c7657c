package storage

import (
	"fmt"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
)

// AvatarResolver turns a stored avatar public ID into a delivery URL.
type AvatarResolver interface {
	AvatarURL(publicID string) (string, error)
}

type cloudinaryAvatars struct {
	cld       *cloudinary.Cloudinary
	transform string
}

// NewCloudinaryAvatars builds delivery URLs only, so no API key is needed.
// transform is a Cloudinary transformation string such as "c_fill,w_128,h_128".
func NewCloudinaryAvatars(cloudName, transform string) (AvatarResolver, error) {
	if strings.TrimSpace(cloudName) == "" {
		return nil, fmt.Errorf("cloudinary cloud name is required")
	}

	cld, err := cloudinary.NewFromParams(cloudName, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary client: %w", err)
	}

	// Ensure HTTPS URLs by default.
	cld.Config.URL.Secure = true

	return &cloudinaryAvatars{cld: cld, transform: transform}, nil
}

func (s *cloudinaryAvatars) AvatarURL(publicID string) (string, error) {
	if publicID == "" {
		return "", fmt.Errorf("empty avatar public id")
	}

	img, err := s.cld.Image(publicID)
	if err != nil {
		return "", fmt.Errorf("failed to build avatar asset: %w", err)
	}
	img.Transformation = s.transform

	url, err := img.String()
	if err != nil {
		return "", fmt.Errorf("failed to build avatar url: %w", err)
	}
	return url, nil
}

// StaticAvatars resolves against a fixed base URL. Used when Cloudinary is not configured.
type StaticAvatars struct {
	BaseURL string
}

func (s StaticAvatars) AvatarURL(publicID string) (string, error) {
	if publicID == "" {
		return "", fmt.Errorf("empty avatar public id")
	}
	return strings.TrimRight(s.BaseURL, "/") + "/" + strings.TrimLeft(publicID, "/"), nil
}
