package storage

import (
	"strings"
	"testing"
)

func TestCloudinaryAvatars_AvatarURL(t *testing.T) {
	avatars, err := NewCloudinaryAvatars("demo", "c_fill,h_128,w_128")
	if err != nil {
		t.Fatalf("NewCloudinaryAvatars() error = %v", err)
	}

	url, err := avatars.AvatarURL("avatars/ada")
	if err != nil {
		t.Fatalf("AvatarURL() error = %v", err)
	}
	for _, part := range []string{"https://", "demo", "avatars/ada", "c_fill"} {
		if !strings.Contains(url, part) {
			t.Errorf("url = %s, want it to contain %s", url, part)
		}
	}

	if _, err := avatars.AvatarURL(""); err == nil {
		t.Error("expected error for empty public id")
	}
}

func TestNewCloudinaryAvatars_RequiresCloudName(t *testing.T) {
	if _, err := NewCloudinaryAvatars("  ", ""); err == nil {
		t.Error("expected error for blank cloud name")
	}
}

func TestStaticAvatars(t *testing.T) {
	url, err := StaticAvatars{BaseURL: "https://cdn.test/"}.AvatarURL("/a/b.png")
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://cdn.test/a/b.png" {
		t.Errorf("url = %s, want https://cdn.test/a/b.png", url)
	}
}
