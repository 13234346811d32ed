package spacetraveling

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	maxBannerWidth = 1200
	jpegQuality    = 80
	maxBannerSize  = 10 << 20 // 10MB
	bannersSubdir  = "banners"
)

// BannerOptimizer downloads post banners once, scales them down and serves
// them from the static directory instead of the CMS image host.
type BannerOptimizer struct {
	client    *http.Client
	dir       string // directory the JPEGs are written to
	urlPrefix string // public path of dir
}

// NewBannerOptimizer writes banners to <staticDir>/banners, served under
// /public/banners/.
func NewBannerOptimizer(client *http.Client, staticDir string) *BannerOptimizer {
	return &BannerOptimizer{
		client:    client,
		dir:       filepath.Join(staticDir, bannersSubdir),
		urlPrefix: "/public/" + bannersSubdir + "/",
	}
}

// Optimize fetches srcURL and stores the scaled banner of uid. It returns
// the local URL of the banner.
func (b *BannerOptimizer) Optimize(ctx context.Context, uid, srcURL string) (string, error) {
	if srcURL == "" {
		return "", errors.New("banner: empty url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return "", fmt.Errorf("banner: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("banner: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("banner: fetch returned %d", resp.StatusCode)
	}

	data, err := processBanner(io.LimitReader(resp.Body, maxBannerSize))
	if err != nil {
		return "", err
	}

	name := bannerFileName(uid)
	if err := writeFileAtomic(filepath.Join(b.dir, name), data); err != nil {
		return "", fmt.Errorf("banner: write: %w", err)
	}
	return b.urlPrefix + name, nil
}

// bannerFileName names the banner of uid. The slug keeps the name
// readable; the hash keeps uids that slugify alike apart.
func bannerFileName(uid string) string {
	sum := sha256.Sum256([]byte(uid))
	name := Slugify(uid)
	if name == "" {
		name = "banner"
	}
	return name + "-" + hex.EncodeToString(sum[:4]) + ".jpg"
}

// processBanner decodes an image, resizes it to maxBannerWidth if wider and
// encodes it as JPEG.
func processBanner(src io.Reader) ([]byte, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("banner: decode: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxBannerWidth {
		newH := h * maxBannerWidth / w
		dst := image.NewRGBA(image.Rect(0, 0, maxBannerWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("banner: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// writeFileAtomic writes data next to path and renames it into place so a
// concurrent reader never sees a partial file.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
