package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/BTreeMap/NoaBot/internal/models"
	"github.com/BTreeMap/NoaBot/internal/util"
)

// ImageTimeout bounds a single image generation request.
const ImageTimeout = 60 * time.Second

// ImageCaption accompanies every photo.
const ImageCaption = "Just for you 📸"

var (
	// ErrNoStockImages is reported when stock mode has nothing to choose from.
	ErrNoStockImages = errors.New("no stock image urls configured")
	// ErrNoImageClient is reported when ai mode has no generation client.
	ErrNoImageClient = errors.New("image client not configured")
)

// ImageResult is a built photo. On success exactly one of URL or Data is set.
type ImageResult struct {
	URL     string
	Data    []byte
	Caption string
	Outcome models.Outcome
	Err     error
}

// ImageBuilder produces a photo for the current scene.
type ImageBuilder interface {
	Build(ctx context.Context, scene string) ImageResult
}

// StockImageBuilder picks uniformly from a fixed URL list.
type StockImageBuilder struct {
	urls []string
	intn util.IntN
}

// NewStockImageBuilder creates a stock builder. A nil intn uses util.DefaultIntN.
func NewStockImageBuilder(urls []string, intn util.IntN) *StockImageBuilder {
	return &StockImageBuilder{urls: urls, intn: intn}
}

// Build returns a random configured URL.
func (b *StockImageBuilder) Build(ctx context.Context, scene string) ImageResult {
	url, ok := util.Pick(b.urls, b.intn)
	if !ok {
		return ImageResult{Outcome: models.OutcomeFailed, Err: ErrNoStockImages}
	}
	return ImageResult{URL: url, Caption: ImageCaption, Outcome: models.OutcomeSuccess}
}

// GeneratedImageBuilder asks the image API for a picture of the scene.
type GeneratedImageBuilder struct {
	client  ImageClient
	timeout time.Duration
}

// NewGeneratedImageBuilder creates an ai-mode builder.
func NewGeneratedImageBuilder(client ImageClient) *GeneratedImageBuilder {
	return &GeneratedImageBuilder{client: client, timeout: ImageTimeout}
}

// Build generates an image. Any failure yields OutcomeFailed; there is no retry.
func (b *GeneratedImageBuilder) Build(ctx context.Context, scene string) ImageResult {
	if b.client == nil {
		return ImageResult{Outcome: models.OutcomeFailed, Err: ErrNoImageClient}
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	img, err := b.client.GenerateImage(ctx, ImagePrompt(scene))
	if err != nil {
		slog.Warn("GeneratedImageBuilder.Build: image generation failed", "error", err)
		return ImageResult{Outcome: models.OutcomeFailed, Err: err}
	}
	return ImageResult{URL: img.URL, Data: img.Data, Caption: ImageCaption, Outcome: models.OutcomeSuccess}
}

// ImagePrompt derives the generation prompt from the scene.
func ImagePrompt(scene string) string {
	scene = strings.TrimSpace(scene)
	if scene == "" {
		scene = "Relaxing at home."
	}
	return "A tasteful, non-explicit lifestyle photo of a young woman in her twenties. Scene: " + scene +
		" Natural light, candid smartphone snapshot, fully clothed."
}

// NewImageBuilder selects the builder for mode.
func NewImageBuilder(mode models.ImageMode, stockURLs []string, client ImageClient) ImageBuilder {
	if mode == models.ImageModeAI {
		return NewGeneratedImageBuilder(client)
	}
	return NewStockImageBuilder(stockURLs, nil)
}

// IsImageRequest reports whether text asks for a picture: a /pic command or one
// of the image words standing on its own.
func IsImageRequest(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if strings.HasPrefix(lower, "/pic") {
		return true
	}
	words := strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		if imageWords[w] {
			return true
		}
	}
	return false
}

var imageWords = map[string]bool{
	"pic": true, "pics": true,
	"photo": true, "photos": true,
	"selfie": true, "selfies": true,
	"picture": true, "pictures": true,
}
