package imagine

import (
	"context"
	"encoding/base64"

	"github.com/avrebarra/lumora/pkg/catalog"
	"github.com/avrebarra/lumora/pkg/llm"
	"google.golang.org/genai"
)

// generateGemini calls the Imagen API for one candidate via the genai SDK.
func (s *Service) generateGemini(ctx context.Context, candidate catalog.Descriptor, credential, prompt string) ([]Image, error) {
	client, err := llm.NewGeminiClient(ctx, credential, candidate.Endpoint)
	if err != nil {
		return nil, err
	}

	response, err := client.Models.GenerateImages(ctx, candidate.BackendModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		return nil, llm.ClassifyGemini(err)
	}

	images := make([]Image, 0, len(response.GeneratedImages))
	for _, generated := range response.GeneratedImages {
		if generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
			continue
		}
		mime := generated.Image.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		images = append(images, Image{
			B64:      base64.StdEncoding.EncodeToString(generated.Image.ImageBytes),
			MimeType: mime,
		})
	}
	return images, nil
}
