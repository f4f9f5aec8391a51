package imagine

import (
	"context"
	"errors"

	"github.com/avrebarra/lumora/pkg/catalog"
	"github.com/avrebarra/lumora/pkg/llm"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// generateOpenAI calls the OpenAI images API for one candidate.
func (s *Service) generateOpenAI(ctx context.Context, candidate catalog.Descriptor, credential, prompt string) ([]Image, error) {
	clientOpts := []option.RequestOption{option.WithAPIKey(credential)}
	if candidate.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(candidate.Endpoint))
	}
	client := openai.NewClient(clientOpts...)

	response, err := client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(candidate.BackendModel),
		N:      openai.Int(1),
	})
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			var header = map[string][]string{}
			if apierr.Response != nil {
				header = apierr.Response.Header
			}
			return nil, llm.ClassifyStatus(apierr.StatusCode, apierr.Error(), header)
		}
		return nil, llm.ClassifyTransport(err)
	}

	images := make([]Image, 0, len(response.Data))
	for _, item := range response.Data {
		if item.URL == "" && item.B64JSON == "" {
			continue
		}
		images = append(images, Image{
			URL:      item.URL,
			B64:      item.B64JSON,
			MimeType: "image/png",
		})
	}
	return images, nil
}
