package provider

import "encoding/base64"

// openAIContentBuilder shapes multimodal parts the way OpenAI-compatible
// backends expect: {"type":"text","text":...} and
// {"type":"image_url","image_url":{"url":"data:..."}}.
type openAIContentBuilder struct{}

func (openAIContentBuilder) BuildTextPart(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}

func (openAIContentBuilder) BuildImagePart(img ImagePart) map[string]any {
	return map[string]any{
		"type": "image_url",
		"image_url": map[string]any{
			"url": "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
		},
	}
}

// dashscopeContentBuilder shapes multimodal parts the way DashScope-style
// backends expect: {"text":...} with no "type" discriminator.
type dashscopeContentBuilder struct{}

func (dashscopeContentBuilder) BuildTextPart(text string) map[string]any {
	return map[string]any{"text": text}
}

func (dashscopeContentBuilder) BuildImagePart(img ImagePart) map[string]any {
	return map[string]any{
		"image": base64.StdEncoding.EncodeToString(img.Data),
	}
}

// ContentBuilderFor returns the shape translator for a named provider
// family. This is the only place in the core that branches on provider
// identity, per §4.2/§9.
func ContentBuilderFor(providerName string) ContentBuilder {
	switch providerName {
	case "dashscope":
		return dashscopeContentBuilder{}
	default:
		return openAIContentBuilder{}
	}
}
