package context

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/haasonsaas/loom/pkg/models"
)

// Builder assembles the final message list handed to the provider: a
// system message rendered from the layer registry, prior history, an
// untrusted runtime-metadata block, and the current user turn.
type Builder struct {
	Layers *LayerRegistry
}

// NewBuilder returns a Builder backed by the given layer registry.
func NewBuilder(layers *LayerRegistry) *Builder {
	return &Builder{Layers: layers}
}

// BuildMessages returns [system, ...history, runtime_metadata, user] where
// runtime_metadata is an UNTRUSTED-tagged block carrying the current
// timestamp, timezone, channel, and chat id, and the user message carries
// any attachable media as data-URL image parts.
func (b *Builder) BuildMessages(history []models.Message, current string, media []models.Media, channel, chatID string) []models.Message {
	out := make([]models.Message, 0, len(history)+3)

	if system := b.Layers.RenderAll(); system != "" {
		out = append(out, models.Message{Role: models.RoleSystem, Content: system})
	}

	out = append(out, history...)
	out = append(out, runtimeMetadataMessage(channel, chatID))
	out = append(out, userMessage(current, media))

	return out
}

func runtimeMetadataMessage(channel, chatID string) models.Message {
	now := time.Now()
	zone, _ := now.Zone()
	text := fmt.Sprintf(
		"[-- BEGIN UNTRUSTED CONTENT: runtime_metadata --]\ntimestamp: %s\ntimezone: %s\nchannel: %s\nchat_id: %s\n[-- END UNTRUSTED CONTENT --]",
		now.Format(time.RFC3339), zone, channel, chatID,
	)
	return models.Message{Role: models.RoleUser, Content: text}
}

func userMessage(content string, media []models.Media) models.Message {
	parts := []models.MessagePart{{Type: "text", Text: content}}

	for _, m := range media {
		dataURL, ok := mediaToDataURL(m)
		if !ok {
			continue
		}
		parts = append(parts, models.MessagePart{Type: "image", ImageURL: dataURL})
	}

	if len(parts) == 1 {
		return models.Message{Role: models.RoleUser, Content: content}
	}
	return models.Message{Role: models.RoleUser, Parts: parts}
}

// mediaToDataURL resolves a Media reference to a data: URL image part,
// silently reporting ok=false when the file is missing or not an image.
func mediaToDataURL(m models.Media) (string, bool) {
	mimeType := m.MimeType
	if mimeType == "" || !strings.HasPrefix(mimeType, "image/") {
		return "", false
	}

	data, err := os.ReadFile(m.Path)
	if err != nil {
		return "", false
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	return fmt.Sprintf("data:%s;base64,%s", mimeType, encoded), true
}
