package gemini

import (
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/vibevote/pkg/core"
)

func replyFromResponse(resp *genai.GenerateContentResponse) ChatReply {
	reply := ChatReply{Text: NoResponseText}
	if resp == nil {
		return reply
	}
	if text := resp.Text(); strings.TrimSpace(text) != "" {
		reply.Text = text
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		if gm := resp.Candidates[0].GroundingMetadata; gm != nil {
			reply.Grounding = gm
			reply.Sources = sourcesFrom(gm)
		}
	}
	return reply
}

// sourcesFrom lists web and maps citations, web first.
func sourcesFrom(gm *genai.GroundingMetadata) []Source {
	var web, maps []Source
	for _, chunk := range gm.GroundingChunks {
		if chunk == nil {
			continue
		}
		if w := chunk.Web; w != nil {
			title := w.Title
			if title == "" {
				title = w.URI
			}
			web = append(web, Source{Kind: "web", Title: title, URI: w.URI})
		}
		if m := chunk.Maps; m != nil {
			title := m.Title
			if title == "" {
				title = "Map Location"
			}
			maps = append(maps, Source{Kind: "maps", Title: title, URI: m.URI})
		}
	}
	return append(web, maps...)
}

// firstImage returns the first inline image of the first candidate as a data URI.
func firstImage(resp *genai.GenerateContentResponse) (string, error) {
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0] != nil && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return FormatDataURI(part.InlineData.MIMEType, part.InlineData.Data), nil
			}
		}
	}
	return "", &core.Error{Type: core.ErrProvider, Message: "model returned no image"}
}

// operationFrom converts the SDK operation into the gateway's view of it.
func operationFrom(op *genai.GenerateVideosOperation) *Operation {
	out := &Operation{Name: op.Name, Done: op.Done, raw: op}
	if !op.Done {
		return out
	}
	if err := operationError(op.Error); err != nil {
		out.Err = err
		return out
	}
	if op.Response != nil && len(op.Response.GeneratedVideos) > 0 {
		if v := op.Response.GeneratedVideos[0]; v != nil && v.Video != nil {
			out.VideoURI = v.Video.URI
		}
	}
	if out.VideoURI == "" {
		out.Err = &core.Error{Type: core.ErrProvider, Message: "No video URI returned"}
	}
	return out
}
