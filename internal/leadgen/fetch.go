package leadgen

import (
	"context"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/pkg/jina"
)

// PageFetcher retrieves cleaned page text for a URL. Implementations never
// return an error: fetch failures degrade to empty content so extraction can
// still reason from title and snippet alone.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) string
}

type jinaFetcher struct {
	client   jina.Client
	maxChars int
}

// NewPageFetcher wraps a Jina reader client as a PageFetcher. maxChars caps
// the cleaned text passed to the reasoning step; 0 means no cap.
func NewPageFetcher(client jina.Client, maxChars int) PageFetcher {
	return &jinaFetcher{client: client, maxChars: maxChars}
}

func (f *jinaFetcher) Fetch(ctx context.Context, url string) string {
	resp, err := f.client.Read(ctx, url)
	if err != nil {
		zap.L().Warn("page fetch failed", zap.String("url", url), zap.Error(err))
		return ""
	}

	text := CleanPageText(resp.Data.Content)
	if f.maxChars > 0 && len(text) > f.maxChars {
		cut := f.maxChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}
