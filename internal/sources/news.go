package sources

import (
	"context"
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/anvh2/sentiment-trading/internal/nlp"
)

// News parses titles from the configured RSS feeds and keeps those
// matching the symbol's keywords.
type News struct {
	client   *http.Client
	scorer   *nlp.Scorer
	feeds    []string
	keywords func(symbol string) []string
}

func NewNews(scorer *nlp.Scorer, feeds []string, keywords func(string) []string) *News {
	return &News{
		client:   &http.Client{},
		scorer:   scorer,
		feeds:    feeds,
		keywords: keywords,
	}
}

func (n *News) Name() string { return models.SourceNews }

type rssDocument struct {
	Channel struct {
		Items []struct {
			Title string `xml:"title"`
		} `xml:"item"`
	} `xml:"channel"`
}

func (n *News) Fetch(ctx context.Context, symbol string) (*models.SourceReading, error) {
	keywords := []string{strings.ToLower(symbol)}
	if n.keywords != nil {
		for _, kw := range n.keywords(symbol) {
			keywords = append(keywords, strings.ToLower(kw))
		}
	}

	titles := make([]string, 0)
	var lastErr error

	for _, feed := range n.feeds {
		raw, err := httpGetRaw(ctx, n.client, feed)
		if err != nil {
			lastErr = err
			continue
		}

		doc := &rssDocument{}
		if err := xml.Unmarshal(raw, doc); err != nil {
			lastErr = err
			continue
		}

		for _, item := range doc.Channel.Items {
			lower := strings.ToLower(item.Title)
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					titles = append(titles, item.Title)
					break
				}
			}
		}
	}

	if len(titles) == 0 && lastErr != nil {
		return nil, lastErr
	}

	scores, err := n.scorer.ScoreBatch(ctx, titles)
	if err != nil {
		return nil, err
	}

	score, confidence := combineScores(scores)

	return &models.SourceReading{
		Source:     n.Name(),
		Symbol:     symbol,
		Score:      score,
		Confidence: confidence,
		Volume:     float64(len(titles)),
		ProducedAt: time.Now().UnixMilli(),
		Raw:        map[string]interface{}{"titles": titles},
	}, nil
}
