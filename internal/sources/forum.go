package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/anvh2/sentiment-trading/internal/models"
	"github.com/anvh2/sentiment-trading/internal/nlp"
)

const forumTopPosts = 50

// Forum ranks posts by engagement and scores the top slice.
type Forum struct {
	client   *http.Client
	scorer   *nlp.Scorer
	endpoint string
	keywords func(symbol string) []string
}

func NewForum(scorer *nlp.Scorer, endpoint string, keywords func(string) []string) *Forum {
	return &Forum{
		client:   &http.Client{},
		scorer:   scorer,
		endpoint: endpoint,
		keywords: keywords,
	}
}

func (f *Forum) Name() string { return models.SourceForum }

type forumPost struct {
	text       string
	engagement int
}

func (f *Forum) Fetch(ctx context.Context, symbol string) (*models.SourceReading, error) {
	body, err := httpGet(ctx, f.client, fmt.Sprintf("%s?q=%s", f.endpoint, url.QueryEscape(baseAsset(symbol, f.keywords))))
	if err != nil {
		return nil, err
	}

	items := body.Get("posts")
	posts := make([]forumPost, 0, len(items.MustArray()))

	for i := range items.MustArray() {
		item := items.GetIndex(i)

		text := item.Get("title").MustString()
		if body := item.Get("body").MustString(); body != "" {
			text += " " + body
		}
		if text == "" {
			continue
		}

		upvotes := item.Get("upvotes").MustInt()
		comments := item.Get("comments").MustInt()

		posts = append(posts, forumPost{
			text:       text,
			engagement: upvotes + 2*comments,
		})
	}

	sort.Slice(posts, func(i, j int) bool { return posts[i].engagement > posts[j].engagement })
	if len(posts) > forumTopPosts {
		posts = posts[:forumTopPosts]
	}

	texts := make([]string, len(posts))
	for i, post := range posts {
		texts[i] = post.text
	}

	scores, err := f.scorer.ScoreBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	score, confidence := combineScores(scores)

	return &models.SourceReading{
		Source:     f.Name(),
		Symbol:     symbol,
		Score:      score,
		Confidence: confidence,
		Volume:     float64(len(texts)),
		ProducedAt: time.Now().UnixMilli(),
		Raw:        map[string]interface{}{"titles": texts},
	}, nil
}
