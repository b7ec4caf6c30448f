package dto

import (
	"github.com/roach88/chii/internal/model"
)

// Rating is the aggregate score block of a subject.
type Rating struct {
	Rank  int64            `json:"rank"`
	Total int64            `json:"total"`
	Count map[string]int64 `json:"count,omitempty"`
	Score float64          `json:"score"`
}

// CollectionStat counts how many users hold a subject in each state.
type CollectionStat struct {
	Wish    int64 `json:"wish"`
	Collect int64 `json:"collect"`
	Doing   int64 `json:"doing"`
	OnHold  int64 `json:"on_hold"`
	Dropped int64 `json:"dropped"`
}

// Sum returns the number of users holding the subject in any state.
func (c CollectionStat) Sum() int64 {
	return c.Wish + c.Collect + c.Doing + c.OnHold + c.Dropped
}

// Subject is the full detail payload of GET /v0/subjects/{id}.
type Subject struct {
	ID            int64               `json:"id"`
	Type          model.SubjectType   `json:"type"`
	Name          string              `json:"name"`
	NameCN        string              `json:"name_cn"`
	Summary       string              `json:"summary"`
	Date          string              `json:"date"`
	Platform      string              `json:"platform"`
	Images        model.Images        `json:"images"`
	Infobox       []model.InfoboxItem `json:"infobox"`
	Rating        Rating              `json:"rating"`
	Collection    CollectionStat      `json:"collection"`
	Eps           int64               `json:"eps"`
	TotalEpisodes int64               `json:"total_episodes"`
	Volumes       int64               `json:"volumes"`
	Tags          []model.Tag         `json:"tags"`
	Locked        bool                `json:"locked"`
	NSFW          bool                `json:"nsfw"`
}

func (s Subject) Kind() model.Kind { return model.KindSubject }
func (s Subject) Key() int64       { return s.ID }

func (s Subject) Fields() model.Fields {
	return model.Fields{
		"type":             s.Type,
		"name":             s.Name,
		"name_cn":          s.NameCN,
		"summary":          s.Summary,
		"date":             s.Date,
		"platform":         s.Platform,
		"images":           s.Images,
		"infobox":          s.Infobox,
		"tags":             s.Tags,
		"rating_score":     s.Rating.Score,
		"rating_rank":      s.Rating.Rank,
		"rating_total":     s.Rating.Total,
		"collection_total": s.Collection.Sum(),
		"eps":              s.Eps,
		"total_episodes":   s.TotalEpisodes,
		"volumes":          s.Volumes,
		"nsfw":             s.NSFW,
		"locked":           s.Locked,
	}
}

// SlimSubject is the subject embedded in a user collection item.
type SlimSubject struct {
	ID              int64             `json:"id"`
	Type            model.SubjectType `json:"type"`
	Name            string            `json:"name"`
	NameCN          string            `json:"name_cn"`
	ShortSummary    string            `json:"short_summary"`
	Date            string            `json:"date"`
	Images          model.Images      `json:"images"`
	Volumes         int64             `json:"volumes"`
	Eps             int64             `json:"eps"`
	CollectionTotal int64             `json:"collection_total"`
	Score           float64           `json:"score"`
	Rank            int64             `json:"rank"`
	Tags            []model.Tag       `json:"tags"`
}

func (s SlimSubject) Kind() model.Kind { return model.KindSubject }
func (s SlimSubject) Key() int64       { return s.ID }

// Fields omits ShortSummary: it is a truncation of the full summary and must
// not overwrite it.
func (s SlimSubject) Fields() model.Fields {
	return model.Fields{
		"type":             s.Type,
		"name":             s.Name,
		"name_cn":          s.NameCN,
		"date":             s.Date,
		"images":           s.Images,
		"volumes":          s.Volumes,
		"eps":              s.Eps,
		"collection_total": s.CollectionTotal,
		"rating_score":     s.Score,
		"rating_rank":      s.Rank,
		"tags":             s.Tags,
	}
}

// SmallSubject is the subject shape used by related-subject and calendar
// lists.
type SmallSubject struct {
	ID     int64             `json:"id"`
	Type   model.SubjectType `json:"type"`
	Name   string            `json:"name"`
	NameCN string            `json:"name_cn"`
	Images model.Images      `json:"images"`
	Rating *Rating           `json:"rating,omitempty"`
}

func (s SmallSubject) Kind() model.Kind { return model.KindSubject }
func (s SmallSubject) Key() int64       { return s.ID }

func (s SmallSubject) Fields() model.Fields {
	f := model.Fields{
		"type":    s.Type,
		"name":    s.Name,
		"name_cn": s.NameCN,
		"images":  s.Images,
	}
	if s.Rating != nil {
		f["rating_score"] = s.Rating.Score
		f["rating_rank"] = s.Rating.Rank
		f["rating_total"] = s.Rating.Total
	}
	return f
}

// SearchSubject is one hit of the subject search endpoint.
type SearchSubject struct {
	ID     int64             `json:"id"`
	Type   model.SubjectType `json:"type"`
	Name   string            `json:"name"`
	NameCN string            `json:"name_cn"`
	Date   string            `json:"date"`
	Score  float64           `json:"score"`
	Rank   int64             `json:"rank"`
	Tags   []model.Tag       `json:"tags"`
}

func (s SearchSubject) Kind() model.Kind { return model.KindSubject }
func (s SearchSubject) Key() int64       { return s.ID }

func (s SearchSubject) Fields() model.Fields {
	return model.Fields{
		"type":         s.Type,
		"name":         s.Name,
		"name_cn":      s.NameCN,
		"date":         s.Date,
		"rating_score": s.Score,
		"rating_rank":  s.Rank,
		"tags":         s.Tags,
	}
}
