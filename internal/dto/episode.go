package dto

import (
	"time"

	"github.com/roach88/chii/internal/model"
)

// Episode is one item of GET /v0/episodes.
//
// Ep is null for non-main episodes, so it is a pointer.
type Episode struct {
	ID          int64             `json:"id"`
	Type        model.EpisodeType `json:"type"`
	Name        string            `json:"name"`
	NameCN      string            `json:"name_cn"`
	Sort        float64           `json:"sort"`
	Ep          *float64          `json:"ep"`
	Airdate     string            `json:"airdate"`
	Comment     int64             `json:"comment"`
	Duration    string            `json:"duration"`
	Description string            `json:"desc"`
	Disc        int64             `json:"disc"`
	SubjectID   int64             `json:"subject_id"`
}

func (e Episode) Kind() model.Kind { return model.KindEpisode }
func (e Episode) Key() int64       { return e.ID }

func (e Episode) Fields() model.Fields {
	f := model.Fields{
		"type":        e.Type,
		"name":        e.Name,
		"name_cn":     e.NameCN,
		"sort":        e.Sort,
		"airdate":     e.Airdate,
		"comment":     e.Comment,
		"duration":    e.Duration,
		"description": e.Description,
		"disc":        e.Disc,
	}
	if e.SubjectID > 0 {
		f["subject_id"] = e.SubjectID
	}
	if e.Ep != nil {
		f["ep"] = *e.Ep
	}
	return f
}

// UserEpisodeCollection is one item of
// GET /v0/users/-/collections/{subject_id}/episodes.
type UserEpisodeCollection struct {
	Episode   Episode             `json:"episode"`
	Type      model.EpisodeStatus `json:"type"`
	UpdatedAt int64               `json:"updated_at"`
}

func (c UserEpisodeCollection) Kind() model.Kind { return model.KindEpisode }
func (c UserEpisodeCollection) Key() int64       { return c.Episode.ID }

func (c UserEpisodeCollection) Fields() model.Fields {
	f := c.Episode.Fields()
	f["status"] = c.Type
	return f
}

// UserSubjectCollection is one item of GET /v0/users/{username}/collections.
type UserSubjectCollection struct {
	SubjectID   int64                `json:"subject_id"`
	SubjectType model.SubjectType    `json:"subject_type"`
	Rate        int64                `json:"rate"`
	Type        model.CollectionType `json:"type"`
	Comment     *string              `json:"comment"`
	Tags        []string             `json:"tags"`
	EpStatus    int64                `json:"ep_status"`
	VolStatus   int64                `json:"vol_status"`
	UpdatedAt   time.Time            `json:"updated_at"`
	Private     bool                 `json:"private"`
	Subject     *SlimSubject         `json:"subject,omitempty"`
}

func (c UserSubjectCollection) Kind() model.Kind { return model.KindCollection }
func (c UserSubjectCollection) Key() int64       { return c.SubjectID }

// Fields excludes subject_type and alias; the reconciler writes those after
// the nested subject is in place.
func (c UserSubjectCollection) Fields() model.Fields {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	f := model.Fields{
		"type":       c.Type,
		"rate":       c.Rate,
		"tags":       tags,
		"ep_status":  c.EpStatus,
		"vol_status": c.VolStatus,
		"private":    c.Private,
	}
	if c.Comment != nil {
		f["comment"] = *c.Comment
	}
	if !c.UpdatedAt.IsZero() {
		f["updated_at"] = c.UpdatedAt
	}
	return f
}
