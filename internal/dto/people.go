package dto

import (
	"github.com/roach88/chii/internal/model"
)

// Stat is the social counter block of characters and persons.
type Stat struct {
	Comments int64 `json:"comments"`
	Collects int64 `json:"collects"`
}

// Character is the detail payload of GET /v0/characters/{id}.
type Character struct {
	ID      int64        `json:"id"`
	Name    string       `json:"name"`
	Type    int64        `json:"type"`
	Images  model.Images `json:"images"`
	Summary string       `json:"summary"`
	Locked  bool         `json:"locked"`
	Stat    Stat         `json:"stat"`
}

func (c Character) Kind() model.Kind { return model.KindCharacter }
func (c Character) Key() int64       { return c.ID }

func (c Character) Fields() model.Fields {
	return model.Fields{
		"name":     c.Name,
		"type":     c.Type,
		"images":   c.Images,
		"summary":  c.Summary,
		"locked":   c.Locked,
		"collects": c.Stat.Collects,
	}
}

// RelatedCharacter is one item of GET /v0/subjects/{id}/characters.
// SubjectID is not part of the payload; the caller sets it.
type RelatedCharacter struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	Type      int64        `json:"type"`
	Images    model.Images `json:"images"`
	Relation  string       `json:"relation"`
	SubjectID int64        `json:"-"`
}

func (c RelatedCharacter) Kind() model.Kind { return model.KindCharacter }
func (c RelatedCharacter) Key() int64       { return c.ID }

func (c RelatedCharacter) Fields() model.Fields {
	return model.Fields{
		"name":   c.Name,
		"type":   c.Type,
		"images": c.Images,
	}
}

// SubjectRelation reports the subject link this payload establishes.
func (c RelatedCharacter) SubjectRelation() model.Relation {
	return model.Relation{SubjectID: c.SubjectID, Relation: c.Relation}
}

// Person is the detail payload of GET /v0/persons/{id}.
type Person struct {
	ID      int64        `json:"id"`
	Name    string       `json:"name"`
	Type    int64        `json:"type"`
	Career  []string     `json:"career"`
	Images  model.Images `json:"images"`
	Summary string       `json:"summary"`
	Locked  bool         `json:"locked"`
	Stat    Stat         `json:"stat"`
}

func (p Person) Kind() model.Kind { return model.KindPerson }
func (p Person) Key() int64       { return p.ID }

func (p Person) Fields() model.Fields {
	return model.Fields{
		"name":     p.Name,
		"type":     p.Type,
		"career":   p.Career,
		"images":   p.Images,
		"summary":  p.Summary,
		"locked":   p.Locked,
		"collects": p.Stat.Collects,
	}
}

// RelatedPerson is one item of GET /v0/subjects/{id}/persons.
type RelatedPerson struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	Type      int64        `json:"type"`
	Career    []string     `json:"career"`
	Images    model.Images `json:"images"`
	Relation  string       `json:"relation"`
	SubjectID int64        `json:"-"`
}

func (p RelatedPerson) Kind() model.Kind { return model.KindPerson }
func (p RelatedPerson) Key() int64       { return p.ID }

func (p RelatedPerson) Fields() model.Fields {
	return model.Fields{
		"name":   p.Name,
		"type":   p.Type,
		"career": p.Career,
		"images": p.Images,
	}
}

// SubjectRelation reports the subject link this payload establishes.
func (p RelatedPerson) SubjectRelation() model.Relation {
	return model.Relation{SubjectID: p.SubjectID, Relation: p.Relation}
}

// Group is a discussion group.
type Group struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Members     int64  `json:"members"`
	NSFW        bool   `json:"nsfw"`
	CreatedAt   int64  `json:"created_at"`
}

func (g Group) Kind() model.Kind { return model.KindGroup }
func (g Group) Key() int64       { return g.ID }

func (g Group) Fields() model.Fields {
	return model.Fields{
		"name":        g.Name,
		"title":       g.Title,
		"description": g.Description,
		"icon":        g.Icon,
		"members":     g.Members,
		"nsfw":        g.NSFW,
		"created_at":  g.CreatedAt,
	}
}
