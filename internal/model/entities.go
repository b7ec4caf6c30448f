package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SubjectType tags the kind of cataloged work.
type SubjectType int

const (
	SubjectBook  SubjectType = 1
	SubjectAnime SubjectType = 2
	SubjectMusic SubjectType = 3
	SubjectGame  SubjectType = 4
	SubjectReal  SubjectType = 6
)

var subjectTypeNames = map[SubjectType]string{
	SubjectBook:  "book",
	SubjectAnime: "anime",
	SubjectMusic: "music",
	SubjectGame:  "game",
	SubjectReal:  "real",
}

func (t SubjectType) String() string {
	if s, ok := subjectTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("SubjectType(%d)", int(t))
}

// ParseSubjectType accepts a name ("anime") or its numeric code ("2").
func ParseSubjectType(s string) (SubjectType, error) {
	for t, name := range subjectTypeNames {
		if strings.EqualFold(s, name) || s == fmt.Sprint(int(t)) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown subject type %q", s)
}

// EpisodeType classifies an episode within its subject.
type EpisodeType int

const (
	EpisodeMain    EpisodeType = 0
	EpisodeSpecial EpisodeType = 1
	EpisodeOpening EpisodeType = 2
	EpisodeEnding  EpisodeType = 3
	EpisodePreview EpisodeType = 4
	EpisodeMAD     EpisodeType = 5
	EpisodeOther   EpisodeType = 6
)

var episodeTypeNames = map[EpisodeType]string{
	EpisodeMain:    "main",
	EpisodeSpecial: "sp",
	EpisodeOpening: "op",
	EpisodeEnding:  "ed",
	EpisodePreview: "pv",
	EpisodeMAD:     "mad",
	EpisodeOther:   "other",
}

func (t EpisodeType) String() string {
	if s, ok := episodeTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("EpisodeType(%d)", int(t))
}

// ParseEpisodeType accepts a name ("sp") or its numeric code ("1").
func ParseEpisodeType(s string) (EpisodeType, error) {
	for t, name := range episodeTypeNames {
		if strings.EqualFold(s, name) || s == fmt.Sprint(int(t)) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown episode type %q", s)
}

// EpisodeStatus is the signed-in user's watch state for one episode.
type EpisodeStatus int

const (
	StatusNone    EpisodeStatus = 0
	StatusWish    EpisodeStatus = 1
	StatusDone    EpisodeStatus = 2
	StatusDropped EpisodeStatus = 3
)

var episodeStatusNames = map[EpisodeStatus]string{
	StatusNone:    "none",
	StatusWish:    "wish",
	StatusDone:    "done",
	StatusDropped: "dropped",
}

func (s EpisodeStatus) String() string {
	if n, ok := episodeStatusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("EpisodeStatus(%d)", int(s))
}

// Valid reports whether s is a known status.
func (s EpisodeStatus) Valid() bool {
	_, ok := episodeStatusNames[s]
	return ok
}

// ParseEpisodeStatus accepts a name ("done") or its numeric code ("2").
func ParseEpisodeStatus(s string) (EpisodeStatus, error) {
	for st, name := range episodeStatusNames {
		if strings.EqualFold(s, name) || s == fmt.Sprint(int(st)) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown episode status %q", s)
}

// CollectionType is the user's relationship to a subject.
type CollectionType int

const (
	CollectionWish    CollectionType = 1
	CollectionDone    CollectionType = 2
	CollectionDoing   CollectionType = 3
	CollectionOnHold  CollectionType = 4
	CollectionDropped CollectionType = 5
)

var collectionTypeNames = map[CollectionType]string{
	CollectionWish:    "wish",
	CollectionDone:    "done",
	CollectionDoing:   "doing",
	CollectionOnHold:  "on_hold",
	CollectionDropped: "dropped",
}

func (t CollectionType) String() string {
	if s, ok := collectionTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("CollectionType(%d)", int(t))
}

// ParseCollectionType accepts a name ("doing") or its numeric code ("3").
func ParseCollectionType(s string) (CollectionType, error) {
	for t, name := range collectionTypeNames {
		if strings.EqualFold(s, name) || s == fmt.Sprint(int(t)) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown collection type %q", s)
}

// Tag is a community tag with its vote count.
type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Images maps a size name ("large", "common", ...) to a URL.
type Images map[string]string

// InfoboxItem is one entry of a subject's free-form metadata box. Value is
// either a JSON string or a list of {"k","v"} objects.
type InfoboxItem struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Relation links a character or person to a subject.
type Relation struct {
	SubjectID int64  `json:"subject_id"`
	Relation  string `json:"relation"`
}

// Subject is a cataloged work.
type Subject struct {
	ID              int64         `json:"id"`
	Type            SubjectType   `json:"type"`
	Name            string        `json:"name"`
	NameCN          string        `json:"name_cn"`
	Summary         string        `json:"summary,omitempty"`
	Date            string        `json:"date,omitempty"`
	Platform        string        `json:"platform,omitempty"`
	Images          Images        `json:"images,omitempty"`
	Infobox         []InfoboxItem `json:"infobox,omitempty"`
	Tags            []Tag         `json:"tags,omitempty"`
	RatingScore     float64       `json:"rating_score"`
	RatingRank      int64         `json:"rating_rank"`
	RatingTotal     int64         `json:"rating_total"`
	CollectionTotal int64         `json:"collection_total"`
	Eps             int64         `json:"eps"`
	TotalEpisodes   int64         `json:"total_episodes"`
	Volumes         int64         `json:"volumes"`
	NSFW            bool          `json:"nsfw"`
	Locked          bool          `json:"locked"`
}

// DecodeSubject builds a Subject from a stored row.
func DecodeSubject(f Fields) (Subject, error) {
	s := Subject{
		ID:              f.Int("id"),
		Type:            SubjectType(f.Int("type")),
		Name:            f.String("name"),
		NameCN:          f.String("name_cn"),
		Summary:         f.String("summary"),
		Date:            f.String("date"),
		Platform:        f.String("platform"),
		RatingScore:     f.Float("rating_score"),
		RatingRank:      f.Int("rating_rank"),
		RatingTotal:     f.Int("rating_total"),
		CollectionTotal: f.Int("collection_total"),
		Eps:             f.Int("eps"),
		TotalEpisodes:   f.Int("total_episodes"),
		Volumes:         f.Int("volumes"),
		NSFW:            f.Bool("nsfw"),
		Locked:          f.Bool("locked"),
	}
	if err := f.Decode("images", &s.Images); err != nil {
		return Subject{}, err
	}
	if err := f.Decode("infobox", &s.Infobox); err != nil {
		return Subject{}, err
	}
	if err := f.Decode("tags", &s.Tags); err != nil {
		return Subject{}, err
	}
	return s, nil
}

// Episode belongs to exactly one subject, referenced by SubjectID.
type Episode struct {
	ID          int64         `json:"id"`
	SubjectID   int64         `json:"subject_id"`
	Type        EpisodeType   `json:"type"`
	Sort        float64       `json:"sort"`
	Ep          float64       `json:"ep"`
	Name        string        `json:"name"`
	NameCN      string        `json:"name_cn"`
	Airdate     string        `json:"airdate,omitempty"`
	Duration    string        `json:"duration,omitempty"`
	Description string        `json:"description,omitempty"`
	Comment     int64         `json:"comment"`
	Disc        int64         `json:"disc"`
	Status      EpisodeStatus `json:"status"`
	Position    int64         `json:"position"`
}

// DecodeEpisode builds an Episode from a stored row.
func DecodeEpisode(f Fields) Episode {
	return Episode{
		ID:          f.Int("id"),
		SubjectID:   f.Int("subject_id"),
		Type:        EpisodeType(f.Int("type")),
		Sort:        f.Float("sort"),
		Ep:          f.Float("ep"),
		Name:        f.String("name"),
		NameCN:      f.String("name_cn"),
		Airdate:     f.String("airdate"),
		Duration:    f.String("duration"),
		Description: f.String("description"),
		Comment:     f.Int("comment"),
		Disc:        f.Int("disc"),
		Status:      EpisodeStatus(f.Int("status")),
		Position:    f.Int("position"),
	}
}

// Collection is the signed-in user's relationship to one subject.
type Collection struct {
	SubjectID   int64          `json:"subject_id"`
	SubjectType SubjectType    `json:"subject_type"`
	Type        CollectionType `json:"type"`
	Rate        int64          `json:"rate"`
	Comment     string         `json:"comment,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	EpStatus    int64          `json:"ep_status"`
	VolStatus   int64          `json:"vol_status"`
	Private     bool           `json:"private"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Alias       string         `json:"alias,omitempty"`
}

// DecodeCollection builds a Collection from a stored row.
func DecodeCollection(f Fields) (Collection, error) {
	c := Collection{
		SubjectID:   f.Int("subject_id"),
		SubjectType: SubjectType(f.Int("subject_type")),
		Type:        CollectionType(f.Int("type")),
		Rate:        f.Int("rate"),
		Comment:     f.String("comment"),
		EpStatus:    f.Int("ep_status"),
		VolStatus:   f.Int("vol_status"),
		Private:     f.Bool("private"),
		Alias:       f.String("alias"),
	}
	if ts := f.Int("updated_at"); ts > 0 {
		c.UpdatedAt = time.Unix(ts, 0).UTC()
	}
	if err := f.Decode("tags", &c.Tags); err != nil {
		return Collection{}, err
	}
	return c, nil
}

// Character is a cataloged character.
type Character struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Type      int64      `json:"type"`
	Images    Images     `json:"images,omitempty"`
	Summary   string     `json:"summary,omitempty"`
	Locked    bool       `json:"locked"`
	Collects  int64      `json:"collects"`
	Collected bool       `json:"collected"`
	Relations []Relation `json:"relations,omitempty"`
}

// DecodeCharacter builds a Character from a stored row.
func DecodeCharacter(f Fields) (Character, error) {
	c := Character{
		ID:        f.Int("id"),
		Name:      f.String("name"),
		Type:      f.Int("type"),
		Summary:   f.String("summary"),
		Locked:    f.Bool("locked"),
		Collects:  f.Int("collects"),
		Collected: f.Bool("collected"),
	}
	if err := f.Decode("images", &c.Images); err != nil {
		return Character{}, err
	}
	if err := f.Decode("relations", &c.Relations); err != nil {
		return Character{}, err
	}
	return c, nil
}

// Person is a cataloged real person (staff, cast, author).
type Person struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Type      int64      `json:"type"`
	Career    []string   `json:"career,omitempty"`
	Images    Images     `json:"images,omitempty"`
	Summary   string     `json:"summary,omitempty"`
	Locked    bool       `json:"locked"`
	Collects  int64      `json:"collects"`
	Collected bool       `json:"collected"`
	Relations []Relation `json:"relations,omitempty"`
}

// DecodePerson builds a Person from a stored row.
func DecodePerson(f Fields) (Person, error) {
	p := Person{
		ID:        f.Int("id"),
		Name:      f.String("name"),
		Type:      f.Int("type"),
		Summary:   f.String("summary"),
		Locked:    f.Bool("locked"),
		Collects:  f.Int("collects"),
		Collected: f.Bool("collected"),
	}
	if err := f.Decode("career", &p.Career); err != nil {
		return Person{}, err
	}
	if err := f.Decode("images", &p.Images); err != nil {
		return Person{}, err
	}
	if err := f.Decode("relations", &p.Relations); err != nil {
		return Person{}, err
	}
	return p, nil
}

// Group is a discussion group.
type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	Members     int64     `json:"members"`
	NSFW        bool      `json:"nsfw"`
	CreatedAt   time.Time `json:"created_at"`
	Joined      bool      `json:"joined"`
}

// DecodeGroup builds a Group from a stored row.
func DecodeGroup(f Fields) Group {
	g := Group{
		ID:          f.Int("id"),
		Name:        f.String("name"),
		Title:       f.String("title"),
		Description: f.String("description"),
		Icon:        f.String("icon"),
		Members:     f.Int("members"),
		NSFW:        f.Bool("nsfw"),
		Joined:      f.Bool("joined"),
	}
	if ts := f.Int("created_at"); ts > 0 {
		g.CreatedAt = time.Unix(ts, 0).UTC()
	}
	return g
}

// Draft is a free-standing autosave buffer keyed by purpose.
type Draft struct {
	Purpose   string    `json:"purpose"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}
