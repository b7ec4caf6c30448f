package reconcile

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chii/internal/dto"
	"github.com/roach88/chii/internal/model"
	"github.com/roach88/chii/internal/store"
)

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// ensure reconciles srcs in one committed batch and returns the handles.
func ensure(t *testing.T, s *store.Store, srcs ...dto.Source) []Handle {
	t.Helper()
	ctx := context.Background()
	b, err := s.Begin(ctx)
	require.NoError(t, err)
	defer b.Rollback()

	hs, err := New(b).EnsureMany(ctx, srcs)
	require.NoError(t, err)
	_, err = b.Commit()
	require.NoError(t, err)
	return hs
}

func bebop() dto.Subject {
	return dto.Subject{
		ID:      253,
		Type:    model.SubjectAnime,
		Name:    "カウボーイビバップ",
		NameCN:  "星际牛仔",
		Summary: "2071年、宇宙。",
		Infobox: []model.InfoboxItem{
			{Key: "别名", Value: json.RawMessage(`[{"v":"Cowboy Bebop"}]`)},
		},
		Rating: dto.Rating{Score: 8.9, Rank: 12, Total: 20000},
		Eps:    26,
		Tags:   []model.Tag{{Name: "SF", Count: 100}},
	}
}

func TestEnsure_Idempotent(t *testing.T) {
	s := createTestStore(t)

	first := ensure(t, s, bebop())
	require.Len(t, first, 1)
	assert.True(t, first[0].Created)
	assert.True(t, first[0].Dirty())

	second := ensure(t, s, bebop())
	assert.False(t, second[0].Dirty(), "re-applying the same DTO must change nothing")
}

func TestEnsure_PartialShapesNeverBlank(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ensure(t, s, bebop())
	hs := ensure(t, s,
		dto.SlimSubject{ID: 253, Type: model.SubjectAnime, Name: "カウボーイビバップ", NameCN: "星际牛仔",
			ShortSummary: "2071", Date: "1998-04-03", Score: 9.0, Rank: 12, Eps: 26, Tags: []model.Tag{{Name: "SF", Count: 100}}},
		dto.SearchSubject{ID: 253, Type: model.SubjectAnime, Name: "カウボーイビバップ", NameCN: "星际牛仔",
			Date: "1998-04-03", Score: 9.0, Rank: 11, Tags: []model.Tag{{Name: "SF", Count: 100}}},
	)
	assert.Equal(t, []string{"date", "rating_score"}, hs[0].Changed)
	assert.Equal(t, []string{"rating_rank"}, hs[1].Changed)

	subj, err := s.GetSubject(ctx, 253)
	require.NoError(t, err)
	assert.Equal(t, "2071年、宇宙。", subj.Summary)
	assert.Equal(t, 9.0, subj.RatingScore)
	assert.Equal(t, int64(20000), subj.RatingTotal)
	require.Len(t, subj.Infobox, 1)
}

func TestEnsure_SameKindSameRow(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ensure(t, s,
		dto.SmallSubject{ID: 1, Name: "A"},
		dto.SearchSubject{ID: 1, Name: "A", Date: "2020-01-01"},
		dto.Record{EntityKind: model.KindSubject, ID: 1, Values: model.Fields{"platform": "TV"}},
	)

	n, err := s.Count(ctx, `SELECT COUNT(*) FROM subjects`, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	subj, err := s.GetSubject(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "2020-01-01", subj.Date)
	assert.Equal(t, "TV", subj.Platform)
}

func TestEnsureEpisode_AssignsPositionOnce(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ensure(t, s,
		dto.Episode{ID: 30, SubjectID: 9, Sort: 3},
		dto.Episode{ID: 10, SubjectID: 9, Sort: 1},
		dto.Episode{ID: 20, SubjectID: 9, Sort: 2},
		dto.Episode{ID: 99, SubjectID: 8, Sort: 1},
	)
	// Re-delivery in a different order keeps the original positions.
	ensure(t, s,
		dto.Episode{ID: 10, SubjectID: 9, Sort: 1, Name: "renamed"},
		dto.Episode{ID: 30, SubjectID: 9, Sort: 3},
	)

	for id, want := range map[int64]int64{30: 1, 10: 2, 20: 3, 99: 1} {
		ep, err := s.GetEpisode(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, ep.Position, "episode %d", id)
	}
	ep, err := s.GetEpisode(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "renamed", ep.Name)
}

func TestEnsureEpisodeCollection_MergesStatus(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ensure(t, s, dto.Episode{ID: 10, SubjectID: 9, Sort: 1, Name: "Asteroid Blues"})
	hs := ensure(t, s, dto.UserEpisodeCollection{
		Episode: dto.Episode{ID: 10, SubjectID: 9, Sort: 1, Name: "Asteroid Blues"},
		Type:    model.StatusDone,
	})
	assert.Equal(t, []string{"status"}, hs[0].Changed)

	ep, err := s.GetEpisode(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, ep.Status)

	// A plain episode payload does not reset the status.
	ensure(t, s, dto.Episode{ID: 10, SubjectID: 9, Sort: 1, Name: "Asteroid Blues"})
	ep, err = s.GetEpisode(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, ep.Status)
}

func TestEnsureCollection_SubjectAliasAndLink(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ensure(t, s, bebop())
	updated := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	hs := ensure(t, s, dto.UserSubjectCollection{
		SubjectID:   253,
		SubjectType: model.SubjectAnime,
		Type:        model.CollectionDoing,
		Rate:        9,
		EpStatus:    3,
		UpdatedAt:   updated,
		Subject: &dto.SlimSubject{ID: 253, Type: model.SubjectAnime, Name: "カウボーイビバップ",
			NameCN: "星际牛仔", Eps: 26, Score: 8.9, Rank: 12, Tags: []model.Tag{{Name: "SF", Count: 100}}},
	})
	require.Len(t, hs, 1)
	assert.True(t, hs[0].Created)
	assert.Contains(t, hs[0].Changed, "subject_type")
	assert.Contains(t, hs[0].Changed, "alias")

	c, err := s.GetCollection(ctx, 253)
	require.NoError(t, err)
	assert.Equal(t, model.SubjectAnime, c.SubjectType)
	assert.Equal(t, model.CollectionDoing, c.Type)
	assert.Equal(t, "カウボーイビバップ 星际牛仔 cowboy bebop", c.Alias)
	assert.Equal(t, updated, c.UpdatedAt)
	assert.Equal(t, []string{}, c.Tags)

	// The slim subject did not blank the full summary.
	subj, err := s.GetSubject(ctx, 253)
	require.NoError(t, err)
	assert.Equal(t, "2071年、宇宙。", subj.Summary)
}

func TestEnsureCollection_Idempotent(t *testing.T) {
	s := createTestStore(t)
	coll := dto.UserSubjectCollection{
		SubjectID:   1,
		SubjectType: model.SubjectBook,
		Type:        model.CollectionWish,
		Tags:        []string{"漫画"},
		Subject:     &dto.SlimSubject{ID: 1, Type: model.SubjectBook, Name: "Dorohedoro"},
	}
	ensure(t, s, coll)
	hs := ensure(t, s, coll)
	assert.False(t, hs[0].Dirty())
}

func TestEnsureCollection_TypeFromStoredSubject(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ensure(t, s, dto.SlimSubject{ID: 5, Type: model.SubjectGame, Name: "Outer Wilds"})
	ensure(t, s, dto.UserSubjectCollection{SubjectID: 5, Type: model.CollectionDone})

	c, err := s.GetCollection(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, model.SubjectGame, c.SubjectType)
	assert.Equal(t, "outer wilds", c.Alias)
}

func TestEnsureCollection_MismatchedSubject(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	b, err := s.Begin(ctx)
	require.NoError(t, err)
	defer b.Rollback()

	_, err = New(b).Ensure(ctx, dto.UserSubjectCollection{SubjectID: 1, Subject: &dto.SlimSubject{ID: 2}})
	assert.ErrorIs(t, err, store.ErrInvalidKey)
}

func TestEnsureCharacter_MergesRelations(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ensure(t, s,
		dto.RelatedCharacter{ID: 7, Name: "Spike", Relation: "主角", SubjectID: 253},
		dto.RelatedCharacter{ID: 7, Name: "Spike", Relation: "配角", SubjectID: 100},
		dto.RelatedCharacter{ID: 7, Name: "Spike", Relation: "主角", SubjectID: 100},
	)
	hs := ensure(t, s, dto.RelatedCharacter{ID: 7, Name: "Spike", Relation: "主角", SubjectID: 253})
	assert.False(t, hs[0].Dirty())

	c, err := s.GetCharacter(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []model.Relation{
		{SubjectID: 100, Relation: "主角"},
		{SubjectID: 253, Relation: "主角"},
	}, c.Relations)

	// The detail payload keeps the relation list.
	ensure(t, s, dto.Character{ID: 7, Name: "Spike Spiegel", Summary: "bounty hunter"})
	c, err = s.GetCharacter(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Spike Spiegel", c.Name)
	assert.Len(t, c.Relations, 2)
}

func TestEnsurePerson(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	b, err := s.Begin(ctx)
	require.NoError(t, err)
	defer b.Rollback()
	r := New(b)

	h, err := r.EnsurePerson(ctx, dto.RelatedPerson{ID: 3, Name: "渡辺信一郎", Career: []string{"director"}, Relation: "导演", SubjectID: 253})
	require.NoError(t, err)
	assert.True(t, h.Created)

	_, err = r.EnsurePerson(ctx, dto.Character{ID: 3})
	assert.ErrorIs(t, err, store.ErrInvalidKey)
	_, err = r.EnsureCharacter(ctx, dto.Person{ID: 3})
	assert.ErrorIs(t, err, store.ErrInvalidKey)

	_, err = b.Commit()
	require.NoError(t, err)

	p, err := s.GetPerson(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"director"}, p.Career)
	assert.Equal(t, []model.Relation{{SubjectID: 253, Relation: "导演"}}, p.Relations)
}

func TestEnsureGroup(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	b, err := s.Begin(ctx)
	require.NoError(t, err)
	defer b.Rollback()

	h, err := New(b).EnsureGroup(ctx, dto.Group{ID: 4, Name: "a", Title: "动漫", Members: 10, CreatedAt: 1600000000})
	require.NoError(t, err)
	assert.True(t, h.Created)
	_, err = b.Commit()
	require.NoError(t, err)

	g, err := s.GetGroup(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1600000000, 0).UTC(), g.CreatedAt)
}

func TestEnsure_InvalidKey(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	b, err := s.Begin(ctx)
	require.NoError(t, err)
	defer b.Rollback()

	_, err = New(b).Ensure(ctx, dto.Subject{ID: 0})
	assert.ErrorIs(t, err, store.ErrInvalidKey)
	_, err = New(b).Ensure(ctx, dto.Episode{ID: -1})
	assert.ErrorIs(t, err, store.ErrInvalidKey)
}

func TestMergeRelations(t *testing.T) {
	got := MergeRelations(
		[]model.Relation{{SubjectID: 3, Relation: "a"}, {SubjectID: 1, Relation: "b"}},
		model.Relation{SubjectID: 2, Relation: "c"},
		model.Relation{SubjectID: 3, Relation: "d"},
	)
	assert.Equal(t, []model.Relation{
		{SubjectID: 1, Relation: "b"},
		{SubjectID: 2, Relation: "c"},
		{SubjectID: 3, Relation: "d"},
	}, got)
	assert.Equal(t, []model.Relation{}, MergeRelations(nil))
}
