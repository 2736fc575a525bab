package reconcile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/shelfstream/internal/models"
)

func strp(s string) *string { return &s }

func commentActivity(id, entityID, userID string) models.Activity {
	return models.Activity{
		ID:       id,
		Type:     models.ActivityComment,
		EntityID: entityID,
		UserID:   userID,
		Metadata: models.Metadata{"reactions": []models.Reaction{}},
	}
}

func TestInsert_Idempotent(t *testing.T) {
	a := commentActivity("a1", "c1", "u1")

	once, changed := Insert(nil, a)
	require.True(t, changed)
	twice, changed := Insert(once, a)
	assert.False(t, changed)
	assert.Equal(t, once, twice)
	assert.Len(t, twice, 1)
}

func TestInsert_PrependsWithoutTouchingInput(t *testing.T) {
	view := []models.Activity{commentActivity("a1", "c1", "u1")}
	next, changed := Insert(view, commentActivity("a2", "c2", "u2"))
	require.True(t, changed)
	assert.Equal(t, "a2", next[0].ID)
	assert.Equal(t, "a1", next[1].ID)
	assert.Len(t, view, 1)
	assert.Equal(t, "a1", view[0].ID)
}

func TestUpdate_ReplacesInPlace(t *testing.T) {
	view := []models.Activity{commentActivity("a2", "c2", "u2"), commentActivity("a1", "c1", "u1")}
	edited := commentActivity("a1", "c1", "u1")
	edited.Metadata = models.Metadata{"title": "edited"}

	next, changed := Update(view, edited)
	require.True(t, changed)
	assert.Equal(t, "edited", next[1].Metadata["title"])
	assert.NotContains(t, view[1].Metadata, "title")

	_, changed = Update(view, commentActivity("zz", "c9", "u1"))
	assert.False(t, changed, "updates never insert")
}

func TestDelete_RemovesEveryEntryForEntity(t *testing.T) {
	view := []models.Activity{
		commentActivity("a1", "c1", "u1"),
		commentActivity("a2", "c2", "u1"),
		commentActivity("a3", "c1", "u2"),
	}
	next, changed := Delete(view, "c1")
	require.True(t, changed)
	require.Len(t, next, 1)
	assert.Equal(t, "a2", next[0].ID)

	_, changed = Delete(next, "missing")
	assert.False(t, changed)
}

func TestApplyReactions_ConcreteScenario(t *testing.T) {
	view := []models.Activity{commentActivity("a1", "c1", "u1")}
	ev := models.ReactionUpdate{
		EntityID:   "c1",
		EntityType: models.TargetComment,
		Reactions:  []models.Reaction{{Emoji: "👍", Count: 1, UserReacted: true}},
		Action:     "added",
	}

	next, changed := ApplyReactions(view, ev, "u1")
	require.True(t, changed)
	assert.Equal(t, []models.Reaction{{Emoji: "👍", Count: 1, UserReacted: true}}, next[0].Metadata.Reactions())
	assert.Equal(t, "a1", next[0].ID)
	assert.Equal(t, "c1", next[0].EntityID)
	assert.Equal(t, "u1", next[0].UserID)
	assert.Empty(t, view[0].Metadata.Reactions(), "input view is untouched")
}

func TestApplyReactions_Isolation(t *testing.T) {
	target := commentActivity("a1", "c1", "u1")
	target.Metadata["title"] = "Dune"
	target.Metadata[models.CommentCount] = float64(3)
	other := commentActivity("a2", "c2", "u2")
	other.Metadata["title"] = "Emma"
	view := []models.Activity{target, other}

	before, err := json.Marshal(view)
	require.NoError(t, err)

	next, changed := ApplyReactions(view, models.ReactionUpdate{
		EntityID:   "c1",
		EntityType: models.TargetComment,
		Reactions:  []models.Reaction{{Emoji: "🔥", Count: 2}},
	}, "u1")
	require.True(t, changed)

	after, err := json.Marshal(view)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))

	assert.Equal(t, other, next[1])
	assert.Equal(t, "Dune", next[0].Metadata["title"])
	assert.Equal(t, float64(3), next[0].Metadata[models.CommentCount])
	assert.Len(t, next[0].Metadata, 3)
}

func TestApplyReactions_MatchingRules(t *testing.T) {
	comment := commentActivity("c7", "book-1", "u1") // activity keyed by the comment id
	review := models.Activity{ID: "r-act", Type: models.ActivityReview, EntityID: "r1"}
	news := models.Activity{ID: "n-act", Type: models.ActivityNews, EntityID: "x1"}
	book := models.Activity{ID: "b-act", Type: models.ActivityBook, EntityID: "x1"}
	view := []models.Activity{comment, review, news, book}
	reactions := []models.Reaction{{Emoji: "❤️", Count: 1}}

	t.Run("comment by activity id", func(t *testing.T) {
		next, changed := ApplyReactions(view, models.ReactionUpdate{
			EntityID: "other", CommentID: "c7", EntityType: models.TargetComment, Reactions: reactions,
		}, "")
		require.True(t, changed)
		assert.Equal(t, reactions, next[0].Metadata.Reactions())
		assert.Nil(t, next[1].Metadata.Reactions())
	})

	t.Run("review by entity id", func(t *testing.T) {
		next, changed := ApplyReactions(view, models.ReactionUpdate{
			EntityID: "r1", EntityType: models.TargetReview, Reactions: reactions,
		}, "")
		require.True(t, changed)
		assert.Equal(t, reactions, next[1].Metadata.Reactions())
	})

	t.Run("news requires news type", func(t *testing.T) {
		next, changed := ApplyReactions(view, models.ReactionUpdate{
			EntityID: "x1", EntityType: models.TargetNews, Reactions: reactions,
		}, "")
		require.True(t, changed)
		assert.Equal(t, reactions, next[2].Metadata.Reactions())
		assert.Nil(t, next[3].Metadata.Reactions(), "a book sharing the id is not touched")
	})

	t.Run("review does not fall back to activity id", func(t *testing.T) {
		_, changed := ApplyReactions(view, models.ReactionUpdate{
			EntityID: "nope", CommentID: "r-act", EntityType: models.TargetReview, Reactions: reactions,
		}, "")
		assert.False(t, changed)
	})
}

func TestApplyReactions_KeepsViewerFlagsForOtherActors(t *testing.T) {
	a := commentActivity("a1", "c1", "u1")
	a.Metadata["reactions"] = []models.Reaction{{Emoji: "👍", Count: 1, UserReacted: true}}
	view := []models.Activity{a}

	next, _ := ApplyReactions(view, models.ReactionUpdate{
		EntityID:   "c1",
		EntityType: models.TargetComment,
		UserID:     "u2",
		Action:     "added",
		Reactions: []models.Reaction{
			{Emoji: "👍", Count: 2, UserReacted: true},
			{Emoji: "🔥", Count: 1, UserReacted: true},
		},
	}, "u1")

	assert.Equal(t, []models.Reaction{
		{Emoji: "👍", Count: 2, UserReacted: true},
		{Emoji: "🔥", Count: 1, UserReacted: false},
	}, next[0].Metadata.Reactions())
}

func TestApplyCounters_Partial(t *testing.T) {
	a := models.Activity{
		ID: "a1", Type: models.ActivityBook, EntityID: "b1",
		Metadata: models.Metadata{
			models.CommentCount:  float64(1),
			models.ReactionCount: float64(4),
			models.ViewCount:     float64(10),
			models.ReviewCount:   float64(2),
		},
	}
	next, changed := ApplyCounters([]models.Activity{a}, models.CounterUpdate{
		EntityID: "b1", EntityType: models.ActivityBook,
		Counters: map[string]int64{models.CommentCount: 5},
	})
	require.True(t, changed)

	md := next[0].Metadata
	n, _ := md.Int(models.CommentCount)
	assert.Equal(t, int64(5), n)
	n, _ = md.Int(models.ReactionCount)
	assert.Equal(t, int64(4), n)
	n, _ = md.Int(models.ViewCount)
	assert.Equal(t, int64(10), n)
	n, _ = md.Int(models.ReviewCount)
	assert.Equal(t, int64(2), n)

	old, _ := a.Metadata.Int(models.CommentCount)
	assert.Equal(t, int64(1), old)
}

func TestApplyCounters_Matching(t *testing.T) {
	byNews := models.Activity{ID: "a1", Type: models.ActivityNews, EntityID: "cmt", NewsID: strp("n1")}
	byBook := models.Activity{ID: "a2", Type: models.ActivityBook, EntityID: "x", BookID: strp("b1")}
	wrongType := models.Activity{ID: "a3", Type: models.ActivityComment, EntityID: "n1"}
	view := []models.Activity{byNews, byBook, wrongType}

	next, changed := ApplyCounters(view, models.CounterUpdate{
		EntityID: "n1", EntityType: models.ActivityNews, Counters: map[string]int64{models.ViewCount: 7},
	})
	require.True(t, changed)
	n, ok := next[0].Metadata.Int(models.ViewCount)
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)
	_, ok = next[2].Metadata.Int(models.ViewCount)
	assert.False(t, ok, "type must match as well as the id")

	next, changed = ApplyCounters(view, models.CounterUpdate{
		EntityID: "b1", EntityType: models.ActivityBook, Counters: map[string]int64{models.ReviewCount: 3},
	})
	require.True(t, changed)
	n, _ = next[1].Metadata.Int(models.ReviewCount)
	assert.Equal(t, int64(3), n)
}

func TestApplyCounters_IgnoresUnknownCounters(t *testing.T) {
	view := []models.Activity{{ID: "a1", Type: models.ActivityBook, EntityID: "b1"}}
	_, changed := ApplyCounters(view, models.CounterUpdate{
		EntityID: "b1", EntityType: models.ActivityBook, Counters: map[string]int64{"likes": 9},
	})
	assert.False(t, changed)
}

func TestRoute(t *testing.T) {
	a := models.Activity{ID: "a1", UserID: "u1"}
	assert.ElementsMatch(t, []Feed{FeedGlobal, FeedLastActions}, Route(a, "u2"))
	assert.ElementsMatch(t, []Feed{FeedGlobal, FeedLastActions, FeedPersonal}, Route(a, "u1"))
	assert.ElementsMatch(t, []Feed{FeedGlobal, FeedLastActions}, Route(models.Activity{ID: "a2"}, ""),
		"an anonymous viewer has no personal feed")

	a.BookID = strp("b1")
	assert.ElementsMatch(t, []Feed{FeedGlobal, FeedLastActions, FeedShelves}, Route(a, "u2"))
}
