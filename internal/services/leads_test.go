package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadhub/crm/internal/models"
)

func TestLeadStore_CreateDefaultsStage(t *testing.T) {
	store := NewLeadStore(openTestDB(t))
	ctx := context.Background()

	lead, err := store.Create(ctx, LeadInput{FullName: sp("Ann Lee"), Phone: sp("79990001122")})
	require.NoError(t, err)
	assert.NotZero(t, lead.ID)
	assert.Equal(t, models.StageNew, lead.Stage)
	assert.False(t, lead.IsArchived)
}

func TestLeadStore_CreateDuplicateTelegramID(t *testing.T) {
	store := NewLeadStore(openTestDB(t))
	ctx := context.Background()

	_, err := store.Create(ctx, LeadInput{TelegramID: ip(42)})
	require.NoError(t, err)

	_, err = store.Create(ctx, LeadInput{TelegramID: ip(42)})
	require.Error(t, err)
	assert.True(t, IsConflict(err), "got %v", err)

	// absent identities never collide
	_, err = store.Create(ctx, LeadInput{FullName: sp("a")})
	require.NoError(t, err)
	_, err = store.Create(ctx, LeadInput{FullName: sp("b")})
	require.NoError(t, err)
}

func TestLeadStore_CreateUnknownBatch(t *testing.T) {
	store := NewLeadStore(openTestDB(t))

	missing := uint(999)
	_, err := store.Create(context.Background(), LeadInput{FullName: sp("x"), BatchID: &missing})
	require.Error(t, err)
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestLeadStore_RecordInteraction(t *testing.T) {
	store := NewLeadStore(openTestDB(t))
	ctx := context.Background()

	lead, err := store.Create(ctx, LeadInput{FullName: sp("Bob")})
	require.NoError(t, err)

	next := time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC)
	_, err = store.RecordInteraction(ctx, InteractionInput{
		LeadID:          lead.ID,
		ContactMethod:   "call",
		Content:         "first",
		NewStage:        sp(models.StageProposal),
		NextContactDate: &next,
	})
	require.NoError(t, err)

	_, err = store.RecordInteraction(ctx, InteractionInput{LeadID: lead.ID, ContactMethod: "telegram", Content: "second"})
	require.NoError(t, err)

	got, err := store.Get(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageProposal, got.Stage, "stage is kept when no new stage is given")
	require.NotNil(t, got.NextContactDate)
	assert.True(t, next.Equal(*got.NextContactDate))
	require.Len(t, got.Interactions, 2)
	assert.Equal(t, "second", got.Interactions[0].Content, "newest first")
	assert.Equal(t, "first", got.Interactions[1].Content)
}

func TestLeadStore_RecordInteractionUnknownLead(t *testing.T) {
	gdb := openTestDB(t)
	store := NewLeadStore(gdb)

	_, err := store.RecordInteraction(context.Background(), InteractionInput{LeadID: 999, Content: "x"})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var n int64
	gdb.Model(&models.Interaction{}).Count(&n)
	assert.Zero(t, n, "nothing is written for an unknown lead")
}

func TestLeadStore_ArchiveRestore(t *testing.T) {
	store := NewLeadStore(openTestDB(t))
	ctx := context.Background()

	lead, err := store.Create(ctx, LeadInput{FullName: sp("Cat")})
	require.NoError(t, err)

	require.NoError(t, store.Archive(ctx, lead.ID))
	require.NoError(t, store.Archive(ctx, lead.ID), "archiving twice is a no-op")

	active, err := store.List(ctx, LeadFilter{})
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := store.List(ctx, LeadFilter{IncludeArchived: true})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].IsArchived)

	require.NoError(t, store.Restore(ctx, lead.ID))
	active, err = store.List(ctx, LeadFilter{})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	assert.True(t, IsNotFound(store.Archive(ctx, 12345)))
	assert.True(t, IsNotFound(store.Restore(ctx, 12345)))
}

func TestLeadStore_DeleteRemovesInteractions(t *testing.T) {
	gdb := openTestDB(t)
	store := NewLeadStore(gdb)
	ctx := context.Background()

	lead, err := store.Create(ctx, LeadInput{FullName: sp("Dan")})
	require.NoError(t, err)
	_, err = store.RecordInteraction(ctx, InteractionInput{LeadID: lead.ID, Content: "hi"})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, lead.ID))

	_, err = store.Get(ctx, lead.ID)
	assert.True(t, IsNotFound(err))

	var n int64
	gdb.Model(&models.Interaction{}).Where("lead_id = ?", lead.ID).Count(&n)
	assert.Zero(t, n)

	assert.True(t, IsNotFound(store.Delete(ctx, lead.ID)))
}

func TestLeadStore_ListFilters(t *testing.T) {
	store := NewLeadStore(openTestDB(t))
	ctx := context.Background()

	for _, in := range []LeadInput{
		{FullName: sp("Ivan Petrov"), Phone: sp("111"), Stage: models.StageNew},
		{FullName: sp("Maria Ivanova"), Phone: sp("222"), Stage: models.StageNegotiation},
		{FullName: sp("John Smith"), Username: sp("IVAN_fan"), Stage: models.StageNew},
		{FullName: sp("Zed"), Phone: sp("333"), Stage: models.StageNew},
	} {
		_, err := store.Create(ctx, in)
		require.NoError(t, err)
	}

	got, err := store.List(ctx, LeadFilter{Search: "ivan"})
	require.NoError(t, err)
	assert.Len(t, got, 3, "search is case-insensitive over name, phone and username")

	got, err = store.List(ctx, LeadFilter{Stage: models.StageNew})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = store.List(ctx, LeadFilter{Search: "ivan", Stage: models.StageNew})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.List(ctx, LeadFilter{Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Less(t, got[0].ID, got[1].ID)

	n, err := store.Count(ctx, LeadFilter{Search: "22"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestLeadStore_SearchCyrillic(t *testing.T) {
	store := NewLeadStore(openTestDB(t))
	ctx := context.Background()

	for _, in := range []LeadInput{
		{FullName: sp("Иван Петров")},
		{FullName: sp("Ivan Petrov")},
		{FullName: sp("Мария"), Username: sp("Ивановна_m")},
	} {
		_, err := store.Create(ctx, in)
		require.NoError(t, err)
	}

	for term, want := range map[string]int{
		"Иван":   2,
		"иван":   2,
		"ИВАН":   2,
		"петров": 1,
		"Ivan":   1,
	} {
		n, err := store.Count(ctx, LeadFilter{Search: term})
		require.NoError(t, err)
		assert.EqualValues(t, want, n, "search %q", term)
	}
}

func TestLeadStore_SearchEscapesWildcards(t *testing.T) {
	store := NewLeadStore(openTestDB(t))
	ctx := context.Background()

	_, err := store.Create(ctx, LeadInput{FullName: sp("Plain")})
	require.NoError(t, err)
	_, err = store.Create(ctx, LeadInput{FullName: sp("Other"), Username: sp("under_score")})
	require.NoError(t, err)
	_, err = store.Create(ctx, LeadInput{FullName: sp("100% sure")})
	require.NoError(t, err)

	n, err := store.Count(ctx, LeadFilter{Search: "_"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = store.Count(ctx, LeadFilter{Search: "%"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestLeadStore_RenameStage(t *testing.T) {
	store := NewLeadStore(openTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Create(ctx, LeadInput{Stage: "Новый"})
		require.NoError(t, err)
	}
	_, err := store.Create(ctx, LeadInput{Stage: models.StageDealClosed})
	require.NoError(t, err)

	n, err := store.RenameStage(ctx, "Новый", models.StageNew)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	cnt, err := store.Count(ctx, LeadFilter{Stage: models.StageNew})
	require.NoError(t, err)
	assert.EqualValues(t, 3, cnt)

	_, err = store.RenameStage(ctx, "", "x")
	assert.True(t, IsInvalidArgument(err))
}

func TestLeadStore_DueForContact(t *testing.T) {
	store := NewLeadStore(openTestDB(t))
	ctx := context.Background()

	day := time.Date(2030, 3, 10, 15, 0, 0, 0, time.UTC)
	morning := time.Date(2030, 3, 10, 8, 0, 0, 0, time.UTC)
	tomorrow := time.Date(2030, 3, 11, 8, 0, 0, 0, time.UTC)

	due, err := store.Create(ctx, LeadInput{FullName: sp("due"), NextContactDate: &morning})
	require.NoError(t, err)
	_, err = store.Create(ctx, LeadInput{FullName: sp("later"), NextContactDate: &tomorrow})
	require.NoError(t, err)
	archived, err := store.Create(ctx, LeadInput{FullName: sp("archived"), NextContactDate: &morning})
	require.NoError(t, err)
	require.NoError(t, store.Archive(ctx, archived.ID))

	got, err := store.DueForContact(ctx, day)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)
}
