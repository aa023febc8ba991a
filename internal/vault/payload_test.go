package vault

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewPayloadDefaults(t *testing.T) {
	p := NewPayload()
	assert.Empty(t, p.Records)
	cats := p.ListCategories()
	require.Len(t, cats, 7)
	assert.Equal(t, UncategorizedID, cats[0].ID)
	assert.Equal(t, "Banking", cats[1].Name)
	for _, c := range cats {
		assert.True(t, ValidColor(c.Color), c.Color)
	}
}

func TestAddEditDeleteRecord(t *testing.T) {
	p := NewPayload()
	r, err := p.AddRecord(RecordInput{Service: " mail ", Username: "a@b.c", Secret: "pw1"}, t0)
	require.NoError(t, err)
	assert.Len(t, r.ID, 36)
	assert.Equal(t, "mail", r.Service)
	assert.Equal(t, UncategorizedID, r.CategoryID)
	assert.Equal(t, t0, r.Created)

	later := t0.Add(time.Hour)
	edited, err := p.EditRecord(r.ID, RecordInput{Service: "mail", Username: "a@b.c", Secret: "pw2"}, later)
	require.NoError(t, err)
	assert.Equal(t, "pw2", edited.Secret)
	assert.Equal(t, t0, edited.Created)
	assert.Equal(t, later, edited.Modified)
	assert.Equal(t, UncategorizedID, edited.CategoryID)

	require.NoError(t, p.DeleteRecord(r.ID))
	_, err = p.Record(r.ID)
	assert.True(t, errors.Is(err, ErrRecordNotFound))
	assert.True(t, errors.Is(p.DeleteRecord(r.ID), ErrRecordNotFound))
}

func TestAddRecordValidation(t *testing.T) {
	p := NewPayload()
	_, err := p.AddRecord(RecordInput{Service: "", Secret: "x"}, t0)
	assert.True(t, errors.Is(err, ErrInvalidRecord))
	_, err = p.AddRecord(RecordInput{Service: "svc"}, t0)
	assert.True(t, errors.Is(err, ErrInvalidRecord))
	_, err = p.AddRecord(RecordInput{Service: "svc", Secret: "x", CategoryID: "nope"}, t0)
	assert.True(t, errors.Is(err, ErrCategoryNotFound))
	assert.Empty(t, p.Records)
}

func TestCloneIsolation(t *testing.T) {
	p := NewPayload()
	r, err := p.AddRecord(RecordInput{Service: "svc", Secret: "x"}, t0)
	require.NoError(t, err)

	c := p.Clone()
	_, err = c.EditRecord(r.ID, RecordInput{Service: "svc", Secret: "changed"}, t0)
	require.NoError(t, err)
	require.NoError(t, c.DeleteRecord(r.ID))
	_, err = c.AddCategory(CategoryInput{Name: "Games"})
	require.NoError(t, err)

	got, err := p.Record(r.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", got.Secret)
	assert.Len(t, p.Categories, 7)
}

func TestCategoryRules(t *testing.T) {
	p := NewPayload()

	_, err := p.AddCategory(CategoryInput{Name: "banking"})
	assert.True(t, errors.Is(err, ErrDuplicateCategory))
	_, err = p.AddCategory(CategoryInput{Name: "  "})
	assert.True(t, errors.Is(err, ErrInvalidCategory))
	_, err = p.AddCategory(CategoryInput{Name: "Games", Color: "red"})
	assert.True(t, errors.Is(err, ErrInvalidCategory))

	games, err := p.AddCategory(CategoryInput{Name: "Games", Color: "#0f0"})
	require.NoError(t, err)
	assert.Equal(t, DefaultIcon, games.Icon)

	_, err = p.UpdateCategory(UncategorizedID, CategoryInput{Name: "Other"})
	assert.True(t, errors.Is(err, ErrFixedCategory))
	u, err := p.UpdateCategory(UncategorizedID, CategoryInput{Color: "#123456"})
	require.NoError(t, err)
	assert.Equal(t, "#123456", u.Color)

	_, err = p.UpdateCategory(games.ID, CategoryInput{Name: "WORK"})
	assert.True(t, errors.Is(err, ErrDuplicateCategory))
	g, err := p.UpdateCategory(games.ID, CategoryInput{Name: "games"})
	require.NoError(t, err)
	assert.Equal(t, "games", g.Name)

	_, err = p.DeleteCategory(UncategorizedID, t0)
	assert.True(t, errors.Is(err, ErrFixedCategory))
}

func TestDeleteCategoryReassignsRecords(t *testing.T) {
	p := NewPayload()
	work, err := p.CategoryByName("work")
	require.NoError(t, err)

	a, err := p.AddRecord(RecordInput{Service: "jira", Secret: "x", CategoryID: work.ID}, t0)
	require.NoError(t, err)
	_, err = p.AddRecord(RecordInput{Service: "slack", Secret: "y", CategoryID: work.ID}, t0)
	require.NoError(t, err)
	_, err = p.AddRecord(RecordInput{Service: "bank", Secret: "z"}, t0)
	require.NoError(t, err)

	counts := p.CountByCategory()
	assert.Equal(t, 2, counts[work.ID])
	assert.Equal(t, 1, counts[UncategorizedID])

	moved, err := p.DeleteCategory(work.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	got, err := p.Record(a.ID)
	require.NoError(t, err)
	assert.Equal(t, UncategorizedID, got.CategoryID)
	assert.Equal(t, 3, p.CountByCategory()[UncategorizedID])
}

func TestMoveRecord(t *testing.T) {
	p := NewPayload()
	r, err := p.AddRecord(RecordInput{Service: "svc", Secret: "x"}, t0)
	require.NoError(t, err)
	email, err := p.CategoryByName("Email")
	require.NoError(t, err)

	moved, err := p.MoveRecord(r.ID, email.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, email.ID, moved.CategoryID)

	_, err = p.MoveRecord(r.ID, "missing", t0)
	assert.True(t, errors.Is(err, ErrCategoryNotFound))
	_, err = p.MoveRecord("missing", email.ID, t0)
	assert.True(t, errors.Is(err, ErrRecordNotFound))
}

func TestDecodePayloadRepairs(t *testing.T) {
	data := []byte(`{"records":[{"service":"a","secret":"x","category":"gone"},{"id":"r2","service":"b","secret":"y","category":"uncategorized"}],"categories":[{"id":"c1","name":"Work","color":"#fff"}]}`)
	p, err := DecodePayload(data)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, p.categoryIndex(UncategorizedID), 0)
	require.Len(t, p.Records, 2)
	assert.NotEmpty(t, p.Records[0].ID)
	assert.Equal(t, UncategorizedID, p.Records[0].CategoryID)
	assert.Equal(t, "r2", p.Records[1].ID)

	_, err = DecodePayload([]byte("not json"))
	assert.True(t, errors.Is(err, ErrMalformedPayload))
}

func TestPayloadEncodeDecode(t *testing.T) {
	p := NewPayload()
	_, err := p.AddRecord(RecordInput{Service: "svc", Username: "u", Secret: "s3cr3t", URL: "https://example.com"}, t0)
	require.NoError(t, err)

	data, err := p.Encode()
	require.NoError(t, err)
	back, err := DecodePayload(data)
	require.NoError(t, err)
	assert.Equal(t, p.ListRecords(), back.ListRecords())
	assert.Equal(t, p.ListCategories(), back.ListCategories())
}

func TestValidColor(t *testing.T) {
	for _, c := range []string{"#fff", "#FFFFFF", "#a1B2c3"} {
		assert.True(t, ValidColor(c), c)
	}
	for _, c := range []string{"fff", "#ffff", "#ggg", "", "#"} {
		assert.False(t, ValidColor(c), c)
	}
}
