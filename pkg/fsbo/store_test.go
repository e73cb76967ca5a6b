package fsbo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispodojo/agent-finder/pkg/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "fsbo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreSearchLifecycle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	criteria := testCriteria()

	require.NoError(t, store.SaveSearch(ctx, "abc12345", criteria))
	// Saving the same id again is a no-op, not an error
	require.NoError(t, store.SaveSearch(ctx, "abc12345", criteria))

	rec, err := store.Search(ctx, "abc12345")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "running", rec.Status)
	assert.Equal(t, "AZ", rec.State)
	assert.Equal(t, "Phoenix", rec.CityZip)
	assert.Equal(t, "city_state", rec.LocationType)

	decoded, err := rec.Criteria()
	require.NoError(t, err)
	assert.Equal(t, criteria.Location, decoded.Location)

	require.NoError(t, store.CompleteSearch(ctx, "abc12345", 7))
	rec, err = store.Search(ctx, "abc12345")
	require.NoError(t, err)
	assert.Equal(t, "complete", rec.Status)
	assert.Equal(t, 7, rec.TotalListings)

	missing, err := store.Search(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStoreZipSearchColumns(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	criteria := models.FSBOSearchCriteria{
		Location:     "85001,85002",
		LocationType: models.LocationZip,
	}
	require.NoError(t, store.SaveSearch(ctx, "zip00001", criteria))

	rec, err := store.Search(ctx, "zip00001")
	require.NoError(t, err)
	assert.Equal(t, "", rec.State)
	assert.Equal(t, "85001,85002", rec.CityZip)
}

func TestStoreListings(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveSearch(ctx, "abc12345", testCriteria()))

	listings := []models.FSBOListing{
		{
			Address:     "123 Desert Rd, Phoenix, AZ 85001",
			City:        "Phoenix",
			State:       "AZ",
			ZipCode:     "85001",
			Price:       intPtr(350000),
			Beds:        intPtr(3),
			Baths:       floatPtr(2.5),
			OwnerName:   "John Seller",
			Phone:       "(555) 111-2222",
			ListingURL:  "https://www.fsbo.com/listing/1",
			Source:      "fsbo.com",
			ContactStat: models.ContactPartial,
		},
		{
			Address:     "456 Cactus Ln, Phoenix, AZ 85002",
			Source:      "craigslist",
			ContactStat: models.ContactAnonymous,
		},
	}
	require.NoError(t, store.SaveListings(ctx, "abc12345", listings))

	got, err := store.Listings(ctx, "abc12345")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "123 Desert Rd, Phoenix, AZ 85001", got[0].Address)
	require.NotNil(t, got[0].Price)
	assert.Equal(t, 350000, *got[0].Price)
	require.NotNil(t, got[0].Baths)
	assert.Equal(t, 2.5, *got[0].Baths)
	assert.Equal(t, "partial", got[0].ContactStatus)
	assert.Nil(t, got[1].Price)

	page, total, err := store.ListingsPage(ctx, "abc12345", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, "456 Cactus Ln, Phoenix, AZ 85002", page[0].Address)
}

func TestStoreDeleteCascades(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveSearch(ctx, "abc12345", testCriteria()))
	require.NoError(t, store.SaveListings(ctx, "abc12345", []models.FSBOListing{
		{Address: "123 Desert Rd", Source: "fsbo.com"},
	}))

	require.NoError(t, store.DeleteSearch(ctx, "abc12345"))

	rec, err := store.Search(ctx, "abc12345")
	require.NoError(t, err)
	assert.Nil(t, rec)

	listings, err := store.Listings(ctx, "abc12345")
	require.NoError(t, err)
	assert.Empty(t, listings)
}

func TestStoreSearchesNewestFirst(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveSearch(ctx, "first001", testCriteria()))
	require.NoError(t, store.SaveSearch(ctx, "second02", testCriteria()))

	records, err := store.Searches(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
}
