package users_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhil/teamhub/internal/apperr"
	"github.com/nikhil/teamhub/internal/service/users"
	"github.com/nikhil/teamhub/internal/testutil"
)

func TestDirectoryLookups(t *testing.T) {
	db := testutil.OpenDB(t)
	dir := users.NewDirectory(db, testutil.Logger())
	ctx := context.Background()
	id := testutil.SeedUser(t, db, "Grace@Example.com")

	byID, err := dir.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Grace@Example.com", byID.Email)
	assert.Equal(t, "First", byID.FirstName)

	byEmail, err := dir.FindByEmail(ctx, " grace@example.COM ")
	require.NoError(t, err)
	assert.Equal(t, id, byEmail.UserID)

	_, err = dir.FindByID(ctx, id+100)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = dir.FindByEmail(ctx, "nobody@example.com")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
