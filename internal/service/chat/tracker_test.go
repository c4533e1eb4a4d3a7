package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhil/teamhub/internal/apperr"
	"github.com/nikhil/teamhub/internal/database"
	"github.com/nikhil/teamhub/internal/models"
	"github.com/nikhil/teamhub/internal/service/authz"
	"github.com/nikhil/teamhub/internal/service/chat"
	"github.com/nikhil/teamhub/internal/service/membership"
	"github.com/nikhil/teamhub/internal/testutil"
)

type fixture struct {
	db       *database.DB
	clock    *testutil.Clock
	store    *membership.Store
	tracker  *chat.Tracker
	aliceID  int64
	bobID    int64
	viewerID int64
	teamID   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db := testutil.OpenDB(t)
	clock := testutil.NewClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	log := testutil.Logger()
	store := membership.NewStore(db, log, membership.WithClock(clock.Now))
	f := &fixture{
		db:       db,
		clock:    clock,
		store:    store,
		tracker:  chat.NewTracker(db, authz.NewGate(store, log), log, chat.WithClock(clock.Now)),
		aliceID:  testutil.SeedUser(t, db, "alice@example.com"),
		bobID:    testutil.SeedUser(t, db, "bob@example.com"),
		viewerID: testutil.SeedUser(t, db, "viewer@example.com"),
	}
	team, err := store.CreateTeam(ctx, "Chatters", "", "", f.aliceID)
	require.NoError(t, err)
	f.teamID = team.ID
	require.NoError(t, store.AddMember(ctx, f.teamID, f.bobID, models.RoleMember, nil))
	require.NoError(t, store.AddMember(ctx, f.teamID, f.viewerID, models.RoleViewer, nil))
	return f
}

func (f *fixture) send(t *testing.T, userID int64, body string) models.ChatMessage {
	t.Helper()
	f.clock.Advance(time.Second)
	msg, err := f.tracker.Send(context.Background(), f.teamID, userID, body, "", nil)
	require.NoError(t, err)
	return msg
}

func TestUnreadCountAndMarkAsRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m1 := f.send(t, f.aliceID, "one")
	m2 := f.send(t, f.aliceID, "two")
	f.send(t, f.bobID, "three")

	n, err := f.tracker.GetUnreadCount(ctx, f.teamID, f.bobID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.tracker.GetUnreadCount(ctx, f.teamID, f.aliceID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	written, err := f.tracker.MarkAsRead(ctx, f.teamID, f.bobID, []int64{m2.ID, m1.ID, m2.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), written)

	n, err = f.tracker.GetUnreadCount(ctx, f.teamID, f.bobID)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Marking again writes nothing.
	written, err = f.tracker.MarkAsRead(ctx, f.teamID, f.bobID, []int64{m1.ID, m2.ID})
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.Equal(t, 2, testutil.Count(t, f.db, `SELECT COUNT(*) FROM chat_message_reads WHERE user_id = ?`, f.bobID))
}

func TestMarkAsReadIgnoresOtherTeams(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, err := f.store.CreateTeam(ctx, "Elsewhere", "", "", f.bobID)
	require.NoError(t, err)
	foreign, err := f.tracker.Send(ctx, other.ID, f.bobID, "secret", "", nil)
	require.NoError(t, err)

	written, err := f.tracker.MarkAsRead(ctx, f.teamID, f.aliceID, []int64{foreign.ID, 9999})
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.Zero(t, testutil.Count(t, f.db, `SELECT COUNT(*) FROM chat_message_reads`))
}

func TestMarkAsReadValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.MarkAsRead(ctx, f.teamID, f.bobID, nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.tracker.MarkAsRead(ctx, f.teamID, f.bobID, []int64{1, -2})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	tooMany := make([]int64, chat.MaxMarkBatch+1)
	for i := range tooMany {
		tooMany[i] = int64(i + 1)
	}
	_, err = f.tracker.MarkAsRead(ctx, f.teamID, f.bobID, tooMany)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestNonMemberIsDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	outsider := testutil.SeedUser(t, f.db, "outsider@example.com")
	msg := f.send(t, f.aliceID, "members only")

	_, err := f.tracker.GetUnreadCount(ctx, f.teamID, outsider)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	_, err = f.tracker.MarkAsRead(ctx, f.teamID, outsider, []int64{msg.ID})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	_, err = f.tracker.GetByTeamID(ctx, f.teamID, 10, 0, outsider)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	_, err = f.tracker.Send(ctx, f.teamID, outsider, "hello", "", nil)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestGetByTeamIDWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var sent []models.ChatMessage
	for _, body := range []string{"m1", "m2", "m3", "m4", "m5"} {
		sent = append(sent, f.send(t, f.aliceID, body))
	}
	_, err := f.tracker.MarkAsRead(ctx, f.teamID, f.bobID, []int64{sent[3].ID})
	require.NoError(t, err)

	page, err := f.tracker.GetByTeamID(ctx, f.teamID, 3, 0, f.bobID)
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)
	assert.Equal(t, []string{"m3", "m4", "m5"}, bodies(page.Messages))
	assert.Equal(t, []bool{false, true, false}, readFlags(page.Messages))
	assert.Equal(t, 4, page.UnreadCount)
	assert.Equal(t, "First", page.Messages[0].FirstName)

	page, err = f.tracker.GetByTeamID(ctx, f.teamID, 3, 3, f.bobID)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, bodies(page.Messages))

	page, err = f.tracker.GetByTeamID(ctx, f.teamID, 0, -5, f.aliceID)
	require.NoError(t, err)
	assert.Equal(t, chat.DefaultLimit, page.Limit)
	assert.Zero(t, page.Offset)
	assert.Len(t, page.Messages, 5)
	assert.Equal(t, []bool{true, true, true, true, true}, readFlags(page.Messages))

	page, err = f.tracker.GetByTeamID(ctx, f.teamID, 1000, 0, f.aliceID)
	require.NoError(t, err)
	assert.Equal(t, chat.MaxLimit, page.Limit)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.Send(ctx, f.teamID, f.bobID, "   ", "", nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	long := make([]byte, 5001)
	for i := range long {
		long[i] = 'a'
	}
	_, err = f.tracker.Send(ctx, f.teamID, f.bobID, string(long), "", nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.tracker.Send(ctx, f.teamID, f.bobID, "hi", models.MessageType("video"), nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	missing := int64(12345)
	_, err = f.tracker.Send(ctx, f.teamID, f.bobID, "hi", "", &missing)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestSendReplyAndViewerPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root := f.send(t, f.aliceID, "question")
	reply, err := f.tracker.Send(ctx, f.teamID, f.viewerID, "answer", models.MessageText, &root.ID)
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, root.ID, *reply.ReplyTo)
	assert.True(t, reply.IsRead)
	assert.Equal(t, models.MessageText, reply.Type)
}

func TestEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := f.send(t, f.bobID, "typo")

	_, err := f.tracker.Edit(ctx, f.teamID, msg.ID, f.aliceID, "fixed")
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = f.tracker.Edit(ctx, f.teamID, 777, f.bobID, "fixed")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	f.clock.Advance(time.Minute)
	edited, err := f.tracker.Edit(ctx, f.teamID, msg.ID, f.bobID, "fixed")
	require.NoError(t, err)
	assert.Equal(t, "fixed", edited.Body)
	assert.True(t, edited.IsEdited)
	require.NotNil(t, edited.EditedAt)
	assert.Equal(t, f.clock.Now().Unix(), *edited.EditedAt)

	page, err := f.tracker.GetByTeamID(ctx, f.teamID, 10, 0, f.aliceID)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "fixed", page.Messages[0].Body)
	assert.True(t, page.Messages[0].IsEdited)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.send(t, f.bobID, "mine")
	theirs := f.send(t, f.viewerID, "theirs")
	_, err := f.tracker.MarkAsRead(ctx, f.teamID, f.aliceID, []int64{mine.ID, theirs.ID})
	require.NoError(t, err)

	assert.True(t, apperr.Is(f.tracker.Delete(ctx, f.teamID, theirs.ID, f.bobID), apperr.KindAuthorization))

	require.NoError(t, f.tracker.Delete(ctx, f.teamID, mine.ID, f.bobID))
	// Owners may delete anybody's message.
	require.NoError(t, f.tracker.Delete(ctx, f.teamID, theirs.ID, f.aliceID))

	assert.Zero(t, testutil.Count(t, f.db, `SELECT COUNT(*) FROM chat_messages`))
	assert.Zero(t, testutil.Count(t, f.db, `SELECT COUNT(*) FROM chat_message_reads`))
	assert.True(t, apperr.Is(f.tracker.Delete(ctx, f.teamID, mine.ID, f.bobID), apperr.KindNotFound))
}

func TestUnreadByTeam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	quiet, err := f.store.CreateTeam(ctx, "Quiet", "", "", f.bobID)
	require.NoError(t, err)
	f.send(t, f.aliceID, "a")
	f.send(t, f.aliceID, "b")

	counts, err := f.tracker.UnreadByTeam(ctx, f.bobID)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{f.teamID: 2, quiet.ID: 0}, counts)
}

func bodies(msgs []models.ChatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Body
	}
	return out
}

func readFlags(msgs []models.ChatMessage) []bool {
	out := make([]bool, len(msgs))
	for i, m := range msgs {
		out[i] = m.IsRead
	}
	return out
}
