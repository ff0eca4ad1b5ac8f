package repositories

import (
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"whiteboard-hub/domain"
)

func openTestDB(t *testing.T, dir string) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(dir).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	return db
}

func someEvents() []domain.DrawingEvent {
	return []domain.DrawingEvent{
		{X: 10, Y: 20, Color: domain.Color{}, Size: 4},
		{X: 10.5, Y: 20.5, Color: domain.Color{R: 255, G: 128}, Size: 4},
		{X: 300, Y: 40, Color: domain.Color{B: 7}, Size: 12},
	}
}

func Test_Append_Then_ReadAll_Preserves_Order(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t, t.TempDir())
	defer db.Close()
	eventLog := NewEventLog(db, slog.Default())
	defer eventLog.Close()
	room := domain.RoomID("alpha")

	for _, event := range someEvents() {
		req.NoError(eventLog.Append(room, event))
	}

	fetched, err := eventLog.ReadAll(room)
	req.NoError(err)
	req.Equal(someEvents(), fetched)
}

func Test_ReadAll_Unknown_Room_Is_Empty(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t, t.TempDir())
	defer db.Close()
	eventLog := NewEventLog(db, slog.Default())
	defer eventLog.Close()

	fetched, err := eventLog.ReadAll("ghost")
	req.NoError(err)
	req.Empty(fetched)
}

func Test_DeleteAll_Wipes_Only_That_Room(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t, t.TempDir())
	defer db.Close()
	eventLog := NewEventLog(db, slog.Default())
	defer eventLog.Close()

	for _, event := range someEvents() {
		req.NoError(eventLog.Append("alpha", event))
		req.NoError(eventLog.Append("beta", event))
	}

	req.NoError(eventLog.DeleteAll("alpha"))

	cleared, err := eventLog.ReadAll("alpha")
	req.NoError(err)
	req.Empty(cleared)

	kept, err := eventLog.ReadAll("beta")
	req.NoError(err)
	req.Equal(someEvents(), kept)

	// A cleared room disappears from discovery
	rooms, err := eventLog.ListRooms()
	req.NoError(err)
	req.Equal([]domain.RoomID{"beta"}, rooms)
}

func Test_DeleteAll_Unknown_Room_Is_A_NoOp(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t, t.TempDir())
	defer db.Close()
	eventLog := NewEventLog(db, slog.Default())
	defer eventLog.Close()

	req.NoError(eventLog.DeleteAll("ghost"))
}

func Test_Append_After_Clear_Starts_A_Fresh_History(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t, t.TempDir())
	defer db.Close()
	eventLog := NewEventLog(db, slog.Default())
	defer eventLog.Close()
	room := domain.RoomID("alpha")
	events := someEvents()

	req.NoError(eventLog.Append(room, events[0]))
	req.NoError(eventLog.Append(room, events[1]))
	req.NoError(eventLog.DeleteAll(room))
	req.NoError(eventLog.Append(room, events[2]))

	fetched, err := eventLog.ReadAll(room)
	req.NoError(err)
	req.Equal([]domain.DrawingEvent{events[2]}, fetched)
}

func Test_ListRooms_Is_Distinct_And_Sorted(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t, t.TempDir())
	defer db.Close()
	eventLog := NewEventLog(db, slog.Default())
	defer eventLog.Close()
	event := someEvents()[0]

	req.NoError(eventLog.Append("charlie", event))
	req.NoError(eventLog.Append("alpha", event))
	req.NoError(eventLog.Append("beta", event))
	req.NoError(eventLog.Append("alpha", event))

	rooms, err := eventLog.ListRooms()
	req.NoError(err)
	req.Equal([]domain.RoomID{"alpha", "beta", "charlie"}, rooms)
}

func Test_Room_Names_With_Separator_Characters(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t, t.TempDir())
	defer db.Close()
	eventLog := NewEventLog(db, slog.Default())
	defer eventLog.Close()
	// Room identifiers are opaque; ':' must not corrupt the key layout
	room := domain.RoomID("team:42/daily sketch")
	event := someEvents()[0]

	req.NoError(eventLog.Append(room, event))

	fetched, err := eventLog.ReadAll(room)
	req.NoError(err)
	req.Equal([]domain.DrawingEvent{event}, fetched)

	rooms, err := eventLog.ListRooms()
	req.NoError(err)
	req.Equal([]domain.RoomID{room}, rooms)
}

func Test_History_Survives_Reopen(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	room := domain.RoomID("alpha")
	events := someEvents()

	db := openTestDB(t, dir)
	eventLog := NewEventLog(db, slog.Default())
	req.NoError(eventLog.Append(room, events[0]))
	req.NoError(eventLog.Append(room, events[1]))
	eventLog.Close()
	req.NoError(db.Close())

	// The hub restarts: membership is gone, the log is not
	db = openTestDB(t, dir)
	defer db.Close()
	eventLog = NewEventLog(db, slog.Default())
	defer eventLog.Close()

	req.NoError(eventLog.Append(room, events[2]))

	fetched, err := eventLog.ReadAll(room)
	req.NoError(err)
	req.Equal(events, fetched)
}
