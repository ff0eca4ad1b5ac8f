package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"whiteboard-hub/domain"
	apperrors "whiteboard-hub/errors"
)

const (
	eventKeyPrefix = "evt:"
	seqKeyPrefix   = "seq:"
	// Leased in batches; unused leases only cost key-space gaps, never
	// break the per-room ordering.
	seqBandwidth = 64
)

// diskEvent is the stored representation of a drawing event.
type diskEvent struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	R    uint8   `json:"r"`
	G    uint8   `json:"g"`
	B    uint8   `json:"b"`
	Size uint32  `json:"size"`
}

// EventLog persists drawing events in BadgerDB.
//
// The key is formatted as "evt:{escaped_room}:{seq_padded}" to:
//  1. Ensure append-order sorting using 19-digit zero padding
//     (lexicographical order equals numeric order).
//  2. Keep opaque room names from colliding with the key separator: the
//     room segment is query-escaped, so it never contains ':'.
//
// A per-room badger.Sequence assigns the padded counter, which makes the
// append order total even when two appends land in the same nanosecond.
type EventLog struct {
	db  *badger.DB
	log *slog.Logger

	mu   sync.Mutex
	seqs map[domain.RoomID]*badger.Sequence
}

func NewEventLog(db *badger.DB, log *slog.Logger) *EventLog {
	return &EventLog{
		db:   db,
		log:  log,
		seqs: make(map[domain.RoomID]*badger.Sequence),
	}
}

// Append durably stores one event at the tail of the room's log.
func (e *EventLog) Append(room domain.RoomID, event domain.DrawingEvent) error {
	seq, err := e.sequence(room)
	if err != nil {
		return fmt.Errorf("%w: lease sequence for room %q: %s", apperrors.ErrStorageUnavailable, room, err)
	}
	n, err := seq.Next()
	if err != nil {
		return fmt.Errorf("%w: next sequence for room %q: %s", apperrors.ErrStorageUnavailable, room, err)
	}
	key := fmt.Sprintf("%s%019d", roomPrefix(room), n)
	value, err := json.Marshal(fromDrawingEvent(event))
	if err != nil {
		return fmt.Errorf("encode event for room %q: %w", room, err)
	}
	err = e.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("%w: append to room %q: %s", apperrors.ErrStorageUnavailable, room, err)
	}
	return nil
}

// ReadAll retrieves the room's full event sequence in append order using a
// forward prefix scan. Thanks to the padded sequence number in the key,
// key order is append order. An unknown room yields an empty sequence.
func (e *EventLog) ReadAll(room domain.RoomID) ([]domain.DrawingEvent, error) {
	var events []domain.DrawingEvent
	err := e.db.View(func(txn *badger.Txn) error {
		prefix := []byte(roomPrefix(room))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var stored diskEvent
				if err := json.Unmarshal(value, &stored); err != nil {
					return fmt.Errorf("decode event %s: %w", it.Item().Key(), err)
				}
				events = append(events, toDrawingEvent(stored))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read room %q: %s", apperrors.ErrStorageUnavailable, room, err)
	}
	return events, nil
}

// DeleteAll wipes every persisted event of the room. The room's sequence
// keeps counting, which is harmless: later appends still sort after the
// deleted range.
func (e *EventLog) DeleteAll(room domain.RoomID) error {
	var keys [][]byte
	err := e.db.View(func(txn *badger.Txn) error {
		prefix := []byte(roomPrefix(room))
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: collect keys of room %q: %s", apperrors.ErrStorageUnavailable, room, err)
	}
	if len(keys) == 0 {
		return nil
	}

	// WriteBatch splits the deletion into as many transactions as needed,
	// so large rooms never hit ErrTxnTooBig.
	wb := e.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("%w: delete from room %q: %s", apperrors.ErrStorageUnavailable, room, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("%w: flush deletion of room %q: %s", apperrors.ErrStorageUnavailable, room, err)
	}
	e.log.Debug("cleared persisted events", "room", room, "deleted", len(keys))
	return nil
}

// ListRooms derives the distinct set of rooms holding at least one
// persisted event, sorted lexicographically. Keys-only scan: values are
// never fetched.
func (e *EventLog) ListRooms() ([]domain.RoomID, error) {
	seen := make(map[string]struct{})
	err := e.db.View(func(txn *badger.Txn) error {
		prefix := []byte(eventKeyPrefix)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			segment := key[len(eventKeyPrefix):]
			end := strings.IndexByte(segment, ':')
			if end < 0 {
				continue
			}
			seen[segment[:end]] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list rooms: %s", apperrors.ErrStorageUnavailable, err)
	}

	rooms := make([]domain.RoomID, 0, len(seen))
	for escaped := range seen {
		name, err := url.QueryUnescape(escaped)
		if err != nil {
			// A key this code did not write; skip rather than fail discovery.
			e.log.Warn("skipping malformed room key segment", "segment", escaped, "error", err)
			continue
		}
		rooms = append(rooms, domain.RoomID(name))
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms, nil
}

// Close releases every leased sequence back to the store.
func (e *EventLog) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for room, seq := range e.seqs {
		if err := seq.Release(); err != nil {
			e.log.Warn("failed to release room sequence", "room", room, "error", err)
		}
	}
	e.seqs = make(map[domain.RoomID]*badger.Sequence)
}

func (e *EventLog) sequence(room domain.RoomID) (*badger.Sequence, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if seq, ok := e.seqs[room]; ok {
		return seq, nil
	}
	seq, err := e.db.GetSequence([]byte(seqKeyPrefix+url.QueryEscape(string(room))), seqBandwidth)
	if err != nil {
		return nil, err
	}
	e.seqs[room] = seq
	return seq, nil
}

func roomPrefix(room domain.RoomID) string {
	return eventKeyPrefix + url.QueryEscape(string(room)) + ":"
}

func fromDrawingEvent(event domain.DrawingEvent) diskEvent {
	return diskEvent{
		X:    event.X,
		Y:    event.Y,
		R:    event.Color.R,
		G:    event.Color.G,
		B:    event.Color.B,
		Size: event.Size,
	}
}

func toDrawingEvent(stored diskEvent) domain.DrawingEvent {
	return domain.DrawingEvent{
		X: stored.X,
		Y: stored.Y,
		Color: domain.Color{
			R: stored.R,
			G: stored.G,
			B: stored.B,
		},
		Size: stored.Size,
	}
}
