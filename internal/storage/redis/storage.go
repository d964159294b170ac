package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// touch queues a TTL refresh of a room-scoped key
func (s *Storage) touch(ctx context.Context, pipe redis.Pipeliner, key string) {
	if s.cfg.RoomTTL > 0 {
		pipe.Expire(ctx, key, s.cfg.RoomTTL)
	}
}

// Room operations

func (s *Storage) SaveRoom(ctx context.Context, room *model.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}

	// Use pipeline for atomic save + index update
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, roomKey(room.ID), data, s.cfg.RoomTTL)
	pipe.SAdd(ctx, roomsIndexKey(), string(room.ID))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	data, err := s.client.Get(ctx, roomKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrRoomNotFound
		}
		return nil, err
	}

	var room model.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *Storage) DeleteRoom(ctx context.Context, id model.RoomID) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, roomScopedKeys(id)...)
	pipe.SRem(ctx, roomsIndexKey(), string(id))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Storage) ListRooms(ctx context.Context, status model.RoomStatus) ([]*model.Room, error) {
	ids, err := s.client.SMembers(ctx, roomsIndexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = roomKey(model.RoomID(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var rooms []*model.Room
	var expired []any
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// Room key expired; drop it from the index
			expired = append(expired, ids[i])
			continue
		}
		var room model.Room
		if err := json.Unmarshal([]byte(str), &room); err != nil {
			return nil, err
		}
		if status != "" && room.Status != status {
			continue
		}
		rooms = append(rooms, &room)
	}

	if len(expired) > 0 {
		if err := s.client.SRem(ctx, roomsIndexKey(), expired...).Err(); err != nil {
			return nil, err
		}
	}

	storage.SortRooms(rooms)
	return rooms, nil
}

// Participant operations

func (s *Storage) SaveParticipant(ctx context.Context, roomID model.RoomID, p *model.Participant) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}

	key := participantsKey(roomID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(int(p.GuestID)), data)
	s.touch(ctx, pipe, key)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetParticipants(ctx context.Context, roomID model.RoomID) ([]model.Participant, error) {
	values, err := s.client.HGetAll(ctx, participantsKey(roomID)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]model.Participant, 0, len(values))
	for _, v := range values {
		var p model.Participant
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	storage.SortParticipants(out)
	return out, nil
}

func (s *Storage) RemoveParticipant(ctx context.Context, roomID model.RoomID, guestID model.GuestID) error {
	return s.client.HDel(ctx, participantsKey(roomID), strconv.Itoa(int(guestID))).Err()
}

// Question operations

func (s *Storage) AppendQuestions(ctx context.Context, roomID model.RoomID, questions []model.Question) error {
	if len(questions) == 0 {
		return nil
	}

	members := make([]any, len(questions))
	for i, q := range questions {
		data, err := json.Marshal(q)
		if err != nil {
			return err
		}
		members[i] = data
	}

	key := questionsKey(roomID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, members...)
	s.touch(ctx, pipe, key)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Storage) GetQuestions(ctx context.Context, roomID model.RoomID) ([]model.Question, error) {
	values, err := s.client.LRange(ctx, questionsKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]model.Question, len(values))
	for i, v := range values {
		if err := json.Unmarshal([]byte(v), &out[i]); err != nil {
			return nil, err
		}
	}
	model.SortQuestions(out)
	return out, nil
}

// Answer operations

func (s *Storage) SaveAnswer(ctx context.Context, answer *model.Answer) error {
	data, err := json.Marshal(answer)
	if err != nil {
		return err
	}

	key := answersKey(answer.RoomID)
	created, err := s.client.HSetNX(ctx, key, answerField(answer.QuestionID, answer.GuestID), data).Result()
	if err != nil {
		return err
	}
	if !created {
		return model.ErrAlreadyAnswered
	}
	if s.cfg.RoomTTL > 0 {
		return s.client.Expire(ctx, key, s.cfg.RoomTTL).Err()
	}
	return nil
}

func (s *Storage) GetAnswers(ctx context.Context, roomID model.RoomID) ([]model.Answer, error) {
	values, err := s.client.HGetAll(ctx, answersKey(roomID)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]model.Answer, 0, len(values))
	for _, v := range values {
		var a model.Answer
		if err := json.Unmarshal([]byte(v), &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	storage.SortAnswers(out)
	return out, nil
}

// Finished operations

func (s *Storage) AddFinished(ctx context.Context, roomID model.RoomID, guestID model.GuestID) error {
	key := finishedKey(roomID)
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, strconv.Itoa(int(guestID)))
	s.touch(ctx, pipe, key)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Storage) GetFinished(ctx context.Context, roomID model.RoomID) ([]model.GuestID, error) {
	members, err := s.client.SMembers(ctx, finishedKey(roomID)).Result()
	if err != nil {
		return nil, err
	}

	reg := model.NewFinishRegistration()
	for _, m := range members {
		id, err := strconv.Atoi(m)
		if err != nil {
			return nil, err
		}
		reg.Add(model.GuestID(id))
	}
	return reg.Guests(), nil
}

// Chat operations

func (s *Storage) SaveMessage(ctx context.Context, msg *model.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := messagesKey(msg.RoomID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, msg.ID, data)
	s.touch(ctx, pipe, key)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetMessage(ctx context.Context, roomID model.RoomID, messageID string) (*model.ChatMessage, error) {
	data, err := s.client.HGet(ctx, messagesKey(roomID), messageID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrMessageNotFound
		}
		return nil, err
	}

	var msg model.ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *Storage) DeleteMessage(ctx context.Context, roomID model.RoomID, messageID string) error {
	return s.client.HDel(ctx, messagesKey(roomID), messageID).Err()
}

// Question bank operations

func (s *Storage) GetBankQuestions(ctx context.Context) ([]model.BankQuestion, error) {
	values, err := s.client.LRange(ctx, bankKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, model.ErrQuestionBankEmpty
	}

	out := make([]model.BankQuestion, len(values))
	for i, v := range values {
		if err := json.Unmarshal([]byte(v), &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Storage) SaveBankQuestions(ctx context.Context, questions []model.BankQuestion) error {
	// Replace the existing bank atomically
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, bankKey())

	if len(questions) > 0 {
		members := make([]any, len(questions))
		for i, q := range questions {
			data, err := json.Marshal(q)
			if err != nil {
				return err
			}
			members[i] = data
		}
		pipe.RPush(ctx, bankKey(), members...)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
