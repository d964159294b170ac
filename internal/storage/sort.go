package storage

import (
	"sort"

	"github.com/mcoot/triviasync/internal/model"
)

// SortRooms orders rooms oldest first, breaking ties by id
func SortRooms(rooms []*model.Room) {
	sort.SliceStable(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
		}
		return rooms[i].ID < rooms[j].ID
	})
}

// SortAnswers orders answers by question then guest
func SortAnswers(answers []model.Answer) {
	sort.SliceStable(answers, func(i, j int) bool {
		if answers[i].QuestionID != answers[j].QuestionID {
			return answers[i].QuestionID < answers[j].QuestionID
		}
		return answers[i].GuestID < answers[j].GuestID
	})
}

// SortParticipants orders participants by guest id
func SortParticipants(participants []model.Participant) {
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].GuestID < participants[j].GuestID
	})
}
