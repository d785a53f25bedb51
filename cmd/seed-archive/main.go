// Seeds a message archive with fake factory-floor conversations for
// developing the history and search tools offline.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/njahi98/textile-chat-bridge/internal/archive"
	"github.com/njahi98/textile-chat-bridge/internal/domain"
)

func main() {
	archivePath := "dummy_archive.db"
	if len(os.Args) > 1 {
		archivePath = os.Args[1]
	}

	fmt.Printf("Using archive at: %s\n", archivePath)

	db, err := archive.Open(archivePath)
	if err != nil {
		log.Fatalf("Failed to open archive: %v", err)
	}

	ctx := context.Background()
	if err := db.WithContext(ctx).Exec("DELETE FROM messages").Error; err != nil {
		log.Fatalf("Failed to clear messages: %v", err)
	}
	if err := db.WithContext(ctx).Exec("DELETE FROM conversations").Error; err != nil {
		log.Fatalf("Failed to clear conversations: %v", err)
	}
	fmt.Println("Cleared existing archive records")

	msgArchive := archive.NewMessageArchive(db)
	convArchive := archive.NewConversationArchive(db)

	if err := seed(ctx, msgArchive, convArchive); err != nil {
		log.Fatalf("Failed to seed archive: %v", err)
	}

	fmt.Println("Archive seeded successfully")
	fmt.Printf("Archive location: %s\n", archivePath)
}

func seed(ctx context.Context, msgArchive archive.MessageArchive, convArchive archive.ConversationArchive) error {
	gofakeit.Seed(time.Now().UnixNano())
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	groupNames := []string{
		"Weaving Floor",
		"Dyeing Unit",
		"Quality Control",
		"Night Shift",
		"Maintenance Crew",
	}

	sampleTexts := []string{
		"Loom 4 is back up, running the cotton batch now",
		"Can someone check the dye temperature on line 2?",
		"Shift report is ready for review",
		"We are short on the 40s count yarn, ordering more",
		"Inspection passed on batch 118",
		"The humidity in the spinning room is too high again",
		"Export order moved up to Thursday",
		"Take loom 7 offline for maintenance after this run",
		"New samples arrived from the supplier",
		"Meeting in the main office at 3",
	}

	// 15 users beyond the admin (id 1)
	userCount := 15
	numConversations := 10

	me := int64(1)
	now := time.Now()

	nextMessageID := int64(1)

	for i := 0; i < numConversations; i++ {
		isGroup := i < len(groupNames)

		conv := &domain.Conversation{
			ID:      int64(i + 1),
			IsGroup: isGroup,
		}
		if isGroup {
			conv.Name = groupNames[i]
		}

		// pick 2-5 participants for groups, exactly one other for direct chats
		participantIDs := []int64{me}
		if isGroup {
			n := 2 + r.Intn(4)
			for j := 0; j < n; j++ {
				participantIDs = append(participantIDs, int64(2+r.Intn(userCount)))
			}
		} else {
			participantIDs = append(participantIDs, int64(2+r.Intn(userCount)))
		}

		for _, id := range participantIDs {
			conv.Participants = append(conv.Participants, domain.Participant{
				User: domain.User{
					ID:        id,
					Username:  gofakeit.Username(),
					FirstName: gofakeit.FirstName(),
					LastName:  gofakeit.LastName(),
				},
				IsActive: true,
			})
		}

		numMessages := 10 + r.Intn(16)
		daysAgo := 1 + r.Intn(3)
		messageTime := now.Add(-time.Duration(daysAgo) * 24 * time.Hour)

		var last *domain.Message
		for j := 0; j < numMessages; j++ {
			if j > 0 {
				messageTime = messageTime.Add(time.Duration(10+r.Intn(50)) * time.Minute)
				if messageTime.After(now) {
					messageTime = now.Add(-time.Duration(r.Intn(30)) * time.Minute)
				}
			}

			content := sampleTexts[r.Intn(len(sampleTexts))]
			if r.Float32() < 0.3 {
				content = gofakeit.Sentence(4 + r.Intn(8))
			}

			sender := participantIDs[r.Intn(len(participantIDs))]
			msg := domain.NewTextMessage(nextMessageID, conv.ID, sender, content, messageTime)
			nextMessageID++

			if err := msgArchive.Save(ctx, msg); err != nil {
				return fmt.Errorf("save message %d: %w", msg.ID, err)
			}
			last = msg
		}

		conv.LastMessage = last
		conv.UpdatedAt = last.CreatedAt

		if err := convArchive.Upsert(ctx, conv); err != nil {
			return fmt.Errorf("upsert conversation %d: %w", conv.ID, err)
		}

		fmt.Printf("Seeded conversation %d with %d messages\n", conv.ID, numMessages)
	}

	return nil
}
