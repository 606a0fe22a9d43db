package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/domain"
)

var (
	seedInterests = []string{
		"hiking", "cooking", "travel", "music", "reading", "yoga", "gaming",
		"photography", "cinema", "running", "art", "football", "coffee", "dancing",
	}
	seedCategories = []string{
		domain.CategoryCommunication, domain.CategoryValues,
		domain.CategoryLifestyle, domain.CategoryPersonality,
	}
	seedOptions = []string{"a", "b", "c", "d"}
)

// SeedTestData resets the engine tables and populates demo users.
//
// Behavior:
//  1. Clears pairings, choices, selections, subscriptions, profiles and users.
//  2. Creates 20 users (10 male, 10 female) with hashed passwords.
//  3. Gives 18 of them completed profiles with 8 questionnaire answers each.
//  4. Makes every 4th user premium.
//
// Compatible with both MySQL and SQLite (AUTO_INCREMENT reset skipped for SQLite).
func SeedTestData(db *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	// --- Fresh start ---
	for _, table := range []string{"pairings", "choices", "daily_selections", "subscriptions", "profiles", "users"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	switch db.Dialector.Name() {
	case "mysql":
		db.Exec("ALTER TABLE users AUTO_INCREMENT = 1")
		db.Exec("ALTER TABLE daily_selections AUTO_INCREMENT = 1")
	case "sqlite":
		db.Exec("DELETE FROM sqlite_sequence WHERE name IN ('users', 'daily_selections', 'choices', 'pairings')")
	}

	log.Println("Cleared existing data")

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	for i := 1; i <= 20; i++ {
		lastActive := time.Now().Add(-time.Duration(r.Intn(500)) * time.Hour)
		user := User{
			Username:     fmt.Sprintf("user%d", i),
			Email:        fmt.Sprintf("user%d@example.com", i),
			PasswordHash: string(hash),
			Active:       true,
			LastActiveAt: &lastActive,
		}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}

		gender, wants := "male", "female"
		if i > 10 {
			gender, wants = "female", "male"
		}
		lat := 51.5 + r.Float64()/2
		lon := -0.1 + r.Float64()/2

		profile := Profile{
			UserID:            user.ID,
			Completed:         i%10 != 0,
			Age:               22 + r.Intn(18),
			Gender:            gender,
			Latitude:          &lat,
			Longitude:         &lon,
			PrefMinAge:        21,
			PrefMaxAge:        45,
			PrefGender:        wants,
			PrefMaxDistanceKm: 50,
			Interests:         pickInterests(r, 3+r.Intn(4)),
			Answers:           randomAnswers(r),
			MessagesSent:      r.Intn(60),
			MessagesReceived:  r.Intn(60),
			MatchesCount:      r.Intn(6),
		}
		if err := db.Create(&profile).Error; err != nil {
			return fmt.Errorf("failed to seed profile: %w", err)
		}

		if i%4 == 0 {
			if err := db.Create(&Subscription{UserID: user.ID, Tier: "premium"}).Error; err != nil {
				return fmt.Errorf("failed to seed subscription: %w", err)
			}
		}
	}
	log.Println("Seeded 20 users with profiles.")

	return nil
}

func pickInterests(r *rand.Rand, n int) []string {
	idx := r.Perm(len(seedInterests))[:n]
	out := make([]string, 0, n)
	for _, i := range idx {
		out = append(out, seedInterests[i])
	}
	return out
}

// randomAnswers builds answers for q1..q8, two of each kind.
func randomAnswers(r *rand.Rand) []domain.Answer {
	answers := make([]domain.Answer, 0, 8)
	for q := 1; q <= 8; q++ {
		a := domain.Answer{
			QuestionID: fmt.Sprintf("q%d", q),
			Category:   seedCategories[q%len(seedCategories)],
		}
		switch q % 4 {
		case 0:
			n := 1 + r.Intn(10)
			a.Kind, a.Numeric = domain.AnswerNumeric, &n
		case 1:
			b := r.Intn(2) == 0
			a.Kind, a.Boolean = domain.AnswerBoolean, &b
		case 2:
			a.Kind = domain.AnswerMultipleChoice
			a.Choices = seedOptions[:1+r.Intn(len(seedOptions))]
		default:
			a.Kind, a.Text = domain.AnswerText, seedOptions[r.Intn(2)]
		}
		answers = append(answers, a)
	}
	return answers
}
