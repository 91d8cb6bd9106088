package db

import (
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	seedFirstNames = []string{"Amara", "Ben", "Chloe", "Dev", "Elif", "Farid", "Grace", "Hugo", "Ines", "Jonah"}
	seedValues     = []string{"honesty", "family", "curiosity", "faith", "ambition", "kindness", "adventure", "loyalty", "growth", "humour"}
	seedIntents    = []Intent{IntentLifePartner, IntentSeriousDating, IntentCompanionship, IntentExploring}
)

// SeedTestData resets the database and populates it with demo profiles.
//
// Behavior:
//  1. Clears messages, matches, discovery history/quota and profiles.
//  2. Creates n profiles spread across the intents, each with three values.
//  3. Every third pair within an intent gets a pending like so reciprocal
//     likes can be tried straight away.
//
// Compatible with both MySQL and SQLite (AUTO_INCREMENT reset skipped for SQLite).
func SeedTestData(db *gorm.DB, n int) ([]Profile, error) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	// --- Fresh start ---
	for _, table := range []string{"messages", "matches", "discovery_quota", "discovery_history", "profiles"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return nil, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	switch db.Dialector.Name() {
	case "mysql":
		db.Exec("ALTER TABLE profiles AUTO_INCREMENT = 1")
		db.Exec("ALTER TABLE matches AUTO_INCREMENT = 1")
		db.Exec("ALTER TABLE messages AUTO_INCREMENT = 1")
	case "sqlite":
		db.Exec("DELETE FROM sqlite_sequence WHERE name IN ('profiles', 'matches', 'messages')")
	}

	// --- Profiles ---
	profiles := make([]Profile, 0, n)
	for i := 0; i < n; i++ {
		values := r.Perm(len(seedValues))[:3]
		p := Profile{
			FullName:  fmt.Sprintf("%s %c.", seedFirstNames[i%len(seedFirstNames)], 'A'+rune(i/len(seedFirstNames))%26),
			BirthDate: time.Date(1985+r.Intn(15), time.Month(1+r.Intn(12)), 1+r.Intn(28), 0, 0, 0, 0, time.UTC),
			Intent:    seedIntents[i%len(seedIntents)],
			Values:    []string{seedValues[values[0]], seedValues[values[1]], seedValues[values[2]]},
			Bio:       "Here for something real.",
		}
		profiles = append(profiles, p)
	}
	if err := db.Create(&profiles).Error; err != nil {
		return nil, fmt.Errorf("failed to seed profiles: %w", err)
	}

	// --- Pending likes ---
	counter := 0
	for i := range profiles {
		for j := i + 1; j < len(profiles); j++ {
			a, b := profiles[i], profiles[j]
			if a.Intent != b.Intent {
				continue
			}
			counter++
			if counter%3 != 0 {
				continue
			}
			m := Match{User1: a.ID, User2: b.ID, PairKey: PairKey(a.ID, b.ID), Status: MatchPending}
			if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
				return nil, fmt.Errorf("failed to seed match: %w", err)
			}
		}
	}

	return profiles, nil
}
