/*
Package duplicates finds student records that likely describe the same person
and resolves them by deleting the redundant ones.

PURPOSE:
  Students sign up more than once: a parent re-registers with a different
  email casing, or a phone number is typed with and without a country code.
  This package groups such records for manual review and applies the
  reviewer's decision.

DETECTION (FindGroups):
  1. Email present -> lowercased, indexed under "email:<value>"
  2. Phone present -> digits only; if at least 10 digits remain, indexed
     under "phone:<last 10 digits>"
  3. Any index bucket with more than one member becomes a DuplicateGroup

  A record can sit in an email bucket and a phone bucket at the same time,
  and a record missing one channel is still indexed by the other.

KEEP RECORD (SelectKeepRecord):
  Priority, first difference wins:
  a. has a subscription
  b. has a batch
  c. earliest CreatedAt (the "original")

DETERMINISM:
  Pure functions over a caller-supplied snapshot. Groups come out in the
  order their key was first seen; full ties keep input order.

SEE ALSO:
  - resolve.go: deletion and merge
  - api/handlers.go: GET /api/duplicates
*/
package duplicates

import (
	"sort"
	"strings"

	"github.com/warp/enrollment-engine/domain"
)

// MinPhoneDigits is the shortest digit string that is indexed.
const MinPhoneDigits = 10

// NormalizeEmail returns the index form of an email, or "" if blank.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone returns the last 10 digits of a phone number, or "" when
// fewer than 10 digits are present.
func NormalizePhone(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if len(digits) < MinPhoneDigits {
		return ""
	}
	return digits[len(digits)-MinPhoneDigits:]
}

type bucket struct {
	key       string
	matchType domain.MatchType
	members   []domain.Student
}

// FindGroups returns every set of students sharing a normalized email or
// phone. Single-member buckets are dropped.
func FindGroups(students []domain.Student) []domain.DuplicateGroup {
	index := make(map[string]*bucket)
	var order []string

	add := func(key string, mt domain.MatchType, s domain.Student) {
		b, ok := index[key]
		if !ok {
			b = &bucket{key: key, matchType: mt}
			index[key] = b
			order = append(order, key)
		}
		b.members = append(b.members, s)
	}

	for _, s := range students {
		if s.Email != nil {
			if email := NormalizeEmail(*s.Email); email != "" {
				add("email:"+email, domain.MatchEmail, s)
			}
		}
		if s.Phone != nil {
			if phone := NormalizePhone(*s.Phone); phone != "" {
				add("phone:"+phone, domain.MatchPhone, s)
			}
		}
	}

	var groups []domain.DuplicateGroup
	for _, key := range order {
		b := index[key]
		if len(b.members) < 2 {
			continue
		}
		keep, dups := SelectKeepRecord(b.members)
		groups = append(groups, domain.DuplicateGroup{
			Key:        b.key,
			MatchType:  b.matchType,
			Keep:       keep,
			Duplicates: dups,
		})
	}
	return groups
}

// SelectKeepRecord picks the record to keep and returns the rest in their
// original relative order.
func SelectKeepRecord(members []domain.Student) (domain.Student, []domain.Student) {
	if len(members) == 0 {
		return domain.Student{}, nil
	}

	best := 0
	for i := 1; i < len(members); i++ {
		if preferred(members[i], members[best]) {
			best = i
		}
	}

	dups := make([]domain.Student, 0, len(members)-1)
	dups = append(dups, members[:best]...)
	dups = append(dups, members[best+1:]...)
	return members[best], dups
}

// preferred reports whether a strictly beats b.
func preferred(a, b domain.Student) bool {
	if a.HasSubscription() != b.HasSubscription() {
		return a.HasSubscription()
	}
	if a.HasBatch() != b.HasBatch() {
		return a.HasBatch()
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// SortGroups orders groups by size (largest first), then key. Handy for
// review screens; FindGroups itself preserves first-seen order.
func SortGroups(groups []domain.DuplicateGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		li, lj := len(groups[i].Duplicates), len(groups[j].Duplicates)
		if li != lj {
			return li > lj
		}
		return groups[i].Key < groups[j].Key
	})
}
