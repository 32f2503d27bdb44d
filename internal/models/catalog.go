package models

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Language is the language a textbook collection (and its answers) use.
type Language int

const (
	English Language = iota
	Gujarati
)

func (l Language) String() string {
	if l == Gujarati {
		return "gujarati"
	}
	return "english"
}

// Space returns the embedding space that content in this language is
// embedded into.
func (l Language) Space() Space {
	if l == Gujarati {
		return SpaceGujarati
	}
	return SpaceEnglish
}

// ParseLanguage accepts "english"/"en" and "gujarati"/"gu" in any case.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "english", "en", "eng":
		return English, nil
	case "gujarati", "gu", "guj":
		return Gujarati, nil
	}
	return English, fmt.Errorf("unknown language %q", s)
}

// DetectLanguage classifies a free-text subject name. Any subject mentioning
// Gujarati is served from the Gujarati collections.
func DetectLanguage(subject string) Language {
	if strings.Contains(strings.ToLower(subject), "gujarati") {
		return Gujarati
	}
	return English
}

// SubjectBucket is the canonical subject a collection is stored under.
type SubjectBucket int

const (
	BucketOther SubjectBucket = iota
	BucketEVS
	BucketMaths
)

// ClassifySubject maps a free-text subject name to its bucket.
func ClassifySubject(subject string) SubjectBucket {
	s := strings.ToLower(subject)
	switch {
	case strings.Contains(s, "evs"), strings.Contains(s, "environmental"):
		return BucketEVS
	case strings.Contains(s, "maths"):
		return BucketMaths
	}
	return BucketOther
}

// Name returns the path fragment for the bucket. The default bucket is
// named after the language it belongs to.
func (b SubjectBucket) Name(lang Language) string {
	switch b {
	case BucketEVS:
		return "evs"
	case BucketMaths:
		return "maths"
	}
	return lang.String()
}

const (
	EnglishCollection  = "textbook_db"
	GujaratiCollection = "gujarati_textbook_db"
)

// Location identifies a persisted collection on durable storage.
type Location struct {
	Dir        string `json:"dir"`
	Collection string `json:"collection"`
}

// Name is the base name of the location directory, e.g. grade3_gujarati_evs_db.
func (l Location) Name() string {
	return filepath.Base(l.Dir)
}

// Locate derives the deterministic storage location for a grade, language
// and subject bucket below base. Gujarati buckets all share one collection
// name, as do the English ones; each bucket still has its own directory.
func Locate(base, grade string, lang Language, bucket SubjectBucket) Location {
	grade = strings.TrimSpace(grade)
	if lang == Gujarati {
		return Location{
			Dir:        filepath.Join(base, fmt.Sprintf("grade%s_gujarati_%s_db", grade, bucket.Name(lang))),
			Collection: GujaratiCollection,
		}
	}
	return Location{
		Dir:        filepath.Join(base, fmt.Sprintf("grade%s_%s_db", grade, bucket.Name(lang))),
		Collection: EnglishCollection,
	}
}
