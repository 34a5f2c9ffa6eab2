package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Anime statuses presented during content authoring.
var AnimeStatuses = []string{"Ongoing", "Completed", "Movie", "OVA"}

// Genres offered in the authoring multi-select.
var Genres = []string{
	"Action", "Adventure", "Comedy", "Drama", "Fantasy", "Horror", "Mecha",
	"Music", "Mystery", "Psychological", "Romance", "Sci-Fi", "Slice of Life",
	"Sports", "Supernatural", "Thriller",
}

// Anime is one series document. Searchable fields hold the normalized form of
// the title and aliases so lookups are insensitive to case and punctuation.
// DownloadCount is a denormalized popularity counter, incremented on confirmed
// delivery and rebuildable from the activity log.
type Anime struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	Title             string             `bson:"title"`
	TitleSearchable   string             `bson:"title_searchable"`
	OriginalTitle     string             `bson:"original_title"`
	Synopsis          string             `bson:"synopsis"`
	Year              int                `bson:"year"`
	Status            string             `bson:"status"`
	Genres            []string           `bson:"genres"`
	PosterURL         string             `bson:"poster_url"`
	Aliases           []string           `bson:"aliases"`
	AliasesSearchable []string           `bson:"aliases_searchable"`
	AddedByUserID     int64              `bson:"added_by_user_id"`
	AddedAt           time.Time          `bson:"added_at"`
	LastUpdatedAt     time.Time          `bson:"last_updated_at"`
	DownloadCount     int64              `bson:"download_count"`
}

// Season belongs to exactly one series. Number 0 is reserved for specials.
type Season struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	AnimeID       primitive.ObjectID `bson:"anime_id"`
	SeasonNumber  int                `bson:"season_number"`
	Title         string             `bson:"title"`
	AddedByUserID int64              `bson:"added_by_user_id"`
	AddedAt       time.Time          `bson:"added_at"`
}

// Episode is one concrete deliverable file at a given quality/audio
// combination. Several documents may share the same logical
// (anime, season number, episode number) tuple, one per variant. AnimeID and
// SeasonNumber are denormalized for query convenience.
type Episode struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	AnimeID       primitive.ObjectID `bson:"anime_id"`
	SeasonID      primitive.ObjectID `bson:"season_id"`
	SeasonNumber  int                `bson:"season_number"`
	EpisodeNumber int                `bson:"episode_number"`
	EpisodeTitle  string             `bson:"episode_title"`
	FileID        string             `bson:"file_id"`
	FileUniqueID  string             `bson:"file_unique_id"`
	FileSizeBytes int64              `bson:"file_size_bytes"`
	FileType      string             `bson:"file_type"`
	Quality       string             `bson:"quality"`
	AudioType     string             `bson:"audio_type"`
	AddedByUserID int64              `bson:"added_by_user_id"`
	AddedAt       time.Time          `bson:"added_at"`
	DownloadCount int64              `bson:"download_count"`
}
