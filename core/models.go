package core

import (
	"os"
	"path/filepath"
	"time"
)

// Language is a language tag understood by the catalog.
type Language string

const (
	LanguageArabic     Language = "arabic"
	LanguageEnglish    Language = "english"
	LanguageFrench     Language = "french"
	LanguageGerman     Language = "german"
	LanguageRussian    Language = "russian"
	LanguagePortuguese Language = "portuguese"
	LanguagePersian    Language = "persian"
)

// Languages lists every supported language in display order.
var Languages = []Language{
	LanguageArabic,
	LanguageEnglish,
	LanguageFrench,
	LanguageGerman,
	LanguageRussian,
	LanguagePortuguese,
	LanguagePersian,
}

// FileRecord is a snapshot of a file taken when the walker reaches it.
// It is serialized into the metadata envelope sent alongside the content.
type FileRecord struct {
	Path             string     `json:"-"`
	URI              URI        `json:"uri"`
	ParentURI        URI        `json:"parentUri"`
	Size             uint64     `json:"size"`
	LastAccessTime   *time.Time `json:"lastAccessTime"`
	LastModifiedTime *time.Time `json:"lastModifiedTime"`
	CreationTime     *time.Time `json:"creationTime"`
	IsRegularFile    bool       `json:"isRegularFile"`
}

// NewFileRecord stats path and builds its record relative to root.
// The file URI is the ingestion URI extended by the path relative to root;
// the parent URI is the ingestion URI extended by the relative directory.
func NewFileRecord(ingestion URI, root, path string) (*FileRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, err
	}

	parent := ingestion
	if dir := filepath.Dir(rel); dir != "." && dir != "" {
		parent = ingestion.Extend(dir)
	}

	modified := info.ModTime().UTC()
	accessed, created := fileTimes(info)

	return &FileRecord{
		Path:             path,
		URI:              ingestion.Extend(rel),
		ParentURI:        parent,
		Size:             uint64(info.Size()),
		LastAccessTime:   accessed,
		LastModifiedTime: &modified,
		CreationTime:     created,
		IsRegularFile:    info.Mode().IsRegular(),
	}, nil
}

// Metadata is the envelope uploaded next to each file's content so the
// catalog can attach the file to its ingestion.
type Metadata struct {
	File      *FileRecord `json:"file"`
	Ingestion string      `json:"ingestion"` // full ingestion URI
	Languages []Language  `json:"languages"`
}

// NewMetadata builds the envelope for a single file.
func NewMetadata(ingestion URI, file *FileRecord, languages []Language) *Metadata {
	langs := make([]Language, len(languages))
	copy(langs, languages)
	return &Metadata{
		File:      file,
		Ingestion: ingestion.String(),
		Languages: langs,
	}
}

// Collection is a top-level grouping of ingestions in the catalog.
type Collection struct {
	URI        string      `json:"uri"`
	Display    string      `json:"display"`
	Ingestions []Ingestion `json:"ingestions"`
	CreatedBy  *string     `json:"createdBy,omitempty"`
}

// HasIngestion reports whether the collection already holds uri.
func (c *Collection) HasIngestion(uri URI) bool {
	for _, i := range c.Ingestions {
		if i.URI == uri.String() {
			return true
		}
	}
	return false
}

// Ingestion is a named unit of work within a collection.
type Ingestion struct {
	Display        string     `json:"display"`
	URI            string     `json:"uri"`
	StartTime      string     `json:"startTime"`
	EndTime        *string    `json:"endTime,omitempty"`
	Path           *string    `json:"path,omitempty"`
	FailureMessage *string    `json:"failureMessage,omitempty"`
	Languages      []Language `json:"languages"`
	Fixed          bool       `json:"fixed"`
	Default        bool       `json:"default"`
}

// Blob is a stored resource and the ingestions that reference it.
type Blob struct {
	URI        string   `json:"uri"`
	Ingestions []string `json:"ingestion"`
}

// HashResult pairs a file path with its content hash.
type HashResult struct {
	Hash string `json:"hash"`
	Path string `json:"path"`
}
