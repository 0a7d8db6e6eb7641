package models

// Timestamp layouts used throughout the catalog. Timestamps are persisted as
// local-time TEXT so lexicographic ordering matches chronological ordering.
const (
	TimestampLayout = "2006-01-02T15:04:05"
	DateLayout      = "2006-01-02"
)

// Generation is one successfully produced image and its metadata. Rows are
// immutable apart from the named update operations on the catalog.
type Generation struct {
	ID                    int64       `json:"id"`
	Slug                  string      `json:"slug"`
	Prompt                string      `json:"prompt"`
	Model                 string      `json:"model"`
	Provider              string      `json:"provider"`
	Timestamp             string      `json:"timestamp"`
	Date                  string      `json:"date"`
	ImagePath             string      `json:"image_path"`
	ThumbPath             *string     `json:"thumb_path,omitempty"`
	GenerationTimeSeconds *float64    `json:"generation_time_seconds,omitempty"`
	CostEstimateUSD       *float64    `json:"cost_estimate_usd,omitempty"`
	Seed                  *string     `json:"seed,omitempty"`
	Width                 *int64      `json:"width,omitempty"`
	Height                *int64      `json:"height,omitempty"`
	FileSize              *int64      `json:"file_size,omitempty"`
	ParentID              *int64      `json:"parent_id,omitempty"`
	Starred               bool        `json:"starred"`
	CreatedAt             string      `json:"created_at"`
	TrashedAt             *string     `json:"trashed_at,omitempty"`
	Title                 *string     `json:"title,omitempty"`
	NegativePrompt        *string     `json:"negative_prompt,omitempty"`
	Tags                  []string    `json:"tags"`
	References            []Reference `json:"references"`
}

// NewGeneration carries the immutable core fields for an insert.
type NewGeneration struct {
	Slug                  string
	Prompt                string
	Model                 string
	Provider              string
	Timestamp             string
	Date                  string
	ImagePath             string
	ThumbPath             *string
	GenerationTimeSeconds *float64
	CostEstimateUSD       *float64
	Seed                  *string
	Width                 *int64
	Height                *int64
	FileSize              *int64
	ParentID              *int64
	NegativePrompt        *string
}

// Reference is a content-addressed input image, deduplicated by hash.
type Reference struct {
	ID        int64  `json:"id"`
	Hash      string `json:"hash"`
	Path      string `json:"path"`
	CreatedAt string `json:"created_at"`
}

// TagCount is a tag name with its usage count.
type TagCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Collection is a named grouping of generations, independent of tags.
type Collection struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	CreatedAt   string  `json:"created_at"`
	Count       int64   `json:"count"`
}

// ListFilter composes the predicates for listing generations. Zero value
// means "everything not trashed, newest first".
type ListFilter struct {
	Limit         *int64   `json:"limit,omitempty"`
	Offset        *int64   `json:"offset,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	ExcludeTags   []string `json:"exclude_tags,omitempty"`
	Model         string   `json:"model,omitempty"`
	StarredOnly   bool     `json:"starred_only,omitempty"`
	Search        string   `json:"search,omitempty"`
	Since         string   `json:"since,omitempty"`
	CollectionID  *int64   `json:"collection_id,omitempty"`
	ShowTrashed bool `json:"show_trashed,omitempty"`
	// Uncategorized selects generations belonging to no collection.
	Uncategorized bool `json:"uncategorized,omitempty"`
}

// GenerateParams is the request accepted from the CLI/GUI collaborators.
type GenerateParams struct {
	Prompt         string   `json:"prompt"`
	Model          string   `json:"model"`
	Tags           []string `json:"tags"`
	ReferencePaths []string `json:"reference_paths"`
	CopyTo         string   `json:"copy_to,omitempty"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Width          *int64   `json:"width,omitempty"`
	Height         *int64   `json:"height,omitempty"`
	// ParentID records lineage when regenerating from an earlier result.
	ParentID *int64 `json:"parent_id,omitempty"`
}

// ModelCost is a per-model aggregated spend.
type ModelCost struct {
	Model string  `json:"model"`
	USD   float64 `json:"usd"`
}

// DayCost is a per-day aggregated spend.
type DayCost struct {
	Date string  `json:"date"`
	USD  float64 `json:"usd"`
}

// CostSummary aggregates spend across the catalog.
type CostSummary struct {
	TotalUSD float64     `json:"total_usd"`
	Count    int64       `json:"count"`
	ByModel  []ModelCost `json:"by_model"`
	ByDay    []DayCost   `json:"by_day"`
}
